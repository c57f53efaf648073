package speedtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
)

// ClientConfig is the measuring party's identity as reported by the
// discovery endpoint: the public IP the line egresses through, the ISP
// string, and the coordinates the endpoint geolocated the IP to.
type ClientConfig struct {
	PublicIP  string
	Latitude  float64
	Longitude float64
	ISP       string

	// HasLocation reports whether the discovery document carried usable
	// coordinates. Selection falls back to the first candidate's location
	// when it did not.
	HasLocation bool
}

var clientElementRe = regexp.MustCompile(`<client ip="(.*?)" lat="(.*?)" lon="(.*?)" isp="(.*?)"`)

// FetchClientConfig retrieves the discovery document and extracts the client
// element. Failure here is fatal for a measurement session: without the
// public IP there is nothing meaningful to measure or report.
func FetchClientConfig(ctx context.Context, client *http.Client, url string) (*ClientConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create config request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch config: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read config body: %v", err)
	}

	match := clientElementRe.FindSubmatch(body)
	if match == nil {
		return nil, fmt.Errorf("config document has no client element")
	}

	cfg := &ClientConfig{
		PublicIP: string(match[1]),
		ISP:      string(match[4]),
	}

	lat, latErr := strconv.ParseFloat(string(match[2]), 64)
	lon, lonErr := strconv.ParseFloat(string(match[3]), 64)
	if latErr == nil && lonErr == nil {
		cfg.Latitude = lat
		cfg.Longitude = lon
		cfg.HasLocation = true
	}

	return cfg, nil
}
