package speedtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strconv"
)

// ErrNoServer means no candidate was inside the distance cutoff or every
// in-range candidate was unreachable. It is terminal for the target line:
// retrying the selection in a loop will not conjure a server.
var ErrNoServer = errors.New("no measurement server available")

// ServerCandidate is one entry of the server directory. Candidates are
// ephemeral; only the selected one survives past selection.
type ServerCandidate struct {
	ID   string
	URL  string
	Lat  float64
	Lon  float64
	Name string
}

var serverElementRe = regexp.MustCompile(`<server url="(http://.*?)" lat="(.*?)" lon="(.*?)" name="(.*?)"`)

// FetchServerList retrieves the server directory and parses the candidate
// fields the engine cares about. Directory entries with malformed
// coordinates are skipped rather than failing the whole list.
func FetchServerList(ctx context.Context, client *http.Client, url string) ([]ServerCandidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create server list request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch server list: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server list endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read server list body: %v", err)
	}

	var candidates []ServerCandidate
	for _, match := range serverElementRe.FindAllStringSubmatch(string(body), -1) {
		lat, latErr := strconv.ParseFloat(match[2], 64)
		lon, lonErr := strconv.ParseFloat(match[3], 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		candidates = append(candidates, ServerCandidate{
			URL:  match[1],
			Lat:  lat,
			Lon:  lon,
			Name: match[4],
		})
	}

	return candidates, nil
}

const earthRadiusKM = 6371

// Haversine returns the great-circle distance in kilometers between two
// coordinate pairs.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180
	a := math.Pow(math.Sin(dlat/2), 2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// SelectServer picks the lowest-latency candidate within the distance cutoff
// from the reference location. Each surviving candidate is probed
// LatencyTestCount times under a per-candidate deadline, so one unreachable
// candidate cannot stall selection of the rest. Returns ErrNoServer when
// everything is out of range or unreachable.
func SelectServer(
	ctx context.Context,
	client *http.Client,
	candidates []ServerCandidate,
	refLat, refLon float64,
	settings Settings,
	logger *slog.Logger,
) (*ServerCandidate, error) {
	best := -1
	bestLatency := math.Inf(1)

	for i, candidate := range candidates {
		distance := Haversine(refLat, refLon, candidate.Lat, candidate.Lon)
		if distance > settings.MaxDistanceKM {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, settings.Timeout)
		latency := MeasureLatency(probeCtx, client, candidate.URL, settings.LatencyTestCount)
		cancel()

		logger.Debug("probed candidate",
			"server", candidate.Name,
			"distanceKM", distance,
			"latencyMS", latency)

		if latency < bestLatency {
			bestLatency = latency
			best = i
		}
	}

	if best < 0 || math.IsInf(bestLatency, 1) {
		return nil, ErrNoServer
	}

	selected := candidates[best]
	return &selected, nil
}
