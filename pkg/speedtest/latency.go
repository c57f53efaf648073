package speedtest

import (
	"context"
	"io"
	"math"
	"net/http"
	"time"
)

// latencyURL derives the ping path from a server's base URL.
func latencyURL(serverURL string) string {
	return serverURL + "?latency"
}

// MeasureLatency issues count sequential lightweight GETs against the
// server's ping path and returns the arithmetic mean round-trip time in
// milliseconds. A failed probe contributes +Inf, so the result is +Inf when
// every probe failed; callers treat that as "unreachable", never as an
// error. The same reduction backs both server selection and the session's
// latency stage.
func MeasureLatency(ctx context.Context, client *http.Client, serverURL string, count int) float64 {
	if count <= 0 {
		return math.Inf(1)
	}

	var total float64
	for i := 0; i < count; i++ {
		total += probeOnce(ctx, client, latencyURL(serverURL))
	}
	return total / float64(count)
}

func probeOnce(ctx context.Context, client *http.Client, url string) float64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return math.Inf(1)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return math.Inf(1)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return float64(time.Since(start)) / float64(time.Millisecond)
}
