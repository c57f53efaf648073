package speedtest

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TransferStats is the outcome of one throughput operation. A zero Bytes
// with a nonzero Elapsed means the endpoint never produced data, which
// callers read as "measurement failed" rather than a zero-bandwidth link.
type TransferStats struct {
	Bytes   int64
	Elapsed time.Duration
}

// Rate returns bytes per second over the operation's wall-clock window.
func (t TransferStats) Rate() float64 {
	if t.Elapsed <= 0 {
		return 0
	}
	return float64(t.Bytes) / t.Elapsed.Seconds()
}

func downloadURL(serverURL string) string {
	return serverURL + "/random4000x4000.jpg"
}

func uploadURL(serverURL string) string {
	return serverURL + "/upload"
}

// MeasureDownload fans out settings.TestCount concurrent transfers against
// the server's large-object path, reading fixed-size chunks until the
// MaxDownloadTime wall-clock cap cancels whatever is still running. The rate
// is total bytes across all transfers over the elapsed time of the whole
// fan-out; overlapping the transfers is what approximates real link
// capacity. Individual transfer failures only cost their bytes.
func MeasureDownload(ctx context.Context, client *http.Client, serverURL string, settings Settings, logger *slog.Logger) TransferStats {
	opCtx, cancel := context.WithTimeout(ctx, settings.MaxDownloadTime)
	defer cancel()

	var limiter *rate.Limiter
	if settings.RateLimitMB > 0 {
		limit := rate.Limit(settings.RateLimitMB * 1024 * 1024)
		limiter = rate.NewLimiter(limit, int(limit))
	}

	start := time.Now()
	counts := make([]int64, settings.TestCount)

	var wg sync.WaitGroup
	for i := 0; i < settings.TestCount; i++ {
		wg.Add(1)
		go func(slot *int64) {
			defer wg.Done()
			*slot = downloadOne(opCtx, client, downloadURL(serverURL), settings.DownloadChunkSize, limiter, logger)
		}(&counts[i])
	}
	wg.Wait()

	stats := TransferStats{Elapsed: time.Since(start)}
	for _, n := range counts {
		stats.Bytes += n
	}

	logger.Debug("download finished", "bytes", stats.Bytes, "elapsed", stats.Elapsed)
	return stats
}

func downloadOne(ctx context.Context, client *http.Client, url string, chunkSize int, limiter *rate.Limiter, logger *slog.Logger) int64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("download transfer failed", "error", err)
		return 0
	}
	defer resp.Body.Close()

	var total int64
	buf := make([]byte, chunkSize)
	for {
		if ctx.Err() != nil {
			return total
		}
		if limiter != nil {
			if err := limiter.WaitN(ctx, chunkSize); err != nil {
				return total
			}
		}
		n, err := resp.Body.Read(buf)
		total += int64(n)
		if err != nil {
			return total
		}
	}
}

// uploadRetryDelay spaces out attempts after a failed post so an
// unreachable endpoint is not hammered with connection attempts for the
// whole MaxUploadTime window.
const uploadRetryDelay = 100 * time.Millisecond

// MeasureUpload repeatedly POSTs a fixed-size payload to the server's upload
// path, sequentially, until the MaxUploadTime wall-clock cap elapses. Only
// successful posts count toward the total; a failed post is skipped and the
// loop keeps going until the cap.
func MeasureUpload(ctx context.Context, client *http.Client, serverURL string, settings Settings, logger *slog.Logger) TransferStats {
	opCtx, cancel := context.WithTimeout(ctx, settings.MaxUploadTime)
	defer cancel()

	payload := make([]byte, settings.UploadChunkSize)
	url := uploadURL(serverURL)

	start := time.Now()
	var total int64
	for time.Since(start) < settings.MaxUploadTime {
		if opCtx.Err() != nil {
			break
		}
		if uploadOne(opCtx, client, url, payload) {
			total += int64(settings.UploadChunkSize)
			continue
		}
		select {
		case <-opCtx.Done():
		case <-time.After(uploadRetryDelay):
		}
	}

	stats := TransferStats{Bytes: total, Elapsed: time.Since(start)}
	logger.Debug("upload finished", "bytes", stats.Bytes, "elapsed", stats.Elapsed)
	return stats
}

func uploadOne(ctx context.Context, client *http.Client, url string, payload []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < http.StatusBadRequest
}
