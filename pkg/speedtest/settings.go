package speedtest

import (
	"time"

	"github.com/spf13/viper"
)

const (
	defaultConfigURL     = "https://www.speedtest.net/speedtest-config.php"
	defaultServerListURL = "https://www.speedtest.net/speedtest-servers-static.php"
)

// Settings holds every knob of the measurement engine. Zero values are not
// usable; start from DefaultSettings or FromViper.
type Settings struct {
	ConfigURL     string
	ServerListURL string

	// DownloadChunkSize is the read size for each download transfer.
	DownloadChunkSize int
	// UploadChunkSize is the POST payload size for each upload iteration.
	UploadChunkSize int
	// TestCount is the number of concurrent download transfers.
	TestCount int
	// LatencyTestCount is the number of probes averaged into one latency
	// figure, both during server selection and the latency stage.
	LatencyTestCount int

	// Timeout bounds each individual HTTP request.
	Timeout time.Duration
	// MaxDownloadTime and MaxUploadTime are wall-clock caps for the whole
	// download fan-out and the upload loop respectively.
	MaxDownloadTime time.Duration
	MaxUploadTime   time.Duration

	// MaxDistanceKM discards server candidates farther than this from the
	// reference location.
	MaxDistanceKM float64

	// RateLimitMB caps download throughput in MB/s. Zero means unlimited.
	RateLimitMB float64
}

func DefaultSettings() Settings {
	return Settings{
		ConfigURL:         defaultConfigURL,
		ServerListURL:     defaultServerListURL,
		DownloadChunkSize: 100 * 1024,
		UploadChunkSize:   4 * 1024 * 1024,
		TestCount:         10,
		LatencyTestCount:  3,
		Timeout:           10 * time.Second,
		MaxDownloadTime:   15 * time.Second,
		MaxUploadTime:     15 * time.Second,
		MaxDistanceKM:     500,
		RateLimitMB:       0,
	}
}

// FromViper reads the speedtest.* keys, falling back to defaults for unset
// keys. Defaults are also registered in cmd via viper.SetDefault, so this
// mostly matters for tests constructing a viper instance by hand.
func FromViper(v *viper.Viper) Settings {
	s := DefaultSettings()
	if val := v.GetString("speedtest.config_url"); val != "" {
		s.ConfigURL = val
	}
	if val := v.GetString("speedtest.server_list_url"); val != "" {
		s.ServerListURL = val
	}
	if val := v.GetInt("speedtest.download_chunk_size"); val > 0 {
		s.DownloadChunkSize = val
	}
	if val := v.GetInt("speedtest.upload_chunk_size"); val > 0 {
		s.UploadChunkSize = val
	}
	if val := v.GetInt("speedtest.test_count"); val > 0 {
		s.TestCount = val
	}
	if val := v.GetInt("speedtest.latency_test_count"); val > 0 {
		s.LatencyTestCount = val
	}
	if val := v.GetDuration("speedtest.timeout"); val > 0 {
		s.Timeout = val
	}
	if val := v.GetDuration("speedtest.max_download_time"); val > 0 {
		s.MaxDownloadTime = val
	}
	if val := v.GetDuration("speedtest.max_upload_time"); val > 0 {
		s.MaxUploadTime = val
	}
	if val := v.GetFloat64("speedtest.max_distance_km"); val > 0 {
		s.MaxDistanceKM = val
	}
	if val := v.GetFloat64("speedtest.rate_limit_mb"); val > 0 {
		s.RateLimitMB = val
	}
	return s
}
