package speedtest

import (
	"context"
	"log/slog"
	"math"
	"net/http"
)

// State names the stages of one measurement session. Stages run strictly in
// order; StateFailed is terminal and reachable from anywhere.
type State string

const (
	StateInit             State = "init"
	StateConfigFetched    State = "config_fetched"
	StateServerSelected   State = "server_selected"
	StateLatencyMeasured  State = "latency_measured"
	StateDownloadMeasured State = "download_measured"
	StateUploadMeasured   State = "upload_measured"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// Result is the terminal outcome of one session. Every stage's outcome is
// recorded independently: PingMS is +Inf when the endpoint never answered a
// probe, rates are zero when their stage failed. Created once, never mutated
// after the session returns it.
type Result struct {
	PingMS        float64
	DownloadBps   float64
	UploadBps     float64
	PublicIP      string
	ISP           string
	Server        *ServerCandidate
	Success       bool
	FailureReason string
}

// Unreachable reports whether every latency probe failed.
func (r *Result) Unreachable() bool {
	return math.IsInf(r.PingMS, 1)
}

// Session is one full measurement for one target: discovery, server
// selection, latency, download, upload. A Session is single-use.
type Session struct {
	client   *http.Client
	settings Settings
	logger   *slog.Logger
	state    State
}

func NewSession(client *http.Client, settings Settings, logger *slog.Logger) *Session {
	if client == nil {
		client = &http.Client{Timeout: settings.Timeout}
	}
	return &Session{
		client:   client,
		settings: settings,
		logger:   logger,
		state:    StateInit,
	}
}

// State returns the session's current stage.
func (s *Session) State() State {
	return s.state
}

// Run drives the session to a terminal state and always returns a Result.
// Discovery failure is fatal: no further network calls are attempted and the
// returned error marks the unit as failed. Every later stage is best-effort;
// a stage failure is logged, recorded as a degraded value, and the session
// proceeds, because a partial report beats none. A non-nil error alongside
// the result means the session as a whole should count as failed.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	result := &Result{PingMS: math.Inf(1)}

	cfg, err := FetchClientConfig(ctx, s.client, s.settings.ConfigURL)
	if err != nil {
		s.logger.Error("config discovery failed", "error", err)
		s.state = StateFailed
		result.FailureReason = err.Error()
		return result, err
	}
	s.state = StateConfigFetched
	result.PublicIP = cfg.PublicIP
	result.ISP = cfg.ISP

	server, selErr := s.selectServer(ctx, cfg)
	if selErr != nil {
		s.logger.Warn("server selection failed", "error", selErr)
		result.FailureReason = selErr.Error()
	} else {
		s.state = StateServerSelected
		result.Server = server
	}

	// Remaining stages degrade to sentinel values when no server was
	// selected; they never abort the session.
	if server != nil {
		result.PingMS = MeasureLatency(ctx, s.client, server.URL, s.settings.LatencyTestCount)
		if result.Unreachable() {
			s.logger.Warn("latency stage found server unreachable", "server", server.Name)
		}
	}
	s.advance(StateLatencyMeasured)

	if server != nil {
		down := MeasureDownload(ctx, s.client, server.URL, s.settings, s.logger)
		result.DownloadBps = down.Rate()
		if down.Bytes == 0 {
			s.logger.Warn("download stage produced no data", "server", server.Name)
		}
	}
	s.advance(StateDownloadMeasured)

	if server != nil {
		up := MeasureUpload(ctx, s.client, server.URL, s.settings, s.logger)
		result.UploadBps = up.Rate()
		if up.Bytes == 0 {
			s.logger.Warn("upload stage produced no data", "server", server.Name)
		}
	}
	s.advance(StateUploadMeasured)
	s.advance(StateDone)

	if selErr != nil {
		return result, selErr
	}

	result.Success = true
	return result, nil
}

func (s *Session) selectServer(ctx context.Context, cfg *ClientConfig) (*ServerCandidate, error) {
	candidates, err := FetchServerList(ctx, s.client, s.settings.ServerListURL)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoServer
	}

	refLat, refLon := cfg.Latitude, cfg.Longitude
	if !cfg.HasLocation {
		// Without client coordinates the first directory entry is the
		// best reference available.
		refLat, refLon = candidates[0].Lat, candidates[0].Lon
	}

	return SelectServer(ctx, s.client, candidates, refLat, refLon, s.settings, s.logger)
}

func (s *Session) advance(next State) {
	if s.state != StateFailed {
		s.state = next
	}
}
