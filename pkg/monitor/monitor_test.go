package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"linewatch/pkg/models"
	"linewatch/pkg/scrape"
	"linewatch/pkg/speedtest"
)

type fakeStore struct {
	mu        sync.Mutex
	lines     []models.Line
	speedRows []*models.SpeedTestResult
	quotaRows []*models.QuotaResult
}

func (f *fakeStore) GetAllLines(ctx context.Context) ([]models.Line, error) {
	return f.lines, nil
}

func (f *fakeStore) InsertSpeedTestResult(ctx context.Context, result *models.SpeedTestResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speedRows = append(f.speedRows, result)
	return nil
}

func (f *fakeStore) InsertQuotaResult(ctx context.Context, result *models.QuotaResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotaRows = append(f.quotaRows, result)
	return nil
}

func (f *fakeStore) LatestSpeedTestResult(ctx context.Context, lineID int64) (*models.SpeedTestResult, error) {
	for i := len(f.speedRows) - 1; i >= 0; i-- {
		if f.speedRows[i].LineID == lineID {
			return f.speedRows[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) LatestQuotaResult(ctx context.Context, lineID int64) (*models.QuotaResult, error) {
	for i := len(f.quotaRows) - 1; i >= 0; i-- {
		if f.quotaRows[i].LineID == lineID {
			return f.quotaRows[i], nil
		}
	}
	return nil, nil
}

// attemptCounter is shared across concurrently running fake sessions.
type attemptCounter struct {
	mu sync.Mutex
	m  map[string]int
}

func (c *attemptCounter) inc(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[name]++
	return c.m[name]
}

func (c *attemptCounter) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[name]
}

// flakyScraper fails the first attempt for a designated line and succeeds
// afterwards, exercising the orchestrator's retry pass end to end.
type flakyScraper struct {
	attempts *attemptCounter
	failOnce string
	line     models.Line
}

func (s *flakyScraper) Open(ctx context.Context) error { return nil }
func (s *flakyScraper) Close() error                   { return nil }

func (s *flakyScraper) Login(ctx context.Context) (bool, error) {
	return true, nil
}

func (s *flakyScraper) Extract(ctx context.Context, fields ...scrape.Field) (*scrape.Result, error) {
	n := s.attempts.inc(s.line.Name)
	if s.line.Name == s.failOnce && n == 1 {
		return nil, errors.New("portal timeout")
	}

	remaining := 100.0
	return &scrape.Result{DataRemainingGB: &remaining}, nil
}

func TestParseCheckMode(t *testing.T) {
	tests := []struct {
		input   string
		want    CheckMode
		wantErr bool
	}{
		{"speed", ModeSpeed, false},
		{"quota", ModeQuota, false},
		{"all", ModeAll, false},
		{"", "", true},
		{"everything", "", true},
	}

	for _, tt := range tests {
		got, err := ParseCheckMode(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCheckMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCheckMode(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestRunChecksQuotaMode(t *testing.T) {
	attempts := &attemptCounter{m: make(map[string]int)}

	ispName := "quota-mode-isp"
	scrape.Register(ispName, func(line models.Line, logger *slog.Logger) (scrape.Session, error) {
		return &flakyScraper{attempts: attempts, failOnce: "line-b", line: line}, nil
	})

	store := &fakeStore{lines: []models.Line{
		{ID: 1, Name: "line-a", ISP: ispName},
		{ID: 2, Name: "line-b", ISP: ispName},
		{ID: 3, Name: "line-c", ISP: ispName},
	}}

	service := NewService(store, slog.Default(), speedtest.DefaultSettings(), 2)
	run, err := service.RunChecks(context.Background(), ModeQuota)
	if err != nil {
		t.Fatalf("RunChecks() error = %v", err)
	}

	if len(store.quotaRows) != 3 {
		t.Fatalf("stored %d quota rows, want one per line", len(store.quotaRows))
	}
	if len(store.speedRows) != 0 {
		t.Errorf("stored %d speed rows in quota mode, want 0", len(store.speedRows))
	}

	for _, lineReport := range run.Lines {
		if lineReport.Quota == nil {
			t.Errorf("line %s missing quota outcome", lineReport.LineName)
			continue
		}
		if !lineReport.Quota.Success {
			t.Errorf("line %s failed: %s", lineReport.LineName, lineReport.Quota.FailureReason)
		}
		if lineReport.Quota.ProcessID != run.ProcessID {
			t.Errorf("line %s has process ID %q, want %q",
				lineReport.LineName, lineReport.Quota.ProcessID, run.ProcessID)
		}
	}

	// line-b needed the retry pass.
	if got := attempts.get("line-b"); got != 2 {
		t.Errorf("line-b attempted %d times, want 2", got)
	}
	if attempts.get("line-a") != 1 || attempts.get("line-c") != 1 {
		t.Errorf("healthy lines attempted a=%d c=%d, want 1 each",
			attempts.get("line-a"), attempts.get("line-c"))
	}
}

func TestRunChecksSpeedModeRecordsFailedLines(t *testing.T) {
	// The discovery endpoint is down, so every session fails fatally on
	// both passes; each line must still get a terminal failed row.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	settings := speedtest.DefaultSettings()
	settings.ConfigURL = srv.URL + "/config"
	settings.ServerListURL = srv.URL + "/servers"
	settings.Timeout = time.Second

	store := &fakeStore{lines: []models.Line{
		{ID: 1, Name: "down-a"},
		{ID: 2, Name: "down-b"},
	}}

	service := NewService(store, slog.Default(), settings, 2)
	run, err := service.RunChecks(context.Background(), ModeSpeed)
	if err != nil {
		t.Fatalf("RunChecks() error = %v", err)
	}

	if len(store.speedRows) != 2 {
		t.Fatalf("stored %d speed rows, want one per line even on failure", len(store.speedRows))
	}
	for _, row := range store.speedRows {
		if row.Success {
			t.Error("row marked successful with discovery down")
		}
		if row.FailureReason == "" {
			t.Error("failed row has no failure reason")
		}
		if row.PingMS != nil {
			t.Error("failed row has a ping value")
		}
	}
	if run.Lines[0].Speed == nil || run.Lines[1].Speed == nil {
		t.Error("report dropped a failed line")
	}
}

func TestRunChecksSpeedModeFullMeasurement(t *testing.T) {
	var host *httptest.Server
	host = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/config":
			fmt.Fprintf(w, `<client ip="10.0.0.1" lat="30.05" lon="31.25" isp="Test ISP"/>`)
		case r.URL.Path == "/servers":
			fmt.Fprintf(w, `<server url="%s" lat="30.05" lon="31.25" name="Local" country="EG" id="1"/>`,
				"http://"+host.Listener.Addr().String())
		case r.URL.RawQuery == "latency":
			io.WriteString(w, "ok")
		case r.URL.Path == "/random4000x4000.jpg":
			io.WriteString(w, strings.Repeat("x", 16*1024))
		case r.URL.Path == "/upload":
			io.Copy(io.Discard, r.Body)
		default:
			http.NotFound(w, r)
		}
	}))
	defer host.Close()

	settings := speedtest.DefaultSettings()
	settings.ConfigURL = host.URL + "/config"
	settings.ServerListURL = host.URL + "/servers"
	settings.TestCount = 2
	settings.LatencyTestCount = 1
	settings.DownloadChunkSize = 4 * 1024
	settings.UploadChunkSize = 4 * 1024
	settings.Timeout = 2 * time.Second
	settings.MaxDownloadTime = time.Second
	settings.MaxUploadTime = 200 * time.Millisecond

	store := &fakeStore{lines: []models.Line{{ID: 7, Name: "line-x"}}}

	service := NewService(store, slog.Default(), settings, 2)
	run, err := service.RunChecks(context.Background(), ModeSpeed)
	if err != nil {
		t.Fatalf("RunChecks() error = %v", err)
	}

	if len(store.speedRows) != 1 {
		t.Fatalf("stored %d speed rows, want 1", len(store.speedRows))
	}
	row := store.speedRows[0]
	if !row.Success {
		t.Fatalf("measurement failed: %s", row.FailureReason)
	}
	if row.PublicIP != "10.0.0.1" {
		t.Errorf("PublicIP = %q", row.PublicIP)
	}
	if row.PingMS == nil {
		t.Error("PingMS is nil for a reachable server")
	}
	if row.DownloadBps <= 0 || row.UploadBps <= 0 {
		t.Errorf("rates = %v down / %v up, want > 0", row.DownloadBps, row.UploadBps)
	}
	if row.ServerName != "Local" {
		t.Errorf("ServerName = %q, want Local", row.ServerName)
	}

	report := run.Lines[0]
	if report.Speed != row {
		t.Error("report does not reference the stored row")
	}
}

func TestLatestReport(t *testing.T) {
	ping := 12.5
	store := &fakeStore{
		lines: []models.Line{{ID: 1, Name: "line-a"}, {ID: 2, Name: "line-b"}},
		speedRows: []*models.SpeedTestResult{
			{LineID: 1, PingMS: &ping, Success: true},
		},
	}

	service := NewService(store, slog.Default(), speedtest.DefaultSettings(), 2)
	run, err := service.LatestReport(context.Background())
	if err != nil {
		t.Fatalf("LatestReport() error = %v", err)
	}

	if len(run.Lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(run.Lines))
	}
	if run.Lines[0].Speed == nil {
		t.Error("line-a missing its stored result")
	}
	if run.Lines[1].Speed != nil {
		t.Error("line-b has a result it never produced")
	}
}
