// Package monitor runs the fleet checks: it turns every monitored line into
// units of work, pushes them through the bounded orchestrator, collects the
// per-line outcomes, persists them, and hands the consolidated report to the
// reporting boundary.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"linewatch/pkg/models"
	"linewatch/pkg/netdial"
	"linewatch/pkg/orchestrator"
	"linewatch/pkg/report"
	"linewatch/pkg/scrape"
	"linewatch/pkg/speedtest"

	"github.com/google/uuid"
)

// CheckMode selects which operations run for each line.
type CheckMode string

const (
	ModeSpeed CheckMode = "speed"
	ModeQuota CheckMode = "quota"
	ModeAll   CheckMode = "all"
)

// ParseCheckMode validates a mode string from the CLI.
func ParseCheckMode(s string) (CheckMode, error) {
	switch CheckMode(s) {
	case ModeSpeed, ModeQuota, ModeAll:
		return CheckMode(s), nil
	default:
		return "", fmt.Errorf("invalid check mode %q, must be speed, quota or all", s)
	}
}

// Store is the persistence boundary the service writes results through. The
// service never owns storage details beyond this.
type Store interface {
	GetAllLines(ctx context.Context) ([]models.Line, error)
	InsertSpeedTestResult(ctx context.Context, result *models.SpeedTestResult) error
	InsertQuotaResult(ctx context.Context, result *models.QuotaResult) error
	LatestSpeedTestResult(ctx context.Context, lineID int64) (*models.SpeedTestResult, error)
	LatestQuotaResult(ctx context.Context, lineID int64) (*models.QuotaResult, error)
}

type Service struct {
	store       Store
	logger      *slog.Logger
	settings    speedtest.Settings
	concurrency int
}

func NewService(store Store, logger *slog.Logger, settings speedtest.Settings, concurrency int) *Service {
	return &Service{
		store:       store,
		logger:      logger,
		settings:    settings,
		concurrency: concurrency,
	}
}

type unitKind int

const (
	kindSpeed unitKind = iota
	kindQuota
)

type unitMeta struct {
	lineIdx int
	kind    unitKind
}

// RunChecks executes the selected operations for every line under the
// orchestrator's concurrency cap, persists one terminal result row per
// submitted operation, and returns the consolidated run report.
func (s *Service) RunChecks(ctx context.Context, mode CheckMode) (*report.RunReport, error) {
	lines, err := s.store.GetAllLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load lines: %v", err)
	}

	processID := uuid.New().String()
	startedAt := time.Now()

	s.logger.Info("starting checks",
		"processID", processID,
		"mode", mode,
		"lines", len(lines),
		"concurrency", s.concurrency)

	// Each unit writes only its own slot; the slices are read back after
	// the orchestrator run completes.
	speedResults := make([]*speedtest.Result, len(lines))
	quotaResults := make([]*scrape.Result, len(lines))

	var units []orchestrator.Unit
	var metas []unitMeta

	for i := range lines {
		line := lines[i]
		if mode == ModeSpeed || mode == ModeAll {
			idx := i
			units = append(units, orchestrator.Unit{
				ID: line.Name + "/speed",
				Run: func(ctx context.Context) error {
					result, err := s.runSpeedTest(ctx, line)
					speedResults[idx] = result
					return err
				},
			})
			metas = append(metas, unitMeta{lineIdx: i, kind: kindSpeed})
		}
		if mode == ModeQuota || mode == ModeAll {
			idx := i
			units = append(units, orchestrator.Unit{
				ID: line.Name + "/quota",
				Run: func(ctx context.Context) error {
					result, err := scrape.Run(ctx, line, s.logger)
					quotaResults[idx] = result
					return err
				},
			})
			metas = append(metas, unitMeta{lineIdx: i, kind: kindQuota})
		}
	}

	orch, err := orchestrator.New(s.concurrency, s.logger)
	if err != nil {
		return nil, err
	}
	outcomes := orch.Run(ctx, units)

	run := &report.RunReport{
		ProcessID: processID,
		StartedAt: startedAt,
		Lines:     make([]report.LineReport, len(lines)),
	}
	for i, line := range lines {
		run.Lines[i] = report.LineReport{
			LineID:   line.ID,
			LineName: line.Name,
			ISP:      line.ISP,
		}
	}

	for i, outcome := range outcomes {
		meta := metas[i]
		line := lines[meta.lineIdx]

		switch meta.kind {
		case kindSpeed:
			row := speedRow(processID, line, speedResults[meta.lineIdx], outcome)
			if err := s.store.InsertSpeedTestResult(ctx, row); err != nil {
				s.logger.Error("failed to save speed test result", "line", line.Name, "error", err)
			}
			run.Lines[meta.lineIdx].Speed = row
		case kindQuota:
			row := quotaRow(processID, line, quotaResults[meta.lineIdx], outcome)
			if err := s.store.InsertQuotaResult(ctx, row); err != nil {
				s.logger.Error("failed to save quota result", "line", line.Name, "error", err)
			}
			run.Lines[meta.lineIdx].Quota = row
		}

		if outcome.Failed() {
			s.logger.Warn("unit failed terminally",
				"unit", outcome.ID,
				"attempts", outcome.Attempts,
				"error", outcome.Err)
		}
	}

	run.Duration = time.Since(startedAt).String()
	s.logger.Info("checks finished", "processID", processID, "duration", run.Duration)
	return run, nil
}

func (s *Service) runSpeedTest(ctx context.Context, line models.Line) (*speedtest.Result, error) {
	client, err := netdial.ClientFor(line, s.settings.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to build client for %s: %v", line.Name, err)
	}

	logger := s.logger.With("line", line.Name)
	session := speedtest.NewSession(client, s.settings, logger)
	return session.Run(ctx)
}

// speedRow converts a session result and its orchestration outcome into the
// persisted row. A nil result (fatal discovery failure on both passes wiped
// it) still yields a failed row: no line is silently dropped.
func speedRow(processID string, line models.Line, result *speedtest.Result, outcome orchestrator.Outcome) *models.SpeedTestResult {
	row := &models.SpeedTestResult{
		ProcessID: processID,
		LineID:    line.ID,
		Time:      time.Now(),
		Success:   !outcome.Failed(),
	}
	if outcome.Failed() {
		row.FailureReason = outcome.Err.Error()
	}
	if result == nil {
		return row
	}

	row.DownloadBps = result.DownloadBps
	row.UploadBps = result.UploadBps
	row.PublicIP = result.PublicIP
	row.ISPName = result.ISP
	if !result.Unreachable() && !math.IsNaN(result.PingMS) {
		ping := result.PingMS
		row.PingMS = &ping
	}
	if result.Server != nil {
		row.ServerName = result.Server.Name
		row.ServerURL = result.Server.URL
	}
	return row
}

func quotaRow(processID string, line models.Line, result *scrape.Result, outcome orchestrator.Outcome) *models.QuotaResult {
	row := &models.QuotaResult{
		ProcessID: processID,
		LineID:    line.ID,
		Time:      time.Now(),
		Success:   !outcome.Failed(),
	}
	if outcome.Failed() {
		row.FailureReason = outcome.Err.Error()
	}
	if result == nil {
		return row
	}

	row.DataUsedGB = result.DataUsedGB
	row.DataRemainingGB = result.DataRemainingGB
	row.UsagePercent = result.UsagePercent
	row.Balance = result.Balance
	row.RenewalDate = result.RenewalDate
	row.RemainingDays = result.RemainingDays
	row.RenewalCost = result.RenewalCost
	return row
}

// LatestReport assembles a report from the newest stored row per line,
// without running any checks. Backs the report CLI command.
func (s *Service) LatestReport(ctx context.Context) (*report.RunReport, error) {
	lines, err := s.store.GetAllLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load lines: %v", err)
	}

	run := &report.RunReport{
		ProcessID: "latest",
		StartedAt: time.Now(),
		Lines:     make([]report.LineReport, len(lines)),
	}

	for i, line := range lines {
		speed, err := s.store.LatestSpeedTestResult(ctx, line.ID)
		if err != nil {
			s.logger.Warn("failed to load latest speed result", "line", line.Name, "error", err)
		}
		quota, err := s.store.LatestQuotaResult(ctx, line.ID)
		if err != nil {
			s.logger.Warn("failed to load latest quota result", "line", line.Name, "error", err)
		}
		run.Lines[i] = report.LineReport{
			LineID:   line.ID,
			LineName: line.Name,
			ISP:      line.ISP,
			Speed:    speed,
			Quota:    quota,
		}
	}

	return run, nil
}
