// Package report defines the boundary between the orchestration core and
// whatever consumes a finished run: the core assembles a RunReport and hands
// it over, it never delivers anything itself.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"linewatch/pkg/models"
)

// LineReport is the consolidated outcome for one line. Failed lines appear
// with Success=false rows rather than being omitted, so a reader can tell an
// unreachable line from an unmeasured one.
type LineReport struct {
	LineID   int64                   `json:"line_id"`
	LineName string                  `json:"line_name"`
	ISP      string                  `json:"isp"`
	Speed    *models.SpeedTestResult `json:"speed,omitempty"`
	Quota    *models.QuotaResult     `json:"quota,omitempty"`
}

// RunReport is the result set of one orchestration run.
type RunReport struct {
	ProcessID string       `json:"process_id"`
	StartedAt time.Time    `json:"started_at"`
	Duration  string       `json:"duration"`
	Lines     []LineReport `json:"lines"`
}

// Reporter consumes a finished run report. Email, dashboards, and other
// delivery channels live behind this interface, outside the core.
type Reporter interface {
	Report(ctx context.Context, run *RunReport) error
}

// JSONFileReporter writes the run report as indented JSON to a file.
type JSONFileReporter struct {
	Path string
}

func (r *JSONFileReporter) Report(ctx context.Context, run *RunReport) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("report cancelled: %v", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %v", err)
	}

	if err := os.WriteFile(r.Path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %v", err)
	}

	return nil
}
