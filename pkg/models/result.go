package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SpeedTestResult is one terminal measurement outcome for one line. A row is
// written for every line submitted to a run, failed lines included, so the
// report can distinguish "unreachable" from "not measured".
type SpeedTestResult struct {
	bun.BaseModel `bun:"table:speed_test_results,alias:str"`

	ID        int64     `bun:",pk,autoincrement"`
	ProcessID string    `bun:",notnull"`
	LineID    int64     `bun:",notnull"`
	Time      time.Time `bun:",notnull"`

	// PingMS is nil when every latency probe failed.
	PingMS        *float64
	DownloadBps   float64
	UploadBps     float64
	PublicIP      string
	ISPName       string
	ServerName    string
	ServerURL     string
	Success       bool `bun:",notnull"`
	FailureReason string

	Line *Line `bun:"rel:belongs-to,join:line_id=id"`
}

// QuotaResult is one terminal scrape outcome for one line. Numeric fields are
// pointers: nil means the portal did not yield that field, which is different
// from a real zero.
type QuotaResult struct {
	bun.BaseModel `bun:"table:quota_results,alias:qr"`

	ID        int64     `bun:",pk,autoincrement"`
	ProcessID string    `bun:",notnull"`
	LineID    int64     `bun:",notnull"`
	Time      time.Time `bun:",notnull"`

	DataUsedGB      *float64
	DataRemainingGB *float64
	UsagePercent    *float64
	Balance         *float64
	RenewalDate     string
	RemainingDays   *int
	RenewalCost     *float64
	Success         bool `bun:",notnull"`
	FailureReason   string

	Line *Line `bun:"rel:belongs-to,join:line_id=id"`
}
