// Package scrape defines the capability contract between the orchestration
// core and per-ISP portal scrapers. The core only ever sees the Session
// interface; which portal, which selectors, and how fields are extracted is
// entirely the implementation's concern.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"linewatch/pkg/models"
)

// Field names one value a scrape session can extract from a portal.
type Field string

const (
	FieldDataUsed      Field = "data_used"
	FieldDataRemaining Field = "data_remaining"
	FieldUsagePercent  Field = "usage_percent"
	FieldBalance       Field = "balance"
	FieldRenewalDate   Field = "renewal_date"
	FieldRemainingDays Field = "remaining_days"
	FieldRenewalCost   Field = "renewal_cost"
)

// AllFields returns every known field, for callers that want the full set.
func AllFields() []Field {
	return []Field{
		FieldDataUsed,
		FieldDataRemaining,
		FieldUsagePercent,
		FieldBalance,
		FieldRenewalDate,
		FieldRemainingDays,
		FieldRenewalCost,
	}
}

// Result carries the extracted values. Pointer fields are nil when the
// portal did not yield that field.
type Result struct {
	DataUsedGB      *float64
	DataRemainingGB *float64
	UsagePercent    *float64
	Balance         *float64
	RenewalDate     string
	RemainingDays   *int
	RenewalCost     *float64
}

// ErrLoginFailed is returned by Run when the session's Login reported
// rejection without a transport error.
var ErrLoginFailed = errors.New("portal login rejected credentials")

// Session is the lifecycle a portal scraper must implement. Open acquires
// whatever heavyweight resource the scraper needs (typically a browser);
// Close must release it and must be safe to call after a failed Open stage
// has partially run. Extract must not be called unless Login returned true.
type Session interface {
	Open(ctx context.Context) error
	Login(ctx context.Context) (bool, error)
	Extract(ctx context.Context, fields ...Field) (*Result, error)
	Close() error
}

// Factory builds a session for one line. The line's portal credentials are
// passed through opaquely; decrypting and using them is the factory's
// business.
type Factory func(line models.Line, logger *slog.Logger) (Session, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register installs the session factory for an ISP name. Typically called
// from an implementation package's init.
func Register(isp string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[isp] = factory
}

// Supported returns the registered ISP names, sorted.
func Supported() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewSession builds a session for the line's ISP.
func NewSession(line models.Line, logger *slog.Logger) (Session, error) {
	registryMu.RLock()
	factory, ok := registry[line.ISP]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported ISP %q for line %s", line.ISP, line.Name)
	}
	return factory(line, logger)
}

// Run executes one full scrape lifecycle for a line with the session scoped
// to the call: Close runs on every exit path once Open has been attempted,
// so a browser is never leaked. Login returning false means Extract is never
// called and the session counts as failed.
func Run(ctx context.Context, line models.Line, logger *slog.Logger, fields ...Field) (*Result, error) {
	session, err := NewSession(line, logger)
	if err != nil {
		return nil, err
	}

	if err := session.Open(ctx); err != nil {
		if closeErr := session.Close(); closeErr != nil {
			logger.Warn("session close failed", "line", line.Name, "error", closeErr)
		}
		return nil, fmt.Errorf("failed to open session for %s: %v", line.Name, err)
	}

	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("session close failed", "line", line.Name, "error", err)
		}
	}()

	ok, err := session.Login(ctx)
	if err != nil {
		return nil, fmt.Errorf("login error for %s: %v", line.Name, err)
	}
	if !ok {
		return nil, ErrLoginFailed
	}

	if len(fields) == 0 {
		fields = AllFields()
	}

	result, err := session.Extract(ctx, fields...)
	if err != nil {
		return nil, fmt.Errorf("extraction failed for %s: %v", line.Name, err)
	}
	return result, nil
}
