package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Line is one monitored internet line. A line maps to a single physical ISP
// connection: it has the local address measurements should originate from and
// the portal identity used for quota scraping. Rows are immutable for the
// duration of one monitoring run.
type Line struct {
	bun.BaseModel `bun:"table:lines,alias:l"`

	ID          int64  `bun:",pk,autoincrement"`
	LineNumber  string `bun:",notnull"`
	Name        string `bun:",unique,notnull"`
	Description string
	ISP         string `bun:",notnull"`
	IPAddress   string
	GatewayIP   string

	// Transport is an optional outline-sdk transport config URL. When set,
	// measurement traffic for this line is dialed through it instead of
	// binding to IPAddress directly.
	Transport string

	// Portal credentials are opaque to the measurement core; only the
	// scrape implementation for the line's ISP interprets them.
	PortalUsername string
	PortalPassword string

	ASNumber  string
	ASOrg     string
	City      string
	Region    string
	Country   string
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
