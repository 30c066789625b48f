package history

import "time"

// Lookup is one resolution performed on behalf of a client.
//
// Rows are append-only. Answers are rendered record strings in answer order;
// Servers is the trail of name server addresses that were asked.
type Lookup struct {
	ID       string `json:"id" db:"id"`
	ClientID string `json:"client_id" db:"client_id"`

	Name string `json:"name" db:"name"`
	Type string `json:"type" db:"type"`

	Status Status `json:"status" db:"status"`
	// RCode is the DNS response code name (NOERROR, NXDOMAIN, ...) when one was received.
	RCode string `json:"rcode,omitempty" db:"rcode"`
	// Error is the resolver error for failed lookups.
	Error string `json:"error,omitempty" db:"error"`

	Answers []string `json:"answers"`
	Servers []string `json:"servers,omitempty" db:"servers"`

	Cached     bool  `json:"cached" db:"cached"`
	DurationMS int64 `json:"duration_ms" db:"duration_ms"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Status string

const (
	StatusOK       Status = "ok"
	StatusNoData   Status = "nodata"
	StatusNXDomain Status = "nxdomain"
	StatusServFail Status = "servfail"
	StatusRefused  Status = "refused"
	StatusError    Status = "error"
)

// Statuses lists every status in reporting order.
var Statuses = []Status{StatusOK, StatusNoData, StatusNXDomain, StatusServFail, StatusRefused, StatusError}
