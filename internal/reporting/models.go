package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest requests aggregated lookup metrics for one client.
type SummaryRequest struct {
	ClientID string    `json:"client_id"`
	Range    TimeRange `json:"range"`
}

type Summary struct {
	ClientID string    `json:"client_id"`
	Range    TimeRange `json:"range"`

	TotalLookups int            `json:"total_lookups"`
	ByStatus     map[string]int `json:"by_status"`
	CacheHits    int            `json:"cache_hits"`

	// CacheHitRate is CacheHits / TotalLookups.
	CacheHitRate float64 `json:"cache_hit_rate"`

	AverageDurationMS int64 `json:"average_duration_ms"`

	TopNames []NameCount `json:"top_names"`
}

type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
