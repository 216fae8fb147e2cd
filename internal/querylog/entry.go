// Package querylog persists a record of every parsed query to PostgreSQL.
// Entries are buffered by a Recorder and written in batches by a Store.
package querylog

import (
	"encoding/json"
	"time"
)

// Entry is one parsed query as it is stored in the query_log table.
type Entry struct {
	ID         string          `json:"id"`
	RequestID  string          `json:"request_id,omitempty"`
	Source     string          `json:"source"`
	Query      string          `json:"query"`
	Condition  json.RawMessage `json:"condition,omitempty"`
	Nodes      int             `json:"nodes"`
	Depth      int             `json:"depth"`
	CacheHit   bool            `json:"cache_hit"`
	DurationUS int64           `json:"duration_us"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
