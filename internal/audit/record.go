// Package audit implements the append-only event log every dispatch
// attempt, health fix, and heartbeat tick writes to (spec §4.5 step 22,
// §4.7 step 4, §4.6's fix events): a JSONL file sink by default, with an
// optional SQLite sink for indexed queries, fanned out to live watchers
// over the same broker abstraction the teacher uses for its TUI.
package audit

import (
	"context"
	"time"
)

// Record is one persisted audit event. Kind names the event
// ("dispatch", "model_selection", "health_fix", "heartbeat_tick", ...);
// Fields carries whatever that kind needs, kept generic so new event
// kinds never require a schema migration on the JSONL sink (the SQLite
// sink stores Fields as a JSON blob column for the same reason).
type Record struct {
	ID     string                 `json:"id"`
	Time   time.Time              `json:"time"`
	Kind   string                 `json:"kind"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// Sink is the narrow interface the rest of the core depends on. It
// satisfies internal/dispatch.AuditRecorder structurally (Go interfaces
// compose by shape, not by declared implementation), so the dispatch
// pipeline can take any Sink without this package importing dispatch.
type Sink interface {
	Record(ctx context.Context, kind string, fields map[string]interface{})
}

// Query filters a Sink's history. An empty Query matches everything.
type Query struct {
	Kind  string
	Since time.Time
	Limit int
}

func (q Query) matches(r Record) bool {
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if !q.Since.IsZero() && r.Time.Before(q.Since) {
		return false
	}
	return true
}
