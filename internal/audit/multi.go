package audit

import "context"

// MultiSink fans one Record call out to every wrapped sink, so a daemon
// can run the JSONL sink (always on) alongside the optional SQLite sink
// without either call site needing to know about both.
type MultiSink struct {
	Sinks []Sink
}

func (m MultiSink) Record(ctx context.Context, kind string, fields map[string]interface{}) {
	for _, s := range m.Sinks {
		s.Record(ctx, kind, fields)
	}
}

var _ Sink = MultiSink{}
