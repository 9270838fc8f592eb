// Package sessions implements the abstract adapter over the LLM session
// layer (spec §4.4, C4): create/patch/delete sessions and enumerate live
// session keys. Session keys are opaque strings the core generates
// (internal/dispatch derives them); this package never parses them.
package sessions

import "context"

// SendOptions carries the optional fields a sendToSession call may supply
// (spec §4.4).
type SendOptions struct {
	Model             string
	ExtraSystemPrompt string
	TimeoutMs         int
	OrchestratorKey   string
}

// Registry is the abstract adapter the core depends on for the session
// layer. ensureSession/sendToSession/deleteSession calls are explicitly
// fire-and-forget from the caller's perspective (spec §4.5 steps 19-20):
// callers log a non-nil error but never fail the dispatch pipeline over
// one.
type Registry interface {
	// EnsureSession creates the session identified by key if absent, or
	// patches its model if present.
	EnsureSession(ctx context.Context, key, model, label string, timeoutMs int) error

	// SendToSession delivers message to an existing session.
	SendToSession(ctx context.Context, key, message string, opts SendOptions) error

	// DeleteSession performs best-effort cleanup of a session.
	DeleteSession(ctx context.Context, key string) error

	// ListLiveSessionKeys returns the set of currently live session keys.
	// known is false when the session layer is unreachable; per spec
	// §4.4 the core MUST interpret that as "no information", never as
	// "dead" — ListLiveSessionKeys returning (nil, false, nil) and a
	// caller treating that as an empty live set would wrongly revert
	// every active slot on a transient outage.
	ListLiveSessionKeys(ctx context.Context) (keys map[string]bool, known bool, err error)
}
