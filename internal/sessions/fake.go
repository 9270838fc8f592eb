package sessions

import (
	"context"
	"fmt"
	"sync"
)

// FakeRegistry is an in-memory Registry used by the core's own tests
// (health, heartbeat, dispatch) so those packages never depend on a real
// session gateway.
type FakeRegistry struct {
	mu sync.Mutex

	live     map[string]bool
	messages map[string][]string
	models   map[string]string
	unknown  bool
}

// NewFakeRegistry returns an empty fake with a known (empty) live set.
func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{
		live:     map[string]bool{},
		messages: map[string][]string{},
		models:   map[string]string{},
	}
}

// SetUnknown makes ListLiveSessionKeys report known=false, simulating a
// session-layer outage.
func (f *FakeRegistry) SetUnknown(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unknown = v
}

// MarkDead removes key from the live set, simulating a session that ended
// without the core's knowledge.
func (f *FakeRegistry) MarkDead(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, key)
}

// MessagesFor returns every message sent to key, for test assertions.
func (f *FakeRegistry) MessagesFor(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages[key]...)
}

func (f *FakeRegistry) EnsureSession(ctx context.Context, key, model, label string, timeoutMs int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[key] = true
	f.models[key] = model
	return nil
}

func (f *FakeRegistry) SendToSession(ctx context.Context, key, message string, opts SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live[key] {
		return fmt.Errorf("sessions: %q is not live", key)
	}
	f.messages[key] = append(f.messages[key], message)
	return nil
}

func (f *FakeRegistry) DeleteSession(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, key)
	delete(f.models, key)
	return nil
}

func (f *FakeRegistry) ListLiveSessionKeys(ctx context.Context) (map[string]bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unknown {
		return nil, false, nil
	}
	out := make(map[string]bool, len(f.live))
	for k := range f.live {
		out[k] = true
	}
	return out, true, nil
}

var _ Registry = (*FakeRegistry)(nil)
