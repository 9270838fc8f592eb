package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/flowforge/taskctl/internal/log"
)

// liveKeysCacheTTL bounds how often a slow session gateway's live-key list
// is actually fetched; the heartbeat calls ListLiveSessionKeys once per
// tick per spec §4.6 step 1, but health checks within sub-steps of the same
// tick may call it again, and this collapses those to one round trip.
const liveKeysCacheTTL = 5 * time.Second

const liveKeysCacheKey = "live"

// GatewayRegistry implements Registry over a plain HTTP JSON gateway,
// grounded on internal/orchestration/controlplane/api's net/http-only
// transport (no router dependency, matching the teacher).
type GatewayRegistry struct {
	baseURL string
	client  *http.Client
	cache   *gocache.Cache
}

// NewGatewayRegistry returns a Registry backed by the HTTP gateway at
// baseURL.
func NewGatewayRegistry(baseURL string, client *http.Client) *GatewayRegistry {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GatewayRegistry{
		baseURL: baseURL,
		client:  client,
		cache:   gocache.New(liveKeysCacheTTL, 2*liveKeysCacheTTL),
	}
}

type ensureSessionRequest struct {
	Key       string `json:"key"`
	Model     string `json:"model"`
	Label     string `json:"label"`
	TimeoutMs int    `json:"timeoutMs"`
}

func (g *GatewayRegistry) EnsureSession(ctx context.Context, key, model, label string, timeoutMs int) error {
	body := ensureSessionRequest{Key: key, Model: model, Label: label, TimeoutMs: timeoutMs}
	if err := g.postJSON(ctx, "/sessions/ensure", body, nil); err != nil {
		log.Warn(log.CatSession, "ensureSession failed", "key", key, "error", err)
		return err
	}
	return nil
}

type sendRequest struct {
	Key               string `json:"key"`
	Message           string `json:"message"`
	Model             string `json:"model,omitempty"`
	ExtraSystemPrompt string `json:"extraSystemPrompt,omitempty"`
	TimeoutMs         int    `json:"timeoutMs,omitempty"`
	OrchestratorKey   string `json:"orchestratorKey,omitempty"`
}

func (g *GatewayRegistry) SendToSession(ctx context.Context, key, message string, opts SendOptions) error {
	body := sendRequest{
		Key:               key,
		Message:           message,
		Model:             opts.Model,
		ExtraSystemPrompt: opts.ExtraSystemPrompt,
		TimeoutMs:         opts.TimeoutMs,
		OrchestratorKey:   opts.OrchestratorKey,
	}
	if err := g.postJSON(ctx, "/sessions/send", body, nil); err != nil {
		log.Warn(log.CatSession, "sendToSession failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (g *GatewayRegistry) DeleteSession(ctx context.Context, key string) error {
	if err := g.postJSON(ctx, "/sessions/delete", map[string]string{"key": key}, nil); err != nil {
		log.Warn(log.CatSession, "deleteSession failed", "key", key, "error", err)
		return err
	}
	return nil
}

type liveKeysResponse struct {
	Keys []string `json:"keys"`
}

// ListLiveSessionKeys reports known=false (rather than an error) whenever
// the gateway cannot be reached, per the Registry contract: an unreachable
// session layer is "no information", not "nothing is alive".
func (g *GatewayRegistry) ListLiveSessionKeys(ctx context.Context) (map[string]bool, bool, error) {
	if cached, ok := g.cache.Get(liveKeysCacheKey); ok {
		return cached.(map[string]bool), true, nil
	}

	var resp liveKeysResponse
	if err := g.getJSON(ctx, "/sessions/live", &resp); err != nil {
		log.Warn(log.CatSession, "listLiveSessionKeys unreachable", "error", err)
		return nil, false, nil
	}

	keys := make(map[string]bool, len(resp.Keys))
	for _, k := range resp.Keys {
		keys[k] = true
	}
	g.cache.SetDefault(liveKeysCacheKey, keys)
	return keys, true, nil
}

func (g *GatewayRegistry) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("sessions: encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("sessions: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req, out)
}

func (g *GatewayRegistry) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("sessions: building request: %w", err)
	}
	return g.do(req, out)
}

func (g *GatewayRegistry) do(req *http.Request, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sessions: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sessions: gateway returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("sessions: decoding response: %w", err)
	}
	return nil
}

var _ Registry = (*GatewayRegistry)(nil)
