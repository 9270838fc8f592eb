package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/flowforge/taskctl/internal/log"
	"github.com/flowforge/taskctl/internal/workflow"
)

// Resolve merges the built-in defaults with the optional workspace-level
// file and the optional per-project file, in that precedence order (spec
// §4.9), and decodes the result into a ResolvedConfig. Either path may be
// empty or point to a missing file; a missing layer is simply skipped.
func Resolve(workspacePath, projectPath string) (ResolvedConfig, error) {
	merged, err := defaultsRawMap()
	if err != nil {
		return ResolvedConfig{}, err
	}

	for _, path := range []string{workspacePath, projectPath} {
		if path == "" {
			continue
		}
		layer, err := loadLayer(path)
		if err != nil {
			return ResolvedConfig{}, err
		}
		merged = mergeLayer(merged, layer)
	}

	normalizeRoles(merged)
	return decodeResolved(merged)
}

// loadLayer reads one YAML config file into a generic map. A missing file
// yields an empty layer rather than an error, since both the workspace and
// project layers are optional (spec §4.9).
func loadLayer(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var layer map[string]interface{}
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if layer == nil {
		layer = map[string]interface{}{}
	}
	return layer, nil
}

// defaultsRawMap expresses Default() plus the default workflow as the same
// generic map[string]interface{} shape a YAML layer decodes to, so the
// merge logic in merge.go never needs to special-case "this layer came
// from Go literals, that one came from YAML".
func defaultsRawMap() (map[string]interface{}, error) {
	base, err := toRawMap(Default())
	if err != nil {
		return nil, fmt.Errorf("config: encoding defaults: %w", err)
	}

	states, err := toRawMap(workflow.Default().States)
	if err != nil {
		return nil, fmt.Errorf("config: encoding default workflow states: %w", err)
	}
	wf, _ := asMap(base["workflow"])
	if wf == nil {
		wf = map[string]interface{}{}
	}
	wf["states"] = states
	base["workflow"] = wf
	return base, nil
}

// toRawMap round-trips v through JSON to obtain a map[string]interface{}
// (or, for non-struct v, whatever JSON-native shape results) with only
// present fields populated.
func toRawMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeRoles rewrites any role entry mergeRoles left as a bare `false`
// into {"enabled": false}, so viper.Unmarshal can still decode it into a
// RoleConfig instead of failing on a bool-into-struct type mismatch.
func normalizeRoles(merged map[string]interface{}) {
	roles, ok := asMap(merged["roles"])
	if !ok {
		return
	}
	for name, v := range roles {
		if disabled, ok := v.(bool); ok && !disabled {
			roles[name] = map[string]interface{}{"enabled": false}
		}
	}
}

// decodeResolved decodes a fully-merged raw map into a ResolvedConfig,
// using viper.Unmarshal for the mapstructure-tagged fields (matching
// cmd/root.go's own `viper.Unmarshal(&cfg)` call in the teacher) and a JSON
// round-trip for the workflow states map, whose shape is driven by
// workflow.State's json tags rather than mapstructure tags.
func decodeResolved(merged map[string]interface{}) (ResolvedConfig, error) {
	// The states are decoded before viper sees the map: viper lowercases
	// every map key in place, which would turn state keys such as
	// "toReview" and event names such as "PICKUP" into "toreview"/"pickup".
	states, declOrder, err := decodeStates(toMap(toMap(merged["workflow"])["states"]))
	if err != nil {
		return ResolvedConfig{}, err
	}

	v := viper.New()
	if err := v.MergeConfigMap(merged); err != nil {
		return ResolvedConfig{}, fmt.Errorf("config: loading merged map into viper: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return ResolvedConfig{}, fmt.Errorf("config: unmarshaling merged config: %w", err)
	}

	wf := workflow.Workflow{
		Initial:      cfg.Workflow.Initial,
		ReviewPolicy: workflow.ReviewPolicy(cfg.Workflow.ReviewPolicy),
		TestPolicy:   workflow.ReviewPolicy(cfg.Workflow.TestPolicy),
		States:       states,
	}.WithDeclOrder(declOrder)

	if err := wf.Validate(); err != nil {
		return ResolvedConfig{}, fmt.Errorf("config: resolved workflow invalid: %w", err)
	}

	roles := make(map[string]RoleConfig, len(cfg.Roles))
	for name, r := range cfg.Roles {
		roles[name] = r
	}

	resolved := ResolvedConfig{
		InstanceName: cfg.InstanceName,
		Roles:        roles,
		Timeouts:     cfg.Timeouts,
		Heartbeat:    cfg.Heartbeat,
		Workflow:     wf,
	}
	log.Debug(log.CatConfig, "resolved config", "instanceName", resolved.InstanceName, "roleCount", len(roles), "stateCount", len(states))
	return resolved, nil
}

// decodeStates converts the merged raw states map into typed states plus a
// deterministic declaration order: the default workflow's own order, with
// any project-added state keys appended in sorted order.
func decodeStates(raw map[string]interface{}) (map[string]workflow.State, []string, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("config: encoding merged states: %w", err)
	}
	var states map[string]workflow.State
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, nil, fmt.Errorf("config: decoding merged states: %w", err)
	}

	declOrder := workflow.Default().DeclOrder()
	seen := make(map[string]bool, len(declOrder))
	for _, k := range declOrder {
		seen[k] = true
	}
	var extra []string
	for k := range states {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)

	order := make([]string, 0, len(states))
	for _, k := range declOrder {
		if _, ok := states[k]; ok {
			order = append(order, k)
		}
	}
	order = append(order, extra...)

	return states, order, nil
}
