// Package config implements the three-layer config loader (spec §4.9, C9):
// built-in defaults, a workspace-level file, and a per-project file are
// merged into one ResolvedConfig used for the remainder of a tick.
package config

import (
	"github.com/flowforge/taskctl/internal/workflow"
)

// RoleConfig is one role's settings: its competence levels, per-level model
// assignment, and per-level worker caps.
type RoleConfig struct {
	Enabled         bool              `mapstructure:"enabled"`
	Levels          []string          `mapstructure:"levels"`
	DefaultLevel    string            `mapstructure:"defaultLevel"`
	Models          map[string]string `mapstructure:"models"`
	LevelMaxWorkers map[string]int    `mapstructure:"levelMaxWorkers"`

	// LevelAliases maps legacy/alternate level names (e.g. "mid") to the
	// canonical level id ("medior") consulted before every level lookup
	// (spec §4.5's canonicalLevel). Empty by default: spec.md gives no
	// alias table, so this ships additive and opt-in via config.
	LevelAliases map[string]string `mapstructure:"levelAliases"`
}

// CanonicalLevel resolves level through LevelAliases, returning level
// unchanged if it has no alias entry.
func (r RoleConfig) CanonicalLevel(level string) string {
	if canon, ok := r.LevelAliases[level]; ok {
		return canon
	}
	return level
}

// TimeoutsConfig holds every per-external-call timeout plus the worker
// staleness threshold (spec §3.3 notes roles.<role>.levels; §4.9 notes
// timeouts).
type TimeoutsConfig struct {
	SessionPatchMs       int     `mapstructure:"sessionPatchMs"`
	DispatchMs           int     `mapstructure:"dispatchMs"`
	GitPullMs            int     `mapstructure:"gitPullMs"`
	StaleWorkerHours     int     `mapstructure:"staleWorkerHours"`
	SessionContextBudget float64 `mapstructure:"sessionContextBudget"`
}

// HeartbeatConfig governs the tick loop (spec §4.7).
type HeartbeatConfig struct {
	IntervalSeconds   int    `mapstructure:"intervalSeconds"`
	KickoffSeconds    int    `mapstructure:"kickoffSeconds"`
	MaxPickupsPerTick int    `mapstructure:"maxPickupsPerTick"`
	Parallel          bool   `mapstructure:"parallel"`

	// ProjectExecution is "sequential" or "parallel" (default). When
	// sequential, a project with no active work is skipped for pickup once
	// another project in the same tick already has active work (spec
	// §4.7 step 2.5).
	ProjectExecution string `mapstructure:"projectExecution"`

	// RoleExecution is "sequential" or "parallel" (default). When
	// sequential, a role with an already-active slot is skipped for pickup
	// within its project even if other level slots are free (spec §4.7
	// step 2.6).
	RoleExecution string `mapstructure:"roleExecution"`
}

const (
	ExecutionSequential = "sequential"
	ExecutionParallel   = "parallel"
)

// WorkflowConfig carries the raw workflow shape the merge layer operates
// on. States is kept as a generic map so per-state, per-field overrides
// (e.g. a project recoloring one state) survive the merge without the
// loader needing to know every workflow.State field ahead of time; it is
// decoded into a workflow.Workflow only after merging completes.
type WorkflowConfig struct {
	Initial      string                 `mapstructure:"initial"`
	ReviewPolicy string                 `mapstructure:"reviewPolicy"`
	TestPolicy   string                 `mapstructure:"testPolicy"`
	States       map[string]interface{} `mapstructure:"states"`
}

// Config is the mapstructure-decoded shape of one merged config layer.
type Config struct {
	InstanceName string                `mapstructure:"instanceName"`
	Roles        map[string]RoleConfig `mapstructure:"roles"`
	Timeouts     TimeoutsConfig        `mapstructure:"timeouts"`
	Heartbeat    HeartbeatConfig       `mapstructure:"heartbeat"`
	Workflow     WorkflowConfig        `mapstructure:"workflow"`
}

// ResolvedConfig is the config value produced once all three layers are
// merged and the workflow map has been decoded into a concrete Workflow
// (spec §4.9: "Result: a resolved config value used for the remainder of
// the tick").
type ResolvedConfig struct {
	InstanceName string
	Roles        map[string]RoleConfig
	Timeouts     TimeoutsConfig
	Heartbeat    HeartbeatConfig
	Workflow     workflow.Workflow
}

// Default returns the built-in default layer (spec §4.9: "built-in
// defaults").
func Default() Config {
	return Config{
		Roles: map[string]RoleConfig{
			"architect": {
				Enabled:         true,
				Levels:          []string{"senior"},
				DefaultLevel:    "senior",
				Models:          map[string]string{"senior": "opus"},
				LevelMaxWorkers: map[string]int{"senior": 1},
			},
			"developer": {
				Enabled:      true,
				Levels:       []string{"junior", "medior", "senior"},
				DefaultLevel: "medior",
				Models: map[string]string{
					"junior": "sonnet", "medior": "sonnet", "senior": "opus",
				},
				LevelMaxWorkers: map[string]int{"junior": 1, "medior": 2, "senior": 1},
			},
			"reviewer": {
				Enabled:         true,
				Levels:          []string{"medior", "senior"},
				DefaultLevel:    "senior",
				Models:          map[string]string{"medior": "sonnet", "senior": "opus"},
				LevelMaxWorkers: map[string]int{"medior": 1, "senior": 1},
			},
			"tester": {
				Enabled:         true,
				Levels:          []string{"medior"},
				DefaultLevel:    "medior",
				Models:          map[string]string{"medior": "sonnet"},
				LevelMaxWorkers: map[string]int{"medior": 1},
			},
		},
		Timeouts: TimeoutsConfig{
			SessionPatchMs:       10_000,
			DispatchMs:           30_000,
			GitPullMs:            15_000,
			StaleWorkerHours:     12,
			SessionContextBudget: 0.8,
		},
		Heartbeat: HeartbeatConfig{
			IntervalSeconds:   60,
			KickoffSeconds:    2,
			MaxPickupsPerTick: 5,
			Parallel:          false,
			ProjectExecution:  ExecutionParallel,
			RoleExecution:     ExecutionParallel,
		},
		Workflow: WorkflowConfig{
			Initial:      "planning",
			ReviewPolicy: "auto",
		},
	}
}
