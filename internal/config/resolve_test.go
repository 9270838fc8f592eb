package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve_NoLayersYieldsDefaults(t *testing.T) {
	resolved, err := Resolve("", "")
	require.NoError(t, err)
	require.Equal(t, 60, resolved.Heartbeat.IntervalSeconds)
	require.Equal(t, "planning", resolved.Workflow.Initial)
	require.Contains(t, resolved.Roles, "developer")
	require.NoError(t, resolved.Workflow.Validate())
}

func TestResolve_WorkspaceLayerOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	workspacePath := filepath.Join(dir, "workspace.yaml")
	require.NoError(t, SaveLayer(workspacePath, map[string]interface{}{
		"heartbeat": map[string]interface{}{"maxPickupsPerTick": 9},
	}))

	resolved, err := Resolve(workspacePath, "")
	require.NoError(t, err)
	require.Equal(t, 9, resolved.Heartbeat.MaxPickupsPerTick)
	require.Equal(t, 60, resolved.Heartbeat.IntervalSeconds)
}

func TestResolve_ProjectLayerOverridesWorkspace(t *testing.T) {
	dir := t.TempDir()
	workspacePath := filepath.Join(dir, "workspace.yaml")
	projectPath := filepath.Join(dir, "project.yaml")
	require.NoError(t, SaveLayer(workspacePath, map[string]interface{}{
		"heartbeat": map[string]interface{}{"maxPickupsPerTick": 9},
	}))
	require.NoError(t, SaveLayer(projectPath, map[string]interface{}{
		"heartbeat": map[string]interface{}{"maxPickupsPerTick": 3},
	}))

	resolved, err := Resolve(workspacePath, projectPath)
	require.NoError(t, err)
	require.Equal(t, 3, resolved.Heartbeat.MaxPickupsPerTick)
}

func TestResolve_RoleDisabledByBareFalse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, SaveLayer(path, map[string]interface{}{
		"roles": map[string]interface{}{"architect": false},
	}))

	resolved, err := Resolve("", path)
	require.NoError(t, err)
	require.False(t, resolved.Roles["architect"].Enabled)
}

func TestResolve_RoleShallowMergeKeepsOtherLevels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, SaveLayer(path, map[string]interface{}{
		"roles": map[string]interface{}{
			"developer": map[string]interface{}{
				"models": map[string]interface{}{"senior": "opus-4-6"},
			},
		},
	}))

	resolved, err := Resolve("", path)
	require.NoError(t, err)
	require.Equal(t, "opus-4-6", resolved.Roles["developer"].Models["senior"])
	// levelMaxWorkers was not restated, but shallow merge replaces the whole
	// "models" key, not the role — levelMaxWorkers survives untouched.
	require.Equal(t, 2, resolved.Roles["developer"].LevelMaxWorkers["medior"])
}

func TestResolve_WorkflowStatesDeepMergeOverridesOneField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, SaveLayer(path, map[string]interface{}{
		"workflow": map[string]interface{}{
			"states": map[string]interface{}{
				"doing": map[string]interface{}{"color": "#000000"},
			},
		},
	}))

	resolved, err := Resolve("", path)
	require.NoError(t, err)
	doing := resolved.Workflow.States["doing"]
	require.Equal(t, "#000000", doing.Color)
	require.Equal(t, "Doing", doing.Label) // untouched field survives the merge
	require.NotEmpty(t, doing.On)          // transitions survive too
}

func TestResolve_WorkflowStatesCanAddNewState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, SaveLayer(path, map[string]interface{}{
		"workflow": map[string]interface{}{
			"states": map[string]interface{}{
				"triaging": map[string]interface{}{
					"type":  "hold",
					"label": "Triaging",
					"color": "#FFFFFF",
					"on": map[string]interface{}{
						"APPROVE": map[string]interface{}{"target": "todo"},
					},
				},
			},
		},
	}))

	resolved, err := Resolve("", path)
	require.NoError(t, err)
	require.Contains(t, resolved.Workflow.States, "triaging")
	require.NoError(t, resolved.Workflow.Validate())
}
