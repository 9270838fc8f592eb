package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/flowforge/taskctl/internal/log"
)

// workerStateFileName is the file the registry persists to, relative to a
// workspace root.
const workerStateFileName = "worker-state.json"

// workspaceLocks holds one mutex per workspace path so that writers from
// different workspaces never contend, while writers within one workspace
// serialize (spec §3.4, §5 "Shared resources"). Reads are lock-free against
// an atomically-replaced file, matching internal/config/save.go's
// temp-file-then-rename technique generalized from YAML to JSON.
var (
	locksMu sync.Mutex
	locks   = map[string]*sync.Mutex{}
)

func lockFor(workspace string) *sync.Mutex {
	locksMu.Lock()
	defer locksMu.Unlock()
	m, ok := locks[workspace]
	if !ok {
		m = &sync.Mutex{}
		locks[workspace] = m
	}
	return m
}

func statePath(workspace string) string {
	return filepath.Join(workspace, workerStateFileName)
}

// ReadProjects returns the whole registry for workspace. A missing file is
// treated as an empty registry, not an error. Reads take no lock: the file
// is only ever replaced atomically, so a concurrent writer can never leave
// a reader looking at a partial file.
func ReadProjects(workspace string) (map[string]*Project, error) {
	data, err := os.ReadFile(statePath(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Project{}, nil
		}
		return nil, fmt.Errorf("registry: reading worker state: %w", err)
	}

	var file workerStateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("registry: parsing worker state: %w", err)
	}
	if file.Projects == nil {
		file.Projects = map[string]*Project{}
	}
	return file.Projects, nil
}

// writeProjects atomically replaces the worker-state file. Callers must
// already hold the workspace lock.
func writeProjects(workspace string, projects map[string]*Project) error {
	data, err := json.MarshalIndent(workerStateFile{Projects: projects}, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshaling worker state: %w", err)
	}

	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("registry: creating workspace dir: %w", err)
	}

	tmp, err := os.CreateTemp(workspace, ".worker-state.json.tmp.*")
	if err != nil {
		return fmt.Errorf("registry: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("registry: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("registry: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, statePath(workspace)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("registry: renaming temp file: %w", err)
	}
	return nil
}

// withWrite loads the registry, lets fn mutate it, and persists the result,
// all under the workspace's write lock.
func withWrite(workspace string, fn func(projects map[string]*Project) error) error {
	mu := lockFor(workspace)
	mu.Lock()
	defer mu.Unlock()

	projects, err := ReadProjects(workspace)
	if err != nil {
		return err
	}
	if err := fn(projects); err != nil {
		return err
	}
	return writeProjects(workspace, projects)
}

// PutProject inserts or replaces a project record. A Project is created
// externally and entered into the registry once; it is never deleted by
// the core (spec §3.5).
func PutProject(workspace string, project *Project) error {
	return withWrite(workspace, func(projects map[string]*Project) error {
		projects[project.Slug] = project
		return nil
	})
}

// GetWorker returns the RoleWorker for role, autovivifying an empty value
// if absent. The autovivified value is not written back until a caller
// persists it via UpdateSlot/ActivateWorker.
func GetWorker(project *Project, role string) RoleWorker {
	if project.Workers == nil {
		project.Workers = map[string]RoleWorker{}
	}
	rw, ok := project.Workers[role]
	if !ok {
		rw = RoleWorker{}
		project.Workers[role] = rw
	}
	return rw
}

// SlotPatch carries the subset of Slot fields an UpdateSlot call wants to
// change; nil/zero fields are left untouched except where explicitly
// cleared via the Clear* flags.
type SlotPatch struct {
	Active        *bool
	IssueID       *string
	SessionKey    *string
	StartTime     *time.Time
	PreviousLabel *string

	ClearIssueID       bool
	ClearSessionKey    bool
	ClearStartTime     bool
	ClearPreviousLabel bool
}

// UpdateSlot merges patch into the slot at (role, level, index) under the
// workspace write lock, autovivifying the role/level/slot path as needed.
func UpdateSlot(workspace, slug, role, level string, index int, patch SlotPatch) error {
	return withWrite(workspace, func(projects map[string]*Project) error {
		project, ok := projects[slug]
		if !ok {
			return fmt.Errorf("registry: project %q not found", slug)
		}

		slot := ensureSlot(project, role, level, index)
		applyPatch(slot, patch)
		return nil
	})
}

func ensureSlot(project *Project, role, level string, index int) *Slot {
	if project.Workers == nil {
		project.Workers = map[string]RoleWorker{}
	}
	rw, ok := project.Workers[role]
	if !ok {
		rw = RoleWorker{}
		project.Workers[role] = rw
	}
	slots := rw[level]
	for len(slots) <= index {
		slots = append(slots, Slot{})
	}
	rw[level] = slots
	return &rw[level][index]
}

func applyPatch(slot *Slot, patch SlotPatch) {
	if patch.Active != nil {
		slot.Active = *patch.Active
	}
	if patch.ClearIssueID {
		slot.IssueID = ""
	} else if patch.IssueID != nil {
		slot.IssueID = *patch.IssueID
	}
	if patch.ClearSessionKey {
		slot.SessionKey = ""
	} else if patch.SessionKey != nil {
		slot.SessionKey = *patch.SessionKey
	}
	if patch.ClearStartTime {
		slot.StartTime = nil
	} else if patch.StartTime != nil {
		slot.StartTime = patch.StartTime
	}
	if patch.ClearPreviousLabel {
		slot.PreviousLabel = ""
	} else if patch.PreviousLabel != nil {
		slot.PreviousLabel = *patch.PreviousLabel
	}
}

// ActivationParams carries every field an activation commits in one shot
// (spec §4.2: "sets the slot active with all supplied fields in one
// commit").
type ActivationParams struct {
	IssueID       string
	Level         string
	SessionKey    string
	StartTime     time.Time
	SlotIndex     int
	PreviousLabel string
}

// ActivateWorker marks the slot active with every supplied field committed
// atomically. Per spec §4.2, failure of this step after the label has
// already been transitioned must not roll the label back — callers treat a
// non-nil error here as a warning to reconcile on the next health pass, not
// as cause to retry the label transition.
func ActivateWorker(workspace, slug, role string, params ActivationParams) error {
	err := withWrite(workspace, func(projects map[string]*Project) error {
		project, ok := projects[slug]
		if !ok {
			return fmt.Errorf("registry: project %q not found", slug)
		}
		slot := ensureSlot(project, role, params.Level, params.SlotIndex)
		active := true
		start := params.StartTime
		slot.Active = active
		slot.IssueID = params.IssueID
		slot.SessionKey = params.SessionKey
		slot.StartTime = &start
		slot.PreviousLabel = params.PreviousLabel
		return nil
	})
	if err != nil {
		log.ErrorErr(log.CatRegistry, "activateWorker failed", err, "project", slug, "role", role, "level", params.Level)
	}
	return err
}

// DeactivateWorker clears a slot back to its inactive resting state. A
// previously-reused sessionKey is preserved unless clearSession is true
// (spec §3.2: "an inactive slot may retain sessionKey for reuse").
func DeactivateWorker(workspace, slug, role, level string, index int, clearSession bool) error {
	inactive := false
	patch := SlotPatch{
		Active:             &inactive,
		ClearIssueID:       true,
		ClearStartTime:     true,
		ClearPreviousLabel: true,
	}
	if clearSession {
		patch.ClearSessionKey = true
	}
	return UpdateSlot(workspace, slug, role, level, index, patch)
}
