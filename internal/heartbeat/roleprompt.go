package heartbeat

import (
	"os"
	"path/filepath"

	"github.com/flowforge/taskctl/internal/log"
	"github.com/flowforge/taskctl/internal/registry"
)

// rolePrompt resolves the extraSystemPrompt a dispatch hands to a session
// (spec §4.5 step 10: "from project-specific file if present, else
// workspace default"). Deps.RolePrompts is consulted first as a direct
// override, mainly so tests and embedded callers can skip the filesystem
// entirely; production wiring leaves it empty and relies on the file
// lookup below.
func (e *Engine) rolePrompt(project *registry.Project, role string) string {
	if p, ok := e.deps.RolePrompts[role]; ok {
		return p
	}

	projectPath := filepath.Join(e.deps.Workspace, "projects", project.Slug, "roles", role+".md")
	if text, ok := readRolePromptFile(projectPath); ok {
		return text
	}

	workspacePath := filepath.Join(e.deps.Workspace, "roles", role+".md")
	if text, ok := readRolePromptFile(workspacePath); ok {
		return text
	}

	log.Debug(log.CatHeartbeat, "no role prompt file found, dispatching with empty prompt", "project", project.Slug, "role", role)
	return ""
}

func readRolePromptFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}
