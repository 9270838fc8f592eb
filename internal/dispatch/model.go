package dispatch

import "github.com/flowforge/taskctl/internal/config"

// ResolveModel implements resolveModel(role, level, resolvedRole?) (spec
// §4.5): resolvedRole.models[level] if present, else level itself passed
// through unchanged as a raw model id. canonicalLevel aliasing is applied
// first so a project that still labels issues with a legacy level name
// (e.g. "mid") resolves against the role's current model table.
func ResolveModel(role config.RoleConfig, level string) string {
	canonical := role.CanonicalLevel(level)
	if model, ok := role.Models[canonical]; ok && model != "" {
		return model
	}
	return level
}
