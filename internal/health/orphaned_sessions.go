package health

import (
	"context"
	"regexp"

	"github.com/flowforge/taskctl/internal/log"
	"github.com/flowforge/taskctl/internal/registry"
	"github.com/flowforge/taskctl/internal/sessions"
)

// subagentKeyPattern matches every session key the orchestrator itself
// could have created (spec §4.6's orphaned-session scan).
var subagentKeyPattern = regexp.MustCompile(`^agent:[^:]+:subagent:`)

// ScanOrphanedSessions runs once per tick, after every project's health
// pass: any live subagent session key not referenced by any slot, and not
// held by any active slot, is deleted. A nil liveKeys (known == false)
// means the session layer is unreachable; the scan is skipped entirely
// rather than risk deleting sessions it can't actually see.
func ScanOrphanedSessions(ctx context.Context, sessReg sessions.Registry, projects map[string]*registry.Project) (int, error) {
	liveKeys, known, err := sessReg.ListLiveSessionKeys(ctx)
	if err != nil {
		return 0, err
	}
	if !known {
		log.Debug(log.CatHealth, "session layer liveness unknown, skipping orphaned-session scan")
		return 0, nil
	}

	tracked := make(map[string]bool)
	for _, project := range projects {
		for _, rw := range project.Workers {
			for _, slots := range rw {
				for _, slot := range slots {
					if slot.SessionKey != "" {
						tracked[slot.SessionKey] = true
					}
				}
			}
		}
	}

	deleted := 0
	for key, alive := range liveKeys {
		if !alive || tracked[key] || !subagentKeyPattern.MatchString(key) {
			continue
		}
		if err := sessReg.DeleteSession(ctx, key); err != nil {
			log.Warn(log.CatHealth, "failed to delete orphaned session", "sessionKey", key, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}
