package heartbeat

import (
	"context"
	"sort"
	"time"

	"github.com/flowforge/taskctl/internal/config"
	"github.com/flowforge/taskctl/internal/dispatch"
	"github.com/flowforge/taskctl/internal/health"
	"github.com/flowforge/taskctl/internal/log"
	"github.com/flowforge/taskctl/internal/notify"
	"github.com/flowforge/taskctl/internal/registry"
	"github.com/flowforge/taskctl/internal/tracker"
	"github.com/flowforge/taskctl/internal/workflow"
)

// projectTickResult aggregates one project's contribution to a tick's
// counters.
type projectTickResult struct {
	anomaliesFound  int
	anomaliesFixed  int
	reviewsAdvanced int
	dispatched      int
}

// tickProject runs the three ordered passes from spec §4.7 step 2 for one
// project: health, then review, then pickup (bounded by pickupBudget, the
// tick-wide remaining allowance).
func (e *Engine) tickProject(ctx context.Context, project *registry.Project, cfg config.ResolvedConfig, liveKeys map[string]bool, known bool, pickupBudget int) projectTickResult {
	var result projectTickResult

	checker := health.Checker{
		Tracker:          e.deps.Tracker,
		Sessions:         e.deps.Sessions,
		Workspace:        e.deps.Workspace,
		Workflow:         cfg.Workflow,
		AutoFix:          e.deps.AutoFixHealth,
		StaleWorkerAfter: time.Duration(cfg.Timeouts.StaleWorkerHours) * time.Hour,
	}

	roles := sortedRoleNames(cfg.Roles)

	for _, role := range roles {
		if !cfg.Roles[role].Enabled {
			continue
		}
		anomalies, err := checker.CheckRole(ctx, project, role, liveKeys, known)
		if err != nil {
			log.Warn(log.CatHeartbeat, "health check failed for role, skipping", "project", project.Slug, "role", role, "error", err)
			continue
		}
		result.anomaliesFound += len(anomalies)
		for _, a := range anomalies {
			if a.Fixed {
				result.anomaliesFixed++
			}
		}
	}

	result.reviewsAdvanced = e.reviewPass(ctx, project, cfg)

	if pickupBudget <= 0 {
		return result
	}
	result.dispatched = e.pickupPass(ctx, project, cfg, roles, pickupBudget)

	return result
}

// sortedRoleNames returns roles in alphabetical order. config.ResolvedConfig
// carries Roles as a plain map with no declaration-order field (unlike
// workflow.Workflow's internal state order), so alphabetical order is the
// deterministic substitute used for both the health pass and pickup pass's
// per-role iteration.
func sortedRoleNames(roles map[string]config.RoleConfig) []string {
	names := make([]string, 0, len(roles))
	for name := range roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// reviewPass implements spec §4.7 step 2.3: every state carrying a review
// check is polled for its issues' PR status, and a matching state
// transition (with its actions) fires when the PR has moved.
func (e *Engine) reviewPass(ctx context.Context, project *registry.Project, cfg config.ResolvedConfig) int {
	advanced := 0
	for _, label := range cfg.Workflow.StatesWithCheck(workflow.CheckPRApproved) {
		issues, err := e.deps.Tracker.ListIssuesByLabel(ctx, label)
		if err != nil {
			log.Warn(log.CatHeartbeat, "listIssuesByLabel failed in review pass", "project", project.Slug, "label", label, "error", err)
			continue
		}
		for _, issue := range issues {
			if !issue.Open {
				continue
			}
			status, err := e.deps.Tracker.GetPrStatus(ctx, issue.IID)
			if err != nil {
				log.Warn(log.CatHeartbeat, "getPrStatus failed in review pass", "issue", issue.IID, "error", err)
				continue
			}
			if e.advanceReview(ctx, project, cfg, label, issue, status) {
				advanced++
			}
		}
	}
	return advanced
}

// advanceReview maps one issue's observed PR state to a workflow event,
// runs the transition's actions, commits the label move, and notifies
// (spec §4.7 step 2.3's state table).
func (e *Engine) advanceReview(ctx context.Context, project *registry.Project, cfg config.ResolvedConfig, fromLabel string, issue tracker.Issue, status tracker.PrStatus) bool {
	var event workflow.Event
	var notifyType notify.EventType
	var skipMergePr bool

	switch {
	case status.State == tracker.PrApproved && !status.Mergeable:
		event = workflow.EventMergeConflict
		notifyType = notify.EventMergeConflict
	case status.State == tracker.PrApproved && status.Mergeable:
		event = workflow.EventApproved
		notifyType = notify.EventPRMerged
	case status.State == tracker.PrMerged:
		// Already merged outside the tick loop; still fire the APPROVED
		// transition so the label advances, but skip a redundant mergePr.
		event = workflow.EventApproved
		notifyType = notify.EventPRMerged
		skipMergePr = true
	case status.State == tracker.PrChangesRequested:
		event = workflow.EventChangesRequested
		notifyType = notify.EventChangesRequested
	case status.State == tracker.PrHasComments:
		return false
	case status.State == tracker.PrClosed:
		event = workflow.EventMergeFailed
		notifyType = notify.EventPRClosed
	default:
		return false
	}

	toLabel, actions, ok := cfg.Workflow.Transition(fromLabel, event)
	if !ok {
		log.Debug(log.CatHeartbeat, "no transition for review event, leaving issue in place", "fromLabel", fromLabel, "event", event, "issue", issue.IID)
		return false
	}

	for _, action := range actions {
		if action == workflow.ActionMergePR && skipMergePr {
			continue
		}
		e.runAction(ctx, project, cfg, issue.IID, action)
	}

	if err := e.deps.Tracker.TransitionLabel(ctx, issue.IID, fromLabel, toLabel); err != nil {
		log.Warn(log.CatHeartbeat, "review transition failed", "issue", issue.IID, "fromLabel", fromLabel, "toLabel", toLabel, "error", err)
		return false
	}

	notify.Dispatch(ctx, e.deps.Notifier, notify.Event{
		Type: notifyType, Project: project.Name, IssueID: issue.IID, IssueTitle: issue.Title,
	}, issue.Labels, project.Channels)

	e.deps.Audit.Record(ctx, "review_advance", map[string]interface{}{
		"project": project.Slug, "issue": issue.IID, "fromLabel": fromLabel,
		"toLabel": toLabel, "event": string(event), "prState": string(status.State),
	})

	return true
}

// pickupPass implements spec §4.7 step 2.6: for each role in order, the
// highest-priority non-empty queue is drained into free slots, bounded by
// budget (the tick-wide remaining maxPickupsPerTick allowance). Under
// roleExecution=sequential a role that already has an active slot is
// skipped and any other role gets at most one pickup this tick; under
// parallel execution
// a role keeps draining its queue into every free slot across levels until
// the queue or the budget runs out.
func (e *Engine) pickupPass(ctx context.Context, project *registry.Project, cfg config.ResolvedConfig, roles []string, budget int) int {
	dispatched := 0
	for _, role := range roles {
		if dispatched >= budget {
			break
		}
		roleCfg, ok := cfg.Roles[role]
		if !ok || !roleCfg.Enabled {
			continue
		}
		sequential := cfg.Heartbeat.RoleExecution == config.ExecutionSequential
		if sequential && roleHasActiveSlot(project, role) {
			continue
		}

		for dispatched < budget {
			if e.dispatchOnePickup(ctx, project, cfg, role, roleCfg) {
				dispatched++
				if sequential {
					break
				}
				continue
			}
			break
		}
	}
	return dispatched
}

// dispatchOnePickup selects and dispatches a single issue for role, if both
// a queued issue and a free slot exist. Returns false if there's nothing
// left to do this role this tick.
func (e *Engine) dispatchOnePickup(ctx context.Context, project *registry.Project, cfg config.ResolvedConfig, role string, roleCfg config.RoleConfig) bool {
	issue, fromLabel, found := e.selectPickup(ctx, project, cfg, role)
	if !found {
		return false
	}

	level := canonicalLevelForIssue(roleCfg, issue)
	maxWorkers := roleCfg.LevelMaxWorkers[level]
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	slotIndex, ok := firstFreeSlotIndex(registry.GetWorker(project, role)[level], maxWorkers)
	if !ok {
		log.Debug(log.CatHeartbeat, "no free slot for role/level, leaving issue queued", "project", project.Slug, "role", role, "level", level)
		return false
	}

	toLabel, err := cfg.Workflow.ActiveLabel(role)
	if err != nil {
		log.Warn(log.CatHeartbeat, "no active label for role, skipping pickup", "role", role, "error", err)
		return false
	}

	out, err := dispatch.Dispatch(ctx, dispatch.Deps{
		Tracker:    e.deps.Tracker,
		Sessions:   e.deps.Sessions,
		Notifier:   e.deps.Notifier,
		Audit:      e.deps.Audit,
		Config:     cfg,
		Workflow:   cfg.Workflow,
		RolePrompt: e.rolePrompt(project, role),
	}, dispatch.Input{
		Workspace:    e.deps.Workspace,
		Project:      project,
		IssueID:      issue.IID,
		IssueTitle:   issue.Title,
		IssueDesc:    issue.Body,
		IssueURL:     issue.URL,
		IssueLabels:  issue.Labels,
		Role:         role,
		Level:        level,
		FromLabel:    fromLabel,
		ToLabel:      toLabel,
		SlotIndex:    slotIndex,
		InstanceName: cfg.InstanceName,
	})
	if err != nil {
		log.Warn(log.CatHeartbeat, "dispatch failed during pickup, issue stays queued", "project", project.Slug, "issue", issue.IID, "error", err)
		return false
	}

	log.Debug(log.CatHeartbeat, "picked up issue", "project", project.Slug, "role", role, "level", out.Level, "issue", issue.IID, "sessionAction", out.SessionAction)

	// Reload the slots so the next pickup in this pass sees the slot this
	// dispatch just activated instead of choosing the same index again.
	if projects, err := registry.ReadProjects(e.deps.Workspace); err == nil {
		if fresh, ok := projects[project.Slug]; ok {
			project.Workers = fresh.Workers
		}
	}
	return true
}

// selectPickup walks role's queue states in priority order and returns the
// oldest open issue (by Issue.CreatedAt, ties broken by ascending IID) from
// the first non-empty one.
func (e *Engine) selectPickup(ctx context.Context, project *registry.Project, cfg config.ResolvedConfig, role string) (tracker.Issue, string, bool) {
	for _, label := range cfg.Workflow.QueueLabels(role) {
		issues, err := e.deps.Tracker.ListIssuesByLabel(ctx, label)
		if err != nil {
			log.Warn(log.CatHeartbeat, "listIssuesByLabel failed in pickup pass", "project", project.Slug, "label", label, "error", err)
			continue
		}
		oldest, ok := oldestOpenIssue(issues)
		if ok {
			return oldest, label, true
		}
	}
	return tracker.Issue{}, "", false
}

func oldestOpenIssue(issues []tracker.Issue) (tracker.Issue, bool) {
	var best tracker.Issue
	found := false
	for _, issue := range issues {
		if !issue.Open {
			continue
		}
		if !found || issue.CreatedAt.Before(best.CreatedAt) || (issue.CreatedAt.Equal(best.CreatedAt) && issue.IID < best.IID) {
			best = issue
			found = true
		}
	}
	return best, found
}

// canonicalLevelForIssue resolves the level a newly-picked-up issue
// dispatches at: a label on the issue naming one of the role's levels if
// present (canonicalized through LevelAliases), else the role's default level. The actual
// level-from-title/description heuristic (dispatch.SelectLevel) only
// applies when dispatch.Input.Level is left blank; picking it up front here
// keeps the slot-sizing and the dispatch call consistent.
func canonicalLevelForIssue(roleCfg config.RoleConfig, issue tracker.Issue) string {
	for _, l := range issue.Labels {
		canon := roleCfg.CanonicalLevel(l)
		for _, lvl := range roleCfg.Levels {
			if canon == lvl {
				return lvl
			}
		}
	}
	if roleCfg.DefaultLevel != "" {
		return roleCfg.DefaultLevel
	}
	return dispatch.SelectLevel(roleCfg.Levels, roleCfg.DefaultLevel, issue.Title, issue.Body)
}

// firstFreeSlotIndex returns the first inactive slot index under max, or
// the next never-allocated index if every existing slot is full but the
// level hasn't reached its worker cap yet.
func firstFreeSlotIndex(slots []registry.Slot, max int) (int, bool) {
	for i, s := range slots {
		if i >= max {
			break
		}
		if !s.Active {
			return i, true
		}
	}
	if len(slots) < max {
		return len(slots), true
	}
	return 0, false
}

func roleHasActiveSlot(project *registry.Project, role string) bool {
	for _, slots := range registry.GetWorker(project, role) {
		for _, s := range slots {
			if s.Active {
				return true
			}
		}
	}
	return false
}
