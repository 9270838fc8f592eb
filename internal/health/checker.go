package health

import (
	"context"
	"time"

	"github.com/flowforge/taskctl/internal/log"
	"github.com/flowforge/taskctl/internal/registry"
	"github.com/flowforge/taskctl/internal/sessions"
	"github.com/flowforge/taskctl/internal/tracker"
	"github.com/flowforge/taskctl/internal/workflow"
)

// Checker runs the per-slot triangulation and, when AutoFix is set,
// applies the corresponding repair.
type Checker struct {
	Tracker          tracker.Provider
	Sessions         sessions.Registry
	Workspace        string
	Workflow         workflow.Workflow
	AutoFix          bool
	StaleWorkerAfter time.Duration
}

// CheckRole runs §4.6 over every slot of one (project, role), returning
// every anomaly found (fixed or not). liveKeys/known are the tick-wide
// snapshot from sessions.Registry.ListLiveSessionKeys, shared across every
// project so the session layer is queried once per tick, not once per
// slot.
func (c Checker) CheckRole(ctx context.Context, project *registry.Project, role string, liveKeys map[string]bool, known bool) ([]Anomaly, error) {
	expectedLabel, err := c.Workflow.ActiveLabel(role)
	if err != nil {
		return nil, err
	}
	revertLabel, err := c.Workflow.RevertLabel(role)
	if err != nil {
		return nil, err
	}

	rw := registry.GetWorker(project, role)
	var anomalies []Anomaly
	now := time.Now()

	for level, slots := range rw {
		for idx, slot := range slots {
			obs := c.observe(ctx, slot, expectedLabel, liveKeys, known, now)
			anomaly := CheckSlot(role, level, idx, obs)
			if anomaly == nil {
				continue
			}
			if c.AutoFix {
				c.fix(ctx, project, role, level, idx, slot, anomaly, expectedLabel, revertLabel)
			}
			anomalies = append(anomalies, *anomaly)
		}
	}

	orphaned, err := c.scanOrphanedLabels(ctx, project, role, expectedLabel, revertLabel)
	if err != nil {
		log.Warn(log.CatHealth, "orphaned label scan failed", "project", project.Slug, "role", role, "error", err)
	} else {
		anomalies = append(anomalies, orphaned...)
	}

	return anomalies, nil
}

func (c Checker) observe(ctx context.Context, slot registry.Slot, expectedLabel string, liveKeys map[string]bool, known bool, now time.Time) SlotObservation {
	obs := SlotObservation{
		Active:               slot.Active,
		IssueID:              slot.IssueID,
		SessionKey:           slot.SessionKey,
		StartTime:            slot.StartTime,
		PreviousLabel:        slot.PreviousLabel,
		ExpectedActiveLabel:  expectedLabel,
		LiveSessionKeys:      liveKeys,
		Known:                known,
		Now:                  now,
		StaleWorkerAfter:     c.StaleWorkerAfter,
	}

	if slot.IssueID == "" {
		return obs
	}
	issue, err := c.Tracker.GetIssue(ctx, slot.IssueID)
	if err != nil {
		obs.IssueExists = false
		return obs
	}
	obs.IssueExists = issue.Open
	obs.CurrentLabel = c.Workflow.CurrentStateLabel(issue.Labels)
	return obs
}

// fix applies the auto-fix action from §4.6's table for one anomaly.
func (c Checker) fix(ctx context.Context, project *registry.Project, role, level string, idx int, slot registry.Slot, anomaly *Anomaly, expectedLabel, revertLabel string) {
	target := slot.PreviousLabel
	if target == "" {
		target = revertLabel
	}

	switch anomaly.Case {
	case CaseIssueGone, CaseLabelMismatch:
		c.deactivate(project.Slug, role, level, idx, true)
	case CaseSessionDead, CaseSessionDeadNoKey:
		c.revertLabel(ctx, slot.IssueID, expectedLabel, target)
		c.deactivate(project.Slug, role, level, idx, true)
	case CaseStaleWorker:
		c.revertLabel(ctx, slot.IssueID, expectedLabel, target)
		c.deactivate(project.Slug, role, level, idx, false)
	case CaseStuckLabel:
		c.revertLabel(ctx, slot.IssueID, expectedLabel, revertLabel)
		c.clearIssueID(project.Slug, role, level, idx)
	case CaseOrphanIssueID:
		c.clearIssueID(project.Slug, role, level, idx)
	}
	anomaly.Fixed = true
}

func (c Checker) revertLabel(ctx context.Context, issueID, from, to string) {
	if issueID == "" {
		return
	}
	if err := c.Tracker.TransitionLabel(ctx, issueID, from, to); err != nil {
		log.Warn(log.CatHealth, "revert label failed", "issue", issueID, "from", from, "to", to, "error", err)
	}
}

func (c Checker) deactivate(slug, role, level string, idx int, clearSession bool) {
	if err := registry.DeactivateWorker(c.Workspace, slug, role, level, idx, clearSession); err != nil {
		log.Warn(log.CatHealth, "deactivate slot failed", "project", slug, "role", role, "level", level, "index", idx, "error", err)
	}
}

func (c Checker) clearIssueID(slug, role, level string, idx int) {
	if err := registry.UpdateSlot(c.Workspace, slug, role, level, idx, registry.SlotPatch{ClearIssueID: true}); err != nil {
		log.Warn(log.CatHealth, "clear issueId failed", "project", slug, "role", role, "level", level, "index", idx, "error", err)
	}
}

// scanOrphanedLabels implements §4.6's per-role orphaned-label scan: every
// issue bearing the active label that no active slot claims.
func (c Checker) scanOrphanedLabels(ctx context.Context, project *registry.Project, role, activeLabel, revertLabel string) ([]Anomaly, error) {
	issues, err := c.Tracker.ListIssuesByLabel(ctx, activeLabel)
	if err != nil {
		return nil, err
	}

	claimed := make(map[string]bool)
	for _, slots := range registry.GetWorker(project, role) {
		for _, slot := range slots {
			if slot.Active && slot.IssueID != "" {
				claimed[slot.IssueID] = true
			}
		}
	}

	var anomalies []Anomaly
	for _, issue := range issues {
		if claimed[issue.IID] {
			continue
		}
		a := Anomaly{Case: CaseOrphanedLabel, Severity: SeverityWarning, Role: role, IssueID: issue.IID,
			Detail: "issue carries the active label but no active slot owns it"}
		if c.AutoFix {
			c.revertLabel(ctx, issue.IID, activeLabel, revertLabel)
			a.Fixed = true
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, nil
}
