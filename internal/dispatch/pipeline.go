package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/taskctl/internal/config"
	"github.com/flowforge/taskctl/internal/log"
	"github.com/flowforge/taskctl/internal/notify"
	"github.com/flowforge/taskctl/internal/registry"
	"github.com/flowforge/taskctl/internal/sessions"
	"github.com/flowforge/taskctl/internal/tracker"
	"github.com/flowforge/taskctl/internal/workflow"
)

// Input carries everything one dispatchTask call needs (spec §4.5, the
// `{project, issueId, ...}` input shape).
type Input struct {
	Workspace    string
	Project      *registry.Project
	IssueID      string
	IssueTitle   string
	IssueDesc    string
	IssueURL     string
	IssueLabels  []string
	Role         string
	Level        string
	FromLabel    string
	ToLabel      string
	SlotIndex    int
	AgentID      string
	OrchestratorSessionKey string
	InstanceName string

	// PreviousIssueID and ContextBudgetExceeded together drive step 2's
	// forced-respawn condition.
	PreviousIssueID       string
	ContextBudgetExceeded bool
}

// Output is the `{sessionAction, sessionKey, level, model, announcement}`
// result from spec §4.5.
type Output struct {
	SessionAction string // "spawn" | "send"
	SessionKey    string
	Level         string
	Model         string
	Announcement  string
}

// AuditRecorder is the narrow interface the pipeline needs from
// internal/audit, kept local to avoid a dependency cycle (audit in turn
// depends on nothing dispatch-specific, but this keeps the direction
// explicit and dispatch testable with a fake).
type AuditRecorder interface {
	Record(ctx context.Context, kind string, fields map[string]interface{})
}

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Tracker  tracker.Provider
	Sessions sessions.Registry
	Notifier notify.Notifier
	Audit    AuditRecorder
	Config   config.ResolvedConfig
	Workflow workflow.Workflow
	RolePrompt string
}

// Dispatch runs the three-phase pipeline from spec §4.5. It returns an
// error only for a Phase 1/2 failure serious enough that the issue must
// stay queued (e.g. the label transition itself failing); Phase 3
// failures are logged internally and never surface here.
func Dispatch(ctx context.Context, d Deps, in Input) (Output, error) {
	attemptID := uuid.NewString()
	role, ok := d.Config.Roles[in.Role]
	if !ok {
		return Output{}, fmt.Errorf("dispatch: role %q not configured", in.Role)
	}

	// --- Phase 1: setup ---------------------------------------------------
	level := in.Level
	if level == "" {
		level = SelectLevel(role.Levels, role.DefaultLevel, in.IssueTitle, in.IssueDesc)
	}
	model := ResolveModel(role, level)

	slotName := SlotName(in.Role, level, in.SlotIndex)
	sessionKey := DeterministicSessionKey(in.AgentID, in.Project.Name, in.Role, level, slotName)

	existingSlots := registry.GetWorker(in.Project, in.Role)[level]
	var existingKey string
	if in.SlotIndex < len(existingSlots) {
		existingKey = existingSlots[in.SlotIndex].SessionKey
	}

	if existingKey != "" && in.ContextBudgetExceeded && in.PreviousIssueID != "" && in.PreviousIssueID != in.IssueID {
		log.Debug(log.CatDispatch, "context budget exceeded, forcing respawn", "issue", in.IssueID, "sessionKey", existingKey)
		existingKey = ""
	}

	if existingKey != "" && existingKey != sessionKey {
		if err := d.Sessions.DeleteSession(ctx, existingKey); err != nil {
			log.Warn(log.CatDispatch, "failed to delete orphaned session", "sessionKey", existingKey, "error", err)
		}
		existingKey = ""
	}

	sessionAction := "spawn"
	if existingKey != "" {
		sessionAction = "send"
	}

	comments, err := d.Tracker.ListComments(ctx, in.IssueID)
	if err != nil {
		log.Warn(log.CatDispatch, "failed to fetch comments, proceeding without them", "issue", in.IssueID, "error", err)
	}

	taskCtx := TaskContext{Comments: comments}
	if d.Workflow.IsFeedbackState(in.FromLabel) {
		if fb, err := d.Tracker.GetPrReviewComments(ctx, in.IssueID); err != nil {
			log.Warn(log.CatDispatch, "failed to fetch pr feedback", "issue", in.IssueID, "error", err)
		} else {
			taskCtx.PRFeedback = fb
		}
	}
	if d.Workflow.HasReviewCheck(in.Role) {
		if status, err := d.Tracker.GetPrStatus(ctx, in.IssueID); err != nil {
			log.Warn(log.CatDispatch, "failed to fetch pr status", "issue", in.IssueID, "error", err)
		} else {
			taskCtx.PRURL = status.URL
			taskCtx.PRDiff = status.Diff
		}
	}

	taskMessage := RenderTaskMessage(in.Project.Name, in.Role, level, in.IssueID, in.IssueTitle, in.IssueDesc,
		in.IssueURL, taskCtx, in.OrchestratorSessionKey, firstChannelID(in.IssueLabels, in.Project.Channels))

	// --- Phase 2: commitment ----------------------------------------------
	if err := d.Tracker.TransitionLabel(ctx, in.IssueID, in.FromLabel, in.ToLabel); err != nil {
		return Output{}, fmt.Errorf("dispatch: label transition failed, issue stays queued: %w", err)
	}

	// --- Phase 3: best-effort post-commitment side effects ----------------
	d.reactEyes(ctx, in.IssueID)
	d.acknowledgeComments(ctx, in.IssueID, comments, taskCtx.PRFeedback)
	d.applyRoleLevelLabel(ctx, in.IssueID, in.Role, level, slotName)

	if d.Workflow.ProducesReviewableWork(in.Role) {
		routing := workflow.ResolveReviewRouting(d.Workflow.ReviewPolicy, level)
		d.replaceLabelFamily(ctx, in.IssueID, []string{"review:"}, string(routing))
	}
	if d.Workflow.TestPolicy != "" {
		routing := workflow.ResolveReviewRouting(d.Workflow.TestPolicy, level)
		d.replaceLabelFamily(ctx, in.IssueID, []string{"test:"}, string(routing))
	}
	if in.InstanceName != "" && !hasLabelPrefix(in.IssueLabels, "owner:") {
		if err := d.Tracker.AddLabel(ctx, in.IssueID, "owner:"+in.InstanceName); err != nil {
			log.Warn(log.CatDispatch, "failed to apply owner label", "issue", in.IssueID, "error", err)
		}
	}

	notify.Dispatch(ctx, d.Notifier, notify.Event{
		Type: notify.EventWorkerStart, Project: in.Project.Name, IssueID: in.IssueID,
		IssueTitle: in.IssueTitle, Role: in.Role, Level: level,
	}, in.IssueLabels, in.Project.Channels)

	if err := d.Sessions.EnsureSession(ctx, sessionKey, model, in.ToLabel, d.Config.Timeouts.SessionPatchMs); err != nil {
		log.Warn(log.CatDispatch, "ensureSession failed", "sessionKey", sessionKey, "error", err)
	}
	if err := d.Sessions.SendToSession(ctx, sessionKey, taskMessage, sessions.SendOptions{
		Model:             model,
		ExtraSystemPrompt: d.RolePrompt,
		TimeoutMs:         d.Config.Timeouts.DispatchMs,
		OrchestratorKey:   in.OrchestratorSessionKey,
	}); err != nil {
		log.Warn(log.CatDispatch, "sendToSession failed", "sessionKey", sessionKey, "error", err)
	}

	if err := registry.ActivateWorker(in.Workspace, in.Project.Slug, in.Role, registry.ActivationParams{
		IssueID: in.IssueID, Level: level, SessionKey: sessionKey, StartTime: time.Now(),
		SlotIndex: in.SlotIndex, PreviousLabel: in.FromLabel,
	}); err != nil {
		log.Warn(log.CatDispatch, "activateWorker failed, will reconcile on next health pass", "issue", in.IssueID, "error", err)
	}

	d.Audit.Record(ctx, "dispatch", map[string]interface{}{
		"attemptId": attemptID, "project": in.Project.Slug, "issue": in.IssueID,
		"role": in.Role, "level": level, "sessionAction": sessionAction,
		"sessionKey": sessionKey, "fromLabel": in.FromLabel, "toLabel": in.ToLabel,
	})
	d.Audit.Record(ctx, "model_selection", map[string]interface{}{
		"attemptId": attemptID, "role": in.Role, "level": level, "model": model,
	})

	return Output{
		SessionAction: sessionAction,
		SessionKey:    sessionKey,
		Level:         level,
		Model:         model,
		Announcement:  taskMessage,
	}, nil
}

func (d Deps) reactEyes(ctx context.Context, issueID string) {
	if err := d.Tracker.ReactToIssue(ctx, issueID, tracker.EyesEmoji); err != nil {
		log.Warn(log.CatDispatch, "react to issue failed", "issue", issueID, "error", err)
	}
	if err := d.Tracker.ReactToPr(ctx, issueID, tracker.EyesEmoji); err != nil {
		log.Debug(log.CatDispatch, "react to pr skipped", "issue", issueID, "error", err)
	}
}

// acknowledgeComments implements step 13: every consumed comment gets an
// "eyes" reaction if it doesn't already have one, routed by kind.
func (d Deps) acknowledgeComments(ctx context.Context, issueID string, comments, reviewComments []tracker.Comment) {
	for _, c := range append(append([]tracker.Comment(nil), comments...), reviewComments...) {
		d.acknowledgeOne(ctx, issueID, c)
	}
}

func (d Deps) acknowledgeOne(ctx context.Context, issueID string, c tracker.Comment) {
	switch c.Kind {
	case tracker.CommentPRReview:
		has, _ := d.Tracker.PrReviewHasReaction(ctx, c.ID, tracker.EyesEmoji)
		if !has {
			_ = d.Tracker.ReactToPrReview(ctx, c.ID, tracker.EyesEmoji)
		}
	case tracker.CommentPRInline, tracker.CommentPRGeneral:
		has, _ := d.Tracker.PrCommentHasReaction(ctx, c.ID, tracker.EyesEmoji)
		if !has {
			_ = d.Tracker.ReactToPrComment(ctx, c.ID, tracker.EyesEmoji)
		}
	default:
		has, _ := d.Tracker.IssueCommentHasReaction(ctx, c.ID, tracker.EyesEmoji)
		if !has {
			_ = d.Tracker.ReactToIssueComment(ctx, c.ID, tracker.EyesEmoji)
		}
	}
	_ = issueID
}

// applyRoleLevelLabel implements step 14: apply role:level:<slotName>,
// ensuring it exists and removing any previous role-level label (one that
// starts with "<configured role>:") on the issue so an issue cycling
// developer->reviewer->tester doesn't accumulate stale role labels.
func (d Deps) applyRoleLevelLabel(ctx context.Context, issueID, role, level, slotName string) {
	label := fmt.Sprintf("%s:%s:%s", role, level, slotName)
	if err := d.Tracker.EnsureLabel(ctx, label, "ededed"); err != nil {
		log.Warn(log.CatDispatch, "ensure role-level label failed", "issue", issueID, "label", label, "error", err)
	}
	prefixes := make([]string, 0, len(d.Config.Roles))
	for r := range d.Config.Roles {
		prefixes = append(prefixes, r+":")
	}
	d.replaceLabelFamily(ctx, issueID, prefixes, label)
}

// replaceLabelFamily removes any label starting with one of prefixes and
// applies newLabel in its place (used for the role-level, review:* and
// test:* families).
func (d Deps) replaceLabelFamily(ctx context.Context, issueID string, prefixes []string, newLabel string) {
	issue, err := d.Tracker.GetIssue(ctx, issueID)
	if err == nil {
		var stale []string
		for _, l := range issue.Labels {
			if hasAnyPrefix(l, prefixes) && l != newLabel {
				stale = append(stale, l)
			}
		}
		if len(stale) > 0 {
			if err := d.Tracker.RemoveLabels(ctx, issueID, stale); err != nil {
				log.Warn(log.CatDispatch, "removing stale label family failed", "issue", issueID, "prefixes", prefixes, "error", err)
			}
		}
	}
	if err := d.Tracker.AddLabel(ctx, issueID, newLabel); err != nil {
		log.Warn(log.CatDispatch, "applying label failed", "issue", issueID, "label", newLabel, "error", err)
	}
}

func hasAnyPrefix(label string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(label, p) {
			return true
		}
	}
	return false
}

func hasLabelPrefix(labels []string, prefix string) bool {
	for _, l := range labels {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

func firstChannelID(issueLabels []string, channels []registry.ChannelBinding) string {
	binding, ok := notify.ResolveNotifyChannel(issueLabels, channels)
	if !ok {
		return ""
	}
	return binding.ChannelID
}
