package heartbeat

import (
	"context"

	"github.com/flowforge/taskctl/internal/config"
	"github.com/flowforge/taskctl/internal/log"
	"github.com/flowforge/taskctl/internal/registry"
	"github.com/flowforge/taskctl/internal/workflow"
)

// runAction interprets one built-in workflow.Action fired by a review-pass
// transition. Every failure here is logged and swallowed: by the time an
// action runs, the label transition it accompanies is still pending, and a
// side effect misfiring (a merge that was already done, a pull that hit a
// conflict) shouldn't block the label move itself.
func (e *Engine) runAction(ctx context.Context, project *registry.Project, cfg config.ResolvedConfig, issueID string, action workflow.Action) {
	switch action {
	case workflow.ActionMergePR:
		if err := e.deps.Tracker.MergePr(ctx, issueID); err != nil {
			log.Warn(log.CatHeartbeat, "mergePr action failed", "project", project.Slug, "issue", issueID, "error", err)
		}
	case workflow.ActionGitPull:
		if err := e.deps.GitPuller.PullBaseBranch(ctx, project.Repo, project.BaseBranch, cfg.Timeouts.GitPullMs); err != nil {
			log.Warn(log.CatHeartbeat, "gitPull action failed", "project", project.Slug, "error", err)
		}
	case workflow.ActionCloseIssue:
		if err := e.deps.Tracker.CloseIssue(ctx, issueID); err != nil {
			log.Warn(log.CatHeartbeat, "closeIssue action failed", "project", project.Slug, "issue", issueID, "error", err)
		}
	case workflow.ActionReopen:
		if err := e.deps.Tracker.ReopenIssue(ctx, issueID); err != nil {
			log.Warn(log.CatHeartbeat, "reopenIssue action failed", "project", project.Slug, "issue", issueID, "error", err)
		}
	case workflow.ActionDetectPR:
		// PR status is always queried fresh via GetPrStatus at the top of
		// the next review pass; nothing to precompute here.
		log.Debug(log.CatHeartbeat, "detectPr action observed, no-op", "project", project.Slug, "issue", issueID)
	default:
		log.Debug(log.CatHeartbeat, "unrecognized workflow action, no-op", "action", action, "project", project.Slug, "issue", issueID)
	}
}
