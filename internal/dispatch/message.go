package dispatch

import (
	"fmt"
	"strings"

	"github.com/flowforge/taskctl/internal/tracker"
)

// TaskContext carries the best-effort context gathered in Phase 1 (spec
// §4.5 steps 6-8): issue comments, PR feedback/diff when applicable, and
// any attachment references. Every field is optional — failures fetching
// any of them are non-fatal and simply leave the field empty.
type TaskContext struct {
	Comments    []tracker.Comment
	PRFeedback  []tracker.Comment
	PRDiff      string
	PRURL       string
	Attachments []string
}

// RenderTaskMessage builds the structured task brief sent to a session
// (spec §4.5 step 9): project, role, issue, comments, PR context/feedback,
// attachments, concluded with the orchestrator session key and channel id
// so the worker can call back.
func RenderTaskMessage(project, role, level, issueID, issueTitle, issueDescription, issueURL string, ctx TaskContext, orchestratorKey, channelID string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Task: %s (#%s)\n\n", issueTitle, issueID)
	fmt.Fprintf(&b, "Project: %s\nRole: %s (%s)\nIssue: %s\n\n", project, role, level, issueURL)
	b.WriteString(issueDescription)
	b.WriteString("\n")

	if len(ctx.Comments) > 0 {
		b.WriteString("\n## Comments\n")
		for _, c := range ctx.Comments {
			fmt.Fprintf(&b, "- %s: %s\n", c.Author, c.Body)
		}
	}

	if ctx.PRURL != "" {
		fmt.Fprintf(&b, "\n## Pull request\n%s\n", ctx.PRURL)
	}
	if ctx.PRDiff != "" {
		fmt.Fprintf(&b, "\n## Diff\n```diff\n%s\n```\n", ctx.PRDiff)
	}
	if len(ctx.PRFeedback) > 0 {
		b.WriteString("\n## Review feedback\n")
		for _, c := range ctx.PRFeedback {
			fmt.Fprintf(&b, "- %s (%s): %s\n", c.Author, c.State, c.Body)
		}
	}
	if len(ctx.Attachments) > 0 {
		b.WriteString("\n## Attachments\n")
		for _, a := range ctx.Attachments {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	fmt.Fprintf(&b, "\n---\norchestratorKey: %s\nchannelId: %s\n", orchestratorKey, channelID)
	return b.String()
}
