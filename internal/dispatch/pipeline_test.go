package dispatch

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/taskctl/internal/config"
	"github.com/flowforge/taskctl/internal/notify"
	"github.com/flowforge/taskctl/internal/registry"
	"github.com/flowforge/taskctl/internal/sessions"
	"github.com/flowforge/taskctl/internal/tracker"
	"github.com/flowforge/taskctl/internal/workflow"
)

func testDeps(t *testing.T) (Deps, *tracker.FakeProvider, *sessions.FakeRegistry, *notify.FakeNotifier, *fakeAudit) {
	t.Helper()
	cfg := config.Default()
	resolved := config.ResolvedConfig{
		InstanceName: "daemon-1",
		Roles:        cfg.Roles,
		Timeouts:     cfg.Timeouts,
		Heartbeat:    cfg.Heartbeat,
		Workflow:     workflow.Default(),
	}

	provider := tracker.NewFakeProvider()
	sessReg := sessions.NewFakeRegistry()
	notifier := notify.NewFakeNotifier()
	audit := &fakeAudit{}

	return Deps{
		Tracker:    provider,
		Sessions:   sessReg,
		Notifier:   notifier,
		Audit:      audit,
		Config:     resolved,
		Workflow:   resolved.Workflow,
		RolePrompt: "You are a developer.",
	}, provider, sessReg, notifier, audit
}

type fakeAudit struct {
	records []auditRecord
}

type auditRecord struct {
	kind   string
	fields map[string]interface{}
}

func (f *fakeAudit) Record(_ context.Context, kind string, fields map[string]interface{}) {
	f.records = append(f.records, auditRecord{kind: kind, fields: fields})
}

func testProject(t *testing.T, workspace string) *registry.Project {
	t.Helper()
	p := &registry.Project{
		Slug:     "acme",
		Name:     "Acme",
		Provider: "github",
		Channels: []registry.ChannelBinding{{ChannelID: "c1", Channel: "slack-channel"}},
	}
	require.NoError(t, registry.PutProject(workspace, p))
	return p
}

func TestDispatch_SpawnsNewSessionAndCommitsLabel(t *testing.T) {
	ctx := context.Background()
	deps, provider, sess, notifier, audit := testDeps(t)
	workspace := t.TempDir()
	project := testProject(t, workspace)

	issue, err := provider.CreateIssue(ctx, "Fix the thing", "it is broken", "To Do", nil)
	require.NoError(t, err)

	out, err := Dispatch(ctx, deps, Input{
		Workspace:    workspace,
		Project:      project,
		IssueID:      issue.IID,
		IssueTitle:   issue.Title,
		IssueDesc:    issue.Body,
		IssueURL:     issue.URL,
		IssueLabels:  []string{"To Do"},
		Role:         "developer",
		Level:        "medior",
		FromLabel:    "To Do",
		ToLabel:      "Doing",
		InstanceName: "daemon-1",
	})
	require.NoError(t, err)
	require.Equal(t, "spawn", out.SessionAction)
	require.Equal(t, "sonnet", out.Model)
	require.NotEmpty(t, out.SessionKey)

	updated, err := provider.GetIssue(ctx, issue.IID)
	require.NoError(t, err)
	require.Contains(t, updated.Labels, "Doing")
	require.NotContains(t, updated.Labels, "To Do")
	require.Contains(t, updated.Labels, "owner:daemon-1")

	require.Len(t, sess.MessagesFor(out.SessionKey), 1)
	require.Contains(t, sess.MessagesFor(out.SessionKey)[0], issue.Title)

	require.Len(t, notifier.Out, 1)
	require.Contains(t, notifier.Out[0].Message, "picked up")

	projects, err := registry.ReadProjects(workspace)
	require.NoError(t, err)
	slot := projects["acme"].Workers["developer"]["medior"][0]
	require.True(t, slot.Active)
	require.Equal(t, issue.IID, slot.IssueID)

	var kinds []string
	for _, r := range audit.records {
		kinds = append(kinds, r.kind)
	}
	require.Contains(t, kinds, "dispatch")
	require.Contains(t, kinds, "model_selection")
}

func TestDispatch_ReusesExistingSessionAsSend(t *testing.T) {
	ctx := context.Background()
	deps, provider, _, _, _ := testDeps(t)
	workspace := t.TempDir()
	project := testProject(t, workspace)

	issue, err := provider.CreateIssue(ctx, "Improve docs", "add examples", "To Improve", nil)
	require.NoError(t, err)

	slotName := SlotName("developer", "medior", 0)
	existingKey := DeterministicSessionKey("unknown", project.Name, "developer", "medior", slotName)
	require.NoError(t, registry.ActivateWorker(workspace, project.Slug, "developer", registry.ActivationParams{
		IssueID:    "other-issue",
		Level:      "medior",
		SessionKey: existingKey,
	}))

	out, err := Dispatch(ctx, deps, Input{
		Workspace:   workspace,
		Project:     project,
		IssueID:     issue.IID,
		IssueTitle:  issue.Title,
		IssueDesc:   issue.Body,
		IssueLabels: []string{"To Improve"},
		Role:        "developer",
		Level:       "medior",
		FromLabel:   "To Improve",
		ToLabel:     "Doing",
	})
	require.NoError(t, err)
	require.Equal(t, "send", out.SessionAction)
	require.Equal(t, existingKey, out.SessionKey)
}

func TestDispatch_ContextBudgetExceededForcesRespawn(t *testing.T) {
	ctx := context.Background()
	deps, provider, sess, _, _ := testDeps(t)
	workspace := t.TempDir()
	project := testProject(t, workspace)

	issue, err := provider.CreateIssue(ctx, "New task", "body", "To Do", nil)
	require.NoError(t, err)

	slotName := SlotName("developer", "medior", 0)
	existingKey := DeterministicSessionKey("unknown", project.Name, "developer", "medior", slotName)
	require.NoError(t, sess.EnsureSession(ctx, existingKey, "sonnet", "To Do", 1000))
	require.NoError(t, registry.ActivateWorker(workspace, project.Slug, "developer", registry.ActivationParams{
		IssueID:    "stale-issue",
		Level:      "medior",
		SessionKey: existingKey,
	}))

	out, err := Dispatch(ctx, deps, Input{
		Workspace:             workspace,
		Project:               project,
		IssueID:                issue.IID,
		IssueTitle:             issue.Title,
		IssueDesc:              issue.Body,
		IssueLabels:            []string{"To Do"},
		Role:                   "developer",
		Level:                  "medior",
		FromLabel:               "To Do",
		ToLabel:                 "Doing",
		PreviousIssueID:         "stale-issue",
		ContextBudgetExceeded:   true,
	})
	require.NoError(t, err)
	require.Equal(t, "spawn", out.SessionAction)
	require.Equal(t, existingKey, out.SessionKey)
}

func TestDispatch_AbortsQueuedWhenLabelTransitionFails(t *testing.T) {
	ctx := context.Background()
	deps, provider, _, _, _ := testDeps(t)
	workspace := t.TempDir()
	project := testProject(t, workspace)

	_, err := Dispatch(ctx, deps, Input{
		Workspace:  workspace,
		Project:    project,
		IssueID:    "missing-issue",
		IssueTitle: "ghost",
		Role:       "developer",
		Level:      "medior",
		FromLabel:  "To Do",
		ToLabel:    "Doing",
	})
	require.Error(t, err)
	_ = provider
}

func TestDispatch_AppliesReviewRoutingLabelOnReviewableWork(t *testing.T) {
	ctx := context.Background()
	deps, provider, _, _, _ := testDeps(t)
	workspace := t.TempDir()
	project := testProject(t, workspace)

	issue, err := provider.CreateIssue(ctx, "Ship feature", "body", "To Do", nil)
	require.NoError(t, err)

	out, err := Dispatch(ctx, deps, Input{
		Workspace:   workspace,
		Project:     project,
		IssueID:     issue.IID,
		IssueTitle:  issue.Title,
		IssueDesc:   issue.Body,
		IssueLabels: []string{"To Do"},
		Role:        "developer",
		Level:       "senior",
		FromLabel:   "To Do",
		ToLabel:     "Doing",
	})
	require.NoError(t, err)
	require.Equal(t, "opus", out.Model)

	updated, err := provider.GetIssue(ctx, issue.IID)
	require.NoError(t, err)
	require.Contains(t, updated.Labels, "review:human")
}

func TestDispatch_ReplacesStaleRoleLabelOnReassignment(t *testing.T) {
	ctx := context.Background()
	deps, provider, _, _, _ := testDeps(t)
	workspace := t.TempDir()
	project := testProject(t, workspace)

	issue, err := provider.CreateIssue(ctx, "Ship feature", "body", "To Do", nil)
	require.NoError(t, err)
	require.NoError(t, provider.AddLabel(ctx, issue.IID, "developer:medior:rosalind"))

	_, err = Dispatch(ctx, deps, Input{
		Workspace:   workspace,
		Project:     project,
		IssueID:     issue.IID,
		IssueTitle:  issue.Title,
		IssueDesc:   issue.Body,
		IssueLabels: []string{"To Do", "developer:medior:rosalind"},
		Role:        "reviewer",
		Level:       "senior",
		FromLabel:   "To Do",
		ToLabel:     "Doing",
		SlotIndex:   0,
	})
	require.NoError(t, err)

	updated, err := provider.GetIssue(ctx, issue.IID)
	require.NoError(t, err)
	require.NotContains(t, updated.Labels, "developer:medior:rosalind", "stale role:* label must be removed on reassignment")

	var roleLabels []string
	for _, l := range updated.Labels {
		if strings.HasPrefix(l, "reviewer:") {
			roleLabels = append(roleLabels, l)
		}
	}
	require.Len(t, roleLabels, 1, "exactly one role:* label should remain after reassignment")
}
