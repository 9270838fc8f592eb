package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/taskctl/internal/registry"
	"github.com/flowforge/taskctl/internal/sessions"
	"github.com/flowforge/taskctl/internal/tracker"
	"github.com/flowforge/taskctl/internal/workflow"
)

func newChecker(t *testing.T, provider tracker.Provider, sessReg sessions.Registry, autoFix bool) (Checker, string) {
	t.Helper()
	workspace := t.TempDir()
	return Checker{
		Tracker:          provider,
		Sessions:         sessReg,
		Workspace:        workspace,
		Workflow:         workflow.Default(),
		AutoFix:          autoFix,
		StaleWorkerAfter: 12 * time.Hour,
	}, workspace
}

func TestCheckSlot_HealthySlotHasNoAnomaly(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Hour)
	obs := SlotObservation{
		Active: true, IssueID: "1", SessionKey: "k1", StartTime: &start,
		IssueExists: true, CurrentLabel: "Doing", ExpectedActiveLabel: "Doing",
		LiveSessionKeys: map[string]bool{"k1": true}, Known: true,
		Now: now, StaleWorkerAfter: 12 * time.Hour,
	}
	require.Nil(t, CheckSlot("developer", "medior", 0, obs))
}

func TestCheckSlot_IssueGone(t *testing.T) {
	obs := SlotObservation{Active: true, IssueID: "1", IssueExists: false, ExpectedActiveLabel: "Doing", Now: time.Now()}
	a := CheckSlot("developer", "medior", 0, obs)
	require.NotNil(t, a)
	require.Equal(t, CaseIssueGone, a.Case)
	require.Equal(t, SeverityCritical, a.Severity)
}

func TestCheckSlot_LabelMismatch(t *testing.T) {
	obs := SlotObservation{Active: true, IssueID: "1", IssueExists: true, CurrentLabel: "To Review", ExpectedActiveLabel: "Doing", Now: time.Now()}
	a := CheckSlot("developer", "medior", 0, obs)
	require.Equal(t, CaseLabelMismatch, a.Case)
}

func TestCheckSlot_SessionDeadNoKey(t *testing.T) {
	obs := SlotObservation{Active: true, IssueID: "1", IssueExists: true, CurrentLabel: "Doing", ExpectedActiveLabel: "Doing", Now: time.Now()}
	a := CheckSlot("developer", "medior", 0, obs)
	require.Equal(t, CaseSessionDeadNoKey, a.Case)
}

func TestCheckSlot_SessionDeadOutsideGrace(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Hour)
	obs := SlotObservation{
		Active: true, IssueID: "1", SessionKey: "k1", StartTime: &start,
		IssueExists: true, CurrentLabel: "Doing", ExpectedActiveLabel: "Doing",
		LiveSessionKeys: map[string]bool{}, Known: true, Now: now,
	}
	a := CheckSlot("developer", "medior", 0, obs)
	require.Equal(t, CaseSessionDead, a.Case)
}

func TestCheckSlot_SessionDeadSuppressedInsideGrace(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Minute)
	obs := SlotObservation{
		Active: true, IssueID: "1", SessionKey: "k1", StartTime: &start,
		IssueExists: true, CurrentLabel: "Doing", ExpectedActiveLabel: "Doing",
		LiveSessionKeys: map[string]bool{}, Known: true, Now: now,
	}
	require.Nil(t, CheckSlot("developer", "medior", 0, obs))
}

func TestCheckSlot_SessionChecksSuppressedWhenUnknown(t *testing.T) {
	now := time.Now()
	start := now.Add(-48 * time.Hour)
	obs := SlotObservation{
		Active: true, IssueID: "1", SessionKey: "k1", StartTime: &start,
		IssueExists: true, CurrentLabel: "Doing", ExpectedActiveLabel: "Doing",
		Known: false, Now: now, StaleWorkerAfter: time.Hour,
	}
	require.Nil(t, CheckSlot("developer", "medior", 0, obs))
}

func TestCheckSlot_StaleWorker(t *testing.T) {
	now := time.Now()
	start := now.Add(-48 * time.Hour)
	obs := SlotObservation{
		Active: true, IssueID: "1", SessionKey: "k1", StartTime: &start,
		IssueExists: true, CurrentLabel: "Doing", ExpectedActiveLabel: "Doing",
		LiveSessionKeys: map[string]bool{"k1": true}, Known: true, Now: now, StaleWorkerAfter: 12 * time.Hour,
	}
	a := CheckSlot("developer", "medior", 0, obs)
	require.Equal(t, CaseStaleWorker, a.Case)
	require.Equal(t, SeverityWarning, a.Severity)
}

func TestCheckSlot_StuckLabel(t *testing.T) {
	obs := SlotObservation{Active: false, IssueExists: true, CurrentLabel: "Doing", ExpectedActiveLabel: "Doing", Now: time.Now()}
	a := CheckSlot("developer", "medior", 0, obs)
	require.Equal(t, CaseStuckLabel, a.Case)
}

func TestCheckSlot_OrphanIssueID(t *testing.T) {
	obs := SlotObservation{Active: false, IssueID: "1", IssueExists: true, CurrentLabel: "To Review", ExpectedActiveLabel: "Doing", Now: time.Now()}
	a := CheckSlot("developer", "medior", 0, obs)
	require.Equal(t, CaseOrphanIssueID, a.Case)
}

func TestCheckRole_AutoFixDeactivatesOnIssueGone(t *testing.T) {
	ctx := context.Background()
	provider := tracker.NewFakeProvider()
	sessReg := sessions.NewFakeRegistry()
	checker, workspace := newChecker(t, provider, sessReg, true)

	project := &registry.Project{Slug: "acme"}
	require.NoError(t, registry.PutProject(workspace, project))
	require.NoError(t, registry.ActivateWorker(workspace, "acme", "developer", registry.ActivationParams{
		IssueID: "999", Level: "medior", SessionKey: "k1", StartTime: time.Now(),
	}))
	projects, err := registry.ReadProjects(workspace)
	require.NoError(t, err)
	project = projects["acme"]

	anomalies, err := checker.CheckRole(ctx, project, "developer", map[string]bool{}, true)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	require.Equal(t, CaseIssueGone, anomalies[0].Case)

	projects, err = registry.ReadProjects(workspace)
	require.NoError(t, err)
	slot := projects["acme"].Workers["developer"]["medior"][0]
	require.False(t, slot.Active)
	require.Empty(t, slot.SessionKey)
}

func TestCheckRole_StuckLabelRevertsAndClearsIssueID(t *testing.T) {
	ctx := context.Background()
	provider := tracker.NewFakeProvider()
	sessReg := sessions.NewFakeRegistry()
	checker, workspace := newChecker(t, provider, sessReg, true)

	issue, err := provider.CreateIssue(ctx, "Stuck", "body", "Doing", nil)
	require.NoError(t, err)

	project := &registry.Project{Slug: "acme"}
	require.NoError(t, registry.PutProject(workspace, project))
	require.NoError(t, registry.UpdateSlot(workspace, "acme", "developer", "medior", 0, registry.SlotPatch{
		IssueID: &issue.IID,
	}))
	projects, err := registry.ReadProjects(workspace)
	require.NoError(t, err)
	project = projects["acme"]

	anomalies, err := checker.CheckRole(ctx, project, "developer", map[string]bool{}, true)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	require.Equal(t, CaseStuckLabel, anomalies[0].Case)

	updated, err := provider.GetIssue(ctx, issue.IID)
	require.NoError(t, err)
	require.Contains(t, updated.Labels, "To Do")
	require.NotContains(t, updated.Labels, "Doing")

	projects, err = registry.ReadProjects(workspace)
	require.NoError(t, err)
	slot := projects["acme"].Workers["developer"]["medior"][0]
	require.Empty(t, slot.IssueID)
}

func TestScanOrphanedLabels_EmitsAndFixesUnclaimedIssue(t *testing.T) {
	ctx := context.Background()
	provider := tracker.NewFakeProvider()
	sessReg := sessions.NewFakeRegistry()
	checker, workspace := newChecker(t, provider, sessReg, true)

	issue, err := provider.CreateIssue(ctx, "Orphaned", "body", "Doing", nil)
	require.NoError(t, err)

	project := &registry.Project{Slug: "acme"}
	require.NoError(t, registry.PutProject(workspace, project))

	anomalies, err := checker.CheckRole(ctx, project, "developer", map[string]bool{}, true)
	require.NoError(t, err)

	var found bool
	for _, a := range anomalies {
		if a.Case == CaseOrphanedLabel {
			found = true
			require.Equal(t, issue.IID, a.IssueID)
		}
	}
	require.True(t, found)

	updated, err := provider.GetIssue(ctx, issue.IID)
	require.NoError(t, err)
	require.Contains(t, updated.Labels, "To Do")
}

func TestScanOrphanedSessions_DeletesUntrackedSubagentKeys(t *testing.T) {
	ctx := context.Background()
	sessReg := sessions.NewFakeRegistry()
	require.NoError(t, sessReg.EnsureSession(ctx, "agent:main:subagent:acme-developer-medior-cordelia", "sonnet", "Doing", 1000))
	require.NoError(t, sessReg.EnsureSession(ctx, "agent:main:subagent:acme-developer-medior-beatrice", "sonnet", "Doing", 1000))
	require.NoError(t, sessReg.EnsureSession(ctx, "other-kind-of-key", "sonnet", "Doing", 1000))

	projects := map[string]*registry.Project{
		"acme": {
			Slug: "acme",
			Workers: map[string]registry.RoleWorker{
				"developer": {
					"medior": []registry.Slot{{Active: true, SessionKey: "agent:main:subagent:acme-developer-medior-cordelia"}},
				},
			},
		},
	}

	deleted, err := ScanOrphanedSessions(ctx, sessReg, projects)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	keys, known, err := sessReg.ListLiveSessionKeys(ctx)
	require.NoError(t, err)
	require.True(t, known)
	require.Contains(t, keys, "agent:main:subagent:acme-developer-medior-cordelia")
	require.NotContains(t, keys, "agent:main:subagent:acme-developer-medior-beatrice")
	require.Contains(t, keys, "other-kind-of-key")
}

func TestScanOrphanedSessions_SkipsWhenLivenessUnknown(t *testing.T) {
	ctx := context.Background()
	sessReg := sessions.NewFakeRegistry()
	sessReg.SetUnknown(true)

	deleted, err := ScanOrphanedSessions(ctx, sessReg, map[string]*registry.Project{})
	require.NoError(t, err)
	require.Equal(t, 0, deleted)
}
