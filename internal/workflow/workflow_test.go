package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	wf := Default()
	require.NoError(t, wf.Validate())
}

func TestQueueLabels_OrderedByPriorityDescending(t *testing.T) {
	wf := Default()
	labels := wf.QueueLabels("developer")
	require.Equal(t, []string{"To Improve", "To Do"}, labels)
}

func TestActiveLabel_ExactlyOnePerRole(t *testing.T) {
	wf := Default()
	label, err := wf.ActiveLabel("developer")
	require.NoError(t, err)
	require.Equal(t, "Doing", label)

	_, err = wf.ActiveLabel("nonexistent-role")
	require.Error(t, err)
}

func TestRevertLabel_MatchesPickupTransition(t *testing.T) {
	wf := Default()
	label, err := wf.RevertLabel("developer")
	require.NoError(t, err)
	require.Equal(t, "To Do", label)

	label, err = wf.RevertLabel("tester")
	require.NoError(t, err)
	require.Equal(t, "To Test", label)
}

func TestCurrentStateLabel(t *testing.T) {
	wf := Default()

	require.Equal(t, "Doing", wf.CurrentStateLabel([]string{"Doing", "developer:medior:cordelia"}))
	require.Equal(t, "", wf.CurrentStateLabel([]string{"developer:medior:cordelia"}))

	// Violated workflow (two state labels present): first by declaration order wins.
	require.Equal(t, "To Do", wf.CurrentStateLabel([]string{"Doing", "To Do"}))
}

func TestCompletionRule(t *testing.T) {
	wf := Default()

	rule, err := wf.CompletionRule("developer", "done")
	require.NoError(t, err)
	require.NotNil(t, rule)
	require.Equal(t, "Doing", rule.From)
	require.Equal(t, "To Review", rule.To)
	require.Equal(t, []Action{ActionDetectPR}, rule.Actions)

	rule, err = wf.CompletionRule("developer", "blocked")
	require.NoError(t, err)
	require.NotNil(t, rule)
	require.Equal(t, "Refining", rule.To)

	rule, err = wf.CompletionRule("developer", "nonexistent-result")
	require.NoError(t, err)
	require.Nil(t, rule)
}

func TestIsFeedbackState(t *testing.T) {
	wf := Default()
	require.True(t, wf.IsFeedbackState("To Improve"))
	require.False(t, wf.IsFeedbackState("To Do"))
}

func TestHasReviewCheck(t *testing.T) {
	wf := Default()
	require.True(t, wf.HasReviewCheck("reviewer"))
	require.False(t, wf.HasReviewCheck("developer"))
}

func TestProducesReviewableWork(t *testing.T) {
	wf := Default()
	require.True(t, wf.ProducesReviewableWork("developer"))
	require.False(t, wf.ProducesReviewableWork("tester"))
}

func TestResolveReviewRouting(t *testing.T) {
	require.Equal(t, RouteReviewHuman, ResolveReviewRouting(PolicyHuman, "junior"))
	require.Equal(t, RouteReviewAgent, ResolveReviewRouting(PolicyAgent, "senior"))
	require.Equal(t, RouteReviewHuman, ResolveReviewRouting(PolicyAuto, "senior"))
	require.Equal(t, RouteReviewAgent, ResolveReviewRouting(PolicyAuto, "medior"))
	require.Equal(t, RouteTestSkip, ResolveReviewRouting(PolicySkip, "senior"))
}

func TestValidate_RejectsUndefinedInitial(t *testing.T) {
	wf := Workflow{Initial: "missing", States: map[string]State{}}
	require.Error(t, wf.Validate())
}

func TestValidate_RejectsDuplicateLabels(t *testing.T) {
	wf := Workflow{
		Initial: "a",
		States: map[string]State{
			"a": {Type: StateHold, Label: "Same"},
			"b": {Type: StateHold, Label: "Same"},
		},
	}
	require.Error(t, wf.Validate())
}

func TestValidate_RejectsQueueWithoutRole(t *testing.T) {
	wf := Workflow{
		Initial: "a",
		States: map[string]State{
			"a": {Type: StateQueue, Label: "A"},
		},
	}
	require.Error(t, wf.Validate())
}
