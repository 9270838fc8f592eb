package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// StateLabels returns the set of every label defined by the workflow.
func (w Workflow) StateLabels() map[string]struct{} {
	labels := make(map[string]struct{}, len(w.States))
	for _, st := range w.States {
		labels[st.Label] = struct{}{}
	}
	return labels
}

// QueueLabels returns the queue-state labels for role, ordered by priority
// descending (ties broken by declaration order for determinism).
func (w Workflow) QueueLabels(role string) []string {
	type entry struct {
		key      string
		label    string
		priority int
	}
	var entries []entry
	for _, key := range w.stateOrder() {
		st := w.States[key]
		if st.Type == StateQueue && st.Role == role {
			entries = append(entries, entry{key, st.Label, st.Priority})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority > entries[j].priority
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.label
	}
	return out
}

// ActiveLabel returns the single active-state label for role. Per spec
// §4.1 exactly one active state exists per role; any other count is an
// error.
func (w Workflow) ActiveLabel(role string) (string, error) {
	var found []string
	for _, key := range w.stateOrder() {
		st := w.States[key]
		if st.Type == StateActive && st.Role == role {
			found = append(found, st.Label)
		}
	}
	if len(found) != 1 {
		return "", fmt.Errorf("workflow: expected exactly one active state for role %q, found %d", role, len(found))
	}
	return found[0], nil
}

// activeStateKey returns the state key (not label) of role's active state.
func (w Workflow) activeStateKey(role string) (string, error) {
	var found []string
	for _, key := range w.stateOrder() {
		st := w.States[key]
		if st.Type == StateActive && st.Role == role {
			found = append(found, key)
		}
	}
	if len(found) != 1 {
		return "", fmt.Errorf("workflow: expected exactly one active state for role %q, found %d", role, len(found))
	}
	return found[0], nil
}

// RevertLabel returns the queue label whose PICKUP transition targets the
// active state for role — the label an active slot reverts to on failure
// when it has no recorded previousLabel.
func (w Workflow) RevertLabel(role string) (string, error) {
	activeKey, err := w.activeStateKey(role)
	if err != nil {
		return "", err
	}
	for _, key := range w.stateOrder() {
		st := w.States[key]
		if st.Type != StateQueue || st.Role != role {
			continue
		}
		if tr, ok := st.On[EventPickup]; ok && tr.Target == activeKey {
			return st.Label, nil
		}
	}
	return "", fmt.Errorf("workflow: no queue state for role %q has a PICKUP transition to %q", role, activeKey)
}

// CurrentStateLabel returns the unique label in issueLabels that is also a
// workflow state label. If more than one workflow label is present the
// workflow is considered violated; the first by state-declaration order is
// returned (spec §4.1). Returns "" if none are present.
func (w Workflow) CurrentStateLabel(issueLabels []string) string {
	present := make(map[string]struct{}, len(issueLabels))
	for _, l := range issueLabels {
		present[l] = struct{}{}
	}
	for _, key := range w.stateOrder() {
		st := w.States[key]
		if _, ok := present[st.Label]; ok {
			return st.Label
		}
	}
	return ""
}

// CompletionRule is the result of resolving a worker's reported outcome
// against the role's active state: the label transition (and its actions)
// to apply.
type CompletionRule struct {
	From    string
	To      string
	Actions []Action
}

// CompletionRule maps a worker-reported result to the transition it fires.
// "done" maps to COMPLETE; any other result maps to its upper-cased self as
// an event name. Returns nil, nil if the active state has no such
// transition (result not accepted from this state).
func (w Workflow) CompletionRule(role, result string) (*CompletionRule, error) {
	activeKey, err := w.activeStateKey(role)
	if err != nil {
		return nil, err
	}
	st := w.States[activeKey]

	event := Event(strings.ToUpper(result))
	if strings.EqualFold(result, "done") {
		event = EventComplete
	}

	tr, ok := st.On[event]
	if !ok {
		return nil, nil
	}
	return &CompletionRule{
		From:    st.Label,
		To:      w.States[tr.Target].Label,
		Actions: tr.Actions,
	}, nil
}

// IsFeedbackState reports whether some transition with a feedback event
// (CHANGES_REQUESTED, MERGE_CONFLICT, MERGE_FAILED, REJECT, FAIL) targets
// the state whose label is label.
func (w Workflow) IsFeedbackState(label string) bool {
	feedbackEvents := map[Event]struct{}{
		EventChangesRequested: {},
		EventMergeConflict:    {},
		EventMergeFailed:      {},
		EventReject:           {},
		EventFail:             {},
	}
	targetKey := w.keyForLabel(label)
	if targetKey == "" {
		return false
	}
	for _, st := range w.States {
		for event, tr := range st.On {
			if _, ok := feedbackEvents[event]; ok && tr.Target == targetKey {
				return true
			}
		}
	}
	return false
}

// HasReviewCheck reports whether any state for role has Check set.
func (w Workflow) HasReviewCheck(role string) bool {
	for _, st := range w.States {
		if st.Role == role && st.Check != "" {
			return true
		}
	}
	return false
}

// ProducesReviewableWork reports whether role's active state has any
// transition targeting a state with Check set.
func (w Workflow) ProducesReviewableWork(role string) bool {
	activeKey, err := w.activeStateKey(role)
	if err != nil {
		return false
	}
	st := w.States[activeKey]
	for _, tr := range st.On {
		if target, ok := w.States[tr.Target]; ok && target.Check != "" {
			return true
		}
	}
	return false
}

// ReviewRouting is the label applied to an issue to steer it towards human
// or agent review (or skip testing).
type ReviewRouting string

const (
	RouteReviewHuman ReviewRouting = "review:human"
	RouteReviewAgent ReviewRouting = "review:agent"
	RouteTestSkip    ReviewRouting = "test:skip"
)

// ResolveReviewRouting resolves policy + level to a routing label per
// spec §4.1: human policy always routes to a human; agent policy always
// routes to an agent; auto policy routes to a human iff level == "senior"
// and to an agent otherwise; skip policy (valid for test routing only)
// produces "test:skip".
func ResolveReviewRouting(policy ReviewPolicy, level string) ReviewRouting {
	switch policy {
	case PolicyHuman:
		return RouteReviewHuman
	case PolicyAgent:
		return RouteReviewAgent
	case PolicySkip:
		return RouteTestSkip
	case PolicyAuto:
		if level == "senior" {
			return RouteReviewHuman
		}
		return RouteReviewAgent
	default:
		return RouteReviewAgent
	}
}

// StatesWithCheck returns the labels of every state carrying the given
// check, in declaration order — the set the review pass polls each tick.
func (w Workflow) StatesWithCheck(check Check) []string {
	var labels []string
	for _, key := range w.stateOrder() {
		st := w.States[key]
		if st.Check == check {
			labels = append(labels, st.Label)
		}
	}
	return labels
}

// Transition resolves the transition fired by event from the state labelled
// label, returning its target label and actions. ok is false if label isn't
// a known state or has no such transition.
func (w Workflow) Transition(label string, event Event) (target string, actions []Action, ok bool) {
	key := w.keyForLabel(label)
	if key == "" {
		return "", nil, false
	}
	st := w.States[key]
	tr, found := st.On[event]
	if !found {
		return "", nil, false
	}
	return w.States[tr.Target].Label, tr.Actions, true
}

func (w Workflow) keyForLabel(label string) string {
	for key, st := range w.States {
		if st.Label == label {
			return key
		}
	}
	return ""
}
