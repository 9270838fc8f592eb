// Package workflow provides the declarative, data-driven workflow state
// machine that drives issues through labelled states. A Workflow is a pure
// value: every function in this package reads a Workflow and never performs
// I/O or mutates the graph.
package workflow

import (
	"fmt"
	"sort"
)

// StateType classifies a state's role in the graph.
type StateType string

const (
	StateQueue    StateType = "queue"
	StateActive   StateType = "active"
	StateHold     StateType = "hold"
	StateTerminal StateType = "terminal"
)

// ReviewPolicy governs how the workflow routes review/test work.
type ReviewPolicy string

const (
	PolicyHuman ReviewPolicy = "human"
	PolicyAgent ReviewPolicy = "agent"
	PolicyAuto  ReviewPolicy = "auto"
	PolicySkip  ReviewPolicy = "skip"
)

// Check names an external condition the review poller examines for a state.
type Check string

const (
	CheckPRApproved Check = "prApproved"
	CheckPRMerged   Check = "prMerged"
)

// Action names a side effect a transition performs. Actions drawn from the
// built-in set are interpreted by internal/heartbeat's action dispatcher;
// any other string is a user-extensible no-op the dispatcher simply logs.
type Action string

const (
	ActionGitPull    Action = "gitPull"
	ActionDetectPR   Action = "detectPr"
	ActionMergePR    Action = "mergePr"
	ActionCloseIssue Action = "closeIssue"
	ActionReopen     Action = "reopenIssue"
)

// Event names an input that drives a transition.
type Event string

const (
	EventPickup            Event = "PICKUP"
	EventComplete          Event = "COMPLETE"
	EventReview            Event = "REVIEW"
	EventApproved          Event = "APPROVED"
	EventChangesRequested  Event = "CHANGES_REQUESTED"
	EventMergeConflict     Event = "MERGE_CONFLICT"
	EventMergeFailed       Event = "MERGE_FAILED"
	EventPass              Event = "PASS"
	EventFail              Event = "FAIL"
	EventRefine            Event = "REFINE"
	EventBlocked           Event = "BLOCKED"
	EventApprove           Event = "APPROVE"
	EventReject            Event = "REJECT"
)

// Transition describes the target state and side-effect actions fired when
// an event is accepted from a given state.
type Transition struct {
	Target  string   `yaml:"target" json:"target"`
	Actions []Action `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// State is one node in the workflow graph.
type State struct {
	Type     StateType            `yaml:"type" json:"type"`
	Label    string               `yaml:"label" json:"label"`
	Color    string               `yaml:"color" json:"color"`
	Role     string               `yaml:"role,omitempty" json:"role,omitempty"`
	Priority int                  `yaml:"priority,omitempty" json:"priority,omitempty"`
	Check    Check                `yaml:"check,omitempty" json:"check,omitempty"`
	On       map[Event]Transition `yaml:"on,omitempty" json:"on,omitempty"`
}

// Workflow is a static graph of states and transitions.
type Workflow struct {
	Initial      string           `yaml:"initial" json:"initial"`
	ReviewPolicy ReviewPolicy     `yaml:"reviewPolicy" json:"reviewPolicy"`
	TestPolicy   ReviewPolicy     `yaml:"testPolicy,omitempty" json:"testPolicy,omitempty"`
	States       map[string]State `yaml:"states" json:"states"`

	// declOrder records the order states were declared in, used to break
	// ties deterministically (e.g. spec §4.1's "first by state-declaration
	// order"). Builders that construct a Workflow from a literal (Default,
	// config merge) set this; workflows built ad hoc for tests fall back
	// to a sorted key order.
	declOrder []string
}

// WithDeclOrder returns a copy of w with its declaration order set. Used by
// config and tests that need deterministic tie-breaking without relying on
// Go's randomized map iteration order.
func (w Workflow) WithDeclOrder(order []string) Workflow {
	w.declOrder = append([]string(nil), order...)
	return w
}

// Validate checks the invariants from spec §3.1: the initial state and every
// transition target must reference a defined state, every queue/active
// state must carry a role, and labels must be unique.
func (w Workflow) Validate() error {
	if _, ok := w.States[w.Initial]; !ok {
		return fmt.Errorf("workflow: initial state %q is not defined", w.Initial)
	}

	seenLabels := make(map[string]string, len(w.States))
	for key, st := range w.States {
		if st.Label == "" {
			return fmt.Errorf("workflow: state %q has no label", key)
		}
		if other, dup := seenLabels[st.Label]; dup {
			return fmt.Errorf("workflow: label %q used by both %q and %q", st.Label, other, key)
		}
		seenLabels[st.Label] = key

		if (st.Type == StateQueue || st.Type == StateActive) && st.Role == "" {
			return fmt.Errorf("workflow: state %q is %s but has no role", key, st.Type)
		}

		for event, tr := range st.On {
			if _, ok := w.States[tr.Target]; !ok {
				return fmt.Errorf("workflow: state %q event %q targets undefined state %q", key, event, tr.Target)
			}
		}
	}
	return nil
}

// DeclOrder returns a copy of the declaration order used to break ties
// (spec §4.1's "first by state-declaration order"), falling back to sorted
// keys for workflows that never called WithDeclOrder.
func (w Workflow) DeclOrder() []string {
	return append([]string(nil), w.stateOrder()...)
}

// stateOrder returns state keys in a stable order (declaration order is not
// preserved by a Go map, so we fall back to a deterministic lexical order
// for any function that must pick "the first by state-declaration order").
// Workflows constructed via Default() record their declaration order
// separately; ad hoc workflows fall back to sorted keys.
func (w Workflow) stateOrder() []string {
	if w.declOrder != nil {
		return w.declOrder
	}
	keys := make([]string, 0, len(w.States))
	for k := range w.States {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
