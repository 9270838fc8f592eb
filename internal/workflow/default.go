package workflow

// Default returns the bit-exact default workflow from spec §6.4: planning
// (hold) -> todo -> doing -> toReview -> toTest -> done, with toImprove /
// refining feedback loops and an optional toResearch -> researching ->
// planning architect pre-stage. It is constructible from this data literal
// alone, mirroring the way internal/config.DefaultColumns() and
// DefaultViews() hand-build their literal configuration values.
func Default() Workflow {
	order := []string{
		"planning", "todo", "doing", "toReview", "reviewing",
		"toTest", "testing", "done", "toImprove", "refining",
		"toResearch", "researching",
	}

	states := map[string]State{
		"planning": {
			Type:  StateHold,
			Label: "Planning",
			Color: "#9E9E9E",
			On: map[Event]Transition{
				EventApprove: {Target: "todo"},
			},
		},
		"todo": {
			Type:     StateQueue,
			Label:    "To Do",
			Color:    "#42A5F5",
			Role:     "developer",
			Priority: 1,
			On: map[Event]Transition{
				EventPickup: {Target: "doing"},
			},
		},
		"doing": {
			Type:  StateActive,
			Label: "Doing",
			Color: "#FFA726",
			Role:  "developer",
			On: map[Event]Transition{
				EventComplete: {Target: "toReview", Actions: []Action{ActionDetectPR}},
				EventBlocked:  {Target: "refining"},
			},
		},
		"toReview": {
			Type:     StateQueue,
			Label:    "To Review",
			Color:    "#AB47BC",
			Role:     "reviewer",
			Priority: 2,
			Check:    CheckPRApproved,
			On: map[Event]Transition{
				EventPickup:           {Target: "reviewing"},
				EventApproved:         {Target: "toTest", Actions: []Action{ActionMergePR, ActionGitPull}},
				EventMergeFailed:      {Target: "toImprove"},
				EventChangesRequested: {Target: "toImprove"},
				EventMergeConflict:    {Target: "toImprove"},
			},
		},
		"reviewing": {
			Type:  StateActive,
			Label: "Reviewing",
			Color: "#8E24AA",
			Role:  "reviewer",
			On: map[Event]Transition{
				EventApprove: {Target: "toTest", Actions: []Action{ActionMergePR, ActionGitPull}},
				EventReject:  {Target: "toImprove"},
				EventBlocked: {Target: "refining"},
			},
		},
		"toTest": {
			Type:     StateQueue,
			Label:    "To Test",
			Color:    "#26C6DA",
			Role:     "tester",
			Priority: 2,
			On: map[Event]Transition{
				EventPickup: {Target: "testing"},
			},
		},
		"testing": {
			Type:  StateActive,
			Label: "Testing",
			Color: "#00ACC1",
			Role:  "tester",
			On: map[Event]Transition{
				EventPass:   {Target: "done", Actions: []Action{ActionCloseIssue}},
				EventFail:   {Target: "toImprove", Actions: []Action{ActionReopen}},
				EventRefine: {Target: "refining"},
				EventBlocked: {Target: "refining"},
			},
		},
		"done": {
			Type:  StateTerminal,
			Label: "Done",
			Color: "#66BB6A",
		},
		"toImprove": {
			Type:     StateQueue,
			Label:    "To Improve",
			Color:    "#EF5350",
			Role:     "developer",
			Priority: 3,
			On: map[Event]Transition{
				EventPickup: {Target: "doing"},
			},
		},
		"refining": {
			Type:  StateHold,
			Label: "Refining",
			Color: "#BDBDBD",
			On: map[Event]Transition{
				EventApprove: {Target: "todo"},
			},
		},
		"toResearch": {
			Type:     StateQueue,
			Label:    "To Research",
			Color:    "#5C6BC0",
			Role:     "architect",
			Priority: 1,
			On: map[Event]Transition{
				EventPickup: {Target: "researching"},
			},
		},
		"researching": {
			Type:  StateActive,
			Label: "Researching",
			Color: "#3949AB",
			Role:  "architect",
			On: map[Event]Transition{
				EventComplete: {Target: "planning"},
				EventBlocked:  {Target: "refining"},
			},
		},
	}

	return Workflow{
		Initial:      "planning",
		ReviewPolicy: PolicyAuto,
		States:       states,
	}.WithDeclOrder(order)
}
