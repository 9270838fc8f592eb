// Package health implements the slot health checker (spec §4.6, C6): for
// every worker slot it triangulates the slot's own active flag, the
// issue's current tracker label, and live-session membership, and reports
// (or auto-fixes) the resulting anomaly.
package health

import "time"

// Severity classifies how urgently an anomaly needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Case names one taxonomy entry. The taxonomy is exhaustive and evaluated
// in this fixed order; CheckSlot returns the first case that matches.
type Case string

const (
	CaseIssueGone        Case = "issue_gone"
	CaseLabelMismatch    Case = "label_mismatch"
	CaseSessionDead      Case = "session_dead"
	CaseSessionDeadNoKey Case = "session_dead_no_key"
	CaseStaleWorker      Case = "stale_worker"
	CaseStuckLabel       Case = "stuck_label"
	CaseOrphanIssueID    Case = "orphan_issue_id"
	CaseOrphanedLabel    Case = "orphaned_label"
)

// Anomaly is one detected inconsistency for a slot (or, for orphaned_label,
// for an issue with no owning slot).
type Anomaly struct {
	Case      Case
	Severity  Severity
	Role      string
	Level     string
	SlotIndex int
	IssueID   string
	Detail    string
	Fixed     bool
}

// GraceWindow is the interval after slot.StartTime during which
// session_dead detection is suppressed: a freshly dispatched session may
// not yet be visible in the session layer's live set.
const GraceWindow = 5 * time.Minute

// SlotObservation carries the three triangulated facts CheckSlot needs
// about one slot, plus enough workflow context to classify it.
type SlotObservation struct {
	Active        bool
	IssueID       string
	SessionKey    string
	StartTime     *time.Time
	PreviousLabel string

	// IssueExists is false when the tracker no longer has the issue
	// (deleted or, per the provider's contract, closed-and-gone).
	IssueExists bool
	// CurrentLabel is the workflow state label currently on the issue, or
	// "" if the issue could not be fetched. A fetched but closed issue keeps
	// its label here while IssueExists is false.
	CurrentLabel string

	ExpectedActiveLabel string

	// LiveSessionKeys/Known mirror sessions.Registry.ListLiveSessionKeys:
	// Known false means "no information", suppressing every session-based
	// check rather than treating the session as dead.
	LiveSessionKeys map[string]bool
	Known           bool

	Now              time.Time
	StaleWorkerAfter time.Duration
}

// CheckSlot classifies one slot against the taxonomy from spec §4.6,
// returning nil if the slot is healthy.
func CheckSlot(role, level string, index int, obs SlotObservation) *Anomaly {
	base := func(c Case, sev Severity, detail string) *Anomaly {
		return &Anomaly{Case: c, Severity: sev, Role: role, Level: level, SlotIndex: index, IssueID: obs.IssueID, Detail: detail}
	}

	if obs.Active {
		if !obs.IssueExists {
			return base(CaseIssueGone, SeverityCritical, "active slot's issue no longer exists")
		}
		if obs.CurrentLabel != obs.ExpectedActiveLabel {
			return base(CaseLabelMismatch, SeverityCritical, "issue label "+obs.CurrentLabel+" != expected "+obs.ExpectedActiveLabel)
		}
		if obs.SessionKey == "" {
			return base(CaseSessionDeadNoKey, SeverityCritical, "active slot has no session key")
		}

		inGrace := obs.StartTime != nil && obs.Now.Sub(*obs.StartTime) < GraceWindow
		if obs.Known && !inGrace {
			alive := obs.LiveSessionKeys[obs.SessionKey]
			if !alive {
				return base(CaseSessionDead, SeverityCritical, "session key not present in live set")
			}
			if obs.StartTime != nil && obs.StaleWorkerAfter > 0 && obs.Now.Sub(*obs.StartTime) > obs.StaleWorkerAfter {
				return base(CaseStaleWorker, SeverityWarning, "worker has been active longer than the staleness threshold")
			}
		}
		return nil
	}

	if obs.IssueExists && obs.CurrentLabel == obs.ExpectedActiveLabel {
		return base(CaseStuckLabel, SeverityCritical, "issue still carries the active label but no slot owns it")
	}
	if obs.IssueID != "" {
		return base(CaseOrphanIssueID, SeverityWarning, "inactive slot still references an issue id")
	}
	return nil
}
