package telemetry

// Attribute keys used across dispatch, health, and heartbeat spans.
const (
	AttrProjectSlug = "project.slug"
	AttrIssueID     = "issue.id"
	AttrRole        = "role"
	AttrLevel       = "level"
	AttrSlotIndex   = "slot.index"
	AttrFromLabel   = "label.from"
	AttrToLabel     = "label.to"
	AttrSessionKey  = "session.key"
	AttrModel       = "model"

	AttrTickSeq          = "tick.seq"
	AttrTickDispatched   = "tick.dispatched_count"
	AttrTickAnomalies    = "tick.anomaly_count"
	AttrTickOrphansFixed = "tick.orphans_fixed_count"

	AttrAnomalyCase     = "anomaly.case"
	AttrAnomalySeverity = "anomaly.severity"

	AttrErrorMessage = "error.message"
	AttrErrorType    = "error.type"
)

// SpanKind constants for categorizing span types in exported records.
const (
	SpanKindTick     = "tick"
	SpanKindDispatch = "dispatch"
	SpanKindHealth   = "health"
	SpanKindNotify   = "notify"
)

// Span name prefixes for consistent naming across call sites.
const (
	SpanPrefixTick     = "heartbeat.tick."
	SpanPrefixDispatch = "dispatch."
	SpanPrefixHealth   = "health."
)

// Event names recorded on spans.
const (
	EventAnomalyDetected   = "anomaly.detected"
	EventAnomalyFixed      = "anomaly.fixed"
	EventLabelTransitioned = "label.transitioned"
	EventSessionEnsured    = "session.ensured"
	EventNotifySent        = "notify.sent"
	EventErrorOccurred     = "error.occurred"
)
