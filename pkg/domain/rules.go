package domain

// Severity grades a notification raised while processing a mutation.
type Severity string

const (
	// SeverityAlert marks outcomes the operator must act on, such as a forced
	// approval or cancellation.
	SeverityAlert Severity = "alert"
	// SeverityWarn marks questionable input that was still accepted.
	SeverityWarn Severity = "warn"
	// SeverityInfo marks side effects of cascades.
	SeverityInfo Severity = "info"
)

// Notification kinds emitted by the workflow rules.
const (
	KindApprovalRequired   = "approval_required"
	KindQuoteExpired       = "quote_expired"
	KindSaleApproved       = "sale_approved"
	KindStockUpdated       = "stock_updated"
	KindInvalidStatus      = "invalid_status"
	KindTerminalTransition = "terminal_transition"
)

// Notification is a non-blocking message attached to a mutation result.
type Notification struct {
	Kind     string     `json:"kind"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity,omitempty"`
	EntityID string     `json:"entityId,omitempty"`
}

// Result aggregates notifications produced by rules and cascades.
type Result struct {
	Notifications []Notification
}

// Add appends a notification.
func (r *Result) Add(n Notification) {
	r.Notifications = append(r.Notifications, n)
}

// Merge appends notifications from another result.
func (r *Result) Merge(other Result) {
	if len(other.Notifications) == 0 {
		return
	}
	r.Notifications = append(r.Notifications, other.Notifications...)
}

// HasSeverity reports whether any notification carries the given severity.
func (r Result) HasSeverity(s Severity) bool {
	for _, n := range r.Notifications {
		if n.Severity == s {
			return true
		}
	}
	return false
}

// Mutation is the outcome of a create, update or delete: the persisted record
// plus the notifications raised by gates and cascades.
type Mutation struct {
	Entity        EntityType     `json:"entity"`
	Record        Record         `json:"record,omitempty"`
	Notifications []Notification `json:"notifications"`
}
