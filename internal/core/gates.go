package core

import (
	"bizdesk/pkg/domain"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type orderMachine struct {
	valid    map[string]struct{}
	terminal map[string]struct{}
}

var orderLifecycle = orderMachine{
	valid: toSet(
		string(domain.StatusDraft),
		string(domain.StatusNegotiating),
		string(domain.StatusPendingApproval),
		string(domain.StatusApproved),
		string(domain.StatusInvoiced),
		string(domain.StatusInRoute),
		string(domain.StatusDelivered),
		string(domain.StatusCancelled),
	),
	terminal: toSet(string(domain.StatusDelivered), string(domain.StatusCancelled)),
}

// IsValidOrderStatus reports whether status belongs to the order lifecycle.
func IsValidOrderStatus(status string) bool {
	_, ok := orderLifecycle.valid[status]
	return ok
}

// IsTerminalOrderStatus reports whether no further transitions are expected.
func IsTerminalOrderStatus(status string) bool {
	_, ok := orderLifecycle.terminal[status]
	return ok
}

// ApprovalGate applies the order update gates.
type ApprovalGate struct {
	Threshold decimal.Decimal
}

// GateOutcome is the result of evaluating the gates for one update.
type GateOutcome struct {
	// Status is the status to persist after gate overrides.
	Status string
	// ApprovalTransition is set when the payload asks for Approved and the
	// stored order was not Approved yet. Gate overrides of the persisted
	// status do not clear it.
	ApprovalTransition bool
	Result             domain.Result
}

// Evaluate runs, in order, the discount gate, the expiry gate and the
// approval-transition check. stored is the persisted order, merged the
// record after payload overlay and derivation, payload the caller input.
// A later gate overrides an earlier one.
func (g ApprovalGate) Evaluate(stored, merged, payload domain.Record, today time.Time) GateOutcome {
	id := merged.ID()
	status := merged.String(domain.FieldStatus).OrElse("")
	out := GateOutcome{}

	items := merged.Decimal(domain.FieldItemsTotal).OrElse(decimal.Zero)
	discount := merged.Decimal(domain.FieldDiscountValue).OrElse(decimal.Zero)
	if orderPhase(merged) == domain.PhaseQuote &&
		discount.GreaterThan(g.Threshold.Mul(items)) &&
		status != string(domain.StatusPendingApproval) {
		status = string(domain.StatusPendingApproval)
		out.Result.Add(domain.Notification{
			Kind:     domain.KindApprovalRequired,
			Severity: domain.SeverityAlert,
			Message: fmt.Sprintf("discount %s exceeds %s%% of items total %s; order %s requires approval",
				discount.StringFixed(2), g.Threshold.Shift(2).String(), items.StringFixed(2), id),
			Entity:   domain.EntityOrder,
			EntityID: id,
		})
	}

	if validUntil, ok := merged.Date(domain.FieldQuoteValidUntil).Get(); ok && validUntil.Before(domain.TruncateDate(today)) {
		if status != string(domain.StatusCancelled) {
			out.Result.Add(domain.Notification{
				Kind:     domain.KindQuoteExpired,
				Severity: domain.SeverityAlert,
				Message:  fmt.Sprintf("quote %s expired on %s; order cancelled", id, validUntil.Format(domain.DateLayout)),
				Entity:   domain.EntityOrder,
				EntityID: id,
			})
		}
		status = string(domain.StatusCancelled)
	}

	requested := payload.String(domain.FieldStatus).OrElse("")
	previous := stored.String(domain.FieldStatus).OrElse("")
	out.ApprovalTransition = requested == string(domain.StatusApproved) &&
		previous != string(domain.StatusApproved)

	out.Status = status
	return out
}

// CheckOrderTransition reports unknown statuses and moves out of terminal
// states. It never blocks the write.
func CheckOrderTransition(id, before, after string) domain.Result {
	res := domain.Result{}
	if after == before {
		return res
	}
	if !IsValidOrderStatus(after) {
		res.Add(domain.Notification{
			Kind:     domain.KindInvalidStatus,
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("order %s is set to unknown status %q", id, after),
			Entity:   domain.EntityOrder,
			EntityID: id,
		})
		return res
	}
	if IsTerminalOrderStatus(before) {
		res.Add(domain.Notification{
			Kind:     domain.KindTerminalTransition,
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("order %s moved from terminal status %s to %s", id, before, after),
			Entity:   domain.EntityOrder,
			EntityID: id,
		})
	}
	return res
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
