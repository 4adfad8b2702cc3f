package core

import (
	"bizdesk/pkg/domain"
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// DerivationContext carries what a derivation may consult besides the
// record it rewrites.
type DerivationContext struct {
	Ctx    context.Context
	Store  domain.TableStore
	Today  time.Time
	Create bool
	// Before is the stored record on update and nil on create.
	Before domain.Record
}

// Derivation rewrites computed fields on a merged record in place.
type Derivation func(dc DerivationContext, rec domain.Record)

// DerivationRegistry maps entities to their field derivations.
type DerivationRegistry struct {
	byEntity map[domain.EntityType][]Derivation
}

// NewDerivationRegistry returns an empty registry.
func NewDerivationRegistry() *DerivationRegistry {
	return &DerivationRegistry{byEntity: make(map[domain.EntityType][]Derivation)}
}

// NewDefaultDerivationRegistry registers the built-in entity derivations.
func NewDefaultDerivationRegistry() *DerivationRegistry {
	r := NewDerivationRegistry()
	r.Register(domain.EntityProduct, DeriveStockStatus)
	r.Register(domain.EntityOrder, DeriveOrder)
	r.Register(domain.EntityOrderLineItem, DeriveLineSubtotal)
	r.Register(domain.EntityCampaign, DeriveCampaignActive)
	return r
}

// Register appends a derivation for entity.
func (r *DerivationRegistry) Register(entity domain.EntityType, d Derivation) {
	r.byEntity[entity] = append(r.byEntity[entity], d)
}

// Apply runs every derivation registered for entity in registration order.
func (r *DerivationRegistry) Apply(dc DerivationContext, entity domain.EntityType, rec domain.Record) {
	for _, d := range r.byEntity[entity] {
		d(dc, rec)
	}
}

// DeriveStockStatus flags a product Critical when its stock is at or below
// the minimum. Missing quantities count as zero. Caller values are replaced.
// Present quantities are stored as the number the comparison used, so a
// non-numeric value is persisted as zero.
func DeriveStockStatus(_ DerivationContext, rec domain.Record) {
	qty := normalizeQuantity(rec, domain.FieldStockQuantity)
	minimum := normalizeQuantity(rec, domain.FieldStockMinimum)
	status := domain.StockNormal
	if qty.LessThanOrEqual(minimum) {
		status = domain.StockCritical
	}
	rec[domain.FieldStockStatus] = string(status)
}

func normalizeQuantity(rec domain.Record, field string) decimal.Decimal {
	d := rec.Decimal(field).OrElse(decimal.Zero)
	if rec.Has(field) {
		rec.SetDecimal(field, d)
	}
	return d
}

// DeriveOrder stamps creation fields on new orders and keeps finalTotal
// consistent on every write. Phase and control number are never recomputed
// after creation.
func DeriveOrder(dc DerivationContext, rec domain.Record) {
	if dc.Create {
		rec.SetDate(domain.FieldCreatedDate, dc.Today)
		status := rec.String(domain.FieldStatus).OrElse("")
		if status == "" {
			status = string(domain.StatusDraft)
			rec[domain.FieldStatus] = status
		}
		phase := PhaseForStatus(domain.OrderStatus(status))
		rec[domain.FieldFunnelPhase] = string(phase)
		existing := 0
		if dc.Store != nil {
			existing = lo.CountBy(dc.Store.List(dc.Ctx, domain.EntityOrder), func(o domain.Record) bool {
				return orderPhase(o) == phase
			})
		}
		rec[domain.FieldControlNumber] = ControlNumber(phase, dc.Today.Year(), existing+1)
		if !rec.Has(domain.FieldItemsTotal) {
			rec.SetDecimal(domain.FieldItemsTotal, decimal.Zero)
		}
	} else if dc.Before != nil {
		for _, field := range []string{domain.FieldCreatedDate, domain.FieldFunnelPhase, domain.FieldControlNumber} {
			if v, ok := dc.Before[field]; ok {
				rec[field] = v
			}
		}
	}
	rec.SetDecimal(domain.FieldFinalTotal, FinalTotal(
		rec.Decimal(domain.FieldItemsTotal).OrElse(decimal.Zero),
		rec.Decimal(domain.FieldDiscountValue).OrElse(decimal.Zero),
	))
}

// DeriveLineSubtotal computes subtotal = quantity * unitPrice, defaulting the
// quantity to 1 and the unit price to 0.
func DeriveLineSubtotal(_ DerivationContext, rec domain.Record) {
	qty := rec.Decimal(domain.FieldQuantity).OrElse(decimal.NewFromInt(1))
	price := rec.Decimal(domain.FieldUnitPrice).OrElse(decimal.Zero)
	rec.SetDecimal(domain.FieldQuantity, qty)
	rec.SetDecimal(domain.FieldUnitPrice, price)
	rec.SetDecimal(domain.FieldSubtotal, qty.Mul(price))
}

// DeriveCampaignActive sets activeToday when today falls inside the
// campaign's inclusive date range.
func DeriveCampaignActive(dc DerivationContext, rec domain.Record) {
	rec[domain.FieldActiveToday] = CampaignActive(rec, dc.Today)
}

// CampaignActive reports whether today lies within [startDate, endDate].
// Campaigns missing either date are inactive.
func CampaignActive(rec domain.Record, today time.Time) bool {
	start, okStart := rec.Date(domain.FieldStartDate).Get()
	end, okEnd := rec.Date(domain.FieldEndDate).Get()
	if !okStart || !okEnd {
		return false
	}
	day := domain.TruncateDate(today)
	return !day.Before(start) && !day.After(end)
}

// PhaseForStatus classifies an order status into its funnel phase.
func PhaseForStatus(status domain.OrderStatus) domain.FunnelPhase {
	switch status {
	case domain.StatusDraft, domain.StatusNegotiating, domain.StatusPendingApproval:
		return domain.PhaseQuote
	default:
		return domain.PhaseSale
	}
}

// ControlNumber formats an order control number such as ORC-2024-001.
func ControlNumber(phase domain.FunnelPhase, year, seq int) string {
	prefix := "PED"
	if phase == domain.PhaseQuote {
		prefix = "ORC"
	}
	return fmt.Sprintf("%s-%d-%03d", prefix, year, seq)
}

// FinalTotal returns max(0, itemsTotal - discount).
func FinalTotal(itemsTotal, discount decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, itemsTotal.Sub(discount))
}

// orderPhase reads the stored phase, falling back to the status for rows
// written before the phase existed.
func orderPhase(order domain.Record) domain.FunnelPhase {
	if phase, ok := order.String(domain.FieldFunnelPhase).Get(); ok && phase != "" {
		return domain.FunnelPhase(phase)
	}
	return PhaseForStatus(domain.OrderStatus(order.String(domain.FieldStatus).OrElse("")))
}
