// Package domain defines the record model, entity identifiers, status
// vocabularies, and notification primitives used by bizdesk.
package domain

import (
	"errors"
	"fmt"
	"regexp"
)

// EntityType identifies a table of records. The value doubles as the storage
// bucket name.
type EntityType string

// Built-in entity identifiers. Any other name accepted by ValidateEntity is a
// custom entity without derivation rules.
const (
	// EntityProduct identifies catalogue products with stock tracking.
	EntityProduct EntityType = "products"
	// EntityOrder identifies quotations and sales orders.
	EntityOrder EntityType = "orders"
	// EntityOrderLineItem identifies order lines pointing at a parent order.
	EntityOrderLineItem EntityType = "orderLineItems"
	// EntityCustomer identifies customer accounts.
	EntityCustomer EntityType = "customers"
	// EntityCampaign identifies time-boxed discount campaigns.
	EntityCampaign EntityType = "campaigns"
	// EntityTask identifies follow-up tasks.
	EntityTask EntityType = "tasks"
	// EntitySupplier identifies product suppliers.
	EntitySupplier EntityType = "suppliers"
)

// BuiltinEntities lists the entity tables bizdesk ships with.
func BuiltinEntities() []EntityType {
	return []EntityType{
		EntityProduct,
		EntityOrder,
		EntityOrderLineItem,
		EntityCustomer,
		EntityCampaign,
		EntityTask,
		EntitySupplier,
	}
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

// Order lifecycle states.
const (
	StatusDraft           OrderStatus = "Draft"
	StatusNegotiating     OrderStatus = "Negotiating"
	StatusPendingApproval OrderStatus = "PendingApproval"
	StatusApproved        OrderStatus = "Approved"
	StatusInvoiced        OrderStatus = "Invoiced"
	StatusInRoute         OrderStatus = "InRoute"
	StatusDelivered       OrderStatus = "Delivered"
	StatusCancelled       OrderStatus = "Cancelled"
)

// FunnelPhase classifies an order as a quotation or a sale.
type FunnelPhase string

const (
	// PhaseQuote covers Draft, Negotiating and PendingApproval orders.
	PhaseQuote FunnelPhase = "Quote"
	// PhaseSale covers every other status.
	PhaseSale FunnelPhase = "Sale"
)

// StockStatus flags products at or below their minimum stock.
type StockStatus string

const (
	StockNormal   StockStatus = "Normal"
	StockCritical StockStatus = "Critical"
)

// Field names referenced by derivations and cascades.
const (
	FieldID = "id"

	FieldStockQuantity = "stockQuantity"
	FieldStockMinimum  = "stockMinimum"
	FieldStockStatus   = "stockStatus"

	FieldControlNumber   = "controlNumber"
	FieldCustomerRef     = "customerRef"
	FieldCreatedDate     = "createdDate"
	FieldStatus          = "status"
	FieldQuoteValidUntil = "quoteValidUntil"
	FieldDiscountValue   = "discountValue"
	FieldItemsTotal      = "itemsTotal"
	FieldFinalTotal      = "finalTotal"
	FieldFunnelPhase     = "funnelPhase"

	FieldOrderRef   = "orderRef"
	FieldProductRef = "productRef"
	FieldQuantity   = "quantity"
	FieldUnitPrice  = "unitPrice"
	FieldSubtotal   = "subtotal"

	FieldLastPurchaseDate      = "lastPurchaseDate"
	FieldDaysSinceLastPurchase = "daysSinceLastPurchase"

	FieldStartDate   = "startDate"
	FieldEndDate     = "endDate"
	FieldActiveToday = "activeToday"

	FieldDueDate = "dueDate"
	FieldOverdue = "overdue"
)

// ErrInvalidEntity is returned when an entity name cannot be used as a table.
var ErrInvalidEntity = errors.New("invalid entity name")

var entityNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

// ValidateEntity reports whether the entity name is usable as a storage bucket.
func ValidateEntity(entity EntityType) error {
	if !entityNamePattern.MatchString(string(entity)) {
		return fmt.Errorf("%w: %q", ErrInvalidEntity, entity)
	}
	return nil
}

// ErrNotFound reports a missing record.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
