package core

import (
	"bizdesk/pkg/domain"
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CascadeEngine runs the secondary mutations triggered by order and line-item
// writes. Each cascade performs its own load, mutate and persist cycle and
// shares no transaction with the mutation that triggered it.
type CascadeEngine struct {
	store       domain.TableStore
	derivations *DerivationRegistry
	clock       Clock
	logger      Logger
}

// NewCascadeEngine wires a cascade engine. Nil collaborators fall back to
// defaults.
func NewCascadeEngine(store domain.TableStore, derivations *DerivationRegistry, clock Clock, logger Logger) *CascadeEngine {
	if derivations == nil {
		derivations = NewDefaultDerivationRegistry()
	}
	if clock == nil {
		clock = systemClock()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &CascadeEngine{store: store, derivations: derivations, clock: clock, logger: logger}
}

// RecomputeOrder sums the subtotals of the order's line items into itemsTotal
// and refreshes finalTotal from the stored discount. Status is left alone. It
// returns false when the order does not exist.
func (c *CascadeEngine) RecomputeOrder(ctx context.Context, orderID string) (domain.Record, bool) {
	id := domain.NormalizeID(orderID)
	if id == "" {
		return nil, false
	}
	order, ok := c.store.Get(ctx, domain.EntityOrder, id)
	if !ok {
		c.logger.Warn("recompute skipped: order not found", "order", id)
		return nil, false
	}
	total := lo.Reduce(c.lineItems(ctx, id), func(sum decimal.Decimal, item domain.Record, _ int) decimal.Decimal {
		return sum.Add(item.Decimal(domain.FieldSubtotal).OrElse(decimal.Zero))
	}, decimal.Zero)
	discount := order.Decimal(domain.FieldDiscountValue).OrElse(decimal.Zero)
	order.SetDecimal(domain.FieldItemsTotal, total)
	order.SetDecimal(domain.FieldFinalTotal, FinalTotal(total, discount))
	updated, ok := c.store.Replace(ctx, domain.EntityOrder, id, order)
	if !ok {
		return nil, false
	}
	c.logger.Debug("order totals recomputed", "order", id, "itemsTotal", total.String())
	return updated, true
}

// ProcessApprovedSale decrements stock for every line item of the order,
// refreshes each touched product's derived fields and stamps the customer's
// lastPurchaseDate. Stock may go negative. One stock_updated notification is
// produced per product.
func (c *CascadeEngine) ProcessApprovedSale(ctx context.Context, order domain.Record) domain.Result {
	res := domain.Result{}
	orderID := order.ID()
	today := domain.TruncateDate(c.clock.Now())

	decrements := map[string]decimal.Decimal{}
	var products []string
	for _, item := range c.lineItems(ctx, orderID) {
		productID := item.Ref(domain.FieldProductRef)
		if productID == "" {
			continue
		}
		if _, seen := decrements[productID]; !seen {
			products = append(products, productID)
		}
		qty := item.Decimal(domain.FieldQuantity).OrElse(decimal.NewFromInt(1))
		decrements[productID] = decrements[productID].Add(qty)
	}

	for _, productID := range products {
		product, ok := c.store.Get(ctx, domain.EntityProduct, productID)
		if !ok {
			c.logger.Warn("stock update skipped: product not found", "order", orderID, "product", productID)
			continue
		}
		before := product.Decimal(domain.FieldStockQuantity).OrElse(decimal.Zero)
		after := before.Sub(decrements[productID])
		product.SetDecimal(domain.FieldStockQuantity, after)
		c.derivations.Apply(DerivationContext{Ctx: ctx, Store: c.store, Today: today}, domain.EntityProduct, product)
		if _, ok := c.store.Replace(ctx, domain.EntityProduct, productID, product); !ok {
			continue
		}
		res.Add(domain.Notification{
			Kind:     domain.KindStockUpdated,
			Severity: domain.SeverityInfo,
			Message: fmt.Sprintf("product %s stock %s -> %s (%s)",
				productID, before.String(), after.String(), product.String(domain.FieldStockStatus).OrElse("")),
			Entity:   domain.EntityProduct,
			EntityID: productID,
		})
	}

	if customerID := order.Ref(domain.FieldCustomerRef); customerID != "" {
		c.stampLastPurchase(ctx, customerID, today)
	}
	return res
}

func (c *CascadeEngine) stampLastPurchase(ctx context.Context, customerID string, today time.Time) {
	customer, ok := c.store.Get(ctx, domain.EntityCustomer, customerID)
	if !ok {
		c.logger.Warn("purchase stamp skipped: customer not found", "customer", customerID)
		return
	}
	customer.SetDate(domain.FieldLastPurchaseDate, today)
	c.store.Replace(ctx, domain.EntityCustomer, customerID, customer)
}

func (c *CascadeEngine) lineItems(ctx context.Context, orderID string) []domain.Record {
	return lo.Filter(c.store.List(ctx, domain.EntityOrderLineItem), func(item domain.Record, _ int) bool {
		return orderID != "" && item.Ref(domain.FieldOrderRef) == orderID
	})
}
