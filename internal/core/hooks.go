package core

import (
	"bizdesk/pkg/domain"
	"context"
	"fmt"
)

// HookEvent names the point in a mutation at which hooks run.
type HookEvent string

const (
	// AfterCreate runs once the new record is persisted.
	AfterCreate HookEvent = "after_create"
	// AfterUpdate runs once the updated record is persisted.
	AfterUpdate HookEvent = "after_update"
	// AfterDelete runs once the record is removed.
	AfterDelete HookEvent = "after_delete"
)

// HookContext describes the mutation a hook reacts to. Before is nil on
// create and After is nil on delete. Gate is set only for order updates.
type HookContext struct {
	Ctx     context.Context
	Entity  domain.EntityType
	Before  domain.Record
	After   domain.Record
	Payload domain.Record
	Gate    *GateOutcome
	Result  *domain.Result
}

// Hook is a post-persistence reaction to a mutation.
type Hook func(hc HookContext)

type hookKey struct {
	entity domain.EntityType
	event  HookEvent
}

// HookRegistry maps entity and event pairs to hooks.
type HookRegistry struct {
	hooks map[hookKey][]Hook
}

// NewHookRegistry returns an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[hookKey][]Hook)}
}

// NewDefaultHookRegistry wires the built-in cascades: line-item writes
// recompute their parent order and approval transitions process the sale.
func NewDefaultHookRegistry(cascade *CascadeEngine) *HookRegistry {
	r := NewHookRegistry()
	r.Register(domain.EntityOrderLineItem, AfterCreate, func(hc HookContext) {
		cascade.RecomputeOrder(hc.Ctx, hc.After.Ref(domain.FieldOrderRef))
	})
	r.Register(domain.EntityOrderLineItem, AfterUpdate, func(hc HookContext) {
		current := hc.After.Ref(domain.FieldOrderRef)
		cascade.RecomputeOrder(hc.Ctx, current)
		if previous := hc.Before.Ref(domain.FieldOrderRef); previous != "" && previous != current {
			cascade.RecomputeOrder(hc.Ctx, previous)
		}
	})
	r.Register(domain.EntityOrderLineItem, AfterDelete, func(hc HookContext) {
		cascade.RecomputeOrder(hc.Ctx, hc.Before.Ref(domain.FieldOrderRef))
	})
	r.Register(domain.EntityOrder, AfterUpdate, func(hc HookContext) {
		if hc.Gate == nil || !hc.Gate.ApprovalTransition {
			return
		}
		hc.Result.Merge(cascade.ProcessApprovedSale(hc.Ctx, hc.After))
		id := hc.After.ID()
		hc.Result.Add(domain.Notification{
			Kind:     domain.KindSaleApproved,
			Severity: domain.SeverityInfo,
			Message:  fmt.Sprintf("order %s approved; stock and customer history updated", id),
			Entity:   domain.EntityOrder,
			EntityID: id,
		})
	})
	return r
}

// Register appends a hook for the entity and event.
func (r *HookRegistry) Register(entity domain.EntityType, event HookEvent, hook Hook) {
	key := hookKey{entity: entity, event: event}
	r.hooks[key] = append(r.hooks[key], hook)
}

// Run invokes the hooks registered for the event in registration order.
func (r *HookRegistry) Run(event HookEvent, hc HookContext) {
	if hc.Result == nil {
		hc.Result = &domain.Result{}
	}
	for _, hook := range r.hooks[hookKey{entity: hc.Entity, event: event}] {
		hook(hc)
	}
}

// Len reports how many hooks are registered for the entity and event.
func (r *HookRegistry) Len(entity domain.EntityType, event HookEvent) int {
	return len(r.hooks[hookKey{entity: entity, event: event}])
}
