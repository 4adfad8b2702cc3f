package core

import (
	"bizdesk/pkg/domain"
	"context"
	"time"
)

// Mutation is the outcome of a facade write.
type Mutation = domain.Mutation

// Service is the mutation facade. Writes run derivations, order gates and
// post-persistence hooks; reads apply read-time projections.
type Service struct {
	store       domain.TableStore
	derivations *DerivationRegistry
	projections *ProjectionRegistry
	hooks       *HookRegistry
	cascade     *CascadeEngine
	gate        ApprovalGate
	catalog     FieldCatalog
	clock       Clock
	logger      Logger
	metrics     MetricsRecorder
	tracer      Tracer
}

// NewService constructs a facade over store.
func NewService(store domain.TableStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		derivations: NewDefaultDerivationRegistry(),
		projections: NewDefaultProjectionRegistry(),
		gate:        ApprovalGate{Threshold: DefaultApprovalThreshold},
		catalog:     DefaultCatalog(),
		clock:       systemClock(),
		logger:      noopLogger{},
		metrics:     noopMetrics{},
		tracer:      noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cascade = NewCascadeEngine(store, s.derivations, s.clock, s.logger)
	s.hooks = NewDefaultHookRegistry(s.cascade)
	return s
}

// Store returns the underlying table store.
func (s *Service) Store() domain.TableStore { return s.store }

// Cascade returns the cascade engine used by the default hooks.
func (s *Service) Cascade() *CascadeEngine { return s.cascade }

// Hooks returns the hook registry so callers can add post-mutation hooks.
func (s *Service) Hooks() *HookRegistry { return s.hooks }

// Create derives and inserts a new record, then runs the after_create hooks.
func (s *Service) Create(ctx context.Context, entity domain.EntityType, payload domain.Record) (mut Mutation, err error) {
	ctx, done := s.begin(ctx, "create_"+string(entity))
	defer func() { done(err) }()
	mut = Mutation{Entity: entity}
	if err = domain.ValidateEntity(entity); err != nil {
		return mut, err
	}
	today := s.today()
	rec := s.sanitize(entity, payload)
	s.derivations.Apply(DerivationContext{Ctx: ctx, Store: s.store, Today: today, Create: true}, entity, rec)

	res := domain.Result{}
	created := s.store.Insert(ctx, entity, rec)
	if entity == domain.EntityOrder {
		res.Merge(CheckOrderTransition(created.ID(), "", created.String(domain.FieldStatus).OrElse("")))
	}
	s.hooks.Run(AfterCreate, HookContext{Ctx: ctx, Entity: entity, After: created, Payload: payload, Result: &res})
	s.logger.Debug("record created", "entity", entity, "id", created.ID())

	mut.Record = created
	mut.Notifications = s.publish(res)
	return mut, nil
}

// Update merges payload over the stored record, re-derives it, applies the
// order gates and persists. ok is false when the record does not exist.
func (s *Service) Update(ctx context.Context, entity domain.EntityType, id string, payload domain.Record) (mut Mutation, ok bool, err error) {
	ctx, done := s.begin(ctx, "update_"+string(entity))
	defer func() { done(err) }()
	mut = Mutation{Entity: entity}
	if err = domain.ValidateEntity(entity); err != nil {
		return mut, false, err
	}
	stored, found := s.store.Get(ctx, entity, id)
	if !found {
		s.logger.Debug("update target not found", "entity", entity, "id", id)
		return mut, false, nil
	}
	today := s.today()
	patch := s.sanitize(entity, payload)
	delete(patch, domain.FieldID)
	merged := stored.Merge(patch)
	s.derivations.Apply(DerivationContext{Ctx: ctx, Store: s.store, Today: today, Before: stored}, entity, merged)

	res := domain.Result{}
	var gate *GateOutcome
	if entity == domain.EntityOrder {
		outcome := s.gate.Evaluate(stored, merged, patch, today)
		if outcome.Status != merged.String(domain.FieldStatus).OrElse("") {
			merged[domain.FieldStatus] = outcome.Status
		}
		res.Merge(outcome.Result)
		res.Merge(CheckOrderTransition(stored.ID(), stored.String(domain.FieldStatus).OrElse(""), outcome.Status))
		gate = &outcome
	}

	updated, found := s.store.Replace(ctx, entity, id, merged)
	if !found {
		return mut, false, nil
	}
	s.hooks.Run(AfterUpdate, HookContext{
		Ctx: ctx, Entity: entity, Before: stored, After: updated, Payload: patch, Gate: gate, Result: &res,
	})
	s.logger.Debug("record updated", "entity", entity, "id", updated.ID())

	mut.Record = updated
	mut.Notifications = s.publish(res)
	return mut, true, nil
}

// Delete removes the record and runs the after_delete hooks with the removed
// record as Before. ok is false when the record does not exist.
func (s *Service) Delete(ctx context.Context, entity domain.EntityType, id string) (mut Mutation, ok bool, err error) {
	ctx, done := s.begin(ctx, "delete_"+string(entity))
	defer func() { done(err) }()
	mut = Mutation{Entity: entity}
	if err = domain.ValidateEntity(entity); err != nil {
		return mut, false, err
	}
	stored, found := s.store.Get(ctx, entity, id)
	if !found || !s.store.Remove(ctx, entity, id) {
		return mut, false, nil
	}
	res := domain.Result{}
	s.hooks.Run(AfterDelete, HookContext{Ctx: ctx, Entity: entity, Before: stored, Result: &res})
	s.logger.Debug("record deleted", "entity", entity, "id", stored.ID())

	mut.Record = stored
	mut.Notifications = s.publish(res)
	return mut, true, nil
}

// List returns the projected records of entity.
func (s *Service) List(ctx context.Context, entity domain.EntityType) ([]domain.Record, error) {
	if err := domain.ValidateEntity(entity); err != nil {
		return nil, err
	}
	today := s.today()
	rows := s.store.List(ctx, entity)
	out := make([]domain.Record, 0, len(rows))
	for _, rec := range rows {
		out = append(out, s.projections.Apply(entity, rec, today))
	}
	return out, nil
}

// Get returns the projected record, or false when it does not exist.
func (s *Service) Get(ctx context.Context, entity domain.EntityType, id string) (domain.Record, bool, error) {
	if err := domain.ValidateEntity(entity); err != nil {
		return nil, false, err
	}
	rec, ok := s.store.Get(ctx, entity, id)
	if !ok {
		return nil, false, nil
	}
	return s.projections.Apply(entity, rec, s.today()), true, nil
}

func (s *Service) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	return ctx, func(err error) {
		span.End(err)
		s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
		if err != nil {
			s.logger.Warn("mutation rejected", "operation", operation, "error", err)
		}
	}
}

func (s *Service) today() time.Time {
	return domain.TruncateDate(s.clock.Now())
}

// sanitize copies the payload without the fields that are only computed at
// read time.
func (s *Service) sanitize(entity domain.EntityType, payload domain.Record) domain.Record {
	rec := payload.Clone()
	if rec == nil {
		rec = domain.Record{}
	}
	for _, field := range s.catalog.ProjectionFields(entity) {
		delete(rec, field)
	}
	return rec
}

func (s *Service) publish(res domain.Result) []domain.Notification {
	for _, n := range res.Notifications {
		s.metrics.Notified(n.Kind, string(n.Severity))
		if n.Severity == domain.SeverityAlert {
			s.logger.Info("workflow alert", "kind", n.Kind, "entity", n.Entity, "id", n.EntityID, "message", n.Message)
		}
	}
	if res.Notifications == nil {
		return []domain.Notification{}
	}
	return res.Notifications
}
