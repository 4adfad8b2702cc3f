package core

import (
	"bizdesk/pkg/domain"
	"time"
)

// FieldCatalog reports which fields of an entity are computed at read time
// and therefore never stored.
type FieldCatalog interface {
	ProjectionFields(entity domain.EntityType) []string
}

type staticCatalog map[domain.EntityType][]string

func (c staticCatalog) ProjectionFields(entity domain.EntityType) []string {
	return c[entity]
}

// DefaultCatalog lists the projection fields of the built-in entities.
func DefaultCatalog() FieldCatalog {
	return staticCatalog{
		domain.EntityCustomer: {domain.FieldDaysSinceLastPurchase},
		domain.EntityTask:     {domain.FieldOverdue},
	}
}

// Projection adds read-time fields to a record copy.
type Projection func(rec domain.Record, today time.Time)

// ProjectionRegistry maps entities to their read-time projections.
type ProjectionRegistry struct {
	byEntity map[domain.EntityType][]Projection
}

// NewProjectionRegistry returns an empty registry.
func NewProjectionRegistry() *ProjectionRegistry {
	return &ProjectionRegistry{byEntity: make(map[domain.EntityType][]Projection)}
}

// NewDefaultProjectionRegistry registers the built-in projections.
func NewDefaultProjectionRegistry() *ProjectionRegistry {
	r := NewProjectionRegistry()
	r.Register(domain.EntityCustomer, ProjectDaysSinceLastPurchase)
	r.Register(domain.EntityCampaign, ProjectCampaignActive)
	r.Register(domain.EntityTask, ProjectTaskOverdue)
	return r
}

// Register appends a projection for entity.
func (r *ProjectionRegistry) Register(entity domain.EntityType, p Projection) {
	r.byEntity[entity] = append(r.byEntity[entity], p)
}

// Apply returns a projected copy of rec. The input is left untouched.
func (r *ProjectionRegistry) Apply(entity domain.EntityType, rec domain.Record, today time.Time) domain.Record {
	projections := r.byEntity[entity]
	if len(projections) == 0 {
		return rec
	}
	out := rec.Clone()
	for _, p := range projections {
		p(out, today)
	}
	return out
}

// ProjectDaysSinceLastPurchase sets the whole days elapsed since the
// customer's last purchase. Customers without a purchase get no value.
func ProjectDaysSinceLastPurchase(rec domain.Record, today time.Time) {
	last, ok := rec.Date(domain.FieldLastPurchaseDate).Get()
	if !ok {
		delete(rec, domain.FieldDaysSinceLastPurchase)
		return
	}
	rec[domain.FieldDaysSinceLastPurchase] = int(domain.TruncateDate(today).Sub(last).Hours() / 24)
}

// ProjectCampaignActive refreshes activeToday against the read date.
func ProjectCampaignActive(rec domain.Record, today time.Time) {
	rec[domain.FieldActiveToday] = CampaignActive(rec, today)
}

var closedTaskStatuses = toSet("Done", "Completed", "Cancelled")

// ProjectTaskOverdue flags open tasks whose due date has passed.
func ProjectTaskOverdue(rec domain.Record, today time.Time) {
	due, ok := rec.Date(domain.FieldDueDate).Get()
	if !ok {
		rec[domain.FieldOverdue] = false
		return
	}
	_, closed := closedTaskStatuses[rec.String(domain.FieldStatus).OrElse("")]
	rec[domain.FieldOverdue] = !closed && due.Before(domain.TruncateDate(today))
}
