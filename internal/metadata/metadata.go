// Package metadata serves the entity field catalog compiled from the embedded
// CUE definition.
package metadata

import (
	"bizdesk/pkg/domain"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/samber/lo"
)

var (
	//go:embed schema.cue
	schemaSource []byte
	//go:embed entities.cue
	entitiesSource []byte
)

// FieldType is the editor type of a field.
type FieldType string

const (
	TypeText      FieldType = "text"
	TypeNumber    FieldType = "number"
	TypeMoney     FieldType = "money"
	TypeDate      FieldType = "date"
	TypeBoolean   FieldType = "boolean"
	TypeSelect    FieldType = "select"
	TypeReference FieldType = "reference"
)

// Field describes one entity field.
type Field struct {
	Name       string    `json:"name"`
	Label      string    `json:"label"`
	Type       FieldType `json:"type"`
	Virtual    bool      `json:"virtual"`
	Projection bool      `json:"projection"`
	Reference  string    `json:"reference,omitempty"`
	Options    []string  `json:"options,omitempty"`
}

// Entity describes one entity table.
type Entity struct {
	Name   domain.EntityType `json:"name"`
	Label  string            `json:"label"`
	Fields []Field           `json:"fields"`
}

// Editable returns the fields callers may supply.
func (e Entity) Editable() []Field {
	return lo.Reject(e.Fields, func(f Field, _ int) bool { return f.Virtual })
}

// Derived returns the fields computed by the workflow.
func (e Entity) Derived() []Field {
	return lo.Filter(e.Fields, func(f Field, _ int) bool { return f.Virtual })
}

// Catalog is an immutable entity catalog.
type Catalog struct {
	entities []Entity
	byName   map[domain.EntityType]Entity
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the catalog compiled from the embedded definition.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Compile(entitiesSource)
	})
	return defaultCatalog, defaultErr
}

// Compile builds a catalog from CUE source declaring an `entities` struct.
// The source is unified with the field schema before decoding.
func Compile(src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource)
	if schema.Err() != nil {
		return nil, fmt.Errorf("compile schema: %w", schema.Err())
	}
	data := ctx.CompileBytes(src)
	if data.Err() != nil {
		return nil, fmt.Errorf("compile entities: %w", data.Err())
	}
	v := schema.Unify(data)
	if v.Err() != nil {
		return nil, fmt.Errorf("unify entities: %w", v.Err())
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate entities: %w", err)
	}
	entitiesVal := v.LookupPath(cue.ParsePath("entities"))
	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	c := &Catalog{byName: make(map[domain.EntityType]Entity)}
	for iter.Next() {
		name := domain.EntityType(iter.Selector().Unquoted())
		if err := domain.ValidateEntity(name); err != nil {
			return nil, err
		}
		entity := Entity{Name: name}
		if err := iter.Value().Decode(&entity); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		entity.Name = name
		c.entities = append(c.entities, entity)
		c.byName[name] = entity
	}
	if len(c.entities) == 0 {
		return nil, errors.New("entities: none declared")
	}
	if err := c.checkReferences(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) checkReferences() error {
	var errs []error
	for _, e := range c.entities {
		for _, f := range e.Fields {
			switch {
			case f.Type == TypeReference && f.Reference == "":
				errs = append(errs, fmt.Errorf("%s.%s: reference field without target", e.Name, f.Name))
			case f.Reference != "":
				if _, ok := c.byName[domain.EntityType(f.Reference)]; !ok {
					errs = append(errs, fmt.Errorf("%s.%s: unknown reference %q", e.Name, f.Name, f.Reference))
				}
			}
			if f.Projection && !f.Virtual {
				errs = append(errs, fmt.Errorf("%s.%s: projection field must be virtual", e.Name, f.Name))
			}
		}
	}
	return errors.Join(errs...)
}

// Entities returns every entity in declaration order.
func (c *Catalog) Entities() []Entity {
	return append([]Entity(nil), c.entities...)
}

// Entity returns the named entity.
func (c *Catalog) Entity(name domain.EntityType) (Entity, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// Label returns the display label, falling back to the entity name.
func (c *Catalog) Label(name domain.EntityType) string {
	if e, ok := c.byName[name]; ok && e.Label != "" {
		return e.Label
	}
	return string(name)
}

// ProjectionFields returns the read-time fields of entity. Unknown entities
// have none.
func (c *Catalog) ProjectionFields(name domain.EntityType) []string {
	e, ok := c.byName[name]
	if !ok {
		return nil
	}
	return lo.FilterMap(e.Fields, func(f Field, _ int) (string, bool) { return f.Name, f.Projection })
}
