// Package tables implements domain.TableStore over a domain.TableBackend.
//
// Each operation loads the whole table from the backend, mutates a copy and
// writes the whole table back. Backend failures never reach the caller: the
// store reports them through the failure hook and carries on from its last
// known copy of the table.
package tables

import (
	"bizdesk/pkg/domain"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var _ domain.TableStore = (*Store)(nil)

// FailureHook receives backend errors absorbed by the store.
type FailureHook func(ctx context.Context, entity domain.EntityType, op string, err error)

// Option configures a Store.
type Option func(*Store)

// WithFailureHook registers a callback for absorbed backend errors.
func WithFailureHook(hook FailureHook) Option {
	return func(s *Store) {
		if hook != nil {
			s.onFailure = hook
		}
	}
}

// WithIDGenerator overrides id assignment for inserted records.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// Store is the optimistic whole-table store.
type Store struct {
	backend   domain.TableBackend
	mu        sync.Mutex
	cache     map[domain.EntityType][]domain.Record
	onFailure FailureHook
	newID     func() string
}

// NewStore wraps backend.
func NewStore(backend domain.TableBackend, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		cache:     make(map[domain.EntityType][]domain.Record),
		onFailure: func(context.Context, domain.EntityType, string, error) {},
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the underlying backend.
func (s *Store) Backend() domain.TableBackend { return s.backend }

// List returns every record of the entity table.
func (s *Store) List(ctx context.Context, entity domain.EntityType) []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, entity)
}

// Get returns the record whose normalized id matches.
func (s *Store) Get(ctx context.Context, entity domain.EntityType, id string) (domain.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.load(ctx, entity)
	_, idx, ok := lo.FindIndexOf(rows, matchID(id))
	if !ok {
		return nil, false
	}
	return rows[idx], true
}

// Insert appends the record, assigning an id when absent. A caller id that
// normalizes to one already in the table is replaced by a fresh id.
func (s *Store) Insert(ctx context.Context, entity domain.EntityType, record domain.Record) domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.load(ctx, entity)
	rec := record.Clone()
	if rec == nil {
		rec = domain.Record{}
	}
	taken := lo.SliceToMap(rows, func(r domain.Record) (string, struct{}) { return r.ID(), struct{}{} })
	rec[domain.FieldID] = s.uniqueID(rec.ID(), taken)
	rows = append(rows, rec)
	s.save(ctx, entity, rows)
	return rec.Clone()
}

// Replace overwrites the record with the given id. The stored record keeps
// that id regardless of the id carried by the replacement.
func (s *Store) Replace(ctx context.Context, entity domain.EntityType, id string, record domain.Record) (domain.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.load(ctx, entity)
	_, idx, ok := lo.FindIndexOf(rows, matchID(id))
	if !ok {
		return nil, false
	}
	rec := record.Clone()
	if rec == nil {
		rec = domain.Record{}
	}
	rec[domain.FieldID] = domain.NormalizeID(id)
	rows[idx] = rec
	s.save(ctx, entity, rows)
	return rec.Clone(), true
}

// Remove deletes the record with the given id.
func (s *Store) Remove(ctx context.Context, entity domain.EntityType, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.load(ctx, entity)
	kept := lo.Reject(rows, func(r domain.Record, _ int) bool { return matchID(id)(r) })
	if len(kept) == len(rows) {
		return false
	}
	s.save(ctx, entity, kept)
	return true
}

// Load warms the in-memory copy of every backend table. Later backend read
// failures fall back to this copy.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.backend.Tables(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	for _, entity := range names {
		rows, err := s.backend.LoadTable(ctx, entity)
		if err != nil {
			return fmt.Errorf("load %s: %w", entity, err)
		}
		s.cache[entity] = rows
	}
	return nil
}

// Export returns every stored table.
func (s *Store) Export(ctx context.Context) (domain.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.backend.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	out := make(domain.Dataset, len(names))
	for _, entity := range names {
		rows, err := s.backend.LoadTable(ctx, entity)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", entity, err)
		}
		s.cache[entity] = domain.CloneRecords(rows)
		out[entity] = rows
	}
	return out, nil
}

// Reset replaces every table with the dataset contents. Tables missing from
// the dataset are dropped.
func (s *Store) Reset(ctx context.Context, dataset domain.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.backend.Tables(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	for _, entity := range names {
		if _, keep := dataset[entity]; keep {
			continue
		}
		if err := s.backend.DropTable(ctx, entity); err != nil {
			return fmt.Errorf("drop %s: %w", entity, err)
		}
	}
	s.cache = make(map[domain.EntityType][]domain.Record, len(dataset))
	for entity, rows := range dataset {
		taken := make(map[string]struct{}, len(rows))
		normalized := lo.Map(rows, func(r domain.Record, _ int) domain.Record {
			rec := r.Clone()
			id := s.uniqueID(rec.ID(), taken)
			taken[id] = struct{}{}
			rec[domain.FieldID] = id
			return rec
		})
		if err := s.backend.SaveTable(ctx, entity, normalized); err != nil {
			return fmt.Errorf("reset %s: %w", entity, err)
		}
		s.cache[entity] = normalized
	}
	return nil
}

// Empty reports whether no table holds any record.
func (s *Store) Empty(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.backend.Tables(ctx)
	if err != nil {
		return false, fmt.Errorf("list tables: %w", err)
	}
	for _, entity := range names {
		rows, err := s.backend.LoadTable(ctx, entity)
		if err != nil {
			return false, fmt.Errorf("load %s: %w", entity, err)
		}
		if len(rows) > 0 {
			return false, nil
		}
	}
	return true, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) load(ctx context.Context, entity domain.EntityType) []domain.Record {
	rows, err := s.backend.LoadTable(ctx, entity)
	if err != nil {
		s.onFailure(ctx, entity, "load", err)
		return domain.CloneRecords(s.cache[entity])
	}
	s.cache[entity] = domain.CloneRecords(rows)
	return rows
}

func (s *Store) save(ctx context.Context, entity domain.EntityType, rows []domain.Record) {
	s.cache[entity] = domain.CloneRecords(rows)
	if err := s.backend.SaveTable(ctx, entity, rows); err != nil {
		s.onFailure(ctx, entity, "save", err)
	}
}

// uniqueID returns want when it is set and free, otherwise a generated id
// not present in taken.
func (s *Store) uniqueID(want string, taken map[string]struct{}) string {
	if want != "" {
		if _, dup := taken[want]; !dup {
			return want
		}
	}
	for {
		id := s.newID()
		if _, dup := taken[id]; !dup && id != "" {
			return id
		}
	}
}

func matchID(id string) func(domain.Record) bool {
	want := domain.NormalizeID(id)
	return func(r domain.Record) bool {
		return want != "" && r.ID() == want
	}
}
