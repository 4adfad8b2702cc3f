// Package seed provides the embedded demo dataset.
package seed

import (
	"bizdesk/pkg/domain"
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var source []byte

// Dataset returns a fresh copy of the embedded demo dataset.
func Dataset() (domain.Dataset, error) {
	return Decode(source)
}

// Target is a table store that can be replaced wholesale.
type Target interface {
	Empty(ctx context.Context) (bool, error)
	Reset(ctx context.Context, dataset domain.Dataset) error
}

// Apply replaces every table in target with the demo dataset.
func Apply(ctx context.Context, target Target) error {
	ds, err := Dataset()
	if err != nil {
		return err
	}
	if err := target.Reset(ctx, ds); err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	return nil
}

// ApplyIfEmpty seeds target only when it holds no records. It reports whether
// the seed was applied.
func ApplyIfEmpty(ctx context.Context, target Target) (bool, error) {
	empty, err := target.Empty(ctx)
	if err != nil {
		return false, fmt.Errorf("check empty: %w", err)
	}
	if !empty {
		return false, nil
	}
	return true, Apply(ctx, target)
}

// Decode parses a YAML document mapping entity names to record lists.
func Decode(data []byte) (domain.Dataset, error) {
	var raw map[string][]map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	out := make(domain.Dataset, len(raw))
	for name, rows := range raw {
		entity := domain.EntityType(name)
		if err := domain.ValidateEntity(entity); err != nil {
			return nil, err
		}
		table := make([]domain.Record, 0, len(rows))
		for i, row := range rows {
			rec := make(domain.Record, len(row))
			for field, v := range row {
				rec[field] = normalize(v)
			}
			if rec.ID() == "" {
				return nil, fmt.Errorf("seed %s[%d]: missing id", entity, i)
			}
			rec[domain.FieldID] = rec.ID()
			table = append(table, rec)
		}
		out[entity] = table
	}
	return out, nil
}

// normalize maps YAML scalars onto the JSON value space used by stored
// records.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case time.Time:
		return t.UTC().Format(domain.DateLayout)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
