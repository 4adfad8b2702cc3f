package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date layout used for every stored date field.
const DateLayout = "2006-01-02"

// Record is a dynamic, JSON compatible entity row.
type Record map[string]any

// ID returns the canonical string form of the record id.
func (r Record) ID() string {
	return NormalizeID(r[FieldID])
}

// Ref returns the canonical id stored in a reference field such as orderRef.
func (r Record) Ref(field string) string {
	return NormalizeID(r[field])
}

// Fields returns the sorted field names present on the record.
func (r Record) Fields() []string {
	keys := lo.Keys(map[string]any(r))
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the record. Nested maps and slices are copied
// so callers can mutate the result freely.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge returns a copy of r overlaid with the payload fields.
func (r Record) Merge(payload Record) Record {
	out := r.Clone()
	if out == nil {
		out = Record{}
	}
	for k, v := range payload {
		out[k] = cloneValue(v)
	}
	return out
}

// Has reports whether the field is present and non-nil.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// String returns the field as a string when it holds one.
func (r Record) String(field string) mo.Option[string] {
	switch v := r[field].(type) {
	case string:
		return mo.Some(v)
	case fmt.Stringer:
		return mo.Some(v.String())
	default:
		return mo.None[string]()
	}
}

// Decimal returns the field as a decimal. Numeric JSON values, numeric
// strings and decimal values are accepted; anything else is absent.
func (r Record) Decimal(field string) mo.Option[decimal.Decimal] {
	d, ok := toDecimal(r[field])
	if !ok {
		return mo.None[decimal.Decimal]()
	}
	return mo.Some(d)
}

// Date returns the field as a calendar date in UTC.
func (r Record) Date(field string) mo.Option[time.Time] {
	switch v := r[field].(type) {
	case time.Time:
		return mo.Some(TruncateDate(v))
	case string:
		if t, ok := ParseDate(v); ok {
			return mo.Some(t)
		}
	}
	return mo.None[time.Time]()
}

// SetDecimal stores d as a JSON number.
func (r Record) SetDecimal(field string, d decimal.Decimal) {
	r[field] = d.InexactFloat64()
}

// SetDate stores t as a YYYY-MM-DD string.
func (r Record) SetDate(field string, t time.Time) {
	r[field] = t.Format(DateLayout)
}

// ParseDate accepts YYYY-MM-DD and RFC 3339 timestamps and returns the UTC
// calendar date.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return TruncateDate(t), true
	}
	return time.Time{}, false
}

// TruncateDate drops the time-of-day component.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeID converts a raw id value into its canonical string form so that
// numeric and string ids compare equal.
func NormalizeID(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return NormalizeID(float64(v))
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

func toDecimal(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int32:
		return decimal.NewFromInt32(v), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Record(t).Clone())
	case Record:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// CloneRecords deep-copies a slice of records.
func CloneRecords(rows []Record) []Record {
	if rows == nil {
		return nil
	}
	return lo.Map(rows, func(r Record, _ int) Record { return r.Clone() })
}
