package store

import (
	"sort"
	"strings"
	"time"

	"github.com/TheMichaelB/docvault/internal/models"
)

// Op is a filter operator.
type Op int

const (
	// OpEq matches equal values; on list fields it matches any element.
	OpEq Op = iota
	// OpContains is a case-insensitive substring match on strings and on
	// each element of list fields.
	OpContains
	// OpRange matches Min <= value <= Max. A nil bound is open.
	OpRange
)

// Filter restricts a query on one named field. Records without the field
// never match.
type Filter struct {
	Field string
	Op    Op
	Value any
	Min   any
	Max   any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// Contains builds a substring filter.
func Contains(field, value string) Filter {
	return Filter{Field: field, Op: OpContains, Value: value}
}

// Range builds an inclusive range filter.
func Range(field string, min, max any) Filter {
	return Filter{Field: field, Op: OpRange, Min: min, Max: max}
}

// Sort orders query results by Field. Ties, and records missing the field,
// fall back to id ascending; missing values sort last.
type Sort struct {
	Field string
	Desc  bool
}

// Query selects and orders records of one collection.
type Query struct {
	Filters []Filter
	Sort    Sort
	Limit   int
}

// Apply filters and sorts records in memory.
func (q Query) Apply(records []models.Record) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, rec := range records {
		if q.matches(rec) {
			out = append(out, rec)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if q.Sort.Field != "" && q.Sort.Field != "id" {
			a, aok := out[i].FieldValue(q.Sort.Field)
			b, bok := out[j].FieldValue(q.Sort.Field)
			switch {
			case aok && !bok:
				return true
			case !aok && bok:
				return false
			case aok && bok:
				if c, ok := compare(a, b); ok && c != 0 {
					if q.Sort.Desc {
						return c > 0
					}
					return c < 0
				}
			}
		}
		if q.Sort.Field == "id" && q.Sort.Desc {
			return out[i].RecordID() > out[j].RecordID()
		}
		return out[i].RecordID() < out[j].RecordID()
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (q Query) matches(rec models.Record) bool {
	for _, f := range q.Filters {
		v, ok := rec.FieldValue(f.Field)
		if !ok || !f.matches(v) {
			return false
		}
	}
	return true
}

func (f Filter) matches(v any) bool {
	if list, ok := v.([]string); ok {
		for _, item := range list {
			if f.matches(item) {
				return true
			}
		}
		return false
	}

	switch f.Op {
	case OpEq:
		c, ok := compare(v, f.Value)
		return ok && c == 0
	case OpContains:
		s, ok := v.(string)
		needle, nok := f.Value.(string)
		return ok && nok && strings.Contains(strings.ToLower(s), strings.ToLower(needle))
	case OpRange:
		if f.Min != nil {
			if c, ok := compare(v, f.Min); !ok || c < 0 {
				return false
			}
		}
		if f.Max != nil {
			if c, ok := compare(v, f.Max); !ok || c > 0 {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// compare orders two field values of the same kind. The second result is
// false when the values are not comparable.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
		if y, ok := b.(models.DocumentType); ok {
			return strings.Compare(x, string(y)), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	}

	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
