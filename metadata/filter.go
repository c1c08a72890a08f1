package metadata

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidFilter is returned for malformed filters.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrSchemaViolation is returned when a document does not match the schema.
	ErrSchemaViolation = errors.New("schema violation")
)

// Field selects what a Filter inspects.
type Field uint8

const (
	// FieldRange compares a numeric metadata field.
	FieldRange Field = iota + 1
	// FieldCategory matches a string or string-array metadata field.
	FieldCategory
	// FieldScore compares the similarity score of the candidate.
	FieldScore
	// FieldCustom calls a caller-supplied predicate.
	FieldCustom
)

func (f Field) String() string {
	switch f {
	case FieldRange:
		return "range"
	case FieldCategory:
		return "category"
	case FieldScore:
		return "score"
	case FieldCustom:
		return "custom"
	default:
		return fmt.Sprintf("field(%d)", uint8(f))
	}
}

// Operator is a comparison operator.
type Operator uint8

const (
	OpEq Operator = iota + 1
	OpGe
	OpLe
	// OpRange matches Min <= x <= Max.
	OpRange
	// OpContains matches an array element or a substring.
	OpContains
)

func (o Operator) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpGe:
		return "ge"
	case OpLe:
		return "le"
	case OpRange:
		return "range"
	case OpContains:
		return "contains"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Predicate is the body of a custom filter.
type Predicate func(id uint64, doc Document) bool

// Filter is one search predicate. The Field tag decides which of the other
// members are used.
type Filter struct {
	Field    Field
	Operator Operator
	// Key names the metadata field for range and category filters.
	Key   string
	Value Value
	// Min and Max bound OpRange inclusively.
	Min, Max  float64
	Predicate Predicate
}

// Range returns a numeric comparison on key.
func Range(key string, op Operator, v float64) Filter {
	return Filter{Field: FieldRange, Operator: op, Key: key, Value: Float(v)}
}

// Between matches lo <= doc[key] <= hi.
func Between(key string, lo, hi float64) Filter {
	return Filter{Field: FieldRange, Operator: OpRange, Key: key, Min: lo, Max: hi}
}

// Category matches doc[key] == value.
func Category(key, value string) Filter {
	return Filter{Field: FieldCategory, Operator: OpEq, Key: key, Value: String(value)}
}

// HasCategory matches when the array doc[key] contains value, or the string
// doc[key] contains it as a substring.
func HasCategory(key, value string) Filter {
	return Filter{Field: FieldCategory, Operator: OpContains, Key: key, Value: String(value)}
}

// Score compares the candidate's similarity score.
func Score(op Operator, v float64) Filter {
	return Filter{Field: FieldScore, Operator: op, Value: Float(v)}
}

// ScoreBetween matches lo <= score <= hi.
func ScoreBetween(lo, hi float64) Filter {
	return Filter{Field: FieldScore, Operator: OpRange, Min: lo, Max: hi}
}

// Custom wraps a predicate.
func Custom(p Predicate) Filter {
	return Filter{Field: FieldCustom, Predicate: p}
}

// Validate checks that the operator fits the field.
func (f *Filter) Validate() error {
	switch f.Field {
	case FieldRange, FieldScore:
		switch f.Operator {
		case OpEq, OpGe, OpLe:
			if _, ok := f.Value.AsNumber(); !ok {
				return fmt.Errorf("%w: %s filter needs a numeric value", ErrInvalidFilter, f.Field)
			}
		case OpRange:
			if f.Min > f.Max {
				return fmt.Errorf("%w: range [%g, %g] is empty", ErrInvalidFilter, f.Min, f.Max)
			}
		default:
			return fmt.Errorf("%w: operator %s not valid for %s", ErrInvalidFilter, f.Operator, f.Field)
		}
		if f.Field == FieldRange && f.Key == "" {
			return fmt.Errorf("%w: range filter without key", ErrInvalidFilter)
		}
	case FieldCategory:
		if f.Operator != OpEq && f.Operator != OpContains {
			return fmt.Errorf("%w: operator %s not valid for category", ErrInvalidFilter, f.Operator)
		}
		if f.Key == "" {
			return fmt.Errorf("%w: category filter without key", ErrInvalidFilter)
		}
	case FieldCustom:
		if f.Predicate == nil {
			return fmt.Errorf("%w: custom filter without predicate", ErrInvalidFilter)
		}
	default:
		return fmt.Errorf("%w: unknown field %s", ErrInvalidFilter, f.Field)
	}
	return nil
}

// Candidate is what a filter is evaluated against.
type Candidate struct {
	ID    uint64
	Doc   Document
	Score float32
}

// Match evaluates f against c.
func (f *Filter) Match(c Candidate) bool {
	switch f.Field {
	case FieldRange:
		v, ok := c.Doc[f.Key]
		if !ok {
			return false
		}
		x, ok := v.AsNumber()
		return ok && f.compare(x)
	case FieldCategory:
		v, ok := c.Doc[f.Key]
		if !ok {
			return false
		}
		if f.Operator == OpEq {
			return v.Equal(f.Value)
		}
		return contains(v, f.Value)
	case FieldScore:
		return f.compareScore(c.Score)
	case FieldCustom:
		return f.Predicate(c.ID, c.Doc)
	default:
		return false
	}
}

func (f *Filter) compare(x float64) bool {
	if f.Operator == OpRange {
		return x >= f.Min && x <= f.Max
	}
	y, _ := f.Value.AsNumber()
	switch f.Operator {
	case OpEq:
		return x == y
	case OpGe:
		return x >= y
	case OpLe:
		return x <= y
	default:
		return false
	}
}

// compareScore compares in float32 so a bound given as a float64 literal
// matches the float32 score it was written for.
func (f *Filter) compareScore(x float32) bool {
	if f.Operator == OpRange {
		return x >= float32(f.Min) && x <= float32(f.Max)
	}
	y, _ := f.Value.AsNumber()
	bound := float32(y)
	switch f.Operator {
	case OpEq:
		return x == bound
	case OpGe:
		return x >= bound
	case OpLe:
		return x <= bound
	default:
		return false
	}
}

func contains(v, want Value) bool {
	switch v.Kind {
	case KindArray:
		for _, e := range v.A {
			if e.Equal(want) {
				return true
			}
		}
		return false
	case KindString:
		s, ok := want.AsString()
		return ok && strings.Contains(v.StringValue(), s)
	default:
		return false
	}
}

// FilterSet combines filters with AND.
type FilterSet []Filter

// Validate validates every filter.
func (fs FilterSet) Validate() error {
	for i := range fs {
		if err := fs[i].Validate(); err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
	}
	return nil
}

// Match reports whether c satisfies every filter. An empty set matches.
func (fs FilterSet) Match(c Candidate) bool {
	for i := range fs {
		if !fs[i].Match(c) {
			return false
		}
	}
	return true
}

// NeedsDocument reports whether evaluation reads metadata.
func (fs FilterSet) NeedsDocument() bool {
	for i := range fs {
		if fs[i].Field != FieldScore {
			return true
		}
	}
	return false
}
