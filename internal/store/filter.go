package store

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Operator identifies a filter node kind.
type Operator string

const (
	OpEqual        Operator = "Equal"
	OpTextContains Operator = "TextContains"
	OpAnd          Operator = "And"
	OpOr           Operator = "Or"
)

// Filter is a property filter tree. Leaf nodes (Equal, TextContains)
// carry Key and Value; branch nodes (And, Or) carry Operands.
type Filter struct {
	Op       Operator
	Key      string
	Value    any
	Operands []*Filter
}

// Equal builds an exact-match leaf.
func Equal(key string, value any) *Filter {
	return &Filter{Op: OpEqual, Key: key, Value: value}
}

// TextContains builds a case-insensitive substring leaf.
func TextContains(key, substr string) *Filter {
	return &Filter{Op: OpTextContains, Key: key, Value: strings.ToLower(substr)}
}

// And combines filters conjunctively.
func And(operands ...*Filter) *Filter {
	return &Filter{Op: OpAnd, Operands: operands}
}

// Or combines filters disjunctively.
func Or(operands ...*Filter) *Filter {
	return &Filter{Op: OpOr, Operands: operands}
}

// NormalizeFilters converts app-level key/value filters into a filter
// tree:
//   - strings → case-insensitive substring match (TextContains)
//   - numbers and bools → Equal
//   - lists → Or of each element under the rules above
//
// Multiple keys combine with And; a single key returns its node
// unwrapped; nil or empty input returns nil. Keys are processed in
// sorted order so the tree shape is deterministic.
func NormalizeFilters(filters map[string]any) *Filter {
	if len(filters) == 0 {
		return nil
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ops := make([]*Filter, 0, len(keys))
	for _, k := range keys {
		switch v := filters[k].(type) {
		case []any:
			sub := make([]*Filter, 0, len(v))
			for _, item := range v {
				sub = append(sub, scalarFilter(k, item))
			}
			ops = append(ops, Or(sub...))
		case []string:
			sub := make([]*Filter, 0, len(v))
			for _, item := range v {
				sub = append(sub, TextContains(k, item))
			}
			ops = append(ops, Or(sub...))
		default:
			ops = append(ops, scalarFilter(k, v))
		}
	}

	if len(ops) == 1 {
		return ops[0]
	}
	return And(ops...)
}

func scalarFilter(key string, v any) *Filter {
	switch val := v.(type) {
	case bool:
		return Equal(key, val)
	case int, int32, int64, float32, float64:
		return Equal(key, val)
	case string:
		return TextContains(key, val)
	default:
		return TextContains(key, fmt.Sprint(val))
	}
}

// Match evaluates the filter against a property map. A nil filter
// matches everything; a leaf whose key is absent matches nothing.
func (f *Filter) Match(props map[string]any) bool {
	if f == nil {
		return true
	}
	switch f.Op {
	case OpAnd:
		for _, op := range f.Operands {
			if !op.Match(props) {
				return false
			}
		}
		return true
	case OpOr:
		for _, op := range f.Operands {
			if op.Match(props) {
				return true
			}
		}
		return false
	case OpEqual:
		v, ok := props[f.Key]
		if !ok {
			return false
		}
		return looseEqual(v, f.Value)
	case OpTextContains:
		v, ok := props[f.Key]
		if !ok {
			return false
		}
		want, _ := f.Value.(string)
		return strings.Contains(strings.ToLower(stringify(v)), want)
	default:
		return false
	}
}

// looseEqual compares values across numeric types, so an int property
// matches a float64 filter value (the shape JSON decoding produces).
func looseEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return stringify(a) == stringify(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(v)
	}
}
