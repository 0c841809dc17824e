// Package attr is the key/value attribute store that configures one
// operator instance: shapes, pad/stride/kernel/dilation, fix points and the
// nonlinear selection.
package attr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Value is a sealed interface over the attribute value types. Only String,
// Int, Bool, Float, Ints and Floats implement it.
type Value interface {
	attrValue()
}

// String is a string attribute.
type String string

func (String) attrValue() {}

// Int is an integer attribute.
type Int int64

func (Int) attrValue() {}

// Bool is a boolean attribute.
type Bool bool

func (Bool) attrValue() {}

// Float is a floating point attribute.
type Float float64

func (Float) attrValue() {}

// Ints is an integer list attribute.
type Ints []int64

func (Ints) attrValue() {}

// Floats is a float list attribute.
type Floats []float64

func (Floats) attrValue() {}

// IntList builds an Ints value from ints.
func IntList(vs ...int) Ints {
	out := make(Ints, len(vs))
	for i, v := range vs {
		out[i] = int64(v)
	}
	return out
}

// Kind names the dynamic type of v.
func Kind(v Value) string {
	switch v.(type) {
	case String:
		return "string"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Float:
		return "float"
	case Ints:
		return "int list"
	case Floats:
		return "float list"
	}
	return fmt.Sprintf("%T", v)
}

// FromAny converts a decoded JSON, YAML or CUE value into a Value. Whole
// numbers become Int; a list becomes Ints when every element is whole and
// Floats otherwise.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null attribute")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", val)
		}
		return Int(val), nil
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return Int(int64(val)), nil
		}
		return Float(val), nil
	case json.Number:
		return fromNumber(val)
	case []any:
		return listFromAny(val)
	case []int:
		return IntList(val...), nil
	case []int64:
		return Ints(val), nil
	case []float64:
		return Floats(val), nil
	}
	return nil, fmt.Errorf("unsupported attribute type %T", v)
}

func fromNumber(n json.Number) (Value, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, err
	}
	return Float(f), nil
}

func listFromAny(vals []any) (Value, error) {
	ints := make(Ints, 0, len(vals))
	floats := make(Floats, 0, len(vals))
	whole := true
	for i, e := range vals {
		v, err := FromAny(e)
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		switch n := v.(type) {
		case Int:
			ints = append(ints, int64(n))
			floats = append(floats, float64(n))
		case Float:
			whole = false
			floats = append(floats, float64(n))
		default:
			return nil, fmt.Errorf("list[%d]: %s in numeric list", i, Kind(v))
		}
	}
	if whole {
		return ints, nil
	}
	return floats, nil
}

// Store maps attribute names to values. Use SortedKeys for deterministic
// iteration.
type Store map[string]Value

// FromMap converts a decoded map into a Store.
func FromMap(m map[string]any) (Store, error) {
	s := make(Store, len(m))
	for k, v := range m {
		val, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		s[k] = val
	}
	return s, nil
}

// SortedKeys returns the attribute names in byte order.
func (s Store) SortedKeys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Has reports whether key is set.
func (s Store) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// UnmarshalJSON decodes a JSON object, keeping integers exact.
func (s *Store) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	st, err := FromMap(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// MarshalJSON encodes the store with sorted keys.
func (s Store) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(s[k])
		if err != nil {
			return nil, fmt.Errorf("marshal attribute %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
