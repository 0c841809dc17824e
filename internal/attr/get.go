package attr

import (
	"errors"
	"fmt"
)

// MissingError reports a required attribute that is not set.
type MissingError struct {
	Key string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required attribute %q", e.Key)
}

// TypeError reports an attribute of the wrong type.
type TypeError struct {
	Key  string
	Want string
	Got  string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("attribute %q: want %s, got %s", e.Key, e.Want, e.Got)
}

// IsMissing reports whether err is a MissingError.
func IsMissing(err error) bool {
	var me *MissingError
	return errors.As(err, &me)
}

func lookup[T Value](s Store, key, want string) (T, error) {
	var zero T
	v, ok := s[key]
	if !ok {
		return zero, &MissingError{Key: key}
	}
	t, ok := v.(T)
	if !ok {
		return zero, &TypeError{Key: key, Want: want, Got: Kind(v)}
	}
	return t, nil
}

// Int returns a required integer attribute.
func (s Store) Int(key string) (int, error) {
	v, err := lookup[Int](s, key, "int")
	return int(v), err
}

// IntOr returns an integer attribute or def when it is not set.
func (s Store) IntOr(key string, def int) (int, error) {
	if !s.Has(key) {
		return def, nil
	}
	return s.Int(key)
}

// String returns a required string attribute.
func (s Store) String(key string) (string, error) {
	v, err := lookup[String](s, key, "string")
	return string(v), err
}

// StringOr returns a string attribute or def when it is not set.
func (s Store) StringOr(key, def string) (string, error) {
	if !s.Has(key) {
		return def, nil
	}
	return s.String(key)
}

// Bool returns a boolean attribute, false when not set.
func (s Store) Bool(key string) (bool, error) {
	if !s.Has(key) {
		return false, nil
	}
	v, err := lookup[Bool](s, key, "bool")
	return bool(v), err
}

// Float returns a required float attribute. Integers widen.
func (s Store) Float(key string) (float64, error) {
	if n, ok := s[key].(Int); ok {
		return float64(n), nil
	}
	v, err := lookup[Float](s, key, "float")
	return float64(v), err
}

// Ints returns a required integer list attribute.
func (s Store) Ints(key string) ([]int, error) {
	v, err := lookup[Ints](s, key, "int list")
	if err != nil {
		return nil, err
	}
	out := make([]int, len(v))
	for i, n := range v {
		out[i] = int(n)
	}
	return out, nil
}

// IntsOr returns an integer list attribute or def when it is not set.
func (s Store) IntsOr(key string, def []int) ([]int, error) {
	if !s.Has(key) {
		return def, nil
	}
	return s.Ints(key)
}

// IntsN returns a required integer list attribute of exactly n elements.
func (s Store) IntsN(key string, n int) ([]int, error) {
	v, err := s.Ints(key)
	if err != nil {
		return nil, err
	}
	if len(v) != n {
		return nil, &TypeError{Key: key, Want: fmt.Sprintf("%d ints", n), Got: fmt.Sprintf("%d ints", len(v))}
	}
	return v, nil
}

// Floats returns a required float list attribute. Integer lists widen.
func (s Store) Floats(key string) ([]float64, error) {
	if ints, ok := s[key].(Ints); ok {
		out := make([]float64, len(ints))
		for i, n := range ints {
			out[i] = float64(n)
		}
		return out, nil
	}
	v, err := lookup[Floats](s, key, "float list")
	return []float64(v), err
}
