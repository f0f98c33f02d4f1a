package docstore

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Backends decode numbers differently (int32/int64 from BSON, float64 from JSON),
// so readers go through these helpers instead of type-asserting directly.

// Int reads an integral field. Non-integral floats are rejected.
func (f Fields) Int(key string) (int, bool) {
	v, ok := f[key]
	if !ok {
		return 0, false
	}
	return toInt(v)
}

func (f Fields) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (f Fields) Float(key string) (float64, bool) {
	v, ok := f[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

type timer interface{ Time() time.Time }

// Time reads a timestamp stored natively (time.Time, BSON datetime) or as RFC 3339 text.
func (f Fields) Time(key string) (time.Time, bool) {
	switch v := f[key].(type) {
	case time.Time:
		return v, true
	case timer:
		return v.Time(), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// Decode converts a nested value (array or sub-document) into out through its
// JSON form. A missing key leaves out untouched.
func (f Fields) Decode(key string, out any) error {
	v, ok := f[key]
	if !ok || v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("docstore: encode %s: %w", key, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("docstore: decode %s: %w", key, err)
	}
	return nil
}

// Clone returns a shallow copy of the field map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Compare evaluates "a op b". Numbers compare numerically, everything else
// compares by its string form. Used by the memory backend.
func Compare(a any, op Operator, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return compareOrdered(af, op, bf)
		}
	}
	if a == nil || b == nil {
		return op == OpEQ && a == nil && b == nil
	}
	return compareOrdered(fmt.Sprint(a), op, fmt.Sprint(b))
}

func compareOrdered[T float64 | string](a T, op Operator, b T) bool {
	switch op {
	case OpLT:
		return a < b
	case OpLTE:
		return a <= b
	case OpEQ:
		return a == b
	case OpGTE:
		return a >= b
	case OpGT:
		return a > b
	}
	return false
}
