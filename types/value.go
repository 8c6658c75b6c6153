package types

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the variant held by a Value
type Kind uint8

const (
	// KindUndefined is the zero Kind; an undefined value is treated as absent
	KindUndefined Kind = iota
	// KindNull is an explicit null
	KindNull
	// KindString holds text
	KindString
	// KindNumber holds a float64
	KindNumber
	// KindBool holds a boolean
	KindBool
	// KindDate holds a time.Time
	KindDate
	// KindBlob holds raw bytes
	KindBlob
)

// Type tags used by field descriptors, transformers and adapter constraints
const (
	TagString = "string"
	TagNumber = "number"
	TagBool   = "bool"
	TagDate   = "date"
	TagBlob   = "blob"
	TagNull   = "null"
)

// String returns the type tag of the kind
func (k Kind) String() string {
	switch k {
	case KindNull:
		return TagNull
	case KindString:
		return TagString
	case KindNumber:
		return TagNumber
	case KindBool:
		return TagBool
	case KindDate:
		return TagDate
	case KindBlob:
		return TagBlob
	default:
		return "undefined"
	}
}

// Value is a tagged variant holding one document field value.
// The zero Value is undefined.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
	blob []byte
}

// Undefined returns the undefined value
func Undefined() Value { return Value{} }

// Null returns an explicit null value
func Null() Value { return Value{kind: KindNull} }

// String wraps a string
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a float64
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Int wraps an integer as a number
func Int(n int64) Value { return Value{kind: KindNumber, num: float64(n)} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Date wraps a time.Time. The monotonic clock reading is stripped.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t.Round(0)} }

// Blob wraps a copy of b
func Blob(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBlob, blob: cp}
}

// ValueOf coerces a plain Go value into a Value
func ValueOf(v interface{}) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case float32:
		return Number(float64(x)), nil
	case float64:
		return Number(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", x.String(), err)
		}
		return Number(f), nil
	case time.Time:
		return Date(x), nil
	case *time.Time:
		if x == nil {
			return Null(), nil
		}
		return Date(*x), nil
	case []byte:
		return Blob(x), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

// MustValueOf is ValueOf that panics on unsupported types. Intended for literals in tests and examples.
func MustValueOf(v interface{}) Value {
	val, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return val
}

// Kind returns the variant tag
func (v Value) Kind() Kind { return v.kind }

// Tag returns the runtime type tag ("string", "number", ...)
func (v Value) Tag() string { return v.kind.String() }

// IsUndefined reports whether the value is absent
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// IsNull reports whether the value is an explicit null
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNil reports whether the value is null or undefined
func (v Value) IsNil() bool { return v.kind == KindUndefined || v.kind == KindNull }

// Str returns the string payload and whether the value is a string
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the number payload and whether the value is a number
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Boolean returns the bool payload and whether the value is a bool
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Time returns the date payload and whether the value is a date
func (v Value) Time() (time.Time, bool) { return v.t, v.kind == KindDate }

// Bytes returns a copy of the blob payload and whether the value is a blob
func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBlob {
		return nil, false
	}
	cp := make([]byte, len(v.blob))
	copy(cp, v.blob)
	return cp, true
}

// Clone returns a deep copy
func (v Value) Clone() Value {
	if v.kind == KindBlob {
		return Blob(v.blob)
	}
	return v
}

// Interface returns the plain Go representation (nil for null and undefined)
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindDate:
		return v.t
	case KindBlob:
		b, _ := v.Bytes()
		return b
	default:
		return nil
	}
}

// Equal reports deep equality. Dates compare by instant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindDate:
		return v.t.Equal(o.t)
	case KindBlob:
		return bytes.Equal(v.blob, o.blob)
	default:
		return true
	}
}

// Compare orders two values of the same comparable kind.
// The second result is false when the values cannot be ordered.
func (v Value) Compare(o Value) (int, bool) {
	if v.kind != o.kind {
		return 0, false
	}
	switch v.kind {
	case KindString:
		return strings.Compare(v.str, o.str), true
	case KindNumber:
		switch {
		case v.num < o.num:
			return -1, true
		case v.num > o.num:
			return 1, true
		}
		return 0, true
	case KindDate:
		return v.t.Compare(o.t), true
	case KindBool:
		switch {
		case v.b == o.b:
			return 0, true
		case !v.b:
			return -1, true
		}
		return 1, true
	default:
		return 0, false
	}
}

// IndexKey returns the canonical bucket key for the value. Two values share a
// key exactly when they are Equal. Null, undefined, blob and NaN values are
// not indexable.
func (v Value) IndexKey() (string, bool) {
	switch v.kind {
	case KindString:
		return "s:" + v.str, true
	case KindNumber:
		if math.IsNaN(v.num) {
			return "", false
		}
		n := v.num
		if n == 0 {
			n = 0 // -0 and 0 are Equal
		}
		return "n:" + strconv.FormatFloat(n, 'g', -1, 64), true
	case KindBool:
		return "b:" + strconv.FormatBool(v.b), true
	case KindDate:
		return "d:" + v.t.UTC().Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}

// IsFinite reports whether a number is neither NaN nor infinite. Non-numbers are finite.
func (v Value) IsFinite() bool {
	if v.kind != KindNumber {
		return true
	}
	return !math.IsNaN(v.num) && !math.IsInf(v.num, 0)
}

// String renders the value for messages and logs
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindString:
		return strconv.Quote(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return v.t.Format(time.RFC3339Nano)
	case KindBlob:
		return fmt.Sprintf("blob(%d bytes)", len(v.blob))
	}
	return "?"
}

// MarshalJSON renders dates as RFC 3339 text and blobs as base64
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindDate:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	case KindBlob:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.blob))
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON accepts any JSON scalar
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	val, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (v Value) MarshalYAML() (interface{}, error) {
	if v.kind == KindBlob {
		return base64.StdEncoding.EncodeToString(v.blob), nil
	}
	return v.Interface(), nil
}
