package twin

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// Kind is the declared type of a resource value.
type Kind uint8

// Value kinds. KindNone on a resource means the type is not fixed yet; on a
// value it means null.
const (
	KindNone Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindGeo
	KindComposite
)

var kindNames = map[Kind]string{
	KindNone:      "none",
	KindInt:       "int",
	KindFloat:     "float",
	KindString:    "string",
	KindBool:      "bool",
	KindGeo:       "geo",
	KindComposite: "composite",
}

// String returns the lower-case type name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a declared type name to a Kind. The empty string maps to
// KindNone.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "any":
		return KindNone, nil
	case "int", "integer", "long", "short":
		return KindInt, nil
	case "float", "double", "number", "decimal":
		return KindFloat, nil
	case "string", "text":
		return KindString, nil
	case "bool", "boolean":
		return KindBool, nil
	case "geo", "geopoint", "point", "location":
		return KindGeo, nil
	case "composite", "object", "array", "map", "list":
		return KindComposite, nil
	}
	return KindNone, fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Accepts reports whether a resource of kind k can store v. An unfixed
// resource accepts anything, null is accepted by every kind, and floats
// accept integers.
func (k Kind) Accepts(v Value) bool {
	switch {
	case k == KindNone, v.kind == KindNone, k == v.kind:
		return true
	case k == KindFloat && v.kind == KindInt:
		return true
	}
	return false
}

// admits reports whether a resource fixed to k can take a type hint h.
func (k Kind) admits(h Kind) bool {
	return k == KindNone || h == KindNone || k == h || (k == KindFloat && h == KindInt)
}

// GeoPoint is a WGS84 position. Alt is omitted from GeoJSON when zero.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt,omitempty"`
}

// GeoJSON returns the point as a GeoJSON Point object.
func (g GeoPoint) GeoJSON() map[string]any {
	coords := []any{g.Lon, g.Lat}
	if g.Alt != 0 {
		coords = append(coords, g.Alt)
	}
	return map[string]any{"type": "Point", "coordinates": coords}
}

// Value is an immutable tagged union holding one resource value.
// The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    bool
	geo  GeoPoint
	comp any // map[string]any or []any, never shared
}

// Null returns the null value.
func Null() Value { return Value{} }

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float returns a floating-point value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// String returns a string value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Bool returns a boolean value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Geo returns a position value.
func Geo(v GeoPoint) Value { return Value{kind: KindGeo, geo: v} }

// Composite returns a structured value. v must be a map[string]any or []any
// and is deep-copied.
func Composite(v any) (Value, error) {
	switch v.(type) {
	case map[string]any, []any:
		return Value{kind: KindComposite, comp: deepCopyValue(v)}, nil
	}
	return Value{}, fmt.Errorf("%w: composite from %T", ErrTypeMismatch, v)
}

// Kind returns the value's kind. Null values report KindNone.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNone }

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the numeric payload, widening integers.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsGeo returns the position payload.
func (v Value) AsGeo() (GeoPoint, bool) { return v.geo, v.kind == KindGeo }

// Interface returns v as a plain Go value suitable for JSON encoding.
// Composite payloads are copied; positions become GeoJSON points.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBool:
		return v.b
	case KindGeo:
		return v.geo.GeoJSON()
	case KindComposite:
		return deepCopyValue(v.comp)
	}
	return nil
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindComposite:
		return reflect.DeepEqual(v.comp, o.comp)
	default:
		return v.i == o.i && v.f == o.f && v.s == o.s && v.b == o.b && v.geo == o.geo
	}
}

// String formats v for logs.
func (v Value) String() string {
	if v.kind == KindNone {
		return "null"
	}
	return fmt.Sprint(v.Interface())
}

// MarshalJSON encodes the plain form of v.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// coerce widens v to kind k where Accepts allows it.
func (v Value) coerce(k Kind) Value {
	if k == KindFloat && v.kind == KindInt {
		return Float(float64(v.i))
	}
	return v
}

// FromAny converts a decoded JSON or native Go value into a Value.
//
// JSON numbers decode as float64 and become KindFloat unless integral and
// hinted as KindInt by Convert. A map shaped as a GeoJSON Point becomes
// KindGeo; other maps and slices become KindComposite.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
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
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Float(float64(x)), nil
		}
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: number %q", ErrTypeMismatch, x)
		}
		return Float(f), nil
	case string:
		return String(x), nil
	case GeoPoint:
		return Geo(x), nil
	case *GeoPoint:
		if x == nil {
			return Null(), nil
		}
		return Geo(*x), nil
	case map[string]any:
		if g, ok := geoFromMap(x); ok {
			return Geo(g), nil
		}
		return Composite(x)
	case []any:
		return Composite(x)
	}
	return Value{}, fmt.Errorf("%w: unsupported value type %T", ErrTypeMismatch, v)
}

// Convert is FromAny with a type hint. Integral floats are narrowed to
// KindInt when the hint is KindInt, and strings are accepted for KindGeo
// only as GeoJSON text.
func Convert(v any, hint Kind) (Value, error) {
	val, err := FromAny(v)
	if err != nil {
		return Value{}, err
	}
	switch {
	case hint == KindInt && val.kind == KindFloat:
		if val.f == math.Trunc(val.f) && math.Abs(val.f) < math.MaxInt64 {
			return Int(int64(val.f)), nil
		}
	case hint == KindGeo && val.kind == KindString:
		var m map[string]any
		if json.Unmarshal([]byte(val.s), &m) == nil {
			if g, ok := geoFromMap(m); ok {
				return Geo(g), nil
			}
		}
	case hint == KindComposite && val.kind == KindGeo:
		return Value{kind: KindComposite, comp: val.geo.GeoJSON()}, nil
	}
	return val, nil
}

func geoFromMap(m map[string]any) (GeoPoint, bool) {
	if t, _ := m["type"].(string); t != "Point" {
		return GeoPoint{}, false
	}
	coords, ok := m["coordinates"].([]any)
	if !ok || len(coords) < 2 || len(coords) > 3 {
		return GeoPoint{}, false
	}
	nums := make([]float64, len(coords))
	for i, c := range coords {
		f, ok := toFloat(c)
		if !ok {
			return GeoPoint{}, false
		}
		nums[i] = f
	}
	g := GeoPoint{Lon: nums[0], Lat: nums[1]}
	if len(nums) == 3 {
		g.Alt = nums[2]
	}
	return g, true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// TimedValue is an immutable value with the instant it was observed.
// The zero TimedValue means "no value yet".
type TimedValue struct {
	Value     Value     `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// IsZero reports whether no value was ever stored.
func (tv TimedValue) IsZero() bool { return tv.Timestamp.IsZero() }

// MetaValue is one metadata entry with its own timestamp.
type MetaValue struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// DeepCopy returns a deep copy of a JSON-like value.
func DeepCopy(v any) any { return deepCopyValue(v) }
