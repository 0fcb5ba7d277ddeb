package model

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind discriminates the variants of a field Value.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindList
	KindMap
)

// Value is a tagged union for extracted field values. Field names are
// arbitrary at runtime, so values carry their own type rather than being
// mapped onto a fixed struct.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	List []Value
	Map  map[string]Value
}

// Str creates a string value.
func Str(s string) Value { return Value{Kind: KindString, Str: s} }

// Num creates a numeric value.
func Num(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// BoolVal creates a boolean value.
func BoolVal(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// ListOf creates a list value.
func ListOf(items ...Value) Value { return Value{Kind: KindList, List: items} }

// MapOf creates a map value.
func MapOf(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }

// Empty reports whether the value carries no usable content.
func (v Value) Empty() bool {
	switch v.Kind {
	case KindString:
		return strings.TrimSpace(v.Str) == ""
	case KindList:
		return len(v.List) == 0
	case KindMap:
		return len(v.Map) == 0
	default:
		return false
	}
}

// EqualFold compares two values, case-insensitively for strings. Used by
// the merger's list de-duplication.
func (v Value) EqualFold(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return strings.EqualFold(strings.TrimSpace(v.Str), strings.TrimSpace(other.Str))
	case KindNumber:
		return v.Num == other.Num
	case KindBool:
		return v.Bool == other.Bool
	case KindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].EqualFold(other.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.Map) != len(other.Map) {
			return false
		}
		for k, val := range v.Map {
			ov, ok := other.Map[k]
			if !ok || !val.EqualFold(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Text renders the value as a flat string for keyword matching and audit
// output. Lists join with ", "; maps join sorted "k: v" pairs.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		b, _ := json.Marshal(v.Num)
		return string(b)
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindList:
		parts := make([]string, 0, len(v.List))
		for _, item := range v.List {
			parts = append(parts, item.Text())
		}
		return strings.Join(parts, ", ")
	case KindMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+v.Map[k].Text())
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

// MarshalJSON emits the natural JSON form of the value.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case KindMap:
		if v.Map == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.Map)
	}
	return []byte("null"), nil
}

// UnmarshalJSON infers the variant from the JSON token.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*v = Value{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "model: unmarshal string value")
		}
		*v = Str(s)
	case '[':
		var list []Value
		if err := json.Unmarshal(data, &list); err != nil {
			return eris.Wrap(err, "model: unmarshal list value")
		}
		*v = Value{Kind: KindList, List: list}
	case '{':
		var m map[string]Value
		if err := json.Unmarshal(data, &m); err != nil {
			return eris.Wrap(err, "model: unmarshal map value")
		}
		*v = Value{Kind: KindMap, Map: m}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return eris.Wrap(err, "model: unmarshal bool value")
		}
		*v = BoolVal(b)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return eris.Wrap(err, "model: unmarshal numeric value")
		}
		*v = Num(n)
	}
	return nil
}

// FromAny converts a decoded JSON any (string/float64/bool/[]any/map[string]any)
// into a Value. Unknown types become their string form.
func FromAny(raw any) Value {
	switch t := raw.(type) {
	case string:
		return Str(t)
	case float64:
		return Num(t)
	case int:
		return Num(float64(t))
	case int64:
		return Num(float64(t))
	case bool:
		return BoolVal(t)
	case []any:
		list := make([]Value, 0, len(t))
		for _, item := range t {
			list = append(list, FromAny(item))
		}
		return Value{Kind: KindList, List: list}
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = FromAny(item)
		}
		return Value{Kind: KindMap, Map: m}
	case nil:
		return Value{}
	default:
		b, _ := json.Marshal(t)
		return Str(string(b))
	}
}
