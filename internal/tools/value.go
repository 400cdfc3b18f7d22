package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

// Value is a loosely typed tool argument: a string, number, bool or list.
// Nested JSON objects are kept as their compact JSON text in a string Value.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
}

// String, Number, Bool and List construct Values.
func String(s string) Value     { return Value{kind: KindString, str: s} }
func Number(n float64) Value    { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Kind returns the variant held.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is absent or JSON null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string variant.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the number variant. Numeric strings are accepted.
func (v Value) Num() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		return n, err == nil
	}
	return 0, false
}

// Bool returns the bool variant. "true"/"false" strings are accepted.
func (v Value) Bool() (bool, bool) {
	switch v.kind {
	case KindBool:
		return v.b, true
	case KindString:
		b, err := strconv.ParseBool(v.str)
		return b, err == nil
	}
	return false, false
}

// List returns the list variant.
func (v Value) List() ([]Value, bool) { return v.list, v.kind == KindList }

// String renders the value as plain text: strings verbatim, integers without
// a fraction, lists as comma separated items in brackets.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return ""
	}
}

// MarshalJSON encodes the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes any JSON value.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("decode value: empty input")
	}
	switch data[0] {
	case 'n':
		*v = Value{}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode string value: %w", err)
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("decode bool value: %w", err)
		}
		*v = Bool(b)
	case '[':
		var items []Value
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("decode list value: %w", err)
		}
		*v = List(items...)
	case '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return fmt.Errorf("decode object value: %w", err)
		}
		*v = String(buf.String())
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("decode number value: %w", err)
		}
		*v = Number(n)
	}
	return nil
}

// Args maps argument names to values.
type Args map[string]Value

// String returns the text form of key, or "" if absent.
func (a Args) String(key string) string {
	v, ok := a[key]
	if !ok {
		return ""
	}
	return v.String()
}

// Has reports whether key is present and non-null.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && !v.IsNull()
}

// Keys returns the argument names in sorted order.
func (a Args) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stringify flattens the arguments to text for result echoes.
func (a Args) Stringify() map[string]string {
	out := make(map[string]string, len(a))
	for k, v := range a {
		out[k] = v.String()
	}
	return out
}

// Signature is "k1=kind:v1,k2=kind:v2" with keys sorted; identical
// arguments always produce identical signatures and values of different
// kinds never collide.
func (a Args) Signature() string {
	keys := a.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + a[k].signature()
	}
	return strings.Join(parts, ",")
}

// ParseArgs decodes a JSON object into Args. Empty input yields empty Args.
func ParseArgs(raw []byte) (Args, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Args{}, nil
	}
	var a Args
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode tool arguments: %w", err)
	}
	if a == nil {
		a = Args{}
	}
	return a, nil
}

// signature renders v with its kind so that "1" and 1 differ.
func (v Value) signature() string {
	if v.kind != KindList {
		return v.kind.String() + ":" + strconv.Quote(v.String())
	}
	items := make([]string, len(v.list))
	for i, item := range v.list {
		items[i] = item.signature()
	}
	return "list:[" + strings.Join(items, ",") + "]"
}
