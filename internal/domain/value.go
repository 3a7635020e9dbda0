package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
)

// ValueKind — тип значения metadata.
type ValueKind uint8

const (
	KindString ValueKind = iota + 1
	KindNumber
	KindBool
	KindObject
)

// String возвращает имя типа.
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	default:
		return "invalid"
	}
}

// Value — значение metadata job'а.
//
// Тегированное значение: строка, число, bool или вложенный объект.
// null и массивы не поддерживаются. Нулевое значение Value невалидно.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	obj  map[string]Value
}

// StringValue создаёт строковое значение.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue создаёт числовое значение.
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }

// BoolValue создаёт логическое значение.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// ObjectValue создаёт объект. Map копируется.
func ObjectValue(m map[string]Value) Value {
	obj := make(map[string]Value, len(m))
	for k, v := range m {
		obj[k] = v.Clone()
	}
	return Value{kind: KindObject, obj: obj}
}

// Kind возвращает тип значения.
func (v Value) Kind() ValueKind { return v.kind }

// IsValid возвращает false для нулевого Value.
func (v Value) IsValid() bool { return v.kind != 0 }

// AsString возвращает строку, если значение строковое.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber возвращает число, если значение числовое.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool возвращает bool, если значение логическое.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsObject возвращает копию объекта, если значение — объект.
func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return maps.Clone(v.obj), true
}

// Clone возвращает глубокую копию.
func (v Value) Clone() Value {
	if v.kind != KindObject {
		return v
	}
	return ObjectValue(v.obj)
}

// Equal сравнивает значения структурно.
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
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, a := range v.obj {
			b, ok := o.obj[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Interface конвертирует значение в обычные Go-типы (string, float64, bool, map[string]any).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindObject:
		m := make(map[string]any, len(v.obj))
		for k, val := range v.obj {
			m[k] = val.Interface()
		}
		return m
	default:
		return nil
	}
}

// ValueFromInterface конвертирует результат json.Unmarshal в Value.
func ValueFromInterface(x any) (Value, error) {
	switch t := x.(type) {
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case float64:
		return NumberValue(t), nil
	case int:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid number %q", ErrValidation, t)
		}
		return NumberValue(n), nil
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, raw := range t {
			val, err := ValueFromInterface(raw)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			obj[k] = val
		}
		return Value{kind: KindObject, obj: obj}, nil
	case nil:
		return Value{}, fmt.Errorf("%w: null values are not supported", ErrValidation)
	default:
		return Value{}, fmt.Errorf("%w: unsupported value type %T", ErrValidation, x)
	}
}

// MarshalJSON реализует json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.IsValid() {
		return []byte("null"), nil
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON реализует json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	val, err := ValueFromInterface(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// String возвращает JSON-представление (для логов и CLI).
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "<invalid>"
	}
	return string(b)
}

// Metadata — metadata job'а: ключ → значение.
type Metadata map[string]Value

// Clone возвращает глубокую копию.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// Keys возвращает отсортированный список ключей.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MetadataFromMap конвертирует map[string]any в Metadata.
func MetadataFromMap(raw map[string]any) (Metadata, error) {
	md := make(Metadata, len(raw))
	for k, x := range raw {
		v, err := ValueFromInterface(x)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		md[k] = v
	}
	return md, nil
}
