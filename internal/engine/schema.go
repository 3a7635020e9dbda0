package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/shaiso/dflow/internal/domain"
)

// ErrInvalidValue — значение metadata не соответствует схеме.
var ErrInvalidValue = errors.New("value does not match schema")

// valueSchema описывает допустимую форму значения metadata:
// строка, число, bool или объект из таких же значений.
var valueSchema = map[string]any{
	"type": []any{"string", "number", "boolean", "object"},
	"additionalProperties": map[string]any{
		"$ref": "#",
	},
}

// ParameterSchema строит JSON Schema для параметра flow.
func ParameterSchema(p domain.FlowParameter) map[string]any {
	switch p.Type {
	case domain.ParameterBoolean:
		return map[string]any{"type": "boolean"}
	case domain.ParameterString:
		s := map[string]any{"type": "string"}
		if len(p.Values) > 0 {
			enum := make([]any, len(p.Values))
			for i, v := range p.Values {
				enum[i] = v
			}
			s["enum"] = enum
		}
		return s
	default:
		return map[string]any{}
	}
}

// SchemaSet — скомпилированные схемы значений metadata.
type SchemaSet struct {
	value  *jsonschema.Schema
	params map[string]*jsonschema.Schema
}

// CompileSchemas компилирует схему значений и схемы параметров flow.
func CompileSchemas(params []domain.FlowParameter) (*SchemaSet, error) {
	value, err := compileSchema("value.json", valueSchema)
	if err != nil {
		return nil, err
	}

	set := &SchemaSet{
		value:  value,
		params: make(map[string]*jsonschema.Schema, len(params)),
	}

	for _, p := range params {
		s, err := compileSchema("param_"+p.Code+".json", ParameterSchema(p))
		if err != nil {
			return nil, err
		}
		set.params[p.Code] = s
	}

	return set, nil
}

// compileSchema компилирует одну схему.
func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %s: %v", ErrSchemaCompile, name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("%w: add %s: %v", ErrSchemaCompile, name, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s: %v", ErrSchemaCompile, name, err)
	}
	return schema, nil
}

// ParseValue разбирает JSON значения metadata и проверяет его по схемам.
//
// Если key — код параметра flow, значение дополнительно проверяется
// по схеме параметра.
func (s *SchemaSet) ParseValue(key string, raw []byte) (domain.Value, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.Value{}, NewValidationError(key, "value",
			fmt.Sprintf("value is not valid JSON: %v", err), ErrInvalidValue)
	}
	if err := s.Check(key, v); err != nil {
		return domain.Value{}, err
	}
	return domain.ValueFromInterface(v)
}

// Check проверяет значение, полученное из json.Unmarshal.
func (s *SchemaSet) Check(key string, v any) error {
	if err := s.value.Validate(v); err != nil {
		return NewValidationError(key, "value",
			"value must be a string, number, boolean or object", ErrInvalidValue)
	}

	schema, ok := s.params[key]
	if !ok {
		return nil
	}
	if err := schema.Validate(v); err != nil {
		return NewValidationError(key, "value", describe(err), ErrInvalidValue)
	}
	return nil
}

// HasParameter проверяет, есть ли схема для параметра.
func (s *SchemaSet) HasParameter(code string) bool {
	_, ok := s.params[code]
	return ok
}

// describe извлекает самое глубокое сообщение из ошибки jsonschema.
func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve.Message
}
