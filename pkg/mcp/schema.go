package mcp

import (
	"fmt"
	"math"
	"reflect"
)

// Schema type names actually used by the tool servers we talk to.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// PropertySchema is the declared type of a single tool parameter, with an
// optional enum of allowed values.
type PropertySchema struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// InputSchema is the JSON-Schema-like shape a tool declares for its
// parameters. Only the subset the protocol actually uses is modeled;
// validation is a structural check, not full JSON Schema.
type InputSchema struct {
	Type       string                    `json:"type,omitempty"`
	Properties map[string]PropertySchema `json:"properties,omitempty"`
	Required   []string                  `json:"required,omitempty"`
}

// Validate checks params against the schema: every required property must be
// present, and every declared property that is present must match its
// declared type. Undeclared parameters pass through untouched.
func (s *InputSchema) Validate(params map[string]any) error {
	if s == nil {
		return nil
	}
	for _, name := range s.Required {
		if _, ok := params[name]; !ok {
			return fmt.Errorf("required parameter %q is missing", name)
		}
	}
	for name, value := range params {
		prop, ok := s.Properties[name]
		if !ok || prop.Type == "" {
			continue
		}
		if !matchesType(value, prop.Type) {
			return fmt.Errorf("parameter %q has invalid type, expected %s", name, prop.Type)
		}
	}
	return nil
}

// matchesType reports whether a Go value structurally satisfies a JSON
// schema type name. Unknown type names are not validated.
func matchesType(value any, schemaType string) bool {
	switch schemaType {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeInteger:
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			// JSON numbers decode as float64; accept integral values.
			return v == math.Trunc(v)
		default:
			return false
		}
	case TypeNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		default:
			return false
		}
	case TypeArray:
		if value == nil {
			return false
		}
		k := reflect.TypeOf(value).Kind()
		return k == reflect.Slice || k == reflect.Array
	case TypeObject:
		if value == nil {
			return false
		}
		return reflect.TypeOf(value).Kind() == reflect.Map
	default:
		return true
	}
}
