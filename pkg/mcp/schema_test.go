package mcp

import (
	"strings"
	"testing"
)

func TestSchemaValidateRequired(t *testing.T) {
	schema := &InputSchema{
		Type: TypeObject,
		Properties: map[string]PropertySchema{
			"query": {Type: TypeString},
			"limit": {Type: TypeInteger},
		},
		Required: []string{"query"},
	}

	if err := schema.Validate(map[string]any{"query": "hello"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := schema.Validate(map[string]any{"limit": 3})
	if err == nil {
		t.Fatal("expected missing required parameter error")
	}
	if !strings.Contains(err.Error(), `required parameter "query" is missing`) {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestSchemaValidateTypes(t *testing.T) {
	schema := &InputSchema{
		Type: TypeObject,
		Properties: map[string]PropertySchema{
			"query":   {Type: TypeString},
			"limit":   {Type: TypeInteger},
			"ratio":   {Type: TypeNumber},
			"exact":   {Type: TypeBoolean},
			"tags":    {Type: TypeArray},
			"options": {Type: TypeObject},
		},
	}

	valid := map[string]any{
		"query":   "hi",
		"limit":   float64(5), // JSON numbers decode as float64
		"ratio":   0.5,
		"exact":   true,
		"tags":    []any{"a"},
		"options": map[string]any{"k": "v"},
	}
	if err := schema.Validate(valid); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := []map[string]any{
		{"query": 42},
		{"limit": 2.5}, // non-integral float
		{"limit": "3"},
		{"ratio": "0.5"},
		{"exact": "yes"},
		{"tags": "a,b"},
		{"options": []any{}},
	}
	for _, params := range bad {
		if err := schema.Validate(params); err == nil {
			t.Errorf("expected type error for %v", params)
		}
	}
}

func TestSchemaValidateUndeclaredAndNil(t *testing.T) {
	schema := &InputSchema{
		Type:       TypeObject,
		Properties: map[string]PropertySchema{"query": {Type: TypeString}},
	}

	// Undeclared parameters pass through.
	if err := schema.Validate(map[string]any{"extra": 99}); err != nil {
		t.Errorf("undeclared parameter should not fail validation: %v", err)
	}

	// A nil schema accepts anything.
	var none *InputSchema
	if err := none.Validate(map[string]any{"anything": true}); err != nil {
		t.Errorf("nil schema must accept all params: %v", err)
	}
}
