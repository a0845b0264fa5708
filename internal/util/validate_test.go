package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateParameters(t *testing.T) {
	spec := &ParameterSpec{
		Properties: map[string]Property{
			"query": {Type: "string"},
			"limit": {Type: "integer"},
			"score": {Type: "number"},
			"flags": {Type: "array"},
		},
		Required: []string{"query"},
	}

	// Success
	errs := ValidateParameters(map[string]any{"query": "ubiquitous", "limit": 5}, spec)
	assert.Empty(t, errs)

	// Missing required
	errs = ValidateParameters(map[string]any{}, spec)
	assert.Len(t, errs, 1)
	assert.Equal(t, "query", errs[0].Field)
	assert.Contains(t, errs[0].Message, "Missing required parameter: query")

	// Null required counts as missing
	errs = ValidateParameters(map[string]any{"query": nil}, spec)
	assert.Len(t, errs, 1)

	// Wrong type
	errs = ValidateParameters(map[string]any{"query": 42}, spec)
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "expected type string")

	// All issues are collected, not just the first
	errs = ValidateParameters(map[string]any{"limit": "five", "flags": "nope"}, spec)
	assert.Len(t, errs, 3) // missing query + two type mismatches
}

func TestValidateParameters_NumberAcceptsInteger(t *testing.T) {
	spec := &ParameterSpec{Properties: map[string]Property{"score": {Type: "number"}}}
	assert.Empty(t, ValidateParameters(map[string]any{"score": 3}, spec))
	assert.Empty(t, ValidateParameters(map[string]any{"score": 3.5}, spec))
}

func TestValidateParameters_IntegerRejectsFraction(t *testing.T) {
	spec := &ParameterSpec{Properties: map[string]Property{"limit": {Type: "integer"}}}
	// JSON decoding yields float64; whole values pass, fractions do not.
	assert.Empty(t, ValidateParameters(map[string]any{"limit": float64(7)}, spec))
	assert.Len(t, ValidateParameters(map[string]any{"limit": 7.2}, spec), 1)
}

func TestValidateParameters_ExtraFieldsAllowed(t *testing.T) {
	spec := &ParameterSpec{Properties: map[string]Property{"query": {Type: "string"}}}
	assert.Empty(t, ValidateParameters(map[string]any{"query": "x", "debug": true}, spec))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "he...", Truncate("hello", 2))
	assert.Equal(t, "héllo", Truncate("héllo", 5))
	assert.Equal(t, "汉字...", Truncate("汉字汉字", 2))
	assert.Equal(t, "hello", Truncate("hello", 0))
}
