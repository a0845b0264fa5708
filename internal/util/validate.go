package util

import (
	"fmt"
)

// ValidationError describes a single parameter validation failure.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ParameterSpec is the minimal JSON-Schema-like shape tools declare for
// their arguments. Only the subset checked by ValidateParameters matters:
// per-property type and the required list.
type ParameterSpec struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single declared parameter.
type Property struct {
	Type          string `json:"type"` // string|integer|number|boolean|array|object
	Description   string `json:"description,omitempty"`
	DescriptionZh string `json:"description_zh,omitempty"`
	Enum          []any  `json:"enum,omitempty"`
}

// ValidateParameters checks args against the spec and returns every issue
// found, not just the first: missing or null required parameters and type
// mismatches on provided parameters. Extra parameters are allowed.
func ValidateParameters(args map[string]any, spec *ParameterSpec) []ValidationError {
	if spec == nil {
		return nil
	}

	var errs []ValidationError

	for _, name := range spec.Required {
		v, ok := args[name]
		if !ok || v == nil {
			errs = append(errs, ValidationError{
				Field:   name,
				Message: fmt.Sprintf("Missing required parameter: %s", name),
			})
		}
	}

	for name, value := range args {
		prop, ok := spec.Properties[name]
		if !ok || value == nil {
			continue
		}
		if !isValidType(value, prop.Type) {
			errs = append(errs, ValidationError{
				Field:   name,
				Value:   value,
				Message: fmt.Sprintf("Parameter %s: expected type %s, got %T", name, prop.Type, value),
			})
		}
	}

	return errs
}

// isValidType checks a value against a JSON schema primitive type name.
// "number" accepts integer values; JSON-decoded integers arrive as float64.
func isValidType(value any, expectedType string) bool {
	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true // Unknown types are assumed valid
	}
}
