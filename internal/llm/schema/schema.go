// Package schema validates model output against a Go type and projects that type
// to the JSON-Schema fragment sent as a strict response_format.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"github.com/bakkerme/wanderlust-ai/internal/llm"
)

// DefaultName is used when no description is given.
const DefaultName = "response"

const maxNameLength = 64

// Schema validates JSON text into a T. Field constraints come from `validate`
// struct tags; JSON field names from `json` tags. Safe for concurrent use.
type Schema[T any] struct {
	name       string
	jsonSchema map[string]any
	validate   *validator.Validate
}

// For builds a schema for T. The description only influences the wire name.
func For[T any](description string) (*Schema[T], error) {
	reflector := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	reflected := reflector.Reflect(new(T))
	data, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("marshal json schema: %w", err)
	}
	var projected map[string]any
	if err := json.Unmarshal(data, &projected); err != nil {
		return nil, fmt.Errorf("decode json schema: %w", err)
	}
	delete(projected, "$schema")
	delete(projected, "$id")

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	name := KebabCase(description)
	if name == "" {
		name = DefaultName
	}
	return &Schema[T]{name: name, jsonSchema: projected, validate: v}, nil
}

// MustFor is like For but panics on error. Intended for package-level schemas.
func MustFor[T any](description string) *Schema[T] {
	s, err := For[T](description)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema[T]) Name() string { return s.name }

func (s *Schema[T]) JSONSchema() map[string]any { return s.jsonSchema }

// Validate implements llm.Schema.
func (s *Schema[T]) Validate(raw string) (any, error) {
	v, err := s.Decode(raw)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Decode parses raw and validates it. Failures are *llm.Error of kind
// KindJSONValidation carrying raw.
func (s *Schema[T]) Decode(raw string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		var zero T
		return zero, llm.JSONValidationError(raw, fmt.Errorf("parse json: %w", err), nil)
	}
	if !isStruct(reflect.TypeOf(out)) {
		return out, nil
	}
	if err := s.validate.Struct(out); err != nil {
		var zero T
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return zero, llm.JSONValidationError(raw, err, violations(verrs))
		}
		return zero, llm.JSONValidationError(raw, err, nil)
	}
	return out, nil
}

// ValidateJSON validates raw against s outside of a chat call.
func ValidateJSON[T any](s *Schema[T], raw string) (T, error) {
	return s.Decode(raw)
}

// Result returns the structured value of a chat result as a T.
func Result[T any](res *llm.ChatSuccess) (T, bool) {
	var zero T
	if res == nil || res.Structured == nil {
		return zero, false
	}
	v, ok := res.Structured.(T)
	return v, ok
}

// KebabCase lower-cases s and joins its alphanumeric runs with dashes,
// truncated to the provider's schema name limit.
func KebabCase(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.TrimSpace(s) {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			pendingDash = b.Len() > 0
			continue
		}
		if pendingDash {
			b.WriteByte('-')
			pendingDash = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	out := b.String()
	if len(out) > maxNameLength {
		out = strings.TrimRight(out[:maxNameLength], "-")
	}
	return out
}

func isStruct(t reflect.Type) bool {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return field.Name
	default:
		return name
	}
}

func violations(verrs validator.ValidationErrors) []llm.Violation {
	out := make([]llm.Violation, 0, len(verrs))
	for _, fe := range verrs {
		path := fe.Namespace()
		if _, rest, ok := strings.Cut(path, "."); ok {
			path = rest
		}
		out = append(out, llm.Violation{
			Path:    path,
			Rule:    fe.Tag(),
			Message: violationMessage(path, fe),
		})
	}
	return out
}

func violationMessage(path string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return path + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", path, fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", path, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", path, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", path, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", path, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", path, fe.Tag())
	}
}
