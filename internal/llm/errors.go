package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind discriminates the error taxonomy.
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindRequestValidation Kind = "request_validation"
	KindHTTP              Kind = "http"
	KindAPI               Kind = "api"
	KindJSONValidation    Kind = "json_validation"
	KindTimeout           Kind = "timeout"
	KindStreaming         Kind = "streaming"
	KindNetwork           Kind = "network"
)

// Code returns the stable machine-readable code for the kind.
func (k Kind) Code() string {
	switch k {
	case KindConfiguration:
		return "CONFIGURATION_ERROR"
	case KindRequestValidation:
		return "REQUEST_VALIDATION_ERROR"
	case KindHTTP:
		return "HTTP_ERROR"
	case KindAPI:
		return "API_ERROR"
	case KindJSONValidation:
		return "JSON_VALIDATION_ERROR"
	case KindTimeout:
		return "TIMEOUT_ERROR"
	case KindStreaming:
		return "STREAMING_ERROR"
	case KindNetwork:
		return "NETWORK_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Violation is a single schema constraint failure.
type Violation struct {
	Path    string `json:"path"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Error is the single error type returned by LLM clients. Kind selects which of the
// payload fields are meaningful.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Meta    map[string]any
	Err     error

	// configuration / request validation
	Field string
	Value string

	// http
	Status int
	Body   string

	// api (and streaming, when the provider reported the failure)
	APICode string
	APIType string

	// json validation
	Raw        string
	Violations []Violation

	// timeout
	Timeout time.Duration
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("llm: ")
	b.WriteString(string(e.Kind))
	switch e.Kind {
	case KindHTTP:
		fmt.Fprintf(&b, " %d", e.Status)
	case KindTimeout:
		fmt.Fprintf(&b, " after %s", e.Timeout)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (%s)", e.Field)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && (e.Message == "" || !strings.Contains(e.Message, e.Err.Error())) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind Kind, message string, meta map[string]any) *Error {
	if meta == nil {
		meta = map[string]any{}
	}
	return &Error{Kind: kind, Code: kind.Code(), Message: message, Meta: meta}
}

func ConfigurationError(field, value, message string) *Error {
	e := newError(KindConfiguration, message, map[string]any{"field": field})
	e.Field = field
	e.Value = value
	if value != "" {
		e.Meta["value"] = value
	}
	return e
}

func RequestValidationError(field, message string) *Error {
	e := newError(KindRequestValidation, message, map[string]any{"field": field})
	e.Field = field
	return e
}

func HTTPError(status int, body string) *Error {
	e := newError(KindHTTP, http.StatusText(status), map[string]any{"status": status})
	e.Status = status
	e.Body = body
	if body != "" {
		e.Meta["body"] = body
	}
	return e
}

func APIError(message, code, typ string) *Error {
	e := newError(KindAPI, message, map[string]any{})
	e.APICode = code
	e.APIType = typ
	if code != "" {
		e.Meta["code"] = code
	}
	if typ != "" {
		e.Meta["type"] = typ
	}
	return e
}

// JSONValidationError carries the raw text that failed so callers can inspect
// malformed model output.
func JSONValidationError(raw string, cause error, violations []Violation) *Error {
	message := "invalid structured output"
	if len(violations) > 0 {
		parts := make([]string, 0, len(violations))
		for _, v := range violations {
			parts = append(parts, v.Message)
		}
		message = strings.Join(parts, "; ")
	} else if cause != nil {
		message = cause.Error()
	}
	e := newError(KindJSONValidation, message, map[string]any{"raw": raw})
	e.Raw = raw
	e.Err = cause
	e.Violations = violations
	if len(violations) > 0 {
		e.Meta["violations"] = violations
	}
	return e
}

func TimeoutError(timeout time.Duration, cause error) *Error {
	e := newError(KindTimeout, "request deadline exceeded", map[string]any{"timeout_ms": timeout.Milliseconds()})
	e.Timeout = timeout
	e.Err = cause
	return e
}

func StreamingError(message string, cause error) *Error {
	e := newError(KindStreaming, message, nil)
	e.Err = cause
	return e
}

func NetworkError(cause error) *Error {
	e := newError(KindNetwork, "request failed", nil)
	e.Err = cause
	return e
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// APIErrorPolicy decides whether a provider-reported error should be retried.
type APIErrorPolicy func(*Error) bool

// Retryable classifies err for the retry loop. Deterministic failures (bad input,
// bad configuration, invalid output, 4xx other than 429, client timeouts) are not
// retried; transport failures, 5xx, 429 and provider errors are. A nil policy
// treats every ApiError as retryable.
func Retryable(err error, policy APIErrorPolicy) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) && KindOf(err) != KindTimeout {
		return false
	}
	e, ok := AsError(err)
	if !ok {
		return !errors.Is(err, context.DeadlineExceeded)
	}
	switch e.Kind {
	case KindConfiguration, KindRequestValidation, KindJSONValidation, KindTimeout, KindStreaming:
		return false
	case KindHTTP:
		if e.Status == http.StatusTooManyRequests {
			return true
		}
		return e.Status < 400 || e.Status >= 500
	case KindAPI:
		if policy == nil {
			return true
		}
		return policy(e)
	default:
		return true
	}
}
