// Package policy compiles caller rules deciding whether provider-reported
// errors are worth retrying.
package policy

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bakkerme/wanderlust-ai/internal/llm"
)

// APIErrorRule is a compiled boolean expression over the fields of an ApiError:
// code, type, message and meta. Example: `code not in ["invalid_model", "context_length_exceeded"]`.
type APIErrorRule struct {
	source  string
	program *vm.Program
}

type apiErrorEnv struct {
	Code    string         `expr:"code"`
	Type    string         `expr:"type"`
	Message string         `expr:"message"`
	Meta    map[string]any `expr:"meta"`
}

func CompileAPIErrorRule(rule string) (*APIErrorRule, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return nil, fmt.Errorf("api error rule is required")
	}
	program, err := expr.Compile(rule, expr.Env(apiErrorEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile api error rule: %w", err)
	}
	return &APIErrorRule{source: rule, program: program}, nil
}

func (r *APIErrorRule) String() string { return r.source }

// Retry evaluates the rule. Evaluation failures fall back to retrying.
func (r *APIErrorRule) Retry(e *llm.Error) bool {
	if r == nil || e == nil {
		return true
	}
	out, err := expr.Run(r.program, apiErrorEnv{
		Code:    e.APICode,
		Type:    e.APIType,
		Message: e.Message,
		Meta:    e.Meta,
	})
	if err != nil {
		return true
	}
	retry, ok := out.(bool)
	if !ok {
		return true
	}
	return retry
}

// Policy adapts the rule to llm.APIErrorPolicy.
func (r *APIErrorRule) Policy() llm.APIErrorPolicy {
	return r.Retry
}
