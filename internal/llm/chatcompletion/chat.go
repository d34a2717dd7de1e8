package chatcompletion

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bakkerme/wanderlust-ai/internal/core"
	"github.com/bakkerme/wanderlust-ai/internal/llm"
	"github.com/bakkerme/wanderlust-ai/internal/retry"
)

const tracerName = "wanderlust-ai/llm/chatcompletion"

// Chat performs one logical chat completion, retrying transient failures with
// exponential backoff (1s, 2s, 4s, ... capped at 10s). Invalid input, 4xx
// responses other than 429, invalid structured output and attempt timeouts are
// returned immediately. When all attempts fail the last error is returned.
func (c *Client) Chat(ctx context.Context, params llm.ChatParams) (*llm.ChatSuccess, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ctx, callID := core.EnsureCallID(ctx)
	model := c.resolveModel(params.Model)
	logger := core.LoggerFromContext(ctx, c.logger).With("call_id", callID, "model", model)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.chat.completions")
	defer span.End()
	span.SetAttributes(requestAttributes(params, model, callID, core.SessionIDFromContext(ctx))...)

	var result *llm.ChatSuccess
	err := retry.Do(ctx, retry.Config{
		Attempts:  c.maxRetries + 1,
		BaseDelay: baseBackoff,
		MaxDelay:  maxBackoff,
		Retryable: func(err error) bool { return llm.Retryable(err, c.apiErrorPolicy) },
		OnRetry: func(attempt int, delay time.Duration, err error) {
			e, _ := llm.AsError(err)
			attrs := []any{"attempt", attempt + 1, "delay", delay, "error", err}
			if e != nil {
				attrs = append(attrs, "error_kind", string(e.Kind))
				if e.Status != 0 {
					attrs = append(attrs, "status", e.Status)
				}
			}
			logger.Warn("llm attempt failed, retrying", attrs...)
			span.AddEvent("llm.retry", trace.WithAttributes(
				attribute.Int("llm.attempt", attempt+1),
				attribute.Int64("llm.retry_delay_ms", delay.Milliseconds()),
				attribute.String("error.kind", string(llm.KindOf(err))),
			))
		},
		Sleep: c.sleep,
	}, func(attempt int) error {
		logger.Debug("llm request", "attempt", attempt+1)
		res, err := c.attempt(ctx, params)
		if err != nil {
			return err
		}
		res.Attempts = attempt + 1
		result = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if kind := llm.KindOf(err); kind != "" {
			span.SetAttributes(attribute.String("error.kind", string(kind)))
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("llm.attempts", result.Attempts),
		attribute.Int("llm.usage.prompt_tokens", result.Usage.PromptTokens),
		attribute.Int("llm.usage.completion_tokens", result.Usage.CompletionTokens),
		attribute.Int("llm.usage.total_tokens", result.Usage.TotalTokens),
		attribute.String("llm.finish_reason", result.FinishReason),
	)
	span.SetStatus(codes.Ok, "")
	logger.Debug("llm request succeeded", "attempts", result.Attempts, "total_tokens", result.Usage.TotalTokens)
	return result, nil
}

// attempt is one pass of build, send, classify, parse and (optionally) validate.
func (c *Client) attempt(ctx context.Context, params llm.ChatParams) (*llm.ChatSuccess, error) {
	payload := c.buildPayload(params, false)
	call, err := c.send(ctx, payload, params.Headers)
	if err != nil {
		return nil, err
	}
	defer call.release()
	resp := call.resp
	if resp.Body == nil {
		resp.Body = http.NoBody
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, llm.HTTPError(resp.StatusCode, readErrorBody(resp.Body))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.attemptError(ctx, call.ctx, err)
	}
	parsed, err := parseResponse(data)
	if err != nil {
		return nil, err
	}

	res := parsed.toSuccess()
	if params.ResponseSchema != nil {
		value, err := params.ResponseSchema.Validate(res.Content)
		if err != nil {
			if llm.KindOf(err) != llm.KindJSONValidation {
				err = llm.JSONValidationError(res.Content, err, nil)
			}
			return nil, err
		}
		res.Structured = value
	}
	return res, nil
}

func requestAttributes(params llm.ChatParams, model, callID, sessionID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("llm.provider", "openai-compatible"),
		attribute.String("llm.model", model),
		attribute.Int("llm.input_messages", len(params.Messages)),
		attribute.Bool("llm.system_prompt", params.System != ""),
		attribute.Bool("llm.structured_output", params.ResponseSchema != nil),
		attribute.String("call.id", callID),
	}
	if params.Temperature != nil {
		attrs = append(attrs, attribute.Float64("llm.temperature", *params.Temperature))
	}
	if params.MaxTokens > 0 {
		attrs = append(attrs, attribute.Int("llm.max_tokens", params.MaxTokens))
	}
	if params.ResponseSchema != nil {
		attrs = append(attrs, attribute.String("llm.schema_name", params.ResponseSchema.Name()))
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String("session.id", sessionID))
	}
	return attrs
}
