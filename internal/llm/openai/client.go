// Package openai is an alternate llm.Client backed by the official openai-go SDK.
// It applies the same retry classification, per-attempt deadline and structured
// output validation as the chatcompletion client; the SDK's own retries are off.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bakkerme/wanderlust-ai/internal/config"
	"github.com/bakkerme/wanderlust-ai/internal/core"
	"github.com/bakkerme/wanderlust-ai/internal/llm"
	"github.com/bakkerme/wanderlust-ai/internal/llm/chatcompletion"
	"github.com/bakkerme/wanderlust-ai/internal/retry"
)

const tracerName = "wanderlust-ai/llm/openai"

type Option func(*Client)

// WithHTTPClient replaces the SDK's HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.requestOptions = append(c.requestOptions, option.WithHTTPClient(client))
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithAPIErrorPolicy(policy llm.APIErrorPolicy) Option {
	return func(c *Client) { c.apiErrorPolicy = policy }
}

// WithRequestOptions appends raw SDK options.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *Client) { c.requestOptions = append(c.requestOptions, opts...) }
}

type Client struct {
	client         openai.Client
	model          string
	temperature    *float64
	timeout        time.Duration
	maxRetries     int
	logger         *slog.Logger
	apiErrorPolicy llm.APIErrorPolicy
	requestOptions []option.RequestOption
	sleep          func(ctx context.Context, d time.Duration) error
}

// New validates cfg with the same rules and defaults as chatcompletion.New and
// configures the SDK against the resolved base URL.
func New(cfg config.LLMEnvConfig, opts ...Option) (*Client, error) {
	// Validation and defaulting are shared with the HTTP client.
	resolved, err := chatcompletion.New(cfg)
	if err != nil {
		return nil, err
	}

	referer := strings.TrimSpace(cfg.Referer)
	if referer == "" {
		referer = chatcompletion.DefaultReferer
	}
	title := strings.TrimSpace(cfg.Title)
	if title == "" {
		title = chatcompletion.DefaultTitle
	}

	c := &Client{
		model:       resolved.Model(),
		temperature: resolved.Temperature(),
		timeout:     resolved.Timeout(),
		maxRetries:  resolved.MaxRetries(),
		logger:      slog.Default(),
		requestOptions: []option.RequestOption{
			option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
			option.WithBaseURL(resolved.BaseURL() + "/"),
			option.WithMaxRetries(0),
			option.WithHeader("HTTP-Referer", referer),
			option.WithHeader("X-Title", title),
		},
	}
	if cfg.OTel.Enabled {
		c.requestOptions = append(c.requestOptions, option.WithMiddleware(bodyCaptureMiddleware(cfg.OTel)))
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = openai.NewClient(c.requestOptions...)
	return c, nil
}

// Chat implements llm.Client.
func (c *Client) Chat(ctx context.Context, params llm.ChatParams) (*llm.ChatSuccess, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	ctx, callID := core.EnsureCallID(ctx)
	model := c.resolveModel(params.Model)
	logger := core.LoggerFromContext(ctx, c.logger).With("call_id", callID, "model", model, "backend", "openai")

	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.openai.chat.completions")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", "openai"),
		attribute.String("llm.model", model),
		attribute.Int("llm.input_messages", len(params.Messages)),
		attribute.Bool("llm.structured_output", params.ResponseSchema != nil),
		attribute.String("call.id", callID),
		attribute.String("session.id", core.SessionIDFromContext(ctx)),
	)

	request := c.buildParams(params, model)
	headers := headerOptions(params.Headers)
	var result *llm.ChatSuccess
	err := retry.Do(ctx, retry.Config{
		Attempts:  c.maxRetries + 1,
		BaseDelay: time.Second,
		MaxDelay:  10 * time.Second,
		Retryable: func(err error) bool { return llm.Retryable(err, c.apiErrorPolicy) },
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn("llm attempt failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
			span.AddEvent("llm.retry")
		},
		Sleep: c.sleep,
	}, func(attempt int) error {
		res, err := c.attempt(ctx, request, params.ResponseSchema, headers)
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
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("llm.attempts", result.Attempts),
		attribute.Int("llm.usage.total_tokens", result.Usage.TotalTokens),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (c *Client) attempt(ctx context.Context, request openai.ChatCompletionNewParams, schema llm.Schema, headers []option.RequestOption) (*llm.ChatSuccess, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := c.client.Chat.Completions.New(attemptCtx, request, headers...)
	if err != nil {
		return nil, c.classify(ctx, attemptCtx, err)
	}
	if err := embeddedError(completion.RawJSON()); err != nil {
		return nil, err
	}

	res := &llm.ChatSuccess{
		ID:      completion.ID,
		Created: completion.Created,
		Model:   completion.Model,
		Usage: llm.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if len(completion.Choices) > 0 {
		choice := completion.Choices[0]
		res.Content = choice.Message.Content
		res.FinishReason = string(choice.FinishReason)
	}
	if schema != nil {
		value, err := schema.Validate(res.Content)
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

type embeddedBody struct {
	Error *struct {
		Message string          `json:"message"`
		Code    json.RawMessage `json:"code,omitempty"`
		Type    string          `json:"type,omitempty"`
	} `json:"error,omitempty"`
}

// embeddedError reports a provider error carried in a 2xx body as an ApiError.
// The SDK decodes such bodies into an empty completion.
func embeddedError(raw string) error {
	if raw == "" {
		return nil
	}
	var body embeddedBody
	if err := json.Unmarshal([]byte(raw), &body); err != nil || body.Error == nil {
		return nil
	}
	message := body.Error.Message
	if message == "" {
		message = "provider returned an error"
	}
	code := strings.TrimSpace(string(body.Error.Code))
	if code == "null" {
		code = ""
	}
	return llm.APIError(message, strings.Trim(code, `"`), body.Error.Type)
}

// headerOptions forwards caller headers. Authorization and Content-Type stay
// under the client's control.
func headerOptions(headers map[string]string) []option.RequestOption {
	opts := make([]option.RequestOption, 0, len(headers))
	for name, value := range headers {
		switch http.CanonicalHeaderKey(name) {
		case "Authorization", "Content-Type":
			continue
		}
		opts = append(opts, option.WithHeader(name, value))
	}
	return opts
}

// classify maps SDK failures onto the llm error taxonomy.
func (c *Client) classify(parent, attemptCtx context.Context, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llm.HTTPError(apiErr.StatusCode, apiErr.RawJSON())
	}
	if parent.Err() != nil {
		return fmt.Errorf("llm: call aborted: %w", parent.Err())
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return llm.TimeoutError(c.timeout, err)
	}
	return llm.NetworkError(err)
}

func (c *Client) buildParams(params llm.ChatParams, model string) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(params.Messages)+1)
	if params.System != "" {
		messages = append(messages, openai.SystemMessage(params.System))
	}
	for _, msg := range params.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	request := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	switch {
	case params.Temperature != nil:
		request.Temperature = openai.Float(*params.Temperature)
	case c.temperature != nil:
		request.Temperature = openai.Float(*c.temperature)
	}
	if params.TopP != nil {
		request.TopP = openai.Float(*params.TopP)
	}
	if params.MaxTokens > 0 {
		request.MaxTokens = openai.Int(int64(params.MaxTokens))
	}
	if params.ResponseSchema != nil {
		request.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   params.ResponseSchema.Name(),
					Strict: openai.Bool(true),
					Schema: params.ResponseSchema.JSONSchema(),
				},
			},
		}
	}
	return request
}

func (c *Client) resolveModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}
