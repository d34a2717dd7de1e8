// Package chatcompletion is a resilient client for OpenAI-compatible chat
// completion endpoints (OpenRouter by default).
//
// A call is retried as a whole, each attempt under its own deadline, so the
// worst-case wall-clock time of Chat is
//
//	(MaxRetries+1) × Timeout + Σ backoff
//
// which with the defaults (3 retries, 60s timeout, 1s/2s/4s backoff) is about 247s.
// Stream is never retried.
package chatcompletion

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bakkerme/wanderlust-ai/internal/config"
	"github.com/bakkerme/wanderlust-ai/internal/llm"
	"github.com/bakkerme/wanderlust-ai/internal/observability/otelx"
	"github.com/bakkerme/wanderlust-ai/internal/retry"
)

const (
	DefaultBaseURL    = "https://openrouter.ai/api/v1"
	DefaultModel      = "openai/gpt-4o-mini"
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 3
	DefaultReferer    = "https://github.com/bakkerme/wanderlust-ai"
	DefaultTitle      = "wanderlust-ai"

	baseBackoff       = time.Second
	maxBackoff        = 10 * time.Second
	maxErrorBodyBytes = 64 << 10
)

// Transport sends one HTTP request. *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(req *http.Request) (*http.Response, error)

func (f TransportFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

type Option func(*Client)

func WithTransport(t Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
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

// WithAPIErrorPolicy decides whether provider-reported errors embedded in a
// successful response are retried. Without it they always are.
func WithAPIErrorPolicy(policy llm.APIErrorPolicy) Option {
	return func(c *Client) { c.apiErrorPolicy = policy }
}

// Client is safe for concurrent use; its configuration is fixed at construction.
type Client struct {
	apiKey         string
	baseURL        string
	model          string
	temperature    *float64
	timeout        time.Duration
	maxRetries     int
	referer        string
	title          string
	transport      Transport
	logger         *slog.Logger
	apiErrorPolicy llm.APIErrorPolicy
	sleep          func(ctx context.Context, d time.Duration) error
}

// New validates cfg and builds a client. It performs no network I/O.
func New(cfg config.LLMEnvConfig, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, llm.ConfigurationError("apiKey", "", "API key is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(strings.ToLower(baseURL), "https://") {
		return nil, llm.ConfigurationError("baseUrl", baseURL, "base URL must use https")
	}
	if u, err := url.Parse(baseURL); err != nil || u.Host == "" {
		return nil, llm.ConfigurationError("baseUrl", baseURL, "base URL is not a valid URL")
	}

	timeout := cfg.Timeout
	if timeout < 0 {
		return nil, llm.ConfigurationError("timeout", timeout.String(), "timeout must not be negative")
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	maxRetries := DefaultMaxRetries
	if cfg.MaxRetries != nil {
		if *cfg.MaxRetries < 0 {
			return nil, llm.ConfigurationError("maxRetries", "", "max retries must not be negative")
		}
		maxRetries = *cfg.MaxRetries
	}

	var temperature *float64
	if cfg.Temperature != nil {
		t := *cfg.Temperature
		if t < 0 || t > 2 {
			return nil, llm.ConfigurationError("temperature", "", "temperature must be between 0 and 2")
		}
		temperature = &t
	}

	c := &Client{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       strings.TrimSpace(cfg.Model),
		temperature: temperature,
		timeout:     timeout,
		maxRetries:  maxRetries,
		referer:     valueOr(cfg.Referer, DefaultReferer),
		title:       valueOr(cfg.Title, DefaultTitle),
		transport:   http.DefaultClient,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.OTel.Enabled {
		c.transport = captureTransport(c.transport, cfg.OTel)
	}
	return c, nil
}

// captureTransport records exchange bodies on the call span when capture is on.
func captureTransport(next Transport, cfg config.LLMOTelEnvConfig) Transport {
	maxBytes := cfg.MaxBodyBytes
	if !cfg.CaptureBodies {
		maxBytes = 0
	}
	return TransportFunc(func(req *http.Request) (*http.Response, error) {
		return otelx.CaptureExchange(req, maxBytes, next.Do)
	})
}

func (c *Client) BaseURL() string        { return c.baseURL }
func (c *Client) Model() string          { return c.resolveModel("") }
func (c *Client) Timeout() time.Duration { return c.timeout }
func (c *Client) MaxRetries() int        { return c.maxRetries }

// Temperature returns a copy of the default temperature, or nil when unset.
func (c *Client) Temperature() *float64 {
	if c.temperature == nil {
		return nil
	}
	t := *c.temperature
	return &t
}

// WorstCaseLatency is the upper bound on the wall-clock time of one Chat call.
func (c *Client) WorstCaseLatency() time.Duration {
	total := time.Duration(c.maxRetries+1) * c.timeout
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		total += retry.Backoff(baseBackoff, maxBackoff, attempt)
	}
	return total
}

func (c *Client) resolveModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	if c.model != "" {
		return c.model
	}
	return DefaultModel
}

func valueOr(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
