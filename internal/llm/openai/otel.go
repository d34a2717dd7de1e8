package openai

import (
	"net/http"

	"github.com/openai/openai-go/option"

	"github.com/bakkerme/wanderlust-ai/internal/config"
	"github.com/bakkerme/wanderlust-ai/internal/observability/otelx"
)

// bodyCaptureMiddleware records request and response bodies on the active span
// when capture is enabled; otherwise it only marks the response status.
func bodyCaptureMiddleware(cfg config.LLMOTelEnvConfig) option.Middleware {
	maxBytes := cfg.MaxBodyBytes
	if !cfg.CaptureBodies {
		maxBytes = 0
	}
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		return otelx.CaptureExchange(req, maxBytes, next)
	}
}
