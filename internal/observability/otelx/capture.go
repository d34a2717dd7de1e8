package otelx

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CaptureExchange runs next and records up to maxBytes of the request and
// response bodies on the span carried by req's context. Bodies are recorded
// when they are closed, so streaming responses are captured as read. A negative
// maxBytes captures everything; zero only records the response status.
func CaptureExchange(req *http.Request, maxBytes int, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	span := trace.SpanFromContext(req.Context())
	if !span.IsRecording() {
		return next(req)
	}
	if maxBytes != 0 && req.Body != nil && req.Body != http.NoBody {
		req.Body = newCapture(req.Body, maxBytes, func(body string, truncated bool) {
			span.SetAttributes(
				attribute.String("input.mime_type", req.Header.Get("Content-Type")),
				attribute.String("input.value", body),
				attribute.Bool("input.truncated", truncated),
			)
		})
	}

	resp, err := next(req)
	if err != nil || resp == nil {
		return resp, err
	}
	span.AddEvent("llm.response", trace.WithAttributes(attribute.Int("http.status_code", resp.StatusCode)))
	if maxBytes != 0 && resp.Body != nil && resp.Body != http.NoBody {
		resp.Body = newCapture(resp.Body, maxBytes, func(body string, truncated bool) {
			span.SetAttributes(
				attribute.String("output.mime_type", resp.Header.Get("Content-Type")),
				attribute.String("output.value", body),
				attribute.Bool("output.truncated", truncated),
			)
		})
	}
	return resp, nil
}

type capture struct {
	io.ReadCloser
	limit     int
	buf       bytes.Buffer
	truncated bool
	once      sync.Once
	done      func(string, bool)
}

func newCapture(rc io.ReadCloser, limit int, done func(string, bool)) *capture {
	return &capture{ReadCloser: rc, limit: limit, done: done}
}

func (c *capture) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	if n > 0 {
		c.keep(p[:n])
	}
	return n, err
}

func (c *capture) keep(p []byte) {
	if c.limit < 0 {
		c.buf.Write(p)
		return
	}
	room := c.limit - c.buf.Len()
	if room >= len(p) {
		c.buf.Write(p)
		return
	}
	if room > 0 {
		c.buf.Write(p[:room])
	}
	c.truncated = true
}

func (c *capture) Close() error {
	c.once.Do(func() {
		// Attribute values must be valid UTF-8.
		c.done(strings.ToValidUTF8(c.buf.String(), "\uFFFD"), c.truncated)
	})
	return c.ReadCloser.Close()
}
