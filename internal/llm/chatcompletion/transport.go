package chatcompletion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/bakkerme/wanderlust-ai/internal/llm"
)

type sendResult struct {
	resp *http.Response
	err  error
}

// inflight is a response whose attempt deadline is still armed.
type inflight struct {
	resp    *http.Response
	ctx     context.Context
	release context.CancelFunc
}

// send issues one authorized POST to {baseURL}/chat/completions under a fresh
// deadline. On success the caller owns the response and must call release once
// the body has been consumed; release disarms the deadline.
func (c *Client) send(ctx context.Context, payload *wireRequest, headers map[string]string) (*inflight, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, llm.RequestValidationError("payload", fmt.Sprintf("marshal payload: %v", err))
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, llm.NetworkError(err)
	}
	c.setHeaders(req, headers, payload.Stream)

	done := make(chan sendResult, 1)
	go func() {
		resp, err := c.transport.Do(req)
		done <- sendResult{resp: resp, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			err := c.attemptError(ctx, attemptCtx, res.err)
			cancel()
			return nil, err
		}
		if res.resp == nil {
			cancel()
			return nil, llm.NetworkError(errors.New("transport returned no response"))
		}
		return &inflight{resp: res.resp, ctx: attemptCtx, release: cancel}, nil
	case <-attemptCtx.Done():
		err := c.attemptError(ctx, attemptCtx, attemptCtx.Err())
		cancel()
		// A transport that ignores cancellation may still answer; discard it.
		go func() {
			if res := <-done; res.resp != nil && res.resp.Body != nil {
				res.resp.Body.Close()
			}
		}()
		return nil, err
	}
}

func (c *Client) setHeaders(req *http.Request, headers map[string]string, stream bool) {
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)
	req.Header.Set("Accept", "application/json")
	for name, value := range headers {
		if strings.TrimSpace(name) == "" {
			continue
		}
		req.Header.Set(name, value)
	}
	// Mandatory headers cannot be overridden by the caller.
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
}

// attemptError maps a failure during an attempt. The caller's own cancellation
// wins; otherwise an expired attempt deadline is a timeout and anything else a
// network failure.
func (c *Client) attemptError(parent, attemptCtx context.Context, err error) error {
	if perr := parent.Err(); perr != nil {
		return fmt.Errorf("llm: call aborted: %w", perr)
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		if !errors.Is(err, context.DeadlineExceeded) {
			err = context.DeadlineExceeded
		}
		return llm.TimeoutError(c.timeout, err)
	}
	return llm.NetworkError(err)
}

// readErrorBody captures up to maxErrorBodyBytes of a failure body. Read errors
// are ignored so they never mask the HTTP status.
func readErrorBody(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	if err != nil && len(data) == 0 {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// streamBody disarms the attempt deadline when the caller closes the stream.
type streamBody struct {
	io.ReadCloser
	release context.CancelFunc
	once    sync.Once
}

func (b *streamBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
