// Package mock provides a scripted llm.Client for tests.
package mock

import (
	"context"
	"sync"

	"github.com/bakkerme/wanderlust-ai/internal/llm"
)

// Client replays Responses in order, repeating the last one. When a response
// has no Structured value and the call carries a schema, the content is
// validated against it like a real client would.
type Client struct {
	Responses []llm.ChatSuccess
	Err       error

	mu    sync.Mutex
	calls []llm.ChatParams
}

func (c *Client) Chat(ctx context.Context, params llm.ChatParams) (*llm.ChatSuccess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	n := len(c.calls)
	c.calls = append(c.calls, params)
	c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	res := llm.ChatSuccess{}
	if len(c.Responses) > 0 {
		res = c.Responses[min(n, len(c.Responses)-1)]
	}
	res.Attempts = 1
	if params.ResponseSchema != nil && res.Structured == nil {
		value, err := params.ResponseSchema.Validate(res.Content)
		if err != nil {
			return nil, err
		}
		res.Structured = value
	}
	return &res, nil
}

// Calls returns the params of every call made so far.
func (c *Client) Calls() []llm.ChatParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.ChatParams(nil), c.calls...)
}
