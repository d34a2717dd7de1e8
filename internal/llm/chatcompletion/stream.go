package chatcompletion

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/bakkerme/wanderlust-ai/internal/core"
	"github.com/bakkerme/wanderlust-ai/internal/llm"
)

const maxEventBytes = 1 << 20

// Stream sends the request with stream=true and returns the open event-stream
// body. It is not retried: output already handed to the caller cannot be
// replayed. The attempt deadline covers the whole stream and is disarmed when
// the body is closed. Use NewEventReader to decode it.
func (c *Client) Stream(ctx context.Context, params llm.ChatParams) (io.ReadCloser, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	ctx, callID := core.EnsureCallID(ctx)
	logger := core.LoggerFromContext(ctx, c.logger).With("call_id", callID, "model", c.resolveModel(params.Model))

	call, err := c.send(ctx, c.buildPayload(params, true), params.Headers)
	if err != nil {
		logger.Debug("llm stream request failed", "error", err)
		return nil, err
	}
	resp := call.resp
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := readErrorBody(resp.Body)
		if resp.Body != nil {
			resp.Body.Close()
		}
		call.release()
		return nil, llm.HTTPError(resp.StatusCode, body)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		call.release()
		e := llm.HTTPError(resp.StatusCode, "")
		e.Message = "stream response has no body"
		return nil, e
	}
	logger.Debug("llm stream opened", "status", resp.StatusCode)
	return &streamBody{ReadCloser: resp.Body, release: call.release}, nil
}

// EventReader decodes an OpenAI-style server-sent event stream into chunks.
// Not safe for concurrent use.
type EventReader struct {
	scanner  *bufio.Scanner
	done     bool
	finished bool
}

func NewEventReader(r io.Reader) *EventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventBytes)
	return &EventReader{scanner: scanner}
}

// Next returns the next chunk. It returns io.EOF after "data: [DONE]" (or a
// clean end following a finish reason) and a StreamingError when the stream is
// malformed, reports an error, or ends early.
func (r *EventReader) Next() (llm.StreamChunk, error) {
	if r.done {
		return llm.StreamChunk{}, io.EOF
	}
	var data strings.Builder
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if line == "" {
			if data.Len() == 0 {
				continue
			}
			return r.decode(data.String())
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		if data.Len() > 0 {
			data.WriteByte('\n')
		}
		data.WriteString(strings.TrimPrefix(value, " "))
	}
	if err := r.scanner.Err(); err != nil {
		r.done = true
		return llm.StreamChunk{}, llm.StreamingError("read event stream", err)
	}
	if data.Len() > 0 {
		return r.decode(data.String())
	}
	r.done = true
	if !r.finished {
		return llm.StreamChunk{}, llm.StreamingError("event stream ended before completion", io.ErrUnexpectedEOF)
	}
	return llm.StreamChunk{}, io.EOF
}

func (r *EventReader) decode(data string) (llm.StreamChunk, error) {
	if strings.TrimSpace(data) == "[DONE]" {
		r.done = true
		r.finished = true
		return llm.StreamChunk{}, io.EOF
	}
	var event wireResponse
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		r.done = true
		return llm.StreamChunk{}, llm.StreamingError("malformed stream event", err)
	}
	if event.Error != nil {
		r.done = true
		e := llm.StreamingError(event.Error.Message, nil)
		e.APICode = string(event.Error.Code)
		e.APIType = event.Error.Type
		return llm.StreamChunk{}, e
	}
	chunk := llm.StreamChunk{ID: event.ID, Model: event.Model}
	if len(event.Choices) > 0 {
		choice := event.Choices[0]
		chunk.FinishReason = choice.FinishReason
		if choice.Delta != nil {
			chunk.Content = choice.Delta.Content
		}
	}
	if chunk.FinishReason != "" {
		r.finished = true
	}
	return chunk, nil
}
