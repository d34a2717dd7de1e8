package chatcompletion

import (
	"bytes"
	"encoding/json"

	"github.com/bakkerme/wanderlust-ai/internal/llm"
)

type wireResponse struct {
	ID      string       `json:"id"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Usage   llm.Usage    `json:"usage"`
	Choices []wireChoice `json:"choices"`
	Error   *wireError   `json:"error,omitempty"`
}

type wireChoice struct {
	Message      *wireMessage `json:"message,omitempty"`
	Delta        *wireMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason"`
}

type wireError struct {
	Message string     `json:"message"`
	Code    flexString `json:"code,omitempty"`
	Type    string     `json:"type,omitempty"`
}

// flexString accepts a JSON string or number; providers disagree on error codes.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		*s = flexString(data)
		return nil
	}
	*s = flexString(n.String())
	return nil
}

// parseResponse decodes a 2xx body. A provider error embedded in the payload is
// reported as an ApiError even though the transport succeeded.
func parseResponse(data []byte) (*wireResponse, error) {
	var out wireResponse
	if err := json.Unmarshal(data, &out); err != nil {
		e := llm.APIError("decode response body: "+err.Error(), "invalid_response", "")
		e.Err = err
		return nil, e
	}
	if out.Error != nil {
		message := out.Error.Message
		if message == "" {
			message = "provider returned an error"
		}
		return nil, llm.APIError(message, string(out.Error.Code), out.Error.Type)
	}
	return &out, nil
}

// toSuccess extracts the first choice. Missing choices or message yield empty content.
func (w *wireResponse) toSuccess() *llm.ChatSuccess {
	res := &llm.ChatSuccess{
		ID:      w.ID,
		Created: w.Created,
		Model:   w.Model,
		Usage:   w.Usage,
	}
	if len(w.Choices) > 0 {
		choice := w.Choices[0]
		res.FinishReason = choice.FinishReason
		if choice.Message != nil {
			res.Content = choice.Message.Content
		}
	}
	return res
}
