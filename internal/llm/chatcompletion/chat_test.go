package chatcompletion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bakkerme/wanderlust-ai/internal/config"
	"github.com/bakkerme/wanderlust-ai/internal/llm"
	"github.com/bakkerme/wanderlust-ai/internal/llm/schema"
)

func TestChat_Success(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){status(200, okBody)}}
	c, _ := newTestClient(t, stub, nil)

	res, err := c.Chat(context.Background(), llm.ChatParams{System: "be brief", Messages: userMessage("hi")})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.ID != "gen-1" || res.Created != 1760000000 || res.Model != "openai/gpt-4o-mini" {
		t.Fatalf("Chat() = %#v", res)
	}
	if res.Content != "hello" || res.FinishReason != "stop" || res.Attempts != 1 {
		t.Fatalf("Chat() = %#v", res)
	}
	if res.Usage != (llm.Usage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17}) {
		t.Fatalf("Usage = %#v", res.Usage)
	}

	req := stub.requests[0]
	if req.Method != http.MethodPost || req.URL.String() != testBaseURL+"/chat/completions" {
		t.Fatalf("request = %s %s", req.Method, req.URL)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer test-key" {
		t.Fatalf("Authorization = %q", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
	if req.Header.Get("HTTP-Referer") != DefaultReferer || req.Header.Get("X-Title") != DefaultTitle {
		t.Fatalf("attribution headers = %v", req.Header)
	}

	var sent wireRequest
	if err := json.Unmarshal([]byte(stub.bodies[0]), &sent); err != nil {
		t.Fatalf("unmarshal sent body: %v", err)
	}
	if len(sent.Messages) != 2 || sent.Messages[0].Role != "system" || sent.Messages[1].Content != "hi" {
		t.Fatalf("sent messages = %#v", sent.Messages)
	}
}

func TestChat_ExtraHeaders(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){status(200, okBody)}}
	c, _ := newTestClient(t, stub, nil)

	_, err := c.Chat(context.Background(), llm.ChatParams{
		Messages: userMessage("hi"),
		Headers: map[string]string{
			"X-Title":       "custom-title",
			"X-Trace":       "abc",
			"Authorization": "Bearer stolen",
			"Content-Type":  "text/plain",
		},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	h := stub.requests[0].Header
	if h.Get("X-Title") != "custom-title" || h.Get("X-Trace") != "abc" {
		t.Fatalf("extra headers not applied: %v", h)
	}
	if h.Get("Authorization") != "Bearer test-key" || h.Get("Content-Type") != "application/json" {
		t.Fatalf("mandatory headers overridden: %v", h)
	}
}

func TestChat_EmptyMessagesNeverSends(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){status(200, okBody)}}
	c, _ := newTestClient(t, stub, nil)

	_, err := c.Chat(context.Background(), llm.ChatParams{System: "S"})
	if llm.KindOf(err) != llm.KindRequestValidation {
		t.Fatalf("Chat() error = %v, want request validation", err)
	}
	if stub.calls() != 0 {
		t.Fatalf("transport calls = %d, want 0", stub.calls())
	}
}

func TestChat_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	for n := 1; n < DefaultMaxRetries; n++ {
		responses := make([]func(*http.Request) (*http.Response, error), 0, n+1)
		for i := 0; i < n; i++ {
			responses = append(responses, status(500, "upstream exploded"))
		}
		responses = append(responses, status(200, okBody))
		stub := &stubTransport{responses: responses}
		c, rec := newTestClient(t, stub, nil)

		res, err := c.Chat(context.Background(), llm.ChatParams{Messages: userMessage("hi")})
		if err != nil {
			t.Fatalf("n=%d: Chat() error = %v", n, err)
		}
		if stub.calls() != n+1 || res.Attempts != n+1 {
			t.Fatalf("n=%d: calls = %d, attempts = %d, want %d", n, stub.calls(), res.Attempts, n+1)
		}
		for i, d := range rec.delays {
			if want := time.Second << i; d != want {
				t.Fatalf("n=%d: delay[%d] = %v, want %v", n, i, d, want)
			}
		}
		if len(rec.delays) != n {
			t.Fatalf("n=%d: delays = %v", n, rec.delays)
		}
	}
}

func TestChat_BackoffIsCapped(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){status(503, "")}}
	c, rec := newTestClient(t, stub, func(cfg *config.LLMEnvConfig) { cfg.MaxRetries = intPtr(6) })

	_, err := c.Chat(context.Background(), llm.ChatParams{Messages: userMessage("hi")})
	e, ok := llm.AsError(err)
	if !ok || e.Kind != llm.KindHTTP || e.Status != 503 {
		t.Fatalf("Chat() error = %v, want http 503", err)
	}
	if stub.calls() != 7 {
		t.Fatalf("calls = %d, want 7", stub.calls())
	}
	want := []time.Duration{1, 2, 4, 8, 10, 10}
	for i := range want {
		if rec.delays[i] != want[i]*time.Second {
			t.Fatalf("delays = %v", rec.delays)
		}
	}
}

func TestChat_RateLimitIsRetried(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){
		status(429, `{"error":{"message":"slow down"}}`),
		status(200, okBody),
	}}
	c, _ := newTestClient(t, stub, nil)

	if _, err := c.Chat(context.Background(), llm.ChatParams{Messages: userMessage("hi")}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if stub.calls() != 2 {
		t.Fatalf("calls = %d, want 2", stub.calls())
	}
}

func TestChat_ClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){status(404, "no such model")}}
	c, rec := newTestClient(t, stub, nil)

	_, err := c.Chat(context.Background(), llm.ChatParams{Messages: userMessage("hi")})
	e, ok := llm.AsError(err)
	if !ok || e.Kind != llm.KindHTTP || e.Status != 404 {
		t.Fatalf("Chat() error = %v, want http 404", err)
	}
	if e.Body != "no such model" || e.Meta["status"] != 404 {
		t.Fatalf("error payload = %#v", e)
	}
	if stub.calls() != 1 || len(rec.delays) != 0 {
		t.Fatalf("calls = %d, delays = %v, want a single attempt", stub.calls(), rec.delays)
	}
}

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
func (failingBody) Close() error             { return nil }

func TestChat_UnreadableErrorBodyKeepsStatus(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){
		func(r *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: 401, Header: http.Header{}, Body: failingBody{}, Request: r}, nil
		},
	}}
	c, _ := newTestClient(t, stub, nil)

	_, err := c.Chat(context.Background(), llm.ChatParams{Messages: userMessage("hi")})
	e, ok := llm.AsError(err)
	if !ok || e.Kind != llm.KindHTTP || e.Status != 401 || e.Body != "" {
		t.Fatalf("Chat() error = %#v, want http 401 without body", err)
	}
}

func TestChat_NetworkErrorsAreRetriedThenReturned(t *testing.T) {
	t.Parallel()

	boom := errors.New("dial tcp: connection refused")
	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){
		func(*http.Request) (*http.Response, error) { return nil, boom },
	}}
	c, rec := newTestClient(t, stub, func(cfg *config.LLMEnvConfig) { cfg.MaxRetries = intPtr(2) })

	_, err := c.Chat(context.Background(), llm.ChatParams{Messages: userMessage("hi")})
	if llm.KindOf(err) != llm.KindNetwork || !errors.Is(err, boom) {
		t.Fatalf("Chat() error = %v, want network error wrapping %v", err, boom)
	}
	if stub.calls() != 3 || len(rec.delays) != 2 {
		t.Fatalf("calls = %d, delays = %v", stub.calls(), rec.delays)
	}
}

func TestChat_TimeoutIsNotRetried(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){
		func(r *http.Request) (*http.Response, error) {
			<-r.Context().Done()
			return nil, r.Context().Err()
		},
	}}
	c, rec := newTestClient(t, stub, func(cfg *config.LLMEnvConfig) { cfg.Timeout = 50 * time.Millisecond })

	start := time.Now()
	_, err := c.Chat(context.Background(), llm.ChatParams{Messages: userMessage("hi")})
	elapsed := time.Since(start)

	e, ok := llm.AsError(err)
	if !ok || e.Kind != llm.KindTimeout {
		t.Fatalf("Chat() error = %v, want timeout", err)
	}
	if e.Timeout != 50*time.Millisecond || e.Meta["timeout_ms"] != int64(50) {
		t.Fatalf("timeout payload = %v / %v", e.Timeout, e.Meta["timeout_ms"])
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("timeout should wrap context.DeadlineExceeded")
	}
	if elapsed < 50*time.Millisecond || elapsed > 2*time.Second {
		t.Fatalf("elapsed = %v, want about 50ms", elapsed)
	}
	if stub.calls() != 1 || len(rec.delays) != 0 {
		t.Fatalf("calls = %d, delays = %v, want a single attempt", stub.calls(), rec.delays)
	}
}

func TestChat_TimeoutWithTransportIgnoringCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){
		func(r *http.Request) (*http.Response, error) {
			<-release
			return jsonResponse(r, 200, okBody), nil
		},
	}}
	c, _ := newTestClient(t, stub, func(cfg *config.LLMEnvConfig) { cfg.Timeout = 50 * time.Millisecond })

	_, err := c.Chat(context.Background(), llm.ChatParams{Messages: userMessage("hi")})
	if llm.KindOf(err) != llm.KindTimeout {
		t.Fatalf("Chat() error = %v, want timeout", err)
	}
}

func TestChat_CallerCancellationIsNotRetried(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){
		func(r *http.Request) (*http.Response, error) {
			cancel()
			<-r.Context().Done()
			return nil, r.Context().Err()
		},
	}}
	c, _ := newTestClient(t, stub, nil)

	_, err := c.Chat(ctx, llm.ChatParams{Messages: userMessage("hi")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Chat() error = %v, want context.Canceled", err)
	}
	if stub.calls() != 1 {
		t.Fatalf("calls = %d, want 1", stub.calls())
	}
}

func TestChat_EmbeddedAPIError(t *testing.T) {
	t.Parallel()

	body := `{"error":{"message":"Provider returned error","code":502,"type":"upstream_error"}}`
	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){status(200, body)}}
	c, rec := newTestClient(t, stub, func(cfg *config.LLMEnvConfig) { cfg.MaxRetries = intPtr(1) })

	_, err := c.Chat(context.Background(), llm.ChatParams{Messages: userMessage("hi")})
	e, ok := llm.AsError(err)
	if !ok || e.Kind != llm.KindAPI {
		t.Fatalf("Chat() error = %v, want api error", err)
	}
	if e.Message != "Provider returned error" || e.APICode != "502" || e.APIType != "upstream_error" {
		t.Fatalf("api error payload = %#v", e)
	}
	if stub.calls() != 2 || len(rec.delays) != 1 {
		t.Fatalf("calls = %d, want api errors to be retried by default", stub.calls())
	}
}

func TestChat_APIErrorPolicy(t *testing.T) {
	t.Parallel()

	body := `{"error":{"message":"model not found","code":"invalid_model"}}`
	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){status(200, body)}}
	policy := func(e *llm.Error) bool { return e.APICode != "invalid_model" }
	c, _ := newTestClient(t, stub, nil, WithAPIErrorPolicy(policy))

	_, err := c.Chat(context.Background(), llm.ChatParams{Messages: userMessage("hi")})
	if llm.KindOf(err) != llm.KindAPI {
		t.Fatalf("Chat() error = %v, want api error", err)
	}
	if stub.calls() != 1 {
		t.Fatalf("calls = %d, want 1", stub.calls())
	}
}

func TestChat_MissingChoicesYieldEmptyContent(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{"id":"a"}`, `{"id":"a","choices":[]}`, `{"id":"a","choices":[{"finish_reason":"length"}]}`, `{"choices":[{"message":{"content":null}}]}`} {
		stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){status(200, body)}}
		c, _ := newTestClient(t, stub, nil)
		res, err := c.Chat(context.Background(), llm.ChatParams{Messages: userMessage("hi")})
		if err != nil {
			t.Fatalf("Chat(%s) error = %v", body, err)
		}
		if res.Content != "" {
			t.Fatalf("Chat(%s) content = %q, want empty", body, res.Content)
		}
	}
}

func TestChat_StructuredOutput(t *testing.T) {
	t.Parallel()

	content := `{\"itinerary\":\"Day 1: Alfama\",\"suggestedTripLength\":3}`
	body := strings.Replace(okBody, `"content": "hello"`, `"content": "`+content+`"`, 1)
	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){status(200, body)}}
	c, _ := newTestClient(t, stub, nil)

	res, err := c.Chat(context.Background(), llm.ChatParams{
		Messages:       userMessage("plan Lisbon"),
		ResponseSchema: schema.MustFor[itinerary]("itinerary"),
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	got, ok := schema.Result[itinerary](res)
	if !ok || got.SuggestedTripLength != 3 || got.Itinerary != "Day 1: Alfama" {
		t.Fatalf("Structured = %#v", res.Structured)
	}
	if !strings.Contains(stub.bodies[0], `"response_format"`) {
		t.Fatalf("response_format missing from %s", stub.bodies[0])
	}
}

func TestChat_InvalidStructuredOutputIsNotRetried(t *testing.T) {
	t.Parallel()

	body := strings.Replace(okBody, `"content": "hello"`, `"content": "{\"itinerary\":\"x\"}"`, 1)
	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){status(200, body)}}
	c, _ := newTestClient(t, stub, nil)

	_, err := c.Chat(context.Background(), llm.ChatParams{
		Messages:       userMessage("plan"),
		ResponseSchema: schema.MustFor[itinerary](""),
	})
	e, ok := llm.AsError(err)
	if !ok || e.Kind != llm.KindJSONValidation || e.Raw != `{"itinerary":"x"}` {
		t.Fatalf("Chat() error = %#v, want json validation with raw content", err)
	}
	if stub.calls() != 1 {
		t.Fatalf("calls = %d, want 1", stub.calls())
	}
}

func TestChat_MalformedSuccessBody(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){status(200, "<html>oops</html>"), status(200, okBody)}}
	c, _ := newTestClient(t, stub, nil)

	res, err := c.Chat(context.Background(), llm.ChatParams{Messages: userMessage("hi")})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", res.Attempts)
	}
}

func TestChat_ConcurrentCallsAreIndependent(t *testing.T) {
	t.Parallel()

	stub := &stubTransport{responses: []func(*http.Request) (*http.Response, error){status(200, okBody)}}
	c, _ := newTestClient(t, stub, nil)

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := c.Chat(context.Background(), llm.ChatParams{Messages: userMessage("hi")})
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
	}
	if stub.calls() != 8 {
		t.Fatalf("calls = %d, want 8", stub.calls())
	}
}

func TestChat_HTTPTestServer(t *testing.T) {
	t.Parallel()

	srv := newTLSServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody))
	}))

	c, err := New(config.LLMEnvConfig{APIKey: "key", BaseURL: srv.URL + "/v1/"}, WithTransport(srv.Client()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := c.Chat(context.Background(), llm.ChatParams{Messages: userMessage("hi")})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Content != "hello" {
		t.Fatalf("Content = %q", res.Content)
	}
}
