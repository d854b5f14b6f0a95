package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/theirongolddev/promptroute/internal/model"
)

func userMsg(s string) []model.Message {
	return []model.Message{{Role: model.RoleUser, Content: s}}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL, APIKey: `"sk-or-test"`, Referer: "https://example.test", Title: "promptroute"})
}

func TestCompleteSuccess(t *testing.T) {
	var gotBody []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-or-test", r.Header.Get("Authorization"))
		assert.Equal(t, "https://example.test", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "promptroute", r.Header.Get("X-Title"))
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	})

	out, err := c.Complete(context.Background(), Request{
		Messages:    userMsg("hi"),
		Model:       "openai/gpt-4o",
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Text)
	assert.Equal(t, int64(15), out.Usage.TotalTokens, "total backfilled")
	assert.Positive(t, out.Latency)

	body := gjson.ParseBytes(gotBody)
	assert.Equal(t, "openai/gpt-4o", body.Get("model").String())
	assert.Equal(t, "user", body.Get("messages.0.role").String())
	assert.Equal(t, "hi", body.Get("messages.0.content").String())
	assert.Equal(t, int64(1000), body.Get("max_tokens").Int())
	assert.InDelta(t, 0.7, body.Get("temperature").Float(), 1e-9)
}

func TestCompleteErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
		kind   string
	}{
		{"unauthorized", 401, `{"error":{"message":"No auth credentials found","code":401}}`, ErrAuth, "auth"},
		{"forbidden", 403, `{"error":{"message":"forbidden"}}`, ErrAuth, "auth"},
		{"rate limited", 429, `{"error":{"message":"slow down"}}`, ErrRateLimited, "rate_limited"},
		{"context 400", 400, `{"error":{"message":"This model's maximum context length is 8192 tokens"}}`, ErrContextLength, "context_length"},
		{"context code", 400, `{"error":{"message":"bad","code":"context_length_exceeded"}}`, ErrContextLength, "context_length"},
		{"credits", 402, `{"error":{"message":"Insufficient credits"}}`, ErrUpstream, "upstream"},
		{"model missing", 404, `{"error":{"message":"No endpoints found"}}`, ErrUpstream, "upstream"},
		{"server", 500, `oops`, ErrUpstream, "upstream"},
		{"error in 200", 200, `{"error":{"message":"provider returned error","code":502}}`, ErrUpstream, "upstream"},
		{"no choices", 200, `{"id":"x"}`, ErrUpstream, "upstream"},
		{"malformed", 200, `{"choices":[`, ErrUpstream, "upstream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			out, err := c.Complete(context.Background(), Request{Messages: userMsg("hi"), Model: "m/x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Positive(t, out.Latency)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
		})
	}
}

func TestCompleteErrorBodyTruncatedOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("a", 199) + strings.Repeat("é", 50)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(body))
	})
	_, err := c.Complete(context.Background(), Request{Messages: userMsg("hi"), Model: "m/x"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, utf8.ValidString(apiErr.Message), "message split a rune: %q", apiErr.Message)
	assert.LessOrEqual(t, utf8.RuneCountInString(apiErr.Message), 200)
	assert.True(t, strings.HasPrefix(apiErr.Message, strings.Repeat("a", 197)))
}

func TestCompleteValidation(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	cases := [][]model.Message{
		nil,
		{{Role: model.RoleUser, Content: ""}},
		{{Role: model.RoleUser, Content: "   "}},
		{{Role: "", Content: "hi"}},
		{{Role: "tool", Content: "hi"}},
	}
	for _, msgs := range cases {
		_, err := c.Complete(context.Background(), Request{Messages: msgs, Model: "m/x"})
		assert.ErrorIs(t, err, ErrValidation)
	}
	assert.False(t, called, "invalid requests must not reach the server")
}

func TestCompleteTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	out, err := c.Complete(context.Background(), Request{Messages: userMsg("hi"), Model: "m/x", Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, out.Latency, 50*time.Millisecond)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "", KindOf(nil))
	assert.Equal(t, "upstream", KindOf(errors.New("boom")))
	assert.Equal(t, "timeout", KindOf(&APIError{Kind: ErrTimeout}))
}
