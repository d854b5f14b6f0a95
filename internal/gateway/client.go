// Package gateway sends chat completion requests to an OpenRouter-compatible
// API and maps its failures onto a small error taxonomy.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/time/rate"

	"github.com/theirongolddev/promptroute/internal/model"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultTimeout = 60 * time.Second
	maxBodySize    = 4 << 20 // 4 MB
)

// Request is one chat completion call.
type Request struct {
	Messages    []model.Message
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Completion is a successful response.
type Completion struct {
	Text    string
	Usage   model.UsageStats
	Latency time.Duration
}

// Completer is implemented by Client and by test fakes.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	APIKey            string
	Referer           string
	Title             string
	Timeout           time.Duration
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// Client talks to the chat completions endpoint. It performs no retries.
type Client struct {
	baseURL string
	apiKey  string
	referer string
	title   string
	timeout time.Duration
	limiter *rate.Limiter
	http    *http.Client
}

// NewClient creates a client. Zero-valued options take defaults.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  strings.Trim(strings.TrimSpace(opts.APIKey), `'"`),
		referer: opts.Referer,
		title:   opts.Title,
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return c
}

// Validate checks messages before anything is sent.
func Validate(messages []model.Message) error {
	if len(messages) == 0 {
		return &APIError{Kind: ErrValidation, Message: "no messages"}
	}
	for i, m := range messages {
		if m.Role == "" {
			return &APIError{Kind: ErrValidation, Message: fmt.Sprintf("message %d has no role", i)}
		}
		if !m.Role.Valid() {
			return &APIError{Kind: ErrValidation, Message: fmt.Sprintf("message %d has unknown role %q", i, m.Role)}
		}
		if strings.TrimSpace(m.Content) == "" {
			return &APIError{Kind: ErrValidation, Message: fmt.Sprintf("message %d has empty content", i)}
		}
	}
	return nil
}

// Complete sends one request. Latency is set on every return path.
func (c *Client) Complete(ctx context.Context, req Request) (Completion, error) {
	start := time.Now()
	out, err := c.complete(ctx, req)
	out.Latency = time.Since(start)
	out.Usage.LatencySeconds = out.Latency.Seconds()
	return out, err
}

func (c *Client) complete(ctx context.Context, req Request) (Completion, error) {
	if err := Validate(req.Messages); err != nil {
		return Completion{}, err
	}
	if req.Model == "" {
		return Completion{}, &APIError{Kind: ErrValidation, Message: "no model"}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Completion{}, &APIError{Kind: ErrTimeout, Message: "waiting for rate limiter: " + err.Error()}
		}
	}

	body, err := buildBody(req)
	if err != nil {
		return Completion{}, fmt.Errorf("gateway: building request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("gateway: creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			return Completion{}, &APIError{Kind: ErrTimeout, Message: err.Error()}
		}
		return Completion{}, &APIError{Kind: ErrUpstream, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if isTimeout(ctx, err) {
			return Completion{}, &APIError{Kind: ErrTimeout, Status: resp.StatusCode, Message: err.Error()}
		}
		return Completion{}, &APIError{Kind: ErrUpstream, Status: resp.StatusCode, Message: "reading response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Completion{}, classify(resp.StatusCode, raw)
	}
	return parseCompletion(resp.StatusCode, raw)
}

func buildBody(req Request) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "model", req.Model); err != nil {
		return nil, err
	}
	for i, m := range req.Messages {
		prefix := fmt.Sprintf("messages.%d.", i)
		if body, err = sjson.SetBytes(body, prefix+"role", string(m.Role)); err != nil {
			return nil, err
		}
		if body, err = sjson.SetBytes(body, prefix+"content", m.Content); err != nil {
			return nil, err
		}
	}
	if body, err = sjson.SetBytes(body, "temperature", req.Temperature); err != nil {
		return nil, err
	}
	if req.MaxTokens > 0 {
		if body, err = sjson.SetBytes(body, "max_tokens", req.MaxTokens); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// classify maps a non-2xx response onto the error taxonomy.
func classify(status int, raw []byte) error {
	e := &APIError{Status: status}
	if gjson.ValidBytes(raw) {
		res := gjson.ParseBytes(raw)
		e.Message = res.Get("error.message").String()
		e.Code = res.Get("error.code").String()
	}
	if e.Message == "" {
		e.Message = model.Truncate(strings.TrimSpace(string(raw)), 200)
	}

	switch {
	case isContextOverflow(e.Message) || isContextOverflow(e.Code):
		e.Kind = ErrContextLength
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = ErrAuth
	case status == http.StatusTooManyRequests:
		e.Kind = ErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e.Kind = ErrTimeout
	default:
		e.Kind = ErrUpstream
	}
	return e
}

func parseCompletion(status int, raw []byte) (Completion, error) {
	if !gjson.ValidBytes(raw) {
		return Completion{}, &APIError{Kind: ErrUpstream, Status: status, Message: "malformed JSON response"}
	}
	res := gjson.ParseBytes(raw)

	// OpenRouter reports some failures inside a 200 body.
	if errObj := res.Get("error"); errObj.Exists() {
		code := errObj.Get("code")
		if code.Type == gjson.Number {
			return Completion{}, classify(int(code.Int()), raw)
		}
		return Completion{}, classify(status, raw)
	}

	content := res.Get("choices.0.message.content")
	if !content.Exists() {
		return Completion{}, &APIError{Kind: ErrUpstream, Status: status, Message: "response has no choices"}
	}

	usage := model.UsageStats{
		PromptTokens:     res.Get("usage.prompt_tokens").Int(),
		CompletionTokens: res.Get("usage.completion_tokens").Int(),
		TotalTokens:      res.Get("usage.total_tokens").Int(),
	}.Normalized()

	return Completion{Text: content.String(), Usage: usage}, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
