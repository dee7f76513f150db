package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/nevindra/counsel"
)

// DefaultTimeout bounds one whole request, streaming reads included.
const DefaultTimeout = 60 * time.Second

// Provider implements counsel.Provider for any OpenAI-compatible API.
// It uses the shared helpers in this package (BuildBody, StreamSSE,
// ParseResponse) to handle body building, streaming, and response parsing.
//
// Works with OpenAI, DeepSeek, Moonshot, Groq, Ollama, vLLM, and any other
// provider that implements the OpenAI chat completions API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	opts    []Option
}

// NewProvider creates an OpenAI-compatible chat provider.
//
// baseURL is the API base (e.g. "https://api.deepseek.com/v1",
// "http://localhost:11434/v1"). The /chat/completions path is appended
// automatically.
//
// Provider-level options (WithOptions) are applied to every request.
// Per-request options from BuildBody still work for callers using the
// helpers directly.
func NewProvider(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name (default "openai", configurable via WithName).
func (p *Provider) Name() string { return p.name }

// Chat sends a non-streaming chat request and returns the complete response.
// When req.Tools is non-empty, the response may contain ToolCalls.
func (p *Provider) Chat(ctx context.Context, req counsel.ChatRequest) (counsel.ChatResponse, error) {
	body := BuildBody(req.Messages, req.Tools, p.model, req.Temperature, p.opts...)

	resp, err := p.sendHTTP(ctx, body)
	if err != nil {
		return counsel.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return counsel.ChatResponse{}, p.httpErr(resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return counsel.ChatResponse{}, counsel.NewUnavailableError("", fmt.Errorf("%s: decode response: %w", p.name, err))
	}
	return ParseResponse(chatResp)
}

// ChatStream streams text-delta events into ch, then returns the final
// accumulated response once the stream is drained. The channel is closed when
// streaming completes (via StreamSSE) or on error.
func (p *Provider) ChatStream(ctx context.Context, req counsel.ChatRequest, ch chan<- counsel.StreamEvent) (counsel.ChatResponse, error) {
	body := BuildBody(req.Messages, req.Tools, p.model, req.Temperature, p.opts...)
	body.Stream = true
	body.StreamOptions = &StreamOptions{IncludeUsage: true}

	resp, err := p.sendHTTP(ctx, body)
	if err != nil {
		close(ch)
		return counsel.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		close(ch)
		return counsel.ChatResponse{}, p.httpErr(resp)
	}

	// StreamSSE closes ch when done.
	out, err := StreamSSE(ctx, resp.Body, ch)
	if err != nil {
		return counsel.ChatResponse{}, p.classify(err)
	}
	return out, nil
}

// sendHTTP marshals the request body and sends it to the chat completions
// endpoint, classifying transport failures per the error taxonomy.
func (p *Provider) sendHTTP(ctx context.Context, body ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, counsel.NewUnavailableError("", fmt.Errorf("%s: marshal request: %w", p.name, err))
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, counsel.NewUnavailableError("", fmt.Errorf("%s: create request: %w", p.name, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.classify(err)
	}
	return resp, nil
}

// classify maps a transport error onto the stable error taxonomy: timeouts
// rank first, everything else is a connection-level unavailable. The raw
// error stays wrapped for logs; the caller-visible message never carries it.
func (p *Provider) classify(err error) error {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &ne) && ne.Timeout():
		return counsel.NewTimeoutError(fmt.Errorf("%s: %w", p.name, err))
	default:
		return counsel.NewUnavailableError("", fmt.Errorf("%s: connect: %w", p.name, err))
	}
}

// httpErr reads the failed response and classifies it by status. The raw
// *counsel.ErrHTTP is wrapped inside the ModelError so retry middleware can
// still read the status and Retry-After header.
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	cause := &counsel.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: counsel.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return counsel.NewAuthError(cause)
	case resp.StatusCode == http.StatusTooManyRequests:
		return counsel.NewRateLimitError(cause)
	default:
		return counsel.NewUnavailableError("", cause)
	}
}

// Compile-time interface check.
var _ counsel.Provider = (*Provider)(nil)
