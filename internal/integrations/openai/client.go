package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"voicebot/internal/domain"
)

const (
	DefaultBaseURL            = "https://api.groq.com/openai/v1"
	DefaultChatModel          = "llama-3.1-8b-instant"
	DefaultTemperature        = 0.5
	DefaultTranscriptionModel = "whisper-large-v3"
)

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	Op         string
	Err        error
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: %s: unexpected status %d: %v", e.Op, e.StatusCode, e.Err)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

// Client talks to an OpenAI-compatible API for chat completions and audio
// transcription. The underlying go-openai client is built on first use and
// shared by every caller for the rest of the process.
type Client struct {
	baseURL            string
	httpClient         *http.Client
	getter             Getter
	paramPrefix        string
	chatModel          string
	temperature        float32
	transcriptionModel string
	tempDir            string

	apiMu sync.RWMutex
	api   *goopenai.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithChatModel(model string) Option {
	return func(c *Client) {
		c.chatModel = strings.TrimSpace(model)
	}
}

func WithTemperature(temperature float32) Option {
	return func(c *Client) {
		c.temperature = temperature
	}
}

func WithTranscriptionModel(model string) Option {
	return func(c *Client) {
		c.transcriptionModel = strings.TrimSpace(model)
	}
}

// WithTempDir sets where audio payloads are staged before upload. Empty means
// os.TempDir.
func WithTempDir(dir string) Option {
	return func(c *Client) {
		c.tempDir = dir
	}
}

// NewClient creates a Client that reads its API token from the parameter store
// under paramPrefix on first use.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:            DefaultBaseURL,
		httpClient:         &http.Client{Timeout: 60 * time.Second},
		getter:             ps,
		paramPrefix:        paramPrefix,
		chatModel:          DefaultChatModel,
		temperature:        DefaultTemperature,
		transcriptionModel: DefaultTranscriptionModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.chatModel == "" {
		return nil, errors.New("openai: chat model must not be empty")
	}
	if c.transcriptionModel == "" {
		return nil, errors.New("openai: transcription model must not be empty")
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	return c, nil
}

// resolveAPI builds the shared go-openai client once. Concurrent first callers
// wait on the write lock and reuse whatever the winner built. A failed build
// leaves the client unset so the next call tries again.
func (c *Client) resolveAPI(ctx context.Context) (*goopenai.Client, error) {
	c.apiMu.RLock()
	if c.api != nil {
		api := c.api
		c.apiMu.RUnlock()
		return api, nil
	}
	c.apiMu.RUnlock()

	c.apiMu.Lock()
	defer c.apiMu.Unlock()
	if c.api != nil {
		return c.api, nil
	}

	apiKey, err := fetchAPIKeyFromParamStore(ctx, c.getter, c.tokenParameterName())
	if err != nil {
		return nil, err
	}
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = c.baseURL
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	c.api = goopenai.NewClientWithConfig(cfg)
	return c.api, nil
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/open-ai-token"
}

// Chat sends the full message list and returns the first choice's content.
func (c *Client) Chat(ctx context.Context, messages []domain.Turn) (string, error) {
	api, err := c.resolveAPI(ctx)
	if err != nil {
		return "", err
	}

	resp, err := api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    toChatMessages(messages),
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat request failed: %w", statusError("chat completion", err))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func toChatMessages(turns []domain.Turn) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, goopenai.ChatCompletionMessage{
			Role:    chatRole(t.Role),
			Content: t.Content,
		})
	}
	return out
}

func chatRole(r domain.Role) string {
	switch r {
	case domain.RoleSystem:
		return goopenai.ChatMessageRoleSystem
	case domain.RoleAssistant:
		return goopenai.ChatMessageRoleAssistant
	default:
		return goopenai.ChatMessageRoleUser
	}
}

// statusError lifts the HTTP status out of go-openai's error types so callers
// can branch on it without importing go-openai.
func statusError(op string, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{StatusCode: apiErr.HTTPStatusCode, Op: op, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{StatusCode: reqErr.HTTPStatusCode, Op: op, Err: err}
	}
	return err
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("openai: API token is empty")
	}
	return tp.Token, nil
}
