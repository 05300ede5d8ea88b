package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/findoc-assistant/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL           string
	GenModel          string
	VisionModel       string
	Temperature       float64
	ChatTemperature   float64
	MaxInputChars     int
	MaxResponseTokens int
	HTTPTimeout       time.Duration
}

// Client talks to an Ollama server. Every call goes through the resilience executor.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 120 * time.Second
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = 5000
	}
	return &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		executor:   executor,
	}
}

type modelOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateRequest struct {
	Model   string       `json:"model"`
	Prompt  string       `json:"prompt"`
	System  string       `json:"system,omitempty"`
	Format  string       `json:"format,omitempty"`
	Images  []string     `json:"images,omitempty"`
	Stream  bool         `json:"stream"`
	Options modelOptions `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  modelOptions  `json:"options"`
}

func (c *Client) options(temperature float64) modelOptions {
	return modelOptions{Temperature: temperature, NumPredict: c.cfg.MaxResponseTokens}
}

func (c *Client) generate(ctx context.Context, operation string, req generateRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.cfg.GenModel
	}
	out, err := resilience.Call(ctx, c.executor, "ollama."+operation, func(callCtx context.Context) (string, error) {
		resp, err := post[generateResponse](callCtx, c, "/api/generate", operation, req)
		return strings.TrimSpace(resp.Response), err
	}, classifyOllamaError)
	if err != nil {
		return "", wrapTemporaryIfNeeded(operation, err)
	}
	return out, nil
}

func (c *Client) chat(ctx context.Context, operation string, req chatRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.cfg.GenModel
	}
	out, err := resilience.Call(ctx, c.executor, "ollama."+operation, func(callCtx context.Context) (string, error) {
		resp, err := post[chatResponse](callCtx, c, "/api/chat", operation, req)
		return strings.TrimSpace(resp.Message.Content), err
	}, classifyOllamaError)
	if err != nil {
		return "", wrapTemporaryIfNeeded(operation, err)
	}
	return out, nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
