// Package llm calls an OpenAI-compatible chat completion endpoint for a
// single non-streaming reply.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/aiist007/24life/pkg/fn"
	"github.com/aiist007/24life/pkg/metrics"
	"github.com/aiist007/24life/pkg/resilience"
)

const (
	DefaultBaseURL     = "https://llm.ai-nebula.com/v1"
	DefaultModel       = "gemini-3-flash-preview"
	DefaultTemperature = 0.7
	DefaultTimeout     = 60 * time.Second
)

// ErrNoChoices is returned when the endpoint answers without a choice.
var ErrNoChoices = errors.New("llm: no completion choices returned")

// Reply is a completed answer.
type Reply struct {
	Text       string
	Model      string
	TokensUsed int64
}

// Options configures a Client. Zero fields get defaults.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	// Temperature is sent as given, including 0. Nil means DefaultTemperature.
	Temperature *float64
	Timeout     time.Duration
	// MaxRetries is passed to the SDK, which retries 408/409/429/5xx.
	MaxRetries int
	Breaker    *resilience.Breaker
	HTTP       *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Registry
}

// Client wraps the SDK client with a timeout and a circuit breaker.
type Client struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
	breaker     *resilience.Breaker
	logger      *slog.Logger
	metrics     *metrics.Registry
}

// New builds a Client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	temperature := DefaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewBreaker(resilience.DefaultBreakerOpts)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/") + "/"),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.HTTP != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTP))
	}
	return &Client{
		client:      openai.NewClient(reqOpts...),
		model:       opts.Model,
		temperature: temperature,
		timeout:     opts.Timeout,
		breaker:     opts.Breaker,
		logger:      opts.Logger.With("component", "llm"),
		metrics:     opts.Metrics,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Complete sends the system prompt and user message and returns the first
// choice.
func (c *Client) Complete(ctx context.Context, system, user string) (*Reply, error) {
	start := time.Now()
	res := resilience.CallResult(ctx, c.breaker, func(ctx context.Context) fn.Result[*Reply] {
		return c.complete(ctx, system, user)
	})
	c.metrics.Histogram("llm_request_seconds", "Chat completion latency", nil).Since(start)

	reply, err := res.Unwrap()
	if err != nil {
		c.metrics.Counter("llm_requests_total", "Chat completions by outcome", "outcome", "error").Inc()
		c.logger.Error("chat completion failed", "model", c.model, "duration", time.Since(start), "err", err)
		return nil, err
	}
	c.metrics.Counter("llm_requests_total", "Chat completions by outcome", "outcome", "ok").Inc()
	c.logger.Info("chat completion", "model", reply.Model, "tokens", reply.TokensUsed, "duration", time.Since(start))
	return reply, nil
}

func (c *Client) complete(ctx context.Context, system, user string) fn.Result[*Reply] {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return fn.Err[*Reply](fmt.Errorf("llm: chat completion: %w", err))
	}
	if len(completion.Choices) == 0 {
		return fn.Err[*Reply](ErrNoChoices)
	}
	return fn.Ok(&Reply{
		Text:       completion.Choices[0].Message.Content,
		Model:      completion.Model,
		TokensUsed: completion.Usage.TotalTokens,
	})
}
