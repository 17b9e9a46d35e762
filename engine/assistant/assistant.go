// Package assistant answers chat questions. It pins each question to the
// current date, place and solar term, gathers local and web context
// concurrently, and asks the LLM. When the LLM fails it degrades to the web
// results it already has.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aiist007/24life/engine/almanac"
	"github.com/aiist007/24life/engine/domain"
	"github.com/aiist007/24life/engine/llm"
	"github.com/aiist007/24life/engine/websearch"
	"github.com/aiist007/24life/pkg/fn"
	"github.com/aiist007/24life/pkg/metrics"
)

// ErrUnavailable is returned when the LLM failed and there was nothing to
// fall back to.
var ErrUnavailable = errors.New("assistant: unavailable")

// FoodTherapyTrigger switches the system prompt to the food-therapy prompt.
const FoodTherapyTrigger = "今天吃什么"

// FoodTherapyFile is looked up in Options.PromptsDir.
const FoodTherapyFile = "food_therapy.md"

// LocalSearcher renders ranked corpus context for a query.
type LocalSearcher interface {
	Search(query string, limit int) string
}

// WebSearcher never fails; failures are rendered into the result text.
type WebSearcher interface {
	Search(ctx context.Context, query string) websearch.Result
}

// Completer produces the final answer.
type Completer interface {
	Complete(ctx context.Context, system, user string) (*llm.Reply, error)
}

// Options configures the Service.
type Options struct {
	DefaultLocation string
	PromptsDir      string
	LocalLimit      int
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		DefaultLocation: "北京",
		PromptsDir:      "prompts",
		LocalLimit:      5,
	}
}

// Reply is the answer returned to the user.
type Reply struct {
	Text string `json:"reply"`
	// Fallback is set when Text is the web-search notice rather than an LLM
	// answer.
	Fallback bool           `json:"-"`
	Moment   almanac.Moment `json:"-"`
}

// Service is the chat orchestration service.
type Service struct {
	local   LocalSearcher
	web     WebSearcher
	llm     Completer
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Registry
}

// New creates a Service. web may be nil to disable web search.
func New(local LocalSearcher, web WebSearcher, completer Completer, opts Options, logger *slog.Logger, reg *metrics.Registry) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultLocation == "" {
		opts.DefaultLocation = DefaultOptions().DefaultLocation
	}
	if opts.LocalLimit <= 0 {
		opts.LocalLimit = DefaultOptions().LocalLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		local:   local,
		web:     web,
		llm:     completer,
		opts:    opts,
		logger:  logger.With("component", "assistant"),
		metrics: reg,
	}
}

// Ask answers message. location overrides the default location; a city
// named in the message overrides both.
func (s *Service) Ask(ctx context.Context, message, location string) (*Reply, error) {
	if err := domain.ValidateChatMessage(message); err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	location = strings.TrimSpace(location)
	if location == "" {
		location = s.opts.DefaultLocation
	}
	if err := domain.ValidateLocation(location); err != nil {
		return nil, err
	}
	location = almanac.ExtractLocation(message, location)

	moment := almanac.At(s.opts.Now(), location)
	query := message
	if almanac.IsTimeSensitive(message) {
		query = moment.Query(message)
	}
	s.logger.Info("chat query start", "message_len", len([]rune(message)), "location", location,
		"solar_term", moment.SolarTerm, "query", query)

	local, web := fn.Both(
		func() string { return s.local.Search(query, s.opts.LocalLimit) },
		func() websearch.Result { return s.searchWeb(ctx, query) },
	)

	system := s.systemPrompt(message, moment, combinedContext(moment, local, web.Text))
	answer, err := s.llm.Complete(ctx, system, message)
	if err == nil {
		s.count("ok")
		return &Reply{Text: answer.Text, Moment: moment}, nil
	}

	if len(web.Hits) > 0 {
		s.logger.Warn("llm failed, replying with web results", "err", err, "hits", len(web.Hits))
		s.count("fallback")
		return &Reply{Text: FallbackReply(web.Text), Fallback: true, Moment: moment}, nil
	}
	s.logger.Error("llm failed, no fallback available", "err", err)
	s.count("error")
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func (s *Service) searchWeb(ctx context.Context, query string) websearch.Result {
	if s.web == nil {
		return websearch.Result{Text: websearch.DisabledText}
	}
	return s.web.Search(ctx, query)
}

func (s *Service) count(outcome string) {
	s.metrics.Counter("chat_requests_total", "Chat requests by outcome", "outcome", outcome).Inc()
}

// systemPrompt uses the food-therapy prompt when the message asks what to
// eat today and the prompt file exists. Read errors other than a missing
// file are logged and the default prompt is used.
func (s *Service) systemPrompt(message string, m almanac.Moment, combined string) string {
	if strings.Contains(message, FoodTherapyTrigger) && s.opts.PromptsDir != "" {
		p := filepath.Join(s.opts.PromptsDir, FoodTherapyFile)
		data, err := os.ReadFile(p)
		switch {
		case err == nil:
			return FoodTherapyPrompt(string(data), combined, m)
		case !errors.Is(err, fs.ErrNotExist):
			s.logger.Warn("read food therapy prompt", "path", p, "err", err)
		}
	}
	return SystemPrompt(combined, m)
}
