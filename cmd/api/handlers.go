package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aiist007/24life/engine/assistant"
	"github.com/aiist007/24life/engine/domain"
	"github.com/aiist007/24life/engine/search"
	"github.com/aiist007/24life/pkg/mid"
	"github.com/aiist007/24life/pkg/resilience"
)

const maxChatBody = 64 << 10

// Chatter answers chat messages.
type Chatter interface {
	Ask(ctx context.Context, message, location string) (*assistant.Reply, error)
}

// Searcher is the local retrieval view used by the debug endpoint.
type Searcher interface {
	Rank(query string, limit int) []domain.Chunk
	Search(query string, limit int) string
}

// IndexStatus reports the last finished indexing run.
type IndexStatus interface {
	Last() *domain.IndexSummary
}

// Counter reports how many chunks are held.
type Counter interface {
	Len() int
}

type routes struct {
	chat      Chatter
	search    Searcher
	index     IndexStatus
	store     Counter
	metrics   http.Handler
	staticDir string
	chatLimit *resilience.Limiter
	logger    *slog.Logger
}

func newMux(rt routes) *http.ServeMux {
	if rt.logger == nil {
		rt.logger = slog.Default()
	}
	chat := http.Handler(handleChat(rt.chat, rt.logger))
	if rt.chatLimit != nil {
		chat = mid.RateLimit(rt.chatLimit)(chat)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", chat)
	mux.HandleFunc("GET /api/health", handleHealth(rt.index, rt.store))
	mux.HandleFunc("GET /api/search", handleSearch(rt.search))
	mux.HandleFunc("GET /api/", func(w http.ResponseWriter, _ *http.Request) {
		mid.WriteError(w, http.StatusNotFound, "Not found")
	})
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics)
	}
	if rt.staticDir != "" {
		mux.Handle("GET /", spaHandler(rt.staticDir))
	}
	return mux
}

// --- Handlers ---

// ChatRequest is the JSON body for POST /api/chat.
type ChatRequest struct {
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

func handleChat(chat Chatter, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
			mid.WriteError(w, http.StatusBadRequest, "Message is required")
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			mid.WriteError(w, http.StatusBadRequest, "Message is required")
			return
		}

		reply, err := chat.Ask(r.Context(), req.Message, req.Location)
		switch {
		case err == nil:
			mid.WriteJSON(w, http.StatusOK, ChatResponse{Reply: reply.Text})
		case errors.Is(err, domain.ErrEmptyMessage):
			mid.WriteError(w, http.StatusBadRequest, "Message is required")
		case errors.Is(err, domain.ErrMessageTooLong):
			mid.WriteError(w, http.StatusBadRequest, "Message is too long")
		case errors.Is(err, domain.ErrInvalidLocation):
			mid.WriteError(w, http.StatusBadRequest, "Invalid location")
		default:
			logger.Error("chat failed", "err", err, "request_id", mid.RequestIDFrom(r.Context()))
			mid.WriteError(w, http.StatusInternalServerError, "Failed to communicate with the assistant")
		}
	}
}

// HealthResponse is the JSON response for GET /api/health.
type HealthResponse struct {
	Status string               `json:"status"`
	Chunks int                  `json:"chunks"`
	Index  *domain.IndexSummary `json:"index,omitempty"`
}

func handleHealth(status IndexStatus, store Counter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if store != nil {
			resp.Chunks = store.Len()
		}
		if status != nil {
			if last := status.Last(); last != nil {
				s := *last
				s.Outcomes = nil
				resp.Index = &s
			}
		}
		mid.WriteJSON(w, http.StatusOK, resp)
	}
}

// SearchResponse is the JSON response for GET /api/search.
type SearchResponse struct {
	Query    string         `json:"query"`
	Keywords []string       `json:"keywords"`
	Hits     []domain.Chunk `json:"hits"`
	Context  string         `json:"context"`
}

func handleSearch(s Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			mid.WriteError(w, http.StatusBadRequest, "q is required")
			return
		}
		limit := search.DefaultLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				mid.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		hits := s.Rank(q, limit)
		if hits == nil {
			hits = []domain.Chunk{}
		}
		mid.WriteJSON(w, http.StatusOK, SearchResponse{
			Query:    q,
			Keywords: search.Keywords(q),
			Hits:     hits,
			Context:  s.Search(q, limit),
		})
	}
}

// spaHandler serves files under dir and falls back to index.html for
// client-side routes.
func spaHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	})
}
