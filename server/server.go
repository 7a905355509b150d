// Package server is the HTTP backend the chat frontend talks to. It
// relays chat messages to the agent and exposes the scrape tool directly
// for callers that don't need a model in the loop.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// maxRequestBytes caps inbound request bodies.
const maxRequestBytes = 1 << 20

// shutdownTimeout bounds graceful shutdown once the context is canceled.
const shutdownTimeout = 5 * time.Second

// Chatter relays a message to the model and returns the final answer.
type Chatter interface {
	Provider() string
	Model() string
	Ask(ctx context.Context, content string) (string, error)
}

// ScrapeHandler runs one scrape invocation payload.
type ScrapeHandler interface {
	Handle(ctx context.Context, payload []byte) []byte
}

// New creates the HTTP server. The chatter may be nil when no provider is
// configured; chat requests then fail with a setup hint while scraping
// keeps working.
func New(log *slog.Logger, chatter Chatter, scraper ScrapeHandler) *Server {
	return &Server{
		log:     log,
		chatter: chatter,
		scraper: scraper,
	}
}

// Server handles the chat frontend's API.
type Server struct {
	log     *slog.Logger
	chatter Chatter
	scraper ScrapeHandler
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	r.Post("/api/chat", s.chat)
	r.Post("/api/scrape", s.scrape)
	r.Get("/api/health", s.health)
	r.Get("/api/config", s.config)
	return r
}

// Run serves on addr until the context is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.log.Info("server: listening", "addr", addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: serving: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type chatMetadata struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type chatResponse struct {
	Response  string       `json:"response"`
	SessionID string       `json:"sessionId"`
	Metadata  chatMetadata `json:"metadata"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil || req.Message == "" {
		s.respondError(w, http.StatusBadRequest, "Message is required")
		return
	}

	if s.chatter == nil {
		s.respondError(w, http.StatusInternalServerError, "Agent not configured. Please set ANTHROPIC_API_KEY or OPENAI_API_KEY.")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "session-" + uuid.NewString()
	}
	s.log.Info("server: chat", "session_id", sessionID)

	answer, err := s.chatter.Ask(r.Context(), req.Message)
	if err != nil {
		s.log.Error("server: chat failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to process request: %s", err))
		return
	}

	s.respond(w, http.StatusOK, &chatResponse{
		Response:  answer,
		SessionID: sessionID,
		Metadata: chatMetadata{
			Provider: s.chatter.Provider(),
			Model:    s.chatter.Model(),
		},
	})
}

// scrape invokes the tool directly. Typed scrape failures are still HTTP
// 200; the payload carries the error vocabulary.
func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(s.scraper.Handle(r.Context(), payload))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	provider := ""
	if s.chatter != nil {
		provider = s.chatter.Provider()
	}
	s.respond(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"agent_configured": s.chatter != nil,
		"provider":         provider,
	})
}

func (s *Server) config(w http.ResponseWriter, r *http.Request) {
	provider, model := "", ""
	if s.chatter != nil {
		provider = s.chatter.Provider()
		model = s.chatter.Model()
	}
	s.respond(w, http.StatusOK, map[string]any{
		"provider":   provider,
		"model":      model,
		"configured": s.chatter != nil,
	})
}

// cors allows the frontend dev server to call from another origin.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("server: encoding response", "err", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, map[string]string{"error": message})
}
