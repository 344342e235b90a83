// Package web implements the browser chat and dashboard surface: a
// single HTTP listener serving the chat page, the Chat HTTP API (REST
// plus a Server-Sent Events stream), and the read-only Dashboard HTTP
// API used to observe channel health, active tasks, and the event
// journal.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nugget/message-agent-host/internal/channel"
	"github.com/nugget/message-agent-host/internal/channels/webchan"
	"github.com/nugget/message-agent-host/internal/historystore"
	"github.com/nugget/message-agent-host/internal/journal"
	"github.com/nugget/message-agent-host/internal/taskstore"
)

// Server owns the HTTP listener for the browser surface.
type Server struct {
	addr     string
	channels *channel.Manager
	webChan  *webchan.Channel
	history  *historystore.Store
	tasks    *taskstore.Store
	journal  *journal.Journal
	sse      *sseManager
	logger   *slog.Logger

	srv *http.Server
}

// NewSSEManager creates the SSE fan-out manager. Server and
// webchan.Channel are mutually dependent at construction time — the
// manager is built first, handed to webchan.New as its Broadcaster,
// then to Server via Config.SSE.
func NewSSEManager() *sseManager { return newSSEManager() }

// Config bundles the dependencies a Server is built from.
type Config struct {
	Port     int
	Channels *channel.Manager
	WebChan  *webchan.Channel
	History  *historystore.Store
	Tasks    *taskstore.Store
	Journal  *journal.Journal
	SSE      *sseManager
	Logger   *slog.Logger
}

// New creates a Server from cfg.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:     fmt.Sprintf(":%d", cfg.Port),
		channels: cfg.Channels,
		webChan:  cfg.WebChan,
		history:  cfg.History,
		tasks:    cfg.Tasks,
		journal:  cfg.Journal,
		sse:      cfg.SSE,
		logger:   logger.With("component", "web"),
	}
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("POST /api/chat", s.handleChatSend)
	mux.HandleFunc("GET /api/chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/conversations", s.handleConversations)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/journal", s.handleJournal)

	return mux
}

// Start begins serving in the background. Call Stop for graceful
// shutdown.
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:    s.addr,
		Handler: withCORS(s.mux()),
	}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("web server exited", "error", err)
		}
	}()
	s.logger.Info("web server listening", "addr", s.addr)
}

// Stop gracefully shuts the listener down, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// withCORS allows the browser chat page to be served from a different
// origin than the API (e.g. during local development) and short-
// circuits preflight OPTIONS requests with no route of their own.
func withCORS(next http.Handler) http.Handler {
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

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
