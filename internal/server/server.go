package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"chat-relay/internal/auth"
	"chat-relay/internal/identity"
	"chat-relay/internal/llm"
	"chat-relay/internal/storage"
	"chat-relay/internal/transcript"
)

// Server is the HTTP transport in front of the transcript store and
// the completion gateway. All chat/feedback failures are reported
// in-band as {"error": ...} with status 200, which is what the web
// client expects.
type Server struct {
	store    transcript.Store
	gateway  llm.Client
	recorder storage.Recorder
	resolver identity.Resolver
	allow    *auth.Service
	azure    *identity.AzureFlow

	defaults    llm.Params
	corsOrigins []string
	staticDir   string

	httpServer *http.Server
}

type Options struct {
	Addr        string
	Store       transcript.Store
	Gateway     llm.Client
	Recorder    storage.Recorder // optional
	Resolver    identity.Resolver
	Allow       *auth.Service       // optional
	Azure       *identity.AzureFlow // optional
	Defaults    llm.Params
	CORSOrigins []string
	StaticDir   string // optional
}

func New(opts Options) *Server {
	s := &Server{
		store:       opts.Store,
		gateway:     opts.Gateway,
		recorder:    opts.Recorder,
		resolver:    opts.Resolver,
		allow:       opts.Allow,
		azure:       opts.Azure,
		defaults:    opts.Defaults,
		corsOrigins: opts.CORSOrigins,
		staticDir:   opts.StaticDir,
	}
	s.httpServer = &http.Server{
		Addr:        opts.Addr,
		Handler:     s.routes(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/chat-stream", s.handleChatStream)
	mux.HandleFunc("/api/feedback", s.handleFeedback)

	if s.azure != nil {
		mux.HandleFunc("/auth/login", s.azure.HandleLogin)
		mux.HandleFunc("/auth/callback", s.azure.HandleCallback)
	}

	if s.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}

	return withRequestID(accessLog(s.withCORS(mux)))
}

// Handler exposes the full middleware chain for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
