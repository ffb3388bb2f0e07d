package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raterudder/greenchoice/pkg/flow"
	"github.com/raterudder/greenchoice/pkg/greenchoice"
	"github.com/raterudder/greenchoice/pkg/log"
	"github.com/raterudder/greenchoice/pkg/storage"
	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"
)

const defaultFlowTTL = 15 * time.Minute

// Server hosts the setup wizard and the options editor over HTTP. It renders
// nothing itself, forms are returned as JSON for a frontend to render.
type Server struct {
	connect greenchoice.Connector
	storage storage.Database

	// wizards that have not finished yet, keyed by flow id; flows not touched
	// within the ttl are dropped which abandons them
	flows   *expiremap.ExpireMap[string, *flow.Wizard]
	flowTTL time.Duration
	newID   func() string

	listenAddr string
	httpServer *http.Server
	serverName string
}

// New returns a Server without registering any flags.
func New(connect greenchoice.Connector, s storage.Database, flowTTL time.Duration) *Server {
	srv := &Server{
		connect:    connect,
		storage:    s,
		newID:      uuid.NewString,
		serverName: "greenchoice-setup",
	}
	srv.setFlowTTL(flowTTL)
	return srv
}

func (s *Server) setFlowTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultFlowTTL
	}
	s.flowTTL = ttl
	s.flows = expiremap.NewEx[string, *flow.Wizard](ttl, ttl)
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(connect greenchoice.Connector, s storage.Database) *Server {
	srv := New(connect, s, defaultFlowTTL)
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	flowTTL := lflag.String("flow-ttl", defaultFlowTTL.String(), "How long an idle setup flow is kept before it is abandoned")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		ttl, err := time.ParseDuration(*flowTTL)
		if err != nil {
			panic(fmt.Sprintf("invalid flow-ttl %q: %v", *flowTTL, err))
		}
		srv.setFlowTTL(ttl)
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/flows", s.handleStartFlow)
	apiMux.HandleFunc("POST /api/flows/{flowID}", s.handleStepFlow)
	apiMux.HandleFunc("DELETE /api/flows/{flowID}", s.handleAbandonFlow)
	apiMux.HandleFunc("GET /api/entries", s.handleListEntries)
	apiMux.HandleFunc("GET /api/entries/{contractID}/options", s.handleGetOptions)
	apiMux.HandleFunc("POST /api/entries/{contractID}/options", s.handleUpdateOptions)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.noStoreMiddleware(apiMux))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr), slog.Duration("flowTTL", s.flowTTL))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
