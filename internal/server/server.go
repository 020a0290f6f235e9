// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the search, queue and download operations as a
// JSON API, plus the progress WebSocket and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-retriever/internal/logging"
	"github.com/pdiddy/pubmed-retriever/internal/metrics"
	"github.com/pdiddy/pubmed-retriever/internal/progress"
	"github.com/pdiddy/pubmed-retriever/internal/pubmed"
	"github.com/pdiddy/pubmed-retriever/internal/store"
	"github.com/pdiddy/pubmed-retriever/internal/worker"
	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// Searcher runs PubMed queries. *pubmed.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, p pubmed.SearchParams) ([]types.Article, error)
}

// Authenticator logs sessions in to the proxy. *credential.Manager
// satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, sessionID, username, password string) error
	IsAuthenticated(sessionID string) bool
}

// BrowserSessions stores captured browser cookies. *browsersession.Store
// satisfies it.
type BrowserSessions interface {
	Store(sessionID string, cookies []string, userAgent string) (types.BrowserSession, error)
	GetAllValid() []types.BrowserSession
}

// Dispatcher runs download jobs. *worker.Dispatcher satisfies it.
type Dispatcher interface {
	Enqueue(sessionID string, items []types.QueueItem) (string, error)
	Status(ticket string) (worker.Status, bool)
}

// Deps are the collaborators of a Server. Metrics and Fs are optional.
type Deps struct {
	Records     store.Store
	Searcher    Searcher
	Auth        Authenticator
	Browser     BrowserSessions
	Jobs        Dispatcher
	Hub         *progress.Hub
	Metrics     *metrics.Metrics
	Fs          afero.Fs
	DownloadDir string
	Log         *zap.Logger
}

// Server routes API requests.
type Server struct {
	d      Deps
	log    *zap.Logger
	router *mux.Router

	// Now and NewSessionID are replaced in tests.
	Now          func() time.Time
	NewSessionID func() string
}

// New builds the router.
func New(d Deps) *Server {
	if d.Fs == nil {
		d.Fs = afero.NewOsFs()
	}
	s := &Server{
		d:            d,
		log:          logging.OrNop(d.Log),
		Now:          time.Now,
		NewSessionID: uuid.NewString,
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(s.instrument)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/authenticate", s.handleAuthenticate).Methods(http.MethodPost)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	api.HandleFunc("/search-results", s.handleSearchResults).Methods(http.MethodGet)
	api.HandleFunc("/add-manual-pmids", s.handleAddManual).Methods(http.MethodPost)
	api.HandleFunc("/add-to-queue", s.handleAddToQueue).Methods(http.MethodPost)
	api.HandleFunc("/download-queue", s.handleQueue).Methods(http.MethodGet)
	api.HandleFunc("/download-queue", s.handleClearQueue).Methods(http.MethodDelete)
	api.HandleFunc("/download-queue/{id}", s.handleRemoveQueueItem).Methods(http.MethodDelete)
	api.HandleFunc("/download", s.handleDownload).Methods(http.MethodPost)
	api.HandleFunc("/download/{ticket}", s.handleJobStatus).Methods(http.MethodGet)
	api.HandleFunc("/download-folder", s.handleDownloadFolder).Methods(http.MethodGet)
	api.HandleFunc("/session/{sessionId}", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/save-browser-session", s.handleSaveBrowserSession).Methods(http.MethodPost)
	api.HandleFunc("/browser-session-status", s.handleBrowserSessionStatus).Methods(http.MethodGet)

	if s.d.Hub != nil {
		r.Handle("/ws", progress.NewGateway(s.d.Hub, s.log)).Methods(http.MethodGet)
	}
	if s.d.Metrics != nil {
		r.Handle("/metrics", s.d.Metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	s.router = r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
		// No WriteTimeout: progress sockets stay open for a whole batch.
	}

	s.log.Info("server starting", zap.String("addr", addr))
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("server stopped")
	return nil
}
