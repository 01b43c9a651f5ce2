// Package web serves the collector endpoint, the monit listing and the
// munin bridge.
package web

import (
	"context"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/user/monitoring/internal/collector"
	"github.com/user/monitoring/internal/munin"
	"github.com/user/monitoring/internal/storage"
	"github.com/user/monitoring/internal/util"
)

// Server is the web server.
type Server struct {
	db      *storage.DB
	config  *util.Config
	ingest  collector.ReportIngestor
	stats   *munin.Cache
	grapher *munin.Grapher
	tpl     *template.Template
	log     *util.Logger
	srv     *http.Server
}

// NewServer creates a new web server.
func NewServer(db *storage.DB, cfg *util.Config, ingest collector.ReportIngestor, stats *munin.Cache, grapher *munin.Grapher, log *util.Logger) *Server {
	if log == nil {
		log = util.GetLogger()
	}
	s := &Server{
		db:      db,
		config:  cfg,
		ingest:  ingest,
		stats:   stats,
		grapher: grapher,
		tpl:     GetTemplates(),
		log:     log.Named("web"),
	}
	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Router returns the HTTP handler with every route registered.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	h := NewHandlers(s)

	r.HandleFunc("/collector", h.Collect).Methods(http.MethodPost)
	r.HandleFunc("/collector/{rest:.*}", h.Collect).Methods(http.MethodPost)

	r.HandleFunc("/monit", h.MonitPage).Methods(http.MethodGet)
	r.HandleFunc("/api/monit", h.APIGetMonits).Methods(http.MethodGet)
	r.HandleFunc("/api/events", h.APIGetEvents).Methods(http.MethodGet)

	r.HandleFunc("/munin", h.MuninPage).Methods(http.MethodGet)
	r.HandleFunc("/munin/objects/{domain}", h.MuninHosts).Methods(http.MethodGet)
	r.HandleFunc("/munin/objects/{domain}/{host}", h.MuninCategories).Methods(http.MethodGet)
	r.HandleFunc("/munin/objects/{domain}/{host}/{category}", h.MuninDetails).Methods(http.MethodGet)
	r.HandleFunc("/munin/values/{domain}/{host}/{categories}", h.MuninValues).Methods(http.MethodGet)
	r.HandleFunc(munin.ImageURLPrefix+"{name}", h.MuninImage).Methods(http.MethodGet)

	r.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet)

	return logMiddleware(r, s.log)
}

// Start starts the web server and blocks until it is shut down.
func (s *Server) Start() error {
	s.log.Info("Web server listening on %s", s.config.ListenAddr)

	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}

	return nil
}

// ListenAndServe runs the server until SIGINT or SIGTERM.
func (s *Server) ListenAndServe() error {
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		if err := s.Stop(); err != nil {
			s.log.Warn("Shutdown failed: %v", err)
		}
	}()
	return s.Start()
}

// Stop stops the web server. A server stopped before Start never listens.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.srv.Shutdown(ctx)
}
