// Package server exposes produced artifacts, health and metrics over HTTP
// and refreshes them on an interval.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ozyab09/iptv/internal/config"
	"github.com/ozyab09/iptv/internal/jobs"
	"github.com/ozyab09/iptv/internal/log"
)

// Server serves the output directory and keeps it fresh.
type Server struct {
	cfg      config.Config
	fetcher  jobs.Fetcher
	uploader jobs.Uploader

	mu     sync.RWMutex
	status *jobs.Status
}

func New(cfg config.Config, f jobs.Fetcher, up jobs.Uploader) *Server {
	return &Server{cfg: cfg, fetcher: f, uploader: up}
}

// Router builds the HTTP surface: artifacts, status, health, metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.handleReady)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/playlist.m3u", s.serveFile(s.cfg.PlaylistKey, "application/x-mpegurl"))
	r.Get("/playlist-all.m3u", s.serveFile(s.cfg.AllPlaylistKey(), "application/x-mpegurl"))
	r.Get("/epg", s.serveFile(s.cfg.FilteredEPGFile(), "application/gzip"))

	return r
}

func (s *Server) serveFile(name, contentType string) http.HandlerFunc {
	path := filepath.Join(s.cfg.OutputDir, name)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		http.ServeFile(w, r, path)
	}
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	ready := s.status != nil && s.status.Error == ""
	s.mu.RUnlock()
	if !ready {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	if status == nil {
		_, _ = w.Write([]byte("{}"))
		return
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) refresh(ctx context.Context) {
	logger := log.WithComponentFromContext(ctx, "server")
	status, err := jobs.Refresh(ctx, s.cfg, s.fetcher, s.uploader)
	if err != nil {
		logger.Error().Err(err).Msg("refresh failed")
		status = &jobs.Status{LastRun: time.Now(), Error: err.Error()}
	}
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Run starts the HTTP listener and the refresh loop, and blocks until ctx is
// cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "server")

	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", s.cfg.Listen).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		s.refresh(gctx)
		ticker := time.NewTicker(s.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				s.refresh(gctx)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
