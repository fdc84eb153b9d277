package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"portfolioTracker/internal/app"
	"portfolioTracker/internal/ports"
)

// Server exposes the engine's read models over HTTP. It is a thin shell:
// every endpoint delegates to the service and serializes the result.
type Server struct {
	svc       *app.Service
	tradeRepo ports.TradeRepository
	token     string
	logger    ports.Logger
}

// Config holds configuration for the HTTP server.
type Config struct {
	Service   *app.Service
	TradeRepo ports.TradeRepository
	APIToken  string
	Logger    ports.Logger
}

// New creates the HTTP server.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil || cfg.TradeRepo == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for HTTP server")
	}
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("%w: API token is required", ports.ErrConfigurationError)
	}
	return &Server{
		svc:       cfg.Service,
		tradeRepo: cfg.TradeRepo,
		token:     cfg.APIToken,
		logger:    cfg.Logger,
	}, nil
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/trades", s.handleTrades)
		r.Get("/positions", s.handlePositions)
		r.Get("/allocations", s.handleAllocations)
		r.Get("/performance/{duration}", s.handlePerformance)
	})

	return r
}

// requireToken verifies the static bearer token on every protected route.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.token {
			s.respondError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.tradeRepo.AllTrades(r.Context())
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, trades)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	enriched, err := s.svc.EnrichedPositions(r.Context())
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, enriched)
}

func (s *Server) handleAllocations(w http.ResponseWriter, r *http.Request) {
	allocations, err := s.svc.Allocations(r.Context())
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, allocations)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	duration := chi.URLParam(r, "duration")

	var assets []string
	if raw := r.URL.Query().Get("assets"); raw != "" {
		assets = strings.Split(raw, ",")
	}

	performance, err := s.svc.Performance(r.Context(), duration, assets)
	if err != nil {
		if errors.Is(err, ports.ErrInvalidRequest) {
			s.respondError(w, r, http.StatusBadRequest,
				fmt.Sprintf("invalid duration, must be one of: %s", strings.Join(app.ValidDurations, ",")))
			return
		}
		s.respondFailure(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, performance)
}

// respondFailure maps service errors to status codes.
func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error(r.Context(), err, "Request failed", map[string]interface{}{
		"method": r.Method, "path": r.URL.Path})
	switch {
	case errors.Is(err, ports.ErrInvalidRequest):
		s.respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ports.ErrNoTrades), errors.Is(err, ports.ErrNoPrices), errors.Is(err, ports.ErrNoCachedPrices):
		s.respondError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		s.respondError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	s.respondJSON(w, r, status, map[string]string{"detail": detail})
}

func (s *Server) respondJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error(context.WithoutCancel(r.Context()), err, "Failed to encode response")
	}
}
