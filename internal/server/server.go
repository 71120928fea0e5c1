// Package server provides the HTTP API for ajimi.
package server

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/ajimi/internal/config"
	"github.com/hyperjump/ajimi/internal/recipe"
	"github.com/hyperjump/ajimi/internal/recommender"
	"github.com/hyperjump/ajimi/internal/session"
	"go.uber.org/zap"
)

// maxUploadBytes bounds a multipart image upload.
const maxUploadBytes = 16 << 20

// Recommender is what the server needs from the prediction pipeline.
type Recommender interface {
	Predict(ctx context.Context, query []float32, fb session.Feedback) (*recommender.Prediction, error)
	PredictImage(ctx context.Context, img image.Image, fb session.Feedback) (*recommender.Prediction, error)
	SimilarDishes(label string, k int) []string
	GroupMembers(label string, k int) []string
	GroupName(label string) string
	Recipe(ctx context.Context, label string) (*recipe.Recipe, error)
	Status() recommender.Status
}

// DishSearcher finds dishes by free text.
type DishSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]recipe.SearchHit, error)
	Correct(query string) (string, bool, error)
}

// Server is the HTTP server for the ajimi API.
type Server struct {
	rec      Recommender
	sessions *session.Manager
	dishes   DishSearcher
	config   *config.Config
	logger   *zap.Logger

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a server. sessions and dishes may be nil, which disables their routes.
func NewServer(rec Recommender, sessions *session.Manager, dishes DishSearcher, cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		rec:      rec,
		sessions: sessions,
		dishes:   dishes,
		config:   cfg,
		logger:   logger,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/predict", s.handlePredict)
		r.Get("/status", s.handleStatus)

		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Post("/sessions/{id}/feedback", s.handleFeedback)

		r.Get("/dishes/search", s.handleSearchDishes)
		r.Get("/dishes/{label}/related", s.handleRelated)
		r.Get("/dishes/{label}/recipe", s.handleRecipe)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()
	s.logger.Info("Starting server", zap.String("addr", addr))
	return srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}
