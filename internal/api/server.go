// Package api is the HTTP face of the seed service: seed requests, claim
// settlement, player ledgers and the published rules.
package api

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/MJE43/raid-extract/internal/catalog"
	"github.com/MJE43/raid-extract/internal/fairness"
	"github.com/MJE43/raid-extract/internal/store"
)

const (
	defaultRequestTimeout = 15 * time.Second
	maxBodyBytes          = 64 << 10
)

// Server handles HTTP requests
type Server struct {
	db             store.DB
	seeds          *fairness.Service
	catalog        *catalog.Catalog
	tokens         *Tokens
	validate       *validator.Validate
	errorHandler   *ErrorHandler
	logger         *zap.Logger
	allowedOrigins []string
	requestTimeout time.Duration
	startTime      time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS allow list.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithRequestTimeout bounds each request's context.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// NewServer creates a new API server
func NewServer(db store.DB, cat *catalog.Catalog, tokens *Tokens, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")

	s := &Server{
		db:             db,
		seeds:          fairness.NewService(db, logger),
		catalog:        cat,
		tokens:         tokens,
		validate:       newValidator(),
		errorHandler:   NewErrorHandler(logger),
		logger:         logger,
		allowedOrigins: []string{"*"},
		requestTimeout: defaultRequestTimeout,
		startTime:      time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLogger)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/rules", s.handleRules)
		r.Post("/raids/validate", s.handleValidate)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(s.tokens, s.errorHandler))
			r.Post("/seeds", s.handleRequestSeed)
			r.Post("/raids/{seedID}/result", s.handleSubmitResult)
			r.Get("/profile", s.handleProfile)
			r.Get("/history", s.handleHistory)
		})

		r.Get("/feed", s.handleFeed)
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}
