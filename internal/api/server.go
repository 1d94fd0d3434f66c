// Package api exposes the editor, exporter, project store and game sessions
// over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"

	"github.com/MJE43/idleforge/internal/config"
	"github.com/MJE43/idleforge/internal/editor"
	"github.com/MJE43/idleforge/internal/export"
	"github.com/MJE43/idleforge/internal/runtime"
	"github.com/MJE43/idleforge/internal/store"
)

// maxBodyBytes bounds request bodies; blueprints are the largest payload.
const maxBodyBytes = 4 << 20

// Options configures a Server. Zero values select defaults; a nil DB
// disables the project endpoints.
type Options struct {
	DB          store.DB
	Editor      *editor.Store
	Exporter    *export.Exporter
	Sessions    *runtime.Manager
	Token       string
	CORSOrigins []string
	Timeout     time.Duration
	Autosave    time.Duration
	Logger      *log.Logger
	AuditOutput io.Writer
}

// Server handles HTTP requests
type Server struct {
	db           store.DB
	editor       *editor.Store
	exporter     *export.Exporter
	sessions     *runtime.Manager
	hub          *Hub
	errorHandler *ErrorHandler
	logger       *log.Logger
	runtimeLog   *log.Logger
	audit        *AuditLogger
	token        string
	corsOrigins  []string
	timeout      time.Duration
	autosave     time.Duration
	startTime    time.Time

	mu       sync.Mutex
	projects map[string]string // session id -> project id
}

// NewServer creates a new API server
func NewServer(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile)
	}
	auditOut := opts.AuditOutput
	if auditOut == nil {
		auditOut = os.Stdout
	}
	audit := NewAuditLogger(auditOut)

	s := &Server{
		db:           opts.DB,
		editor:       opts.Editor,
		exporter:     opts.Exporter,
		sessions:     opts.Sessions,
		errorHandler: NewErrorHandler(logger, audit),
		logger:       logger,
		runtimeLog:   log.New(logger.Writer(), "[RUNTIME] ", log.LstdFlags),
		audit:        audit,
		token:        opts.Token,
		corsOrigins:  opts.CORSOrigins,
		timeout:      opts.Timeout,
		autosave:     opts.Autosave,
		startTime:    time.Now(),
		projects:     make(map[string]string),
	}
	if s.editor == nil {
		s.editor = editor.NewStore(log.New(logger.Writer(), "[EDITOR] ", log.LstdFlags))
	}
	if s.exporter == nil {
		exp, err := export.New(log.New(logger.Writer(), "[EXPORT] ", log.LstdFlags))
		if err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
		s.exporter = exp
	}
	if s.sessions == nil {
		s.sessions = runtime.NewManager()
	}
	if s.corsOrigins == nil {
		s.corsOrigins = []string{"*"}
	}
	if s.timeout <= 0 {
		s.timeout = 60 * time.Second
	}
	s.hub = NewHub(logger, s.snapshotOf)

	audit.LogSystemStartup(map[string]interface{}{
		"database_enabled": s.db != nil,
		"auth_enabled":     s.token != "",
		"cors_origins":     s.corsOrigins,
		"autosave":         s.autosave.String(),
	})

	return s, nil
}

// NewFromConfig builds a server from loaded configuration. A configured
// Redis address backs the export cache.
func NewFromConfig(cfg *config.Config, db store.DB) (*Server, error) {
	token := cfg.Token
	if cfg.AuthDisabled {
		token = ""
	}
	opts := Options{
		DB:          db,
		Token:       token,
		CORSOrigins: cfg.CORSOrigins,
		Timeout:     cfg.RequestTimeout(),
		Autosave:    cfg.Autosave(),
	}
	if cfg.RedisAddr != "" {
		logger := log.New(os.Stdout, "[EXPORT] ", log.LstdFlags)
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		exp, err := export.New(logger, export.WithCache(export.NewRedisCache(client, export.CacheTTL, logger)))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("api: %w", err)
		}
		opts.Exporter = exp
	}
	return NewServer(opts)
}

// Close stops every session and disconnects stream clients.
func (s *Server) Close() {
	s.sessions.StopAll()
	s.hub.Close()
	if err := s.exporter.Close(); err != nil {
		s.logger.Printf("exporter_close_failed error=%v", err)
	}
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(s.CORSMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.errorHandler.HandleNotFound(w, r, "route")
	})

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.BearerAuthMiddleware)

		// Streams outlive the request timeout.
		r.Get("/sessions/{id}/stream", s.handleSessionStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.timeout))

			r.Route("/blueprint", func(r chi.Router) {
				r.Get("/", s.handleGetBlueprint)
				r.Put("/", s.handlePutBlueprint)
				r.Delete("/", s.handleResetBlueprint)
				r.Get("/schema", s.handleBlueprintSchema)
				r.Put("/title", s.handleSetTitle)
				r.Put("/settings", s.handleSetSettings)
			})

			r.Get("/resources/names", s.handleResourceNames)
			r.Post("/resources", s.handleAddResource)
			r.Put("/resources/{id}", s.handleUpdateResource)
			r.Delete("/resources/{id}", s.handleRemoveResource)

			r.Post("/generators", s.handleAddGenerator)
			r.Put("/generators/{id}", s.handleUpdateGenerator)
			r.Delete("/generators/{id}", s.handleRemoveGenerator)

			r.Post("/upgrades", s.handleAddUpgrade)
			r.Put("/upgrades/{id}", s.handleUpdateUpgrade)
			r.Delete("/upgrades/{id}", s.handleRemoveUpgrade)

			r.Post("/tiers", s.handleAddTier)
			r.Put("/tiers/{id}", s.handleUpdateTier)
			r.Delete("/tiers/{id}", s.handleRemoveTier)
			r.Post("/tiers/{id}/items", s.handleAddTierItem)
			r.Delete("/tiers/{id}/items/{kind}/{item}", s.handleRemoveTierItem)

			r.Post("/automations", s.handleAddAutomation)
			r.Put("/automations/{id}", s.handleUpdateAutomation)
			r.Delete("/automations/{id}", s.handleRemoveAutomation)

			r.Get("/formula/registry", s.handleFormulaRegistry)
			r.Post("/formula/evaluate", s.handleEvaluateFormula)
			r.Post("/formula/check", s.handleCheckFormula)

			r.Get("/export", s.handleExport)

			r.Route("/projects", func(r chi.Router) {
				r.Use(s.requireDB)
				r.Post("/", s.handleSaveProject)
				r.Get("/", s.handleListProjects)
				r.Get("/{id}", s.handleGetProject)
				r.Put("/{id}", s.handleUpdateProject)
				r.Post("/{id}/load", s.handleLoadProject)
				r.Delete("/{id}", s.handleDeleteProject)
			})

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", s.handleCreateSession)
				r.Get("/", s.handleListSessions)
				r.Get("/{id}", s.handleGetSession)
				r.Delete("/{id}", s.handleDeleteSession)
				r.Post("/{id}/stop", s.handleStopSession)
				r.Post("/{id}/advance", s.handleAdvanceSession)
				r.Post("/{id}/generators/{item}/purchase", s.handlePurchaseGenerator)
				r.Post("/{id}/upgrades/{item}/purchase", s.handlePurchaseUpgrade)
				r.Post("/{id}/tiers/{item}/prestige", s.handlePrestige)
			})
		})
	})

	return r
}

func (s *Server) requireDB(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.db == nil {
			apiErr := NewError(ErrTypeServiceUnavailable, "Project storage is not configured").
				WithRequestID(middleware.GetReqID(r.Context())).
				Build()
			s.errorHandler.writeErrorResponse(w, http.StatusServiceUnavailable, apiErr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeJSON reads a bounded JSON body into dst, writing the error response
// itself on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", config.Version)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed status=%d error=%v", status, err)
	}
}

// auditMutation records the outcome of a state-changing request.
func (s *Server) auditMutation(r *http.Request, action, resource string, err error) {
	outcome := "success"
	details := map[string]interface{}{"path": r.URL.Path}
	if err != nil {
		outcome = "rejected"
		details["error"] = err.Error()
	}
	s.audit.LogAuditEvent(middleware.GetReqID(r.Context()), action, resource, outcome, details)
}
