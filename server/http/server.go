package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/w-h-a/vulnkb/rag"
	"github.com/w-h-a/vulnkb/store"
	"github.com/w-h-a/vulnkb/vectorindex"
)

// Server exposes the knowledge base over HTTP: the query pipeline plus plain
// CRUD and statistics for the vulnerability store.
type Server struct {
	options Options
	engine  *rag.Engine
	store   store.Store
	index   vectorindex.Index
	srv     *http.Server
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)

	api := router.PathPrefix(s.options.Prefix).Subrouter()
	api.Use(logMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)

	api.HandleFunc("/vulnerabilities", s.handleListVulnerabilities).Methods(http.MethodGet)
	api.HandleFunc("/vulnerabilities", s.handleCreateVulnerability).Methods(http.MethodPost)
	api.HandleFunc("/vulnerabilities/packages", s.handlePackages).Methods(http.MethodGet)
	api.HandleFunc("/vulnerabilities/severities", s.handleSeverities).Methods(http.MethodGet)
	api.HandleFunc("/vulnerabilities/statistics", s.handleStatistics).Methods(http.MethodGet)
	api.HandleFunc("/vulnerabilities/{id}", s.handleGetVulnerability).Methods(http.MethodGet)
	api.HandleFunc("/vulnerabilities/{id}", s.handleUpdateVulnerability).Methods(http.MethodPut)
	api.HandleFunc("/vulnerabilities/{id}", s.handleDeleteVulnerability).Methods(http.MethodDelete)

	return handlers.CORS(
		handlers.AllowedOrigins(s.options.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)(router)
}

func (s *Server) Run() error {
	s.srv = &http.Server{
		Addr:         s.options.Address,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	slog.Info("http server listening", "address", s.options.Address)

	return s.srv.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.InfoContext(r.Context(), "handled request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func NewServer(engine *rag.Engine, s store.Store, index vectorindex.Index, opts ...Option) *Server {
	options := NewOptions(opts...)

	return &Server{
		options: options,
		engine:  engine,
		store:   s,
		index:   index,
	}
}
