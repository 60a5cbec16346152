// Package httpapi is the HTTP front end: the route table replicated under
// four version prefixes, bearer-token auth, SSE translation for streaming
// inference and pull progress, and the error-kind-to-status mapping that is
// this layer's exclusive responsibility (§4.G, §7).
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lemonade-sdk/lemonade-gateway/internal/catalog"
	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/metrics"
	"github.com/lemonade-sdk/lemonade-gateway/internal/router"
	"github.com/lemonade-sdk/lemonade-gateway/internal/system"
)

// apiPrefixes is the set of path prefixes every route is exposed under
// simultaneously, per §4.G.
var apiPrefixes = []string{"/api/v0", "/api/v1", "/v0", "/v1"}

// Config configures a Server.
type Config struct {
	APIKey         string // LEMONADE_API_KEY; empty disables auth
	GatewayVersion string
	LogPath        string // tailed by GET logs/stream; "" disables the route
	ShutdownFunc   func(ctx context.Context) error
}

// Server is the HTTP front end wrapping a Router and a Catalog.
type Server struct {
	log     logging.Logger
	router  *router.Router
	catalog *catalog.Catalog
	report  *system.Report
	metrics *metrics.Metrics
	cfg     Config
	start   time.Time

	mu      sync.RWMutex
	handler http.Handler
}

// New builds a Server with its route table already assembled.
func New(log logging.Logger, rt *router.Router, cat *catalog.Catalog, report *system.Report, cfg Config) *Server {
	s := &Server{
		log:     log.WithField("component", "httpapi"),
		router:  rt,
		catalog: cat,
		report:  report,
		metrics: metrics.New(),
		cfg:     cfg,
		start:   time.Now(),
	}
	s.rebuild()
	return s
}

func (s *Server) rebuild() {
	mux := http.NewServeMux()
	for _, prefix := range apiPrefixes {
		s.registerRoutes(mux, prefix)
	}
	mux.HandleFunc("POST /internal/shutdown", s.handleShutdown)
	mux.Handle("GET /metrics", s.metrics.Handler())

	s.mu.Lock()
	s.handler = requestIDMiddleware(s.authMiddleware(mux))
	s.mu.Unlock()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	h.ServeHTTP(w, r)
}

func (s *Server) registerRoutes(mux *http.ServeMux, prefix string) {
	get := func(path string, fn http.HandlerFunc) { mux.HandleFunc("GET "+prefix+"/"+path, fn) }
	post := func(path string, fn http.HandlerFunc) { mux.HandleFunc("POST "+prefix+"/"+path, fn) }

	get("health", s.handleHealth)
	get("live", s.handleLive)
	get("models", s.handleListModels)
	get("models/{id...}", s.handleGetModel)
	get("stats", s.handleStats)
	get("system-info", s.handleSystemInfo)
	get("system-stats", s.handleSystemStats)
	get("logs/stream", s.handleLogsStream)

	post("chat/completions", s.handleInference("chat"))
	post("completions", s.handleInference("completion"))
	post("embeddings", s.handleInference("embeddings"))
	post("reranking", s.handleInference("reranking"))
	post("responses", s.handleInference("responses"))
	post("audio/transcriptions", s.handleInference("audio_transcribe"))
	post("audio/speech", s.handleInference("audio_speech"))
	post("images/generations", s.handleInference("image_generate"))

	post("pull", s.handlePull)
	post("load", s.handleLoad)
	post("unload", s.handleUnload)
	post("delete", s.handleDelete)
	post("params", s.handleParams)
	post("log-level", s.handleLogLevel)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestIDMiddleware stamps every request with a uuid, returned in the
// X-Request-Id response header and stored in the request context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type requestIDKey struct{}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
