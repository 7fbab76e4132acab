package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"siteRelay/internal/lookup"
	"siteRelay/internal/metrics"
	"siteRelay/internal/storage"
)

// NodeStatus reports the node link's connectivity. The subscriber
// implements it.
type NodeStatus interface {
	Connected() bool
}

// Config holds the HTTP surface settings.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// Server carries the relay's HTTP surface: the lookup endpoint, the
// health report, and Prometheus metrics.
type Server struct {
	lookups *lookup.Service
	store   storage.EventStore
	node    NodeStatus
	logger  *zap.Logger

	// lifetime context for lookup loops: a caller disconnect does not
	// cancel an in-flight poll.
	baseCtx context.Context

	origins  map[string]struct{}
	allowAll bool

	httpServer *http.Server
}

// NewServer wires the handlers. baseCtx bounds detached lookup loops;
// it should be the process lifetime context.
func NewServer(baseCtx context.Context, cfg Config, lookups *lookup.Service, store storage.EventStore, node NodeStatus, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	s := &Server{
		lookups: lookups,
		store:   store,
		node:    node,
		logger:  logger,
		baseCtx: baseCtx,
		origins: make(map[string]struct{}),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			s.allowAll = true
			continue
		}
		s.origins[origin] = struct{}{}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/get-website", s.handleGetWebsite)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.withCORS(mux),
	}

	return s
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve runs the HTTP server on an already-bound listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if s.allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := s.origins[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type websiteRequest struct {
	TransactionHash string `json:"transactionHash"`
}

type websiteResponse struct {
	URL         string `json:"url"`
	ProcessTime int64  `json:"processTime"`
	Timestamp   string `json:"timestamp"`
}

type notFoundResponse struct {
	Error       string `json:"error"`
	Attempts    int    `json:"attempts"`
	ProcessTime int64  `json:"processTime"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGetWebsite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req websiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	// Polling runs on the server's lifetime context: a dropped caller
	// never interrupts an in-flight loop.
	result, err := s.lookups.Await(s.baseCtx, req.TransactionHash)
	if err != nil {
		var notFound *lookup.NotFoundError
		if errors.As(err, &notFound) {
			metrics.LookupsTotal.WithLabelValues("not_found").Inc()
			metrics.LookupAttempts.Observe(float64(notFound.Attempts))
			writeJSON(w, http.StatusNotFound, notFoundResponse{
				Error:       "no website found for transaction",
				Attempts:    notFound.Attempts,
				ProcessTime: notFound.Elapsed.Milliseconds(),
			})
			return
		}
		metrics.LookupsTotal.WithLabelValues("error").Inc()
		s.logger.Error("lookup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error while looking up transaction"})
		return
	}

	metrics.LookupsTotal.WithLabelValues("found").Inc()
	metrics.LookupAttempts.Observe(float64(result.Attempts))
	writeJSON(w, http.StatusOK, websiteResponse{
		URL:         result.URL,
		ProcessTime: result.Elapsed.Milliseconds(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

type healthResponse struct {
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	DBStatus   string `json:"dbStatus"`
	Web3Status string `json:"web3Status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		DBStatus:   statusWord(s.store != nil && s.store.Connected(r.Context())),
		Web3Status: statusWord(s.node != nil && s.node.Connected()),
	})
}

func statusWord(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
