// Package httpapi is the thin, read-only net/http adapter over C10: no
// auth, no rate limiting, no write endpoints. Built on gorilla/mux with
// a local-bind-by-default server lifecycle and a small middleware chain.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pulseintel/solpulse/internal/errs"
	"github.com/pulseintel/solpulse/internal/fanout"
	"github.com/pulseintel/solpulse/internal/readapi"
	"github.com/pulseintel/solpulse/internal/types"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// ServerConfig is sourced from config.Config.HTTPAddr rather than its
// own env var.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func DefaultServerConfig(addr string) ServerConfig {
	return ServerConfig{
		Addr:         addr,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the read-only HTTP surface over internal/readapi, plus the
// fan-out websocket endpoint over internal/fanout.
type Server struct {
	router *mux.Router
	server *http.Server
	svc    *readapi.Service
	hub    *fanout.Hub
	config ServerConfig
	log    zerolog.Logger
}

// New binds addr up front so a busy port fails fast at construction.
func New(cfg ServerConfig, svc *readapi.Service, hub *fanout.Hub, log zerolog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("httpapi: %s is busy or unavailable: %w", cfg.Addr, err)
	}
	listener.Close()

	s := &Server{
		router: mux.NewRouter(),
		svc:    svc,
		hub:    hub,
		config: cfg,
		log:    log.With().Str("component", "httpapi").Logger(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.jsonContentTypeMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/tokens", s.handleTokenList).Methods(http.MethodGet)
	s.router.HandleFunc("/tokens/{address}", s.handleToken).Methods(http.MethodGet)
	s.router.HandleFunc("/tokens/{address}/ohlcv", s.handleOHLCV).Methods(http.MethodGet)
	s.router.HandleFunc("/tokens/{address}/trades", s.handleTrades).Methods(http.MethodGet)
	s.router.HandleFunc("/tokens/{address}/holders", s.handleHolders).Methods(http.MethodGet)
	s.router.HandleFunc("/tokens/{address}/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/supply/{coinID}", s.handleSupply).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.config.Addr).Msg("http server starting (local-only, read-only)")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Info().
			Str("request_id", requestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return "unknown"
}

// --- response envelope ---

// ErrorResponse is the JSON envelope every non-2xx response uses.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// PaginationInfo is the pagination block embedded in list responses.
type PaginationInfo struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalCount int  `json:"total_count"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForErr(err)
	s.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Code:      code,
		Message:   err.Error(),
		RequestID: requestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// statusForErr maps an errs.Kind onto an HTTP status.
func statusForErr(err error) (int, string) {
	switch {
	case errs.Is(err, errs.NotFound):
		return http.StatusNotFound, string(errs.NotFound)
	case errs.Is(err, errs.RateLimited):
		return http.StatusTooManyRequests, string(errs.RateLimited)
	case errs.Is(err, errs.UpstreamUnavailable):
		return http.StatusBadGateway, string(errs.UpstreamUnavailable)
	case errs.Is(err, errs.BadResponse):
		return http.StatusBadGateway, string(errs.BadResponse)
	case errs.Is(err, errs.Conflict):
		return http.StatusConflict, string(errs.Conflict)
	case errs.Is(err, errs.Cancelled):
		return http.StatusRequestTimeout, string(errs.Cancelled)
	default:
		return http.StatusInternalServerError, string(errs.Internal)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusNotFound, ErrorResponse{
		Error:     http.StatusText(http.StatusNotFound),
		Message:   "the requested endpoint does not exist",
		RequestID: requestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- handlers ---

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	out, err := s.svc.GetToken(r.Context(), address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTokenList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := queryInt(q, "page", 1)
	limit := queryInt(q, "limit", 50)

	rows, total, err := s.svc.GetTokenList(r.Context(), q.Get("sort"), q.Get("order"), q.Get("search"), page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	s.writeJSON(w, http.StatusOK, struct {
		Tokens     []types.TokenLite `json:"tokens"`
		Pagination PaginationInfo    `json:"pagination"`
	}{
		Tokens: rows,
		Pagination: PaginationInfo{
			Page:       page,
			PageSize:   limit,
			TotalCount: total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1,
		},
	})
}

func (s *Server) handleOHLCV(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	q := r.URL.Query()

	tf := types.Timeframe(q.Get("tf"))
	if tf == "" {
		tf = types.TF1h
	}
	now := time.Now().UnixMilli()
	from := queryInt64(q, "from", now-7*24*60*60*1000)
	to := queryInt64(q, "to", now)
	maxCandles := queryInt(q, "limit", 300)

	out, err := s.svc.GetOHLCV(r.Context(), address, tf, from, to, maxCandles)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	limit := queryInt(r.URL.Query(), "limit", 50)

	out, err := s.svc.GetTrades(r.Context(), address, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHolders(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	out, err := s.svc.GetHolders(r.Context(), address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	out, err := s.svc.GetStats(r.Context(), address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	coinID := mux.Vars(r)["coinID"]
	out, err := s.svc.GetSupply(r.Context(), coinID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func queryInt(q map[string][]string, key string, def int) int {
	vs, ok := q[key]
	if !ok || len(vs) == 0 || vs[0] == "" {
		return def
	}
	n, err := strconv.Atoi(vs[0])
	if err != nil {
		return def
	}
	return n
}

func queryInt64(q map[string][]string, key string, def int64) int64 {
	vs, ok := q[key]
	if !ok || len(vs) == 0 || vs[0] == "" {
		return def
	}
	n, err := strconv.ParseInt(vs[0], 10, 64)
	if err != nil {
		return def
	}
	return n
}
