// Package api is the HTTP channel adapter. Authenticated callers post a
// message and receive the pipeline's ProcessResult.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/haasonsaas/agentdesk/internal/agent"
	"github.com/haasonsaas/agentdesk/internal/auth"
	"github.com/haasonsaas/agentdesk/internal/observability"
	"github.com/haasonsaas/agentdesk/internal/ratelimit"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

// DefaultMaxBodyBytes bounds a message request body.
const DefaultMaxBodyBytes = 1 << 20

// MessageProcessor runs one message through the pipeline.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, req agent.Request) *models.ProcessResult
}

// Pinger reports storage reachability for /health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config wires the server's collaborators. Auth and Processor are required.
type Config struct {
	Auth         *auth.Service
	Processor    MessageProcessor
	Health       Pinger
	Metrics      *observability.Metrics
	// Limiter throttles messages per user. Nil disables throttling.
	Limiter      *ratelimit.Limiter
	Logger       *slog.Logger
	MaxBodyBytes int64
	// HealthTimeout bounds the storage ping. Default 5s.
	HealthTimeout time.Duration
}

// Server routes HTTP requests to the pipeline.
type Server struct {
	cfg    Config
	logger *slog.Logger
	router chi.Router
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Auth == nil {
		return nil, errors.New("api: auth service is required")
	}
	if cfg.Processor == nil {
		return nil, errors.New("api: processor is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: logger.With("component", "api")}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.observe)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))

	r.Get("/health", s.health)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth, logger))
		r.Post("/v1/messages", s.postMessage)
	})
	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// observe logs and measures every request by its route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.cfg.Metrics.HTTPRequest(r.Method, route, strconv.Itoa(status), elapsed)
		s.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", chiMiddleware.GetReqID(r.Context()))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"api": "ok"}
	status := http.StatusOK
	if s.cfg.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthTimeout)
		defer cancel()
		if err := s.cfg.Health.PingContext(ctx); err != nil {
			s.logger.Error("health check failed", "error", err)
			checks["database"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}
	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

// messageRequest is the body of POST /v1/messages.
type messageRequest struct {
	AgentID string         `json:"agentId"`
	Message string         `json:"message"`
	Channel models.Channel `json:"channel"`
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}
	if ok, wait := s.cfg.Limiter.Allow(principal.UserID); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var body messageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	channel := models.Channel(strings.ToLower(strings.TrimSpace(string(body.Channel))))
	if channel == "" {
		channel = models.ChannelAPI
	}
	if !channel.IsExternal() {
		writeError(w, http.StatusBadRequest, "unsupported channel "+strconv.Quote(string(channel)))
		return
	}

	agentID := strings.TrimSpace(body.AgentID)
	if principal.AgentID != "" {
		if agentID != "" && agentID != principal.AgentID {
			writeError(w, http.StatusForbidden, "token is not valid for this agent")
			return
		}
		agentID = principal.AgentID
	}

	result := s.cfg.Processor.ProcessMessage(r.Context(), agent.Request{
		UserID:  principal.UserID,
		AgentID: agentID,
		Message: body.Message,
		Channel: channel,
	})
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
