package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tcross-assistant/internal/domain"
	"tcross-assistant/internal/domain/model"
	"tcross-assistant/internal/infra/logging"
	"tcross-assistant/internal/safety"
	"tcross-assistant/internal/usecase"
)

const maxBodyBytes = 64 << 10

// Server is the JSON surface of the chat pipeline.
type Server struct {
	hub        *usecase.SessionHub
	export     usecase.ExportUseCase
	auth       *AuthManager
	adminKey   string
	text       safety.Localizer
	trustProxy bool
	log        *zerolog.Logger
}

type Options struct {
	AdminKey   string
	TrustProxy bool
}

func NewServer(hub *usecase.SessionHub, export usecase.ExportUseCase, auth *AuthManager, text safety.Localizer, opts Options, logger *zerolog.Logger) *Server {
	return &Server{
		hub:        hub,
		export:     export,
		auth:       auth,
		adminKey:   opts.AdminKey,
		text:       text,
		trustProxy: opts.TrustProxy,
		log:        logger,
	}
}

// Handler returns the full router: middlewares, API routes, health and metrics.
func (s *Server) Handler(timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	s.Routes(r)

	return Chain(r,
		TraceID(s.log),
		RequestLog(s.log),
		Recover(s.log),
		Timeout(timeout),
	)
}

// Routes registers the /api/v1 endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/token", s.handleMintToken)
		r.Get("/vehicles", s.handleVehicles)
		r.Get("/models", s.handleListModels)

		r.Group(func(r chi.Router) {
			r.Use(s.identify)
			r.Post("/session", s.handleStartSession)
			r.Get("/session", s.handleGetSession)
			r.Delete("/session", s.handleClearSession)
			r.Get("/session/stats", s.handleStats)
			r.Get("/session/export", s.handleExport)
			r.Post("/session/import", s.handleImport)
			r.Put("/session/vehicle", s.handleSelectVehicle)
			r.Post("/session/reply", s.handleRetryReply)
			r.Post("/messages", s.handleSendMessage)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Put("/models/{name}", s.handleUpdateModel)
			r.Delete("/admin/blocks/{identity}", s.handleUnblock)
		})
	})
}

// identify resolves the caller: the JWT subject when a bearer token is sent,
// otherwise the client address. A bad token is refused rather than silently
// downgraded to the address.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var identity string
		claims, err := s.auth.ParseFromRequest(r)
		switch {
		case err == nil:
			identity = "jwt:" + claims.Subject
		case errors.Is(err, ErrMissingToken):
			identity = "ip:" + clientIP(r)
		default:
			s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: err.Error()})
			return
		}
		ctx := logging.WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey == "" {
			s.log.Error().Msg("admin key is not configured")
			s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden", Message: "admin API disabled"})
			return
		}
		hdr := r.Header.Get("Authorization")
		key, ok := strings.CutPrefix(hdr, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminKey)) != 1 {
			s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "admin key required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func identityFrom(r *http.Request) string {
	return logging.IdentityFrom(r.Context())
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) (*usecase.SecureChat, bool) {
	c, err := s.hub.Get(identityFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return c, true
}

// ===== handlers =====

func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	tok, sub, exp, err := s.auth.Mint()
	if errors.Is(err, ErrAuthDisabled) {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "auth_disabled", Message: err.Error()})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tokenResponse{Token: tok, Identity: "jwt:" + sub, ExpiresAt: exp})
}

func (s *Server) handleVehicles(w http.ResponseWriter, _ *http.Request) {
	years, versions := s.hub.Vehicles()
	s.writeJSON(w, http.StatusOK, vehiclesResponse{Years: years, Versions: versions, Default: model.DefaultVehicle()})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"items": s.hub.Models().List(r.Context())})
}

func (s *Server) handleUpdateModel(w http.ResponseWriter, r *http.Request) {
	var req updateModelRequest
	if !s.decode(w, r, &req) {
		return
	}
	cfg, err := s.hub.Models().Update(chi.URLParam(r, "name"), req.Temperature, req.MaxTokens)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identity")
	if err := s.hub.Unblock(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	logging.With(r.Context(), s.log).Info().Str("unblocked", id).Msg("rate limit block lifted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	c, ok := s.chat(w, r)
	if !ok {
		return
	}
	sess, err := c.StartNewSession(req.Model)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toSessionView(sess, c.Vehicle()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	c, ok := s.chat(w, r)
	if !ok {
		return
	}
	sess := c.CurrentSession()
	if sess == nil {
		s.writeError(w, r, domain.ErrNoActiveSession)
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionView(sess, c.Vehicle()))
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	c, ok := s.chat(w, r)
	if !ok {
		return
	}
	c.ClearSession()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	c, ok := s.chat(w, r)
	if !ok {
		return
	}
	if c.CurrentSession() == nil {
		s.writeError(w, r, domain.ErrNoActiveSession)
		return
	}
	s.writeJSON(w, http.StatusOK, c.Stats())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	c, ok := s.chat(w, r)
	if !ok {
		return
	}
	sess := c.CurrentSession()
	if sess == nil {
		s.writeError(w, r, domain.ErrNoActiveSession)
		return
	}
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		b, err := s.export.ExportJSON(sess)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="conversa-`+sess.ID+`.json"`)
		_, _ = w.Write(b)
	case "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="conversa-`+sess.ID+`.md"`)
		_, _ = io.WriteString(w, s.export.ExportMarkdown(sess))
	default:
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_argument", Message: "format must be json or markdown"})
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "too_large", Message: err.Error()})
		return
	}
	sess, err := s.export.ImportJSON(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, ok := s.chat(w, r)
	if !ok {
		return
	}
	loaded, err := c.LoadSession(sess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toSessionView(loaded, c.Vehicle()))
}

func (s *Server) handleSelectVehicle(w http.ResponseWriter, r *http.Request) {
	var v model.VehicleInfo
	if !s.decode(w, r, &v) {
		return
	}
	c, ok := s.chat(w, r)
	if !ok {
		return
	}
	if err := c.SelectVehicle(v); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, ok := s.chat(w, r)
	if !ok {
		return
	}
	if req.Vehicle != nil {
		if err := c.SelectVehicle(*req.Vehicle); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	user, reply, status, err := c.Ask(r.Context(), req.Content, identityFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := sendMessageResponse{Status: status, User: toMessageView(user)}
	rv := toMessageView(reply)
	resp.Reply = &rv
	if sess := c.CurrentSession(); sess != nil {
		resp.Session = sess.ID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleRetryReply answers the message left pending by a failed reply.
func (s *Server) handleRetryReply(w http.ResponseWriter, r *http.Request) {
	c, ok := s.chat(w, r)
	if !ok {
		return
	}
	sess := c.CurrentSession()
	if sess == nil {
		s.writeError(w, r, domain.ErrNoActiveSession)
		return
	}
	last, ok := sess.LastMessage()
	if !ok || !last.IsUser() {
		s.writeError(w, r, domain.ErrNoPendingMessage)
		return
	}
	reply, err := c.GetSecureAIResponse(r.Context(), last.Content, c.Vehicle())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toMessageView(reply))
}

// ===== helpers =====

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_json", Message: err.Error()})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes and localized messages.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, kind, msg := http.StatusInternalServerError, "internal", s.text.T("bot.error")
	switch {
	case errors.Is(err, domain.ErrValidationRejected):
		code, kind, msg = http.StatusUnprocessableEntity, "validation_rejected", err.Error()
	case errors.Is(err, domain.ErrRateLimitExceeded):
		code, kind, msg = http.StatusTooManyRequests, "rate_limited", err.Error()
	case errors.Is(err, domain.ErrNoActiveSession):
		code, kind, msg = http.StatusConflict, "no_active_session", s.text.T("chat.no_session")
	case errors.Is(err, domain.ErrNoPendingMessage):
		code, kind, msg = http.StatusBadRequest, "no_pending_message", s.text.T("chat.no_pending")
	case errors.Is(err, domain.ErrProviderTimeout):
		code, kind, msg = http.StatusGatewayTimeout, "provider_timeout", s.text.T("chat.provider_timeout")
	case errors.Is(err, domain.ErrProviderFailure):
		code, kind, msg = http.StatusBadGateway, "provider_failure", s.text.T("chat.provider_failure")
	case errors.Is(err, domain.ErrNotFound):
		code, kind, msg = http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, domain.ErrInvalidArgument):
		code, kind, msg = http.StatusBadRequest, "invalid_argument", err.Error()
	}
	l := logging.With(r.Context(), s.log)
	if code >= 500 {
		l.Error().Err(err).Int("status", code).Msg("request failed")
	} else {
		l.Debug().Err(err).Int("status", code).Msg("request refused")
	}
	s.writeJSON(w, code, errorResponse{Error: kind, Message: msg})
}
