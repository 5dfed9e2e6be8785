package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"scripturechat/internal/ratelimit"
	"scripturechat/internal/usertoken"
	"scripturechat/internal/util"
	"scripturechat/services/chat/internal/app"
)

const userIDHeader = "X-User-Id"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	// TokenVerifier authenticates bearer tokens. Without one the caller is
	// identified by the X-User-Id header set by a trusted proxy.
	TokenVerifier *usertoken.Verifier

	// MessageLimiter throttles turns per user; nil disables throttling.
	MessageLimiter ratelimit.Limiter

	// SearchLimiter throttles the public search route per client IP.
	SearchLimiter  ratelimit.Limiter
	TrustedProxies *util.TrustedProxies

	// AllowedOrigins restricts browser origins for CORS and streams; empty
	// admits any origin.
	AllowedOrigins []string
}

// Server exposes HTTP endpoints for the chat service.
type Server struct {
	app            *app.App
	tokenVerifier  *usertoken.Verifier
	messageLimiter ratelimit.Limiter
	searchLimiter  ratelimit.Limiter
	trustedProxies *util.TrustedProxies
	allowedOrigins []string
	upgrader       websocket.Upgrader
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		messageLimiter: cfg.MessageLimiter,
		searchLimiter:  cfg.SearchLimiter,
		trustedProxies: cfg.TrustedProxies,
		allowedOrigins: cfg.AllowedOrigins,
		mux:            http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return util.OriginAllowed(s.allowedOrigins, r.Header.Get("Origin"))
		},
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("chat", s.trustedProxies, util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/commentators", s.handleCommentators)
	s.mux.HandleFunc("/search", s.handleSearch)
	s.mux.Handle("/sessions", s.withUser(s.handleSessions))
	s.mux.Handle("/sessions/", s.withUser(s.handleSessionRoutes))
	s.mux.Handle("/history", s.withUser(s.handleHistory))
	s.mux.Handle("/history/", s.withUser(s.handleHistoryEntry))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCommentators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"commentators": s.app.Roster().Names()})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	if s.searchLimiter != nil && !s.searchLimiter.Allow(r.Context(), util.ClientIP(r, s.trustedProxies)) {
		writeError(w, http.StatusTooManyRequests, "too many searches, slow down")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": s.app.Search(r.Context(), q)})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.userID(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("user_id", userID))
		next(w, r.WithContext(ctx), userID)
	})
}

func (s *Server) userID(r *http.Request) (string, error) {
	if s.tokenVerifier != nil {
		return s.tokenVerifier.UserFromRequest(r)
	}
	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		return "", usertoken.ErrMissingToken
	}
	return userID, nil
}

// handleSessions serves /sessions: POST starts a new chat.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	session, err := s.app.NewSession(r.Context(), userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// handleSessionRoutes serves /sessions/current and /sessions/{id}/{action}.
func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request, userID string) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if parts[0] == "current" && len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		session, err := s.app.CurrentSession(r.Context(), userID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
		return
	}
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	sessionID := parts[0]
	switch parts[1] {
	case "messages":
		switch r.Method {
		case http.MethodGet:
			s.handleListMessages(w, r, userID, sessionID)
		case http.MethodPost:
			s.handleSendMessage(w, r, userID, sessionID)
		default:
			methodNotAllowed(w)
		}
	case "stream":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleStream(w, r, userID, sessionID)
	case "archive":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		key, url, err := s.app.ArchiveSession(r.Context(), userID, sessionID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, archiveResponse{Key: key, URL: url})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, userID, sessionID string) {
	msgs, err := s.app.ListMessages(r.Context(), userID, sessionID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID, "messages": msgs})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, userID, sessionID string) {
	var req sendMessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if s.messageLimiter != nil && !s.messageLimiter.Allow(r.Context(), userID) {
		writeError(w, http.StatusTooManyRequests, "too many messages, slow down")
		return
	}
	out, err := s.app.SendMessageWithID(r.Context(), userID, sessionID, req.ID, req.Message)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := 0
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := s.app.ListHistory(r.Context(), userID, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request, userID string) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/history/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.DeleteHistory(r.Context(), userID, id); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type sendMessageRequest struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

type archiveResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrUserRequired):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, app.ErrEmptyMessage), errors.Is(err, app.ErrInvalidMessageID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrSessionNotFound), errors.Is(err, app.ErrHistoryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrSessionForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrDuplicateMessage):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrArchiveDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		slog.Error("chat request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
