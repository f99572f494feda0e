package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docuchat/internal/app"
	"docuchat/internal/ratelimit"
	"docuchat/internal/util"
	"docuchat/pkg/auth"
	"docuchat/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App    *app.App
	Tokens *auth.TokenIssuer

	// TrustedProxies controls when forwarded headers are believed for
	// client IP attribution. Nil means trust none.
	TrustedProxies *util.TrustedProxies

	RedisAddr     string
	RedisPassword string

	AuthRateLimitPerMinute   int
	UploadRateLimitPerMinute int
	QueryRateLimitPerMinute  int

	MaxUploadBytes int64
}

// Server exposes the HTTP API.
type Server struct {
	app     *app.App
	tokens  *auth.TokenIssuer
	trusted *util.TrustedProxies
	mux     *http.ServeMux

	maxUploadBytes int64
	authLimiter    *ratelimit.FixedWindowLimiter
	uploadLimiter  *ratelimit.FixedWindowLimiter
	queryLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	authLimit := cfg.AuthRateLimitPerMinute
	if authLimit <= 0 {
		authLimit = 10
	}
	uploadLimit := cfg.UploadRateLimitPerMinute
	if uploadLimit <= 0 {
		uploadLimit = 6
	}
	queryLimit := cfg.QueryRateLimitPerMinute
	if queryLimit <= 0 {
		queryLimit = 30
	}
	rateWindow := time.Minute
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "docuchat:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, rateWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	authLimiter, err := newLimiter("auth", authLimit)
	if err != nil {
		return nil, err
	}
	uploadLimiter, err := newLimiter("upload", uploadLimit)
	if err != nil {
		return nil, err
	}
	queryLimiter, err := newLimiter("query", queryLimit)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:            cfg.App,
		tokens:         cfg.Tokens,
		trusted:        cfg.TrustedProxies,
		mux:            http.NewServeMux(),
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
		authLimiter:    authLimiter,
		uploadLimiter:  uploadLimiter,
		queryLimiter:   queryLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/register", s.handleRegister)
	s.mux.HandleFunc("/auth/login", s.handleLogin)

	// sessions, documents, chat (auth required)
	s.mux.Handle("/sessions", s.authenticated(s.handleSessions))
	s.mux.Handle("/documents/upload", s.authenticated(s.handleUpload))
	s.mux.Handle("/documents", s.authenticated(s.handleDocuments))
	s.mux.Handle("/documents/", s.authenticated(s.handleDocumentByID))
	s.mux.Handle("/chat/query", s.authenticated(s.handleChatQuery))
	s.mux.Handle("/chat/history", s.authenticated(s.handleChatHistory))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "token.verify", "fail", "reason", "missing_token")
		return domain.User{}, false
	}
	userID, err := s.tokens.Verify(token)
	if err != nil {
		s.audit(r, "token.verify", "fail", "reason", "invalid_signature_or_claims")
		return domain.User{}, false
	}
	user, found, err := s.app.UserByID(userID)
	if err != nil || !found {
		s.audit(r, "token.verify", "fail", "reason", "unknown_subject")
		return domain.User{}, false
	}
	return user, true
}

// auth handlers
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.authLimiter, "too many registration attempts") {
		s.audit(r, "register", "rate_limited")
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "register", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.Register(req.Email, req.Password)
	if err != nil {
		s.audit(r, "register", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "register", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, registerResponse{
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.authLimiter, "too many login attempts") {
		s.audit(r, "login", "rate_limited")
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		s.audit(r, "login", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.audit(r, "login", "fail", "reason", "token_issue_failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.audit(r, "login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, TokenType: "bearer"})
}

// /sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		var req sessionRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		session, err := s.app.CreateSession(user, req.Name)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, session)
	case http.MethodGet:
		sessions, err := s.app.ListSessions(user)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": sessions,
			"count": len(sessions),
		})
	default:
		methodNotAllowed(w)
	}
}

// /documents/upload
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.uploadLimiter, "too many uploads") {
		s.audit(r, "document.upload", "rate_limited", "user_id", user.ID)
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	sessionID := strings.TrimSpace(r.FormValue("sessionId"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	result, err := s.app.UploadDocument(r.Context(), user, sessionID, header.Filename, file)
	if err != nil {
		s.audit(r, "document.upload", "fail", "user_id", user.ID, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "document.upload", "success", "user_id", user.ID, "document_id", result.Document.ID)
	writeJSON(w, http.StatusCreated, uploadResponse{
		DocumentID:    result.Document.ID,
		FileName:      result.Document.FileName,
		StorageKey:    result.Document.StorageKey,
		Pages:         result.Document.Pages,
		ChunksIndexed: result.ChunksIndexed,
	})
}

// /documents?sessionId=
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	docs, err := s.app.ListDocuments(user, r.URL.Query().Get("sessionId"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": docs,
		"count": len(docs),
	})
}

// /documents/{id}/download
func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/documents/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" || len(parts) != 2 || parts[1] != "download" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	url, fileName, err := s.app.DocumentDownloadURL(r.Context(), user, id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":      url,
		"fileName": fileName,
	})
}

// /chat/query
func (s *Server) handleChatQuery(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.queryLimiter, "too many chat requests") {
		s.audit(r, "chat.query", "rate_limited", "user_id", user.ID)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	answer, err := s.app.Ask(r.Context(), user, req.SessionID, req.Message)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// /chat/history?sessionId=&limit=
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	messages, err := s.app.History(user, r.URL.Query().Get("sessionId"), limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": messages,
		"count": len(messages),
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
}

type sessionRequest struct {
	Name string `json:"name"`
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type uploadResponse struct {
	DocumentID    string `json:"documentId"`
	FileName      string `json:"fileName"`
	StorageKey    string `json:"storageKey"`
	Pages         int    `json:"pages"`
	ChunksIndexed int    `json:"chunksIndexed"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps core errors onto HTTP statuses in one place. Upstream
// provider errors are logged with their cause but surface as a generic 502.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var parseErr *app.ParseError
	var upstreamErr *app.UpstreamError
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrEmailAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrSessionNotFound),
		errors.Is(err, app.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrEmailAndPasswordRequired),
		errors.Is(err, app.ErrSessionNameRequired),
		errors.Is(err, app.ErrMessageRequired),
		errors.Is(err, app.ErrFileRequired),
		errors.Is(err, app.ErrUnsupportedFileType),
		errors.Is(err, auth.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &parseErr):
		writeError(w, http.StatusUnprocessableEntity, "could not parse the uploaded PDF")
	case errors.As(err, &upstreamErr):
		util.LoggerFromContext(r.Context()).Error("upstream failure",
			"op", upstreamErr.Op, "error", upstreamErr.Err)
		writeError(w, http.StatusBadGateway, "upstream service unavailable")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed",
			"path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 32 * 1024 * 1024
	}
	return value
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
