package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"execdash/api/internal/auth"
	"execdash/api/internal/config"
	"execdash/api/internal/github"
	"execdash/api/internal/logger"
	"execdash/api/internal/store"
	"execdash/api/internal/util"
)

type HTTPServer struct {
	svc *Service
	cfg config.Config
}

func NewHTTPServer(svc *Service, cfg config.Config) *HTTPServer {
	return &HTTPServer{svc: svc, cfg: cfg}
}

func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/", h.route)
	return withMiddleware(mux, h.cfg)
}

func (h *HTTPServer) route(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api"))
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
		return
	}

	switch parts[0] {
	case "health":
		if r.Method == http.MethodGet && len(parts) == 1 {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
			return
		}
	case "ready":
		if r.Method == http.MethodGet && len(parts) == 1 {
			h.handleReady(w, r)
			return
		}
	case "auth":
		h.routeAuth(w, r, parts[1:])
		return
	case "users":
		h.routeUsers(w, r, parts[1:])
		return
	case "board":
		if r.Method == http.MethodGet && len(parts) == 1 {
			h.withIdentity(w, r, h.handleBoard)
			return
		}
	case "dashboards":
		h.routeDashboards(w, r, parts[1:])
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
}

func (h *HTTPServer) routeAuth(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
		return
	}
	switch {
	case parts[0] == "login" && r.Method == http.MethodPost:
		h.handleLogin(w, r)
	case parts[0] == "logout" && r.Method == http.MethodPost:
		h.handleLogout(w, r)
	case parts[0] == "me" && r.Method == http.MethodGet:
		h.handleMe(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	}
}

func (h *HTTPServer) routeUsers(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 1 && parts[0] == "list" && r.Method == http.MethodGet:
		h.withSession(w, r, func(w http.ResponseWriter, r *http.Request, _ Session) {
			refs, err := h.svc.ListUserRefs(r.Context())
			if err != nil {
				h.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, refs)
		})
	case len(parts) == 0 && r.Method == http.MethodGet:
		h.withIdentity(w, r, func(w http.ResponseWriter, r *http.Request, identity store.Identity) {
			users, err := h.svc.ListUsers(r.Context(), identity)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, users)
		})
	case len(parts) == 0 && r.Method == http.MethodPost:
		h.withIdentity(w, r, h.handleUpsertUser)
	case len(parts) == 0 && r.Method == http.MethodPut:
		h.withIdentity(w, r, h.handleUpdateUser)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		userID := parts[0]
		h.withIdentity(w, r, func(w http.ResponseWriter, r *http.Request, identity store.Identity) {
			if err := h.svc.DeleteUser(r.Context(), identity, userID); err != nil {
				h.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	}
}

func (h *HTTPServer) routeDashboards(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		h.withIdentity(w, r, h.handleList)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.withIdentity(w, r, h.handleGet(parts[0]))
	case len(parts) == 1 && r.Method == http.MethodPost:
		h.withIdentity(w, r, h.handleSave(parts[0]))
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.withIdentity(w, r, h.handleDelete(parts[0]))
	case len(parts) == 2 && parts[1] == "publish" && r.Method == http.MethodPost:
		h.withIdentity(w, r, h.handlePublish(parts[0]))
	case len(parts) == 2 && parts[1] == "unpublish" && r.Method == http.MethodPost:
		h.withIdentity(w, r, h.handleUnpublish(parts[0]))
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	}
}

func (h *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "session store unavailable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (h *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID   string `json:"userId"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil)
		return
	}

	sess, err := h.svc.Login(r.Context(), body.UserID, body.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	auth.SetSessionCookie(w, sess.Token, time.Until(sess.ExpiresAt), h.cfg.IsProduction())
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"userId": sess.UserID,
	})
}

func (h *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := auth.RequestToken(r); token != "" {
		if sess, err := h.svc.SessionFromToken(r.Context(), token); err == nil {
			_ = h.svc.Logout(r.Context(), sess)
		}
	}
	auth.ClearSessionCookie(w, h.cfg.IsProduction())
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	token := auth.RequestToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	sess, err := h.svc.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	me, err := h.svc.Me(r.Context(), sess)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

func (h *HTTPServer) handleBoard(w http.ResponseWriter, r *http.Request, identity store.Identity) {
	result, err := h.svc.Board(r.Context(), identity, r.URL.Query().Get("sort"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPServer) handleList(w http.ResponseWriter, r *http.Request, identity store.Identity) {
	items, err := h.svc.List(r.Context(), identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *HTTPServer) handleGet(id string) identityHandler {
	return func(w http.ResponseWriter, r *http.Request, identity store.Identity) {
		result, err := h.svc.Get(r.Context(), id, identity)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *HTTPServer) handleSave(id string) identityHandler {
	return func(w http.ResponseWriter, r *http.Request, identity store.Identity) {
		var body struct {
			Name  string         `json:"name"`
			State map[string]any `json:"state"`
			Patch map[string]any `json:"patch"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil)
			return
		}

		merge := r.URL.Query().Get("merge") == "1" || body.Patch != nil
		err := h.svc.Save(r.Context(), id, identity, SaveInput{
			State: body.State,
			Patch: body.Patch,
			Name:  body.Name,
			Merge: merge,
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
	}
}

func (h *HTTPServer) handleDelete(id string) identityHandler {
	return func(w http.ResponseWriter, r *http.Request, identity store.Identity) {
		if err := h.svc.Delete(r.Context(), id, identity); err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (h *HTTPServer) handlePublish(id string) identityHandler {
	return func(w http.ResponseWriter, r *http.Request, identity store.Identity) {
		var body struct {
			All   bool     `json:"all"`
			Users []string `json:"users"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil)
			return
		}
		err := h.svc.Publish(r.Context(), id, identity, PublishInput{All: body.All, Users: body.Users})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (h *HTTPServer) handleUnpublish(id string) identityHandler {
	return func(w http.ResponseWriter, r *http.Request, identity store.Identity) {
		if err := h.svc.Unpublish(r.Context(), id, identity); err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (h *HTTPServer) handleUpsertUser(w http.ResponseWriter, r *http.Request, identity store.Identity) {
	var body struct {
		UserID      string          `json:"userId"`
		Password    string          `json:"password"`
		Role        string          `json:"role"`
		Permissions map[string]bool `json:"permissions"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil)
		return
	}
	err := h.svc.UpsertUser(r.Context(), identity, UserInput{
		UserID:      body.UserID,
		Password:    body.Password,
		Role:        body.Role,
		Permissions: body.Permissions,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *HTTPServer) handleUpdateUser(w http.ResponseWriter, r *http.Request, identity store.Identity) {
	var body struct {
		UserID      string          `json:"userId"`
		Password    string          `json:"password"`
		Role        string          `json:"role"`
		Permissions map[string]bool `json:"permissions"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil)
		return
	}
	err := h.svc.UpdateUser(r.Context(), identity, UserInput{
		UserID:      body.UserID,
		Password:    body.Password,
		Role:        body.Role,
		Permissions: body.Permissions,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type sessionHandler func(http.ResponseWriter, *http.Request, Session)

type identityHandler func(http.ResponseWriter, *http.Request, store.Identity)

func (h *HTTPServer) withSession(w http.ResponseWriter, r *http.Request, next sessionHandler) {
	token := auth.RequestToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	sess, err := h.svc.SessionFromToken(r.Context(), token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	next(w, r, sess)
}

func (h *HTTPServer) withIdentity(w http.ResponseWriter, r *http.Request, next identityHandler) {
	h.withSession(w, r, func(w http.ResponseWriter, r *http.Request, sess Session) {
		identity, err := h.svc.Identity(r.Context(), sess)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		next(w, r, identity)
	})
}

func (h *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		logger.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func mapError(err error) (int, string, string, any) {
	var domain *DomainError
	if errors.As(err, &domain) {
		return domain.Status, domain.Code, domain.Message, domain.Details
	}

	var upstream *github.UpstreamError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, github.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "not found", nil
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "access denied", nil
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil
	case errors.Is(err, github.ErrConflict):
		return http.StatusConflict, "CONFLICT", "concurrent modification, retry the request", nil
	case errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "SESSION_EXPIRED", "session expired", nil
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid session", nil
	case errors.As(err, &upstream):
		return http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "storage backend unavailable", map[string]any{"upstreamStatus": upstream.Status}
	default:
		return http.StatusInternalServerError, "SERVER_ERROR", "internal server error", nil
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	body := map[string]any{
		"error":   code,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 2<<20))
	return dec.Decode(dst)
}

func splitPath(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

type contextKey string

const requestIDKey contextKey = "requestID"

func withMiddleware(next http.Handler, cfg config.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))
		w.Header().Set("X-Request-Id", requestID)

		setCORSHeaders(w, cfg.CORSOrigin)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Log.Info("http request",
			zap.String("requestId", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func setCORSHeaders(w http.ResponseWriter, origin string) {
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
}
