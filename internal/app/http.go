package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"kampus/api/internal/auth"
	"kampus/api/internal/rbac"
	"kampus/api/internal/util"
)

const maxMultipartMemory = 8 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	logger := service.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger.Named("http")}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

// Server returns an http.Server for addr. Request contexts derive from a
// base context that is cancelled when Shutdown starts, so open watch
// streams end instead of holding the shutdown until its deadline.
func (s *HTTPServer) Server(addr string) *http.Server {
	base, stopStreams := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	server.RegisterOnShutdown(stopStreams)
	return server
}

func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, session Session, action rbac.Action) {
	s.logger.Info("access denied",
		zap.String("request_id", requestID(r.Context())),
		zap.String("user_id", session.UserID),
		zap.String("role", session.Role),
		zap.String("action", string(action)),
	)
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Bu işlem için yetkiniz yok.", nil)
}

func (s *HTTPServer) allow(w http.ResponseWriter, r *http.Request, session Session, action rbac.Action) bool {
	if s.service.Can(session.Role, action) {
		return true
	}
	s.forbid(w, r, session, action)
	return false
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		collector := s.service.Metrics()
		if collector == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		w.Header().Del("Content-Type")
		collector.Handler().ServeHTTP(w, r)
		return
	}

	if handler, ok := s.publicRoutes()[r.Method+" "+r.URL.Path]; ok {
		handler(w, r)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "reports" && !util.IsID(parts[2]) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case r.URL.Path == "/api/reports":
		switch r.Method {
		case http.MethodGet:
			s.handleListReports(w, r, session)
		case http.MethodPost:
			s.handleCreateReport(w, r, session)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case len(parts) == 3 && parts[0] == "api" && parts[1] == "reports":
		reportID := parts[2]
		switch r.Method {
		case http.MethodGet:
			if !s.allow(w, r, session, rbac.ActionRead) {
				return
			}
			view, err := s.service.GetReport(r.Context(), session, reportID)
			respond(w, http.StatusOK, view, err)
		case http.MethodDelete:
			if !s.allow(w, r, session, rbac.ActionModerate) {
				return
			}
			err := s.service.DeleteReport(r.Context(), session, reportID)
			respond(w, http.StatusOK, map[string]any{"ok": true, "id": reportID}, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case len(parts) == 4 && parts[0] == "api" && parts[1] == "reports" && parts[3] == "status":
		if r.Method != http.MethodPut {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if !s.allow(w, r, session, rbac.ActionModerate) {
			return
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.UpdateStatus(r.Context(), session, parts[2], body.Status)
		respond(w, http.StatusOK, view, err)
		return

	case len(parts) == 4 && parts[0] == "api" && parts[1] == "reports" && parts[3] == "follow":
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if !s.allow(w, r, session, rbac.ActionFollow) {
			return
		}
		view, err := s.service.SetFollowing(r.Context(), session, parts[2], r.Method == http.MethodPost)
		respond(w, http.StatusOK, view, err)
		return

	case r.Method == http.MethodGet && r.URL.Path == "/api/map/markers":
		if !s.allow(w, r, session, rbac.ActionRead) {
			return
		}
		markers, err := s.service.Markers(r.Context(), session, r.URL.Query().Get("filter"))
		respond(w, http.StatusOK, map[string]any{"markers": markers}, err)
		return

	case r.Method == http.MethodGet && r.URL.Path == "/api/watch":
		if !s.allow(w, r, session, rbac.ActionRead) {
			return
		}
		s.handleWatch(w, r, session)
		return

	case r.URL.Path == "/api/preferences":
		if !s.allow(w, r, session, rbac.ActionRead) {
			return
		}
		switch r.Method {
		case http.MethodGet:
			view, err := s.service.Preferences(r.Context(), session)
			respond(w, http.StatusOK, view, err)
		case http.MethodPut:
			var body struct {
				Categories map[string]bool `json:"categories"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			view, err := s.service.SetPreferences(r.Context(), session, body.Categories)
			respond(w, http.StatusOK, view, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case r.Method == http.MethodGet && r.URL.Path == "/api/profile":
		if !s.allow(w, r, session, rbac.ActionRead) {
			return
		}
		profile, err := s.service.Profile(r.Context(), session)
		respond(w, http.StatusOK, profile, err)
		return

	case r.URL.Path == "/api/announcements":
		switch r.Method {
		case http.MethodGet:
			if !s.allow(w, r, session, rbac.ActionRead) {
				return
			}
			limit, err := queryInt(r, "limit", announcementListLimit)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
				return
			}
			items, err := s.service.ListAnnouncements(r.Context(), limit)
			respond(w, http.StatusOK, map[string]any{"announcements": items}, err)
		case http.MethodPost:
			if !s.allow(w, r, session, rbac.ActionAnnounce) {
				return
			}
			var body struct {
				Title   string `json:"title"`
				Message string `json:"message"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			a, err := s.service.Announce(r.Context(), session, body.Title, body.Message)
			respond(w, http.StatusCreated, a, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return

	case r.Method == http.MethodGet && r.URL.Path == "/api/search":
		if !s.allow(w, r, session, rbac.ActionRead) {
			return
		}
		limit, err := queryInt(r, "limit", 20)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		offset, err := queryInt(r, "offset", 0)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		query := r.URL.Query()
		payload, err := s.service.Search(r.Context(), SearchInput{
			Query:  query.Get("q"),
			Type:   strings.TrimSpace(query.Get("type")),
			Status: strings.TrimSpace(query.Get("status")),
			Limit:  limit,
			Offset: offset,
		})
		respond(w, http.StatusOK, payload, err)
		return

	case r.Method == http.MethodGet && r.URL.Path == "/api/admin/stats":
		if !s.allow(w, r, session, rbac.ActionModerate) {
			return
		}
		stats, err := s.service.Stats(r.Context())
		respond(w, http.StatusOK, stats, err)
		return

	case r.Method == http.MethodGet && r.URL.Path == "/api/admin/reports/export":
		if !s.allow(w, r, session, rbac.ActionModerate) {
			return
		}
		query := r.URL.Query()
		result, err := s.service.Export(r.Context(), session, ExportInput{
			Format: query.Get("format"),
			Status: query.Get("status"),
			Type:   query.Get("type"),
			Since:  query.Get("since"),
		})
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleListReports(w http.ResponseWriter, r *http.Request, session Session) {
	if !s.allow(w, r, session, rbac.ActionRead) {
		return
	}
	query := r.URL.Query()
	views, err := s.service.ListReports(r.Context(), session, query.Get("filter"), query.Get("q"))
	respond(w, http.StatusOK, map[string]any{"reports": views}, err)
}

func (s *HTTPServer) handleCreateReport(w http.ResponseWriter, r *http.Request, session Session) {
	if !s.allow(w, r, session, rbac.ActionReport) {
		return
	}
	limit := s.service.cfg.MaxPhotoBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart form expected", nil)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	input := CreateReportInput{
		Title:         r.FormValue("title"),
		Description:   r.FormValue("description"),
		Type:          r.FormValue("type"),
		ShareLocation: formBool(r.FormValue("shareLocation")),
	}
	var err error
	if input.Latitude, err = formFloat(r.FormValue("latitude")); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "latitude must be a number", nil)
		return
	}
	if input.Longitude, err = formFloat(r.FormValue("longitude")); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "longitude must be a number", nil)
		return
	}

	file, header, err := r.FormFile("photo")
	switch {
	case err == nil:
		defer file.Close()
		if header.Size > limit {
			writeError(w, http.StatusRequestEntityTooLarge, "PHOTO_TOO_LARGE", "Fotoğraf çok büyük.", nil)
			return
		}
		input.Photo = file
		input.PhotoSize = header.Size
		input.PhotoType = header.Header.Get("Content-Type")
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "photo could not be read", nil)
		return
	}

	view, err := s.service.CreateReport(r.Context(), session, input)
	respond(w, http.StatusCreated, view, err)
}

func (s *HTTPServer) handleWatch(w http.ResponseWriter, r *http.Request, session Session) {
	sink, err := newSSESink(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STREAM_UNSUPPORTED", err.Error(), nil)
		return
	}
	if err := s.service.Watch(r.Context(), session, sink); err != nil {
		status, code, message, details := mapError(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("watch failed", zap.String("user_id", session.UserID), zap.Error(err))
		}
		writeError(w, status, code, message, details)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		s.logger.Error("session lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		s.service.metrics.ObserveRequest(r.Method, writer.status, elapsed)
		s.logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func respond(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		code, errCode, message, details := mapError(err)
		writeError(w, code, errCode, message, details)
		return
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		// EventSource cannot set headers, so the watch stream may carry the
		// token in the query string.
		if r.URL.Path == "/api/watch" {
			return strings.TrimSpace(r.URL.Query().Get("access_token"))
		}
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return parsed, nil
}

func formBool(value string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && parsed
}

func formFloat(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.ParseFloat(value, 64)
}
