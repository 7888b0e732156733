package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"drinkwise/api/internal/analysis"
	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/auth"
	"drinkwise/api/internal/feed"
	"drinkwise/api/internal/media"
	"drinkwise/api/internal/rbac"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

const appHeader = "X-App-ID"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: service.log}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
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
			"store": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{
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

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		var body struct {
			UserID   string `json:"userId"`
			Username string `json:"username"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Login(r.Context(), s.service.AppID(r.Header.Get(appHeader)), body.UserID, body.Username)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":     session.Token,
			"userId":    session.UserID,
			"userName":  session.UserName,
			"role":      session.Role,
			"appId":     session.AppID,
			"expiresAt": session.ExpiresAt,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userName":      session.UserName,
			"userId":        session.UserID,
			"role":          session.Role,
			"appId":         session.AppID,
		})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		if err := s.service.Logout(r.Context(), session); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "users":
		s.handleUsers(w, r, session, parts)
	case "friends":
		s.handleFriends(w, r, session, parts)
	case "friend-requests":
		s.handleFriendRequests(w, r, session, parts)
	case "admin":
		s.handleAdmin(w, r, session, parts)
	case "feed":
		s.handleFeed(w, r, session, parts)
	case "notifications":
		s.handleNotifications(w, r, session, parts)
	case "media":
		s.handleMedia(w, r, session, parts)
	case "analysis":
		s.handleAnalysis(w, r, session, parts)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if !s.allow(w, session, rbac.ActionRead) {
		return
	}

	if len(parts) == 3 && parts[2] == "search" {
		query := r.URL.Query()
		results, err := s.service.profiles.Search(r.Context(), session.AppID, session.UserID, query.Get("q"), queryInt(query.Get("limit")))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results, "query": query.Get("q")})
		return
	}

	if len(parts) == 3 {
		record, err := s.service.profiles.Get(r.Context(), session.AppID, parts[2])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleFriends(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()
	friends := s.service.friends

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		list, err := friends.ListFriends(ctx, session.AppID, session.UserID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"friends": list})

	case len(parts) == 3 && parts[2] == "repair" && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionRepair) {
			return
		}
		report, err := friends.RepairAllForUser(ctx, session.AppID, session.UserID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)

	case len(parts) == 3 && r.Method == http.MethodDelete:
		if !s.allow(w, session, rbac.ActionBefriend) {
			return
		}
		result, err := friends.RemoveFriendship(ctx, session.AppID, session.UserID, parts[2])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case len(parts) == 4 && parts[3] == "repair" && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionRepair) {
			return
		}
		result, err := friends.RepairFriendship(ctx, session.AppID, session.UserID, parts[2])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case len(parts) == 4 && parts[3] == "check" && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRepair) {
			return
		}
		check, err := friends.CheckFriendship(ctx, session.AppID, session.UserID, parts[2])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, check)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleFriendRequests(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if !s.allow(w, session, rbac.ActionBefriend) {
		return
	}
	ctx := r.Context()
	friends := s.service.friends

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		requests, err := friends.ListRequests(ctx, session.AppID, session.UserID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, requests)

	case len(parts) == 2 && r.Method == http.MethodPost:
		var body struct {
			To string `json:"to"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		request, err := friends.SendRequest(ctx, session.AppID, session.UserID, strings.TrimSpace(body.To))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, request)

	case len(parts) == 3 && r.Method == http.MethodDelete:
		if err := friends.CancelRequest(ctx, session.AppID, parts[2], session.UserID); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(parts) == 4 && r.Method == http.MethodPost:
		requestID := parts[2]
		switch parts[3] {
		case "accept":
			result, err := friends.AcceptRequest(ctx, session.AppID, requestID, session.UserID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		case "reject":
			if err := friends.RejectRequest(ctx, session.AppID, requestID, session.UserID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		case "sync":
			result, err := friends.SynchronizeOwnRequest(ctx, session.AppID, requestID, session.UserID)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if !s.allow(w, session, rbac.ActionAdmin) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	ctx := r.Context()
	friends := s.service.friends

	if len(parts) == 3 && parts[2] == "friends" {
		var body struct {
			UserID   string `json:"userId"`
			FriendID string `json:"friendId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := friends.ForceAddFriend(ctx, session.AppID, body.UserID, body.FriendID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.log.Info("friendship forced", zap.String("admin", session.UserID), zap.String("user_id", body.UserID), zap.String("friend_id", body.FriendID), zap.String("outcome", string(result.Outcome)))
		writeJSON(w, http.StatusOK, result)
		return
	}

	if len(parts) == 4 && parts[2] == "search" && parts[3] == "reindex" {
		n, err := s.service.ReindexUsers(ctx, session.AppID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"indexed": n})
		return
	}

	if len(parts) < 5 || parts[2] != "users" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	userID := parts[3]
	var (
		payload any
		err     error
	)
	switch strings.Join(parts[4:], "/") {
	case "repair":
		payload, err = friends.RepairAllForUser(ctx, session.AppID, userID)
	case "edges/backfill":
		payload, err = friends.BackfillEdges(ctx, session.AppID, userID)
	case "projections/rebuild":
		payload, err = friends.RebuildProjections(ctx, session.AppID, userID)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleFeed(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()

	if len(parts) == 3 && parts[2] == "interactions" && r.Method == http.MethodPost {
		if !s.allow(w, session, rbac.ActionInteract) {
			return
		}
		var input feed.SubmitInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		input.AppID = session.AppID
		input.ViewerID = session.UserID
		result, err := s.service.feed.Submit(ctx, input)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if len(parts) == 5 && parts[2] == "items" && parts[4] == "interactions" && r.Method == http.MethodGet {
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		interactions, err := s.service.feed.Visible(ctx, session.AppID, session.UserID, parts[3])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, interactions)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()
	notifications := s.service.notifications

	if len(parts) == 2 && r.Method == http.MethodGet {
		list, err := notifications.Unread(ctx, session.AppID, session.UserID, queryInt(r.URL.Query().Get("limit")))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
		return
	}

	if len(parts) == 4 && r.Method == http.MethodPost {
		var err error
		switch parts[3] {
		case "read":
			err = notifications.MarkRead(ctx, session.AppID, session.UserID, parts[2])
		case "displayed":
			err = notifications.MarkDisplayed(ctx, session.AppID, session.UserID, parts[2])
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleMedia(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 2 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if !s.allow(w, session, rbac.ActionInteract) {
		return
	}
	image, err := readImage(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	object, err := s.service.UploadMedia(r.Context(), session.UserID, mediaType(r), bytes.NewReader(image), int64(len(image)))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, object)
}

func (s *HTTPServer) handleAnalysis(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 3 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if !s.allow(w, session, rbac.ActionInteract) {
		return
	}
	ctx := r.Context()

	switch parts[2] {
	case "drink":
		if strings.HasPrefix(mediaType(r), "image/") {
			image, err := readImage(w, r)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			result, err := s.service.analysis.ClassifyDrink(ctx, image, mediaType(r))
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
			return
		}
		var body struct {
			MediaKey string `json:"mediaKey"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.MediaKey) == "" {
			s.fail(w, r, apperr.New(apperr.InvalidArgument, "mediaKey or an image body is required"))
			return
		}
		result, err := s.service.ClassifyStoredDrink(ctx, session.UserID, body.MediaKey)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case "summary":
		var body struct {
			analysis.PartyData
			DrunkLevel string `json:"drunkLevel"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		writeJSON(w, http.StatusOK, s.service.analysis.Summarize(ctx, body.PartyData, body.DrunkLevel))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, string(apperr.Unauthenticated), "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, string(apperr.Unauthenticated), "Unauthorized", nil)
			return Session{}, false
		}
		s.fail(w, r, err)
		return Session{}, false
	}
	if requested := strings.TrimSpace(r.Header.Get(appHeader)); requested != "" && requested != session.AppID {
		writeError(w, http.StatusUnauthorized, string(apperr.Unauthenticated), "Token was issued for another app", map[string]string{"appId": requested})
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) allow(w http.ResponseWriter, session Session, action rbac.Action) bool {
	if s.service.Can(session.Role, action) {
		return true
	}
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	return false
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		next.ServeHTTP(writer, r)

		s.log.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
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

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-App-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = codec.NewEncoder(w).Encode(payload)
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
	if err := codec.NewDecoder(r.Body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// readImage reads a raw image body of at most media.MaxObjectSize bytes.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, apperr.New(apperr.InvalidArgument, "image body is required")
	}
	defer r.Body.Close()
	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, media.MaxObjectSize))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, apperr.WithDetails(apperr.InvalidArgument, "image is too large", map[string]int64{"maxBytes": media.MaxObjectSize})
	}
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if len(image) == 0 {
		return nil, apperr.New(apperr.InvalidArgument, "image body is required")
	}
	return image, nil
}

func mediaType(r *http.Request) string {
	contentType, _, _ := strings.Cut(r.Header.Get("Content-Type"), ";")
	return strings.ToLower(strings.TrimSpace(contentType))
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
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

func queryInt(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
