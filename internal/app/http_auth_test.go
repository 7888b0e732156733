package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"drinkwise/api/internal/auth"
	"drinkwise/api/internal/model"
)

func TestSessionLoginReturnsContract(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/api/session/login", "", map[string]string{"userId": " alice ", "username": "  Alice  "})
	expectStatus(t, rr, http.StatusOK, "")

	var payload struct {
		Token    string `json:"token"`
		UserID   string `json:"userId"`
		UserName string `json:"userName"`
		Role     string `json:"role"`
		AppID    string `json:"appId"`
	}
	decode(t, rr, &payload)
	if payload.Token == "" {
		t.Fatalf("expected token")
	}
	if payload.UserID != "alice" || payload.UserName != "Alice" || payload.Role != "user" || payload.AppID != testApp {
		t.Fatalf("unexpected login payload %+v", payload)
	}

	doc, err := f.store.Get(t.Context(), model.PublicStatsPath(testApp, "alice"))
	if err != nil {
		t.Fatalf("expected public stats document: %v", err)
	}
	if doc.String("username_lowercase") != "alice" {
		t.Fatalf("unexpected public stats %v", doc.Data)
	}
	if _, err := f.store.Get(t.Context(), model.ProfilePath(testApp, "alice")); err != nil {
		t.Fatalf("expected private profile document: %v", err)
	}
}

func TestSessionLoginValidation(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/session/login", "", `{"userId":`)
	expectStatus(t, rr, http.StatusBadRequest, "INVALID_BODY")

	rr = f.do(t, http.MethodPost, "/api/session/login", "", map[string]string{"username": "Alice"})
	expectStatus(t, rr, http.StatusUnprocessableEntity, "INVALID_ARGUMENT")

	rr = f.do(t, http.MethodPost, "/api/session/login", "", map[string]string{"userId": "alice", "username": "  "})
	expectStatus(t, rr, http.StatusUnprocessableEntity, "INVALID_ARGUMENT")
}

func TestSessionIntrospection(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/session", "", nil)
	expectStatus(t, rr, http.StatusOK, "")
	var anonymous map[string]any
	decode(t, rr, &anonymous)
	if anonymous["authenticated"] != false {
		t.Fatalf("expected anonymous session, got %v", anonymous)
	}

	token := f.login(t, "admin", "Ops")
	rr = f.do(t, http.MethodGet, "/api/session", token, nil)
	var session map[string]any
	decode(t, rr, &session)
	if session["authenticated"] != true || session["userId"] != "admin" || session["role"] != "admin" {
		t.Fatalf("unexpected session %v", session)
	}
}

func TestProtectedRoutesRequireValidBearer(t *testing.T) {
	f := newFixture(t)
	expired, err := auth.IssueToken([]byte("test-secret"), auth.NewClaims("alice", "Alice", "user", testApp, "jti-1", -time.Minute))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	foreign, err := auth.IssueToken([]byte("other-secret"), auth.NewClaims("alice", "Alice", "user", testApp, "jti-2", time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	cases := map[string]string{
		"missing":      "",
		"garbage":      "not-a-token",
		"expired":      expired,
		"wrong secret": foreign,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			rr := f.do(t, http.MethodGet, "/api/friends", token, nil)
			expectStatus(t, rr, http.StatusUnauthorized, "UNAUTHENTICATED")
		})
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "alice", "Alice")

	expectStatus(t, f.do(t, http.MethodGet, "/api/friends", token, nil), http.StatusOK, "")
	expectStatus(t, f.do(t, http.MethodPost, "/api/session/logout", token, nil), http.StatusOK, "")
	expectStatus(t, f.do(t, http.MethodGet, "/api/friends", token, nil), http.StatusUnauthorized, "UNAUTHENTICATED")
}

func TestAppHeaderMustMatchToken(t *testing.T) {
	f := newFixture(t)
	token := f.login(t, "alice", "Alice")

	req := httptest.NewRequest(http.MethodGet, "/api/friends", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(appHeader, "other-app")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusUnauthorized, "UNAUTHENTICATED")

	req = httptest.NewRequest(http.MethodGet, "/api/friends", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(appHeader, testApp)
	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusOK, "")
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newFixture(t)
	user := f.login(t, "alice", "Alice")
	f.login(t, "bob", "Bob")
	admin := f.login(t, "admin", "Ops")

	body := map[string]string{"userId": "alice", "friendId": "bob"}
	expectStatus(t, f.do(t, http.MethodPost, "/api/admin/friends", user, body), http.StatusForbidden, "FORBIDDEN")

	rr := f.do(t, http.MethodPost, "/api/admin/friends", admin, body)
	expectStatus(t, rr, http.StatusOK, "")
	var result map[string]any
	decode(t, rr, &result)
	if result["outcome"] != "updated" {
		t.Fatalf("expected updated outcome, got %v", result)
	}
}

func TestReindexWithoutSearchIndex(t *testing.T) {
	f := newFixture(t)
	admin := f.login(t, "admin", "Ops")
	expectStatus(t, f.do(t, http.MethodPost, "/api/admin/search/reindex", admin, nil), http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE")
}
