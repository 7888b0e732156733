package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"drinkwise/api/internal/analysis"
	"drinkwise/api/internal/cache"
	"drinkwise/api/internal/config"
	"drinkwise/api/internal/feed"
	"drinkwise/api/internal/friendship"
	"drinkwise/api/internal/media"
	"drinkwise/api/internal/notify"
	"drinkwise/api/internal/profile"
	"drinkwise/api/internal/search"
	"drinkwise/api/internal/store"
)

const testApp = "test-app"

// pingStore overrides Ping of an otherwise real store.
type pingStore struct {
	store.Store
	pingFn func(context.Context) error
}

func (p pingStore) Ping(ctx context.Context) error {
	if p.pingFn != nil {
		return p.pingFn(ctx)
	}
	return p.Store.Ping(ctx)
}

type fakeMedia struct {
	putFn func(ownerID, contentType string, body []byte) (media.Object, error)
	getFn func(key string) ([]byte, string, error)
}

func (f fakeMedia) Put(_ context.Context, ownerID, contentType string, body io.Reader, _ int64) (media.Object, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return media.Object{}, err
	}
	return f.putFn(ownerID, contentType, raw)
}

func (f fakeMedia) Get(_ context.Context, key string) ([]byte, string, error) {
	return f.getFn(key)
}

type fixture struct {
	handler http.Handler
	service *Service
	store   store.Store
}

type fixtureOption func(*config.Config, *Deps)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	st, err := store.OpenPebbleInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	mr := miniredis.RunT(t)
	backend := cache.NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	cfg := config.Config{
		AppID:      testApp,
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		CORSOrigin: "*",
		AdminUsers: []string{"admin"},
	}
	notifications := notify.NewService(st, notify.DefaultCap, nil)
	gateway := feed.NewGateway(st,
		feed.WithFriendCache(cache.New(backend, "friends", time.Minute)),
		feed.WithNotifier(notifications),
	)
	deps := Deps{
		Store: st,
		Friends: friendship.NewManager(st,
			friendship.WithInvalidator(gateway),
			friendship.WithNotifier(notifications),
		),
		Feed:          gateway,
		Notifications: notifications,
		Profiles:      profile.NewService(st, search.NewService(nil, search.NewStoreScan(st), nil), nil),
		Analysis:      analysis.NewService(nil, nil),
		Revoked:       cache.New(backend, "revoked", time.Hour),
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	svc := New(cfg, deps)
	return &fixture{handler: NewHTTPServer(svc, cfg.CORSOrigin).Handler(), service: svc, store: deps.Store}
}

// do sends body as JSON unless it is already a string.
func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) login(t *testing.T, userID, username string) string {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/api/session/login", "", map[string]string{"userId": userID, "username": username})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body=%s", userID, rr.Code, rr.Body.String())
	}
	var payload struct {
		Token string `json:"token"`
	}
	decode(t, rr, &payload)
	return payload.Token
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	if code == "" {
		return
	}
	var payload map[string]any
	decode(t, rr, &payload)
	if payload["code"] != code {
		t.Fatalf("expected code %s, got %v", code, payload["code"])
	}
}
