package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestBuildPostgresQuery(t *testing.T) {
	q := NewQuery("artifacts/app/friend_requests").
		Where("from", OpEqual, "alice").
		Where("status", OpIn, []string{"pending", "accepted"}).
		Order("timestamp", true).
		Take(5)

	query, args, err := buildPostgresQuery(q)
	if err != nil {
		t.Fatalf("buildPostgresQuery: %v", err)
	}
	want := "SELECT path, doc_id, data, create_time FROM documents WHERE collection = $1 AND data @> $2::jsonb AND (data @> $3::jsonb OR data @> $4::jsonb) ORDER BY data->'timestamp' DESC NULLS LAST, path ASC LIMIT 5"
	if query != want {
		t.Fatalf("unexpected query:\n got %s\nwant %s", query, want)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
	if args[1] != `{"from":"alice"}` || args[3] != `{"status":"accepted"}` {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestBuildPostgresQueryRejectsBadField(t *testing.T) {
	q := NewQuery("artifacts/app/feed_interactions").Order("timestamp'; DROP TABLE documents; --", true)
	if err := q.validate(); err == nil {
		t.Fatalf("expected invalid order field to be rejected")
	}
}

func openTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	url := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, url, "../../db/migrations")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection LIKE 'artifacts/pgtest/%'`); err != nil {
		t.Fatalf("reset documents: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresBatchIsAtomic(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()

	seed := NewBatch().Set("artifacts/pgtest/public_user_stats/a", map[string]any{"friends": []string{}})
	if err := s.Commit(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	failing := NewBatch().
		ArrayUnion("artifacts/pgtest/public_user_stats/a", "friends", "b").
		ArrayUnion("artifacts/pgtest/public_user_stats/missing", "friends", "a")
	if err := s.Commit(ctx, failing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	doc, err := s.Get(ctx, "artifacts/pgtest/public_user_stats/a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := doc.Strings("friends"); len(got) != 0 {
		t.Fatalf("expected rollback, got friends %v", got)
	}
}
