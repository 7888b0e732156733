package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"drinkwise/api/internal/apperr"
)

// Service is the facade that tries Meilisearch first and falls back to a
// store scan.
type Service struct {
	meili    *Meili
	fallback Searcher
	log      *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback Searcher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{meili: meili, fallback: fallback, log: log}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: results, Query: q.Text}
		}
		s.log.Warn("meilisearch error, falling back to store scan", zap.Error(err))
	}

	results, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Error("store scan search failed", zap.Error(err))
		return Response{Results: []Result{}, Query: q.Text}
	}
	return Response{Results: results, Query: q.Text}
}

// IndexUser indexes a user (fire-and-forget to Meilisearch).
func (s *Service) IndexUser(user UserRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexUser(user); err != nil {
			s.log.Warn("index user failed", zap.String("user_id", user.UserID), zap.Error(err))
		}
	}()
}

type userLister interface {
	Users(ctx context.Context, appID string) ([]UserRecord, error)
}

// Reindex pushes every user of appID to Meilisearch, catching up on users
// created while the index was unreachable.
func (s *Service) Reindex(ctx context.Context, appID string) (int, error) {
	if s.meili == nil || !s.meili.Healthy() {
		return 0, apperr.New(apperr.DependencyUnavailable, "search index is unavailable")
	}
	lister, ok := s.fallback.(userLister)
	if !ok {
		return 0, fmt.Errorf("reindex: fallback cannot list users")
	}
	users, err := lister.Users(ctx, appID)
	if err != nil {
		return 0, err
	}
	if err := s.meili.IndexUsers(users); err != nil {
		return 0, apperr.Wrap(apperr.DependencyUnavailable, "index users", err)
	}
	s.log.Info("search index rebuilt", zap.String("app_id", appID), zap.Int("users", len(users)))
	return len(users), nil
}

// Close stops the Meilisearch health monitor, if any.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}
