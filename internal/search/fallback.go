package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"drinkwise/api/internal/model"
	"drinkwise/api/internal/store"
)

// StoreScan implements Searcher over the public stats documents. The
// document store has no prefix operator, so matching happens after the
// collection is read.
type StoreScan struct {
	store store.Store
}

func NewStoreScan(st store.Store) *StoreScan {
	return &StoreScan{store: st}
}

// Healthy is always true: without the store the whole service is down.
func (s *StoreScan) Healthy() bool {
	return true
}

func (s *StoreScan) Search(ctx context.Context, q Query) ([]Result, error) {
	q = normalize(q)
	if q.Text == "" {
		return []Result{}, nil
	}
	docs, err := s.store.Query(ctx, store.NewQuery(model.PublicStatsCollection(q.AppID)))
	if err != nil {
		return nil, fmt.Errorf("scan public stats: %w", err)
	}

	type hit struct {
		lower  string
		result Result
	}
	var hits []hit
	for _, doc := range docs {
		username := doc.String("username")
		lower := doc.String("username_lowercase")
		if lower == "" {
			lower = strings.ToLower(username)
		}
		if !strings.HasPrefix(lower, q.Text) {
			continue
		}
		hits = append(hits, hit{lower: lower, result: Result{UserID: doc.ID, Username: username}})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].lower < hits[j].lower })

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if len(results) == q.Limit {
			break
		}
		results = append(results, h.result)
	}
	return results, nil
}

// Users lists every user of appID in index form.
func (s *StoreScan) Users(ctx context.Context, appID string) ([]UserRecord, error) {
	docs, err := s.store.Query(ctx, store.NewQuery(model.PublicStatsCollection(appID)))
	if err != nil {
		return nil, fmt.Errorf("list public stats: %w", err)
	}
	users := make([]UserRecord, 0, len(docs))
	for _, doc := range docs {
		if username := doc.String("username"); username != "" {
			users = append(users, NewUserRecord(appID, doc.ID, username))
		}
	}
	return users, nil
}
