// Package profile creates and reads the per-user documents the friendship
// and feed components depend on.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/model"
	"drinkwise/api/internal/search"
	"drinkwise/api/internal/store"
)

type Directory interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexUser(user search.UserRecord)
}

type Service struct {
	store     store.Store
	directory Directory
	log       *zap.Logger
}

func NewService(st store.Store, directory Directory, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: st, directory: directory, log: log}
}

// Ensure creates the public stats and private profile documents of a user
// when they are missing. Existing documents are left untouched, except that
// a missing private copy is seeded from the public friend list.
func (s *Service) Ensure(ctx context.Context, appID, userID, username string) (model.FriendRecord, error) {
	userID, username = strings.TrimSpace(userID), strings.TrimSpace(username)
	user := model.NewUser{UserID: userID, Username: username}
	if err := model.Validate(user); err != nil {
		return model.FriendRecord{}, err
	}

	public, publicFound, err := s.get(ctx, model.PublicStatsPath(appID, userID))
	if err != nil {
		return model.FriendRecord{}, err
	}
	_, privateFound, err := s.get(ctx, model.ProfilePath(appID, userID))
	if err != nil {
		return model.FriendRecord{}, err
	}

	batch := store.NewBatch()
	record := model.FriendRecord{UserID: userID, Username: user.Username, Friends: []string{}}
	if publicFound {
		record = model.FriendRecordFromDocument(userID, public)
	} else {
		batch.Create(model.PublicStatsPath(appID, userID), user.PublicStatsData())
	}
	if !privateFound {
		data := user.ProfileData()
		data["friends"] = record.Friends
		batch.Create(model.ProfilePath(appID, userID), data)
	}

	if batch.Len() > 0 {
		err := s.store.Commit(ctx, batch)
		switch {
		case errors.Is(err, store.ErrAlreadyExists):
			// A concurrent Ensure created the documents first.
			return s.Get(ctx, appID, userID)
		case err != nil:
			return model.FriendRecord{}, fmt.Errorf("create profile: %w", err)
		}
		s.log.Info("profile created",
			zap.String("app_id", appID),
			zap.String("user_id", userID),
			zap.Bool("public", !publicFound),
			zap.Bool("private", !privateFound),
		)
	}

	if s.directory != nil {
		s.directory.IndexUser(search.NewUserRecord(appID, userID, record.Username))
	}
	return record, nil
}

// Get returns the public record of a user.
func (s *Service) Get(ctx context.Context, appID, userID string) (model.FriendRecord, error) {
	doc, found, err := s.get(ctx, model.PublicStatsPath(appID, userID))
	if err != nil {
		return model.FriendRecord{}, err
	}
	if !found {
		return model.FriendRecord{}, apperr.WithDetails(apperr.NotFound, "user not found", map[string]string{"userId": userID})
	}
	return model.FriendRecordFromDocument(userID, doc), nil
}

// Search finds users by username prefix. The caller is left out.
func (s *Service) Search(ctx context.Context, appID, viewerID, text string, limit int) ([]search.Result, error) {
	if s.directory == nil {
		return []search.Result{}, nil
	}
	resp := s.directory.Search(ctx, search.Query{AppID: appID, Text: text, Limit: limit})
	out := make([]search.Result, 0, len(resp.Results))
	for _, result := range resp.Results {
		if result.UserID == viewerID {
			continue
		}
		out = append(out, result)
	}
	return out, nil
}

func (s *Service) get(ctx context.Context, path string) (store.Document, bool, error) {
	doc, err := s.store.Get(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return store.Document{}, false, nil
	}
	if err != nil {
		return store.Document{}, false, fmt.Errorf("load %s: %w", path, err)
	}
	return doc, true, nil
}
