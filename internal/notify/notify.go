// Package notify writes in-app notifications and keeps each inbox capped.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/model"
	"drinkwise/api/internal/store"
	"drinkwise/api/internal/util"
)

const (
	DefaultCap         = 50
	DefaultUnreadLimit = 20

	defaultActorName = "Someone"
	defaultItemTitle = "Your party"
)

type Service struct {
	store store.Store
	cap   int
	log   *zap.Logger
}

func NewService(st store.Store, capacity int, log *zap.Logger) *Service {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: st, cap: capacity, log: log}
}

// Create stores a notification for userID and trims the inbox to the
// configured capacity. Trimming failures are logged only.
func (s *Service) Create(ctx context.Context, appID, userID string, typ model.NotificationType, data map[string]any, message string) (model.Notification, error) {
	if userID == "" {
		return model.Notification{}, apperr.New(apperr.InvalidArgument, "recipient is required")
	}
	notification, err := model.NewNotification(typ, data, message)
	if err != nil {
		return model.Notification{}, err
	}
	notification.ID = util.NewDocID()

	batch := store.NewBatch().Create(model.NotificationPath(appID, userID, notification.ID), notification.DocumentData())
	if err := s.store.Commit(ctx, batch); err != nil {
		return model.Notification{}, fmt.Errorf("create notification: %w", err)
	}
	s.log.Debug("notification created",
		zap.String("app_id", appID),
		zap.String("user_id", userID),
		zap.String("type", string(typ)),
	)

	if removed, err := s.Cleanup(ctx, appID, userID); err != nil {
		s.log.Warn("notification cleanup failed", zap.String("user_id", userID), zap.Error(err))
	} else if removed > 0 {
		s.log.Info("old notifications removed", zap.String("user_id", userID), zap.Int("count", removed))
	}
	return notification, nil
}

// Cleanup deletes everything past the newest cap notifications.
func (s *Service) Cleanup(ctx context.Context, appID, userID string) (int, error) {
	docs, err := s.store.Query(ctx, store.NewQuery(model.NotificationsCollection(appID, userID)).Order("timestamp", true))
	if err != nil {
		return 0, fmt.Errorf("list notifications: %w", err)
	}
	if len(docs) <= s.cap {
		return 0, nil
	}
	batch := store.NewBatch()
	for _, doc := range docs[s.cap:] {
		batch.Delete(doc.Path)
	}
	if err := s.store.Commit(ctx, batch); err != nil {
		return 0, fmt.Errorf("delete old notifications: %w", err)
	}
	return batch.Len(), nil
}

func (s *Service) Unread(ctx context.Context, appID, userID string, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = DefaultUnreadLimit
	}
	q := store.NewQuery(model.NotificationsCollection(appID, userID)).
		Where("read", store.OpEqual, false).
		Order("timestamp", true).
		Take(limit)
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list unread notifications: %w", err)
	}
	out := make([]model.Notification, 0, len(docs))
	for _, doc := range docs {
		out = append(out, model.NotificationFromDocument(doc))
	}
	return out, nil
}

func (s *Service) MarkRead(ctx context.Context, appID, userID, notificationID string) error {
	return s.mark(ctx, appID, userID, notificationID, "read")
}

func (s *Service) MarkDisplayed(ctx context.Context, appID, userID, notificationID string) error {
	return s.mark(ctx, appID, userID, notificationID, "displayed")
}

func (s *Service) mark(ctx context.Context, appID, userID, notificationID, field string) error {
	if notificationID == "" {
		return apperr.New(apperr.InvalidArgument, "notification id is required")
	}
	batch := store.NewBatch().Update(model.NotificationPath(appID, userID, notificationID), map[string]any{field: true})
	err := s.store.Commit(ctx, batch)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Newf(apperr.NotFound, "notification %s not found", notificationID)
	}
	if err != nil {
		return fmt.Errorf("mark notification %s: %w", field, err)
	}
	return nil
}

// ActorName is the public username of userID, or a neutral placeholder.
func (s *Service) ActorName(ctx context.Context, appID, userID string) string {
	doc, err := s.store.Get(ctx, model.PublicStatsPath(appID, userID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("actor lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return defaultActorName
	}
	if name := doc.String("username"); name != "" {
		return name
	}
	return defaultActorName
}

// ItemTitle reads the title of a party owned by ownerID.
func (s *Service) ItemTitle(ctx context.Context, appID, ownerID, itemID string) string {
	doc, err := s.store.Get(ctx, model.PartyPath(appID, ownerID, itemID))
	if err != nil {
		return defaultItemTitle
	}
	if title := doc.String("title"); title != "" {
		return title
	}
	return defaultItemTitle
}
