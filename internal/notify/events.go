package notify

import (
	"context"

	"go.uber.org/zap"

	"drinkwise/api/internal/model"
)

// The helpers below never return errors: a notification that cannot be
// written must not fail the operation that caused it.

// InteractionAdded notifies the owner of an item about a like or a comment
// left by someone else.
func (s *Service) InteractionAdded(ctx context.Context, appID string, interaction model.Interaction) {
	if interaction.UserID == interaction.OwnerID {
		return
	}
	var typ model.NotificationType
	switch interaction.Type {
	case model.InteractionLike:
		typ = model.NotificationLike
	case model.InteractionComment:
		typ = model.NotificationComment
	default:
		return
	}

	data := map[string]any{
		"userName":  s.ActorName(ctx, appID, interaction.UserID),
		"userId":    interaction.UserID,
		"itemId":    interaction.ItemID,
		"itemType":  string(interaction.ItemType),
		"itemTitle": s.ItemTitle(ctx, appID, interaction.OwnerID, interaction.ItemID),
	}
	if typ == model.NotificationComment {
		data["content"] = interaction.Content
	}
	s.createQuietly(ctx, appID, interaction.OwnerID, typ, data)
}

func (s *Service) FriendRequestSent(ctx context.Context, appID, fromID, toID string) {
	s.createQuietly(ctx, appID, toID, model.NotificationFriendRequest, map[string]any{
		"userName":  s.ActorName(ctx, appID, fromID),
		"userId":    fromID,
		"requestId": fromID + "_" + toID,
	})
}

func (s *Service) FriendRequestAccepted(ctx context.Context, appID, fromID, toID string) {
	s.createQuietly(ctx, appID, fromID, model.NotificationFriendAccepted, map[string]any{
		"userName": s.ActorName(ctx, appID, toID),
		"userId":   toID,
	})
}

func (s *Service) createQuietly(ctx context.Context, appID, userID string, typ model.NotificationType, data map[string]any) {
	if _, err := s.Create(ctx, appID, userID, typ, data, ""); err != nil {
		s.log.Warn("notification failed",
			zap.String("user_id", userID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
	}
}
