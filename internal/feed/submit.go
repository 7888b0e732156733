package feed

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/events"
	"drinkwise/api/internal/model"
	"drinkwise/api/internal/store"
	"drinkwise/api/internal/util"
)

type Action string

const (
	ActionAdded        Action = "added"
	ActionRemoved      Action = "removed"
	ActionCommentAdded Action = "commentAdded"
)

type SubmitInput struct {
	AppID    string                `json:"-"`
	ViewerID string                `json:"-"`
	ItemID   string                `json:"itemId"`
	ItemType model.ItemType        `json:"itemType"`
	OwnerID  string                `json:"ownerId"`
	Type     model.InteractionType `json:"type"`
	Content  string                `json:"content,omitempty"`
}

type SubmitResult struct {
	Action Action `json:"action"`
	ID     string `json:"id,omitempty"`
}

type interactionEvent struct {
	AppID   string `json:"appId"`
	ItemID  string `json:"itemId"`
	OwnerID string `json:"ownerId"`
	UserID  string `json:"userId"`
	Type    string `json:"type"`
	Action  string `json:"action"`
}

// Submit records a comment or toggles a reaction. A viewer holds at most one
// reaction per item: the same type again removes it, another type replaces
// it. Reactions live at a per-viewer document id so concurrent submissions
// converge on a single record.
func (g *Gateway) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	if strings.TrimSpace(in.ViewerID) == "" {
		return SubmitResult{}, apperr.New(apperr.Unauthenticated, "viewer is required")
	}
	if strings.TrimSpace(in.AppID) == "" {
		return SubmitResult{}, apperr.New(apperr.InvalidArgument, "appId is required")
	}
	interaction, err := model.NewInteraction(in.ItemID, in.ItemType, in.OwnerID, in.ViewerID, in.Type, in.Content)
	if err != nil {
		return SubmitResult{}, err
	}

	var result SubmitResult
	if interaction.Type == model.InteractionComment {
		result, err = g.addComment(ctx, in.AppID, interaction)
	} else {
		result, err = g.toggleReaction(ctx, in.AppID, interaction)
	}
	if err != nil {
		return SubmitResult{}, err
	}
	interaction.ID = result.ID

	g.log.Info("interaction recorded",
		zap.String("app_id", in.AppID),
		zap.String("item_id", interaction.ItemID),
		zap.String("user_id", interaction.UserID),
		zap.String("type", string(interaction.Type)),
		zap.String("action", string(result.Action)),
	)
	if err := g.events.Publish(ctx, events.SubjectInteractionRecorded, interactionEvent{
		AppID:   in.AppID,
		ItemID:  interaction.ItemID,
		OwnerID: interaction.OwnerID,
		UserID:  interaction.UserID,
		Type:    string(interaction.Type),
		Action:  string(result.Action),
	}); err != nil {
		g.log.Warn("interaction event not published", zap.String("item_id", interaction.ItemID), zap.Error(err))
	}
	if result.Action != ActionRemoved && g.notifier != nil {
		g.notifier.InteractionAdded(ctx, in.AppID, interaction)
	}
	return result, nil
}

func (g *Gateway) addComment(ctx context.Context, appID string, interaction model.Interaction) (SubmitResult, error) {
	id := util.NewDocID()
	batch := store.NewBatch().Create(model.InteractionPath(appID, id), interaction.Data())
	if err := g.store.Commit(ctx, batch); err != nil {
		return SubmitResult{}, fmt.Errorf("add comment: %w", err)
	}
	return SubmitResult{Action: ActionCommentAdded, ID: id}, nil
}

func (g *Gateway) toggleReaction(ctx context.Context, appID string, interaction model.Interaction) (SubmitResult, error) {
	existing, err := g.reactionsOf(ctx, appID, interaction.ItemID, interaction.UserID)
	if err != nil {
		return SubmitResult{}, err
	}

	sameType := false
	for _, doc := range existing {
		if model.InteractionType(doc.String("type")) == interaction.Type {
			sameType = true
		}
	}

	id := model.ReactionID(interaction.ItemID, interaction.UserID)
	path := model.InteractionPath(appID, id)
	batch := store.NewBatch()
	for _, doc := range existing {
		if !sameType && doc.Path == path {
			continue
		}
		batch.Delete(doc.Path)
	}
	if sameType {
		if err := g.store.Commit(ctx, batch); err != nil {
			return SubmitResult{}, fmt.Errorf("remove reaction: %w", err)
		}
		return SubmitResult{Action: ActionRemoved}, nil
	}

	batch.Set(path, interaction.Data())
	if err := g.store.Commit(ctx, batch); err != nil {
		return SubmitResult{}, fmt.Errorf("add reaction: %w", err)
	}
	return SubmitResult{Action: ActionAdded, ID: id}, nil
}

// reactionsOf returns every reaction userID holds on itemID. Legacy data may
// hold more than one.
func (g *Gateway) reactionsOf(ctx context.Context, appID, itemID, userID string) ([]store.Document, error) {
	types := make([]string, len(model.ReactionTypes))
	for i, t := range model.ReactionTypes {
		types[i] = string(t)
	}
	q := store.NewQuery(model.InteractionsCollection(appID)).
		Where("itemId", store.OpEqual, itemID).
		Where("userId", store.OpEqual, userID).
		Where("type", store.OpIn, types)
	docs, err := g.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query reactions: %w", err)
	}
	return docs, nil
}
