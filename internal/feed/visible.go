package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/model"
	"drinkwise/api/internal/store"
)

// Record is the public view of one interaction.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content,omitempty"`
}

// Interactions groups the visible interactions of an item. Lists are never
// nil; Reactions only holds the kinds without a list of their own and is
// left out when empty.
type Interactions struct {
	Likes           []Record            `json:"likes"`
	Congratulations []Record            `json:"congratulations"`
	Comments        []Record            `json:"comments"`
	Reactions       map[string][]Record `json:"reactions,omitempty"`
}

func emptyInteractions() Interactions {
	return Interactions{
		Likes:           []Record{},
		Congratulations: []Record{},
		Comments:        []Record{},
	}
}

// Visible returns the interactions on itemID that viewerID may see, newest
// first: the viewer's own, and those of friends according to the policy.
func (g *Gateway) Visible(ctx context.Context, appID, viewerID, itemID string) (Interactions, error) {
	if strings.TrimSpace(viewerID) == "" {
		return Interactions{}, apperr.New(apperr.Unauthenticated, "viewer is required")
	}
	if strings.TrimSpace(appID) == "" || strings.TrimSpace(itemID) == "" {
		return Interactions{}, apperr.New(apperr.InvalidArgument, "appId and itemId are required")
	}

	viewerFriends, err := g.friendsOf(ctx, appID, viewerID)
	if err != nil {
		return Interactions{}, err
	}

	q := store.NewQuery(model.InteractionsCollection(appID)).
		Where("itemId", store.OpEqual, itemID).
		Order("timestamp", true)
	docs, err := g.store.Query(ctx, q)
	if err != nil {
		return Interactions{}, fmt.Errorf("query interactions: %w", err)
	}

	out := emptyInteractions()
	decided := map[string]bool{viewerID: true}
	for _, doc := range docs {
		interaction := model.InteractionFromDocument(doc)
		visible, ok := decided[interaction.UserID]
		if !ok {
			visible, err = g.canSee(ctx, appID, viewerID, viewerFriends, interaction.UserID)
			if err != nil {
				return Interactions{}, err
			}
			decided[interaction.UserID] = visible
		}
		if !visible {
			continue
		}
		out.add(interaction)
	}

	g.log.Debug("interactions filtered",
		zap.String("app_id", appID),
		zap.String("item_id", itemID),
		zap.String("viewer_id", viewerID),
		zap.Int("total", len(docs)),
	)
	return out, nil
}

func (g *Gateway) canSee(ctx context.Context, appID, viewerID string, viewerFriends map[string]struct{}, authorID string) (bool, error) {
	if _, ok := viewerFriends[authorID]; !ok {
		return false, nil
	}
	if g.policy == PolicyRelaxed {
		return true, nil
	}
	authorFriends, err := g.friendsOf(ctx, appID, authorID)
	if err != nil {
		return false, err
	}
	_, ok := authorFriends[viewerID]
	return ok, nil
}

func (i *Interactions) add(interaction model.Interaction) {
	record := Record{ID: interaction.ID, UserID: interaction.UserID, Timestamp: interaction.Timestamp}
	switch interaction.Type {
	case model.InteractionLike:
		i.Likes = append(i.Likes, record)
	case model.InteractionCongratulate:
		i.Congratulations = append(i.Congratulations, record)
	case model.InteractionComment:
		record.Content = interaction.Content
		i.Comments = append(i.Comments, record)
	default:
		if !interaction.Type.IsReaction() {
			return
		}
		if i.Reactions == nil {
			i.Reactions = map[string][]Record{}
		}
		i.Reactions[string(interaction.Type)] = append(i.Reactions[string(interaction.Type)], record)
	}
}
