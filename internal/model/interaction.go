package model

import (
	"strings"
	"time"

	"drinkwise/api/internal/store"
)

type InteractionType string

const (
	InteractionLike         InteractionType = "like"
	InteractionLove         InteractionType = "love"
	InteractionHaha         InteractionType = "haha"
	InteractionWow          InteractionType = "wow"
	InteractionSad          InteractionType = "sad"
	InteractionAngry        InteractionType = "angry"
	InteractionCongratulate InteractionType = "congratulate"
	InteractionComment      InteractionType = "comment"
)

// ReactionTypes lists the single-valued interaction kinds.
var ReactionTypes = []InteractionType{
	InteractionLike,
	InteractionLove,
	InteractionHaha,
	InteractionWow,
	InteractionSad,
	InteractionAngry,
	InteractionCongratulate,
}

func (t InteractionType) IsReaction() bool {
	for _, reaction := range ReactionTypes {
		if t == reaction {
			return true
		}
	}
	return false
}

func (t InteractionType) Valid() bool {
	return t == InteractionComment || t.IsReaction()
}

type ItemType string

const (
	ItemParty ItemType = "party"
	ItemBadge ItemType = "badge"
)

type Interaction struct {
	ID        string          `json:"id"`
	ItemID    string          `json:"itemId" validate:"required"`
	ItemType  ItemType        `json:"itemType" validate:"required,oneof=party badge"`
	OwnerID   string          `json:"ownerId" validate:"required"`
	UserID    string          `json:"userId" validate:"required"`
	Type      InteractionType `json:"type" validate:"required,oneof=like love haha wow sad angry congratulate comment"`
	Content   string          `json:"content,omitempty" validate:"required_if=Type comment"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewInteraction builds a validated interaction. Comment content is trimmed
// and must not be blank; reactions never carry content.
func NewInteraction(itemID string, itemType ItemType, ownerID, userID string, typ InteractionType, content string) (Interaction, error) {
	interaction := Interaction{
		ItemID:   strings.TrimSpace(itemID),
		ItemType: itemType,
		OwnerID:  strings.TrimSpace(ownerID),
		UserID:   strings.TrimSpace(userID),
		Type:     typ,
	}
	if typ == InteractionComment {
		interaction.Content = strings.TrimSpace(content)
	}
	if err := Validate(interaction); err != nil {
		return Interaction{}, err
	}
	return interaction, nil
}

func (i Interaction) Data() map[string]any {
	data := map[string]any{
		"itemId":    i.ItemID,
		"itemType":  string(i.ItemType),
		"ownerId":   i.OwnerID,
		"userId":    i.UserID,
		"type":      string(i.Type),
		"timestamp": timestampValue(i.Timestamp),
	}
	if i.Type == InteractionComment {
		data["content"] = i.Content
	}
	return data
}

func InteractionFromDocument(doc store.Document) Interaction {
	return Interaction{
		ID:        doc.ID,
		ItemID:    doc.String("itemId"),
		ItemType:  ItemType(doc.String("itemType")),
		OwnerID:   doc.String("ownerId"),
		UserID:    doc.String("userId"),
		Type:      InteractionType(doc.String("type")),
		Content:   doc.String("content"),
		Timestamp: documentTime(doc, "timestamp"),
	}
}

func timestampValue(t time.Time) any {
	if t.IsZero() {
		return store.ServerTimestamp
	}
	return t
}

// documentTime falls back to the creation time for records written before
// the field existed.
func documentTime(doc store.Document, field string) time.Time {
	if t := doc.Time(field); !t.IsZero() {
		return t
	}
	return doc.CreateTime
}
