package model

import (
	"time"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/store"
)

type EdgeSource string

const (
	EdgeFromRequest  EdgeSource = "request"
	EdgeFromForce    EdgeSource = "force"
	EdgeFromRepair   EdgeSource = "repair"
	EdgeFromBackfill EdgeSource = "backfill"
)

// FriendEdge is the authoritative record of a friendship, keyed by the
// unordered pair. Users is kept sorted.
type FriendEdge struct {
	Users  [2]string  `json:"users"`
	Source EdgeSource `json:"source"`
	Since  time.Time  `json:"since"`
}

func NewFriendEdge(a, b string, source EdgeSource) (FriendEdge, error) {
	if a == "" || b == "" {
		return FriendEdge{}, apperr.New(apperr.InvalidArgument, "both users are required")
	}
	if a == b {
		return FriendEdge{}, apperr.New(apperr.InvalidArgument, "a user cannot befriend themselves")
	}
	if b < a {
		a, b = b, a
	}
	return FriendEdge{Users: [2]string{a, b}, Source: source}, nil
}

func (e FriendEdge) Other(userID string) string {
	if e.Users[0] == userID {
		return e.Users[1]
	}
	return e.Users[0]
}

func (e FriendEdge) Data() map[string]any {
	return map[string]any{
		"users":  []string{e.Users[0], e.Users[1]},
		"userA":  e.Users[0],
		"userB":  e.Users[1],
		"source": string(e.Source),
		"since":  timestampValue(e.Since),
	}
}

func FriendEdgeFromDocument(doc store.Document) FriendEdge {
	return FriendEdge{
		Users:  [2]string{doc.String("userA"), doc.String("userB")},
		Source: EdgeSource(doc.String("source")),
		Since:  documentTime(doc, "since"),
	}
}
