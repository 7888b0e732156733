package model

import (
	"strings"

	"drinkwise/api/internal/store"
)

// FriendRecord is one copy of a user's friend list: either the public stats
// document or the private profile.
type FriendRecord struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username,omitempty"`
	Friends  []string `json:"friends"`
}

func FriendRecordFromDocument(userID string, doc store.Document) FriendRecord {
	return FriendRecord{
		UserID:   userID,
		Username: doc.String("username"),
		Friends:  doc.Strings("friends"),
	}
}

func (r FriendRecord) HasFriend(userID string) bool {
	for _, friend := range r.Friends {
		if friend == userID {
			return true
		}
	}
	return false
}

func (r FriendRecord) FriendSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.Friends))
	for _, friend := range r.Friends {
		set[friend] = struct{}{}
	}
	return set
}

type NewUser struct {
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username" validate:"required,notblank,max=64"`
}

func (u NewUser) PublicStatsData() map[string]any {
	username := strings.TrimSpace(u.Username)
	return map[string]any{
		"userId":             u.UserID,
		"username":           username,
		"username_lowercase": strings.ToLower(username),
		"friends":            []string{},
	}
}

func (u NewUser) ProfileData() map[string]any {
	return map[string]any{
		"userId":  u.UserID,
		"friends": []string{},
	}
}
