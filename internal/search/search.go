// Package search finds users by username for friend discovery.
package search

import (
	"context"
	"strings"
)

// Result is a single user hit.
type Result struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Query describes a search request. Text matches a username prefix,
// case-insensitively.
type Query struct {
	AppID string
	Text  string
	Limit int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Query   string   `json:"query"`
}

// Searcher can execute a user search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, error)
	Healthy() bool
}

// UserRecord is the data we index for a user.
type UserRecord struct {
	ID                string `json:"id"`
	AppID             string `json:"appId"`
	UserID            string `json:"userId"`
	Username          string `json:"username"`
	UsernameLowercase string `json:"username_lowercase"`
}

func NewUserRecord(appID, userID, username string) UserRecord {
	username = strings.TrimSpace(username)
	return UserRecord{
		ID:                recordID(appID, userID),
		AppID:             appID,
		UserID:            userID,
		Username:          username,
		UsernameLowercase: strings.ToLower(username),
	}
}

// recordID builds a primary key that only uses the characters Meilisearch
// accepts.
func recordID(appID, userID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, appID+"__"+userID)
}

const defaultLimit = 20

func normalize(q Query) Query {
	q.Text = strings.ToLower(strings.TrimSpace(q.Text))
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = defaultLimit
	}
	return q
}
