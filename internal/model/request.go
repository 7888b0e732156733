package model

import (
	"strings"
	"time"

	"drinkwise/api/internal/store"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
)

const defaultUsername = "User"

type FriendRequest struct {
	ID           string        `json:"id"`
	From         string        `json:"from" validate:"required"`
	To           string        `json:"to" validate:"required,nefield=From"`
	Status       RequestStatus `json:"status" validate:"required,oneof=pending accepted"`
	FromUsername string        `json:"fromUsername"`
	ToUsername   string        `json:"toUsername"`
	Timestamp    time.Time     `json:"timestamp"`
}

func NewFriendRequest(from, to, fromUsername, toUsername string) (FriendRequest, error) {
	request := FriendRequest{
		From:         strings.TrimSpace(from),
		To:           strings.TrimSpace(to),
		Status:       RequestPending,
		FromUsername: usernameOrDefault(fromUsername),
		ToUsername:   usernameOrDefault(toUsername),
	}
	if err := Validate(request); err != nil {
		return FriendRequest{}, err
	}
	return request, nil
}

func (r FriendRequest) Data() map[string]any {
	return map[string]any{
		"from":         r.From,
		"to":           r.To,
		"status":       string(r.Status),
		"fromUsername": r.FromUsername,
		"toUsername":   r.ToUsername,
		"timestamp":    timestampValue(r.Timestamp),
	}
}

func FriendRequestFromDocument(doc store.Document) FriendRequest {
	return FriendRequest{
		ID:           doc.ID,
		From:         doc.String("from"),
		To:           doc.String("to"),
		Status:       RequestStatus(doc.String("status")),
		FromUsername: doc.String("fromUsername"),
		ToUsername:   doc.String("toUsername"),
		Timestamp:    documentTime(doc, "timestamp"),
	}
}

func usernameOrDefault(username string) string {
	if trimmed := strings.TrimSpace(username); trimmed != "" {
		return trimmed
	}
	return defaultUsername
}
