package model

import (
	"time"

	"drinkwise/api/internal/store"
)

type NotificationType string

const (
	NotificationLike           NotificationType = "like"
	NotificationComment        NotificationType = "comment"
	NotificationFriendRequest  NotificationType = "friend_request"
	NotificationFriendAccepted NotificationType = "friend_accepted"
)

type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type" validate:"required,oneof=like comment friend_request friend_accepted"`
	Data      map[string]any   `json:"data"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
	Displayed bool             `json:"displayed"`
}

func NewNotification(typ NotificationType, data map[string]any, message string) (Notification, error) {
	if data == nil {
		data = map[string]any{}
	}
	notification := Notification{Type: typ, Data: data, Message: message}
	if err := Validate(notification); err != nil {
		return Notification{}, err
	}
	return notification, nil
}

func (n Notification) DocumentData() map[string]any {
	var message any
	if n.Message != "" {
		message = n.Message
	}
	return map[string]any{
		"type":      string(n.Type),
		"data":      n.Data,
		"message":   message,
		"timestamp": timestampValue(n.Timestamp),
		"read":      n.Read,
		"displayed": n.Displayed,
	}
}

func NotificationFromDocument(doc store.Document) Notification {
	data := doc.Map("data")
	if data == nil {
		data = map[string]any{}
	}
	return Notification{
		ID:        doc.ID,
		Type:      NotificationType(doc.String("type")),
		Data:      data,
		Message:   doc.String("message"),
		Timestamp: documentTime(doc, "timestamp"),
		Read:      doc.Bool("read"),
		Displayed: doc.Bool("displayed"),
	}
}
