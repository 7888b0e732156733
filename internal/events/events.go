// Package events publishes domain events after successful commits.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	SubjectFriendshipLinked    = "drinkwise.friendship.linked"
	SubjectFriendshipUnlinked  = "drinkwise.friendship.unlinked"
	SubjectInteractionRecorded = "drinkwise.interaction.recorded"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Envelope is the wire form of every event.
type Envelope struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(subject string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", subject, err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Subject:    subject,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}, nil
}

// NATS publishes envelopes on core NATS subjects.
type NATS struct {
	conn *nats.Conn
}

func NewNATS(url, name string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: conn}, nil
}

func (n *NATS) Publish(_ context.Context, subject string, payload any) error {
	envelope, err := newEnvelope(subject, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: body, Header: nats.Header{}}
	msg.Header.Set(nats.MsgIdHdr, envelope.ID)
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (n *NATS) Close() error {
	return n.conn.Drain()
}

type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// Recorder keeps published envelopes in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *Recorder) Publish(_ context.Context, subject string, payload any) error {
	envelope, err := newEnvelope(subject, payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, envelope)
	return nil
}

func (r *Recorder) Events(subjectPrefix string) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Envelope
	for _, event := range r.events {
		if strings.HasPrefix(event.Subject, subjectPrefix) {
			out = append(out, event)
		}
	}
	return out
}
