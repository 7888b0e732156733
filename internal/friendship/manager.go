// Package friendship keeps the four friend-list copies of every pair of
// users consistent with the authoritative friendship edges.
//
// Each user has a public stats document and an optional private profile
// document, both carrying a friends array. Every mutation updates the
// arrays with union or difference writes and the edge document in a single
// batch, so repeated or concurrent calls converge to the same state.
package friendship

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/events"
	"drinkwise/api/internal/model"
	"drinkwise/api/internal/store"
)

type Outcome string

const (
	OutcomeUpdated Outcome = "updated"
	OutcomeNoOp    Outcome = "no-op"
	OutcomeRemoved Outcome = "removed"
)

// FriendSetInvalidator drops cached friend sets after a mutation.
type FriendSetInvalidator interface {
	InvalidateFriends(ctx context.Context, appID string, userIDs ...string)
}

// Notifier delivers the friend request notifications.
type Notifier interface {
	FriendRequestSent(ctx context.Context, appID, fromID, toID string)
	FriendRequestAccepted(ctx context.Context, appID, fromID, toID string)
}

type Manager struct {
	store       store.Store
	events      events.Publisher
	invalidator FriendSetInvalidator
	notifier    Notifier
	log         *zap.Logger
}

type Option func(*Manager)

func WithEvents(publisher events.Publisher) Option {
	return func(m *Manager) {
		if publisher != nil {
			m.events = publisher
		}
	}
}

func WithInvalidator(invalidator FriendSetInvalidator) Option {
	return func(m *Manager) { m.invalidator = invalidator }
}

func WithNotifier(notifier Notifier) Option {
	return func(m *Manager) { m.notifier = notifier }
}

func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

func NewManager(st store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  st,
		events: events.Nop{},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Result is the outcome of a single pair operation.
type Result struct {
	Outcome         Outcome  `json:"outcome"`
	UserID          string   `json:"userId"`
	FriendID        string   `json:"friendId"`
	RequestID       string   `json:"requestId,omitempty"`
	SkippedProfiles []string `json:"skippedProfiles,omitempty"`
}

// userCopies holds whichever friend records of a user exist.
type userCopies struct {
	userID     string
	public     model.FriendRecord
	hasPublic  bool
	private    model.FriendRecord
	hasPrivate bool
}

func (u userCopies) listsPublic(friendID string) bool {
	return u.hasPublic && u.public.HasFriend(friendID)
}

func (u userCopies) listsPrivate(friendID string) bool {
	return u.hasPrivate && u.private.HasFriend(friendID)
}

func (m *Manager) loadUser(ctx context.Context, appID, userID string) (userCopies, error) {
	copies := userCopies{userID: userID}

	doc, found, err := m.getOptional(ctx, model.PublicStatsPath(appID, userID))
	if err != nil {
		return copies, err
	}
	if found {
		copies.public = model.FriendRecordFromDocument(userID, doc)
		copies.hasPublic = true
	}

	doc, found, err = m.getOptional(ctx, model.ProfilePath(appID, userID))
	if err != nil {
		return copies, err
	}
	if found {
		copies.private = model.FriendRecordFromDocument(userID, doc)
		copies.hasPrivate = true
	}
	return copies, nil
}

// loadExistingUser is loadUser for operations that need the public record.
func (m *Manager) loadExistingUser(ctx context.Context, appID, userID string) (userCopies, error) {
	copies, err := m.loadUser(ctx, appID, userID)
	if err != nil {
		return copies, err
	}
	if !copies.hasPublic {
		return copies, userNotFound(userID)
	}
	return copies, nil
}

func (m *Manager) edgeExists(ctx context.Context, appID, a, b string) (bool, error) {
	_, found, err := m.getOptional(ctx, model.FriendshipPath(appID, a, b))
	return found, err
}

func (m *Manager) getOptional(ctx context.Context, path string) (store.Document, bool, error) {
	doc, err := m.store.Get(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return store.Document{}, false, nil
	}
	if err != nil {
		return store.Document{}, false, fmt.Errorf("load %s: %w", path, err)
	}
	return doc, true, nil
}

// linkPlan adds the writes that make a and b mutual friends everywhere.
// changed is false when every existing copy and the edge already agree.
type linkPlan struct {
	changed bool
	skipped []string
}

func planLink(batch *store.Batch, appID string, a, b userCopies, edgeFound bool, source model.EdgeSource) (linkPlan, error) {
	var plan linkPlan
	pairs := []struct{ self, other userCopies }{{a, b}, {b, a}}
	for _, pair := range pairs {
		self, otherID := pair.self, pair.other.userID
		batch.ArrayUnion(model.PublicStatsPath(appID, self.userID), "friends", otherID)
		if !self.listsPublic(otherID) {
			plan.changed = true
		}
		if !self.hasPrivate {
			plan.skipped = append(plan.skipped, self.userID)
			continue
		}
		batch.ArrayUnion(model.ProfilePath(appID, self.userID), "friends", otherID)
		if !self.listsPrivate(otherID) {
			plan.changed = true
		}
	}
	if !edgeFound {
		edge, err := model.NewFriendEdge(a.userID, b.userID, source)
		if err != nil {
			return plan, err
		}
		batch.Set(model.FriendshipPath(appID, a.userID, b.userID), edge.Data())
		plan.changed = true
	}
	return plan, nil
}

// planUnlink removes a and b from each other's existing copies and drops
// the edge.
func planUnlink(batch *store.Batch, appID string, a, b userCopies, edgeFound bool) bool {
	changed := edgeFound
	pairs := []struct{ self, other userCopies }{{a, b}, {b, a}}
	for _, pair := range pairs {
		self, otherID := pair.self, pair.other.userID
		if self.hasPublic {
			batch.ArrayRemove(model.PublicStatsPath(appID, self.userID), "friends", otherID)
			changed = changed || self.listsPublic(otherID)
		}
		if self.hasPrivate {
			batch.ArrayRemove(model.ProfilePath(appID, self.userID), "friends", otherID)
			changed = changed || self.listsPrivate(otherID)
		}
	}
	batch.Delete(model.FriendshipPath(appID, a.userID, b.userID))
	return changed
}

func (m *Manager) commit(ctx context.Context, batch *store.Batch) error {
	err := m.store.Commit(ctx, batch)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, "a referenced document disappeared", err)
	case errors.Is(err, store.ErrAlreadyExists):
		return apperr.Wrap(apperr.Conflict, "document already exists", err)
	default:
		return fmt.Errorf("commit friendship batch: %w", err)
	}
}

type pairEvent struct {
	AppID  string    `json:"appId"`
	Users  [2]string `json:"users"`
	Source string    `json:"source,omitempty"`
}

// afterCommit runs the side effects of a committed pair mutation. Failures
// are logged and never returned.
func (m *Manager) afterCommit(ctx context.Context, appID, subject string, source model.EdgeSource, a, b string) {
	if m.invalidator != nil {
		m.invalidator.InvalidateFriends(ctx, appID, a, b)
	}
	payload := pairEvent{AppID: appID, Users: [2]string{a, b}, Source: string(source)}
	if err := m.events.Publish(ctx, subject, payload); err != nil {
		m.log.Warn("friendship event not published",
			zap.String("subject", subject),
			zap.String("user_id", a),
			zap.String("friend_id", b),
			zap.Error(err),
		)
	}
}

func (m *Manager) logSkipped(op string, skipped []string) {
	for _, userID := range skipped {
		m.log.Info("private profile missing, copy skipped",
			zap.String("op", op),
			zap.String("user_id", userID),
		)
	}
}

func validatePair(userID, friendID string) error {
	if userID == "" || friendID == "" {
		return apperr.New(apperr.InvalidArgument, "userId and friendId are required")
	}
	if userID == friendID {
		return apperr.New(apperr.InvalidArgument, "a user cannot befriend themselves")
	}
	return nil
}

func userNotFound(userID string) error {
	return apperr.WithDetails(apperr.NotFound, "user not found", map[string]string{"userId": userID})
}
