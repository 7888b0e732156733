// Package feed records interactions on feed items and filters them down to
// what a viewer may see.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"drinkwise/api/internal/cache"
	"drinkwise/api/internal/events"
	"drinkwise/api/internal/model"
	"drinkwise/api/internal/store"
)

// Policy decides how much of a friendship is required to see an
// interaction.
type Policy string

const (
	// PolicyStrict requires both users to list each other.
	PolicyStrict Policy = "strict"
	// PolicyRelaxed accepts the viewer listing the author.
	PolicyRelaxed Policy = "relaxed"
)

func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyRelaxed:
		return PolicyRelaxed, nil
	default:
		return "", fmt.Errorf("unknown feed visibility policy %q", value)
	}
}

// Notifier is told about every interaction that was added.
type Notifier interface {
	InteractionAdded(ctx context.Context, appID string, interaction model.Interaction)
}

type Gateway struct {
	store    store.Store
	friends  *cache.Cache
	policy   Policy
	notifier Notifier
	events   events.Publisher
	log      *zap.Logger
}

type Option func(*Gateway)

// WithFriendCache caches resolved friend sets. Without it every call reads
// the store.
func WithFriendCache(c *cache.Cache) Option {
	return func(g *Gateway) {
		if c != nil {
			g.friends = c
		}
	}
}

func WithPolicy(policy Policy) Option {
	return func(g *Gateway) { g.policy = policy }
}

func WithNotifier(notifier Notifier) Option {
	return func(g *Gateway) { g.notifier = notifier }
}

func WithEvents(publisher events.Publisher) Option {
	return func(g *Gateway) {
		if publisher != nil {
			g.events = publisher
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(g *Gateway) {
		if log != nil {
			g.log = log
		}
	}
}

func NewGateway(st store.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:   st,
		friends: cache.New(nil, "friends", 0),
		policy:  PolicyStrict,
		events:  events.Nop{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Policy() Policy {
	return g.policy
}

type friendSet struct {
	Friends []string `json:"friends"`
}

// friendsOf returns the public friend set of userID. A missing stats
// document is an empty set.
func (g *Gateway) friendsOf(ctx context.Context, appID, userID string) (map[string]struct{}, error) {
	key := appID + ":" + userID
	var cached friendSet
	found, err := g.friends.Get(ctx, key, &cached)
	if err != nil {
		g.log.Warn("friend cache read failed", zap.String("user_id", userID), zap.Error(err))
	}
	if found {
		return toSet(cached.Friends), nil
	}

	var friends []string
	doc, err := g.store.Get(ctx, model.PublicStatsPath(appID, userID))
	switch {
	case errors.Is(err, store.ErrNotFound):
		friends = []string{}
	case err != nil:
		return nil, fmt.Errorf("load friends of %s: %w", userID, err)
	default:
		friends = model.FriendRecordFromDocument(userID, doc).Friends
	}

	if err := g.friends.Set(ctx, key, friendSet{Friends: friends}); err != nil {
		g.log.Warn("friend cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return toSet(friends), nil
}

// InvalidateFriends drops the cached friend sets of the given users.
func (g *Gateway) InvalidateFriends(ctx context.Context, appID string, userIDs ...string) {
	keys := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		keys = append(keys, appID+":"+userID)
	}
	if err := g.friends.Invalidate(ctx, keys...); err != nil {
		g.log.Warn("friend cache invalidation failed", zap.Strings("user_ids", userIDs), zap.Error(err))
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}
