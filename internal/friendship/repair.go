package friendship

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/events"
	"drinkwise/api/internal/model"
	"drinkwise/api/internal/store"
)

type FriendError struct {
	FriendID string `json:"friendId"`
	Error    string `json:"error"`
}

type RepairReport struct {
	UserID          string        `json:"userId"`
	Checked         int           `json:"checked"`
	Fixed           int           `json:"fixed"`
	DanglingRemoved int           `json:"danglingRemoved"`
	ReciprocalAdded int           `json:"reciprocalAdded"`
	SkippedProfiles []string      `json:"skippedProfiles,omitempty"`
	Errors          []FriendError `json:"errors"`
}

// RepairAllForUser walks the user's public friend list. References to users
// that no longer exist are removed; friends missing the reciprocal entry, or
// a private copy or edge, are relinked. Each friend is committed on its own
// and failures are collected in the report.
func (m *Manager) RepairAllForUser(ctx context.Context, appID, userID string) (RepairReport, error) {
	report := RepairReport{UserID: userID, Errors: []FriendError{}}
	if userID == "" {
		return report, apperr.New(apperr.InvalidArgument, "userId is required")
	}
	user, err := m.loadExistingUser(ctx, appID, userID)
	if err != nil {
		return report, err
	}

	for _, friendID := range user.public.Friends {
		report.Checked++
		if friendID == userID {
			if err := m.dropDangling(ctx, appID, user, friendID); err != nil {
				report.addError(friendID, err)
				continue
			}
			report.DanglingRemoved++
			report.Fixed++
			continue
		}
		if err := m.repairOne(ctx, appID, userID, friendID, &report); err != nil {
			report.addError(friendID, err)
		}
	}

	m.log.Info("friend list repaired",
		zap.String("app_id", appID),
		zap.String("user_id", userID),
		zap.Int("checked", report.Checked),
		zap.Int("fixed", report.Fixed),
		zap.Int("dangling_removed", report.DanglingRemoved),
		zap.Int("reciprocal_added", report.ReciprocalAdded),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

func (m *Manager) repairOne(ctx context.Context, appID, userID, friendID string, report *RepairReport) error {
	// Reload per friend: earlier iterations may have changed the user's copies.
	user, err := m.loadExistingUser(ctx, appID, userID)
	if err != nil {
		return err
	}
	friend, err := m.loadUser(ctx, appID, friendID)
	if err != nil {
		return err
	}
	if !friend.hasPublic {
		if err := m.dropDangling(ctx, appID, user, friendID); err != nil {
			return err
		}
		report.DanglingRemoved++
		report.Fixed++
		return nil
	}

	edgeFound, err := m.edgeExists(ctx, appID, userID, friendID)
	if err != nil {
		return err
	}
	reciprocalMissing := !friend.listsPublic(userID) || (friend.hasPrivate && !friend.listsPrivate(userID))

	batch := store.NewBatch()
	plan, err := planLink(batch, appID, user, friend, edgeFound, model.EdgeFromRepair)
	if err != nil {
		return err
	}
	report.SkippedProfiles = appendMissing(report.SkippedProfiles, plan.skipped...)
	if !plan.changed {
		return nil
	}
	if err := m.commit(ctx, batch); err != nil {
		return err
	}
	report.Fixed++
	if reciprocalMissing {
		report.ReciprocalAdded++
	}
	m.afterCommit(ctx, appID, events.SubjectFriendshipLinked, model.EdgeFromRepair, userID, friendID)
	return nil
}

// dropDangling removes friendID from the user's own copies and deletes any
// edge left for the pair.
func (m *Manager) dropDangling(ctx context.Context, appID string, user userCopies, friendID string) error {
	batch := store.NewBatch()
	batch.ArrayRemove(model.PublicStatsPath(appID, user.userID), "friends", friendID)
	if user.hasPrivate {
		batch.ArrayRemove(model.ProfilePath(appID, user.userID), "friends", friendID)
	}
	if friendID != user.userID {
		batch.Delete(model.FriendshipPath(appID, user.userID, friendID))
	}
	if err := m.commit(ctx, batch); err != nil {
		return err
	}
	m.log.Info("dangling friend removed", zap.String("user_id", user.userID), zap.String("friend_id", friendID))
	if m.invalidator != nil {
		m.invalidator.InvalidateFriends(ctx, appID, user.userID)
	}
	return nil
}

func (r *RepairReport) addError(friendID string, err error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, FriendError{FriendID: friendID, Error: err.Error()})
}

// Projection describes one friend-list copy of a user as seen by Check.
type Projection struct {
	Exists      bool `json:"exists"`
	ListsFriend bool `json:"listsFriend"`
}

type Check struct {
	UserID        string     `json:"userId"`
	FriendID      string     `json:"friendId"`
	UserPublic    Projection `json:"userPublic"`
	UserPrivate   Projection `json:"userPrivate"`
	FriendPublic  Projection `json:"friendPublic"`
	FriendPrivate Projection `json:"friendPrivate"`
	Edge          bool       `json:"edge"`
	Mutual        bool       `json:"mutual"`
	Consistent    bool       `json:"consistent"`
}

// CheckFriendship reports every representation of the pair. The pair is
// consistent when all existing copies and the edge agree.
func (m *Manager) CheckFriendship(ctx context.Context, appID, userID, friendID string) (Check, error) {
	if err := validatePair(userID, friendID); err != nil {
		return Check{}, err
	}
	user, err := m.loadUser(ctx, appID, userID)
	if err != nil {
		return Check{}, err
	}
	friend, err := m.loadUser(ctx, appID, friendID)
	if err != nil {
		return Check{}, err
	}
	edgeFound, err := m.edgeExists(ctx, appID, userID, friendID)
	if err != nil {
		return Check{}, err
	}

	check := Check{
		UserID:        userID,
		FriendID:      friendID,
		UserPublic:    Projection{Exists: user.hasPublic, ListsFriend: user.listsPublic(friendID)},
		UserPrivate:   Projection{Exists: user.hasPrivate, ListsFriend: user.listsPrivate(friendID)},
		FriendPublic:  Projection{Exists: friend.hasPublic, ListsFriend: friend.listsPublic(userID)},
		FriendPrivate: Projection{Exists: friend.hasPrivate, ListsFriend: friend.listsPrivate(userID)},
		Edge:          edgeFound,
	}
	check.Mutual = check.UserPublic.ListsFriend && check.FriendPublic.ListsFriend

	check.Consistent = true
	for _, p := range []Projection{check.UserPublic, check.UserPrivate, check.FriendPublic, check.FriendPrivate} {
		if p.Exists && p.ListsFriend != edgeFound {
			check.Consistent = false
		}
	}
	return check, nil
}

type BackfillReport struct {
	UserID  string   `json:"userId"`
	Checked int      `json:"checked"`
	Created int      `json:"created"`
	Skipped []string `json:"skipped"`
}

// BackfillEdges creates the missing edge for every friend that lists the
// user back in its public copy. One-directional entries are reported as
// skipped and left for repair.
func (m *Manager) BackfillEdges(ctx context.Context, appID, userID string) (BackfillReport, error) {
	report := BackfillReport{UserID: userID, Skipped: []string{}}
	user, err := m.loadExistingUser(ctx, appID, userID)
	if err != nil {
		return report, err
	}

	batch := store.NewBatch()
	for _, friendID := range user.public.Friends {
		if friendID == userID {
			continue
		}
		report.Checked++
		friend, err := m.loadUser(ctx, appID, friendID)
		if err != nil {
			return report, err
		}
		if !friend.listsPublic(userID) {
			report.Skipped = append(report.Skipped, friendID)
			continue
		}
		found, err := m.edgeExists(ctx, appID, userID, friendID)
		if err != nil {
			return report, err
		}
		if found {
			continue
		}
		edge, err := model.NewFriendEdge(userID, friendID, model.EdgeFromBackfill)
		if err != nil {
			return report, err
		}
		batch.Set(model.FriendshipPath(appID, userID, friendID), edge.Data())
		report.Created++
	}
	if batch.Len() == 0 {
		return report, nil
	}
	if err := m.commit(ctx, batch); err != nil {
		return report, err
	}
	m.log.Info("friend edges backfilled",
		zap.String("app_id", appID),
		zap.String("user_id", userID),
		zap.Int("created", report.Created),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}

// EdgesOf returns the edges the user takes part in, ordered by the other
// user's id.
func (m *Manager) EdgesOf(ctx context.Context, appID, userID string) ([]model.FriendEdge, error) {
	var edges []model.FriendEdge
	for _, field := range []string{"userA", "userB"} {
		docs, err := m.store.Query(ctx, store.NewQuery(model.FriendshipsCollection(appID)).Where(field, store.OpEqual, userID))
		if err != nil {
			return nil, fmt.Errorf("query edges by %s: %w", field, err)
		}
		for _, doc := range docs {
			edges = append(edges, model.FriendEdgeFromDocument(doc))
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Other(userID) < edges[j].Other(userID) })
	return edges, nil
}

type RebuildReport struct {
	UserID  string   `json:"userId"`
	Friends []string `json:"friends"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// RebuildProjections rewrites the user's public and private friend arrays
// from the edges. Only the user's own copies change.
func (m *Manager) RebuildProjections(ctx context.Context, appID, userID string) (RebuildReport, error) {
	report := RebuildReport{UserID: userID, Friends: []string{}, Added: []string{}, Removed: []string{}}
	user, err := m.loadExistingUser(ctx, appID, userID)
	if err != nil {
		return report, err
	}
	edges, err := m.EdgesOf(ctx, appID, userID)
	if err != nil {
		return report, err
	}
	for _, edge := range edges {
		report.Friends = appendMissing(report.Friends, edge.Other(userID))
	}

	want := make(map[string]struct{}, len(report.Friends))
	for _, friendID := range report.Friends {
		want[friendID] = struct{}{}
		if !user.listsPublic(friendID) {
			report.Added = append(report.Added, friendID)
		}
	}
	for _, friendID := range user.public.Friends {
		if _, ok := want[friendID]; !ok {
			report.Removed = append(report.Removed, friendID)
		}
	}

	batch := store.NewBatch()
	batch.Update(model.PublicStatsPath(appID, userID), map[string]any{"friends": report.Friends})
	if user.hasPrivate {
		batch.Update(model.ProfilePath(appID, userID), map[string]any{"friends": report.Friends})
	}
	if err := m.commit(ctx, batch); err != nil {
		return report, err
	}
	if m.invalidator != nil {
		m.invalidator.InvalidateFriends(ctx, appID, userID)
	}
	m.log.Info("friend projections rebuilt",
		zap.String("app_id", appID),
		zap.String("user_id", userID),
		zap.Int("friends", len(report.Friends)),
		zap.Int("added", len(report.Added)),
		zap.Int("removed", len(report.Removed)),
	)
	return report, nil
}

func appendMissing(list []string, values ...string) []string {
	for _, value := range values {
		found := false
		for _, existing := range list {
			if existing == value {
				found = true
				break
			}
		}
		if !found {
			list = append(list, value)
		}
	}
	return list
}
