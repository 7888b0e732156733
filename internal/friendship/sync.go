package friendship

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/events"
	"drinkwise/api/internal/model"
	"drinkwise/api/internal/store"
)

// SynchronizeAcceptedRequest materializes an accepted request as a mutual
// friendship and consumes the request in the same batch.
//
// Once consumed the request is gone, so a repeated call reports NotFound
// without touching any friend list.
func (m *Manager) SynchronizeAcceptedRequest(ctx context.Context, appID, requestID string) (Result, error) {
	request, err := m.loadRequest(ctx, appID, requestID)
	if err != nil {
		return Result{}, err
	}
	return m.synchronize(ctx, appID, request)
}

// SynchronizeOwnRequest is SynchronizeAcceptedRequest for one of the two
// parties of the request.
func (m *Manager) SynchronizeOwnRequest(ctx context.Context, appID, requestID, actorID string) (Result, error) {
	request, err := m.loadRequest(ctx, appID, requestID)
	if err != nil {
		return Result{}, err
	}
	if actorID == "" || (request.From != actorID && request.To != actorID) {
		return Result{}, apperr.New(apperr.InvalidState, "only the sender or recipient can synchronize a friend request")
	}
	return m.synchronize(ctx, appID, request)
}

func (m *Manager) synchronize(ctx context.Context, appID string, request model.FriendRequest) (Result, error) {
	if request.Status != model.RequestAccepted {
		return Result{}, apperr.WithDetails(apperr.InvalidState, "friend request is not accepted",
			map[string]string{"requestId": request.ID, "status": string(request.Status)})
	}
	return m.consumeRequest(ctx, appID, request, "synchronize_request")
}

// consumeRequest links the two parties of request and deletes it.
func (m *Manager) consumeRequest(ctx context.Context, appID string, request model.FriendRequest, op string) (Result, error) {
	if err := validatePair(request.From, request.To); err != nil {
		return Result{}, err
	}
	from, err := m.loadExistingUser(ctx, appID, request.From)
	if err != nil {
		return Result{}, err
	}
	to, err := m.loadExistingUser(ctx, appID, request.To)
	if err != nil {
		return Result{}, err
	}
	edgeFound, err := m.edgeExists(ctx, appID, request.From, request.To)
	if err != nil {
		return Result{}, err
	}

	batch := store.NewBatch()
	plan, err := planLink(batch, appID, from, to, edgeFound, model.EdgeFromRequest)
	if err != nil {
		return Result{}, err
	}
	batch.Delete(model.FriendRequestPath(appID, request.ID))
	if err := m.commit(ctx, batch); err != nil {
		return Result{}, err
	}

	result := Result{
		Outcome:         OutcomeUpdated,
		UserID:          request.From,
		FriendID:        request.To,
		RequestID:       request.ID,
		SkippedProfiles: plan.skipped,
	}
	if !plan.changed {
		result.Outcome = OutcomeNoOp
	}
	m.logSkipped(op, plan.skipped)
	m.log.Info("friend request synchronized",
		zap.String("app_id", appID),
		zap.String("request_id", request.ID),
		zap.String("from", request.From),
		zap.String("to", request.To),
		zap.String("outcome", string(result.Outcome)),
	)
	m.afterCommit(ctx, appID, events.SubjectFriendshipLinked, model.EdgeFromRequest, request.From, request.To)
	return result, nil
}

// ForceAddFriend links two existing users without a request.
func (m *Manager) ForceAddFriend(ctx context.Context, appID, userID, friendID string) (Result, error) {
	return m.link(ctx, appID, userID, friendID, model.EdgeFromForce)
}

// RepairFriendship completes a torn friendship on behalf of one of the two
// users. The pair must already be related: the edge exists or at least one
// copy lists the other user. Strangers get InvalidState; only ForceAddFriend
// links unrelated users.
func (m *Manager) RepairFriendship(ctx context.Context, appID, userID, friendID string) (Result, error) {
	return m.link(ctx, appID, userID, friendID, model.EdgeFromRepair)
}

func related(a, b userCopies, edgeFound bool) bool {
	return edgeFound ||
		a.listsPublic(b.userID) || a.listsPrivate(b.userID) ||
		b.listsPublic(a.userID) || b.listsPrivate(a.userID)
}

func (m *Manager) link(ctx context.Context, appID, userID, friendID string, source model.EdgeSource) (Result, error) {
	userID, friendID = strings.TrimSpace(userID), strings.TrimSpace(friendID)
	if err := validatePair(userID, friendID); err != nil {
		return Result{}, err
	}
	user, err := m.loadExistingUser(ctx, appID, userID)
	if err != nil {
		return Result{}, err
	}
	friend, err := m.loadExistingUser(ctx, appID, friendID)
	if err != nil {
		return Result{}, err
	}
	edgeFound, err := m.edgeExists(ctx, appID, userID, friendID)
	if err != nil {
		return Result{}, err
	}
	if source == model.EdgeFromRepair && !related(user, friend, edgeFound) {
		return Result{}, apperr.WithDetails(apperr.InvalidState, "users are not related, send a friend request instead",
			map[string]string{"userId": userID, "friendId": friendID})
	}

	batch := store.NewBatch()
	plan, err := planLink(batch, appID, user, friend, edgeFound, source)
	if err != nil {
		return Result{}, err
	}
	result := Result{Outcome: OutcomeNoOp, UserID: userID, FriendID: friendID, SkippedProfiles: plan.skipped}
	if !plan.changed {
		return result, nil
	}
	if err := m.commit(ctx, batch); err != nil {
		return Result{}, err
	}
	result.Outcome = OutcomeUpdated
	m.logSkipped(string(source), plan.skipped)
	m.log.Info("friendship linked",
		zap.String("app_id", appID),
		zap.String("user_id", userID),
		zap.String("friend_id", friendID),
		zap.String("source", string(source)),
	)
	m.afterCommit(ctx, appID, events.SubjectFriendshipLinked, source, userID, friendID)
	return result, nil
}

// RemoveFriendship removes the pair from every existing copy of both users
// and deletes the edge.
func (m *Manager) RemoveFriendship(ctx context.Context, appID, userID, friendID string) (Result, error) {
	userID, friendID = strings.TrimSpace(userID), strings.TrimSpace(friendID)
	if err := validatePair(userID, friendID); err != nil {
		return Result{}, err
	}
	user, err := m.loadUser(ctx, appID, userID)
	if err != nil {
		return Result{}, err
	}
	friend, err := m.loadUser(ctx, appID, friendID)
	if err != nil {
		return Result{}, err
	}
	if !user.hasPublic && !friend.hasPublic {
		return Result{}, userNotFound(userID)
	}
	edgeFound, err := m.edgeExists(ctx, appID, userID, friendID)
	if err != nil {
		return Result{}, err
	}

	batch := store.NewBatch()
	result := Result{Outcome: OutcomeNoOp, UserID: userID, FriendID: friendID}
	if !planUnlink(batch, appID, user, friend, edgeFound) {
		return result, nil
	}
	if err := m.commit(ctx, batch); err != nil {
		return Result{}, err
	}
	result.Outcome = OutcomeRemoved
	m.log.Info("friendship removed",
		zap.String("app_id", appID),
		zap.String("user_id", userID),
		zap.String("friend_id", friendID),
	)
	m.afterCommit(ctx, appID, events.SubjectFriendshipUnlinked, "", userID, friendID)
	return result, nil
}
