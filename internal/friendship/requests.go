package friendship

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/model"
	"drinkwise/api/internal/store"
	"drinkwise/api/internal/util"
)

func (m *Manager) loadRequest(ctx context.Context, appID, requestID string) (model.FriendRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return model.FriendRequest{}, apperr.New(apperr.InvalidArgument, "requestId is required")
	}
	doc, found, err := m.getOptional(ctx, model.FriendRequestPath(appID, requestID))
	if err != nil {
		return model.FriendRequest{}, err
	}
	if !found {
		return model.FriendRequest{}, apperr.WithDetails(apperr.NotFound, "friend request not found",
			map[string]string{"requestId": requestID})
	}
	return model.FriendRequestFromDocument(doc), nil
}

// SendRequest creates a pending request from one user to another.
func (m *Manager) SendRequest(ctx context.Context, appID, fromID, toID string) (model.FriendRequest, error) {
	if strings.TrimSpace(fromID) == "" {
		return model.FriendRequest{}, apperr.New(apperr.Unauthenticated, "sender is required")
	}
	if err := validatePair(strings.TrimSpace(fromID), strings.TrimSpace(toID)); err != nil {
		return model.FriendRequest{}, err
	}
	from, err := m.loadExistingUser(ctx, appID, strings.TrimSpace(fromID))
	if err != nil {
		return model.FriendRequest{}, err
	}
	to, err := m.loadExistingUser(ctx, appID, strings.TrimSpace(toID))
	if err != nil {
		return model.FriendRequest{}, err
	}
	request, err := model.NewFriendRequest(from.userID, to.userID, from.public.Username, to.public.Username)
	if err != nil {
		return model.FriendRequest{}, err
	}

	if from.listsPublic(to.userID) && to.listsPublic(from.userID) {
		return model.FriendRequest{}, apperr.New(apperr.Conflict, "users are already friends")
	}
	existing, err := m.openRequests(ctx, appID, request.From, request.To)
	if err != nil {
		return model.FriendRequest{}, err
	}
	if len(existing) > 0 {
		return model.FriendRequest{}, apperr.WithDetails(apperr.Conflict, "a friend request already exists",
			map[string]string{"requestId": existing[0].ID})
	}

	request.ID = util.NewDocID()
	batch := store.NewBatch().Create(model.FriendRequestPath(appID, request.ID), request.Data())
	if err := m.commit(ctx, batch); err != nil {
		return model.FriendRequest{}, err
	}
	m.log.Info("friend request sent",
		zap.String("app_id", appID),
		zap.String("request_id", request.ID),
		zap.String("from", request.From),
		zap.String("to", request.To),
	)
	if m.notifier != nil {
		m.notifier.FriendRequestSent(ctx, appID, request.From, request.To)
	}
	return request, nil
}

func (m *Manager) openRequests(ctx context.Context, appID, fromID, toID string) ([]model.FriendRequest, error) {
	q := store.NewQuery(model.FriendRequestsCollection(appID)).
		Where("from", store.OpEqual, fromID).
		Where("to", store.OpEqual, toID).
		Where("status", store.OpIn, []string{string(model.RequestPending), string(model.RequestAccepted)})
	docs, err := m.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query open requests: %w", err)
	}
	out := make([]model.FriendRequest, 0, len(docs))
	for _, doc := range docs {
		out = append(out, model.FriendRequestFromDocument(doc))
	}
	return out, nil
}

// AcceptRequest accepts a request addressed to actorID. Acceptance and
// synchronization are one batch, so no accepted request is left behind.
func (m *Manager) AcceptRequest(ctx context.Context, appID, requestID, actorID string) (Result, error) {
	request, err := m.loadRequest(ctx, appID, requestID)
	if err != nil {
		return Result{}, err
	}
	if request.To != actorID {
		return Result{}, apperr.New(apperr.InvalidState, "only the recipient can accept a friend request")
	}
	result, err := m.consumeRequest(ctx, appID, request, "accept_request")
	if err != nil {
		return Result{}, err
	}
	if m.notifier != nil {
		m.notifier.FriendRequestAccepted(ctx, appID, request.From, request.To)
	}
	return result, nil
}

// RejectRequest deletes a pending request addressed to actorID.
func (m *Manager) RejectRequest(ctx context.Context, appID, requestID, actorID string) error {
	return m.dropRequest(ctx, appID, requestID, func(r model.FriendRequest) bool { return r.To == actorID }, "reject")
}

// CancelRequest deletes a pending request sent by actorID.
func (m *Manager) CancelRequest(ctx context.Context, appID, requestID, actorID string) error {
	return m.dropRequest(ctx, appID, requestID, func(r model.FriendRequest) bool { return r.From == actorID }, "cancel")
}

func (m *Manager) dropRequest(ctx context.Context, appID, requestID string, allowed func(model.FriendRequest) bool, verb string) error {
	request, err := m.loadRequest(ctx, appID, requestID)
	if err != nil {
		return err
	}
	if !allowed(request) {
		return apperr.Newf(apperr.InvalidState, "cannot %s this friend request", verb)
	}
	if request.Status != model.RequestPending {
		return apperr.WithDetails(apperr.InvalidState, "friend request is not pending",
			map[string]string{"requestId": request.ID, "status": string(request.Status)})
	}
	if err := m.commit(ctx, store.NewBatch().Delete(model.FriendRequestPath(appID, request.ID))); err != nil {
		return err
	}
	m.log.Info("friend request dropped",
		zap.String("app_id", appID),
		zap.String("request_id", request.ID),
		zap.String("action", verb),
	)
	return nil
}

type Requests struct {
	Incoming []model.FriendRequest `json:"incoming"`
	Outgoing []model.FriendRequest `json:"outgoing"`
}

// ListRequests returns the pending requests addressed to and sent by userID,
// newest first.
func (m *Manager) ListRequests(ctx context.Context, appID, userID string) (Requests, error) {
	incoming, err := m.pendingRequests(ctx, appID, "to", userID)
	if err != nil {
		return Requests{}, err
	}
	outgoing, err := m.pendingRequests(ctx, appID, "from", userID)
	if err != nil {
		return Requests{}, err
	}
	return Requests{Incoming: incoming, Outgoing: outgoing}, nil
}

func (m *Manager) pendingRequests(ctx context.Context, appID, field, userID string) ([]model.FriendRequest, error) {
	q := store.NewQuery(model.FriendRequestsCollection(appID)).
		Where(field, store.OpEqual, userID).
		Where("status", store.OpEqual, string(model.RequestPending)).
		Order("timestamp", true)
	docs, err := m.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query %s requests: %w", field, err)
	}
	out := make([]model.FriendRequest, 0, len(docs))
	for _, doc := range docs {
		out = append(out, model.FriendRequestFromDocument(doc))
	}
	return out, nil
}

type Friend struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// ListFriends resolves the usernames of the user's public friend list.
// Friends whose stats document is gone are left out.
func (m *Manager) ListFriends(ctx context.Context, appID, userID string) ([]Friend, error) {
	user, err := m.loadExistingUser(ctx, appID, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Friend, 0, len(user.public.Friends))
	for _, friendID := range user.public.Friends {
		doc, err := m.store.Get(ctx, model.PublicStatsPath(appID, friendID))
		if errors.Is(err, store.ErrNotFound) {
			m.log.Debug("dangling friend reference", zap.String("user_id", userID), zap.String("friend_id", friendID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load friend %s: %w", friendID, err)
		}
		out = append(out, Friend{UserID: friendID, Username: doc.String("username")})
	}
	return out, nil
}
