package notify

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/model"
	"drinkwise/api/internal/store"
)

const testApp = "app-test"

func newTestService(t *testing.T, capacity int) (*Service, store.Store) {
	t.Helper()
	st, err := store.OpenPebbleInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewService(st, capacity, zap.NewNop()), st
}

func seed(t *testing.T, st store.Store, path string, data map[string]any) {
	t.Helper()
	if err := st.Commit(context.Background(), store.NewBatch().Set(path, data)); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

func inbox(t *testing.T, st store.Store, userID string) []store.Document {
	t.Helper()
	docs, err := st.Query(context.Background(), store.NewQuery(model.NotificationsCollection(testApp, userID)))
	if err != nil {
		t.Fatalf("query inbox: %v", err)
	}
	return docs
}

func TestCreateKeepsNewestUpToCap(t *testing.T) {
	svc, st := newTestService(t, 3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := svc.Create(ctx, testApp, "owner", model.NotificationLike, nil, ""); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	if got := len(inbox(t, st, "owner")); got != 3 {
		t.Fatalf("expected 3 notifications after cleanup, got %d", got)
	}
}

func TestCreateRejectsUnknownType(t *testing.T) {
	svc, _ := newTestService(t, 0)
	_, err := svc.Create(context.Background(), testApp, "owner", model.NotificationType("poke"), nil, "")
	if !errors.Is(err, apperr.InvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestUnreadAndMarkRead(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()
	first, err := svc.Create(ctx, testApp, "owner", model.NotificationComment, map[string]any{"content": "hi"}, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, testApp, "owner", model.NotificationLike, nil, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	unread, err := svc.Unread(ctx, testApp, "owner", 0)
	if err != nil {
		t.Fatalf("Unread: %v", err)
	}
	if len(unread) != 2 {
		t.Fatalf("expected 2 unread, got %d", len(unread))
	}

	if err := svc.MarkRead(ctx, testApp, "owner", first.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := svc.MarkDisplayed(ctx, testApp, "owner", first.ID); err != nil {
		t.Fatalf("MarkDisplayed: %v", err)
	}
	unread, err = svc.Unread(ctx, testApp, "owner", 0)
	if err != nil {
		t.Fatalf("Unread: %v", err)
	}
	if len(unread) != 1 || unread[0].ID == first.ID {
		t.Fatalf("expected only the like to remain unread, got %+v", unread)
	}

	if err := svc.MarkRead(ctx, testApp, "owner", "missing"); !errors.Is(err, apperr.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInteractionAddedPayload(t *testing.T) {
	svc, st := newTestService(t, 0)
	ctx := context.Background()
	seed(t, st, model.PublicStatsPath(testApp, "alice"), map[string]any{"username": "Alice"})
	seed(t, st, model.PartyPath(testApp, "bob", "party-1"), map[string]any{"title": "Friday"})

	svc.InteractionAdded(ctx, testApp, model.Interaction{
		ItemID: "party-1", ItemType: model.ItemParty, OwnerID: "bob", UserID: "alice",
		Type: model.InteractionComment, Content: "nice",
	})
	docs := inbox(t, st, "bob")
	if len(docs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(docs))
	}
	n := model.NotificationFromDocument(docs[0])
	if n.Type != model.NotificationComment || n.Read || n.Displayed {
		t.Fatalf("unexpected notification %+v", n)
	}
	want := map[string]any{"userName": "Alice", "userId": "alice", "itemId": "party-1", "itemType": "party", "itemTitle": "Friday", "content": "nice"}
	for key, value := range want {
		if n.Data[key] != value {
			t.Errorf("data[%s] = %v, want %v", key, n.Data[key], value)
		}
	}
}

func TestInteractionAddedDefaultsAndSkips(t *testing.T) {
	svc, st := newTestService(t, 0)
	ctx := context.Background()

	svc.InteractionAdded(ctx, testApp, model.Interaction{
		ItemID: "party-9", ItemType: model.ItemParty, OwnerID: "bob", UserID: "ghost", Type: model.InteractionLike,
	})
	docs := inbox(t, st, "bob")
	if len(docs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(docs))
	}
	n := model.NotificationFromDocument(docs[0])
	if n.Data["userName"] != "Someone" || n.Data["itemTitle"] != "Your party" {
		t.Fatalf("expected defaults, got %v", n.Data)
	}

	cases := []model.Interaction{
		{ItemID: "party-9", ItemType: model.ItemParty, OwnerID: "bob", UserID: "bob", Type: model.InteractionLike},
		{ItemID: "party-9", ItemType: model.ItemParty, OwnerID: "bob", UserID: "alice", Type: model.InteractionWow},
	}
	for _, interaction := range cases {
		svc.InteractionAdded(ctx, testApp, interaction)
	}
	if got := len(inbox(t, st, "bob")); got != 1 {
		t.Fatalf("self and non-like reactions must not notify, got %d", got)
	}
}

func TestFriendRequestNotifications(t *testing.T) {
	svc, st := newTestService(t, 0)
	ctx := context.Background()
	seed(t, st, model.PublicStatsPath(testApp, "alice"), map[string]any{"username": "Alice"})
	seed(t, st, model.PublicStatsPath(testApp, "bob"), map[string]any{"username": "Bob"})

	svc.FriendRequestSent(ctx, testApp, "alice", "bob")
	svc.FriendRequestAccepted(ctx, testApp, "alice", "bob")

	sent := model.NotificationFromDocument(inbox(t, st, "bob")[0])
	if sent.Type != model.NotificationFriendRequest || sent.Data["requestId"] != "alice_bob" || sent.Data["userName"] != "Alice" {
		t.Fatalf("unexpected request notification %+v", sent)
	}
	accepted := model.NotificationFromDocument(inbox(t, st, "alice")[0])
	if accepted.Type != model.NotificationFriendAccepted || accepted.Data["userId"] != "bob" || accepted.Data["userName"] != "Bob" {
		t.Fatalf("unexpected accepted notification %+v", accepted)
	}
}
