package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/cache"
	"drinkwise/api/internal/events"
	"drinkwise/api/internal/friendship"
	"drinkwise/api/internal/model"
	"drinkwise/api/internal/notify"
	"drinkwise/api/internal/store"
)

const testApp = "app-test"

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.OpenPebbleInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seed(t *testing.T, st store.Store, path string, data map[string]any) {
	t.Helper()
	if err := st.Commit(context.Background(), store.NewBatch().Set(path, data)); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

func seedUser(t *testing.T, st store.Store, userID string, friends ...string) {
	t.Helper()
	if friends == nil {
		friends = []string{}
	}
	seed(t, st, model.PublicStatsPath(testApp, userID), map[string]any{"userId": userID, "username": userID, "friends": friends})
	seed(t, st, model.ProfilePath(testApp, userID), map[string]any{"userId": userID, "friends": friends})
}

func reactionsOf(t *testing.T, g *Gateway, itemID, userID string) []model.Interaction {
	t.Helper()
	docs, err := g.reactionsOf(context.Background(), testApp, itemID, userID)
	if err != nil {
		t.Fatalf("reactionsOf: %v", err)
	}
	out := make([]model.Interaction, 0, len(docs))
	for _, doc := range docs {
		out = append(out, model.InteractionFromDocument(doc))
	}
	return out
}

func like(viewer, item, owner string, typ model.InteractionType) SubmitInput {
	return SubmitInput{AppID: testApp, ViewerID: viewer, ItemID: item, ItemType: model.ItemParty, OwnerID: owner, Type: typ}
}

func comment(viewer, item, owner, content string) SubmitInput {
	in := like(viewer, item, owner, model.InteractionComment)
	in.Content = content
	return in
}

func TestSubmitValidation(t *testing.T) {
	g := NewGateway(newStore(t))
	tests := []struct {
		name string
		in   SubmitInput
		want apperr.Kind
	}{
		{name: "no viewer", in: like("", "item", "owner", model.InteractionLike), want: apperr.Unauthenticated},
		{name: "no item", in: like("alice", "", "owner", model.InteractionLike), want: apperr.InvalidArgument},
		{name: "no owner", in: like("alice", "item", "", model.InteractionLike), want: apperr.InvalidArgument},
		{name: "unknown type", in: like("alice", "item", "owner", "poke"), want: apperr.InvalidArgument},
		{name: "blank comment", in: comment("alice", "item", "owner", "   "), want: apperr.InvalidArgument},
		{name: "bad item type", in: SubmitInput{AppID: testApp, ViewerID: "alice", ItemID: "item", ItemType: "story", OwnerID: "owner", Type: model.InteractionLike}, want: apperr.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.Submit(context.Background(), tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestReactionReplaceAndToggle(t *testing.T) {
	g := NewGateway(newStore(t))
	ctx := context.Background()

	steps := []struct {
		typ       model.InteractionType
		action    Action
		remaining model.InteractionType
	}{
		{typ: model.InteractionLike, action: ActionAdded, remaining: model.InteractionLike},
		{typ: model.InteractionLove, action: ActionAdded, remaining: model.InteractionLove},
		{typ: model.InteractionLove, action: ActionRemoved},
		{typ: model.InteractionWow, action: ActionAdded, remaining: model.InteractionWow},
	}
	for i, step := range steps {
		result, err := g.Submit(ctx, like("alice", "party-1", "carol", step.typ))
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if result.Action != step.action {
			t.Fatalf("step %d: expected %s, got %s", i, step.action, result.Action)
		}
		reactions := reactionsOf(t, g, "party-1", "alice")
		if step.remaining == "" {
			if len(reactions) != 0 {
				t.Fatalf("step %d: expected no reaction, got %+v", i, reactions)
			}
			continue
		}
		if len(reactions) != 1 || reactions[0].Type != step.remaining {
			t.Fatalf("step %d: expected one %s reaction, got %+v", i, step.remaining, reactions)
		}
		if reactions[0].ID != model.ReactionID("party-1", "alice") {
			t.Fatalf("step %d: unexpected reaction id %s", i, reactions[0].ID)
		}
	}
}

func TestReactionIDsWithUnderscoresStaySeparate(t *testing.T) {
	g := NewGateway(newStore(t))
	ctx := context.Background()

	if _, err := g.Submit(ctx, like("x", "party_1", "carol", model.InteractionLike)); err != nil {
		t.Fatalf("like: %v", err)
	}
	if _, err := g.Submit(ctx, like("1_x", "party", "carol", model.InteractionLove)); err != nil {
		t.Fatalf("love: %v", err)
	}

	first := reactionsOf(t, g, "party_1", "x")
	if len(first) != 1 || first[0].Type != model.InteractionLike {
		t.Fatalf("like on party_1 was lost: %+v", first)
	}
	second := reactionsOf(t, g, "party", "1_x")
	if len(second) != 1 || second[0].Type != model.InteractionLove {
		t.Fatalf("unexpected reactions on party: %+v", second)
	}
}

func TestLegacyDuplicateReactionsCollapse(t *testing.T) {
	st := newStore(t)
	g := NewGateway(st)
	for id, typ := range map[string]string{"legacy-1": "like", "legacy-2": "sad"} {
		seed(t, st, model.InteractionPath(testApp, id), map[string]any{
			"itemId": "party-1", "itemType": "party", "ownerId": "carol", "userId": "alice", "type": typ,
		})
	}

	if _, err := g.Submit(context.Background(), like("alice", "party-1", "carol", model.InteractionHaha)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	reactions := reactionsOf(t, g, "party-1", "alice")
	if len(reactions) != 1 || reactions[0].Type != model.InteractionHaha {
		t.Fatalf("expected a single haha reaction, got %+v", reactions)
	}
}

func TestCommentsAreAppendOnly(t *testing.T) {
	st := newStore(t)
	g := NewGateway(st)
	ctx := context.Background()
	ids := map[string]bool{}
	for i := 0; i < 3; i++ {
		result, err := g.Submit(ctx, comment("alice", "party-1", "carol", "  cheers  "))
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if result.Action != ActionCommentAdded || result.ID == "" {
			t.Fatalf("unexpected result %+v", result)
		}
		ids[result.ID] = true
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 distinct comments, got %d", len(ids))
	}
	out, err := g.Visible(ctx, testApp, "alice", "party-1")
	if err != nil {
		t.Fatalf("Visible: %v", err)
	}
	if len(out.Comments) != 3 {
		t.Fatalf("expected 3 visible comments, got %d", len(out.Comments))
	}
	for _, record := range out.Comments {
		if record.Content != "cheers" {
			t.Fatalf("content must be trimmed, got %q", record.Content)
		}
	}
}

func TestVisibleEmptyState(t *testing.T) {
	g := NewGateway(newStore(t))
	out, err := g.Visible(context.Background(), testApp, "alice", "party-1")
	if err != nil {
		t.Fatalf("Visible: %v", err)
	}
	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(body) != `{"likes":[],"congratulations":[],"comments":[]}` {
		t.Fatalf("unexpected empty state %s", body)
	}
}

func TestVisibleValidation(t *testing.T) {
	g := NewGateway(newStore(t))
	ctx := context.Background()
	if _, err := g.Visible(ctx, testApp, "", "party-1"); !errors.Is(err, apperr.Unauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := g.Visible(ctx, testApp, "alice", " "); !errors.Is(err, apperr.InvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestVisibilityPolicies(t *testing.T) {
	st := newStore(t)
	seedUser(t, st, "alice", "bob")
	seedUser(t, st, "bob")
	ctx := context.Background()

	strict := NewGateway(st)
	for _, in := range []SubmitInput{
		like("alice", "party-1", "carol", model.InteractionLike),
		like("bob", "party-1", "carol", model.InteractionCongratulate),
	} {
		if _, err := strict.Submit(ctx, in); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	tests := []struct {
		name     string
		policy   Policy
		viewer   string
		likes    int
		congrats int
	}{
		{name: "strict bob", policy: PolicyStrict, viewer: "bob", likes: 0, congrats: 1},
		{name: "strict alice", policy: PolicyStrict, viewer: "alice", likes: 1, congrats: 0},
		{name: "relaxed bob", policy: PolicyRelaxed, viewer: "bob", likes: 0, congrats: 1},
		{name: "relaxed alice", policy: PolicyRelaxed, viewer: "alice", likes: 1, congrats: 1},
		{name: "stranger", policy: PolicyRelaxed, viewer: "dave", likes: 0, congrats: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGateway(st, WithPolicy(tt.policy))
			out, err := g.Visible(ctx, testApp, tt.viewer, "party-1")
			if err != nil {
				t.Fatalf("Visible: %v", err)
			}
			if len(out.Likes) != tt.likes || len(out.Congratulations) != tt.congrats {
				t.Fatalf("likes=%d congratulations=%d, want %d/%d", len(out.Likes), len(out.Congratulations), tt.likes, tt.congrats)
			}
		})
	}
}

func TestVisibleOrderingAndReactions(t *testing.T) {
	st := newStore(t)
	g := NewGateway(st)
	base := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	records := []struct {
		id  string
		typ string
		at  time.Time
	}{
		{id: "c-old", typ: "comment", at: base},
		{id: "c-new", typ: "comment", at: base.Add(time.Minute)},
		{id: "c-tie-a", typ: "comment", at: base.Add(30 * time.Second)},
		{id: "c-tie-b", typ: "comment", at: base.Add(30 * time.Second)},
		{id: "r-love", typ: "love", at: base},
	}
	for _, r := range records {
		seed(t, st, model.InteractionPath(testApp, r.id), map[string]any{
			"itemId": "party-1", "itemType": "party", "ownerId": "carol", "userId": "alice",
			"type": r.typ, "content": "x", "timestamp": r.at,
		})
	}

	out, err := g.Visible(context.Background(), testApp, "alice", "party-1")
	if err != nil {
		t.Fatalf("Visible: %v", err)
	}
	var got []string
	for _, record := range out.Comments {
		got = append(got, record.ID)
	}
	want := []string{"c-new", "c-tie-a", "c-tie-b", "c-old"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if !out.Comments[0].Timestamp.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected timestamp %v", out.Comments[0].Timestamp)
	}
	if love := out.Reactions["love"]; len(love) != 1 || love[0].Content != "" {
		t.Fatalf("unexpected reactions %+v", out.Reactions)
	}
}

func TestScenarioFriendshipUnlocksVisibility(t *testing.T) {
	st := newStore(t)
	redisServer := miniredis.RunT(t)
	backend, err := cache.NewRedis("redis://" + redisServer.Addr())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	g := NewGateway(st, WithFriendCache(cache.New(backend, "friends", time.Minute)))
	manager := friendship.NewManager(st, friendship.WithInvalidator(g))
	ctx := context.Background()
	seedUser(t, st, "alice")
	seedUser(t, st, "bob")
	seedUser(t, st, "carol")

	if _, err := g.Submit(ctx, like("alice", "party-1", "carol", model.InteractionLike)); err != nil {
		t.Fatalf("like: %v", err)
	}
	if _, err := g.Submit(ctx, comment("alice", "party-1", "carol", "great night")); err != nil {
		t.Fatalf("comment: %v", err)
	}

	before, err := g.Visible(ctx, testApp, "bob", "party-1")
	if err != nil {
		t.Fatalf("Visible: %v", err)
	}
	if len(before.Likes) != 0 || len(before.Comments) != 0 {
		t.Fatalf("bob must not see a stranger's interactions: %+v", before)
	}

	seed(t, st, model.FriendRequestPath(testApp, "req-1"), map[string]any{"from": "alice", "to": "bob", "status": "accepted"})
	if _, err := manager.SynchronizeAcceptedRequest(ctx, testApp, "req-1"); err != nil {
		t.Fatalf("SynchronizeAcceptedRequest: %v", err)
	}

	after, err := g.Visible(ctx, testApp, "bob", "party-1")
	if err != nil {
		t.Fatalf("Visible: %v", err)
	}
	if len(after.Likes) != 1 || len(after.Comments) != 1 || after.Comments[0].Content != "great night" {
		t.Fatalf("bob must see both interactions once friends: %+v", after)
	}
}

func TestSubmitNotifiesOwner(t *testing.T) {
	st := newStore(t)
	recorder := &events.Recorder{}
	g := NewGateway(st,
		WithNotifier(notify.NewService(st, notify.DefaultCap, zap.NewNop())),
		WithEvents(recorder),
	)
	ctx := context.Background()
	inbox := func() int {
		docs, err := st.Query(ctx, store.NewQuery(model.NotificationsCollection(testApp, "carol")))
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		return len(docs)
	}

	steps := []struct {
		in   SubmitInput
		want int
	}{
		{in: like("alice", "party-1", "carol", model.InteractionLike), want: 1},
		{in: like("alice", "party-1", "carol", model.InteractionLike), want: 1},
		{in: like("alice", "party-1", "carol", model.InteractionLove), want: 1},
		{in: like("carol", "party-1", "carol", model.InteractionLike), want: 1},
		{in: comment("alice", "party-1", "carol", "nice"), want: 2},
	}
	for i, step := range steps {
		if _, err := g.Submit(ctx, step.in); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got := inbox(); got != step.want {
			t.Fatalf("step %d: inbox has %d, want %d", i, got, step.want)
		}
	}
	if got := len(recorder.Events(events.SubjectInteractionRecorded)); got != len(steps) {
		t.Fatalf("expected %d events, got %d", len(steps), got)
	}
}

func TestParsePolicy(t *testing.T) {
	for input, want := range map[string]Policy{"": PolicyStrict, "STRICT": PolicyStrict, " relaxed ": PolicyRelaxed} {
		got, err := ParsePolicy(input)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q) = %s, %v", input, got, err)
		}
	}
	if _, err := ParsePolicy("open"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
