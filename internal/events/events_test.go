package events

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRecorderKeepsEnvelopes(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	if err := r.Publish(ctx, SubjectFriendshipLinked, map[string]string{"userId": "a", "friendId": "b"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := r.Publish(ctx, SubjectInteractionRecorded, map[string]string{"action": "added"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	linked := r.Events("drinkwise.friendship.")
	if len(linked) != 1 {
		t.Fatalf("expected 1 friendship event, got %d", len(linked))
	}
	if linked[0].ID == "" || linked[0].OccurredAt.IsZero() {
		t.Fatalf("envelope metadata missing: %+v", linked[0])
	}
	var data map[string]string
	if err := json.Unmarshal(linked[0].Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data["friendId"] != "b" {
		t.Fatalf("unexpected payload %v", data)
	}
	if len(r.Events("")) != 2 {
		t.Fatalf("expected both events")
	}
}

func TestEnvelopeRejectsUnencodablePayload(t *testing.T) {
	var r Recorder
	if err := r.Publish(context.Background(), SubjectFriendshipLinked, make(chan int)); err == nil {
		t.Fatalf("expected encode error")
	}
}
