package memory

import (
	"context"
	"testing"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	attrs := map[string]string{"run_id": "r1"}
	id1, err := pub.Publish(context.Background(), map[string]string{"k": "v"}, attrs)
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "payload", nil)
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	attrs["run_id"] = "changed"
	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Attributes["run_id"] != "r1" {
		t.Fatalf("attributes not copied: %+v", msgs[0].Attributes)
	}
	if msgs[1].Payload != "payload" {
		t.Fatalf("payload not recorded: %+v", msgs[1])
	}

	msgs[0].Payload = "modified"
	if pub.Messages()[0].Payload == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}
