package store

import (
	"testing"
	"time"
)

func TestDedupeMarkOnce(t *testing.T) {
	d := NewDedupe(time.Minute)

	if !d.MarkOnce("sender|123|hello") {
		t.Fatal("first MarkOnce should return true")
	}
	if d.MarkOnce("sender|123|hello") {
		t.Fatal("repeat MarkOnce should return false")
	}
	if !d.MarkOnce("sender|124|hello") {
		t.Fatal("different key should return true")
	}
}

func TestDedupeExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	d := NewDedupe(10 * time.Second)
	d.now = func() time.Time { return now }

	if !d.MarkOnce("key") {
		t.Fatal("first MarkOnce should return true")
	}

	now = now.Add(9 * time.Second)
	if d.MarkOnce("key") {
		t.Fatal("key should still be deduplicated before TTL")
	}

	now = now.Add(2 * time.Second)
	if !d.MarkOnce("key") {
		t.Fatal("key should be fresh again after TTL")
	}
}

func TestDedupeDefaultTTL(t *testing.T) {
	d := NewDedupe(0)
	if d.ttl != defaultDedupeTTL {
		t.Fatalf("expected default TTL %v, got %v", defaultDedupeTTL, d.ttl)
	}
}
