package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueSerializesPerSession(t *testing.T) {
	q := newMessageQueue(QueueOptions{LaneBuffer: 4, MaxConcurrent: 4})
	if err := q.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var order []int
	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		i := i
		err := q.Enqueue(context.Background(), "group:a", func(context.Context) error {
			order = append(order, i)
			if i == 2 {
				close(done)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not complete")
	}
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("tasks ran out of order: %v", order)
	}
}

func TestQueueRetiresIdleLanes(t *testing.T) {
	q := newMessageQueue(QueueOptions{LaneBuffer: 2, MaxConcurrent: 2, LaneIdleTTL: 20 * time.Millisecond})
	if err := q.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var ran atomic.Int32
	for _, session := range []string{"group:a", "group:b", "dm:+1555"} {
		err := q.Enqueue(context.Background(), session, func(context.Context) error {
			ran.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ran.Load() == 3 && q.LaneCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected all lanes retired after idle TTL, ran=%d lanes=%d", ran.Load(), q.LaneCount())
}

func TestQueueLaneRevivesAfterRetirement(t *testing.T) {
	q := newMessageQueue(QueueOptions{LaneBuffer: 2, MaxConcurrent: 2, LaneIdleTTL: 20 * time.Millisecond})
	if err := q.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	run := func() {
		done := make(chan struct{})
		if err := q.Enqueue(context.Background(), "group:a", func(context.Context) error {
			close(done)
			return nil
		}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task did not run")
		}
	}

	run()
	deadline := time.Now().Add(2 * time.Second)
	for q.LaneCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("lane did not retire")
		}
		time.Sleep(10 * time.Millisecond)
	}
	// A fresh message for the same session gets a fresh lane.
	run()
}
