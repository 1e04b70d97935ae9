package memory

import (
	"testing"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
)

func TestOutboxRepository_EnqueuePullMark(t *testing.T) {
	t.Parallel()

	repo := NewOutboxRepository()

	first, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "OrderStatusChanged",
		Payload:       []byte(`{"status":"PAID"}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if first.ID == "" {
		t.Fatal("enqueue must assign an id")
	}

	second, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "OrderStatusChanged",
		Payload:       []byte(`{"status":"CONFIRMED"}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := repo.MarkSent(first.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.MarkFailed(second.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	pending, err = repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending after mark: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(pending))
	}

	if err := repo.MarkSent("missing"); err == nil {
		t.Fatal("mark sent on unknown id must fail")
	}
}
