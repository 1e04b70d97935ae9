package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
)

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO timeline_events (
			order_id, event_type, from_status, to_status, trigger_kind, reason, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		event.OrderID, event.Type, string(event.From), string(event.To),
		string(event.Trigger), event.Reason, event.Occurred,
	); err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}

	return nil
}

func (r *timelineRepository) List(orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, event_type, from_status, to_status, trigger_kind, reason, occurred_at
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		var (
			event   domain.TimelineEvent
			from    string
			to      string
			trigger string
		)
		if err := rows.Scan(&event.OrderID, &event.Type, &from, &to, &trigger, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		event.From = domain.OrderStatus(from)
		event.To = domain.OrderStatus(to)
		event.Trigger = domain.TransitionTrigger(trigger)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline events: %w", err)
	}

	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
