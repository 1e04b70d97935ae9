package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
)

type notificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создаёт PostgreSQL-реализацию NotificationRepository.
func NewNotificationRepository(store *Store) domain.NotificationRepository {
	return &notificationRepository{db: store.DB()}
}

func (r *notificationRepository) Append(n domain.Notification) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, order_id, type, title, message, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		n.ID, n.OrderID, string(n.Type), n.Title, n.Message, n.IsRead, n.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

func (r *notificationRepository) List(unreadOnly bool, limit int) ([]domain.Notification, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, order_id, type, title, message, is_read, created_at
		FROM notifications
	`
	args := make([]any, 0, 1)
	if unreadOnly {
		query += " WHERE is_read = FALSE"
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]domain.Notification, 0)
	for rows.Next() {
		var (
			n     domain.Notification
			ntype string
		)
		if err := rows.Scan(&n.ID, &n.OrderID, &ntype, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = domain.NotificationType(ntype)
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return notifications, nil
}

func (r *notificationRepository) MarkRead(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotificationNotFound
	}

	return nil
}

var _ domain.NotificationRepository = (*notificationRepository)(nil)
