package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/teamtasks/apiserver/types"
)

// NotificationRepository handles persistence for notifications and their
// read sets. Read-set changes are single conditional statements so that
// concurrent marks never lose or duplicate an entry.
type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// ListUnread returns notifications addressed to userID that userID has not
// read, oldest first, with the originating task title.
func (r *NotificationRepository) ListUnread(ctx context.Context, userID int64) ([]types.Notification, error) {
	const query = `
		SELECT n.id, n.team, n.task_id, COALESCE(t.title, ''), n.text, n.type,
		       n.read_by, n.created_at, n.updated_at
		FROM notifications n
		LEFT JOIN tasks t ON t.id = n.task_id
		WHERE n.team @> ARRAY[$1::bigint]
		  AND NOT ($1 = ANY(n.read_by))
		ORDER BY n.created_at, n.id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []types.Notification{}
	for rows.Next() {
		var (
			n      types.Notification
			team   pq.Int64Array
			readBy pq.Int64Array
			taskID sql.NullInt64
		)
		if err := rows.Scan(
			&n.ID,
			&team,
			&taskID,
			&n.TaskTitle,
			&n.Text,
			&n.Type,
			&readBy,
			&n.CreatedAt,
			&n.UpdatedAt,
		); err != nil {
			return nil, err
		}
		n.Team = []int64(team)
		n.ReadBy = []int64(readBy)
		if taskID.Valid {
			id := taskID.Int64
			n.TaskID = &id
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// AddReader appends userID to the read set of notification id if userID is
// a recipient and has not read it yet. It reports whether a row changed.
func (r *NotificationRepository) AddReader(ctx context.Context, id, userID int64) (bool, error) {
	const query = `
		UPDATE notifications
		SET read_by = array_append(read_by, $2),
			updated_at = $3
		WHERE id = $1
		  AND team @> ARRAY[$2::bigint]
		  AND NOT ($2 = ANY(read_by))`
	result, err := r.db.ExecContext(ctx, query, id, userID, time.Now())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// AddReaderToAll appends userID to the read set of every notification
// addressed to userID that is unread at statement time.
func (r *NotificationRepository) AddReaderToAll(ctx context.Context, userID int64) (int64, error) {
	const query = `
		UPDATE notifications
		SET read_by = array_append(read_by, $1),
			updated_at = $2
		WHERE team @> ARRAY[$1::bigint]
		  AND NOT ($1 = ANY(read_by))`
	result, err := r.db.ExecContext(ctx, query, userID, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ExistsForRecipient reports whether notification id exists and is
// addressed to userID.
func (r *NotificationRepository) ExistsForRecipient(ctx context.Context, id, userID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM notifications WHERE id = $1 AND team @> ARRAY[$2::bigint])`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&exists)
	return exists, err
}

func (r *NotificationRepository) Create(ctx context.Context, input types.NewNotification) (types.Notification, error) {
	now := time.Now()
	n := types.Notification{
		Team:      input.Team,
		TaskID:    input.TaskID,
		Text:      input.Text,
		Type:      input.Type,
		ReadBy:    []int64{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	var taskID sql.NullInt64
	if input.TaskID != nil {
		taskID = sql.NullInt64{Int64: *input.TaskID, Valid: true}
	}

	const query = `
		INSERT INTO notifications (team, task_id, text, type, read_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '{}', $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		pq.Array(n.Team),
		taskID,
		n.Text,
		n.Type,
		n.CreatedAt,
		n.UpdatedAt,
	).Scan(&n.ID); err != nil {
		return types.Notification{}, err
	}
	return n, nil
}

// UpsertTask records the latest known title of a task.
func (r *NotificationRepository) UpsertTask(ctx context.Context, id int64, title string) error {
	const query = `
		INSERT INTO tasks (id, title, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title`
	_, err := r.db.ExecContext(ctx, query, id, title, time.Now())
	return err
}
