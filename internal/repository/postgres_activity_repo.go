package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClementHansel/fieldtalk/internal/model"
)

// PostgresActivityRepo は投稿アクティビティログのPostgreSQL実装。
type PostgresActivityRepo struct {
	db *sql.DB
}

// NewPostgresActivityRepo はPostgresActivityRepoを生成する。
func NewPostgresActivityRepo(db *sql.DB) *PostgresActivityRepo {
	return &PostgresActivityRepo{db: db}
}

// Append はアクティビティイベントを1件追記する。
func (r *PostgresActivityRepo) Append(ctx context.Context, event *model.ActivityEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_log
		 (id, ip_address, session_id, activity_type, content_id, is_blocked, block_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.IPAddress, event.SessionID, event.ActivityType,
		event.ContentID, event.IsBlocked, event.BlockReason, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append activity event: %w", err)
	}

	return nil
}

// ListRecent は新しい順にアクティビティイベントを返す。
func (r *PostgresActivityRepo) ListRecent(ctx context.Context, limit int) ([]*model.ActivityEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ip_address, session_id, activity_type, content_id, is_blocked, block_reason, created_at
		 FROM activity_log
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity events: %w", err)
	}
	defer rows.Close()

	var events []*model.ActivityEvent
	for rows.Next() {
		event := &model.ActivityEvent{}
		err := rows.Scan(
			&event.ID, &event.IPAddress, &event.SessionID, &event.ActivityType,
			&event.ContentID, &event.IsBlocked, &event.BlockReason, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity events: %w", err)
	}

	return events, nil
}

// DeleteOlderThan は指定時刻より古いイベントを削除し、削除件数を返す。
func (r *PostgresActivityRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM activity_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old activity events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// compile-time interface check
var _ ActivityRepository = (*PostgresActivityRepo)(nil)
