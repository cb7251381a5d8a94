package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClementHansel/fieldtalk/internal/model"
)

// PostgresBanRepo はBANレコードのPostgreSQL実装。
type PostgresBanRepo struct {
	db *sql.DB
}

// NewPostgresBanRepo はPostgresBanRepoを生成する。
func NewPostgresBanRepo(db *sql.DB) *PostgresBanRepo {
	return &PostgresBanRepo{db: db}
}

// Create はBANレコードを作成する。
func (r *PostgresBanRepo) Create(ctx context.Context, ban *model.BanRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ban_records
		 (id, subject_type, subject_value, ban_type, reason, created_by, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ban.ID, ban.SubjectType, ban.SubjectValue, ban.BanType,
		ban.Reason, ban.CreatedBy, ban.ExpiresAt, ban.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ban record: %w", err)
	}

	return nil
}

// FindActiveByIP は指定IPに対して現在有効なBANレコードを返す。
// 複数該当する場合はpermanent > temporary > shadowの優先度で1件選ぶ。
// 一時BANは判定時刻で期限切れを除外する。該当なしはnil。
func (r *PostgresBanRepo) FindActiveByIP(ctx context.Context, ip string, now time.Time) (*model.BanRecord, error) {
	ban := &model.BanRecord{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, subject_type, subject_value, ban_type, reason, created_by, expires_at, created_at
		 FROM ban_records
		 WHERE subject_type = 'ip' AND subject_value = $1
		   AND (ban_type <> 'temporary' OR expires_at > $2)
		 ORDER BY CASE ban_type
		   WHEN 'permanent' THEN 0
		   WHEN 'temporary' THEN 1
		   ELSE 2
		 END, created_at DESC
		 LIMIT 1`,
		ip, now,
	).Scan(
		&ban.ID, &ban.SubjectType, &ban.SubjectValue, &ban.BanType,
		&ban.Reason, &ban.CreatedBy, &ban.ExpiresAt, &ban.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active ban: %w", err)
	}

	return ban, nil
}

// compile-time interface check
var _ BanRepository = (*PostgresBanRepo)(nil)
