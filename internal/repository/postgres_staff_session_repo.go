package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ClementHansel/fieldtalk/internal/model"
)

// PostgresStaffSessionRepo はPostgreSQLを使用したスタッフセッションリポジトリ。
// トークンの発行は外部の認証基盤が行い、本リポジトリは検証のみを担当する。
type PostgresStaffSessionRepo struct {
	db *sql.DB
}

// NewPostgresStaffSessionRepo はPostgresStaffSessionRepoを生成する。
func NewPostgresStaffSessionRepo(db *sql.DB) *PostgresStaffSessionRepo {
	return &PostgresStaffSessionRepo{db: db}
}

// FindByToken は指定トークンのセッションを取得する。
// 期限切れまたは未登録の場合はnilを返す。
func (r *PostgresStaffSessionRepo) FindByToken(ctx context.Context, token string) (*model.StaffSession, error) {
	session := &model.StaffSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT token, profile_id, expires_at, created_at
		 FROM staff_sessions
		 WHERE token = $1 AND expires_at > now()`,
		token,
	).Scan(&session.Token, &session.ProfileID, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find staff session: %w", err)
	}

	return session, nil
}

// compile-time interface check
var _ StaffSessionRepository = (*PostgresStaffSessionRepo)(nil)
