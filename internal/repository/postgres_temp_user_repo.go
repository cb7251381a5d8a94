package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClementHansel/fieldtalk/internal/model"
)

// PostgresTempUserRepo はPostgreSQLを使用した匿名訪問者リポジトリ。
type PostgresTempUserRepo struct {
	db *sql.DB
}

// NewPostgresTempUserRepo はPostgresTempUserRepoを生成する。
func NewPostgresTempUserRepo(db *sql.DB) *PostgresTempUserRepo {
	return &PostgresTempUserRepo{db: db}
}

// GetOrCreate はセッショントークンをキーに訪問者をget-or-createする。
// 失効済みレコードはIDを使い回さず削除して作り直す。既存IDはコンテンツ行から
// 参照され得るため、DO UPDATEでのID差し替えはFK違反になる。削除時のSET NULLで
// 旧コンテンツを孤児化させてから新しいIDを発行する。
func (r *PostgresTempUserRepo) GetOrCreate(ctx context.Context, candidate *model.VisitorIdentity) (*model.VisitorIdentity, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM temporary_users WHERE session_token = $1 AND expires_at <= now()`,
		candidate.SessionToken,
	); err != nil {
		return nil, fmt.Errorf("failed to delete expired temp user: %w", err)
	}

	visitor := &model.VisitorIdentity{}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO temporary_users (id, session_token, display_name, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_token) DO NOTHING
		 RETURNING id, session_token, display_name, created_at, expires_at`,
		candidate.ID, candidate.SessionToken, candidate.DisplayName,
		candidate.CreatedAt, candidate.ExpiresAt,
	).Scan(&visitor.ID, &visitor.SessionToken, &visitor.DisplayName,
		&visitor.CreatedAt, &visitor.ExpiresAt)

	if err == sql.ErrNoRows {
		// 未失効の既存レコードが存在する
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return r.FindByToken(ctx, candidate.SessionToken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get or create temp user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return visitor, nil
}

// FindByToken はセッショントークンで訪問者を取得する。見つからない場合はnilを返す。
// 失効判定は呼び出し側の責務。
func (r *PostgresTempUserRepo) FindByToken(ctx context.Context, token string) (*model.VisitorIdentity, error) {
	visitor := &model.VisitorIdentity{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, session_token, display_name, created_at, expires_at
		 FROM temporary_users
		 WHERE session_token = $1`,
		token,
	).Scan(&visitor.ID, &visitor.SessionToken, &visitor.DisplayName,
		&visitor.CreatedAt, &visitor.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find temp user by token: %w", err)
	}

	return visitor, nil
}

// FindByID は指定IDの訪問者を取得する。見つからない場合はnilを返す。
func (r *PostgresTempUserRepo) FindByID(ctx context.Context, id string) (*model.VisitorIdentity, error) {
	visitor := &model.VisitorIdentity{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, session_token, display_name, created_at, expires_at
		 FROM temporary_users
		 WHERE id = $1`,
		id,
	).Scan(&visitor.ID, &visitor.SessionToken, &visitor.DisplayName,
		&visitor.CreatedAt, &visitor.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find temp user: %w", err)
	}

	return visitor, nil
}

// DeleteExpired は失効済み訪問者レコードを削除し、削除件数を返す。
func (r *PostgresTempUserRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM temporary_users WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired temp users: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// compile-time interface check
var _ TempUserRepository = (*PostgresTempUserRepo)(nil)
