package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ClementHansel/fieldtalk/internal/model"
)

// PostgresTopicRepo はPostgreSQLを使用したトピックリポジトリ。
type PostgresTopicRepo struct {
	db *sql.DB
}

// NewPostgresTopicRepo はPostgresTopicRepoを生成する。
func NewPostgresTopicRepo(db *sql.DB) *PostgresTopicRepo {
	return &PostgresTopicRepo{db: db}
}

// Create はトピックを作成する。
func (r *PostgresTopicRepo) Create(ctx context.Context, topic *model.Topic) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO topics
		 (id, category_slug, title, content, author_id, temp_user_id,
		  is_anonymous, origin_ip, moderation_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		topic.ID, topic.CategorySlug, topic.Title, topic.Content,
		topic.AuthorID, topic.TempUserID, topic.IsAnonymous, topic.OriginIP,
		topic.ModerationStatus, topic.CreatedAt, topic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	return nil
}

// FindByID は指定IDのトピックを取得する。見つからない場合はnilを返す。
func (r *PostgresTopicRepo) FindByID(ctx context.Context, id string) (*model.Topic, error) {
	return r.findOne(ctx,
		`SELECT id, category_slug, title, content, author_id, temp_user_id,
		        is_anonymous, origin_ip, moderation_status, created_at, updated_at
		 FROM topics WHERE id = $1`, id)
}

// FindVisibleByID は一般閲覧者向けにトピックを取得する。
// rejectedはデータアクセス境界で除外される。
func (r *PostgresTopicRepo) FindVisibleByID(ctx context.Context, id string) (*model.Topic, error) {
	return r.findOne(ctx,
		`SELECT id, category_slug, title, content, author_id, temp_user_id,
		        is_anonymous, origin_ip, moderation_status, created_at, updated_at
		 FROM topics WHERE id = $1 AND moderation_status <> 'rejected'`, id)
}

func (r *PostgresTopicRepo) findOne(ctx context.Context, query, id string) (*model.Topic, error) {
	topic := &model.Topic{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&topic.ID, &topic.CategorySlug, &topic.Title, &topic.Content,
		&topic.AuthorID, &topic.TempUserID, &topic.IsAnonymous, &topic.OriginIP,
		&topic.ModerationStatus, &topic.CreatedAt, &topic.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find topic: %w", err)
	}

	return topic, nil
}

// compile-time interface check
var _ TopicRepository = (*PostgresTopicRepo)(nil)
