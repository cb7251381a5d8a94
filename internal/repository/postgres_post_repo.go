package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ClementHansel/fieldtalk/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用したポストリポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// Create はポストを作成する。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts
		 (id, topic_id, content, author_id, temp_user_id,
		  is_anonymous, origin_ip, moderation_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		post.ID, post.TopicID, post.Content, post.AuthorID, post.TempUserID,
		post.IsAnonymous, post.OriginIP, post.ModerationStatus,
		post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// FindByID は指定IDのポストを取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	post := &model.Post{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, topic_id, content, author_id, temp_user_id,
		        is_anonymous, origin_ip, moderation_status, created_at, updated_at
		 FROM posts WHERE id = $1`, id,
	).Scan(
		&post.ID, &post.TopicID, &post.Content, &post.AuthorID, &post.TempUserID,
		&post.IsAnonymous, &post.OriginIP, &post.ModerationStatus,
		&post.CreatedAt, &post.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}

	return post, nil
}

// FindVisibleByID は一般閲覧者向けにポストを取得する。rejectedはnilになる。
func (r *PostgresPostRepo) FindVisibleByID(ctx context.Context, id string) (*model.Post, error) {
	post := &model.Post{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, topic_id, content, author_id, temp_user_id,
		        is_anonymous, origin_ip, moderation_status, created_at, updated_at
		 FROM posts WHERE id = $1 AND moderation_status <> 'rejected'`, id,
	).Scan(
		&post.ID, &post.TopicID, &post.Content, &post.AuthorID, &post.TempUserID,
		&post.IsAnonymous, &post.OriginIP, &post.ModerationStatus,
		&post.CreatedAt, &post.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}

	return post, nil
}

// ListVisibleByTopic はトピック内のrejected以外のポストをcreated_at昇順で返す。
func (r *PostgresPostRepo) ListVisibleByTopic(ctx context.Context, topicID string) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, topic_id, content, author_id, temp_user_id,
		        is_anonymous, origin_ip, moderation_status, created_at, updated_at
		 FROM posts
		 WHERE topic_id = $1 AND moderation_status <> 'rejected'
		 ORDER BY created_at ASC`, topicID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []*model.Post
	for rows.Next() {
		post := &model.Post{}
		if err := rows.Scan(
			&post.ID, &post.TopicID, &post.Content, &post.AuthorID, &post.TempUserID,
			&post.IsAnonymous, &post.OriginIP, &post.ModerationStatus,
			&post.CreatedAt, &post.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
