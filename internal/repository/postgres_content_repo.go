package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ClementHansel/fieldtalk/internal/model"
)

// PostgresContentRepo はトピックとポストを種別タグで統一的に扱う
// モデレーション用リポジトリ。テーブル名の動的組み立てはせず、
// 種別ごとに固定のSQLを切り替える。
type PostgresContentRepo struct {
	db *sql.DB
}

// NewPostgresContentRepo はPostgresContentRepoを生成する。
func NewPostgresContentRepo(db *sql.DB) *PostgresContentRepo {
	return &PostgresContentRepo{db: db}
}

// 作者表示名はプロフィール名 → 訪問者表示名 → 'Anonymous User' の順で解決する。
const (
	topicItemSelect = `
		SELECT t.id, t.title, t.content,
		       COALESCE(p.username, tu.display_name, 'Anonymous User'),
		       t.author_id, t.is_anonymous, t.origin_ip, t.moderation_status,
		       '', t.created_at
		FROM topics t
		LEFT JOIN profiles p ON p.id = t.author_id
		LEFT JOIN temporary_users tu ON tu.id = t.temp_user_id`

	postItemSelect = `
		SELECT po.id, 'Re: ' || tp.title, po.content,
		       COALESCE(p.username, tu.display_name, 'Anonymous User'),
		       po.author_id, po.is_anonymous, po.origin_ip, po.moderation_status,
		       po.topic_id, po.created_at
		FROM posts po
		JOIN topics tp ON tp.id = po.topic_id
		LEFT JOIN profiles p ON p.id = po.author_id
		LEFT JOIN temporary_users tu ON tu.id = po.temp_user_id`
)

func scanModerationItem(row interface {
	Scan(dest ...any) error
}, kind model.ContentKind) (*model.ModerationItem, error) {
	item := &model.ModerationItem{Ref: model.ContentRef{Kind: kind}}
	err := row.Scan(
		&item.Ref.ID, &item.Title, &item.Content, &item.Author,
		&item.AuthorID, &item.IsAnonymous, &item.OriginIP, &item.Status,
		&item.TopicID, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetItem は指定参照のキューエントリを作者表示名解決済みで取得する。
// 見つからない場合はnilを返す。
func (r *PostgresContentRepo) GetItem(ctx context.Context, ref model.ContentRef) (*model.ModerationItem, error) {
	var query string
	switch ref.Kind {
	case model.KindTopic:
		query = topicItemSelect + ` WHERE t.id = $1`
	case model.KindPost:
		query = postItemSelect + ` WHERE po.id = $1`
	default:
		return nil, fmt.Errorf("unknown content kind: %s", ref.Kind)
	}

	item, err := scanModerationItem(r.db.QueryRowContext(ctx, query, ref.ID), ref.Kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s item: %w", ref.Kind, err)
	}

	return item, nil
}

// GetStatus は指定参照の現在のモデレーション状態を返す。
// 見つからない場合は空文字列を返す。
func (r *PostgresContentRepo) GetStatus(ctx context.Context, ref model.ContentRef) (model.ModerationStatus, error) {
	var query string
	switch ref.Kind {
	case model.KindTopic:
		query = `SELECT moderation_status FROM topics WHERE id = $1`
	case model.KindPost:
		query = `SELECT moderation_status FROM posts WHERE id = $1`
	default:
		return "", fmt.Errorf("unknown content kind: %s", ref.Kind)
	}

	var status model.ModerationStatus
	err := r.db.QueryRowContext(ctx, query, ref.ID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s status: %w", ref.Kind, err)
	}

	return status, nil
}

// ListByStatus は指定状態のエントリを作者表示名解決済みで返す。
// kindがnilの場合は両種別を対象にする。
func (r *PostgresContentRepo) ListByStatus(ctx context.Context, kind *model.ContentKind, status model.ModerationStatus) ([]model.ModerationItem, error) {
	kinds := []model.ContentKind{model.KindTopic, model.KindPost}
	if kind != nil {
		kinds = []model.ContentKind{*kind}
	}

	var items []model.ModerationItem
	for _, k := range kinds {
		var query string
		switch k {
		case model.KindTopic:
			query = topicItemSelect + ` WHERE t.moderation_status = $1 ORDER BY t.created_at DESC`
		case model.KindPost:
			query = postItemSelect + ` WHERE po.moderation_status = $1 ORDER BY po.created_at DESC`
		default:
			return nil, fmt.Errorf("unknown content kind: %s", k)
		}

		rows, err := r.db.QueryContext(ctx, query, status)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s items: %w", k, err)
		}

		for rows.Next() {
			item, err := scanModerationItem(rows, k)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s item: %w", k, err)
			}
			items = append(items, *item)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to iterate %s items: %w", k, err)
		}
		rows.Close()
	}

	return items, nil
}

// TransitionStatus はpendingからtoへのcompare-and-set遷移を行う。
// 既にpending以外の場合は何も更新せずfalseを返す。複数スタッフの同時操作でも
// 遷移はちょうど1回しか記録されない。
func (r *PostgresContentRepo) TransitionStatus(ctx context.Context, ref model.ContentRef, to model.ModerationStatus) (bool, error) {
	var query string
	switch ref.Kind {
	case model.KindTopic:
		query = `UPDATE topics SET moderation_status = $2, updated_at = now()
		         WHERE id = $1 AND moderation_status = 'pending'`
	case model.KindPost:
		query = `UPDATE posts SET moderation_status = $2, updated_at = now()
		         WHERE id = $1 AND moderation_status = 'pending'`
	default:
		return false, fmt.Errorf("unknown content kind: %s", ref.Kind)
	}

	result, err := r.db.ExecContext(ctx, query, ref.ID, to)
	if err != nil {
		return false, fmt.Errorf("failed to transition %s status: %w", ref.Kind, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// UpdateBody はコンテンツ本文（トピックはタイトルも）を更新する。
// resetToPendingがtrueの場合は同時にmoderation_statusをpendingに戻す。
func (r *PostgresContentRepo) UpdateBody(ctx context.Context, ref model.ContentRef, title *string, content string, resetToPending bool) error {
	var result sql.Result
	var err error

	switch ref.Kind {
	case model.KindTopic:
		if resetToPending {
			result, err = r.db.ExecContext(ctx,
				`UPDATE topics SET title = COALESCE($2, title), content = $3,
				        moderation_status = 'pending', updated_at = now()
				 WHERE id = $1`, ref.ID, title, content)
		} else {
			result, err = r.db.ExecContext(ctx,
				`UPDATE topics SET title = COALESCE($2, title), content = $3, updated_at = now()
				 WHERE id = $1`, ref.ID, title, content)
		}
	case model.KindPost:
		if resetToPending {
			result, err = r.db.ExecContext(ctx,
				`UPDATE posts SET content = $2, moderation_status = 'pending', updated_at = now()
				 WHERE id = $1`, ref.ID, content)
		} else {
			result, err = r.db.ExecContext(ctx,
				`UPDATE posts SET content = $2, updated_at = now() WHERE id = $1`, ref.ID, content)
		}
	default:
		return fmt.Errorf("unknown content kind: %s", ref.Kind)
	}

	if err != nil {
		return fmt.Errorf("failed to update %s body: %w", ref.Kind, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s not found: %s", ref.Kind, ref.ID)
	}

	return nil
}

// Delete は指定参照のコンテンツを削除する（スタッフ用ハードデリート）。
func (r *PostgresContentRepo) Delete(ctx context.Context, ref model.ContentRef) error {
	var query string
	switch ref.Kind {
	case model.KindTopic:
		query = `DELETE FROM topics WHERE id = $1`
	case model.KindPost:
		query = `DELETE FROM posts WHERE id = $1`
	default:
		return fmt.Errorf("unknown content kind: %s", ref.Kind)
	}

	result, err := r.db.ExecContext(ctx, query, ref.ID)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", ref.Kind, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s not found: %s", ref.Kind, ref.ID)
	}

	return nil
}

// RejectAndDeleteAuthor は作者プロフィールの削除とコンテンツのreject遷移を
// 同一トランザクションで行う。どちらかが失敗した場合は両方ロールバックされる。
func (r *PostgresContentRepo) RejectAndDeleteAuthor(ctx context.Context, ref model.ContentRef, profileID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := rejectInTx(ctx, tx, ref); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, profileID)
	if err != nil {
		return fmt.Errorf("failed to delete author profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("author profile not found: %s", profileID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RejectAndBanIP はコンテンツのreject遷移とIP BANレコードの作成を
// 同一トランザクションで行う。
func (r *PostgresContentRepo) RejectAndBanIP(ctx context.Context, ref model.ContentRef, ban *model.BanRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := rejectInTx(ctx, tx, ref); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ban_records
		 (id, subject_type, subject_value, ban_type, reason, created_by, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ban.ID, ban.SubjectType, ban.SubjectValue, ban.BanType,
		ban.Reason, ban.CreatedBy, ban.ExpiresAt, ban.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ban record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// rejectInTx はBAN系の複合操作内でコンテンツをrejectedへ遷移させる。
// pending以外からも強制的にrejectedにする（BANはCASではなく強制遷移）。
func rejectInTx(ctx context.Context, tx *sql.Tx, ref model.ContentRef) error {
	var query string
	switch ref.Kind {
	case model.KindTopic:
		query = `UPDATE topics SET moderation_status = 'rejected', updated_at = now() WHERE id = $1`
	case model.KindPost:
		query = `UPDATE posts SET moderation_status = 'rejected', updated_at = now() WHERE id = $1`
	default:
		return fmt.Errorf("unknown content kind: %s", ref.Kind)
	}

	result, err := tx.ExecContext(ctx, query, ref.ID)
	if err != nil {
		return fmt.Errorf("failed to reject %s: %w", ref.Kind, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s not found: %s", ref.Kind, ref.ID)
	}

	return nil
}

// compile-time interface check
var _ ContentRepository = (*PostgresContentRepo)(nil)
