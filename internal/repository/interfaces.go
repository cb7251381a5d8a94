// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/ClementHansel/fieldtalk/internal/model"
)

// TempUserRepository は匿名訪問者データの永続化インターフェース。
type TempUserRepository interface {
	// GetOrCreate はセッショントークンをキーに訪問者をget-or-createする。
	// 既存の未失効レコードがあればそれを返し、candidateは破棄する。
	// 失効済みレコードは削除され、candidateが新しい識別子として登録される
	// （旧識別子のコンテンツは孤児化し、復活はさせない）。
	GetOrCreate(ctx context.Context, candidate *model.VisitorIdentity) (*model.VisitorIdentity, error)

	// FindByID は指定IDの訪問者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.VisitorIdentity, error)

	// FindByToken は指定トークンの訪問者を取得する。見つからない場合はnilを返す。
	// 失効判定は呼び出し側の責務。
	FindByToken(ctx context.Context, token string) (*model.VisitorIdentity, error)

	// DeleteExpired は失効済み訪問者レコードを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ProfileRepository は登録ユーザープロフィールの永続化インターフェース。
// プロフィールの作成は外部IdPの責務のため、読み取りと削除のみを提供する。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// DeleteByID は指定IDのプロフィールを削除する（ハードデリート）。
	DeleteByID(ctx context.Context, id string) error
}

// StaffSessionRepository はスタッフAPIセッションの検証インターフェース。
type StaffSessionRepository interface {
	// FindByToken は指定トークンのセッションを取得する。
	// 期限切れまたは未登録の場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.StaffSession, error)
}

// TopicRepository はトピックの永続化インターフェース。
type TopicRepository interface {
	// Create はトピックを作成する。
	Create(ctx context.Context, topic *model.Topic) error

	// FindByID は指定IDのトピックを取得する。見つからない場合はnilを返す。
	// モデレーション状態に関わらず返す（スタッフ・内部用）。
	FindByID(ctx context.Context, id string) (*model.Topic, error)

	// FindVisibleByID は一般閲覧者向けにトピックを取得する。
	// rejectedはデータアクセス境界で除外され、nilが返る。
	FindVisibleByID(ctx context.Context, id string) (*model.Topic, error)
}

// PostRepository はポスト（返信）の永続化インターフェース。
type PostRepository interface {
	// Create はポストを作成する。
	Create(ctx context.Context, post *model.Post) error

	// FindByID は指定IDのポストを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)

	// FindVisibleByID は一般閲覧者向けにポストを取得する。rejectedはnilになる。
	FindVisibleByID(ctx context.Context, id string) (*model.Post, error)

	// ListVisibleByTopic はトピック内のrejected以外のポストをcreated_at昇順で返す。
	ListVisibleByTopic(ctx context.Context, topicID string) ([]*model.Post, error)
}

// ContentRepository はトピックとポストを種別タグで統一的に扱う
// モデレーション用の永続化インターフェース。
type ContentRepository interface {
	// GetItem は指定参照のキューエントリを作者表示名解決済みで取得する。
	// 見つからない場合はnilを返す。
	GetItem(ctx context.Context, ref model.ContentRef) (*model.ModerationItem, error)

	// GetStatus は指定参照の現在のモデレーション状態を返す。
	// 見つからない場合は空文字列を返す。
	GetStatus(ctx context.Context, ref model.ContentRef) (model.ModerationStatus, error)

	// ListByStatus は指定状態のエントリを作者表示名解決済みで返す。
	// kindがnilの場合は両種別を対象にする。ソートは呼び出し側の責務。
	ListByStatus(ctx context.Context, kind *model.ContentKind, status model.ModerationStatus) ([]model.ModerationItem, error)

	// TransitionStatus はpendingからtoへのcompare-and-set遷移を行う。
	// 既にpending以外の場合は何も更新せずfalseを返す（エラーではない）。
	TransitionStatus(ctx context.Context, ref model.ContentRef, to model.ModerationStatus) (bool, error)

	// UpdateBody はコンテンツ本文（トピックはタイトルも）を更新する。
	// resetToPendingがtrueの場合は同時にmoderation_statusをpendingに戻す。
	UpdateBody(ctx context.Context, ref model.ContentRef, title *string, content string, resetToPending bool) error

	// Delete は指定参照のコンテンツを削除する（スタッフ用ハードデリート）。
	Delete(ctx context.Context, ref model.ContentRef) error

	// RejectAndDeleteAuthor は作者プロフィールの削除とコンテンツのreject遷移を
	// 同一トランザクションで行う。どちらかが失敗した場合は両方適用されない。
	RejectAndDeleteAuthor(ctx context.Context, ref model.ContentRef, profileID string) error

	// RejectAndBanIP はコンテンツのreject遷移とIP BANレコードの作成を
	// 同一トランザクションで行う。
	RejectAndBanIP(ctx context.Context, ref model.ContentRef, ban *model.BanRecord) error
}

// BanRepository はBANレコードの永続化インターフェース。
type BanRepository interface {
	// Create はBANレコードを作成する。
	Create(ctx context.Context, ban *model.BanRecord) error

	// FindActiveByIP は指定IPに対する有効なBANを返す。見つからない場合はnilを返す。
	// 複数該当する場合は permanent > temporary > shadow の優先順で1件を返す。
	// 失効判定はnowを基準にクエリ内で行う。
	FindActiveByIP(ctx context.Context, ip string, now time.Time) (*model.BanRecord, error)
}

// ActivityRepository は投稿試行アクティビティログの永続化インターフェース。
type ActivityRepository interface {
	// Append はアクティビティイベントを追記する。
	Append(ctx context.Context, event *model.ActivityEvent) error

	// ListRecent は直近のイベントを新しい順に最大limit件返す。
	ListRecent(ctx context.Context, limit int) ([]*model.ActivityEvent, error)

	// DeleteOlderThan はcutoffより古いイベントを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReportRepository はスパム通報の永続化インターフェース。
type ReportRepository interface {
	// Create は通報を作成する。
	Create(ctx context.Context, report *model.SpamReport) error
}
