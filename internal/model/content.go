package model

import (
	"fmt"
	"time"
)

// ContentKind はコンテンツ種別のタグ付きバリアント。
// テーブル名の文字列組み立てではなく、このタグで購読やCRUDをパラメータ化する。
type ContentKind string

const (
	KindTopic ContentKind = "topic"
	KindPost  ContentKind = "post"
)

// Valid はサポートされる種別かを返す。
func (k ContentKind) Valid() bool {
	return k == KindTopic || k == KindPost
}

// ModerationStatus はコンテンツのモデレーション状態を表す。
type ModerationStatus string

const (
	StatusPending  ModerationStatus = "pending"
	StatusApproved ModerationStatus = "approved"
	StatusRejected ModerationStatus = "rejected"
)

// Valid はサポートされる状態かを返す。
func (s ModerationStatus) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// ContentRef はコンテンツ1件への参照。ブロードキャストチャンネルのキーになる。
type ContentRef struct {
	Kind ContentKind
	ID   string
}

// Channel は参照に対応するpub/subチャンネル名を返す。
// 形式: topic-moderation-{id} / post-moderation-{id}
func (r ContentRef) Channel() string {
	return fmt.Sprintf("%s-moderation-%s", r.Kind, r.ID)
}

// StatusEvent はモデレーション状態変更の通知イベント。
// 状態は単純なenumのため中間状態は畳み込んでよく、最新イベントのみ配信すれば足りる。
type StatusEvent struct {
	Ref       ContentRef       `json:"ref"`
	Status    ModerationStatus `json:"status"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Topic はフォーラムのトピック（スレッド）を表す。
// AuthorIDとTempUserIDは排他で、作成時はちょうど一方が設定される。
// 作者プロフィールの削除やセッションGC後は両方nilになり得る。
type Topic struct {
	ID               string
	CategorySlug     string
	Title            string
	Content          string
	AuthorID         *string
	TempUserID       *string
	IsAnonymous      bool
	OriginIP         string
	ModerationStatus ModerationStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Post はトピックへの返信を表す。
type Post struct {
	ID               string
	TopicID          string
	Content          string
	AuthorID         *string
	TempUserID       *string
	IsAnonymous      bool
	OriginIP         string
	ModerationStatus ModerationStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ModerationItem はモデレーションキューの1エントリ。
// トピックとポストをマージした共通ビューで、作者表示名を解決済み。
type ModerationItem struct {
	Ref         ContentRef
	Title       string
	Content     string
	Author      string // プロフィール名 → 訪問者表示名 → "Anonymous User" の順で解決
	AuthorID    *string
	IsAnonymous bool
	OriginIP    string
	Status      ModerationStatus
	TopicID     string // Kind=postの場合のみ
	CreatedAt   time.Time
}
