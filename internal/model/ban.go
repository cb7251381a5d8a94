package model

import "time"

// BanSubjectType はBANの対象種別を表す。
type BanSubjectType string

const (
	BanSubjectUser BanSubjectType = "user"
	BanSubjectIP   BanSubjectType = "ip"
)

// BanType はBANの種類を表す。
type BanType string

const (
	BanTypeTemporary BanType = "temporary"
	BanTypePermanent BanType = "permanent"
	// BanTypeShadow は投稿自体は許可するが、モデレーション必須として
	// 無言でマークする。対象者に拒否を通知してはならない。
	BanTypeShadow BanType = "shadow"
)

// Valid はサポートされるBAN種別かを返す。
func (t BanType) Valid() bool {
	return t == BanTypeTemporary || t == BanTypePermanent || t == BanTypeShadow
}

// BanRecord はユーザーまたはIPに対するブロックを表す。
// 失効判定はチェック時に行い、能動的なスイープは行わない。
type BanRecord struct {
	ID           string
	SubjectType  BanSubjectType
	SubjectValue string
	BanType      BanType
	Reason       string
	CreatedBy    string
	ExpiresAt    *time.Time // permanentの場合はnil
	CreatedAt    time.Time
}

// ActiveAt は指定時刻においてBANが有効かを返す。
// permanentとshadowは常に有効、temporaryは失効日時前のみ有効。
func (b *BanRecord) ActiveAt(now time.Time) bool {
	if b.BanType == BanTypeTemporary && b.ExpiresAt != nil {
		return now.Before(*b.ExpiresAt)
	}
	return true
}
