package model

import "time"

// VisitorTTL は匿名セッションの有効期間。
// expires_atは常にcreated_at + VisitorTTLであり、延長も復活もしない。
const VisitorTTL = 12 * time.Hour

// VisitorIdentity は匿名訪問者の1ブラウジングセッションを表す。
// SessionTokenはクライアント生成の不透明な乱数文字列で、
// サーバーはtoken → visitorの解決マッピングのみを保持する。
type VisitorIdentity struct {
	ID           string
	SessionToken string
	DisplayName  string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// ExpiredAt は指定時刻においてセッションが期限切れかを返す。
// 期限切れセッションは「存在しない」ものとして扱い、新規作成し直す。
func (v *VisitorIdentity) ExpiredAt(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}
