package model

import "time"

// スタッフロール。プロフィールの発行・認証は外部IdPの責務で、
// 本システムはロールの検証と（BAN時の）削除のみを行う。
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Profile は登録済みユーザー（スタッフ含む）のプロフィールを表す。
type Profile struct {
	ID        string
	Username  string
	Role      string
	CreatedAt time.Time
}

// IsStaff はモデレーション操作が許可されるロールかを返す。
func (p *Profile) IsStaff() bool {
	return p.Role == RoleModerator || p.Role == RoleAdmin
}

// StaffSession は外部でプロビジョニングされたスタッフのAPIセッション。
// 本システムはトークンの検証のみを行い、発行はしない。
type StaffSession struct {
	Token     string
	ProfileID string
	ExpiresAt time.Time
	CreatedAt time.Time
}
