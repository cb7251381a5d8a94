// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"math"
	"time"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, moderation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSessionUnavailable = "SESSION_UNAVAILABLE"
	ErrCodeIPDetectionFailed  = "IP_DETECTION_FAILED"
	ErrCodeIPBanned           = "IP_BANNED"
	ErrCodeSpamDetected       = "SPAM_DETECTED"
	ErrCodePreconditionFailed = "PRECONDITION_FAILED"
	ErrCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrCodeContentNotFound    = "CONTENT_NOT_FOUND"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeRateLimited        = "RATE_LIMITED"
)

// NewSessionUnavailableError はセッション確立失敗エラーを生成する。
// 書き込み操作はすべてブロックされ、捏造IDへのフォールバックは行わない。
func NewSessionUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionUnavailable,
		Message:  "Could not establish a visitor session.",
		Category: "system",
		Action:   "Please try again in a moment.",
	}
}

// NewIPDetectionFailedError はIP解決失敗エラーを生成する。
// ゲートはfail-closedポリシーで投稿を拒否する。
func NewIPDetectionFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeIPDetectionFailed,
		Message:  "Unable to verify your connection. Please try again.",
		Category: "validation",
		Action:   "Reload the page and retry your submission.",
	}
}

// NewIPBannedError はIP BANによる拒否エラーを生成する。
// 一時BANの場合はexpiresAtに失効日時を渡すとメッセージに含める。
// 理由は対象者自身のBANレコードのもののみを含め、他ユーザーの情報は漏らさない。
func NewIPBannedError(banType BanType, reason string, expiresAt *time.Time) *APIError {
	msg := "Your IP address has been blocked"
	if banType == BanTypePermanent {
		msg = "Your IP address has been permanently blocked"
	}
	if reason != "" {
		msg += ": " + reason
	}
	if banType == BanTypeTemporary && expiresAt != nil {
		msg += fmt.Sprintf(" (expires: %s)", expiresAt.Format("2006-01-02"))
	}
	return &APIError{
		Code:     ErrCodeIPBanned,
		Message:  msg,
		Category: "moderation",
		Action:   "Contact the moderators if you believe this is a mistake.",
	}
}

// NewSpamDetectedError はスパム判定による拒否エラーを生成する。
// confidenceは[0,1]で、メッセージには整数パーセントに丸めて埋め込む。
func NewSpamDetectedError(confidence float64) *APIError {
	return &APIError{
		Code:     ErrCodeSpamDetected,
		Message:  fmt.Sprintf("Content flagged as spam (%d%% confidence). Please revise your message.", int(math.Round(confidence*100))),
		Category: "moderation",
		Action:   "Edit your message and submit it again.",
	}
}

// NewPreconditionFailedError は操作の前提条件違反エラーを生成する。
// 例: 匿名投稿に対するban-author操作。
func NewPreconditionFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePreconditionFailed,
		Message:  reason,
		Category: "validation",
		Action:   "This action is not available for the selected item.",
	}
}

// NewBackendUnavailableError は一時的なバックエンド障害エラーを生成する。
// 変更系の操作では必ず呼び出し元に伝搬させ、握り潰さない。
func NewBackendUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeBackendUnavailable,
		Message:  "A backend service is temporarily unavailable.",
		Category: "system",
		Action:   "Please wait and retry the operation.",
	}
}

// NewContentNotFoundError はコンテンツ未検出エラーを生成する。
func NewContentNotFoundError(kind ContentKind, id string) *APIError {
	return &APIError{
		Code:     ErrCodeContentNotFound,
		Message:  fmt.Sprintf("%s not found: %s", kind, id),
		Category: "validation",
		Action:   "Check the content ID and try again.",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Sign in with a staff account and retry.",
	}
}

// NewRateLimitedError は投稿数上限による拒否エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "You are posting too quickly. Please wait a moment.",
		Category: "validation",
		Action:   "Wait a minute before submitting again.",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  reason,
		Category: "validation",
		Action:   "Fix the request and try again.",
	}
}
