package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ClementHansel/fieldtalk/internal/middleware"
	"github.com/ClementHansel/fieldtalk/internal/model"
	"github.com/ClementHansel/fieldtalk/internal/session"
)

// sessionTokenHeader はクライアント生成のセッショントークンを運ぶヘッダー。
const sessionTokenHeader = "X-Session-Token"

// SessionStoreInterface はセッションハンドラーが必要とするストアインターフェース。
type SessionStoreInterface interface {
	// EnsureVisitor はトークンに対応する訪問者を返す。必要なら新規作成する。
	EnsureVisitor(ctx context.Context, token string) (*model.VisitorIdentity, error)
	// GetVisitor は既存の訪問者を返す。未登録・期限切れの場合はnil。
	GetVisitor(ctx context.Context, token string) (*model.VisitorIdentity, error)
	// ClearSession はローカルキャッシュからトークンを破棄する。
	ClearSession(token string)
}

// SessionHandler は匿名訪問者セッションのHTTPハンドラー。
type SessionHandler struct {
	store   SessionStoreInterface
	timeout time.Duration
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(store SessionStoreInterface, timeout time.Duration) *SessionHandler {
	return &SessionHandler{store: store, timeout: timeout}
}

// visitorResponse は訪問者セッションのAPIレスポンス。
// セッショントークン自体はクライアントが保持しているため返さない。
type visitorResponse struct {
	VisitorID   string    `json:"visitor_id"`
	DisplayName string    `json:"display_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// EnsureSession はセッショントークンに対応する訪問者を確立する。
// POST /api/session
func (h *SessionHandler) EnsureSession(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(sessionTokenHeader)
	if token == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("X-Session-Token header is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	visitor, err := h.store.EnsureVisitor(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrBackendUnavailable) {
			middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewSessionUnavailableError())
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, visitorResponse{
		VisitorID:   visitor.ID,
		DisplayName: visitor.DisplayName,
		ExpiresAt:   visitor.ExpiresAt,
	})
}

// ClearSession はセッションを破棄する。
// DELETE /api/session
func (h *SessionHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(sessionTokenHeader)
	if token != "" {
		h.store.ClearSession(token)
	}
	w.WriteHeader(http.StatusNoContent)
}
