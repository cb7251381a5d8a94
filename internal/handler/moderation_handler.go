package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ClementHansel/fieldtalk/internal/middleware"
	"github.com/ClementHansel/fieldtalk/internal/model"
)

// ModerationServiceInterface はモデレーションハンドラーが必要とするサービスインターフェース。
type ModerationServiceInterface interface {
	ListPending(ctx context.Context, kind *model.ContentKind) ([]model.ModerationItem, error)
	Approve(ctx context.Context, ref model.ContentRef) error
	Reject(ctx context.Context, ref model.ContentRef) error
	Delete(ctx context.Context, ref model.ContentRef) error
	BanAuthor(ctx context.Context, ref model.ContentRef) error
	BanIP(ctx context.Context, ref model.ContentRef, banType model.BanType, reason, moderatorID string, expiresAt *time.Time) error
	ListActivity(ctx context.Context, limit int) ([]*model.ActivityEvent, error)
	// GetStatus はStatusProviderInterfaceと共通。同一サービスが状態参照も担う。
	GetStatus(ctx context.Context, ref model.ContentRef) (model.ModerationStatus, error)
}

// ModerationHandler はスタッフ向けモデレーション操作のHTTPハンドラー。
// 全ルートはスタッフ認証ミドルウェアの内側に配置される。
type ModerationHandler struct {
	service ModerationServiceInterface
	timeout time.Duration
}

// NewModerationHandler はModerationHandlerを生成する。
func NewModerationHandler(service ModerationServiceInterface, timeout time.Duration) *ModerationHandler {
	return &ModerationHandler{service: service, timeout: timeout}
}

// moderationItemResponse はモデレーションキューエントリのAPIレスポンス。
type moderationItemResponse struct {
	Kind        string    `json:"kind"`
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Author      string    `json:"author"`
	IsAnonymous bool      `json:"is_anonymous"`
	OriginIP    string    `json:"origin_ip"`
	Status      string    `json:"status"`
	TopicID     string    `json:"topic_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// activityEventResponse はゲートアクティビティのAPIレスポンス。
type activityEventResponse struct {
	ID           string    `json:"id"`
	IPAddress    string    `json:"ip_address"`
	SessionID    string    `json:"session_id"`
	ActivityType string    `json:"activity_type"`
	IsBlocked    bool      `json:"is_blocked"`
	BlockReason  string    `json:"block_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// banIPRequest はIP BANリクエストのボディ。
type banIPRequest struct {
	BanType   string     `json:"ban_type"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ListPending はモデレーション待ちエントリの一覧を返す。
// kindクエリパラメータでトピックのみ・ポストのみに絞り込める。
// GET /api/moderation/pending
func (h *ModerationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	var kind *model.ContentKind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		k, err := parseContentKind(raw)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		kind = &k
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.service.ListPending(ctx, kind)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]moderationItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, moderationItemResponse{
			Kind:        string(item.Ref.Kind),
			ID:          item.Ref.ID,
			Title:       item.Title,
			Content:     item.Content,
			Author:      item.Author,
			IsAnonymous: item.IsAnonymous,
			OriginIP:    item.OriginIP,
			Status:      string(item.Status),
			TopicID:     item.TopicID,
			CreatedAt:   item.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Approve はコンテンツを承認する。冪等で、処理済みエントリへの再実行は成功を返す。
// POST /api/moderation/{kind}/{id}/approve
func (h *ModerationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.applyVerdict(w, r, h.service.Approve)
}

// Reject はコンテンツを拒否する。冪等。
// POST /api/moderation/{kind}/{id}/reject
func (h *ModerationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.applyVerdict(w, r, h.service.Reject)
}

// Delete はコンテンツを完全に削除する。
// DELETE /api/moderation/{kind}/{id}
func (h *ModerationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.applyVerdict(w, r, h.service.Delete)
}

// BanAuthor は投稿の作者を永久追放する。匿名投稿には409を返す。
// POST /api/moderation/{kind}/{id}/ban-author
func (h *ModerationHandler) BanAuthor(w http.ResponseWriter, r *http.Request) {
	h.applyVerdict(w, r, h.service.BanAuthor)
}

// BanIP は投稿の発信元IPをBANする。
// POST /api/moderation/{kind}/{id}/ban-ip
func (h *ModerationHandler) BanIP(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	moderator, err := middleware.StaffFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req banIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("Failed to parse request body."))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.service.BanIP(ctx, ref, model.BanType(req.BanType), req.Reason, moderator.ID, req.ExpiresAt); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListActivity は直近のゲートアクティビティを返す。
// GET /api/moderation/activity
func (h *ModerationHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("limit must be an integer"))
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	events, err := h.service.ListActivity(ctx, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]activityEventResponse, 0, len(events))
	for _, event := range events {
		resp = append(resp, activityEventResponse{
			ID:           event.ID,
			IPAddress:    event.IPAddress,
			SessionID:    event.SessionID,
			ActivityType: string(event.ActivityType),
			IsBlocked:    event.IsBlocked,
			BlockReason:  event.BlockReason,
			CreatedAt:    event.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// applyVerdict は{kind}/{id}参照に対する単純な判定操作を適用する。
func (h *ModerationHandler) applyVerdict(w http.ResponseWriter, r *http.Request, apply func(context.Context, model.ContentRef) error) {
	ref, err := refFromRequest(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := apply(ctx, ref); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
