package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ClementHansel/fieldtalk/internal/forum"
	"github.com/ClementHansel/fieldtalk/internal/gate"
	"github.com/ClementHansel/fieldtalk/internal/middleware"
	"github.com/ClementHansel/fieldtalk/internal/model"
	"github.com/ClementHansel/fieldtalk/internal/session"
)

// ForumServiceInterface はフォーラムハンドラーが必要とするサービスインターフェース。
type ForumServiceInterface interface {
	CreateTopic(ctx context.Context, in forum.CreateTopicInput) (*model.Topic, error)
	CreatePost(ctx context.Context, in forum.CreatePostInput) (*model.Post, error)
	Edit(ctx context.Context, in forum.EditInput) error
	Report(ctx context.Context, in forum.ReportInput) error
	GetTopic(ctx context.Context, id string) (*model.Topic, []*model.Post, error)
}

// GateInterface は投稿受付ゲートのインターフェース。
type GateInterface interface {
	// CheckSubmission は投稿1件のゲート判定を行う。
	CheckSubmission(ctx context.Context, req *http.Request, sessionID string, kind model.ContentKind, content string) gate.Decision
}

// ForumHandler はトピック・ポストの投稿・編集・通報のHTTPハンドラー。
// すべての投稿系操作はゲート判定を通過してからサービスに渡される。
type ForumHandler struct {
	service  ForumServiceInterface
	gate     GateInterface
	sessions SessionStoreInterface
	clientIP func(*http.Request) string
	timeout  time.Duration
}

// NewForumHandler はForumHandlerを生成する。
func NewForumHandler(
	service ForumServiceInterface,
	g GateInterface,
	sessions SessionStoreInterface,
	clientIP func(*http.Request) string,
	timeout time.Duration,
) *ForumHandler {
	return &ForumHandler{
		service:  service,
		gate:     g,
		sessions: sessions,
		clientIP: clientIP,
		timeout:  timeout,
	}
}

type createTopicRequest struct {
	Category string `json:"category"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

type createPostRequest struct {
	Content string `json:"content"`
}

type editContentRequest struct {
	Title   *string `json:"title,omitempty"`
	Content string  `json:"content"`
}

type reportRequest struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type topicResponse struct {
	ID               string    `json:"id"`
	Category         string    `json:"category"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	IsAnonymous      bool      `json:"is_anonymous"`
	ModerationStatus string    `json:"moderation_status"`
	CreatedAt        time.Time `json:"created_at"`
}

type postResponse struct {
	ID               string    `json:"id"`
	TopicID          string    `json:"topic_id"`
	Content          string    `json:"content"`
	IsAnonymous      bool      `json:"is_anonymous"`
	ModerationStatus string    `json:"moderation_status"`
	CreatedAt        time.Time `json:"created_at"`
}

type topicDetailResponse struct {
	Topic topicResponse  `json:"topic"`
	Posts []postResponse `json:"posts"`
}

// CreateTopic はトピック作成を処理する。
// POST /api/topics
func (h *ForumHandler) CreateTopic(w http.ResponseWriter, r *http.Request) {
	var req createTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("Failed to parse request body."))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	visitor, ok := h.resolveVisitor(ctx, w, r)
	if !ok {
		return
	}

	decision := h.gate.CheckSubmission(ctx, r, visitor.ID, model.KindTopic, req.Title+"\n"+req.Content)
	if !decision.Allowed {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(decision.Err), decision.Err)
		return
	}

	topic, err := h.service.CreateTopic(ctx, forum.CreateTopicInput{
		CategorySlug: req.Category,
		Title:        req.Title,
		Content:      req.Content,
		Actor:        forum.Actor{VisitorID: &visitor.ID},
		OriginIP:     decision.IP,
		ForcePending: decision.ForcePending,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTopicResponse(topic))
}

// CreatePost はトピックへの返信作成を処理する。
// POST /api/topics/{id}/posts
func (h *ForumHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	topicID := chi.URLParam(r, "id")

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("Failed to parse request body."))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	visitor, ok := h.resolveVisitor(ctx, w, r)
	if !ok {
		return
	}

	decision := h.gate.CheckSubmission(ctx, r, visitor.ID, model.KindPost, req.Content)
	if !decision.Allowed {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(decision.Err), decision.Err)
		return
	}

	post, err := h.service.CreatePost(ctx, forum.CreatePostInput{
		TopicID:      topicID,
		Content:      req.Content,
		Actor:        forum.Actor{VisitorID: &visitor.ID},
		OriginIP:     decision.IP,
		ForcePending: decision.ForcePending,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostResponse(post))
}

// EditContent はコンテンツ本文の編集を処理する。
// 有効なスタッフBearerトークンがあればスタッフとして、なければ
// セッショントークンの訪問者本人として権限を判定する。
// PATCH /api/content/{kind}/{id}
func (h *ForumHandler) EditContent(w http.ResponseWriter, r *http.Request) {
	kind, err := parseContentKind(chi.URLParam(r, "kind"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	ref := model.ContentRef{Kind: kind, ID: chi.URLParam(r, "id")}

	var req editContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("Failed to parse request body."))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, sessionID, ok := h.resolveActor(ctx, w, r)
	if !ok {
		return
	}

	decision := h.gate.CheckSubmission(ctx, r, sessionID, kind, req.Content)
	if !decision.Allowed {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(decision.Err), decision.Err)
		return
	}

	if err := h.service.Edit(ctx, forum.EditInput{
		Ref:          ref,
		Title:        req.Title,
		Content:      req.Content,
		Actor:        actor,
		ForcePending: decision.ForcePending,
	}); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Report はコンテンツのスパム通報を処理する。
// POST /api/reports
func (h *ForumHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("Failed to parse request body."))
		return
	}

	kind, err := parseContentKind(req.Kind)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.service.Report(ctx, forum.ReportInput{
		Ref:        model.ContentRef{Kind: kind, ID: req.ID},
		ReporterIP: h.clientIP(r),
		Reason:     req.Reason,
	}); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// GetTopic はトピックと返信一覧の取得を処理する。
// GET /api/topics/{id}
func (h *ForumHandler) GetTopic(w http.ResponseWriter, r *http.Request) {
	topicID := chi.URLParam(r, "id")

	topic, posts, err := h.service.GetTopic(r.Context(), topicID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := topicDetailResponse{
		Topic: toTopicResponse(topic),
		Posts: make([]postResponse, 0, len(posts)),
	}
	for _, post := range posts {
		resp.Posts = append(resp.Posts, toPostResponse(post))
	}

	writeJSON(w, http.StatusOK, resp)
}

// resolveVisitor はセッショントークンを訪問者に解決する。
// 失敗時はエラーレスポンスを書き込み、okにfalseを返す。
func (h *ForumHandler) resolveVisitor(ctx context.Context, w http.ResponseWriter, r *http.Request) (*model.VisitorIdentity, bool) {
	token := r.Header.Get(sessionTokenHeader)
	if token == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("X-Session-Token header is required"))
		return nil, false
	}

	visitor, err := h.sessions.EnsureVisitor(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrBackendUnavailable) {
			middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewSessionUnavailableError())
			return nil, false
		}
		handleServiceError(w, err)
		return nil, false
	}

	return visitor, true
}

// resolveActor は編集操作の主体を解決する。スタッフトークンが検証済みの
// 場合はスタッフプロフィール、それ以外は訪問者セッションを使う。
func (h *ForumHandler) resolveActor(ctx context.Context, w http.ResponseWriter, r *http.Request) (forum.Actor, string, bool) {
	if profile, err := middleware.StaffFromContext(r.Context()); err == nil {
		return forum.Actor{ProfileID: &profile.ID, IsStaff: true}, profile.ID, true
	}

	visitor, ok := h.resolveVisitor(ctx, w, r)
	if !ok {
		return forum.Actor{}, "", false
	}

	return forum.Actor{VisitorID: &visitor.ID}, visitor.ID, true
}

func toTopicResponse(topic *model.Topic) topicResponse {
	return topicResponse{
		ID:               topic.ID,
		Category:         topic.CategorySlug,
		Title:            topic.Title,
		Content:          topic.Content,
		IsAnonymous:      topic.IsAnonymous,
		ModerationStatus: string(topic.ModerationStatus),
		CreatedAt:        topic.CreatedAt,
	}
}

func toPostResponse(post *model.Post) postResponse {
	return postResponse{
		ID:               post.ID,
		TopicID:          post.TopicID,
		Content:          post.Content,
		IsAnonymous:      post.IsAnonymous,
		ModerationStatus: string(post.ModerationStatus),
		CreatedAt:        post.CreatedAt,
	}
}
