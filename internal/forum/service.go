// Package forum はトピックとポストの投稿・編集・閲覧を提供する。
package forum

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ClementHansel/fieldtalk/internal/broadcast"
	"github.com/ClementHansel/fieldtalk/internal/model"
	"github.com/ClementHansel/fieldtalk/internal/repository"
	"github.com/ClementHansel/fieldtalk/internal/security"
)

const (
	maxTitleLength   = 200
	maxContentLength = 50000
)

// Actor は投稿・編集を行う主体。登録ユーザーか匿名訪問者のちょうど
// 一方が設定される。
type Actor struct {
	ProfileID *string
	VisitorID *string
	IsStaff   bool
}

// Anonymous は匿名訪問者によるアクターかを返す。
func (a Actor) Anonymous() bool {
	return a.ProfileID == nil
}

// CreateTopicInput はトピック作成の入力。
// ForcePendingはゲートのシャドウBAN判定で、承認をスキップして
// モデレーション必須にする。
type CreateTopicInput struct {
	CategorySlug string
	Title        string
	Content      string
	Actor        Actor
	OriginIP     string
	ForcePending bool
}

// CreatePostInput はポスト作成の入力。
type CreatePostInput struct {
	TopicID      string
	Content      string
	Actor        Actor
	OriginIP     string
	ForcePending bool
}

// EditInput はコンテンツ編集の入力。Titleはトピックのみ有効でnil可。
type EditInput struct {
	Ref          model.ContentRef
	Title        *string
	Content      string
	Actor        Actor
	ForcePending bool
}

// ReportInput はスパム通報の入力。
type ReportInput struct {
	Ref        model.ContentRef
	ReporterID *string
	ReporterIP string
	Reason     string
}

// Service はフォーラムコンテンツの操作を提供する。
// ゲート判定は呼び出し側（ハンドラ）で行い、判定結果のみを受け取る。
type Service struct {
	topics    repository.TopicRepository
	posts     repository.PostRepository
	content   repository.ContentRepository
	reports   repository.ReportRepository
	sanitizer security.ContentSanitizerService
	publisher broadcast.Publisher

	// reflagOnEdit がtrueの場合、編集されたコンテンツをpendingに戻す。
	reflagOnEdit bool
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	topics repository.TopicRepository,
	posts repository.PostRepository,
	content repository.ContentRepository,
	reports repository.ReportRepository,
	sanitizer security.ContentSanitizerService,
	publisher broadcast.Publisher,
	reflagOnEdit bool,
) *Service {
	return &Service{
		topics:       topics,
		posts:        posts,
		content:      content,
		reports:      reports,
		sanitizer:    sanitizer,
		publisher:    publisher,
		reflagOnEdit: reflagOnEdit,
		now:          time.Now,
	}
}

// CreateTopic はトピックを作成する。ゲートを通過した投稿は承認状態で
// 作成され、シャドウBAN対象のみpendingで作成される。
func (s *Service) CreateTopic(ctx context.Context, in CreateTopicInput) (*model.Topic, error) {
	title := s.sanitizer.SanitizeTitle(in.Title)
	content := s.sanitizer.Sanitize(in.Content)

	if in.CategorySlug == "" {
		return nil, model.NewInvalidRequestError("category is required")
	}
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}

	now := s.now()
	topic := &model.Topic{
		ID:               uuid.NewString(),
		CategorySlug:     in.CategorySlug,
		Title:            title,
		Content:          content,
		AuthorID:         in.Actor.ProfileID,
		TempUserID:       visitorID(in.Actor),
		IsAnonymous:      in.Actor.Anonymous(),
		OriginIP:         in.OriginIP,
		ModerationStatus: initialStatus(in.ForcePending),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.topics.Create(ctx, topic); err != nil {
		return nil, fmt.Errorf("failed to create topic: %w", err)
	}

	return topic, nil
}

// CreatePost はトピックへの返信を作成する。
// 対象トピックが閲覧不能（未存在またはrejected）の場合は作成を拒否する。
func (s *Service) CreatePost(ctx context.Context, in CreatePostInput) (*model.Post, error) {
	content := s.sanitizer.Sanitize(in.Content)
	if err := validateContent(content); err != nil {
		return nil, err
	}

	topic, err := s.topics.FindVisibleByID(ctx, in.TopicID)
	if err != nil {
		return nil, fmt.Errorf("failed to find topic: %w", err)
	}
	if topic == nil {
		return nil, model.NewContentNotFoundError(model.KindTopic, in.TopicID)
	}

	now := s.now()
	post := &model.Post{
		ID:               uuid.NewString(),
		TopicID:          in.TopicID,
		Content:          content,
		AuthorID:         in.Actor.ProfileID,
		TempUserID:       visitorID(in.Actor),
		IsAnonymous:      in.Actor.Anonymous(),
		OriginIP:         in.OriginIP,
		ModerationStatus: initialStatus(in.ForcePending),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	return post, nil
}

// Edit はコンテンツ本文を編集する。作者本人かスタッフのみ実行できる。
// 再フラグ方針が有効な場合、編集されたコンテンツはpendingに戻り
// 再モデレーションの対象になる。
func (s *Service) Edit(ctx context.Context, in EditInput) error {
	content := s.sanitizer.Sanitize(in.Content)
	if err := validateContent(content); err != nil {
		return err
	}

	var title *string
	if in.Title != nil && in.Ref.Kind == model.KindTopic {
		t := s.sanitizer.SanitizeTitle(*in.Title)
		if err := validateTitle(t); err != nil {
			return err
		}
		title = &t
	}

	owned, err := s.authorizeEdit(ctx, in.Ref, in.Actor)
	if err != nil {
		return err
	}
	if !owned {
		return model.NewUnauthorizedError()
	}

	resetToPending := s.reflagOnEdit || in.ForcePending
	if err := s.content.UpdateBody(ctx, in.Ref, title, content, resetToPending); err != nil {
		return fmt.Errorf("failed to update content: %w", err)
	}

	if resetToPending {
		s.publish(in.Ref, model.StatusPending)
	}

	return nil
}

// Report はコンテンツへのスパム通報を記録する。
func (s *Service) Report(ctx context.Context, in ReportInput) error {
	if in.Reason == "" {
		return model.NewInvalidRequestError("report reason is required")
	}

	status, err := s.content.GetStatus(ctx, in.Ref)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if status == "" {
		return model.NewContentNotFoundError(in.Ref.Kind, in.Ref.ID)
	}

	report := &model.SpamReport{
		ID:           uuid.NewString(),
		ContentType:  in.Ref.Kind,
		ContentID:    in.Ref.ID,
		ReporterID:   in.ReporterID,
		ReporterIP:   in.ReporterIP,
		ReportReason: in.Reason,
		Automated:    false,
		CreatedAt:    s.now(),
	}

	if err := s.reports.Create(ctx, report); err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}

	return nil
}

// GetTopic はトピックと返信一覧を一般閲覧者向けに返す。
// rejectedコンテンツはデータアクセス層で除外される。
func (s *Service) GetTopic(ctx context.Context, id string) (*model.Topic, []*model.Post, error) {
	topic, err := s.topics.FindVisibleByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find topic: %w", err)
	}
	if topic == nil {
		return nil, nil, model.NewContentNotFoundError(model.KindTopic, id)
	}

	posts, err := s.posts.ListVisibleByTopic(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list posts: %w", err)
	}

	return topic, posts, nil
}

// authorizeEdit は編集権限を検証する。スタッフは常に許可、
// それ以外は作者本人（プロフィールIDまたは訪問者ID一致）のみ許可する。
func (s *Service) authorizeEdit(ctx context.Context, ref model.ContentRef, actor Actor) (bool, error) {
	if actor.IsStaff {
		return true, nil
	}

	var authorID, tempUserID *string
	switch ref.Kind {
	case model.KindTopic:
		topic, err := s.topics.FindByID(ctx, ref.ID)
		if err != nil {
			return false, fmt.Errorf("failed to find topic: %w", err)
		}
		if topic == nil {
			return false, model.NewContentNotFoundError(ref.Kind, ref.ID)
		}
		authorID, tempUserID = topic.AuthorID, topic.TempUserID
	case model.KindPost:
		post, err := s.posts.FindByID(ctx, ref.ID)
		if err != nil {
			return false, fmt.Errorf("failed to find post: %w", err)
		}
		if post == nil {
			return false, model.NewContentNotFoundError(ref.Kind, ref.ID)
		}
		authorID, tempUserID = post.AuthorID, post.TempUserID
	default:
		return false, model.NewInvalidRequestError(fmt.Sprintf("unknown content kind: %s", ref.Kind))
	}

	if actor.ProfileID != nil && authorID != nil && *actor.ProfileID == *authorID {
		return true, nil
	}
	if actor.VisitorID != nil && tempUserID != nil && *actor.VisitorID == *tempUserID {
		return true, nil
	}

	return false, nil
}

func (s *Service) publish(ref model.ContentRef, status model.ModerationStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := model.StatusEvent{Ref: ref, Status: status, UpdatedAt: s.now()}
	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.Error("failed to publish status event", "error", err, "channel", ref.Channel())
	}
}

func initialStatus(forcePending bool) model.ModerationStatus {
	if forcePending {
		return model.StatusPending
	}
	return model.StatusApproved
}

func visitorID(actor Actor) *string {
	if actor.ProfileID != nil {
		return nil
	}
	return actor.VisitorID
}

func validateTitle(title string) error {
	if title == "" {
		return model.NewInvalidRequestError("title is required")
	}
	if len(title) > maxTitleLength {
		return model.NewInvalidRequestError(fmt.Sprintf("title exceeds %d characters", maxTitleLength))
	}
	return nil
}

func validateContent(content string) error {
	if content == "" {
		return model.NewInvalidRequestError("content is required")
	}
	if len(content) > maxContentLength {
		return model.NewInvalidRequestError(fmt.Sprintf("content exceeds %d characters", maxContentLength))
	}
	return nil
}
