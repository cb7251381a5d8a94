// Package moderation はモデレーションキューの操作を提供する。
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ClementHansel/fieldtalk/internal/broadcast"
	"github.com/ClementHansel/fieldtalk/internal/model"
	"github.com/ClementHansel/fieldtalk/internal/repository"
)

// Recorder はモデレーション操作の観測フック。
type Recorder interface {
	// ModerationTransition は状態遷移の適用を記録する。
	ModerationTransition(kind model.ContentKind, verdict string)
}

type nopRecorder struct{}

func (nopRecorder) ModerationTransition(model.ContentKind, string) {}

// Service はモデレーションキューの操作を提供する。
// 承認・拒否はpendingからのcompare-and-set遷移で、同じ操作の再実行や
// 複数スタッフの同時操作は安全な no-op になる。
type Service struct {
	content   repository.ContentRepository
	activity  repository.ActivityRepository
	publisher broadcast.Publisher
	recorder  Recorder
	now       func() time.Time
}

// NewService はServiceを生成する。recorderがnilの場合は観測なしで動作する。
func NewService(
	content repository.ContentRepository,
	activity repository.ActivityRepository,
	publisher broadcast.Publisher,
	recorder Recorder,
) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		content:   content,
		activity:  activity,
		publisher: publisher,
		recorder:  recorder,
		now:       time.Now,
	}
}

// ListPending はモデレーション待ちのエントリを新しい順で返す。
// kindがnilの場合はトピックとポストをマージする。
func (s *Service) ListPending(ctx context.Context, kind *model.ContentKind) ([]model.ModerationItem, error) {
	items, err := s.content.ListByStatus(ctx, kind, model.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	return items, nil
}

// GetStatus は指定コンテンツの現在のモデレーション状態を返す。
func (s *Service) GetStatus(ctx context.Context, ref model.ContentRef) (model.ModerationStatus, error) {
	status, err := s.content.GetStatus(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("failed to get status: %w", err)
	}
	if status == "" {
		return "", model.NewContentNotFoundError(ref.Kind, ref.ID)
	}

	return status, nil
}

// Approve は指定コンテンツを承認する。
// 既にpending以外の場合は何も変更せず成功を返す（冪等）。
func (s *Service) Approve(ctx context.Context, ref model.ContentRef) error {
	return s.transition(ctx, ref, model.StatusApproved)
}

// Reject は指定コンテンツを拒否する。本文は削除せず保持し、
// 一般閲覧からの除外はデータアクセス層が行う。冪等。
func (s *Service) Reject(ctx context.Context, ref model.ContentRef) error {
	return s.transition(ctx, ref, model.StatusRejected)
}

func (s *Service) transition(ctx context.Context, ref model.ContentRef, to model.ModerationStatus) error {
	changed, err := s.content.TransitionStatus(ctx, ref, to)
	if err != nil {
		return fmt.Errorf("failed to transition status: %w", err)
	}

	if !changed {
		// 既に処理済みなら no-op。存在しない場合のみエラー。
		status, err := s.content.GetStatus(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to verify status: %w", err)
		}
		if status == "" {
			return model.NewContentNotFoundError(ref.Kind, ref.ID)
		}
		return nil
	}

	s.recorder.ModerationTransition(ref.Kind, string(to))
	s.publish(ref, to)

	return nil
}

// Delete は指定コンテンツを完全に削除する。
func (s *Service) Delete(ctx context.Context, ref model.ContentRef) error {
	status, err := s.content.GetStatus(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if status == "" {
		return model.NewContentNotFoundError(ref.Kind, ref.ID)
	}

	if err := s.content.Delete(ctx, ref); err != nil {
		return fmt.Errorf("failed to delete content: %w", err)
	}

	s.recorder.ModerationTransition(ref.Kind, "deleted")

	return nil
}

// BanAuthor は投稿の作者を永久追放する。登録ユーザーの投稿に対してのみ有効で、
// プロフィール削除とコンテンツのreject遷移を1つのトランザクションで適用する。
// 匿名投稿に対しては一切の変更を行わずに前提条件エラーを返す。
func (s *Service) BanAuthor(ctx context.Context, ref model.ContentRef) error {
	item, err := s.content.GetItem(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to get item: %w", err)
	}
	if item == nil {
		return model.NewContentNotFoundError(ref.Kind, ref.ID)
	}

	if item.IsAnonymous || item.AuthorID == nil {
		return model.NewPreconditionFailedError("Cannot ban the author of an anonymous submission.")
	}

	if err := s.content.RejectAndDeleteAuthor(ctx, ref, *item.AuthorID); err != nil {
		return fmt.Errorf("failed to ban author: %w", err)
	}

	s.recorder.ModerationTransition(ref.Kind, "author_banned")
	s.publish(ref, model.StatusRejected)

	return nil
}

// BanIP は投稿の発信元IPをBANする。コンテンツのreject遷移と
// BANレコードの作成を1つのトランザクションで適用し、BANは以後の
// ゲート判定で永続的に参照される。
func (s *Service) BanIP(ctx context.Context, ref model.ContentRef, banType model.BanType, reason, moderatorID string, expiresAt *time.Time) error {
	if !banType.Valid() {
		return model.NewInvalidRequestError(fmt.Sprintf("unknown ban type: %s", banType))
	}
	if banType == model.BanTypeTemporary && expiresAt == nil {
		return model.NewInvalidRequestError("temporary bans require an expiry time")
	}

	item, err := s.content.GetItem(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to get item: %w", err)
	}
	if item == nil {
		return model.NewContentNotFoundError(ref.Kind, ref.ID)
	}
	if item.OriginIP == "" {
		return model.NewPreconditionFailedError("The submission has no recorded origin IP.")
	}

	ban := &model.BanRecord{
		ID:           uuid.NewString(),
		SubjectType:  model.BanSubjectIP,
		SubjectValue: item.OriginIP,
		BanType:      banType,
		Reason:       reason,
		CreatedBy:    moderatorID,
		ExpiresAt:    expiresAt,
		CreatedAt:    s.now(),
	}

	if err := s.content.RejectAndBanIP(ctx, ref, ban); err != nil {
		return fmt.Errorf("failed to ban ip: %w", err)
	}

	s.recorder.ModerationTransition(ref.Kind, "ip_banned")
	s.publish(ref, model.StatusRejected)

	return nil
}

// ListActivity は直近のゲートアクティビティを新しい順で返す。
func (s *Service) ListActivity(ctx context.Context, limit int) ([]*model.ActivityEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	events, err := s.activity.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}

	return events, nil
}

// publish は状態変更イベントを配信する。遷移自体は既にコミット済みのため、
// 配信失敗は操作の失敗にせずログに残す。購読者は次回の購読開始時に
// 権威ある状態を受け取り直せる。
func (s *Service) publish(ref model.ContentRef, status model.ModerationStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := model.StatusEvent{Ref: ref, Status: status, UpdatedAt: s.now()}
	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.Error("failed to publish status event", "error", err, "channel", ref.Channel())
	}
}
