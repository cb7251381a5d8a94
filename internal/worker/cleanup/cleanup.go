// Package cleanup は失効データの自動削除ジョブを提供する。
// 期限切れの匿名訪問者レコードと、保持期間を超過したゲートアクティビティ
// ログを定期バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClementHansel/fieldtalk/internal/repository"
)

// CleanupJob は失効データの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	tempUsers repository.TempUserRepository
	activity  repository.ActivityRepository
	logger    *slog.Logger

	// RetentionDays はアクティビティログの保持日数。
	RetentionDays int

	now func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は14日。
func NewCleanupJob(tempUsers repository.TempUserRepository, activity repository.ActivityRepository, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		tempUsers:     tempUsers,
		activity:      activity,
		logger:        logger,
		RetentionDays: 14,
		now:           time.Now,
	}
}

// Run は失効済み訪問者と保持期間超過のアクティビティログを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()

	expiredVisitors, err := j.tempUsers.DeleteExpired(ctx, start)
	if err != nil {
		j.logger.Error("期限切れ訪問者の削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れ訪問者の削除に失敗: %w", err)
	}

	cutoff := start.AddDate(0, 0, -j.RetentionDays)
	expiredEvents, err := j.activity.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("アクティビティログの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("アクティビティログの削除に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_visitors", expiredVisitors),
		slog.Int64("deleted_activity_events", expiredEvents),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start はクリーンアップジョブを定期実行する。起動直後に1回実行し、
// 以後はinterval間隔で繰り返す。ctxのキャンセルで停止する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
