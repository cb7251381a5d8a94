// Package gate は投稿受付前のレート・スパムゲートを提供する。
//
// すべての投稿系操作（トピック作成、ポスト作成、編集）はゲートを通過する。
// チェックはIP解決 → BAN確認 → スパム判定 → 数値上限の順で行い、
// 最初の拒否で短絡する。通過・拒否を問わずアクティビティログに
// 非同期で記録する。
package gate

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ClementHansel/fieldtalk/internal/ipresolver"
	"github.com/ClementHansel/fieldtalk/internal/model"
	"github.com/ClementHansel/fieldtalk/internal/repository"
	"github.com/ClementHansel/fieldtalk/internal/spam"
)

// ブロック理由。アクティビティログとメトリクスのラベルに使う。
const (
	ReasonIPDetectionFailed = "ip_detection_failed"
	ReasonIPBanned          = "ip_banned"
	ReasonSpamDetected      = "spam_detected"
	ReasonSubmissionCap     = "submission_cap"
	ReasonBanCheckFailed    = "ban_check_failed"
)

// Decision はゲート判定の結果。
// Allowedがfalseの場合、Errに拒否理由のAPIErrorが入る。
// ForcePendingはシャドウBAN対象で、投稿は許可するがモデレーション必須に
// する。この事実を投稿者に開示してはならない。
type Decision struct {
	Allowed      bool
	ForcePending bool
	IP           string
	Err          *model.APIError
}

// Recorder はゲートの観測フック。
type Recorder interface {
	// GateDecision は判定結果を記録する。outcomeは"allowed"か"blocked"。
	GateDecision(outcome, reason string)
	// ActivityWriteFailure はアクティビティログ書き込み失敗を記録する。
	ActivityWriteFailure()
}

// nopRecorder は観測なしのRecorder。
type nopRecorder struct{}

func (nopRecorder) GateDecision(string, string) {}
func (nopRecorder) ActivityWriteFailure()       {}

// Options はゲートの動作設定。
type Options struct {
	// BestEffortIP がtrueの場合、IP解決失敗時もIP依存チェックを
	// スキップして投稿を許可する。デフォルトはfail-closed。
	BestEffortIP bool
	// CapsEnabled は数値上限による投稿制限を有効にする。
	CapsEnabled bool
	// CapPerMinute は有効時の1アクターあたり毎分投稿上限。
	CapPerMinute int
}

// Gate は投稿受付ゲート。
type Gate struct {
	resolver *ipresolver.Resolver
	bans     repository.BanRepository
	activity repository.ActivityRepository
	analyzer *spam.Analyzer
	opts     Options
	recorder Recorder
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*capEntry
}

type capEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewGate はGateを生成する。recorderがnilの場合は観測なしで動作する。
func NewGate(
	resolver *ipresolver.Resolver,
	bans repository.BanRepository,
	activity repository.ActivityRepository,
	analyzer *spam.Analyzer,
	opts Options,
	recorder Recorder,
) *Gate {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Gate{
		resolver: resolver,
		bans:     bans,
		activity: activity,
		analyzer: analyzer,
		opts:     opts,
		recorder: recorder,
		now:      time.Now,
		limiters: make(map[string]*capEntry),
	}
}

// CheckSubmission は投稿1件のゲート判定を行う。
// 判定結果に関わらずアクティビティログへの記録を非同期で開始してから返る。
func (g *Gate) CheckSubmission(ctx context.Context, req *http.Request, sessionID string, kind model.ContentKind, content string) Decision {
	decision := g.check(ctx, req, sessionID, kind, content)

	outcome := "allowed"
	reason := ""
	if !decision.Allowed {
		outcome = "blocked"
		reason = blockReason(decision.Err)
	}
	g.recorder.GateDecision(outcome, reason)
	g.recordActivity(sessionID, kind, decision, reason)

	return decision
}

func (g *Gate) check(ctx context.Context, req *http.Request, sessionID string, kind model.ContentKind, content string) Decision {
	ip := g.resolver.ClientIP(req)
	if ip == "" && !g.opts.BestEffortIP {
		return Decision{IP: ip, Err: model.NewIPDetectionFailedError()}
	}

	if ip != "" {
		ban, err := g.bans.FindActiveByIP(ctx, ip, g.now())
		if err != nil {
			// BANテーブルに到達できない間は受け付けない。
			// 通過させるとBAN済みアクターの投稿を許してしまう。
			slog.Error("ban check failed", "error", err, "ip", ip)
			return Decision{IP: ip, Err: model.NewBackendUnavailableError()}
		}
		if ban != nil {
			if ban.BanType == model.BanTypeShadow {
				return g.passRemaining(ip, sessionID, content, true)
			}
			return Decision{IP: ip, Err: model.NewIPBannedError(ban.BanType, ban.Reason, ban.ExpiresAt)}
		}
	}

	return g.passRemaining(ip, sessionID, content, false)
}

// passRemaining はBAN確認後のチェック（スパム判定と数値上限）を行う。
// シャドウBANでもスパム判定は通常どおり適用される。
func (g *Gate) passRemaining(ip, sessionID, content string, forcePending bool) Decision {
	result := g.analyzer.Analyze(content)
	if result.IsSpam {
		return Decision{IP: ip, Err: model.NewSpamDetectedError(result.Confidence)}
	}

	if g.opts.CapsEnabled {
		key := ip
		if key == "" {
			key = sessionID
		}
		if !g.allowCap(key) {
			return Decision{IP: ip, Err: model.NewRateLimitedError()}
		}
	}

	return Decision{Allowed: true, ForcePending: forcePending, IP: ip}
}

// allowCap はアクター単位のトークンバケットで毎分上限を判定する。
func (g *Gate) allowCap(key string) bool {
	g.mu.Lock()
	entry, ok := g.limiters[key]
	if !ok {
		entry = &capEntry{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(g.opts.CapPerMinute)), g.opts.CapPerMinute),
		}
		g.limiters[key] = entry
	}
	entry.lastSeen = g.now()
	g.mu.Unlock()

	return entry.limiter.Allow()
}

// CleanupLoop は一定間隔で未使用の上限エントリを破棄する。
// ctxのキャンセルで停止する。
func (g *Gate) CleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.cleanupLimiters(interval)
		}
	}
}

func (g *Gate) cleanupLimiters(maxIdle time.Duration) {
	cutoff := g.now().Add(-maxIdle)
	g.mu.Lock()
	for key, entry := range g.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(g.limiters, key)
		}
	}
	g.mu.Unlock()
}

// recordActivity は判定結果をアクティビティログに非同期で記録する。
// 失敗してもログとメトリクスに残すだけで、投稿経路には影響しない。
func (g *Gate) recordActivity(sessionID string, kind model.ContentKind, decision Decision, reason string) {
	event := &model.ActivityEvent{
		ID:           uuid.NewString(),
		IPAddress:    decision.IP,
		SessionID:    sessionID,
		ActivityType: kind,
		IsBlocked:    !decision.Allowed,
		BlockReason:  reason,
		CreatedAt:    g.now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := g.activity.Append(ctx, event); err != nil {
			slog.Error("failed to record gate activity", "error", err, "session_id", sessionID)
			g.recorder.ActivityWriteFailure()
		}
	}()
}

func blockReason(err *model.APIError) string {
	if err == nil {
		return ""
	}
	switch err.Code {
	case model.ErrCodeIPDetectionFailed:
		return ReasonIPDetectionFailed
	case model.ErrCodeIPBanned:
		return ReasonIPBanned
	case model.ErrCodeSpamDetected:
		return ReasonSpamDetected
	case model.ErrCodeRateLimited:
		return ReasonSubmissionCap
	case model.ErrCodeBackendUnavailable:
		return ReasonBanCheckFailed
	}
	return "unknown"
}
