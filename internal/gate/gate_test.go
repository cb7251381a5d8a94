package gate

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ClementHansel/fieldtalk/internal/ipresolver"
	"github.com/ClementHansel/fieldtalk/internal/model"
	"github.com/ClementHansel/fieldtalk/internal/spam"
)

type mockBanRepo struct {
	findN  int
	findFn func(ctx context.Context, ip string, now time.Time) (*model.BanRecord, error)
}

func (m *mockBanRepo) Create(ctx context.Context, ban *model.BanRecord) error {
	return nil
}

func (m *mockBanRepo) FindActiveByIP(ctx context.Context, ip string, now time.Time) (*model.BanRecord, error) {
	m.findN++
	if m.findFn == nil {
		return nil, nil
	}
	return m.findFn(ctx, ip, now)
}

type mockActivityRepo struct {
	events chan *model.ActivityEvent
}

func newMockActivityRepo() *mockActivityRepo {
	return &mockActivityRepo{events: make(chan *model.ActivityEvent, 16)}
}

func (m *mockActivityRepo) Append(ctx context.Context, event *model.ActivityEvent) error {
	m.events <- event
	return nil
}

func (m *mockActivityRepo) ListRecent(ctx context.Context, limit int) ([]*model.ActivityEvent, error) {
	return nil, nil
}

func (m *mockActivityRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *mockActivityRepo) wait(t *testing.T) *model.ActivityEvent {
	t.Helper()
	select {
	case event := <-m.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("activity event was not recorded")
		return nil
	}
}

func newTestGate(bans *mockBanRepo, activity *mockActivityRepo, opts Options) *Gate {
	return NewGate(ipresolver.NewResolver(0), bans, activity, spam.NewAnalyzer(0.7), opts, nil)
}

func TestCheckSubmissionAllowsCleanContent(t *testing.T) {
	bans := &mockBanRepo{}
	activity := newMockActivityRepo()
	g := newTestGate(bans, activity, Options{})

	req := httptest.NewRequest("POST", "/api/topics", nil)
	req.RemoteAddr = "203.0.113.7:51234"

	decision := g.CheckSubmission(context.Background(), req, "sess-1", model.KindTopic, "Who saw the derby last night?")

	if !decision.Allowed {
		t.Fatalf("Allowed = false, want true (err %v)", decision.Err)
	}
	if decision.ForcePending {
		t.Error("ForcePending = true, want false")
	}
	if decision.IP != "203.0.113.7" {
		t.Errorf("IP = %q, want %q", decision.IP, "203.0.113.7")
	}

	event := activity.wait(t)
	if event.IsBlocked {
		t.Error("activity IsBlocked = true, want false")
	}
	if event.SessionID != "sess-1" {
		t.Errorf("activity SessionID = %q, want %q", event.SessionID, "sess-1")
	}
}

func TestCheckSubmissionFailClosedOnIPFailure(t *testing.T) {
	bans := &mockBanRepo{}
	activity := newMockActivityRepo()
	g := newTestGate(bans, activity, Options{})

	req := httptest.NewRequest("POST", "/api/topics", nil)
	req.RemoteAddr = "not-an-address"

	decision := g.CheckSubmission(context.Background(), req, "sess-1", model.KindTopic, "hello")

	if decision.Allowed {
		t.Fatal("Allowed = true, want false")
	}
	if decision.Err.Code != model.ErrCodeIPDetectionFailed {
		t.Errorf("Err.Code = %q, want %q", decision.Err.Code, model.ErrCodeIPDetectionFailed)
	}
	if bans.findN != 0 {
		t.Errorf("FindActiveByIP calls = %d, want 0", bans.findN)
	}

	event := activity.wait(t)
	if !event.IsBlocked || event.BlockReason != ReasonIPDetectionFailed {
		t.Errorf("activity = blocked:%v reason:%q, want blocked with %q", event.IsBlocked, event.BlockReason, ReasonIPDetectionFailed)
	}
}

func TestCheckSubmissionBestEffortIPSkipsBanCheck(t *testing.T) {
	bans := &mockBanRepo{}
	activity := newMockActivityRepo()
	g := newTestGate(bans, activity, Options{BestEffortIP: true})

	req := httptest.NewRequest("POST", "/api/topics", nil)
	req.RemoteAddr = "not-an-address"

	decision := g.CheckSubmission(context.Background(), req, "sess-1", model.KindTopic, "hello there")

	if !decision.Allowed {
		t.Fatalf("Allowed = false, want true (err %v)", decision.Err)
	}
	if bans.findN != 0 {
		t.Errorf("FindActiveByIP calls = %d, want 0 when IP is unknown", bans.findN)
	}
	activity.wait(t)
}

func TestCheckSubmissionDeniesBannedIP(t *testing.T) {
	expires := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	bans := &mockBanRepo{
		findFn: func(_ context.Context, ip string, _ time.Time) (*model.BanRecord, error) {
			return &model.BanRecord{
				SubjectType:  model.BanSubjectIP,
				SubjectValue: ip,
				BanType:      model.BanTypeTemporary,
				Reason:       "repeated spam",
				ExpiresAt:    &expires,
			}, nil
		},
	}
	activity := newMockActivityRepo()
	g := newTestGate(bans, activity, Options{})

	req := httptest.NewRequest("POST", "/api/topics", nil)
	req.RemoteAddr = "203.0.113.7:51234"

	decision := g.CheckSubmission(context.Background(), req, "sess-1", model.KindPost, "hello")

	if decision.Allowed {
		t.Fatal("Allowed = true, want false")
	}
	if decision.Err.Code != model.ErrCodeIPBanned {
		t.Errorf("Err.Code = %q, want %q", decision.Err.Code, model.ErrCodeIPBanned)
	}

	event := activity.wait(t)
	if event.BlockReason != ReasonIPBanned {
		t.Errorf("activity BlockReason = %q, want %q", event.BlockReason, ReasonIPBanned)
	}
}

func TestCheckSubmissionShadowBanForcesPending(t *testing.T) {
	bans := &mockBanRepo{
		findFn: func(_ context.Context, ip string, _ time.Time) (*model.BanRecord, error) {
			return &model.BanRecord{BanType: model.BanTypeShadow}, nil
		},
	}
	activity := newMockActivityRepo()
	g := newTestGate(bans, activity, Options{})

	req := httptest.NewRequest("POST", "/api/topics", nil)
	req.RemoteAddr = "203.0.113.7:51234"

	decision := g.CheckSubmission(context.Background(), req, "sess-1", model.KindPost, "normal looking reply")

	// シャドウBANは拒否を開示せず、許可したうえでモデレーション必須にする
	if !decision.Allowed {
		t.Fatalf("Allowed = false, want true (err %v)", decision.Err)
	}
	if !decision.ForcePending {
		t.Error("ForcePending = false, want true")
	}
	if decision.Err != nil {
		t.Errorf("Err = %v, want nil", decision.Err)
	}
	activity.wait(t)
}

func TestCheckSubmissionShadowBanStillSpamChecked(t *testing.T) {
	bans := &mockBanRepo{
		findFn: func(_ context.Context, ip string, _ time.Time) (*model.BanRecord, error) {
			return &model.BanRecord{BanType: model.BanTypeShadow}, nil
		},
	}
	activity := newMockActivityRepo()
	g := newTestGate(bans, activity, Options{})

	req := httptest.NewRequest("POST", "/api/topics", nil)
	req.RemoteAddr = "203.0.113.7:51234"

	decision := g.CheckSubmission(context.Background(), req, "sess-1", model.KindPost,
		"Buy now! Click here for free money http://a.example http://b.example http://c.example")

	if decision.Allowed {
		t.Fatal("Allowed = true, want false for spam content")
	}
	if decision.Err.Code != model.ErrCodeSpamDetected {
		t.Errorf("Err.Code = %q, want %q", decision.Err.Code, model.ErrCodeSpamDetected)
	}
	activity.wait(t)
}

func TestCheckSubmissionBanCheckErrorFailsClosed(t *testing.T) {
	bans := &mockBanRepo{
		findFn: func(_ context.Context, _ string, _ time.Time) (*model.BanRecord, error) {
			return nil, errors.New("connection refused")
		},
	}
	activity := newMockActivityRepo()
	g := newTestGate(bans, activity, Options{})

	req := httptest.NewRequest("POST", "/api/topics", nil)
	req.RemoteAddr = "203.0.113.7:51234"

	decision := g.CheckSubmission(context.Background(), req, "sess-1", model.KindPost, "ordinary reply")

	// BAN確認不能時に通過させるとBAN済みアクターの投稿を許してしまう
	if decision.Allowed {
		t.Error("Allowed = true, want false when ban check fails")
	}
	if decision.Err == nil || decision.Err.Code != model.ErrCodeBackendUnavailable {
		t.Errorf("Err = %v, want code %s", decision.Err, model.ErrCodeBackendUnavailable)
	}

	event := activity.wait(t)
	if !event.IsBlocked || event.BlockReason != ReasonBanCheckFailed {
		t.Errorf("activity event = blocked %v reason %q, want blocked with %q",
			event.IsBlocked, event.BlockReason, ReasonBanCheckFailed)
	}
}

func TestCheckSubmissionSpamConfidenceInMessage(t *testing.T) {
	bans := &mockBanRepo{}
	activity := newMockActivityRepo()
	g := newTestGate(bans, activity, Options{})

	req := httptest.NewRequest("POST", "/api/topics", nil)
	req.RemoteAddr = "203.0.113.7:51234"

	decision := g.CheckSubmission(context.Background(), req, "sess-1", model.KindTopic,
		"CLICK HERE BUY NOW FREE MONEY CASINO http://a.example http://b.example http://c.example")

	if decision.Allowed {
		t.Fatal("Allowed = true, want false")
	}
	if decision.Err.Message != "Content flagged as spam (100% confidence). Please revise your message." {
		t.Errorf("Err.Message = %q, want whole-percent confidence message", decision.Err.Message)
	}
	activity.wait(t)
}

func TestCheckSubmissionCapDenies(t *testing.T) {
	bans := &mockBanRepo{}
	activity := newMockActivityRepo()
	g := newTestGate(bans, activity, Options{CapsEnabled: true, CapPerMinute: 2})

	req := httptest.NewRequest("POST", "/api/topics", nil)
	req.RemoteAddr = "203.0.113.7:51234"

	for i := 0; i < 2; i++ {
		decision := g.CheckSubmission(context.Background(), req, "sess-1", model.KindPost, "reply number")
		if !decision.Allowed {
			t.Fatalf("submission %d: Allowed = false, want true (err %v)", i+1, decision.Err)
		}
		activity.wait(t)
	}

	decision := g.CheckSubmission(context.Background(), req, "sess-1", model.KindPost, "one more reply")
	if decision.Allowed {
		t.Fatal("Allowed = true, want false once the per-minute cap is spent")
	}
	if decision.Err.Code != model.ErrCodeRateLimited {
		t.Errorf("Err.Code = %q, want %q", decision.Err.Code, model.ErrCodeRateLimited)
	}
	activity.wait(t)
}

func TestCleanupLimiters(t *testing.T) {
	bans := &mockBanRepo{}
	activity := newMockActivityRepo()
	g := newTestGate(bans, activity, Options{CapsEnabled: true, CapPerMinute: 2})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	g.allowCap("203.0.113.7")
	g.allowCap("203.0.113.8")

	now = now.Add(20 * time.Minute)
	g.allowCap("203.0.113.8")

	g.cleanupLimiters(10 * time.Minute)

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.limiters["203.0.113.7"]; ok {
		t.Error("stale limiter entry was not removed")
	}
	if _, ok := g.limiters["203.0.113.8"]; !ok {
		t.Error("active limiter entry was removed")
	}
}
