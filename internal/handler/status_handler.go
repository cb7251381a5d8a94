package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ClementHansel/fieldtalk/internal/middleware"
	"github.com/ClementHansel/fieldtalk/internal/model"
)

// heartbeatInterval はSSE接続維持のためのコメント送信間隔。
const heartbeatInterval = 30 * time.Second

// StatusSubscription はコンテンツ1件の状態変更購読。
type StatusSubscription interface {
	// Events は受信イベントのチャンネルを返す。購読終了時にクローズされる。
	Events() <-chan model.StatusEvent
	// Close は購読を解除する。何度呼んでも安全。
	Close()
}

// StatusSubscriberInterface は状態変更購読の開始インターフェース。
type StatusSubscriberInterface interface {
	Subscribe(ctx context.Context, ref model.ContentRef) (StatusSubscription, error)
}

// StatusProviderInterface は現在のモデレーション状態の取得インターフェース。
type StatusProviderInterface interface {
	GetStatus(ctx context.Context, ref model.ContentRef) (model.ModerationStatus, error)
}

// StreamRecorder はライブ配信の観測フック。
type StreamRecorder interface {
	SubscriberConnected()
	SubscriberDisconnected()
	StatusEventSent()
}

type nopStreamRecorder struct{}

func (nopStreamRecorder) SubscriberConnected()    {}
func (nopStreamRecorder) SubscriberDisconnected() {}
func (nopStreamRecorder) StatusEventSent()        {}

// StatusHandler はモデレーション状態の取得・配信のHTTPハンドラー。
type StatusHandler struct {
	provider   StatusProviderInterface
	subscriber StatusSubscriberInterface
	recorder   StreamRecorder
	now        func() time.Time
}

// NewStatusHandler はStatusHandlerを生成する。recorderがnilの場合は観測なしで動作する。
func NewStatusHandler(provider StatusProviderInterface, subscriber StatusSubscriberInterface, recorder StreamRecorder) *StatusHandler {
	if recorder == nil {
		recorder = nopStreamRecorder{}
	}
	return &StatusHandler{
		provider:   provider,
		subscriber: subscriber,
		recorder:   recorder,
		now:        time.Now,
	}
}

// statusResponse は現在のモデレーション状態のAPIレスポンス。
type statusResponse struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Status string `json:"status"`
}

// GetStatus は現在のモデレーション状態を返す。
// GET /api/content/{kind}/{id}/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status, err := h.provider.GetStatus(r.Context(), ref)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Kind:   string(ref.Kind),
		ID:     ref.ID,
		Status: string(status),
	})
}

// Stream は状態変更をServer-Sent Eventsで配信する。
// 接続直後に権威ある現在状態を1件送信してから購読イベントを流す。
// 購読開始と初回送信の間の変更はこの初回イベントで吸収される。
// GET /api/content/{kind}/{id}/status/stream
func (h *StatusHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("response writer does not support streaming")
		middleware.WriteInternalServerError(w)
		return
	}

	// 購読を先に確立してから現在状態を読む。逆順だと間の遷移を取りこぼす。
	sub, err := h.subscriber.Subscribe(r.Context(), ref)
	if err != nil {
		slog.Error("failed to subscribe to status channel", "error", err, "channel", ref.Channel())
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewBackendUnavailableError())
		return
	}
	defer sub.Close()

	status, err := h.provider.GetStatus(r.Context(), ref)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	h.recorder.SubscriberConnected()
	defer h.recorder.SubscriberDisconnected()

	initial := model.StatusEvent{Ref: ref, Status: status, UpdatedAt: h.now()}
	if err := writeSSEEvent(w, flusher, initial); err != nil {
		return
	}
	h.recorder.StatusEventSent()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSEEvent(w, flusher, event); err != nil {
				return
			}
			h.recorder.StatusEventSent()
		}
	}
}

// writeSSEEvent は状態イベントを1件SSE形式で書き込みフラッシュする。
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event model.StatusEvent) error {
	payload, err := json.Marshal(statusEventBody{
		Kind:      string(event.Ref.Kind),
		ID:        event.Ref.ID,
		Status:    string(event.Status),
		UpdatedAt: event.UpdatedAt,
	})
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}

// statusEventBody はSSEのdata行に載せるイベントボディ。
type statusEventBody struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func refFromRequest(r *http.Request) (model.ContentRef, error) {
	kind, err := parseContentKind(chi.URLParam(r, "kind"))
	if err != nil {
		return model.ContentRef{}, err
	}
	return model.ContentRef{Kind: kind, ID: chi.URLParam(r, "id")}, nil
}
