// Package broadcast はモデレーション状態変更のライブ配信を提供する。
//
// 配信チャンネルはコンテンツ単位（topic-moderation-{id} / post-moderation-{id}）で、
// Redis pub/subを介して複数インスタンス間でイベントを伝搬する。
// 状態は単純なenumのため中間イベントの取りこぼしは許容され、
// 各購読者には常に最新のイベントのみが届けばよい。
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ClementHansel/fieldtalk/internal/model"
)

// Publisher は状態変更イベントの発行インターフェース。
type Publisher interface {
	// Publish は状態変更イベントを対象コンテンツのチャンネルへ発行する。
	Publish(ctx context.Context, event model.StatusEvent) error
}

// Broadcaster はRedis pub/subによるPublisher兼購読ハブ。
type Broadcaster struct {
	rdb *redis.Client
}

// NewBroadcaster はBroadcasterを生成する。
func NewBroadcaster(rdb *redis.Client) *Broadcaster {
	return &Broadcaster{rdb: rdb}
}

// Publish は状態変更イベントをJSONで発行する。
// 購読者が1人もいないチャンネルへの発行も正常に完了する。
func (b *Broadcaster) Publish(ctx context.Context, event model.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	if err := b.rdb.Publish(ctx, event.Ref.Channel(), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish status event: %w", err)
	}

	return nil
}

// Subscription はコンテンツ1件の状態変更購読。
// Eventsはバッファ1のlast-write-winsメールボックスで、購読者の消費が
// 遅れた場合は古いイベントを捨てて最新のみを保持する。
type Subscription struct {
	mailbox *mailbox
	pubsub  *redis.PubSub
	done    chan struct{}
}

// Events は受信イベントのチャンネルを返す。購読終了時にクローズされる。
func (s *Subscription) Events() <-chan model.StatusEvent {
	return s.mailbox.C
}

// Close は購読を解除する。何度呼んでも安全。
func (s *Subscription) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	_ = s.pubsub.Close()
}

// Subscribe は指定コンテンツの状態変更購読を開始する。
// 返されたSubscriptionは使用後必ずCloseすること。
func (b *Broadcaster) Subscribe(ctx context.Context, ref model.ContentRef) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, ref.Channel())

	// 購読確立を待ってから返す。失敗した購読を返さない。
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", ref.Channel(), err)
	}

	sub := &Subscription{
		mailbox: newMailbox(),
		pubsub:  pubsub,
		done:    make(chan struct{}),
	}

	go func() {
		defer sub.mailbox.close()
		ch := pubsub.Channel()
		for {
			select {
			case <-sub.done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event model.StatusEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					slog.Warn("dropping malformed status event", "channel", msg.Channel, "error", err)
					continue
				}
				sub.mailbox.offer(event)
			}
		}
	}()

	return sub, nil
}
