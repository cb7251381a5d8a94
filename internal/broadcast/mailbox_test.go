package broadcast

import (
	"testing"
	"time"

	"github.com/ClementHansel/fieldtalk/internal/model"
)

func event(status model.ModerationStatus) model.StatusEvent {
	return model.StatusEvent{
		Ref:    model.ContentRef{Kind: model.KindTopic, ID: "t-1"},
		Status: status,
	}
}

func TestMailboxDeliversEvent(t *testing.T) {
	m := newMailbox()

	m.offer(event(model.StatusApproved))

	select {
	case got := <-m.C:
		if got.Status != model.StatusApproved {
			t.Errorf("Status = %q, want %q", got.Status, model.StatusApproved)
		}
	default:
		t.Fatal("no event in mailbox")
	}
}

func TestMailboxLastWriteWins(t *testing.T) {
	m := newMailbox()

	// 消費されないまま連続投函されたら最新のみ残る
	m.offer(event(model.StatusPending))
	m.offer(event(model.StatusRejected))
	m.offer(event(model.StatusApproved))

	select {
	case got := <-m.C:
		if got.Status != model.StatusApproved {
			t.Errorf("Status = %q, want latest %q", got.Status, model.StatusApproved)
		}
	default:
		t.Fatal("no event in mailbox")
	}

	select {
	case got := <-m.C:
		t.Errorf("unexpected second event %v", got)
	default:
	}
}

func TestMailboxCloseIsIdempotent(t *testing.T) {
	m := newMailbox()

	m.close()
	m.close()

	// クローズ後の投函はパニックせず無視される
	m.offer(event(model.StatusApproved))

	select {
	case _, ok := <-m.C:
		if ok {
			t.Error("received event after close, want closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel was not closed")
	}
}

func TestContentRefChannelNames(t *testing.T) {
	topic := model.ContentRef{Kind: model.KindTopic, ID: "abc"}
	if got := topic.Channel(); got != "topic-moderation-abc" {
		t.Errorf("Channel() = %q, want %q", got, "topic-moderation-abc")
	}

	post := model.ContentRef{Kind: model.KindPost, ID: "def"}
	if got := post.Channel(); got != "post-moderation-def" {
		t.Errorf("Channel() = %q, want %q", got, "post-moderation-def")
	}
}
