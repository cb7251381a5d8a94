package broadcast

import (
	"sync"

	"github.com/ClementHansel/fieldtalk/internal/model"
)

// mailbox はバッファ1のlast-write-winsチャンネル。
// 受信側が消費していない間に新しいイベントが届いた場合、
// 古いイベントを破棄して最新で置き換える。
type mailbox struct {
	C chan model.StatusEvent

	mu     sync.Mutex
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{C: make(chan model.StatusEvent, 1)}
}

// offer はイベントを投函する。クローズ後の投函は無視される。
func (m *mailbox) offer(event model.StatusEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	// 未消費の古いイベントを抜き取ってから最新を入れる
	select {
	case <-m.C:
	default:
	}
	select {
	case m.C <- event:
	default:
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.C)
}
