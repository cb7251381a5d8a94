// Package session は匿名訪問者セッションの解決を提供する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ClementHansel/fieldtalk/internal/model"
	"github.com/ClementHansel/fieldtalk/internal/repository"
)

// ErrBackendUnavailable はセッションストレージへの到達失敗を表す。
// この場合は偽の訪問者IDを作らず、呼び出し側でリトライ可能エラーとして返す。
var ErrBackendUnavailable = fmt.Errorf("session backend unavailable")

// Store はセッショントークン → 訪問者IDの解決を行う。
// 同一トークンの同時リクエストはsingleflightで合流させ、
// 作成は1回しか実行されない。
type Store struct {
	repo  repository.TempUserRepository
	group singleflight.Group
	now   func() time.Time

	mu    sync.RWMutex
	cache map[string]*model.VisitorIdentity
}

// NewStore はStoreを生成する。
func NewStore(repo repository.TempUserRepository) *Store {
	return &Store{
		repo:  repo,
		now:   time.Now,
		cache: make(map[string]*model.VisitorIdentity),
	}
}

// EnsureVisitor はトークンに対応する訪問者を返す。未登録または期限切れの
// 場合は新しい訪問者を作成する。同一トークンでの再呼び出しは、有効期限内で
// あれば常に同じ訪問者を返す（冪等）。
func (s *Store) EnsureVisitor(ctx context.Context, token string) (*model.VisitorIdentity, error) {
	if token == "" {
		return nil, fmt.Errorf("session token is empty")
	}

	if v := s.cached(token); v != nil {
		return v, nil
	}

	result, err, _ := s.group.Do(token, func() (any, error) {
		// singleflight待機中に先行呼び出しがキャッシュを埋めている場合がある
		if v := s.cached(token); v != nil {
			return v, nil
		}

		candidate, err := s.newCandidate(token)
		if err != nil {
			return nil, err
		}

		visitor, err := s.repo.GetOrCreate(ctx, candidate)
		if err != nil {
			slog.Error("failed to resolve visitor session", "error", err)
			return nil, ErrBackendUnavailable
		}

		s.mu.Lock()
		s.cache[token] = visitor
		s.mu.Unlock()

		return visitor, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*model.VisitorIdentity), nil
}

// GetVisitor はトークンに対応する既存の訪問者を返す。
// 未登録または期限切れの場合はnilを返し、新規作成はしない。
func (s *Store) GetVisitor(ctx context.Context, token string) (*model.VisitorIdentity, error) {
	if token == "" {
		return nil, nil
	}

	if v := s.cached(token); v != nil {
		return v, nil
	}

	visitor, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		slog.Error("failed to look up visitor session", "error", err)
		return nil, ErrBackendUnavailable
	}
	if visitor == nil || visitor.ExpiredAt(s.now()) {
		return nil, nil
	}

	s.mu.Lock()
	s.cache[token] = visitor
	s.mu.Unlock()

	return visitor, nil
}

// ClearSession はローカルキャッシュからトークンを破棄する。
// 永続層のレコードは失効期限かクリーンアップワーカーに委ねる。
func (s *Store) ClearSession(token string) {
	s.mu.Lock()
	delete(s.cache, token)
	s.mu.Unlock()
}

// cached はキャッシュ内の未失効エントリを返す。失効エントリは破棄する。
func (s *Store) cached(token string) *model.VisitorIdentity {
	s.mu.RLock()
	v, ok := s.cache[token]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	if v.ExpiredAt(s.now()) {
		s.mu.Lock()
		// 再確認: 別ゴルーチンが新しい訪問者で置き換え済みの場合は残す
		if cur, ok := s.cache[token]; ok && cur.ExpiredAt(s.now()) {
			delete(s.cache, token)
		}
		s.mu.Unlock()
		return nil
	}

	return v
}

// newCandidate は新規訪問者の候補レコードを組み立てる。
// 有効期限は作成時刻から固定期間後で、以後の操作で延長されることはない。
func (s *Store) newCandidate(token string) (*model.VisitorIdentity, error) {
	suffix, err := randomHex(2)
	if err != nil {
		return nil, fmt.Errorf("failed to generate display name: %w", err)
	}

	createdAt := s.now()
	return &model.VisitorIdentity{
		ID:           uuid.NewString(),
		SessionToken: token,
		DisplayName:  "Visitor-" + suffix,
		CreatedAt:    createdAt,
		ExpiresAt:    createdAt.Add(model.VisitorTTL),
	}, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
