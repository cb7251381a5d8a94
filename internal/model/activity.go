package model

import "time"

// ActivityEvent はゲートを通過した投稿試行1件の記録。
// 許可・拒否を問わず記録され、下流の不正利用分析に使われる。
// 記録はベストエフォートで、投稿経路をブロックしてはならない。
type ActivityEvent struct {
	ID           string
	IPAddress    string
	SessionID    string
	ActivityType ContentKind
	ContentID    *string
	IsBlocked    bool
	BlockReason  string
	CreatedAt    time.Time
}
