package model

import "time"

// SpamReport は閲覧者によるコンテンツの通報を表す。
type SpamReport struct {
	ID           string
	ContentType  ContentKind
	ContentID    string
	ReporterID   *string // 未ログインの通報者はnil
	ReporterIP   string
	ReportReason string
	Automated    bool
	CreatedAt    time.Time
}
