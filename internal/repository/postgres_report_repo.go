package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ClementHansel/fieldtalk/internal/model"
)

// PostgresReportRepo はスパム報告のPostgreSQL実装。
type PostgresReportRepo struct {
	db *sql.DB
}

// NewPostgresReportRepo はPostgresReportRepoを生成する。
func NewPostgresReportRepo(db *sql.DB) *PostgresReportRepo {
	return &PostgresReportRepo{db: db}
}

// Create はスパム報告を1件作成する。
func (r *PostgresReportRepo) Create(ctx context.Context, report *model.SpamReport) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO spam_reports
		 (id, content_type, content_id, reporter_id, reporter_ip, report_reason, automated, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		report.ID, report.ContentType, report.ContentID, report.ReporterID,
		report.ReporterIP, report.ReportReason, report.Automated, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create spam report: %w", err)
	}

	return nil
}

// compile-time interface check
var _ ReportRepository = (*PostgresReportRepo)(nil)
