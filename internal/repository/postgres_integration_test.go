package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ClementHansel/fieldtalk/internal/database"
	"github.com/ClementHansel/fieldtalk/internal/model"
)

// openTestDB はTEST_DATABASE_URLで指定されたPostgreSQLに接続して返す。
// 未設定の場合はテストをスキップする。マイグレーションは適用済みにする。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres integration test")
	}

	if err := database.RunMigrations(url); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db, err := database.Open(url)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func insertAnonymousTopic(t *testing.T, db *sql.DB, tempUserID string) string {
	t.Helper()

	topicRepo := NewPostgresTopicRepo(db)
	topic := &model.Topic{
		ID:               uuid.NewString(),
		CategorySlug:     "general",
		Title:            "test topic",
		Content:          "test content",
		TempUserID:       &tempUserID,
		IsAnonymous:      true,
		OriginIP:         "203.0.113.7",
		ModerationStatus: model.StatusApproved,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := topicRepo.Create(context.Background(), topic); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return topic.ID
}

func TestPostgresTempUserRepo_GetOrCreateReplacesExpiredIdentity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewPostgresTempUserRepo(db)

	token := uuid.NewString()
	expired := &model.VisitorIdentity{
		ID:           uuid.NewString(),
		SessionToken: token,
		DisplayName:  "名無しさん#1",
		CreatedAt:    time.Now().Add(-24 * time.Hour),
		ExpiresAt:    time.Now().Add(-12 * time.Hour),
	}
	if _, err := repo.GetOrCreate(ctx, expired); err != nil {
		t.Fatalf("GetOrCreate() initial error = %v", err)
	}

	// 失効前の訪問者がコンテンツを残していても再発行は成功しなければならない
	topicID := insertAnonymousTopic(t, db, expired.ID)

	fresh := &model.VisitorIdentity{
		ID:           uuid.NewString(),
		SessionToken: token,
		DisplayName:  "名無しさん#2",
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(12 * time.Hour),
	}
	got, err := repo.GetOrCreate(ctx, fresh)
	if err != nil {
		t.Fatalf("GetOrCreate() after expiry error = %v", err)
	}
	if got.ID == expired.ID {
		t.Error("GetOrCreate() should issue a new identity for an expired token")
	}
	if got.ID != fresh.ID {
		t.Errorf("GetOrCreate() ID = %q, want %q", got.ID, fresh.ID)
	}

	// 旧コンテンツは残したまま孤児化される
	topicRepo := NewPostgresTopicRepo(db)
	topic, err := topicRepo.FindByID(ctx, topicID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if topic == nil {
		t.Fatal("topic should survive identity replacement")
	}
	if topic.TempUserID != nil {
		t.Errorf("topic.TempUserID = %v, want nil after identity replacement", *topic.TempUserID)
	}
}

func TestPostgresTempUserRepo_GetOrCreateReturnsUnexpiredExisting(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewPostgresTempUserRepo(db)

	token := uuid.NewString()
	first := &model.VisitorIdentity{
		ID:           uuid.NewString(),
		SessionToken: token,
		DisplayName:  "名無しさん#1",
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(12 * time.Hour),
	}
	if _, err := repo.GetOrCreate(ctx, first); err != nil {
		t.Fatalf("GetOrCreate() initial error = %v", err)
	}

	second := &model.VisitorIdentity{
		ID:           uuid.NewString(),
		SessionToken: token,
		DisplayName:  "名無しさん#2",
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(12 * time.Hour),
	}
	got, err := repo.GetOrCreate(ctx, second)
	if err != nil {
		t.Fatalf("GetOrCreate() repeat error = %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("GetOrCreate() ID = %q, want existing %q", got.ID, first.ID)
	}
}

func TestPostgresTempUserRepo_DeleteExpiredWithAuthoredContent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewPostgresTempUserRepo(db)

	expired := &model.VisitorIdentity{
		ID:           uuid.NewString(),
		SessionToken: uuid.NewString(),
		DisplayName:  "名無しさん#1",
		CreatedAt:    time.Now().Add(-24 * time.Hour),
		ExpiresAt:    time.Now().Add(-12 * time.Hour),
	}
	if _, err := repo.GetOrCreate(ctx, expired); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	topicID := insertAnonymousTopic(t, db, expired.ID)

	deleted, err := repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if deleted < 1 {
		t.Errorf("DeleteExpired() = %d, want at least 1", deleted)
	}

	topicRepo := NewPostgresTopicRepo(db)
	topic, err := topicRepo.FindByID(ctx, topicID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if topic == nil {
		t.Fatal("topic should survive session cleanup")
	}
	if topic.TempUserID != nil {
		t.Errorf("topic.TempUserID = %v, want nil after cleanup", *topic.TempUserID)
	}
}

func TestPostgresContentRepo_RejectAndDeleteAuthorOnAuthoredItem(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	profileID := uuid.NewString()
	if _, err := db.ExecContext(ctx,
		`INSERT INTO profiles (id, username, role) VALUES ($1, $2, 'user')`,
		profileID, "user-"+uuid.NewString(),
	); err != nil {
		t.Fatalf("failed to insert profile: %v", err)
	}

	topicRepo := NewPostgresTopicRepo(db)
	topic := &model.Topic{
		ID:               uuid.NewString(),
		CategorySlug:     "general",
		Title:            "authored topic",
		Content:          "authored content",
		AuthorID:         &profileID,
		OriginIP:         "203.0.113.7",
		ModerationStatus: model.StatusPending,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := topicRepo.Create(ctx, topic); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	contentRepo := NewPostgresContentRepo(db)
	ref := model.ContentRef{Kind: model.KindTopic, ID: topic.ID}
	if err := contentRepo.RejectAndDeleteAuthor(ctx, ref, profileID); err != nil {
		t.Fatalf("RejectAndDeleteAuthor() error = %v", err)
	}

	// コンテンツ行はreject済みの孤児として残る
	got, err := topicRepo.FindByID(ctx, topic.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got == nil {
		t.Fatal("topic should survive author deletion")
	}
	if got.ModerationStatus != model.StatusRejected {
		t.Errorf("ModerationStatus = %q, want %q", got.ModerationStatus, model.StatusRejected)
	}
	if got.AuthorID != nil {
		t.Errorf("AuthorID = %v, want nil after author deletion", *got.AuthorID)
	}

	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM profiles WHERE id = $1`, profileID,
	).Scan(&count); err != nil {
		t.Fatalf("failed to count profiles: %v", err)
	}
	if count != 0 {
		t.Errorf("profile rows = %d, want 0", count)
	}
}
