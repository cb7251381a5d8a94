// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ClementHansel/fieldtalk/internal/model"
	"github.com/ClementHansel/fieldtalk/internal/repository"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// staffContextKey はリクエストコンテキストにスタッフプロフィールを格納するためのキー。
var staffContextKey = contextKey("staff_profile")

// NewStaffMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// モデレーター以上のロールを持つプロフィールをコンテキストに注入する
// ミドルウェアを返す。認証できないリクエストには401を返す。
// トークンの発行は外部の認証基盤の責務で、ここでは検証のみを行う。
func NewStaffMiddleware(sessions repository.StaffSessionRepository, profiles repository.ProfileRepository) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			staffSession, err := sessions.FindByToken(r.Context(), token)
			if err != nil {
				slog.Error("failed to find staff session", "error", err)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if staffSession == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			profile, err := profiles.FindByID(r.Context(), staffSession.ProfileID)
			if err != nil {
				slog.Error("failed to find staff profile", "error", err)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if profile == nil || !profile.IsStaff() {
				WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
					Code:     "FORBIDDEN",
					Message:  "Staff privileges are required.",
					Category: "auth",
					Action:   "Sign in with a moderator account.",
				})
				return
			}

			ctx := context.WithValue(r.Context(), staffContextKey, profile)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewOptionalStaffMiddleware は有効なスタッフBearerトークンが付与されている
// 場合のみプロフィールをコンテキストに注入するミドルウェアを返す。
// トークンがない、または検証できないリクエストもそのまま通過させる。
// 公開ルート（本人編集など）でスタッフ権限を任意に昇格させるために使う。
func NewOptionalStaffMiddleware(sessions repository.StaffSessionRepository, profiles repository.ProfileRepository) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			staffSession, err := sessions.FindByToken(r.Context(), token)
			if err != nil || staffSession == nil {
				if err != nil {
					slog.Error("failed to find staff session", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			profile, err := profiles.FindByID(r.Context(), staffSession.ProfileID)
			if err != nil || profile == nil || !profile.IsStaff() {
				if err != nil {
					slog.Error("failed to find staff profile", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), staffContextKey, profile)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StaffFromContext はリクエストコンテキストからスタッフプロフィールを取得する。
// スタッフミドルウェアを通過したリクエストでのみ有効。
func StaffFromContext(ctx context.Context) (*model.Profile, error) {
	profile, ok := ctx.Value(staffContextKey).(*model.Profile)
	if !ok || profile == nil {
		return nil, fmt.Errorf("staff profile not found in context")
	}
	return profile, nil
}

// ContextWithStaff はコンテキストにスタッフプロフィールを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithStaff(ctx context.Context, profile *model.Profile) context.Context {
	return context.WithValue(ctx, staffContextKey, profile)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
