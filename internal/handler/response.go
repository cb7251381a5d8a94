// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ClementHansel/fieldtalk/internal/middleware"
	"github.com/ClementHansel/fieldtalk/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeSessionUnavailable, model.ErrCodeBackendUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeIPDetectionFailed, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeIPBanned:
		return http.StatusForbidden
	case model.ErrCodeSpamDetected:
		return http.StatusUnprocessableEntity
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodePreconditionFailed:
		return http.StatusConflict
	case model.ErrCodeContentNotFound:
		return http.StatusNotFound
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// parseContentKind はURLパスのkindセグメントを検証済みContentKindに変換する。
func parseContentKind(raw string) (model.ContentKind, error) {
	kind := model.ContentKind(raw)
	if !kind.Valid() {
		return "", model.NewInvalidRequestError("unknown content kind: " + raw)
	}
	return kind, nil
}
