package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/notekeeper/internal/middleware"
	"github.com/hitoshi/notekeeper/internal/model"
)

// maxBodyBytes はリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

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
	case model.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeNoteNotFound, model.ErrCodeUserNotFound, model.ErrCodeProviderNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeUnauthorized は認証ミドルウェアを通過していないリクエストに401を返す。
func writeUnauthorized(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("Access token required"))
}

// decodeJSON はリクエストボディを厳密にデコードする。
// 未知のフィールド、複数のJSON値、上限を超えるボディは検証エラーとして返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return bodyError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return bodyError(fmt.Errorf("unexpected data after JSON body"))
	}
	return nil
}

func bodyError(err error) *model.APIError {
	var (
		maxErr    *http.MaxBytesError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	msg := "Request body must be a valid JSON object"
	field := "body"
	switch {
	case errors.Is(err, io.EOF):
		msg = "Request body is required"
	case errors.As(err, &maxErr):
		msg = fmt.Sprintf("Request body must not exceed %d bytes", maxErr.Limit)
	case errors.As(err, &syntaxErr):
		msg = fmt.Sprintf("Malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			field = typeErr.Field
		}
		msg = fmt.Sprintf("Expected %s", typeErr.Type.String())
	default:
		// json: unknown field "x"
		msg = err.Error()
	}
	return model.NewValidationError([]model.FieldError{{Field: field, Message: msg}})
}
