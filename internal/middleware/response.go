package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/notekeeper/internal/model"
)

// FieldErrorBody は検証エラー1件分のレスポンス。
type FieldErrorBody struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ResponseBody はすべてのJSONレスポンスの統一フォーマット。
// エラー時は原因カテゴリと対処方法を含む。
type ResponseBody struct {
	Success  bool             `json:"success"`
	Code     string           `json:"code,omitempty"`
	Message  string           `json:"message,omitempty"`
	Category string           `json:"category,omitempty"`
	Action   string           `json:"action,omitempty"`
	Data     any              `json:"data,omitempty"`
	Errors   []FieldErrorBody `json:"errors,omitempty"`
}

// WriteJSON はレスポンスボディをJSONで書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, body ResponseBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// WriteSuccess は成功レスポンスを書き込む。messageとdataは省略可能。
func WriteSuccess(w http.ResponseWriter, statusCode int, message string, data any) {
	WriteJSON(w, statusCode, ResponseBody{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// 検証エラーの場合は失敗したフィールドをすべてerrorsに含める。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	var fields []FieldErrorBody
	if len(apiErr.Fields) > 0 {
		fields = make([]FieldErrorBody, len(apiErr.Fields))
		for i, f := range apiErr.Fields {
			fields[i] = FieldErrorBody{Field: f.Field, Message: f.Message}
		}
	}
	WriteJSON(w, statusCode, ResponseBody{
		Success:  false,
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Errors:   fields,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
