package model

import (
	"fmt"
	"strings"
)

// FieldError は入力フィールド1件分の検証エラーを表す。
type FieldError struct {
	Field   string
	Message string
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string       // エラーコード
	Message  string       // エラーメッセージ
	Category string       // カテゴリ: auth, validation, note, system
	Action   string       // ユーザー向け対処方法
	Fields   []FieldError // 検証エラーの場合は失敗したすべてのフィールド
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, strings.Join(names, ", "))
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNoteNotFound     = "NOTE_NOT_FOUND"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeProviderNotFound = "PROVIDER_NOT_FOUND"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewValidationError は検証エラーを生成する。fieldsには失敗したフィールドをすべて渡す。
func NewValidationError(fields []FieldError) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "Validation failed",
		Category: "validation",
		Action:   "Fix the listed fields and retry.",
		Fields:   fields,
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  message,
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Admin access required",
		Category: "auth",
		Action:   "Ask an administrator for access.",
	}
}

// NewNoteNotFoundError はノート未検出エラーを生成する。
// 他ユーザーのノートも存在しない場合と同じエラーになる。
func NewNoteNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNoteNotFound,
		Message:  "Note not found",
		Category: "note",
		Action:   "Reload the note list.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
		Action:   "Wait a moment and try again.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Wait for the Retry-After interval and retry.",
	}
}

// NewProviderNotFoundError は未対応のOAuthプロバイダーが指定された場合のエラーを生成する。
func NewProviderNotFoundError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderNotFound,
		Message:  fmt.Sprintf("Unsupported login provider: %s", provider),
		Category: "auth",
		Action:   "Sign in with a supported provider.",
	}
}
