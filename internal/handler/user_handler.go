package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/notekeeper/internal/middleware"
	"github.com/hitoshi/notekeeper/internal/model"
)

// UserServiceInterface はユーザー管理ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	AccountDeleterInterface
	// SetActive はユーザーの有効フラグを切り替える。無効化されたユーザーのトークンは検証に失敗する。
	SetActive(ctx context.Context, userID string, active bool) (*model.User, error)
}

// UserHandler は管理者向けのユーザー管理HTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// setActiveRequest は有効フラグ更新リクエストのボディ。
type setActiveRequest struct {
	Active *bool `json:"active"`
}

// SetActive はユーザーを無効化または再有効化する。
// PATCH /api/admin/users/{id}/active
func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if req.Active == nil {
		handleServiceError(w, model.NewValidationError([]model.FieldError{
			{Field: "active", Message: "active is required"},
		}))
		return
	}

	user, err := h.service.SetActive(r.Context(), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	message := "User disabled successfully"
	if user.IsActive {
		message = "User enabled successfully"
	}
	middleware.WriteSuccess(w, http.StatusOK, message, map[string]any{
		"user": map[string]any{
			"id":       user.ID,
			"email":    user.Email,
			"isActive": user.IsActive,
		},
	})
}
