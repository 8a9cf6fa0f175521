package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/notekeeper/internal/auth"
	"github.com/hitoshi/notekeeper/internal/model"
)

type mockTokenValidator struct {
	validateFn func(ctx context.Context, token string) (*model.Principal, error)
}

func (m *mockTokenValidator) Validate(ctx context.Context, token string) (*model.Principal, error) {
	return m.validateFn(ctx, token)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) ResponseBody {
	t.Helper()
	var body ResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// TestAuthMiddleware_ValidToken は有効なトークンで呼び出し元がコンテキストに入ることを検証する。
func TestAuthMiddleware_ValidToken(t *testing.T) {
	validator := &mockTokenValidator{
		validateFn: func(ctx context.Context, token string) (*model.Principal, error) {
			if token != "good-token" {
				t.Errorf("token = %q, want good-token", token)
			}
			return &model.Principal{UserID: "user-1", Email: "a@example.com", Name: "A"}, nil
		},
	}

	var captured *model.Principal
	handler := NewAuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured == nil || captured.UserID != "user-1" || captured.Email != "a@example.com" {
		t.Errorf("principal = %+v, want user-1", captured)
	}
}

// TestAuthMiddleware_Rejections は認証失敗時のステータスとメッセージを検証する。
func TestAuthMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		validateErr error
		wantStatus  int
		wantMessage string
	}{
		{"missing header", "", nil, http.StatusUnauthorized, "Access token required"},
		{"wrong scheme", "Basic abc", nil, http.StatusUnauthorized, "Access token required"},
		{"empty bearer", "Bearer   ", nil, http.StatusUnauthorized, "Access token required"},
		{"invalid token", "Bearer x", auth.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
		{"expired token", "Bearer x", auth.ErrTokenExpired, http.StatusUnauthorized, "Token expired"},
		{"user gone", "Bearer x", auth.ErrUserNotFound, http.StatusUnauthorized, "Invalid token or user no longer exists"},
		{"repository down", "Bearer x", fmt.Errorf("failed to find user: %w", errors.New("dial tcp")), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := &mockTokenValidator{
				validateFn: func(ctx context.Context, token string) (*model.Principal, error) {
					return nil, tt.validateErr
				},
			}
			handler := NewAuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := decodeBody(t, w)
			if body.Success {
				t.Error("expected success=false")
			}
			if body.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", body.Message, tt.wantMessage)
			}
		})
	}
}

// TestAuthMiddleware_LowercaseScheme はスキーム名の大文字小文字を区別しないことを検証する。
func TestAuthMiddleware_LowercaseScheme(t *testing.T) {
	validator := &mockTokenValidator{
		validateFn: func(ctx context.Context, token string) (*model.Principal, error) {
			return &model.Principal{UserID: "user-1"}, nil
		},
	}
	handler := NewAuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "bearer tok")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

// TestUserIDFromContext_Missing はコンテキストに呼び出し元がない場合にエラーとなることを検証する。
func TestUserIDFromContext_Missing(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}
	ctx := ContextWithUserID(context.Background(), "user-9")
	id, err := UserIDFromContext(ctx)
	if err != nil || id != "user-9" {
		t.Errorf("UserIDFromContext = %q, %v; want user-9", id, err)
	}
}

// TestAdminMiddleware は管理者メールのみ通過することを検証する。
func TestAdminMiddleware(t *testing.T) {
	mw := NewAdminMiddleware([]string{" Admin@Example.com ", ""})

	tests := []struct {
		name       string
		principal  *model.Principal
		wantStatus int
	}{
		{"admin", &model.Principal{UserID: "u1", Email: "admin@example.com"}, http.StatusOK},
		{"non-admin", &model.Principal{UserID: "u2", Email: "user@example.com"}, http.StatusForbidden},
		{"empty email", &model.Principal{UserID: "u3"}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodPatch, "/api/admin/users/x/active", nil)
			if tt.principal != nil {
				req = req.WithContext(ContextWithPrincipal(req.Context(), tt.principal))
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
