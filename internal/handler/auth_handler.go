// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/notekeeper/internal/auth"
	"github.com/hitoshi/notekeeper/internal/middleware"
	"github.com/hitoshi/notekeeper/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(provider, state string) (string, error)
	HandleCallback(ctx context.Context, provider, code string) (*auth.LoginResult, error)
	LoginFailureURL(code string) string
	Refresh(ctx context.Context, userID string) (*auth.IssuedToken, error)
	Logout(ctx context.Context, userID string) error
	GetCurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// AccountDeleterInterface は退会処理のインターフェース。
type AccountDeleterInterface interface {
	DeleteAccount(ctx context.Context, userID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieSecure bool
}

// AuthHandler はOAuth認証とセッショントークン関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	accounts AccountDeleterInterface
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, accounts AccountDeleterInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		accounts: accounts,
		config:   config,
	}
}

// userResponse はユーザーの公開プロフィール。
type userResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Avatar    string     `json:"avatar"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Avatar:    u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
	if !u.LastLoginAt.IsZero() {
		lastLogin := u.LastLoginAt
		resp.LastLogin = &lastLogin
	}
	return resp
}

// Login はOAuthフローを開始する。同意画面へリダイレクトする。
// GET /auth/{provider}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	url, err := h.service.GetLoginURL(provider, state)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownProvider) {
			handleServiceError(w, model.NewProviderNotFoundError(provider))
			return
		}
		handleServiceError(w, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, h.stateCookie(state, 600))

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// 成功時はトークンをクエリパラメータに載せてフロントエンドへ、失敗時はエラーコード付きでログイン画面へリダイレクトする。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	query := r.URL.Query()

	// 1. stateの検証（CSRF対策）。値そのものはログに残さない
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != query.Get("state") {
		slog.Warn("oauth state mismatch", slog.String("provider", provider))
		h.redirectFailure(w, r, auth.LoginErrorInvalidState)
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, h.stateCookie("", -1))

	// 2. 同意拒否などプロバイダー側のエラー
	if providerErr := query.Get("error"); providerErr != "" {
		slog.Warn("oauth provider returned error",
			slog.String("provider", provider),
			slog.String("error", providerErr),
		)
		h.redirectFailure(w, r, auth.LoginErrorOAuthFailed)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.redirectFailure(w, r, auth.LoginErrorOAuthFailed)
		return
	}

	// 3. 認証処理
	result, err := h.service.HandleCallback(r.Context(), provider, code)
	if err != nil {
		slog.Error("oauth callback failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		h.redirectFailure(w, r, auth.LoginFailureCode(err))
		return
	}

	// 4. フロントエンドにリダイレクト
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

func (h *AuthHandler) redirectFailure(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.service.LoginFailureURL(code), http.StatusFound)
}

func (h *AuthHandler) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			handleServiceError(w, model.NewUserNotFoundError())
			return
		}
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"user": toUserResponse(user),
	})
}

// Refresh は新しいトークンを発行する。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	issued, err := h.service.Refresh(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			handleServiceError(w, model.NewUserNotFoundError())
			return
		}
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"token":     issued.Token,
		"expiresAt": issued.ExpiresAt,
	})
}

// Logout はログアウト時刻を記録する。トークンの破棄はクライアントが行う。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Logout(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

// DeleteAccount はユーザーと所有するすべてのノートを削除する。
// DELETE /auth/account
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.accounts.DeleteAccount(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, "Account deleted successfully", nil)
}

// Validate はトークンが有効であることを返す。検証自体は認証ミドルウェアが行う。
// GET /auth/validate
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"valid":  true,
		"userId": userID,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
