// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/notekeeper/internal/auth"
	"github.com/hitoshi/notekeeper/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// principalContextKey はリクエストコンテキストに呼び出し元を格納するためのキー。
	principalContextKey = contextKey("principal")
	// holderContextKey は外側のミドルウェアへ呼び出し元を伝えるholderのキー。
	holderContextKey = contextKey("principal_holder")
)

// principalHolder は認証ミドルウェアが検証した呼び出し元を、それより外側のミドルウェア
// （アクセスログ）へ渡すための入れ物。リクエストごとに生成する。
type principalHolder struct {
	principal *model.Principal
}

func (h *principalHolder) userID() string {
	if h.principal == nil {
		return ""
	}
	return h.principal.UserID
}

func contextWithPrincipalHolder(ctx context.Context, h *principalHolder) context.Context {
	return context.WithValue(ctx, holderContextKey, h)
}

// TokenValidator はトークン検証に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*model.Principal, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 認証済みの呼び出し元をリクエストコンテキストに注入する。
// トークンがない・不正・期限切れ、またはユーザーが無効な場合は401を返す。
func NewAuthMiddleware(validator TokenValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーからトークンを取得
			token, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("Access token required"))
				return
			}

			// 2. トークンとユーザーの有効性を検証
			principal, err := validator.Validate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("Token expired"))
				case errors.Is(err, auth.ErrInvalidToken):
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("Invalid token"))
				case errors.Is(err, auth.ErrUserNotFound):
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("Invalid token or user no longer exists"))
				default:
					slog.Error("failed to validate token",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
				}
				return
			}

			// 3. 呼び出し元をコンテキストに注入
			if h, ok := r.Context().Value(holderContextKey).(*principalHolder); ok {
				h.principal = principal
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// PrincipalFromContext はリクエストコンテキストから呼び出し元を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (*model.Principal, error) {
	p, ok := ctx.Value(principalContextKey).(*model.Principal)
	if !ok || p == nil || p.UserID == "" {
		return nil, fmt.Errorf("principal not found in context")
	}
	return p, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	p, err := PrincipalFromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("user ID not found in context")
	}
	return p.UserID, nil
}

// ContextWithPrincipal はコンテキストに呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, principal *model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// ContextWithUserID はユーザーIDのみを持つ呼び出し元をコンテキストに注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithPrincipal(ctx, &model.Principal{UserID: userID})
}
