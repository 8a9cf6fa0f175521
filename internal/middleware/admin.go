package middleware

import (
	"net/http"
	"strings"

	"github.com/hitoshi/notekeeper/internal/model"
)

// NewAdminMiddleware は呼び出し元のメールアドレスが管理者一覧に含まれる場合のみ通過させるミドルウェアを返す。
// 認証ミドルウェアの後に配置する。一覧が空の場合は全員を拒否する。
func NewAdminMiddleware(adminEmails []string) func(next http.Handler) http.Handler {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			admins[e] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := PrincipalFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("Access token required"))
				return
			}
			if _, ok := admins[strings.ToLower(p.Email)]; !ok {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
