// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/todoman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var principalContextKey = contextKey("principal")

// TokenParser はアクセストークンの検証に必要なインターフェース。
// auth.TokenIssuerが満たす。
type TokenParser interface {
	Parse(token string) (*model.Principal, error)
}

// NewTokenMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// ヘッダーなし・トークンなしは401、検証失敗・期限切れは403を返す。
// 検証に成功した場合はPrincipalをリクエストコンテキストに注入する。
func NewTokenMiddleware(parser TokenParser) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewMissingTokenError())
				return
			}

			principal, err := parser.Parse(token)
			if err != nil {
				slog.Debug("token rejected", slog.String("error", err.Error()))
				WriteErrorResponse(w, http.StatusForbidden, model.NewInvalidTokenError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// bearerToken は "Bearer <token>" 形式のヘッダーからトークンを取り出す。
// 形式が異なる場合は空文字を返す。
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// PrincipalFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// トークンミドルウェアを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (*model.Principal, error) {
	p, ok := ctx.Value(principalContextKey).(*model.Principal)
	if !ok || p == nil {
		return nil, errors.New("principal not found in context")
	}
	return p, nil
}

// ContextWithPrincipal はコンテキストに認証済みユーザーを注入する。
// リクエストログにもユーザーIDを反映する。
func ContextWithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	if fields := logFieldsFromContext(ctx); fields != nil {
		fields.setUserID(p.UserID)
	}
	return context.WithValue(ctx, principalContextKey, p)
}
