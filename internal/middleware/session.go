// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/idman/internal/model"
)

const sessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.LoginSessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.LoginSession, error)
}

// BearerValidator はAuthorizationヘッダーのBearerトークン検証に必要なインターフェース。
// 検証に成功した場合はsubクレームを返す。
type BearerValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (string, error)
}

// UserFinder はsubクレームからユーザーを逆引きするためのインターフェース。
type UserFinder interface {
	FindByAuth0Sub(ctx context.Context, sub string) (*model.User, error)
}

// NewSessionMiddleware は認証ミドルウェアを返す。
// HTTP Only Cookieのセッションを優先し、Cookieがない場合は
// Authorization: BearerトークンのJWT検証にフォールバックする。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(sessionFinder SessionFinder, bearerValidator BearerValidator, userFinder UserFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Cookieのセッションで認証を試みる
			cookie, err := r.Cookie(sessionCookieName)
			if err == nil && cookie.Value != "" {
				session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
				if err != nil {
					slog.Error("failed to find session",
						slog.String("error", err.Error()),
					)
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("session lookup failed"))
					return
				}
				if session == nil {
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("session not found or expired"))
					return
				}

				ctx := context.WithValue(r.Context(), userIDContextKey, session.UserID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// 2. BearerトークンのJWT検証にフォールバック
			if bearerValidator != nil && userFinder != nil {
				if token := bearerToken(r); token != "" {
					sub, err := bearerValidator.ValidateToken(r.Context(), token)
					if err != nil {
						WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("invalid bearer token"))
						return
					}

					user, err := userFinder.FindByAuth0Sub(r.Context(), sub)
					if err != nil {
						slog.Error("failed to find user by sub",
							slog.String("error", err.Error()),
						)
						WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("user lookup failed"))
						return
					}
					if user == nil {
						WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("user not found"))
						return
					}

					ctx := context.WithValue(r.Context(), userIDContextKey, user.ID)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("authentication required"))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
