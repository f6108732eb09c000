// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/idman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByAuth0Sub はAuth0のsubjectでユーザーを検索する。見つからない場合はnilを返す。
	FindByAuth0Sub(ctx context.Context, sub string) (*model.User, error)

	// Create はユーザーを作成する。
	// auth0_subまたはemailのユニーク制約違反はmodel.APIError（CONFLICT）として返す。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザーの全項目をIDで上書き更新する。
	// 本人確認結果の反映はこの1本の更新経路のみを使用する。
	Update(ctx context.Context, user *model.User) error
}

// LoginSessionRepository はログインセッションの永続化インターフェース。
type LoginSessionRepository interface {
	// Create はログインセッションを作成する。
	Create(ctx context.Context, session *model.LoginSession) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.LoginSession, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// VerificationSessionRepository は本人確認セッション紐付けの永続化インターフェース。
type VerificationSessionRepository interface {
	// FindByUserID はユーザーIDで本人確認セッションを検索する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.VerificationSession, error)

	// Create は本人確認セッションを作成する。
	// user_idまたはstripe_session_idのユニーク制約違反はmodel.APIError（CONFLICT）として返す。
	// 同時初回リクエストの片方はこのConflictで検出される。
	Create(ctx context.Context, session *model.VerificationSession) error
}
