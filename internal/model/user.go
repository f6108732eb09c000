// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーのロールを表す。
type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleDoctor Role = "doctor"
)

// IdentityStatus は本人確認の進行状態を表す。
// pending: 未確認または確認中、verified: 確認済み、failed: 確認失敗（再開が必要）。
type IdentityStatus string

const (
	IdentityStatusPending  IdentityStatus = "pending"
	IdentityStatusVerified IdentityStatus = "verified"
	IdentityStatusFailed   IdentityStatus = "failed"
)

// User はサービス利用ユーザーを表す。
// FirstName以下のプロフィール項目は本人確認レポートの内容で上書きされることがある。
type User struct {
	ID             string
	Auth0Sub       string
	Email          string
	Role           Role
	IdentityStatus IdentityStatus
	FirstName      string
	LastName       string
	Country        string
	BirthYear      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LoginSession はユーザーのログインセッションを表す。
type LoginSession struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// VerificationSession はユーザーと外部本人確認セッションの1:1の紐付けを表す。
// UserID、StripeSessionIDはともにユニーク制約を持つ。
type VerificationSession struct {
	ID              string
	UserID          string
	StripeSessionID string
	CreatedAt       time.Time
}
