// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, identity, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeSessionNotFound     = "SESSION_NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
)

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", userID),
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewVerificationSessionNotFoundError は本人確認セッションが存在しない場合のエラーを生成する。
func NewVerificationSessionNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("本人確認セッションが見つかりません: %s", userID),
		Category: "identity",
		Action:   "本人確認を開始してから状態を確認してください。",
	}
}

// NewConflictError はユニーク制約違反のエラーを生成する。
// fieldには違反したカラム名（userId、stripeSessionId、auth0Sub、email等）を指定する。
func NewConflictError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  fmt.Sprintf("一意制約に違反しました: %s", field),
		Category: "identity",
		Action:   "すでに登録済みのデータです。現在の状態を確認してください。",
	}
}

// NewUnauthorizedError は認証失敗のエラーを生成する。
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  fmt.Sprintf("認証に失敗しました: %s", reason),
		Category: "auth",
		Action:   "認証情報を確認してください。",
	}
}

// NewProviderUnavailableError は外部プロバイダー呼び出し失敗のエラーを生成する。
func NewProviderUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  fmt.Sprintf("外部サービスの呼び出しに失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// IsCode はerrがAPIErrorであり、かつ指定のエラーコードを持つかどうかを判定する。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == code
}
