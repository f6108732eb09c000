// Package auth はAuth0によるOIDC認証フロー、セッション管理、
// Bearerトークン検証を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/idman/internal/model"
	"github.com/hitoshi/idman/internal/repository"
)

// OIDCUserInfo はOIDCプロバイダーから取得したユーザー情報を表す。
type OIDCUserInfo struct {
	Sub        string
	Email      string
	Name       string
	GivenName  string
	FamilyName string
}

// OIDCProvider はOIDC認証プロバイダーのインターフェース。
// テストでモックに差し替えるための抽象化。
type OIDCProvider interface {
	// GetLoginURL は認可URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OIDCUserInfo, error)
	// GetLogoutURL はプロバイダー側のセッションも破棄するログアウトURLを生成する。
	GetLogoutURL(returnTo string) string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// LoginRecorder はログインをメトリクスに記録するインターフェース。
type LoginRecorder interface {
	RecordLogin(isNewUser bool)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oidc        OIDCProvider
	userRepo    repository.UserRepository
	sessionRepo repository.LoginSessionRepository
	metrics     LoginRecorder // nil可
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oidc OIDCProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.LoginSessionRepository,
	metrics LoginRecorder,
	config ServiceConfig,
) *Service {
	return &Service{
		oidc:        oidc,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		metrics:     metrics,
		config:      config,
	}
}

// GetLoginURL はOIDC認可URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oidc.GetLoginURL(state)
}

// GetLogoutURL はプロバイダー側のログアウトURLを生成する。
func (s *Service) GetLogoutURL(returnTo string) string {
	return s.oidc.GetLogoutURL(returnTo)
}

// HandleCallback はOIDCコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はAuth0のsubをキーにusersレコードを自動作成する。
// 新規ユーザーはrole=user、identity_status=pendingで開始する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.LoginSession, error) {
	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	userInfo, err := s.oidc.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oidc code: %w", err)
	}

	// 2. Auth0のsubで既存ユーザーを検索
	user, err := s.userRepo.FindByAuth0Sub(ctx, userInfo.Sub)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	isNewUser := user == nil

	if user != nil {
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
		)
	} else {
		// 新規ユーザーを自動作成。氏名は後の本人確認で書類の記載により上書きされうる。
		now := time.Now()
		user = &model.User{
			ID:             uuid.New().String(),
			Auth0Sub:       userInfo.Sub,
			Email:          userInfo.Email,
			Role:           model.RoleUser,
			IdentityStatus: model.IdentityStatusPending,
			FirstName:      userInfo.GivenName,
			LastName:       userInfo.FamilyName,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}

		slog.Info("new user created",
			slog.String("user_id", user.ID),
			slog.String("email", userInfo.Email),
		)
	}

	// 3. セッションを発行
	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordLogin(isNewUser)
	}

	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが存在しない、または期限切れの場合はUnauthorizedを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError("user not found")
	}

	return user, nil
}

// GetUserByAuth0Sub はBearerトークンのsubクレームからユーザーを取得する。
func (s *Service) GetUserByAuth0Sub(ctx context.Context, sub string) (*model.User, error) {
	user, err := s.userRepo.FindByAuth0Sub(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError("user not found")
	}
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.LoginSession, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.LoginSession{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
