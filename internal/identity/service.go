// Package identity は本人確認の照合ロジックを提供する。
// アプリケーションDB、外部セッション、Webhookイベントという
// 3つの情報源を突き合わせてユーザーのidentity_statusを確定する。
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/idman/internal/model"
	"github.com/hitoshi/idman/internal/repository"
	"github.com/hitoshi/idman/internal/stripeid"
)

// ProviderClient は本人確認プロバイダーへの呼び出しインターフェース。
// 構築済みのstripeid.Clientを注入する。テストではモックに差し替える。
type ProviderClient interface {
	CreateVerificationSession(ctx context.Context, params stripeid.CreateSessionParams) (*stripeid.VerificationSession, error)
	RetrieveVerificationSession(ctx context.Context, sessionID string) (*stripeid.VerificationSession, error)
	RetrieveVerificationReport(ctx context.Context, reportID string) (*stripeid.VerificationReport, error)
}

// MetricsRecorder は本人確認の結果を記録するインターフェース。
type MetricsRecorder interface {
	RecordVerificationStart(sessionStatus string)
	RecordVerificationOutcome(status string)
}

// StartResult はStartVerificationの結果。
// ClientSecretは新規作成または入力待ちのセッションでのみ設定される。
type StartResult struct {
	SessionStatus string  `json:"session_status"`
	ClientSecret  *string `json:"client_secret"`
}

// StatusResult はGetStatusの結果。外部セッションの状態をそのまま投影する。
type StatusResult struct {
	Status string                     `json:"status"`
	Error  *stripeid.SessionLastError `json:"error"`
}

// SessionStatusNew は新規にセッションを作成したことを表す。
// それ以外のセッションステータスは外部セッションの語彙をそのまま使う。
const SessionStatusNew = "new"

// ServiceConfig は本人確認サービスの設定。
type ServiceConfig struct {
	RequireSelfie   bool
	RequireIDNumber bool
}

// Service は本人確認のビジネスロジックを提供する。
type Service struct {
	provider    ProviderClient
	userRepo    repository.UserRepository
	sessionRepo repository.VerificationSessionRepository
	metrics     MetricsRecorder // nil可
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	provider ProviderClient,
	userRepo repository.UserRepository,
	sessionRepo repository.VerificationSessionRepository,
	metrics MetricsRecorder,
	config ServiceConfig,
) *Service {
	return &Service{
		provider:    provider,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		metrics:     metrics,
		config:      config,
	}
}

// StartVerification は本人確認フローを開始する。
// 既存セッションがあれば外部の現在状態を問い合わせて返し、新たな作成は行わない。
// セッションが存在しない場合（および外部セッションがcanceledの場合）は新規作成する。
// ユーザーごとのセッションは最大1件であり、同時呼び出しの競合は
// ストアのユニーク制約によりConflictとして顕在化する。
func (s *Service) StartVerification(ctx context.Context, userID string) (*StartResult, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	existing, err := s.sessionRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find verification session: %w", err)
	}

	if existing != nil {
		session, err := s.provider.RetrieveVerificationSession(ctx, existing.StripeSessionID)
		if err != nil {
			slog.Error("failed to retrieve verification session",
				slog.String("user_id", userID),
				slog.String("stripe_session_id", existing.StripeSessionID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewProviderUnavailableError("verification session retrieval failed")
		}

		switch session.Status {
		case stripeid.StatusRequiresInput:
			return s.startResult(stripeid.StatusRequiresInput, &session.ClientSecret), nil
		case stripeid.StatusProcessing:
			return s.startResult(stripeid.StatusProcessing, nil), nil
		case stripeid.StatusVerified:
			return s.startResult(stripeid.StatusVerified, nil), nil
		}
		// canceled等は既存レコードを無視して新規作成に進む。
		// user_idユニーク制約により作成はConflictになる（再確認フローは未定義）。
		slog.Warn("existing verification session is unusable",
			slog.String("user_id", userID),
			slog.String("status", session.Status),
		)
	}

	created, err := s.provider.CreateVerificationSession(ctx, stripeid.CreateSessionParams{
		UserID:          userID,
		RequireSelfie:   s.config.RequireSelfie,
		RequireIDNumber: s.config.RequireIDNumber,
	})
	if err != nil {
		slog.Error("failed to create verification session",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewProviderUnavailableError("verification session creation failed")
	}

	record := &model.VerificationSession{
		ID:              uuid.New().String(),
		UserID:          userID,
		StripeSessionID: created.ID,
		CreatedAt:       time.Now(),
	}
	if err := s.sessionRepo.Create(ctx, record); err != nil {
		// ConflictはAPIErrorのまま呼び出し元へ返す（同時開始の片方）
		if model.IsCode(err, model.ErrCodeConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to persist verification session: %w", err)
	}

	slog.Info("verification session created",
		slog.String("user_id", userID),
		slog.String("stripe_session_id", created.ID),
	)

	return s.startResult(SessionStatusNew, &created.ClientSecret), nil
}

// GetStatus は外部セッションの現在状態を取得する。
// 状態とlast_errorは外部セッションの値をそのまま投影する。
func (s *Service) GetStatus(ctx context.Context, userID string) (*StatusResult, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	record, err := s.sessionRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find verification session: %w", err)
	}
	if record == nil {
		return nil, model.NewVerificationSessionNotFoundError(userID)
	}

	session, err := s.provider.RetrieveVerificationSession(ctx, record.StripeSessionID)
	if err != nil {
		slog.Error("failed to retrieve verification session",
			slog.String("user_id", userID),
			slog.String("stripe_session_id", record.StripeSessionID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewProviderUnavailableError("verification session retrieval failed")
	}

	return &StatusResult{
		Status: session.Status,
		Error:  session.LastError,
	}, nil
}

// HandleWebhook は署名検証済みのWebhookイベントをidentity_statusに反映する。
//
// ユーザー不在やmetadata欠落は警告ログのみで正常終了とする。
// プロバイダーの再送で解消しない状態をエラーにすると無限再送になるため。
// 永続化の失敗のみエラーとして返し、再送に委ねる。
func (s *Service) HandleWebhook(ctx context.Context, event *WebhookEvent) error {
	object := event.Data.Object

	userID := object.Metadata["user_id"]
	if userID == "" {
		slog.Warn("webhook event has no user_id in metadata",
			slog.String("event_type", event.Type),
			slog.String("session_id", object.ID),
		)
		return nil
	}

	// 状態遷移を引き起こすのはverifiedとrequires_inputのみ。
	// processing等の中間状態は無視する。
	if object.Status != stripeid.StatusVerified && object.Status != stripeid.StatusRequiresInput {
		slog.Info("ignoring webhook event with non-terminal status",
			slog.String("session_id", object.ID),
			slog.String("status", object.Status),
		)
		return nil
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		slog.Warn("webhook event for unknown user",
			slog.String("user_id", userID),
			slog.String("session_id", object.ID),
		)
		return nil
	}

	// 確認済みのユーザーを古いrequires_inputイベントで巻き戻さない。
	// 配送順序は保証されないため、verifiedからの降格は常にステイルとみなす。
	if user.IdentityStatus == model.IdentityStatusVerified && object.Status == stripeid.StatusRequiresInput {
		slog.Warn("ignoring stale requires_input event for verified user",
			slog.String("user_id", userID),
			slog.String("session_id", object.ID),
		)
		return nil
	}

	switch object.Status {
	case stripeid.StatusVerified:
		s.applyVerified(ctx, user, object)
	case stripeid.StatusRequiresInput:
		user.IdentityStatus = model.IdentityStatusFailed
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update user identity status: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordVerificationOutcome(string(user.IdentityStatus))
	}

	slog.Info("identity status updated",
		slog.String("user_id", userID),
		slog.String("identity_status", string(user.IdentityStatus)),
	)
	return nil
}

// applyVerified はverifiedイベントをユーザーに反映する。
// レポートの取得に失敗した場合はfailedに落とす。無期限の再送よりも
// 失敗確定として再開を促すほうがよい、という設計判断。
func (s *Service) applyVerified(ctx context.Context, user *model.User, object SessionSnapshot) {
	if object.LastVerificationReport == "" {
		slog.Error("verified event without verification report reference",
			slog.String("user_id", user.ID),
			slog.String("session_id", object.ID),
		)
		user.IdentityStatus = model.IdentityStatusFailed
		return
	}

	report, err := s.provider.RetrieveVerificationReport(ctx, object.LastVerificationReport)
	if err != nil {
		slog.Error("failed to retrieve verification report",
			slog.String("user_id", user.ID),
			slog.String("report_id", object.LastVerificationReport),
			slog.String("error", err.Error()),
		)
		user.IdentityStatus = model.IdentityStatusFailed
		return
	}

	user.IdentityStatus = model.IdentityStatusVerified

	// レポートに存在する項目のみ上書きする。
	// 欠落した項目で既存のプロフィールを消してはならない。
	doc := report.Document
	if doc == nil {
		return
	}
	if doc.DOB != nil && doc.DOB.Year != 0 {
		user.BirthYear = doc.DOB.Year
	}
	if doc.FirstName != "" {
		user.FirstName = doc.FirstName
	}
	if doc.LastName != "" {
		user.LastName = doc.LastName
	}
	if doc.Address != nil && doc.Address.Country != "" {
		user.Country = doc.Address.Country
	}
}

func (s *Service) startResult(status string, clientSecret *string) *StartResult {
	if s.metrics != nil {
		s.metrics.RecordVerificationStart(status)
	}
	return &StartResult{SessionStatus: status, ClientSecret: clientSecret}
}
