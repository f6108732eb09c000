package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/idman/internal/model"
)

// PostgresVerificationSessionRepo はPostgreSQLを使用した本人確認セッションリポジトリ。
type PostgresVerificationSessionRepo struct {
	db *sql.DB
}

// NewPostgresVerificationSessionRepo はPostgresVerificationSessionRepoを生成する。
func NewPostgresVerificationSessionRepo(db *sql.DB) *PostgresVerificationSessionRepo {
	return &PostgresVerificationSessionRepo{db: db}
}

// FindByUserID はユーザーIDで本人確認セッションを検索する。見つからない場合はnilを返す。
func (r *PostgresVerificationSessionRepo) FindByUserID(ctx context.Context, userID string) (*model.VerificationSession, error) {
	session := &model.VerificationSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, stripe_session_id, created_at
		 FROM verification_sessions
		 WHERE user_id = $1`,
		userID,
	).Scan(&session.ID, &session.UserID, &session.StripeSessionID, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find verification session: %w", err)
	}

	return session, nil
}

// Create は本人確認セッションを作成する。
// ユニーク制約違反はConflictエラーに変換して返す。
func (r *PostgresVerificationSessionRepo) Create(ctx context.Context, session *model.VerificationSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_sessions (id, user_id, stripe_session_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		session.ID, session.UserID, session.StripeSessionID, session.CreatedAt,
	)
	if err != nil {
		if conflictErr := mapConflict(err); conflictErr != err {
			return conflictErr
		}
		return fmt.Errorf("failed to create verification session: %w", err)
	}
	return nil
}

// compile-time interface check
var _ VerificationSessionRepository = (*PostgresVerificationSessionRepo)(nil)
