package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/idman/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, auth0_sub, email, role, identity_status, first_name, last_name, country, birth_year, created_at, updated_at`

// scanUser は1行分のユーザーを読み取る。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Auth0Sub, &user.Email, &user.Role, &user.IdentityStatus,
		&user.FirstName, &user.LastName, &user.Country, &user.BirthYear,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByAuth0Sub はAuth0のsubjectでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByAuth0Sub(ctx context.Context, sub string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE auth0_sub = $1`,
		sub,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by auth0 sub: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
// ユニーク制約違反はConflictエラーに変換して返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, auth0_sub, email, role, identity_status, first_name, last_name, country, birth_year, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		user.ID, user.Auth0Sub, user.Email, user.Role, user.IdentityStatus,
		user.FirstName, user.LastName, user.Country, user.BirthYear,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if conflictErr := mapConflict(err); conflictErr != err {
			return conflictErr
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update はユーザーの全項目をIDで上書き更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET email = $2, role = $3, identity_status = $4,
		     first_name = $5, last_name = $6, country = $7, birth_year = $8,
		     updated_at = now()
		 WHERE id = $1`,
		user.ID, user.Email, user.Role, user.IdentityStatus,
		user.FirstName, user.LastName, user.Country, user.BirthYear,
	)
	if err != nil {
		if conflictErr := mapConflict(err); conflictErr != err {
			return conflictErr
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewUserNotFoundError(user.ID)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
