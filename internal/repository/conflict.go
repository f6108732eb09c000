package repository

import (
	"errors"

	"github.com/lib/pq"

	"github.com/hitoshi/idman/internal/model"
)

// uniqueViolation はPostgreSQLのunique_violationエラーコード。
const uniqueViolation = pq.ErrorCode("23505")

// constraintFields は制約名からAPIエラーに載せるフィールド名への対応表。
var constraintFields = map[string]string{
	"users_auth0_sub_key":                         "auth0Sub",
	"users_email_key":                             "email",
	"verification_sessions_user_id_key":           "userId",
	"verification_sessions_stripe_session_id_key": "stripeSessionId",
}

// mapConflict はユニーク制約違反をmodel.APIError（CONFLICT）に変換する。
// この関数がこのコアにおける制約違反→Conflictの唯一の変換点であり、
// DBのエラーコードをビジネスロジックへ漏らさない。
// 制約違反以外のエラーはそのまま返す。
func mapConflict(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}

	field, ok := constraintFields[pqErr.Constraint]
	if !ok {
		field = "unknown"
	}
	return model.NewConflictError(field)
}
