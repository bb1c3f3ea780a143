package postgres

import (
	"errors"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// mapPgError переводит ошибки драйвера в таксономию домена.
// notFound подставляется вместо pgx.ErrNoRows.
func mapPgError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return domain.ErrChatExists
		case codeForeignKeyViolation:
			return domain.ErrChatNotFound
		case codeCheckViolation:
			return domain.Invalidf("constraint %s violated", pgErr.ConstraintName)
		}
	}

	return err
}
