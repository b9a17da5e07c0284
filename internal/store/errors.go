package store

import (
	"database/sql"
	"errors"
	"fmt"

	"stockd/internal/apperr"

	"github.com/lib/pq"
)

// Postgres SQLSTATE codes the store reacts to
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	classFeatureUnsupported  = "0A"
)

// Constraints whose violation means a concurrent writer won a race
var numberConstraints = map[string]bool{
	"orders_tenant_number_key":          true,
	"purchase_orders_tenant_number_key": true,
}

const stockCheckConstraint = "product_variants_stock_check"

// classify maps driver errors to application error kinds.
// Errors that are already classified pass through unchanged.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.KindNotFound, err, "%s", msg)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == codeSerializationFailure, pqErr.Code == codeDeadlockDetected:
			return apperr.Wrap(apperr.KindTransientConflict, err, "%s: write conflict", msg)
		case pqErr.Code == codeUniqueViolation && numberConstraints[pqErr.Constraint]:
			return apperr.Wrap(apperr.KindTransientConflict, err, "%s: duplicate document number", msg)
		case pqErr.Code == codeCheckViolation && pqErr.Constraint == stockCheckConstraint:
			return apperr.Wrap(apperr.KindInsufficientStock, err, "insufficient stock")
		case pqErr.Code.Class() == classFeatureUnsupported:
			return apperr.Wrap(apperr.KindTransactionsUnsupported, err, "%s: transactions unsupported", msg)
		}
	}

	return fmt.Errorf("%s: %w", msg, err)
}

func isTransactionsUnsupported(err error) bool {
	return apperr.KindOf(err) == apperr.KindTransactionsUnsupported
}
