package txn

import (
	"context"

	"stockd/internal/apperr"
)

type action int

const (
	actionDone action = iota
	actionRetry
	actionDegrade
	actionExhausted
	actionFail
)

// decide maps the outcome of one attempt to what the coordinator does next
func decide(err error, attempt, maxRetries int) action {
	if err == nil {
		return actionDone
	}

	switch apperr.KindOf(err) {
	case apperr.KindTransactionsUnsupported:
		return actionDegrade
	case apperr.KindTransientConflict:
		if attempt < maxRetries {
			return actionRetry
		}
		return actionExhausted
	default:
		return actionFail
	}
}

type atomicKey struct{}

func withAtomic(ctx context.Context) context.Context {
	return context.WithValue(ctx, atomicKey{}, true)
}

// IsAtomic reports whether ctx belongs to a unit of work running inside a
// transaction. Outside a transaction, partial writes survive an error.
func IsAtomic(ctx context.Context) bool {
	atomic, _ := ctx.Value(atomicKey{}).(bool)
	return atomic
}
