// Package txn runs units of work atomically when the storage deployment
// supports multi-statement transactions, and sequentially otherwise.
package txn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"stockd/internal/apperr"
	"stockd/internal/store"
	"stockd/internal/util"

	"go.uber.org/zap"
)

const (
	DefaultMaxRetries  = 3
	DefaultBackoffUnit = 100 * time.Millisecond
)

// Backend is a storage deployment that may or may not offer transactions
type Backend interface {
	Begin(ctx context.Context) (store.Scope, error)
	Repositories() store.Repositories
	SupportsTransactions(ctx context.Context) (bool, error)
}

// UnitOfWork is a group of reads and writes that must commit together.
// It may run more than once, so it must not have effects outside repos.
type UnitOfWork func(ctx context.Context, repos store.Repositories) error

type Config struct {
	MaxRetries  int
	BackoffUnit time.Duration
}

type Coordinator struct {
	backend       Backend
	maxRetries    int
	backoffUnit   time.Duration
	transactional atomic.Bool
	degradeOnce   sync.Once
	logger        *zap.Logger
}

// NewCoordinator asks the backend once whether it supports transactions and picks the execution strategy
func NewCoordinator(ctx context.Context, backend Backend, cfg Config) (*Coordinator, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = DefaultBackoffUnit
	}

	c := &Coordinator{
		backend:     backend,
		maxRetries:  cfg.MaxRetries,
		backoffUnit: cfg.BackoffUnit,
		logger:      util.GetLogger(),
	}

	supported, err := backend.SupportsTransactions(ctx)
	if err != nil {
		return nil, err
	}
	c.transactional.Store(supported)
	if !supported {
		c.degrade(nil)
	}

	c.logger.Info("Transaction coordinator ready",
		zap.Bool("transactional", supported),
		zap.Int("max_retries", c.maxRetries),
	)
	return c, nil
}

// Transactional reports whether units of work currently run in a transaction
func (c *Coordinator) Transactional() bool {
	return c.transactional.Load()
}

// RunAtomically executes fn, retrying transient conflicts with linear
// backoff. On a deployment without transactions fn runs once per attempt
// against the plain repositories.
func (c *Coordinator) RunAtomically(ctx context.Context, fn UnitOfWork) error {
	ctx, span := util.StartSpan(ctx, "Coordinator.RunAtomically")
	defer span.End()

	for attempt := 1; ; attempt++ {
		transactional := c.transactional.Load()

		var err error
		if transactional {
			err = c.runInTransaction(ctx, fn)
		} else {
			err = fn(ctx, c.backend.Repositories())
		}

		switch decide(err, attempt, c.maxRetries) {
		case actionDone:
			return nil

		case actionDegrade:
			if !transactional {
				return c.fail(err)
			}
			c.degrade(err)
			attempt = 0

		case actionRetry:
			util.TxRetriesTotal.Inc()
			c.logger.Warn("Retrying unit of work after transient conflict",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if err := c.wait(ctx, attempt); err != nil {
				return c.fail(err)
			}

		case actionExhausted:
			return c.fail(apperr.Wrap(apperr.KindTransientConflict, err,
				"operation conflicted with concurrent updates after %d attempts", attempt))

		default:
			return c.fail(err)
		}
	}
}

func (c *Coordinator) runInTransaction(ctx context.Context, fn UnitOfWork) error {
	scope, err := c.backend.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := scope.Rollback(); err != nil {
			c.logger.Error("Failed to roll back transaction", zap.Error(err))
		}
	}()

	if err := fn(withAtomic(ctx), scope.Repositories()); err != nil {
		return err
	}
	return scope.Commit()
}

func (c *Coordinator) degrade(cause error) {
	c.transactional.Store(false)
	c.degradeOnce.Do(func() {
		util.TxDegradedTotal.Inc()
		c.logger.Warn("Storage does not support transactions, running units of work without atomicity",
			zap.Error(cause),
		)
	})
}

func (c *Coordinator) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(attempt) * c.backoffUnit)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Coordinator) fail(err error) error {
	util.TxFailuresTotal.WithLabelValues(string(apperr.KindOf(err))).Inc()
	return err
}
