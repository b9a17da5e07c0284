package txn

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockd/internal/apperr"
	"stockd/internal/store"
	"stockd/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScope struct {
	backend *fakeBackend
}

func (s *fakeScope) Repositories() store.Repositories { return s.backend.repos }

func (s *fakeScope) Commit() error {
	s.backend.commits++
	return s.backend.commitErr
}

func (s *fakeScope) Rollback() error {
	s.backend.rollbacks++
	return nil
}

type fakeBackend struct {
	supported bool
	beginErr  error
	commitErr error
	repos     store.Repositories

	begins    int
	commits   int
	rollbacks int
}

func (b *fakeBackend) Begin(ctx context.Context) (store.Scope, error) {
	b.begins++
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	return &fakeScope{backend: b}, nil
}

func (b *fakeBackend) Repositories() store.Repositories { return b.repos }

func (b *fakeBackend) SupportsTransactions(ctx context.Context) (bool, error) {
	return b.supported, nil
}

func newCoordinator(t *testing.T, backend Backend) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(context.Background(), backend, Config{MaxRetries: 3, BackoffUnit: time.Millisecond})
	require.NoError(t, err)
	return c
}

func conflict() error {
	return apperr.Wrap(apperr.KindTransientConflict, nil, "write conflict")
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		attempt int
		want    action
	}{
		{"success", nil, 1, actionDone},
		{"unsupported", apperr.Wrap(apperr.KindTransactionsUnsupported, nil, "no tx"), 1, actionDegrade},
		{"conflict first attempt", conflict(), 1, actionRetry},
		{"conflict second attempt", conflict(), 2, actionRetry},
		{"conflict exhausted", conflict(), 3, actionExhausted},
		{"insufficient stock", apperr.InsufficientStock("short"), 1, actionFail},
		{"not found", apperr.NotFound("missing"), 1, actionFail},
		{"unclassified", errors.New("boom"), 1, actionFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decide(tt.err, tt.attempt, 3))
		})
	}
}

func TestRunAtomically_CommitsOnSuccess(t *testing.T) {
	backend := &fakeBackend{supported: true}
	c := newCoordinator(t, backend)
	assert.True(t, c.Transactional())

	var atomic bool
	err := c.RunAtomically(context.Background(), func(ctx context.Context, repos store.Repositories) error {
		atomic = IsAtomic(ctx)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, atomic)
	assert.Equal(t, 1, backend.commits)
	assert.Equal(t, 1, backend.rollbacks, "scope is released after commit too")
}

func TestRunAtomically_RetriesTransientConflicts(t *testing.T) {
	backend := &fakeBackend{supported: true}
	c := newCoordinator(t, backend)

	calls := 0
	err := c.RunAtomically(context.Background(), func(ctx context.Context, repos store.Repositories) error {
		calls++
		if calls < 3 {
			return conflict()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, backend.begins)
	assert.Equal(t, 1, backend.commits)
	assert.Equal(t, 3, backend.rollbacks)
}

func TestRunAtomically_GivesUpAfterMaxRetries(t *testing.T) {
	backend := &fakeBackend{supported: true}
	c := newCoordinator(t, backend)

	calls := 0
	err := c.RunAtomically(context.Background(), func(ctx context.Context, repos store.Repositories) error {
		calls++
		return conflict()
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrTransientConflict))
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, backend.commits)
	assert.Equal(t, 3, backend.rollbacks)
}

func TestRunAtomically_CommitConflictIsRetried(t *testing.T) {
	backend := &fakeBackend{supported: true, commitErr: conflict()}
	c := newCoordinator(t, backend)

	calls := 0
	err := c.RunAtomically(context.Background(), func(ctx context.Context, repos store.Repositories) error {
		calls++
		if calls == 2 {
			backend.commitErr = nil
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, backend.commits)
}

func TestRunAtomically_DomainErrorsAreNotRetried(t *testing.T) {
	backend := &fakeBackend{supported: true}
	c := newCoordinator(t, backend)

	calls := 0
	err := c.RunAtomically(context.Background(), func(ctx context.Context, repos store.Repositories) error {
		calls++
		return apperr.InsufficientStock("insufficient stock for TS-RED-M")
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, backend.commits)
	assert.Equal(t, 1, backend.rollbacks)
}

func TestRunAtomically_DegradesWhenBeginIsUnsupported(t *testing.T) {
	backend := &fakeBackend{
		supported: true,
		beginErr:  apperr.Wrap(apperr.KindTransactionsUnsupported, nil, "standalone deployment"),
	}
	c := newCoordinator(t, backend)

	var atomic []bool
	fn := func(ctx context.Context, repos store.Repositories) error {
		atomic = append(atomic, IsAtomic(ctx))
		return nil
	}

	require.NoError(t, c.RunAtomically(context.Background(), fn))
	assert.False(t, c.Transactional())
	assert.Equal(t, []bool{false}, atomic)

	require.NoError(t, c.RunAtomically(context.Background(), fn))
	assert.Equal(t, 1, backend.begins, "no further transactions are attempted once degraded")
	assert.Equal(t, []bool{false, false}, atomic)
}

func TestRunAtomically_DegradesWhenUnitReportsUnsupported(t *testing.T) {
	backend := &fakeBackend{supported: true}
	c := newCoordinator(t, backend)

	calls := 0
	err := c.RunAtomically(context.Background(), func(ctx context.Context, repos store.Repositories) error {
		calls++
		if IsAtomic(ctx) {
			return apperr.Wrap(apperr.KindTransactionsUnsupported, nil, "transaction numbers are only allowed on replica sets")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, backend.rollbacks)
	assert.False(t, c.Transactional())
}

func TestRunAtomically_DirectModeRetriesConflicts(t *testing.T) {
	c := newCoordinator(t, memory.New())
	assert.False(t, c.Transactional())

	calls := 0
	err := c.RunAtomically(context.Background(), func(ctx context.Context, repos store.Repositories) error {
		calls++
		assert.NotNil(t, repos)
		if calls == 1 {
			return conflict()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRunAtomically_BackoffHonoursCancellation(t *testing.T) {
	backend := &fakeBackend{supported: true}
	c, err := NewCoordinator(context.Background(), backend, Config{MaxRetries: 3, BackoffUnit: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err = c.RunAtomically(ctx, func(ctx context.Context, repos store.Repositories) error {
		calls++
		cancel()
		return conflict()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
