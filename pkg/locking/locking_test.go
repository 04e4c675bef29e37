package locking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"datahub/pkg/catalog"
	"datahub/pkg/types"
)

func testService(t *testing.T) *Service {
	t.Helper()
	return NewService(catalog.NewMemoryLocks(), zap.NewNop())
}

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)
	svc.SetRequestID("req-1")

	lock, err := svc.Acquire(ctx, "bo_a_raw", types.LockScopeStorage, types.StageDev, "eu-west-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "bo_a_raw_storage_dev_eu-west-1", lock.ID)
	assert.Equal(t, "req-1", lock.RequestID)
	assert.Equal(t, 1, svc.ActiveLocks())

	require.NoError(t, svc.Release(ctx, lock))
	assert.Equal(t, 0, svc.ActiveLocks())
}

func TestAcquireConflictCarriesBothLocks(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryLocks()

	first := NewService(store, zap.NewNop())
	first.SetRequestID("req-1")
	held, err := first.Acquire(ctx, "bo_a_raw", types.LockScopeStorage, types.StageDev, "eu-west-1", nil)
	require.NoError(t, err)

	second := NewService(store, zap.NewNop())
	second.SetRequestID("req-2")
	_, err = second.Acquire(ctx, "bo_a_raw", types.LockScopeStorage, types.StageDev, "eu-west-1", nil)

	var locked *ResourceLockedError
	require.True(t, errors.As(err, &locked))
	require.NotNil(t, locked.Old)
	assert.Equal(t, held.ID, locked.Old.ID)
	assert.Equal(t, "req-1", locked.Old.RequestID)
	assert.Equal(t, "req-2", locked.New.RequestID)
	assert.Equal(t, 0, second.ActiveLocks())
}

func TestDifferentKeysDoNotConflict(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	_, err := svc.Acquire(ctx, "bo_a_raw", types.LockScopeStorage, types.StageDev, "eu-west-1", nil)
	require.NoError(t, err)

	for _, acquire := range []func() (types.Lock, error){
		func() (types.Lock, error) {
			return svc.Acquire(ctx, "bo_a_raw", types.LockScopeStorage, types.StageProd, "eu-west-1", nil)
		},
		func() (types.Lock, error) {
			return svc.Acquire(ctx, "bo_a_raw", types.LockScopeCatalogSync, types.StageDev, "eu-west-1", nil)
		},
		func() (types.Lock, error) {
			return svc.Acquire(ctx, "bo_b_raw", types.LockScopeStorage, types.StageDev, "eu-west-1", nil)
		},
	} {
		_, err := acquire()
		assert.NoError(t, err)
	}
	assert.Equal(t, 4, svc.ActiveLocks())
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	lock, err := svc.Acquire(ctx, "bo_a_raw", types.LockScopeStorage, types.StageDev, "eu-west-1", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, lock))
	// Second release of the same lock is a no-op, not an error.
	assert.NoError(t, svc.Release(ctx, lock))
	assert.Equal(t, 0, svc.ActiveLocks())
}

func TestReleaseID(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryLocks()
	svc := NewService(store, zap.NewNop())

	lock, err := svc.Acquire(ctx, "bo_a_raw", types.LockScopeStorage, types.StageDev, "eu-west-1", nil)
	require.NoError(t, err)

	operator := NewService(store, zap.NewNop())
	require.NoError(t, operator.ReleaseID(ctx, lock.ID))

	_, err = store.Get(ctx, lock.ID)
	var notFound *catalog.LockNotFoundError
	assert.True(t, errors.As(err, &notFound))
}
