// Package locking serializes resource lifecycle operations. A lock is a row
// in the catalog's lock table; the conditional create gives mutual exclusion
// across all control-plane instances.
package locking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"datahub/pkg/catalog"
	"datahub/pkg/types"
)

// ResourceLockedError reports a failed acquisition. New is the lock that could
// not be acquired, Old the live lock holding the key.
type ResourceLockedError struct {
	New *types.Lock
	Old *types.Lock
}

func (e *ResourceLockedError) Error() string {
	if e.Old != nil {
		return fmt.Sprintf("could not acquire lock %s: held by request %s since %s",
			e.New.ID, e.Old.RequestID, e.Old.AcquiredAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("could not acquire lock %s", e.New.ID)
}

// Service acquires and releases locks on behalf of one request. The service
// counts the locks it holds so a handler can assert it released everything
// before responding.
type Service struct {
	locks  catalog.LockStore
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	requestID string
	active    int
}

func NewService(locks catalog.LockStore, logger *zap.Logger) *Service {
	return &Service{
		locks:  locks,
		logger: logger,
		now:    time.Now,
	}
}

// SetRequestID tags all subsequently acquired locks with the request id, so a
// stuck lock can be traced back to the request that left it behind.
func (s *Service) SetRequestID(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestID = requestID
}

// ActiveLocks is the number of locks acquired through this service and not
// yet released.
func (s *Service) ActiveLocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Acquire creates the lock for (itemID, scope, stage, region). When the key is
// already held it re-reads the live lock and fails with ResourceLockedError
// carrying both sides of the conflict.
func (s *Service) Acquire(ctx context.Context, itemID string, scope types.LockScope, stage types.Stage, region types.Region, data map[string]string) (types.Lock, error) {
	s.mu.Lock()
	requestID := s.requestID
	s.mu.Unlock()

	lock := types.Lock{
		ID:         types.BuildLockID(itemID, scope, stage, region),
		Scope:      scope,
		Data:       data,
		RequestID:  requestID,
		AcquiredAt: s.now().UTC(),
	}
	err := s.locks.Create(ctx, lock)
	if err == nil {
		s.mu.Lock()
		s.active++
		s.mu.Unlock()
		s.logger.Debug("acquired lock", zap.String("lock", lock.ID), zap.String("request", requestID))
		return lock, nil
	}

	var exists *catalog.LockAlreadyExistsError
	if !errors.As(err, &exists) {
		return types.Lock{}, err
	}
	old, getErr := s.locks.Get(ctx, lock.ID)
	if getErr != nil {
		var notFound *catalog.LockNotFoundError
		if errors.As(getErr, &notFound) {
			// Holder released between our create and read. Report the
			// conflict anyway; the caller retries.
			return types.Lock{}, &ResourceLockedError{New: &lock}
		}
		return types.Lock{}, getErr
	}
	return types.Lock{}, &ResourceLockedError{New: &lock, Old: &old}
}

// Release removes the lock. Releasing a lock that is already gone is not an
// error, so compensation paths can release unconditionally.
func (s *Service) Release(ctx context.Context, lock types.Lock) error {
	err := s.locks.Delete(ctx, lock)
	if err != nil {
		var notFound *catalog.LockNotFoundError
		if errors.As(err, &notFound) {
			s.logger.Warn("lock already released", zap.String("lock", lock.ID))
			err = nil
		}
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.active > 0 {
		s.active--
	}
	s.mu.Unlock()
	return nil
}

// ReleaseID removes a lock by id, for operator tooling that clears stuck
// locks without holding the lock value.
func (s *Service) ReleaseID(ctx context.Context, id string) error {
	lock, err := s.locks.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.Release(ctx, lock)
}
