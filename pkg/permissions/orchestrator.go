// Package permissions coordinates permission changes across the catalog, the
// storage resource's policies and the consumer accounts' metadata sync. It is
// a small compensating-transaction engine: the catalog write is the anchor,
// everything derived is recomputed, and specific failure classes revert the
// anchor instead of leaving it ahead of reality.
package permissions

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"datahub/pkg/bucket"
	"datahub/pkg/catalog"
	"datahub/pkg/clients"
	"datahub/pkg/events"
	"datahub/pkg/locking"
	"datahub/pkg/metastore"
	"datahub/pkg/types"
)

// Orchestrator runs the add/remove permission saga.
type Orchestrator struct {
	catalog  *catalog.Catalog
	locks    *locking.Service
	storage  *bucket.Manager
	accounts clients.AccountResolver
	roles    clients.RoleAssumer
	clients  clients.Factory
	events   events.Publisher
	logger   *zap.Logger
}

func NewOrchestrator(
	cat *catalog.Catalog,
	locks *locking.Service,
	storage *bucket.Manager,
	accounts clients.AccountResolver,
	roles clients.RoleAssumer,
	factory clients.Factory,
	publisher events.Publisher,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		catalog:  cat,
		locks:    locks,
		storage:  storage,
		accounts: accounts,
		roles:    roles,
		clients:  factory,
		events:   publisher,
		logger:   logger,
	}
}

// AddOrRemovePermission applies one permission change end to end: lock,
// catalog write, storage read-access fan-out, metadata sync, event.
//
// Failure classes inside the fan-out:
//   - a conflicting database during remove is logged and ignored; revoking
//     access must not be blocked by naming conflicts elsewhere
//   - role-assumption failures are logged and ignored when
//     enforceMetadataSync is false
//   - everything else reverts the catalog write (via the transaction's
//     compensation), re-derives read access from the reverted state and
//     propagates
//
// The dataset-updated event is published exactly once on commit and never on
// a rollback path. The lock is released on every path.
func (o *Orchestrator) AddOrRemovePermission(ctx context.Context, id types.DatasetID, permission types.Permission, action types.PermissionAction, enforceMetadataSync bool) (types.Dataset, error) {
	lock, err := o.locks.Acquire(ctx, string(id), types.LockScopeStorage, permission.Stage, permission.Region, map[string]string{
		"account": string(permission.AccountID),
		"action":  string(action),
	})
	if err != nil {
		return types.Dataset{}, err
	}
	defer func() {
		if releaseErr := o.locks.Release(ctx, lock); releaseErr != nil {
			o.logger.Error("could not release lock", zap.String("lock", lock.ID), zap.Error(releaseErr))
		}
	}()

	dataset, err := o.catalog.UpdatePermissionsTransaction(ctx, id, permission, action, func(updated types.Dataset) error {
		if err := o.updateReadAccess(ctx, updated, permission); err != nil {
			return err
		}
		if err := o.UpdateMetadataSync(ctx, updated, permission, action); err != nil {
			var conflict *metastore.ConflictingDatabaseError
			if errors.As(err, &conflict) && action == types.ActionRemove {
				o.logger.Warn("ignoring conflicting database during remove",
					zap.String("dataset", string(id)),
					zap.String("database", string(conflict.Name)),
					zap.String("account", string(conflict.Account)))
				return nil
			}
			if !enforceMetadataSync && isMetadataRoleError(err) {
				o.logger.Warn("skipping metadata sync",
					zap.String("dataset", string(id)),
					zap.String("account", string(permission.AccountID)),
					zap.Error(err))
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		o.rederiveReadAccess(ctx, id, permission)
		return types.Dataset{}, err
	}

	if publishErr := o.events.PublishDatasetUpdated(ctx, dataset); publishErr != nil {
		// The permission change is committed; a lost event must not revert it.
		o.logger.Error("could not publish dataset-updated",
			zap.String("dataset", string(id)), zap.Error(publishErr))
	}
	return dataset, nil
}

func isMetadataRoleError(err error) bool {
	var cannotAssume *clients.CannotAssumeMetadataRoleError
	var unsupported *clients.UnsupportedMetadataRoleError
	return errors.As(err, &cannotAssume) || errors.As(err, &unsupported)
}

func (o *Orchestrator) updateReadAccess(ctx context.Context, dataset types.Dataset, permission types.Permission) error {
	resource, err := o.catalog.Resources.Get(ctx, types.ResourceTypeStorage, dataset.ID, permission.Stage, permission.Region)
	if err != nil {
		var notFound *catalog.ResourceNotFoundError
		if errors.As(err, &notFound) {
			o.logger.Debug("no storage resource, skipping read access update",
				zap.String("dataset", string(dataset.ID)),
				zap.String("stage", string(permission.Stage)),
				zap.String("region", string(permission.Region)))
			return nil
		}
		return err
	}
	return o.storage.UpdateReadAccess(ctx, resource, dataset)
}

// rederiveReadAccess pushes the reverted permission set back out to the
// bucket and topic policies after a compensated transaction, so the derived
// policies do not keep reflecting the undone change. Best effort: the
// original error is already on its way to the caller.
func (o *Orchestrator) rederiveReadAccess(ctx context.Context, id types.DatasetID, permission types.Permission) {
	dataset, err := o.catalog.Datasets.Get(ctx, id)
	if err != nil {
		o.logger.Warn("could not re-derive read access", zap.String("dataset", string(id)), zap.Error(err))
		return
	}
	if err := o.updateReadAccess(ctx, dataset, permission); err != nil {
		o.logger.Warn("could not re-derive read access", zap.String("dataset", string(id)), zap.Error(err))
	}
}
