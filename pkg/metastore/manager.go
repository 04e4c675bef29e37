// Package metastore manages catalog-sync resources: the metadata-catalog
// database backing a dataset in one stage and region, its resource link in
// the owner account, and the deletion protection on both.
package metastore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"datahub/pkg/catalog"
	"datahub/pkg/clients"
	"datahub/pkg/locking"
	"datahub/pkg/types"
)

const propagationBackoff = 2 * time.Second

// ConflictingDatabaseError reports a database name collision in a target
// account: something that is not ours already carries the name, so neither a
// resource link nor a delete may touch it.
type ConflictingDatabaseError struct {
	Name    types.DatabaseName
	Account types.AccountID
}

func (e *ConflictingDatabaseError) Error() string {
	return fmt.Sprintf("database %s already exists in account %s and is not managed by the platform", e.Name, e.Account)
}

// Manager drives catalog-sync resource lifecycles. All mutations run under
// the catalog-sync-scope lock for the resource's (dataset, stage, region).
type Manager struct {
	catalog *catalog.Catalog
	locks   *locking.Service
	clients clients.Factory
	logger  *zap.Logger

	partition string
	sleep     func(time.Duration)
}

func NewManager(cat *catalog.Catalog, locks *locking.Service, factory clients.Factory, partition string, logger *zap.Logger) *Manager {
	return &Manager{
		catalog:   cat,
		locks:     locks,
		clients:   factory,
		logger:    logger,
		partition: partition,
		sleep:     time.Sleep,
	}
}

// CreateDatabase provisions the database in the resource account, links it
// into the owner account when the two differ, protects it against deletion by
// its consumers and persists the resource record.
func (m *Manager) CreateDatabase(ctx context.Context, dataset types.Dataset, stage types.Stage, region types.Region, resourceAccount types.AccountID, name types.DatabaseName, syncType types.SyncType, user string) (types.Resource, error) {
	exists, err := m.catalog.Resources.Exists(ctx, types.ResourceTypeCatalogSync, dataset.ID, stage, region)
	if err != nil {
		return types.Resource{}, err
	}
	if exists {
		return types.Resource{}, &catalog.ResourceAlreadyExistsError{
			Type: types.ResourceTypeCatalogSync, Dataset: dataset.ID, Stage: stage, Region: region,
		}
	}

	lock, err := m.locks.Acquire(ctx, string(dataset.ID), types.LockScopeCatalogSync, stage, region, nil)
	if err != nil {
		return types.Resource{}, err
	}
	defer m.release(ctx, lock)

	owner := dataset.OwnerAccountID
	client := m.clients.CatalogDatabase(resourceAccount, region)
	if owner != resourceAccount {
		// A foreign database under the same name in the owner account would
		// shadow the resource link.
		ownerHas, err := m.clients.CatalogDatabase(owner, region).DatabaseExists(ctx, name)
		if err != nil {
			return types.Resource{}, err
		}
		if ownerHas {
			return types.Resource{}, &ConflictingDatabaseError{Name: name, Account: owner}
		}
	}

	if err := client.CreateDatabase(ctx, name); err != nil {
		return types.Resource{}, err
	}
	if owner != resourceAccount {
		ownerClient := m.clients.CatalogDatabase(owner, region)
		if err := ownerClient.CreateResourceLink(ctx, name, resourceAccount); err != nil {
			return types.Resource{}, err
		}
		db := types.Database{Name: name, AccountID: owner, Region: region}
		if err := m.AddDeletionProtection(ctx, ownerClient, db, owner); err != nil {
			return types.Resource{}, err
		}
	}

	now := time.Now().UTC()
	resource := types.Resource{
		Type:              types.ResourceTypeCatalogSync,
		DatasetID:         dataset.ID,
		Stage:             stage,
		Region:            region,
		Hub:               dataset.Hub,
		ResourceAccountID: resourceAccount,
		OwnerAccountID:    owner,
		ARN:               types.Database{Name: name, AccountID: resourceAccount, Region: region}.ARN(),
		DatabaseName:      name,
		SyncType:          syncType,
		CreatedBy:         user,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.catalog.Resources.Create(ctx, resource); err != nil {
		return types.Resource{}, err
	}
	m.logger.Info("created catalog-sync resource",
		zap.String("dataset", string(dataset.ID)),
		zap.String("database", string(name)),
		zap.String("stage", string(stage)),
		zap.String("region", string(region)))
	return resource, nil
}

// DeleteDatabase removes the resource link, the database and the record. The
// link in the owner account is a protected delete; the database itself only
// ever carries protection for consumers, not for us.
func (m *Manager) DeleteDatabase(ctx context.Context, resource types.Resource) error {
	lock, err := m.locks.Acquire(ctx, string(resource.DatasetID), types.LockScopeCatalogSync, resource.Stage, resource.Region, nil)
	if err != nil {
		return err
	}
	defer m.release(ctx, lock)

	if resource.OwnerAccountID != resource.ResourceAccountID {
		ownerClient := m.clients.CatalogDatabase(resource.OwnerAccountID, resource.Region)
		link := types.Database{Name: resource.DatabaseName, AccountID: resource.OwnerAccountID, Region: resource.Region}
		if err := m.DeleteProtectedDatabase(ctx, ownerClient, link); err != nil {
			return err
		}
	}

	client := m.clients.CatalogDatabase(resource.ResourceAccountID, resource.Region)
	if err := client.DeleteDatabaseIfPresent(ctx, resource.DatabaseName); err != nil {
		return err
	}

	if err := m.catalog.Resources.Delete(ctx, types.ResourceTypeCatalogSync, resource.DatasetID, resource.Stage, resource.Region); err != nil {
		return err
	}
	m.logger.Info("deleted catalog-sync resource",
		zap.String("dataset", string(resource.DatasetID)),
		zap.String("database", string(resource.DatabaseName)))
	return nil
}

func (m *Manager) release(ctx context.Context, lock types.Lock) {
	if err := m.locks.Release(ctx, lock); err != nil {
		m.logger.Error("could not release catalog-sync lock", zap.String("lock", lock.ID), zap.Error(err))
	}
}
