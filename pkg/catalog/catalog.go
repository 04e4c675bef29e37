// Package catalog is the control plane's source of truth for datasets,
// provisioned resources and locks. Every store write is conditional, so
// concurrent writers are detected instead of silently overwriting each other.
// All derived systems (bucket, topic and key policies, metadata-sync grants)
// are recomputed from this state, never trusted on their own.
package catalog

import (
	"context"

	"go.uber.org/zap"

	"datahub/pkg/types"
)

// Cursor is an opaque resume token for paginated listings. The empty cursor
// starts from the beginning; an empty returned cursor means the listing is
// exhausted.
type Cursor string

// DatasetUpdate mutates a dataset in place during a conditional update.
type DatasetUpdate func(*types.Dataset)

type DatasetFilter struct {
	Hub   types.Hub
	Owner types.AccountID
}

type DatasetStore interface {
	Get(ctx context.Context, id types.DatasetID) (types.Dataset, error)
	// Create fails with DatasetAlreadyExistsError on a duplicate id.
	Create(ctx context.Context, dataset types.Dataset) error
	// Delete fails with DatasetNotFoundError when the dataset is absent.
	Delete(ctx context.Context, id types.DatasetID) error
	List(ctx context.Context, filter DatasetFilter, cursor Cursor, limit int) ([]types.Dataset, Cursor, error)
	// Update applies the setters under a conditional write keyed on record
	// existence and returns the updated dataset.
	Update(ctx context.Context, id types.DatasetID, updates ...DatasetUpdate) (types.Dataset, error)
	// SetPermissions writes the new permission set conditioned on the exact
	// current set, failing with InconsistentUpdateError on a lost update.
	SetPermissions(ctx context.Context, id types.DatasetID, current, updated []types.Permission) (types.Dataset, error)
}

type ResourceFilter struct {
	Type            types.ResourceType
	DatasetID       types.DatasetID
	ResourceAccount types.AccountID
	Region          types.Region
	Stage           types.Stage
}

type ResourceStore interface {
	Get(ctx context.Context, typ types.ResourceType, dataset types.DatasetID, stage types.Stage, region types.Region) (types.Resource, error)
	Exists(ctx context.Context, typ types.ResourceType, dataset types.DatasetID, stage types.Stage, region types.Region) (bool, error)
	// Create fails with ResourceAlreadyExistsError on a duplicate key.
	Create(ctx context.Context, resource types.Resource) error
	// Delete fails with ResourceNotFoundError when the resource is absent.
	Delete(ctx context.Context, typ types.ResourceType, dataset types.DatasetID, stage types.Stage, region types.Region) error
	List(ctx context.Context, filter ResourceFilter, cursor Cursor, limit int) ([]types.Resource, Cursor, error)
}

type LockStore interface {
	Get(ctx context.Context, id string) (types.Lock, error)
	// Create fails with LockAlreadyExistsError when a lock holds the key.
	Create(ctx context.Context, lock types.Lock) error
	// Delete fails with LockNotFoundError when the lock is absent.
	Delete(ctx context.Context, lock types.Lock) error
	List(ctx context.Context) ([]types.Lock, error)
}

// Catalog bundles the three stores with the permission-update transaction.
type Catalog struct {
	Datasets  DatasetStore
	Resources ResourceStore
	Locks     LockStore

	logger *zap.Logger
}

func New(datasets DatasetStore, resources ResourceStore, locks LockStore, logger *zap.Logger) *Catalog {
	return &Catalog{
		Datasets:  datasets,
		Resources: resources,
		Locks:     locks,
		logger:    logger,
	}
}

// ListAllDatasets drains the paginated listing.
func (c *Catalog) ListAllDatasets(ctx context.Context, filter DatasetFilter) ([]types.Dataset, error) {
	var all []types.Dataset
	var cursor Cursor
	for {
		page, next, err := c.Datasets.List(ctx, filter, cursor, 0)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

// ListAllResources drains the paginated listing.
func (c *Catalog) ListAllResources(ctx context.Context, filter ResourceFilter) ([]types.Resource, error) {
	var all []types.Resource
	var cursor Cursor
	for {
		page, next, err := c.Resources.List(ctx, filter, cursor, 0)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}
