package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"datahub/pkg/types"
)

// MemoryDatasets is an in-memory DatasetStore with the same conditional-write
// semantics as the DynamoDB store. Used by tests and local tooling.
type MemoryDatasets struct {
	mu       sync.RWMutex
	datasets map[types.DatasetID]types.Dataset
}

func NewMemoryDatasets() *MemoryDatasets {
	return &MemoryDatasets{datasets: make(map[types.DatasetID]types.Dataset)}
}

func (m *MemoryDatasets) Get(_ context.Context, id types.DatasetID) (types.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dataset, ok := m.datasets[id]
	if !ok {
		return types.Dataset{}, &DatasetNotFoundError{ID: id}
	}
	return copyDataset(dataset), nil
}

func (m *MemoryDatasets) Create(_ context.Context, dataset types.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.datasets[dataset.ID]; ok {
		return &DatasetAlreadyExistsError{ID: dataset.ID}
	}
	types.SortPermissions(dataset.Permissions)
	m.datasets[dataset.ID] = copyDataset(dataset)
	return nil
}

func (m *MemoryDatasets) Delete(_ context.Context, id types.DatasetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.datasets[id]; !ok {
		return &DatasetNotFoundError{ID: id}
	}
	delete(m.datasets, id)
	return nil
}

func (m *MemoryDatasets) List(_ context.Context, filter DatasetFilter, cursor Cursor, limit int) ([]types.Dataset, Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.datasets))
	for id := range m.datasets {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	var out []types.Dataset
	for _, id := range ids {
		if cursor != "" && id <= string(cursor) {
			continue
		}
		dataset := m.datasets[types.DatasetID(id)]
		if filter.Hub != "" && dataset.Hub != filter.Hub {
			continue
		}
		if filter.Owner != "" && dataset.OwnerAccountID != filter.Owner {
			continue
		}
		out = append(out, copyDataset(dataset))
		if limit > 0 && len(out) == limit {
			return out, Cursor(id), nil
		}
	}
	return out, "", nil
}

func (m *MemoryDatasets) Update(_ context.Context, id types.DatasetID, updates ...DatasetUpdate) (types.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dataset, ok := m.datasets[id]
	if !ok {
		return types.Dataset{}, &DatasetNotFoundError{ID: id}
	}
	updated := copyDataset(dataset)
	for _, update := range updates {
		update(&updated)
	}
	updated.UpdatedAt = time.Now().UTC()
	m.datasets[id] = copyDataset(updated)
	return updated, nil
}

func (m *MemoryDatasets) SetPermissions(_ context.Context, id types.DatasetID, current, updated []types.Permission) (types.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dataset, ok := m.datasets[id]
	if !ok {
		return types.Dataset{}, &DatasetNotFoundError{ID: id}
	}
	if !types.PermissionsEqual(dataset.Permissions, current) {
		return types.Dataset{}, &InconsistentUpdateError{ID: id}
	}
	dataset.Permissions = append([]types.Permission(nil), updated...)
	types.SortPermissions(dataset.Permissions)
	dataset.UpdatedAt = time.Now().UTC()
	m.datasets[id] = dataset
	return copyDataset(dataset), nil
}

func copyDataset(d types.Dataset) types.Dataset {
	d.Permissions = append([]types.Permission(nil), d.Permissions...)
	d.Upstream = append([]types.DatasetID(nil), d.Upstream...)
	d.Labels = append([]string(nil), d.Labels...)
	return d
}

// MemoryResources is an in-memory ResourceStore.
type MemoryResources struct {
	mu        sync.RWMutex
	resources map[string]types.Resource
}

func NewMemoryResources() *MemoryResources {
	return &MemoryResources{resources: make(map[string]types.Resource)}
}

func resourceKey(typ types.ResourceType, dataset types.DatasetID, stage types.Stage, region types.Region) string {
	return fmt.Sprintf("%s/%s/%s/%s", dataset, typ, stage, region)
}

func (m *MemoryResources) Get(_ context.Context, typ types.ResourceType, dataset types.DatasetID, stage types.Stage, region types.Region) (types.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resource, ok := m.resources[resourceKey(typ, dataset, stage, region)]
	if !ok {
		return types.Resource{}, &ResourceNotFoundError{Type: typ, Dataset: dataset, Stage: stage, Region: region}
	}
	return resource, nil
}

func (m *MemoryResources) Exists(ctx context.Context, typ types.ResourceType, dataset types.DatasetID, stage types.Stage, region types.Region) (bool, error) {
	_, err := m.Get(ctx, typ, dataset, stage, region)
	if err != nil {
		var notFound *ResourceNotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *MemoryResources) Create(_ context.Context, resource types.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := resourceKey(resource.Type, resource.DatasetID, resource.Stage, resource.Region)
	if _, ok := m.resources[key]; ok {
		return &ResourceAlreadyExistsError{
			Type: resource.Type, Dataset: resource.DatasetID, Stage: resource.Stage, Region: resource.Region,
		}
	}
	m.resources[key] = resource
	return nil
}

func (m *MemoryResources) Delete(_ context.Context, typ types.ResourceType, dataset types.DatasetID, stage types.Stage, region types.Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := resourceKey(typ, dataset, stage, region)
	if _, ok := m.resources[key]; !ok {
		return &ResourceNotFoundError{Type: typ, Dataset: dataset, Stage: stage, Region: region}
	}
	delete(m.resources, key)
	return nil
}

func (m *MemoryResources) List(_ context.Context, filter ResourceFilter, cursor Cursor, limit int) ([]types.Resource, Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.resources))
	for key := range m.resources {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []types.Resource
	for _, key := range keys {
		if cursor != "" && key <= string(cursor) {
			continue
		}
		resource := m.resources[key]
		if !matchesResourceFilter(resource, filter) {
			continue
		}
		out = append(out, resource)
		if limit > 0 && len(out) == limit {
			return out, Cursor(key), nil
		}
	}
	return out, "", nil
}

func matchesResourceFilter(r types.Resource, f ResourceFilter) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.DatasetID != "" && r.DatasetID != f.DatasetID {
		return false
	}
	if f.ResourceAccount != "" && r.ResourceAccountID != f.ResourceAccount {
		return false
	}
	if f.Region != "" && r.Region != f.Region {
		return false
	}
	if f.Stage != "" && r.Stage != f.Stage {
		return false
	}
	return true
}

// MemoryLocks is an in-memory LockStore.
type MemoryLocks struct {
	mu    sync.Mutex
	locks map[string]types.Lock
}

func NewMemoryLocks() *MemoryLocks {
	return &MemoryLocks{locks: make(map[string]types.Lock)}
}

func (m *MemoryLocks) Get(_ context.Context, id string) (types.Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		return types.Lock{}, &LockNotFoundError{ID: id}
	}
	return lock, nil
}

func (m *MemoryLocks) Create(_ context.Context, lock types.Lock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locks[lock.ID]; ok {
		return &LockAlreadyExistsError{ID: lock.ID}
	}
	m.locks[lock.ID] = lock
	return nil
}

func (m *MemoryLocks) Delete(_ context.Context, lock types.Lock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locks[lock.ID]; !ok {
		return &LockNotFoundError{ID: lock.ID}
	}
	delete(m.locks, lock.ID)
	return nil
}

func (m *MemoryLocks) List(_ context.Context) ([]types.Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Lock, 0, len(m.locks))
	for _, lock := range m.locks {
		out = append(out, lock)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
