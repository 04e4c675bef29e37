package metastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"datahub/pkg/catalog"
	"datahub/pkg/clients"
	"datahub/pkg/clients/clientstest"
	"datahub/pkg/locking"
	"datahub/pkg/types"
)

const (
	resourceAccount = types.AccountID("999988887777")
	ownerAccount    = types.AccountID("111122223333")
	region          = types.Region("eu-west-1")
)

type fixture struct {
	catalog *catalog.Catalog
	factory *clientstest.FakeFactory
	manager *Manager
	slept   []time.Duration
}

func setup(t *testing.T) *fixture {
	t.Helper()
	cat := catalog.New(catalog.NewMemoryDatasets(), catalog.NewMemoryResources(), catalog.NewMemoryLocks(), zap.NewNop())
	factory := clientstest.NewFakeFactory()
	locks := locking.NewService(cat.Locks, zap.NewNop())
	f := &fixture{
		catalog: cat,
		factory: factory,
		manager: NewManager(cat, locks, factory, "aws", zap.NewNop()),
	}
	f.manager.sleep = func(d time.Duration) { f.slept = append(f.slept, d) }
	return f
}

func (f *fixture) seedDataset(t *testing.T, id types.DatasetID) types.Dataset {
	t.Helper()
	dataset := types.Dataset{ID: id, Hub: types.HubDefault, OwnerAccountID: ownerAccount}
	require.NoError(t, f.catalog.Datasets.Create(context.Background(), dataset))
	return dataset
}

func TestCreateDatabase(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	dataset := f.seedDataset(t, "bo_a_raw")

	resource, err := f.manager.CreateDatabase(ctx, dataset, types.StageDev, region, resourceAccount, "sales", types.SyncTypeResourceLink, "jdoe")
	require.NoError(t, err)
	assert.Equal(t, types.DatabaseName("sales"), resource.DatabaseName)

	t.Run("database created in the resource account", func(t *testing.T) {
		fake := f.factory.CatalogDatabaseFake(resourceAccount, region)
		_, ok := fake.Databases["sales"]
		assert.True(t, ok)
	})

	t.Run("resource link and protection in the owner account", func(t *testing.T) {
		fake := f.factory.CatalogDatabaseFake(ownerAccount, region)
		db, ok := fake.Databases["sales"]
		require.True(t, ok)
		assert.True(t, db.IsResourceLink)
		assert.Equal(t, resourceAccount, db.SourceAccount)

		require.NotNil(t, fake.Policy)
		stmt, ok := fake.Policy.StatementBySid(ProtectionSid)
		require.True(t, ok)
		link := types.Database{Name: "sales", AccountID: ownerAccount, Region: region}
		assert.Contains(t, stmt.Resource, string(link.ARN()))
	})

	t.Run("lock released", func(t *testing.T) {
		locks, err := f.catalog.Locks.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, locks)
	})

	t.Run("second create conflicts", func(t *testing.T) {
		_, err := f.manager.CreateDatabase(ctx, dataset, types.StageDev, region, resourceAccount, "sales", types.SyncTypeResourceLink, "jdoe")
		var exists *catalog.ResourceAlreadyExistsError
		assert.True(t, errors.As(err, &exists))
	})
}

func TestCreateDatabaseConflictInOwnerAccount(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	dataset := f.seedDataset(t, "bo_a_raw")

	// A foreign database already carries the name in the owner account.
	ownerFake := f.factory.CatalogDatabaseFake(ownerAccount, region)
	require.NoError(t, ownerFake.CreateDatabase(ctx, "sales"))

	_, err := f.manager.CreateDatabase(ctx, dataset, types.StageDev, region, resourceAccount, "sales", types.SyncTypeResourceLink, "jdoe")
	var conflict *ConflictingDatabaseError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, ownerAccount, conflict.Account)

	// Nothing was created in the resource account and the lock is free.
	_, exists := f.factory.CatalogDatabaseFake(resourceAccount, region).Databases["sales"]
	assert.False(t, exists)
	locks, listErr := f.catalog.Locks.List(ctx)
	require.NoError(t, listErr)
	assert.Empty(t, locks)
}

func TestDeleteDatabase(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	dataset := f.seedDataset(t, "bo_a_raw")

	resource, err := f.manager.CreateDatabase(ctx, dataset, types.StageDev, region, resourceAccount, "sales", types.SyncTypeResourceLink, "jdoe")
	require.NoError(t, err)

	require.NoError(t, f.manager.DeleteDatabase(ctx, resource))

	_, inOwner := f.factory.CatalogDatabaseFake(ownerAccount, region).Databases["sales"]
	assert.False(t, inOwner)
	_, inResource := f.factory.CatalogDatabaseFake(resourceAccount, region).Databases["sales"]
	assert.False(t, inResource)

	ok, err := f.catalog.Resources.Exists(ctx, types.ResourceTypeCatalogSync, dataset.ID, types.StageDev, region)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeletionProtectionMerge(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	client := clientstest.NewFakeCatalogDatabaseClient(ownerAccount, region)
	dbA := types.Database{Name: "a", AccountID: ownerAccount, Region: region}
	dbB := types.Database{Name: "b", AccountID: ownerAccount, Region: region}

	require.NoError(t, f.manager.AddDeletionProtection(ctx, client, dbA, ownerAccount))
	require.NoError(t, f.manager.AddDeletionProtection(ctx, client, dbB, ownerAccount))

	t.Run("both databases share one statement", func(t *testing.T) {
		stmt, ok := client.Policy.StatementBySid(ProtectionSid)
		require.True(t, ok)
		assert.Contains(t, stmt.Resource, string(dbA.ARN()))
		assert.Contains(t, stmt.Resource, string(dbB.ARN()))
		assert.Len(t, client.Policy.Statements, 1)
	})

	t.Run("re-adding is idempotent", func(t *testing.T) {
		require.NoError(t, f.manager.AddDeletionProtection(ctx, client, dbA, ownerAccount))
		stmt, _ := client.Policy.StatementBySid(ProtectionSid)
		assert.Len(t, stmt.Resource, 2)
	})

	t.Run("removing one keeps the other", func(t *testing.T) {
		require.NoError(t, f.manager.RemoveDeletionProtection(ctx, client, dbA))
		stmt, ok := client.Policy.StatementBySid(ProtectionSid)
		require.True(t, ok)
		assert.NotContains(t, stmt.Resource, string(dbA.ARN()))
		assert.Contains(t, stmt.Resource, string(dbB.ARN()))
	})

	t.Run("removing the last deletes the policy", func(t *testing.T) {
		require.NoError(t, f.manager.RemoveDeletionProtection(ctx, client, dbB))
		assert.Nil(t, client.Policy)
	})
}

func TestDeleteProtectedDatabaseRetriesOnce(t *testing.T) {
	ctx := context.Background()
	db := types.Database{Name: "sales", AccountID: ownerAccount, Region: region}

	t.Run("one denial is retried after backoff", func(t *testing.T) {
		f := setup(t)
		client := clientstest.NewFakeCatalogDatabaseClient(ownerAccount, region)
		require.NoError(t, client.CreateDatabase(ctx, "sales"))
		client.DenyDeletes = 1

		require.NoError(t, f.manager.DeleteProtectedDatabase(ctx, client, db))
		assert.Equal(t, 2, client.DeleteCalls)
		assert.Equal(t, []time.Duration{propagationBackoff}, f.slept)
	})

	t.Run("second denial propagates", func(t *testing.T) {
		f := setup(t)
		client := clientstest.NewFakeCatalogDatabaseClient(ownerAccount, region)
		require.NoError(t, client.CreateDatabase(ctx, "sales"))
		client.DenyDeletes = 2

		err := f.manager.DeleteProtectedDatabase(ctx, client, db)
		var denied *clients.AccessDeniedError
		require.True(t, errors.As(err, &denied))
		assert.Equal(t, 2, client.DeleteCalls, "exactly one retry")
	})
}
