package permissions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"datahub/pkg/bucket"
	"datahub/pkg/catalog"
	"datahub/pkg/clients"
	"datahub/pkg/clients/clientstest"
	"datahub/pkg/keyaccess"
	"datahub/pkg/locking"
	"datahub/pkg/metastore"
	"datahub/pkg/types"
)

const (
	resourceAccount = types.AccountID("999988887777")
	ownerAccount    = types.AccountID("111122223333")
	readerAccount   = types.AccountID("444455556666")
	otherAccount    = types.AccountID("777777777777")
	securityAccount = types.AccountID("000011112222")
	region          = types.Region("eu-west-1")
)

// recordingPublisher captures dataset-updated events for assertions.
type recordingPublisher struct {
	Datasets []types.Dataset
	// Fail fails the next publish with this error.
	Fail error
}

func (p *recordingPublisher) PublishDatasetUpdated(_ context.Context, dataset types.Dataset) error {
	if p.Fail != nil {
		err := p.Fail
		p.Fail = nil
		return err
	}
	p.Datasets = append(p.Datasets, dataset)
	return nil
}

type fixture struct {
	catalog      *catalog.Catalog
	factory      *clientstest.FakeFactory
	locks        *locking.Service
	roles        *clientstest.FakeRoleAssumer
	publisher    *recordingPublisher
	storage      *bucket.Manager
	orchestrator *Orchestrator
}

func setup(t *testing.T) *fixture {
	t.Helper()
	cat := catalog.New(catalog.NewMemoryDatasets(), catalog.NewMemoryResources(), catalog.NewMemoryLocks(), zap.NewNop())
	factory := clientstest.NewFakeFactory()
	locks := locking.NewService(cat.Locks, zap.NewNop())
	keys := keyaccess.NewService(
		keyaccess.NewAggregator(cat, zap.NewNop()),
		locks, factory, "aws", securityAccount, zap.NewNop())
	storage := bucket.NewManager(cat, locks, factory, keys, "aws", zap.NewNop())
	resolver := clientstest.NewFakeAccountResolver(
		clients.Account{ID: readerAccount},
		clients.Account{ID: otherAccount},
	)
	roles := clientstest.NewFakeRoleAssumer()
	publisher := &recordingPublisher{}
	return &fixture{
		catalog:   cat,
		factory:   factory,
		locks:     locks,
		roles:     roles,
		publisher: publisher,
		storage:   storage,
		orchestrator: NewOrchestrator(
			cat, locks, storage, resolver, roles, factory, publisher, zap.NewNop()),
	}
}

func (f *fixture) seedDataset(t *testing.T, id types.DatasetID, perms ...types.Permission) types.Dataset {
	t.Helper()
	dataset := types.Dataset{ID: id, Hub: types.HubDefault, OwnerAccountID: ownerAccount, Permissions: perms}
	require.NoError(t, f.catalog.Datasets.Create(context.Background(), dataset))
	return dataset
}

func (f *fixture) seedBucket(t *testing.T, dataset types.Dataset) types.Resource {
	t.Helper()
	resource, err := f.storage.CreateBucket(context.Background(), dataset, types.StageDev, region, resourceAccount, ownerAccount, "jdoe")
	require.NoError(t, err)
	return resource
}

func (f *fixture) seedCatalogSync(t *testing.T, id types.DatasetID) types.Resource {
	t.Helper()
	resource := types.Resource{
		Type:              types.ResourceTypeCatalogSync,
		DatasetID:         id,
		Stage:             types.StageDev,
		Region:            region,
		Hub:               types.HubDefault,
		ResourceAccountID: resourceAccount,
		OwnerAccountID:    ownerAccount,
		DatabaseName:      "sales",
		SyncType:          types.SyncTypeResourceLink,
	}
	require.NoError(t, f.catalog.Resources.Create(context.Background(), resource))
	return resource
}

func devPermission(account types.AccountID) types.Permission {
	return types.Permission{AccountID: account, Stage: types.StageDev, Region: region, SyncType: types.SyncTypeResourceLink}
}

func TestAddThenRemoveRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	dataset := f.seedDataset(t, "bo_a_raw")
	f.seedBucket(t, dataset)
	f.seedCatalogSync(t, dataset.ID)

	perm := devPermission(readerAccount)

	updated, err := f.orchestrator.AddOrRemovePermission(ctx, dataset.ID, perm, types.ActionAdd, true)
	require.NoError(t, err)
	assert.True(t, updated.HasPermission(perm))

	t.Run("bucket policy grants the reader", func(t *testing.T) {
		policyDoc := f.factory.BucketFake(resourceAccount, region).Buckets["datahub-bo-a-raw-dev"].Policy
		stmt, ok := policyDoc.StatementBySid("GrantGetBucket")
		require.True(t, ok)
		assert.Contains(t, stmt.Principal.AWS, string(types.AccountRootARN("aws", readerAccount)))
	})

	t.Run("resource link created in the reader account", func(t *testing.T) {
		db, ok := f.roles.Clients[readerAccount].Databases["sales"]
		require.True(t, ok)
		assert.True(t, db.IsResourceLink)
		assert.Equal(t, resourceAccount, db.SourceAccount)
	})

	reverted, err := f.orchestrator.AddOrRemovePermission(ctx, dataset.ID, perm, types.ActionRemove, true)
	require.NoError(t, err)
	assert.Empty(t, reverted.Permissions)

	t.Run("read access and link revoked", func(t *testing.T) {
		policyDoc := f.factory.BucketFake(resourceAccount, region).Buckets["datahub-bo-a-raw-dev"].Policy
		_, ok := policyDoc.StatementBySid("GrantGetBucket")
		assert.False(t, ok)
		assert.NotContains(t, f.roles.Clients[readerAccount].Databases, types.DatabaseName("sales"))
	})

	t.Run("one event per committed change", func(t *testing.T) {
		require.Len(t, f.publisher.Datasets, 2)
		assert.Len(t, f.publisher.Datasets[0].Permissions, 1)
		assert.Empty(t, f.publisher.Datasets[1].Permissions)
	})

	t.Run("all locks released", func(t *testing.T) {
		assert.Zero(t, f.locks.ActiveLocks())
	})
}

func TestAddPermissionHeldLockFails(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	dataset := f.seedDataset(t, "bo_a_raw")

	other := locking.NewService(f.catalog.Locks, zap.NewNop())
	other.SetRequestID("req-stuck")
	_, err := other.Acquire(ctx, string(dataset.ID), types.LockScopeStorage, types.StageDev, region, nil)
	require.NoError(t, err)

	_, err = f.orchestrator.AddOrRemovePermission(ctx, dataset.ID, devPermission(readerAccount), types.ActionAdd, true)
	var locked *locking.ResourceLockedError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, "req-stuck", locked.Old.RequestID)

	stored, getErr := f.catalog.Datasets.Get(ctx, dataset.ID)
	require.NoError(t, getErr)
	assert.Empty(t, stored.Permissions, "catalog untouched behind a held lock")
	assert.Empty(t, f.publisher.Datasets)
}

func TestConflictingDatabaseRollsBackAdd(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	dataset := f.seedDataset(t, "bo_a_raw")
	f.seedBucket(t, dataset)
	f.seedCatalogSync(t, dataset.ID)

	// The reader account already owns a plain database under the link's name.
	readerCatalog := clientstest.NewFakeCatalogDatabaseClient(readerAccount, region)
	require.NoError(t, readerCatalog.CreateDatabase(ctx, "sales"))
	f.roles.Clients[readerAccount] = readerCatalog

	_, err := f.orchestrator.AddOrRemovePermission(ctx, dataset.ID, devPermission(readerAccount), types.ActionAdd, true)
	var conflict *metastore.ConflictingDatabaseError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, readerAccount, conflict.Account)

	stored, getErr := f.catalog.Datasets.Get(ctx, dataset.ID)
	require.NoError(t, getErr)
	assert.Empty(t, stored.Permissions, "permission rolled back")

	t.Run("read access re-derived from the reverted set", func(t *testing.T) {
		policyDoc := f.factory.BucketFake(resourceAccount, region).Buckets["datahub-bo-a-raw-dev"].Policy
		_, ok := policyDoc.StatementBySid("GrantGetBucket")
		assert.False(t, ok)
	})

	t.Run("no event on rollback", func(t *testing.T) {
		assert.Empty(t, f.publisher.Datasets)
	})

	t.Run("foreign database untouched", func(t *testing.T) {
		db := readerCatalog.Databases["sales"]
		require.NotNil(t, db)
		assert.False(t, db.IsResourceLink)
	})
}

func TestConflictingDatabaseIgnoredOnRemove(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	perm := devPermission(readerAccount)
	dataset := f.seedDataset(t, "bo_a_raw", perm)
	f.seedCatalogSync(t, dataset.ID)

	readerCatalog := clientstest.NewFakeCatalogDatabaseClient(readerAccount, region)
	require.NoError(t, readerCatalog.CreateDatabase(ctx, "sales"))
	f.roles.Clients[readerAccount] = readerCatalog

	updated, err := f.orchestrator.AddOrRemovePermission(ctx, dataset.ID, perm, types.ActionRemove, true)
	require.NoError(t, err, "a naming conflict must not block revocation")
	assert.Empty(t, updated.Permissions)
	assert.Len(t, f.publisher.Datasets, 1)
	assert.Contains(t, readerCatalog.Databases, types.DatabaseName("sales"), "conflicting database is never deleted")
}

func TestRoleAssumptionFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("swallowed when sync is not enforced", func(t *testing.T) {
		f := setup(t)
		dataset := f.seedDataset(t, "bo_a_raw")
		f.seedCatalogSync(t, dataset.ID)
		f.roles.Errors[readerAccount] = &clients.CannotAssumeMetadataRoleError{RoleARN: "arn:aws:iam::444455556666:role/metadata"}

		updated, err := f.orchestrator.AddOrRemovePermission(ctx, dataset.ID, devPermission(readerAccount), types.ActionAdd, false)
		require.NoError(t, err)
		assert.Len(t, updated.Permissions, 1)
		assert.Len(t, f.publisher.Datasets, 1)
	})

	t.Run("rolls back when sync is enforced", func(t *testing.T) {
		f := setup(t)
		dataset := f.seedDataset(t, "bo_a_raw")
		f.seedCatalogSync(t, dataset.ID)
		f.roles.Errors[readerAccount] = &clients.CannotAssumeMetadataRoleError{RoleARN: "arn:aws:iam::444455556666:role/metadata"}

		_, err := f.orchestrator.AddOrRemovePermission(ctx, dataset.ID, devPermission(readerAccount), types.ActionAdd, true)
		var cannotAssume *clients.CannotAssumeMetadataRoleError
		require.True(t, errors.As(err, &cannotAssume))

		stored, getErr := f.catalog.Datasets.Get(ctx, dataset.ID)
		require.NoError(t, getErr)
		assert.Empty(t, stored.Permissions)
		assert.Empty(t, f.publisher.Datasets)
	})
}

func TestPublishFailureDoesNotRevertCommit(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	dataset := f.seedDataset(t, "bo_a_raw")
	f.publisher.Fail = errors.New("topic unavailable")

	updated, err := f.orchestrator.AddOrRemovePermission(ctx, dataset.ID, devPermission(readerAccount), types.ActionAdd, true)
	require.NoError(t, err, "a lost event never fails the committed change")
	assert.Len(t, updated.Permissions, 1)

	stored, getErr := f.catalog.Datasets.Get(ctx, dataset.ID)
	require.NoError(t, getErr)
	assert.Len(t, stored.Permissions, 1)
}

func TestRemovePermissionsAcrossDatasets(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedDataset(t, "bo_a_raw", devPermission(readerAccount))
	f.seedDataset(t, "bo_b_raw", devPermission(readerAccount), devPermission(otherAccount))

	// A stuck lock on the second dataset makes its removal fail.
	other := locking.NewService(f.catalog.Locks, zap.NewNop())
	_, err := other.Acquire(ctx, "bo_b_raw", types.LockScopeStorage, types.StageDev, region, nil)
	require.NoError(t, err)

	report, err := f.orchestrator.RemovePermissionsAcrossDatasets(ctx, readerAccount)
	require.NoError(t, err)

	require.Len(t, report.Removed, 1)
	assert.Equal(t, types.DatasetID("bo_a_raw"), report.Removed[0].Dataset)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, types.DatasetID("bo_b_raw"), report.Failures[0].Dataset)
	var locked *locking.ResourceLockedError
	assert.True(t, errors.As(report.Failures[0].Err, &locked))

	t.Run("other accounts keep their permissions", func(t *testing.T) {
		stored, err := f.catalog.Datasets.Get(ctx, "bo_b_raw")
		require.NoError(t, err)
		assert.True(t, stored.HasPermission(devPermission(otherAccount)))
	})
}

func TestCreateMissingResourceLinks(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	prodPerm := types.Permission{AccountID: otherAccount, Stage: types.StageProd, Region: region, SyncType: types.SyncTypeResourceLink}
	f.seedDataset(t, "bo_a_raw", devPermission(readerAccount), devPermission(otherAccount), prodPerm)
	resource := f.seedCatalogSync(t, "bo_a_raw")

	f.roles.Errors[otherAccount] = &clients.CannotAssumeMetadataRoleError{RoleARN: "arn:aws:iam::777777777777:role/metadata"}

	report, err := f.orchestrator.CreateMissingResourceLinks(ctx, resource)
	require.NoError(t, err)

	assert.Equal(t, []types.AccountID{readerAccount}, report.Synced)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, otherAccount, report.Failures[0].Account)

	db, ok := f.roles.Clients[readerAccount].Databases["sales"]
	require.True(t, ok)
	assert.True(t, db.IsResourceLink)
}

func TestDeleteMetadataSyncsForResource(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedDataset(t, "bo_a_raw", devPermission(readerAccount), devPermission(otherAccount))
	resource := f.seedCatalogSync(t, "bo_a_raw")

	created, err := f.orchestrator.CreateMissingResourceLinks(ctx, resource)
	require.NoError(t, err)
	require.Len(t, created.Synced, 2)

	report, err := f.orchestrator.DeleteMetadataSyncsForResource(ctx, resource)
	require.NoError(t, err)
	assert.Len(t, report.Synced, 2)
	assert.Empty(t, report.Failures)

	assert.NotContains(t, f.roles.Clients[readerAccount].Databases, types.DatabaseName("sales"))
	assert.NotContains(t, f.roles.Clients[otherAccount].Databases, types.DatabaseName("sales"))
}

func TestFineGrainedSync(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	perm := types.Permission{AccountID: readerAccount, Stage: types.StageDev, Region: region, SyncType: types.SyncTypeFineGrained}
	dataset := f.seedDataset(t, "bo_a_raw")
	f.seedCatalogSync(t, dataset.ID)

	_, err := f.orchestrator.AddOrRemovePermission(ctx, dataset.ID, perm, types.ActionAdd, true)
	require.NoError(t, err)

	fineGrained := f.factory.FineGrainedFake(resourceAccount, region)
	assert.Len(t, fineGrained.Grants, 1)

	_, err = f.orchestrator.AddOrRemovePermission(ctx, dataset.ID, perm, types.ActionRemove, true)
	require.NoError(t, err)
	assert.Empty(t, fineGrained.Grants)
}
