package keyaccess

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"datahub/pkg/catalog"
	"datahub/pkg/clients/clientstest"
	"datahub/pkg/locking"
	"datahub/pkg/policy"
	"datahub/pkg/types"
)

const (
	resourceAccount = types.AccountID("999988887777")
	ownerAccount    = types.AccountID("111122223333")
	readerAccount   = types.AccountID("444455556666")
	securityAccount = types.AccountID("000011112222")
	region          = types.Region("eu-west-1")
)

func seedStorageResource(t *testing.T, cat *catalog.Catalog, id types.DatasetID, stage types.Stage, readers ...types.AccountID) {
	t.Helper()
	ctx := context.Background()
	var permissions []types.Permission
	for _, account := range readers {
		permissions = append(permissions, types.Permission{
			AccountID: account, Stage: stage, Region: region, SyncType: types.SyncTypeResourceLink,
		})
	}
	require.NoError(t, cat.Datasets.Create(ctx, types.Dataset{
		ID: id, Hub: types.HubDefault, OwnerAccountID: ownerAccount, Permissions: permissions,
	}))
	require.NoError(t, cat.Resources.Create(ctx, types.Resource{
		Type:              types.ResourceTypeStorage,
		DatasetID:         id,
		Stage:             stage,
		Region:            region,
		ResourceAccountID: resourceAccount,
		OwnerAccountID:    ownerAccount,
		ARN:               types.ARN("arn:aws:s3:::datahub-" + string(id)),
		KeyARN:            types.BuildARN("aws", "kms", region, resourceAccount, "key/key-1"),
	}))
}

func TestComputeReadersAndWriters(t *testing.T) {
	ctx := context.Background()
	cat := catalog.New(catalog.NewMemoryDatasets(), catalog.NewMemoryResources(), catalog.NewMemoryLocks(), zap.NewNop())
	aggregator := NewAggregator(cat, zap.NewNop())

	seedStorageResource(t, cat, "bo_a_raw", types.StageDev, readerAccount)
	seedStorageResource(t, cat, "bo_b_raw", types.StageProd, readerAccount, "777777777777")

	key := types.Key{ID: "key-1", Region: region}
	readers, writers, err := aggregator.ComputeReadersAndWriters(ctx, key, resourceAccount)
	require.NoError(t, err)

	assert.Equal(t, []types.AccountID{readerAccount, "777777777777"}, readers)
	assert.Equal(t, []types.AccountID{ownerAccount, resourceAccount}, writers,
		"every resource contributes owner and resource account")
}

func TestComputeIgnoresMismatchedStageRegion(t *testing.T) {
	ctx := context.Background()
	cat := catalog.New(catalog.NewMemoryDatasets(), catalog.NewMemoryResources(), catalog.NewMemoryLocks(), zap.NewNop())
	aggregator := NewAggregator(cat, zap.NewNop())

	// Permission is for prod, resource is dev: no reader.
	require.NoError(t, cat.Datasets.Create(ctx, types.Dataset{
		ID: "bo_a_raw", OwnerAccountID: ownerAccount,
		Permissions: []types.Permission{
			{AccountID: readerAccount, Stage: types.StageProd, Region: region, SyncType: types.SyncTypeResourceLink},
		},
	}))
	require.NoError(t, cat.Resources.Create(ctx, types.Resource{
		Type: types.ResourceTypeStorage, DatasetID: "bo_a_raw", Stage: types.StageDev, Region: region,
		ResourceAccountID: resourceAccount, OwnerAccountID: ownerAccount,
	}))

	readers, writers, err := aggregator.ComputeReadersAndWriters(ctx, types.Key{Region: region}, resourceAccount)
	require.NoError(t, err)
	assert.Empty(t, readers)
	assert.Len(t, writers, 2)
}

func testService(t *testing.T, cat *catalog.Catalog, factory *clientstest.FakeFactory) *Service {
	t.Helper()
	locks := locking.NewService(cat.Locks, zap.NewNop())
	return NewService(NewAggregator(cat, zap.NewNop()), locks, factory, "aws", securityAccount, zap.NewNop())
}

func TestGetOrCreateSharedKey(t *testing.T) {
	ctx := context.Background()
	cat := catalog.New(catalog.NewMemoryDatasets(), catalog.NewMemoryResources(), catalog.NewMemoryLocks(), zap.NewNop())
	factory := clientstest.NewFakeFactory()
	svc := testService(t, cat, factory)

	created, err := svc.GetOrCreateSharedKey(ctx, resourceAccount, region)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	again, err := svc.GetOrCreateSharedKey(ctx, resourceAccount, region)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID, "second call resolves the alias")
}

func TestRegenerateKeyPolicy(t *testing.T) {
	ctx := context.Background()
	cat := catalog.New(catalog.NewMemoryDatasets(), catalog.NewMemoryResources(), catalog.NewMemoryLocks(), zap.NewNop())
	factory := clientstest.NewFakeFactory()
	svc := testService(t, cat, factory)
	seedStorageResource(t, cat, "bo_a_raw", types.StageDev, readerAccount)

	key := types.Key{ID: "key-1", ARN: types.BuildARN("aws", "kms", region, resourceAccount, "key/key-1"), Region: region}
	require.NoError(t, svc.RegenerateKeyPolicy(ctx, key, resourceAccount))

	keyFake := factory.KeyFake(resourceAccount, region)
	doc, ok := keyFake.Policies["key-1"]
	require.True(t, ok)

	admin, ok := doc.StatementBySid(sidKeyAdministration)
	require.True(t, ok)
	assert.Contains(t, admin.Principal.AWS, string(types.AccountRootARN("aws", securityAccount)))

	usage, ok := doc.StatementBySid(sidAllowKeyUsage)
	require.True(t, ok)
	assert.Contains(t, usage.Principal.AWS, string(types.AccountRootARN("aws", ownerAccount)))
	assert.Contains(t, usage.Principal.AWS, string(types.AccountRootARN("aws", resourceAccount)))

	grant, ok := doc.StatementBySid(sidGrantKeyUsage)
	require.True(t, ok)
	assert.Equal(t, policy.StringList{string(types.AccountRootARN("aws", readerAccount))}, grant.Principal.AWS)

	// The key lock is gone afterwards.
	locks, err := cat.Locks.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestRegenerateKeyPolicyDropsReaderStatementWhenEmpty(t *testing.T) {
	ctx := context.Background()
	cat := catalog.New(catalog.NewMemoryDatasets(), catalog.NewMemoryResources(), catalog.NewMemoryLocks(), zap.NewNop())
	factory := clientstest.NewFakeFactory()
	svc := testService(t, cat, factory)
	seedStorageResource(t, cat, "bo_a_raw", types.StageDev) // no readers

	key := types.Key{ID: "key-1", Region: region}
	require.NoError(t, svc.RegenerateKeyPolicy(ctx, key, resourceAccount))

	doc := factory.KeyFake(resourceAccount, region).Policies["key-1"]
	_, ok := doc.StatementBySid(sidGrantKeyUsage)
	assert.False(t, ok)
}
