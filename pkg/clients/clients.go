// Package clients defines the contracts of the per-account AWS collaborators
// the lifecycle managers drive. The control plane treats them as black boxes:
// implementations live with the API deployment, fakes live with the tests.
package clients

import (
	"context"

	"datahub/pkg/types"
)

// Factory hands out service clients scoped to one account and region.
type Factory interface {
	Bucket(account types.AccountID, region types.Region) BucketClient
	CatalogDatabase(account types.AccountID, region types.Region) CatalogDatabaseClient
	Key(account types.AccountID, region types.Region) KeyClient
	Topic(account types.AccountID, region types.Region) TopicClient
	FineGrained(account types.AccountID, region types.Region) FineGrainedClient
}

// Account is a consumer account registered with the platform, as resolved by
// the (external) account registry.
type Account struct {
	ID              types.AccountID
	FriendlyName    string
	MetadataRoleARN types.ARN
}

func (a Account) String() string {
	if a.FriendlyName == "" {
		return string(a.ID)
	}
	return a.FriendlyName + " (" + string(a.ID) + ")"
}

// AccountResolver looks up registered accounts.
type AccountResolver interface {
	Get(ctx context.Context, id types.AccountID) (Account, error)
}

// RoleAssumer assumes the metadata push role in a target account and returns
// a catalog database client operating inside it.
type RoleAssumer interface {
	AssumeMetadataRole(ctx context.Context, account Account, region types.Region) (CatalogDatabaseClient, error)
}
