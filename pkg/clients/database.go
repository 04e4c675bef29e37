package clients

import (
	"context"

	"datahub/pkg/policy"
	"datahub/pkg/types"
)

// DatabaseDescription is what the catalog reports about one database.
type DatabaseDescription struct {
	Name           types.DatabaseName
	IsResourceLink bool
	// SourceAccount is set for resource links only.
	SourceAccount types.AccountID
}

// CatalogDatabaseClient drives the metadata catalog in one account and
// region. The catalog carries a single account-wide resource policy whose
// writes are conditioned on the hash returned by the last read.
type CatalogDatabaseClient interface {
	DatabaseExists(ctx context.Context, name types.DatabaseName) (bool, error)
	// DescribeDatabase fails with DatabaseNotFoundError when absent.
	DescribeDatabase(ctx context.Context, name types.DatabaseName) (DatabaseDescription, error)
	// CreateDatabase fails with DatabaseAlreadyExistsError on a duplicate
	// name and DatabaseEncryptionError when the catalog key is unusable.
	CreateDatabase(ctx context.Context, name types.DatabaseName) error
	DeleteDatabaseIfPresent(ctx context.Context, name types.DatabaseName) error
	// CreateResourceLink creates a link-typed database pointing at the same
	// name in the source account.
	CreateResourceLink(ctx context.Context, name types.DatabaseName, sourceAccount types.AccountID) error
	// GetResourcePolicy returns ErrNoPolicy when the catalog has none.
	GetResourcePolicy(ctx context.Context) (policy.VersionedDocument, error)
	// PutResourcePolicy writes conditioned on hash; mustExist asserts whether
	// a policy is expected to be present. Mismatches fail with
	// PolicyConflictError; AccessDeniedError and InvalidInputError are
	// reported distinctly from not-found conditions.
	PutResourcePolicy(ctx context.Context, doc policy.Document, hash string, mustExist bool) error
	DeleteResourcePolicy(ctx context.Context, hash string) error
}

// FineGrainedClient grants and revokes fine-grained read access on catalog
// databases (the fine-grained sync type).
type FineGrainedClient interface {
	GrantReadAccess(ctx context.Context, principal types.AccountID, db types.Database) error
	// RevokeReadAccess fails with SyncStillPropagatingError while a prior
	// modification is still associating.
	RevokeReadAccess(ctx context.Context, principal types.AccountID, db types.Database) error
}
