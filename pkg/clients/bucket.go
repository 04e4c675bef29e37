package clients

import (
	"context"

	"datahub/pkg/policy"
	"datahub/pkg/types"
)

// BucketClient drives the object store in one account and region.
type BucketClient interface {
	BucketExists(ctx context.Context, name string) (bool, error)
	CreateEncryptedBucket(ctx context.Context, name string, keyARN types.ARN, tags map[string]string) (types.ARN, error)
	// DeleteBucket fails with BucketNotEmptyError when objects remain and
	// BucketNotFoundError when the bucket is gone.
	DeleteBucket(ctx context.Context, name string) error
	// GetBucketPolicy returns ErrNoPolicy when no policy is attached.
	GetBucketPolicy(ctx context.Context, bucket string) (policy.VersionedDocument, error)
	// SetBucketPolicy writes the document conditioned on hash; a mismatch
	// fails with PolicyConflictError. An empty hash writes unconditionally
	// (fresh buckets and compensation restores).
	SetBucketPolicy(ctx context.Context, bucket string, doc policy.Document, hash string) error
	DeleteBucketPolicy(ctx context.Context, bucket string) error
}

// SetBucketPolicyTransaction writes the new policy, runs body, and restores
// the old policy when body fails. A nil old policy means "no policy existed"
// and restores by deleting. The body error always propagates; restore
// failures never mask it.
func SetBucketPolicyTransaction(
	ctx context.Context,
	client BucketClient,
	bucket string,
	old *policy.VersionedDocument,
	updated policy.Document,
	hash string,
	body func() error,
) error {
	if err := client.SetBucketPolicy(ctx, bucket, updated, hash); err != nil {
		return err
	}
	if err := body(); err != nil {
		rollbackBucketPolicy(ctx, client, bucket, old)
		return err
	}
	return nil
}

func rollbackBucketPolicy(ctx context.Context, client BucketClient, bucket string, old *policy.VersionedDocument) {
	if old == nil {
		_ = client.DeleteBucketPolicy(ctx, bucket)
		return
	}
	// Unconditional restore: the hash read before our own write is stale now.
	_ = client.SetBucketPolicy(ctx, bucket, old.Document, "")
}
