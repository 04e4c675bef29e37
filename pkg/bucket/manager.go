// Package bucket manages the lifecycle of storage resources: the bucket, its
// policy, its notification topic and the shared-key policy they depend on.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"datahub/pkg/catalog"
	"datahub/pkg/clients"
	"datahub/pkg/keyaccess"
	"datahub/pkg/locking"
	"datahub/pkg/policy"
	"datahub/pkg/types"
)

// ForbiddenError is a user-actionable refusal, distinct from infra failure.
// Deleting a non-empty bucket is the canonical case: the user must empty the
// bucket, the platform cannot.
type ForbiddenError struct {
	Reason string
	Cause  error
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

func (e *ForbiddenError) Unwrap() error { return e.Cause }

// Manager drives storage resource lifecycles. All mutations run under the
// storage-scope lock for the resource's (dataset, stage, region).
type Manager struct {
	catalog *catalog.Catalog
	locks   *locking.Service
	clients clients.Factory
	keys    *keyaccess.Service
	logger  *zap.Logger

	partition string
}

func NewManager(cat *catalog.Catalog, locks *locking.Service, factory clients.Factory, keys *keyaccess.Service, partition string, logger *zap.Logger) *Manager {
	return &Manager{
		catalog:   cat,
		locks:     locks,
		clients:   factory,
		keys:      keys,
		logger:    logger,
		partition: partition,
	}
}

// BuildBucketName derives the bucket name from the dataset id and stage.
func BuildBucketName(id types.DatasetID, stage types.Stage) string {
	return fmt.Sprintf("datahub-%s-%s", strings.ReplaceAll(string(id), "_", "-"), stage)
}

// CreateBucket provisions the bucket, its initial policy, the notification
// topic and the resource record, and refreshes the shared-key policy. The
// resource record is persisted last, so a failed provisioning never leaves a
// record pointing at nothing.
func (m *Manager) CreateBucket(ctx context.Context, dataset types.Dataset, stage types.Stage, region types.Region, resourceAccount, owner types.AccountID, user string) (types.Resource, error) {
	exists, err := m.catalog.Resources.Exists(ctx, types.ResourceTypeStorage, dataset.ID, stage, region)
	if err != nil {
		return types.Resource{}, err
	}
	if exists {
		return types.Resource{}, &catalog.ResourceAlreadyExistsError{
			Type: types.ResourceTypeStorage, Dataset: dataset.ID, Stage: stage, Region: region,
		}
	}

	lock, err := m.locks.Acquire(ctx, string(dataset.ID), types.LockScopeStorage, stage, region, nil)
	if err != nil {
		return types.Resource{}, err
	}
	defer m.release(ctx, lock)

	key, err := m.keys.GetOrCreateSharedKey(ctx, resourceAccount, region)
	if err != nil {
		return types.Resource{}, err
	}

	client := m.clients.Bucket(resourceAccount, region)
	name := BuildBucketName(dataset.ID, stage)
	bucketARN, err := client.CreateEncryptedBucket(ctx, name, key.ARN, map[string]string{
		"dataset":    string(dataset.ID),
		"stage":      string(stage),
		"managed-by": "datahub",
	})
	if err != nil {
		return types.Resource{}, err
	}

	doc := policy.NewDocument(initialBucketStatements(m.partition, bucketARN, key.ARN, owner)...)
	if err := doc.Validate(policy.KindBucket); err != nil {
		return types.Resource{}, err
	}
	if err := client.SetBucketPolicy(ctx, name, doc, ""); err != nil {
		return types.Resource{}, err
	}

	topics := m.clients.Topic(resourceAccount, region)
	topicARN, err := topics.CreateTopic(ctx, name, key.ARN, map[string]string{"managed-by": "datahub"})
	if err != nil {
		return types.Resource{}, err
	}
	topicDoc := policy.NewDocument(initialTopicStatements(topicARN, bucketARN)...)
	if err := topics.SetTopicPolicy(ctx, topicARN, topicDoc); err != nil {
		return types.Resource{}, err
	}

	if err := m.keys.RegenerateKeyPolicy(ctx, key, resourceAccount); err != nil {
		return types.Resource{}, err
	}

	now := time.Now().UTC()
	resource := types.Resource{
		Type:              types.ResourceTypeStorage,
		DatasetID:         dataset.ID,
		Stage:             stage,
		Region:            region,
		Hub:               dataset.Hub,
		ResourceAccountID: resourceAccount,
		OwnerAccountID:    owner,
		ARN:               bucketARN,
		KeyARN:            key.ARN,
		TopicARN:          topicARN,
		CreatedBy:         user,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.catalog.Resources.Create(ctx, resource); err != nil {
		return types.Resource{}, err
	}
	m.logger.Info("created storage resource",
		zap.String("dataset", string(dataset.ID)),
		zap.String("bucket", name),
		zap.String("stage", string(stage)),
		zap.String("region", string(region)))
	return resource, nil
}

// UpdateReadAccess rewrites the bucket's read-access statement and the topic's
// subscribe statement from the dataset's current permissions, then refreshes
// the shared-key policy. The topic write runs inside the bucket-policy
// transaction, so a topic failure restores the previous bucket policy.
func (m *Manager) UpdateReadAccess(ctx context.Context, resource types.Resource, dataset types.Dataset) error {
	readers := dataset.ReaderAccounts(resource.Stage, resource.Region)
	client := m.clients.Bucket(resource.ResourceAccountID, resource.Region)
	name := resource.BucketName()

	var old *policy.VersionedDocument
	current, err := client.GetBucketPolicy(ctx, name)
	switch {
	case err == nil:
		old = &current
	case errors.Is(err, clients.ErrNoPolicy):
		current = policy.VersionedDocument{Document: policy.NewDocument()}
	default:
		return err
	}

	var updated policy.Document
	if len(readers) == 0 {
		updated = current.Document.DeleteStatementIfPresent(sidGrantGetBucket)
	} else {
		updated = current.Document.AddOrUpdateStatement(readAccessStatement(m.partition, resource.ARN, readers))
	}
	if err := updated.Validate(policy.KindBucket); err != nil {
		return err
	}

	err = clients.SetBucketPolicyTransaction(ctx, client, name, old, updated, current.Hash, func() error {
		return m.updateTopicSubscribers(ctx, resource, readers)
	})
	if err != nil {
		return err
	}
	return m.keys.RegenerateKeyPolicy(ctx, types.KeyFromARN(resource.KeyARN), resource.ResourceAccountID)
}

func (m *Manager) updateTopicSubscribers(ctx context.Context, resource types.Resource, readers []types.AccountID) error {
	if resource.TopicARN == "" {
		return nil
	}
	topics := m.clients.Topic(resource.ResourceAccountID, resource.Region)
	current, err := topics.GetTopicPolicy(ctx, resource.TopicARN)
	if err != nil {
		if !errors.Is(err, clients.ErrNoPolicy) {
			return err
		}
		current = policy.NewDocument()
	}
	var updated policy.Document
	if len(readers) == 0 {
		updated = current.DeleteStatementIfPresent(sidTopicSubscribe)
	} else {
		updated = current.AddOrUpdateStatement(topicSubscribeStatement(m.partition, resource.TopicARN, readers))
	}
	if err := updated.Validate(policy.KindTopic); err != nil {
		return err
	}
	return topics.SetTopicPolicy(ctx, resource.TopicARN, updated)
}

// DeleteBucket removes the bucket, its topic and its record, then refreshes
// the shared-key policy so the departed dataset's readers lose key access.
// The bucket goes first: a non-empty bucket aborts before any state changes
// and surfaces as ForbiddenError for the caller to hand to the user.
func (m *Manager) DeleteBucket(ctx context.Context, resource types.Resource) error {
	lock, err := m.locks.Acquire(ctx, string(resource.DatasetID), types.LockScopeStorage, resource.Stage, resource.Region, nil)
	if err != nil {
		return err
	}
	defer m.release(ctx, lock)

	client := m.clients.Bucket(resource.ResourceAccountID, resource.Region)
	if err := client.DeleteBucket(ctx, resource.BucketName()); err != nil {
		var notEmpty *clients.BucketNotEmptyError
		if errors.As(err, &notEmpty) {
			return &ForbiddenError{
				Reason: fmt.Sprintf("bucket %s must be emptied before the resource can be deleted", resource.BucketName()),
				Cause:  err,
			}
		}
		var notFound *clients.BucketNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		// Bucket already gone; still tear down the rest.
		m.logger.Warn("bucket already deleted", zap.String("bucket", resource.BucketName()))
	}

	if resource.TopicARN != "" {
		if err := m.clients.Topic(resource.ResourceAccountID, resource.Region).DeleteTopic(ctx, resource.TopicARN); err != nil {
			var notFound *clients.TopicNotFoundError
			if !errors.As(err, &notFound) {
				return err
			}
		}
	}

	if err := m.catalog.Resources.Delete(ctx, types.ResourceTypeStorage, resource.DatasetID, resource.Stage, resource.Region); err != nil {
		return err
	}

	if err := m.keys.RegenerateKeyPolicy(ctx, types.KeyFromARN(resource.KeyARN), resource.ResourceAccountID); err != nil {
		return err
	}
	m.logger.Info("deleted storage resource",
		zap.String("dataset", string(resource.DatasetID)),
		zap.String("bucket", resource.BucketName()))
	return nil
}

func (m *Manager) release(ctx context.Context, lock types.Lock) {
	if err := m.locks.Release(ctx, lock); err != nil {
		m.logger.Error("could not release storage lock", zap.String("lock", lock.ID), zap.Error(err))
	}
}
