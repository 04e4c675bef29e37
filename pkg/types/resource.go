package types

import (
	"fmt"
	"time"
)

// Resource is the record of a provisioned backing resource for a dataset.
// At most one resource exists per (type, dataset, stage, region).
type Resource struct {
	Type              ResourceType `json:"type"`
	DatasetID         DatasetID    `json:"dataset_id"`
	Stage             Stage        `json:"stage"`
	Region            Region       `json:"region"`
	Hub               Hub          `json:"hub"`
	ResourceAccountID AccountID    `json:"resource_account_id"`
	OwnerAccountID    AccountID    `json:"owner_account_id"`
	ARN               ARN          `json:"arn"`

	// Storage resources only.
	KeyARN   ARN `json:"key_arn,omitempty"`
	TopicARN ARN `json:"topic_arn,omitempty"`

	// Catalog-sync resources only.
	DatabaseName DatabaseName `json:"database_name,omitempty"`
	SyncType     SyncType     `json:"sync_type,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BucketName is the storage resource's bucket, derived from its ARN.
func (r Resource) BucketName() string {
	return r.ARN.Identifier()
}

func (r Resource) Database() Database {
	return Database{
		Name:      r.DatabaseName,
		AccountID: r.ResourceAccountID,
		Region:    r.Region,
	}
}

// Database identifies a metadata-catalog database in a specific account and
// region.
type Database struct {
	Name      DatabaseName
	AccountID AccountID
	Region    Region
}

func (d Database) ARN() ARN {
	return BuildARN("aws", "glue", d.Region, d.AccountID, fmt.Sprintf("database/%s", d.Name))
}

// Key identifies a shared encryption key.
type Key struct {
	ID     string
	ARN    ARN
	Region Region
}

func KeyFromARN(arn ARN) Key {
	return Key{ID: arn.Identifier(), ARN: arn, Region: arn.Region()}
}

// Topic identifies a notification topic attached to a storage resource.
type Topic struct {
	Name   string
	ARN    ARN
	Region Region
}

func TopicFromARN(arn ARN) Topic {
	return Topic{Name: arn.Identifier(), ARN: arn, Region: arn.Region()}
}
