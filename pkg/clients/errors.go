package clients

import (
	"fmt"

	"datahub/pkg/types"
)

// ErrNoPolicy signals the remote resource has no policy document attached.
// Callers treat it as an empty document with no version token.
var ErrNoPolicy = fmt.Errorf("no policy attached")

// PolicyConflictError signals a hash-conditioned policy write lost against a
// concurrent writer. The operation fails; it is never silently merged.
type PolicyConflictError struct {
	Resource string
}

func (e *PolicyConflictError) Error() string {
	return fmt.Sprintf("policy for %s was modified concurrently", e.Resource)
}

type BucketNotFoundError struct{ Bucket string }

func (e *BucketNotFoundError) Error() string {
	return fmt.Sprintf("bucket %s was not found", e.Bucket)
}

type BucketNotEmptyError struct{ Bucket string }

func (e *BucketNotEmptyError) Error() string {
	return fmt.Sprintf("bucket %s is not empty", e.Bucket)
}

type BucketAlreadyExistsError struct{ Bucket string }

func (e *BucketAlreadyExistsError) Error() string {
	return fmt.Sprintf("bucket %s already exists", e.Bucket)
}

type DatabaseNotFoundError struct{ Name types.DatabaseName }

func (e *DatabaseNotFoundError) Error() string {
	return fmt.Sprintf("database %s was not found", e.Name)
}

type DatabaseAlreadyExistsError struct{ Name types.DatabaseName }

func (e *DatabaseAlreadyExistsError) Error() string {
	return fmt.Sprintf("database %s already exists", e.Name)
}

// DatabaseEncryptionError signals the target catalog's encryption key is
// unusable, so databases cannot be written there.
type DatabaseEncryptionError struct{ Name types.DatabaseName }

func (e *DatabaseEncryptionError) Error() string {
	return fmt.Sprintf("encrypting database %s failed", e.Name)
}

// AccessDeniedError is a recoverable precondition: policy changes that have
// not finished propagating commonly surface as access denial.
type AccessDeniedError struct{ Op string }

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Op)
}

type InvalidInputError struct{ Op, Reason string }

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input for %s: %s", e.Op, e.Reason)
}

type KeyNotFoundError struct{ Alias string }

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %s was not found", e.Alias)
}

type TopicNotFoundError struct{ ARN types.ARN }

func (e *TopicNotFoundError) Error() string {
	return fmt.Sprintf("topic %s was not found", e.ARN)
}

// CannotAssumeMetadataRoleError signals the metadata push role in a target
// account could not be assumed.
type CannotAssumeMetadataRoleError struct{ RoleARN types.ARN }

func (e *CannotAssumeMetadataRoleError) Error() string {
	return fmt.Sprintf("cannot assume metadata role %s", e.RoleARN)
}

// UnsupportedMetadataRoleError signals the target account does not carry a
// metadata push role the platform can use.
type UnsupportedMetadataRoleError struct{ Account types.AccountID }

func (e *UnsupportedMetadataRoleError) Error() string {
	return fmt.Sprintf("account %s does not support the metadata role", e.Account)
}

// SyncStillPropagatingError signals a grant or revoke is blocked because a
// prior modification has not finished propagating.
type SyncStillPropagatingError struct{ Database types.DatabaseName }

func (e *SyncStillPropagatingError) Error() string {
	return fmt.Sprintf("access modification for database %s still propagating", e.Database)
}

type AccountNotFoundError struct{ ID types.AccountID }

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account %s is not registered", e.ID)
}
