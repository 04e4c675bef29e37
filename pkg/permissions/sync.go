package permissions

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"datahub/pkg/catalog"
	"datahub/pkg/clients"
	"datahub/pkg/metastore"
	"datahub/pkg/types"
)

// UpdateMetadataSync propagates one permission change to the consumer
// account's metadata catalog: a resource link is created or deleted via an
// assumed role, a fine-grained grant is issued or revoked in place. Datasets
// without a catalog-sync resource for the permission's stage and region have
// nothing to sync.
func (o *Orchestrator) UpdateMetadataSync(ctx context.Context, dataset types.Dataset, permission types.Permission, action types.PermissionAction) error {
	resource, err := o.catalog.Resources.Get(ctx, types.ResourceTypeCatalogSync, dataset.ID, permission.Stage, permission.Region)
	if err != nil {
		var notFound *catalog.ResourceNotFoundError
		if errors.As(err, &notFound) {
			o.logger.Debug("no catalog-sync resource, skipping metadata sync",
				zap.String("dataset", string(dataset.ID)),
				zap.String("stage", string(permission.Stage)),
				zap.String("region", string(permission.Region)))
			return nil
		}
		return err
	}

	syncType := permission.SyncType
	if syncType == "" {
		syncType = resource.SyncType
	}
	switch syncType {
	case types.SyncTypeResourceLink:
		account, err := o.accounts.Get(ctx, permission.AccountID)
		if err != nil {
			return err
		}
		return o.syncResourceLink(ctx, resource, account, action)
	case types.SyncTypeFineGrained:
		fineGrained := o.clients.FineGrained(resource.ResourceAccountID, resource.Region)
		if action == types.ActionAdd {
			return fineGrained.GrantReadAccess(ctx, permission.AccountID, resource.Database())
		}
		return fineGrained.RevokeReadAccess(ctx, permission.AccountID, resource.Database())
	case types.SyncTypeLegacy:
		o.logger.Debug("legacy sync type, nothing to propagate",
			zap.String("dataset", string(dataset.ID)),
			zap.String("account", string(permission.AccountID)))
		return nil
	default:
		return fmt.Errorf("unknown sync type %q", syncType)
	}
}

// syncResourceLink manages the link-typed database in the consumer account.
// Any database under the link's name that is not our link to this source is a
// conflict; it is never created over, deleted or modified.
func (o *Orchestrator) syncResourceLink(ctx context.Context, resource types.Resource, account clients.Account, action types.PermissionAction) error {
	client, err := o.roles.AssumeMetadataRole(ctx, account, resource.Region)
	if err != nil {
		return err
	}

	description, err := client.DescribeDatabase(ctx, resource.DatabaseName)
	if err != nil {
		var notFound *clients.DatabaseNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		if action == types.ActionRemove {
			return nil
		}
		return client.CreateResourceLink(ctx, resource.DatabaseName, resource.ResourceAccountID)
	}

	ours := description.IsResourceLink &&
		(description.SourceAccount == "" || description.SourceAccount == resource.ResourceAccountID)
	if !ours {
		return &metastore.ConflictingDatabaseError{Name: resource.DatabaseName, Account: account.ID}
	}
	if action == types.ActionAdd {
		return nil
	}
	return client.DeleteDatabaseIfPresent(ctx, resource.DatabaseName)
}

// SyncFailure is one account's failed sync in a best-effort batch.
type SyncFailure struct {
	Account types.AccountID
	Err     error
}

// SyncReport collects the outcomes of a best-effort sync batch. Failures are
// per account; one account's failure never aborts the batch.
type SyncReport struct {
	Synced   []types.AccountID
	Failures []SyncFailure
}

// CreateMissingResourceLinks re-syncs every permission of the resource's
// dataset after a catalog-sync resource was created, so consumers granted
// before the database existed get their links backfilled.
func (o *Orchestrator) CreateMissingResourceLinks(ctx context.Context, resource types.Resource) (SyncReport, error) {
	return o.syncAllPermissions(ctx, resource, types.ActionAdd)
}

// DeleteMetadataSyncsForResource tears down every permission's sync before a
// catalog-sync resource is deleted.
func (o *Orchestrator) DeleteMetadataSyncsForResource(ctx context.Context, resource types.Resource) (SyncReport, error) {
	return o.syncAllPermissions(ctx, resource, types.ActionRemove)
}

func (o *Orchestrator) syncAllPermissions(ctx context.Context, resource types.Resource, action types.PermissionAction) (SyncReport, error) {
	dataset, err := o.catalog.Datasets.Get(ctx, resource.DatasetID)
	if err != nil {
		return SyncReport{}, err
	}
	var report SyncReport
	for _, permission := range dataset.FilterPermissions(types.PermissionFilter{Stage: resource.Stage, Region: resource.Region}) {
		if err := o.UpdateMetadataSync(ctx, dataset, permission, action); err != nil {
			o.logger.Warn("metadata sync failed for account",
				zap.String("dataset", string(dataset.ID)),
				zap.String("account", string(permission.AccountID)),
				zap.String("action", string(action)),
				zap.Error(err))
			report.Failures = append(report.Failures, SyncFailure{Account: permission.AccountID, Err: err})
			continue
		}
		report.Synced = append(report.Synced, permission.AccountID)
	}
	return report, nil
}
