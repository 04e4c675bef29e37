package permissions

import (
	"context"

	"go.uber.org/zap"

	"datahub/pkg/catalog"
	"datahub/pkg/types"
)

// RemovedPermission records one permission dropped during a cross-dataset
// removal.
type RemovedPermission struct {
	Dataset    types.DatasetID
	Permission types.Permission
}

// RemovalFailure records one permission that could not be dropped.
type RemovalFailure struct {
	Dataset    types.DatasetID
	Permission types.Permission
	Err        error
}

// RemovalReport is the outcome of RemovePermissionsAcrossDatasets.
type RemovalReport struct {
	Removed  []RemovedPermission
	Failures []RemovalFailure
}

// RemovePermissionsAcrossDatasets strips every permission the account holds,
// across all datasets. Used when an account is deregistered from the
// platform. Best effort: each permission is an independent saga, failures are
// collected and the batch continues. Metadata sync is not enforced, a dead
// account's role is commonly not assumable anymore.
func (o *Orchestrator) RemovePermissionsAcrossDatasets(ctx context.Context, account types.AccountID) (RemovalReport, error) {
	datasets, err := o.catalog.ListAllDatasets(ctx, catalog.DatasetFilter{})
	if err != nil {
		return RemovalReport{}, err
	}

	var report RemovalReport
	for _, dataset := range datasets {
		for _, permission := range dataset.FilterPermissions(types.PermissionFilter{AccountID: account}) {
			if _, err := o.AddOrRemovePermission(ctx, dataset.ID, permission, types.ActionRemove, false); err != nil {
				o.logger.Warn("could not remove permission",
					zap.String("dataset", string(dataset.ID)),
					zap.String("account", string(account)),
					zap.String("permission", permission.String()),
					zap.Error(err))
				report.Failures = append(report.Failures, RemovalFailure{
					Dataset: dataset.ID, Permission: permission, Err: err,
				})
				continue
			}
			report.Removed = append(report.Removed, RemovedPermission{
				Dataset: dataset.ID, Permission: permission,
			})
		}
	}
	return report, nil
}
