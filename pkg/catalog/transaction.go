package catalog

import (
	"context"

	"go.uber.org/zap"

	"datahub/pkg/types"
)

// UpdatePermissionsTransaction applies the permission action, runs body with
// the updated dataset, and compensates with the inverse action when body
// fails. The body error always propagates; a rollback failure is logged and
// never masks it. The write is conditioned on the exact permission set read
// at the start, so lost updates surface as InconsistentUpdateError.
func (c *Catalog) UpdatePermissionsTransaction(
	ctx context.Context,
	id types.DatasetID,
	permission types.Permission,
	action types.PermissionAction,
	body func(updated types.Dataset) error,
) (types.Dataset, error) {
	updated, err := c.updatePermissions(ctx, id, permission, action)
	if err != nil {
		return types.Dataset{}, err
	}
	if err := body(updated); err != nil {
		if rollbackErr := c.RollbackPermissionsAction(ctx, id, permission, action); rollbackErr != nil {
			c.logger.Error("could not roll back permissions",
				zap.String("dataset", string(id)),
				zap.String("permission", permission.String()),
				zap.Error(rollbackErr))
		}
		return types.Dataset{}, err
	}
	return updated, nil
}

// RollbackPermissionsAction applies the inverse of a previously performed
// action against the current stored state.
func (c *Catalog) RollbackPermissionsAction(
	ctx context.Context,
	id types.DatasetID,
	permission types.Permission,
	performed types.PermissionAction,
) error {
	_, err := c.updatePermissions(ctx, id, permission, performed.Inverse())
	return err
}

func (c *Catalog) updatePermissions(
	ctx context.Context,
	id types.DatasetID,
	permission types.Permission,
	action types.PermissionAction,
) (types.Dataset, error) {
	dataset, err := c.Datasets.Get(ctx, id)
	if err != nil {
		return types.Dataset{}, err
	}
	updated := types.ResolvePermissions(dataset.Permissions, permission, action)
	return c.Datasets.SetPermissions(ctx, id, dataset.Permissions, updated)
}
