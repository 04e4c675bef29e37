package catalog

import (
	"fmt"

	"datahub/pkg/types"
)

type DatasetNotFoundError struct{ ID types.DatasetID }

func (e *DatasetNotFoundError) Error() string {
	return fmt.Sprintf("dataset %s was not found", e.ID)
}

type DatasetAlreadyExistsError struct{ ID types.DatasetID }

func (e *DatasetAlreadyExistsError) Error() string {
	return fmt.Sprintf("dataset %s already exists", e.ID)
}

// InconsistentUpdateError signals a permission write lost against a
// concurrent writer: the stored set no longer matched the set read at the
// start of the update.
type InconsistentUpdateError struct{ ID types.DatasetID }

func (e *InconsistentUpdateError) Error() string {
	return fmt.Sprintf("inconsistent state during update of dataset %s", e.ID)
}

type ResourceNotFoundError struct {
	Type    types.ResourceType
	Dataset types.DatasetID
	Stage   types.Stage
	Region  types.Region
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s resource for dataset %s (%s, %s) was not found", e.Type, e.Dataset, e.Stage, e.Region)
}

type ResourceAlreadyExistsError struct {
	Type    types.ResourceType
	Dataset types.DatasetID
	Stage   types.Stage
	Region  types.Region
}

func (e *ResourceAlreadyExistsError) Error() string {
	return fmt.Sprintf("%s resource for dataset %s (%s, %s) already exists", e.Type, e.Dataset, e.Stage, e.Region)
}

type LockNotFoundError struct{ ID string }

func (e *LockNotFoundError) Error() string {
	return fmt.Sprintf("lock %s was not found", e.ID)
}

type LockAlreadyExistsError struct{ ID string }

func (e *LockAlreadyExistsError) Error() string {
	return fmt.Sprintf("lock %s already exists", e.ID)
}
