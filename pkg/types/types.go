package types

import (
	"fmt"
	"strings"
)

type AccountID string
type DatasetID string
type DatabaseName string

type Stage string

const (
	StageDev  Stage = "dev"
	StageInt  Stage = "int"
	StageProd Stage = "prod"
)

type Region string

type Hub string

const HubDefault Hub = "global"

// SyncType is the mechanism by which read access to a catalog database is
// propagated to a consumer account.
type SyncType string

const (
	SyncTypeResourceLink SyncType = "resource-link"
	SyncTypeFineGrained  SyncType = "fine-grained"
	SyncTypeLegacy       SyncType = "legacy"
)

type ResourceType string

const (
	ResourceTypeStorage     ResourceType = "storage"
	ResourceTypeCatalogSync ResourceType = "catalog-sync"
)

// PermissionAction is an add or remove of a dataset account permission.
type PermissionAction string

const (
	ActionAdd    PermissionAction = "add"
	ActionRemove PermissionAction = "remove"
)

func (a PermissionAction) Inverse() PermissionAction {
	if a == ActionAdd {
		return ActionRemove
	}
	return ActionAdd
}

// ARN is an AWS resource name. The zero value means "no resource".
type ARN string

func BuildARN(partition, service string, region Region, account AccountID, resource string) ARN {
	return ARN(fmt.Sprintf("arn:%s:%s:%s:%s:%s", partition, service, region, account, resource))
}

// AccountRootARN names every principal in an account, the form policy
// statements use to grant cross-account access.
func AccountRootARN(partition string, account AccountID) ARN {
	return ARN(fmt.Sprintf("arn:%s:iam::%s:root", partition, account))
}

func (a ARN) String() string { return string(a) }

// Identifier returns the resource part of the ARN (after the last colon or
// slash separator of the resource segment).
func (a ARN) Identifier() string {
	parts := strings.SplitN(string(a), ":", 6)
	if len(parts) < 6 {
		return ""
	}
	resource := parts[5]
	if idx := strings.IndexAny(resource, ":/"); idx >= 0 {
		return resource[idx+1:]
	}
	return resource
}

func (a ARN) AccountID() AccountID {
	parts := strings.SplitN(string(a), ":", 6)
	if len(parts) < 6 {
		return ""
	}
	return AccountID(parts[4])
}

func (a ARN) Region() Region {
	parts := strings.SplitN(string(a), ":", 6)
	if len(parts) < 6 {
		return ""
	}
	return Region(parts[3])
}

func (a ARN) Partition() string {
	parts := strings.SplitN(string(a), ":", 6)
	if len(parts) < 6 {
		return "aws"
	}
	return parts[1]
}
