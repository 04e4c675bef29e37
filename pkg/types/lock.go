package types

import (
	"fmt"
	"time"
)

// LockScope separates the independent locking namespaces.
type LockScope string

const (
	LockScopeStorage     LockScope = "storage"
	LockScopeCatalogSync LockScope = "catalog-sync"
	LockScopeSharedKey   LockScope = "shared-key"
)

// Lock is a mutual-exclusion lease on one (scope, item, stage, region) key.
// Exactly one live lock may exist per key.
type Lock struct {
	ID         string            `json:"id"`
	Scope      LockScope         `json:"scope"`
	Data       map[string]string `json:"data,omitempty"`
	RequestID  string            `json:"request_id"`
	AcquiredAt time.Time         `json:"acquired_at"`
}

// BuildLockID concatenates the lock key fields. Missing stage or region get
// placeholder segments so ids stay unambiguous.
func BuildLockID(itemID string, scope LockScope, stage Stage, region Region) string {
	stageStr := string(stage)
	if stageStr == "" {
		stageStr = "no_stage"
	}
	regionStr := string(region)
	if regionStr == "" {
		regionStr = "no_region"
	}
	return fmt.Sprintf("%s_%s_%s_%s", itemID, scope, stageStr, regionStr)
}
