package types

import (
	"fmt"
	"sort"
	"time"
)

// Permission grants one account read access to a dataset for a single
// stage/region pair. Permissions have set semantics: a dataset holds at most
// one permission per full tuple.
type Permission struct {
	AccountID AccountID `json:"account_id"`
	Stage     Stage     `json:"stage"`
	Region    Region    `json:"region"`
	SyncType  SyncType  `json:"sync_type"`
}

func (p Permission) String() string {
	return fmt.Sprintf("(%s, %s, %s, %s)", p.AccountID, p.Stage, p.Region, p.SyncType)
}

type Dataset struct {
	ID             DatasetID    `json:"id"`
	Hub            Hub          `json:"hub"`
	OwnerAccountID AccountID    `json:"owner_account_id"`
	Permissions    []Permission `json:"permissions"`
	Upstream       []DatasetID  `json:"upstream,omitempty"`

	FriendlyName string    `json:"friendly_name,omitempty"`
	Description  string    `json:"description,omitempty"`
	Labels       []string  `json:"labels,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BuildDatasetID derives the immutable dataset id. Datasets in the default
// hub omit the hub prefix for backwards compatibility.
func BuildDatasetID(businessObject, name, layer string, hub Hub) DatasetID {
	if hub == HubDefault {
		return DatasetID(fmt.Sprintf("%s_%s_%s", businessObject, name, layer))
	}
	return DatasetID(fmt.Sprintf("%s_%s_%s_%s", hub, businessObject, name, layer))
}

func (d Dataset) HasPermission(p Permission) bool {
	for _, existing := range d.Permissions {
		if existing == p {
			return true
		}
	}
	return false
}

// PermissionFilter selects permissions by any combination of fields; zero
// values match everything.
type PermissionFilter struct {
	AccountID AccountID
	Stage     Stage
	Region    Region
	SyncType  SyncType
}

func (f PermissionFilter) matches(p Permission) bool {
	if f.AccountID != "" && f.AccountID != p.AccountID {
		return false
	}
	if f.Stage != "" && f.Stage != p.Stage {
		return false
	}
	if f.Region != "" && f.Region != p.Region {
		return false
	}
	if f.SyncType != "" && f.SyncType != p.SyncType {
		return false
	}
	return true
}

func (d Dataset) FilterPermissions(f PermissionFilter) []Permission {
	var out []Permission
	for _, p := range d.Permissions {
		if f.matches(p) {
			out = append(out, p)
		}
	}
	return out
}

// ReaderAccounts returns the accounts holding read access for the given
// stage and region.
func (d Dataset) ReaderAccounts(stage Stage, region Region) []AccountID {
	seen := make(map[AccountID]struct{})
	var out []AccountID
	for _, p := range d.FilterPermissions(PermissionFilter{Stage: stage, Region: region}) {
		if _, ok := seen[p.AccountID]; ok {
			continue
		}
		seen[p.AccountID] = struct{}{}
		out = append(out, p.AccountID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ResolvePermissions computes the permission set after applying the action.
// The result is canonically sorted so stored sets compare bytewise equal.
func ResolvePermissions(current []Permission, p Permission, action PermissionAction) []Permission {
	out := make([]Permission, 0, len(current)+1)
	for _, existing := range current {
		if existing == p {
			continue
		}
		out = append(out, existing)
	}
	if action == ActionAdd {
		out = append(out, p)
	}
	SortPermissions(out)
	return out
}

func SortPermissions(perms []Permission) {
	sort.Slice(perms, func(i, j int) bool {
		a, b := perms[i], perms[j]
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		return a.SyncType < b.SyncType
	})
}

// PermissionsEqual compares two permission sets ignoring order.
func PermissionsEqual(a, b []Permission) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]Permission(nil), a...)
	bs := append([]Permission(nil), b...)
	SortPermissions(as)
	SortPermissions(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
