package clients

import (
	"context"

	"datahub/pkg/policy"
	"datahub/pkg/types"
)

// KeyClient drives the shared-key service in one account and region. Key
// policies are replaced whole, never patched, so the policy always reflects
// the current aggregate state.
type KeyClient interface {
	GetKeyByAlias(ctx context.Context, alias string) (types.Key, error)
	CreateKey(ctx context.Context, doc policy.Document, description string, tags map[string]string) (types.Key, error)
	CreateAlias(ctx context.Context, alias, keyID string) error
	SetKeyPolicy(ctx context.Context, keyID string, doc policy.Document) error
}
