// Package keyaccess maintains the shared encryption keys' policies. Access is
// always recomputed from the full set of storage resources referencing a key;
// the key policy is a cache of catalog state, never patched incrementally.
package keyaccess

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"datahub/pkg/catalog"
	"datahub/pkg/types"
)

// Aggregator derives the reader and writer account sets of a shared key from
// catalog state.
type Aggregator struct {
	catalog *catalog.Catalog
	logger  *zap.Logger
}

func NewAggregator(cat *catalog.Catalog, logger *zap.Logger) *Aggregator {
	return &Aggregator{catalog: cat, logger: logger}
}

// ComputeReadersAndWriters scans every storage resource hosted by
// resourceAccount in the key's region. Each resource contributes its owner and
// resource account as writers; its dataset's permissions contribute readers
// where the permission's stage and region match the resource's.
func (a *Aggregator) ComputeReadersAndWriters(ctx context.Context, key types.Key, resourceAccount types.AccountID) (readers, writers []types.AccountID, err error) {
	resources, err := a.catalog.ListAllResources(ctx, catalog.ResourceFilter{
		Type:            types.ResourceTypeStorage,
		ResourceAccount: resourceAccount,
		Region:          key.Region,
	})
	if err != nil {
		return nil, nil, err
	}

	readerSet := make(map[types.AccountID]struct{})
	writerSet := make(map[types.AccountID]struct{})
	for _, resource := range resources {
		writerSet[resource.OwnerAccountID] = struct{}{}
		writerSet[resource.ResourceAccountID] = struct{}{}

		dataset, err := a.catalog.Datasets.Get(ctx, resource.DatasetID)
		if err != nil {
			var notFound *catalog.DatasetNotFoundError
			if errors.As(err, &notFound) {
				// Orphaned resource record. Skip it rather than fail the
				// whole aggregation.
				a.logger.Warn("storage resource references missing dataset",
					zap.String("dataset", string(resource.DatasetID)),
					zap.String("arn", string(resource.ARN)))
				continue
			}
			return nil, nil, err
		}
		for _, account := range dataset.ReaderAccounts(resource.Stage, resource.Region) {
			readerSet[account] = struct{}{}
		}
	}
	return sortedAccounts(readerSet), sortedAccounts(writerSet), nil
}

func sortedAccounts(set map[types.AccountID]struct{}) []types.AccountID {
	out := make([]types.AccountID, 0, len(set))
	for account := range set {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
