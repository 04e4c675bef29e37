package keyaccess

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"datahub/pkg/clients"
	"datahub/pkg/locking"
	"datahub/pkg/policy"
	"datahub/pkg/types"
)

const (
	sidKeyAdministration = "KeyAdministration"
	sidAllowKeyUsage     = "AllowKeyUsage"
	sidAllowGrants       = "AllowGrants"
	sidGrantKeyUsage     = "GrantKeyUsage"
)

// Service owns the shared-key lifecycle: one key per (resource account,
// region), full-replace policy regeneration under a key-scoped lock.
type Service struct {
	aggregator *Aggregator
	locks      *locking.Service
	clients    clients.Factory
	logger     *zap.Logger

	partition       string
	securityAccount types.AccountID
}

func NewService(aggregator *Aggregator, locks *locking.Service, factory clients.Factory, partition string, securityAccount types.AccountID, logger *zap.Logger) *Service {
	return &Service{
		aggregator:      aggregator,
		locks:           locks,
		clients:         factory,
		logger:          logger,
		partition:       partition,
		securityAccount: securityAccount,
	}
}

func keyAlias(resourceAccount types.AccountID) string {
	return fmt.Sprintf("datahub-%s", resourceAccount)
}

// GetOrCreateSharedKey returns the shared key of (resourceAccount, region),
// creating it with a freshly aggregated policy when none exists.
func (s *Service) GetOrCreateSharedKey(ctx context.Context, resourceAccount types.AccountID, region types.Region) (types.Key, error) {
	client := s.clients.Key(resourceAccount, region)
	alias := keyAlias(resourceAccount)
	key, err := client.GetKeyByAlias(ctx, alias)
	if err == nil {
		return key, nil
	}
	var notFound *clients.KeyNotFoundError
	if !errors.As(err, &notFound) {
		return types.Key{}, err
	}

	readers, writers, err := s.aggregator.ComputeReadersAndWriters(ctx, types.Key{Region: region}, resourceAccount)
	if err != nil {
		return types.Key{}, err
	}
	writers = withAccount(writers, resourceAccount)
	doc := s.BuildKeyPolicy(readers, writers)
	if err := doc.Validate(policy.KindKey); err != nil {
		return types.Key{}, err
	}
	key, err = client.CreateKey(ctx, doc, fmt.Sprintf("datahub shared key for %s", resourceAccount), map[string]string{
		"managed-by": "datahub",
	})
	if err != nil {
		return types.Key{}, err
	}
	if err := client.CreateAlias(ctx, alias, key.ID); err != nil {
		return types.Key{}, err
	}
	s.logger.Info("created shared key",
		zap.String("account", string(resourceAccount)),
		zap.String("region", string(region)),
		zap.String("key", key.ID))
	return key, nil
}

// RegenerateKeyPolicy recomputes the full access set and replaces the key
// policy. Runs under the key-scoped lock so concurrent permission changes in
// the same account serialize their regenerations.
func (s *Service) RegenerateKeyPolicy(ctx context.Context, key types.Key, resourceAccount types.AccountID) error {
	lock, err := s.locks.Acquire(ctx, key.ID, types.LockScopeSharedKey, "", key.Region, nil)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := s.locks.Release(ctx, lock); releaseErr != nil {
			s.logger.Error("could not release key lock", zap.String("lock", lock.ID), zap.Error(releaseErr))
		}
	}()

	readers, writers, err := s.aggregator.ComputeReadersAndWriters(ctx, key, resourceAccount)
	if err != nil {
		return err
	}
	writers = withAccount(writers, resourceAccount)
	doc := s.BuildKeyPolicy(readers, writers)
	if err := doc.Validate(policy.KindKey); err != nil {
		return err
	}
	return s.clients.Key(resourceAccount, key.Region).SetKeyPolicy(ctx, key.ID, doc)
}

// BuildKeyPolicy renders the full-replace key policy: security-account
// administration, writer use and grant rights, reader decrypt rights.
func (s *Service) BuildKeyPolicy(readers, writers []types.AccountID) policy.Document {
	statements := []policy.Statement{
		{
			Sid:       sidKeyAdministration,
			Effect:    "Allow",
			Principal: &policy.Principal{AWS: policy.StringList{string(types.AccountRootARN(s.partition, s.securityAccount))}},
			Action:    policy.StringList{"kms:*"},
			Resource:  policy.StringList{"*"},
		},
	}
	if len(writers) > 0 {
		writerARNs := rootARNs(s.partition, writers)
		statements = append(statements,
			policy.Statement{
				Sid:       sidAllowKeyUsage,
				Effect:    "Allow",
				Principal: &policy.Principal{AWS: writerARNs},
				Action: policy.StringList{
					"kms:Encrypt", "kms:Decrypt", "kms:ReEncrypt*",
					"kms:GenerateDataKey*", "kms:DescribeKey",
				},
				Resource: policy.StringList{"*"},
			},
			policy.Statement{
				Sid:       sidAllowGrants,
				Effect:    "Allow",
				Principal: &policy.Principal{AWS: writerARNs},
				Action:    policy.StringList{"kms:CreateGrant", "kms:ListGrants", "kms:RevokeGrant"},
				Resource:  policy.StringList{"*"},
				Condition: map[string]map[string]policy.StringList{
					"Bool": {"kms:GrantIsForAWSResource": policy.StringList{"true"}},
				},
			},
		)
	}
	if len(readers) > 0 {
		statements = append(statements, policy.Statement{
			Sid:       sidGrantKeyUsage,
			Effect:    "Allow",
			Principal: &policy.Principal{AWS: rootARNs(s.partition, readers)},
			Action:    policy.StringList{"kms:Decrypt", "kms:DescribeKey"},
			Resource:  policy.StringList{"*"},
		})
	}
	return policy.NewDocument(statements...)
}

func rootARNs(partition string, accounts []types.AccountID) policy.StringList {
	out := make(policy.StringList, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, string(types.AccountRootARN(partition, account)))
	}
	return out
}

func withAccount(accounts []types.AccountID, account types.AccountID) []types.AccountID {
	for _, existing := range accounts {
		if existing == account {
			return accounts
		}
	}
	return append(accounts, account)
}
