package metastore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"datahub/pkg/clients"
	"datahub/pkg/policy"
	"datahub/pkg/types"
)

// All protected databases in one catalog share a single deny-delete
// statement under this sid.
const ProtectionSid = "ResourceLinkDeleteDenyManagedByDataHub"

func protectionStatement(principals, resources policy.StringList) policy.Statement {
	return policy.Statement{
		Sid:       ProtectionSid,
		Effect:    "Deny",
		Principal: &policy.Principal{AWS: principals},
		Action:    policy.StringList{"glue:DeleteDatabase"},
		Resource:  resources,
	}
}

// AddDeletionProtection denies account deletion rights on the database by
// merging it into the shared protection statement. A policy grown past the
// catalog's size limit is logged and skipped: protection is best-effort, the
// database itself must still be created.
func (m *Manager) AddDeletionProtection(ctx context.Context, client clients.CatalogDatabaseClient, db types.Database, account types.AccountID) error {
	current, hash, err := readResourcePolicy(ctx, client)
	if err != nil {
		return err
	}

	principals := policy.StringList{}
	resources := policy.StringList{}
	if existing, ok := current.StatementBySid(ProtectionSid); ok {
		principals = existing.Principal.AWS
		resources = existing.Resource
	}
	updated := current.AddOrUpdateStatement(protectionStatement(
		appendUnique(principals, string(types.AccountRootARN(m.partition, account))),
		appendUnique(resources, string(db.ARN())),
	))
	if err := updated.Validate(policy.KindCatalog); err != nil {
		var tooBig *policy.SizeExceededError
		if errors.As(err, &tooBig) {
			m.logger.Warn("catalog resource policy full, skipping deletion protection",
				zap.String("database", string(db.Name)),
				zap.Int("size", tooBig.Size))
			return nil
		}
		return err
	}
	return client.PutResourcePolicy(ctx, updated, hash, hash != "")
}

// RemoveDeletionProtection drops the database from the shared protection
// statement, deleting the whole policy when nothing remains.
func (m *Manager) RemoveDeletionProtection(ctx context.Context, client clients.CatalogDatabaseClient, db types.Database) error {
	current, hash, err := readResourcePolicy(ctx, client)
	if err != nil {
		return err
	}
	if _, ok := current.StatementBySid(ProtectionSid); !ok {
		return nil
	}
	updated := current.RemoveResourceFromStatement(ProtectionSid, string(db.ARN()))
	if !updated.HasStatements() {
		return client.DeleteResourcePolicy(ctx, hash)
	}
	return client.PutResourcePolicy(ctx, updated, hash, true)
}

// DeleteProtectedDatabase removes protection and deletes the database.
// Freshly removed deny statements can still be cached by the catalog service;
// an access denial is retried exactly once after a short backoff before
// propagating.
func (m *Manager) DeleteProtectedDatabase(ctx context.Context, client clients.CatalogDatabaseClient, db types.Database) error {
	if err := m.RemoveDeletionProtection(ctx, client, db); err != nil {
		return err
	}
	err := client.DeleteDatabaseIfPresent(ctx, db.Name)
	var denied *clients.AccessDeniedError
	if !errors.As(err, &denied) {
		return err
	}
	m.logger.Warn("delete denied, retrying after protection propagation",
		zap.String("database", string(db.Name)))
	m.sleep(propagationBackoff)
	return client.DeleteDatabaseIfPresent(ctx, db.Name)
}

func readResourcePolicy(ctx context.Context, client clients.CatalogDatabaseClient) (policy.Document, string, error) {
	current, err := client.GetResourcePolicy(ctx)
	if err != nil {
		if errors.Is(err, clients.ErrNoPolicy) {
			return policy.NewDocument(), "", nil
		}
		return policy.Document{}, "", err
	}
	return current.Document, current.Hash, nil
}

func appendUnique(list policy.StringList, value string) policy.StringList {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}
