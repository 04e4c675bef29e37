// Package clientstest provides in-memory fakes of the client contracts for
// tests. The fakes enforce the same conditional-write and typed-error
// semantics the contracts promise, so lifecycle tests exercise the real
// failure paths.
package clientstest

import (
	"context"
	"fmt"
	"sync"

	"datahub/pkg/clients"
	"datahub/pkg/policy"
	"datahub/pkg/types"
)

// FakeBucket is one bucket's state inside a FakeBucketClient.
type FakeBucket struct {
	Name    string
	ARN     types.ARN
	KeyARN  types.ARN
	Tags    map[string]string
	Policy  *policy.Document
	Hash    string
	Objects int
}

// FakeBucketClient implements clients.BucketClient for one account and
// region.
type FakeBucketClient struct {
	mu      sync.Mutex
	account types.AccountID
	region  types.Region
	rev     int

	Buckets map[string]*FakeBucket
	// SetPolicyCalls records every SetBucketPolicy document in order.
	SetPolicyCalls []policy.Document
	// FailSetPolicy fails the next SetBucketPolicy call with this error.
	FailSetPolicy error
}

func NewFakeBucketClient(account types.AccountID, region types.Region) *FakeBucketClient {
	return &FakeBucketClient{account: account, region: region, Buckets: make(map[string]*FakeBucket)}
}

func (f *FakeBucketClient) BucketExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Buckets[name]
	return ok, nil
}

func (f *FakeBucketClient) CreateEncryptedBucket(_ context.Context, name string, keyARN types.ARN, tags map[string]string) (types.ARN, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Buckets[name]; ok {
		return "", &clients.BucketAlreadyExistsError{Bucket: name}
	}
	arn := types.ARN("arn:aws:s3:::" + name)
	f.Buckets[name] = &FakeBucket{Name: name, ARN: arn, KeyARN: keyARN, Tags: tags}
	return arn, nil
}

func (f *FakeBucketClient) DeleteBucket(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.Buckets[name]
	if !ok {
		return &clients.BucketNotFoundError{Bucket: name}
	}
	if bucket.Objects > 0 {
		return &clients.BucketNotEmptyError{Bucket: name}
	}
	delete(f.Buckets, name)
	return nil
}

func (f *FakeBucketClient) GetBucketPolicy(_ context.Context, name string) (policy.VersionedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.Buckets[name]
	if !ok {
		return policy.VersionedDocument{}, &clients.BucketNotFoundError{Bucket: name}
	}
	if bucket.Policy == nil {
		return policy.VersionedDocument{}, clients.ErrNoPolicy
	}
	return policy.VersionedDocument{Document: *bucket.Policy, Hash: bucket.Hash}, nil
}

func (f *FakeBucketClient) SetBucketPolicy(_ context.Context, name string, doc policy.Document, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSetPolicy != nil {
		err := f.FailSetPolicy
		f.FailSetPolicy = nil
		return err
	}
	bucket, ok := f.Buckets[name]
	if !ok {
		return &clients.BucketNotFoundError{Bucket: name}
	}
	if hash != "" && hash != bucket.Hash {
		return &clients.PolicyConflictError{Resource: name}
	}
	f.rev++
	copied := doc
	bucket.Policy = &copied
	bucket.Hash = fmt.Sprintf("rev-%d", f.rev)
	f.SetPolicyCalls = append(f.SetPolicyCalls, doc)
	return nil
}

func (f *FakeBucketClient) DeleteBucketPolicy(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.Buckets[name]
	if !ok {
		return &clients.BucketNotFoundError{Bucket: name}
	}
	bucket.Policy = nil
	bucket.Hash = ""
	return nil
}

// FakeDatabase is one database's state inside a FakeCatalogDatabaseClient.
type FakeDatabase struct {
	Name           types.DatabaseName
	IsResourceLink bool
	SourceAccount  types.AccountID
}

// FakeCatalogDatabaseClient implements clients.CatalogDatabaseClient for one
// account and region.
type FakeCatalogDatabaseClient struct {
	mu      sync.Mutex
	account types.AccountID
	region  types.Region
	rev     int

	Databases map[types.DatabaseName]*FakeDatabase
	Policy    *policy.Document
	Hash      string
	// DenyDeletes makes the next n DeleteDatabaseIfPresent calls fail with
	// AccessDeniedError, simulating protection-removal propagation lag.
	DenyDeletes int
	// DeleteCalls counts DeleteDatabaseIfPresent invocations.
	DeleteCalls int
}

func NewFakeCatalogDatabaseClient(account types.AccountID, region types.Region) *FakeCatalogDatabaseClient {
	return &FakeCatalogDatabaseClient{
		account:   account,
		region:    region,
		Databases: make(map[types.DatabaseName]*FakeDatabase),
	}
}

func (f *FakeCatalogDatabaseClient) DatabaseExists(_ context.Context, name types.DatabaseName) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Databases[name]
	return ok, nil
}

func (f *FakeCatalogDatabaseClient) DescribeDatabase(_ context.Context, name types.DatabaseName) (clients.DatabaseDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	db, ok := f.Databases[name]
	if !ok {
		return clients.DatabaseDescription{}, &clients.DatabaseNotFoundError{Name: name}
	}
	return clients.DatabaseDescription{
		Name:           db.Name,
		IsResourceLink: db.IsResourceLink,
		SourceAccount:  db.SourceAccount,
	}, nil
}

func (f *FakeCatalogDatabaseClient) CreateDatabase(_ context.Context, name types.DatabaseName) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Databases[name]; ok {
		return &clients.DatabaseAlreadyExistsError{Name: name}
	}
	f.Databases[name] = &FakeDatabase{Name: name}
	return nil
}

func (f *FakeCatalogDatabaseClient) DeleteDatabaseIfPresent(_ context.Context, name types.DatabaseName) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteCalls++
	if f.DenyDeletes > 0 {
		f.DenyDeletes--
		return &clients.AccessDeniedError{Op: fmt.Sprintf("delete database %s", name)}
	}
	delete(f.Databases, name)
	return nil
}

func (f *FakeCatalogDatabaseClient) CreateResourceLink(_ context.Context, name types.DatabaseName, source types.AccountID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Databases[name]; ok {
		return &clients.DatabaseAlreadyExistsError{Name: name}
	}
	f.Databases[name] = &FakeDatabase{Name: name, IsResourceLink: true, SourceAccount: source}
	return nil
}

func (f *FakeCatalogDatabaseClient) GetResourcePolicy(_ context.Context) (policy.VersionedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Policy == nil {
		return policy.VersionedDocument{}, clients.ErrNoPolicy
	}
	return policy.VersionedDocument{Document: *f.Policy, Hash: f.Hash}, nil
}

func (f *FakeCatalogDatabaseClient) PutResourcePolicy(_ context.Context, doc policy.Document, hash string, mustExist bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mustExist && f.Policy == nil {
		return &clients.PolicyConflictError{Resource: string(f.account)}
	}
	if hash != f.Hash {
		return &clients.PolicyConflictError{Resource: string(f.account)}
	}
	f.rev++
	copied := doc
	f.Policy = &copied
	f.Hash = fmt.Sprintf("rev-%d", f.rev)
	return nil
}

func (f *FakeCatalogDatabaseClient) DeleteResourcePolicy(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hash != f.Hash {
		return &clients.PolicyConflictError{Resource: string(f.account)}
	}
	f.Policy = nil
	f.Hash = ""
	return nil
}

// FakeKeyClient implements clients.KeyClient for one account and region.
type FakeKeyClient struct {
	mu      sync.Mutex
	account types.AccountID
	region  types.Region
	serial  int

	Aliases  map[string]types.Key
	Policies map[string]policy.Document
	// SetPolicyCalls counts SetKeyPolicy invocations.
	SetPolicyCalls int
}

func NewFakeKeyClient(account types.AccountID, region types.Region) *FakeKeyClient {
	return &FakeKeyClient{
		account:  account,
		region:   region,
		Aliases:  make(map[string]types.Key),
		Policies: make(map[string]policy.Document),
	}
}

func (f *FakeKeyClient) GetKeyByAlias(_ context.Context, alias string) (types.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.Aliases[alias]
	if !ok {
		return types.Key{}, &clients.KeyNotFoundError{Alias: alias}
	}
	return key, nil
}

func (f *FakeKeyClient) CreateKey(_ context.Context, doc policy.Document, _ string, _ map[string]string) (types.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serial++
	id := fmt.Sprintf("key-%d", f.serial)
	key := types.Key{
		ID:     id,
		ARN:    types.BuildARN("aws", "kms", f.region, f.account, "key/"+id),
		Region: f.region,
	}
	f.Policies[id] = doc
	return key, nil
}

func (f *FakeKeyClient) CreateAlias(_ context.Context, alias, keyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := types.Key{
		ID:     keyID,
		ARN:    types.BuildARN("aws", "kms", f.region, f.account, "key/"+keyID),
		Region: f.region,
	}
	f.Aliases[alias] = key
	return nil
}

func (f *FakeKeyClient) SetKeyPolicy(_ context.Context, keyID string, doc policy.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Policies[keyID] = doc
	f.SetPolicyCalls++
	return nil
}

// FakeTopic is one topic's state inside a FakeTopicClient.
type FakeTopic struct {
	Name   string
	ARN    types.ARN
	Policy *policy.Document
}

// PublishedMessage records one Publish call.
type PublishedMessage struct {
	Topic   types.ARN
	Subject string
	Message string
}

// FakeTopicClient implements clients.TopicClient for one account and region.
type FakeTopicClient struct {
	mu      sync.Mutex
	account types.AccountID
	region  types.Region

	Topics    map[types.ARN]*FakeTopic
	Published []PublishedMessage
	// FailSetPolicy fails the next SetTopicPolicy call with this error.
	FailSetPolicy error
}

func NewFakeTopicClient(account types.AccountID, region types.Region) *FakeTopicClient {
	return &FakeTopicClient{account: account, region: region, Topics: make(map[types.ARN]*FakeTopic)}
}

func (f *FakeTopicClient) CreateTopic(_ context.Context, name string, _ types.ARN, _ map[string]string) (types.ARN, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	arn := types.BuildARN("aws", "sns", f.region, f.account, name)
	f.Topics[arn] = &FakeTopic{Name: name, ARN: arn}
	return arn, nil
}

func (f *FakeTopicClient) DeleteTopic(_ context.Context, arn types.ARN) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Topics[arn]; !ok {
		return &clients.TopicNotFoundError{ARN: arn}
	}
	delete(f.Topics, arn)
	return nil
}

func (f *FakeTopicClient) GetTopicPolicy(_ context.Context, arn types.ARN) (policy.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	topic, ok := f.Topics[arn]
	if !ok {
		return policy.Document{}, &clients.TopicNotFoundError{ARN: arn}
	}
	if topic.Policy == nil {
		return policy.Document{}, clients.ErrNoPolicy
	}
	return *topic.Policy, nil
}

func (f *FakeTopicClient) SetTopicPolicy(_ context.Context, arn types.ARN, doc policy.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSetPolicy != nil {
		err := f.FailSetPolicy
		f.FailSetPolicy = nil
		return err
	}
	topic, ok := f.Topics[arn]
	if !ok {
		return &clients.TopicNotFoundError{ARN: arn}
	}
	copied := doc
	topic.Policy = &copied
	return nil
}

func (f *FakeTopicClient) Publish(_ context.Context, arn types.ARN, subject, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = append(f.Published, PublishedMessage{Topic: arn, Subject: subject, Message: message})
	return nil
}

// FakeFineGrainedClient implements clients.FineGrainedClient.
type FakeFineGrainedClient struct {
	mu sync.Mutex

	Grants map[string]bool
	// FailRevoke fails the next RevokeReadAccess call with this error.
	FailRevoke error
}

func NewFakeFineGrainedClient() *FakeFineGrainedClient {
	return &FakeFineGrainedClient{Grants: make(map[string]bool)}
}

func grantKey(principal types.AccountID, db types.Database) string {
	return fmt.Sprintf("%s/%s/%s", principal, db.AccountID, db.Name)
}

func (f *FakeFineGrainedClient) GrantReadAccess(_ context.Context, principal types.AccountID, db types.Database) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Grants[grantKey(principal, db)] = true
	return nil
}

func (f *FakeFineGrainedClient) RevokeReadAccess(_ context.Context, principal types.AccountID, db types.Database) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailRevoke != nil {
		err := f.FailRevoke
		f.FailRevoke = nil
		return err
	}
	delete(f.Grants, grantKey(principal, db))
	return nil
}

// FakeFactory hands out memoized fakes per account and region, so tests can
// seed and inspect the same instances the code under test talks to.
type FakeFactory struct {
	mu          sync.Mutex
	buckets     map[string]*FakeBucketClient
	databases   map[string]*FakeCatalogDatabaseClient
	keys        map[string]*FakeKeyClient
	topics      map[string]*FakeTopicClient
	fineGrained map[string]*FakeFineGrainedClient
}

func NewFakeFactory() *FakeFactory {
	return &FakeFactory{
		buckets:     make(map[string]*FakeBucketClient),
		databases:   make(map[string]*FakeCatalogDatabaseClient),
		keys:        make(map[string]*FakeKeyClient),
		topics:      make(map[string]*FakeTopicClient),
		fineGrained: make(map[string]*FakeFineGrainedClient),
	}
}

func scope(account types.AccountID, region types.Region) string {
	return fmt.Sprintf("%s/%s", account, region)
}

func (f *FakeFactory) Bucket(account types.AccountID, region types.Region) clients.BucketClient {
	return f.BucketFake(account, region)
}

func (f *FakeFactory) BucketFake(account types.AccountID, region types.Region) *FakeBucketClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := scope(account, region)
	if _, ok := f.buckets[key]; !ok {
		f.buckets[key] = NewFakeBucketClient(account, region)
	}
	return f.buckets[key]
}

func (f *FakeFactory) CatalogDatabase(account types.AccountID, region types.Region) clients.CatalogDatabaseClient {
	return f.CatalogDatabaseFake(account, region)
}

func (f *FakeFactory) CatalogDatabaseFake(account types.AccountID, region types.Region) *FakeCatalogDatabaseClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := scope(account, region)
	if _, ok := f.databases[key]; !ok {
		f.databases[key] = NewFakeCatalogDatabaseClient(account, region)
	}
	return f.databases[key]
}

func (f *FakeFactory) Key(account types.AccountID, region types.Region) clients.KeyClient {
	return f.KeyFake(account, region)
}

func (f *FakeFactory) KeyFake(account types.AccountID, region types.Region) *FakeKeyClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := scope(account, region)
	if _, ok := f.keys[key]; !ok {
		f.keys[key] = NewFakeKeyClient(account, region)
	}
	return f.keys[key]
}

func (f *FakeFactory) Topic(account types.AccountID, region types.Region) clients.TopicClient {
	return f.TopicFake(account, region)
}

func (f *FakeFactory) TopicFake(account types.AccountID, region types.Region) *FakeTopicClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := scope(account, region)
	if _, ok := f.topics[key]; !ok {
		f.topics[key] = NewFakeTopicClient(account, region)
	}
	return f.topics[key]
}

func (f *FakeFactory) FineGrained(account types.AccountID, region types.Region) clients.FineGrainedClient {
	return f.FineGrainedFake(account, region)
}

func (f *FakeFactory) FineGrainedFake(account types.AccountID, region types.Region) *FakeFineGrainedClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := scope(account, region)
	if _, ok := f.fineGrained[key]; !ok {
		f.fineGrained[key] = NewFakeFineGrainedClient()
	}
	return f.fineGrained[key]
}

// FakeAccountResolver implements clients.AccountResolver over a fixed map.
type FakeAccountResolver struct {
	Accounts map[types.AccountID]clients.Account
}

func NewFakeAccountResolver(accounts ...clients.Account) *FakeAccountResolver {
	resolver := &FakeAccountResolver{Accounts: make(map[types.AccountID]clients.Account)}
	for _, account := range accounts {
		resolver.Accounts[account.ID] = account
	}
	return resolver
}

func (f *FakeAccountResolver) Get(_ context.Context, id types.AccountID) (clients.Account, error) {
	account, ok := f.Accounts[id]
	if !ok {
		return clients.Account{}, &clients.AccountNotFoundError{ID: id}
	}
	return account, nil
}

// FakeRoleAssumer implements clients.RoleAssumer. Each target account maps to
// a catalog database fake; Errors overrides per-account with a failure.
type FakeRoleAssumer struct {
	Clients map[types.AccountID]*FakeCatalogDatabaseClient
	Errors  map[types.AccountID]error
}

func NewFakeRoleAssumer() *FakeRoleAssumer {
	return &FakeRoleAssumer{
		Clients: make(map[types.AccountID]*FakeCatalogDatabaseClient),
		Errors:  make(map[types.AccountID]error),
	}
}

func (f *FakeRoleAssumer) AssumeMetadataRole(_ context.Context, account clients.Account, region types.Region) (clients.CatalogDatabaseClient, error) {
	if err, ok := f.Errors[account.ID]; ok {
		return nil, err
	}
	client, ok := f.Clients[account.ID]
	if !ok {
		client = NewFakeCatalogDatabaseClient(account.ID, region)
		f.Clients[account.ID] = client
	}
	return client, nil
}

var (
	_ clients.Factory         = (*FakeFactory)(nil)
	_ clients.AccountResolver = (*FakeAccountResolver)(nil)
	_ clients.RoleAssumer     = (*FakeRoleAssumer)(nil)
)
