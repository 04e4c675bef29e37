package catalog

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"datahub/pkg/types"
)

// DynamoLocks is the DynamoDB-backed LockStore. A conditional put on the lock
// id gives the at-most-one-live-lock guarantee.
type DynamoLocks struct {
	api   DynamoAPI
	table string
}

func NewDynamoLocks(api DynamoAPI, table string) *DynamoLocks {
	return &DynamoLocks{api: api, table: table}
}

type lockRecord struct {
	ID         string            `dynamodbav:"lock_id"`
	Scope      string            `dynamodbav:"scope"`
	Data       map[string]string `dynamodbav:"data,omitempty"`
	RequestID  string            `dynamodbav:"request_id"`
	AcquiredAt time.Time         `dynamodbav:"acquired_at"`
}

func toLockRecord(l types.Lock) lockRecord {
	return lockRecord{
		ID:         l.ID,
		Scope:      string(l.Scope),
		Data:       l.Data,
		RequestID:  l.RequestID,
		AcquiredAt: l.AcquiredAt,
	}
}

func (r lockRecord) toLock() types.Lock {
	return types.Lock{
		ID:         r.ID,
		Scope:      types.LockScope(r.Scope),
		Data:       r.Data,
		RequestID:  r.RequestID,
		AcquiredAt: r.AcquiredAt,
	}
}

func lockKey(id string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"lock_id": &ddbtypes.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoLocks) Get(ctx context.Context, id string) (types.Lock, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            lockKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return types.Lock{}, err
	}
	if len(out.Item) == 0 {
		return types.Lock{}, &LockNotFoundError{ID: id}
	}
	var record lockRecord
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return types.Lock{}, err
	}
	return record.toLock(), nil
}

func (s *DynamoLocks) Create(ctx context.Context, lock types.Lock) error {
	item, err := attributevalue.MarshalMap(toLockRecord(lock))
	if err != nil {
		return err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(lock_id)"),
	})
	if isConditionalCheckFailed(err) {
		return &LockAlreadyExistsError{ID: lock.ID}
	}
	return err
}

func (s *DynamoLocks) Delete(ctx context.Context, lock types.Lock) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 lockKey(lock.ID),
		ConditionExpression: aws.String("attribute_exists(lock_id)"),
	})
	if isConditionalCheckFailed(err) {
		return &LockNotFoundError{ID: lock.ID}
	}
	return err
}

func (s *DynamoLocks) List(ctx context.Context) ([]types.Lock, error) {
	var locks []types.Lock
	var startKey map[string]ddbtypes.AttributeValue
	for {
		out, err := s.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			var record lockRecord
			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				return nil, err
			}
			locks = append(locks, record.toLock())
		}
		if len(out.LastEvaluatedKey) == 0 {
			return locks, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
