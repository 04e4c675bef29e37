package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the slice of the DynamoDB client the stores use. The real
// *dynamodb.Client satisfies it; tests substitute fakes.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// TableNames holds the three control-plane tables.
type TableNames struct {
	Datasets  string `yaml:"datasets"`
	Resources string `yaml:"resources"`
	Locks     string `yaml:"locks"`
}

func isConditionalCheckFailed(err error) bool {
	var conditionFailed *ddbtypes.ConditionalCheckFailedException
	return errors.As(err, &conditionFailed)
}

// Cursors carry the last evaluated key across requests. All key attributes in
// the control-plane tables are strings, so the token is a base64 JSON object
// of attribute name to string value.
func encodeCursor(lastKey map[string]ddbtypes.AttributeValue) (Cursor, error) {
	if len(lastKey) == 0 {
		return "", nil
	}
	plain := make(map[string]string, len(lastKey))
	for name, value := range lastKey {
		s, ok := value.(*ddbtypes.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("cursor attribute %s is not a string", name)
		}
		plain[name] = s.Value
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return "", err
	}
	return Cursor(base64.RawURLEncoding.EncodeToString(raw)), nil
}

func decodeCursor(cursor Cursor) (map[string]ddbtypes.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(string(cursor))
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	var plain map[string]string
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	key := make(map[string]ddbtypes.AttributeValue, len(plain))
	for name, value := range plain {
		key[name] = &ddbtypes.AttributeValueMemberS{Value: value}
	}
	return key, nil
}

func scanLimit(limit int) *int32 {
	if limit <= 0 {
		return nil
	}
	n := int32(limit)
	return &n
}
