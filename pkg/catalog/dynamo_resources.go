package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"datahub/pkg/types"
)

// DynamoResources is the DynamoDB-backed ResourceStore. The table is keyed on
// the dataset id with a type_stage_region sort key, so all resources of one
// dataset live in one partition.
type DynamoResources struct {
	api   DynamoAPI
	table string
}

func NewDynamoResources(api DynamoAPI, table string) *DynamoResources {
	return &DynamoResources{api: api, table: table}
}

type resourceRecord struct {
	DatasetID       string    `dynamodbav:"dataset_id"`
	ResourceKey     string    `dynamodbav:"resource_key"`
	Type            string    `dynamodbav:"type"`
	Stage           string    `dynamodbav:"stage"`
	Region          string    `dynamodbav:"region"`
	Hub             string    `dynamodbav:"hub"`
	ResourceAccount string    `dynamodbav:"resource_account_id"`
	OwnerAccount    string    `dynamodbav:"owner_account_id"`
	ARN             string    `dynamodbav:"arn"`
	KeyARN          string    `dynamodbav:"key_arn,omitempty"`
	TopicARN        string    `dynamodbav:"topic_arn,omitempty"`
	DatabaseName    string    `dynamodbav:"database_name,omitempty"`
	SyncType        string    `dynamodbav:"sync_type,omitempty"`
	CreatedBy       string    `dynamodbav:"created_by,omitempty"`
	CreatedAt       time.Time `dynamodbav:"created_at"`
	UpdatedAt       time.Time `dynamodbav:"updated_at"`
}

func resourceSortKey(typ types.ResourceType, stage types.Stage, region types.Region) string {
	return fmt.Sprintf("%s_%s_%s", typ, stage, region)
}

func toResourceRecord(r types.Resource) resourceRecord {
	return resourceRecord{
		DatasetID:       string(r.DatasetID),
		ResourceKey:     resourceSortKey(r.Type, r.Stage, r.Region),
		Type:            string(r.Type),
		Stage:           string(r.Stage),
		Region:          string(r.Region),
		Hub:             string(r.Hub),
		ResourceAccount: string(r.ResourceAccountID),
		OwnerAccount:    string(r.OwnerAccountID),
		ARN:             string(r.ARN),
		KeyARN:          string(r.KeyARN),
		TopicARN:        string(r.TopicARN),
		DatabaseName:    string(r.DatabaseName),
		SyncType:        string(r.SyncType),
		CreatedBy:       r.CreatedBy,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (r resourceRecord) toResource() types.Resource {
	return types.Resource{
		Type:              types.ResourceType(r.Type),
		DatasetID:         types.DatasetID(r.DatasetID),
		Stage:             types.Stage(r.Stage),
		Region:            types.Region(r.Region),
		Hub:               types.Hub(r.Hub),
		ResourceAccountID: types.AccountID(r.ResourceAccount),
		OwnerAccountID:    types.AccountID(r.OwnerAccount),
		ARN:               types.ARN(r.ARN),
		KeyARN:            types.ARN(r.KeyARN),
		TopicARN:          types.ARN(r.TopicARN),
		DatabaseName:      types.DatabaseName(r.DatabaseName),
		SyncType:          types.SyncType(r.SyncType),
		CreatedBy:         r.CreatedBy,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func resourceItemKey(typ types.ResourceType, dataset types.DatasetID, stage types.Stage, region types.Region) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"dataset_id":   &ddbtypes.AttributeValueMemberS{Value: string(dataset)},
		"resource_key": &ddbtypes.AttributeValueMemberS{Value: resourceSortKey(typ, stage, region)},
	}
}

func (s *DynamoResources) Get(ctx context.Context, typ types.ResourceType, dataset types.DatasetID, stage types.Stage, region types.Region) (types.Resource, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            resourceItemKey(typ, dataset, stage, region),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return types.Resource{}, err
	}
	if len(out.Item) == 0 {
		return types.Resource{}, &ResourceNotFoundError{Type: typ, Dataset: dataset, Stage: stage, Region: region}
	}
	var record resourceRecord
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return types.Resource{}, err
	}
	return record.toResource(), nil
}

func (s *DynamoResources) Exists(ctx context.Context, typ types.ResourceType, dataset types.DatasetID, stage types.Stage, region types.Region) (bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            resourceItemKey(typ, dataset, stage, region),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, err
	}
	return len(out.Item) > 0, nil
}

func (s *DynamoResources) Create(ctx context.Context, resource types.Resource) error {
	item, err := attributevalue.MarshalMap(toResourceRecord(resource))
	if err != nil {
		return err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(dataset_id)"),
	})
	if isConditionalCheckFailed(err) {
		return &ResourceAlreadyExistsError{
			Type: resource.Type, Dataset: resource.DatasetID, Stage: resource.Stage, Region: resource.Region,
		}
	}
	return err
}

func (s *DynamoResources) Delete(ctx context.Context, typ types.ResourceType, dataset types.DatasetID, stage types.Stage, region types.Region) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 resourceItemKey(typ, dataset, stage, region),
		ConditionExpression: aws.String("attribute_exists(dataset_id)"),
	})
	if isConditionalCheckFailed(err) {
		return &ResourceNotFoundError{Type: typ, Dataset: dataset, Stage: stage, Region: region}
	}
	return err
}

// List queries the dataset partition when the filter pins a dataset and falls
// back to a filtered scan otherwise.
func (s *DynamoResources) List(ctx context.Context, filter ResourceFilter, cursor Cursor, limit int) ([]types.Resource, Cursor, error) {
	startKey, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	var items []map[string]ddbtypes.AttributeValue
	var lastKey map[string]ddbtypes.AttributeValue
	if filter.DatasetID != "" {
		out, err := s.api.Query(ctx, s.queryInput(filter, startKey, limit))
		if err != nil {
			return nil, "", err
		}
		items, lastKey = out.Items, out.LastEvaluatedKey
	} else {
		out, err := s.api.Scan(ctx, s.scanInput(filter, startKey, limit))
		if err != nil {
			return nil, "", err
		}
		items, lastKey = out.Items, out.LastEvaluatedKey
	}

	resources := make([]types.Resource, 0, len(items))
	for _, item := range items {
		var record resourceRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, "", err
		}
		resources = append(resources, record.toResource())
	}
	next, err := encodeCursor(lastKey)
	if err != nil {
		return nil, "", err
	}
	return resources, next, nil
}

func (s *DynamoResources) queryInput(filter ResourceFilter, startKey map[string]ddbtypes.AttributeValue, limit int) *dynamodb.QueryInput {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("dataset_id = :dataset"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":dataset": &ddbtypes.AttributeValueMemberS{Value: string(filter.DatasetID)},
		},
		ExclusiveStartKey: startKey,
		Limit:             scanLimit(limit),
	}
	if expr, names, values := resourceFilterExpression(filter); expr != "" {
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
		for name, value := range values {
			input.ExpressionAttributeValues[name] = value
		}
	}
	return input
}

func (s *DynamoResources) scanInput(filter ResourceFilter, startKey map[string]ddbtypes.AttributeValue, limit int) *dynamodb.ScanInput {
	input := &dynamodb.ScanInput{
		TableName:         aws.String(s.table),
		ExclusiveStartKey: startKey,
		Limit:             scanLimit(limit),
	}
	if expr, names, values := resourceFilterExpression(filter); expr != "" {
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}
	return input
}

// type and region are reserved words in filter expressions, so both always go
// through name placeholders.
func resourceFilterExpression(filter ResourceFilter) (string, map[string]string, map[string]ddbtypes.AttributeValue) {
	expr := ""
	names := map[string]string{}
	values := map[string]ddbtypes.AttributeValue{}
	add := func(clause, placeholder, value string) {
		if expr != "" {
			expr += " AND "
		}
		expr += clause
		values[placeholder] = &ddbtypes.AttributeValueMemberS{Value: value}
	}
	if filter.Type != "" {
		names["#type"] = "type"
		add("#type = :type", ":type", string(filter.Type))
	}
	if filter.ResourceAccount != "" {
		add("resource_account_id = :account", ":account", string(filter.ResourceAccount))
	}
	if filter.Region != "" {
		names["#region"] = "region"
		add("#region = :region", ":region", string(filter.Region))
	}
	if filter.Stage != "" {
		add("stage = :stage", ":stage", string(filter.Stage))
	}
	if len(names) == 0 {
		names = nil
	}
	return expr, names, values
}
