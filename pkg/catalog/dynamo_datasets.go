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

// DynamoDatasets is the DynamoDB-backed DatasetStore. The table is keyed on
// the dataset id; permission writes are conditioned on the exact stored set.
type DynamoDatasets struct {
	api   DynamoAPI
	table string
}

func NewDynamoDatasets(api DynamoAPI, table string) *DynamoDatasets {
	return &DynamoDatasets{api: api, table: table}
}

type datasetRecord struct {
	ID           string             `dynamodbav:"id"`
	Hub          string             `dynamodbav:"hub"`
	OwnerAccount string             `dynamodbav:"owner_account_id"`
	Permissions  []permissionRecord `dynamodbav:"permissions"`
	Upstream     []string           `dynamodbav:"upstream,omitempty"`
	FriendlyName string             `dynamodbav:"friendly_name,omitempty"`
	Description  string             `dynamodbav:"description,omitempty"`
	Labels       []string           `dynamodbav:"labels,omitempty"`
	CreatedAt    time.Time          `dynamodbav:"created_at"`
	UpdatedAt    time.Time          `dynamodbav:"updated_at"`
}

type permissionRecord struct {
	AccountID string `dynamodbav:"account_id"`
	Stage     string `dynamodbav:"stage"`
	Region    string `dynamodbav:"region"`
	SyncType  string `dynamodbav:"sync_type"`
}

func toDatasetRecord(d types.Dataset) datasetRecord {
	record := datasetRecord{
		ID:           string(d.ID),
		Hub:          string(d.Hub),
		OwnerAccount: string(d.OwnerAccountID),
		Permissions:  toPermissionRecords(d.Permissions),
		FriendlyName: d.FriendlyName,
		Description:  d.Description,
		Labels:       d.Labels,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	for _, upstream := range d.Upstream {
		record.Upstream = append(record.Upstream, string(upstream))
	}
	return record
}

func toPermissionRecords(permissions []types.Permission) []permissionRecord {
	records := make([]permissionRecord, 0, len(permissions))
	for _, p := range permissions {
		records = append(records, permissionRecord{
			AccountID: string(p.AccountID),
			Stage:     string(p.Stage),
			Region:    string(p.Region),
			SyncType:  string(p.SyncType),
		})
	}
	return records
}

func (r datasetRecord) toDataset() types.Dataset {
	dataset := types.Dataset{
		ID:             types.DatasetID(r.ID),
		Hub:            types.Hub(r.Hub),
		OwnerAccountID: types.AccountID(r.OwnerAccount),
		FriendlyName:   r.FriendlyName,
		Description:    r.Description,
		Labels:         r.Labels,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	for _, p := range r.Permissions {
		dataset.Permissions = append(dataset.Permissions, types.Permission{
			AccountID: types.AccountID(p.AccountID),
			Stage:     types.Stage(p.Stage),
			Region:    types.Region(p.Region),
			SyncType:  types.SyncType(p.SyncType),
		})
	}
	for _, upstream := range r.Upstream {
		dataset.Upstream = append(dataset.Upstream, types.DatasetID(upstream))
	}
	return dataset
}

func datasetKey(id types.DatasetID) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"id": &ddbtypes.AttributeValueMemberS{Value: string(id)},
	}
}

func (s *DynamoDatasets) Get(ctx context.Context, id types.DatasetID) (types.Dataset, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            datasetKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return types.Dataset{}, err
	}
	if len(out.Item) == 0 {
		return types.Dataset{}, &DatasetNotFoundError{ID: id}
	}
	var record datasetRecord
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return types.Dataset{}, err
	}
	return record.toDataset(), nil
}

func (s *DynamoDatasets) Create(ctx context.Context, dataset types.Dataset) error {
	types.SortPermissions(dataset.Permissions)
	item, err := attributevalue.MarshalMap(toDatasetRecord(dataset))
	if err != nil {
		return err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if isConditionalCheckFailed(err) {
		return &DatasetAlreadyExistsError{ID: dataset.ID}
	}
	return err
}

func (s *DynamoDatasets) Delete(ctx context.Context, id types.DatasetID) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 datasetKey(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if isConditionalCheckFailed(err) {
		return &DatasetNotFoundError{ID: id}
	}
	return err
}

func (s *DynamoDatasets) List(ctx context.Context, filter DatasetFilter, cursor Cursor, limit int) ([]types.Dataset, Cursor, error) {
	startKey, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	input := &dynamodb.ScanInput{
		TableName:         aws.String(s.table),
		ExclusiveStartKey: startKey,
		Limit:             scanLimit(limit),
	}
	applyDatasetFilter(input, filter)

	out, err := s.api.Scan(ctx, input)
	if err != nil {
		return nil, "", err
	}
	datasets := make([]types.Dataset, 0, len(out.Items))
	for _, item := range out.Items {
		var record datasetRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, "", err
		}
		datasets = append(datasets, record.toDataset())
	}
	next, err := encodeCursor(out.LastEvaluatedKey)
	if err != nil {
		return nil, "", err
	}
	return datasets, next, nil
}

func applyDatasetFilter(input *dynamodb.ScanInput, filter DatasetFilter) {
	expr := ""
	values := map[string]ddbtypes.AttributeValue{}
	if filter.Hub != "" {
		expr = "hub = :hub"
		values[":hub"] = &ddbtypes.AttributeValueMemberS{Value: string(filter.Hub)}
	}
	if filter.Owner != "" {
		if expr != "" {
			expr += " AND "
		}
		expr += "owner_account_id = :owner"
		values[":owner"] = &ddbtypes.AttributeValueMemberS{Value: string(filter.Owner)}
	}
	if expr != "" {
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeValues = values
	}
}

// Update reads the dataset, applies the setters and writes the whole record
// back conditioned on the record still existing. Field-level races are
// acceptable here; permission changes must go through SetPermissions.
func (s *DynamoDatasets) Update(ctx context.Context, id types.DatasetID, updates ...DatasetUpdate) (types.Dataset, error) {
	dataset, err := s.Get(ctx, id)
	if err != nil {
		return types.Dataset{}, err
	}
	for _, update := range updates {
		update(&dataset)
	}
	dataset.UpdatedAt = time.Now().UTC()
	item, err := attributevalue.MarshalMap(toDatasetRecord(dataset))
	if err != nil {
		return types.Dataset{}, err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if isConditionalCheckFailed(err) {
		return types.Dataset{}, &DatasetNotFoundError{ID: id}
	}
	if err != nil {
		return types.Dataset{}, err
	}
	return dataset, nil
}

// SetPermissions writes the new set conditioned on the stored set matching
// current exactly. Both sets are written and compared in canonical order, so
// equal sets always produce equal attribute values.
func (s *DynamoDatasets) SetPermissions(ctx context.Context, id types.DatasetID, current, updated []types.Permission) (types.Dataset, error) {
	dataset, err := s.Get(ctx, id)
	if err != nil {
		return types.Dataset{}, err
	}

	currentSorted := append([]types.Permission(nil), current...)
	types.SortPermissions(currentSorted)
	updatedSorted := append([]types.Permission(nil), updated...)
	types.SortPermissions(updatedSorted)

	currentValue, err := attributevalue.Marshal(toPermissionRecords(currentSorted))
	if err != nil {
		return types.Dataset{}, err
	}

	dataset.Permissions = updatedSorted
	dataset.UpdatedAt = time.Now().UTC()
	item, err := attributevalue.MarshalMap(toDatasetRecord(dataset))
	if err != nil {
		return types.Dataset{}, err
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id) AND #permissions = :current"),
		ExpressionAttributeNames: map[string]string{
			"#permissions": "permissions",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":current": currentValue,
		},
	})
	if isConditionalCheckFailed(err) {
		return types.Dataset{}, &InconsistentUpdateError{ID: id}
	}
	if err != nil {
		return types.Dataset{}, err
	}
	return dataset, nil
}
