package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-async-orderflow/internal/aws"
)

// Single-table key attributes.
const (
	attrPK = "PK"
	attrSK = "SK"
)

const createCondition = "attribute_not_exists(PK)"

// DynamoStore encapsulates operations on the orders table.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewDynamoStore creates a new orders store backed by DynamoDB.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

func keyOf(orderID string) map[string]types.AttributeValue {
	k := Key(orderID)
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: k},
		attrSK: &types.AttributeValueMemberS{Value: k},
	}
}

// CreateIfAbsent issues one PutItem guarded by attribute_not_exists(PK).
// A failed condition means another delivery already stored the order.
func (s *DynamoStore) CreateIfAbsent(ctx context.Context, orderID string, fields map[string]interface{}) (CreateOutcome, error) {
	item, err := attributevalue.MarshalMap(fields)
	if err != nil {
		return 0, fmt.Errorf("marshal order item: %w", err)
	}
	for k, v := range keyOf(orderID) {
		item[k] = v
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(createCondition),
	})
	if err != nil {
		if isConditionFailed(err) {
			return AlreadyExists, nil
		}
		return 0, fmt.Errorf("%w: put item: %w", ErrTransientPersist, err)
	}
	return Created, nil
}

// Get fetches an order by id. Returns ErrNotFound if absent.
func (s *DynamoStore) Get(ctx context.Context, orderID string) (map[string]interface{}, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       keyOf(orderID),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var rec map[string]interface{}
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	delete(rec, attrPK)
	delete(rec, attrSK)
	return rec, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }
