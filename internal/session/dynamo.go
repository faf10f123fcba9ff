package session

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStorage.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// dynamoRecord is one stored key. The partition key is the storage key.
type dynamoRecord struct {
	PK        string    `dynamodbav:"PK"`
	Payload   string    `dynamodbav:"payload"`
	UpdatedAt time.Time `dynamodbav:"updatedAt"`
}

// DynamoStorage keeps each key as an item in a table whose partition key
// attribute is PK.
type DynamoStorage struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

var _ Storage = (*DynamoStorage)(nil)

// NewDynamoStorage creates a DynamoStorage for the given table.
func NewDynamoStorage(client DynamoAPI, tableName string) *DynamoStorage {
	return &DynamoStorage{client: client, tableName: tableName, now: time.Now}
}

func (s *DynamoStorage) Load(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem PK=%s: %w", key, err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var rec dynamoRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal PK=%s: %w", key, err)
	}
	return []byte(rec.Payload), nil
}

func (s *DynamoStorage) Save(ctx context.Context, key string, data []byte) error {
	item, err := attributevalue.MarshalMap(dynamoRecord{
		PK:        key,
		Payload:   string(data),
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s: %w", key, err)
	}
	return nil
}
