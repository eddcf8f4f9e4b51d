package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	tables      map[string]map[string]map[string]types.AttributeValue
	err         error
	describeErr error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: map[string]map[string]map[string]types.AttributeValue{
		"configurations": {},
		"audits":         {},
	}}
}

func keyOf(item map[string]types.AttributeValue, attr string) string {
	if s, ok := item[attr].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	item := f.tables[*in.TableName][keyOf(in.Key, nameAttributeKey)]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	table := f.tables[*in.TableName]
	key := keyOf(in.Item, nameAttributeKey)
	if key == "" {
		key = keyOf(in.Item, idAttributeKey)
		if _, exists := table[key]; exists && in.ConditionExpression != nil {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	table[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, f.describeErr
}

func TestDynamoDBStore_Documents(t *testing.T) {
	t.Parallel()

	client := newFakeDynamo()
	s := newDynamoDBStore(client, "configurations", "audits", nil)
	ctx := context.Background()

	_, err := s.FindOne(ctx, "IntegrationServices")
	assert.ErrorIs(t, err, ErrNotFound)

	doc := integrationServices()
	require.NoError(t, s.PutDocument(ctx, &doc))

	got, err := s.FindOne(ctx, "IntegrationServices")
	require.NoError(t, err)
	assert.Equal(t, doc.Value, got.Value)

	stored := client.tables["configurations"]["IntegrationServices"]
	assert.Equal(t, "IntegrationServices", keyOf(stored, "name"))
}

func TestDynamoDBStore_InsertAudit(t *testing.T) {
	t.Parallel()

	client := newFakeDynamo()
	s := newDynamoDBStore(client, "configurations", "audits", nil)
	ctx := context.Background()

	record := &AuditRecord{
		ID:        "id-1",
		Code:      "CORREIOS",
		Data:      map[string]any{"address": "x"},
		Result:    []any{1, 2},
		Success:   true,
		RequestID: "req-1",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.InsertAudit(ctx, record))

	var item dynamoAudit
	require.NoError(t, attributevalue.UnmarshalMap(client.tables["audits"]["id-1"], &item))
	assert.Equal(t, "CORREIOS", item.Code)
	assert.JSONEq(t, `{"address":"x"}`, item.Data)
	assert.JSONEq(t, `[1,2]`, item.Result)
	assert.True(t, item.Success)
	assert.Equal(t, "req-1", item.RequestID)
	assert.Equal(t, "2024-05-01T12:00:00Z", item.CreatedAt)

	err := s.InsertAudit(ctx, record)
	var conditional *types.ConditionalCheckFailedException
	assert.True(t, errors.As(err, &conditional))
}

func TestDynamoDBStore_Errors(t *testing.T) {
	t.Parallel()

	client := newFakeDynamo()
	s := newDynamoDBStore(client, "configurations", "audits", nil)
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	client.describeErr = &types.ResourceNotFoundException{}
	assert.ErrorContains(t, s.Ping(ctx), "table missing")

	client.err = errors.New("throttled")
	_, err := s.FindOne(ctx, "IntegrationServices")
	assert.ErrorContains(t, err, "throttled")
	assert.NotErrorIs(t, err, ErrNotFound)

	client.tables["configurations"]["Bad"] = map[string]types.AttributeValue{
		"name":  &types.AttributeValueMemberS{Value: "Bad"},
		"value": &types.AttributeValueMemberS{Value: "{"},
	}
	client.err = nil
	_, err = s.FindOne(ctx, "Bad")
	assert.ErrorContains(t, err, "invalid value")

	assert.NoError(t, s.Close())
}
