package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vyrodovalexey/integrationgw/internal/config"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

// DynamoDB attribute keys.
const (
	nameAttributeKey = "name"
	idAttributeKey   = "id"
)

// dynamoClient captures the DynamoDB API calls used by DynamoDBStore.
type dynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// dynamoDocument is the stored shape of a configuration document. The
// value list is kept as JSON so that arbitrary nesting survives.
type dynamoDocument struct {
	Name  string `dynamodbav:"name"`
	Value string `dynamodbav:"value"`
}

// dynamoAudit is the stored shape of an audit record.
type dynamoAudit struct {
	ID        string `dynamodbav:"id"`
	Code      string `dynamodbav:"code"`
	Data      string `dynamodbav:"data,omitempty"`
	Result    string `dynamodbav:"result,omitempty"`
	Success   bool   `dynamodbav:"success"`
	RequestID string `dynamodbav:"requestId,omitempty"`
	CreatedAt string `dynamodbav:"createdAt"`
}

// DynamoDBStore keeps documents and audit records in two DynamoDB tables,
// both keyed by a single string hash key ("name" and "id").
type DynamoDBStore struct {
	client             dynamoClient
	configurationTable string
	auditTable         string
	logger             observability.Logger
}

var _ Store = (*DynamoDBStore)(nil)

// NewDynamoDBStore builds a DynamoDB client from the default AWS credential
// chain, or from static keys when both are configured.
func NewDynamoDBStore(ctx context.Context, cfg *config.DynamoDBConfig, logger observability.Logger) (*DynamoDBStore, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	s := newDynamoDBStore(client, cfg.ConfigurationTable, cfg.AuditTable, logger)
	s.logger.Info("dynamodb document store initialized",
		observability.String("region", cfg.Region),
		observability.String("configurationTable", cfg.ConfigurationTable),
		observability.String("auditTable", cfg.AuditTable))

	return s, nil
}

func newDynamoDBStore(client dynamoClient, configurationTable, auditTable string, logger observability.Logger) *DynamoDBStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &DynamoDBStore{
		client:             client,
		configurationTable: configurationTable,
		auditTable:         auditTable,
		logger:             logger.With(observability.Component("docstore.dynamodb")),
	}
}

// FindOne implements Store.
func (s *DynamoDBStore) FindOne(ctx context.Context, name string) (*Document, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.configurationTable),
		Key: map[string]types.AttributeValue{
			nameAttributeKey: &types.AttributeValueMemberS{Value: name},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, handleDynamoError("get", name, err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var item dynamoDocument
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("dynamodb document %s: %w", name, err)
	}

	doc := &Document{Name: name}
	if item.Value != "" {
		if err := json.Unmarshal([]byte(item.Value), &doc.Value); err != nil {
			return nil, fmt.Errorf("dynamodb document %s has invalid value: %w", name, err)
		}
	}
	return doc, nil
}

// PutDocument implements Store.
func (s *DynamoDBStore) PutDocument(ctx context.Context, doc *Document) error {
	raw, err := json.Marshal(valueOrEmpty(doc.Value))
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.Name, err)
	}

	av, err := attributevalue.MarshalMap(dynamoDocument{Name: doc.Name, Value: string(raw)})
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.configurationTable),
		Item:      av,
	})
	if err != nil {
		return handleDynamoError("put", doc.Name, err)
	}
	return nil
}

// InsertAudit implements Store.
func (s *DynamoDBStore) InsertAudit(ctx context.Context, record *AuditRecord) error {
	data, result, err := encodeAuditPayload(record)
	if err != nil {
		return err
	}

	item := dynamoAudit{
		ID:        record.ID,
		Code:      record.Code,
		Success:   record.Success,
		RequestID: record.RequestID,
		CreatedAt: record.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if data != nil {
		item.Data = *data
	}
	if result != nil {
		item.Result = *result
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.auditTable),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(" + idAttributeKey + ")"),
	})
	if err != nil {
		return handleDynamoError("insert audit", record.Code, err)
	}
	return nil
}

// Ping implements Store.
func (s *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.configurationTable),
	})
	if err != nil {
		return handleDynamoError("describe", s.configurationTable, err)
	}
	return nil
}

// Close implements Store.
func (s *DynamoDBStore) Close() error {
	return nil
}

func handleDynamoError(op, key string, err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("dynamodb %s %s: table missing: %w", op, key, err)
	}
	return fmt.Errorf("dynamodb %s %s: %w", op, key, err)
}
