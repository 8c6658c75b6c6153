// Package dynamo stores noodm snapshots in a DynamoDB table, one item per
// database name. The snapshot is BSON encoded into a binary attribute.
package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/arthur-debert/noodm/noodm/storage"
	"github.com/arthur-debert/noodm/types"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// Client is the subset of the DynamoDB API the adapter uses
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// snapshotItem is the stored item. name is the partition key.
type snapshotItem struct {
	Name      string `dynamodbav:"name"`
	Ticket    uint64 `dynamodbav:"ticket"`
	Body      []byte `dynamodbav:"body"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// Option is a function that modifies Adapter configuration
type Option func(*Adapter)

// WithTimeFunc sets a custom time function for testing
func WithTimeFunc(fn func() time.Time) Option {
	return func(a *Adapter) {
		a.timeFunc = fn
	}
}

// WithIDGenerator replaces the default slug id generator
func WithIDGenerator(gen storage.IDGenerator) Option {
	return func(a *Adapter) {
		a.idGen = gen
	}
}

// WithLogger sets the logger used for write diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// Adapter implements storage.Adapter over a DynamoDB table
type Adapter struct {
	client   Client
	table    string
	name     string
	timeFunc func() time.Time
	idGen    storage.IDGenerator
	logger   *zap.Logger
	seq      storage.Sequencer
}

// New creates an adapter storing the database called name in table
func New(client Client, table, name string, opts ...Option) *Adapter {
	a := &Adapter{
		client:   client,
		table:    table,
		name:     name,
		timeFunc: time.Now,
		idGen:    storage.SlugID,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewFromEnv builds a DynamoDB client from the default AWS configuration chain
// (environment, shared config, instance role)
func NewFromEnv(ctx context.Context, table, name string, opts ...Option) (*Adapter, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return New(dynamodb.NewFromConfig(cfg), table, name, opts...), nil
}

func (a *Adapter) key() map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"name": &ddbtypes.AttributeValueMemberS{Value: a.name},
	}
}

// Serialize implements storage.Adapter.Serialize
func (a *Adapter) Serialize(ctx context.Context, snap *storage.Snapshot) error {
	ticket := a.seq.Reserve()
	now := a.timeFunc()

	body, err := storage.EncodeBSON(snap, now)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	skipped, err := a.seq.Write(ticket, func() error {
		item, err := attributevalue.MarshalMap(snapshotItem{
			Name:      a.name,
			Ticket:    ticket,
			Body:      body,
			UpdatedAt: now.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal item: %w", err)
		}
		_, err = a.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(a.table),
			Item:      item,
		})
		if err != nil {
			return fmt.Errorf("failed to put snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.logger.Debug("dynamodb snapshot stored",
		zap.String("table", a.table),
		zap.String("name", a.name),
		zap.Uint64("ticket", ticket),
		zap.Bool("skipped", skipped))
	return nil
}

// Deserialize implements storage.Adapter.Deserialize
func (a *Adapter) Deserialize(ctx context.Context) (*storage.Snapshot, error) {
	out, err := a.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(a.table),
		Key:            a.key(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var item snapshotItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	if len(item.Body) == 0 {
		return nil, nil
	}
	return storage.DecodeBSON(item.Body)
}

// Drop deletes the stored snapshot
func (a *Adapter) Drop(ctx context.Context) error {
	_, err := a.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(a.table),
		Key:       a.key(),
	})
	return err
}

// GenerateID implements storage.Adapter.GenerateID
func (a *Adapter) GenerateID(doc types.Document) (string, error) {
	return a.idGen(doc)
}

// Transformers implements storage.Adapter.Transformers. BSON carries dates
// and binary natively.
func (a *Adapter) Transformers() storage.Transformers {
	return nil
}

// Constraints implements storage.Adapter.Constraints
func (a *Adapter) Constraints() map[string][]types.Validator {
	return nil
}
