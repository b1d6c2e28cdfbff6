package services

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	appConfig "github.com/kendall-kelly/atelier-api/config"
)

const defaultNotificationsTable = "notifications"

// Notification is one outbound email
type Notification struct {
	ToAddress string
	ToName    string
	Subject   string
	Body      string
}

// Validate checks the fields every notifier needs
func (n Notification) Validate() error {
	if _, err := mail.ParseAddress(n.ToAddress); err != nil {
		return newValidationError("to", "a valid recipient address is required")
	}
	if strings.TrimSpace(n.Subject) == "" {
		return newValidationError("subject", "subject is required")
	}
	if strings.TrimSpace(n.Body) == "" {
		return newValidationError("body", "body is required")
	}
	return nil
}

// Notifier delivers notifications. Implementations report every failure;
// callers decide whether a failure matters.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

var notifierInstance Notifier

// GetNotifier returns the global notifier
func GetNotifier() Notifier {
	return notifierInstance
}

// SetNotifier replaces the global notifier (primarily for testing)
func SetNotifier(n Notifier) {
	notifierInstance = n
}

// InitNotifier selects the notifier from configuration: a DynamoDB outbox when a table
// is configured, the log otherwise
func InitNotifier(ctx context.Context, cfg *appConfig.Config) (Notifier, error) {
	if cfg.NotificationsTable == "" {
		log.Printf("[notify] NOTIFICATIONS_TABLE not set, notifications will only be logged")
		notifierInstance = LogNotifier{}
		return notifierInstance, nil
	}

	client, err := newDynamoDBClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	notifierInstance = NewDynamoNotifier(client, cfg.NotificationsTable)
	log.Printf("[notify] DynamoDB outbox enabled table=%s", cfg.NotificationsTable)
	return notifierInstance, nil
}

func newDynamoDBClient(ctx context.Context, cfg *appConfig.Config) (*dynamodb.Client, error) {
	accessKey, secretKey := cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey
	if cfg.DynamoDBEndpoint != "" && accessKey == "" {
		// DynamoDB Local ignores credentials but the SDK still signs requests
		accessKey, secretKey = "local", "local"
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.AWSRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(awsConfig, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	}), nil
}

// DynamoPutter is the subset of the DynamoDB client the outbox needs
type DynamoPutter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type notificationItem struct {
	ID        string `dynamodbav:"id"`
	ToAddress string `dynamodbav:"to_address"`
	ToName    string `dynamodbav:"to_name"`
	Subject   string `dynamodbav:"subject"`
	Body      string `dynamodbav:"body"`
	Status    string `dynamodbav:"status"`
	CreatedAt string `dynamodbav:"created_at"`
}

// DynamoNotifier queues emails in a DynamoDB table drained by the mail sender.
//
// Table requirements:
//   - PK: id (string)
type DynamoNotifier struct {
	ddb       DynamoPutter
	tableName string
}

// NewDynamoNotifier creates an outbox notifier writing to tableName
func NewDynamoNotifier(ddb DynamoPutter, tableName string) *DynamoNotifier {
	if tableName == "" {
		tableName = defaultNotificationsTable
	}
	return &DynamoNotifier{ddb: ddb, tableName: tableName}
}

func (d *DynamoNotifier) Send(ctx context.Context, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	item := notificationItem{
		ID:        uuid.NewString(),
		ToAddress: n.ToAddress,
		ToName:    n.ToName,
		Subject:   n.Subject,
		Body:      n.Body,
		Status:    "queued",
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	_, err = d.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": "id",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}

	log.Printf("[notify] queued id=%s to=%s subject=%q", item.ID, n.ToAddress, n.Subject)
	return nil
}

// LogNotifier writes notifications to the log, for local development
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	log.Printf("[notify] to=%s name=%q subject=%q body_len=%d", n.ToAddress, n.ToName, n.Subject, len(n.Body))
	return nil
}

// MockNotifier records notifications in memory for tests
type MockNotifier struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

// NewMockNotifier creates a notifier that accepts everything
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Send(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns the notifications accepted so far
func (m *MockNotifier) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.sent...)
}
