package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"shopping-assistant/internal/domain"
)

const (
	pkPrefixSession = "SESSION#"
	skPrefixMsg     = "MSG#"
	skMeta          = "META#"
	statusComplete  = "complete"
	ttlDuration     = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// ReadWriter defines the session operations consumed by the chat service.
type ReadWriter interface {
	GetHistory(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
	LoadSession(ctx context.Context, sessionID string) (domain.SessionMeta, bool, error)
	SaveCompletedTurn(ctx context.Context, turn domain.CompletedTurn) error
}

var (
	_ ReadWriter = (*Client)(nil)
	_ ReadWriter = (*Memory)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithClock overrides the time source used for sort keys, activity stamps
// and TTLs.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client wraps a DynamoDB table for session state.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	c := &Client{api: api, tableName: tableName, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(sessionID string) string {
	return pkPrefixSession + sessionID
}

// msgSK returns the sort key for a message at ts.
func msgSK(ts time.Time) string {
	return skPrefixMsg + ts.UTC().Format(time.RFC3339Nano)
}

// ttlValue returns a Unix timestamp 30 days after now.
func ttlValue(now time.Time) int64 {
	return now.Add(ttlDuration).Unix()
}

// GetHistory returns up to limit of the most recent turns for a session in
// chronological order.
func (c *Client) GetHistory(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Read newest first so LIMIT favors the most recent turns.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: GetHistory query: %w", err)
	}

	msgs := make([]domain.Message, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetHistory unmarshal: %w", err)
		}
		msgs = append(msgs, msg)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// LoadSession reads the META# item for a session. The boolean is false when
// the session has never completed a turn.
func (c *Client) LoadSession(ctx context.Context, sessionID string) (domain.SessionMeta, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.SessionMeta{}, false, fmt.Errorf("repository: LoadSession get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.SessionMeta{}, false, nil
	}

	meta, err := itemToMeta(out.Item)
	if err != nil {
		return domain.SessionMeta{}, false, fmt.Errorf("repository: LoadSession decode: %w", err)
	}
	return meta, true, nil
}

// SaveTurn writes the completed message and updated metadata in one transaction.
func (c *Client) SaveTurn(ctx context.Context, msg domain.Message, meta domain.SessionMeta) error {
	if msg.PK == "" || msg.SK == "" {
		return errors.New("repository: SaveTurn: message PK and SK are required")
	}
	if meta.PK == "" || meta.SK == "" {
		return errors.New("repository: SaveTurn: meta PK and SK are required")
	}

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                messageItem(msg),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      metaItem(meta),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveTurn: %w", err)
	}
	return nil
}

// SaveCompletedTurn persists a finished turn together with the session's
// updated context.
func (c *Client) SaveCompletedTurn(ctx context.Context, turn domain.CompletedTurn) error {
	if strings.TrimSpace(turn.SessionID) == "" {
		return errors.New("repository: SaveCompletedTurn: session id is required")
	}
	now := c.now().UTC()
	if err := c.SaveTurn(ctx, NewMessage(turn, now), NewSessionMeta(turn, now)); err != nil {
		return fmt.Errorf("repository: SaveCompletedTurn: %w", err)
	}
	return nil
}

// NewMessage constructs the MSG# record for a completed turn at now.
func NewMessage(turn domain.CompletedTurn, now time.Time) domain.Message {
	return domain.Message{
		PK:        sessionPK(turn.SessionID),
		SK:        msgSK(now),
		SessionID: turn.SessionID,
		UserText:  turn.UserText,
		Reply:     turn.Reply,
		Intent:    turn.Intent,
		Status:    statusComplete,
		TTL:       ttlValue(now),
	}
}

// NewSessionMeta constructs the META# record for a completed turn at now.
func NewSessionMeta(turn domain.CompletedTurn, now time.Time) domain.SessionMeta {
	return domain.SessionMeta{
		PK:           sessionPK(turn.SessionID),
		SK:           skMeta,
		SessionID:    turn.SessionID,
		UserID:       turn.UserID,
		LastActivity: now.UTC().Format(time.RFC3339),
		Turns:        turn.Turns,
		Context:      turn.Context,
		TTL:          ttlValue(now),
	}
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Message{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Message{}, err
	}
	userText, err := strAttr(item, "userText")
	if err != nil {
		return domain.Message{}, err
	}
	sessionID, _ := strAttr(item, "sessionId")
	reply, _ := strAttr(item, "reply") // allow empty
	intent, _ := strAttr(item, "intent")
	status, _ := strAttr(item, "status")

	return domain.Message{
		PK:        pk,
		SK:        sk,
		SessionID: sessionID,
		UserText:  userText,
		Reply:     reply,
		Intent:    intent,
		Status:    status,
	}, nil
}

func itemToMeta(item map[string]types.AttributeValue) (domain.SessionMeta, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.SessionMeta{}, err
	}
	turns, err := intAttr(item, "turns")
	if err != nil {
		return domain.SessionMeta{}, err
	}
	sessionID, _ := strAttr(item, "sessionId")
	userID, _ := strAttr(item, "userId")
	lastActivity, _ := strAttr(item, "lastActivity")
	contextJSON, _ := strAttr(item, "context") // absent before the first context update

	return domain.SessionMeta{
		PK:           pk,
		SK:           skMeta,
		SessionID:    sessionID,
		UserID:       userID,
		LastActivity: lastActivity,
		Turns:        turns,
		Context:      contextJSON,
	}, nil
}

func messageItem(msg domain.Message) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: msg.PK},
		"SK":        &types.AttributeValueMemberS{Value: msg.SK},
		"sessionId": &types.AttributeValueMemberS{Value: msg.SessionID},
		"userText":  &types.AttributeValueMemberS{Value: msg.UserText},
		"reply":     &types.AttributeValueMemberS{Value: msg.Reply},
		"intent":    &types.AttributeValueMemberS{Value: msg.Intent},
		"status":    &types.AttributeValueMemberS{Value: msg.Status},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(msg.TTL, 10)},
	}
}

func metaItem(meta domain.SessionMeta) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: meta.PK},
		"SK":           &types.AttributeValueMemberS{Value: meta.SK},
		"sessionId":    &types.AttributeValueMemberS{Value: meta.SessionID},
		"userId":       &types.AttributeValueMemberS{Value: meta.UserID},
		"lastActivity": &types.AttributeValueMemberS{Value: meta.LastActivity},
		"turns":        &types.AttributeValueMemberN{Value: strconv.Itoa(meta.Turns)},
		"ttl":          &types.AttributeValueMemberN{Value: strconv.FormatInt(meta.TTL, 10)},
	}
	if meta.Context != "" {
		item["context"] = &types.AttributeValueMemberS{Value: meta.Context}
	}
	return item
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
