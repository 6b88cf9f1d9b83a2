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

	"voicebot/internal/domain"
)

const (
	skPrefixTurn = "TURN#"
	skMeta       = "META#"
	ttlDuration  = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client is a write-only audit journal of conversation turns. Sessions are
// never restored from it; it only records what happened.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// turnSK orders entries by session generation, then reset epoch, then
// position within the epoch.
func turnSK(ref domain.TurnRef) string {
	return fmt.Sprintf("%s%019d#%06d#%06d", skPrefixTurn, ref.Generation, ref.Epoch, ref.Seq)
}

func (c *Client) ttlValue() int64 {
	return c.now().Add(ttlDuration).Unix()
}

// RecordTurn writes the turn and refreshes the session metadata in one
// transaction. ref.Seq is the turn's position in the store for ref.Epoch.
func (c *Client) RecordTurn(ctx context.Context, ref domain.TurnRef, turn domain.Turn) error {
	if strings.TrimSpace(ref.SessionID) == "" {
		return errors.New("repository: RecordTurn: session id is required")
	}
	entry := c.newEntry(ref, turn)
	meta := c.newMeta(ref, ref.Seq+1)

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                entryItem(entry),
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
		return fmt.Errorf("repository: RecordTurn: %w", err)
	}
	return nil
}

// RecordReset marks the start of ref.Epoch with zero turns. ref.Seq is ignored.
func (c *Client) RecordReset(ctx context.Context, ref domain.TurnRef) error {
	if strings.TrimSpace(ref.SessionID) == "" {
		return errors.New("repository: RecordReset: session id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      metaItem(c.newMeta(ref, 0)),
	})
	if err != nil {
		return fmt.Errorf("repository: RecordReset: %w", err)
	}
	return nil
}

func (c *Client) newEntry(ref domain.TurnRef, turn domain.Turn) domain.JournalEntry {
	return domain.JournalEntry{
		PK:         sessionPK(ref.SessionID),
		SK:         turnSK(ref),
		SessionID:  ref.SessionID,
		Generation: ref.Generation,
		Epoch:      ref.Epoch,
		Seq:        ref.Seq,
		Role:       turn.Role,
		Content:    turn.Content,
		CreatedAt:  c.now().UTC().Format(time.RFC3339Nano),
		TTL:        c.ttlValue(),
	}
}

func (c *Client) newMeta(ref domain.TurnRef, turns int) domain.SessionMeta {
	return domain.SessionMeta{
		PK:           sessionPK(ref.SessionID),
		SK:           skMeta,
		SessionID:    ref.SessionID,
		Generation:   ref.Generation,
		Epoch:        ref.Epoch,
		Turns:        turns,
		LastActivity: c.now().UTC().Format(time.RFC3339),
		TTL:          c.ttlValue(),
	}
}

func entryItem(e domain.JournalEntry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: e.PK},
		"SK":         &types.AttributeValueMemberS{Value: e.SK},
		"sessionId":  &types.AttributeValueMemberS{Value: e.SessionID},
		"generation": &types.AttributeValueMemberN{Value: strconv.FormatInt(e.Generation, 10)},
		"epoch":      &types.AttributeValueMemberN{Value: strconv.Itoa(e.Epoch)},
		"seq":        &types.AttributeValueMemberN{Value: strconv.Itoa(e.Seq)},
		"role":       &types.AttributeValueMemberS{Value: string(e.Role)},
		"content":    &types.AttributeValueMemberS{Value: e.Content},
		"createdAt":  &types.AttributeValueMemberS{Value: e.CreatedAt},
		"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(e.TTL, 10)},
	}
}

func metaItem(m domain.SessionMeta) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: m.PK},
		"SK":           &types.AttributeValueMemberS{Value: m.SK},
		"sessionId":    &types.AttributeValueMemberS{Value: m.SessionID},
		"generation":   &types.AttributeValueMemberN{Value: strconv.FormatInt(m.Generation, 10)},
		"epoch":        &types.AttributeValueMemberN{Value: strconv.Itoa(m.Epoch)},
		"turns":        &types.AttributeValueMemberN{Value: strconv.Itoa(m.Turns)},
		"lastActivity": &types.AttributeValueMemberS{Value: m.LastActivity},
		"ttl":          &types.AttributeValueMemberN{Value: strconv.FormatInt(m.TTL, 10)},
	}
}
