// Package dynamo provides a DynamoDB-backed event deduplication store.
//
// Entries carry an expiry attribute registered as the table's TTL
// attribute, so DynamoDB reclaims old keys without a sweeper. TTL
// deletion lags expiry, so reads filter on the attribute as well.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamo "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/perch-labs/perch/internal/core/domain"
	"github.com/perch-labs/perch/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.DedupStore = (*Store)(nil)

// api is the DynamoDB surface the store uses, narrowed for testability.
type api interface {
	GetItem(ctx context.Context, params *awsdynamo.GetItemInput, optFns ...func(*awsdynamo.Options)) (*awsdynamo.GetItemOutput, error)
	PutItem(ctx context.Context, params *awsdynamo.PutItemInput, optFns ...func(*awsdynamo.Options)) (*awsdynamo.PutItemOutput, error)
}

// Store is a dedup table keyed by (channel_id, event_ts).
type Store struct {
	client api
	table  string
	now    func() time.Time
}

// New creates a DynamoDB dedup store over the given table.
func New(client *awsdynamo.Client, table string) *Store {
	return &Store{client: client, table: table, now: time.Now}
}

func itemKey(key domain.DedupKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"channel_id": &types.AttributeValueMemberS{Value: key.Channel},
		"event_ts":   &types.AttributeValueMemberS{Value: key.Timestamp},
	}
}

// Check reports whether the key has been marked and has not expired.
func (s *Store) Check(ctx context.Context, key domain.DedupKey) (bool, error) {
	out, err := s.client.GetItem(ctx, &awsdynamo.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("getting dedup entry: %w", err)
	}
	if out.Item == nil {
		return false, nil
	}

	attr, ok := out.Item["expires_at"].(*types.AttributeValueMemberN)
	if !ok {
		return true, nil
	}
	expiresAt, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return true, nil
	}
	return expiresAt > s.now().Unix(), nil
}

// Mark inserts the key with the given lifetime. A conditional put makes
// concurrent Marks for the same key race safely: the loser's write is
// rejected without clobbering the winner's entry.
func (s *Store) Mark(ctx context.Context, key domain.DedupKey, ttl time.Duration) error {
	expiresAt := s.now().Add(ttl).Unix()

	item := itemKey(key)
	item["expires_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)}

	_, err := s.client.PutItem(ctx, &awsdynamo.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(channel_id) OR expires_at <= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			// Already marked by a concurrent handler.
			return nil
		}
		return fmt.Errorf("putting dedup entry: %w", err)
	}
	return nil
}
