package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dolabb/dolabb-sub001/internal/aws"
)

// Item is the shape persisted in the session DynamoDB table.
type Item struct {
	Key       string `dynamodbav:"kv_key"` // PK
	Value     string `dynamodbav:"kv_value"`
	UpdatedAt string `dynamodbav:"updated_at"`
	ExpiresAt int64  `dynamodbav:"expires_at,omitempty"` // TTL epoch seconds
}

// Dynamo stores session values in a DynamoDB table with TTL on expires_at.
type Dynamo struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamo returns a Dynamo store bound to tableName.
func NewDynamo(client aws.DynamoDBAPI, tableName string) *Dynamo {
	return &Dynamo{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (d *Dynamo) key(k string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"kv_key": &types.AttributeValueMemberS{Value: k},
	}
}

func (d *Dynamo) Get(ctx context.Context, key string) (string, bool, error) {
	out, err := d.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &d.tableName,
		Key:            d.key(key),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("get item: %w", err)
	}
	return d.decode(out.Item)
}

func (d *Dynamo) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	now := d.nowFunc()
	it := Item{
		Key:       key,
		Value:     value,
		UpdatedAt: now.Format(time.RFC3339),
	}
	if ttl > 0 {
		it.ExpiresAt = now.Add(ttl).Unix()
	}
	item, err := attributevalue.MarshalMap(it)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &d.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (d *Dynamo) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &d.tableName,
		Key:       d.key(key),
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// Take deletes the item and returns its old value in one call, so two
// concurrent callers cannot both observe it.
func (d *Dynamo) Take(ctx context.Context, key string) (string, bool, error) {
	out, err := d.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:    &d.tableName,
		Key:          d.key(key),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return "", false, fmt.Errorf("delete item (take): %w", err)
	}
	return d.decode(out.Attributes)
}

func (d *Dynamo) decode(raw map[string]types.AttributeValue) (string, bool, error) {
	if len(raw) == 0 {
		return "", false, nil
	}
	var it Item
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return "", false, fmt.Errorf("unmarshal item: %w", err)
	}
	// DynamoDB TTL deletion is lazy; expired rows may still be returned.
	if it.ExpiresAt > 0 && it.ExpiresAt <= d.nowFunc().Unix() {
		return "", false, nil
	}
	return it.Value, true, nil
}

func awsBool(b bool) *bool { return &b }
