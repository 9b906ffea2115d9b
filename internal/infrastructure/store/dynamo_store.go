package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps one entity type per table. The table has a composite key
// (pk, sk); the record body is stored as a JSON string next to a numeric
// version used for conditional writes.
type DynamoStore[T Record] struct {
	client    DynamoAPI
	tableName string
	newRecord func() T
}

// dynamoItem represents the DynamoDB item structure
type dynamoItem struct {
	PK        string `dynamodbav:"pk"`
	SK        string `dynamodbav:"sk"`
	Version   int64  `dynamodbav:"version"`
	Data      string `dynamodbav:"data"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

func NewDynamoStore[T Record](client DynamoAPI, tableName string, newRecord func() T) *DynamoStore[T] {
	return &DynamoStore[T]{
		client:    client,
		tableName: tableName,
		newRecord: newRecord,
	}
}

func keyOf(partition, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: partition},
		"sk": &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoStore[T]) Get(ctx context.Context, partition, id string) (T, error) {
	var zero T
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            keyOf(partition, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return zero, backendErr("get %s/%s: %w", partition, id, err)
	}
	if len(out.Item) == 0 {
		return zero, ErrNotFound
	}
	return s.unmarshal(out.Item)
}

func (s *DynamoStore[T]) Insert(ctx context.Context, rec T) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}

	av, err := attributevalue.MarshalMap(dynamoItem{
		PK:        rec.PartitionKey(),
		SK:        rec.RowKey(),
		Version:   1,
		Data:      string(data),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConflict
		}
		return backendErr("failed to put item: %w", err)
	}
	rec.SetVersion(1)
	return nil
}

func (s *DynamoStore[T]) Replace(ctx context.Context, rec T, expectedVersion int64) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}

	values := map[string]types.AttributeValue{
		":data": &types.AttributeValueMemberS{Value: string(data)},
		":one":  &types.AttributeValueMemberN{Value: "1"},
		":now":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
	}
	condition := "attribute_exists(pk)"
	if expectedVersion != AnyVersion {
		condition += " AND version = :expected"
		values[":expected"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)}
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(s.tableName),
		Key:                                 keyOf(rec.PartitionKey(), rec.RowKey()),
		UpdateExpression:                    aws.String("SET #data = :data, updated_at = :now, version = version + :one"),
		ConditionExpression:                 aws.String(condition),
		ExpressionAttributeNames:            map[string]string{"#data": "data"},
		ExpressionAttributeValues:           values,
		ReturnValues:                        types.ReturnValueUpdatedNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return ErrNotFound
			}
			return ErrVersionMismatch
		}
		return backendErr("failed to update item: %w", err)
	}

	var updated struct {
		Version int64 `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return fmt.Errorf("failed to unmarshal version: %w", err)
	}
	rec.SetVersion(updated.Version)
	return nil
}

func (s *DynamoStore[T]) QueryByPartition(ctx context.Context, partition string) ([]T, error) {
	var (
		out       []T
		startFrom map[string]types.AttributeValue
	)
	for {
		result, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: partition},
			},
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: startFrom,
		})
		if err != nil {
			return nil, backendErr("query %s: %w", partition, err)
		}

		for _, item := range result.Items {
			rec, err := s.unmarshal(item)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}

		if len(result.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startFrom = result.LastEvaluatedKey
	}
}

func (s *DynamoStore[T]) Delete(ctx context.Context, partition, id string) (DeleteResult, error) {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.tableName),
		Key:          keyOf(partition, id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return 0, backendErr("delete %s/%s: %w", partition, id, err)
	}
	if len(out.Attributes) == 0 {
		return DeleteNotFound, nil
	}
	return Deleted, nil
}

func (s *DynamoStore[T]) unmarshal(item map[string]types.AttributeValue) (T, error) {
	var di dynamoItem
	if err := attributevalue.UnmarshalMap(item, &di); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return decode(s.newRecord, []byte(di.Data), di.Version)
}
