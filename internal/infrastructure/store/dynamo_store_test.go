package store

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDynamo struct {
	mock.Mock
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}

func (m *mockDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}

func (m *mockDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.DeleteItemOutput)
	return out, args.Error(1)
}

func (m *mockDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func itemFor(t *testing.T, pk, sk string, version int64, data string) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(dynamoItem{PK: pk, SK: sk, Version: version, Data: data})
	require.NoError(t, err)
	return av
}

// ============================================
// Get
// ============================================

func TestDynamoStore_Get(t *testing.T) {
	client := new(mockDynamo)
	s := NewDynamoStore(client, "retail-widgets", newWidget)

	client.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		return *in.TableName == "retail-widgets" && *in.ConsistentRead
	})).Return(&dynamodb.GetItemOutput{
		Item: itemFor(t, "w", "1", 4, `{"part":"w","id":"1","name":"bolt","count":2}`),
	}, nil)

	got, err := s.Get(context.Background(), "w", "1")
	require.NoError(t, err)
	assert.Equal(t, "bolt", got.Name)
	assert.Equal(t, int64(4), got.GetVersion())
	client.AssertExpectations(t)
}

func TestDynamoStore_Get_NotFound(t *testing.T) {
	client := new(mockDynamo)
	s := NewDynamoStore(client, "retail-widgets", newWidget)
	client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	_, err := s.Get(context.Background(), "w", "1")
	assert.ErrorIs(t, err, ErrNotFound)
}

// ============================================
// Insert
// ============================================

func TestDynamoStore_Insert(t *testing.T) {
	client := new(mockDynamo)
	s := NewDynamoStore(client, "retail-widgets", newWidget)

	client.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		return *in.ConditionExpression == "attribute_not_exists(pk)"
	})).Return(&dynamodb.PutItemOutput{}, nil)

	w := &widget{Part: "w", ID: "1"}
	require.NoError(t, s.Insert(context.Background(), w))
	assert.Equal(t, int64(1), w.GetVersion())
}

func TestDynamoStore_Insert_Conflict(t *testing.T) {
	client := new(mockDynamo)
	s := NewDynamoStore(client, "retail-widgets", newWidget)
	client.On("PutItem", mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{})

	err := s.Insert(context.Background(), &widget{Part: "w", ID: "1"})
	assert.ErrorIs(t, err, ErrConflict)
}

// ============================================
// Replace
// ============================================

func TestDynamoStore_Replace_WithVersion(t *testing.T) {
	client := new(mockDynamo)
	s := NewDynamoStore(client, "retail-widgets", newWidget)

	client.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		expected, ok := in.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberN)
		return ok && expected.Value == "3" &&
			*in.ConditionExpression == "attribute_exists(pk) AND version = :expected"
	})).Return(&dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{"version": &types.AttributeValueMemberN{Value: "4"}},
	}, nil)

	w := &widget{Part: "w", ID: "1"}
	require.NoError(t, s.Replace(context.Background(), w, 3))
	assert.Equal(t, int64(4), w.GetVersion())
}

func TestDynamoStore_Replace_AnyVersion(t *testing.T) {
	client := new(mockDynamo)
	s := NewDynamoStore(client, "retail-widgets", newWidget)

	client.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		_, hasExpected := in.ExpressionAttributeValues[":expected"]
		return !hasExpected && *in.ConditionExpression == "attribute_exists(pk)"
	})).Return(&dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{"version": &types.AttributeValueMemberN{Value: "8"}},
	}, nil)

	w := &widget{Part: "w", ID: "1"}
	require.NoError(t, s.Replace(context.Background(), w, AnyVersion))
	assert.Equal(t, int64(8), w.GetVersion())
}

func TestDynamoStore_Replace_ConditionFailures(t *testing.T) {
	tests := []struct {
		name    string
		oldItem map[string]types.AttributeValue
		want    error
	}{
		{
			name:    "row exists with another version",
			oldItem: map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: "w"}},
			want:    ErrVersionMismatch,
		},
		{
			name: "row missing",
			want: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockDynamo)
			s := NewDynamoStore(client, "retail-widgets", newWidget)
			client.On("UpdateItem", mock.Anything, mock.Anything).
				Return(nil, &types.ConditionalCheckFailedException{Item: tt.oldItem})

			err := s.Replace(context.Background(), &widget{Part: "w", ID: "1"}, 2)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDynamoStore_Replace_OtherError(t *testing.T) {
	client := new(mockDynamo)
	s := NewDynamoStore(client, "retail-widgets", newWidget)
	boom := errors.New("throttled")
	client.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, boom)

	err := s.Replace(context.Background(), &widget{Part: "w", ID: "1"}, 2)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrVersionMismatch)
}

// ============================================
// QueryByPartition / Delete
// ============================================

func TestDynamoStore_QueryByPartition_Paginates(t *testing.T) {
	client := new(mockDynamo)
	s := NewDynamoStore(client, "retail-widgets", newWidget)
	cursor := map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: "w"}}

	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey == nil
	})).Return(&dynamodb.QueryOutput{
		Items:            []map[string]types.AttributeValue{itemFor(t, "w", "1", 1, `{"id":"1"}`)},
		LastEvaluatedKey: cursor,
	}, nil).Once()
	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey != nil
	})).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{itemFor(t, "w", "2", 1, `{"id":"2"}`)},
	}, nil).Once()

	got, err := s.QueryByPartition(context.Background(), "w")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
	client.AssertExpectations(t)
}

func TestDynamoStore_Delete(t *testing.T) {
	client := new(mockDynamo)
	s := NewDynamoStore(client, "retail-widgets", newWidget)

	client.On("DeleteItem", mock.Anything, mock.Anything).Return(&dynamodb.DeleteItemOutput{
		Attributes: itemFor(t, "w", "1", 1, `{}`),
	}, nil).Once()
	client.On("DeleteItem", mock.Anything, mock.Anything).Return(&dynamodb.DeleteItemOutput{}, nil).Once()

	res, err := s.Delete(context.Background(), "w", "1")
	require.NoError(t, err)
	assert.Equal(t, Deleted, res)

	res, err = s.Delete(context.Background(), "w", "1")
	require.NoError(t, err)
	assert.Equal(t, DeleteNotFound, res)
}
