package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pinion-app/api/internal/domain"
)

// TokenRepo provides typed DynamoDB operations for the auth_tokens table.
// PK: hash (the HMAC tag of the clear token). Rows are write-once except
// for the deleted flag; expiry is evaluated by the caller at read time.
type TokenRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewTokenRepo(client *dynamodb.Client, tableName string) *TokenRepo {
	return &TokenRepo{client: client, tableName: tableName}
}

func (r *TokenRepo) Put(ctx context.Context, t *domain.AuthToken) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return domain.Wrap(domain.KindStorage, "marshal auth token", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return domain.Wrap(domain.KindStorage, "put auth token", err)
	}
	return nil
}

func (r *TokenRepo) GetByHash(ctx context.Context, hash string) (*domain.AuthToken, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldHash, hash),
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "get auth token", err)
	}
	if out.Item == nil {
		return nil, domain.E(domain.KindNotFound, "auth token not found")
	}
	var t domain.AuthToken
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, domain.Wrap(domain.KindStorage, "unmarshal auth token", err)
	}
	return &t, nil
}

func (r *TokenRepo) SoftDelete(ctx context.Context, hash string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey(fieldHash, hash),
		UpdateExpression: aws.String("SET #del = :true"),
		ExpressionAttributeNames: map[string]string{
			"#del": fieldDeleted,
			"#pk":  fieldHash,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
		},
		ConditionExpression: aws.String("attribute_exists(#pk)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.E(domain.KindNotFound, "auth token not found")
		}
		return domain.Wrap(domain.KindStorage, "soft-delete auth token", err)
	}
	return nil
}
