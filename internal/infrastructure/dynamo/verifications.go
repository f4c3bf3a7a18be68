package dynamo

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid/v2"
	"github.com/pinion-app/api/internal/domain"
)

// VerificationRepo manages verification-code rows.
// PK: user_id, SK: code_id (ULID). The ULID range key orders codes by
// issuance, so "latest" and window counts never depend on wall-clock
// column ordering. Consume spans the codes, users, and verified_phones
// tables in one TransactWriteItems.
type VerificationRepo struct {
	client              *dynamodb.Client
	tableName           string
	usersTable          string
	verifiedPhonesTable string
}

func NewVerificationRepo(client *dynamodb.Client, tableName, usersTable, verifiedPhonesTable string) *VerificationRepo {
	return &VerificationRepo{
		client:              client,
		tableName:           tableName,
		usersTable:          usersTable,
		verifiedPhonesTable: verifiedPhonesTable,
	}
}

func (r *VerificationRepo) Put(ctx context.Context, v *domain.VerificationCode) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return domain.Wrap(domain.KindStorage, "marshal verification code", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return domain.Wrap(domain.KindStorage, "put verification code", err)
	}
	return nil
}

// Latest returns the newest non-deleted code for the user.
func (r *VerificationRepo) Latest(ctx context.Context, userID string) (*domain.VerificationCode, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("user_id = :uid"),
		FilterExpression:       aws.String("deleted = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":   &types.AttributeValueMemberS{Value: userID},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
		ScanIndexForward: aws.Bool(false),
	}
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, domain.Wrap(domain.KindStorage, "query verification codes", err)
		}
		if len(out.Items) > 0 {
			var v domain.VerificationCode
			if err := attributevalue.UnmarshalMap(out.Items[0], &v); err != nil {
				return nil, domain.Wrap(domain.KindStorage, "unmarshal verification code", err)
			}
			return &v, nil
		}
		if out.LastEvaluatedKey == nil {
			return nil, domain.E(domain.KindNotFound, "verification code not found")
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// CountSince counts code rows issued at or after since, deleted or not.
// The lower bound is the zero-entropy ULID for that instant.
func (r *VerificationRepo) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("user_id = :uid AND code_id >= :floor"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":   &types.AttributeValueMemberS{Value: userID},
			":floor": &types.AttributeValueMemberS{Value: ulidFloor(since)},
		},
		Select: types.SelectCount,
	})
	if err != nil {
		return 0, domain.Wrap(domain.KindStorage, "count verification codes", err)
	}
	return int(out.Count), nil
}

// Consume soft-deletes the code row, stamps the user's phone verified, and
// claims the verified number — atomically. The conditional update on the
// code row makes concurrent consumption mutually exclusive; the
// conditional put on verified_phones is the uniqueness backstop.
func (r *VerificationRepo) Consume(ctx context.Context, code *domain.VerificationCode, number string, verifiedAt time.Time) error {
	at := &types.AttributeValueMemberS{Value: verifiedAt.Format(time.RFC3339Nano)}
	boolTrue := &types.AttributeValueMemberBOOL{Value: true}
	boolFalse := &types.AttributeValueMemberBOOL{Value: false}

	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName:                 aws.String(r.tableName),
					Key:                       compositeKey(fieldUserID, code.UserID, fieldCodeID, code.CodeID),
					UpdateExpression:          aws.String("SET #del = :true"),
					ConditionExpression:       aws.String("attribute_exists(code_id) AND #del = :false"),
					ExpressionAttributeNames:  map[string]string{"#del": fieldDeleted},
					ExpressionAttributeValues: map[string]types.AttributeValue{":true": boolTrue, ":false": boolFalse},
				},
			},
			{
				Update: &types.Update{
					TableName:                 aws.String(r.usersTable),
					Key:                       strKey(fieldUserID, code.UserID),
					UpdateExpression:          aws.String("SET #ver = :at, #mod = :at"),
					ConditionExpression:       aws.String("attribute_exists(user_id)"),
					ExpressionAttributeNames:  map[string]string{"#ver": fieldPhoneVerified, "#mod": fieldModified},
					ExpressionAttributeValues: map[string]types.AttributeValue{":at": at},
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(r.verifiedPhonesTable),
					Item: map[string]types.AttributeValue{
						fieldNumber: &types.AttributeValueMemberS{Value: number},
						fieldUserID: &types.AttributeValueMemberS{Value: code.UserID},
					},
					ConditionExpression:       aws.String("attribute_not_exists(#n) OR user_id = :uid"),
					ExpressionAttributeNames:  map[string]string{"#n": fieldNumber},
					ExpressionAttributeValues: map[string]types.AttributeValue{":uid": &types.AttributeValueMemberS{Value: code.UserID}},
				},
			},
		},
	})
	if err != nil {
		return consumeError(err)
	}
	return nil
}

// consumeError maps transaction cancellation reasons onto the domain
// taxonomy: a failed condition on the code row means it was already
// consumed; a failed claim on the number means another verified account
// holds it.
func consumeError(err error) error {
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) && len(tce.CancellationReasons) == 3 {
		if conditionFailed(tce.CancellationReasons[0]) {
			return domain.Wrap(domain.KindInvalidCode, "invalid code", err)
		}
		if conditionFailed(tce.CancellationReasons[2]) {
			return domain.Wrap(domain.KindConflict, "conflict", err)
		}
	}
	return domain.Wrap(domain.KindStorage, "consume verification code", err)
}

func conditionFailed(r types.CancellationReason) bool {
	return r.Code != nil && *r.Code == "ConditionalCheckFailed"
}

// ulidFloor renders the smallest ULID for the given instant.
func ulidFloor(t time.Time) string {
	var u ulid.ULID
	if err := u.SetTime(ulid.Timestamp(t)); err != nil {
		// Timestamps beyond the ULID epoch range cannot occur for the
		// windows this repo is queried with.
		panic(err)
	}
	return u.String()
}
