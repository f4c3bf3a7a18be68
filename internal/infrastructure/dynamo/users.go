package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pinion-app/api/internal/domain"
	"github.com/pinion-app/api/internal/pkg/id"
)

// UserRepo provides typed DynamoDB operations for the users table.
// PK: user_id. GSIs: handle-index, phone_number-index. The verified_phones
// table keyed by number backs the unique-verified-number invariant.
type UserRepo struct {
	client              *dynamodb.Client
	tableName           string
	verifiedPhonesTable string
}

func NewUserRepo(client *dynamodb.Client, tableName, verifiedPhonesTable string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName, verifiedPhonesTable: verifiedPhonesTable}
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldUserID, userID),
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "get user", err)
	}
	if out.Item == nil {
		return nil, domain.E(domain.KindNotFound, "user not found")
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, domain.Wrap(domain.KindStorage, "unmarshal user", err)
	}
	if u.Deleted {
		return nil, domain.E(domain.KindNotFound, "user not found")
	}
	return &u, nil
}

// GetByNumber looks a user up by phone number via GSI, skipping deleted
// rows.
func (r *UserRepo) GetByNumber(ctx context.Context, number string) (*domain.User, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("phone_number-index"),
		KeyConditionExpression: aws.String("phone_number = :n"),
		FilterExpression:       aws.String("deleted = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n":     &types.AttributeValueMemberS{Value: number},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "query user by number", err)
	}
	if len(out.Items) == 0 {
		return nil, domain.E(domain.KindNotFound, "user not found")
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, domain.Wrap(domain.KindStorage, "unmarshal user", err)
	}
	return &u, nil
}

func (r *UserRepo) handleTaken(ctx context.Context, handle string) (bool, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("handle-index"),
		KeyConditionExpression: aws.String("handle = :h"),
		FilterExpression:       aws.String("deleted = :false"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":h":     &types.AttributeValueMemberS{Value: handle},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
		Select: types.SelectCount,
	})
	if err != nil {
		return false, domain.Wrap(domain.KindStorage, "query user by handle", err)
	}
	return out.Count > 0, nil
}

// numberClaimed reports whether the number is already verified by another
// account. Unverified duplicates are allowed so nobody can squat a number
// they cannot verify.
func (r *UserRepo) numberClaimed(ctx context.Context, number string) (bool, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.verifiedPhonesTable),
		Key:       strKey(fieldNumber, number),
	})
	if err != nil {
		return false, domain.Wrap(domain.KindStorage, "get verified phone", err)
	}
	return out.Item != nil, nil
}

// Create inserts a new user with its phone number, enforcing handle and
// verified-number availability. The availability reads are best effort;
// the verify-time conditional claim on verified_phones remains the final
// backstop for numbers.
func (r *UserRepo) Create(ctx context.Context, handle, number, name string) (*domain.User, error) {
	taken, err := r.handleTaken(ctx, handle)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, &domain.Error{Kind: domain.KindConflict, Msg: "bad request", Key: domain.KeyUnavailableHandle}
	}
	claimed, err := r.numberClaimed(ctx, number)
	if err != nil {
		return nil, err
	}
	if claimed {
		return nil, &domain.Error{Kind: domain.KindConflict, Msg: "bad request", Key: domain.KeyUnavailablePhone}
	}

	now := time.Now().UTC()
	u := &domain.User{
		UserID:      id.New(),
		Handle:      handle,
		Name:        name,
		PhoneNumber: number,
		Created:     now,
		Modified:    now,
	}
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "marshal user", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(user_id)"),
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "put user", err)
	}
	return u, nil
}

func (r *UserRepo) SetHandle(ctx context.Context, userID, handle string) error {
	taken, err := r.handleTaken(ctx, handle)
	if err != nil {
		return err
	}
	if taken {
		return &domain.Error{Kind: domain.KindConflict, Msg: "bad request", Key: domain.KeyUnavailableHandle}
	}
	return r.update(ctx, userID, map[string]interface{}{fieldHandle: handle})
}

// MarkVerificationSent stamps the send time and bumps the attempt counter.
func (r *UserRepo) MarkVerificationSent(ctx context.Context, userID string, at time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldUserID, userID),
		UpdateExpression: aws.String(
			"SET #sent = :at, #mod = :at, #attempts = #attempts + :one"),
		ExpressionAttributeNames: map[string]string{
			"#sent":     fieldPhoneVerificationSent,
			"#mod":      fieldModified,
			"#attempts": fieldPhoneVerificationAttempts,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at":  &types.AttributeValueMemberS{Value: at.Format(time.RFC3339Nano)},
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ConditionExpression: aws.String("attribute_exists(user_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.E(domain.KindNotFound, "user not found")
		}
		return domain.Wrap(domain.KindStorage, "mark verification sent", err)
	}
	return nil
}

// SoftDelete marks the user deleted and releases its verified-number
// claim in one transaction.
func (r *UserRepo) SoftDelete(ctx context.Context, userID, number string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldDeleted:  true,
		fieldModified: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName:                 aws.String(r.tableName),
					Key:                       strKey(fieldUserID, userID),
					UpdateExpression:          aws.String(ue.Expr),
					ExpressionAttributeNames:  ue.Names,
					ExpressionAttributeValues: ue.Values,
				},
			},
			{
				Delete: &types.Delete{
					TableName: aws.String(r.verifiedPhonesTable),
					Key:       strKey(fieldNumber, number),
				},
			},
		},
	})
	if err != nil {
		return domain.Wrap(domain.KindStorage, fmt.Sprintf("soft-delete user %s", userID), err)
	}
	return nil
}

func (r *UserRepo) update(ctx context.Context, userID string, updates map[string]interface{}) error {
	updates[fieldModified] = time.Now().UTC()
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldUserID, userID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		return domain.Wrap(domain.KindStorage, "update user", err)
	}
	return nil
}
