package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/lifeflow/lifeflow/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
	ErrEmailTaken    = errors.New("email address already exists")
	ErrUserExists    = errors.New("user already exists")
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

// DynamoAPI is the part of *dynamodb.Client the repository uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoUserRepository stores users in a single table. Besides the user
// item (USER#<id>) every user owns two reservation items, USERNAME#<name>
// and EMAIL#<address>, written in the same transaction so both stay unique.
type DynamoUserRepository struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
}

func NewDynamoUserRepository(client DynamoAPI, tableName string, logger *logrus.Logger) *DynamoUserRepository {
	return &DynamoUserRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

const (
	attrPK     = "PK"
	attrSK     = "SK"
	attrUserID = "user_id"
	skMeta     = "METADATA"
)

func (r *DynamoUserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal user for DynamoDB")
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	item[attrPK] = &types.AttributeValueMemberS{Value: user.GetPK()}
	item[attrSK] = &types.AttributeValueMemberS{Value: user.GetSK()}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			r.conditionalPut(item),
			r.conditionalPut(reservation(models.UsernameKey(user.Username), user.ID)),
			r.conditionalPut(reservation(models.EmailKey(user.EmailAddress), user.ID)),
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return conflictFromReasons(canceled.CancellationReasons)
		}
		r.logger.WithError(err).Error("Failed to create user in DynamoDB")
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *DynamoUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{ID: id}
	item, err := r.getItem(ctx, user.GetPK())
	if err != nil {
		r.logger.WithError(err).Error("Failed to get user from DynamoDB")
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if item == nil {
		return nil, ErrUserNotFound
	}

	var dbUser models.User
	if err := attributevalue.UnmarshalMap(item, &dbUser); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal user from DynamoDB")
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &dbUser, nil
}

func (r *DynamoUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getByReservation(ctx, models.UsernameKey(username))
}

func (r *DynamoUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getByReservation(ctx, models.EmailKey(email))
}

func (r *DynamoUserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, models.UsernameKey(username))
}

func (r *DynamoUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, models.EmailKey(email))
}

func (r *DynamoUserRepository) getByReservation(ctx context.Context, pk string) (*models.User, error) {
	item, err := r.getItem(ctx, pk)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if item == nil {
		return nil, ErrUserNotFound
	}

	idAttr, ok := item[attrUserID].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("reservation %s has no user id", pk)
	}

	return r.GetByID(ctx, idAttr.Value)
}

func (r *DynamoUserRepository) exists(ctx context.Context, pk string) (bool, error) {
	item, err := r.getItem(ctx, pk)
	if err != nil {
		return false, fmt.Errorf("failed to get reservation: %w", err)
	}
	return item != nil, nil
}

func (r *DynamoUserRepository) getItem(ctx context.Context, pk string) (map[string]types.AttributeValue, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			attrPK: &types.AttributeValueMemberS{Value: pk},
			attrSK: &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	return result.Item, nil
}

func (r *DynamoUserRepository) conditionalPut(item map[string]types.AttributeValue) types.TransactWriteItem {
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		},
	}
}

func reservation(pk, userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK:     &types.AttributeValueMemberS{Value: pk},
		attrSK:     &types.AttributeValueMemberS{Value: skMeta},
		attrUserID: &types.AttributeValueMemberS{Value: userID},
	}
}

// conflictFromReasons maps the cancellation reasons of a Create transaction,
// in TransactItems order, to the reservation that failed.
func conflictFromReasons(reasons []types.CancellationReason) error {
	failed := func(i int) bool {
		return i < len(reasons) && aws.ToString(reasons[i].Code) == "ConditionalCheckFailed"
	}

	switch {
	case failed(1):
		return ErrUsernameTaken
	case failed(2):
		return ErrEmailTaken
	default:
		return ErrUserExists
	}
}
