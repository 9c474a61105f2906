package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-futureme/internal/domain"
)

// LetterRepo provides typed DynamoDB operations for the letters table.
type LetterRepo struct {
	client    API
	tableName string
}

func NewLetterRepo(client API, tableName string) *LetterRepo {
	return &LetterRepo{client: client, tableName: tableName}
}

func (r *LetterRepo) Insert(ctx context.Context, l *domain.Letter) error {
	item, err := attributevalue.MarshalMap(l)
	if err != nil {
		return fmt.Errorf("marshal letter: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": fieldLetterID},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("letter %s: %w", l.LetterID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("put letter: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of an existing letter. CreatedAt and the
// key are never touched.
func (r *LetterRepo) Update(ctx context.Context, l *domain.Letter) error {
	atts := l.Attachments
	if atts == nil {
		atts = []domain.Attachment{}
	}
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldTitle:       l.Title,
		fieldBody:        l.Body,
		fieldDeliverAt:   l.DeliverAt,
		fieldDelivered:   l.Delivered,
		fieldIsRead:      l.IsRead,
		fieldAttachments: atts,
		fieldUpdatedAt:   l.UpdatedAt,
	})
	if err != nil {
		return err
	}
	ue.Names["#id"] = fieldLetterID
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldLetterID, l.LetterID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("letter %s: %w", l.LetterID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update letter: %w", err)
	}
	return nil
}

func (r *LetterRepo) Delete(ctx context.Context, letterID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(fieldLetterID, letterID),
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": fieldLetterID},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("letter %s: %w", letterID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete letter: %w", err)
	}
	return nil
}

func (r *LetterRepo) Get(ctx context.Context, letterID string) (*domain.Letter, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldLetterID, letterID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get letter: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("letter %s: %w", letterID, domain.ErrNotFound)
	}
	var l domain.Letter
	if err := attributevalue.UnmarshalMap(out.Item, &l); err != nil {
		return nil, fmt.Errorf("unmarshal letter: %w", err)
	}
	return &l, nil
}

// QueryAll scans every page of the table. A single user holds few letters,
// so a consistent scan is cheaper than maintaining an index on deliver_at.
func (r *LetterRepo) QueryAll(ctx context.Context) ([]domain.Letter, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:      aws.String(r.tableName),
		ConsistentRead: aws.Bool(true),
	})
	var letters []domain.Letter
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan letters: %w", err)
		}
		var page []domain.Letter
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal letters: %w", err)
		}
		letters = append(letters, page...)
	}
	sort.SliceStable(letters, func(i, j int) bool {
		if !letters[i].DeliverAt.Equal(letters[j].DeliverAt) {
			return letters[i].DeliverAt.Before(letters[j].DeliverAt)
		}
		return letters[i].LetterID < letters[j].LetterID
	})
	return letters, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return err != nil && errors.As(err, &ccf)
}
