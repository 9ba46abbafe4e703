package docstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Dynamo is a Store backed by DynamoDB. Each collection maps to one table
// keyed by "pk", with a "gsi1" secondary index over (gsi1pk, gsi1sk) and
// native TTL on the "ttl" attribute. Version conditions translate to
// conditional expressions, and TransactPut to TransactWriteItems.
type Dynamo struct {
	client *dynamodb.Client
}

// NewDynamo wraps an SDK client.
func NewDynamo(client *dynamodb.Client) *Dynamo {
	return &Dynamo{client: client}
}

const gsiName = "gsi1"

type dynamoItem struct {
	PK      string `dynamodbav:"pk"`
	Version int64  `dynamodbav:"version"`
	Payload string `dynamodbav:"payload"`
	Gsi1PK  string `dynamodbav:"gsi1pk,omitempty"`
	Gsi1SK  string `dynamodbav:"gsi1sk,omitempty"`
	TTL     int64  `dynamodbav:"ttl,omitempty"`
}

// Sort keys are zero-padded so DynamoDB's lexicographic range ordering
// matches numeric ordering.
func formatSort(sort int64) string {
	return fmt.Sprintf("%020d", sort)
}

func toItem(doc Document) (map[string]types.AttributeValue, error) {
	item := dynamoItem{
		PK:      doc.Key,
		Version: doc.Version + 1,
		Payload: string(doc.Payload),
		TTL:     doc.ExpiresAt,
	}
	if doc.IndexPartition != "" {
		item.Gsi1PK = doc.IndexPartition
		item.Gsi1SK = formatSort(doc.IndexSort)
	}
	return attributevalue.MarshalMap(item)
}

func fromItem(collection string, av map[string]types.AttributeValue) (Document, error) {
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return Document{}, err
	}

	doc := Document{
		Collection:     collection,
		Key:            item.PK,
		Payload:        []byte(item.Payload),
		Version:        item.Version,
		IndexPartition: item.Gsi1PK,
		ExpiresAt:      item.TTL,
	}
	if item.Gsi1SK != "" {
		sort, err := strconv.ParseInt(item.Gsi1SK, 10, 64)
		if err != nil {
			return Document{}, fmt.Errorf("docstore: corrupt index sort for %s/%s: %w", collection, item.PK, err)
		}
		doc.IndexSort = sort
	}
	return doc, nil
}

func condition(version int64) (expr *string, values map[string]types.AttributeValue) {
	if version == 0 {
		return aws.String("attribute_not_exists(pk)"), nil
	}
	return aws.String("version = :expected"), map[string]types.AttributeValue{
		":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
	}
}

// Get implements Store.
func (d *Dynamo) Get(ctx context.Context, collection, key string) (Document, bool, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(collection),
		Key:            map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Document{}, false, err
	}
	if len(out.Item) == 0 {
		return Document{}, false, nil
	}
	doc, err := fromItem(collection, out.Item)
	if err != nil {
		return Document{}, false, err
	}
	return doc, true, nil
}

// Put implements Store.
func (d *Dynamo) Put(ctx context.Context, doc Document) (Document, error) {
	item, err := toItem(doc)
	if err != nil {
		return Document{}, err
	}
	expr, values := condition(doc.Version)

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(doc.Collection),
		Item:                      item,
		ConditionExpression:       expr,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return Document{}, ErrVersionConflict
		}
		return Document{}, err
	}

	stored := doc
	stored.Version = doc.Version + 1
	return stored, nil
}

// TransactPut implements Store.
func (d *Dynamo) TransactPut(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}

	items := make([]types.TransactWriteItem, 0, len(docs))
	for _, doc := range docs {
		item, err := toItem(doc)
		if err != nil {
			return err
		}
		expr, values := condition(doc.Version)
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                 aws.String(doc.Collection),
				Item:                      item,
				ConditionExpression:       expr,
				ExpressionAttributeValues: values,
			},
		})
	}

	_, err := d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) && hasConditionalCancellation(canceled) {
			return ErrVersionConflict
		}
		return err
	}
	return nil
}

// Transactions are also canceled for throttling and capacity reasons; only a
// failed condition check means the caller's version was stale.
func hasConditionalCancellation(canceled *types.TransactionCanceledException) bool {
	for _, reason := range canceled.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

// QueryIndex implements Store.
func (d *Dynamo) QueryIndex(ctx context.Context, collection, indexPartition string, descending bool, limit int) ([]Document, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(collection),
		IndexName:              aws.String(gsiName),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: indexPartition},
		},
		ScanIndexForward: aws.Bool(!descending),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := d.client.Query(ctx, input)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(out.Items))
	for _, av := range out.Items {
		doc, err := fromItem(collection, av)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
