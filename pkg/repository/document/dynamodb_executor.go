package document

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	dynamostore "github.com/nimburion/taskmanager/pkg/store/dynamodb"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// dynamoBatchSize is the BatchWriteItem request limit.
const dynamoBatchSize = 25

// dynamoMaxBatchPasses bounds how often unprocessed batch items are resubmitted.
const dynamoMaxBatchPasses = 5

// DynamoDBExecutor adapts the store/dynamodb adapter to the Executor contract.
// Each collection maps to one table keyed on the hex form of _id; filters are
// evaluated server-side with Scan filter expressions.
type DynamoDBExecutor struct {
	adapter *dynamostore.Adapter
}

// NewDynamoDBExecutor creates a new DynamoDBExecutor instance.
func NewDynamoDBExecutor(adapter *dynamostore.Adapter) (*DynamoDBExecutor, error) {
	if adapter == nil {
		return nil, fmt.Errorf("dynamodb adapter is required")
	}
	return &DynamoDBExecutor{adapter: adapter}, nil
}

// InsertOne puts a document, refusing to overwrite an existing identifier.
func (e *DynamoDBExecutor) InsertOne(ctx context.Context, collection string, doc Document) (ID, error) {
	stored, id, err := ensureID(doc)
	if err != nil {
		return NilID, err
	}
	item, err := toDynamoItem(stored)
	if err != nil {
		return NilID, err
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(IDField))).
		Build()
	if err != nil {
		return NilID, err
	}
	_, err = e.adapter.PutItem(ctx, &awsdynamodb.PutItemInput{
		TableName:                aws.String(e.adapter.TableName(collection)),
		Item:                     item,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if dynamostore.IsConditionFailed(err) {
			return NilID, documentError(ErrDuplicateID, id.Hex())
		}
		return NilID, classifyDynamoError(err)
	}
	return id, nil
}

// InsertMany writes documents with BatchWriteItem, resubmitting unprocessed items.
func (e *DynamoDBExecutor) InsertMany(ctx context.Context, collection string, docs []Document) ([]ID, error) {
	table := e.adapter.TableName(collection)
	ids := make([]ID, 0, len(docs))
	requests := make([]types.WriteRequest, 0, len(docs))
	for _, doc := range docs {
		stored, id, err := ensureID(doc)
		if err != nil {
			return nil, err
		}
		item, err := toDynamoItem(stored)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	for start := 0; start < len(requests); start += dynamoBatchSize {
		end := start + dynamoBatchSize
		if end > len(requests) {
			end = len(requests)
		}
		pending := map[string][]types.WriteRequest{table: requests[start:end]}
		for pass := 0; len(pending) > 0; pass++ {
			if pass == dynamoMaxBatchPasses {
				return nil, fmt.Errorf("insert into %s: %d items left unprocessed", table, len(pending[table]))
			}
			out, err := e.adapter.BatchWriteItem(ctx, &awsdynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return nil, classifyDynamoError(err)
			}
			pending = out.UnprocessedItems
		}
	}
	return ids, nil
}

// FindOne returns the first document matching the filter.
func (e *DynamoDBExecutor) FindOne(ctx context.Context, collection string, filter Filter) (Document, bool, error) {
	if id, ok := idOnlyFilter(filter); ok {
		out, err := e.adapter.GetItem(ctx, &awsdynamodb.GetItemInput{
			TableName: aws.String(e.adapter.TableName(collection)),
			Key:       dynamoKey(id),
		})
		if err != nil {
			return nil, false, classifyDynamoError(err)
		}
		if len(out.Item) == 0 {
			return nil, false, nil
		}
		doc, err := fromDynamoItem(out.Item)
		return doc, err == nil, err
	}

	docs, err := e.scan(ctx, collection, filter, 1)
	if err != nil || len(docs) == 0 {
		return nil, false, err
	}
	return docs[0], true, nil
}

// Find returns every document matching the filter.
func (e *DynamoDBExecutor) Find(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	return e.scan(ctx, collection, filter, 0)
}

// Count returns the number of documents matching the filter.
func (e *DynamoDBExecutor) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	input, err := e.scanInput(collection, filter)
	if err != nil {
		return 0, err
	}
	input.Select = types.SelectCount

	var total int64
	for {
		out, err := e.adapter.Scan(ctx, input)
		if err != nil {
			return 0, classifyDynamoError(err)
		}
		total += int64(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// UpdateOne updates the first document matching the filter.
func (e *DynamoDBExecutor) UpdateOne(ctx context.Context, collection string, filter Filter, update Update) (UpdateResult, error) {
	return e.update(ctx, collection, filter, update, 1)
}

// UpdateMany updates every document matching the filter.
func (e *DynamoDBExecutor) UpdateMany(ctx context.Context, collection string, filter Filter, update Update) (UpdateResult, error) {
	return e.update(ctx, collection, filter, update, 0)
}

// DeleteOne deletes the first document matching the filter.
func (e *DynamoDBExecutor) DeleteOne(ctx context.Context, collection string, filter Filter) (DeleteResult, error) {
	return e.delete(ctx, collection, filter, 1)
}

// DeleteMany deletes every document matching the filter.
func (e *DynamoDBExecutor) DeleteMany(ctx context.Context, collection string, filter Filter) (DeleteResult, error) {
	return e.delete(ctx, collection, filter, 0)
}

func (e *DynamoDBExecutor) update(ctx context.Context, collection string, filter Filter, update Update, limit int) (UpdateResult, error) {
	if err := update.Validate(); err != nil {
		return UpdateResult{}, err
	}
	docs, err := e.matching(ctx, collection, filter, limit)
	if err != nil {
		return UpdateResult{}, err
	}
	return e.updateMatched(ctx, collection, filter, update, docs)
}

// updateMatched writes update to each scanned document. The write is
// conditioned on the filter so an item changed since the scan is skipped
// instead of being modified without matching.
func (e *DynamoDBExecutor) updateMatched(ctx context.Context, collection string, filter Filter, update Update, docs []Document) (UpdateResult, error) {
	expr, err := expression.NewBuilder().WithCondition(dynamoWriteCondition(filter)).WithUpdate(dynamoUpdate(update)).Build()
	if err != nil {
		return UpdateResult{}, documentError(ErrInvalidUpdate, err.Error())
	}

	var result UpdateResult
	for _, doc := range docs {
		id, _ := doc.ID()
		_, changed, err := update.Apply(doc)
		if err != nil {
			return result, fmt.Errorf("update %s/%s: %w", collection, id.Hex(), err)
		}
		if !changed {
			result.MatchedCount++
			continue
		}
		_, err = e.adapter.UpdateItem(ctx, &awsdynamodb.UpdateItemInput{
			TableName:                 aws.String(e.adapter.TableName(collection)),
			Key:                       dynamoKey(id),
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err != nil {
			if dynamostore.IsConditionFailed(err) {
				continue
			}
			return result, classifyDynamoError(err)
		}
		result.MatchedCount++
		result.ModifiedCount++
	}
	return result, nil
}

func (e *DynamoDBExecutor) delete(ctx context.Context, collection string, filter Filter, limit int) (DeleteResult, error) {
	docs, err := e.matching(ctx, collection, filter, limit)
	if err != nil {
		return DeleteResult{}, err
	}
	return e.deleteMatched(ctx, collection, filter, docs)
}

// deleteMatched removes each scanned document that still matches the filter.
func (e *DynamoDBExecutor) deleteMatched(ctx context.Context, collection string, filter Filter, docs []Document) (DeleteResult, error) {
	expr, err := expression.NewBuilder().WithCondition(dynamoWriteCondition(filter)).Build()
	if err != nil {
		return DeleteResult{}, documentError(ErrInvalidFilter, err.Error())
	}

	var result DeleteResult
	for _, doc := range docs {
		id, _ := doc.ID()
		_, err := e.adapter.DeleteItem(ctx, &awsdynamodb.DeleteItemInput{
			TableName:                 aws.String(e.adapter.TableName(collection)),
			Key:                       dynamoKey(id),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err != nil {
			if dynamostore.IsConditionFailed(err) {
				continue
			}
			return result, classifyDynamoError(err)
		}
		result.DeletedCount++
	}
	return result, nil
}

func (e *DynamoDBExecutor) matching(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	if limit == 1 {
		doc, found, err := e.FindOne(ctx, collection, filter)
		if err != nil || !found {
			return nil, err
		}
		return []Document{doc}, nil
	}
	return e.scan(ctx, collection, filter, limit)
}

// scan pages through the table; limit 0 means unbounded. Scan's own Limit
// bounds items examined rather than items matched, so the cut happens here.
func (e *DynamoDBExecutor) scan(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	input, err := e.scanInput(collection, filter)
	if err != nil {
		return nil, err
	}
	out := []Document{}
	for {
		page, err := e.adapter.Scan(ctx, input)
		if err != nil {
			return nil, classifyDynamoError(err)
		}
		for _, item := range page.Items {
			doc, err := fromDynamoItem(item)
			if err != nil {
				return nil, err
			}
			out = append(out, doc)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func (e *DynamoDBExecutor) scanInput(collection string, filter Filter) (*awsdynamodb.ScanInput, error) {
	input := &awsdynamodb.ScanInput{TableName: aws.String(e.adapter.TableName(collection))}
	cond, ok := dynamoFilterCondition(filter)
	if !ok {
		return input, nil
	}
	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		return nil, documentError(ErrInvalidFilter, err.Error())
	}
	input.FilterExpression = expr.Filter()
	input.ExpressionAttributeNames = expr.Names()
	input.ExpressionAttributeValues = expr.Values()
	return input, nil
}

func idOnlyFilter(filter Filter) (ID, bool) {
	if len(filter) != 1 {
		return NilID, false
	}
	raw, ok := filter[IDField]
	if !ok {
		return NilID, false
	}
	return idValue(raw)
}

func dynamoKey(id ID) map[string]types.AttributeValue {
	key, _ := id.MarshalDynamoDBAttributeValue()
	return map[string]types.AttributeValue{IDField: key}
}

// dynamoFilterCondition translates equality criteria; ok is false for an empty filter.
// A nil criterion matches a missing or NULL attribute, as it does in MongoDB.
func dynamoFilterCondition(filter Filter) (expression.ConditionBuilder, bool) {
	fields := filter.Fields()
	if len(fields) == 0 {
		return expression.ConditionBuilder{}, false
	}
	conds := make([]expression.ConditionBuilder, 0, len(fields))
	for _, field := range fields {
		name := expression.Name(field)
		want := filter[field]
		switch {
		case want == nil:
			conds = append(conds, expression.Or(expression.AttributeNotExists(name), name.AttributeType(expression.Null)))
		case field == IDField:
			id, ok := idValue(want)
			if !ok {
				// Identifiers are only equal to identifiers.
				conds = append(conds, expression.AttributeNotExists(name))
				continue
			}
			conds = append(conds, name.Equal(expression.Value(id)))
		default:
			conds = append(conds, name.Equal(expression.Value(toDynamoNative(want))))
		}
	}
	return allOf(conds), true
}

// dynamoWriteCondition guards a write against items deleted or changed since the scan.
func dynamoWriteCondition(filter Filter) expression.ConditionBuilder {
	exists := expression.AttributeExists(expression.Name(IDField))
	cond, ok := dynamoFilterCondition(filter)
	if !ok {
		return exists
	}
	return expression.And(exists, cond)
}

// dynamoUpdate maps Set to SET and Inc to ADD. Update.Validate has already
// rejected non-numeric deltas.
func dynamoUpdate(update Update) expression.UpdateBuilder {
	var changes expression.UpdateBuilder
	for _, field := range Filter(update.Set).Fields() {
		changes = changes.Set(expression.Name(field), expression.Value(toDynamoNative(update.Set[field])))
	}
	for _, field := range Filter(update.Inc).Fields() {
		changes = changes.Add(expression.Name(field), expression.Value(update.Inc[field]))
	}
	return changes
}

func allOf(conds []expression.ConditionBuilder) expression.ConditionBuilder {
	if len(conds) == 1 {
		return conds[0]
	}
	return expression.And(conds[0], conds[1], conds[2:]...)
}

// toDynamoNative rewrites BSON-specific values into shapes attributevalue
// encodes faithfully. Dates become time.Time and are stored as RFC 3339 strings.
func toDynamoNative(v interface{}) interface{} {
	switch typed := v.(type) {
	case *ID:
		if typed == nil {
			return nil
		}
		return *typed
	case primitive.ObjectID:
		return ID(typed)
	case primitive.DateTime:
		return typed.Time().UTC()
	case primitive.D:
		out := make(map[string]interface{}, len(typed))
		for _, elem := range typed {
			out[elem.Key] = toDynamoNative(elem.Value)
		}
		return out
	case primitive.M:
		return toDynamoNativeMap(typed)
	case Document:
		return toDynamoNativeMap(typed)
	case map[string]interface{}:
		return toDynamoNativeMap(typed)
	case primitive.A:
		return toDynamoNativeList(typed)
	case []interface{}:
		return toDynamoNativeList(typed)
	default:
		return v
	}
}

func toDynamoNativeMap(values map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		out[k] = toDynamoNative(v)
	}
	return out
}

func toDynamoNativeList(values []interface{}) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = toDynamoNative(v)
	}
	return out
}

func toDynamoItem(doc Document) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(toDynamoNativeMap(doc))
	if err != nil {
		return nil, fmt.Errorf("marshal dynamodb item: %w", err)
	}
	return item, nil
}

// dynamoDecoder keeps numbers as attributevalue.Number so integers survive
// without a float64 round trip.
var dynamoDecoder = attributevalue.NewDecoder(func(o *attributevalue.DecoderOptions) {
	o.UseNumber = true
})

func fromDynamoItem(item map[string]types.AttributeValue) (Document, error) {
	var raw map[string]interface{}
	if err := dynamoDecoder.Decode(&types.AttributeValueMemberM{Value: item}, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal dynamodb item: %w", err)
	}
	doc := make(Document, len(raw))
	for field, value := range raw {
		v, err := fromDynamoNumber(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		doc[field] = v
	}
	if hexID, ok := doc[IDField].(string); ok {
		id, err := ParseID(hexID)
		if err != nil {
			return nil, err
		}
		doc[IDField] = id
	}
	return doc, nil
}

// fromDynamoNumber resolves decoded numbers to int64 when integral and float64 otherwise.
func fromDynamoNumber(v interface{}) (interface{}, error) {
	switch typed := v.(type) {
	case attributevalue.Number:
		if n, err := typed.Int64(); err == nil {
			return n, nil
		}
		f, err := typed.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", string(typed))
		}
		return f, nil
	case []interface{}:
		for i, item := range typed {
			resolved, err := fromDynamoNumber(item)
			if err != nil {
				return nil, err
			}
			typed[i] = resolved
		}
		return typed, nil
	case map[string]interface{}:
		for k, item := range typed {
			resolved, err := fromDynamoNumber(item)
			if err != nil {
				return nil, err
			}
			typed[k] = resolved
		}
		return typed, nil
	default:
		return v, nil
	}
}

func classifyDynamoError(err error) error {
	if dynamostore.IsConnectionError(err) {
		return Unavailable(err)
	}
	return err
}
