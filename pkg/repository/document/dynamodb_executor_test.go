package document

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	dynamostore "github.com/nimburion/taskmanager/pkg/store/dynamodb"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type brokenAttribute struct{}

func (brokenAttribute) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return nil, errors.New("attribute cannot be marshaled")
}

func attributeNames(expr expression.Expression) map[string]bool {
	out := map[string]bool{}
	for _, name := range expr.Names() {
		out[name] = true
	}
	return out
}

func hasAttributeValue(expr expression.Expression, want types.AttributeValue) bool {
	for _, v := range expr.Values() {
		if reflect.DeepEqual(v, want) {
			return true
		}
	}
	return false
}

func TestNewDynamoDBExecutor_Validation(t *testing.T) {
	if _, err := NewDynamoDBExecutor(nil); err == nil {
		t.Fatal("expected error for nil adapter")
	}
	exec, err := NewDynamoDBExecutor(&dynamostore.Adapter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec == nil {
		t.Fatal("expected executor")
	}
}

func TestDynamoItemRoundTrip(t *testing.T) {
	id := NewID()
	doc := Document{
		IDField:     id,
		"name":      "Jen",
		"age":       int32(21),
		"score":     1.5,
		"completed": false,
		"note":      nil,
		"tags":      primitive.A{"a", int64(2)},
		"meta":      primitive.M{"source": "seed", "owner": primitive.ObjectID(id)},
	}

	item, err := toDynamoItem(doc)
	if err != nil {
		t.Fatalf("toDynamoItem: %v", err)
	}
	expectations := map[string]types.AttributeValue{
		IDField:     &types.AttributeValueMemberS{Value: id.Hex()},
		"age":       &types.AttributeValueMemberN{Value: "21"},
		"score":     &types.AttributeValueMemberN{Value: "1.5"},
		"completed": &types.AttributeValueMemberBOOL{Value: false},
		"note":      &types.AttributeValueMemberNULL{Value: true},
	}
	for field, want := range expectations {
		if !reflect.DeepEqual(item[field], want) {
			t.Fatalf("item[%q] = %#v, want %#v", field, item[field], want)
		}
	}

	back, err := fromDynamoItem(item)
	if err != nil {
		t.Fatalf("fromDynamoItem: %v", err)
	}
	if back[IDField] != id {
		t.Fatalf("expected id %s, got %#v", id, back[IDField])
	}
	if back["age"] != int64(21) {
		t.Fatalf("expected int64 age, got %#v", back["age"])
	}
	if back["score"] != 1.5 {
		t.Fatalf("expected float score, got %#v", back["score"])
	}
	if back["note"] != nil {
		t.Fatalf("expected nil note, got %#v", back["note"])
	}
	if !reflect.DeepEqual(back["tags"], []interface{}{"a", int64(2)}) {
		t.Fatalf("unexpected tags %#v", back["tags"])
	}
	if !reflect.DeepEqual(back["meta"], map[string]interface{}{"source": "seed", "owner": id.Hex()}) {
		t.Fatalf("unexpected meta %#v", back["meta"])
	}
	if !(Filter{"age": 21, "name": "Jen"}).Matches(back) {
		t.Fatal("decoded item should match its original fields")
	}
}

func TestDynamoItem_TypedRecordRoundTrip(t *testing.T) {
	type reading struct {
		ID    ID        `bson:"_id"`
		Score float64   `bson:"score"`
		Taken time.Time `bson:"taken"`
		Tags  []string  `bson:"tags"`
	}
	in := reading{
		ID:    NewID(),
		Score: 22.0,
		Taken: time.Date(2024, 3, 1, 9, 30, 15, 250*int(time.Millisecond), time.UTC),
		Tags:  []string{"garden"},
	}

	doc, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	item, err := toDynamoItem(doc)
	if err != nil {
		t.Fatalf("toDynamoItem: %v", err)
	}
	stored, err := fromDynamoItem(item)
	if err != nil {
		t.Fatalf("fromDynamoItem: %v", err)
	}

	var out reading
	if err := Decode(stored, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.ID != in.ID || out.Score != in.Score || !reflect.DeepEqual(out.Tags, in.Tags) {
		t.Fatalf("round trip mismatch: got %+v want %+v", out, in)
	}
	if !out.Taken.Equal(in.Taken) {
		t.Fatalf("expected time %v, got %v", in.Taken, out.Taken)
	}
}

func TestToDynamoItem_MarshalError(t *testing.T) {
	if _, err := toDynamoItem(Document{"bad": brokenAttribute{}}); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestFromDynamoItem_InvalidValues(t *testing.T) {
	_, err := fromDynamoItem(map[string]types.AttributeValue{IDField: &types.AttributeValueMemberS{Value: "nope"}})
	if !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := fromDynamoItem(map[string]types.AttributeValue{"n": &types.AttributeValueMemberN{Value: "x"}}); err == nil {
		t.Fatal("expected error for malformed number")
	}
}

func TestDynamoFilterCondition(t *testing.T) {
	if _, ok := dynamoFilterCondition(nil); ok {
		t.Fatal("empty filter must not produce a condition")
	}

	cond, ok := dynamoFilterCondition(Filter{"name": "Jen", "age": 21, "note": nil})
	if !ok {
		t.Fatal("expected a condition")
	}
	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	names := attributeNames(expr)
	for _, field := range []string{"name", "age", "note"} {
		if !names[field] {
			t.Fatalf("expected attribute name %q in %v", field, expr.Names())
		}
	}
	if !hasAttributeValue(expr, &types.AttributeValueMemberN{Value: "21"}) {
		t.Fatalf("expected numeric value in %v", expr.Values())
	}
	if !hasAttributeValue(expr, &types.AttributeValueMemberS{Value: "Jen"}) {
		t.Fatalf("expected string value in %v", expr.Values())
	}
	filter := *expr.Filter()
	if !strings.Contains(filter, "attribute_not_exists") || !strings.Contains(filter, "attribute_type") {
		t.Fatalf("nil criterion should match missing or NULL attributes: %s", filter)
	}
}

func TestDynamoFilterCondition_IDMatchesIdentifiersOnly(t *testing.T) {
	id := NewID()

	cond, _ := dynamoFilterCondition(ByID(id))
	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !hasAttributeValue(expr, &types.AttributeValueMemberS{Value: id.Hex()}) {
		t.Fatalf("expected id value in %v", expr.Values())
	}

	cond, _ = dynamoFilterCondition(Filter{IDField: id.Hex()})
	expr, err = expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(expr.Values()) != 0 {
		t.Fatalf("hex string must not be compared to stored ids: %v", expr.Values())
	}
	if !strings.Contains(*expr.Filter(), "attribute_not_exists") {
		t.Fatalf("expected an unsatisfiable condition, got %s", *expr.Filter())
	}
}

func TestDynamoScanInput_InvalidFilter(t *testing.T) {
	exec := &DynamoDBExecutor{adapter: &dynamostore.Adapter{}}
	if _, err := exec.scanInput("users", Filter{"bad": brokenAttribute{}}); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}

	input, err := exec.scanInput("users", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if input.FilterExpression != nil {
		t.Fatalf("empty filter should scan everything, got %q", *input.FilterExpression)
	}
}

func TestDynamoWriteCondition(t *testing.T) {
	expr, err := expression.NewBuilder().WithCondition(dynamoWriteCondition(Filter{"completed": false})).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	condition := *expr.Condition()
	if !strings.Contains(condition, "attribute_exists") || !strings.Contains(condition, "AND") {
		t.Fatalf("write must require the item and the filter: %s", condition)
	}
	names := attributeNames(expr)
	if !names[IDField] || !names["completed"] {
		t.Fatalf("unexpected names %v", expr.Names())
	}
	if !hasAttributeValue(expr, &types.AttributeValueMemberBOOL{Value: false}) {
		t.Fatalf("expected filter value in %v", expr.Values())
	}

	expr, err = expression.NewBuilder().WithCondition(dynamoWriteCondition(nil)).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Contains(*expr.Condition(), "AND") {
		t.Fatalf("empty filter should only require the item: %s", *expr.Condition())
	}
}

func TestDynamoUpdate(t *testing.T) {
	update := Update{
		Set: map[string]interface{}{"name": "Jane"},
		Inc: map[string]interface{}{"age": 1},
	}
	expr, err := expression.NewBuilder().WithUpdate(dynamoUpdate(update)).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	text := *expr.Update()
	if !strings.Contains(text, "SET") || !strings.Contains(text, "ADD") {
		t.Fatalf("expected SET and ADD clauses, got %s", text)
	}
	names := attributeNames(expr)
	if !names["name"] || !names["age"] {
		t.Fatalf("unexpected names %v", expr.Names())
	}
	if !hasAttributeValue(expr, &types.AttributeValueMemberS{Value: "Jane"}) ||
		!hasAttributeValue(expr, &types.AttributeValueMemberN{Value: "1"}) {
		t.Fatalf("unexpected values %v", expr.Values())
	}

	bad := Update{Set: map[string]interface{}{"bad": brokenAttribute{}}}
	if _, err := expression.NewBuilder().WithUpdate(dynamoUpdate(bad)).Build(); err == nil {
		t.Fatal("expected marshal error for unsupported value")
	}
}

func TestIDOnlyFilter(t *testing.T) {
	id := NewID()

	got, ok := idOnlyFilter(ByID(id))
	if !ok || got != id {
		t.Fatalf("expected %s, got %s (ok=%v)", id, got, ok)
	}
	if _, ok := idOnlyFilter(Filter{IDField: id.Hex()}); ok {
		t.Fatal("hex string is not an identifier filter")
	}
	if _, ok := idOnlyFilter(Filter{IDField: id, "name": "Jen"}); ok {
		t.Fatal("extra criteria need a scan")
	}
	if _, ok := idOnlyFilter(Filter{"name": "Jen"}); ok {
		t.Fatal("filter without _id is not an identifier filter")
	}

	want := map[string]types.AttributeValue{IDField: &types.AttributeValueMemberS{Value: id.Hex()}}
	if !reflect.DeepEqual(dynamoKey(id), want) {
		t.Fatalf("unexpected key %#v", dynamoKey(id))
	}
}
