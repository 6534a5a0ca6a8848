package document

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestParseID(t *testing.T) {
	id, err := ParseID("5e1ad19c0108701064ed8c7a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Hex() != "5e1ad19c0108701064ed8c7a" || id.IsZero() {
		t.Fatalf("unexpected id %s", id)
	}

	for _, bad := range []string{"", "5e1ad19c", "5e1ad19c0108701064ed8c7a00", "zz1ad19c0108701064ed8c7a"} {
		if _, err := ParseID(bad); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("ParseID(%q): expected ErrInvalidID, got %v", bad, err)
		}
	}
}

func TestParseID_AcceptsUppercase(t *testing.T) {
	id, err := ParseID(strings.ToUpper("5e1ad19c0108701064ed8c7a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != "5e1ad19c0108701064ed8c7a" {
		t.Fatalf("expected lowercase hex, got %s", id)
	}
}

func TestMustParseID_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for malformed id")
		}
	}()
	MustParseID("nope")
}

func TestNewID_Unique(t *testing.T) {
	seen := map[ID]struct{}{}
	for i := 0; i < 1000; i++ {
		id := NewID()
		if id.IsZero() {
			t.Fatal("NewID returned the zero id")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestID_TextRoundTrip(t *testing.T) {
	id := NewID()
	text, err := id.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var decoded ID
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if decoded != id {
		t.Fatalf("expected %s, got %s", id, decoded)
	}
	if err := decoded.UnmarshalText([]byte("short")); err == nil {
		t.Fatal("expected error for short text")
	}
}

func TestID_BSONIsObjectID(t *testing.T) {
	type record struct {
		ID   ID     `bson:"_id,omitempty"`
		Name string `bson:"name"`
	}
	id := MustParseID("5e1ad19c0108701064ed8c7a")

	raw, err := bson.Marshal(record{ID: id, Name: "Jen"})
	if err != nil {
		t.Fatalf("bson.Marshal: %v", err)
	}

	var native bson.M
	if err := bson.Unmarshal(raw, &native); err != nil {
		t.Fatalf("bson.Unmarshal: %v", err)
	}
	oid, ok := native["_id"].(primitive.ObjectID)
	if !ok {
		t.Fatalf("expected ObjectID, got %T", native["_id"])
	}
	if oid.Hex() != id.Hex() {
		t.Fatalf("expected %s, got %s", id, oid.Hex())
	}

	var decoded record
	if err := bson.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("bson.Unmarshal: %v", err)
	}
	if decoded.ID != id {
		t.Fatalf("expected %s, got %s", id, decoded.ID)
	}
}

func TestID_BSONOmitsZero(t *testing.T) {
	type record struct {
		ID   ID     `bson:"_id,omitempty"`
		Name string `bson:"name"`
	}
	raw, err := bson.Marshal(record{Name: "Jen"})
	if err != nil {
		t.Fatalf("bson.Marshal: %v", err)
	}

	var native bson.M
	if err := bson.Unmarshal(raw, &native); err != nil {
		t.Fatalf("bson.Unmarshal: %v", err)
	}
	if _, present := native["_id"]; present {
		t.Fatal("zero id should be omitted")
	}
}

func TestID_DynamoDBAttributeIsHex(t *testing.T) {
	id := NewID()
	av, err := id.MarshalDynamoDBAttributeValue()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := (&types.AttributeValueMemberS{Value: id.Hex()}); !reflect.DeepEqual(av, want) {
		t.Fatalf("expected %#v, got %#v", want, av)
	}
}

func TestToID(t *testing.T) {
	id := NewID()
	for _, v := range []interface{}{id, &id, id.ObjectID(), id.Hex()} {
		got, ok := toID(v)
		if !ok || got != id {
			t.Fatalf("toID(%T) = %s, %v", v, got, ok)
		}
	}
	if _, ok := toID(42); ok {
		t.Fatal("integers are not identifiers")
	}
	if _, ok := toID((*ID)(nil)); ok {
		t.Fatal("nil pointer is not an identifier")
	}
}

func TestIDValue_RejectsStrings(t *testing.T) {
	id := NewID()
	for _, v := range []interface{}{id, &id, id.ObjectID()} {
		if got, ok := idValue(v); !ok || got != id {
			t.Fatalf("idValue(%T) = %s, %v", v, got, ok)
		}
	}
	if _, ok := idValue(id.Hex()); ok {
		t.Fatal("hex string must not be treated as an identifier")
	}
	if valuesEqual(id, id.Hex()) || valuesEqual(id.Hex(), id) {
		t.Fatal("identifier must not equal its hex string")
	}
	if !valuesEqual(id, id.ObjectID()) {
		t.Fatal("identifier must equal its ObjectID")
	}
}

func TestProperty_IDHexRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("ParseID(id.Hex()) == id", prop.ForAll(
		func(raw []byte) bool {
			var id ID
			copy(id[:], raw)
			parsed, err := ParseID(id.Hex())
			return err == nil && parsed == id && len(id.Hex()) == 24
		},
		gen.SliceOfN(idLength, gen.UInt8()),
	))

	properties.TestingRun(t)
}
