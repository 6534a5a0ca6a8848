package document

import (
	"encoding/hex"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDField is the name of the identifier field in every stored document.
const IDField = "_id"

// idLength is the size of an identifier in bytes; its text form is twice as long.
const idLength = 12

// ID is a store-assigned document identifier.
// It is stored as a BSON ObjectID in MongoDB and as its hex form elsewhere.
type ID [idLength]byte

// NilID is the zero identifier. It is never assigned to a stored document.
var NilID ID

// NewID generates a new identifier using the ObjectID algorithm
// (timestamp, process-unique random value, counter).
func NewID() ID {
	return ID(primitive.NewObjectID())
}

// ParseID decodes the 24 character hexadecimal form of an identifier.
func ParseID(s string) (ID, error) {
	if len(s) != 2*idLength {
		return NilID, documentError(ErrInvalidID, fmt.Sprintf("%q must be %d hex characters", s, 2*idLength))
	}
	var id ID
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return NilID, documentError(ErrInvalidID, fmt.Sprintf("%q is not hexadecimal", s))
	}
	return id, nil
}

// MustParseID is like ParseID but panics on malformed input.
// Use it only for literals.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Hex returns the lowercase hexadecimal encoding of the identifier.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id ID) String() string {
	return id.Hex()
}

// IsZero reports whether id is NilID. BSON omitempty relies on it.
func (id ID) IsZero() bool {
	return id == NilID
}

// ObjectID returns the identifier as a driver ObjectID.
func (id ID) ObjectID() primitive.ObjectID {
	return primitive.ObjectID(id)
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalBSONValue encodes the identifier as a native ObjectID.
func (id ID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	out := make([]byte, idLength)
	copy(out, id[:])
	return bsontype.ObjectID, out, nil
}

// UnmarshalBSONValue decodes a native ObjectID.
func (id *ID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t != bsontype.ObjectID {
		return documentError(ErrInvalidID, fmt.Sprintf("cannot decode bson %s into an id", t))
	}
	if len(data) != idLength {
		return documentError(ErrInvalidID, fmt.Sprintf("objectid payload has %d bytes", len(data)))
	}
	copy(id[:], data)
	return nil
}

// MarshalDynamoDBAttributeValue stores the identifier as its hex string.
func (id ID) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberS{Value: id.Hex()}, nil
}

// toID converts identifier representations found in stored documents,
// including the hex strings a DynamoDB item carries.
func toID(v interface{}) (ID, bool) {
	if s, ok := v.(string); ok {
		id, err := ParseID(s)
		return id, err == nil
	}
	return idValue(v)
}

// idValue accepts typed identifiers only. Filters use it so a hex string
// never equals an identifier.
func idValue(v interface{}) (ID, bool) {
	switch typed := v.(type) {
	case ID:
		return typed, true
	case *ID:
		if typed == nil {
			return NilID, false
		}
		return *typed, true
	case primitive.ObjectID:
		return ID(typed), true
	default:
		return NilID, false
	}
}
