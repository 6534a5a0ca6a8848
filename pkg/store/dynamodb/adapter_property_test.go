package dynamodb

import (
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_ClosePreventsHealthCheck(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 20
	properties := gopter.NewProperties(params)

	properties.Property("closed adapter always fails healthcheck", prop.ForAll(
		func() bool {
			a := &Adapter{closed: true, logger: &mockLogger{}}
			return a.HealthCheck(context.Background()) != nil
		},
	))

	properties.TestingRun(t)
}

func TestProperty_TableNameKeepsCollectionSuffix(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("table name is prefix followed by collection", prop.ForAll(
		func(prefix, collection string) bool {
			name := (&Adapter{tablePrefix: prefix}).TableName(collection)
			return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, collection) && len(name) == len(prefix)+len(collection)
		},
		gen.AlphaString(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
