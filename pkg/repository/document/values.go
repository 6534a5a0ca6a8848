package document

import (
	"fmt"
	"math"
	"reflect"
)

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, float32, float64:
		return true
	default:
		return false
	}
}

func isIntegral(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return true
	default:
		return false
	}
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	default:
		return int64(asFloat64(v))
	}
}

func asFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		if isIntegral(v) {
			return float64(asInt64(v))
		}
		return math.NaN()
	}
}

// addNumbers adds delta to current, keeping integer arithmetic when both are integers.
func addNumbers(current, delta interface{}) (interface{}, error) {
	if !isNumeric(current) {
		return nil, fmt.Errorf("existing value of type %T is not numeric", current)
	}
	if !isNumeric(delta) {
		return nil, fmt.Errorf("delta of type %T is not numeric", delta)
	}
	if isIntegral(current) && isIntegral(delta) {
		return asInt64(current) + asInt64(delta), nil
	}
	return asFloat64(current) + asFloat64(delta), nil
}

// valuesEqual compares stored and requested values the way the store does:
// numbers by value regardless of width, identifiers by bytes.
func valuesEqual(a, b interface{}) bool {
	if isNumeric(a) && isNumeric(b) {
		if isIntegral(a) && isIntegral(b) {
			return asInt64(a) == asInt64(b)
		}
		return asFloat64(a) == asFloat64(b)
	}
	left, lok := idValue(a)
	right, rok := idValue(b)
	if lok || rok {
		return lok && rok && left == right
	}
	return reflect.DeepEqual(a, b)
}
