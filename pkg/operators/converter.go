package operators

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeConverter converts script tokens to parameter types
type TypeConverter struct{}

// NewTypeConverter creates a new type converter
func NewTypeConverter() *TypeConverter {
	return &TypeConverter{}
}

// Convert converts a value to the target type
func (tc *TypeConverter) Convert(value interface{}, targetType ParameterType) (interface{}, error) {
	switch targetType {
	case TypeInt:
		return tc.toInt(value)
	case TypeFloat:
		return tc.toFloat(value)
	case TypeBool:
		return tc.toBool(value)
	case TypeString:
		return tc.toString(value)
	case TypeList:
		return tc.toList(value)
	default:
		return value, nil
	}
}

// toInt accepts integral floats ("720.0") as well as plain integers.
func (tc *TypeConverter) toInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("invalid integer '%s'", v)
		}
		return int(f), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", value)
	}
}

func (tc *TypeConverter) toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number '%s'", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
}

// toBool treats true, 1 and yes (any case) as true and everything else as
// false.
func (tc *TypeConverter) toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return ParseBool(v), nil
	case int:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to bool", value)
	}
}

func (tc *TypeConverter) toString(value interface{}) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", value), nil
}

func (tc *TypeConverter) toList(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case string:
		return []string{v}, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to list", value)
	}
}

// ParseBool is the script truth test.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
