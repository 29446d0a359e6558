package operators

import (
	"fmt"
	"math"
	"strings"
)

// ParameterValidator validates operation parameters
type ParameterValidator struct {
	converter *TypeConverter
}

// NewParameterValidator creates a new parameter validator
func NewParameterValidator() *ParameterValidator {
	return &ParameterValidator{
		converter: NewTypeConverter(),
	}
}

// ValidateParameter converts value to the descriptor's type and applies its
// rules.
func (pv *ParameterValidator) ValidateParameter(
	name string,
	value interface{},
	descriptor *ParameterDescriptor,
) (interface{}, error) {
	converted, err := pv.converter.Convert(value, descriptor.Type)
	if err != nil {
		return nil, &ValidationError{Parameter: name, Message: err.Error()}
	}

	if descriptor.Validation != nil {
		if err := pv.applyRules(converted, descriptor.Validation); err != nil {
			return nil, &ValidationError{Parameter: name, Message: err.Error()}
		}
	}
	return converted, nil
}

// applyRules applies validation rules to a value
func (pv *ParameterValidator) applyRules(value interface{}, rules *ValidationRules) error {
	if rules.Min != nil || rules.Max != nil {
		numValue, err := toFloat64(value)
		if err != nil {
			return err
		}
		if math.IsNaN(numValue) || math.IsInf(numValue, 0) {
			return fmt.Errorf("value %v is not a finite number", numValue)
		}
		if rules.Min != nil && rules.ExclusiveMin && numValue <= *rules.Min {
			return fmt.Errorf("value %v must be greater than %v", numValue, *rules.Min)
		}
		if rules.Min != nil && numValue < *rules.Min {
			return fmt.Errorf("value %v is less than minimum %v", numValue, *rules.Min)
		}
		if rules.Max != nil && numValue > *rules.Max {
			return fmt.Errorf("value %v is greater than maximum %v", numValue, *rules.Max)
		}
	}

	if rules.Enum != nil {
		s := strings.ToLower(fmt.Sprint(value))
		found := false
		for _, v := range rules.Enum {
			if s == v {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("value %v is not one of %s", value, strings.Join(rules.Enum, ", "))
		}
	}

	if rules.CustomValidator != nil {
		if err := rules.CustomValidator(value); err != nil {
			return err
		}
	}
	return nil
}

// ValidationError represents a parameter validation error
type ValidationError struct {
	Parameter string
	Message   string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter '%s': %s", e.Parameter, e.Message)
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("cannot compare %T numerically", value)
	}
}

// Bind maps positional and named tokens onto op's parameters. Positional
// tokens fill parameters in declared order; surplus tokens go to the
// variadic parameter when there is one, and a Trailing parameter takes the
// last of them. Named values override positional ones. Every value is
// converted and validated, defaults are filled in and missing required
// parameters are reported.
func Bind(op Operator, positional []string, named map[string]string) (Params, error) {
	desc := op.Describe()
	raw := make(map[string]interface{}, len(desc.Parameters))

	var slots []*ParameterDescriptor
	var trailing *ParameterDescriptor
	for i := range desc.Parameters {
		p := &desc.Parameters[i]
		switch {
		case p.Name == desc.Variadic:
		case p.Trailing:
			trailing = p
		default:
			slots = append(slots, p)
		}
	}

	rest := positional
	for _, p := range slots {
		if len(rest) == 0 {
			break
		}
		raw[p.Name] = rest[0]
		rest = rest[1:]
	}

	if desc.Variadic != "" {
		if trailing != nil && len(rest) > 0 {
			if _, byName := named[trailing.Name]; !byName {
				raw[trailing.Name] = rest[len(rest)-1]
				rest = rest[:len(rest)-1]
			}
		}
		raw[desc.Variadic] = append([]string(nil), rest...)
	} else {
		if trailing != nil && len(rest) > 0 {
			raw[trailing.Name] = rest[0]
			rest = rest[1:]
		}
		if len(rest) > 0 {
			return nil, fmt.Errorf("too many arguments: expected at most %d, got %d",
				len(desc.Parameters), len(positional))
		}
	}

	for k, v := range named {
		if _, ok := desc.Param(k); !ok {
			return nil, fmt.Errorf("unknown parameter '%s'", k)
		}
		raw[k] = v
	}

	return Normalize(op, raw)
}

// Normalize converts raw values, applies defaults and checks required
// parameters.
func Normalize(op Operator, raw map[string]interface{}) (Params, error) {
	validator := NewParameterValidator()
	desc := op.Describe()
	params := make(Params, len(desc.Parameters))

	for i := range desc.Parameters {
		pd := &desc.Parameters[i]
		value, ok := raw[pd.Name]
		if !ok || value == nil {
			if pd.Required {
				return nil, fmt.Errorf("missing required parameter '%s'", pd.Name)
			}
			if pd.Default != nil {
				params[pd.Name] = pd.Default
			}
			continue
		}
		converted, err := validator.ValidateParameter(pd.Name, value, pd)
		if err != nil {
			return nil, err
		}
		params[pd.Name] = converted
	}

	if desc.Variadic != "" {
		if l, _ := params[desc.Variadic].([]string); len(l) == 0 {
			if pd, _ := desc.Param(desc.Variadic); pd != nil && pd.Required {
				return nil, fmt.Errorf("missing required parameter '%s'", desc.Variadic)
			}
		}
	}
	return params, nil
}

// Signature renders "name param [optional=default] ..." for help output.
func Signature(op Operator) string {
	desc := op.Describe()
	parts := []string{desc.Name}
	for _, p := range desc.Parameters {
		switch {
		case p.Name == desc.Variadic:
			parts = append(parts, p.Name+"...")
		case p.Required:
			parts = append(parts, p.Name)
		case p.Default != nil:
			parts = append(parts, fmt.Sprintf("[%s=%v]", p.Name, p.Default))
		default:
			parts = append(parts, "["+p.Name+"]")
		}
	}
	return strings.Join(parts, " ")
}
