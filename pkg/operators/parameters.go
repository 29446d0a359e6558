package operators

// ParameterDescriptor describes an operation parameter
type ParameterDescriptor struct {
	Name        string
	Type        ParameterType
	Required    bool
	Default     interface{}
	Description string

	// Trailing binds the parameter from the last positional token, after
	// a variadic tail has taken the rest (concat's output_key).
	Trailing bool

	// Validation rules
	Validation *ValidationRules
}

// ParameterType represents parameter type
type ParameterType string

const (
	TypeString ParameterType = "str"
	TypeInt    ParameterType = "int"
	TypeFloat  ParameterType = "float"
	TypeBool   ParameterType = "bool"
	TypeList   ParameterType = "list" // variadic tails
)

// ValidationRules defines parameter validation rules
type ValidationRules struct {
	// Numeric constraints. ExclusiveMin makes Min a strict bound.
	Min          *float64
	Max          *float64
	ExclusiveMin bool

	// Enum values (strings compare case-insensitively)
	Enum []string

	// Custom validator
	CustomValidator func(interface{}) error
}

// Params holds bound, converted parameter values.
type Params map[string]interface{}

// String returns a string parameter or "".
func (p Params) String(name string) string {
	s, _ := p[name].(string)
	return s
}

// Int returns an int parameter or 0.
func (p Params) Int(name string) int {
	n, _ := p[name].(int)
	return n
}

// Float returns a float parameter or 0.
func (p Params) Float(name string) float64 {
	switch v := p[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Bool returns a bool parameter or false.
func (p Params) Bool(name string) bool {
	b, _ := p[name].(bool)
	return b
}

// Strings returns a list parameter.
func (p Params) Strings(name string) []string {
	l, _ := p[name].([]string)
	return l
}

// Has reports whether name is bound.
func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Min builds a lower-bound rule.
func Min(v float64) *ValidationRules { return &ValidationRules{Min: &v} }

// Positive builds a rule accepting any finite value above zero.
func Positive() *ValidationRules {
	zero := 0.0
	return &ValidationRules{Min: &zero, ExclusiveMin: true}
}

// Range builds a [lo, hi] rule.
func Range(lo, hi float64) *ValidationRules { return &ValidationRules{Min: &lo, Max: &hi} }

// OneOf builds an enum rule.
func OneOf(values ...string) *ValidationRules { return &ValidationRules{Enum: values} }
