package operators

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type testOperator struct {
	desc OperatorDescriptor
}

func (o testOperator) Name() string       { return o.desc.Name }
func (o testOperator) Category() Category { return o.desc.Category }

func (o testOperator) Describe() *OperatorDescriptor {
	d := o.desc
	d.Parameters = append([]ParameterDescriptor(nil), o.desc.Parameters...)
	return &d
}

func (testOperator) Execute(context.Context, *Env, Params) (*Result, error) {
	return &Result{}, nil
}

func resizeLike() testOperator {
	return testOperator{OperatorDescriptor{
		Name:     "test",
		Category: CategoryVideo,
		Parameters: []ParameterDescriptor{
			{Name: "input_key", Type: TypeString, Required: true},
			{Name: "width", Type: TypeInt, Required: true, Validation: Range(0, 10)},
			{Name: "mode", Type: TypeString, Default: "fast", Validation: OneOf("fast", "slow")},
			{Name: "loop", Type: TypeBool, Default: false},
			{Name: "output_key", Type: TypeString, Required: true},
		},
	}}
}

func concatLike() testOperator {
	return testOperator{OperatorDescriptor{
		Name:     "join",
		Category: CategoryTimeline,
		Parameters: []ParameterDescriptor{
			{Name: "input_keys", Type: TypeList, Required: true},
			{Name: "output_key", Type: TypeString, Required: true, Trailing: true},
		},
		Variadic: "input_keys",
	}}
}

func renderLike() testOperator {
	return testOperator{OperatorDescriptor{
		Name:     "out",
		Category: CategoryOutput,
		Parameters: []ParameterDescriptor{
			{Name: "media_key", Type: TypeString, Required: true},
			{Name: "format", Type: TypeString, Default: ""},
			{Name: "extra_args", Type: TypeList},
		},
		Variadic: "extra_args",
	}}
}

func TestTypeConverter(t *testing.T) {
	converter := NewTypeConverter()

	tests := []struct {
		in   interface{}
		typ  ParameterType
		want interface{}
	}{
		{"720", TypeInt, 720},
		{"720.0", TypeInt, 720},
		{" 12 ", TypeInt, 12},
		{"1.5", TypeFloat, 1.5},
		{3, TypeFloat, 3.0},
		{"yes", TypeBool, true},
		{"TRUE", TypeBool, true},
		{"1", TypeBool, true},
		{"no", TypeBool, false},
		{"banana", TypeBool, false},
		{42, TypeString, "42"},
	}
	for _, tt := range tests {
		got, err := converter.Convert(tt.in, tt.typ)
		if err != nil {
			t.Fatalf("Convert(%v, %s) failed: %v", tt.in, tt.typ, err)
		}
		if got != tt.want {
			t.Fatalf("Convert(%v, %s): got=%v want=%v", tt.in, tt.typ, got, tt.want)
		}
	}

	for _, bad := range []string{"7.5", "seven", ""} {
		if _, err := converter.Convert(bad, TypeInt); err == nil {
			t.Fatalf("expected error converting %q to int", bad)
		}
	}
	if _, err := converter.Convert("1e", TypeFloat); err == nil {
		t.Fatal("expected error converting 1e to float")
	}

	list, err := converter.Convert("a", TypeList)
	if err != nil || len(list.([]string)) != 1 {
		t.Fatalf("single token list: got=%v err=%v", list, err)
	}
}

func TestBind_Positional(t *testing.T) {
	p, err := Bind(resizeLike(), []string{"in", "5", "SLOW", "yes", "out"}, nil)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if p.String("input_key") != "in" || p.Int("width") != 5 || !p.Bool("loop") || p.String("output_key") != "out" {
		t.Fatalf("unexpected params: %v", p)
	}
	if p.String("mode") != "SLOW" {
		t.Fatalf("enum values keep their spelling: got=%q", p.String("mode"))
	}
}

func TestBind_NamedOverridesAndDefaults(t *testing.T) {
	p, err := Bind(resizeLike(), []string{"in", "5"}, map[string]string{"output_key": "out", "width": "7"})
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if p.Int("width") != 7 {
		t.Fatalf("named value should win: got=%d", p.Int("width"))
	}
	if p.String("mode") != "fast" || p.Bool("loop") {
		t.Fatalf("defaults not applied: %v", p)
	}
}

func TestBind_Errors(t *testing.T) {
	tests := []struct {
		name       string
		positional []string
		named      map[string]string
		want       string
	}{
		{"missing required", []string{"in", "5"}, nil, "missing required parameter 'output_key'"},
		{"too many", []string{"in", "5", "fast", "no", "out", "extra"}, nil, "too many arguments: expected at most 5, got 6"},
		{"unknown named", []string{"in", "5"}, map[string]string{"colour": "red", "output_key": "o"}, "unknown parameter 'colour'"},
		{"range", []string{"in", "11", "fast", "no", "out"}, nil, "greater than maximum"},
		{"enum", []string{"in", "5", "medium", "no", "out"}, nil, "is not one of fast, slow"},
		{"conversion", []string{"in", "wide", "fast", "no", "out"}, nil, "invalid integer 'wide'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Bind(resizeLike(), tt.positional, tt.named)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error mismatch: got=%q want substring %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidateNumericRules(t *testing.T) {
	v := NewParameterValidator()
	tests := []struct {
		name  string
		value string
		rules *ValidationRules
		want  string
	}{
		{"positive accepts small", "0.0001", Positive(), ""},
		{"positive accepts large", "5000", Positive(), ""},
		{"positive rejects zero", "0", Positive(), "must be greater than 0"},
		{"positive rejects negative", "-3", Positive(), "must be greater than 0"},
		{"nan", "NaN", Positive(), "not a finite number"},
		{"nan in range", "NaN", Range(0, 10), "not a finite number"},
		{"inf in range", "+Inf", Range(0, 10), "not a finite number"},
		{"range", "5", Range(0, 10), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateParameter("x", tt.value, &ParameterDescriptor{Name: "x", Type: TypeFloat, Validation: tt.rules})
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error mismatch: got=%v want substring %q", err, tt.want)
			}
		})
	}
}

func TestBind_VariadicWithTrailing(t *testing.T) {
	p, err := Bind(concatLike(), []string{"a", "b", "c", "out"}, nil)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if got := strings.Join(p.Strings("input_keys"), ","); got != "a,b,c" {
		t.Fatalf("input_keys mismatch: got=%s", got)
	}
	if p.String("output_key") != "out" {
		t.Fatalf("output_key mismatch: got=%s", p.String("output_key"))
	}

	p, err = Bind(concatLike(), []string{"a", "b"}, map[string]string{"output_key": "named"})
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if len(p.Strings("input_keys")) != 2 || p.String("output_key") != "named" {
		t.Fatalf("named trailing parameter should leave the tail alone: %v", p)
	}

	if _, err := Bind(concatLike(), []string{"out"}, nil); err == nil ||
		!strings.Contains(err.Error(), "missing required parameter 'input_keys'") {
		t.Fatalf("expected missing input_keys, got %v", err)
	}
}

func TestBind_VariadicTail(t *testing.T) {
	p, err := Bind(renderLike(), []string{"clip", "gif", "-loop", "0"}, nil)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if p.String("format") != "gif" {
		t.Fatalf("format mismatch: got=%s", p.String("format"))
	}
	if got := strings.Join(p.Strings("extra_args"), " "); got != "-loop 0" {
		t.Fatalf("extra_args mismatch: got=%q", got)
	}

	p, err = Bind(renderLike(), []string{"clip"}, nil)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if len(p.Strings("extra_args")) != 0 {
		t.Fatalf("expected empty extra_args, got %v", p.Strings("extra_args"))
	}
}

func TestSignature(t *testing.T) {
	if got := Signature(resizeLike()); got != "test input_key width [mode=fast] [loop=false] output_key" {
		t.Fatalf("signature mismatch: got=%q", got)
	}
	if got := Signature(concatLike()); got != "join input_keys... output_key" {
		t.Fatalf("signature mismatch: got=%q", got)
	}
}

func TestOpError(t *testing.T) {
	base := errors.New("boom")
	err := Wrap("trim", base)
	if err.Error() != "trim error: boom" {
		t.Fatalf("message mismatch: got=%q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Fatal("OpError should unwrap to its cause")
	}
	if again := Wrap("render", err); again != err {
		t.Fatalf("wrapping twice should keep the first op: got=%q", again.Error())
	}
	if Wrap("x", nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	if got := Errorf("load", "status %d", 404).Error(); got != "load error: status 404" {
		t.Fatalf("Errorf mismatch: got=%q", got)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	r.Register(resizeLike())
	r.Register(concatLike())

	if _, err := r.Get("TEST"); err != nil {
		t.Fatalf("lookup should ignore case: %v", err)
	}
	_, err := r.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err.Error() != "unknown operation 'missing'" {
		t.Fatalf("message mismatch: got=%q", err.Error())
	}

	if got := fmt.Sprint(r.Names()); got != "[join test]" {
		t.Fatalf("Names mismatch: got=%s", got)
	}
	if got := len(r.ListByCategory(CategoryVideo)); got != 1 {
		t.Fatalf("ListByCategory mismatch: got=%d want=1", got)
	}

	r.Reset()
	if got := len(r.List()); got != 0 {
		t.Fatalf("expected empty registry after reset, got=%d", got)
	}
}
