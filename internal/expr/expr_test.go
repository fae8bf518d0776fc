package expr

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestEval(t *testing.T) {
	env := Env{
		"quantity":     dec("4"),
		"valuePerUnit": dec("2.50"),
		"value":        dec("7.25"),
	}

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"plain multiply", "quantity * valuePerUnit", "10.00"},
		{"value passthrough", "value", "7.25"},
		{"precedence", "value + quantity * valuePerUnit", "17.25"},
		{"parens", "(value + quantity) * valuePerUnit", "28.125"},
		{"division", "value / quantity", "1.8125"},
		{"literal", "quantity * 1.5", "6.0"},
		{"unary minus", "-quantity + 10", "6"},
		{"whitespace tolerated", "  quantity*valuePerUnit ", "10.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.src, err)
			}
			got, err := e.Eval(env)
			if err != nil {
				t.Fatalf("Eval error: %v", err)
			}
			if !got.Equal(dec(tt.want)) {
				t.Errorf("Eval(%q) = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"dangling operator", "quantity *"},
		{"unclosed paren", "(quantity * 2"},
		{"garbage rune", "quantity $ 2"},
		{"trailing junk", "quantity 2"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.src); err == nil {
				t.Errorf("Parse(%q) should fail", tt.src)
			}
		})
	}
}

func TestUnknownVariableRejectedAtParse(t *testing.T) {
	_, err := Parse("quantity * sneakyEval")
	var uv *UnknownVariableError
	if !errors.As(err, &uv) {
		t.Fatalf("expected UnknownVariableError, got %v", err)
	}
	if uv.Name != "sneakyEval" {
		t.Errorf("variable name = %q, want sneakyEval", uv.Name)
	}
}

func TestDivisionByZero(t *testing.T) {
	e, err := Parse("value / quantity")
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Eval(Env{"value": dec("1"), "quantity": decimal.Zero})
	if !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestMissingEnvValue(t *testing.T) {
	e, err := Parse("quantity * valuePerUnit")
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Eval(Env{"quantity": dec("1")})
	var uv *UnknownVariableError
	if !errors.As(err, &uv) {
		t.Fatalf("expected UnknownVariableError for missing env value, got %v", err)
	}
}
