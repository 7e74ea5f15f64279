package schema

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Condition controls setting visibility. Either the Key/Op/Value form or
// an Expr expression is used; Expr wins when both are present.
type Condition struct {
	// Key names the setting whose value is inspected.
	Key string `json:"key,omitempty"`

	// Op is the comparison: eq, ne, in, notIn, truthy, falsy.
	// Empty defaults to eq when Value is present, truthy otherwise.
	Op string `json:"op,omitempty"`

	// Value is the comparison operand for eq/ne, or the allowed set for
	// in/notIn.
	Value any `json:"value,omitempty"`

	// Expr is an expression evaluated against {"values": values}, e.g.
	// "values.mode == 'advanced'". Compiled programs are cached.
	Expr string `json:"expr,omitempty"`
}

// Condition operators.
const (
	OpEq     = "eq"
	OpNe     = "ne"
	OpIn     = "in"
	OpNotIn  = "notIn"
	OpTruthy = "truthy"
	OpFalsy  = "falsy"
)

// programCache holds compiled visibility expressions keyed by source.
var programCache sync.Map // map[string]*vm.Program

// Eval evaluates the condition against the current values. A condition
// referencing an unknown key sees nil.
func (c *Condition) Eval(values map[string]any) (bool, error) {
	if c.Expr != "" {
		return c.evalExpr(values)
	}

	val := values[c.Key]

	op := c.Op
	if op == "" {
		if c.Value != nil {
			op = OpEq
		} else {
			op = OpTruthy
		}
	}

	switch op {
	case OpEq:
		return valuesEqual(val, c.Value), nil
	case OpNe:
		return !valuesEqual(val, c.Value), nil
	case OpIn:
		return inSet(val, c.Value), nil
	case OpNotIn:
		return !inSet(val, c.Value), nil
	case OpTruthy:
		return Truthy(val), nil
	case OpFalsy:
		return !Truthy(val), nil
	default:
		return false, fmt.Errorf("unknown condition op %q", op)
	}
}

func (c *Condition) evalExpr(values map[string]any) (bool, error) {
	program, err := compileCondition(c.Expr)
	if err != nil {
		return false, fmt.Errorf("condition compile failed: %w", err)
	}

	env := map[string]any{"values": values}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("condition eval failed: %w", err)
	}

	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition returned %T, want bool", result)
	}
	return b, nil
}

// compileCondition compiles an expression, consulting the cache first.
func compileCondition(source string) (*vm.Program, error) {
	if cached, ok := programCache.Load(source); ok {
		return cached.(*vm.Program), nil
	}

	program, err := expr.Compile(source,
		expr.AsBool(),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, err
	}

	programCache.Store(source, program)
	return program, nil
}

func inSet(val, set any) bool {
	for _, item := range toSlice(set) {
		if valuesEqual(val, item) {
			return true
		}
	}
	return false
}

// Visible reports whether a setting should be shown given the current
// values. All conditions must pass; a condition that fails to evaluate
// hides the setting.
func Visible(st *Setting, values map[string]any) bool {
	for i := range st.VisibleWhen {
		ok, err := st.VisibleWhen[i].Eval(values)
		if err != nil || !ok {
			return false
		}
	}
	return true
}
