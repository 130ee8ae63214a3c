package machine

import (
	"math"
	"strconv"
	"strings"

	"outcome.io/sim/internal/addr"
	"outcome.io/sim/internal/apperrors"
	"outcome.io/sim/internal/vars"
)

// resolveKey maps a Set/Get/Eval operand written in script source to a
// Storage key. A colon-bearing operand is parsed as a local address
// (component:type:var); a bare identifier is shorthand for a variable on
// the currently executing component.
func resolveKey(raw, currentComponent string) (vars.Key, error) {
	if strings.Contains(raw, ":") {
		a, err := addr.ParseLocal(raw)
		if err != nil {
			return vars.Key{}, err
		}
		return vars.Key{Component: a.Component, Var: a.Var}, nil
	}
	return vars.Key{Component: currentComponent, Var: raw}, nil
}

// resolveOperand resolves an Eval/If operand: a numeric or boolean literal,
// or a variable reference (storage first, then the registry).
func resolveOperand(raw, currentComponent string, storage *vars.Storage, reg *Registry) (vars.Var, *Error) {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return vars.NewInt(n), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return vars.NewFloat(f), nil
	}
	if raw == "true" || raw == "false" {
		return vars.NewBool(raw == "true"), nil
	}

	key, err := resolveKey(raw, currentComponent)
	if err == nil && storage.Has(key) {
		v, _ := storage.GetVar(key)
		return v, nil
	}
	if v, ok := reg.Get(raw); ok {
		return v, nil
	}
	return vars.Var{}, newError(apperrors.CodeUnknownVariable, "", "unknown variable %q", raw)
}

// evalExpr evaluates an arithmetic or comparison expression. Arithmetic
// attempts Int<->Float coercion and otherwise fails with TypeMismatch;
// division and modulo by zero fail with ArithmeticError (spec §4.D).
func evalExpr(left vars.Var, op string, right vars.Var) (vars.Var, *Error) {
	switch op {
	case "==", "!=":
		eq := left.String() == right.String() && left.Type() == right.Type()
		if op == "!=" {
			eq = !eq
		}
		return vars.NewBool(eq), nil
	}

	lf, lok := left.AsFloat64()
	rf, rok := right.AsFloat64()
	if !lok || !rok {
		return vars.Var{}, newError(apperrors.CodeTypeMismatch, "", "arithmetic requires numeric operands, got %s and %s", left.Type().String(), right.Type().String())
	}

	bothInt := left.Type() == addr.Int && right.Type() == addr.Int

	switch op {
	case "+":
		return numericResult(lf+rf, bothInt), nil
	case "-":
		return numericResult(lf-rf, bothInt), nil
	case "*":
		return numericResult(lf*rf, bothInt), nil
	case "/":
		if rf == 0 {
			return vars.Var{}, newError(apperrors.CodeArithmeticError, "", "division by zero")
		}
		return numericResult(lf/rf, bothInt), nil
	case "%":
		if rf == 0 {
			return vars.Var{}, newError(apperrors.CodeArithmeticError, "", "modulo by zero")
		}
		if bothInt {
			return vars.NewInt(int64(lf) % int64(rf)), nil
		}
		return vars.NewFloat(math.Mod(lf, rf)), nil
	case "<":
		return vars.NewBool(lf < rf), nil
	case "<=":
		return vars.NewBool(lf <= rf), nil
	case ">":
		return vars.NewBool(lf > rf), nil
	case ">=":
		return vars.NewBool(lf >= rf), nil
	default:
		return vars.Var{}, newError(apperrors.CodeInvalidCommandBody, "", "unknown operator %q", op)
	}
}

func numericResult(f float64, asInt bool) vars.Var {
	if asInt {
		return vars.NewInt(int64(f))
	}
	return vars.NewFloat(f)
}
