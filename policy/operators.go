package policy

import (
	"fmt"
	"reflect"
	"slices"
)

type Operator func(ctx RequestContext, args []any) (EvalResult, error)

var operators = make(map[string]Operator)

func init() {
	operators["And"] = opAnd
	operators["Or"] = opOr
	operators["Not"] = opNot
	operators["Eq"] = opEq
	operators["Contains"] = opContains
	operators["Load"] = opLoad
	operators["Gt"] = compare("Gt", func(a, b float64) bool { return a > b })
	operators["Gte"] = compare("Gte", func(a, b float64) bool { return a >= b })
	operators["Lt"] = compare("Lt", func(a, b float64) bool { return a < b })
	operators["Lte"] = compare("Lte", func(a, b float64) bool { return a <= b })
	operators["Add"] = opAdd
	operators["Mul"] = opMul
}

func opAnd(ctx RequestContext, args []any) (EvalResult, error) {

	for i, arg := range args {
		evaluated, ok := arg.(bool)
		if !ok {
			err := fmt.Errorf("bad argument type for AND at index %d. Expected bool but got %s", i, reflect.TypeOf(arg))
			return EvalResult{
				Operator: "And",
				Error:    err.Error(),
			}, err
		}

		if !evaluated {
			return EvalResult{
				Operator: "And",
				Result:   false,
			}, nil
		}
	}

	return EvalResult{
		Operator: "And",
		Result:   true,
	}, nil
}

func opOr(ctx RequestContext, args []any) (EvalResult, error) {
	for i, arg := range args {
		evaluated, ok := arg.(bool)
		if !ok {
			err := fmt.Errorf("bad argument type for OR at index %d. Expected bool but got %s", i, reflect.TypeOf(arg))
			return EvalResult{
				Operator: "Or",
				Error:    err.Error(),
			}, err
		}

		if evaluated {
			return EvalResult{
				Operator: "Or",
				Result:   true,
			}, nil
		}
	}

	return EvalResult{
		Operator: "Or",
		Result:   false,
	}, nil
}

func opNot(ctx RequestContext, args []any) (EvalResult, error) {
	if len(args) != 1 {
		err := fmt.Errorf("bad argument length for NOT. Expected 1 but got %d", len(args))
		return EvalResult{
			Operator: "Not",
			Error:    err.Error(),
		}, err
	}

	evaluated, ok := args[0].(bool)
	if !ok {
		err := fmt.Errorf("bad argument type for NOT. Expected bool but got %s", reflect.TypeOf(args[0]))
		return EvalResult{
			Operator: "Not",
			Error:    err.Error(),
		}, err
	}

	return EvalResult{
		Operator: "Not",
		Result:   !evaluated,
	}, nil
}

func opEq(ctx RequestContext, args []any) (EvalResult, error) {
	if len(args) != 2 {
		err := fmt.Errorf("bad argument length for EQ. Expected 2 but got %d", len(args))
		return EvalResult{
			Operator: "Eq",
			Error:    err.Error(),
		}, err
	}

	return EvalResult{
		Operator: "Eq",
		Result:   args[0] == args[1],
	}, nil
}

func opContains(ctx RequestContext, args []any) (EvalResult, error) {
	if len(args) != 2 {
		err := fmt.Errorf("bad argument length for CONTAINS. Expected 2 but got %d", len(args))
		return EvalResult{
			Operator: "Contains",
			Error:    err.Error(),
		}, err
	}

	arg0, ok := args[0].([]any)
	if !ok {
		err := fmt.Errorf("bad argument type for CONTAINS. Expected []any but got %s", reflect.TypeOf(args[0]))
		return EvalResult{
			Operator: "Contains",
			Error:    err.Error(),
		}, err
	}

	arg1 := args[1]

	return EvalResult{
		Operator: "Contains",
		Result:   slices.Contains(arg0, arg1),
	}, nil

}

func opLoad(ctx RequestContext, args []any) (EvalResult, error) {
	if len(args) != 1 {
		err := fmt.Errorf("bad argument length for Load. Expected 1 but got %d", len(args))
		return EvalResult{
			Operator: "Load",
			Error:    err.Error(),
		}, err
	}

	key, ok := args[0].(string)
	if !ok {
		err := fmt.Errorf("bad argument type for Load. Expected string but got %s", reflect.TypeOf(args[0]))
		return EvalResult{
			Operator: "Load",
			Error:    err.Error(),
		}, err
	}

	mappedCtx := structToMap(ctx)
	value, ok := resolveDotNotation(mappedCtx, key)
	if !ok {
		err := fmt.Errorf("key not found: %s", key)
		return EvalResult{
			Operator: "Load",
			Error:    err.Error(),
		}, err
	}

	return EvalResult{
		Operator: "Load",
		Result:   value,
	}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}

func numericArgs(name string, args []any) ([]float64, error) {
	values := make([]float64, 0, len(args))
	for i, arg := range args {
		f, ok := toFloat(arg)
		if !ok {
			return nil, fmt.Errorf("bad argument type for %s at index %d. Expected number but got %s", name, i, reflect.TypeOf(arg))
		}
		values = append(values, f)
	}
	return values, nil
}

func compare(name string, cmp func(a, b float64) bool) Operator {
	return func(ctx RequestContext, args []any) (EvalResult, error) {
		if len(args) != 2 {
			err := fmt.Errorf("bad argument length for %s. Expected 2 but got %d", name, len(args))
			return EvalResult{Operator: name, Error: err.Error()}, err
		}
		values, err := numericArgs(name, args)
		if err != nil {
			return EvalResult{Operator: name, Error: err.Error()}, err
		}
		return EvalResult{
			Operator: name,
			Result:   cmp(values[0], values[1]),
		}, nil
	}
}

func opAdd(ctx RequestContext, args []any) (EvalResult, error) {
	values, err := numericArgs("Add", args)
	if err != nil {
		return EvalResult{Operator: "Add", Error: err.Error()}, err
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return EvalResult{Operator: "Add", Result: sum}, nil
}

func opMul(ctx RequestContext, args []any) (EvalResult, error) {
	values, err := numericArgs("Mul", args)
	if err != nil {
		return EvalResult{Operator: "Mul", Error: err.Error()}, err
	}
	product := 1.0
	for _, v := range values {
		product *= v
	}
	return EvalResult{Operator: "Mul", Result: product}, nil
}
