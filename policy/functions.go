package policy

import (
	"encoding/json"
	"fmt"
	"os"
)

const CurrentVersion = "2024-01-01"

func SummarizeConclusion(conclusions []Conclusion, defaultAllow bool) bool {
	result := UNSET
	for _, c := range conclusions {
		switch c {
		case ALLOW:
			return true
		case DENY:
			return false
		default:
			result = result.Or(c)
		}
	}
	if result == UNSET {
		return defaultAllow
	}
	return result == ALLOW
}

func EvaluatePolicy(policydoc PolicyDocument, ctx RequestContext, action string) (Conclusion, error) {

	policy, ok := policydoc.Versions[CurrentVersion]
	if !ok {
		return UNSET, fmt.Errorf("unsupported policy version")
	}

	statements, ok := policy.Statements[action]
	if !ok {
		// No statements for this action
		return UNSET, nil
	}

	conclusion := UNSET
	for _, stmt := range statements {
		evalResult, err := Eval(ctx, stmt.Condition)
		if err != nil {
			continue
		}

		if evalResult.Result == true {
			emit := ParseConclusion(stmt.Emit)
			conclusion = conclusion.Or(emit)
		}
	}
	return conclusion, nil
}

// Decide evaluates action and falls back to the document default when no
// statement concluded.
func Decide(policydoc PolicyDocument, ctx RequestContext, action string) (bool, error) {
	conclusion, err := EvaluatePolicy(policydoc, ctx, action)
	if err != nil {
		return false, err
	}
	defaultAllow := policydoc.Versions[CurrentVersion].Defaults[action]
	return SummarizeConclusion([]Conclusion{conclusion}, defaultAllow), nil
}

func Eval(ctx RequestContext, expr Expr) (EvalResult, error) {

	if expr.Const != nil {
		return EvalResult{
			Operator: "Const",
			Result:   expr.Const,
		}, nil
	}

	args := make([]any, 0, len(expr.Args))
	for _, arg := range expr.Args {
		result, err := Eval(ctx, arg)
		if err != nil {
			return EvalResult{
				Operator: expr.Operator,
				Error:    err.Error(),
			}, err
		}
		args = append(args, result.Result)
	}

	if operatorFunc, exists := operators[expr.Operator]; exists {
		return operatorFunc(ctx, args)
	}

	err := fmt.Errorf("unknown operator: %s", expr.Operator)
	return EvalResult{
		Operator: expr.Operator,
		Error:    err.Error(),
	}, err
}

// LoadDocument reads a JSON policy document from path.
func LoadDocument(path string) (PolicyDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicyDocument{}, err
	}
	var doc PolicyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return PolicyDocument{}, fmt.Errorf("invalid policy document %s: %w", path, err)
	}
	if _, ok := doc.Versions[CurrentVersion]; !ok {
		return PolicyDocument{}, fmt.Errorf("policy document %s has no %s version", path, CurrentVersion)
	}
	return doc, nil
}

func load(key string) Expr {
	return Expr{Operator: "Load", Args: []Expr{{Const: key}}}
}

// SimpleMajority approves when weighted "for" exceeds "against" and the total
// weight cast reaches params.quorum.
func SimpleMajority() PolicyDocument {
	return PolicyDocument{
		Name:        "simple-majority",
		Description: "for > against and total weight >= quorum",
		Versions: map[string]Policy{
			CurrentVersion: {
				Statements: map[string][]Stmt{
					"approve": {
						{
							Emit: "allow",
							Condition: Expr{
								Operator: "And",
								Args: []Expr{
									{Operator: "Gt", Args: []Expr{load("tally.for"), load("tally.against")}},
									{Operator: "Gte", Args: []Expr{load("tally.total"), load("params.quorum")}},
								},
							},
						},
					},
				},
				Defaults: map[string]bool{"approve": false},
			},
		},
	}
}
