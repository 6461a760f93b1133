package policy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func tallyContext(forWeight, against, abstain, quorum float64) RequestContext {
	return RequestContext{
		Tally: map[string]any{
			"for":     forWeight,
			"against": against,
			"abstain": abstain,
			"total":   forWeight + against + abstain,
		},
		Params: map[string]any{
			"quorum": quorum,
		},
	}
}

func TestEvalLoadEq(t *testing.T) {
	ctx := RequestContext{
		Params: map[string]any{
			"user": "alice",
			"role": "admin",
		},
	}

	expr := Expr{
		Operator: "Eq",
		Args: []Expr{
			load("params.role"),
			{Const: "admin"},
		},
	}

	result, err := Eval(ctx, expr)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if result.Result != true {
		t.Fatalf("expected true got %v", result.Result)
	}
}

func TestEvalLoadMissingKey(t *testing.T) {
	_, err := Eval(RequestContext{}, load("tally.for"))
	if err == nil {
		t.Fatalf("expected error for missing key")
	}
}

func TestEvalNumericOperators(t *testing.T) {
	ctx := tallyContext(250, 100, 0, 0)

	cases := []struct {
		name string
		expr Expr
		want any
	}{
		{"gt", Expr{Operator: "Gt", Args: []Expr{load("tally.for"), load("tally.against")}}, true},
		{"lt", Expr{Operator: "Lt", Args: []Expr{load("tally.for"), load("tally.against")}}, false},
		{"lte", Expr{Operator: "Lte", Args: []Expr{{Const: 100}, load("tally.against")}}, true},
		{"add", Expr{Operator: "Add", Args: []Expr{load("tally.for"), load("tally.against"), {Const: 1}}}, 351.0},
		{"mul", Expr{Operator: "Mul", Args: []Expr{load("tally.total"), {Const: 0.5}}}, 175.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Eval(ctx, tc.expr)
			if err != nil {
				t.Fatalf("Eval failed: %v", err)
			}
			if result.Result != tc.want {
				t.Fatalf("expected %v got %v", tc.want, result.Result)
			}
		})
	}
}

func TestEvalNumericTypeMismatch(t *testing.T) {
	_, err := Eval(RequestContext{}, Expr{Operator: "Gt", Args: []Expr{{Const: "a"}, {Const: 1}}})
	if err == nil {
		t.Fatalf("expected type error")
	}
}

func TestSimpleMajority(t *testing.T) {
	doc := SimpleMajority()

	cases := []struct {
		name    string
		ctx     RequestContext
		approve bool
	}{
		{"majority with quorum", tallyContext(250, 100, 0, 300), true},
		{"majority below quorum", tallyContext(250, 0, 0, 300), false},
		{"tie", tallyContext(100, 100, 200, 0), false},
		{"minority", tallyContext(10, 100, 0, 0), false},
		{"abstain counts toward quorum", tallyContext(60, 40, 200, 300), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			approved, err := Decide(doc, tc.ctx, "approve")
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			if approved != tc.approve {
				t.Fatalf("expected %v got %v", tc.approve, approved)
			}
		})
	}
}

func TestDecideUnknownActionUsesDefault(t *testing.T) {
	doc := SimpleMajority()
	v := doc.Versions[CurrentVersion]
	v.Defaults["execute"] = true
	doc.Versions[CurrentVersion] = v

	allowed, err := Decide(doc, tallyContext(0, 0, 0, 0), "execute")
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if !allowed {
		t.Fatalf("expected default allow")
	}
}

func TestSummarizeConclusion(t *testing.T) {
	if SummarizeConclusion([]Conclusion{OK, DENY}, true) {
		t.Fatalf("deny must win")
	}
	if !SummarizeConclusion([]Conclusion{UNSET}, true) {
		t.Fatalf("unset must fall back to default")
	}
	if SummarizeConclusion([]Conclusion{NG}, true) {
		t.Fatalf("ng must not allow")
	}
}

func TestLoadDocument(t *testing.T) {
	data, err := json.Marshal(SimpleMajority())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "approval.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}

	approved, err := Decide(doc, tallyContext(3, 1, 0, 2), "approve")
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if !approved {
		t.Fatalf("expected approval from loaded document")
	}
}

func TestLoadDocumentRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "approval.json")
	if err := os.WriteFile(path, []byte(`{"name":"x","versions":{"1999-01-01":{}}}`), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := LoadDocument(path); err == nil {
		t.Fatalf("expected version error")
	}
}
