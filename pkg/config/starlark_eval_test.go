package config

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestEvaluateExportsGlobals(t *testing.T) {
	eval := NewStarlarkEvaluator(5 * time.Second)
	result, err := eval.Evaluate(context.Background(), `
count = 3
subnets = ["10.0." + str(i) + ".0/24" for i in range(count)]
_internal = "hidden"
`, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.Output["count"] != int64(3) {
		t.Errorf("count = %v (%T)", result.Output["count"], result.Output["count"])
	}
	subnets, ok := result.Output["subnets"].([]any)
	if !ok || len(subnets) != 3 {
		t.Fatalf("subnets = %v", result.Output["subnets"])
	}
	if subnets[1] != "10.0.1.0/24" {
		t.Errorf("subnets[1] = %v", subnets[1])
	}
	if _, exported := result.Output["_internal"]; exported {
		t.Error("underscore globals must not be exported")
	}
}

func TestEvaluatePassesInput(t *testing.T) {
	eval := NewStarlarkEvaluator(5 * time.Second)
	result, err := eval.Evaluate(context.Background(), `
doubled = {k: v * 2 for k, v in sizes.items()}
`, map[string]any{
		"sizes": map[string]any{"web": 2, "worker": 4},
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	doubled, ok := result.Output["doubled"].(map[string]any)
	if !ok {
		t.Fatalf("doubled = %v", result.Output["doubled"])
	}
	if doubled["web"] != int64(4) || doubled["worker"] != int64(8) {
		t.Errorf("doubled = %v", doubled)
	}
}

func TestEvaluateSyntaxError(t *testing.T) {
	eval := NewStarlarkEvaluator(5 * time.Second)
	_, err := eval.Evaluate(context.Background(), `this is not starlark`, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "execution failed") {
		t.Errorf("error = %v", err)
	}
}

func TestEvaluateCancelledContext(t *testing.T) {
	eval := NewStarlarkEvaluator(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := eval.Evaluate(ctx, `x = 1`, nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
