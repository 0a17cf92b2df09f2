// Package policy guards venue calls with an OPA policy evaluated after
// session authorization and before anything leaves the gateway.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Decision values returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("decision = data.venue_policy.decision; reason = data.venue_policy.reason"),
		rego.Module("venue_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// LoadEngine reads the policy from path, or uses DefaultPolicy when path is
// empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate checks a venue call. Input is the call as the venue would see
// it (operation, amounts, pool). Returns the decision and an optional reason.
func (e *Engine) Evaluate(ctx context.Context, input any) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// Undefined decision means the policy has no opinion.
	if len(results) == 0 {
		return DecisionAllow, "", nil
	}

	decision, ok := results[0].Bindings["decision"].(string)
	if !ok {
		return "", "", fmt.Errorf("policy decision is not a string: %v", results[0].Bindings["decision"])
	}
	reason, _ := results[0].Bindings["reason"].(string)
	return decision, reason, nil
}

// DefaultPolicy is the built-in venue policy.
const DefaultPolicy = `
package venue_policy

default decision = "allow"

default reason = ""

# A swap with no output floor accepts any price.
decision = "block" {
	input.operation == "swap"
	input.min_amount_out == 0
}

reason = "swap requires a minimum output amount" {
	input.operation == "swap"
	input.min_amount_out == 0
}

decision = "block" {
	input.operation == "add_liquidity"
	input.amount_a == 0
	input.amount_b == 0
}

reason = "deposit moves no value" {
	input.operation == "add_liquidity"
	input.amount_a == 0
	input.amount_b == 0
}
`
