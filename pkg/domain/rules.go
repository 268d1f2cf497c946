package domain

import "context"

// Rule is evaluated against the post-transaction view before commit.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view TransactionView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in evaluation order.
func (e *RulesEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate executes all registered rules and aggregates their violations.
func (e *RulesEngine) Evaluate(ctx context.Context, view TransactionView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Violations = append(combined.Violations, res.Violations...)
	}
	return combined, nil
}

// TouchedPrisons returns the distinct prison ids named by changes, in first
// seen order.
func TouchedPrisons(changes []Change) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range changes {
		if c.PrisonID == "" || seen[c.PrisonID] {
			continue
		}
		seen[c.PrisonID] = true
		out = append(out, c.PrisonID)
	}
	return out
}
