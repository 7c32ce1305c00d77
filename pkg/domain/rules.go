package domain

import "context"

// Rule inspects the state a transaction is about to commit. The view exposes
// that pending state and changes lists every mutation the transaction made.
// Findings come back in the Result; a non-nil error aborts evaluation.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view TransactionView, changes []Change) (Result, error)
}

// RulesEngine runs every registered rule against a transaction and folds
// their findings into one Result, in registration order.
type RulesEngine struct {
	rules []Rule
}

func NewRulesEngine() *RulesEngine { return &RulesEngine{} }

// Register adds rule to the evaluation set.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate runs the registered rules in order. A rule returning an error
// stops evaluation and discards any findings collected so far.
func (e *RulesEngine) Evaluate(ctx context.Context, view TransactionView, changes []Change) (Result, error) {
	var out Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		out.Merge(res)
	}
	return out, nil
}
