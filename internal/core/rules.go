package core

import "printvault/pkg/domain"

// Re-exported so rule implementations and call sites stay inside core.
type (
	Rule        = domain.Rule
	RulesEngine = domain.RulesEngine
)

func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }

// NewDefaultRulesEngine wires up the stock policy rules every store opens
// with: reference targets must exist and natural keys must stay unique.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewReferentialIntegrityRule())
	engine.Register(NewUniqueNameRule())
	return engine
}
