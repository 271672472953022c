package brain

import (
	"fmt"
	"sync"

	"github.com/octoreflex/flowcore/internal/flow"
)

// EscalationRule evaluates accumulated evidence and returns the tier it
// indicates, or false if it has no opinion. RiskController always
// evaluates the built-in R-1/R-2/R-3 rules first; registered rules are
// consulted afterward and can only push the tier up, never down — the
// same no-drop-without-decay contract the built-in rules follow.
type EscalationRule func(evidence EvidenceState) (flow.DefenseTier, bool)

var (
	rulesMu sync.RWMutex
	rules   = map[string]EscalationRule{}
)

// RegisterEscalationRule adds a named custom escalation rule to the
// global registry. It panics if name is already registered — rule names
// must be unique, the same way a duplicate metric or scorer name would be
// a programming error caught at init time rather than silently shadowed.
func RegisterEscalationRule(name string, rule EscalationRule) {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	if _, exists := rules[name]; exists {
		panic(fmt.Sprintf("brain: escalation rule %q already registered", name))
	}
	rules[name] = rule
}

// GetEscalationRule looks up a previously registered rule by name.
func GetEscalationRule(name string) (EscalationRule, bool) {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	r, ok := rules[name]
	return r, ok
}

// ListEscalationRules returns the names of all registered custom rules.
func ListEscalationRules() []string {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	return names
}
