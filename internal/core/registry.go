package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]LayoutRule)
	registryMu sync.RWMutex
)

// Register adds a layout rule to the registry.
// Panics if a rule with the same name is already registered or the rule is
// invalid.
func Register(rule LayoutRule) {
	if rule.Sign == "" {
		rule.Sign = SignSingle
	}
	if err := rule.Validate(); err != nil {
		panic(err.Error())
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[rule.Name]; exists {
		panic(fmt.Sprintf("layout already registered: %s", rule.Name))
	}
	registry[rule.Name] = rule
}

// Get returns a layout rule by name.
func Get(name string) (LayoutRule, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	rule, ok := registry[name]
	return rule, ok
}

// Rules returns all registered rules in evaluation order.
func Rules() []LayoutRule {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]LayoutRule, 0, len(registry))
	for _, rule := range registry {
		result = append(result, rule)
	}
	SortRules(result)
	return result
}

// MergeRules combines rule sets. A later rule replaces an earlier one with
// the same name. The result is in evaluation order.
func MergeRules(sets ...[]LayoutRule) []LayoutRule {
	byName := make(map[string]LayoutRule)
	for _, set := range sets {
		for _, rule := range set {
			byName[rule.Name] = rule
		}
	}
	result := make([]LayoutRule, 0, len(byName))
	for _, rule := range byName {
		result = append(result, rule)
	}
	SortRules(result)
	return result
}

// SortRules orders rules by priority, then by name for consistent ordering.
func SortRules(rules []LayoutRule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].Name < rules[j].Name
	})
}

// RuleCount returns the number of registered rules.
func RuleCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered rules.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]LayoutRule)
}
