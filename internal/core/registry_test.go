package core

import (
	"testing"
)

// isolateRegistry empties the registry for one test and puts the previous
// rules back afterwards.
func isolateRegistry(t *testing.T) {
	t.Helper()
	saved := Rules()
	Clear()
	t.Cleanup(func() {
		Clear()
		for _, r := range saved {
			Register(r)
		}
	})
}

func named(name string, priority int) LayoutRule {
	r := validRule()
	r.Name = name
	r.Priority = priority
	return r
}

func TestRegister(t *testing.T) {
	isolateRegistry(t)

	r := named("acme", 5)
	r.Sign = ""
	Register(r)

	got, ok := Get("acme")
	if !ok {
		t.Fatal("rule not registered")
	}
	if got.Sign != SignSingle {
		t.Errorf("Sign = %q, want default single", got.Sign)
	}
	if RuleCount() != 1 {
		t.Errorf("RuleCount() = %d, want 1", RuleCount())
	}
	if _, ok := Get("missing"); ok {
		t.Error("Get(missing) should fail")
	}
}

func TestRegister_Panics(t *testing.T) {
	isolateRegistry(t)
	Register(named("acme", 5))

	tests := []struct {
		name string
		rule LayoutRule
	}{
		{"duplicate", named("acme", 6)},
		{"invalid", LayoutRule{Name: "broken"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			Register(tt.rule)
		})
	}
}

func TestRules_Order(t *testing.T) {
	isolateRegistry(t)
	Register(named("zeta", 10))
	Register(named("alpha", 10))
	Register(named("first", 1))

	rules := Rules()
	want := []string{"first", "alpha", "zeta"}
	if len(rules) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(rules))
	}
	for i, name := range want {
		if rules[i].Name != name {
			t.Errorf("rules[%d] = %q, want %q", i, rules[i].Name, name)
		}
	}
}

func TestMergeRules(t *testing.T) {
	builtin := []LayoutRule{named("generic", 300), named("bank", 50)}
	override := named("bank", 400)
	override.Currency = "EUR"
	custom := named("custom", 10)

	merged := MergeRules(builtin, []LayoutRule{override, custom})

	want := []string{"custom", "generic", "bank"}
	if len(merged) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(merged))
	}
	for i, name := range want {
		if merged[i].Name != name {
			t.Errorf("merged[%d] = %q, want %q", i, merged[i].Name, name)
		}
	}
	if merged[2].Currency != "EUR" {
		t.Error("later rule set should replace the earlier rule")
	}
}

func TestClear(t *testing.T) {
	isolateRegistry(t)
	Register(named("acme", 1))
	Clear()
	if RuleCount() != 0 {
		t.Errorf("RuleCount() = %d after Clear", RuleCount())
	}
}
