package rule

import "testing"

func TestMatchesBooleanOperators(t *testing.T) {
	tests := []struct {
		name string
		rule string
		text string
		want bool
	}{
		{"or matches first branch", `"Rapid Wien" OR "Sturm Graz"`, "Rapid Wien beats Salzburg", true},
		{"or matches second branch", `"Rapid Wien" OR "Sturm Graz"`, "Sturm Graz draw at home", true},
		{"or matches neither", `"Rapid Wien" OR "Sturm Graz"`, "Austria Wien lose again", false},
		{"and requires both", `bitcoin AND crash`, "bitcoin hits new high", false},
		{"and matches both", `bitcoin AND crash`, "bitcoin crash wipes out gains", true},
		{"and binds tighter than or", `a AND b OR c`, "only c here", true},
		{"and binds tighter than or negative", `a AND b OR c`, "only b here", false},
		{"parens override precedence", `a AND (b OR c)`, "a and c together", true},
		{"parens override precedence negative", `a AND (b OR c)`, "b or c but no first letter", false},
		{"case insensitive terms", `BITCOIN`, "Bitcoin tumbles", true},
		{"quoted phrase keeps spacing", `"climate change"`, "climate  change", false},
		{"lowercase operators work", `cats or dogs`, "raining dogs", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.text, tt.rule); got != tt.want {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.text, tt.rule, got, tt.want)
			}
		})
	}
}

func TestMatchesRegex(t *testing.T) {
	tests := []struct {
		name string
		rule string
		text string
		want bool
	}{
		{"digit pattern", `/\d+:\d+/`, "final score 3:1 after extra time", true},
		{"digit pattern no match", `/\d+:\d+/`, "no score yet", false},
		{"regex is case insensitive", `/breaking/`, "BREAKING news", true},
		{"regex mixed with terms", `sport AND /\d+:\d+/`, "sport update 2:0", true},
		{"escaped slash inside pattern", `/a\/b/`, "path a/b found", true},
		{"invalid regex degrades to substring", `/[unclosed/`, "text with [unclosed bracket", true},
		{"invalid regex substring no match", `/[unclosed/`, "plain text", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.text, tt.rule); got != tt.want {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.text, tt.rule, got, tt.want)
			}
		})
	}
}

func TestMatchesFallback(t *testing.T) {
	// A stray quote makes the rule unparseable. The whole rule text then
	// acts as a single substring needle.
	rule := `broken "rule`
	if !Matches(`this broken "rule appears verbatim`, rule) {
		t.Error("expected unparseable rule to fall back to substring match")
	}
	if Matches("unrelated text", rule) {
		t.Error("expected fallback substring not to match unrelated text")
	}

	// Two adjacent terms without an operator do not parse either.
	if !Matches("covering foo bar today", "foo bar") {
		t.Error("expected adjacent terms to fall back to whole-rule substring")
	}
}

func TestMatchesEmptyRule(t *testing.T) {
	if Matches("anything", "") {
		t.Error("empty rule must never match")
	}
	if Matches("anything", "   ") {
		t.Error("blank rule must never match")
	}
}

func TestValidate(t *testing.T) {
	valid := []string{
		`bitcoin`,
		`"climate change" AND flood`,
		`a OR (b AND c)`,
		`/\d{4}/i`,
	}
	for _, r := range valid {
		if err := Validate(r); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", r, err)
		}
	}

	invalid := []string{
		``,
		`"unterminated`,
		`/unterminated`,
		`a AND`,
		`(a OR b`,
		`AND b`,
	}
	for _, r := range invalid {
		if err := Validate(r); err == nil {
			t.Errorf("Validate(%q) = nil, want error", r)
		}
	}
}
