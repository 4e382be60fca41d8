package promptrule

import "testing"

func boolPtr(b bool) *bool { return &b }

func TestEvaluate_DisabledGloballyReturnsNil(t *testing.T) {
	e, err := Compile(Config{Enabled: false, Rules: []RuleSpec{
		{ID: "q", Type: MatcherRegex, Pattern: `\?`, IncrementalOutput: true},
	}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if sig := e.Evaluate("ready?", Override{}); sig != nil {
		t.Fatalf("expected nil, got %+v", sig)
	}
}

func TestEvaluate_UserOverrideDisables(t *testing.T) {
	e, err := Compile(Config{Enabled: true, Rules: []RuleSpec{
		{ID: "q", Type: MatcherRegex, Pattern: `\?`, IncrementalOutput: true},
	}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	sig := e.Evaluate("ready?", Override{Enabled: boolPtr(false), ForceIncremental: true})
	if sig != nil {
		t.Fatalf("enabled=false must win over force_incremental, got %+v", sig)
	}
}

func TestEvaluate_FirstMatchWins(t *testing.T) {
	e, err := Compile(Config{Enabled: true, Rules: []RuleSpec{
		{ID: "first", Type: MatcherKeyword, Keywords: []string{"proceed"}, IncrementalOutput: false,
			Buttons: []Button{{Label: "Yes", Action: "1"}}},
		{ID: "second", Type: MatcherRegex, Pattern: `\?`, IncrementalOutput: true},
	}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	sig := e.Evaluate("Do you want to proceed?", Override{})
	if sig == nil {
		t.Fatal("expected a signal")
	}
	if sig.Incremental {
		t.Fatalf("expected first rule's incremental_output=false to apply, got %+v", sig)
	}
	if len(sig.Buttons) != 1 || sig.Buttons[0].Label != "Yes" {
		t.Fatalf("expected first rule's buttons, got %+v", sig.Buttons)
	}
}

func TestEvaluate_ForceIncrementalOverridesMatchedRule(t *testing.T) {
	e, err := Compile(Config{Enabled: true, Rules: []RuleSpec{
		{ID: "q", Type: MatcherRegex, Pattern: `\?`, IncrementalOutput: false},
	}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	sig := e.Evaluate("ready?", Override{ForceIncremental: true})
	if sig == nil || !sig.Incremental {
		t.Fatalf("expected force_incremental to flip to true, got %+v", sig)
	}
}

func TestEvaluate_NoMatchDefaultSilence(t *testing.T) {
	e, err := Compile(Config{Enabled: true, DefaultSilence: true, Rules: []RuleSpec{
		{ID: "q", Type: MatcherRegex, Pattern: `\?`, IncrementalOutput: true},
	}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if sig := e.Evaluate("no question here", Override{}); sig != nil {
		t.Fatalf("expected nil under default_silence, got %+v", sig)
	}
}

func TestEvaluate_NoMatchMinimalSignalWhenNotSilent(t *testing.T) {
	e, err := Compile(Config{Enabled: true, DefaultSilence: false, Rules: nil})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	sig := e.Evaluate("anything", Override{})
	if sig == nil || !sig.Incremental || len(sig.Buttons) != 0 {
		t.Fatalf("expected minimal signal, got %+v", sig)
	}
}

func TestEvaluate_KeywordCaseSensitivity(t *testing.T) {
	e, err := Compile(Config{Enabled: true, DefaultSilence: true, Rules: []RuleSpec{
		{ID: "k", Type: MatcherKeyword, Keywords: []string{"ERROR"}, CaseSensitive: true, IncrementalOutput: true},
	}})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if sig := e.Evaluate("error: bad", Override{}); sig != nil {
		t.Fatalf("expected no match with case-sensitive mismatch, got %+v", sig)
	}
	if sig := e.Evaluate("ERROR: bad", Override{}); sig == nil {
		t.Fatal("expected match on exact case")
	}
}
