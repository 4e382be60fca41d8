// Package promptrule matches captured terminal text against an ordered set
// of rules to decide whether the output scheduler should emit an
// incremental chunk and which buttons to attach. It generalizes the
// teacher's single hardcoded "yolo approval" pattern into a configured,
// ordered rule list.
package promptrule

import "regexp"

// MatcherType selects how a rule matches text.
type MatcherType string

const (
	MatcherRegex   MatcherType = "regex"
	MatcherKeyword MatcherType = "keyword"
)

// Button is an interactive reply whose click-action is literal terminal
// keystrokes.
type Button struct {
	Label  string
	Action string
}

// Rule is one compiled prompt-matching rule, in configured order.
type Rule struct {
	ID                string
	Type              MatcherType
	Pattern           *regexp.Regexp // set when Type == MatcherRegex
	Keywords          []string       // set when Type == MatcherKeyword, already case-normalized
	CaseSensitive     bool
	IncrementalOutput bool
	Buttons           []Button
}

// RuleSpec is the uncompiled configuration form of a Rule.
type RuleSpec struct {
	ID                string
	Type              MatcherType
	Pattern           string
	Keywords          []string
	CaseSensitive     bool
	IncrementalOutput bool
	Buttons           []Button
}

// Signal is the result of a rule hit.
type Signal struct {
	Incremental bool
	Buttons     []Button
}

// Override is a per-user adjustment to engine behavior.
type Override struct {
	Enabled          *bool // nil means "no override"
	ForceIncremental bool
}

// Engine holds the compiled, immutable rule list. There is no reload: the
// engine is compiled once and nothing mutates it afterward.
type Engine struct {
	enabled       bool
	defaultSilence bool
	rules         []Rule
}

// Config controls global engine behavior.
type Config struct {
	Enabled        bool
	DefaultSilence bool
	Rules          []RuleSpec
}

// Compile precompiles regex rules and normalizes keyword case once, per the
// "plain records compiled once at load time" design note.
func Compile(cfg Config) (*Engine, error) {
	e := &Engine{enabled: cfg.Enabled, defaultSilence: cfg.DefaultSilence}
	for _, spec := range cfg.Rules {
		rule := Rule{
			ID:                spec.ID,
			Type:              spec.Type,
			CaseSensitive:     spec.CaseSensitive,
			IncrementalOutput: spec.IncrementalOutput,
			Buttons:           spec.Buttons,
		}
		switch spec.Type {
		case MatcherRegex:
			pattern := spec.Pattern
			if !spec.CaseSensitive {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, err
			}
			rule.Pattern = re
		case MatcherKeyword:
			for _, kw := range spec.Keywords {
				if !spec.CaseSensitive {
					kw = toLower(kw)
				}
				rule.Keywords = append(rule.Keywords, kw)
			}
		}
		e.rules = append(e.rules, rule)
	}
	return e, nil
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func contains(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func (r Rule) matches(text string) bool {
	switch r.Type {
	case MatcherRegex:
		return r.Pattern != nil && r.Pattern.MatchString(text)
	case MatcherKeyword:
		haystack := text
		if !r.CaseSensitive {
			haystack = toLower(text)
		}
		for _, kw := range r.Keywords {
			if contains(haystack, kw) {
				return true
			}
		}
	}
	return false
}

// Evaluate runs the algorithm from the prompt-rule design: global/user
// enable short-circuit, first-match-wins over the ordered rule list, user
// force_incremental override, and default-silence fallback.
func (e *Engine) Evaluate(text string, override Override) *Signal {
	enabled := e.enabled
	if override.Enabled != nil {
		enabled = *override.Enabled
	}
	// enabled=false always wins over force_incremental, per the resolved
	// open question on conflicting overrides.
	if !enabled {
		return nil
	}

	for _, rule := range e.rules {
		if !rule.matches(text) {
			continue
		}
		incremental := rule.IncrementalOutput
		if override.ForceIncremental {
			incremental = true
		}
		return &Signal{Incremental: incremental, Buttons: rule.Buttons}
	}

	if e.defaultSilence {
		return nil
	}
	return &Signal{Incremental: true, Buttons: nil}
}
