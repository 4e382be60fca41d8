// Package policy is the pure length/block-list/allow-list predicate applied
// to outgoing shell text before it reaches the terminal driver.
package policy

import "regexp"

// RejectReason classifies why a command was rejected.
type RejectReason string

const (
	ReasonTooLong       RejectReason = "too_long"
	ReasonBlocked       RejectReason = "blocked"
	ReasonNotAllowlisted RejectReason = "not_allowlisted"
)

// Verdict is the outcome of Check.
type Verdict struct {
	Allowed bool
	Reason  RejectReason
}

// Config is compiled once at load; the rule list is immutable afterward.
type Config struct {
	MaxLength        int
	BlockedPatterns  []*regexp.Regexp
	AllowedPatterns  []*regexp.Regexp
	RequireAllowlist bool
}

// Compile precompiles the configured regex lists.
func Compile(maxLength int, blocked, allowed []string, requireAllowlist bool) (*Config, error) {
	c := &Config{MaxLength: maxLength, RequireAllowlist: requireAllowlist}
	for _, pattern := range blocked {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		c.BlockedPatterns = append(c.BlockedPatterns, re)
	}
	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		c.AllowedPatterns = append(c.AllowedPatterns, re)
	}
	return c, nil
}

// Check is deterministic and side-effect-free: identical input, identical
// output, every time.
func (c *Config) Check(cmd string) Verdict {
	if c.MaxLength > 0 && len(cmd) > c.MaxLength {
		return Verdict{Allowed: false, Reason: ReasonTooLong}
	}
	for _, re := range c.BlockedPatterns {
		if re.MatchString(cmd) {
			return Verdict{Allowed: false, Reason: ReasonBlocked}
		}
	}
	// Open question resolution: allowed_patterns is inert unless
	// require_allowlist is true, regardless of whether the list is empty.
	if c.RequireAllowlist {
		matched := false
		for _, re := range c.AllowedPatterns {
			if re.MatchString(cmd) {
				matched = true
				break
			}
		}
		if !matched {
			return Verdict{Allowed: false, Reason: ReasonNotAllowlisted}
		}
	}
	return Verdict{Allowed: true}
}
