// ABOUTME: Glob-based approval rules with action specifiers, e.g. write_file(docs/**)
// ABOUTME: Deny rules win over allow rules; a matching allow skips the prompt

package approval

import (
	"path/filepath"
	"strings"
)

// Action is a rule decision.
type Action int

const (
	ActionNone  Action = iota // No matching rule
	ActionAllow               // Approve without asking
	ActionDeny                // Deny without asking
)

// Rule pairs an action pattern with an optional specifier pattern.
type Rule struct {
	Action    string // Action name or pattern (supports * suffix)
	Specifier string // Optional: "docs/**", "*.md", "git_push"
	Decision  Action
}

// ParseRule parses "write_file(docs/**)" or a bare "mkdir".
func ParseRule(s string, decision Action) Rule {
	s = strings.TrimSpace(s)
	rule := Rule{Decision: decision}
	if idx := strings.Index(s, "("); idx > 0 && strings.HasSuffix(s, ")") {
		rule.Action = s[:idx]
		rule.Specifier = s[idx+1 : len(s)-1]
	} else {
		rule.Action = s
	}
	return rule
}

// ParseRules builds a rule list from allow and deny strings.
func ParseRules(allow, deny []string) []Rule {
	rules := make([]Rule, 0, len(allow)+len(deny))
	for _, s := range deny {
		rules = append(rules, ParseRule(s, ActionDeny))
	}
	for _, s := range allow {
		rules = append(rules, ParseRule(s, ActionAllow))
	}
	return rules
}

// matches reports whether r applies to action and specifier. Path
// specifiers are tried against the full path, then the relative path,
// then the base name.
func (r Rule) matches(action string, specifiers ...string) bool {
	if !matchActionPattern(r.Action, action) {
		return false
	}
	if r.Specifier == "" {
		return true
	}
	for _, spec := range specifiers {
		if spec != "" && matchSpecifier(r.Specifier, spec) {
			return true
		}
	}
	return false
}

func matchSpecifier(pattern, spec string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return spec == prefix || strings.HasPrefix(spec, prefix+"/")
	}
	if strings.HasSuffix(pattern, "*") && !strings.ContainsAny(pattern[:len(pattern)-1], "*?[") {
		return strings.HasPrefix(spec, pattern[:len(pattern)-1])
	}
	if matched, _ := filepath.Match(pattern, spec); matched {
		return true
	}
	return pattern == spec
}

func matchActionPattern(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	}
	return strings.EqualFold(pattern, name)
}

// evaluate returns the first deny match, else the first allow match.
func evaluate(rules []Rule, action string, specifiers ...string) (Action, Rule) {
	for _, r := range rules {
		if r.Decision == ActionDeny && r.matches(action, specifiers...) {
			return ActionDeny, r
		}
	}
	for _, r := range rules {
		if r.Decision == ActionAllow && r.matches(action, specifiers...) {
			return ActionAllow, r
		}
	}
	return ActionNone, Rule{}
}

func (r Rule) String() string {
	if r.Specifier == "" {
		return r.Action
	}
	return r.Action + "(" + r.Specifier + ")"
}
