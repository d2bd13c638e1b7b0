// Package permission evaluates tool-call authorization rules. Rules are
// ordered; the first rule whose tool glob and argument patterns match
// decides the outcome. An empty rule set, or no matching rule, denies.
package permission

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Action is the outcome of a permission check.
type Action string

// Check outcomes.
const (
	// Allow permits the tool call.
	Allow Action = "allow"
	// Deny rejects the tool call.
	Deny Action = "deny"
	// Ask defers the decision to the embedding application.
	Ask Action = "ask"
)

// Rule matches tool calls by name glob and optional argument patterns.
type Rule struct {
	// Tool is a glob matched against the tool name ("*" matches any
	// name, "file_*" matches file_read, file_write, ...).
	Tool string `yaml:"tool" json:"tool"`

	// Action is the outcome when this rule matches.
	Action Action `yaml:"action" json:"action"`

	// Patterns are substrings matched against the call's string-valued
	// arguments. When present, at least one pattern must match for the
	// rule to apply.
	Patterns []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`
}

// Checker is the boundary the executor consults before dispatching a
// tool call.
type Checker interface {
	Check(tool string, args map[string]any, sessionID string) Action
}

// Manager evaluates an ordered rule list. The zero value denies
// everything (default deny).
type Manager struct {
	rules []Rule
}

// NewManager creates a manager with the given rules, evaluated in order.
func NewManager(rules []Rule) *Manager {
	return &Manager{rules: rules}
}

// AddRule appends a rule. Rules added earlier take precedence.
func (m *Manager) AddRule(rule Rule) {
	m.rules = append(m.rules, rule)
}

// Check evaluates the rules against a tool call. The first matching
// rule's action is returned; no match means Deny.
func (m *Manager) Check(tool string, args map[string]any, _ string) Action {
	for _, rule := range m.rules {
		if !toolMatches(rule.Tool, tool) {
			continue
		}
		if !argsMatch(rule.Patterns, args) {
			continue
		}
		return rule.Action
	}
	return Deny
}

// toolMatches reports whether the tool name matches the rule glob.
// An invalid glob matches nothing.
func toolMatches(pattern, tool string) bool {
	if pattern == "*" {
		return true
	}
	ok, err := doublestar.Match(pattern, tool)
	return err == nil && ok
}

// argsMatch reports whether any pattern occurs as a substring of any
// string-valued argument. An empty pattern list always matches.
func argsMatch(patterns []string, args map[string]any) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		for _, v := range args {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if strings.Contains(s, pattern) {
				return true
			}
		}
	}
	return false
}
