// internal/attr/rules.go
package attr

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Rule binds a path pattern to a set of attribute values.
type Rule struct {
	Pattern string           `json:"pattern"`
	Attrs   map[string]Value `json:"attrs"`

	matcher glob.Glob
}

// Matches reports whether the rule applies to path. Patterns without a
// separator match against the base name at any depth; patterns with one
// match against the whole slash-separated path.
func (r *Rule) Matches(path string) bool {
	if r.matcher == nil {
		return false
	}
	path = filepath.ToSlash(path)
	if !strings.Contains(r.Pattern, "/") {
		return r.matcher.Match(filepath.Base(path))
	}
	return r.matcher.Match(path)
}

// RuleSet is an ordered list of rules. Later rules override earlier ones
// for the names they set, so precedence follows insertion order.
type RuleSet struct {
	rules []Rule
}

func NewRuleSet() *RuleSet {
	return &RuleSet{}
}

// Add compiles pattern and appends a rule. The attrs map is retained.
func (rs *RuleSet) Add(pattern string, attrs map[string]Value) error {
	m, err := glob.Compile(pattern, '/')
	if err != nil {
		return fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}
	rs.rules = append(rs.rules, Rule{
		Pattern: pattern,
		Attrs:   attrs,
		matcher: m,
	})
	return nil
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Rules returns the rules in precedence order.
func (rs *RuleSet) Rules() []Rule {
	return rs.rules
}

// Lookup implements Source over the rule set.
func (rs *RuleSet) Lookup(path string, names []string) ([]Value, error) {
	values := make([]Value, len(names))
	matched := false

	for i := range rs.rules {
		rule := &rs.rules[i]
		if !rule.Matches(path) {
			continue
		}
		matched = true
		for j, name := range names {
			if v, ok := rule.Attrs[name]; ok && !v.IsUnset() {
				values[j] = v
			}
		}
	}

	if !matched {
		return nil, ErrNotFound
	}
	return values, nil
}
