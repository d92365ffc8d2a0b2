package resource

import (
	"fmt"
)

// SecurityGroupRule is identified by (security group, source, from_port,
// to_port, protocol). Exactly one of SourceIP (a CIDR string) or
// SourceGroup (a security group name reference) is set.
type SecurityGroupRule struct {
	SecurityGroup string
	SourceIP      string
	SourceGroup   string
	FromPort      int
	ToPort        int
	Protocol      string
}

// key returns the identity tuple used for set membership and equality.
func (r SecurityGroupRule) key() string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%d\x00%d\x00%s",
		r.SecurityGroup, r.SourceIP, r.SourceGroup, r.FromPort, r.ToPort, r.Protocol)
}

// AsMap produces the structural, JSON-ready form of a rule. source_ip and
// source_group are omitted when absent, and the port fields are omitted
// when both are zero (falsy), per spec.md §4.A.
func (r SecurityGroupRule) AsMap() map[string]interface{} {
	m := map[string]interface{}{
		"security_group": r.SecurityGroup,
		"protocol":       r.Protocol,
	}
	if r.SourceIP != "" {
		m["source_ip"] = r.SourceIP
	}
	if r.SourceGroup != "" {
		m["source_group"] = r.SourceGroup
	}
	if r.FromPort != 0 || r.ToPort != 0 {
		m["from_port"] = r.FromPort
		m["to_port"] = r.ToPort
	}
	return m
}

// RuleSet is an insertion-ordered set of SecurityGroupRules, keyed by their
// full identity tuple rather than by name (rules have no name).
type RuleSet struct {
	order []string
	items map[string]SecurityGroupRule
}

// NewRuleSet builds a RuleSet from zero or more rules.
func NewRuleSet(rules ...SecurityGroupRule) *RuleSet {
	s := &RuleSet{items: map[string]SecurityGroupRule{}}
	for _, r := range rules {
		s.Add(r)
	}
	return s
}

// Add inserts r, overwriting any existing rule with the same identity.
func (s *RuleSet) Add(r SecurityGroupRule) {
	if s.items == nil {
		s.items = map[string]SecurityGroupRule{}
	}
	k := r.key()
	if _, exists := s.items[k]; !exists {
		s.order = append(s.order, k)
	}
	s.items[k] = r
}

// Has reports whether r is a member.
func (s *RuleSet) Has(r SecurityGroupRule) bool {
	if s == nil {
		return false
	}
	_, ok := s.items[r.key()]
	return ok
}

// Remove deletes r, if present.
func (s *RuleSet) Remove(r SecurityGroupRule) {
	k := r.key()
	if _, ok := s.items[k]; !ok {
		return
	}
	delete(s.items, k)
	for i, kk := range s.order {
		if kk == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Values returns the rules in insertion order.
func (s *RuleSet) Values() []SecurityGroupRule {
	if s == nil {
		return nil
	}
	out := make([]SecurityGroupRule, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.items[k])
	}
	return out
}

// Len returns the number of rules. A nil RuleSet is empty.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// IsEmpty reports whether the set has no rules.
func (s *RuleSet) IsEmpty() bool { return s.Len() == 0 }

// Subtract returns the rules of s whose identity does not appear in other.
func (s *RuleSet) Subtract(other *RuleSet) *RuleSet {
	result := NewRuleSet()
	if s == nil {
		return result
	}
	for _, k := range s.order {
		if other == nil || !other.Has(s.items[k]) {
			result.Add(s.items[k])
		}
	}
	return result
}

// Equal reports whether s and other contain exactly the same rules.
func (s *RuleSet) Equal(other *RuleSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	if s == nil {
		return true
	}
	for k := range s.items {
		if other == nil {
			return false
		}
		if _, ok := other.items[k]; !ok {
			return false
		}
	}
	return true
}
