package resource

import "testing"

func TestRuleSetSubtractByFullIdentity(t *testing.T) {
	ssh := SecurityGroupRule{SecurityGroup: "web", SourceIP: "0.0.0.0/0", FromPort: 22, ToPort: 22, Protocol: "tcp"}
	http := SecurityGroupRule{SecurityGroup: "web", SourceIP: "0.0.0.0/0", FromPort: 80, ToPort: 80, Protocol: "tcp"}

	desired := NewRuleSet(ssh, http)
	detected := NewRuleSet(ssh)

	diff := desired.Subtract(detected)
	if diff.Len() != 1 || !diff.Has(http) {
		t.Fatalf("expected only http rule in diff, got %v", diff.Values())
	}
}

func TestRuleAsMapOmitsAbsentFields(t *testing.T) {
	r := SecurityGroupRule{SecurityGroup: "web", SourceGroup: "web", Protocol: "tcp"}
	m := r.AsMap()
	if _, ok := m["source_ip"]; ok {
		t.Errorf("source_ip should be omitted when empty")
	}
	if _, ok := m["from_port"]; ok {
		t.Errorf("from_port should be omitted when both ports are zero")
	}
	if m["source_group"] != "web" {
		t.Errorf("source_group should be present when set")
	}
}

func TestRuleSetEqualNilSafety(t *testing.T) {
	var a, b *RuleSet
	if !a.Equal(b) {
		t.Errorf("two nil RuleSets should be equal")
	}
	if a.Subtract(b) == nil {
		t.Errorf("Subtract should never return nil")
	}
}
