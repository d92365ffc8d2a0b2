package resource

import "testing"

func sampleCollection() *Collection {
	c := NewCollection()
	c.SecurityGroups.Add(NewSecurityGroup("web"))
	c.Nodes.Add(&Node{
		Name:               "n1",
		Flavor:             "m1.small",
		Image:              "ubuntu",
		SecurityGroupNames: []string{"web"},
	})
	c.SecurityGroupRules.Add(SecurityGroupRule{
		SecurityGroup: "web",
		SourceIP:      "0.0.0.0/0",
		FromPort:      22,
		ToPort:        22,
		Protocol:      "tcp",
	})
	c.Connect()
	return c
}

func TestCollectionConnectResolvesSecurityGroups(t *testing.T) {
	c := sampleCollection()
	n, _ := c.Nodes.Get("n1")
	node := n.(*Node)
	if node.SecurityGroups.Len() != 1 || !node.SecurityGroups.Has("web") {
		t.Fatalf("expected n1.SecurityGroups to contain web, got %v", node.SecurityGroups.Names())
	}
}

func TestCollectionConnectDropsUnresolvedNames(t *testing.T) {
	c := NewCollection()
	c.Nodes.Add(&Node{Name: "n1", SecurityGroupNames: []string{"external-only"}})
	c.Connect()
	n, _ := c.Nodes.Get("n1")
	if n.(*Node).SecurityGroups.Len() != 0 {
		t.Errorf("unresolved security group names should be silently dropped")
	}
}

func TestCollectionSelfSubtractIsEmpty(t *testing.T) {
	c := sampleCollection()
	diff := c.Subtract(c)
	if !diff.Nodes.IsEmpty() {
		t.Errorf("expected no nodes in self-diff, got %v", diff.Nodes.Names())
	}
	if !diff.SecurityGroups.IsEmpty() {
		t.Errorf("expected no security groups in self-diff")
	}
	if !diff.SecurityGroupRules.IsEmpty() {
		t.Errorf("expected no rules in self-diff")
	}
}

func TestCollectionSubtractIsolatesNewNode(t *testing.T) {
	detected := NewCollection()
	detected.SecurityGroups.Add(NewSecurityGroup("web"))

	desired := sampleCollection()
	diff := desired.Subtract(detected)

	if diff.Nodes.Len() != 1 || !diff.Nodes.Has("n1") {
		t.Fatalf("expected n1 to appear as missing, got %v", diff.Nodes.Names())
	}
	if !diff.SecurityGroups.IsEmpty() {
		t.Errorf("web security group already exists, should not appear in diff")
	}
}

func TestCollectionSubtractSetsOriginalCollection(t *testing.T) {
	desired := sampleCollection()
	diff := desired.Subtract(NewCollection())
	if diff.OriginalCollection != desired {
		t.Errorf("expected OriginalCollection to be the left operand")
	}
}

func TestCollectionEqualIgnoresTransientNodeState(t *testing.T) {
	a := sampleCollection()
	b := sampleCollection()
	n, _ := b.Nodes.Get("n1")
	n.(*Node).ServerID = "some-server-id"

	if !a.Equal(b) {
		t.Errorf("collections differing only in transient node state should be equal")
	}
}

func TestCollectionNotEqualOnDifferingRules(t *testing.T) {
	a := sampleCollection()
	b := sampleCollection()
	b.SecurityGroupRules.Add(SecurityGroupRule{SecurityGroup: "web", FromPort: 80, ToPort: 80, Protocol: "tcp"})

	if a.Equal(b) {
		t.Errorf("collections with different rule sets should not be equal")
	}
}
