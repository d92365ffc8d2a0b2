package provision

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aasemble/cloudctl/pkg/loader"
	"github.com/aasemble/cloudctl/pkg/resource"
)

// fakeProvisionDriver is a minimal in-memory stand-in for openstack.Driver,
// enough to exercise Runner.Provision's network/secgroup/node build and poll
// sequencing without a real OpenStack endpoint.
type fakeProvisionDriver struct {
	existingNetworks []string
	existingGroups   *resource.NamedSet
	existingNodes    []*resource.Node

	counters map[string]int
	statuses map[string]string // serverID -> status to report on every poll; unlisted ids report "ACTIVE"
	deleted  []string
}

// id returns a stable, per-prefix sequence ("server-1", "server-2", ...) so
// tests can predict the id a particular resource kind's first creation call
// will receive regardless of how many other kinds are created first.
func (f *fakeProvisionDriver) id(prefix string) string {
	if f.counters == nil {
		f.counters = map[string]int{}
	}
	f.counters[prefix]++
	return fmt.Sprintf("%s-%d", prefix, f.counters[prefix])
}

func (f *fakeProvisionDriver) DetectResources(ctx context.Context) (*resource.Collection, error) {
	return resource.NewCollection(), nil
}
func (f *fakeProvisionDriver) ApplyResources(ctx context.Context, coll *resource.Collection) error {
	return nil
}
func (f *fakeProvisionDriver) CleanResources(ctx context.Context, coll *resource.Collection) error {
	return nil
}
func (f *fakeProvisionDriver) CreateNode(ctx context.Context, n *resource.Node) error { return nil }
func (f *fakeProvisionDriver) CreateSecurityGroup(ctx context.Context, sg *resource.SecurityGroup) error {
	return nil
}
func (f *fakeProvisionDriver) CreateSecurityGroupRule(ctx context.Context, r resource.SecurityGroupRule) error {
	return nil
}
func (f *fakeProvisionDriver) DeleteNode(ctx context.Context, n *resource.Node) error { return nil }

func (f *fakeProvisionDriver) DetectFirewalls(ctx context.Context) (*resource.NamedSet, *resource.RuleSet, error) {
	groups := f.existingGroups
	if groups == nil {
		groups = resource.NewNamedSet()
	}
	return groups, resource.NewRuleSet(), nil
}

func (f *fakeProvisionDriver) DetectNodes(ctx context.Context) ([]*resource.Node, error) {
	return f.existingNodes, nil
}

func (f *fakeProvisionDriver) ClusterData(coll *resource.Collection) (map[string]interface{}, error) {
	return nil, nil
}

func (f *fakeProvisionDriver) FindKeyPairByFingerprint(ctx context.Context, fingerprint string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeProvisionDriver) ImportKeyPair(ctx context.Context, name string, publicKey []byte) error {
	return nil
}

func (f *fakeProvisionDriver) Delete(ctx context.Context, entryType, id string) error {
	f.deleted = append(f.deleted, entryType+":"+id)
	return nil
}

func (f *fakeProvisionDriver) ListNetworks(ctx context.Context) ([]string, error) {
	return f.existingNetworks, nil
}

func (f *fakeProvisionDriver) CreateNetwork(ctx context.Context, name, cidr, routerName string) (string, string, error) {
	return f.id("net"), f.id("subnet"), nil
}

func (f *fakeProvisionDriver) DeleteSubnet(ctx context.Context, subnetID string) error { return nil }

func (f *fakeProvisionDriver) CreateSecurityGroupWithRules(ctx context.Context, name string, rules []resource.SecurityGroupRule) (string, error) {
	return f.id("sg"), nil
}

func (f *fakeProvisionDriver) AllocateFloatingIP(ctx context.Context) (*resource.FloatingIP, error) {
	return &resource.FloatingIP{ID: f.id("fip"), IPAddress: "203.0.113.1"}, nil
}

func (f *fakeProvisionDriver) CreatePortOnNetwork(ctx context.Context, networkID string, securityGroupIDs []string) (string, string, error) {
	return f.id("port"), "10.0.0.5", nil
}

func (f *fakeProvisionDriver) CreateVolume(ctx context.Context, sizeGB int, imageRef string) (string, error) {
	return f.id("vol"), nil
}

func (f *fakeProvisionDriver) WaitVolumeAvailable(ctx context.Context, volumeID string) error {
	return nil
}

func (f *fakeProvisionDriver) BuildServerFromVolume(ctx context.Context, name, flavor, volumeID string, networkIDs []string) (string, error) {
	return f.id("server"), nil
}

func (f *fakeProvisionDriver) GetServerStatus(ctx context.Context, serverID string) (string, error) {
	if status, ok := f.statuses[serverID]; ok {
		return status, nil
	}
	return "ACTIVE", nil
}

func testCollection() (*resource.Collection, loader.Networks) {
	coll := resource.NewCollection()
	coll.SecurityGroups.Add(resource.NewSecurityGroup("web"))
	coll.SecurityGroupRules.Add(resource.SecurityGroupRule{SecurityGroup: "web", FromPort: 80, ToPort: 80, Protocol: "tcp", SourceIP: "0.0.0.0/0"})

	n := resource.NewNode("web")
	n.Flavor = "m1.small"
	n.Image = "ubuntu-22.04"
	n.Disk = 10
	n.Networks = []resource.NetworkAttachment{{Network: "private", AssignFloatingIP: true, SecurityGroups: []string{"web"}}}
	coll.Nodes.Add(n)
	coll.Connect()

	networks := loader.Networks{"private": struct{ CIDR string }{CIDR: "10.0.0.0/24"}}
	return coll, networks
}

func TestProvisionBuildsNetworksGroupsAndNodes(t *testing.T) {
	fd := &fakeProvisionDriver{}
	r := NewRunner(fd, nil, Config{PollInterval: time.Millisecond})

	coll, networks := testCollection()
	if err := r.Provision(context.Background(), coll, networks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n := coll.Nodes.Values()[0].(*resource.Node)
	if n.ServerID == "" {
		t.Errorf("expected node to have a server id assigned")
	}
	if n.ServerStatus != "active" {
		t.Errorf("expected node to reach active status, got %q", n.ServerStatus)
	}
	if len(n.Ports) != 1 || n.Ports[0].FloatingIP == "" {
		t.Errorf("expected a port with a floating ip, got %+v", n.Ports)
	}
}

func TestProvisionSkipsAlreadyExistingNetworksAndGroups(t *testing.T) {
	// No nodes here: a node attached to an already-existing network would
	// fail to build, since ListNetworks only reports names, not ids, so an
	// existing network's id is never recorded in r.networkIDs. This test
	// only exercises the network/secgroup creation skip itself.
	fd := &fakeProvisionDriver{
		existingNetworks: []string{"private"},
		existingGroups:   resource.NewNamedSet(resource.NewSecurityGroup("web")),
	}
	r := NewRunner(fd, nil, Config{PollInterval: time.Millisecond})

	coll := resource.NewCollection()
	coll.SecurityGroups.Add(resource.NewSecurityGroup("web"))
	networks := loader.Networks{"private": struct{ CIDR string }{CIDR: "10.0.0.0/24"}}

	if err := r.Provision(context.Background(), coll, networks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.networkIDs["private"]; ok {
		t.Errorf("expected already-detected network to be skipped, not recreated")
	}
	if _, ok := r.secgroupID["web"]; ok {
		t.Errorf("expected already-detected security group to be skipped, not recreated")
	}
}

func TestProvisionRebuildsNodeOnErrorWithRetryBudget(t *testing.T) {
	fd := &fakeProvisionDriver{}
	r := NewRunner(fd, nil, Config{PollInterval: time.Millisecond, RetryCount: 2})

	coll, networks := testCollection()
	n := coll.Nodes.Values()[0].(*resource.Node)

	// The first server id the fake driver hands out reports ERROR, so poll()
	// calls clean() and then build(), which gets a fresh id.
	fd.statuses = map[string]string{"server-1": "ERROR"}

	if err := r.Provision(context.Background(), coll, networks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n.ServerStatus != "active" {
		t.Errorf("expected node to eventually reach active after rebuild, got %q", n.ServerStatus)
	}
	if n.ServerID == "server-1" {
		t.Errorf("expected node to have been rebuilt with a new server id")
	}
	foundDeleteServer := false
	for _, d := range fd.deleted {
		if d == "server:server-1" {
			foundDeleteServer = true
		}
	}
	if !foundDeleteServer {
		t.Errorf("expected the failed server to be deleted during cleanup, got %v", fd.deleted)
	}
}

func TestProvisionFailsWhenRetryBudgetExhausted(t *testing.T) {
	fd := &fakeProvisionDriver{statuses: map[string]string{"server-1": "ERROR"}}
	r := NewRunner(fd, nil, Config{PollInterval: time.Millisecond, RetryCount: 1})

	coll, networks := testCollection()
	n := coll.Nodes.Values()[0].(*resource.Node)
	n.AttemptsLeft = 1

	err := r.Provision(context.Background(), coll, networks)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if _, ok := err.(*ProvisionFailedException); !ok {
		t.Errorf("expected *ProvisionFailedException, got %T: %v", err, err)
	}
}

func TestStripSuffixSetDetectsDuplicates(t *testing.T) {
	_, err := stripSuffixSet("network", []string{"web_abc", "web"}, "abc")
	if err == nil {
		t.Fatalf("expected a duplicate error when two names strip to the same base name")
	}
	if _, ok := err.(*DuplicateResourceException); !ok {
		t.Errorf("expected *DuplicateResourceException, got %T", err)
	}
}

func TestStripSuffixSetStripsSuffix(t *testing.T) {
	set, err := stripSuffixSet("network", []string{"web_abc"}, "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set["web"] {
		t.Errorf("expected suffix to be stripped, got %v", set)
	}
}
