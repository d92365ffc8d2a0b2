/*
Copyright 2018 Heptio Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package provision implements the stateful OpenStack provisioning runner
// of spec.md §4.G: a named, suffix-isolated multi-step deployment that
// creates networks, security groups, and nodes (via volume-backed servers),
// then polls each node to ACTIVE, rebuilding it on ERROR while retry budget
// remains.
package provision

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aasemble/cloudctl/pkg/driver"
	"github.com/aasemble/cloudctl/pkg/journal"
	"github.com/aasemble/cloudctl/pkg/loader"
	"github.com/aasemble/cloudctl/pkg/resource"
)

// DuplicateResourceException is raised when incremental detection finds two
// candidates sharing a base name for the same resource type, per spec.md §7.
type DuplicateResourceException struct {
	Kind string
	Name string
}

func (e *DuplicateResourceException) Error() string {
	return fmt.Sprintf("duplicate %s named %q found during incremental detection", e.Kind, e.Name)
}

// ProvisionFailedException is raised when a node lands in ERROR with no
// retry budget left, per spec.md §7.
type ProvisionFailedException struct {
	Node string
}

func (e *ProvisionFailedException) Error() string {
	return fmt.Sprintf("node %q failed to provision and has no retries left", e.Node)
}

// Driver is the subset of openstack.Driver the provisioning runner needs,
// well beyond driver.Driver's general-purpose capability set — per
// spec.md §4.E, OpenStack is "the richest driver, and the one used by the
// provisioning runner".
type Driver interface {
	driver.Driver

	ListNetworks(ctx context.Context) ([]string, error)
	CreateNetwork(ctx context.Context, name, cidr, routerName string) (networkID, subnetID string, err error)
	DeleteSubnet(ctx context.Context, subnetID string) error
	CreateSecurityGroupWithRules(ctx context.Context, name string, rules []resource.SecurityGroupRule) (string, error)
	AllocateFloatingIP(ctx context.Context) (*resource.FloatingIP, error)
	CreatePortOnNetwork(ctx context.Context, networkID string, securityGroupIDs []string) (portID, fixedIP string, err error)
	CreateVolume(ctx context.Context, sizeGB int, imageRef string) (string, error)
	WaitVolumeAvailable(ctx context.Context, volumeID string) error
	BuildServerFromVolume(ctx context.Context, name, flavor, volumeID string, networkIDs []string) (string, error)
	GetServerStatus(ctx context.Context, serverID string) (string, error)

	driver.KeyPairLookup
	Delete(ctx context.Context, entryType, id string) error
}

// Config configures a Runner.
type Config struct {
	// Suffix is appended to every created resource name as "base_suffix",
	// keeping parallel deployments in one tenant disjoint.
	Suffix string
	// RetryCount seeds AttemptsLeft on every node that doesn't already
	// carry one from the stack document.
	RetryCount int
	// PollInterval is the node-status poll cadence (default 5s).
	PollInterval time.Duration
	// RouterName names the wildcard router new subnets attach to, if any.
	RouterName string
}

// Runner drives one provisioning pass against a Driver and a Journal,
// tracking the ids it creates so the polling loop and any later cleanup can
// find them again.
type Runner struct {
	drv     Driver
	journal *journal.Journal
	cfg     Config

	networkIDs map[string]string // suffixed network name -> id
	secgroupID map[string]string // suffixed group name -> id
	nodes      map[string]*resource.Node
}

// NewRunner builds a Runner. journal may be nil, in which case created
// resources are not recorded (only useful for tests).
func NewRunner(drv Driver, j *journal.Journal, cfg Config) *Runner {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Runner{
		drv:        drv,
		journal:    j,
		cfg:        cfg,
		networkIDs: map[string]string{},
		secgroupID: map[string]string{},
		nodes:      map[string]*resource.Node{},
	}
}

func (r *Runner) suffixed(base string) string {
	if r.cfg.Suffix == "" {
		return base
	}
	return fmt.Sprintf("%s_%s", base, r.cfg.Suffix)
}

func (r *Runner) record(entryType, id string) {
	if r.journal == nil || id == "" {
		return
	}
	if err := r.journal.Record(entryType, id); err != nil {
		logrus.WithError(err).WithField("type", entryType).Warn("failed to journal created resource")
	}
}

// RegisterKeyPair imports the caller's public key under a suffixed name via
// the shared ReconcileKeyPair helper, per spec.md §4.G step 1.
func (r *Runner) RegisterKeyPair(ctx context.Context, publicKey []byte, comment string) (string, error) {
	name, err := driver.ReconcileKeyPair(ctx, r.drv, publicKey, r.suffixed(comment))
	if err != nil {
		return "", err
	}
	r.record("keypair", name)
	return name, nil
}

// Provision runs the full build: networks, security groups, nodes, and the
// polling loop, in that order, per spec.md §4.G and §5.
func (r *Runner) Provision(ctx context.Context, coll *resource.Collection, networks loader.Networks) error {
	existingNets, err := r.drv.ListNetworks(ctx)
	if err != nil {
		return errors.Wrap(err, "detecting existing networks")
	}
	existingNetSet, err := stripSuffixSet("network", existingNets, r.cfg.Suffix)
	if err != nil {
		return err
	}

	for name, spec := range networks {
		if existingNetSet[name] {
			continue
		}
		suffixedName := r.suffixed(name)
		netID, subnetID, err := r.drv.CreateNetwork(ctx, suffixedName, spec.CIDR, r.cfg.RouterName)
		if netID != "" {
			r.record("network", netID)
		}
		if subnetID != "" {
			r.record("subnet", subnetID)
		}
		if err != nil {
			return errors.Wrapf(err, "creating network %s", name)
		}
		r.networkIDs[name] = netID
	}

	existingGroups, _, err := r.drv.DetectFirewalls(ctx)
	if err != nil {
		return errors.Wrap(err, "detecting existing security groups")
	}
	existingGroupSet, err := stripSuffixSet("secgroup", existingGroups.Names(), r.cfg.Suffix)
	if err != nil {
		return err
	}

	for _, named := range coll.SecurityGroups.Values() {
		sg := named.(*resource.SecurityGroup)
		if existingGroupSet[sg.Name] {
			continue
		}
		var rules []resource.SecurityGroupRule
		for _, rule := range coll.SecurityGroupRules.Values() {
			if rule.SecurityGroup == sg.Name {
				rules = append(rules, rule)
			}
		}
		suffixedName := r.suffixed(sg.Name)
		id, err := r.drv.CreateSecurityGroupWithRules(ctx, suffixedName, rules)
		if id != "" {
			r.record("secgroup", id)
		}
		if err != nil {
			return errors.Wrapf(err, "creating security group %s", sg.Name)
		}
		r.secgroupID[sg.Name] = id
	}

	existingNodes, err := r.drv.DetectNodes(ctx)
	if err != nil {
		return errors.Wrap(err, "detecting existing nodes")
	}
	existingNodeSet, err := stripSuffixSet("server", nodeNames(existingNodes), r.cfg.Suffix)
	if err != nil {
		return err
	}

	for _, named := range coll.Nodes.Values() {
		n := named.(*resource.Node)
		if existingNodeSet[n.Name] {
			continue
		}
		if n.AttemptsLeft <= 1 && r.cfg.RetryCount > 0 {
			n.AttemptsLeft = r.cfg.RetryCount
		}
		if err := r.build(ctx, n); err != nil {
			return errors.Wrapf(err, "building node %s", n.Name)
		}
		r.nodes[n.Name] = n
	}

	return r.poll(ctx)
}

// build allocates ports, creates the boot volume, waits for it, and
// launches the server, journaling every handle created along the way, per
// spec.md §4.G step 4.
func (r *Runner) build(ctx context.Context, n *resource.Node) error {
	var networkIDs []string
	for _, na := range n.Networks {
		netID, ok := r.networkIDs[na.Network]
		if !ok {
			return fmt.Errorf("node %s references unknown network %s", n.Name, na.Network)
		}

		var sgIDs []string
		for _, sgName := range na.SecurityGroups {
			if id, ok := r.secgroupID[sgName]; ok {
				sgIDs = append(sgIDs, id)
			}
		}
		portID, fixedIP, err := r.drv.CreatePortOnNetwork(ctx, netID, sgIDs)
		if portID != "" {
			r.record("port", portID)
		}
		if err != nil {
			return errors.Wrapf(err, "allocating port on network %s", na.Network)
		}
		networkIDs = append(networkIDs, netID)

		port := resource.Port{ID: portID, FixedIP: fixedIP, NetworkName: na.Network}
		if na.AssignFloatingIP {
			fip, err := r.drv.AllocateFloatingIP(ctx)
			if err != nil {
				return errors.Wrap(err, "allocating floating ip")
			}
			r.record("floatingip", fip.ID)
			port.FloatingIP = fip.IPAddress
			n.FloatingIPs.Add(*fip)
		}
		n.Ports = append(n.Ports, port)
	}

	volumeID, err := r.drv.CreateVolume(ctx, n.Disk, n.Image)
	if err != nil {
		return errors.Wrap(err, "creating boot volume")
	}
	r.record("volume", volumeID)

	if err := r.drv.WaitVolumeAvailable(ctx, volumeID); err != nil {
		return errors.Wrap(err, "waiting for boot volume")
	}

	suffixedName := r.suffixed(n.Name)
	serverID, err := r.drv.BuildServerFromVolume(ctx, suffixedName, n.Flavor, volumeID, networkIDs)
	if err != nil {
		return errors.Wrap(err, "launching server")
	}
	r.record("server", serverID)
	n.ServerID = serverID
	n.ServerStatus = "building"
	return nil
}

// clean deletes n's server, floating IPs and ports through the driver's
// per-entry Delete before a retry rebuild. The boot volume is not deleted.
func (r *Runner) clean(ctx context.Context, n *resource.Node) {
	if n.ServerID != "" {
		if err := r.drv.Delete(ctx, "server", n.ServerID); err != nil {
			logrus.WithError(err).WithField("node", n.Name).Warn("cleaning failed node: deleting server")
		}
	}
	for _, fip := range n.FloatingIPs.Values() {
		if err := r.drv.Delete(ctx, "floatingip", fip.ID); err != nil {
			logrus.WithError(err).WithField("node", n.Name).Warn("cleaning failed node: releasing floating ip")
		}
	}
	for _, p := range n.Ports {
		if p.ID == "" {
			continue
		}
		if err := r.drv.Delete(ctx, "port", p.ID); err != nil {
			logrus.WithError(err).WithField("node", n.Name).Warn("cleaning failed node: deleting port")
		}
	}
	n.ServerID = ""
	n.Ports = nil
	n.FloatingIPs = resource.NewFloatingIPSet()
}

// poll implements the 5s polling loop of spec.md §4.G step 5: ACTIVE marks
// a node done, ERROR triggers clean+rebuild while attempts remain (else
// ProvisionFailedException), anything else keeps the node pending.
func (r *Runner) poll(ctx context.Context) error {
	pending := make(map[string]bool, len(r.nodes))
	for name := range r.nodes {
		pending[name] = true
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for name := range pending {
			n := r.nodes[name]
			status, err := r.drv.GetServerStatus(ctx, n.ServerID)
			if err != nil {
				return errors.Wrapf(err, "polling status of node %s", name)
			}
			switch status {
			case "ACTIVE", "active":
				n.ServerStatus = "active"
				delete(pending, name)
			case "ERROR", "error":
				n.AttemptsLeft--
				if n.AttemptsLeft <= 0 {
					return &ProvisionFailedException{Node: name}
				}
				r.clean(ctx, n)
				if err := r.build(ctx, n); err != nil {
					return errors.Wrapf(err, "rebuilding node %s after ERROR", name)
				}
			default:
				// still pending; keep polling
			}
		}
	}
	return nil
}

func nodeNames(nodes []*resource.Node) []string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	sort.Strings(names)
	return names
}

// stripSuffixSet strips "_<suffix>" from each detected name (incremental
// detection always sees already-suffixed names) and returns the resulting
// base names as a set. Two detected names stripping to the same base name
// would otherwise silently collapse in the set, so that case raises
// DuplicateResourceException instead, per spec.md §4.G/§7.
func stripSuffixSet(kind string, names []string, suffix string) (map[string]bool, error) {
	set := make(map[string]bool, len(names))
	tail := "_" + suffix
	for _, n := range names {
		base := n
		if suffix != "" && len(n) > len(tail) && n[len(n)-len(tail):] == tail {
			base = n[:len(n)-len(tail)]
		}
		if set[base] {
			return nil, &DuplicateResourceException{Kind: kind, Name: base}
		}
		set[base] = true
	}
	return set, nil
}
