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

// Package gce implements driver.Driver against Google Compute Engine, per
// spec.md §4.E. GCE has no first-class security group: the driver
// synthesizes one SecurityGroup per firewall target_tag (untargeted
// firewalls fall under the synthetic "global" group).
package gce

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/api/compute/v1"

	"github.com/aasemble/cloudctl/pkg/driver"
	"github.com/aasemble/cloudctl/pkg/resource"
)

const globalGroup = "global"
const namespaceMetadataKey = "aasemble_namespace"

// Driver implements driver.Driver against a single GCE project/zone.
type Driver struct {
	driver.Base
	Project string
	Zone    string

	svc *compute.Service
}

var _ driver.Driver = (*Driver)(nil)

func (d *Driver) conn(ctx context.Context) (*compute.Service, error) {
	if d.svc != nil {
		return d.svc, nil
	}
	svc, err := compute.NewService(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "constructing GCE compute client")
	}
	d.svc = svc
	return d.svc, nil
}

// DetectNodes lists instances in the configured zone, filtering by the
// aasemble_namespace metadata item, and mirrors each instance's tags into
// SecurityGroupNames (GCE tags stand in for real groups here).
func (d *Driver) DetectNodes(ctx context.Context) ([]*resource.Node, error) {
	svc, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}

	var nodes []*resource.Node
	err = svc.Instances.List(d.Project, d.Zone).Pages(ctx, func(page *compute.InstanceList) error {
		for _, inst := range page.Items {
			ns := metadataValue(inst.Metadata, namespaceMetadataKey)
			if !d.IsNodeRelevant(ns) {
				continue
			}
			n := resource.NewNode(inst.Name)
			n.Flavor = lastPathSegment(inst.MachineType)
			n.ServerStatus = strings.ToLower(inst.Status)
			if inst.Tags != nil {
				n.SecurityGroupNames = append([]string(nil), inst.Tags.Items...)
				if len(inst.Tags.Items) == 0 {
					n.SecurityGroupNames = []string{globalGroup}
				}
			} else {
				n.SecurityGroupNames = []string{globalGroup}
			}
			for _, disk := range inst.Disks {
				if disk.Boot {
					n.Image = lastPathSegment(disk.Source)
				}
			}
			for _, ni := range inst.NetworkInterfaces {
				p := resource.Port{NetworkName: lastPathSegment(ni.Network), FixedIP: ni.NetworkIP}
				for _, ac := range ni.AccessConfigs {
					if ac.NatIP != "" {
						p.FloatingIP = ac.NatIP
					}
				}
				n.Ports = append(n.Ports, p)
			}
			nodes = append(nodes, n)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing GCE instances")
	}
	return nodes, nil
}

// DetectFirewalls synthesizes one SecurityGroup per target tag (or the
// "global" group for untargeted firewalls) and parses each firewall's
// allowed[] entries into SecurityGroupRules, per spec.md §4.E's port-spec
// rules: "N" -> (N,N); "N-M" -> (N,M); absent ports -> (0, 65535).
func (d *Driver) DetectFirewalls(ctx context.Context) (*resource.NamedSet, *resource.RuleSet, error) {
	svc, err := d.conn(ctx)
	if err != nil {
		return nil, nil, err
	}

	groups := resource.NewNamedSet()
	rules := resource.NewRuleSet()

	err = svc.Firewalls.List(d.Project).Pages(ctx, func(page *compute.FirewallList) error {
		for _, fw := range page.Items {
			targets := fw.TargetTags
			if len(targets) == 0 {
				targets = []string{globalGroup}
			}
			for _, target := range targets {
				if !groups.Has(target) {
					groups.Add(resource.NewSecurityGroup(target))
				}
				for _, allowed := range fw.Allowed {
					fromPort, toPort := parsePortRange(allowed.Ports)
					base := resource.SecurityGroupRule{
						SecurityGroup: target,
						Protocol:      allowed.IPProtocol,
						FromPort:      fromPort,
						ToPort:        toPort,
					}
					added := false
					for _, cidr := range fw.SourceRanges {
						if cidr == "0.0.0.0/0" {
							continue
						}
						r := base
						r.SourceIP = cidr
						rules.Add(r)
						added = true
					}
					for _, tag := range fw.SourceTags {
						r := base
						r.SourceGroup = tag
						rules.Add(r)
						added = true
					}
					if !added {
						rules.Add(base)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "listing GCE firewalls")
	}
	return groups, rules, nil
}

// parsePortRange implements spec.md §4.E's GCE port-spec grammar.
func parsePortRange(ports []string) (int, int) {
	if len(ports) == 0 {
		return 0, 65535
	}
	spec := ports[0]
	if idx := strings.Index(spec, "-"); idx >= 0 {
		from, _ := strconv.Atoi(spec[:idx])
		to, _ := strconv.Atoi(spec[idx+1:])
		return from, to
	}
	n, _ := strconv.Atoi(spec)
	return n, n
}

// CreateSecurityGroup is a no-op: GCE groups are synthetic, derived purely
// from firewall target tags, not created independently.
func (d *Driver) CreateSecurityGroup(ctx context.Context, sg *resource.SecurityGroup) error {
	return nil
}

// CreateSecurityGroupRule creates a firewall rule targeting r.SecurityGroup
// as its tag, swallowing "already exists" so re-apply is idempotent.
func (d *Driver) CreateSecurityGroupRule(ctx context.Context, r resource.SecurityGroupRule) error {
	svc, err := d.conn(ctx)
	if err != nil {
		return err
	}
	fw := &compute.Firewall{
		Name:       fmt.Sprintf("%s-%d-%d-%s", r.SecurityGroup, r.FromPort, r.ToPort, r.Protocol),
		TargetTags: []string{r.SecurityGroup},
		Allowed: []*compute.FirewallAllowed{{
			IPProtocol: r.Protocol,
			Ports:      []string{portSpecString(r.FromPort, r.ToPort)},
		}},
	}
	if r.SourceIP != "" {
		fw.SourceRanges = []string{r.SourceIP}
	} else if r.SourceGroup != "" {
		fw.SourceTags = []string{r.SourceGroup}
	}

	_, err = svc.Firewalls.Insert(d.Project, fw).Do()
	if err != nil && strings.Contains(err.Error(), "alreadyExists") {
		return nil
	}
	return err
}

func portSpecString(from, to int) string {
	if from == to {
		return strconv.Itoa(from)
	}
	return fmt.Sprintf("%d-%d", from, to)
}

// CreateNode creates an instance whose image and machine type are resolved
// from the mapping config and whose boot disk is always pd-ssd. The startup
// script and namespace are collapsed into metadata.items; no SSH keys are
// added to the instance metadata.
func (d *Driver) CreateNode(ctx context.Context, n *resource.Node) error {
	svc, err := d.conn(ctx)
	if err != nil {
		return err
	}

	image := d.ApplyMappings("images", n.Image)
	flavor := d.ApplyMappings("flavors", n.Flavor)

	items := []*compute.MetadataItems{
		{Key: "startup-script", Value: strPtr(n.Script)},
		{Key: namespaceMetadataKey, Value: strPtr(d.Namespace)},
	}

	inst := &compute.Instance{
		Name:        n.Name,
		MachineType: fmt.Sprintf("zones/%s/machineTypes/%s", d.Zone, flavor),
		Tags:        &compute.Tags{Items: n.SecurityGroupNames},
		Metadata:    &compute.Metadata{Items: items},
		Disks: []*compute.AttachedDisk{{
			Boot:       true,
			AutoDelete: true,
			InitializeParams: &compute.AttachedDiskInitializeParams{
				SourceImage: image,
				DiskType:    fmt.Sprintf("zones/%s/diskTypes/pd-ssd", d.Zone),
				DiskSizeGb:  int64(n.Disk),
			},
		}},
		NetworkInterfaces: networkInterfaces(n),
	}

	op, err := svc.Instances.Insert(d.Project, d.Zone, inst).Do()
	if err != nil {
		return errors.Wrapf(err, "creating GCE instance %s", n.Name)
	}
	n.ServerID = fmt.Sprintf("%d", op.TargetId)
	return nil
}

func networkInterfaces(n *resource.Node) []*compute.NetworkInterface {
	var out []*compute.NetworkInterface
	for _, na := range n.Networks {
		ni := &compute.NetworkInterface{Network: na.Network}
		if na.AssignFloatingIP {
			ni.AccessConfigs = []*compute.AccessConfig{{Type: "ONE_TO_ONE_NAT"}}
		}
		out = append(out, ni)
	}
	return out
}

// DeleteNode deletes the instance.
func (d *Driver) DeleteNode(ctx context.Context, n *resource.Node) error {
	svc, err := d.conn(ctx)
	if err != nil {
		return err
	}
	_, err = svc.Instances.Delete(d.Project, d.Zone, n.Name).Do()
	return err
}

// DetectResources assembles a full Collection and cross-links it.
func (d *Driver) DetectResources(ctx context.Context) (*resource.Collection, error) {
	nodes, err := d.DetectNodes(ctx)
	if err != nil {
		return nil, err
	}
	groups, rules, err := d.DetectFirewalls(ctx)
	if err != nil {
		return nil, err
	}
	coll := resource.NewCollection()
	for _, n := range nodes {
		coll.Nodes.Add(n)
	}
	coll.SecurityGroups = groups
	coll.SecurityGroupRules = rules
	coll.Connect()
	return coll, nil
}

// ApplyResources creates every group, node, and rule in coll via the shared
// Base fan-out (groups -> nodes -> rules), per spec.md §4.F/§5.
func (d *Driver) ApplyResources(ctx context.Context, coll *resource.Collection) error {
	return d.Base.ApplyResources(ctx, d, coll)
}

// CleanResources deletes every node in coll via the shared Base fan-out.
func (d *Driver) CleanResources(ctx context.Context, coll *resource.Collection) error {
	return d.Base.CleanResources(ctx, d, coll)
}

// ClusterData builds {containers, tasks, proxyconf:{domains, backends}},
// the one extra field ("tasks") GCE's shape carries beyond AWS's, per
// spec.md §6.
func (d *Driver) ClusterData(coll *resource.Collection) (map[string]interface{}, error) {
	src := coll
	if coll.OriginalCollection != nil {
		src = coll.OriginalCollection
	}
	domains := map[string]map[string]map[string]string{}
	backendSet := map[string]bool{}
	for _, u := range src.URLs {
		if u.Kind != resource.URLBackend {
			continue
		}
		if domains[u.Hostname] == nil {
			domains[u.Hostname] = map[string]map[string]string{}
		}
		domains[u.Hostname][u.Path] = map[string]string{"type": "backend", "destination": u.Destination}
		backendSet[strings.SplitN(u.Destination, "/", 2)[0]] = true
	}
	var backends []string
	for b := range backendSet {
		backends = append(backends, b)
	}
	return map[string]interface{}{
		"containers": src.Containers,
		"tasks":      src.Tasks,
		"proxyconf": map[string]interface{}{
			"domains":  domains,
			"backends": backends,
		},
	}, nil
}

func metadataValue(m *compute.Metadata, key string) string {
	if m == nil {
		return ""
	}
	for _, item := range m.Items {
		if item.Key == key && item.Value != nil {
			return *item.Value
		}
	}
	return ""
}

func lastPathSegment(url string) string {
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

func strPtr(s string) *string { return &s }
