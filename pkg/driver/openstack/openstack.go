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

// Package openstack implements driver.Driver against Nova/Neutron via
// gophercloud — the richest of the four drivers, and the one the
// provisioning runner (pkg/provision) builds on directly, per spec.md §4.E.
package openstack

import (
	"context"
	"fmt"
	"strings"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/keypairs"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/secgroups"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/external"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/layer3/floatingips"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/ports"
	"github.com/gophercloud/gophercloud/pagination"
	"github.com/pkg/errors"

	"github.com/aasemble/cloudctl/pkg/driver"
	"github.com/aasemble/cloudctl/pkg/resource"
)

// AuthOpts configures the Keystone authentication used to build the three
// Nova/Neutron service clients this driver needs.
type AuthOpts struct {
	IdentityEndpoint string
	Username         string
	Password         string
	TenantName       string
	Region           string
}

// Driver implements driver.Driver against a single OpenStack project.
type Driver struct {
	driver.Base
	Auth AuthOpts

	provider *gophercloud.ProviderClient
	compute  *gophercloud.ServiceClient
	network  *gophercloud.ServiceClient
	block    *gophercloud.ServiceClient
}

var _ driver.Driver = (*Driver)(nil)

func (d *Driver) clients() (*gophercloud.ServiceClient, *gophercloud.ServiceClient, error) {
	if d.compute != nil && d.network != nil {
		return d.compute, d.network, nil
	}

	provider, err := openstack.AuthenticatedClient(gophercloud.AuthOptions{
		IdentityEndpoint: d.Auth.IdentityEndpoint,
		Username:         d.Auth.Username,
		Password:         d.Auth.Password,
		TenantName:       d.Auth.TenantName,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "authenticating with OpenStack")
	}
	d.provider = provider

	d.compute, err = openstack.NewComputeV2(provider, gophercloud.EndpointOpts{Region: d.Auth.Region})
	if err != nil {
		return nil, nil, errors.Wrap(err, "constructing Nova client")
	}
	d.network, err = openstack.NewNetworkV2(provider, gophercloud.EndpointOpts{Region: d.Auth.Region})
	if err != nil {
		return nil, nil, errors.Wrap(err, "constructing Neutron client")
	}
	return d.compute, d.network, nil
}

// DetectNodes lists servers, filtering by the "aasemble_namespace" metadata
// item.
func (d *Driver) DetectNodes(ctx context.Context) ([]*resource.Node, error) {
	compute, _, err := d.clients()
	if err != nil {
		return nil, err
	}

	var nodes []*resource.Node
	err = servers.List(compute, servers.ListOpts{}).EachPage(func(page pagination.Page) (bool, error) {
		list, err := servers.ExtractServers(page)
		if err != nil {
			return false, err
		}
		for i := range list {
			srv := list[i]
			ns, _ := srv.Metadata["aasemble_namespace"].(string)
			if !d.IsNodeRelevant(ns) {
				continue
			}
			n := resource.NewNode(srv.Name)
			n.ServerID = srv.ID
			n.ServerStatus = strings.ToLower(srv.Status)
			n.Image, _ = srv.Image["id"].(string)
			n.Flavor, _ = srv.Flavor["id"].(string)
			for sgName := range sgNamesFromServer(srv) {
				n.SecurityGroupNames = append(n.SecurityGroupNames, sgName)
			}
			for netName, addrs := range srv.Addresses {
				for _, a := range addrs.([]interface{}) {
					addr := a.(map[string]interface{})
					p := resource.Port{NetworkName: netName}
					if ip, ok := addr["addr"].(string); ok {
						if t, _ := addr["OS-EXT-IPS:type"].(string); t == "floating" {
							p.FloatingIP = ip
						} else {
							p.FixedIP = ip
						}
					}
					n.Ports = append(n.Ports, p)
				}
			}
			nodes = append(nodes, n)
		}
		return true, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing Nova servers")
	}
	return nodes, nil
}

func sgNamesFromServer(srv servers.Server) map[string]bool {
	out := map[string]bool{}
	if raw, ok := srv.SecurityGroups.([]interface{}); ok {
		for _, sg := range raw {
			if m, ok := sg.(map[string]interface{}); ok {
				if name, ok := m["name"].(string); ok {
					out[name] = true
				}
			}
		}
	}
	return out
}

// DetectFirewalls lists Nova security groups and their inline rules.
func (d *Driver) DetectFirewalls(ctx context.Context) (*resource.NamedSet, *resource.RuleSet, error) {
	compute, _, err := d.clients()
	if err != nil {
		return nil, nil, err
	}

	groups := resource.NewNamedSet()
	rules := resource.NewRuleSet()
	err = secgroups.List(compute).EachPage(func(page pagination.Page) (bool, error) {
		list, err := secgroups.ExtractSecurityGroups(page)
		if err != nil {
			return false, err
		}
		for _, sg := range list {
			groups.Add(resource.NewSecurityGroup(sg.Name))
			for _, r := range sg.Rules {
				rule := resource.SecurityGroupRule{
					SecurityGroup: sg.Name,
					FromPort:      r.FromPort,
					ToPort:        r.ToPort,
					Protocol:      r.IPProtocol,
				}
				if r.IPRange.CIDR != "" {
					rule.SourceIP = r.IPRange.CIDR
				} else if r.Group.Name != "" {
					rule.SourceGroup = r.Group.Name
				}
				rules.Add(rule)
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "listing Nova security groups")
	}
	return groups, rules, nil
}

// CreateSecurityGroup creates sg with no rules (rules are authorized
// separately by CreateSecurityGroupRule); the provisioning runner instead
// creates groups with their rules inline in one call (pkg/provision), which
// is the shape spec.md §4.E describes for the runner specifically.
func (d *Driver) CreateSecurityGroup(ctx context.Context, sg *resource.SecurityGroup) error {
	compute, _, err := d.clients()
	if err != nil {
		return err
	}
	_, err = secgroups.Create(compute, secgroups.CreateOpts{Name: sg.Name, Description: sg.Name}).Extract()
	if err != nil && isConflict(err) {
		return nil
	}
	return err
}

// CreateSecurityGroupRule authorizes r against its owning group, resolved
// by name via a lookup pass (gophercloud's secgroups API wants the group
// id, not name).
func (d *Driver) CreateSecurityGroupRule(ctx context.Context, r resource.SecurityGroupRule) error {
	compute, _, err := d.clients()
	if err != nil {
		return err
	}
	groupID, err := d.secGroupIDByName(compute, r.SecurityGroup)
	if err != nil {
		return err
	}

	opts := secgroups.CreateRuleOpts{
		ParentGroupID: groupID,
		FromPort:      r.FromPort,
		ToPort:        r.ToPort,
		IPProtocol:    r.Protocol,
		CIDR:          r.SourceIP,
	}
	if r.SourceGroup != "" {
		sourceID, err := d.secGroupIDByName(compute, r.SourceGroup)
		if err != nil {
			return err
		}
		opts.FromGroupID = sourceID
	}
	_, err = secgroups.CreateRule(compute, opts).Extract()
	if err != nil && isConflict(err) {
		return nil
	}
	return err
}

func (d *Driver) secGroupIDByName(compute *gophercloud.ServiceClient, name string) (string, error) {
	var id string
	err := secgroups.List(compute).EachPage(func(page pagination.Page) (bool, error) {
		list, err := secgroups.ExtractSecurityGroups(page)
		if err != nil {
			return false, err
		}
		for _, sg := range list {
			if sg.Name == name {
				id = sg.ID
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("security group %q not found", name)
	}
	return id, nil
}

// CreateNode boots a server directly from an image (the provisioning
// runner's build step, pkg/provision, instead builds a volume-backed node
// per spec.md §4.G — this path is for the plain reconciliation pipeline).
func (d *Driver) CreateNode(ctx context.Context, n *resource.Node) error {
	compute, _, err := d.clients()
	if err != nil {
		return err
	}
	srv, err := servers.Create(compute, servers.CreateOpts{
		Name:           n.Name,
		FlavorRef:      d.ApplyMappings("flavors", n.Flavor),
		ImageRef:       d.ApplyMappings("images", n.Image),
		SecurityGroups: n.SecurityGroupNames,
		Metadata:       map[string]string{"aasemble_namespace": d.Namespace},
	}).Extract()
	if err != nil {
		return errors.Wrapf(err, "creating server %s", n.Name)
	}
	n.ServerID = srv.ID
	return nil
}

// DeleteNode deletes the server.
func (d *Driver) DeleteNode(ctx context.Context, n *resource.Node) error {
	compute, _, err := d.clients()
	if err != nil {
		return err
	}
	return servers.Delete(compute, n.ServerID).ExtractErr()
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

// ClusterData produces the same {containers, proxyconf} shape as AWS; the
// provisioning runner path doesn't call this (it produces no cluster data),
// so this is only exercised by the plain reconciliation pipeline.
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
		"proxyconf": map[string]interface{}{
			"domains":  domains,
			"backends": backends,
		},
	}, nil
}

// AllocateFloatingIP allocates a floating IP from the first external
// network Neutron returns, per spec.md §4.E.
func (d *Driver) AllocateFloatingIP(ctx context.Context) (*resource.FloatingIP, error) {
	_, network, err := d.clients()
	if err != nil {
		return nil, err
	}

	var externalNet string
	isExternal := true
	listOpts := external.ListOptsExt{ListOptsBuilder: networks.ListOpts{}, External: &isExternal}
	err = networks.List(network, listOpts).EachPage(func(page pagination.Page) (bool, error) {
		list, err := networks.ExtractNetworks(page)
		if err != nil {
			return false, err
		}
		if len(list) > 0 {
			externalNet = list[0].ID
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing networks for floating ip allocation")
	}
	if externalNet == "" {
		return nil, fmt.Errorf("no external network found to allocate a floating ip from")
	}

	fip, err := floatingips.Create(network, floatingips.CreateOpts{FloatingNetworkID: externalNet}).Extract()
	if err != nil {
		return nil, errors.Wrap(err, "allocating floating ip")
	}
	return &resource.FloatingIP{ID: fip.ID, IPAddress: fip.FloatingIP}, nil
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}
	switch err.(type) {
	case gophercloud.ErrDefault409:
		return true
	default:
		return strings.Contains(err.Error(), "409")
	}
}

// Delete dispatches a journal entry's type/id to the matching Neutron/Nova
// delete call, implementing journal.Deleter for the provisioning runner.
func (d *Driver) Delete(ctx context.Context, entryType, id string) error {
	compute, network, err := d.clients()
	if err != nil {
		return err
	}
	switch entryType {
	case "server":
		return servers.Delete(compute, id).ExtractErr()
	case "port":
		return ports.Delete(network, id).ExtractErr()
	case "floatingip":
		return floatingips.Delete(network, id).ExtractErr()
	case "subnet":
		return d.DeleteSubnet(ctx, id)
	case "network":
		return networks.Delete(network, id).ExtractErr()
	case "secgroup":
		return secgroups.Delete(compute, id).ExtractErr()
	case "secgroup_rule":
		return secgroups.DeleteRule(compute, id).ExtractErr()
	case "keypair":
		return keypairs.Delete(compute, id, nil).ExtractErr()
	case "volume":
		block, err := d.blockClient()
		if err != nil {
			return err
		}
		return volumes.Delete(block, id, nil).ExtractErr()
	default:
		return fmt.Errorf("unknown journal entry type %q", entryType)
	}
}
