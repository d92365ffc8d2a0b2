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

// Package digitalocean implements driver.Driver against the DigitalOcean
// API, per spec.md §4.E. DO has no native firewall concept modeled here:
// firewall management is delegated to a per-node daemon, so detection
// always reports empty and creation is a no-op; the full ruleset is instead
// serialized into cluster_data's fwconf for that daemon to apply locally.
package digitalocean

import (
	"context"
	"fmt"
	"sort"

	"github.com/digitalocean/godo"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/aasemble/cloudctl/pkg/driver"
	"github.com/aasemble/cloudctl/pkg/resource"
)

const namespaceTagPrefix = "aasemble-ns-"

// Driver implements driver.Driver against a single DigitalOcean account.
type Driver struct {
	driver.Base
	APIToken string
	Region   string

	client *godo.Client
}

var _ driver.Driver = (*Driver)(nil)

type tokenSource struct{ token string }

func (t *tokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: t.token}, nil
}

func (d *Driver) conn(ctx context.Context) *godo.Client {
	if d.client != nil {
		return d.client
	}
	oauthClient := oauth2.NewClient(ctx, &tokenSource{token: d.APIToken})
	d.client = godo.NewClient(oauthClient)
	return d.client
}

// DetectNodes lists droplets tagged with this driver's namespace (or all
// droplets, if the driver has no namespace configured).
func (d *Driver) DetectNodes(ctx context.Context) ([]*resource.Node, error) {
	client := d.conn(ctx)

	var nodes []*resource.Node
	opt := &godo.ListOptions{PerPage: 200}
	for {
		droplets, resp, err := client.Droplets.List(ctx, opt)
		if err != nil {
			return nil, errors.Wrap(err, "listing droplets")
		}
		for _, dr := range droplets {
			ns := namespaceFromTags(dr.Tags)
			if !d.IsNodeRelevant(ns) {
				continue
			}
			n := resource.NewNode(dr.Name)
			n.Flavor = dr.SizeSlug
			if dr.Image != nil {
				n.Image = fmt.Sprintf("%d", dr.Image.ID)
			}
			n.Disk = dr.Disk
			n.ServerID = fmt.Sprintf("%d", dr.ID)
			n.ServerStatus = dr.Status
			for _, net := range dr.Networks.V4 {
				p := resource.Port{FixedIP: net.IPAddress, NetworkName: net.Type}
				if net.Type == "public" {
					p.FloatingIP = net.IPAddress
				}
				n.Ports = append(n.Ports, p)
			}
			nodes = append(nodes, n)
		}
		if resp == nil || resp.Links == nil || resp.Links.IsLastPage() {
			break
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			break
		}
		opt.Page = page + 1
	}
	return nodes, nil
}

func namespaceFromTags(tags []string) string {
	for _, t := range tags {
		if len(t) > len(namespaceTagPrefix) && t[:len(namespaceTagPrefix)] == namespaceTagPrefix {
			return t[len(namespaceTagPrefix):]
		}
	}
	return ""
}

// DetectFirewalls always returns two empty sets: DigitalOcean firewalls
// aren't modeled by this driver (spec.md §4.E).
func (d *Driver) DetectFirewalls(ctx context.Context) (*resource.NamedSet, *resource.RuleSet, error) {
	return resource.NewNamedSet(), resource.NewRuleSet(), nil
}

// CreateSecurityGroup is a no-op.
func (d *Driver) CreateSecurityGroup(ctx context.Context, sg *resource.SecurityGroup) error { return nil }

// CreateSecurityGroupRule is a no-op.
func (d *Driver) CreateSecurityGroupRule(ctx context.Context, r resource.SecurityGroupRule) error {
	return nil
}

// CreateNode creates a droplet tagged with the driver's namespace.
func (d *Driver) CreateNode(ctx context.Context, n *resource.Node) error {
	client := d.conn(ctx)

	createReq := &godo.DropletCreateRequest{
		Name:   n.Name,
		Region: d.Region,
		Size:   d.ApplyMappings("flavors", n.Flavor),
		Image:  godo.DropletCreateImage{Slug: d.ApplyMappings("images", n.Image)},
		Tags:   []string{namespaceTagPrefix + d.Namespace},
	}
	if n.Script != "" {
		createReq.UserData = n.Script
	}

	dr, _, err := client.Droplets.Create(ctx, createReq)
	if err != nil {
		return errors.Wrapf(err, "creating droplet %s", n.Name)
	}
	n.ServerID = fmt.Sprintf("%d", dr.ID)
	return nil
}

// DeleteNode destroys the droplet.
func (d *Driver) DeleteNode(ctx context.Context, n *resource.Node) error {
	client := d.conn(ctx)
	id := 0
	fmt.Sscanf(n.ServerID, "%d", &id)
	_, err := client.Droplets.Delete(ctx, id)
	return err
}

// DetectResources assembles a Collection from droplets alone — firewalls
// are always empty for this driver.
func (d *Driver) DetectResources(ctx context.Context) (*resource.Collection, error) {
	nodes, err := d.DetectNodes(ctx)
	if err != nil {
		return nil, err
	}
	coll := resource.NewCollection()
	for _, n := range nodes {
		coll.Nodes.Add(n)
	}
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

// ClusterData adds a synthesized firewall-manager container entry (DO nodes
// manage their own firewall locally) and a full fwconf.security_groups map:
// for each SG, the sorted node names attached and the sorted rule dicts,
// per spec.md §4.E. Sorting is required for reproducibility across runs.
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
		backendSet[splitPrefix(u.Destination)] = true
	}
	var backends []string
	for b := range backendSet {
		backends = append(backends, b)
	}
	sort.Strings(backends)

	securityGroups := map[string]interface{}{}
	for _, sgNamed := range src.SecurityGroups.Values() {
		sg := sgNamed.(*resource.SecurityGroup)

		var nodeNames []string
		for _, nodeNamed := range src.Nodes.Values() {
			node := nodeNamed.(*resource.Node)
			if node.SecurityGroups != nil && node.SecurityGroups.Has(sg.Name) {
				nodeNames = append(nodeNames, node.Name)
			}
		}
		sort.Strings(nodeNames)

		var ruleDicts []map[string]interface{}
		for _, r := range src.SecurityGroupRules.Values() {
			if r.SecurityGroup != sg.Name {
				continue
			}
			ruleDicts = append(ruleDicts, r.AsMap())
		}
		sort.Slice(ruleDicts, func(i, j int) bool {
			return fmt.Sprint(ruleDicts[i]) < fmt.Sprint(ruleDicts[j])
		})

		securityGroups[sg.Name] = map[string]interface{}{
			"nodes": nodeNames,
			"rules": ruleDicts,
		}
	}

	return map[string]interface{}{
		"containers": append([]map[string]interface{}{{
			"name":  "fwmanager",
			"image": "aasemble/fwmanager",
		}}, src.Containers...),
		"proxyconf": map[string]interface{}{
			"domains":  domains,
			"backends": backends,
		},
		"fwconf": map[string]interface{}{
			"security_groups": securityGroups,
		},
	}, nil
}

func splitPrefix(destination string) string {
	for i, c := range destination {
		if c == '/' {
			return destination[:i]
		}
	}
	return destination
}
