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

// Package aws implements driver.Driver against EC2, per spec.md §4.E.
package aws

import (
	"context"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/pkg/errors"

	"github.com/aasemble/cloudctl/pkg/driver"
	"github.com/aasemble/cloudctl/pkg/resource"
)

const namespaceTagKey = "aasemble_namespace"

var irrelevantStates = map[string]bool{
	"terminated":    true,
	"shutting-down": true,
}

// Driver implements driver.Driver against a single AWS account/region.
type Driver struct {
	driver.Base
	Region string

	client *ec2.Client
	// sgIDToName / sgNameToID cache the bidirectional group id<->name
	// mapping; rule authorization needs the id even though the Collection
	// model only ever carries names (spec.md §4.E).
	sgIDToName map[string]string
	sgNameToID map[string]string
}

var _ driver.Driver = (*Driver)(nil)

func (d *Driver) conn(ctx context.Context) (*ec2.Client, error) {
	if d.client != nil {
		return d.client, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(d.Region))
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}
	d.client = ec2.NewFromConfig(cfg)
	return d.client, nil
}

// DetectNodes walks EC2 instances relevant to this driver's namespace,
// converting each into a *resource.Node with security_group_names set (not
// yet resolved — Collection.Connect does that after detect_firewalls).
func (d *Driver) DetectNodes(ctx context.Context) ([]*resource.Node, error) {
	client, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{})
	if err != nil {
		return nil, errors.Wrap(err, "describing EC2 instances")
	}

	volumeSizes, err := d.volumeSizeCache(ctx)
	if err != nil {
		return nil, err
	}

	var nodes []*resource.Node
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			state := strings.ToLower(string(inst.State.Name))
			if irrelevantStates[state] || state == "" {
				continue
			}
			ns := tagValue(inst.Tags, namespaceTagKey)
			if !d.IsNodeRelevant(ns) {
				continue
			}

			n := resource.NewNode(tagValue(inst.Tags, "Name"))
			n.Image = awssdk.ToString(inst.ImageId)
			n.Flavor = string(inst.InstanceType)
			n.ServerID = awssdk.ToString(inst.InstanceId)
			n.ServerStatus = state
			if size, ok := volumeSizes[awssdk.ToString(inst.InstanceId)]; ok {
				n.Disk = size
			}
			for _, sg := range inst.SecurityGroups {
				n.SecurityGroupNames = append(n.SecurityGroupNames, awssdk.ToString(sg.GroupName))
			}
			for _, ni := range inst.NetworkInterfaces {
				p := resource.Port{
					ID:          awssdk.ToString(ni.NetworkInterfaceId),
					MAC:         awssdk.ToString(ni.MacAddress),
					NetworkName: awssdk.ToString(ni.SubnetId),
				}
				if ni.PrivateIpAddress != nil {
					p.FixedIP = awssdk.ToString(ni.PrivateIpAddress)
				}
				if ni.Association != nil {
					p.FloatingIP = awssdk.ToString(ni.Association.PublicIp)
				}
				n.Ports = append(n.Ports, p)
			}
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// volumeSizeCache maps instance id -> root volume size in GB, resolved via
// DescribeVolumes, for the node identity tuple's disk field.
func (d *Driver) volumeSizeCache(ctx context.Context) (map[string]int, error) {
	client, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{})
	if err != nil {
		return nil, errors.Wrap(err, "describing EBS volumes")
	}
	sizes := map[string]int{}
	for _, v := range out.Volumes {
		for _, att := range v.Attachments {
			if awssdk.ToString(att.Device) == "/dev/sda1" {
				sizes[awssdk.ToString(att.InstanceId)] = int(awssdk.ToInt32(v.Size))
			}
		}
	}
	return sizes, nil
}

// DetectFirewalls enumerates every security group and its ingress rules,
// resolving group-pair references to a source security group name via the
// id<->name cache (refreshed lazily on first miss, per spec.md §4.E / §5).
func (d *Driver) DetectFirewalls(ctx context.Context) (*resource.NamedSet, *resource.RuleSet, error) {
	client, err := d.conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	out, err := client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "describing security groups")
	}

	d.refreshSGCache(out.SecurityGroups)

	groups := resource.NewNamedSet()
	rules := resource.NewRuleSet()
	for _, sg := range out.SecurityGroups {
		name := awssdk.ToString(sg.GroupName)
		groups.Add(resource.NewSecurityGroup(name))
		for _, perm := range sg.IpPermissions {
			base := resource.SecurityGroupRule{
				SecurityGroup: name,
				FromPort:      int(awssdk.ToInt32(perm.FromPort)),
				ToPort:        int(awssdk.ToInt32(perm.ToPort)),
				Protocol:      awssdk.ToString(perm.IpProtocol),
			}
			for _, ipr := range perm.IpRanges {
				r := base
				r.SourceIP = awssdk.ToString(ipr.CidrIp)
				rules.Add(r)
			}
			for _, pair := range perm.UserIdGroupPairs {
				r := base
				if sourceName, ok := d.sgIDToName[awssdk.ToString(pair.GroupId)]; ok {
					r.SourceGroup = sourceName
				} else {
					r.SourceGroup = awssdk.ToString(pair.GroupId)
				}
				rules.Add(r)
			}
		}
	}
	return groups, rules, nil
}

func (d *Driver) refreshSGCache(groups []types.SecurityGroup) {
	d.sgIDToName = make(map[string]string, len(groups))
	d.sgNameToID = make(map[string]string, len(groups))
	for _, sg := range groups {
		id, name := awssdk.ToString(sg.GroupId), awssdk.ToString(sg.GroupName)
		d.sgIDToName[id] = name
		d.sgNameToID[name] = id
	}
}

// groupID resolves name to its AWS group id, refreshing the cache once on a
// miss (the cache is lazy and may go stale under contention; a miss simply
// triggers one re-describe, per spec.md §5).
func (d *Driver) groupID(ctx context.Context, name string) (string, error) {
	if id, ok := d.sgNameToID[name]; ok {
		return id, nil
	}
	if _, _, err := d.DetectFirewalls(ctx); err != nil {
		return "", err
	}
	id, ok := d.sgNameToID[name]
	if !ok {
		return "", fmt.Errorf("security group %q not found", name)
	}
	return id, nil
}

// CreateSecurityGroup creates sg, swallowing InvalidGroup.Duplicate so
// re-apply is idempotent (spec.md §4.E/§7).
func (d *Driver) CreateSecurityGroup(ctx context.Context, sg *resource.SecurityGroup) error {
	client, err := d.conn(ctx)
	if err != nil {
		return err
	}
	_, err = client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   awssdk.String(sg.Name),
		Description: awssdk.String(sg.Name),
	})
	if err != nil && isAWSErrorCode(err, "InvalidGroup.Duplicate") {
		return nil
	}
	return err
}

// CreateSecurityGroupRule authorizes r as an ingress rule on its owning
// group, resolving source_group to an id first when set.
func (d *Driver) CreateSecurityGroupRule(ctx context.Context, r resource.SecurityGroupRule) error {
	client, err := d.conn(ctx)
	if err != nil {
		return err
	}
	groupID, err := d.groupID(ctx, r.SecurityGroup)
	if err != nil {
		return err
	}

	perm := types.IpPermission{
		FromPort:   awssdk.Int32(int32(r.FromPort)),
		ToPort:     awssdk.Int32(int32(r.ToPort)),
		IpProtocol: awssdk.String(r.Protocol),
	}
	if r.SourceIP != "" {
		perm.IpRanges = []types.IpRange{{CidrIp: awssdk.String(r.SourceIP)}}
	} else {
		sourceID, err := d.groupID(ctx, r.SourceGroup)
		if err != nil {
			return err
		}
		perm.UserIdGroupPairs = []types.UserIdGroupPair{{GroupId: awssdk.String(sourceID)}}
	}

	_, err = client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       awssdk.String(groupID),
		IpPermissions: []types.IpPermission{perm},
	})
	if err != nil && isAWSErrorCode(err, "InvalidPermission.Duplicate") {
		return nil
	}
	return err
}

// CreateNode launches n with a single /dev/sda1 EBS root volume sized from
// n.Disk, per spec.md §4.E.
func (d *Driver) CreateNode(ctx context.Context, n *resource.Node) error {
	client, err := d.conn(ctx)
	if err != nil {
		return err
	}

	var groupIDs []string
	for _, name := range n.SecurityGroupNames {
		id, err := d.groupID(ctx, name)
		if err != nil {
			return err
		}
		groupIDs = append(groupIDs, id)
	}

	out, err := client.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:          awssdk.String(d.ApplyMappings("images", n.Image)),
		InstanceType:     types.InstanceType(d.ApplyMappings("flavors", n.Flavor)),
		MinCount:         awssdk.Int32(1),
		MaxCount:         awssdk.Int32(1),
		SecurityGroupIds: groupIDs,
		BlockDeviceMappings: []types.BlockDeviceMapping{
			{
				DeviceName: awssdk.String("/dev/sda1"),
				Ebs:        &types.EbsBlockDevice{VolumeSize: awssdk.Int32(int32(n.Disk))},
			},
		},
		TagSpecifications: []types.TagSpecification{
			{
				ResourceType: types.ResourceTypeInstance,
				Tags: []types.Tag{
					{Key: awssdk.String("Name"), Value: awssdk.String(n.Name)},
					{Key: awssdk.String(namespaceTagKey), Value: awssdk.String(d.Namespace)},
				},
			},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "launching instance %s", n.Name)
	}
	n.ServerID = awssdk.ToString(out.Instances[0].InstanceId)
	return nil
}

// DeleteNode terminates n.
func (d *Driver) DeleteNode(ctx context.Context, n *resource.Node) error {
	client, err := d.conn(ctx)
	if err != nil {
		return err
	}
	_, err = client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{n.ServerID}})
	return err
}

// DetectResources assembles a full Collection from nodes + firewalls and
// cross-links it.
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

// ClusterData builds {containers, proxyconf:{domains, backends}} from coll,
// walking every URLConfBackend to build the domains map and the unique
// backends set, per spec.md §4.E/§6.
func (d *Driver) ClusterData(coll *resource.Collection) (map[string]interface{}, error) {
	domains := map[string]map[string]map[string]string{}
	backendSet := map[string]bool{}

	src := coll
	if coll.OriginalCollection != nil {
		src = coll.OriginalCollection
	}
	for _, u := range src.URLs {
		if u.Kind != resource.URLBackend {
			continue
		}
		if domains[u.Hostname] == nil {
			domains[u.Hostname] = map[string]map[string]string{}
		}
		domains[u.Hostname][u.Path] = map[string]string{
			"type":        "backend",
			"destination": u.Destination,
		}
		prefix := strings.SplitN(u.Destination, "/", 2)[0]
		backendSet[prefix] = true
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

func tagValue(tags []types.Tag, key string) string {
	for _, t := range tags {
		if awssdk.ToString(t.Key) == key {
			return awssdk.ToString(t.Value)
		}
	}
	return ""
}

func isAWSErrorCode(err error, code string) bool {
	return err != nil && strings.Contains(err.Error(), code)
}
