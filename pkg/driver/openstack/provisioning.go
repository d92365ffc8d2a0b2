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

package openstack

import (
	"context"
	"fmt"
	"time"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/bootfromvolume"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/keypairs"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/layer3/routers"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/ports"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/subnets"
	"github.com/gophercloud/gophercloud/pagination"
	"github.com/pkg/errors"

	"github.com/aasemble/cloudctl/pkg/resource"
)

// This file holds the additional, OpenStack-specific resource-type
// operations the provisioning runner (pkg/provision) drives directly: it
// goes well beyond the driver.Driver capability set, per spec.md §4.E's
// description of OpenStack as "the richest driver".

func (d *Driver) blockClient() (*gophercloud.ServiceClient, error) {
	if d.block != nil {
		return d.block, nil
	}
	if _, _, err := d.clients(); err != nil {
		return nil, err
	}
	block, err := openstack.NewBlockStorageV3(d.provider, gophercloud.EndpointOpts{Region: d.Auth.Region})
	if err != nil {
		return nil, errors.Wrap(err, "constructing Cinder client")
	}
	d.block = block
	return d.block, nil
}

// ListNetworks returns the names of every Neutron network visible to this
// project, used by the provisioning runner's incremental detection pass.
func (d *Driver) ListNetworks(ctx context.Context) ([]string, error) {
	_, network, err := d.clients()
	if err != nil {
		return nil, err
	}
	var names []string
	err = networks.List(network, networks.ListOpts{}).EachPage(func(page pagination.Page) (bool, error) {
		list, err := networks.ExtractNetworks(page)
		if err != nil {
			return false, err
		}
		for _, n := range list {
			names = append(names, n.Name)
		}
		return true, nil
	})
	return names, err
}

// CreateNetwork creates a network, a subnet over cidr, and — if routerName
// names an existing router — attaches the subnet to it. Returns the
// network and subnet ids so the caller can journal both, per spec.md §4.G
// and SPEC_FULL.md §4.4 (subnet /prefix + optional router-interface attach
// against a wildcard-named router, lifted from the original's
// cloud/openstack.py create_network).
func (d *Driver) CreateNetwork(ctx context.Context, name, cidr, routerName string) (networkID, subnetID string, err error) {
	_, network, err := d.clients()
	if err != nil {
		return "", "", err
	}

	adminStateUp := true
	net, err := networks.Create(network, networks.CreateOpts{Name: name, AdminStateUp: &adminStateUp}).Extract()
	if err != nil {
		return "", "", errors.Wrapf(err, "creating network %s", name)
	}

	subnet, err := subnets.Create(network, subnets.CreateOpts{
		NetworkID: net.ID,
		CIDR:      cidr,
		IPVersion: gophercloud.IPv4,
		Name:      name + "-subnet",
	}).Extract()
	if err != nil {
		return net.ID, "", errors.Wrapf(err, "creating subnet for network %s", name)
	}

	if routerName != "" {
		routerID, rerr := d.routerIDByName(network, routerName)
		if rerr != nil {
			return net.ID, subnet.ID, errors.Wrapf(rerr, "looking up router %s", routerName)
		}
		if routerID != "" {
			if _, err := routers.AddInterface(network, routerID, routers.AddInterfaceOpts{SubnetID: subnet.ID}).Extract(); err != nil {
				return net.ID, subnet.ID, errors.Wrapf(err, "attaching subnet %s to router %s", subnet.ID, routerName)
			}
		}
	}

	return net.ID, subnet.ID, nil
}

func (d *Driver) routerIDByName(network *gophercloud.ServiceClient, name string) (string, error) {
	var id string
	err := routers.List(network, routers.ListOpts{Name: name}).EachPage(func(page pagination.Page) (bool, error) {
		list, err := routers.ExtractRouters(page)
		if err != nil {
			return false, err
		}
		if len(list) > 0 {
			id = list[0].ID
			return false, nil
		}
		return true, nil
	})
	return id, err
}

// DeleteSubnet detaches any router interface bound to subnetID on
// NeutronConflict, then retries the delete once, per spec.md §4.E's
// `delete_subnet`.
func (d *Driver) DeleteSubnet(ctx context.Context, subnetID string) error {
	_, network, err := d.clients()
	if err != nil {
		return err
	}
	err = subnets.Delete(network, subnetID).ExtractErr()
	if err == nil || !isConflict(err) {
		return err
	}

	err = routers.List(network, routers.ListOpts{}).EachPage(func(page pagination.Page) (bool, error) {
		list, err := routers.ExtractRouters(page)
		if err != nil {
			return false, err
		}
		for _, r := range list {
			_, rmErr := routers.RemoveInterface(network, r.ID, routers.RemoveInterfaceOpts{SubnetID: subnetID}).Extract()
			if rmErr == nil {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return errors.Wrap(err, "detaching router interface before subnet delete retry")
	}
	return subnets.Delete(network, subnetID).ExtractErr()
}

// CreateSecurityGroupWithRules creates a Nova security group with its rules
// authorized inline, one create call per rule against the new group — the
// "inline rule creation inside the group-create call" of spec.md §4.E.
func (d *Driver) CreateSecurityGroupWithRules(ctx context.Context, name string, rules []resource.SecurityGroupRule) (string, error) {
	sg := resource.NewSecurityGroup(name)
	if err := d.CreateSecurityGroup(ctx, sg); err != nil {
		return "", err
	}
	compute, _, err := d.clients()
	if err != nil {
		return "", err
	}
	id, err := d.secGroupIDByName(compute, name)
	if err != nil {
		return "", err
	}
	for _, r := range rules {
		r.SecurityGroup = name
		if err := d.CreateSecurityGroupRule(ctx, r); err != nil {
			return id, errors.Wrapf(err, "authorizing rule on security group %s", name)
		}
	}
	return id, nil
}

// CreatePortOnNetwork allocates a Neutron port on networkID, optionally
// bound to the given security group ids, and returns its id and fixed IP.
func (d *Driver) CreatePortOnNetwork(ctx context.Context, networkID string, securityGroupIDs []string) (portID, fixedIP string, err error) {
	_, network, err := d.clients()
	if err != nil {
		return "", "", err
	}
	p, err := ports.Create(network, ports.CreateOpts{
		NetworkID:      networkID,
		SecurityGroups: &securityGroupIDs,
	}).Extract()
	if err != nil {
		return "", "", errors.Wrap(err, "creating port")
	}
	if len(p.FixedIPs) > 0 {
		fixedIP = p.FixedIPs[0].IPAddress
	}
	return p.ID, fixedIP, nil
}

// CreateVolume creates a new volume of sizeGB from imageRef, the first half
// of build_server's volume-then-boot sequence (spec.md §4.E).
func (d *Driver) CreateVolume(ctx context.Context, sizeGB int, imageRef string) (string, error) {
	block, err := d.blockClient()
	if err != nil {
		return "", err
	}
	v, err := volumes.Create(block, volumes.CreateOpts{Size: sizeGB, ImageID: imageRef}).Extract()
	if err != nil {
		return "", errors.Wrap(err, "creating volume")
	}
	return v.ID, nil
}

// WaitVolumeAvailable polls volume status every 3s until "available", per
// spec.md §4.E/§5.
func (d *Driver) WaitVolumeAvailable(ctx context.Context, volumeID string) error {
	block, err := d.blockClient()
	if err != nil {
		return err
	}
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		v, err := volumes.Get(block, volumeID).Extract()
		if err != nil {
			return errors.Wrap(err, "polling volume status")
		}
		if v.Status == "available" {
			return nil
		}
		if v.Status == "error" {
			return fmt.Errorf("volume %s entered error state", volumeID)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// BuildServerFromVolume launches a server whose only block device is the
// pre-built volume at vda, per spec.md §4.E's `vda -> <volume>:::1` mapping.
func (d *Driver) BuildServerFromVolume(ctx context.Context, name, flavor, volumeID string, networkIDs []string) (string, error) {
	compute, _, err := d.clients()
	if err != nil {
		return "", err
	}

	var nets []servers.Network
	for _, id := range networkIDs {
		nets = append(nets, servers.Network{UUID: id})
	}

	createOpts := bootfromvolume.CreateOptsExt{
		CreateOptsBuilder: servers.CreateOpts{
			Name:      name,
			FlavorRef: flavor,
			Networks:  nets,
		},
		BlockDevice: []bootfromvolume.BlockDevice{{
			SourceType:          bootfromvolume.SourceVolume,
			DestinationType:     bootfromvolume.DestinationVolume,
			UUID:                volumeID,
			BootIndex:           0,
			DeleteOnTermination: true,
		}},
	}

	srv, err := bootfromvolume.Create(compute, createOpts).Extract()
	if err != nil {
		return "", errors.Wrapf(err, "launching server %s from volume %s", name, volumeID)
	}
	return srv.ID, nil
}

// GetServerStatus returns the current status of a server as Nova reports
// it (e.g. "ACTIVE"), used by the provisioning runner's 5s polling loop.
func (d *Driver) GetServerStatus(ctx context.Context, serverID string) (string, error) {
	compute, _, err := d.clients()
	if err != nil {
		return "", err
	}
	srv, err := servers.Get(compute, serverID).Extract()
	if err != nil {
		return "", err
	}
	return srv.Status, nil
}

// FindKeyPairByFingerprint implements driver.KeyPairLookup.
func (d *Driver) FindKeyPairByFingerprint(ctx context.Context, fingerprint string) (string, bool, error) {
	compute, _, err := d.clients()
	if err != nil {
		return "", false, err
	}
	var found string
	err = keypairs.List(compute, keypairs.ListOpts{}).EachPage(func(page pagination.Page) (bool, error) {
		list, err := keypairs.ExtractKeyPairs(page)
		if err != nil {
			return false, err
		}
		for _, kp := range list {
			if kp.Fingerprint == fingerprint {
				found = kp.Name
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return "", false, err
	}
	return found, found != "", nil
}

// ImportKeyPair implements driver.KeyPairLookup, making up to 3 attempts
// in total on any error (spec.md §4.E: "keypairs ... retried on arbitrary exceptions
// up to a configured retry count") and swallowing a conflict from a
// concurrent import of the same key (idempotent on conflict).
func (d *Driver) ImportKeyPair(ctx context.Context, name string, publicKey []byte) error {
	compute, _, err := d.clients()
	if err != nil {
		return err
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, lastErr = keypairs.Create(compute, keypairs.CreateOpts{
			Name:      name,
			PublicKey: string(publicKey),
		}).Extract()
		if lastErr == nil || isConflict(lastErr) {
			return nil
		}
	}
	return errors.Wrap(lastErr, "importing keypair after retries")
}
