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

package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/aasemble/cloudctl/pkg/cloudconfig"
	"github.com/aasemble/cloudctl/pkg/driver"
	"github.com/aasemble/cloudctl/pkg/driver/aws"
	"github.com/aasemble/cloudctl/pkg/driver/digitalocean"
	"github.com/aasemble/cloudctl/pkg/driver/gce"
	"github.com/aasemble/cloudctl/pkg/driver/openstack"
)

// defaultCloudsDir is where `--cloud NAME` looks for NAME.cfg unless
// overridden, mirroring the teacher's XDG-ish default-path conventions.
func defaultCloudsDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cloudctl", "clouds")
	}
	return "clouds"
}

func cloudConfigPath(name string) string {
	return filepath.Join(viper.GetString("clouds-dir"), name+".cfg")
}

// buildDriver loads the named cloud account's INI config and constructs the
// matching provider driver, wiring its mapping table, namespace, and worker
// pool size from the common apply/detect/clean flags, per spec.md §4.D/§6.
func buildDriver(name, namespace string, threads int) (driver.Driver, error) {
	cfg, err := cloudconfig.Load(cloudConfigPath(name))
	if err != nil {
		return nil, err
	}

	base := driver.Base{
		Namespace: namespace,
		Mappings:  cfg.Mappings(),
		Threads:   threads,
	}

	switch cfg.Driver {
	case "aws":
		return &aws.Driver{
			Base:   base,
			Region: cfg.Connection["region"],
		}, nil
	case "gce":
		return &gce.Driver{
			Base:    base,
			Project: cfg.Connection["project"],
			Zone:    cfg.Connection["zone"],
		}, nil
	case "digitalocean":
		return &digitalocean.Driver{
			Base:     base,
			APIToken: cfg.Connection["api_token"],
			Region:   cfg.Connection["region"],
		}, nil
	case "openstack":
		return &openstack.Driver{
			Base: base,
			Auth: openstack.AuthOpts{
				IdentityEndpoint: cfg.Connection["auth_url"],
				Username:         cfg.Connection["username"],
				Password:         cfg.Connection["password"],
				TenantName:       cfg.Connection["tenant_name"],
				Region:           cfg.Connection["region"],
			},
		}, nil
	default:
		return nil, fmt.Errorf("cloud %q: unknown driver %q", name, cfg.Driver)
	}
}

// provisionDriver is buildDriver narrowed to the richer provision.Driver
// capability set, which only the OpenStack backend satisfies.
func provisionDriver(name, namespace string, threads int) (*openstack.Driver, error) {
	d, err := buildDriver(name, namespace, threads)
	if err != nil {
		return nil, err
	}
	osDriver, ok := d.(*openstack.Driver)
	if !ok {
		return nil, errors.Errorf("cloud %q: provisioning is only supported against the openstack driver", name)
	}
	return osDriver, nil
}

func parseSubstitutions(args []string) (map[string]string, error) {
	vars := make(map[string]string, len(args))
	for _, a := range args {
		idx := strings.IndexByte(a, '=')
		if idx < 0 {
			return nil, fmt.Errorf("substitution %q is not of the form key=value", a)
		}
		vars[a[:idx]] = a[idx+1:]
	}
	return vars, nil
}
