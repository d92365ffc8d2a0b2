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

// Package pipeline implements the detect -> diff -> apply and
// detect -> clean reconciliation entry points of spec.md §4.F. The actual
// resource-type batching (groups before nodes before rules, fanned out
// across the worker pool) lives on driver.Base and is shared by every
// provider; this package only sequences detect/diff/apply/clean and builds
// the apply-time summary.
package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/aasemble/cloudctl/pkg/diff"
	"github.com/aasemble/cloudctl/pkg/driver"
	"github.com/aasemble/cloudctl/pkg/resource"
)

// Options configures a single Apply call.
type Options struct {
	// AssumeEmpty skips detection entirely, applying the desired
	// Collection as-is (spec.md §6's `apply --assume-empty`).
	AssumeEmpty bool
}

// Summary reports, per applied node, its name and resolved public IPs —
// the apply-time report spec.md §4.F calls for.
type Summary struct {
	NodeName  string
	PublicIPs []string
}

// Apply reconciles desired against the driver's detected state (unless
// AssumeEmpty), creates whatever the diff says is missing, and returns a
// per-node summary for the caller to print.
func Apply(ctx context.Context, drv driver.Driver, desired *resource.Collection, opts Options) ([]Summary, error) {
	toCreate := desired
	if !opts.AssumeEmpty {
		detected, err := drv.DetectResources(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "detecting existing resources")
		}
		toCreate = diff.Compute(desired, detected)
	}

	if err := drv.ApplyResources(ctx, toCreate); err != nil {
		return nil, errors.Wrap(err, "applying resources")
	}

	nodes := toCreate.Nodes.Values()
	summary := make([]Summary, 0, len(nodes))
	for _, named := range nodes {
		n := named.(*resource.Node)
		summary = append(summary, Summary{NodeName: n.Name, PublicIPs: n.PublicIPs()})
	}
	return summary, nil
}

// Clean detects everything the driver currently owns and deletes it, per
// spec.md §4.F's "clean simply calls detect_resources() then
// clean_resources() on the result".
func Clean(ctx context.Context, drv driver.Driver) error {
	detected, err := drv.DetectResources(ctx)
	if err != nil {
		return errors.Wrap(err, "detecting resources to clean")
	}
	return drv.CleanResources(ctx, detected)
}
