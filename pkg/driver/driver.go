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

// Package driver defines the capability set every cloud provider backend
// implements, plus a shared Base providing the helpers common to all of
// them: mapping lookup, key-pair reconciliation, namespace filtering, and
// the bounded worker pool used by the reconciliation pipeline.
package driver

import (
	"context"

	"github.com/aasemble/cloudctl/pkg/resource"
)

// Driver is the capability set a provider backend must implement, per
// spec.md §4.D.
type Driver interface {
	DetectResources(ctx context.Context) (*resource.Collection, error)
	ApplyResources(ctx context.Context, coll *resource.Collection) error
	CleanResources(ctx context.Context, coll *resource.Collection) error

	CreateNode(ctx context.Context, n *resource.Node) error
	CreateSecurityGroup(ctx context.Context, sg *resource.SecurityGroup) error
	CreateSecurityGroupRule(ctx context.Context, r resource.SecurityGroupRule) error
	DeleteNode(ctx context.Context, n *resource.Node) error

	DetectFirewalls(ctx context.Context) (*resource.NamedSet, *resource.RuleSet, error)
	DetectNodes(ctx context.Context) ([]*resource.Node, error)

	ClusterData(coll *resource.Collection) (map[string]interface{}, error)
}
