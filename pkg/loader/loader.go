// Package loader turns a declarative YAML stack document into a
// resource.Collection, after resolving ${name}/$name substitutions against a
// caller-supplied variable dictionary.
package loader

import (
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/aasemble/cloudctl/pkg/resource"
	"github.com/aasemble/cloudctl/pkg/substitution"
)

// UnknownURLType is raised when a urls[].type isn't "static" or "backend".
type UnknownURLType struct {
	Type string
}

func (e *UnknownURLType) Error() string {
	return fmt.Sprintf("unknown url type %q", e.Type)
}

type networkAttachmentDoc struct {
	Network          string   `yaml:"network"`
	AssignFloatingIP bool     `yaml:"assign_floating_ip"`
	SecurityGroups   []string `yaml:"securitygroups"`
}

type nodeDoc struct {
	Flavor         string                 `yaml:"flavor"`
	Image          string                 `yaml:"image"`
	Disk           int                    `yaml:"disk"`
	Networks       []networkAttachmentDoc `yaml:"networks"`
	SecurityGroups []string               `yaml:"security_groups"`
	Script         string                 `yaml:"script"`
	Count          int                    `yaml:"count"`
	Export         bool                   `yaml:"export"`
}

type ruleDoc struct {
	FromPort    int    `yaml:"from_port"`
	ToPort      int    `yaml:"to_port"`
	Protocol    string `yaml:"protocol"`
	CIDR        string `yaml:"cidr"`
	SourceGroup string `yaml:"source_group"`
}

type networkDoc struct {
	CIDR string `yaml:"cidr"`
}

type urlDoc struct {
	Type        string `yaml:"type"`
	Hostname    string `yaml:"hostname"`
	Path        string `yaml:"path"`
	LocalPath   string `yaml:"local_path"`
	Destination string `yaml:"destination"`
}

type stackDoc struct {
	Nodes               map[string]nodeDoc       `yaml:"nodes"`
	SecurityGroups      map[string][]ruleDoc     `yaml:"security_groups"`
	SecurityGroupsAlias map[string][]ruleDoc     `yaml:"securitygroups"`
	Networks            map[string]networkDoc    `yaml:"networks"`
	URLs                []urlDoc                 `yaml:"urls"`
	Containers          []map[string]interface{} `yaml:"containers"`
	Tasks               []map[string]interface{} `yaml:"tasks"`
}

// Networks is the runner-mode network document, exposed alongside the
// Collection since resource.Collection has no network field (networks only
// matter to the provisioning runner, not to the detect/diff/apply pipeline).
type Networks map[string]struct{ CIDR string }

// Load parses raw YAML stack document bytes into a Collection (and, for
// runner-mode callers, the networks map). Substitution is applied to the raw
// bytes before unmarshalling, per spec.md §6.
func Load(raw []byte, vars map[string]string) (*resource.Collection, Networks, error) {
	expanded := substitution.Expand(string(raw), vars)

	var doc stackDoc
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, nil, errors.Wrap(err, "parsing stack document")
	}

	coll := resource.NewCollection()

	groups := doc.SecurityGroups
	if len(groups) == 0 {
		groups = doc.SecurityGroupsAlias
	}
	for name, rules := range groups {
		coll.SecurityGroups.Add(resource.NewSecurityGroup(name))
		for _, r := range rules {
			rule := resource.SecurityGroupRule{
				SecurityGroup: name,
				FromPort:      r.FromPort,
				ToPort:        r.ToPort,
				Protocol:      r.Protocol,
				SourceIP:      r.CIDR,
				SourceGroup:   r.SourceGroup,
			}
			coll.SecurityGroupRules.Add(rule)
		}
	}

	for baseName, nd := range doc.Nodes {
		count := nd.Count
		if count == 0 {
			count = 1
		}
		names := []string{baseName}
		if nd.Count > 0 {
			names = make([]string, 0, count)
			for i := 1; i <= count; i++ {
				names = append(names, fmt.Sprintf("%s%d", baseName, i))
			}
		}
		for _, name := range names {
			n := resource.NewNode(name)
			n.Flavor = nd.Flavor
			n.Image = nd.Image
			n.Disk = nd.Disk
			n.Script = nd.Script
			n.Export = nd.Export
			n.BaseName = baseName
			n.SecurityGroupNames = append([]string(nil), nd.SecurityGroups...)
			for _, na := range nd.Networks {
				n.Networks = append(n.Networks, resource.NetworkAttachment{
					Network:          na.Network,
					AssignFloatingIP: na.AssignFloatingIP,
					SecurityGroups:   na.SecurityGroups,
				})
			}
			coll.Nodes.Add(n)
		}
	}

	for _, u := range doc.URLs {
		var kind resource.URLKind
		switch u.Type {
		case "static":
			kind = resource.URLStatic
		case "backend":
			kind = resource.URLBackend
		default:
			return nil, nil, &UnknownURLType{Type: u.Type}
		}
		coll.URLs = append(coll.URLs, resource.URLConf{
			Kind:        kind,
			Hostname:    u.Hostname,
			Path:        u.Path,
			LocalPath:   u.LocalPath,
			Destination: u.Destination,
		})
	}

	coll.Containers = doc.Containers
	coll.Tasks = doc.Tasks
	coll.Connect()

	var networks Networks
	if len(doc.Networks) > 0 {
		networks = make(Networks, len(doc.Networks))
		for name, nd := range doc.Networks {
			networks[name] = struct{ CIDR string }{CIDR: nd.CIDR}
		}
	}

	return coll, networks, nil
}
