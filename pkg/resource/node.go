package resource

import (
	"sort"
	"strconv"
	"strings"
)

// NetworkAttachment describes one network a Node is (or should be) attached
// to, as given in the stack document's `nodes.*.networks` list.
type NetworkAttachment struct {
	Network          string
	AssignFloatingIP bool
	SecurityGroups   []string
}

// Port is a transient, provider-assigned record of a network interface
// attached to a Node. It is never part of Node identity.
type Port struct {
	ID          string
	FixedIP     string
	MAC         string
	NetworkName string
	FloatingIP  string // empty if none associated
}

// Node is a compute instance: the essential, identity-bearing attributes
// plus the transient, provider-assigned runtime state that apply/clean
// mutate as they go.
type Node struct {
	// Essential attributes. All but Networks and AttemptsLeft are part of
	// identityKey.
	Name              string
	Flavor            string
	Image             string
	Disk              int
	Networks          []NetworkAttachment
	SecurityGroupNames []string // names, resolved into SecurityGroups by Collection.Connect
	Script            string
	AttemptsLeft      int

	// Resolved cross-links (set by Connect; not part of identity).
	SecurityGroups *NamedSet // of *SecurityGroup

	// Transient runtime state, mutated by drivers during apply/clean.
	ProviderHandle interface{}
	ServerID       string
	Ports          []Port
	FloatingIPs    *FloatingIPSet
	ServerStatus   string

	// Export controls whether this node's fixed IPs are exported as
	// AASEMBLE_<node>_<net>_fixed environment variables to shell steps.
	Export bool

	// Count-expanded nodes keep a pointer back to the base name they were
	// generated from (e.g. "web1".BaseName == "web").
	BaseName string
}

// NewNode returns a Node with AttemptsLeft defaulted to 1, as specified.
func NewNode(name string) *Node {
	return &Node{Name: name, AttemptsLeft: 1, FloatingIPs: NewFloatingIPSet()}
}

// ResourceName implements Named.
func (n *Node) ResourceName() string { return n.Name }

// identityKey returns the canonical identity tuple of spec.md §3: name,
// flavor, image, disk, script, and the sorted security group names.
func (n *Node) identityKey() string {
	names := append([]string(nil), n.SecurityGroupNames...)
	sort.Strings(names)
	return strings.Join([]string{
		n.Name,
		n.Flavor,
		n.Image,
		strconv.Itoa(n.Disk),
		n.Script,
		strings.Join(names, ","),
	}, "\x00")
}

// EqualTo implements Equatable: two Nodes are equal iff their identity
// tuples match, regardless of any transient runtime state.
func (n *Node) EqualTo(other Named) bool {
	o, ok := other.(*Node)
	if !ok || o == nil {
		return false
	}
	return n.identityKey() == o.identityKey()
}

// PublicIPs returns the floating IPs attached to this node's ports, in port
// order, for use in apply summaries and AsMap.
func (n *Node) PublicIPs() []string {
	var ips []string
	for _, p := range n.Ports {
		if p.FloatingIP != "" {
			ips = append(ips, p.FloatingIP)
		}
	}
	return ips
}

// AsMap produces the structural, JSON-ready form of a Node.
func (n *Node) AsMap() map[string]interface{} {
	networks := make([]map[string]interface{}, 0, len(n.Networks))
	for _, na := range n.Networks {
		networks = append(networks, map[string]interface{}{
			"network":            na.Network,
			"assign_floating_ip": na.AssignFloatingIP,
			"securitygroups":     na.SecurityGroups,
		})
	}

	m := map[string]interface{}{
		"name":            n.Name,
		"flavor":          n.Flavor,
		"image":           n.Image,
		"disk":            n.Disk,
		"networks":        networks,
		"security_groups": append([]string(nil), n.SecurityGroupNames...),
		"attempts_left":   n.AttemptsLeft,
	}
	if n.Script != "" {
		m["script"] = n.Script
	}
	if ips := n.PublicIPs(); len(ips) > 0 {
		m["public_ips"] = ips
	}
	if n.ServerID != "" {
		m["server_id"] = n.ServerID
	}
	if n.ServerStatus != "" {
		m["status"] = n.ServerStatus
	}
	return m
}
