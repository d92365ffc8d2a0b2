// Package resource implements the provider-neutral topology model that the
// rest of cloudctl reconciles: nodes, security groups, firewall rules, URL
// routes and the set algebra used to diff a desired topology against a
// detected one.
//
// Identity is deliberately narrow. Two Nodes with the same (name, flavor,
// image, disk, script, security group names) tuple are considered the same
// resource even if their transient, provider-assigned fields (server ID,
// ports, floating IPs) differ. That's what lets a diff against already
// created infrastructure be a no-op.
package resource

// Named is satisfied by any resource kept in a NamedSet.
type Named interface {
	ResourceName() string
}

// Equatable is satisfied by resources whose identity is richer than their
// name, so NamedSet can tell a genuinely new resource apart from one that's
// merely been re-detected with different transient state.
type Equatable interface {
	Named
	EqualTo(other Named) bool
}
