package resource

// Collection is the top-level aggregate: a full topology snapshot. It is
// produced by the stack loader from a declarative document, by drivers from
// provider inventories, and by the diff operator from a pair of the two.
type Collection struct {
	Nodes              *NamedSet // of *Node
	SecurityGroups     *NamedSet // of *SecurityGroup
	SecurityGroupRules *RuleSet
	URLs               []URLConf
	Containers         []map[string]interface{}
	Tasks              []map[string]interface{}

	// OriginalCollection is set exactly once, by Subtract, so that apply can
	// re-derive the full desired topology (for cluster_data) even when it is
	// only applying the missing subset.
	OriginalCollection *Collection
}

// NewCollection returns an empty, ready-to-use Collection.
func NewCollection() *Collection {
	return &Collection{
		Nodes:              NewNamedSet(),
		SecurityGroups:     NewNamedSet(),
		SecurityGroupRules: NewRuleSet(),
	}
}

// Connect cross-links every Node's SecurityGroupNames against this
// Collection's SecurityGroups, populating Node.SecurityGroups. A name that
// doesn't resolve within the Collection is silently dropped: it's assumed to
// be owned externally (spec.md §3 invariant 1).
func (c *Collection) Connect() {
	for _, n := range c.Nodes.Values() {
		node, ok := n.(*Node)
		if !ok {
			continue
		}
		resolved := NewNamedSet()
		for _, name := range node.SecurityGroupNames {
			if sg, ok := c.SecurityGroups.Get(name); ok {
				resolved.Add(sg)
			}
		}
		node.SecurityGroups = resolved
	}
}

// Subtract computes desired − detected per spec.md §4.C: nodes and security
// groups are subtracted by name, rules by full identity; URLs, containers,
// and tasks have no detection path yet and are carried over unchanged from
// the left operand (the receiver). The result's OriginalCollection is set to
// the receiver.
func (c *Collection) Subtract(other *Collection) *Collection {
	if other == nil {
		other = NewCollection()
	}
	return &Collection{
		Nodes:              c.Nodes.Subtract(other.Nodes),
		SecurityGroups:     c.SecurityGroups.Subtract(other.SecurityGroups),
		SecurityGroupRules: c.SecurityGroupRules.Subtract(other.SecurityGroupRules),
		URLs:               append([]URLConf(nil), c.URLs...),
		Containers:         c.Containers,
		Tasks:              c.Tasks,
		OriginalCollection: c,
	}
}

// Equal performs true structural equality over the four principal
// sub-collections. spec.md §9 notes the original Python implementation's
// __eq__ degenerated to a truthy tuple comparison due to a stray trailing
// comma; this implementation does the structural comparison that was
// evidently intended.
func (c *Collection) Equal(other *Collection) bool {
	if c == nil || other == nil {
		return c == nil && other == nil
	}
	if !c.Nodes.Equal(other.Nodes) {
		return false
	}
	if !c.SecurityGroups.Equal(other.SecurityGroups) {
		return false
	}
	if !c.SecurityGroupRules.Equal(other.SecurityGroupRules) {
		return false
	}
	if len(c.URLs) != len(other.URLs) {
		return false
	}
	for i := range c.URLs {
		if !c.URLs[i].Equal(other.URLs[i]) {
			return false
		}
	}
	return true
}

// AsMap produces the structural, JSON-ready form of the whole Collection,
// used by `detect --json` and as the basis for provider cluster_data.
func (c *Collection) AsMap() map[string]interface{} {
	nodes := make([]map[string]interface{}, 0, c.Nodes.Len())
	for _, n := range c.Nodes.Values() {
		nodes = append(nodes, n.(*Node).AsMap())
	}
	sgs := make([]map[string]interface{}, 0, c.SecurityGroups.Len())
	for _, g := range c.SecurityGroups.Values() {
		sgs = append(sgs, g.(*SecurityGroup).AsMap())
	}
	rules := make([]map[string]interface{}, 0, c.SecurityGroupRules.Len())
	for _, r := range c.SecurityGroupRules.Values() {
		rules = append(rules, r.AsMap())
	}
	urls := make([]map[string]interface{}, 0, len(c.URLs))
	for _, u := range c.URLs {
		urls = append(urls, u.AsMap())
	}
	return map[string]interface{}{
		"nodes":                nodes,
		"security_groups":      sgs,
		"security_group_rules": rules,
		"urls":                 urls,
		"containers":           c.Containers,
		"tasks":                c.Tasks,
	}
}
