package resource

// SecurityGroup is identified solely by its name.
type SecurityGroup struct {
	Name string
}

// NewSecurityGroup returns a SecurityGroup with the given name.
func NewSecurityGroup(name string) *SecurityGroup {
	return &SecurityGroup{Name: name}
}

// ResourceName implements Named.
func (g *SecurityGroup) ResourceName() string { return g.Name }

// EqualTo implements Equatable.
func (g *SecurityGroup) EqualTo(other Named) bool {
	o, ok := other.(*SecurityGroup)
	return ok && o != nil && o.Name == g.Name
}

// AsMap produces the structural, JSON-ready form of a SecurityGroup.
func (g *SecurityGroup) AsMap() map[string]interface{} {
	return map[string]interface{}{"name": g.Name}
}
