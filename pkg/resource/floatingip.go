package resource

import "fmt"

// FloatingIP is an externally-routable address, identified by (id, address).
type FloatingIP struct {
	ID        string
	IPAddress string
}

func (f FloatingIP) key() string {
	return fmt.Sprintf("%s\x00%s", f.ID, f.IPAddress)
}

// AsMap produces the structural, JSON-ready form of a FloatingIP.
func (f FloatingIP) AsMap() map[string]interface{} {
	return map[string]interface{}{"id": f.ID, "ip_address": f.IPAddress}
}

// FloatingIPSet is an insertion-ordered set of FloatingIPs attached to a Node.
type FloatingIPSet struct {
	order []string
	items map[string]FloatingIP
}

// NewFloatingIPSet builds a FloatingIPSet from zero or more floating IPs.
func NewFloatingIPSet(fips ...FloatingIP) *FloatingIPSet {
	s := &FloatingIPSet{items: map[string]FloatingIP{}}
	for _, f := range fips {
		s.Add(f)
	}
	return s
}

// Add inserts f, if not already present.
func (s *FloatingIPSet) Add(f FloatingIP) {
	if s.items == nil {
		s.items = map[string]FloatingIP{}
	}
	k := f.key()
	if _, exists := s.items[k]; !exists {
		s.order = append(s.order, k)
	}
	s.items[k] = f
}

// Remove deletes f, if present.
func (s *FloatingIPSet) Remove(f FloatingIP) {
	k := f.key()
	if _, ok := s.items[k]; !ok {
		return
	}
	delete(s.items, k)
	for i, kk := range s.order {
		if kk == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Values returns the floating IPs in insertion order.
func (s *FloatingIPSet) Values() []FloatingIP {
	if s == nil {
		return nil
	}
	out := make([]FloatingIP, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.items[k])
	}
	return out
}

// Len returns the number of floating IPs.
func (s *FloatingIPSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}
