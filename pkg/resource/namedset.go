package resource

// NamedSet is an insertion-ordered mapping from name to item. It underlies
// Collection.Nodes and Collection.SecurityGroups. It behaves like a set in
// that adding a name twice overwrites the prior entry, but it is keyed on
// name rather than on the full value, which is what makes the "−" operator
// an identity-based diff rather than a value-based one.
type NamedSet struct {
	order []string
	items map[string]Named
}

// NewNamedSet builds a NamedSet from zero or more items, preserving the
// order given (later duplicates overwrite earlier ones but keep their
// original position).
func NewNamedSet(items ...Named) *NamedSet {
	s := &NamedSet{items: map[string]Named{}}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add inserts or overwrites item, keyed by its ResourceName.
func (s *NamedSet) Add(item Named) {
	if s.items == nil {
		s.items = map[string]Named{}
	}
	name := item.ResourceName()
	if _, exists := s.items[name]; !exists {
		s.order = append(s.order, name)
	}
	s.items[name] = item
}

// Remove deletes the entry with the given name, if present.
func (s *NamedSet) Remove(name string) {
	if _, ok := s.items[name]; !ok {
		return
	}
	delete(s.items, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// RemoveItem deletes the entry matching item's name.
func (s *NamedSet) RemoveItem(item Named) {
	s.Remove(item.ResourceName())
}

// Get returns the item stored under name, if any.
func (s *NamedSet) Get(name string) (Named, bool) {
	item, ok := s.items[name]
	return item, ok
}

// Has reports whether name is present, regardless of value.
func (s *NamedSet) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.items[name]
	return ok
}

// HasValue reports whether item is a member by value: its name is present
// and, if the item is Equatable, its identity matches too.
func (s *NamedSet) HasValue(item Named) bool {
	if s == nil {
		return false
	}
	existing, ok := s.items[item.ResourceName()]
	if !ok {
		return false
	}
	return equalNamed(existing, item)
}

// Values returns the items in insertion order.
func (s *NamedSet) Values() []Named {
	if s == nil {
		return nil
	}
	out := make([]Named, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.items[name])
	}
	return out
}

// Names returns the keys in insertion order.
func (s *NamedSet) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of entries. A nil NamedSet is treated as empty.
func (s *NamedSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// IsEmpty reports whether the set has no entries.
func (s *NamedSet) IsEmpty() bool {
	return s.Len() == 0
}

// Subtract returns a new NamedSet containing the entries of s whose name
// does not appear in other. Values are taken from s (the left operand).
// Only names are compared: an entry of s is dropped whenever other holds
// the same name, even if other's value differs. Order is preserved from s.
func (s *NamedSet) Subtract(other *NamedSet) *NamedSet {
	result := NewNamedSet()
	if s == nil {
		return result
	}
	for _, name := range s.order {
		if other == nil || !other.Has(name) {
			result.Add(s.items[name])
		}
	}
	return result
}

// Equal reports whether s and other contain the same names, each mapping to
// an equal value (via EqualTo when the item is Equatable, or simple name
// equality otherwise).
func (s *NamedSet) Equal(other *NamedSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	if s == nil {
		return true
	}
	for name, item := range s.items {
		otherItem, ok := other.items[name]
		if !ok || !equalNamed(item, otherItem) {
			return false
		}
	}
	return true
}

// EqualValues reports whether s contains exactly the given values (by
// identity, ignoring order) — the "equality against ... a plain value set"
// operation described for NamedSet.
func (s *NamedSet) EqualValues(values []Named) bool {
	if s.Len() != len(values) {
		return false
	}
	for _, v := range values {
		if !s.HasValue(v) {
			return false
		}
	}
	return true
}

func equalNamed(a, b Named) bool {
	if ae, ok := a.(Equatable); ok {
		return ae.EqualTo(b)
	}
	return a.ResourceName() == b.ResourceName()
}
