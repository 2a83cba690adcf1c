package metadata

// Set is an ordered set of entries.
// Entries are deduplicated by key and kept in insertion order.
type Set struct {
	entries []Entry
	keys    map[string]struct{}
}

// NewSet allocates a Set.
func NewSet(entries ...Entry) *Set {
	s := &Set{}
	for _, e := range entries {
		s.Add(e)
	}
	return s
}

// Add adds an entry. It returns false if an equal entry is already present.
func (s *Set) Add(e Entry) bool {
	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}

	k := e.Key()
	if _, ok := s.keys[k]; ok {
		return false
	}

	s.keys[k] = struct{}{}
	s.entries = append(s.entries, e)
	return true
}

// AddAll adds all entries of another set.
func (s *Set) AddAll(other *Set) {
	for _, e := range other.entries {
		s.Add(e)
	}
}

// Remove removes an entry. It returns false if the entry is not present.
func (s *Set) Remove(e Entry) bool {
	k := e.Key()
	if _, ok := s.keys[k]; !ok {
		return false
	}

	delete(s.keys, k)

	for i, cur := range s.entries {
		if cur.Key() == k {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}

	return true
}

// Contains checks whether an equal entry is present.
func (s *Set) Contains(e Entry) bool {
	_, ok := s.keys[e.Key()]
	return ok
}

// Len returns the number of entries.
func (s *Set) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the entries, in insertion order.
func (s *Set) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Clone returns an independent copy of the set.
func (s *Set) Clone() *Set {
	c := &Set{
		entries: make([]Entry, len(s.entries)),
		keys:    make(map[string]struct{}, len(s.keys)),
	}
	copy(c.entries, s.entries)
	for k := range s.keys {
		c.keys[k] = struct{}{}
	}
	return c
}

// Clear removes all entries.
func (s *Set) Clear() {
	s.entries = nil
	s.keys = nil
}
