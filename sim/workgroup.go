package sim

// ResourcePair asks for Count resources playing Type.
type ResourcePair struct {
	Type  *ResourceType
	Count int
}

// Pair is shorthand for ResourcePair{Type: rt, Count: n}.
func Pair(rt *ResourceType, n int) ResourcePair {
	return ResourcePair{Type: rt, Count: n}
}

// Condition is a guard evaluated against the requesting instance.
type Condition func(inst *ElementInstance) bool

// WorkGroup is one way to satisfy a resource request: a list of (type, count)
// pairs, an optional eligibility condition, the activity duration and a
// priority (lower value is tried first). Configure it before the model is
// handed to a Simulator; it is read-only afterwards.
type WorkGroup struct {
	pairs     []ResourcePair
	Condition Condition
	Duration  Sampler
	Priority  int
}

// NewWorkGroup creates a work group over the given pairs.
func NewWorkGroup(pairs ...ResourcePair) *WorkGroup {
	wg := &WorkGroup{}
	for _, p := range pairs {
		wg.Add(p.Type, p.Count)
	}
	return wg
}

// Add appends a (type, count) pair. Pairs with a non-positive count are kept
// so the model can report them as configuration errors.
func (wg *WorkGroup) Add(rt *ResourceType, count int) *WorkGroup {
	wg.pairs = append(wg.pairs, ResourcePair{Type: rt, Count: count})
	return wg
}

// WithDuration sets the activity duration sampler.
func (wg *WorkGroup) WithDuration(s Sampler) *WorkGroup {
	wg.Duration = s
	return wg
}

// WithPriority sets the selection priority.
func (wg *WorkGroup) WithPriority(p int) *WorkGroup {
	wg.Priority = p
	return wg
}

// WithCondition sets the eligibility condition.
func (wg *WorkGroup) WithCondition(c Condition) *WorkGroup {
	wg.Condition = c
	return wg
}

// Pairs returns a copy of the (type, count) list.
func (wg *WorkGroup) Pairs() []ResourcePair {
	out := make([]ResourcePair, len(wg.pairs))
	copy(out, wg.pairs)
	return out
}

// ResourceTypes lists the referenced types in pair order, duplicates included.
func (wg *WorkGroup) ResourceTypes() []*ResourceType {
	out := make([]*ResourceType, 0, len(wg.pairs))
	for _, p := range wg.pairs {
		out = append(out, p.Type)
	}
	return out
}

// IsEligible evaluates the condition against the requester.
func (wg *WorkGroup) IsEligible(requester *ElementInstance) bool {
	return wg.Condition == nil || wg.Condition(requester)
}

// FindAssignment searches the available-resource indices for a set of
// resources that satisfies every pair. A group with no pairs is trivially
// satisfied with an empty assignment. The returned resources are not booked;
// the caller seizes them.
func (wg *WorkGroup) FindAssignment(requester *ElementInstance) ([]Assignment, bool) {
	if !wg.IsEligible(requester) {
		return nil, false
	}
	return wg.assign()
}

// assign runs the search without evaluating the condition.
func (wg *WorkGroup) assign() ([]Assignment, bool) {
	if len(wg.pairs) == 0 {
		return []Assignment{}, true
	}
	m := newMatcher(wg.pairs)
	defer m.clear()
	if !m.search(0, 0) {
		return nil, false
	}
	out := make([]Assignment, len(m.solution))
	copy(out, m.solution)
	return out, true
}

// matcher is the state of one branch-and-bound search. Resources picked along
// the current branch are flagged tentative, which hides them from every index
// they appear in until the branch is undone.
type matcher struct {
	pairs    []ResourcePair
	need     []int
	solution []Assignment
}

func newMatcher(pairs []ResourcePair) *matcher {
	m := &matcher{pairs: pairs, need: make([]int, len(pairs))}
	total := 0
	for i, p := range pairs {
		if p.Count > 0 {
			m.need[i] = p.Count
			total += p.Count
		}
	}
	m.solution = make([]Assignment, 0, total)
	return m
}

// search expands pair idx starting at position start of its index.
func (m *matcher) search(idx, start int) bool {
	if idx == len(m.pairs) {
		return true
	}
	if m.need[idx] == 0 {
		return m.search(idx+1, 0)
	}
	if !m.hasSolution(idx, start) {
		return false
	}
	rt := m.pairs[idx].Type
	for pos := start; pos < len(rt.available); pos++ {
		r := rt.available[pos]
		if r.tentative || !r.free() {
			continue
		}
		r.tentative = true
		m.solution = append(m.solution, Assignment{Resource: r, Type: rt})
		m.need[idx]--
		if m.search(idx, pos+1) {
			return true
		}
		m.need[idx]++
		m.solution = m.solution[:len(m.solution)-1]
		r.tentative = false
	}
	return false
}

// hasSolution bounds the search: pair idx must still find need[idx] unclaimed
// resources from start onward, and every later pair from position zero.
func (m *matcher) hasSolution(idx, start int) bool {
	if countFree(m.pairs[idx].Type, start) < m.need[idx] {
		return false
	}
	for j := idx + 1; j < len(m.pairs); j++ {
		if countFree(m.pairs[j].Type, 0) < m.need[j] {
			return false
		}
	}
	return true
}

func countFree(rt *ResourceType, start int) int {
	if rt == nil {
		return 0
	}
	n := 0
	for pos := start; pos < len(rt.available); pos++ {
		if r := rt.available[pos]; !r.tentative && r.free() {
			n++
		}
	}
	return n
}

// clear drops the tentative flags left on the winning branch.
func (m *matcher) clear() {
	for _, a := range m.solution {
		a.Resource.tentative = false
	}
}
