// Package exploration expands a parameter space into the ordered sequence of
// run assignments. It is pure: no trajectory or storage access.
package exploration

import "fmt"

// Space maps parameter names to ordered candidate values. Go maps do not
// preserve insertion order, so Space is an explicit ordered structure; run
// order is defined by the order names were added and by each candidate
// list's own order.
type Space struct {
	names      []string
	candidates map[string][]any
}

// NewSpace creates an empty space.
func NewSpace() *Space {
	return &Space{candidates: make(map[string][]any)}
}

// Add appends a parameter with its candidate values. Adding a name twice
// replaces its candidates but keeps its original position. Returns the space
// for chaining.
func (s *Space) Add(name string, values ...any) *Space {
	if _, ok := s.candidates[name]; !ok {
		s.names = append(s.names, name)
	}
	s.candidates[name] = append([]any(nil), values...)
	return s
}

// Names returns the parameter names in insertion order.
func (s *Space) Names() []string {
	return append([]string(nil), s.names...)
}

// Candidates returns the candidate values for one parameter.
func (s *Space) Candidates(name string) ([]any, error) {
	vs, ok := s.candidates[name]
	if !ok {
		return nil, fmt.Errorf("space has no parameter %q", name)
	}
	return append([]any(nil), vs...), nil
}

// Count returns the number of assignments the space expands to: the product
// of the candidate counts. An empty space counts 1 (the empty assignment);
// any empty candidate list makes the whole product 0.
func (s *Space) Count() int {
	n := 1
	for _, name := range s.names {
		n *= len(s.candidates[name])
	}
	return n
}

// At returns the i-th assignment of the cartesian product without
// materializing the rest. The last-added parameter varies fastest (odometer
// order), so i maps to candidate indices exactly like a mixed-radix counter.
func (s *Space) At(i int) (map[string]any, error) {
	total := s.Count()
	if i < 0 || i >= total {
		return nil, fmt.Errorf("assignment index %d out of range [0,%d)", i, total)
	}
	out := make(map[string]any, len(s.names))
	rem := i
	for k := len(s.names) - 1; k >= 0; k-- {
		name := s.names[k]
		vs := s.candidates[name]
		out[name] = vs[rem%len(vs)]
		rem /= len(vs)
	}
	return out, nil
}

// CartesianProduct expands the space into every assignment, in deterministic
// odometer order: names iterate in the order they were added, the last name
// varying fastest. An empty space yields exactly one empty assignment; a
// parameter with no candidates yields zero assignments.
func CartesianProduct(s *Space) []map[string]any {
	total := s.Count()
	if total == 0 {
		return nil
	}
	out := make([]map[string]any, 0, total)
	for i := 0; i < total; i++ {
		a, _ := s.At(i)
		out = append(out, a)
	}
	return out
}
