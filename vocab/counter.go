package vocab

// Counter accumulates symbol frequencies while remembering the order in which
// symbols were first seen. The order is what makes vocabulary construction
// deterministic: symbols with equal counts are ranked by first appearance, so
// building twice over the same input yields byte-identical tables regardless
// of map iteration order.
type Counter struct {
	counts map[string]int
	order  []string
}

// NewCounter returns an empty frequency counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Inc adds n occurrences of symbol s.
func (c *Counter) Inc(s string, n int) {
	if _, ok := c.counts[s]; !ok {
		c.order = append(c.order, s)
	}
	c.counts[s] += n
}

// Add counts every token in the sequence once.
func (c *Counter) Add(tokens []string) {
	for _, t := range tokens {
		c.Inc(t, 1)
	}
}

// Count returns the accumulated frequency of s, zero if unseen.
func (c *Counter) Count(s string) int {
	return c.counts[s]
}

// Len returns the number of distinct symbols seen.
func (c *Counter) Len() int {
	return len(c.order)
}

// Symbols returns the distinct symbols in first-seen order. The returned
// slice is owned by the counter and must not be modified.
func (c *Counter) Symbols() []string {
	return c.order
}

// Merge folds other into c, summing counts elementwise. Symbols new to c keep
// their first-seen position from other, appended after c's existing symbols.
// Merging is associative and commutative with respect to the resulting
// counts; only the first-seen ordering depends on merge order.
func (c *Counter) Merge(other *Counter) {
	for _, s := range other.order {
		c.Inc(s, other.counts[s])
	}
}
