package vocab

import "sort"

// Reserved special symbols. Every table built anywhere in the process lays
// out its applicable specials in this exact order before any corpus symbol,
// which keeps special indices stable across independently built tables and
// makes merging well defined.
const (
	UnkWord = "<unk>"
	PadWord = "<blank>"
	BosWord = "<s>"
	EosWord = "</s>"
)

// Specials is the fixed process-wide special ordering consulted by every
// build and merge. It is a function rather than a package variable so callers
// cannot reorder it.
func Specials() []string {
	return []string{UnkWord, PadWord, BosWord, EosWord}
}

// Vocab is an ordered symbol<->index mapping with a reserved-specials prefix.
// Indices 0..len(specials)-1 are the specials in their fixed order; the rest
// are corpus symbols by descending frequency, ties broken by first-seen
// order. The originating counter is retained so tables built over disjoint
// shards can later be merged with exact counts.
type Vocab struct {
	itos  []string
	stoi  map[string]int
	freqs *Counter

	numSpecials int
}

// New builds a table from counter. specials are deduplicated and placed
// first, in the given order, skipping empty entries; they are never subject
// to maxSize or minFreq. Remaining symbols are admitted in descending
// frequency (ties by first-seen order), dropping those with frequency below
// minFreq (floored at 1), and at most maxSize of them when maxSize > 0
// (0 means unbounded).
func New(counter *Counter, specials []string, maxSize, minFreq int) *Vocab {
	if minFreq < 1 {
		minFreq = 1
	}
	v := &Vocab{
		stoi:  make(map[string]int),
		freqs: counter,
	}
	for _, s := range specials {
		if s == "" {
			continue
		}
		if _, ok := v.stoi[s]; ok {
			continue
		}
		v.stoi[s] = len(v.itos)
		v.itos = append(v.itos, s)
	}
	v.numSpecials = len(v.itos)

	// Stable sort over first-seen order gives the deterministic tie-break.
	symbols := make([]string, len(counter.Symbols()))
	copy(symbols, counter.Symbols())
	sort.SliceStable(symbols, func(i, j int) bool {
		return counter.Count(symbols[i]) > counter.Count(symbols[j])
	})

	for _, s := range symbols {
		if maxSize > 0 && len(v.itos)-v.numSpecials >= maxSize {
			break
		}
		if counter.Count(s) < minFreq {
			continue
		}
		if _, ok := v.stoi[s]; ok {
			continue
		}
		v.stoi[s] = len(v.itos)
		v.itos = append(v.itos, s)
	}
	return v
}

// FromSymbols reconstructs a table from an ordered symbol list, as produced
// by Symbols on a previously built table. Frequencies are not recoverable
// from the serialized form, so the attached counter is empty; the first
// numSpecials entries are taken to be the reserved prefix.
func FromSymbols(symbols []string, numSpecials int) *Vocab {
	v := &Vocab{
		itos:        make([]string, len(symbols)),
		stoi:        make(map[string]int, len(symbols)),
		freqs:       NewCounter(),
		numSpecials: numSpecials,
	}
	copy(v.itos, symbols)
	for i, s := range symbols {
		v.stoi[s] = i
	}
	return v
}

// Len returns the table size including specials.
func (v *Vocab) Len() int {
	return len(v.itos)
}

// NumSpecials returns the length of the reserved prefix.
func (v *Vocab) NumSpecials() int {
	return v.numSpecials
}

// Index maps a symbol to its index, falling back to the unknown symbol's
// index when absent. The second result reports whether the symbol itself was
// present.
func (v *Vocab) Index(s string) (int, bool) {
	if i, ok := v.stoi[s]; ok {
		return i, true
	}
	return v.stoi[UnkWord], false
}

// Symbol returns the symbol at index i, or the empty string when out of
// range.
func (v *Vocab) Symbol(i int) string {
	if i < 0 || i >= len(v.itos) {
		return ""
	}
	return v.itos[i]
}

// Symbols returns the full ordered symbol list (specials first). The slice
// is owned by the table and must not be modified.
func (v *Vocab) Symbols() []string {
	return v.itos
}

// Freq returns the accumulated corpus frequency of s at build time. Zero for
// specials, unseen symbols, and tables reloaded from disk.
func (v *Vocab) Freq(s string) int {
	return v.freqs.Count(s)
}

// Merge combines tables built over disjoint data into one. Underlying
// frequencies are summed elementwise (a symbol present in several tables gets
// the sum of its counts), then a single table is built over the combined
// counter with the full reserved-specials prefix, capped at maxSize
// non-special symbols (0 = unbounded). The result's symbol set and counts do
// not depend on argument order; the tie-break ordering inside an
// equal-frequency group follows first-seen order across the inputs and does.
func Merge(vocabs []*Vocab, maxSize int) *Vocab {
	merged := NewCounter()
	for _, v := range vocabs {
		merged.Merge(v.freqs)
	}
	return New(merged, Specials(), maxSize, 1)
}
