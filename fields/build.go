package fields

import (
	"fmt"

	"nmtdata/corpus"
	"nmtdata/vocab"
)

// BuildConfig carries the per-side vocabulary bounds for BuildVocabs. A zero
// size means unbounded; a min frequency below one is treated as one.
type BuildConfig struct {
	// ShareVocab merges the src1 and tgt1 tables into one shared table.
	ShareVocab bool

	SrcVocabSize    int
	SrcWordsMinFreq int
	TgtVocabSize    int
	TgtWordsMinFreq int
}

// BuildVocabs streams the given shards, accumulates a frequency counter per
// vocabulary field, and attaches a bounded symbol table to every applicable
// field in the set. Fields are mutated in place; nothing else is returned.
//
// Counting is deterministic: counters preserve first-seen order, and shards
// are processed in the order given, so two builds over identical input
// produce identical tables. Each shard is accumulated into fresh counters
// that are merged into the running totals only after the whole shard decoded;
// a failed shard therefore contributes nothing.
func BuildVocabs(shardPaths []string, set *Set, modality string, cfg BuildConfig) error {
	counters := make(map[string]*vocab.Counter)
	for _, name := range set.Names() {
		if set.Get(name).UseVocab {
			counters[name] = vocab.NewCounter()
		}
	}

	for _, path := range shardPaths {
		shard, err := corpus.ReadShard(path)
		if err != nil {
			return fmt.Errorf("building vocab: %w", err)
		}
		partial := make(map[string]*vocab.Counter)
		for name := range counters {
			partial[name] = vocab.NewCounter()
		}
		for _, rec := range shard {
			countRecord(rec, set, partial)
		}
		for name, c := range counters {
			c.Merge(partial[name])
		}
	}

	build := func(name string, maxSize, minFreq int) {
		f := set.Get(name)
		f.Vocab = vocab.New(counters[name], f.Specials(), maxSize, minFreq)
	}
	buildSide := func(primary string, maxSize, minFreq int) {
		build(primary, maxSize, minFreq)
		for _, feat := range Features(set, primary) {
			build(feat, 0, 1)
		}
		if char := primary + "_char"; set.Has(char) {
			build(char, 0, 1)
		}
	}

	text := modality == corpus.ModalityText

	buildSide(corpus.SideTgt1, cfg.TgtVocabSize, cfg.TgtWordsMinFreq)
	if text {
		buildSide(corpus.SideSrc1, cfg.SrcVocabSize, cfg.SrcWordsMinFreq)
	}
	if set.Has(corpus.SideSrc2) {
		buildSide(corpus.SideSrc2, cfg.SrcVocabSize, cfg.SrcWordsMinFreq)
	}
	if set.Has(corpus.SideTgt2) {
		buildSide(corpus.SideTgt2, cfg.TgtVocabSize, cfg.TgtWordsMinFreq)
	}

	if cfg.ShareVocab && text {
		// Either side unbounded collapses the combined cap to unbounded.
		combined := 0
		if cfg.SrcVocabSize > 0 && cfg.TgtVocabSize > 0 {
			combined = cfg.SrcVocabSize + cfg.TgtVocabSize
		}
		src, tgt := set.Get(corpus.SideSrc1), set.Get(corpus.SideTgt1)
		merged := vocab.Merge([]*vocab.Vocab{src.Vocab, tgt.Vocab}, combined)
		src.Vocab = merged
		tgt.Vocab = merged
	}
	return nil
}

// countRecord adds one record's tokens to the per-field counters. Character
// sub-channels are flattened to a single token list first; fields without a
// counter (metadata channels) are skipped; fields absent from the record
// contribute nothing.
func countRecord(rec *corpus.Record, set *Set, counters map[string]*vocab.Counter) {
	for _, name := range set.Names() {
		c, ok := counters[name]
		if !ok {
			continue
		}
		f := set.Get(name)
		if f.Char {
			nested, ok := rec.Chars[name]
			if !ok {
				continue
			}
			for _, word := range nested {
				c.Add(word)
			}
			continue
		}
		tokens, ok := rec.Tokens[name]
		if !ok {
			continue
		}
		c.Add(tokens)
	}
}
