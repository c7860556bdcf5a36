package fields

import (
	"fmt"

	"nmtdata/corpus"
	"nmtdata/vocab"
)

// maxFeatures bounds the probe for numbered feature fields. Feature indices
// must be contiguous from 0; probing stops at the first missing index, so a
// gap terminates collection silently.
const maxFeatures = 64

// Field describes one channel of a record: its name, which special tokens
// apply to it, and, once built, its attached symbol table. Fields are created
// once per modality and feature-count combination; the table is attached by
// BuildVocabs or LoadFieldSet and the field is read-only from then on.
type Field struct {
	Name string

	// Special tokens; empty means not applicable to this channel.
	UnkToken  string
	PadToken  string
	InitToken string
	EosToken  string

	// UseVocab is false for alignment/copy metadata channels, which are
	// decoded as raw numbers and never counted.
	UseVocab bool

	// Char marks the nested per-word character sub-channel.
	Char bool

	Vocab *vocab.Vocab
}

// Specials returns the field's applicable special tokens in the fixed global
// order (unk, pad, bos, eos). Every table build consults this list, which is
// what keeps special indices identical across independently built tables.
func (f *Field) Specials() []string {
	var out []string
	for _, s := range []string{f.UnkToken, f.PadToken, f.InitToken, f.EosToken} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Pad pads a minibatch of sequences to the length of the longest one,
// prepending InitToken and appending EosToken when configured. Returns the
// padded sequences and the unpadded length of each (specials included).
func (f *Field) Pad(batch [][]string) (padded [][]string, lengths []int) {
	maxLen := 0
	for _, seq := range batch {
		if len(seq) > maxLen {
			maxLen = len(seq)
		}
	}
	extra := 0
	if f.InitToken != "" {
		extra++
	}
	if f.EosToken != "" {
		extra++
	}
	padded = make([][]string, len(batch))
	lengths = make([]int, len(batch))
	for i, seq := range batch {
		row := make([]string, 0, maxLen+extra)
		if f.InitToken != "" {
			row = append(row, f.InitToken)
		}
		row = append(row, seq...)
		if f.EosToken != "" {
			row = append(row, f.EosToken)
		}
		lengths[i] = len(row)
		for len(row) < maxLen+extra {
			row = append(row, f.PadToken)
		}
		padded[i] = row
	}
	return padded, lengths
}

// Numericalize maps a padded minibatch to a time-major [seq][batch] index
// matrix using the attached table, with out-of-vocabulary tokens mapped to
// the unknown index.
func (f *Field) Numericalize(padded [][]string) ([][]int32, error) {
	if f.Vocab == nil {
		return nil, fmt.Errorf("field %s has no vocabulary attached", f.Name)
	}
	if f.Char {
		return nil, fmt.Errorf("field %s: character channels are not numericalized batch-wise", f.Name)
	}
	if len(padded) == 0 {
		return nil, nil
	}
	seqLen := len(padded[0])
	out := make([][]int32, seqLen)
	for t := range out {
		out[t] = make([]int32, len(padded))
	}
	for b, row := range padded {
		if len(row) != seqLen {
			return nil, fmt.Errorf("field %s: ragged padded batch (%d != %d)", f.Name, len(row), seqLen)
		}
		for t, tok := range row {
			idx, _ := f.Vocab.Index(tok)
			out[t][b] = int32(idx)
		}
	}
	return out, nil
}

// Set is the ordered field registry for one dataset. Order is the processing
// order during vocabulary building and reporting.
type Set struct {
	names  []string
	byName map[string]*Field
}

func newEmptySet() *Set {
	return &Set{byName: make(map[string]*Field)}
}

func (s *Set) add(f *Field) {
	s.names = append(s.names, f.Name)
	s.byName[f.Name] = f
}

// Get returns the named field, or nil when absent.
func (s *Set) Get(name string) *Field {
	return s.byName[name]
}

// Has reports whether the named field exists.
func (s *Set) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Names returns the field names in registry order. The slice is owned by the
// set and must not be modified.
func (s *Set) Names() []string {
	return s.names
}

// NewSet builds the full field registry for a modality and the given feature
// counts. Text corpora carry vocabularies on both sides plus source character
// sub-channels; image and audio corpora only carry target-side and secondary
// supervision vocabularies. Copy/alignment metadata channels (src_map,
// alignment, ptrs, indices, tgt1_planning) are registered without
// vocabularies so they pass through building untouched.
func NewSet(modality string, nSrcFeats, nTgtFeats int) (*Set, error) {
	switch modality {
	case corpus.ModalityText, corpus.ModalityImage, corpus.ModalityAudio:
	default:
		return nil, fmt.Errorf("unknown modality %q", modality)
	}
	if nSrcFeats < 0 || nSrcFeats > maxFeatures || nTgtFeats < 0 || nTgtFeats > maxFeatures {
		return nil, fmt.Errorf("feature counts must be in [0, %d], got src=%d tgt=%d",
			maxFeatures, nSrcFeats, nTgtFeats)
	}

	s := newEmptySet()
	text := modality == corpus.ModalityText

	if text {
		// Encoder-side channels carry no bos/eos; a side's features must pad
		// to the same length as its primary so the channels stay aligned.
		s.add(&Field{Name: corpus.SideSrc1, UseVocab: true,
			UnkToken: vocab.UnkWord, PadToken: vocab.PadWord})
		s.add(&Field{Name: "src1_char", UseVocab: true, Char: true,
			UnkToken: vocab.UnkWord, PadToken: vocab.PadWord})
		for j := 0; j < nSrcFeats; j++ {
			s.add(&Field{Name: fmt.Sprintf("src1_feat_%d", j), UseVocab: true,
				UnkToken: vocab.UnkWord, PadToken: vocab.PadWord})
		}
	} else {
		// Non-text primary source is a raw tensor channel, no symbols.
		s.add(&Field{Name: corpus.SideSrc1})
	}

	s.add(&Field{Name: "tgt1_planning"})
	s.add(&Field{Name: corpus.SideTgt1, UseVocab: true,
		UnkToken: vocab.UnkWord, PadToken: vocab.PadWord,
		InitToken: vocab.BosWord, EosToken: vocab.EosWord})
	for j := 0; j < nTgtFeats; j++ {
		s.add(&Field{Name: fmt.Sprintf("tgt1_feat_%d", j), UseVocab: true,
			UnkToken: vocab.UnkWord, PadToken: vocab.PadWord,
			InitToken: vocab.BosWord, EosToken: vocab.EosWord})
	}

	s.add(&Field{Name: corpus.SideSrc2, UseVocab: true,
		UnkToken: vocab.UnkWord, PadToken: vocab.PadWord})
	if text {
		s.add(&Field{Name: "src2_char", UseVocab: true, Char: true,
			UnkToken: vocab.UnkWord, PadToken: vocab.PadWord})
		for j := 0; j < nSrcFeats; j++ {
			s.add(&Field{Name: fmt.Sprintf("src2_feat_%d", j), UseVocab: true,
				UnkToken: vocab.UnkWord, PadToken: vocab.PadWord})
		}
	}
	s.add(&Field{Name: corpus.SideTgt2, UseVocab: true,
		UnkToken: vocab.UnkWord, PadToken: vocab.PadWord,
		InitToken: vocab.BosWord, EosToken: vocab.EosWord})

	s.add(&Field{Name: "src_map"})
	s.add(&Field{Name: "alignment"})
	s.add(&Field{Name: "ptrs"})
	s.add(&Field{Name: "indices"})
	return s, nil
}

// Features returns the ordered names of a side's feature fields by probing
// "<side>_feat_0", "<side>_feat_1", ... and stopping at the first missing
// index. A gap in the numbering ends collection there; later indices are
// ignored by design.
func Features(s *Set, side string) []string {
	var out []string
	for j := 0; j < maxFeatures; j++ {
		name := fmt.Sprintf("%s_feat_%d", side, j)
		if !s.Has(name) {
			break
		}
		out = append(out, name)
	}
	return out
}

// FeatureVocabs returns the attached symbol tables of a side's feature
// fields, in the same order as Features.
func FeatureVocabs(s *Set, side string) []*vocab.Vocab {
	names := Features(s, side)
	out := make([]*vocab.Vocab, len(names))
	for i, name := range names {
		out[i] = s.Get(name).Vocab
	}
	return out
}

// NumFeatures reports how many feature fields a side has. The side is
// validated first; an unknown side is an error, not zero.
func NumFeatures(s *Set, side string) (int, error) {
	if err := corpus.CheckSide(side); err != nil {
		return 0, err
	}
	return len(Features(s, side)), nil
}
