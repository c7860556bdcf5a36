package fields

import (
	"encoding/gob"
	"fmt"
	"os"
	"strings"

	"nmtdata/corpus"
	"nmtdata/vocab"
)

// savedVocab is the serialized form of one field's symbol table: just the
// ordered symbol list and the length of its reserved prefix. Frequency
// counters are build-time state and are deliberately dropped; a reloaded
// table answers lookups but reports zero counts.
type savedVocab struct {
	Name        string
	Symbols     []string
	NumSpecials int
}

// SaveVocabs writes the set's built symbol tables to path as a gob artifact.
// Fields without a table (metadata channels, or a set that was never built)
// are omitted.
func SaveVocabs(path string, set *Set) error {
	var saved []savedVocab
	for _, name := range set.Names() {
		f := set.Get(name)
		if f.Vocab == nil {
			continue
		}
		saved = append(saved, savedVocab{
			Name:        name,
			Symbols:     f.Vocab.Symbols(),
			NumSpecials: f.Vocab.NumSpecials(),
		})
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vocab artifact %s: %w", path, err)
	}
	defer out.Close()

	if err := gob.NewEncoder(out).Encode(saved); err != nil {
		return fmt.Errorf("encode vocab artifact %s: %w", path, err)
	}
	return nil
}

// LoadFieldSet reconstructs a field registry from a saved vocab artifact.
// The feature counts are inferred from the saved field names, the registry is
// rebuilt for the given modality, and each saved table is reattached with
// empty counts.
func LoadFieldSet(path, modality string) (*Set, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab artifact %s: %w", path, err)
	}
	defer in.Close()

	var saved []savedVocab
	if err := gob.NewDecoder(in).Decode(&saved); err != nil {
		return nil, fmt.Errorf("decode vocab artifact %s: %w", path, err)
	}

	nSrc, nTgt := 0, 0
	for _, sv := range saved {
		if strings.HasPrefix(sv.Name, corpus.SideSrc1+"_feat_") {
			nSrc++
		}
		if strings.HasPrefix(sv.Name, corpus.SideTgt1+"_feat_") {
			nTgt++
		}
	}

	set, err := NewSet(modality, nSrc, nTgt)
	if err != nil {
		return nil, err
	}
	for _, sv := range saved {
		f := set.Get(sv.Name)
		if f == nil {
			return nil, fmt.Errorf("vocab artifact %s names unknown field %q", path, sv.Name)
		}
		f.Vocab = vocab.FromSymbols(sv.Symbols, sv.NumSpecials)
	}
	return set, nil
}
