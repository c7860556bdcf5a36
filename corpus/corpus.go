package corpus

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Sides of a parallel example. src1/tgt1 carry the primary supervision,
// src2/tgt2 the secondary (e.g. multi-task) pair.
const (
	SideSrc1 = "src1"
	SideSrc2 = "src2"
	SideTgt1 = "tgt1"
	SideTgt2 = "tgt2"
)

// Modality tags. The modality decides which fields exist: only text corpora
// carry a source-side vocabulary.
const (
	ModalityText  = "text"
	ModalityImage = "image"
	ModalityAudio = "audio"
)

// FeatSep separates a word from its inline per-token features in raw corpus
// text, e.g. "runs￨VBZ￨B-VP".
const FeatSep = "￨"

// CheckSide validates a side identifier.
func CheckSide(side string) error {
	switch side {
	case SideSrc1, SideSrc2, SideTgt1, SideTgt2:
		return nil
	}
	return fmt.Errorf("invalid side %q: must be one of %s, %s, %s, %s",
		side, SideSrc1, SideSrc2, SideTgt1, SideTgt2)
}

// Record is one example: a group of aligned token sequences keyed by field
// name. Tokens holds flat sequences (primary words and feature channels);
// Chars holds nested per-word character sequences for the source-side
// character sub-channels. Every feature sequence has the same length as its
// side's primary sequence, aligned by position.
type Record struct {
	Tokens map[string][]string
	Chars  map[string][][]string

	// Index is the example's position in its corpus file.
	Index int
}

// NewRecord returns an empty record with allocated maps.
func NewRecord(index int) *Record {
	return &Record{
		Tokens: make(map[string][]string),
		Chars:  make(map[string][][]string),
		Index:  index,
	}
}

// SrcLen is the batching sort key: the primary source length, falling back to
// the primary target for single-sequence corpora.
func (r *Record) SrcLen() int {
	if s, ok := r.Tokens[SideSrc1]; ok {
		return len(s)
	}
	return len(r.Tokens[SideTgt1])
}

// TgtLen is the primary target length.
func (r *Record) TgtLen() int {
	return len(r.Tokens[SideTgt1])
}

// Join folds the fields of other into r, so that independently read sides of
// the same example become one record. Field names must not collide.
func (r *Record) Join(other *Record) error {
	for k, v := range other.Tokens {
		if _, ok := r.Tokens[k]; ok {
			return fmt.Errorf("joining records: duplicate field %q", k)
		}
		r.Tokens[k] = v
	}
	for k, v := range other.Chars {
		if _, ok := r.Chars[k]; ok {
			return fmt.Errorf("joining records: duplicate char field %q", k)
		}
		r.Chars[k] = v
	}
	return nil
}

// atomicToken matches tokens that stay whole in the character channel rather
// than being split into runes.
var atomicToken = regexp.MustCompile(`^<[\s\S]*>$`)

// ExtractFeatures splits ￨-delimited tokens into the word sequence, the
// per-token feature channels, and the per-word character channel. All tokens
// must carry the same number of features; tokens with an empty word part are
// dropped. nFeats is -1 for an empty input. "N/A" and "<...>"-shaped words
// are kept atomic in the character channel.
func ExtractFeatures(tokens []string) (words []string, feats [][]string, nFeats int, chars [][]string, err error) {
	if len(tokens) == 0 {
		return nil, nil, -1, nil, nil
	}

	var split [][]string
	for _, tok := range tokens {
		parts := strings.Split(tok, FeatSep)
		if parts[0] == "" {
			continue
		}
		split = append(split, parts)
	}
	if len(split) == 0 {
		return nil, nil, -1, nil, nil
	}

	nFeats = len(split[0]) - 1
	feats = make([][]string, nFeats)
	for _, parts := range split {
		if len(parts) != nFeats+1 {
			return nil, nil, 0, nil, fmt.Errorf(
				"inconsistent feature count: token %q has %d features, expected %d",
				strings.Join(parts, FeatSep), len(parts)-1, nFeats)
		}
		words = append(words, parts[0])
		for j := 0; j < nFeats; j++ {
			feats[j] = append(feats[j], parts[j+1])
		}
	}

	chars = make([][]string, len(words))
	for i, w := range words {
		w = strings.TrimSpace(w)
		if w == "N/A" || atomicToken.MatchString(w) {
			chars[i] = []string{w}
			continue
		}
		for _, r := range w {
			chars[i] = append(chars[i], string(r))
		}
	}
	return words, feats, nFeats, chars, nil
}

// parseLine normalizes and tokenizes one raw corpus line. NFC normalization
// keeps symbol identity independent of how the corpus file encoded combining
// characters.
func parseLine(line string, truncate int) []string {
	tokens := strings.Fields(norm.NFC.String(line))
	if truncate > 0 && len(tokens) > truncate {
		tokens = tokens[:truncate]
	}
	return tokens
}

// ReadTextFile reads one side of a parallel text corpus into records. Each
// line becomes one record carrying the side's word sequence, its numbered
// feature channels "<side>_feat_<j>", and for source sides the character
// sub-channel "<side>_char". truncate caps tokens per line (0 = unlimited).
// Every line must carry the same feature count as the first.
func ReadTextFile(path, side string, truncate int) ([]*Record, error) {
	if err := CheckSide(side); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus file: %w", err)
	}
	defer f.Close()

	var records []*Record
	wantFeats := -1
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for i := 0; sc.Scan(); i++ {
		words, feats, nFeats, chars, err := ExtractFeatures(parseLine(sc.Text(), truncate))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
		if wantFeats == -1 {
			wantFeats = nFeats
		} else if nFeats != wantFeats {
			return nil, fmt.Errorf("%s line %d: has %d features, expected %d",
				path, i+1, nFeats, wantFeats)
		}

		rec := NewRecord(i)
		rec.Tokens[side] = words
		for j, f := range feats {
			rec.Tokens[fmt.Sprintf("%s_feat_%d", side, j)] = f
		}
		switch side {
		case SideSrc1, SideSrc2:
			rec.Chars[side+"_char"] = chars
		case SideTgt1:
			// The planning channel mirrors the target tokens; it is decoded
			// without a vocabulary and never counted.
			planning := make([]string, len(words))
			copy(planning, words)
			rec.Tokens["tgt1_planning"] = planning
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read corpus file %s: %w", path, err)
	}
	return records, nil
}

// NumFeatures peeks the first line of a corpus file and reports its feature
// count. All lines must agree, so one line suffices.
func NumFeatures(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open corpus file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return 0, fmt.Errorf("read corpus file %s: %w", path, err)
		}
		return 0, fmt.Errorf("corpus file %s is empty", path)
	}
	_, _, nFeats, _, err := ExtractFeatures(parseLine(sc.Text(), 0))
	if err != nil {
		return 0, fmt.Errorf("%s line 1: %w", path, err)
	}
	if nFeats < 0 {
		nFeats = 0
	}
	return nFeats, nil
}

// JoinSides zips per-side record slices of equal length into joined examples.
func JoinSides(sides ...[]*Record) ([]*Record, error) {
	if len(sides) == 0 {
		return nil, nil
	}
	n := len(sides[0])
	for _, s := range sides[1:] {
		if len(s) != n {
			return nil, fmt.Errorf("parallel corpora must have the same number of lines: %d != %d",
				len(s), n)
		}
	}
	out := make([]*Record, n)
	for i := 0; i < n; i++ {
		rec := NewRecord(i)
		for _, s := range sides {
			if err := rec.Join(s[i]); err != nil {
				return nil, err
			}
		}
		out[i] = rec
	}
	return out, nil
}
