package batch

import (
	"fmt"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"nmtdata/corpus"
	"nmtdata/fields"
)

// Batch is a group of records processed jointly. Its effective sort key for
// bucketing is the source length of its records; nothing about the grouping
// is persisted.
type Batch struct {
	Records []*corpus.Record
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	return len(b.Records)
}

// MaxSrcLen returns the longest source sequence in the batch, which is the
// padded length every record pays for.
func (b *Batch) MaxSrcLen() int {
	max := 0
	for _, r := range b.Records {
		if l := r.SrcLen(); l > max {
			max = l
		}
	}
	return max
}

// SortWithinBatch orders records by descending source length. Packed-sequence
// consumers require this; it minimizes padding without reordering anything
// across batches.
func (b *Batch) SortWithinBatch() {
	sort.SliceStable(b.Records, func(i, j int) bool {
		return b.Records[i].SrcLen() > b.Records[j].SrcLen()
	})
}

// Columns gathers the named field's sequence from every record, in batch
// order. Records missing the field contribute an empty sequence.
func (b *Batch) Columns(name string) [][]string {
	out := make([][]string, len(b.Records))
	for i, r := range b.Records {
		out[i] = r.Tokens[name]
	}
	return out
}

// Stack numericalizes a side's primary channel and its feature channels into
// nested index slices. With no features the result is the [seq][batch]
// primary matrix and stacked is nil; with k features stacked is
// [seq][batch][1+k] with the primary at position 0 and feature j-1 at
// position j, features in ascending collector order. The side identifier is
// validated first.
func Stack(b *Batch, side string, set *fields.Set) (primary [][]int32, stacked [][][]int32, err error) {
	if err := corpus.CheckSide(side); err != nil {
		return nil, nil, err
	}
	f := set.Get(side)
	if f == nil {
		return nil, nil, fmt.Errorf("no field registered for side %q", side)
	}
	padded, _ := f.Pad(b.Columns(side))
	primary, err = f.Numericalize(padded)
	if err != nil {
		return nil, nil, err
	}

	featNames := fields.Features(set, side)
	if len(featNames) == 0 {
		return primary, nil, nil
	}

	channels := [][][]int32{primary}
	for _, name := range featNames {
		ff := set.Get(name)
		fpadded, _ := ff.Pad(b.Columns(name))
		mat, err := ff.Numericalize(fpadded)
		if err != nil {
			return nil, nil, err
		}
		if len(mat) != len(primary) {
			return nil, nil, fmt.Errorf("feature %s padded to %d steps, primary to %d",
				name, len(mat), len(primary))
		}
		channels = append(channels, mat)
	}

	seqLen := len(primary)
	batchSize := 0
	if seqLen > 0 {
		batchSize = len(primary[0])
	}
	stacked = make([][][]int32, seqLen)
	for t := 0; t < seqLen; t++ {
		stacked[t] = make([][]int32, batchSize)
		for i := 0; i < batchSize; i++ {
			row := make([]int32, len(channels))
			for c, ch := range channels {
				row[c] = ch[t][i]
			}
			stacked[t][i] = row
		}
	}
	return primary, stacked, nil
}

// MakeFeatures composes a side's per-step model input as one tensor. With
// features present the shape is (seq, batch, 1+numFeatures); without, the
// primary (seq, batch) matrix is returned unchanged, no axis added.
func MakeFeatures(b *Batch, side string, set *fields.Set) (*tensors.Tensor, error) {
	primary, stacked, err := Stack(b, side, set)
	if err != nil {
		return nil, err
	}
	if stacked == nil {
		return tensors.FromAnyValue(primary), nil
	}
	return tensors.FromAnyValue(stacked), nil
}
