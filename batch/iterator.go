package batch

import (
	"fmt"
	"math/rand"
	"sort"

	"nmtdata/corpus"
)

// DefaultPoolFactor is how many batches' worth of records the training
// iterator buffers before sorting. One pool is the whole memory cost of
// approximate length-sorting; a bigger factor gets closer to the global-sort
// padding optimum.
const DefaultPoolFactor = 100

// Stream is the record source the iterator consumes. Next returns io.EOF
// when exhausted; any other error ends iteration.
type Stream interface {
	Next() (*corpus.Record, error)
}

// SizeFunc lets batches be bounded by something other than record count,
// typically total padded tokens. Given the record about to be added, the
// count of records already in the open batch including it, and the effective
// size so far, it returns the new effective size; the batch boundary falls
// where the result would exceed the batch size.
type SizeFunc func(rec *corpus.Record, count, soFar int) int

// TokenSizeFunc sizes batches by padded token count: it tracks the longest
// source (+2, bos/eos margin) and target (+1) in the open batch and reports
// count times that maximum, so a batch's effective size is what the padded
// tensors will actually occupy.
func TokenSizeFunc() SizeFunc {
	maxSrc, maxTgt := 0, 0
	return func(rec *corpus.Record, count, soFar int) int {
		if count == 1 {
			maxSrc, maxTgt = 0, 0
		}
		if l := rec.SrcLen() + 2; l > maxSrc {
			maxSrc = l
		}
		if l := rec.TgtLen() + 1; l > maxTgt {
			maxTgt = l
		}
		srcElems := count * maxSrc
		tgtElems := count * maxTgt
		if srcElems > tgtElems {
			return srcElems
		}
		return tgtElems
	}
}

// Config holds the iterator settings.
type Config struct {
	// BatchSize is records per batch, or the SizeFunc budget when SizeFn is
	// set.
	BatchSize int

	// Train selects pooled approximate sorting; false gives strict stream
	// order for evaluation.
	Train bool

	// PoolFactor scales the training pool (BatchSize*PoolFactor records).
	// Zero means DefaultPoolFactor.
	PoolFactor int

	// SizeFn, when set, replaces record-count batching.
	SizeFn SizeFunc

	// Seed fixes the sub-batch shuffle for reproducible epochs. Ignored in
	// evaluation mode.
	Seed int64
}

// Iterator emits minibatches from a record stream.
//
// In evaluation mode batches follow stream order exactly, each one internally
// sorted by descending source length so padding within the batch is minimal.
//
// In training mode the iterator repeatedly draws a pool of up to
// BatchSize*PoolFactor consecutive records, sorts the pool by source length,
// cuts it into consecutive sub-batches, shuffles the sub-batch order, and
// emits them. Length-similarity is preserved inside a pool while
// position-in-epoch randomness is preserved across pools; memory never
// exceeds one pool. Every drawn record lands in exactly one batch.
//
// An Iterator is good for one pass; build a new one over a fresh Stream for
// the next epoch.
type Iterator struct {
	src Stream
	cfg Config
	rng *rand.Rand

	pending []*Batch
	err     error
}

// NewIterator validates cfg and wraps src.
func NewIterator(src Stream, cfg Config) (*Iterator, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.PoolFactor < 0 {
		return nil, fmt.Errorf("pool factor must not be negative, got %d", cfg.PoolFactor)
	}
	if cfg.PoolFactor == 0 {
		cfg.PoolFactor = DefaultPoolFactor
	}
	return &Iterator{
		src: src,
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Next returns the next batch, or io.EOF when the stream is exhausted.
func (it *Iterator) Next() (*Batch, error) {
	for len(it.pending) == 0 {
		if it.err != nil {
			return nil, it.err
		}
		if it.cfg.Train {
			it.fillPool()
		} else {
			it.fillEval()
		}
	}
	b := it.pending[0]
	it.pending = it.pending[1:]
	return b, nil
}

// draw pulls up to n records from the stream, recording the terminal error.
func (it *Iterator) draw(n int) []*corpus.Record {
	var out []*corpus.Record
	for len(out) < n {
		rec, err := it.src.Next()
		if err != nil {
			it.err = err
			break
		}
		out = append(out, rec)
	}
	return out
}

// fillEval queues the next batch in strict stream order.
func (it *Iterator) fillEval() {
	records := it.draw(it.cfg.BatchSize)
	if len(records) == 0 {
		return
	}
	b := &Batch{Records: records}
	b.SortWithinBatch()
	it.pending = append(it.pending, b)
}

// fillPool queues one pool's worth of sub-batches.
func (it *Iterator) fillPool() {
	pool := it.draw(it.cfg.BatchSize * it.cfg.PoolFactor)
	if len(pool) == 0 {
		return
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].SrcLen() < pool[j].SrcLen()
	})

	batches := partition(pool, it.cfg.BatchSize, it.cfg.SizeFn)
	it.rng.Shuffle(len(batches), func(i, j int) {
		batches[i], batches[j] = batches[j], batches[i]
	})
	for _, b := range batches {
		b.SortWithinBatch()
		it.pending = append(it.pending, b)
	}
}

// partition cuts a sorted pool into consecutive sub-batches. With sizeFn nil
// every sub-batch holds batchSize records (the last may be short); otherwise
// the boundary falls where sizeFn's accumulated size would exceed batchSize.
func partition(pool []*corpus.Record, batchSize int, sizeFn SizeFunc) []*Batch {
	var batches []*Batch
	if sizeFn == nil {
		for start := 0; start < len(pool); start += batchSize {
			end := start + batchSize
			if end > len(pool) {
				end = len(pool)
			}
			batches = append(batches, &Batch{Records: pool[start:end:end]})
		}
		return batches
	}

	var open []*corpus.Record
	soFar := 0
	for _, rec := range pool {
		open = append(open, rec)
		soFar = sizeFn(rec, len(open), soFar)
		if soFar == batchSize {
			batches = append(batches, &Batch{Records: open})
			open, soFar = nil, 0
		} else if soFar > batchSize && len(open) > 1 {
			last := open[len(open)-1]
			batches = append(batches, &Batch{Records: open[:len(open)-1:len(open)-1]})
			open = []*corpus.Record{last}
			soFar = sizeFn(last, 1, 0)
		}
	}
	if len(open) > 0 {
		batches = append(batches, &Batch{Records: open})
	}
	return batches
}
