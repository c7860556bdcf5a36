package corpus

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// LengthStats summarizes the distribution of source lengths over a record
// set. It backs the corpus report printed when building vocabularies; long
// tails here usually mean the truncation setting needs a second look.
type LengthStats struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    int
	Max    int
	Median float64
	P95    float64
}

// SourceLengthStats computes length statistics over records. Zero value for
// an empty input.
func SourceLengthStats(records []*Record) LengthStats {
	if len(records) == 0 {
		return LengthStats{}
	}
	lengths := make([]float64, len(records))
	for i, r := range records {
		lengths[i] = float64(r.SrcLen())
	}
	sort.Float64s(lengths)

	return LengthStats{
		Count:  len(records),
		Mean:   stat.Mean(lengths, nil),
		StdDev: stat.StdDev(lengths, nil),
		Min:    int(lengths[0]),
		Max:    int(lengths[len(lengths)-1]),
		Median: stat.Quantile(0.5, stat.Empirical, lengths, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, lengths, nil),
	}
}
