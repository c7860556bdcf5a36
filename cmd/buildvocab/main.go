// Command buildvocab constructs the vocabulary artifact for a sharded
// training corpus: it streams every shard, builds one bounded symbol table
// per field (optionally shared between source and target), reports table
// sizes and corpus length statistics, and writes the artifact consumed by
// training. Optionally it renders the target vocabulary's frequency/rank
// curve to a PNG.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"nmtdata/corpus"
	"nmtdata/fields"
	"nmtdata/vocab"
)

var (
	shardPattern = flag.String("shards", "", "glob pattern matching training shard files (required)")
	modality     = flag.String("modality", corpus.ModalityText, "corpus modality: text, image or audio")
	shareVocab   = flag.Bool("share-vocab", false, "merge source and target vocabularies into one shared table")
	srcVocabSize = flag.Int("src-vocab-size", 50000, "maximum source vocabulary size, 0 for unbounded")
	srcMinFreq   = flag.Int("src-words-min-frequency", 1, "minimum source token frequency")
	tgtVocabSize = flag.Int("tgt-vocab-size", 50000, "maximum target vocabulary size, 0 for unbounded")
	tgtMinFreq   = flag.Int("tgt-words-min-frequency", 1, "minimum target token frequency")
	outPath      = flag.String("out", "vocab.gob", "output path for the vocabulary artifact")
	plotPath     = flag.String("plot", "", "optional PNG path for the target frequency/rank plot")
)

func main() {
	flag.Parse()
	if *shardPattern == "" {
		log.Fatal("missing required -shards pattern")
	}

	set, err := corpus.NewShardSet(*shardPattern)
	if err != nil {
		log.Fatalf("locating shards: %v", err)
	}
	log.Printf("found %d shard(s) matching %s", len(set.Paths()), *shardPattern)

	// Peek the first shard for the feature counts and the length report.
	first, err := corpus.ReadShard(set.Paths()[0])
	if err != nil {
		log.Fatalf("reading first shard: %v", err)
	}
	nSrc, nTgt := inferFeatures(first)
	stats := corpus.SourceLengthStats(first)
	log.Printf("first shard: %d examples, src len mean %.1f (sd %.1f, median %.0f, p95 %.0f, max %d)",
		stats.Count, stats.Mean, stats.StdDev, stats.Median, stats.P95, stats.Max)

	fieldSet, err := fields.NewSet(*modality, nSrc, nTgt)
	if err != nil {
		log.Fatalf("building field set: %v", err)
	}

	cfg := fields.BuildConfig{
		ShareVocab:      *shareVocab,
		SrcVocabSize:    *srcVocabSize,
		SrcWordsMinFreq: *srcMinFreq,
		TgtVocabSize:    *tgtVocabSize,
		TgtWordsMinFreq: *tgtMinFreq,
	}
	if err := fields.BuildVocabs(set.Paths(), fieldSet, *modality, cfg); err != nil {
		log.Fatalf("building vocabularies: %v", err)
	}

	report(fieldSet)

	if err := fields.SaveVocabs(*outPath, fieldSet); err != nil {
		log.Fatalf("saving artifact: %v", err)
	}
	log.Printf("wrote vocabulary artifact to %s", *outPath)

	if *plotPath != "" {
		tgt := fieldSet.Get(corpus.SideTgt1).Vocab
		if err := plotFrequencies(tgt, *plotPath); err != nil {
			log.Fatalf("plotting frequencies: %v", err)
		}
		log.Printf("wrote frequency/rank plot to %s", *plotPath)
	}
}

// inferFeatures probes the first record for contiguously numbered feature
// channels on each primary side.
func inferFeatures(records []*corpus.Record) (nSrc, nTgt int) {
	if len(records) == 0 {
		return 0, 0
	}
	probe := func(side string) int {
		n := 0
		for {
			if _, ok := records[0].Tokens[fmt.Sprintf("%s_feat_%d", side, n)]; !ok {
				return n
			}
			n++
		}
	}
	return probe(corpus.SideSrc1), probe(corpus.SideTgt1)
}

// report prints each built table's size, with per-feature sizes broken out
// the way training startup reports them.
func report(set *fields.Set) {
	for _, side := range []string{corpus.SideSrc1, corpus.SideTgt1, corpus.SideSrc2, corpus.SideTgt2} {
		f := set.Get(side)
		if f == nil || f.Vocab == nil {
			continue
		}
		log.Printf(" * %s vocabulary size = %d", side, f.Vocab.Len())
		for j, fv := range fields.FeatureVocabs(set, side) {
			log.Printf(" * %s feature %d size = %d", side, j, fv.Len())
		}
		if char := set.Get(side + "_char"); char != nil && char.Vocab != nil {
			log.Printf(" * %s char size = %d", side, char.Vocab.Len())
		}
	}
}

// plotFrequencies renders the table's frequency/rank curve on log-log axes.
func plotFrequencies(v *vocab.Vocab, path string) error {
	pts := make(plotter.XYs, 0, v.Len())
	rank := 0
	for _, s := range v.Symbols()[v.NumSpecials():] {
		freq := v.Freq(s)
		if freq <= 0 {
			continue
		}
		rank++
		pts = append(pts, plotter.XY{
			X: math.Log10(float64(rank)),
			Y: math.Log10(float64(freq)),
		})
	}
	if len(pts) == 0 {
		return fmt.Errorf("no frequency data to plot")
	}

	p := plot.New()
	p.Title.Text = "Token frequency by rank"
	p.X.Label.Text = "log10 rank"
	p.Y.Label.Text = "log10 frequency"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("building line plot: %w", err)
	}
	p.Add(line)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving plot: %w", err)
	}
	return nil
}
