package fields

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"nmtdata/corpus"
)

// writeTestShard builds records from parallel src/tgt token sequences and
// writes them as one shard.
func writeTestShard(t *testing.T, path string, src, tgt [][]string) {
	t.Helper()
	if len(src) != len(tgt) {
		t.Fatalf("writeTestShard: %d src vs %d tgt", len(src), len(tgt))
	}
	records := make([]*corpus.Record, len(src))
	for i := range src {
		r := corpus.NewRecord(i)
		r.Tokens[corpus.SideSrc1] = src[i]
		r.Tokens[corpus.SideTgt1] = tgt[i]
		chars := make([][]string, len(src[i]))
		for j, w := range src[i] {
			for _, c := range w {
				chars[j] = append(chars[j], string(c))
			}
		}
		r.Chars["src1_char"] = chars
		records[i] = r
	}
	if err := corpus.WriteShard(path, records); err != nil {
		t.Fatalf("WriteShard error: %v", err)
	}
}

func TestBuildVocabsText(t *testing.T) {
	tmp := t.TempDir()
	shard := filepath.Join(tmp, "train.0.shard")
	writeTestShard(t, shard,
		[][]string{{"aa", "bb"}, {"aa"}},
		[][]string{{"x", "y"}, {"x"}})

	set, err := NewSet(corpus.ModalityText, 0, 0)
	if err != nil {
		t.Fatalf("NewSet error: %v", err)
	}
	if err := BuildVocabs([]string{shard}, set, corpus.ModalityText, BuildConfig{}); err != nil {
		t.Fatalf("BuildVocabs error: %v", err)
	}

	src := set.Get("src1").Vocab
	if src == nil {
		t.Fatalf("src1 vocabulary not built")
	}
	if got := src.Freq("aa"); got != 2 {
		t.Fatalf("src Freq(aa) = %d, want 2", got)
	}
	// "aa" seen twice outranks "bb".
	if idx, _ := src.Index("aa"); idx != src.NumSpecials() {
		t.Fatalf("aa at index %d, want %d", idx, src.NumSpecials())
	}

	tgt := set.Get("tgt1").Vocab
	if tgt == nil {
		t.Fatalf("tgt1 vocabulary not built")
	}
	if _, ok := tgt.Index("y"); !ok {
		t.Fatalf("tgt table missing y")
	}

	// The char channel is flattened before counting: "aa" contributes two
	// occurrences of "a" per record.
	chars := set.Get("src1_char").Vocab
	if chars == nil {
		t.Fatalf("src1_char vocabulary not built")
	}
	if got := chars.Freq("a"); got != 4 {
		t.Fatalf("char Freq(a) = %d, want 4", got)
	}

	// Metadata channels never get a table.
	for _, name := range []string{"src_map", "alignment", "ptrs", "indices", "tgt1_planning"} {
		if set.Get(name).Vocab != nil {
			t.Fatalf("metadata field %q got a vocabulary", name)
		}
	}
}

func TestBuildVocabsAppliesBounds(t *testing.T) {
	tmp := t.TempDir()
	shard := filepath.Join(tmp, "train.0.shard")
	writeTestShard(t, shard,
		[][]string{{"s1", "s1", "s2", "s3"}},
		[][]string{{"t1", "t1", "t2"}})

	set, err := NewSet(corpus.ModalityText, 0, 0)
	if err != nil {
		t.Fatalf("NewSet error: %v", err)
	}
	cfg := BuildConfig{SrcVocabSize: 1, TgtWordsMinFreq: 2}
	if err := BuildVocabs([]string{shard}, set, corpus.ModalityText, cfg); err != nil {
		t.Fatalf("BuildVocabs error: %v", err)
	}

	src := set.Get("src1").Vocab
	if got, want := src.Len(), src.NumSpecials()+1; got != want {
		t.Fatalf("src Len = %d, want %d", got, want)
	}
	if _, ok := src.Index("s2"); ok {
		t.Fatalf("s2 should be dropped by the size cap")
	}

	tgt := set.Get("tgt1").Vocab
	if _, ok := tgt.Index("t2"); ok {
		t.Fatalf("t2 below min frequency should be excluded")
	}
	if _, ok := tgt.Index("t1"); !ok {
		t.Fatalf("t1 should be present")
	}
}

func TestBuildVocabsFeatureFieldsUnbounded(t *testing.T) {
	tmp := t.TempDir()
	shard := filepath.Join(tmp, "train.0.shard")

	records := []*corpus.Record{corpus.NewRecord(0)}
	records[0].Tokens[corpus.SideTgt1] = []string{"w1", "w2"}
	records[0].Tokens["tgt1_feat_0"] = []string{"F1", "F2"}
	if err := corpus.WriteShard(shard, records); err != nil {
		t.Fatalf("WriteShard error: %v", err)
	}

	set, err := NewSet(corpus.ModalityText, 0, 1)
	if err != nil {
		t.Fatalf("NewSet error: %v", err)
	}
	// Target cap of 1 must not constrain the feature table.
	cfg := BuildConfig{TgtVocabSize: 1}
	if err := BuildVocabs([]string{shard}, set, corpus.ModalityText, cfg); err != nil {
		t.Fatalf("BuildVocabs error: %v", err)
	}

	feat := set.Get("tgt1_feat_0").Vocab
	for _, s := range []string{"F1", "F2"} {
		if _, ok := feat.Index(s); !ok {
			t.Fatalf("feature table missing %q", s)
		}
	}
}

func TestBuildVocabsShareVocab(t *testing.T) {
	tmp := t.TempDir()
	shard := filepath.Join(tmp, "train.0.shard")
	writeTestShard(t, shard,
		[][]string{{"common", "srconly"}},
		[][]string{{"common", "tgtonly"}})

	set, err := NewSet(corpus.ModalityText, 0, 0)
	if err != nil {
		t.Fatalf("NewSet error: %v", err)
	}
	cfg := BuildConfig{ShareVocab: true, SrcVocabSize: 10, TgtVocabSize: 5}
	if err := BuildVocabs([]string{shard}, set, corpus.ModalityText, cfg); err != nil {
		t.Fatalf("BuildVocabs error: %v", err)
	}

	src, tgt := set.Get("src1").Vocab, set.Get("tgt1").Vocab
	if src != tgt {
		t.Fatalf("shared vocab must be the identical table on both fields")
	}
	for _, s := range []string{"common", "srconly", "tgtonly"} {
		if _, ok := src.Index(s); !ok {
			t.Fatalf("shared table missing %q", s)
		}
	}
	if got := src.Freq("common"); got != 2 {
		t.Fatalf("shared Freq(common) = %d, want 2", got)
	}
	if max := 10 + 5 + src.NumSpecials(); src.Len() > max {
		t.Fatalf("shared table size %d exceeds cap %d", src.Len(), max)
	}
}

func TestBuildVocabsDeterministic(t *testing.T) {
	tmp := t.TempDir()
	shard := filepath.Join(tmp, "train.0.shard")
	writeTestShard(t, shard,
		[][]string{{"e", "d", "c", "b", "a"}},
		[][]string{{"v", "w", "x", "y", "z"}})

	build := func() []string {
		set, err := NewSet(corpus.ModalityText, 0, 0)
		if err != nil {
			t.Fatalf("NewSet error: %v", err)
		}
		if err := BuildVocabs([]string{shard}, set, corpus.ModalityText, BuildConfig{}); err != nil {
			t.Fatalf("BuildVocabs error: %v", err)
		}
		return set.Get("src1").Vocab.Symbols()
	}
	first := build()
	for range 5 {
		if got := build(); !reflect.DeepEqual(got, first) {
			t.Fatalf("non-deterministic build: %v vs %v", got, first)
		}
	}
}

func TestBuildVocabsAcrossShards(t *testing.T) {
	tmp := t.TempDir()
	shard0 := filepath.Join(tmp, "train.0.shard")
	shard1 := filepath.Join(tmp, "train.1.shard")
	writeTestShard(t, shard0, [][]string{{"a", "b"}}, [][]string{{"x"}})
	writeTestShard(t, shard1, [][]string{{"a", "c"}}, [][]string{{"y"}})

	set, err := NewSet(corpus.ModalityText, 0, 0)
	if err != nil {
		t.Fatalf("NewSet error: %v", err)
	}
	if err := BuildVocabs([]string{shard0, shard1}, set, corpus.ModalityText, BuildConfig{}); err != nil {
		t.Fatalf("BuildVocabs error: %v", err)
	}
	src := set.Get("src1").Vocab
	if got := src.Freq("a"); got != 2 {
		t.Fatalf("cross-shard Freq(a) = %d, want 2", got)
	}
	for _, s := range []string{"b", "c"} {
		if _, ok := src.Index(s); !ok {
			t.Fatalf("table missing %q", s)
		}
	}
}

func TestBuildVocabsFailedShardAborts(t *testing.T) {
	tmp := t.TempDir()
	good := filepath.Join(tmp, "train.0.shard")
	bad := filepath.Join(tmp, "train.1.shard")
	writeTestShard(t, good, [][]string{{"a"}}, [][]string{{"x"}})
	if err := os.WriteFile(bad, []byte("junk"), 0o644); err != nil {
		t.Fatalf("write corrupt shard: %v", err)
	}

	set, err := NewSet(corpus.ModalityText, 0, 0)
	if err != nil {
		t.Fatalf("NewSet error: %v", err)
	}
	if err := BuildVocabs([]string{good, bad}, set, corpus.ModalityText, BuildConfig{}); err == nil {
		t.Fatalf("expected error for corrupt shard")
	}
	if set.Get("src1").Vocab != nil {
		t.Fatalf("no table may be committed after a failed shard")
	}
}

func TestBuildVocabsNonText(t *testing.T) {
	tmp := t.TempDir()
	shard := filepath.Join(tmp, "train.0.shard")
	records := []*corpus.Record{corpus.NewRecord(0)}
	records[0].Tokens[corpus.SideTgt1] = []string{"caption", "words"}
	records[0].Tokens[corpus.SideTgt2] = []string{"aux"}
	if err := corpus.WriteShard(shard, records); err != nil {
		t.Fatalf("WriteShard error: %v", err)
	}

	set, err := NewSet(corpus.ModalityImage, 0, 0)
	if err != nil {
		t.Fatalf("NewSet error: %v", err)
	}
	if err := BuildVocabs([]string{shard}, set, corpus.ModalityImage, BuildConfig{}); err != nil {
		t.Fatalf("BuildVocabs error: %v", err)
	}
	if set.Get("src1").Vocab != nil {
		t.Fatalf("non-text src1 must not get a table")
	}
	if set.Get("tgt1").Vocab == nil || set.Get("tgt2").Vocab == nil {
		t.Fatalf("target tables not built")
	}
	if _, ok := set.Get("tgt2").Vocab.Index("aux"); !ok {
		t.Fatalf("tgt2 table missing aux")
	}
}

func TestSaveAndLoadFieldSet(t *testing.T) {
	tmp := t.TempDir()
	shard := filepath.Join(tmp, "train.0.shard")

	records := []*corpus.Record{corpus.NewRecord(0)}
	records[0].Tokens[corpus.SideSrc1] = []string{"hello", "world"}
	records[0].Tokens["src1_feat_0"] = []string{"A", "B"}
	records[0].Tokens[corpus.SideTgt1] = []string{"bonjour"}
	if err := corpus.WriteShard(shard, records); err != nil {
		t.Fatalf("WriteShard error: %v", err)
	}

	set, err := NewSet(corpus.ModalityText, 1, 0)
	if err != nil {
		t.Fatalf("NewSet error: %v", err)
	}
	if err := BuildVocabs([]string{shard}, set, corpus.ModalityText, BuildConfig{}); err != nil {
		t.Fatalf("BuildVocabs error: %v", err)
	}

	artifact := filepath.Join(tmp, "vocab.gob")
	if err := SaveVocabs(artifact, set); err != nil {
		t.Fatalf("SaveVocabs error: %v", err)
	}

	loaded, err := LoadFieldSet(artifact, corpus.ModalityText)
	if err != nil {
		t.Fatalf("LoadFieldSet error: %v", err)
	}
	if n, err := NumFeatures(loaded, "src1"); err != nil || n != 1 {
		t.Fatalf("loaded NumFeatures(src1) = %d, %v; want 1", n, err)
	}

	orig := set.Get("src1").Vocab
	got := loaded.Get("src1").Vocab
	if got == nil {
		t.Fatalf("loaded src1 has no table")
	}
	if !reflect.DeepEqual(got.Symbols(), orig.Symbols()) {
		t.Fatalf("loaded symbols = %v, want %v", got.Symbols(), orig.Symbols())
	}
	// Auxiliary counts are not serialized.
	if got.Freq("hello") != 0 {
		t.Fatalf("loaded table should report zero counts")
	}
	if loaded.Get("src_map").Vocab != nil {
		t.Fatalf("metadata field must stay without a table after load")
	}
}
