package corpus

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// A shard is a gob-encoded []Record on disk. Large corpora are split across
// shards so vocabulary building and training never hold more than one shard's
// records in memory at a time.

// WriteShard writes records to path as one shard.
func WriteShard(path string, records []*Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create shard %s: %w", path, err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(records); err != nil {
		return fmt.Errorf("encode shard %s: %w", path, err)
	}
	return nil
}

// ReadShard decodes one shard. Any decode failure is fatal for the shard: no
// partial record list is returned.
func ReadShard(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shard %s: %w", path, err)
	}
	defer f.Close()

	var records []*Record
	if err := gob.NewDecoder(f).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode shard %s: %w", path, err)
	}
	return records, nil
}

// ShardSet addresses a sharded corpus by glob pattern. Shards are decoded
// lazily, one at a time, when streamed.
type ShardSet struct {
	// Pattern used to find shard files (e.g. "data/train.*.shard").
	Pattern string

	paths []string
}

// NewShardSet globs pattern and fails when nothing matches.
func NewShardSet(pattern string) (*ShardSet, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob pattern %s: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no shard files found matching pattern: %s", pattern)
	}
	return &ShardSet{Pattern: pattern, paths: paths}, nil
}

// Paths returns the shard file paths in processing order.
func (s *ShardSet) Paths() []string {
	return s.paths
}

// Stream returns a sequential reader over every record in every shard, in
// shard order. Each call starts a fresh pass, so one ShardSet serves many
// epochs.
func (s *ShardSet) Stream() *Stream {
	return &Stream{paths: s.paths}
}

// Stream yields records shard by shard. Next returns io.EOF after the last
// record of the last shard; a shard that fails to decode surfaces its error
// and ends the stream.
type Stream struct {
	paths   []string
	current []*Record
	pos     int
	err     error
}

// Next returns the next record, or io.EOF when the stream is exhausted.
func (st *Stream) Next() (*Record, error) {
	if st.err != nil {
		return nil, st.err
	}
	for st.pos >= len(st.current) {
		if len(st.paths) == 0 {
			st.err = io.EOF
			return nil, st.err
		}
		records, err := ReadShard(st.paths[0])
		if err != nil {
			st.err = err
			return nil, st.err
		}
		st.paths = st.paths[1:]
		st.current = records
		st.pos = 0
	}
	rec := st.current[st.pos]
	st.pos++
	return rec, nil
}
