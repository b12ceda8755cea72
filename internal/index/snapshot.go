package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"

	"github.com/rcliao/evicted-rag/internal/canon"
	"github.com/rcliao/evicted-rag/internal/model"
)

// SnapshotFormat tags the persisted index layout.
const SnapshotFormat = "evicted-index/v1"

// snapshot is the on-disk form of an Indexer. Digest is the sha256 of the
// JCS canonical form of Entries.
type snapshot struct {
	Format  string          `json:"format"`
	Scorer  string          `json:"scorer"`
	SavedAt string          `json:"saved_at"`
	NextSeq int64           `json:"next_seq"`
	Digest  string          `json:"digest"`
	Entries json.RawMessage `json:"entries"`
}

const snapshotSchema = `{
	"type": "object",
	"required": ["format", "scorer", "next_seq", "digest", "entries"],
	"properties": {
		"format": {"const": "evicted-index/v1"},
		"scorer": {"type": "string", "minLength": 1},
		"saved_at": {"type": "string"},
		"next_seq": {"type": "integer", "minimum": 0},
		"digest": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
		"entries": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "segment_id", "seq", "text"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"segment_id": {"type": "string", "minLength": 1},
					"seq": {"type": "integer", "minimum": 0},
					"text": {"type": "string"},
					"meta": {"type": ["object", "null"]},
					"features": {"type": "object"}
				}
			}
		}
	}
}`

var compileSnapshotSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.NewCompiler().Compile([]byte(snapshotSchema))
})

// Save writes the full index to the configured path, replacing any previous
// snapshot atomically.
func (ix *Indexer) Save() error {
	if ix.path == "" {
		return model.Configurationf("index path not configured")
	}

	ix.mu.RLock()
	entries, err := json.Marshal(ix.entries)
	nextSeq := ix.nextSeq
	ix.mu.RUnlock()
	if err != nil {
		return model.Persistence("encode entries", err)
	}
	if string(entries) == "null" {
		entries = []byte("[]")
	}

	digest, err := canon.Digest(entries)
	if err != nil {
		return model.Persistence("digest entries", err)
	}

	data, err := json.Marshal(snapshot{
		Format:  SnapshotFormat,
		Scorer:  ix.scorer.Name(),
		SavedAt: time.Now().UTC().Format(time.RFC3339),
		NextSeq: nextSeq,
		Digest:  digest,
		Entries: entries,
	})
	if err != nil {
		return model.Persistence("encode snapshot", err)
	}

	return model.Persistence("write snapshot", writeFileAtomic(ix.path, data))
}

// Load replaces the in-memory index with the snapshot at the configured path.
func (ix *Indexer) Load() error {
	if ix.path == "" {
		return model.Configurationf("index path not configured")
	}

	data, err := os.ReadFile(ix.path)
	if err != nil {
		return model.Persistence("read snapshot", err)
	}

	schema, err := compileSnapshotSchema()
	if err != nil {
		return fmt.Errorf("compile snapshot schema: %w", err)
	}
	if result := schema.ValidateJSON(data); !result.IsValid() {
		return model.Persistence("validate snapshot", fmt.Errorf("schema validation failed: %v", result.Errors))
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Persistence("decode snapshot", err)
	}
	if snap.Scorer != ix.scorer.Name() {
		return model.Configurationf("snapshot built with scorer %q, index configured with %q", snap.Scorer, ix.scorer.Name())
	}

	digest, err := canon.Digest(snap.Entries)
	if err != nil {
		return model.Persistence("digest entries", err)
	}
	if digest != snap.Digest {
		return model.Persistence("verify snapshot", fmt.Errorf("digest mismatch: have %s, recorded %s", digest, snap.Digest))
	}

	var entries []*Entry
	if err := json.Unmarshal(snap.Entries, &entries); err != nil {
		return model.Persistence("decode entries", err)
	}

	corpus := newCorpus()
	nextSeq := snap.NextSeq
	for _, e := range entries {
		corpus.add(e.Features)
		if e.Seq >= nextSeq {
			nextSeq = e.Seq + 1
		}
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.corpus = corpus
	ix.nextSeq = nextSeq
	ix.mu.Unlock()
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
