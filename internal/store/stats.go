package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/rcliao/evicted-rag/internal/model"
)

// Stats holds store statistics.
type Stats struct {
	Root        string     `json:"root"`
	DBSizeBytes int64      `json:"db_size_bytes"`
	Segments    int        `json:"segments"`
	TextBytes   int64      `json:"text_bytes"`
	Oldest      *time.Time `json:"oldest,omitempty"`
	Newest      *time.Time `json:"newest,omitempty"`
}

// Stats returns store statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Root: s.root}

	// Main file plus WAL, since recent writes may not be checkpointed yet.
	for _, name := range []string{DBFile, DBFile + "-wal"} {
		if info, err := os.Stat(filepath.Join(s.root, name)); err == nil {
			st.DBSizeBytes += info.Size()
		}
	}

	var oldest, newest sql.NullString
	var textBytes sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(LENGTH(CAST(text AS BLOB))), MIN(created_at), MAX(created_at) FROM segments`).
		Scan(&st.Segments, &textBytes, &oldest, &newest)
	if err != nil {
		return st, model.Persistence("stats", err)
	}
	st.TextBytes = textBytes.Int64
	if oldest.Valid {
		t, _ := time.Parse(timeLayout, oldest.String)
		st.Oldest = &t
	}
	if newest.Valid {
		t, _ := time.Parse(timeLayout, newest.String)
		st.Newest = &t
	}

	return st, nil
}
