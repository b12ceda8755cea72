package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/evicted-rag/internal/model"
)

// DBFile is the database file name inside a store root.
const DBFile = "segments.db"

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	root string

	mu      sync.Mutex // serializes writers and guards entropy
	entropy *ulid.MonotonicEntropy
}

var _ Store = (*SQLiteStore)(nil)

// Open opens or creates a store rooted at the given directory. Opening the
// same root twice keeps existing segments.
func Open(root string) (*SQLiteStore, error) {
	if root == "" {
		return nil, model.Configurationf("store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, model.Persistence("create store dir", err)
	}

	dbPath := filepath.Join(root, DBFile)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=synchronous(full)")
	if err != nil {
		return nil, model.Persistence("open db", err)
	}

	s := newSQLiteStore(db, root)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, model.Persistence("migrate", err)
	}

	return s, nil
}

func newSQLiteStore(db *sql.DB, root string) *SQLiteStore {
	return &SQLiteStore{
		db:      db,
		root:    root,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Root returns the directory the store lives in.
func (s *SQLiteStore) Root() string { return s.root }

// newID must be called with s.mu held.
func (s *SQLiteStore) newID(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), s.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS segments (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		text       TEXT NOT NULL,
		meta       TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_segments_created ON segments(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) AddSegment(ctx context.Context, seg model.Segment) (string, error) {
	if err := model.ValidateText(seg.Text); err != nil {
		return "", err
	}

	var metaJSON *string
	if seg.Meta != nil {
		b, err := json.Marshal(seg.Meta)
		if err != nil {
			return "", model.Validationf("encode meta: %v", err)
		}
		m := string(b)
		metaJSON = &m
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	id, err := s.newID(now)
	if err != nil {
		return "", model.Persistence("generate id", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO segments (id, text, meta, created_at) VALUES (?, ?, ?, ?)`,
		id, seg.Text, metaJSON, now.Format(timeLayout))
	if err != nil {
		return "", model.Persistence("insert segment", err)
	}

	return id, nil
}

func (s *SQLiteStore) GetSegment(ctx context.Context, id string) (model.Segment, bool, error) {
	if id == "" {
		return model.Segment{}, false, nil
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, meta, created_at FROM segments WHERE id = ?`, id)
	seg, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Segment{}, false, nil
	}
	if err != nil {
		return model.Segment{}, false, model.Persistence("get segment "+id, err)
	}
	return seg, true, nil
}

func (s *SQLiteStore) ListSegments(ctx context.Context, limit int) ([]model.Segment, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, meta, created_at FROM segments ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, model.Persistence("list segments", err)
	}
	defer rows.Close()

	segments := []model.Segment{}
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, model.Persistence("scan segment", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("list segments", err)
	}
	return segments, nil
}

func (s *SQLiteStore) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 0 {
		return nil, model.Validationf("keep must be >= 0, got %d", keep)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, model.Persistence("begin prune", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM segments
		 WHERE seq NOT IN (SELECT seq FROM segments ORDER BY seq DESC LIMIT ?)
		 ORDER BY seq ASC`, keep)
	if err != nil {
		return nil, model.Persistence("select prunable", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, model.Persistence("scan prunable", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE id = ?`, id); err != nil {
			return nil, model.Persistence("delete segment", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, model.Persistence("commit prune", err)
	}
	return ids, nil
}

// Count returns the number of stored segments.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&n); err != nil {
		return 0, model.Persistence("count segments", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSegment(row scanner) (model.Segment, error) {
	var seg model.Segment
	var meta sql.NullString
	var createdAt string

	if err := row.Scan(&seg.ID, &seg.Text, &meta, &createdAt); err != nil {
		return seg, err
	}

	seg.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if meta.Valid {
		if err := json.Unmarshal([]byte(meta.String), &seg.Meta); err != nil {
			return seg, fmt.Errorf("decode meta for %s: %w", seg.ID, err)
		}
	}
	return seg, nil
}
