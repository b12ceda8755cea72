package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/evicted-rag/internal/model"
)

func addAll(t *testing.T, ix *Indexer, texts ...string) []string {
	t.Helper()
	ids := make([]string, len(texts))
	for i, text := range texts {
		id, err := ix.AddSegment(context.Background(), model.Segment{ID: fmt.Sprintf("seg-%d", i), Text: text})
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func TestQuery_RanksMatchingEntryFirst(t *testing.T) {
	ix := New(Options{})
	addAll(t, ix, "The quick brown fox", "Jumps over the lazy dog")

	got, err := ix.Query(context.Background(), "fox", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Contains(t, got[0].Text, "fox")
	assert.Equal(t, "seg-0", got[0].SegmentID)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestQuery_EmptyIndex(t *testing.T) {
	ix := New(Options{})
	for _, q := range []string{"", "anything"} {
		got, err := ix.Query(context.Background(), q, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NotNil(t, got)
	}
}

func TestQuery_TopKBounds(t *testing.T) {
	ix := New(Options{})
	addAll(t, ix, "alpha fox", "beta fox", "gamma", "delta")

	zero, err := ix.Query(context.Background(), "fox", 0)
	require.NoError(t, err)
	assert.Empty(t, zero)

	for k := 0; k <= 6; k++ {
		got, err := ix.Query(context.Background(), "fox", k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), k)
	}

	all, err := ix.Query(context.Background(), "fox", 100)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = ix.Query(context.Background(), "fox", -1)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestQuery_TiesKeepInsertionOrder(t *testing.T) {
	ix := New(Options{})
	addAll(t, ix, "first unrelated", "second unrelated", "third unrelated")

	got, err := ix.Query(context.Background(), "nomatch", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"seg-0", "seg-1", "seg-2"},
		[]string{got[0].SegmentID, got[1].SegmentID, got[2].SegmentID})

	empty, err := ix.Query(context.Background(), "", 3)
	require.NoError(t, err)
	assert.Equal(t, "seg-0", empty[0].SegmentID)
}

func TestQuery_EqualEntriesTieByInsertionOrder(t *testing.T) {
	terms := strings.Fields("alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima")
	ix := New(Options{})
	ctx := context.Background()

	// background entries give every term a different document frequency
	for i := range terms {
		_, err := ix.AddSegment(ctx, model.Segment{ID: fmt.Sprintf("bg-%d", i), Text: strings.Join(terms[:i+1], " ") + " filler"})
		require.NoError(t, err)
	}
	same := strings.Join(terms, " ")
	_, err := ix.AddSegment(ctx, model.Segment{ID: "first", Text: same})
	require.NoError(t, err)
	_, err = ix.AddSegment(ctx, model.Segment{ID: "second", Text: same})
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		got, err := ix.Query(ctx, same, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, got[0].Score, got[1].Score)
		require.Equal(t, []string{"first", "second"}, []string{got[0].SegmentID, got[1].SegmentID})
	}
}

func TestQuery_InvalidUTF8(t *testing.T) {
	ix := New(Options{})
	addAll(t, ix, "x")
	_, err := ix.Query(context.Background(), string([]byte{0xff}), 1)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestAddSegment_Validation(t *testing.T) {
	ix := New(Options{})
	_, err := ix.AddSegment(context.Background(), model.Segment{Text: "no id"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = ix.AddSegment(context.Background(), model.Segment{ID: "x", Text: string([]byte{0xc3, 0x28})})
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, 0, ix.Len())
}

func TestAddSegment_DuplicatesAreIndependent(t *testing.T) {
	ix := New(Options{})
	seg := model.Segment{ID: "same", Text: "repeated segment"}
	a, err := ix.AddSegment(context.Background(), seg)
	require.NoError(t, err)
	b, err := ix.AddSegment(context.Background(), seg)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, ix.Len())
}

func TestAddSegment_UniqueEntryIDs(t *testing.T) {
	ix := New(Options{})
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		id, err := ix.AddSegment(context.Background(), model.Segment{ID: "s", Text: "t"})
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate entry id %s", id)
		seen[id] = true
	}
}

func TestQuery_ReturnsMetaCopy(t *testing.T) {
	ix := New(Options{})
	_, err := ix.AddSegment(context.Background(), model.Segment{ID: "m", Text: "fox", Meta: model.Meta{"k": "v"}})
	require.NoError(t, err)

	got, _ := ix.Query(context.Background(), "fox", 1)
	got[0].Meta["k"] = "mutated"

	again, _ := ix.Query(context.Background(), "fox", 1)
	assert.Equal(t, "v", again[0].Meta["k"])
}

func TestRemoveSegments(t *testing.T) {
	ix := New(Options{})
	addAll(t, ix, "fox one", "fox two", "fox three")

	assert.Equal(t, 1, ix.RemoveSegments("seg-1"))
	assert.Equal(t, 0, ix.RemoveSegments("unknown"))
	assert.Equal(t, 0, ix.RemoveSegments())

	got, err := ix.Query(context.Background(), "fox", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, p := range got {
		assert.NotEqual(t, "seg-1", p.SegmentID)
	}
	assert.Equal(t, 2, ix.corpus.DocFreq["fox"])
}

func TestConcurrentAddAndQuery(t *testing.T) {
	ix := New(Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, err := ix.AddSegment(ctx, model.Segment{ID: fmt.Sprintf("s%d", i), Text: fmt.Sprintf("fox number %d", i)})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			got, err := ix.Query(ctx, "fox", 3)
			assert.NoError(t, err)
			for _, p := range got {
				assert.NotEmpty(t, p.EntryID)
				assert.True(t, strings.HasPrefix(p.Text, "fox number"))
			}
		}
	}()
	wg.Wait()
	assert.Equal(t, 200, ix.Len())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx", "index.json")
	ix := New(Options{Path: path})
	addAll(t, ix, "The quick brown fox", "Jumps over the lazy dog", "A fox den <near> the river & bank")

	before, err := ix.Query(context.Background(), "fox river", 10)
	require.NoError(t, err)
	require.NoError(t, ix.Save())

	loaded := New(Options{Path: path})
	require.NoError(t, loaded.Load())
	assert.Equal(t, 3, loaded.Len())

	after, err := loaded.Query(context.Background(), "fox river", 10)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// new entries continue the sequence instead of reusing it
	_, err = loaded.AddSegment(context.Background(), model.Segment{ID: "late", Text: "late"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), loaded.entries[3].Seq)
}

func TestSaveLoad_QueryUnchangedWithIntMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	ix := New(Options{Path: path})
	ctx := context.Background()
	_, err := ix.AddSegment(ctx, model.Segment{ID: "w1", Text: "the fox crossed the river", Meta: model.Meta{
		model.MetaStartToken: 4,
		model.MetaEndToken:   36,
		model.MetaSource:     "window",
		"big":                int64(9007199254740993),
		"nested":             map[string]any{"step": 7},
	}})
	require.NoError(t, err)

	before, err := ix.Query(ctx, "fox river", 5)
	require.NoError(t, err)
	require.NoError(t, ix.Save())

	loaded, err := Open(Options{Path: path})
	require.NoError(t, err)
	after, err := loaded.Query(ctx, "fox river", 5)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	require.Len(t, after, 1)
	assert.Equal(t, json.Number("9007199254740993"), after[0].Meta["big"])
	assert.Equal(t, json.Number("4"), after[0].Meta[model.MetaStartToken])
}

func TestSaveLoad_EmptyIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, New(Options{Path: path}).Save())

	ix, err := Open(Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 0, ix.Len())
}

func TestLoadReplacesState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	ix := New(Options{Path: path})
	addAll(t, ix, "saved")
	require.NoError(t, ix.Save())

	addAll(t, ix, "unsaved")
	require.NoError(t, ix.Load())
	assert.Equal(t, 1, ix.Len())
}

func TestSave_WithoutPath(t *testing.T) {
	err := New(Options{}).Save()
	assert.ErrorIs(t, err, model.ErrConfiguration)

	err = New(Options{}).Load()
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestLoad_MissingFile(t *testing.T) {
	ix := New(Options{Path: filepath.Join(t.TempDir(), "absent.json")})
	err := ix.Load()
	assert.ErrorIs(t, err, model.ErrPersistence)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpen_WithoutSnapshot(t *testing.T) {
	ix, err := Open(Options{Path: filepath.Join(t.TempDir(), "new.json")})
	require.NoError(t, err)
	assert.Equal(t, 0, ix.Len())
}

func TestLoad_DetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	ix := New(Options{Path: path})
	addAll(t, ix, "original text")
	require.NoError(t, ix.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "original text", "forged text", 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o644))

	err = New(Options{Path: path}).Load()
	assert.ErrorIs(t, err, model.ErrPersistence)
	assert.Contains(t, err.Error(), "digest mismatch")
}

func TestLoad_RejectsMalformedSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"format":"something-else","entries":[]}`), 0o644))

	err := New(Options{Path: path}).Load()
	assert.ErrorIs(t, err, model.ErrPersistence)
}

func TestLoad_ScorerMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, New(Options{Path: path}).Save())

	err := New(Options{Path: path, Scorer: NewDense(&letterEmbedder{})}).Load()
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
