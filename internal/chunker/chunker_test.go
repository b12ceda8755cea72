package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunk_EmptyInput(t *testing.T) {
	for _, text := range []string{"", "   \n\n\t "} {
		if result := Chunk(text, DefaultOptions()); result != nil {
			t.Errorf("Chunk(%q): expected nil, got %v", text, result)
		}
	}
}

func TestChunk_ShortContent(t *testing.T) {
	text := "  The quick brown fox.\n"
	result := Chunk(text, DefaultOptions())
	if len(result) != 1 {
		t.Fatalf("expected 1 piece, got %d", len(result))
	}
	if result[0].Text != "The quick brown fox." {
		t.Errorf("unexpected text %q", result[0].Text)
	}
	if text[result[0].Start:result[0].End] != result[0].Text {
		t.Errorf("offsets %d:%d do not address the piece", result[0].Start, result[0].End)
	}
}

func TestChunk_SplitsOnHeadings(t *testing.T) {
	section := strings.Repeat("Some content filling space. ", 12)
	text := "# Section One\n" + section + "\n# Section Two\n" + section + "\n# Section Three\n" + section

	result := Chunk(text, DefaultOptions())
	if len(result) < 2 {
		t.Fatalf("expected at least 2 pieces, got %d", len(result))
	}
	if !strings.HasPrefix(result[0].Text, "# Section One") {
		t.Errorf("first piece should start at the first heading, got %q", result[0].Text[:20])
	}
	if !strings.HasPrefix(result[1].Text, "# Section Two") {
		t.Errorf("second piece should start at the second heading, got %q", result[1].Text[:20])
	}
}

func TestChunk_DoubleNewlineSplit(t *testing.T) {
	para := strings.Repeat("This is a sentence. ", 15)
	text := para + "\n\n" + para + "\n\n" + para

	result := Chunk(text, Options{TargetSize: 400, MaxSize: 500})
	if len(result) != 3 {
		t.Fatalf("expected 3 paragraph pieces, got %d", len(result))
	}
}

func TestChunk_MergesSmallBlocks(t *testing.T) {
	text := "# A\n\nShort.\n\n# B\n\nAlso short.\n\n" + strings.Repeat("x", 50)
	result := Chunk(text, Options{TargetSize: 60, MaxSize: 60})
	if len(result) != 2 {
		t.Fatalf("expected 2 pieces, got %d", len(result))
	}
	if result[0].Text != "# A\n\nShort.\n\n# B\n\nAlso short." {
		t.Errorf("small blocks should merge, got %q", result[0].Text)
	}
}

func TestChunk_PiecesRespectBoundsAndOrder(t *testing.T) {
	opts := Options{TargetSize: 64, MaxSize: 64}
	words := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	text := words + "\n" + strings.Repeat("z", 300) + "\n\n" + "日本語のテキスト" + strings.Repeat("あ", 50)

	result := Chunk(text, opts)
	if len(result) < 5 {
		t.Fatalf("expected many pieces, got %d", len(result))
	}
	prevEnd := 0
	for i, p := range result {
		if len(p.Text) > opts.MaxSize {
			t.Errorf("piece %d is %d bytes, max %d", i, len(p.Text), opts.MaxSize)
		}
		if !utf8.ValidString(p.Text) {
			t.Errorf("piece %d split a rune", i)
		}
		if p.Start < prevEnd {
			t.Errorf("piece %d starts at %d before previous end %d", i, p.Start, prevEnd)
		}
		if text[p.Start:p.End] != p.Text {
			t.Errorf("piece %d offsets do not match its text", i)
		}
		prevEnd = p.End
	}
}

func TestChunk_PrefersWordBoundaries(t *testing.T) {
	text := strings.Repeat("alpha beta gamma ", 10)
	for _, p := range Chunk(text, Options{TargetSize: 30, MaxSize: 30}) {
		for _, w := range strings.Fields(p.Text) {
			if w != "alpha" && w != "beta" && w != "gamma" {
				t.Errorf("word split mid-way: %q", w)
			}
		}
	}
}

func TestPrefix(t *testing.T) {
	text := "First paragraph here.\n\nSecond paragraph here.\n\nThird paragraph here."

	got, cut := Prefix(text, 50)
	if got != "First paragraph here.\n\nSecond paragraph here." {
		t.Errorf("unexpected prefix %q", got)
	}
	if !cut {
		t.Error("expected truncation to be reported")
	}

	got, cut = Prefix(text, len(text))
	if got != text || cut {
		t.Errorf("whole text should fit, got %q cut=%v", got, cut)
	}

	got, cut = Prefix(text, 0)
	if got != "" || !cut {
		t.Errorf("zero budget: got %q cut=%v", got, cut)
	}

	got, cut = Prefix("", 10)
	if got != "" || cut {
		t.Errorf("empty text: got %q cut=%v", got, cut)
	}
}

func TestPrefix_IsLeadingText(t *testing.T) {
	text := strings.Repeat("word ", 100)
	got, cut := Prefix(text, 37)
	if !cut || got == "" {
		t.Fatalf("expected a non-empty truncated prefix, got %q", got)
	}
	if len(got) > 37 {
		t.Errorf("prefix is %d bytes, budget 37", len(got))
	}
	if !strings.HasPrefix(text, got) {
		t.Errorf("prefix %q is not leading text", got)
	}
}
