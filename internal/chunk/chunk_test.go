package chunk

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ragbot-io/ragbot/internal/document"
)

// sampleText builds a deterministic multi-sentence body of roughly n bytes.
func sampleText(n int) string {
	var b strings.Builder
	i := 0
	for b.Len() < n {
		b.WriteString("Healthee is an AI powered platform that helps employees understand their benefits. ")
		b.WriteString("Zoe answers questions about coverage in real time. ")
		i++
		if i%3 == 0 {
			b.WriteString("Plan comparison keeps costs transparent! ")
		}
	}
	return b.String()
}

func TestChunk_EmptyInput(t *testing.T) {
	c := New(1000, 200, nil)

	if got := c.Chunk("", nil); got != nil {
		t.Errorf("Chunk(\"\") = %d chunks, want nil", len(got))
	}
	if got := c.Chunk("   \n\t  ", nil); got != nil {
		t.Errorf("Chunk(whitespace) = %d chunks, want nil", len(got))
	}
}

func TestChunk_ShortInputSingleChunk(t *testing.T) {
	c := New(1000, 200, nil)
	text := "A short document. It fits in one chunk."

	chunks := c.Chunk(text, nil)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Content != text {
		t.Errorf("content = %q, want full text", chunks[0].Content)
	}
	if chunks[0].Metadata[document.MetaChunkID] != 0 {
		t.Errorf("chunk_id = %v, want 0", chunks[0].Metadata[document.MetaChunkID])
	}
}

func TestChunk_MultipleOverlappingChunks(t *testing.T) {
	c := New(1000, 200, nil)
	text := sampleText(4096)
	cleaned := Clean(text)

	chunks := c.Chunk(text, nil)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want >1 for ~4KB input", len(chunks))
	}

	prevEnd := -1
	for i, ch := range chunks {
		start := ch.Metadata[document.MetaChunkStart].(int)
		end := ch.Metadata[document.MetaChunkEnd].(int)

		if start >= end {
			t.Errorf("chunk %d: start %d >= end %d", i, start, end)
		}
		if end > len(cleaned) {
			t.Errorf("chunk %d: end %d beyond cleaned text length %d", i, end, len(cleaned))
		}
		// Chunk length stays within size plus the sentence-boundary slack.
		if end-start > c.ChunkSize()+boundaryLookahead {
			t.Errorf("chunk %d: window %d exceeds size+slack", i, end-start)
		}
		// Consecutive windows overlap: the next chunk starts before this
		// one ends (barring the forced-progress degenerate case).
		if i > 0 && start >= prevEnd {
			t.Errorf("chunk %d: start %d does not overlap previous end %d", i, start, prevEnd)
		}
		// Content is the trimmed window of the cleaned text.
		if want := strings.TrimSpace(cleaned[start:end]); ch.Content != want {
			t.Errorf("chunk %d: content does not match cleaned window", i)
		}
		prevEnd = end
	}

	// Coverage: the final chunk reaches the end of the cleaned text.
	last := chunks[len(chunks)-1]
	if end := last.Metadata[document.MetaChunkEnd].(int); end != len(cleaned) {
		t.Errorf("final chunk end = %d, want %d", end, len(cleaned))
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c := New(1000, 200, nil)
	text := sampleText(3000)

	first := c.Chunk(text, nil)
	second := c.Chunk(text, nil)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d: ids differ: %q vs %q", i, first[i].ID, second[i].ID)
		}
		if first[i].Content != second[i].Content {
			t.Errorf("chunk %d: contents differ", i)
		}
	}
}

func TestChunk_MetadataPropagation(t *testing.T) {
	c := New(500, 100, nil)
	meta := map[string]any{"source": "healthee.md", "type": "company_info"}

	chunks := c.Chunk(sampleText(2000), meta)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for i, ch := range chunks {
		if ch.Metadata["source"] != "healthee.md" || ch.Metadata["type"] != "company_info" {
			t.Errorf("chunk %d: caller metadata not propagated: %v", i, ch.Metadata)
		}
		if ch.Metadata[document.MetaChunkID] != i {
			t.Errorf("chunk %d: ordinal = %v", i, ch.Metadata[document.MetaChunkID])
		}
		if ch.Metadata[document.MetaChunkSize] != len(ch.Content) {
			t.Errorf("chunk %d: chunk_size = %v, want %d", i, ch.Metadata[document.MetaChunkSize], len(ch.Content))
		}
	}
	// The shared input map must not be mutated.
	if len(meta) != 2 {
		t.Errorf("caller metadata mutated: %v", meta)
	}
}

func TestChunk_BreaksOnSentenceBoundary(t *testing.T) {
	c := New(100, 20, nil)
	// Sentences of ~40 chars: a 100-char window should be pulled back to the
	// last terminator instead of splitting a sentence mid-word.
	text := strings.Repeat("The quick brown fox jumps over a lazy dog. ", 10)

	chunks := c.Chunk(text, nil)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i, ch := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(ch.Content, ".") {
			t.Errorf("chunk %d does not end on sentence boundary: %q", i, ch.Content)
		}
	}
}

func TestChunk_MultibyteInputStaysValidUTF8(t *testing.T) {
	c := New(101, 10, nil)
	// No sentence terminators, so every boundary lands exactly at chunk_size.
	// With two-byte runes, byte-based slicing would cut mid-rune.
	text := strings.Repeat("é", 300)

	chunks := c.Chunk(text, nil)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i, ch := range chunks {
		if !utf8.ValidString(ch.Content) {
			t.Errorf("chunk %d content is invalid UTF-8", i)
		}
		if n := utf8.RuneCountInString(ch.Content); n > c.ChunkSize() {
			t.Errorf("chunk %d: %d characters exceeds chunk size", i, n)
		}
	}
}

func TestChunk_OffsetsCountCharacters(t *testing.T) {
	c := New(50, 10, nil)
	text := strings.Repeat("Café au lait, s'il vous plaît. ", 10)
	cleaned := []rune(Clean(text))

	chunks := c.Chunk(text, nil)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i, ch := range chunks {
		start := ch.Metadata[document.MetaChunkStart].(int)
		end := ch.Metadata[document.MetaChunkEnd].(int)
		if end > len(cleaned) {
			t.Fatalf("chunk %d: end %d beyond %d characters", i, end, len(cleaned))
		}
		if want := strings.TrimSpace(string(cleaned[start:end])); ch.Content != want {
			t.Errorf("chunk %d: content does not match character window %d:%d", i, start, end)
		}
		if ch.Metadata[document.MetaChunkSize] != utf8.RuneCountInString(ch.Content) {
			t.Errorf("chunk %d: chunk_size = %v, want character count %d",
				i, ch.Metadata[document.MetaChunkSize], utf8.RuneCountInString(ch.Content))
		}
	}
	if end := chunks[len(chunks)-1].Metadata[document.MetaChunkEnd].(int); end != len(cleaned) {
		t.Errorf("final chunk end = %d, want %d", end, len(cleaned))
	}
}

func TestChunk_ForcedProgressTerminates(t *testing.T) {
	// Overlap close to chunk size with boundary adjustment pulling ends
	// backwards must still terminate.
	c := New(50, 40, nil)
	text := sampleText(1000)

	done := make(chan []document.Document, 1)
	go func() { done <- c.Chunk(text, nil) }()

	select {
	case chunks := <-done:
		if len(chunks) == 0 {
			t.Error("expected chunks")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Chunk did not terminate")
	}
}

func TestClean(t *testing.T) {
	in := "Hello\t\tworld\n\nwith\x00control\x1fchars  and   spaces"
	want := "Hello world withcontrolchars and spaces"
	if got := Clean(in); got != want {
		t.Errorf("Clean() = %q, want %q", got, want)
	}
}

func TestChunkID_Format(t *testing.T) {
	chunks := New(1000, 200, nil).Chunk("One small piece of text.", nil)
	if len(chunks) != 1 {
		t.Fatal("expected one chunk")
	}
	id := chunks[0].ID
	if !strings.HasPrefix(id, "chunk_0_") || len(id) != len("chunk_0_")+8 {
		t.Errorf("unexpected chunk id format: %q", id)
	}
}
