package orchestrator

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSummarizeShape(t *testing.T) {
	t.Parallel()

	note := Summarize("Hello")
	if note != "User: Hello... Agent responded with assistance." {
		t.Fatalf("Summarize() = %q", note)
	}
}

func TestSummarizeIsDeterministic(t *testing.T) {
	t.Parallel()

	input := "I'd like a quote for 40 units"
	if Summarize(input) != Summarize(input) {
		t.Fatal("Summarize is not deterministic")
	}
}

func TestSummarizeBoundsLength(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"short",
		strings.Repeat("a", 199),
		strings.Repeat("b", 200),
		strings.Repeat("c", 5000),
		strings.Repeat("ก", 1000), // multi-byte runes
	}
	for _, input := range inputs {
		note := Summarize(input)
		if n := utf8.RuneCountInString(note); n > notesMaxLen {
			t.Fatalf("Summarize(len %d) produced %d runes, max %d", len(input), n, notesMaxLen)
		}
		if !strings.HasPrefix(note, notesPrefix) {
			t.Fatalf("Summarize(%.10q...) = %q, missing prefix", input, note)
		}
	}
}

func TestSummarizeExcerptsLongInput(t *testing.T) {
	t.Parallel()

	note := Summarize(strings.Repeat("x", 300))
	if strings.Contains(note, strings.Repeat("x", 201)) {
		t.Fatal("excerpt exceeded 200 runes")
	}
	if !strings.Contains(note, strings.Repeat("x", 200)) {
		t.Fatal("excerpt shorter than 200 runes")
	}
}

func TestTruncateAddsMarker(t *testing.T) {
	t.Parallel()

	got := truncate(strings.Repeat("z", 700), notesMaxLen)
	if utf8.RuneCountInString(got) != notesMaxLen {
		t.Fatalf("truncate() length = %d, want %d", utf8.RuneCountInString(got), notesMaxLen)
	}
	if !strings.HasSuffix(got, truncationMark) {
		t.Fatalf("truncate() = %.20q..., missing marker suffix", got)
	}

	if got := truncate("short", notesMaxLen); got != "short" {
		t.Fatalf("truncate() modified in-bounds string: %q", got)
	}
}
