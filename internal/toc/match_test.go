package toc

import (
	"strings"
	"testing"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Chapter 1: The Beginning", "chapter 1 the beginning"},
		{"  THE  POWER   of Habit!  ", "the power of habit"},
		{"Don't Stop", "dont stop"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFuzzyMatchTitleExact(t *testing.T) {
	text := "preamble\nThe Power of Habit\nbody text follows"
	pos := FuzzyMatchTitle(text, "the power of habit", 0)
	if pos != len("preamble\n") {
		t.Errorf("pos = %d, want %d", pos, len("preamble\n"))
	}
}

func TestFuzzyMatchTitlePrefixed(t *testing.T) {
	text := "intro\nChapter 3: Deep Work Rituals\nmore text"
	pos := FuzzyMatchTitle(text, "deep work rituals", 0)
	if pos != len("intro\n") {
		t.Errorf("pos = %d, want %d", pos, len("intro\n"))
	}

	text = "intro\n7. Deep Work Rituals\nmore text"
	if pos := FuzzyMatchTitle(text, "deep work rituals", 0); pos != len("intro\n") {
		t.Errorf("numbered prefix pos = %d, want %d", pos, len("intro\n"))
	}
}

func TestFuzzyMatchTitleWordOverlap(t *testing.T) {
	// 3 of 4 significant words present: overlap 0.75 >= 0.7.
	text := "filler\nThe Surprising Science Behind Motivation Here\nbody"
	pos := FuzzyMatchTitle(text, "surprising science of motivation drive", 0)
	if pos != len("filler\n") {
		t.Errorf("pos = %d, want %d", pos, len("filler\n"))
	}
}

func TestFuzzyMatchTitleRespectsStartFrom(t *testing.T) {
	text := "Alpha\nmiddle\nAlpha\nend"
	first := FuzzyMatchTitle(text, "alpha", 0)
	if first != 0 {
		t.Fatalf("first = %d, want 0", first)
	}
	second := FuzzyMatchTitle(text, "alpha", first+1)
	want := strings.LastIndex(text, "Alpha")
	if second != want {
		t.Errorf("second = %d, want %d", second, want)
	}
}

func TestFuzzyMatchTitleNoMatch(t *testing.T) {
	if pos := FuzzyMatchTitle("nothing relevant here", "completely absent heading", 0); pos != -1 {
		t.Errorf("pos = %d, want -1", pos)
	}
	if pos := FuzzyMatchTitle("short", "title", 100); pos != -1 {
		t.Errorf("out-of-range startFrom: pos = %d, want -1", pos)
	}
}

func TestFuzzyMatchSkipsLongProseLines(t *testing.T) {
	// The words appear but on a long prose line, not a heading.
	prose := "this long paragraph mentions surprising science and motivation and drive in passing while going on and on about a great many unrelated matters for well over the line limit"
	if len(prose) < matchLineLimit {
		t.Fatal("test prose must exceed the line limit")
	}
	if pos := FuzzyMatchTitle(prose, "surprising science of motivation drive", 0); pos != -1 {
		t.Errorf("matched prose line at %d, want -1", pos)
	}
}
