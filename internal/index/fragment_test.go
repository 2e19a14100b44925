package index

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSplitShortTextSingleFragment(t *testing.T) {
	f := Fragmenter{Window: 4, Overlap: 2}
	got, err := f.Split("a b c d")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(got) != 1 || got[0] != "a b c d" {
		t.Fatalf("expected single fragment equal to input, got %v", got)
	}
}

func TestSplitOverlappingWindows(t *testing.T) {
	f := Fragmenter{Window: 4, Overlap: 2}
	got, err := f.Split("a b c d e f g h i j")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"a b c d", "c d e f", "e f g h", "g h i j"}
	if len(got) != len(want) {
		t.Fatalf("expected %d fragments, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fragment %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitConsecutiveOverlapExact(t *testing.T) {
	words := make([]string, 25)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	f := Fragmenter{Window: 10, Overlap: 3}
	got, err := f.Split(strings.Join(words, " "))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	for i := 1; i < len(got); i++ {
		prev := strings.Fields(got[i-1])
		cur := strings.Fields(got[i])
		if i < len(got)-1 && len(cur) != 10 {
			t.Errorf("fragment %d has %d words, want 10", i, len(cur))
		}
		// The last Overlap words of the previous window open the next one.
		tail := prev[len(prev)-3:]
		head := cur[:3]
		for j := range tail {
			if tail[j] != head[j] {
				t.Errorf("fragments %d/%d overlap mismatch: %v vs %v", i-1, i, tail, head)
			}
		}
	}
}

func TestSplitShorterLastWindow(t *testing.T) {
	f := Fragmenter{Window: 4, Overlap: 1}
	got, err := f.Split("a b c d e")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"a b c d", "d e"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplitEmptyText(t *testing.T) {
	f := Fragmenter{Window: 4, Overlap: 2}
	got, err := f.Split("")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no fragments, got %v", got)
	}
}

func TestSplitOverlapTooLarge(t *testing.T) {
	for _, overlap := range []int{4, 5} {
		f := Fragmenter{Window: 4, Overlap: overlap}
		if _, err := f.Split("a b c d e"); !errors.Is(err, ErrOverlap) {
			t.Errorf("overlap %d: expected ErrOverlap, got %v", overlap, err)
		}
	}
}

func TestSplitDefaults(t *testing.T) {
	got, err := Fragmenter{}.Split("just a few words")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one fragment under the default window, got %d", len(got))
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want string
	}{
		{"empty", nil, ""},
		{"single", []string{"hello  world"}, "hello world"},
		{"newlines and tabs", []string{"a\tb", "  c\nd  "}, "a b c d"},
		{"blank paragraphs", []string{"", "x", ""}, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
