package index

import (
	"errors"
	"fmt"
	"strings"
)

// Default window and overlap sizes, in words.
const (
	DefaultWindow  = 700
	DefaultOverlap = 300
)

// ErrOverlap is returned when the configured overlap is not smaller than
// the window, which would make the fragmenter never advance.
var ErrOverlap = errors.New("overlap must be smaller than window")

// Fragmenter splits normalized text into consecutive word windows that
// share Overlap words with their predecessor. Every word of the input
// appears in at least one fragment; the last fragment may be shorter
// than Window.
type Fragmenter struct {
	Window  int // words per fragment; DefaultWindow if <= 0
	Overlap int // words shared by consecutive fragments
}

// Split fragments text into overlapping windows. Text with at most
// Window words yields a single fragment; empty text yields none.
func (f Fragmenter) Split(text string) ([]string, error) {
	window := f.Window
	if window <= 0 {
		window = DefaultWindow
	}
	overlap := f.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= window {
		return nil, fmt.Errorf("window %d, overlap %d: %w", window, overlap, ErrOverlap)
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := window - overlap
	var fragments []string
	for start := 0; start < len(words); start += step {
		end := start + window
		if end > len(words) {
			end = len(words)
		}
		fragments = append(fragments, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return fragments, nil
}
