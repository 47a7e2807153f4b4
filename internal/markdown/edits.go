package markdown

import (
	"errors"
	"fmt"
	"slices"
)

// Edit represents a targeted byte-range replacement.
//
// Start and End are byte offsets into the original source, with End exclusive.
// Replacement replaces source[Start:End].
type Edit struct {
	Start       int
	End         int
	Replacement []byte
}

// ApplyEdits applies non-overlapping byte-range edits to source.
//
// Offsets refer to the original source. Edits are applied from the end of the
// input toward the beginning so earlier edits do not shift later offsets.
func ApplyEdits(source []byte, edits []Edit) ([]byte, error) {
	if len(edits) == 0 {
		return source, nil
	}

	sorted := slices.Clone(edits)
	slices.SortFunc(sorted, func(a, b Edit) int {
		if a.Start != b.Start {
			return b.Start - a.Start
		}
		return b.End - a.End
	})

	for i, e := range sorted {
		switch {
		case e.Start < 0 || e.End < 0:
			return nil, fmt.Errorf("invalid edit[%d]: negative range", i)
		case e.End < e.Start:
			return nil, fmt.Errorf("invalid edit[%d]: end before start", i)
		case e.End > len(source):
			return nil, fmt.Errorf("invalid edit[%d]: range out of bounds", i)
		case i > 0 && e.End > sorted[i-1].Start:
			return nil, errors.New("invalid edits: overlapping ranges")
		}
	}

	out := slices.Clone(source)
	for _, e := range sorted {
		out = slices.Concat(out[:e.Start], e.Replacement, out[e.End:])
	}
	return out, nil
}
