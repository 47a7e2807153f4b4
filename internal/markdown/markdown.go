// Package markdown locates image references in markdown bodies and applies
// minimal byte-range edits to them without re-rendering the document.
package markdown

import (
	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Range is a half-open byte range into a markdown body.
type Range struct {
	Start int
	End   int
}

// Contains reports whether offset lies inside the range.
func (r Range) Contains(offset int) bool {
	return offset >= r.Start && offset < r.End
}

func parse(body []byte) gmast.Node {
	return goldmark.New().Parser().Parse(text.NewReader(body))
}

// CodeRanges returns the byte ranges covered by fenced code blocks, indented
// code blocks and inline code spans, in document order.
func CodeRanges(body []byte) []Range {
	return codeRanges(parse(body))
}

func codeRanges(root gmast.Node) []Range {
	var ranges []Range
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.FencedCodeBlock, *gmast.CodeBlock:
			lines := node.Lines()
			if lines.Len() > 0 {
				ranges = append(ranges, Range{
					Start: lines.At(0).Start,
					End:   lines.At(lines.Len() - 1).Stop,
				})
			}
			return gmast.WalkSkipChildren, nil
		case *gmast.CodeSpan:
			if r, ok := childTextRange(node); ok {
				ranges = append(ranges, r)
			}
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})
	return ranges
}

func childTextRange(n gmast.Node) (Range, bool) {
	r := Range{Start: -1}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		t, ok := c.(*gmast.Text)
		if !ok {
			continue
		}
		if r.Start < 0 || t.Segment.Start < r.Start {
			r.Start = t.Segment.Start
		}
		if t.Segment.Stop > r.End {
			r.End = t.Segment.Stop
		}
	}
	return r, r.Start >= 0
}

func inAny(ranges []Range, offset int) bool {
	for _, r := range ranges {
		if r.Contains(offset) {
			return true
		}
	}
	return false
}
