package markdown

import (
	"bytes"
	"regexp"
	"sort"
	"strings"

	gmast "github.com/yuin/goldmark/ast"
	"golang.org/x/net/html"
)

// RefKind distinguishes the syntax an image reference was written in.
type RefKind string

const (
	RefKindImage     RefKind = "image"
	RefKindReference RefKind = "reference" // destination of a link reference definition used by an image
	RefKindHTMLImage RefKind = "html_image"
)

// ImageRef is one image reference found in a body. Start and End delimit the
// destination text that a rewrite replaces, including any angle brackets.
type ImageRef struct {
	Kind        RefKind
	Destination string
	Start       int
	End         int
}

var (
	srcPattern        = regexp.MustCompile(`(?i)\ssrc\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'=<>` + "`" + `]+))`)
	definitionPattern = regexp.MustCompile(`(?m)^ {0,3}\[(?:[^\[\]\\\n]|\\.)+\]:[ \t]*\n?[ \t]*(<[^<>\n]*>|\S+)`)
)

// ImageRefs returns every image reference in body outside code regions,
// ordered by position. A reference definition shared by several images is
// reported once.
func ImageRefs(body []byte) []ImageRef {
	root := parse(body)
	code := codeRanges(root)
	defs := definitions(body, code)

	var refs []ImageRef
	seen := map[int]struct{}{}
	cursor := 0
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		img, ok := n.(*gmast.Image)
		if !ok || !entering {
			return gmast.WalkContinue, nil
		}
		ref, next, found := locateImage(body, img, cursor, defs)
		cursor = next
		if found {
			if _, dup := seen[ref.Start]; !dup {
				seen[ref.Start] = struct{}{}
				refs = append(refs, ref)
			}
		}
		return gmast.WalkSkipChildren, nil
	})
	refs = append(refs, htmlImageRefs(body, code)...)

	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Start < refs[j].Start })
	return refs
}

// locateImage maps a parsed image back to the byte range of its destination.
// Images arrive in document order, so the search starts at from; the returned
// offset is where the next search starts.
func locateImage(body []byte, img *gmast.Image, from int, defs []ImageRef) (ImageRef, int, bool) {
	closing := -1
	if stop := lastTextStop(img); stop >= 0 {
		closing = indexFrom(body, []byte("]"), max(from, stop))
	} else if i := indexFrom(body, []byte("![]"), from); i >= 0 {
		closing = i + 2
	}
	if closing < 0 {
		return ImageRef{}, from, false
	}
	after := closing + 1
	dest := img.Destination
	if len(dest) == 0 {
		return ImageRef{}, after, false
	}

	if after < len(body) && body[after] == '(' {
		start := skipSpace(body, after+1)
		bracketed := start < len(body) && body[start] == '<'
		destStart := start
		if bracketed {
			destStart++
		}
		if !bytes.HasPrefix(body[destStart:], dest) {
			return ImageRef{}, after, false
		}
		end := destStart + len(dest)
		if bracketed {
			end++
		}
		return ImageRef{Kind: RefKindImage, Destination: string(dest), Start: start, End: end}, end, true
	}

	for _, d := range defs {
		if d.Destination == string(dest) {
			return d, after, true
		}
	}
	return ImageRef{}, after, false
}

// definitions returns the destinations of link reference definitions outside
// code, in document order.
func definitions(body []byte, code []Range) []ImageRef {
	var defs []ImageRef
	for _, m := range definitionPattern.FindAllSubmatchIndex(body, -1) {
		if inAny(code, m[0]) {
			continue
		}
		start, end := m[2], m[3]
		dest := body[start:end]
		if dest[0] == '<' {
			dest = dest[1 : len(dest)-1]
		}
		if len(dest) == 0 {
			continue
		}
		defs = append(defs, ImageRef{
			Kind:        RefKindReference,
			Destination: string(dest),
			Start:       start,
			End:         end,
		})
	}
	return defs
}

// lastTextStop is the end offset of the last alt text segment, or -1 when the
// alt text is empty.
func lastTextStop(img *gmast.Image) int {
	stop := -1
	_ = gmast.Walk(img, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if t, ok := n.(*gmast.Text); ok && entering && t.Segment.Stop > stop {
			stop = t.Segment.Stop
		}
		return gmast.WalkContinue, nil
	})
	return stop
}

func indexFrom(body, sep []byte, from int) int {
	if from > len(body) {
		return -1
	}
	i := bytes.Index(body[from:], sep)
	if i < 0 {
		return -1
	}
	return from + i
}

func skipSpace(body []byte, i int) int {
	for i < len(body) && (body[i] == ' ' || body[i] == '\t' || body[i] == '\n' || body[i] == '\r') {
		i++
	}
	return i
}

// htmlImageRefs tokenizes body as HTML and reports the src attribute of each
// img tag. Token offsets are tracked by summing raw token lengths.
func htmlImageRefs(body []byte, code []Range) []ImageRef {
	if !bytes.Contains(bytes.ToLower(body), []byte("<img")) {
		return nil
	}

	var refs []ImageRef
	z := html.NewTokenizer(bytes.NewReader(body))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return refs
		}
		raw := z.Raw()
		tokenStart := offset
		offset += len(raw)

		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, _ := z.TagName()
		if !strings.EqualFold(string(name), "img") || inAny(code, tokenStart) {
			continue
		}
		m := srcPattern.FindSubmatchIndex(raw)
		if m == nil {
			continue
		}
		for g := 1; g <= 3; g++ {
			if m[2*g] < 0 {
				continue
			}
			start, end := tokenStart+m[2*g], tokenStart+m[2*g+1]
			refs = append(refs, ImageRef{
				Kind:        RefKindHTMLImage,
				Destination: html.UnescapeString(string(body[start:end])),
				Start:       start,
				End:         end,
			})
			break
		}
	}
}
