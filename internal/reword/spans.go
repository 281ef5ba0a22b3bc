package reword

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// DefaultTag delimits the spans rewritten in ModeSpans.
const DefaultTag = "p"

// Span locates one <tag>...</tag> pair. [Start, End) covers the delimiters;
// [InnerStart, InnerEnd) is the interior.
type Span struct {
	Start, End           int
	InnerStart, InnerEnd int
}

var spanRes = map[string]*regexp.Regexp{
	DefaultTag: spanRegexp(DefaultTag),
}

func spanRegexp(tag string) *regexp.Regexp {
	q := regexp.QuoteMeta(tag)
	return regexp.MustCompile(`(?s)<` + q + `>(.*?)</` + q + `>`)
}

func regexpFor(tag string) *regexp.Regexp {
	if re, ok := spanRes[tag]; ok {
		return re
	}
	return spanRegexp(tag)
}

// FindSpans returns the non-overlapping spans of tag in document order.
// Matching is non-greedy and crosses line breaks; attributes on the opening
// tag are not matched.
func FindSpans(text, tag string) []Span {
	if tag == "" {
		tag = DefaultTag
	}
	locs := regexpFor(tag).FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	spans := make([]Span, len(locs))
	for i, l := range locs {
		spans[i] = Span{Start: l[0], End: l[1], InnerStart: l[2], InnerEnd: l[3]}
	}
	return spans
}

// stripTags drops markup from an interior and keeps the raw bytes of its
// text, entities included, then trims surrounding whitespace.
func stripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.TrimSpace(s)
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Raw())
		}
	}
}
