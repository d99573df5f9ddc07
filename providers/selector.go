package providers

import (
	"fmt"
	"regexp"
)

// SelectorKind tags the locator a Selector uses
type SelectorKind int

const (
	SelectorHTML SelectorKind = iota + 1
	SelectorJSON
	SelectorRegex
)

func (k SelectorKind) String() string {
	switch k {
	case SelectorHTML:
		return "XPath"
	case SelectorJSON:
		return "JSONPath"
	case SelectorRegex:
		return "regex"
	default:
		return fmt.Sprintf("SelectorKind(%d)", int(k))
	}
}

// Selector locates evidence inside a response body. ContentsOnly applies to
// HTML selectors only and narrows each match to the element's inner content.
type Selector struct {
	Kind         SelectorKind
	Expr         string
	ContentsOnly bool
}

// window is a half-open byte range in body coordinates
type window struct{ start, end int }

// selectorsFor expands a redaction into its chain: HTML narrows first, JSON
// resolves inside each HTML window, regex runs last.
func selectorsFor(rs ResponseRedaction) ([]Selector, error) {
	var chain []Selector
	if rs.XPath != "" {
		chain = append(chain, Selector{Kind: SelectorHTML, Expr: rs.XPath, ContentsOnly: rs.JSONPath != ""})
	}
	if rs.JSONPath != "" {
		chain = append(chain, Selector{Kind: SelectorJSON, Expr: rs.JSONPath})
	}
	if rs.Regex != "" {
		chain = append(chain, Selector{Kind: SelectorRegex, Expr: rs.Regex})
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("expected either xPath, jsonPath or regex for redaction")
	}
	return chain, nil
}

// locate returns the ranges matched by the selector, relative to segment
func (s Selector) locate(segment []byte) ([]window, error) {
	switch s.Kind {
	case SelectorHTML:
		return extractHTMLElementsIndexes(string(segment), s.Expr, s.ContentsOnly)
	case SelectorJSON:
		return extractJSONValueIndexes(segment, s.Expr)
	case SelectorRegex:
		re, err := makeRegex(s.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid regexp %q: %w", s.Expr, err)
		}
		loc := re.FindIndex(segment)
		if loc == nil {
			return nil, newSelectorNotFoundError(SelectorRegex, s.Expr, nil)
		}
		return []window{{start: loc[0], end: loc[1]}}, nil
	default:
		return nil, fmt.Errorf("unknown selector kind %v", s.Kind)
	}
}

// resolveSelectorChain runs each selector over every window produced by the
// previous one. Returned windows are in body coordinates.
func resolveSelectorChain(body []byte, chain []Selector) ([]window, error) {
	windows := []window{{start: 0, end: len(body)}}
	for _, sel := range chain {
		var next []window
		for _, w := range windows {
			found, err := sel.locate(body[w.start:w.end])
			if err != nil {
				return nil, err
			}
			for _, f := range found {
				if f.start < 0 || f.end > w.end-w.start || f.start > f.end {
					return nil, fmt.Errorf("%s %q produced out-of-range match [%d,%d)", sel.Kind, sel.Expr, f.start, f.end)
				}
				next = append(next, window{start: w.start + f.start, end: w.start + f.end})
			}
		}
		windows = next
	}
	return windows, nil
}

var jsNamedGroupPattern = regexp.MustCompile(`\(\?<([A-Za-z][A-Za-z0-9_]*)>`)

// makeRegex compiles a pattern as dot-all and case-insensitive, accepting
// (?<name>...) groups.
func makeRegex(str string) (*regexp.Regexp, error) {
	return regexp.Compile("(?si)" + jsNamedGroupPattern.ReplaceAllString(str, `(?P<$1>`))
}
