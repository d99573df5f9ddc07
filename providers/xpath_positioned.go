package providers

import (
	xp "github.com/reclaimprotocol/xpath-go"
	"go.uber.org/zap"
)

// extractHTMLElementsIndexes evaluates an XPath against the provided HTML string
// and returns byte ranges for each matched element. When contentsOnly
// is true, the range covers only the element's inner content if available.
func extractHTMLElementsIndexes(html string, xpathExpression string, contentsOnly bool) ([]window, error) {
	matches, err := xp.QueryWithOptions(xpathExpression, html, xp.Options{
		IncludeLocation: true,
		OutputFormat:    "nodes",
		ContentsOnly:    contentsOnly,
	})
	if err != nil {
		logger().Debug("XPath query failed", zap.String("component", "Selector"), zap.String("operation", "extractHTMLElementsIndexes"), zap.String("xpath", xpathExpression), zap.Error(err))
		return nil, newSelectorNotFoundError(SelectorHTML, xpathExpression, err)
	}
	if len(matches) == 0 {
		return nil, newSelectorNotFoundError(SelectorHTML, xpathExpression, nil)
	}

	out := make([]window, 0, len(matches))
	for _, m := range matches {
		out = append(out, window{start: m.StartLocation, end: m.EndLocation})
	}
	return out, nil
}
