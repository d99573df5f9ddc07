package providers

import (
	"fmt"
	"strconv"
	"strings"

	gojson "github.com/coreos/go-json"
	jp "github.com/reclaimprotocol/jsonpathplus-go"
	"go.uber.org/zap"
)

// extractJSONValueIndexes locates JSONPath matches by byte offset:
// 1) Evaluate JSONPath using jsonpathplus-go to get the matched paths
// 2) Parse JSON into a Node tree with byte offsets (coreos/go-json)
// 3) Traverse the Node tree by path segments and return exact byte ranges
//
// Object members are returned including their key, array elements as the
// bare value.
func extractJSONValueIndexes(doc []byte, jsonPathExpr string) ([]window, error) {
	results, err := jp.Query(jsonPathExpr, string(doc))
	if err != nil {
		logger().Debug("JSONPath query failed", zap.String("component", "Selector"), zap.String("operation", "extractJSONValueIndexes"), zap.String("json_path", jsonPathExpr), zap.Error(err))
		return nil, newSelectorNotFoundError(SelectorJSON, jsonPathExpr, err)
	}
	if len(results) == 0 {
		return nil, newSelectorNotFoundError(SelectorJSON, jsonPathExpr, nil)
	}

	var root gojson.Node
	if err := gojson.Unmarshal(doc, &root); err != nil {
		return nil, newSelectorNotFoundError(SelectorJSON, jsonPathExpr, fmt.Errorf("failed to parse JSON for offsets: %w", err))
	}

	ranges := make([]window, 0, len(results))
	for _, r := range results {
		segments := jsonPathToSegments(r.Path)
		n, isMember, err := findNodeBySegments(&root, segments)
		if err != nil {
			return nil, newSelectorNotFoundError(SelectorJSON, jsonPathExpr, fmt.Errorf("failed to resolve path %q: %w", r.Path, err))
		}

		// Node.End is inclusive; composite Start sits one past the opening bracket
		start := n.Start
		end := n.End + 1
		switch n.Value.(type) {
		case map[string]gojson.Node, []gojson.Node:
			start--
		}
		if isMember {
			start = n.KeyStart
		}
		if start < 0 || end > len(doc) || start > end {
			return nil, fmt.Errorf("invalid range computed for path %q: [%d,%d)", r.Path, start, end)
		}
		ranges = append(ranges, window{start: start, end: end})
	}
	return ranges, nil
}

// jsonPathToSegments converts a JSONPath like $.a[1].b or a JSON pointer like
// /a/1/b to segments ["a","1","b"].
func jsonPathToSegments(path string) []string {
	if strings.HasPrefix(path, "/") {
		parts := strings.Split(path[1:], "/")
		for i, part := range parts {
			parts[i] = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		}
		return parts
	}

	p := strings.TrimPrefix(path, "$")
	p = strings.TrimPrefix(p, ".")
	if p == "" {
		return nil
	}
	segments := make([]string, 0)
	cur := strings.Builder{}
	inBracket := false
	var quote rune
	for _, r := range p {
		if quote != 0 {
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
			continue
		}
		switch r {
		case '\'', '"':
			if inBracket {
				quote = r
				continue
			}
		case '.':
			if !inBracket {
				if cur.Len() > 0 {
					segments = append(segments, cur.String())
					cur.Reset()
				}
				continue
			}
		case '[':
			if cur.Len() > 0 {
				segments = append(segments, cur.String())
				cur.Reset()
			}
			inBracket = true
			continue
		case ']':
			if inBracket {
				segments = append(segments, cur.String())
				cur.Reset()
				inBracket = false
				continue
			}
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		segments = append(segments, cur.String())
	}
	return segments
}

// findNodeBySegments walks a coreos/go-json Node tree following the provided
// segments. isMember reports whether the final node is an object member.
func findNodeBySegments(node *gojson.Node, segments []string) (found *gojson.Node, isMember bool, err error) {
	cur := node
	for i, seg := range segments {
		switch v := cur.Value.(type) {
		case map[string]gojson.Node:
			next, ok := v[seg]
			if !ok {
				return nil, false, fmt.Errorf("object key %q not found at segment %d", seg, i)
			}
			cur = &next
			isMember = true
		case []gojson.Node:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, false, fmt.Errorf("invalid array index %q at segment %d", seg, i)
			}
			if idx < 0 || idx >= len(v) {
				return nil, false, fmt.Errorf("array index %d out of bounds at segment %d", idx, i)
			}
			cur = &v[idx]
			isMember = false
		default:
			return nil, false, fmt.Errorf("cannot traverse into %T at segment %d", v, i)
		}
	}
	return cur, isMember, nil
}
