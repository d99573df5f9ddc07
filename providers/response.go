package providers

import (
	"encoding/base64"
	"fmt"

	"http-transcript/shared"

	"go.uber.org/zap"
)

// redactionItem is one revealed span plus the chunk framing inside it that
// must stay hidden
type redactionItem struct {
	Reveal     RedactedOrHashedArraySlice
	Redactions []shared.ByteSpan
}

// bodyMapper converts body offsets to offsets in the full response, skipping
// chunk framing when the body was chunked
type bodyMapper struct {
	bodyStartIdx int
	chunks       []shared.ByteSpan
}

// startPos maps a body offset that begins a range: it lands in the chunk
// containing the byte at pos.
func (m bodyMapper) startPos(pos int) (int, error) {
	if len(m.chunks) == 0 {
		return m.bodyStartIdx + pos, nil
	}
	chunkBodyStart := 0
	for _, ch := range m.chunks {
		if (shared.ByteSpan{From: chunkBodyStart, To: chunkBodyStart + ch.Len()}).Contains(pos) {
			return ch.From + pos - chunkBodyStart, nil
		}
		chunkBodyStart += ch.Len()
	}
	if pos == chunkBodyStart {
		return m.chunks[len(m.chunks)-1].To, nil
	}
	return 0, fmt.Errorf("body position %d out of range", pos)
}

// endPos maps a body offset that ends a range: it lands right after the last
// byte of the chunk it closes.
func (m bodyMapper) endPos(pos int) (int, error) {
	if len(m.chunks) == 0 {
		return m.bodyStartIdx + pos, nil
	}
	if pos == 0 {
		return m.chunks[0].From, nil
	}
	chunkBodyStart := 0
	for _, ch := range m.chunks {
		if pos > chunkBodyStart && pos <= chunkBodyStart+ch.Len() {
			return ch.From + pos - chunkBodyStart, nil
		}
		chunkBodyStart += ch.Len()
	}
	return 0, fmt.Errorf("body position %d out of range", pos)
}

// chunkFramingRedactions returns the framing between chunk bodies that falls
// inside [from, to)
func (m bodyMapper) chunkFramingRedactions(from, to int) []shared.ByteSpan {
	var res []shared.ByteSpan
	revealed := shared.ByteSpan{From: from, To: to}
	for i := 1; i < len(m.chunks); i++ {
		framing := shared.ByteSpan{From: m.chunks[i-1].To, To: m.chunks[i].From}
		if framing.Overlaps(revealed) {
			res = append(res, framing)
		}
	}
	return res
}

// reveal maps a body window to a revealed span of the response
func (m bodyMapper) reveal(w window, hash *string) (redactionItem, bool, error) {
	if w.end <= w.start {
		return redactionItem{}, false, nil
	}
	from, err := m.startPos(w.start)
	if err != nil {
		return redactionItem{}, false, err
	}
	to, err := m.endPos(w.end)
	if err != nil {
		return redactionItem{}, false, err
	}
	return redactionItem{
		Reveal:     RedactedOrHashedArraySlice{From: from, To: to, Hash: hash},
		Redactions: m.chunkFramingRedactions(from, to),
	}, true, nil
}

// processRedactionRequest resolves one redaction against the body and returns
// the spans it reveals
func processRedactionRequest(body []byte, rs ResponseRedaction, mapper bodyMapper) ([]redactionItem, error) {
	chain, err := selectorsFor(rs)
	if err != nil {
		return nil, err
	}

	// hashed regexes need their capture groups, so they are applied here
	// rather than as the last stage of the chain
	hashedRegex := rs.Hash != nil && chain[len(chain)-1].Kind == SelectorRegex
	if hashedRegex {
		chain = chain[:len(chain)-1]
	}

	windows, err := resolveSelectorChain(body, chain)
	if err != nil {
		return nil, err
	}

	var items []redactionItem
	for _, w := range windows {
		var proc []redactionItem
		switch {
		case hashedRegex:
			proc, err = applyHashedRegexWindow(body, rs, w, mapper)
		case rs.Hash != nil:
			proc, err = hashedReveal(w, rs.Hash, mapper)
		default:
			var item redactionItem
			var ok bool
			item, ok, err = mapper.reveal(w, nil)
			if ok {
				proc = []redactionItem{item}
			}
		}
		if err != nil {
			return nil, err
		}
		items = append(items, proc...)
	}
	return items, nil
}

// applyHashedRegexWindow applies a regex with exactly one named capture group.
// The group is revealed through its hash; the rest of the match in clear.
func applyHashedRegexWindow(body []byte, rs ResponseRedaction, w window, mapper bodyMapper) ([]redactionItem, error) {
	re, err := makeRegex(rs.Regex)
	if err != nil {
		return nil, fmt.Errorf("invalid regexp %q: %w", rs.Regex, err)
	}

	segment := body[w.start:w.end]
	smi := re.FindSubmatchIndex(segment)
	if smi == nil {
		logger().Debug("Hashed regex did not match window", zap.String("component", "Planner"), zap.String("operation", "applyHashedRegexWindow"), zap.String("window_b64", truncateData(base64.StdEncoding.EncodeToString(segment))))
		return nil, newSelectorNotFoundError(SelectorRegex, rs.Regex, nil)
	}

	totalNamed := 0
	grpFromRel, grpToRel := -1, -1
	for gi, name := range re.SubexpNames() {
		if gi == 0 || name == "" {
			continue
		}
		totalNamed++
		grpFromRel, grpToRel = smi[2*gi], smi[2*gi+1]
	}
	if totalNamed != 1 || grpFromRel < 0 {
		return nil, fmt.Errorf("exactly one named capture group is needed per hashed redaction")
	}

	fullFrom := w.start + smi[0]
	fullTo := w.start + smi[1]
	grpFrom := w.start + grpFromRel
	grpTo := w.start + grpToRel

	var items []redactionItem
	add := func(win window, hash *string) error {
		item, ok, err := mapper.reveal(win, hash)
		if err != nil || !ok {
			return err
		}
		items = append(items, item)
		return nil
	}

	if err := add(window{start: fullFrom, end: grpFrom}, nil); err != nil {
		return nil, err
	}
	grp, err := hashedReveal(window{start: grpFrom, end: grpTo}, rs.Hash, mapper)
	if err != nil {
		return nil, err
	}
	items = append(items, grp...)
	if err := add(window{start: grpTo, end: fullTo}, nil); err != nil {
		return nil, err
	}
	return items, nil
}

// hashedReveal reveals w through its hash. A hashed span cannot straddle chunks.
func hashedReveal(w window, hash *string, mapper bodyMapper) ([]redactionItem, error) {
	item, ok, err := mapper.reveal(w, hash)
	if err != nil || !ok {
		return nil, err
	}
	if len(item.Redactions) > 0 {
		return nil, fmt.Errorf("hash redactions cannot be performed if the redacted string is split between 2 or more HTTP chunks")
	}
	return []redactionItem{item}, nil
}
