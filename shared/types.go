package shared

import (
	"fmt"
	"sort"
)

// RedactionChar is the placeholder byte written over redacted positions
const RedactionChar byte = '*'

// ByteSpan is a half-open [From, To) range into a byte buffer
type ByteSpan struct {
	From int `json:"fromIndex"`
	To   int `json:"toIndex"`
}

// Len returns the number of bytes covered by the span
func (s ByteSpan) Len() int { return s.To - s.From }

// IsEmpty reports whether the span covers no bytes
func (s ByteSpan) IsEmpty() bool { return s.To <= s.From }

// Contains reports whether idx lies inside the span
func (s ByteSpan) Contains(idx int) bool { return idx >= s.From && idx < s.To }

// Overlaps reports whether two spans share at least one byte
func (s ByteSpan) Overlaps(o ByteSpan) bool { return s.From < o.To && o.From < s.To }

// Shift returns the span moved by delta bytes
func (s ByteSpan) Shift(delta int) ByteSpan { return ByteSpan{From: s.From + delta, To: s.To + delta} }

// Validate checks 0 <= From <= To <= bufLen
func (s ByteSpan) Validate(bufLen int) error {
	if s.From < 0 || s.From > s.To || s.To > bufLen {
		return fmt.Errorf("invalid span [%d,%d) for buffer of %d bytes", s.From, s.To, bufLen)
	}
	return nil
}

func (s ByteSpan) String() string { return fmt.Sprintf("[%d,%d)", s.From, s.To) }

// ConsolidateSpans merges consecutive or overlapping spans. The input is not modified.
func ConsolidateSpans(spans []ByteSpan) []ByteSpan {
	if len(spans) == 0 {
		return nil
	}

	sorted := make([]ByteSpan, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].From == sorted[j].From {
			return sorted[i].To < sorted[j].To
		}
		return sorted[i].From < sorted[j].From
	})

	consolidated := make([]ByteSpan, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if current.To >= next.From {
			current.To = max(current.To, next.To)
			continue
		}
		consolidated = append(consolidated, current)
		current = next
	}
	return append(consolidated, current)
}

// ApplyRedactions returns a copy of data with every span overwritten by RedactionChar.
// Spans falling outside the buffer are clamped.
func ApplyRedactions(data []byte, spans []ByteSpan) []byte {
	result := make([]byte, len(data))
	copy(result, data)

	for _, s := range spans {
		from := max(s.From, 0)
		to := min(s.To, len(result))
		for i := from; i < to; i++ {
			result[i] = RedactionChar
		}
	}
	return result
}

// RevealedBytes concatenates the bytes of data that fall outside every span.
// Spans must be sorted by To and non-overlapping.
func RevealedBytes(data []byte, spans []ByteSpan) []byte {
	out := make([]byte, 0, len(data))
	cursor := 0
	for _, s := range spans {
		if s.From > cursor {
			out = append(out, data[cursor:s.From]...)
		}
		cursor = max(cursor, s.To)
	}
	if cursor < len(data) {
		out = append(out, data[cursor:]...)
	}
	return out
}
