package shared

import (
	"reflect"
	"testing"
)

func TestConsolidateSpans(t *testing.T) {
	tests := []struct {
		name  string
		input []ByteSpan
		want  []ByteSpan
	}{
		{name: "empty", input: nil, want: nil},
		{name: "single", input: []ByteSpan{{From: 1, To: 3}}, want: []ByteSpan{{From: 1, To: 3}}},
		{
			name:  "touching spans merge",
			input: []ByteSpan{{From: 3, To: 5}, {From: 0, To: 3}},
			want:  []ByteSpan{{From: 0, To: 5}},
		},
		{
			name:  "overlapping and contained",
			input: []ByteSpan{{From: 0, To: 10}, {From: 2, To: 4}, {From: 8, To: 12}},
			want:  []ByteSpan{{From: 0, To: 12}},
		},
		{
			name:  "disjoint stay apart",
			input: []ByteSpan{{From: 6, To: 8}, {From: 0, To: 2}},
			want:  []ByteSpan{{From: 0, To: 2}, {From: 6, To: 8}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var before []ByteSpan
			before = append(before, tt.input...)

			got := ConsolidateSpans(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if !reflect.DeepEqual(before, tt.input) {
				t.Errorf("input was modified: %v", tt.input)
			}
		})
	}
}

func TestApplyRedactions(t *testing.T) {
	data := []byte("secret=abc; keep")
	got := ApplyRedactions(data, []ByteSpan{{From: 7, To: 10}, {From: 14, To: 40}})

	if string(got) != "secret=***; ke**" {
		t.Errorf("unexpected redaction %q", got)
	}
	if string(data) != "secret=abc; keep" {
		t.Errorf("input was modified: %q", data)
	}
}

func TestRevealedBytes(t *testing.T) {
	data := []byte("HTTP/1.1 200 OK\r\nX: y\r\n\r\nbody")
	spans := []ByteSpan{{From: 15, To: 21}, {From: 25, To: 27}}

	if got := string(RevealedBytes(data, spans)); got != "HTTP/1.1 200 OK\r\n\r\ndy" {
		t.Errorf("unexpected revealed bytes %q", got)
	}
	if got := string(RevealedBytes(data, nil)); got != string(data) {
		t.Errorf("no spans should reveal everything, got %q", got)
	}
}

func TestByteSpan(t *testing.T) {
	s := ByteSpan{From: 2, To: 5}

	if s.Len() != 3 || s.IsEmpty() {
		t.Errorf("unexpected length for %v", s)
	}
	if !s.Contains(2) || s.Contains(5) {
		t.Error("span must be half-open")
	}
	if !s.Overlaps(ByteSpan{From: 4, To: 9}) || s.Overlaps(ByteSpan{From: 5, To: 9}) {
		t.Error("unexpected overlap result")
	}
	if got := s.Shift(10); got != (ByteSpan{From: 12, To: 15}) {
		t.Errorf("unexpected shift %v", got)
	}
	if s.String() != "[2,5)" {
		t.Errorf("unexpected string %q", s.String())
	}
	if err := s.Validate(5); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := s.Validate(4); err == nil {
		t.Error("expected out of range error")
	}
	if err := (ByteSpan{From: 3, To: 1}).Validate(10); err == nil {
		t.Error("expected inverted span error")
	}
}
