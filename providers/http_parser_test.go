package providers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"http-transcript/shared"
)

var parserResponses = map[string]string{
	"content-length": "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 17\r\nDate: Mon, 01 Jan 2024 00:00:00 GMT\r\n\r\n{\"hello\":\"world\"}",
	"chunked":        "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nTransfer-Encoding: chunked\r\nConnection: close\r\n\r\n9\r\nchunk 1, \r\n7\r\nchunk 2\r\n0\r\n\r\n",
	"chunk-ext":      "HTTP/1.1 201 Created\r\nTransfer-Encoding: chunked\r\n\r\n4;name=value\r\nWiki\r\n5\r\npedia\r\nE\r\n in\r\n\r\nchunks.\r\n0\r\nX-Trailer: yes\r\n\r\n",
	"empty":          "HTTP/1.1 204 No Content\r\nContent-Length: 0\r\n\r\n",
	"until-close":    "HTTP/1.0 200 OK\r\nServer: test\r\n\r\nstreamed until the connection closes",
}

func parseInPieces(t *testing.T, data string, size int) *HTTPParsedResponse {
	t.Helper()
	parser := NewHTTPResponseParser()
	for i := 0; i < len(data); i += size {
		end := min(i+size, len(data))
		if err := parser.OnChunk([]byte(data[i:end])); err != nil {
			t.Fatalf("OnChunk(%d:%d) failed: %v", i, end, err)
		}
	}
	if err := parser.StreamEnded(); err != nil {
		t.Fatalf("StreamEnded failed: %v", err)
	}
	return parser.Response
}

func TestParserFragmentationInvariance(t *testing.T) {
	useTestLogger(t)

	for name, data := range parserResponses {
		t.Run(name, func(t *testing.T) {
			whole, err := ParseHTTPResponse([]byte(data))
			if err != nil {
				t.Fatalf("ParseHTTPResponse failed: %v", err)
			}

			for _, size := range []int{1, 2, 3, 5, 7, 16, 64} {
				pieces := parseInPieces(t, data, size)
				if !reflect.DeepEqual(whole, pieces) {
					t.Errorf("piece size %d: parsed response differs\nwhole:  %+v\npieces: %+v", size, whole, pieces)
				}
			}
		})
	}
}

func TestParserContentLength(t *testing.T) {
	data := parserResponses["content-length"]
	res, err := ParseHTTPResponse([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.StatusCode != 200 || res.StatusMessage != "OK" {
		t.Errorf("expected 200 OK, got %d %q", res.StatusCode, res.StatusMessage)
	}
	if got := string(res.Body); got != `{"hello":"world"}` {
		t.Errorf("unexpected body %q", got)
	}
	if res.StatusLineEndIndex != len("HTTP/1.1 200 OK") {
		t.Errorf("expected status line end %d, got %d", len("HTTP/1.1 200 OK"), res.StatusLineEndIndex)
	}
	if got := data[res.HeaderEndIdx : res.HeaderEndIdx+4]; got != "\r\n\r\n" {
		t.Errorf("HeaderEndIdx does not point at the separator: %q", got)
	}
	if res.BodyStartIndex != res.HeaderEndIdx+4 {
		t.Errorf("expected body to start after separator, got %d", res.BodyStartIndex)
	}
	if res.Headers["content-type"] != "application/json" {
		t.Errorf("expected lower-cased content-type header, got %v", res.Headers)
	}

	dateSpan, ok := res.HeaderSpans["date"]
	if !ok {
		t.Fatal("expected a span for the date header")
	}
	if got := data[dateSpan.From:dateSpan.To]; got != "Date: Mon, 01 Jan 2024 00:00:00 GMT" {
		t.Errorf("date span covers %q", got)
	}
	if !res.HeadersComplete || !res.Complete {
		t.Errorf("expected response to be complete")
	}
}

func TestParserChunked(t *testing.T) {
	data := parserResponses["chunked"]
	res, err := ParseHTTPResponse([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := string(res.Body); got != "chunk 1, chunk 2" {
		t.Errorf("expected de-chunked body, got %q", got)
	}
	if len(res.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(res.Chunks))
	}
	for i, want := range []string{"chunk 1, ", "chunk 2"} {
		ch := res.Chunks[i]
		if got := data[ch.From:ch.To]; got != want {
			t.Errorf("chunk %d covers %q, want %q", i, got, want)
		}
	}
}

func TestParserChunkExtensionsAndTrailers(t *testing.T) {
	res, err := ParseHTTPResponse([]byte(parserResponses["chunk-ext"]))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(res.Body); got != "Wikipedia in\r\n\r\nchunks." {
		t.Errorf("unexpected body %q", got)
	}
	if res.StatusCode != 201 {
		t.Errorf("expected 201, got %d", res.StatusCode)
	}
}

func TestParserFinalChunkWithoutTrailingCRLF(t *testing.T) {
	data := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n9\r\nchunk 1, \r\n7\r\nchunk 2\r\n0\r\n"
	res, err := ParseHTTPResponse([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Complete {
		t.Error("expected response to be complete")
	}
	if got := string(res.Body); got != "chunk 1, chunk 2" {
		t.Errorf("unexpected body %q", got)
	}
}

func TestParserContentLengthZero(t *testing.T) {
	parser := NewHTTPResponseParser()
	if err := parser.OnChunk([]byte(parserResponses["empty"])); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parser.State() != StateComplete {
		t.Fatalf("expected parser to complete without StreamEnded, state %s", parser.State())
	}
	if len(parser.Response.Body) != 0 {
		t.Errorf("expected empty body, got %q", parser.Response.Body)
	}
	if err := parser.StreamEnded(); err != nil {
		t.Errorf("StreamEnded failed: %v", err)
	}
}

func TestParserOffsetTracksConsumedBytes(t *testing.T) {
	parser := NewHTTPResponseParser()
	steps := []struct {
		data   string
		offset int
		state  ParserState
	}{
		{data: "HTTP/1.1 200", offset: 0, state: StateReadingStatusLine},
		{data: " OK\r\nContent-Len", offset: 17, state: StateReadingHeaders},
		{data: "gth: 3\r\n\r\nab", offset: 40, state: StateBodyByLength},
		{data: "c", offset: 41, state: StateComplete},
	}

	for _, step := range steps {
		if err := parser.OnChunk([]byte(step.data)); err != nil {
			t.Fatalf("unexpected error after %q: %v", step.data, err)
		}
		if parser.Offset() != step.offset || parser.State() != step.state {
			t.Errorf("after %q: expected offset %d in %s, got %d in %s", step.data, step.offset, step.state, parser.Offset(), parser.State())
		}
	}
}

func TestParserUntilCloseCompletesOnlyOnStreamEnd(t *testing.T) {
	parser := NewHTTPResponseParser()
	if err := parser.OnChunk([]byte(parserResponses["until-close"])); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parser.State() != StateBodyUntilClose || parser.Response.Complete {
		t.Fatalf("expected body-until-close, got state %s", parser.State())
	}
	if err := parser.StreamEnded(); err != nil {
		t.Fatalf("StreamEnded failed: %v", err)
	}
	if !parser.Response.Complete {
		t.Error("expected response to be complete after StreamEnded")
	}
	if got := string(parser.Response.Body); got != "streamed until the connection closes" {
		t.Errorf("unexpected body %q", got)
	}
}

func TestParserSkipsHeaderWithoutSeparator(t *testing.T) {
	res, err := ParseHTTPResponse([]byte("HTTP/1.1 200 OK\r\nbroken-header\r\nContent-Length: 2\r\n\r\nok"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := res.Headers["broken-header"]; ok {
		t.Error("header without separator should be skipped")
	}
	if string(res.Body) != "ok" {
		t.Errorf("unexpected body %q", res.Body)
	}
}

func TestParserErrors(t *testing.T) {
	useTestLogger(t)

	tests := []struct {
		name    string
		chunks  []string
		end     bool
		wantErr error
	}{
		{
			name:    "invalid status line",
			chunks:  []string{"HTTP/x 200 OK\r\n"},
			wantErr: ErrMalformedTranscript,
		},
		{
			name:    "non numeric content-length",
			chunks:  []string{"HTTP/1.1 200 OK\r\nContent-Length: abc\r\n\r\n"},
			wantErr: ErrMalformedTranscript,
		},
		{
			name:    "negative content-length",
			chunks:  []string{"HTTP/1.1 200 OK\r\nContent-Length: -5\r\n\r\n"},
			wantErr: ErrMalformedTranscript,
		},
		{
			name:    "invalid chunk size",
			chunks:  []string{"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n"},
			wantErr: ErrMalformedTranscript,
		},
		{
			name:    "hex prefixed chunk size",
			chunks:  []string{"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n0x5\r\n"},
			wantErr: ErrMalformedTranscript,
		},
		{
			name:    "chunk missing trailing CRLF",
			chunks:  []string{"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabcXY"},
			wantErr: ErrMalformedTranscript,
		},
		{
			name:    "data after completion",
			chunks:  []string{"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok", "more"},
			wantErr: ErrMalformedTranscript,
		},
		{
			name:    "stream ends in headers",
			chunks:  []string{"HTTP/1.1 200 OK\r\nContent-"},
			end:     true,
			wantErr: ErrIncompleteResponse,
		},
		{
			name:    "stream ends before status line",
			chunks:  []string{},
			end:     true,
			wantErr: ErrIncompleteResponse,
		},
		{
			name:    "stream ends with body bytes owed",
			chunks:  []string{"HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nshort"},
			end:     true,
			wantErr: ErrIncompleteResponse,
		},
		{
			name:    "stream ends without final chunk",
			chunks:  []string{"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n"},
			end:     true,
			wantErr: ErrIncompleteResponse,
		},
		{
			name:    "stream ends with unconsumed bytes",
			chunks:  []string{"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nokextra"},
			end:     true,
			wantErr: ErrIncompleteResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewHTTPResponseParser()
			var err error
			for _, c := range tt.chunks {
				if err = parser.OnChunk([]byte(c)); err != nil {
					break
				}
			}
			if err == nil && tt.end {
				err = parser.StreamEnded()
			}
			if err == nil {
				t.Fatalf("expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParserChunkSpansAreAbsolute(t *testing.T) {
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n")
	parts := []string{`{"name":"John",`, `"age":30,`, `"house":"some`, `where"}`}
	for _, p := range parts {
		fmt.Fprintf(&b, "%x\r\n%s\r\n", len(p), p)
	}
	b.WriteString("0\r\n\r\n")
	data := b.String()

	res := parseInPieces(t, data, 4)
	if len(res.Chunks) != len(parts) {
		t.Fatalf("expected %d chunks, got %d", len(parts), len(res.Chunks))
	}
	for i, p := range parts {
		if got := data[res.Chunks[i].From:res.Chunks[i].To]; got != p {
			t.Errorf("chunk %d covers %q, want %q", i, got, p)
		}
	}
	if got := string(res.Body); got != strings.Join(parts, "") {
		t.Errorf("unexpected body %q", got)
	}
	if err := (shared.ByteSpan{From: res.BodyStartIndex, To: len(data)}).Validate(len(data)); err != nil {
		t.Errorf("body start out of range: %v", err)
	}
}
