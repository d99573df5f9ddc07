package providers

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"http-transcript/shared"

	"go.uber.org/zap"
)

// ParserState is the position of an HTTPResponseParser in the response grammar
type ParserState int

const (
	StateReadingStatusLine ParserState = iota
	StateReadingHeaders
	StateBodyByLength
	StateBodyByChunks
	StateChunkTrailers
	StateBodyUntilClose
	StateComplete
)

var parserStateNames = map[ParserState]string{
	StateReadingStatusLine: "reading_status_line",
	StateReadingHeaders:    "reading_headers",
	StateBodyByLength:      "body_by_length",
	StateBodyByChunks:      "body_by_chunks",
	StateChunkTrailers:     "chunk_trailers",
	StateBodyUntilClose:    "body_until_close",
	StateComplete:          "complete",
}

func (s ParserState) String() string {
	if name, ok := parserStateNames[s]; ok {
		return name
	}
	return "unknown"
}

var statusLineRegex = regexp.MustCompile(`^HTTP/\d\.\d (\d+)(?: (.*))?$`)

var crlf = []byte("\r\n")

// HTTPResponseParser is a streaming HTTP/1.1 response parser. It accepts the
// response in arbitrarily split pieces (one per TLS record, typically) and
// stamps every parsed element with its offset in the full response stream.
type HTTPResponseParser struct {
	// Response data being constructed
	Response *HTTPParsedResponse

	state              ParserState
	remainingBodyBytes int64  // bytes still owed for the current fixed body or chunk
	awaitingChunkCRLF  bool   // chunk data consumed, CRLF after it not yet
	remaining          []byte // buffered bytes not yet consumed
	currentByteIdx     int    // offset of remaining[0] in the complete response stream
}

// HTTPParsedResponse represents a parsed HTTP response with all metadata
type HTTPParsedResponse struct {
	StatusCode         int
	StatusMessage      string
	StatusLineEndIndex int // offset of the CRLF terminating the status line
	HeaderEndIdx       int // offset of the CRLFCRLF ending the header block
	BodyStartIndex     int
	Body               []byte
	Headers            map[string]string          // lower-cased key -> value
	HeaderSpans        map[string]shared.ByteSpan // lower-cased key -> header line, CRLF excluded
	Chunks             []shared.ByteSpan          // body bytes of each chunk, absolute offsets

	HeadersComplete bool
	Complete        bool
}

// NewHTTPResponseParser creates a new streaming HTTP response parser
func NewHTTPResponseParser() *HTTPResponseParser {
	return &HTTPResponseParser{
		Response: &HTTPParsedResponse{
			StatusLineEndIndex: -1,
			HeaderEndIdx:       -1,
			BodyStartIndex:     -1,
			Body:               []byte{},
			Headers:            make(map[string]string),
			HeaderSpans:        make(map[string]shared.ByteSpan),
		},
		state: StateReadingStatusLine,
	}
}

// State returns the current parser state
func (p *HTTPResponseParser) State() ParserState { return p.state }

// Offset returns how many bytes of the stream have been consumed
func (p *HTTPResponseParser) Offset() int { return p.currentByteIdx }

// OnChunk processes a new chunk of response data.
// This method can be called multiple times as data arrives.
func (p *HTTPResponseParser) OnChunk(data []byte) error {
	if p.state == StateComplete {
		logger().Error("Received data after response was marked complete", zap.String("component", "Parser"), zap.String("operation", "OnChunk"), zap.Int("extra_bytes", len(data)))
		return newMalformedTranscriptError("got more data after response was complete")
	}

	p.remaining = append(p.remaining, data...)

	for {
		before := p.state
		var err error
		switch p.state {
		case StateReadingStatusLine, StateReadingHeaders:
			err = p.processHeaders()
		case StateBodyByLength, StateBodyUntilClose:
			p.processFixedBody()
		case StateBodyByChunks:
			err = p.processChunkedBody()
		case StateChunkTrailers:
			p.processTrailers()
		}
		if err != nil {
			return err
		}
		// a state change may make buffered bytes consumable by the next stage
		if p.state == before || p.state == StateComplete {
			return nil
		}
	}
}

// StreamEnded indicates that no more data will arrive. This is the only way a
// response without Content-Length or chunking ever completes.
func (p *HTTPResponseParser) StreamEnded() error {
	switch p.state {
	case StateReadingStatusLine, StateReadingHeaders:
		logger().Error("Stream ended before headers were complete", zap.String("component", "Parser"), zap.String("operation", "StreamEnded"))
		return newIncompleteResponseError("stream ended before headers were complete")
	case StateBodyByLength:
		return newIncompleteResponseError("stream ended before all body bytes were received: %d bytes missing", p.remainingBodyBytes)
	case StateBodyByChunks:
		return newIncompleteResponseError("stream ended before the final chunk was received")
	}

	if len(p.remaining) > 0 {
		logger().Error("Stream ended with unconsumed bytes", zap.String("component", "Parser"), zap.String("operation", "StreamEnded"), binaryField("unconsumed", p.remaining, 32))
		return newIncompleteResponseError("stream ended with %d unconsumed bytes", len(p.remaining))
	}

	p.state = StateComplete
	p.Response.Complete = true

	logger().Debug("Response parsing completed", zap.String("component", "Parser"), zap.String("operation", "StreamEnded"), zap.Int("status_code", p.Response.StatusCode), zap.Int("body_bytes", len(p.Response.Body)), zap.Int("chunks", len(p.Response.Chunks)))
	return nil
}

// processHeaders consumes the status line and header lines available in the buffer
func (p *HTTPResponseParser) processHeaders() error {
	for {
		line, found := p.getLine()
		if !found {
			return nil
		}

		if p.state == StateReadingStatusLine {
			if err := p.parseStatusLine(line); err != nil {
				return err
			}
			continue
		}

		if line == "" {
			return p.finishHeaders()
		}
		p.parseHeaderLine(line)
	}
}

func (p *HTTPResponseParser) parseStatusLine(line string) error {
	m := statusLineRegex.FindStringSubmatch(line)
	if m == nil {
		logger().Error("Invalid status line format", zap.String("component", "Parser"), zap.String("operation", "parseStatusLine"), zap.String("line", truncateData(line)))
		return newMalformedTranscriptError("invalid HTTP status line: %q", truncateData(line))
	}

	statusCode, err := strconv.Atoi(m[1])
	if err != nil {
		return newMalformedTranscriptError("invalid status code %q", m[1])
	}

	p.Response.StatusCode = statusCode
	p.Response.StatusMessage = m[2]
	p.Response.StatusLineEndIndex = p.currentByteIdx - 2
	p.state = StateReadingHeaders
	return nil
}

func (p *HTTPResponseParser) parseHeaderLine(line string) {
	colonIdx := strings.Index(line, ": ")
	if colonIdx == -1 {
		logger().Warn("Header line missing colon separator", zap.String("component", "Parser"), zap.String("operation", "parseHeaderLine"), zap.String("line", truncateData(line)))
		return
	}

	key := strings.ToLower(line[:colonIdx])
	p.Response.Headers[key] = line[colonIdx+2:]

	lineStart := p.currentByteIdx - len(line) - 2
	p.Response.HeaderSpans[key] = shared.ByteSpan{From: lineStart, To: lineStart + len(line)}
}

// finishHeaders completes header processing and picks the body strategy
func (p *HTTPResponseParser) finishHeaders() error {
	p.Response.HeadersComplete = true
	p.Response.HeaderEndIdx = p.currentByteIdx - 4
	p.Response.BodyStartIndex = p.currentByteIdx

	transferEncoding := p.Response.Headers["transfer-encoding"]
	contentLength, hasLength := p.Response.Headers["content-length"]

	switch {
	case strings.Contains(strings.ToLower(transferEncoding), "chunked"):
		p.state = StateBodyByChunks
	case hasLength:
		length, err := strconv.ParseInt(strings.TrimSpace(contentLength), 10, 64)
		if err != nil || length < 0 {
			logger().Error("Invalid Content-Length", zap.String("component", "Parser"), zap.String("operation", "finishHeaders"), zap.String("content_length", contentLength))
			return newMalformedTranscriptError("invalid Content-Length %q", contentLength)
		}
		p.remainingBodyBytes = length
		p.state = StateBodyByLength
		if length == 0 {
			p.markComplete()
		}
	default:
		p.state = StateBodyUntilClose
	}

	logger().Debug("Headers complete", zap.String("component", "Parser"), zap.String("operation", "finishHeaders"), zap.Int("status_code", p.Response.StatusCode), zap.Stringer("body_strategy", p.state), zap.Int("body_start", p.Response.BodyStartIndex))
	return nil
}

// processFixedBody handles Content-Length bodies and read-until-close bodies
func (p *HTTPResponseParser) processFixedBody() {
	if len(p.remaining) == 0 {
		return
	}

	bytesToCopy := len(p.remaining)
	if p.state == StateBodyByLength {
		bytesToCopy = int(min(p.remainingBodyBytes, int64(len(p.remaining))))
		p.remainingBodyBytes -= int64(bytesToCopy)
	}

	p.consumeBody(bytesToCopy)

	if p.state == StateBodyByLength && p.remainingBodyBytes == 0 {
		p.markComplete()
	}
}

// processChunkedBody processes chunked transfer encoding. It returns with the
// buffer partially consumed whenever a size line, chunk body or CRLF is split
// across calls.
func (p *HTTPResponseParser) processChunkedBody() error {
	for {
		if p.remainingBodyBytes > 0 {
			bytesToRead := int(min(p.remainingBodyBytes, int64(len(p.remaining))))
			if bytesToRead == 0 {
				return nil
			}
			p.consumeBody(bytesToRead)
			p.remainingBodyBytes -= int64(bytesToRead)
			if p.remainingBodyBytes > 0 {
				return nil
			}
			p.awaitingChunkCRLF = true
		}

		if p.awaitingChunkCRLF {
			if len(p.remaining) < 2 {
				return nil
			}
			if !bytes.Equal(p.remaining[:2], crlf) {
				logger().Error("Missing chunk trailing CRLF", zap.String("component", "Parser"), zap.String("operation", "processChunkedBody"), binaryField("found", p.remaining, 8))
				return newMalformedTranscriptError("invalid chunk: missing CRLF after data at offset %d", p.currentByteIdx)
			}
			p.advance(2)
			p.awaitingChunkCRLF = false
		}

		line, found := p.getLine()
		if !found {
			return nil
		}
		if line == "" {
			continue
		}

		sizeStr := line
		if semiIdx := strings.IndexByte(line, ';'); semiIdx != -1 {
			sizeStr = line[:semiIdx]
		}
		sizeStr = strings.TrimSpace(sizeStr)

		chunkSize, err := strconv.ParseInt(sizeStr, 16, 64)
		if err != nil || chunkSize < 0 {
			logger().Error("Invalid chunk size", zap.String("component", "Parser"), zap.String("operation", "processChunkedBody"), zap.String("chunk_size", truncateData(sizeStr)))
			return newMalformedTranscriptError("invalid chunk size %q", truncateData(sizeStr))
		}

		if chunkSize == 0 {
			// body is done; trailer fields and the final CRLF may still follow
			p.Response.Complete = true
			p.state = StateChunkTrailers
			return nil
		}

		p.Response.Chunks = append(p.Response.Chunks, shared.ByteSpan{
			From: p.currentByteIdx,
			To:   p.currentByteIdx + int(chunkSize),
		})
		p.remainingBodyBytes = chunkSize
	}
}

// processTrailers drains trailer fields until the terminating empty line
func (p *HTTPResponseParser) processTrailers() {
	for {
		line, found := p.getLine()
		if !found {
			return
		}
		if line == "" {
			p.markComplete()
			return
		}
		logger().Debug("Ignoring chunked trailer field", zap.String("component", "Parser"), zap.String("operation", "processTrailers"), zap.String("line", truncateData(line)))
	}
}

func (p *HTTPResponseParser) markComplete() {
	p.state = StateComplete
	p.Response.Complete = true
}

func (p *HTTPResponseParser) consumeBody(n int) {
	p.Response.Body = append(p.Response.Body, p.remaining[:n]...)
	p.advance(n)
}

func (p *HTTPResponseParser) advance(n int) {
	p.remaining = p.remaining[n:]
	p.currentByteIdx += n
}

// getLine extracts a CRLF-terminated line from the buffer
func (p *HTTPResponseParser) getLine() (string, bool) {
	crlfIdx := bytes.Index(p.remaining, crlf)
	if crlfIdx == -1 {
		return "", false
	}

	line := string(p.remaining[:crlfIdx])
	p.advance(crlfIdx + 2)
	return line, true
}

// ParseHTTPResponse parses a complete HTTP response in one go
func ParseHTTPResponse(data []byte) (*HTTPParsedResponse, error) {
	parser := NewHTTPResponseParser()

	if err := parser.OnChunk(data); err != nil {
		return nil, err
	}
	if err := parser.StreamEnded(); err != nil {
		return nil, err
	}
	return parser.Response, nil
}
