package providers

import (
	"bytes"
	"regexp"
	"strings"

	"http-transcript/shared"

	"go.uber.org/zap"
)

// Sender identifies which side of the TLS session produced a message
type Sender int

const (
	SenderClient Sender = iota + 1
	SenderServer
)

func (s Sender) String() string {
	switch s {
	case SenderClient:
		return "client"
	case SenderServer:
		return "server"
	default:
		return "unknown"
	}
}

// TranscriptMessage is one decrypted application-data record. Redacted
// messages have had some bytes replaced by the redaction placeholder.
type TranscriptMessage struct {
	Sender   Sender `json:"sender"`
	Message  []byte `json:"message"`
	Redacted bool   `json:"redacted,omitempty"`
}

// Receipt is the claim material checked by a provider: the endpoint the
// session was opened to and its ordered transcript.
type Receipt struct {
	HostPort   string              `json:"hostPort"`
	Transcript []TranscriptMessage `json:"transcript"`
}

// HTTPRequestRecord is a request reconstructed from client messages
type HTTPRequestRecord struct {
	Method   string
	Path     string
	Protocol string
	// Headers holds lower-cased keys; repeated headers keep encounter order
	Headers     map[string][]string
	HeaderOrder []string
	Body        []byte
}

// Header returns the first value of a header, or "" when absent
func (r *HTTPRequestRecord) Header(key string) string {
	values := r.Headers[strings.ToLower(key)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

var requestLineRegex = regexp.MustCompile(`^(\S+) (\S+) (\S+)$`)

// ConcatMessages joins the messages of one sender in transcript order
func ConcatMessages(transcript []TranscriptMessage, sender Sender) []byte {
	var buf bytes.Buffer
	for _, m := range transcript {
		if m.Sender == sender {
			buf.Write(m.Message)
		}
	}
	return buf.Bytes()
}

// ParseHTTPRequestFromTranscript reconstructs the request sent by the client.
// A request whose first byte has been redacted is rejected before parsing so
// the method and path can never be hidden from the verifier.
func ParseHTTPRequestFromTranscript(transcript []TranscriptMessage) (*HTTPRequestRecord, error) {
	hasClient := false
	for _, m := range transcript {
		if m.Sender == SenderClient {
			hasClient = true
			break
		}
	}
	if !hasClient {
		return nil, newMalformedTranscriptError("transcript has no client messages")
	}

	data := ConcatMessages(transcript, SenderClient)
	if len(data) > 0 && data[0] == shared.RedactionChar {
		logger().Error("First client byte is redacted", zap.String("component", "Framer"), zap.String("operation", "ParseHTTPRequestFromTranscript"))
		return nil, newMalformedTranscriptError("first byte of the request is redacted")
	}

	headerEnd := bytes.Index(data, []byte("\r\n\r\n"))
	if headerEnd == -1 {
		return nil, newMalformedTranscriptError("request has no blank line terminating the headers")
	}

	lines := strings.Split(string(data[:headerEnd]), "\r\n")
	m := requestLineRegex.FindStringSubmatch(lines[0])
	if m == nil {
		logger().Error("Invalid request line", zap.String("component", "Framer"), zap.String("operation", "ParseHTTPRequestFromTranscript"), dataField("line", []byte(lines[0])))
		return nil, newMalformedTranscriptError("invalid request line: %q", truncateData(lines[0]))
	}

	req := &HTTPRequestRecord{
		Method:   m[1],
		Path:     m[2],
		Protocol: m[3],
		Headers:  make(map[string][]string),
		Body:     data[headerEnd+4:],
	}
	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			logger().Warn("Request header line missing colon", zap.String("component", "Framer"), zap.String("operation", "ParseHTTPRequestFromTranscript"), zap.String("line", truncateData(line)))
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if _, seen := req.Headers[key]; !seen {
			req.HeaderOrder = append(req.HeaderOrder, key)
		}
		req.Headers[key] = append(req.Headers[key], strings.TrimSpace(value))
	}

	logger().Debug("Parsed request from transcript", zap.String("component", "Framer"), zap.String("operation", "ParseHTTPRequestFromTranscript"), zap.String("method", req.Method), zap.Int("headers", len(req.HeaderOrder)), zap.Int("body_bytes", len(req.Body)))
	return req, nil
}

// ParseHTTPResponseFromTranscript feeds the server messages record by record
// into a streaming parser and ends the stream.
func ParseHTTPResponseFromTranscript(transcript []TranscriptMessage) (*HTTPParsedResponse, error) {
	parser := NewHTTPResponseParser()
	for i, m := range transcript {
		if m.Sender != SenderServer {
			continue
		}
		if err := parser.OnChunk(m.Message); err != nil {
			logger().Debug("Server message rejected", zap.String("component", "Framer"), zap.String("operation", "ParseHTTPResponseFromTranscript"), zap.Int("message_index", i), zap.Int("offset", parser.Offset()), zap.Stringer("state", parser.State()), zap.Error(err))
			return nil, err
		}
	}
	if err := parser.StreamEnded(); err != nil {
		logger().Debug("Server stream ended early", zap.String("component", "Framer"), zap.String("operation", "ParseHTTPResponseFromTranscript"), zap.Int("offset", parser.Offset()), zap.Stringer("state", parser.State()), zap.Error(err))
		return nil, err
	}
	return parser.Response, nil
}
