package providers

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"http-transcript/shared"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GetHostPort returns host:port of the params URL, defaulting to 443
func GetHostPort(params *HTTPProviderParams) (string, error) {
	sp, err := substituteParamValues(params, nil, true)
	if err != nil {
		return "", err
	}
	if strings.Contains(publicHost(sp.NewParams.URL), "{{") {
		return "", fmt.Errorf("url host must not contain template parameters")
	}
	return hostPortFromURL(sp.NewParams.URL)
}

func publicHost(rawURL string) string {
	return rawURL[:requestTargetStart(rawURL)]
}

// AssertValidProviderReceipt checks that a (possibly redacted) transcript
// is a genuine exchange for params: the request went to the declared endpoint
// with the declared method, path and body, and the response satisfies every
// declared match.
func AssertValidProviderReceipt(receipt *Receipt, rawParams *HTTPProviderParams) error {
	log := logger().With(zap.String("component", "Receipt"), zap.String("operation_id", uuid.NewString()))

	if receipt == nil {
		return newMalformedTranscriptError("receipt is nil")
	}

	req, err := ParseHTTPRequestFromTranscript(receipt.Transcript)
	if err != nil {
		log.Error("Failed to parse request", zap.String("operation", "AssertValidProviderReceipt"), zap.Error(err))
		return err
	}

	sp, err := substituteParamValues(rawParams, nil, true)
	if err != nil {
		return err
	}
	params := sp.NewParams

	if err := assertRequestMatches(receipt, req, &params, rawParams); err != nil {
		log.Warn("Request does not match params", zap.String("operation", "assertRequestMatches"), zap.Error(err))
		return err
	}

	res, err := ParseHTTPResponseFromTranscript(receipt.Transcript)
	if err != nil {
		log.Error("Failed to parse response", zap.String("operation", "AssertValidProviderReceipt"), zap.Error(err))
		return err
	}

	if err := assertResponseMatches(receipt, res, &params); err != nil {
		log.Warn("Response does not match params", zap.String("operation", "assertResponseMatches"), zap.Error(err))
		return err
	}

	log.Debug("Receipt is valid", zap.String("operation", "AssertValidProviderReceipt"), zap.Int("messages", len(receipt.Transcript)), zap.Int("status_code", res.StatusCode))
	return nil
}

func assertRequestMatches(receipt *Receipt, req *HTTPRequestRecord, params, rawParams *HTTPProviderParams) error {
	u, err := url.Parse(params.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "https" {
		return newAssertionError("Expected protocol: https, found: %s", u.Scheme)
	}

	expectedHostPort, err := GetHostPort(params)
	if err != nil {
		return err
	}
	if receipt.HostPort != expectedHostPort {
		return newAssertionError("Expected hostPort: %s, found: %s", expectedHostPort, receipt.HostPort)
	}

	if !strings.EqualFold(req.Method, params.Method) {
		return newAssertionError("Invalid method: expected %q, found %q", strings.ToUpper(params.Method), req.Method)
	}

	target, _ := requestTarget(params.URL)
	expectedPath := publicTemplatePrefix(target)
	if !strings.HasPrefix(req.Path, expectedPath) {
		return newAssertionError("Invalid path: expected prefix %q, found %q", expectedPath, req.Path)
	}

	if connection := req.Headers["connection"]; len(connection) != 1 || !strings.EqualFold(connection[0], "close") {
		return newAssertionError("Invalid connection header: expected a single \"close\", found %q", connection)
	}

	expectedHost := getHostHeaderString(u)
	if host := req.Header("host"); !strings.EqualFold(host, expectedHost) {
		return newAssertionError("Invalid host header: expected %q, found %q", expectedHost, host)
	}

	expectedBody, err := bodyBytes(rawParams.Body)
	if err != nil {
		return err
	}
	matcher, err := templateMatcher(string(expectedBody), rawParams.ParamValues)
	if err != nil {
		return fmt.Errorf("failed to compile body template: %w", err)
	}
	if !matcher.Match(req.Body) {
		return newAssertionError("Request body does not match template: expected %q, found %q", truncateData(string(expectedBody)), truncateData(string(req.Body)))
	}
	return nil
}

func assertResponseMatches(receipt *Receipt, res *HTTPParsedResponse, params *HTTPProviderParams) error {
	if res.StatusCode/100 != 2 {
		return newAssertionError("Provider returned error %d %s", res.StatusCode, res.StatusMessage)
	}

	if params.ResponseContentType != "" {
		head := ConcatMessages(receipt.Transcript, SenderServer)
		if res.BodyStartIndex > 0 && res.BodyStartIndex <= len(head) {
			head = head[:res.BodyStartIndex]
		}
		contentType := responseHeaderValue(res, head, "content-type")
		if !strings.HasPrefix(strings.ToLower(contentType), strings.ToLower(params.ResponseContentType)) {
			return newAssertionError("Expected content-type: %q, found: %q", params.ResponseContentType, contentType)
		}
	}

	for i, match := range params.ResponseMatches {
		if err := assertResponseMatch(res.Body, match); err != nil {
			logger().Debug("Response match failed", zap.String("component", "Receipt"), zap.String("operation", "assertResponseMatch"), zap.Int("match_index", i), zap.Error(err))
			return err
		}
	}
	return nil
}

// responseHeaderValue looks a header up in the parsed headers. In a redacted
// response the CRLFs between headers are usually blanked, so revealed header
// lines are also searched for in the raw head of the response.
func responseHeaderValue(res *HTTPParsedResponse, head []byte, key string) string {
	if v, ok := res.Headers[key]; ok {
		return v
	}
	re := regexp.MustCompile(`(?i)(?:^|[\n*])` + regexp.QuoteMeta(key) + `: ([^\r\n*]*)`)
	if m := re.FindSubmatch(head); m != nil {
		return string(m[1])
	}
	return ""
}

func assertResponseMatch(body []byte, match ResponseMatch) error {
	windows := []window{{start: 0, end: len(body)}}
	var chain []Selector
	if match.XPath != "" {
		chain = append(chain, Selector{Kind: SelectorHTML, Expr: match.XPath, ContentsOnly: match.JSONPath != ""})
	}
	if match.JSONPath != "" {
		chain = append(chain, Selector{Kind: SelectorJSON, Expr: match.JSONPath})
	}
	if len(chain) > 0 {
		var err error
		if windows, err = resolveSelectorChain(body, chain); err != nil {
			return err
		}
	}

	found := false
	for _, w := range windows {
		ok, err := matchesValue(body[w.start:w.end], match)
		if err != nil {
			return err
		}
		if ok {
			found = true
			break
		}
	}

	switch {
	case found && match.Invert:
		return newAssertionError("Invalid receipt: response contains %s %q which must not be present", matchTypeName(match), match.Value)
	case !found && !match.Invert:
		return newAssertionError("Invalid receipt: response does not match %s %q", matchTypeName(match), match.Value)
	}
	return nil
}

func matchTypeName(match ResponseMatch) string {
	if match.Type == "" {
		return ResponseMatchContains
	}
	return match.Type
}

// matchesValue evaluates a match against a window, directly and with runs of
// redaction placeholders removed, so text revealed across blanked chunk
// framing still matches.
func matchesValue(segment []byte, match ResponseMatch) (bool, error) {
	candidates := [][]byte{segment}
	if bytes.IndexByte(segment, shared.RedactionChar) != -1 {
		candidates = append(candidates, bytes.ReplaceAll(segment, []byte{shared.RedactionChar}, nil))
	}

	switch matchTypeName(match) {
	case ResponseMatchContains:
		for _, c := range candidates {
			if bytes.Contains(c, []byte(match.Value)) {
				return true, nil
			}
		}
		return false, nil
	case ResponseMatchRegex:
		re, err := makeRegex(match.Value)
		if err != nil {
			return false, fmt.Errorf("invalid regexp %q: %w", match.Value, err)
		}
		for _, c := range candidates {
			if re.Match(c) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown response match type %q", match.Type)
	}
}
