package providers

import (
	"bytes"
	"fmt"
	"maps"
	"net/url"
	"sort"

	"http-transcript/shared"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var headerBodySeparator = []byte("\r\n\r\n")

// CreateRequest builds the HTTP/1.1 request bytes and the spans that hide
// secrets in them
func CreateRequest(secret *HTTPProviderSecretParams, params *HTTPProviderParams) (CreateRequestResult, error) {
	if secret == nil || (secret.CookieStr == "" && secret.AuthorisationHeader == "" && len(secret.Headers) == 0) {
		return CreateRequestResult{}, fmt.Errorf("auth parameters are not set")
	}

	pubHeaders := map[string]string{}
	maps.Copy(pubHeaders, params.Headers)

	// Cookie, Authorization, then any extra secret headers in key order
	secHeadersList := []string{}
	if secret.CookieStr != "" {
		secHeadersList = append(secHeadersList, fmt.Sprintf("Cookie: %s", secret.CookieStr))
	}
	if secret.AuthorisationHeader != "" {
		secHeadersList = append(secHeadersList, fmt.Sprintf("Authorization: %s", secret.AuthorisationHeader))
	}
	secHeadersList = append(secHeadersList, buildHeadersList(secret.Headers)...)

	hasUA := false
	for k := range pubHeaders {
		if equalsFoldUserAgent(k) {
			hasUA = true
			break
		}
	}
	for k := range secret.Headers {
		if equalsFoldUserAgent(k) {
			hasUA = true
			break
		}
	}
	if !hasUA {
		pubHeaders["User-Agent"] = defaultUserAgent()
	}

	sp, err := substituteParamValues(params, secret, false)
	if err != nil {
		return CreateRequestResult{}, err
	}
	p := sp.NewParams

	if p.Method == "" {
		return CreateRequestResult{}, fmt.Errorf("method is required")
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return CreateRequestResult{}, fmt.Errorf("invalid url: %w", err)
	}
	if u.Hostname() == "" {
		return CreateRequestResult{}, fmt.Errorf("url %q has no host", p.URL)
	}

	target, targetDelta := requestTarget(p.URL)
	reqLine := fmt.Sprintf("%s %s HTTP/1.1", p.Method, target)

	body, err := bodyBytes(p.Body)
	if err != nil {
		return CreateRequestResult{}, err
	}

	lines := []string{
		reqLine,
		fmt.Sprintf("Host: %s", getHostHeaderString(u)),
		fmt.Sprintf("Content-Length: %d", len(body)),
		"Connection: close",
		"Accept-Encoding: identity",
	}
	lines = append(lines, buildHeadersList(pubHeaders)...)
	secretBlockStart := len(joinCRLF(lines)) + 2
	lines = append(lines, secHeadersList...)

	headerBytes := []byte(joinCRLF(lines) + "\r\n\r\n")
	data := append(headerBytes, body...)

	redactions := []RedactedOrHashedArraySlice{}
	if len(secHeadersList) > 0 {
		secretBlockLen := len(joinCRLF(secHeadersList))
		redactions = append(redactions, RedactedOrHashedArraySlice{From: secretBlockStart, To: secretBlockStart + secretBlockLen})
	}

	// secret URL parts land in the request target after "METHOD "
	reqTargetStart := len(p.Method) + 1
	for _, hu := range sp.HiddenURLParts {
		if hu.Length == 0 {
			continue
		}
		from := reqTargetStart + hu.Index + targetDelta
		to := from + hu.Length
		if from < reqTargetStart || to > reqTargetStart+len(target) {
			return CreateRequestResult{}, fmt.Errorf("secret parameters may only appear in the URL path or query")
		}
		redactions = append(redactions, RedactedOrHashedArraySlice{From: from, To: to})
	}

	for _, hb := range sp.HiddenBodyParts {
		if hb.Length > 0 {
			s := shared.ByteSpan{From: hb.Index, To: hb.Index + hb.Length}.Shift(len(headerBytes))
			redactions = append(redactions, RedactedOrHashedArraySlice{From: s.From, To: s.To})
		}
	}

	sort.SliceStable(redactions, func(i, j int) bool { return redactions[i].To < redactions[j].To })
	if err := validateSpans(redactions, len(data)); err != nil {
		return CreateRequestResult{}, err
	}

	logger().Debug("Request created", zap.String("component", "Provider"), zap.String("operation", "CreateRequest"), zap.String("method", p.Method), zap.Int("request_bytes", len(data)), zap.Int("redactions", len(redactions)))
	return CreateRequestResult{Data: data, Redactions: redactions}, nil
}

// GetResponseRedactions computes the spans of a response to blank so that
// only the status line, the header/body separator, a few safe headers and the
// bytes selected by params.ResponseRedactions stay visible.
func GetResponseRedactions(response []byte, rawParams *HTTPProviderParams) ([]RedactedOrHashedArraySlice, error) {
	log := logger().With(zap.String("component", "Planner"), zap.String("operation_id", uuid.NewString()))

	res, err := ParseHTTPResponse(response)
	if err != nil {
		log.Error("Failed to parse response", zap.String("operation", "GetResponseRedactions"), zap.Error(err))
		return nil, err
	}

	if len(rawParams.ResponseRedactions) == 0 {
		return []RedactedOrHashedArraySlice{}, nil
	}

	if res.StatusCode/100 != 2 {
		return nil, newAssertionError("Expected status 2xx, got %d (%s)", res.StatusCode, res.StatusMessage)
	}

	sp, err := substituteParamValues(rawParams, nil, true)
	if err != nil {
		return nil, err
	}
	params := sp.NewParams

	if res.HeaderEndIdx < 0 || res.HeaderEndIdx+4 > len(response) || !bytes.Equal(response[res.HeaderEndIdx:res.HeaderEndIdx+4], headerBodySeparator) {
		return nil, newMalformedTranscriptError("failed to find header/body separator at index %d", res.HeaderEndIdx)
	}

	reveals := []RedactedOrHashedArraySlice{
		{From: 0, To: res.StatusLineEndIndex},
		{From: res.HeaderEndIdx, To: res.HeaderEndIdx + 4},
	}
	if rng, ok := res.HeaderSpans["date"]; ok && !rng.IsEmpty() {
		reveals = append(reveals, RedactedOrHashedArraySlice{From: rng.From, To: rng.To})
	}
	if params.ResponseContentType != "" {
		if rng, ok := res.HeaderSpans["content-type"]; ok && !rng.IsEmpty() {
			reveals = append(reveals, RedactedOrHashedArraySlice{From: rng.From, To: rng.To})
		}
	}

	mapper := bodyMapper{bodyStartIdx: res.BodyStartIndex, chunks: res.Chunks}
	var forced []shared.ByteSpan
	selected := 0
	for i, rs := range params.ResponseRedactions {
		items, err := processRedactionRequest(res.Body, rs, mapper)
		if err != nil {
			log.Error("Failed to resolve redaction", zap.String("operation", "processRedactionRequest"), zap.Int("redaction_index", i), zap.Error(err))
			return nil, err
		}
		for _, item := range items {
			reveals = append(reveals, item.Reveal)
			forced = append(forced, item.Redactions...)
		}
		selected += len(items)
	}

	if selected == 0 {
		return []RedactedOrHashedArraySlice{}, nil
	}

	// gaps between merged reveals, plus the tail of the response
	var gaps []shared.ByteSpan
	cursor := 0
	for _, r := range shared.ConsolidateSpans(RedactionSpans(reveals)) {
		if cursor < r.From {
			gaps = append(gaps, shared.ByteSpan{From: cursor, To: r.From})
		}
		cursor = max(cursor, r.To)
	}
	if cursor < len(response) {
		gaps = append(gaps, shared.ByteSpan{From: cursor, To: len(response)})
	}

	plan := []RedactedOrHashedArraySlice{}
	for _, s := range shared.ConsolidateSpans(append(gaps, forced...)) {
		plan = append(plan, RedactedOrHashedArraySlice{From: s.From, To: s.To})
	}
	for _, r := range reveals {
		if r.Hash != nil {
			plan = append(plan, r)
		}
	}

	sort.SliceStable(plan, func(i, j int) bool {
		if plan[i].To == plan[j].To {
			return plan[i].From < plan[j].From
		}
		return plan[i].To < plan[j].To
	})
	if err := validateSpans(plan, len(response)); err != nil {
		return nil, err
	}

	log.Debug("Response redactions computed", zap.String("operation", "GetResponseRedactions"), zap.Int("reveals", len(reveals)), zap.Int("redactions", len(plan)))
	return plan, nil
}

// validateSpans checks that every span of a plan lies inside a buffer of n bytes
func validateSpans(spans []RedactedOrHashedArraySlice, n int) error {
	for _, r := range spans {
		if err := r.Span().Validate(n); err != nil {
			return fmt.Errorf("redaction out of range: %w", err)
		}
	}
	return nil
}
