package providers

import "http-transcript/shared"

const (
	ResponseMatchContains = "contains"
	ResponseMatchRegex    = "regex"
)

type ResponseMatch struct {
	Type     string `json:"type,omitempty"` // "contains" (default) or "regex"
	Value    string `json:"value,omitempty"`
	XPath    string `json:"xPath,omitempty"`
	JSONPath string `json:"jsonPath,omitempty"`
	Invert   bool   `json:"invert,omitempty"`
}

type ResponseRedaction struct {
	Regex    string  `json:"regex,omitempty"`
	XPath    string  `json:"xPath,omitempty"`
	JSONPath string  `json:"jsonPath,omitempty"`
	Hash     *string `json:"hash,omitempty"`
}

type HTTPProviderParams struct {
	URL                 string              `json:"url"`
	Method              string              `json:"method"`
	GeoLocation         string              `json:"geoLocation,omitempty"`
	Headers             map[string]string   `json:"headers,omitempty"`
	Body                any                 `json:"body,omitempty"`
	ResponseContentType string              `json:"responseContentType,omitempty"`
	ParamValues         map[string]string   `json:"paramValues,omitempty"`
	ResponseMatches     []ResponseMatch     `json:"responseMatches,omitempty"`
	ResponseRedactions  []ResponseRedaction `json:"responseRedactions,omitempty"`
}

type HTTPProviderSecretParams struct {
	CookieStr           string            `json:"cookieStr,omitempty"`
	AuthorisationHeader string            `json:"authorisationHeader,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
	ParamValues         map[string]string `json:"paramValues,omitempty"`
}

// RedactedOrHashedArraySlice is one entry of a redaction plan. Entries with a
// Hash are disclosed through that hash instead of being blanked.
type RedactedOrHashedArraySlice struct {
	From int     `json:"fromIndex"`
	To   int     `json:"toIndex"`
	Hash *string `json:"hash,omitempty"`
}

// Span returns the byte span covered by the slice
func (r RedactedOrHashedArraySlice) Span() shared.ByteSpan {
	return shared.ByteSpan{From: r.From, To: r.To}
}

type CreateRequestResult struct {
	Data       []byte                       `json:"data"`
	Redactions []RedactedOrHashedArraySlice `json:"redactions"`
}

// RedactionSpans returns the plain spans of a plan, dropping hash metadata
func RedactionSpans(plan []RedactedOrHashedArraySlice) []shared.ByteSpan {
	spans := make([]shared.ByteSpan, 0, len(plan))
	for _, r := range plan {
		spans = append(spans, r.Span())
	}
	return spans
}
