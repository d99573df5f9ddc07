package providers

import (
	"encoding/json"
	"fmt"
	"maps"
	"net"
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const DefaultHTTPSPort = 443

func equalsFoldUserAgent(s string) bool { return strings.EqualFold(s, "user-agent") }

func buildHeadersList(h map[string]string) []string {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	res := make([]string, 0, len(keys))
	for _, k := range keys {
		res = append(res, fmt.Sprintf("%s: %s", k, h[k]))
	}
	return res
}

// getHostHeaderString returns the Host header value, omitting the default port
func getHostHeaderString(u *url.URL) string {
	port := u.Port()
	if port != "" && port != strconv.Itoa(DefaultHTTPSPort) {
		return u.Host
	}
	return u.Hostname()
}

func joinCRLF(lines []string) string { return strings.Join(lines, "\r\n") }

// requestTargetStart returns the offset in rawURL where the path begins
// (just after scheme://authority).
func requestTargetStart(rawURL string) int {
	schemeEnd := strings.Index(rawURL, "://")
	if schemeEnd == -1 {
		return 0
	}
	authStart := schemeEnd + 3
	if i := strings.IndexAny(rawURL[authStart:], "/?#"); i != -1 {
		return authStart + i
	}
	return len(rawURL)
}

// requestTarget returns the origin-form request target of rawURL, kept
// byte-for-byte so template offsets stay valid. Adding delta to an offset in
// rawURL gives the offset of the same byte in target.
func requestTarget(rawURL string) (target string, delta int) {
	start := requestTargetStart(rawURL)
	target = rawURL[start:]
	if i := strings.IndexByte(target, '#'); i != -1 {
		target = target[:i]
	}
	delta = -start
	if target == "" || target[0] != '/' {
		target = "/" + target
		delta++
	}
	return target, delta
}

// Template substitution with offsets
var paramsRegex = regexp.MustCompile(`{{([^{}]+)}}`)

type hiddenPart struct {
	Index  int
	Length int
}

type substituteResult struct {
	NewParams       HTTPProviderParams
	ExtractedValues map[string]string
	HiddenBodyParts []hiddenPart
	HiddenURLParts  []hiddenPart // offsets into NewParams.URL
}

func cloneParams(p *HTTPProviderParams) HTTPProviderParams {
	out := *p
	out.Headers = maps.Clone(p.Headers)
	out.ParamValues = maps.Clone(p.ParamValues)
	out.ResponseMatches = slices.Clone(p.ResponseMatches)
	out.ResponseRedactions = slices.Clone(p.ResponseRedactions)
	if b, ok := p.Body.([]byte); ok {
		out.Body = slices.Clone(b)
	}
	return out
}

// substituteParamValues replaces {{name}} templates from public param values,
// then secret ones. Secret substitutions are reported as hidden parts. With
// ignoreMissing, unknown templates are left in place; otherwise they fail.
func substituteParamValues(current *HTTPProviderParams, secret *HTTPProviderSecretParams, ignoreMissing bool) (substituteResult, error) {
	logger().Debug("Starting substituteParamValues", zap.String("component", "Utils"), zap.String("operation", "substituteParamValues"), zap.Bool("ignore_missing", ignoreMissing))

	params := cloneParams(current)
	extracted := map[string]string{}
	result := substituteResult{ExtractedValues: extracted}

	urlParams, err := extractAndReplaceTemplateValues(params.URL, &params, secret, ignoreMissing)
	if err != nil {
		return result, err
	}
	params.URL = urlParams.NewParam
	maps.Copy(extracted, urlParams.ExtractedValues)
	result.HiddenURLParts = urlParams.HiddenParts

	if params.Body != nil {
		body, err := bodyBytes(params.Body)
		if err != nil {
			return result, err
		}
		br, err := extractAndReplaceTemplateValues(string(body), &params, secret, ignoreMissing)
		if err != nil {
			return result, err
		}
		params.Body = br.NewParam
		maps.Copy(extracted, br.ExtractedValues)
		result.HiddenBodyParts = br.HiddenParts
	}

	geoParams, err := extractAndReplaceTemplateValues(params.GeoLocation, &params, secret, ignoreMissing)
	if err != nil {
		return result, err
	}
	params.GeoLocation = geoParams.NewParam
	maps.Copy(extracted, geoParams.ExtractedValues)

	for i := range params.ResponseRedactions {
		r := &params.ResponseRedactions[i]
		for _, field := range []*string{&r.Regex, &r.XPath, &r.JSONPath} {
			replaced, err := extractAndReplaceTemplateValues(*field, &params, secret, ignoreMissing)
			if err != nil {
				return result, err
			}
			*field = replaced.NewParam
		}
	}

	for i := range params.ResponseMatches {
		r := &params.ResponseMatches[i]
		matchParams, err := extractAndReplaceTemplateValues(r.Value, &params, secret, ignoreMissing)
		if err != nil {
			return result, err
		}
		r.Value = matchParams.NewParam
		maps.Copy(extracted, matchParams.ExtractedValues)
	}

	result.NewParams = params
	logger().Debug("Parameter substitution complete", zap.String("component", "Utils"), zap.String("operation", "substituteParamValues"), zap.Int("total_extracted_values", len(extracted)), zap.Int("hidden_body_parts", len(result.HiddenBodyParts)), zap.Int("hidden_url_parts", len(result.HiddenURLParts)))
	return result, nil
}

// bodyBytes normalizes a request body: strings and bytes as-is, anything else as JSON
func bodyBytes(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		return encoded, nil
	}
}

type replacedParams struct {
	NewParam        string
	ExtractedValues map[string]string
	HiddenParts     []hiddenPart
}

func extractAndReplaceTemplateValues(param string, params *HTTPProviderParams, secret *HTTPProviderSecretParams, ignoreMissing bool) (replacedParams, error) {
	matches := paramsRegex.FindAllStringSubmatchIndex(param, -1)
	if len(matches) == 0 {
		return replacedParams{NewParam: param, ExtractedValues: map[string]string{}}, nil
	}

	extracted := map[string]string{}
	var hidden []hiddenPart
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		pn := param[m[2]:m[3]]
		b.WriteString(param[last:start])
		last = end

		if val, ok := params.ParamValues[pn]; ok {
			extracted[pn] = val
			b.WriteString(val)
			continue
		}

		if secret != nil {
			if val, ok := secret.ParamValues[pn]; ok {
				hidden = append(hidden, hiddenPart{Index: b.Len(), Length: len(val)})
				b.WriteString(val)
				continue
			}
		}

		if !ignoreMissing {
			logger().Error("Parameter not found in public or secret values", zap.String("component", "Utils"), zap.String("operation", "extractAndReplaceTemplateValues"), zap.String("param_name", pn))
			return replacedParams{}, fmt.Errorf("parameter's %q value not found in paramValues and secret parameter's paramValues", pn)
		}
		b.WriteString(param[start:end])
	}
	b.WriteString(param[last:])

	return replacedParams{NewParam: b.String(), ExtractedValues: extracted, HiddenParts: hidden}, nil
}

// publicTemplatePrefix returns the part of a substituted template before the
// first template that is still unresolved.
func publicTemplatePrefix(s string) string {
	if i := strings.Index(s, "{{"); i != -1 {
		return s[:i]
	}
	return s
}

// templateMatcher compiles a raw {{param}} template into a regexp matching its
// redacted rendering: params with a public value match that value, every other
// param matches a run of redaction placeholders.
func templateMatcher(template string, values map[string]string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`\A`)
	last := 0
	for _, m := range paramsRegex.FindAllStringSubmatchIndex(template, -1) {
		b.WriteString(regexp.QuoteMeta(template[last:m[0]]))
		if val, ok := values[template[m[2]:m[3]]]; ok {
			b.WriteString(regexp.QuoteMeta(val))
		} else {
			b.WriteString(`\*+`)
		}
		last = m[1]
	}
	b.WriteString(regexp.QuoteMeta(template[last:]))
	b.WriteString(`\z`)
	return regexp.Compile(b.String())
}

// matchRedactedStrings reports whether redacted could be template with every
// param blanked out
func matchRedactedStrings(template, redacted []byte) bool {
	re, err := templateMatcher(string(template), nil)
	if err != nil {
		return false
	}
	return re.Match(redacted)
}

// hostPortFromURL returns host:port for rawURL, defaulting to the HTTPS port
func hostPortFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	port := u.Port()
	if port == "" {
		port = strconv.Itoa(DefaultHTTPSPort)
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
