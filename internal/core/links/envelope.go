package links

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	coreerrors "github.com/lueurxax/gnews-link-resolver/internal/core/errors"
)

const (
	batchExecuteRPCID = "Fbv4je"
	requestKind       = "garturlreq"
	resultKind        = "garturlres"
	responseEntryTag  = "wrb.fr"
	envelopeMode      = "generic"
	xssiGuard         = ")]}'"
	maxUnescapeRounds = 2
)

// Locale carries the language, country and edition constants the RPC expects.
type Locale struct {
	Language string
	Country  string
	Edition  string
}

// DefaultLocale is the en-US edition.
var DefaultLocale = Locale{Language: "en-US", Country: "US", Edition: "US:en"}

// DecodingParams is the signed capability token embedded in the article page.
type DecodingParams struct {
	Signature string
	Timestamp int64
}

// fallbackResult matches the result entry in the raw or once-escaped response
// text when the structural probe fails.
var fallbackResult = regexp.MustCompile(`garturlres\\*",\\*"(.+?)\\*"`)

// BuildEnvelope returns the f.req form value for resolving identifier.
func BuildEnvelope(identifier string, params DecodingParams, loc Locale) (string, error) {
	if loc == (Locale{}) {
		loc = DefaultLocale
	}

	inner := []any{
		requestKind,
		[]any{
			[]any{
				loc.Language, loc.Country, []any{"FINANCE_TOP_INDICES", "WEB_TEST_1_0_0"},
				nil, nil, 1, 1, loc.Edition, nil, 180, nil, nil, nil, nil, nil, 0, nil, nil,
				[]any{1608992183, 723341000},
			},
			loc.Language, loc.Country, 1, []any{2, 3, 4, 8}, 1, 0, "655000234", 0, 0, nil, 0,
		},
		identifier,
		params.Timestamp,
		params.Signature,
	}

	innerJSON, err := marshalCompact(inner)
	if err != nil {
		return "", fmt.Errorf("marshal inner envelope: %w", err)
	}

	outer := []any{[]any{[]any{batchExecuteRPCID, string(innerJSON), nil, envelopeMode}}}

	outerJSON, err := marshalCompact(outer)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	return string(outerJSON), nil
}

// ParseBatchResponse extracts the resolved URL from a batchexecute response.
//
// The response is an XSSI guard line, a blank line, then one or more JSON
// arrays, optionally preceded by length lines. The result entry is located by
// its tags rather than by position; if that fails the raw text is scanned.
func ParseBatchResponse(body []byte) (string, error) {
	payload := stripGuard(body)
	if len(bytes.TrimSpace(payload)) == 0 {
		return "", fmt.Errorf("%w: empty response", coreerrors.ErrProtocolShape)
	}

	candidate, err := probeEntries(payload)
	if err != nil {
		candidate, err = scanFallback(body)
		if err != nil {
			return "", err
		}
	}

	if !IsAbsoluteURL(candidate) {
		return "", fmt.Errorf("%w: rpc result %q", coreerrors.ErrNotAbsoluteURL, candidate)
	}

	return candidate, nil
}

func stripGuard(body []byte) []byte {
	text := bytes.TrimLeft(body, " \t\r\n")
	if !bytes.HasPrefix(text, []byte(xssiGuard)) {
		return text
	}

	text = text[len(xssiGuard):]

	if idx := bytes.Index(text, []byte("\n\n")); idx >= 0 {
		return text[idx+2:]
	}

	return text
}

// probeEntries walks every JSON value in payload looking for the tagged result.
func probeEntries(payload []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	sawArray := false

	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return "", fmt.Errorf("%w: %w", coreerrors.ErrProtocolShape, err)
		}

		value := gjson.ParseBytes(raw)
		if !value.IsArray() {
			continue
		}

		sawArray = true

		if u, ok := findResult(value); ok {
			return u, nil
		}
	}

	if !sawArray {
		return "", fmt.Errorf("%w: no JSON array in response", coreerrors.ErrProtocolShape)
	}

	return "", fmt.Errorf("%w: no %s entry", coreerrors.ErrProtocolShape, resultKind)
}

func findResult(value gjson.Result) (string, bool) {
	var found string

	value.ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsArray() {
			return true
		}

		if entry.Get("0").String() != responseEntryTag || entry.Get("1").String() != batchExecuteRPCID {
			return true
		}

		inner := entry.Get("2")
		if inner.Type != gjson.String || !gjson.Valid(inner.String()) {
			return true
		}

		result := gjson.Parse(inner.String())
		if result.Get("0").String() != resultKind {
			return true
		}

		if u := result.Get("1"); u.Type == gjson.String && u.String() != "" {
			found = u.String()
			return false
		}

		return true
	})

	return found, found != ""
}

func scanFallback(body []byte) (string, error) {
	m := fallbackResult.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("%w: no %s marker", coreerrors.ErrProtocolShape, resultKind)
	}

	return unescape(string(m[1])), nil
}

// unescape removes up to two levels of JSON string escaping.
func unescape(s string) string {
	for i := 0; i < maxUnescapeRounds && strings.Contains(s, `\`); i++ {
		var unquoted string
		if err := json.Unmarshal([]byte(`"`+s+`"`), &unquoted); err != nil {
			break
		}

		s = unquoted
	}

	return s
}

func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
