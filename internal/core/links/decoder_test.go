package links

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "github.com/lueurxax/gnews-link-resolver/internal/core/errors"
)

// legacyIdentifier wraps payload in the legacy binary layout with a varint
// length prefix.
func legacyIdentifier(payload string) string {
	raw := append([]byte{}, legacyPrefix...)

	n := len(payload)
	if n < lengthContinuation {
		raw = append(raw, byte(n))
	} else {
		raw = append(raw, byte(n&lengthLowBits|lengthContinuation), byte(n>>lengthHighShift))
	}

	raw = append(raw, payload...)
	raw = append(raw, legacySuffix...)

	return base64.RawURLEncoding.EncodeToString(raw)
}

func TestDecodeIdentifierLegacy(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "short url", url: "https://example.com/news/2024/story.html"},
		{name: "query string", url: "https://example.com/abc?d=123&e=f"},
		{name: "two byte length", url: "https://example.com/" + strings.Repeat("a", 200)},
		{name: "url safe alphabet", url: "https://example.com/~?>?>?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeIdentifier(legacyIdentifier(tt.url))

			require.Equal(t, Resolved, got.Kind, "err: %v", got.Err)
			require.Equal(t, tt.url, got.URL)
		})
	}
}

func TestDecodeIdentifierKnownFixture(t *testing.T) {
	// Length byte 0x5c overstates the payload; the URL is what remains.
	got := DecodeIdentifier("CBMiXGh0dHBzOi8vZXhhbXBsZS5jb20vYWJjP2Q9MTIz0gEA")

	require.Equal(t, Resolved, got.Kind)
	require.Equal(t, "https://example.com/abc?d=123", got.URL)
}

func TestDecodeIdentifierWithoutMarkers(t *testing.T) {
	payload := "https://example.com/plain"
	raw := append([]byte{byte(len(payload))}, payload...)

	got := DecodeIdentifier(base64.URLEncoding.EncodeToString(raw))

	require.Equal(t, Resolved, got.Kind)
	require.Equal(t, payload, got.URL)
}

func TestDecodeIdentifierOpaqueToken(t *testing.T) {
	for _, payload := range []string{"AU_yqLNbCvnOw", "AU_yqL" + strings.Repeat("x", 150), "AU_yqL"} {
		id := legacyIdentifier(payload)

		got := DecodeIdentifier(id)

		require.Equal(t, NeedsRemoteResolution, got.Kind, "payload %q", payload)
		require.Equal(t, id, got.Identifier)
		require.Empty(t, got.URL)
	}
}

func TestDecodeIdentifierUnresolvable(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "empty", id: "", wantErr: coreerrors.ErrDecode},
		{name: "not base64", id: "!!!not-base64***", wantErr: coreerrors.ErrDecode},
		{name: "markers only", id: base64.RawURLEncoding.EncodeToString([]byte{0x08, 0x13, 0x22, 0xd2, 0x01, 0x00}), wantErr: coreerrors.ErrDecode},
		{name: "zero length", id: base64.RawURLEncoding.EncodeToString([]byte{0x08, 0x13, 0x22, 0x00, 0xd2, 0x01, 0x00}), wantErr: coreerrors.ErrDecode},
		{name: "truncated varint", id: base64.RawURLEncoding.EncodeToString([]byte{0x08, 0x13, 0x22, 0x90}), wantErr: coreerrors.ErrDecode},
		{name: "relative payload", id: legacyIdentifier("/local/path"), wantErr: coreerrors.ErrValidation},
		{name: "other scheme", id: legacyIdentifier("ftp://example.com/x"), wantErr: coreerrors.ErrNotAbsoluteURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeIdentifier(tt.id)

			require.Equal(t, Unresolvable, got.Kind)

			if !errors.Is(got.Err, tt.wantErr) {
				t.Errorf("DecodeIdentifier() err = %v, want %v", got.Err, tt.wantErr)
			}
		})
	}
}

func TestBinaryDecoderAttempt(t *testing.T) {
	link, err := ParseRedirectLink("https://news.google.com/rss/articles/"+legacyIdentifier("https://example.com/a")+"?oc=5", DefaultRedirectHost)
	require.NoError(t, err)

	got := BinaryDecoder{}.Attempt(context.Background(), Input{Link: link})

	require.Equal(t, Resolved, got.Kind)
	require.Equal(t, "https://example.com/a", got.URL)
	require.Equal(t, StrategyBinary, BinaryDecoder{}.Name())
}
