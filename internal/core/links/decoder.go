package links

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	coreerrors "github.com/lueurxax/gnews-link-resolver/internal/core/errors"
)

// StrategyBinary is the name of the offline identifier decoder.
const StrategyBinary = "binary"

// opaqueTokenSentinel starts the payload of identifiers that no longer embed
// the URL and must be resolved through the batchexecute RPC.
const opaqueTokenSentinel = "AU_yqL"

const (
	base64Quantum      = 4
	lengthContinuation = 0x80
	lengthLowBits      = 0x7f
	lengthHighShift    = 7
)

var (
	legacyPrefix = []byte{0x08, 0x13, 0x22}
	legacySuffix = []byte{0xd2, 0x01, 0x00}

	urlSafeReplacer = strings.NewReplacer("-", "+", "_", "/")
)

// BinaryDecoder decodes identifiers that embed the original URL directly.
type BinaryDecoder struct{}

func (BinaryDecoder) Name() string { return StrategyBinary }

func (BinaryDecoder) Attempt(_ context.Context, in Input) Candidate {
	return DecodeIdentifier(in.Link.Identifier)
}

// DecodeIdentifier decodes an article identifier without any I/O.
//
// The identifier is URL-safe Base64 of a length-prefixed payload, optionally
// wrapped in fixed prefix and suffix markers. A payload starting with the
// opaque-token sentinel needs the RPC; an absolute URL payload is returned as is.
func DecodeIdentifier(identifier string) Candidate {
	raw, err := decodeBase64Identifier(identifier)
	if err != nil {
		return unresolvable(err)
	}

	payload, err := extractPayload(raw)
	if err != nil {
		return unresolvable(err)
	}

	if bytes.HasPrefix(payload, []byte(opaqueTokenSentinel)) {
		return remoteCandidate(identifier)
	}

	s := string(payload)
	if !IsAbsoluteURL(s) {
		return unresolvable(fmt.Errorf("%w: decoded payload", coreerrors.ErrNotAbsoluteURL))
	}

	return resolvedCandidate(s)
}

func decodeBase64Identifier(identifier string) ([]byte, error) {
	if identifier == "" {
		return nil, fmt.Errorf("%w: empty identifier", coreerrors.ErrDecode)
	}

	s := urlSafeReplacer.Replace(identifier)
	if rem := len(s) % base64Quantum; rem != 0 {
		s += strings.Repeat("=", base64Quantum-rem)
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %w", coreerrors.ErrDecode, err)
	}

	return raw, nil
}

// extractPayload strips the markers and reads the length-prefixed payload.
// A length byte with the continuation bit set is followed by a second length
// byte. When fewer bytes remain than announced, the remainder is used.
func extractPayload(raw []byte) ([]byte, error) {
	data := bytes.TrimPrefix(raw, legacyPrefix)
	data = bytes.TrimSuffix(data, legacySuffix)

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no payload", coreerrors.ErrDecode)
	}

	length := int(data[0])
	offset := 1

	if length >= lengthContinuation {
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: truncated length prefix", coreerrors.ErrDecode)
		}

		length = length&lengthLowBits | int(data[1])<<lengthHighShift
		offset = 2
	}

	end := offset + length
	if end > len(data) {
		end = len(data)
	}

	payload := data[offset:end]
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", coreerrors.ErrDecode)
	}

	return payload, nil
}
