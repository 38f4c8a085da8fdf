package links

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "github.com/lueurxax/gnews-link-resolver/internal/core/errors"
)

func TestParseDecodingParams(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		want    DecodingParams
		wantErr error
	}{
		{
			name: "attributes on one element",
			page: articlePage("sig1", "1700000000"),
			want: DecodingParams{Signature: "sig1", Timestamp: 1700000000},
		},
		{
			name: "first complete element wins",
			page: `<div data-n-a-sg="" data-n-a-ts="1"></div><div data-n-a-sg="only"></div>` + articlePage("sig2", "42") + articlePage("sig3", "43"),
			want: DecodingParams{Signature: "sig2", Timestamp: 42},
		},
		{
			name:    "missing attributes",
			page:    "<html><body><div data-n-a-id='x'></div></body></html>",
			wantErr: coreerrors.ErrMissingParams,
		},
		{
			name:    "non numeric timestamp",
			page:    articlePage("sig", "soon"),
			wantErr: coreerrors.ErrMissingParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecodingParams([]byte(tt.page))

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseDecodingParams() err = %v, want %v", err, tt.wantErr)
				}

				require.ErrorIs(t, err, coreerrors.ErrParse)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRPCResolverResolveIdentifier(t *testing.T) {
	agg := newFakeAggregator(t)
	agg.page = articlePage(testSignature, strconv.Itoa(testTimestamp))
	agg.rpcBody = batchResponse(testPublisherURL)

	got, err := newTestRPC(agg).ResolveIdentifier(context.Background(), "CBMiOpaque")
	require.NoError(t, err)
	require.Equal(t, testPublisherURL, got)
	require.Equal(t, int32(1), agg.rpcCalls.Load())

	freq := agg.lastRequest()
	require.Contains(t, freq, `\"CBMiOpaque\",1714000000,\"AV3y_test-signature\"`)
	require.Contains(t, freq, `[[["Fbv4je",`)
}

func TestRPCResolverFallsBackToRSSPage(t *testing.T) {
	agg := newFakeAggregator(t)
	agg.page = "<html><body>consent wall</body></html>"
	agg.rssPage = articlePage(testSignature, strconv.Itoa(testTimestamp))
	agg.rpcBody = batchResponse(testPublisherURL)

	params, err := newTestRPC(agg).FetchDecodingParams(context.Background(), "CBMiOpaque")
	require.NoError(t, err)
	require.Equal(t, DecodingParams{Signature: testSignature, Timestamp: testTimestamp}, params)
}

func TestRPCResolverFailures(t *testing.T) {
	tests := []struct {
		name      string
		page      string
		rpcStatus int
		rpcBody   string
		wantErr   error
		wantRPC   int32
	}{
		{name: "article page missing", wantErr: coreerrors.ErrHTTPStatusNotOK},
		{name: "no params", page: "<html></html>", wantErr: coreerrors.ErrMissingParams},
		{name: "rpc non 200", page: articlePage("s", "1"), rpcStatus: http.StatusInternalServerError, wantErr: coreerrors.ErrNetwork, wantRPC: 1},
		{name: "rpc shape changed", page: articlePage("s", "1"), rpcStatus: http.StatusOK, rpcBody: ")]}'\n\n[[\"er\",null]]", wantErr: coreerrors.ErrProtocolShape, wantRPC: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := newFakeAggregator(t)
			agg.page = tt.page
			agg.rpcBody = tt.rpcBody

			if tt.rpcStatus != 0 {
				agg.rpcStatus = tt.rpcStatus
			}

			_, err := newTestRPC(agg).ResolveIdentifier(context.Background(), "CBMiOpaque")

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ResolveIdentifier() err = %v, want %v", err, tt.wantErr)
			}

			require.Equal(t, tt.wantRPC, agg.rpcCalls.Load(), "rpc must not be retried")
		})
	}
}

func TestRPCResolverAttemptOnlyForOpaqueTokens(t *testing.T) {
	agg := newFakeAggregator(t)
	rpc := newTestRPC(agg)

	got := rpc.Attempt(context.Background(), Input{Previous: Candidate{Kind: Unresolvable}})

	require.Equal(t, Unresolvable, got.Kind)
	require.ErrorIs(t, got.Err, ErrNotApplicable)
	require.Zero(t, agg.requests.Load())
}
