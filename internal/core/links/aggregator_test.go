package links

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const (
	testSignature = "AV3y_test-signature"
	testTimestamp = 1714000000
)

// fakeAggregator stands in for the aggregator: article pages, the
// batchexecute endpoint, and redirects for HEAD requests.
type fakeAggregator struct {
	srv *httptest.Server

	// page is served for /articles/ and /rss/articles/ GETs; empty means 404.
	page       string
	rssPage    string
	rpcBody    string
	rpcStatus  int
	redirectTo string

	requests atomic.Int32
	rpcCalls atomic.Int32
	lastFReq atomic.Value
}

func newFakeAggregator(t *testing.T) *fakeAggregator {
	t.Helper()

	f := &fakeAggregator{rpcStatus: http.StatusOK}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeAggregator) serve(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)

	switch {
	case r.Method == http.MethodHead:
		if f.redirectTo == "" || !strings.Contains(r.URL.Path, "/articles/") {
			w.WriteHeader(http.StatusOK)
			return
		}

		http.Redirect(w, r, f.redirectTo, http.StatusFound)
	case r.Method == http.MethodPost && r.URL.Path == batchExecutePath:
		f.rpcCalls.Add(1)

		if err := r.ParseForm(); err == nil {
			f.lastFReq.Store(r.PostForm.Get("f.req"))
		}

		if r.URL.Query().Get("rpcids") != batchExecuteRPCID || r.Header.Get("Referer") != f.srv.URL+"/" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.WriteHeader(f.rpcStatus)
		fmt.Fprint(w, f.rpcBody)
	case strings.HasPrefix(r.URL.Path, "/rss/articles/"):
		f.writePage(w, f.rssPage)
	case strings.HasPrefix(r.URL.Path, "/articles/"):
		f.writePage(w, f.page)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAggregator) writePage(w http.ResponseWriter, page string) {
	if page == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, page)
}

func (f *fakeAggregator) host() string {
	u, _ := url.Parse(f.srv.URL) //nolint:errcheck // httptest URL is valid
	return u.Host
}

func (f *fakeAggregator) link(identifier string) string {
	return f.srv.URL + "/rss/articles/" + identifier + "?oc=5"
}

func (f *fakeAggregator) lastRequest() string {
	v, _ := f.lastFReq.Load().(string) //nolint:errcheck // zero value is fine
	return v
}

func articlePage(sig string, ts string) string {
	return `<html><body><c-wiz><div jscontroller="aLI87" data-n-a-id="x" data-n-a-sg="` + sig +
		`" data-n-a-ts="` + ts + `"></div></c-wiz></body></html>`
}

// newPublisher serves 200 for every request and returns its base URL.
func newPublisher(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	return srv.URL
}

func newTestFetcher() *WebFetcher {
	return NewWebFetcher(100, "gnews-test/1.0")
}

func newTestRPC(agg *fakeAggregator) *RPCResolver {
	logger := zerolog.Nop()

	return NewRPCResolver(newTestFetcher(), RPCOptions{
		BaseURL:     agg.srv.URL,
		PageTimeout: 2 * time.Second,
		RPCTimeout:  2 * time.Second,
	}, &logger)
}
