// Package httpapi exposes the resolver over HTTP.
//
//	GET  /resolve?url=<redirect-link>
//	POST /resolve  {"urls": ["<redirect-link>", ...]}
//
// Each result carries the link to use: the publisher URL when resolution
// succeeded, otherwise the original input.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const (
	maxBatchSize   = 100
	maxBodyBytes   = 1 << 20
	requestTimeout = 60 * time.Second
	contentType    = "application/json"
)

var (
	errMissingURL    = errors.New("url parameter is required")
	errEmptyBatch    = errors.New("urls must not be empty")
	errBatchTooLarge = errors.New("too many urls")
)

// Resolver is the part of the engine the API serves.
type Resolver interface {
	IsEligible(link string) bool
	Resolve(ctx context.Context, link string) (string, bool)
}

// Result is one resolved link.
type Result struct {
	URL      string `json:"url"`
	Link     string `json:"link"`
	Resolved bool   `json:"resolved"`
	Eligible bool   `json:"eligible"`
}

type batchRequest struct {
	URLs []string `json:"urls"`
}

type batchResponse struct {
	Results []Result `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	resolver Resolver
	logger   *zerolog.Logger
}

// NewRouter builds the API routes.
func NewRouter(resolver Resolver, logger *zerolog.Logger) http.Handler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	h := &handler{resolver: resolver, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, middleware.Timeout(requestTimeout), h.logRequests)

	r.Get("/resolve", h.resolve)
	r.Post("/resolve", h.resolveBatch)

	return r
}

func (h *handler) resolve(w http.ResponseWriter, r *http.Request) {
	link := r.URL.Query().Get("url")
	if link == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errMissingURL.Error()})
		return
	}

	writeJSON(w, http.StatusOK, h.resolveOne(r.Context(), link))
}

func (h *handler) resolveBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest

	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	switch {
	case len(req.URLs) == 0:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errEmptyBatch.Error()})
		return
	case len(req.URLs) > maxBatchSize:
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: errBatchTooLarge.Error()})
		return
	}

	resp := batchResponse{Results: make([]Result, 0, len(req.URLs))}

	for _, link := range req.URLs {
		resp.Results = append(resp.Results, h.resolveOne(r.Context(), link))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) resolveOne(ctx context.Context, link string) Result {
	res := Result{URL: link, Link: link, Eligible: h.resolver.IsEligible(link)}
	if !res.Eligible {
		return res
	}

	if resolved, ok := h.resolver.Resolve(ctx, link); ok {
		res.Link = resolved
		res.Resolved = true
	}

	return res
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("api request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)

	//nolint:errcheck // the client may have gone away
	_ = json.NewEncoder(w).Encode(v)
}
