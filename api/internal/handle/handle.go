package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"homework-mentor/api/internal/apperr"
	"homework-mentor/api/internal/llm"
	"homework-mentor/api/internal/store"
)

// SolutionCache is the subset of store.SolutionRepo the handlers use.
type SolutionCache interface {
	Find(ctx context.Context, k store.Key, maxAge time.Duration) (string, bool, error)
	Upsert(ctx context.Context, k store.Key, solution string) error
}

type Handle struct {
	engs *llm.Engines

	cache     SolutionCache
	cacheTTL  time.Duration
	maxUpload int64
	timeout   time.Duration
}

type Option func(*Handle)

// WithCache enables the solution cache. A nil cache leaves it disabled.
func WithCache(c SolutionCache, ttl time.Duration) Option {
	return func(h *Handle) {
		h.cache = c
		h.cacheTTL = ttl
	}
}

func WithMaxUpload(n int64) Option {
	return func(h *Handle) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(h *Handle) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func New(engs *llm.Engines, opts ...Option) *Handle {
	h := &Handle{
		engs:      engs,
		maxUpload: 10 << 20,
		timeout:   180 * time.Second,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"error","code"}. Anything that is not an
// *apperr.Error becomes a 500.
func writeError(w http.ResponseWriter, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal().WithDebug(err)
	}
	writeJSON(w, e.HTTPStatus(), map[string]string{"error": e.Error(), "code": e.Code()})
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
