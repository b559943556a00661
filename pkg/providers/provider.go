// Package providers implements the Provider Client (spec.md §4.C): a
// uniform contract over one external content API with shared
// cache/rate-limit/retry/breaker/metrics plumbing, so concrete clients
// differ only in base URL, auth injection, request shape, and the
// transform step.
package providers

import (
	"context"
	"time"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
)

// SearchOptions carries the caller's query shaping knobs through to a
// concrete client's request builder.
type SearchOptions struct {
	Limit       int
	Topics      []string
	Location    string
	SearchDepth string

	// Owner attributes this call's cost to a requesting owner in the
	// Cost Ledger (spec.md §4.D); empty means untracked/anonymous.
	Owner string

	// NonBlocking makes the rate-limiter step a single non-blocking
	// TryAcquire instead of a queued Acquire, for callers on a tight
	// soft deadline (e.g. the enrichment fallback fetch) that would
	// rather skip a currently-throttled provider than wait it out.
	NonBlocking bool
}

// Response is what a Provider Client returns for one search call.
type Response struct {
	Items    []models.CandidateItem
	Cached   bool
	Latency  time.Duration
	Cost     float64
	Provider string
}

// Client is the uniform contract every concrete provider implements
// (spec.md §4.C: "search(query, options) -> ProviderResponse").
type Client interface {
	Descriptor() models.ProviderDescriptor
	Search(ctx context.Context, query string, opts SearchOptions) (Response, error)
}

// Transformer normalizes one provider's raw response body into
// CandidateItems. Every surviving item MUST carry a title, a source
// name, and a stable fingerprint (spec.md §4.C).
type Transformer func(raw []byte, contentType string, query string) ([]models.CandidateItem, error)

// RequestBuilder constructs the outbound HTTP request for one search
// call; auth injection is the builder's responsibility so BaseClient
// stays auth-mode-agnostic.
type RequestBuilder func(ctx context.Context, descriptor models.ProviderDescriptor, query string, opts SearchOptions) (method string, url string, body []byte, headers map[string]string, err error)
