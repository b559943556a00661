package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/cache"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/carcerr"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/clients"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/logging"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/ratelimit"
)

// CostRecorder is the Provider Client's view of the Cost Ledger (§4.D):
// narrow enough that providers never depends on the ledger package,
// only on this interface.
type CostRecorder interface {
	Track(provider string, cost float64, owner string, success bool)
}

// noopRecorder is used when a BaseClient is built without a ledger,
// e.g. in isolated unit tests.
type noopRecorder struct{}

func (noopRecorder) Track(string, float64, string, bool) {}

// BaseClientConfig wires one provider's shared plumbing.
type BaseClientConfig struct {
	Descriptor models.ProviderDescriptor
	Buckets    *ratelimit.Registry
	Cache      *cache.Cache
	Ledger     CostRecorder
	Logger     logging.Logger

	HTTPClient *http.Client
	Build      RequestBuilder
	Transform  Transformer

	// breaker is the per-provider circuit breaker NewBaseClient builds;
	// callers do not set it.
	breaker *clients.CircuitBreaker
}

// BaseClient implements the seven-step algorithm of spec.md §4.C that
// every concrete Provider Client inherits unchanged: cache lookup,
// rate-limiter acquire, HTTP with retry, parse, cache write, metrics.
type BaseClient struct {
	cfg BaseClientConfig
	// disabledForAuth, once set true by a 401/403 response, makes
	// every subsequent Search fail fast (spec.md §7: AuthFailure
	// "disable client for the process lifetime").
	disabledForAuth bool
}

// NewBaseClient builds the shared plumbing for one provider. Concrete
// clients embed *BaseClient and call Search from their own Search
// method (which exists only to satisfy Client's method set and to let
// concrete providers override Descriptor()).
func NewBaseClient(cfg BaseClientConfig) *BaseClient {
	if cfg.HTTPClient == nil {
		timeout := cfg.Descriptor.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	if cfg.Ledger == nil {
		cfg.Ledger = noopRecorder{}
	}
	cfg.breaker = clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
		Name:   cfg.Descriptor.Name,
		Logger: cfg.Logger,
		ClassifyFailure: func(err error) bool {
			// 4xx (AuthFailure, RateLimitedUpstream) never trips the
			// breaker; only Transport/ParseFailure do (spec.md §7).
			kind, ok := carcerr.KindOf(err)
			if !ok {
				return true
			}
			return kind == carcerr.KindTransport || kind == carcerr.KindParseFailure
		},
	})
	return &BaseClient{cfg: cfg}
}

func (b *BaseClient) Descriptor() models.ProviderDescriptor { return b.cfg.Descriptor }

// fingerprintKey builds the cache key spec.md §3 names:
// fingerprint(provider, endpoint, params).
func fingerprintKey(provider, method, url string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Search runs the shared seven-step pipeline and hands the parsed
// payload to the provider-supplied Transform.
func (b *BaseClient) Search(ctx context.Context, query string, opts SearchOptions) (Response, error) {
	name := b.cfg.Descriptor.Name
	if contextCanceled(ctx) {
		return Response{}, carcerr.Cancelled(fmt.Sprintf("%s: context already done", name))
	}
	if b.disabledForAuth {
		return Response{}, carcerr.AuthFailure(name, "client disabled after prior auth failure", nil)
	}

	method, url, body, headers, err := b.cfg.Build(ctx, b.cfg.Descriptor, query, opts)
	if err != nil {
		return Response{}, carcerr.Internal(fmt.Sprintf("%s: build request: %v", name, err), err)
	}
	key := fingerprintKey(name, method, url, body)

	// Step 1: cache lookup. Cache hits bypass the rate limiter but
	// still respect the breaker per spec.md Invariant 7.
	if b.cfg.Cache != nil {
		if cached, ok := b.cfg.Cache.Peek(key); ok {
			if items, ok := cached.([]models.CandidateItem); ok {
				return Response{Items: items, Cached: true, Provider: name}, nil
			}
		}
	}
	if b.cfg.breaker.IsOpen() {
		return Response{}, carcerr.CircuitOpen(name)
	}

	// Step 2: rate-limiter acquire. NonBlocking callers get a single
	// TryAcquire rather than a queued wait (see SearchOptions.NonBlocking).
	if b.cfg.Buckets != nil {
		bucket := b.cfg.Buckets.Get(name, b.cfg.Descriptor.RateLimit, b.cfg.Descriptor.RatePeriod)
		if opts.NonBlocking {
			if !bucket.TryAcquire() {
				return Response{}, carcerr.RateLimitedUpstream(name, "no token available for a non-blocking acquire", nil)
			}
		} else if err := bucket.Acquire(ctx); err != nil {
			return Response{}, carcerr.Cancelled(fmt.Sprintf("%s: rate limiter wait aborted: %v", name, err))
		}
	}

	start := time.Now()
	// Circuit breaking for this provider happens at the BaseClient
	// level via b.cfg.breaker.Call below, wrapping the whole retry
	// sequence; the executor itself only owns the retry policy.
	executor := clients.NewHTTPExecutor(clients.HTTPExecutorConfig{
		MaxRetries:  b.cfg.Descriptor.MaxRetries,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
		ShouldRetry: clients.DefaultShouldRetry,
	})

	var resp *http.Response
	cbErr := b.cfg.breaker.Call(func() error {
		req, buildErr := http.NewRequestWithContext(ctx, method, url, strings.NewReader(string(body)))
		if buildErr != nil {
			return carcerr.Internal(fmt.Sprintf("%s: new request: %v", name, buildErr), buildErr)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		var execErr error
		// Step 3+4: HTTP with per-provider timeout, retry with backoff.
		resp, execErr = clients.ExecuteHTTP(ctx, executor, func() (*http.Response, error) {
			return b.cfg.HTTPClient.Do(req)
		})
		if execErr != nil {
			if ctx.Err() != nil {
				return carcerr.Cancelled(fmt.Sprintf("%s: %v", name, ctx.Err()))
			}
			return carcerr.Transport(name, execErr.Error(), execErr)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return carcerr.AuthFailure(name, fmt.Sprintf("status %d", resp.StatusCode), nil)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return carcerr.RateLimitedUpstream(name, resp.Header.Get("Retry-After"), nil)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return carcerr.Transport(name, fmt.Sprintf("status %d", resp.StatusCode), nil)
		}
		return nil
	})

	latency := time.Since(start)

	if cbErr != nil {
		if kind, ok := carcerr.KindOf(cbErr); ok && kind == carcerr.KindAuthFailure {
			b.disabledForAuth = true
		}
		// Cost is recorded only once an HTTP reply was actually
		// received (spec.md §9 Design Notes); transport-level failures
		// (including circuit-open short-circuits) record nothing.
		if resp != nil {
			b.cfg.Ledger.Track(name, b.cfg.Descriptor.CostPerRequest, opts.Owner, false)
		}
		return Response{Provider: name, Latency: latency}, cbErr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{Provider: name, Latency: latency}, carcerr.Transport(name, fmt.Sprintf("read body: %v", err), err)
	}

	// Step 5: parse per content-type via the provider-supplied transform.
	items, err := b.cfg.Transform(raw, resp.Header.Get("Content-Type"), query)
	if err != nil {
		b.cfg.Ledger.Track(name, b.cfg.Descriptor.CostPerRequest, opts.Owner, true)
		return Response{Provider: name, Latency: latency}, carcerr.ParseFailure(name, err.Error(), err)
	}

	// Step 6: cache write on success.
	if b.cfg.Cache != nil {
		b.cfg.Cache.Set(key, items, b.cfg.Descriptor.CacheTTL)
	}

	// Step 7: per-request metrics and cost ledger update.
	b.cfg.Ledger.Track(name, b.cfg.Descriptor.CostPerRequest, opts.Owner, true)

	return Response{
		Items:    items,
		Cached:   false,
		Latency:  latency,
		Cost:     b.cfg.Descriptor.CostPerRequest,
		Provider: name,
	}, nil
}

// Fingerprint hashes title + source + canonical location/date into the
// stable dedup key every surviving CandidateItem must carry (spec.md
// §4.C, Invariant 6).
func Fingerprint(title, source, location, date string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(title))))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(source))))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(location))))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(date)))
	return hex.EncodeToString(h.Sum(nil))[:24]
}

// decodeJSONArray is a small helper most transformers share: decode a
// top-level object or array of objects into a slice of maps for field
// extraction without committing to one schema.
func decodeJSONArray(raw []byte, arrayPath ...string) ([]map[string]interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for _, key := range arrayPath {
		m, ok := doc.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected object navigating to %q", key)
		}
		doc = m[key]
	}
	arr, ok := doc.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected array at terminal path")
	}
	out := make([]map[string]interface{}, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out, nil
}
