package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/cache"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/carcerr"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/ratelimit"
)

type fakeLedger struct {
	entries []models.CostEntry
}

func (f *fakeLedger) Track(provider string, cost float64, owner string, success bool) {
	f.entries = append(f.entries, models.CostEntry{Provider: provider, Amount: cost, OwnerID: owner, Success: success, Timestamp: time.Now()})
}

func testDescriptor(baseURL string) models.ProviderDescriptor {
	return models.ProviderDescriptor{
		Name:           "test-provider",
		Category:       models.CategoryHistorical,
		Tier:           models.ProviderFree,
		BaseURL:        baseURL,
		AuthMode:       models.AuthNone,
		RateLimit:      1000,
		RatePeriod:     time.Second,
		CostPerRequest: 0.01,
		CacheTTL:       time.Minute,
		Timeout:        2 * time.Second,
		MaxRetries:     2,
	}
}

func TestGenericJSONProvider_SuccessPathParsesAndCaches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"Hagia Sophia","desc":"a former cathedral","year":"537"}]`))
	}))
	defer server.Close()

	ledger := &fakeLedger{}
	fm := FieldMap{Title: "name", Body: "desc", Date: "year"}
	client := NewGenericJSONProvider(testDescriptor(server.URL), fm, Deps{
		Buckets: ratelimit.NewRegistry(),
		Cache:   cache.New(cache.Options{TTL: time.Minute}, cache.MetricsHooks{}),
		Ledger:  ledger,
	})

	resp, err := client.Search(context.Background(), "hagia sophia", SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Title != "Hagia Sophia" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
	if resp.Items[0].Fingerprint == "" {
		t.Fatal("expected a non-empty fingerprint")
	}
	if len(ledger.entries) != 1 || !ledger.entries[0].Success {
		t.Fatalf("expected one successful ledger entry, got %+v", ledger.entries)
	}

	// Second call should hit the cache and bypass the rate limiter
	// entirely (spec.md Invariant 7); ledger should not grow.
	resp2, err := client.Search(context.Background(), "hagia sophia", SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error on cached call: %v", err)
	}
	if !resp2.Cached {
		t.Fatal("expected second identical call to be served from cache")
	}
	if len(ledger.entries) != 1 {
		t.Fatalf("expected cache hit not to record cost, got %d entries", len(ledger.entries))
	}
}

func TestGenericJSONProvider_AuthFailureDisablesClientForProcessLifetime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewGenericJSONProvider(testDescriptor(server.URL), FieldMap{Title: "name"}, Deps{
		Buckets: ratelimit.NewRegistry(),
		Cache:   cache.New(cache.Options{TTL: time.Minute}, cache.MetricsHooks{}),
	})

	_, err := client.Search(context.Background(), "q", SearchOptions{})
	kind, ok := carcerr.KindOf(err)
	if !ok || kind != carcerr.KindAuthFailure {
		t.Fatalf("expected AuthFailure, got %v", err)
	}

	// A second call must fail fast without another HTTP round trip,
	// and still surface AuthFailure (not CircuitOpen).
	_, err = client.Search(context.Background(), "q", SearchOptions{})
	kind, ok = carcerr.KindOf(err)
	if !ok || kind != carcerr.KindAuthFailure {
		t.Fatalf("expected the client to stay disabled with AuthFailure, got %v", err)
	}
}

func TestGenericJSONProvider_RateLimitedUpstreamDoesNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	descriptor := testDescriptor(server.URL)
	descriptor.MaxRetries = 0
	client := NewGenericJSONProvider(descriptor, FieldMap{Title: "name"}, Deps{
		Buckets: ratelimit.NewRegistry(),
		Cache:   cache.New(cache.Options{TTL: time.Minute}, cache.MetricsHooks{}),
	})

	for i := 0; i < 8; i++ {
		_, err := client.Search(context.Background(), "q", SearchOptions{})
		kind, ok := carcerr.KindOf(err)
		if !ok || kind != carcerr.KindRateLimitedUpstream {
			t.Fatalf("call %d: expected RateLimitedUpstream, got %v", i, err)
		}
	}
}

func TestGenericJSONProvider_ServerErrorsTripBreakerAfterRepeatedFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	descriptor := testDescriptor(server.URL)
	descriptor.MaxRetries = 0 // isolate breaker counting from the retry policy's own attempts
	client := NewGenericJSONProvider(descriptor, FieldMap{Title: "name"}, Deps{
		Buckets: ratelimit.NewRegistry(),
		Cache:   cache.New(cache.Options{TTL: time.Minute}, cache.MetricsHooks{}),
	})

	var lastErr error
	for i := 0; i < 6; i++ {
		_, lastErr = client.Search(context.Background(), "q", SearchOptions{})
	}
	kind, ok := carcerr.KindOf(lastErr)
	if !ok || kind != carcerr.KindCircuitOpen {
		t.Fatalf("expected breaker to be open after repeated 5xx, got %v", lastErr)
	}
}

func TestGenericJSONProvider_MissingCredentialErrorsWithoutCallingServer(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	descriptor := testDescriptor(server.URL)
	descriptor.AuthMode = models.AuthHeaderKey
	descriptor.KeyEnvVar = "CARC_TEST_PROVIDER_MISSING_KEY_XYZ"

	client := NewGenericJSONProvider(descriptor, FieldMap{Title: "name"}, Deps{
		Buckets: ratelimit.NewRegistry(),
		Cache:   cache.New(cache.Options{TTL: time.Minute}, cache.MetricsHooks{}),
	})

	_, err := client.Search(context.Background(), "q", SearchOptions{})
	if err == nil {
		t.Fatal("expected an error when the required credential is unset")
	}
	if called {
		t.Fatal("expected the request never to reach the server without a credential")
	}
}
