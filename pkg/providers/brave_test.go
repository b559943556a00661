package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/cache"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/ratelimit"
)

func TestBraveProvider_Search(t *testing.T) {
	t.Parallel()

	errCh := make(chan error, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "brave-key" {
			errCh <- fmt.Errorf("missing brave api key")
			return
		}
		if got := r.URL.Query().Get("q"); got != "streaming" {
			errCh <- fmt.Errorf("expected query streaming, got %q", got)
			return
		}
		resp := braveResponse{}
		resp.Web.Results = []struct {
			Title       string  `json:"title"`
			URL         string  `json:"url"`
			Description string  `json:"description"`
			Score       float64 `json:"score"`
		}{
			{Title: "Brave Result", URL: "https://brave.com", Description: "snippet", Score: 0.88},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	t.Setenv("CARC_TEST_BRAVE_KEY", "brave-key")
	descriptor := testDescriptor(server.URL)
	descriptor.AuthMode = models.AuthHeaderKey
	descriptor.AuthParam = "X-Subscription-Token"
	descriptor.KeyEnvVar = "CARC_TEST_BRAVE_KEY"

	provider := NewBraveProvider(descriptor, Deps{
		Buckets: ratelimit.NewRegistry(),
		Cache:   cache.New(cache.Options{TTL: time.Minute}, cache.MetricsHooks{}),
	})

	resp, err := provider.Search(context.Background(), "streaming", SearchOptions{Limit: 3})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("handler error: %v", err)
	default:
	}
	if len(resp.Items) != 1 || resp.Items[0].Title != "Brave Result" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
	if resp.Items[0].SourceAuthority != "commercial" {
		t.Fatalf("expected commercial authority, got %q", resp.Items[0].SourceAuthority)
	}
}
