package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
)

// braveResponse mirrors the Brave Search API's web-results envelope.
type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string  `json:"title"`
			URL         string  `json:"url"`
			Description string  `json:"description"`
			Score       float64 `json:"score"`
		} `json:"results"`
	} `json:"web"`
}

// NewBraveProvider adapts the Brave Search API into a cultural/tourism
// enrichment Provider Client: it is never a primary historical source,
// but its free tier makes it a good "enrichment" strategy fallback
// (spec.md §4.H strategy table).
func NewBraveProvider(d models.ProviderDescriptor, deps Deps) Client {
	build := func(ctx context.Context, desc models.ProviderDescriptor, query string, opts SearchOptions) (string, string, []byte, map[string]string, error) {
		base := desc.BaseURL
		if base == "" {
			base = "https://api.search.brave.com/res/v1/web/search"
		}
		u, err := url.Parse(base)
		if err != nil {
			return "", "", nil, nil, fmt.Errorf("parse brave url: %w", err)
		}
		q := u.Query()
		q.Set("q", query)
		if opts.Limit > 0 {
			q.Set("count", fmt.Sprintf("%d", opts.Limit))
		}
		u.RawQuery = q.Encode()

		headers := map[string]string{"Accept": "application/json"}
		finalURL, headers, err := injectAuth(desc, u.String(), headers)
		if err != nil {
			return "", "", nil, nil, err
		}
		return "GET", finalURL, nil, headers, nil
	}

	transform := func(raw []byte, contentType string, query string) ([]models.CandidateItem, error) {
		return transformBraveLikeJSON(raw, d.Name, query)
	}

	return NewBaseClient(BaseClientConfig{
		Descriptor: d,
		Buckets:    deps.Buckets,
		Cache:      deps.Cache,
		Ledger:     deps.Ledger,
		Logger:     deps.Logger,
		HTTPClient: deps.HTTPClient,
		Build:      build,
		Transform:  transform,
	})
}

func transformBraveLikeJSON(raw []byte, providerName, query string) ([]models.CandidateItem, error) {
	var decoded braveResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	items := make([]models.CandidateItem, 0, len(decoded.Web.Results))
	for _, r := range decoded.Web.Results {
		if r.Title == "" {
			continue
		}
		items = append(items, models.CandidateItem{
			Fingerprint:     Fingerprint(r.Title, providerName, "", ""),
			Title:           r.Title,
			Body:            r.Description,
			SourceName:      providerName,
			SourceAuthority: "commercial",
			Topics:          []string{query},
			RawPayloadRef:   raw,
		})
	}
	return items, nil
}
