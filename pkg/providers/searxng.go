package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
)

type searxngResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// NewSearxngProvider adapts a self-hosted SearXNG instance into a free,
// community-tier enrichment Provider Client, used heavily by the
// "place" strategy's free-tier composition (spec.md §4.H).
func NewSearxngProvider(d models.ProviderDescriptor, deps Deps) Client {
	build := func(ctx context.Context, desc models.ProviderDescriptor, query string, opts SearchOptions) (string, string, []byte, map[string]string, error) {
		base := strings.TrimRight(desc.BaseURL, "/")
		if base == "" {
			return "", "", nil, nil, fmt.Errorf("provider %s: base_url is required", desc.Name)
		}
		u, err := url.Parse(base + "/search")
		if err != nil {
			return "", "", nil, nil, fmt.Errorf("parse searxng url: %w", err)
		}
		q := u.Query()
		q.Set("q", query)
		q.Set("format", "json")
		if opts.Limit > 0 {
			q.Set("count", fmt.Sprintf("%d", opts.Limit))
		}
		u.RawQuery = q.Encode()
		return "GET", u.String(), nil, map[string]string{}, nil
	}

	transform := func(raw []byte, contentType string, query string) ([]models.CandidateItem, error) {
		var decoded searxngResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		items := make([]models.CandidateItem, 0, len(decoded.Results))
		for _, r := range decoded.Results {
			if r.Title == "" {
				continue
			}
			items = append(items, models.CandidateItem{
				Fingerprint:     Fingerprint(r.Title, d.Name, "", ""),
				Title:           r.Title,
				Body:            strings.TrimSpace(r.Content),
				SourceName:      d.Name,
				SourceAuthority: "community",
				Topics:          []string{query},
				RawPayloadRef:   raw,
			})
		}
		return items, nil
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
