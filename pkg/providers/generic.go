package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
)

// FieldMap tells the generic JSON provider which keys in each result
// object hold the fields a CandidateItem needs. Most of the historical
// / cultural / government / academic open-data APIs this system talks
// to are plain "array of objects" JSON with differing key names, so
// one generic provider configured per descriptor covers all of them
// without a bespoke Go type per source.
type FieldMap struct {
	ArrayPath  []string // JSON path to the results array, e.g. ["response","docs"]
	Title      string
	Body       string
	Date       string
	Location   string
	QueryParam string // query string param name, default "q"
}

// NewGenericJSONProvider builds a Provider Client for any REST API
// that returns an array of flat JSON objects, driven entirely by a
// ProviderDescriptor and FieldMap — the shape the majority of
// historical/cultural/government/academic sources take (spec.md §6:
// "all provider URLs and auth names are configuration, not code").
func NewGenericJSONProvider(d models.ProviderDescriptor, fm FieldMap, deps Deps) Client {
	queryParam := fm.QueryParam
	if queryParam == "" {
		queryParam = "q"
	}

	build := func(ctx context.Context, desc models.ProviderDescriptor, query string, opts SearchOptions) (string, string, []byte, map[string]string, error) {
		if desc.BaseURL == "" {
			return "", "", nil, nil, fmt.Errorf("provider %s: base_url is required", desc.Name)
		}
		u, err := url.Parse(desc.BaseURL)
		if err != nil {
			return "", "", nil, nil, fmt.Errorf("parse %s url: %w", desc.Name, err)
		}
		q := u.Query()
		q.Set(queryParam, query)
		if opts.Limit > 0 {
			q.Set("limit", fmt.Sprintf("%d", opts.Limit))
		}
		u.RawQuery = q.Encode()

		headers := map[string]string{"Accept": "application/json"}
		finalURL, headers, err := injectAuth(desc, u.String(), headers)
		if err != nil {
			return "", "", nil, nil, err
		}
		return "GET", finalURL, nil, headers, nil
	}

	authorityForCategory := func(cat models.ProviderCategory) string {
		switch cat {
		case models.CategoryGovernment:
			return "government"
		case models.CategoryAcademic:
			return "academic"
		case models.CategoryNews:
			return "major_news"
		case models.CategoryCultural, models.CategoryHistorical:
			return "museum"
		case models.CategoryTourism, models.CategoryGeographic:
			return "commercial"
		default:
			return "unknown"
		}
	}(d.Category)

	transform := func(raw []byte, contentType string, query string) ([]models.CandidateItem, error) {
		rows, err := decodeJSONArray(raw, fm.ArrayPath...)
		if err != nil {
			return nil, err
		}
		items := make([]models.CandidateItem, 0, len(rows))
		for _, row := range rows {
			title := stringField(row, fm.Title)
			if title == "" {
				continue
			}
			body := stringField(row, fm.Body)
			date := stringField(row, fm.Date)
			location := stringField(row, fm.Location)
			items = append(items, models.CandidateItem{
				Fingerprint:     Fingerprint(title, d.Name, location, date),
				Title:           title,
				Body:            body,
				SourceName:      d.Name,
				SourceAuthority: authorityForCategory,
				Date:            date,
				Location:        location,
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

func stringField(row map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	v, ok := row[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%v", t)
	default:
		return ""
	}
}
