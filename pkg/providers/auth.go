package providers

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
)

// injectAuth applies a descriptor's auth_mode to an outbound request,
// reading the credential from KeyEnvVar. Absence of the env var for a
// paid provider disables only that client, never startup (spec.md §6
// "Environment").
func injectAuth(d models.ProviderDescriptor, rawURL string, headers map[string]string) (string, map[string]string, error) {
	if d.AuthMode == models.AuthNone {
		return rawURL, headers, nil
	}
	key := os.Getenv(d.KeyEnvVar)
	if key == "" {
		return "", nil, fmt.Errorf("provider %s: required credential %s is not set", d.Name, d.KeyEnvVar)
	}
	switch d.AuthMode {
	case models.AuthHeaderKey:
		param := d.AuthParam
		if param == "" {
			param = "Authorization"
		}
		headers[param] = key
		return rawURL, headers, nil
	case models.AuthQueryKey:
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", nil, err
		}
		param := d.AuthParam
		if param == "" {
			param = "api_key"
		}
		q := u.Query()
		q.Set(param, key)
		u.RawQuery = q.Encode()
		return u.String(), headers, nil
	case models.AuthBearer:
		headers["Authorization"] = "Bearer " + key
		return rawURL, headers, nil
	default:
		return rawURL, headers, nil
	}
}

// contextCanceled is a tiny readability helper BaseClient.Search uses
// to bail out before any cache/rate-limiter/HTTP work when the caller's
// context is already done.
func contextCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// envOrEmpty reads a credential without the URL/header injection side
// effects of injectAuth, for providers (e.g. Tavily) that place the
// credential in a JSON request body instead.
func envOrEmpty(key string) string {
	return os.Getenv(key)
}
