package providers

import (
	"net/http"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/cache"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/logging"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/ratelimit"
)

// Deps bundles the plumbing every concrete provider constructor needs
// so call sites don't repeat five constructor arguments per client.
type Deps struct {
	Buckets    *ratelimit.Registry
	Cache      *cache.Cache
	Ledger     CostRecorder
	Logger     logging.Logger
	HTTPClient *http.Client
}
