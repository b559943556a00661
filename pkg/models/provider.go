package models

import "time"

// ProviderCategory groups providers by what kind of content they return.
type ProviderCategory string

const (
	CategoryHistorical ProviderCategory = "historical"
	CategoryCultural   ProviderCategory = "cultural"
	CategoryTourism    ProviderCategory = "tourism"
	CategoryGeographic ProviderCategory = "geographic"
	CategoryAcademic   ProviderCategory = "academic"
	CategoryNews       ProviderCategory = "news"
	CategoryGovernment ProviderCategory = "government"
)

// ProviderTier reflects the cost tier of the external API itself, not
// the requesting user's Tier.
type ProviderTier string

const (
	ProviderFree     ProviderTier = "free"
	ProviderFreemium ProviderTier = "freemium"
	ProviderPremium  ProviderTier = "premium"
)

// AuthMode selects how a credential is injected into provider requests.
type AuthMode string

const (
	AuthNone      AuthMode = "none"
	AuthHeaderKey AuthMode = "header_key"
	AuthQueryKey  AuthMode = "query_key"
	AuthBearer    AuthMode = "bearer"
)

// ProviderDescriptor is the process-lifetime-constant configuration
// record for one external content provider (spec.md §3, §6). All
// provider URLs and auth names are configuration, not code: instances
// are loaded from YAML at startup, never hardcoded per-client.
type ProviderDescriptor struct {
	Name          string           `yaml:"name" json:"name"`
	Category      ProviderCategory `yaml:"category" json:"category"`
	Tier          ProviderTier     `yaml:"tier" json:"tier"`
	BaseURL       string           `yaml:"base_url" json:"base_url"`
	AuthMode      AuthMode         `yaml:"auth_mode" json:"auth_mode"`
	AuthParam     string           `yaml:"auth_param" json:"auth_param"`
	KeyEnvVar     string           `yaml:"key_env_var" json:"key_env_var"`
	RateLimit     float64          `yaml:"rate_limit" json:"rate_limit"`
	RatePeriod    time.Duration    `yaml:"rate_period" json:"rate_period"`
	CostPerRequest float64         `yaml:"cost_per_request" json:"cost_per_request"`
	CacheTTL      time.Duration    `yaml:"cache_ttl" json:"cache_ttl"`
	Timeout       time.Duration    `yaml:"timeout" json:"timeout"`
	MaxRetries    int              `yaml:"max_retries" json:"max_retries"`
}

// BudgetConfig is the per-tier spend policy consulted by the Cost
// Ledger and Orchestrator (spec.md §3).
type BudgetConfig struct {
	MaxCostPerRequest  float64
	PreferredFreeRatio float64
	MinQuality         float64
}

// DefaultBudgetConfigs returns the per-tier budgets used when no
// operator override is configured.
func DefaultBudgetConfigs() map[Tier]BudgetConfig {
	return map[Tier]BudgetConfig{
		TierFree: {
			MaxCostPerRequest:  0.0,
			PreferredFreeRatio: 1.0,
			MinQuality:         0.3,
		},
		TierFreemium: {
			MaxCostPerRequest:  0.05,
			PreferredFreeRatio: 0.6,
			MinQuality:         0.35,
		},
		TierPremium: {
			MaxCostPerRequest:  0.50,
			PreferredFreeRatio: 0.2,
			MinQuality:         0.4,
		},
	}
}

// CostEntry is an append-only record of one provider call's spend.
type CostEntry struct {
	Provider  string    `json:"provider"`
	Amount    float64   `json:"amount"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Kind      string    `json:"kind"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// CachedResponse is the shared cache's unit of storage (spec.md §3).
type CachedResponse struct {
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	ExpiresAt time.Time `json:"expires_at"`
}
