package orchestrator

import (
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/providers"
)

// composePrimary selects the primary fan-out set per spec.md §4.H step
// 3's "primary composition" column: a fixed free/freemium/premium mix
// drawn from the registry in stable order, capped at MaxSources.
func composePrimary(registry *providers.Registry, strategy Strategy, ownerTier models.Tier) []string {
	if registry == nil {
		return nil
	}

	var selected []string
	if strategy.PremiumRatioOfFree {
		// standout: free_ratio*5 free + remainder premium. free_ratio is
		// the owner tier's PreferredFreeRatio from the budget table.
		budget := models.DefaultBudgetConfigs()[ownerTier]
		freeCount := int(budget.PreferredFreeRatio * 5)
		selected = append(selected, take(registry.ByTier(models.ProviderFree), freeCount)...)
		remaining := strategy.MaxSources - len(selected)
		selected = append(selected, take(registry.ByTier(models.ProviderPremium), remaining)...)
	} else {
		selected = append(selected, take(registry.ByTier(models.ProviderFree), strategy.FreeCount)...)
		remaining := strategy.MaxSources - len(selected)
		selected = append(selected, take(registry.ByTier(models.ProviderFreemium), min(strategy.FreemiumCount, remaining))...)
	}

	if len(selected) > strategy.MaxSources {
		selected = selected[:strategy.MaxSources]
	}
	return dedupStrings(selected)
}

// fallbackCandidates returns every registered provider not already in
// primary, in stable order, for sequential fallback issuance (spec.md
// §4.H step 5).
func fallbackCandidates(registry *providers.Registry, primary []string) []string {
	if registry == nil {
		return nil
	}
	used := make(map[string]bool, len(primary))
	for _, name := range primary {
		used[name] = true
	}
	var out []string
	for _, name := range registry.Names() {
		if !used[name] {
			out = append(out, name)
		}
	}
	return out
}

func take(names []string, n int) []string {
	if n <= 0 || len(names) == 0 {
		return nil
	}
	if n > len(names) {
		n = len(names)
	}
	return names[:n]
}

func dedupStrings(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
