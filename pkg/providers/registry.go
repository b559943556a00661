package providers

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/burikfried-cyber/podcast-creator-sub001/pkg/models"
)

// Kind selects which concrete constructor builds a descriptor's client.
type Kind string

const (
	KindBrave   Kind = "brave"
	KindTavily  Kind = "tavily"
	KindSearxng Kind = "searxng"
	KindGeneric Kind = "generic_json"
)

// Entry is one row of the provider registry's YAML configuration: a
// ProviderDescriptor plus the constructor Kind and (for generic_json)
// the field mapping needed to normalize that source's JSON shape.
type Entry struct {
	models.ProviderDescriptor `yaml:",inline"`
	Kind                      Kind     `yaml:"kind"`
	FieldMap                  FieldMap `yaml:"field_map,omitempty"`
}

// LoadEntries reads the provider registry YAML file named by path.
// Absence of a required credential for one entry disables only that
// entry (logged, not fatal); absence of the file itself is an error
// since the registry has no content without it.
func LoadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider registry %s: %w", path, err)
	}
	var doc struct {
		Providers []Entry `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse provider registry %s: %w", path, err)
	}
	return doc.Providers, nil
}

// Registry owns every configured Provider Client for the process
// lifetime (spec.md §3 Ownership & lifecycle: "ProviderDescriptor is
// process-lifetime constant").
type Registry struct {
	clients map[string]Client
	order   []string
}

// NewRegistry constructs one Client per entry via the matching Kind
// constructor. An entry whose credential is missing is skipped with a
// warning logged, never aborting the whole registry build.
func NewRegistry(entries []Entry, deps Deps) (*Registry, []error) {
	r := &Registry{
		clients: make(map[string]Client),
	}
	var warnings []error

	for _, e := range entries {
		if e.KeyEnvVar != "" && e.AuthMode != models.AuthNone {
			if os.Getenv(e.KeyEnvVar) == "" {
				warnings = append(warnings, fmt.Errorf("provider %s: credential %s not set, client disabled", e.Name, e.KeyEnvVar))
				if deps.Logger != nil {
					deps.Logger.WithField("provider", e.Name).Warn("disabling provider: required credential not configured")
				}
				continue
			}
		}

		var client Client
		switch e.Kind {
		case KindBrave:
			client = NewBraveProvider(e.ProviderDescriptor, deps)
		case KindTavily:
			client = NewTavilyProvider(e.ProviderDescriptor, deps)
		case KindSearxng:
			client = NewSearxngProvider(e.ProviderDescriptor, deps)
		case KindGeneric, "":
			client = NewGenericJSONProvider(e.ProviderDescriptor, e.FieldMap, deps)
		default:
			warnings = append(warnings, fmt.Errorf("provider %s: unknown kind %q", e.Name, e.Kind))
			continue
		}

		r.clients[e.Name] = client
		r.order = append(r.order, e.Name)
	}
	sort.Strings(r.order)
	return r, warnings
}

// Get returns the named client, or false if it was never registered
// or was disabled for missing credentials at startup.
func (r *Registry) Get(name string) (Client, bool) {
	c, ok := r.clients[name]
	return c, ok
}

// ByTier filters registered providers down to a given ProviderTier,
// used by the Orchestrator's budget-aware strategy composition
// (spec.md §4.H: "free_ratio·5 free + remainder premium").
func (r *Registry) ByTier(tier models.ProviderTier) []string {
	var names []string
	for _, name := range r.order {
		c, ok := r.clients[name]
		if !ok {
			continue
		}
		if c.Descriptor().Tier == tier {
			names = append(names, name)
		}
	}
	return names
}

// Names returns every registered provider name in stable order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
