package service

import (
	"fmt"
	"sort"

	"klee-ai/internal/apperr"
	"klee-ai/internal/config"
	"klee-ai/internal/llm"
)

// ResolvedProvider is the provider a conversation answers with.
type ResolvedProvider struct {
	Provider llm.Provider
	Kind     llm.Kind
	Model    string
}

// ProviderResolver turns a conversation's provider kind and model into a
// Provider using the configured profiles. Every resolved provider shares one
// rate limiter.
type ProviderResolver struct {
	def         config.ProviderProfile
	profiles    []config.ProviderProfile
	remoteURL   string
	remoteToken string
	limiter     *llm.RateLimiter
}

// NewProviderResolver creates a resolver from cfg. limiter may be nil.
func NewProviderResolver(cfg config.Config, limiter *llm.RateLimiter) *ProviderResolver {
	profiles := make([]config.ProviderProfile, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })

	return &ProviderResolver{
		def:         cfg.Provider,
		profiles:    profiles,
		remoteURL:   cfg.RemoteCompletionURL,
		remoteToken: cfg.RemoteCompletionToken,
		limiter:     limiter,
	}
}

// Resolve picks the profile for kind, the default profile when kind is empty,
// and overrides its model when model is set.
func (r *ProviderResolver) Resolve(kind, model string) (ResolvedProvider, error) {
	profile, err := r.profileFor(kind)
	if err != nil {
		return ResolvedProvider{}, err
	}

	k, err := llm.ParseKind(profile.Kind)
	if err != nil {
		return ResolvedProvider{}, apperr.Wrap(apperr.ErrConfig, "service.ProviderResolver", err)
	}
	if model == "" {
		model = profile.Model
	}

	pc := llm.ProviderConfig{Kind: k, BaseURL: profile.BaseURL, APIKey: profile.APIKey, Model: model}
	if k.IsRemote() {
		if pc.BaseURL == "" {
			pc.BaseURL = r.remoteURL
		}
		if pc.APIKey == "" {
			pc.APIKey = r.remoteToken
		}
	}

	p, err := llm.New(pc)
	if err != nil {
		return ResolvedProvider{}, err
	}
	if !k.IsRemote() {
		p = llm.RateLimited(p, r.limiter)
	}
	return ResolvedProvider{Provider: p, Kind: k, Model: model}, nil
}

func (r *ProviderResolver) profileFor(kind string) (config.ProviderProfile, error) {
	if kind == "" || kind == r.def.Kind {
		return r.def, nil
	}
	for _, p := range r.profiles {
		if p.Kind == kind {
			return p, nil
		}
	}
	if kind == string(llm.KindKlee) {
		return config.ProviderProfile{Name: "klee", Kind: kind}, nil
	}
	return config.ProviderProfile{}, apperr.Wrap(apperr.ErrConfig, "service.ProviderResolver",
		fmt.Errorf("no provider profile for kind %q", kind))
}
