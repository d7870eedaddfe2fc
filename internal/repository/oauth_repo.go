package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain/oauth"
)

// StaticOAuthProviderConfigRepo serves provider registrations loaded from
// configuration.
type StaticOAuthProviderConfigRepo struct {
	providers map[string]oauth.ProviderConfig
}

var _ OAuthProviderConfigRepo = (*StaticOAuthProviderConfigRepo)(nil)

// NewStaticOAuthProviderConfigRepo indexes the given providers by lower-cased
// name. Providers without a client id are skipped; well-known providers get
// their public endpoints filled in.
func NewStaticOAuthProviderConfigRepo(configs ...oauth.ProviderConfig) *StaticOAuthProviderConfigRepo {
	providers := make(map[string]oauth.ProviderConfig, len(configs))
	for _, cfg := range configs {
		if strings.TrimSpace(cfg.ClientID) == "" {
			continue
		}
		cfg = withProviderDefaults(cfg)
		providers[cfg.Name] = cfg
	}
	return &StaticOAuthProviderConfigRepo{providers: providers}
}

func (r *StaticOAuthProviderConfigRepo) ListProviders(ctx context.Context) ([]oauth.ProviderConfig, error) {
	out := make([]oauth.ProviderConfig, 0, len(r.providers))
	for _, cfg := range r.providers {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *StaticOAuthProviderConfigRepo) GetProviderByName(ctx context.Context, name string) (*oauth.ProviderConfig, error) {
	target := strings.ToLower(strings.TrimSpace(name))
	cfg, ok := r.providers[target]
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", name, oauth.ErrProviderNotFound)
	}
	return &cfg, nil
}

func withProviderDefaults(cfg oauth.ProviderConfig) oauth.ProviderConfig {
	cfg.Name = strings.ToLower(strings.TrimSpace(cfg.Name))
	switch cfg.Name {
	case "google":
		cfg.IssuerURL = firstNonEmpty(cfg.IssuerURL, "https://accounts.google.com")
		cfg.AuthURL = firstNonEmpty(cfg.AuthURL, "https://accounts.google.com/o/oauth2/v2/auth")
		cfg.TokenURL = firstNonEmpty(cfg.TokenURL, "https://oauth2.googleapis.com/token")
		cfg.UserInfoURL = firstNonEmpty(cfg.UserInfoURL, "https://openidconnect.googleapis.com/v1/userinfo")
		if len(cfg.Scopes) == 0 {
			cfg.Scopes = []string{"openid", "email", "profile"}
		}
	case "github":
		cfg.AuthURL = firstNonEmpty(cfg.AuthURL, "https://github.com/login/oauth/authorize")
		cfg.TokenURL = firstNonEmpty(cfg.TokenURL, "https://github.com/login/oauth/access_token")
		cfg.UserInfoURL = firstNonEmpty(cfg.UserInfoURL, "https://api.github.com/user")
		if len(cfg.Scopes) == 0 {
			cfg.Scopes = []string{"read:user", "user:email"}
		}
	}
	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
