package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jose "github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"

	domainoauth "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain/oauth"
)

const githubEmailsURL = "https://api.github.com/user/emails"

var idTokenAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.EdDSA, jose.HS256,
}

// ProviderClient encapsulates outbound HTTP calls to external IdPs.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, provider domainoauth.ProviderConfig, code, codeVerifier string) (*domainoauth.TokenResponse, error)
	DecodeIDToken(ctx context.Context, provider domainoauth.ProviderConfig, rawIDToken string) (*domainoauth.UserInfo, error)
	FetchUserInfo(ctx context.Context, provider domainoauth.ProviderConfig, accessToken string) (*domainoauth.UserInfo, error)
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	httpClient *http.Client

	mu        sync.Mutex
	verifiers map[string]*oidc.IDTokenVerifier
	emailsURL string
}

var _ ProviderClient = (*HTTPProviderClient)(nil)

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{
		httpClient: client,
		verifiers:  make(map[string]*oidc.IDTokenVerifier),
		emailsURL:  githubEmailsURL,
	}
}

// ExchangeCode performs the OAuth token exchange.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, provider domainoauth.ProviderConfig, code, codeVerifier string) (*domainoauth.TokenResponse, error) {
	if strings.TrimSpace(provider.TokenURL) == "" {
		return nil, fmt.Errorf("token url missing")
	}
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", provider.RedirectURL)
	data.Set("client_id", provider.ClientID)
	if provider.ClientSecret != "" {
		data.Set("client_secret", provider.ClientSecret)
	}
	if strings.TrimSpace(codeVerifier) != "" {
		data.Set("code_verifier", codeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var raw map[string]any
	if err := c.doJSON(req, &raw); err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	if errCode := stringValue(raw["error"]); errCode != "" {
		return nil, fmt.Errorf("token exchange: %s: %w", errCode, domainoauth.ErrTokenInvalid)
	}

	token := &domainoauth.TokenResponse{
		AccessToken:  stringValue(raw["access_token"]),
		RefreshToken: stringValue(raw["refresh_token"]),
		TokenType:    stringValue(raw["token_type"]),
		IDToken:      stringValue(raw["id_token"]),
		Scope:        stringValue(raw["scope"]),
		Raw:          raw,
	}
	if exp := raw["expires_in"]; exp != nil {
		token.ExpiresIn = int64Value(exp)
	}
	if token.AccessToken == "" && token.IDToken == "" {
		return nil, fmt.Errorf("token exchange: empty response: %w", domainoauth.ErrTokenInvalid)
	}
	return token, nil
}

// DecodeIDToken extracts identity claims. With an issuer configured the token
// is verified against the issuer's keys; otherwise the claims are read from
// the token as received from the token endpoint.
func (c *HTTPProviderClient) DecodeIDToken(ctx context.Context, provider domainoauth.ProviderConfig, rawIDToken string) (*domainoauth.UserInfo, error) {
	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified any    `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}

	if strings.TrimSpace(provider.IssuerURL) != "" {
		verifier, err := c.verifier(ctx, provider)
		if err != nil {
			return nil, err
		}
		idToken, err := verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, fmt.Errorf("verify id token: %v: %w", err, domainoauth.ErrTokenInvalid)
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, fmt.Errorf("decode id token claims: %w", err)
		}
	} else {
		tok, err := josejwt.ParseSigned(rawIDToken, idTokenAlgorithms)
		if err != nil {
			return nil, fmt.Errorf("parse id token: %v: %w", err, domainoauth.ErrTokenInvalid)
		}
		if err := tok.UnsafeClaimsWithoutVerification(&claims); err != nil {
			return nil, fmt.Errorf("decode id token claims: %w", err)
		}
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("id token without subject: %w", domainoauth.ErrTokenInvalid)
	}
	return &domainoauth.UserInfo{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: boolValue(claims.EmailVerified),
		Name:          claims.Name,
		Picture:       claims.Picture,
		Provider:      provider.Name,
	}, nil
}

// FetchUserInfo loads the userinfo endpoint profile.
func (c *HTTPProviderClient) FetchUserInfo(ctx context.Context, provider domainoauth.ProviderConfig, accessToken string) (*domainoauth.UserInfo, error) {
	if strings.TrimSpace(provider.UserInfoURL) == "" {
		return nil, fmt.Errorf("userinfo url missing")
	}
	req, err := c.bearerRequest(ctx, provider.UserInfoURL, accessToken)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}

	var raw map[string]any
	if err := c.doJSON(req, &raw); err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}

	info := &domainoauth.UserInfo{
		Subject:       stringValue(coalesce(raw["sub"], raw["id"])),
		Email:         stringValue(coalesce(raw["email"], raw["mail"])),
		EmailVerified: boolValue(raw["email_verified"]),
		Name:          stringValue(coalesce(raw["name"], raw["login"], raw["displayName"])),
		Picture:       stringValue(coalesce(raw["picture"], raw["avatar_url"])),
		Provider:      provider.Name,
	}
	if info.Subject == "" {
		return nil, fmt.Errorf("userinfo without subject: %w", domainoauth.ErrTokenInvalid)
	}

	// GitHub omits private emails from /user and never sets email_verified.
	if provider.Name == "github" {
		email, verified, err := c.githubPrimaryEmail(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		if email != "" {
			info.Email, info.EmailVerified = email, verified
		}
	}
	return info, nil
}

func (c *HTTPProviderClient) githubPrimaryEmail(ctx context.Context, accessToken string) (string, bool, error) {
	req, err := c.bearerRequest(ctx, c.emailsURL, accessToken)
	if err != nil {
		return "", false, fmt.Errorf("build emails request: %w", err)
	}
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := c.doJSON(req, &emails); err != nil {
		return "", false, fmt.Errorf("github emails: %w", err)
	}
	for _, e := range emails {
		if e.Primary {
			return e.Email, e.Verified, nil
		}
	}
	return "", false, nil
}

func (c *HTTPProviderClient) verifier(ctx context.Context, provider domainoauth.ProviderConfig) (*oidc.IDTokenVerifier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := provider.IssuerURL + "|" + provider.ClientID
	if v, ok := c.verifiers[key]; ok {
		return v, nil
	}
	p, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), provider.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover issuer %s: %w", provider.IssuerURL, err)
	}
	v := p.Verifier(&oidc.Config{ClientID: provider.ClientID})
	c.verifiers[key] = v
	return v, nil
}

func (c *HTTPProviderClient) bearerRequest(ctx context.Context, target, accessToken string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *HTTPProviderClient) doJSON(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status=%d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func boolValue(input any) bool {
	switch v := input.(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func coalesce(values ...any) any {
	for _, v := range values {
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				return v
			}
		case nil:
			continue
		default:
			return v
		}
	}
	return nil
}
