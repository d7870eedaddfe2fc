package oauth

import "time"

// ProviderConfig holds the client registration for an external IdP.
type ProviderConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	IssuerURL    string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	Scopes       []string
}

// State captures the state/pkce tuple persisted between start and callback.
type State struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	Provider     string    `json:"provider"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
}

// TokenResponse models the response from an external IdP token endpoint.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenType    string
	IDToken      string
	Scope        string
	Raw          map[string]any
}

// UserInfo is the normalized identity returned by an IdP.
type UserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	Provider      string `json:"provider,omitempty"`
}

// Account links an external identity to a local user.
type Account struct {
	Provider       string
	ProviderUserID string
	UserID         int64
	CreatedAt      time.Time
}
