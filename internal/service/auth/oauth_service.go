package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	oauthadapter "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/adapter/oauth"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
	domainoauth "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain/oauth"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/repository"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/service"
)

// StateTTL bounds the time between redirecting to a provider and its callback.
const StateTTL = 10 * time.Minute

// StartAuthorizationOutput returns the prepared authorization URL and the
// state that must also be stored in the browser.
type StartAuthorizationOutput struct {
	AuthorizationURL string
	State            string
}

// OAuthCallbackInput captures callback query parameters and the state cookie.
type OAuthCallbackInput struct {
	Provider    string
	Code        string
	State       string
	CookieState string
}

// OAuthService signs customers in through external identity providers.
type OAuthService struct {
	providerRepo   repository.OAuthProviderConfigRepo
	stateStore     repository.OAuthStateStore
	providerClient oauthadapter.ProviderClient
	userRepo       repository.UserRepository
	accountRepo    repository.OAuthAccountRepository
	auth           *service.AuthService
	logger         *zap.Logger
	now            func() time.Time
}

// NewOAuthService wires the OAuth service implementation.
func NewOAuthService(
	providerRepo repository.OAuthProviderConfigRepo,
	stateStore repository.OAuthStateStore,
	providerClient oauthadapter.ProviderClient,
	userRepo repository.UserRepository,
	accountRepo repository.OAuthAccountRepository,
	auth *service.AuthService,
	logger *zap.Logger,
) *OAuthService {
	return &OAuthService{
		providerRepo:   providerRepo,
		stateStore:     stateStore,
		providerClient: providerClient,
		userRepo:       userRepo,
		accountRepo:    accountRepo,
		auth:           auth,
		logger:         logger,
		now:            time.Now,
	}
}

// StartAuthorization builds the provider redirect and persists state and the
// PKCE verifier.
func (s *OAuthService) StartAuthorization(ctx context.Context, provider string) (*StartAuthorizationOutput, error) {
	cfg, err := s.loadProviderConfig(ctx, provider)
	if err != nil {
		return nil, err
	}

	state, err := secureRandomString(32)
	if err != nil {
		return nil, service.UpstreamError(fmt.Errorf("generate state: %w", err))
	}
	codeVerifier, err := secureRandomString(64)
	if err != nil {
		return nil, service.UpstreamError(fmt.Errorf("generate pkce verifier: %w", err))
	}

	authURL, err := url.Parse(cfg.AuthURL)
	if err != nil || cfg.AuthURL == "" {
		return nil, service.UpstreamError(fmt.Errorf("parse auth url %q: %v", cfg.AuthURL, err))
	}

	params := authURL.Query()
	params.Set("client_id", cfg.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", cfg.RedirectURL)
	params.Set("scope", strings.Join(cfg.Scopes, " "))
	params.Set("state", state)
	params.Set("code_challenge", pkceChallenge(codeVerifier))
	params.Set("code_challenge_method", "S256")
	authURL.RawQuery = params.Encode()

	payload := domainoauth.State{
		State:        state,
		CodeVerifier: codeVerifier,
		Provider:     cfg.Name,
		RedirectURI:  cfg.RedirectURL,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.stateStore.SaveState(ctx, state, payload, StateTTL); err != nil {
		s.log().Error("persist oauth state", zap.Error(err))
		return nil, service.UpstreamError(fmt.Errorf("persist state: %w", err))
	}

	return &StartAuthorizationOutput{AuthorizationURL: authURL.String(), State: state}, nil
}

// HandleCallback validates state, exchanges the code, resolves the local user
// and issues a session.
func (s *OAuthService) HandleCallback(ctx context.Context, in OAuthCallbackInput) (*service.AuthResult, error) {
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.State) == "" {
		return nil, &service.AuthError{Kind: service.KindValidation, Message: "Please restart the process.", Err: domainoauth.ErrInvalidRequest}
	}
	if subtle.ConstantTimeCompare([]byte(in.State), []byte(in.CookieState)) != 1 {
		return nil, invalidState()
	}

	state, err := s.stateStore.GetState(ctx, in.State)
	if err != nil {
		return nil, service.UpstreamError(fmt.Errorf("load state: %w", err))
	}
	if state == nil || !strings.EqualFold(state.Provider, in.Provider) {
		return nil, invalidState()
	}
	if err := s.stateStore.DeleteState(ctx, in.State); err != nil {
		s.log().Warn("failed to delete oauth state", zap.Error(err))
	}

	cfg, err := s.loadProviderConfig(ctx, state.Provider)
	if err != nil {
		return nil, err
	}

	token, err := s.providerClient.ExchangeCode(ctx, *cfg, in.Code, state.CodeVerifier)
	if err != nil {
		return nil, s.providerError("exchange code", err)
	}

	info, err := s.identity(ctx, cfg, token)
	if err != nil {
		return nil, s.providerError("resolve identity", err)
	}

	user, err := s.ensureUser(ctx, cfg.Name, info)
	if err != nil {
		return nil, err
	}

	result, err := s.auth.IssueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.log().Info("audit",
		zap.String("event", "oauth.signin.success"),
		zap.String("provider", cfg.Name),
		zap.Int64("user_id", user.ID),
	)
	result.Message = "Signed in"
	return result, nil
}

func (s *OAuthService) identity(ctx context.Context, cfg *domainoauth.ProviderConfig, token *domainoauth.TokenResponse) (*domainoauth.UserInfo, error) {
	if token.IDToken != "" {
		return s.providerClient.DecodeIDToken(ctx, *cfg, token.IDToken)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return nil, domainoauth.ErrTokenInvalid
	}
	return s.providerClient.FetchUserInfo(ctx, *cfg, token.AccessToken)
}

// ensureUser returns the user linked to the identity, linking by verified
// email or creating a customer when no link exists yet.
func (s *OAuthService) ensureUser(ctx context.Context, provider string, info *domainoauth.UserInfo) (domain.User, error) {
	account, err := s.accountRepo.Get(ctx, provider, info.Subject)
	if err == nil {
		user, err := s.userRepo.GetByID(ctx, account.UserID)
		if err != nil {
			return domain.User{}, service.UpstreamError(fmt.Errorf("load linked user: %w", err))
		}
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, service.UpstreamError(fmt.Errorf("load oauth account: %w", err))
	}

	email := domain.NormalizeEmail(info.Email)
	if email == "" {
		return domain.User{}, &service.AuthError{
			Kind:    service.KindValidation,
			Message: "Your account has no email address.",
			Err:     domainoauth.ErrEmailMissing,
		}
	}

	created := false
	user, err := s.userRepo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if !info.EmailVerified {
			return domain.User{}, &service.AuthError{
				Kind:    service.KindAuthentication,
				Message: "An account with this email already exists. Sign in with your password.",
			}
		}
	case errors.Is(err, pgx.ErrNoRows):
		user, err = s.userRepo.Create(ctx, domain.User{
			ID:            s.auth.NewUserID(),
			Email:         email,
			Username:      usernameFor(info, email),
			AvatarURL:     info.Picture,
			Role:          domain.RoleCustomer,
			EmailVerified: info.EmailVerified,
		})
		if err != nil {
			return domain.User{}, service.UpstreamError(fmt.Errorf("create user: %w", err))
		}
		created = true
	default:
		return domain.User{}, service.UpstreamError(fmt.Errorf("get user: %w", err))
	}

	if err := s.accountRepo.Create(ctx, domainoauth.Account{
		Provider:       provider,
		ProviderUserID: info.Subject,
		UserID:         user.ID,
	}); err != nil {
		if created {
			// Unlinked accounts cannot sign in with a password and would block
			// the next attempt with a duplicate email.
			if delErr := s.userRepo.Delete(ctx, user.ID); delErr != nil {
				s.log().Warn("remove unlinked oauth user failed", zap.Int64("user_id", user.ID), zap.Error(delErr))
			}
		}
		return domain.User{}, service.UpstreamError(fmt.Errorf("link oauth account: %w", err))
	}
	return user, nil
}

func (s *OAuthService) loadProviderConfig(ctx context.Context, provider string) (*domainoauth.ProviderConfig, error) {
	cfg, err := s.providerRepo.GetProviderByName(ctx, provider)
	if err != nil {
		if errors.Is(err, domainoauth.ErrProviderNotFound) {
			return nil, &service.AuthError{Kind: service.KindValidation, Message: "Unknown sign-in provider.", Err: err}
		}
		return nil, service.UpstreamError(fmt.Errorf("load provider: %w", err))
	}
	return cfg, nil
}

func (s *OAuthService) providerError(op string, err error) error {
	s.log().Warn("oauth provider call failed", zap.String("op", op), zap.Error(err))
	if errors.Is(err, domainoauth.ErrTokenInvalid) {
		return &service.AuthError{Kind: service.KindAuthentication, Message: "Please restart the process.", Err: err}
	}
	return service.UpstreamError(fmt.Errorf("%s: %w", op, err))
}

func (s *OAuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func invalidState() *service.AuthError {
	return &service.AuthError{Kind: service.KindAuthentication, Message: "Please restart the process.", Err: domainoauth.ErrInvalidState}
}

func usernameFor(info *domainoauth.UserInfo, email string) string {
	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = email[:strings.IndexByte(email+"@", '@')]
	}
	name = truncateRunes(name, 31)
	if utf8.RuneCountInString(name) < 3 {
		name = truncateRunes("user_"+info.Subject, 31)
	}
	return name
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
