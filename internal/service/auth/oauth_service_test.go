package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/adapter/cache"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/adapter/mail"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/config"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
	domainoauth "github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain/oauth"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/password"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/repository"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/service"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/session"
)

type fakeProviderClient struct {
	token       *domainoauth.TokenResponse
	userinfo    *domainoauth.UserInfo
	exchangeErr error
	verifier    string
	idTokens    int
}

func (f *fakeProviderClient) ExchangeCode(ctx context.Context, provider domainoauth.ProviderConfig, code, codeVerifier string) (*domainoauth.TokenResponse, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	f.verifier = codeVerifier
	return f.token, nil
}

func (f *fakeProviderClient) DecodeIDToken(ctx context.Context, provider domainoauth.ProviderConfig, rawIDToken string) (*domainoauth.UserInfo, error) {
	f.idTokens++
	return f.userinfo, nil
}

func (f *fakeProviderClient) FetchUserInfo(ctx context.Context, provider domainoauth.ProviderConfig, accessToken string) (*domainoauth.UserInfo, error) {
	return f.userinfo, nil
}

type failingAccountRepo struct {
	repository.OAuthAccountRepository
}

func (failingAccountRepo) Create(ctx context.Context, account domainoauth.Account) error {
	return errors.New("insert failed")
}

type oauthTestHarness struct {
	service        *OAuthService
	auth           *service.AuthService
	store          *repository.MemoryStore
	stateStore     *cache.MemoryStateStore
	providerClient *fakeProviderClient
}

func newOAuthTestHarness(t *testing.T) *oauthTestHarness {
	t.Helper()
	store := repository.NewMemoryStore()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	rates := config.RateLimitConfig{
		GlobalCapacity: 100, GlobalRefill: time.Second, ReadCost: 1, WriteCost: 3,
		SignInIPCapacity: 20, SignInIPRefill: time.Second,
		SignUpIPCapacity: 3, SignUpIPRefill: 10 * time.Second,
		VerifyCapacity: 5, VerifyWindow: 30 * time.Minute,
		ResendCapacity: 3, ResendWindow: 10 * time.Minute,
		ThrottleSeconds: []int{1, 2, 4}, ThrottleRetention: time.Hour,
	}
	authSvc := service.NewAuthService(
		store.Users(),
		store.Verifications(),
		session.NewManager(store.Sessions(), store.Users()),
		mail.NewLogSender(zap.NewNop()),
		service.NewLimiters(rates),
		node,
		password.DefaultPolicy(),
		zap.NewNop(),
	)

	providers := repository.NewStaticOAuthProviderConfigRepo(domainoauth.ProviderConfig{
		Name:        "google",
		ClientID:    "client-id",
		RedirectURL: "https://shop.example.com/auth/oauth/google/callback",
	})
	stateStore := cache.NewMemoryStateStore()
	client := &fakeProviderClient{token: &domainoauth.TokenResponse{AccessToken: "external-access", TokenType: "Bearer"}}

	svc := NewOAuthService(providers, stateStore, client, store.Users(), store.OAuthAccounts(), authSvc, zap.NewNop())
	return &oauthTestHarness{service: svc, auth: authSvc, store: store, stateStore: stateStore, providerClient: client}
}

func (h *oauthTestHarness) start(t *testing.T) string {
	t.Helper()
	out, err := h.service.StartAuthorization(context.Background(), "google")
	require.NoError(t, err)
	return out.State
}

func requireKind(t *testing.T, err error, kind service.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.True(t, service.IsKind(err, kind), "want %s, got %v", kind, err)
}

func TestOAuthService_StartAuthorization(t *testing.T) {
	h := newOAuthTestHarness(t)
	ctx := context.Background()

	out, err := h.service.StartAuthorization(ctx, "Google")
	require.NoError(t, err)
	require.NotEmpty(t, out.State)

	u, err := url.Parse(out.AuthorizationURL)
	require.NoError(t, err)
	require.Equal(t, "accounts.google.com", u.Host)
	q := u.Query()
	require.Equal(t, "client-id", q.Get("client_id"))
	require.Equal(t, out.State, q.Get("state"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, "https://shop.example.com/auth/oauth/google/callback", q.Get("redirect_uri"))

	state, err := h.stateStore.GetState(ctx, out.State)
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Equal(t, "google", state.Provider)
	require.Equal(t, pkceChallenge(state.CodeVerifier), q.Get("code_challenge"))
}

func TestOAuthService_StartAuthorizationUnknownProvider(t *testing.T) {
	h := newOAuthTestHarness(t)

	_, err := h.service.StartAuthorization(context.Background(), "github")
	requireKind(t, err, service.KindValidation)
	require.True(t, errors.Is(err, domainoauth.ErrProviderNotFound))
}

func TestOAuthService_HandleCallbackCreatesUser(t *testing.T) {
	h := newOAuthTestHarness(t)
	ctx := context.Background()
	state := h.start(t)
	h.providerClient.userinfo = &domainoauth.UserInfo{
		Subject:       "sub-123",
		Email:         "OAuth@Example.com",
		EmailVerified: true,
		Name:          "OAuth User",
		Picture:       "https://img",
	}

	res, err := h.service.HandleCallback(ctx, OAuthCallbackInput{Provider: "google", Code: "code", State: state, CookieState: state})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.Equal(t, "oauth@example.com", res.User.Email)
	require.Equal(t, "OAuth User", res.User.Username)
	require.True(t, res.User.EmailVerified)
	require.Equal(t, domain.RoleCustomer, res.User.Role)
	require.False(t, res.User.HasPassword())
	require.NotEmpty(t, h.providerClient.verifier)

	account, err := h.store.OAuthAccounts().Get(ctx, "google", "sub-123")
	require.NoError(t, err)
	require.Equal(t, res.User.ID, account.UserID)

	// the state is single use
	_, err = h.service.HandleCallback(ctx, OAuthCallbackInput{Provider: "google", Code: "code", State: state, CookieState: state})
	requireKind(t, err, service.KindAuthentication)

	// a second sign-in resolves through the linked account
	again, err := h.service.HandleCallback(ctx, OAuthCallbackInput{Provider: "google", Code: "code", State: h.start(t), CookieState: ""})
	requireKind(t, err, service.KindAuthentication)
	require.Nil(t, again)

	next := h.start(t)
	again, err = h.service.HandleCallback(ctx, OAuthCallbackInput{Provider: "google", Code: "code", State: next, CookieState: next})
	require.NoError(t, err)
	require.Equal(t, res.User.ID, again.User.ID)
}

func TestOAuthService_HandleCallbackUsesIDToken(t *testing.T) {
	h := newOAuthTestHarness(t)
	state := h.start(t)
	h.providerClient.token = &domainoauth.TokenResponse{AccessToken: "a", IDToken: "header.payload.sig"}
	h.providerClient.userinfo = &domainoauth.UserInfo{Subject: "sub-9", Email: "id@example.com", EmailVerified: true}

	res, err := h.service.HandleCallback(context.Background(), OAuthCallbackInput{Provider: "google", Code: "c", State: state, CookieState: state})
	require.NoError(t, err)
	require.Equal(t, 1, h.providerClient.idTokens)
	require.Equal(t, "user_sub-9", res.User.Username)
}

func TestOAuthService_HandleCallbackLinksVerifiedEmail(t *testing.T) {
	h := newOAuthTestHarness(t)
	ctx := context.Background()
	existing, err := h.store.Users().Create(ctx, domain.User{ID: 42, Email: "shopper@example.com", Username: "shopper", PasswordHash: "hash"})
	require.NoError(t, err)

	state := h.start(t)
	h.providerClient.userinfo = &domainoauth.UserInfo{Subject: "sub-1", Email: "shopper@example.com", EmailVerified: true}
	res, err := h.service.HandleCallback(ctx, OAuthCallbackInput{Provider: "google", Code: "c", State: state, CookieState: state})
	require.NoError(t, err)
	require.Equal(t, existing.ID, res.User.ID)
}

func TestOAuthService_HandleCallbackRejectsUnverifiedEmailMatch(t *testing.T) {
	h := newOAuthTestHarness(t)
	ctx := context.Background()
	_, err := h.store.Users().Create(ctx, domain.User{ID: 42, Email: "shopper@example.com", Username: "shopper", PasswordHash: "hash"})
	require.NoError(t, err)

	state := h.start(t)
	h.providerClient.userinfo = &domainoauth.UserInfo{Subject: "sub-1", Email: "shopper@example.com"}
	_, err = h.service.HandleCallback(ctx, OAuthCallbackInput{Provider: "google", Code: "c", State: state, CookieState: state})
	requireKind(t, err, service.KindAuthentication)

	_, err = h.store.OAuthAccounts().Get(ctx, "google", "sub-1")
	require.Error(t, err)
}

func TestOAuthService_HandleCallbackValidation(t *testing.T) {
	h := newOAuthTestHarness(t)
	ctx := context.Background()

	_, err := h.service.HandleCallback(ctx, OAuthCallbackInput{Provider: "google", State: "s", CookieState: "s"})
	requireKind(t, err, service.KindValidation)

	_, err = h.service.HandleCallback(ctx, OAuthCallbackInput{Provider: "google", Code: "c", State: "unknown", CookieState: "unknown"})
	requireKind(t, err, service.KindAuthentication)

	state := h.start(t)
	_, err = h.service.HandleCallback(ctx, OAuthCallbackInput{Provider: "github", Code: "c", State: state, CookieState: state})
	requireKind(t, err, service.KindAuthentication)
}

func TestOAuthService_HandleCallbackProviderFailures(t *testing.T) {
	h := newOAuthTestHarness(t)
	ctx := context.Background()

	state := h.start(t)
	h.providerClient.exchangeErr = domainoauth.ErrTokenInvalid
	_, err := h.service.HandleCallback(ctx, OAuthCallbackInput{Provider: "google", Code: "c", State: state, CookieState: state})
	requireKind(t, err, service.KindAuthentication)

	state = h.start(t)
	h.providerClient.exchangeErr = errors.New("connection reset")
	_, err = h.service.HandleCallback(ctx, OAuthCallbackInput{Provider: "google", Code: "c", State: state, CookieState: state})
	requireKind(t, err, service.KindUpstream)

	state = h.start(t)
	h.providerClient.exchangeErr = nil
	h.providerClient.userinfo = &domainoauth.UserInfo{Subject: "sub-2"}
	_, err = h.service.HandleCallback(ctx, OAuthCallbackInput{Provider: "google", Code: "c", State: state, CookieState: state})
	requireKind(t, err, service.KindValidation)
	require.True(t, errors.Is(err, domainoauth.ErrEmailMissing))
}

func TestOAuthService_HandleCallbackRemovesUserWhenLinkFails(t *testing.T) {
	h := newOAuthTestHarness(t)
	ctx := context.Background()
	h.service.accountRepo = failingAccountRepo{h.store.OAuthAccounts()}

	state := h.start(t)
	h.providerClient.userinfo = &domainoauth.UserInfo{Subject: "sub-7", Email: "new@example.com", EmailVerified: true}
	_, err := h.service.HandleCallback(ctx, OAuthCallbackInput{Provider: "google", Code: "c", State: state, CookieState: state})
	requireKind(t, err, service.KindUpstream)

	_, err = h.store.Users().GetByEmail(ctx, "new@example.com")
	require.Error(t, err)

	// an existing account is kept when linking fails
	existing, err := h.store.Users().Create(ctx, domain.User{ID: 42, Email: "shopper@example.com", Username: "shopper"})
	require.NoError(t, err)
	state = h.start(t)
	h.providerClient.userinfo = &domainoauth.UserInfo{Subject: "sub-8", Email: "shopper@example.com", EmailVerified: true}
	_, err = h.service.HandleCallback(ctx, OAuthCallbackInput{Provider: "google", Code: "c", State: state, CookieState: state})
	requireKind(t, err, service.KindUpstream)

	got, err := h.store.Users().GetByID(ctx, existing.ID)
	require.NoError(t, err)
	require.Equal(t, "shopper@example.com", got.Email)
}

func TestUsernameFor(t *testing.T) {
	require.Equal(t, "Ada", usernameFor(&domainoauth.UserInfo{Name: " Ada "}, "ada@example.com"))
	require.Equal(t, "ada", usernameFor(&domainoauth.UserInfo{}, "ada@example.com"))
	require.Equal(t, "user_12345", usernameFor(&domainoauth.UserInfo{Subject: "12345"}, "al@example.com"))

	long := usernameFor(&domainoauth.UserInfo{Subject: strings.Repeat("é", 40)}, "al@example.com")
	require.True(t, utf8.ValidString(long))
	require.Equal(t, 31, utf8.RuneCountInString(long))
	require.True(t, strings.HasPrefix(long, "user_é"))
}
