package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/internal/vault"
	"github.com/giantswarm/tandem/pkg/logging"
	"github.com/giantswarm/tandem/pkg/oauth"
)

// GoogleIssuer is the default authorization server.
const GoogleIssuer = "https://accounts.google.com"

// DefaultScopes are requested when none are configured.
var DefaultScopes = []string{oidc.ScopeOpenID, "email", "profile"}

// Provider is the authorization server as seen by the controller.
type Provider interface {
	// Discover resolves the provider metadata. StartLogin calls it before
	// binding the loopback listener, so AuthCodeURL needs no network.
	Discover(ctx context.Context) error
	// AuthCodeURL builds the authorization URL for one login attempt.
	AuthCodeURL(ctx context.Context, state, redirectURI string, pkce *oauth.PKCEChallenge) (string, error)
	// Exchange trades an authorization code for tokens. redirectURI must be
	// the one used in AuthCodeURL.
	Exchange(ctx context.Context, code, redirectURI string, pkce *oauth.PKCEChallenge) (*oauth2.Token, error)
	// Claims extracts profile claims from the token's ID token.
	Claims(ctx context.Context, tok *oauth2.Token) (*api.ProfileClaims, error)
}

// ProviderConfig holds the OAuth client settings.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	// DiscoveryURL is the issuer URL used for OpenID discovery.
	DiscoveryURL string
	// SkipIDTokenVerification reads ID-token claims without verifying the
	// signature. Only for providers without a JWKS endpoint.
	SkipIDTokenVerification bool
}

// OIDCProvider talks to an OpenID Connect provider. Discovery happens on
// first use so that commands which never log in stay offline.
type OIDCProvider struct {
	cfg ProviderConfig

	mu       sync.Mutex
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDCProvider returns a provider, or a NotConfigured error when no
// client id is set.
func NewOIDCProvider(cfg ProviderConfig) (*OIDCProvider, error) {
	if cfg.ClientID == "" {
		return nil, api.NewError(api.CodeNotConfigured, "new_provider", "", errors.New("no OAuth client id configured"))
	}
	if cfg.DiscoveryURL == "" {
		cfg.DiscoveryURL = GoogleIssuer
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	return &OIDCProvider{cfg: cfg}, nil
}

// discover resolves the provider metadata once. Failures are not cached.
// The lock is not held across the request; concurrent first uses may each
// fetch, and the first result wins.
func (p *OIDCProvider) discover(ctx context.Context) (*oauth2.Config, *oidc.IDTokenVerifier, error) {
	p.mu.Lock()
	if p.oauth != nil {
		defer p.mu.Unlock()
		return p.oauth, p.verifier, nil
	}
	p.mu.Unlock()

	// go-oidc fetches the key set later on a background context carrying
	// only this context's HTTP client, so ctx may carry a deadline.
	provider, err := oidc.NewProvider(ctx, p.cfg.DiscoveryURL)
	if err != nil {
		return nil, nil, fmt.Errorf("discover authorization server %s: %w", p.cfg.DiscoveryURL, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.oauth == nil {
		p.oauth = &oauth2.Config{
			ClientID:     p.cfg.ClientID,
			ClientSecret: p.cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       p.cfg.Scopes,
		}
		p.verifier = provider.Verifier(&oidc.Config{ClientID: p.cfg.ClientID})
		logging.Debug("Provider", "Discovered authorization server %s", p.cfg.DiscoveryURL)
	}
	return p.oauth, p.verifier, nil
}

// Discover implements Provider.
func (p *OIDCProvider) Discover(ctx context.Context) error {
	_, _, err := p.discover(ctx)
	return err
}

// withRedirect copies cfg with the given redirect URI.
func withRedirect(cfg *oauth2.Config, redirectURI string) *oauth2.Config {
	c := *cfg
	c.RedirectURL = redirectURI
	return &c
}

// AuthCodeURL implements Provider.
func (p *OIDCProvider) AuthCodeURL(ctx context.Context, state, redirectURI string, pkce *oauth.PKCEChallenge) (string, error) {
	cfg, _, err := p.discover(ctx)
	if err != nil {
		return "", err
	}
	return BuildAuthCodeURL(withRedirect(cfg, redirectURI), state, pkce), nil
}

// BuildAuthCodeURL adds the PKCE challenge and the offline-access parameters
// that force the provider to issue a refresh token on every consent.
func BuildAuthCodeURL(cfg *oauth2.Config, state string, pkce *oauth.PKCEChallenge) string {
	opts := append(pkce.AuthCodeOptions(),
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	return cfg.AuthCodeURL(state, opts...)
}

// Exchange implements Provider.
func (p *OIDCProvider) Exchange(ctx context.Context, code, redirectURI string, pkce *oauth.PKCEChallenge) (*oauth2.Token, error) {
	cfg, _, err := p.discover(ctx)
	if err != nil {
		return nil, api.NewError(api.CodeExchangeFailed, "exchange_code", "", err)
	}
	tok, err := withRedirect(cfg, redirectURI).Exchange(ctx, code, pkce.ExchangeOption())
	if err != nil {
		return nil, api.NewError(api.CodeExchangeFailed, "exchange_code", "", err)
	}
	return tok, nil
}

// Claims implements Provider. A token without an ID token yields empty claims.
func (p *OIDCProvider) Claims(ctx context.Context, tok *oauth2.Token) (*api.ProfileClaims, error) {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return &api.ProfileClaims{}, nil
	}

	if p.cfg.SkipIDTokenVerification {
		return UnverifiedClaims(raw)
	}

	_, verifier, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}
	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}

	var claims api.ProfileClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode id token claims: %w", err)
	}
	return &claims, nil
}

// Refresh implements vault.Refresher against the discovered token endpoint.
func (p *OIDCProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	cfg, _, err := p.discover(ctx)
	if err != nil {
		return nil, api.NewError(api.CodeExchangeFailed, "refresh_token", "", err)
	}
	return vault.ConfigRefresher{Config: cfg}.Refresh(ctx, refreshToken)
}

// idTokenClaims mirrors api.ProfileClaims for jwt decoding.
type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// UnverifiedClaims decodes an ID token's payload without checking its
// signature.
func UnverifiedClaims(raw string) (*api.ProfileClaims, error) {
	var c idTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &c); err != nil {
		return nil, fmt.Errorf("parse id token: %w", err)
	}
	return &api.ProfileClaims{
		Subject:       c.Subject,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		Name:          c.Name,
		Picture:       c.Picture,
	}, nil
}

var (
	_ Provider        = (*OIDCProvider)(nil)
	_ vault.Refresher = (*OIDCProvider)(nil)
)
