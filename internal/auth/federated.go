package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/ushadow-io/ushadow/core/utils"
)

// oidcClaims is the subset of an ID token's claims the broker maps
// onto a Principal.
type oidcClaims struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
}

// FederatedBroker is the OIDC auth mode (spec §4.9): the control
// plane exchanges a browser-delivered PKCE authorization code for the
// provider's tokens and validates bearer tokens on every request. It
// does not mint service tokens; only LocalBroker does.
type FederatedBroker struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth2   oauth2.Config
	logger   *utils.Logger
}

// NewFederatedBroker discovers issuerURL's OIDC configuration and
// builds a FederatedBroker.
func NewFederatedBroker(ctx context.Context, issuerURL, clientID, clientSecret, redirectURL string) (*FederatedBroker, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering OIDC provider %s: %w", issuerURL, err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &FederatedBroker{
		provider: provider,
		verifier: verifier,
		oauth2: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		logger: utils.NewLogger("auth-federated"),
	}, nil
}

// AuthCodeURL returns the provider's authorization endpoint URL for a
// PKCE login, with state and the S256 code challenge attached.
func (b *FederatedBroker) AuthCodeURL(state, codeChallenge string) string {
	return b.oauth2.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode redeems a PKCE authorization code for the provider's
// tokens and validates the returned ID token.
func (b *FederatedBroker) ExchangeCode(ctx context.Context, code, codeVerifier string) (Principal, *oauth2.Token, error) {
	token, err := b.oauth2.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	if err != nil {
		return Principal{}, nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return Principal{}, nil, fmt.Errorf("token response missing id_token")
	}
	principal, err := b.validateIDToken(ctx, rawIDToken)
	if err != nil {
		return Principal{}, nil, err
	}
	principal.Token = rawIDToken
	return principal, token, nil
}

// RefreshToken proxies a refresh-token exchange to the provider
// (spec §4.9: "federated refresh tokens are honoured by proxying
// refresh to the provider").
func (b *FederatedBroker) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	source := b.oauth2.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}
	return token, nil
}

// ValidateExternalToken verifies a bearer token as an
// external-issuer OIDC ID token, the non-ushadow-issued branch of
// spec §4.9's per-request validation.
func (b *FederatedBroker) ValidateExternalToken(ctx context.Context, rawToken string) (Principal, error) {
	return b.validateIDToken(ctx, rawToken)
}

func (b *FederatedBroker) validateIDToken(ctx context.Context, rawIDToken string) (Principal, error) {
	idToken, err := b.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Principal{}, fmt.Errorf("verifying id token: %w", err)
	}
	var c oidcClaims
	if err := idToken.Claims(&c); err != nil {
		return Principal{}, fmt.Errorf("decoding id token claims: %w", err)
	}
	roles := c.Roles
	if len(roles) == 0 {
		roles = []string{"user"}
	}
	return Principal{Subject: c.Subject, Email: c.Email, Roles: roles, Token: rawIDToken}, nil
}
