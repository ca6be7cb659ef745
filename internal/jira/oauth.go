package jira

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// stateTTL bounds how long an issued consent URL stays valid.
	stateTTL = 10 * time.Minute

	// refreshWindow triggers a refresh when the token is this close
	// to expiry.
	refreshWindow = 90 * time.Second

	// expirySkew is subtracted from the advertised lifetime so tokens
	// are never used in their final seconds.
	expirySkew = 30 * time.Second

	accessibleResourcesURL = "https://api.atlassian.com/oauth/token/accessible-resources"
)

// OAuthSettings configures the Atlassian OAuth 2.0 (3LO) client.
type OAuthSettings struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURI  string
	Scopes       []string
	Audience     string

	// StateSecret signs the state tokens carried through the consent
	// redirect.
	StateSecret []byte
}

// TokenPersister stores and retrieves OAuth tokens. *TokenStore
// implements it.
type TokenPersister interface {
	Latest(ctx context.Context) (*OAuthToken, error)
	Upsert(ctx context.Context, tok *OAuthToken) (*OAuthToken, error)
}

// OAuth drives the Atlassian 3LO flow: consent URL, code exchange,
// tenant discovery, persistence, and refresh.
type OAuth struct {
	conf         *oauth2.Config
	audience     string
	stateSecret  []byte
	tokens       TokenPersister
	httpClient   *http.Client
	resourcesURL string
	logger       *slog.Logger
	now          func() time.Time
}

// NewOAuth creates the 3LO manager. It fails with ErrOAuthDisabled
// when the client settings are incomplete.
func NewOAuth(settings OAuthSettings, tokens TokenPersister, logger *slog.Logger) (*OAuth, error) {
	if settings.ClientID == "" || settings.ClientSecret == "" || settings.RedirectURI == "" {
		return nil, ErrOAuthDisabled
	}
	if len(settings.StateSecret) == 0 {
		return nil, fmt.Errorf("state secret is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token persister is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OAuth{
		conf: &oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			RedirectURL:  settings.RedirectURI,
			Scopes:       settings.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   settings.AuthURL,
				TokenURL:  settings.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		audience:     settings.Audience,
		stateSecret:  settings.StateSecret,
		tokens:       tokens,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		resourcesURL: accessibleResourcesURL,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// AuthorizationURL returns the Atlassian consent URL and the signed
// state token embedded in it.
func (o *OAuth) AuthorizationURL() (authURL, state string, err error) {
	state, err = o.generateState()
	if err != nil {
		return "", "", err
	}
	authURL = o.conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("audience", o.audience),
		oauth2.SetAuthURLParam("prompt", "consent"))
	return authURL, state, nil
}

// HandleCallback verifies the state, exchanges the authorization code,
// discovers the tenant, and persists the token.
func (o *OAuth) HandleCallback(ctx context.Context, code, state string) (*OAuthToken, error) {
	if !o.verifyState(state) {
		return nil, ErrInvalidState
	}

	fresh, err := o.conf.Exchange(o.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return o.storeToken(ctx, fresh, nil)
}

// ActiveToken returns a token with at least refreshWindow of life
// left, refreshing through the stored refresh token when needed.
func (o *OAuth) ActiveToken(ctx context.Context) (*OAuthToken, error) {
	tok, err := o.tokens.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if tok.ExpiresAt.After(o.now().Add(refreshWindow)) {
		return tok, nil
	}

	o.logger.Info("jira oauth token expiring, refreshing", "expires_at", tok.ExpiresAt)
	if tok.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	src := o.conf.TokenSource(o.oauthContext(ctx), &oauth2.Token{RefreshToken: tok.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing access token: %w", err)
	}
	return o.storeToken(ctx, fresh, tok)
}

// oauthContext routes the oauth2 package's HTTP calls through our
// client so timeouts and tests apply.
func (o *OAuth) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

// storeToken persists a fresh token, carrying tenant identity and
// scope forward from prior when the response omits them.
func (o *OAuth) storeToken(ctx context.Context, fresh *oauth2.Token, prior *OAuthToken) (*OAuthToken, error) {
	draft := &OAuthToken{
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		TokenType:    fresh.TokenType,
		ExpiresAt:    o.expiresAt(fresh),
	}
	if scope, ok := fresh.Extra("scope").(string); ok {
		draft.Scope = scope
	}
	if prior != nil {
		draft.CloudID = prior.CloudID
		draft.SiteURL = prior.SiteURL
		if draft.Scope == "" {
			draft.Scope = prior.Scope
		}
		if draft.RefreshToken == "" {
			draft.RefreshToken = prior.RefreshToken
		}
	}

	if draft.CloudID == "" {
		// Discovery failure is non-fatal: the token still works, only
		// the API gateway target is missing until the next exchange.
		resources, err := o.fetchAccessibleResources(ctx, fresh.AccessToken)
		switch {
		case err != nil:
			o.logger.Warn("failed to fetch accessible resources", "error", err)
		case len(resources) > 0:
			draft.CloudID = resources[0].ID
			draft.SiteURL = strings.TrimSpace(resources[0].URL)
		}
	}

	return o.tokens.Upsert(ctx, draft)
}

func (o *OAuth) expiresAt(tok *oauth2.Token) time.Time {
	now := o.now()
	if tok.Expiry.IsZero() {
		return now
	}
	if e := tok.Expiry.Add(-expirySkew); e.After(now) {
		return e
	}
	return now
}

type accessibleResource struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

func (o *OAuth) fetchAccessibleResources(ctx context.Context, accessToken string) ([]accessibleResource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.resourcesURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("accessible resources returned %d: %s", resp.StatusCode, body)
	}

	var resources []accessibleResource
	if err := json.NewDecoder(resp.Body).Decode(&resources); err != nil {
		return nil, fmt.Errorf("decoding accessible resources: %w", err)
	}
	return resources, nil
}

// generateState signs "issuedAt:ttl:nonce" so the callback can verify
// the redirect originated here without server-side session state.
func (o *OAuth) generateState() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating state nonce: %w", err)
	}
	body := fmt.Sprintf("%d:%d:%s",
		o.now().Unix(),
		int(stateTTL.Seconds()),
		base64.RawURLEncoding.EncodeToString(nonce))
	return body + ":" + o.signState(body), nil
}

func (o *OAuth) verifyState(state string) bool {
	parts := strings.SplitN(state, ":", 4)
	if len(parts) != 4 {
		return false
	}
	body := strings.Join(parts[:3], ":")
	if !hmac.Equal([]byte(o.signState(body)), []byte(parts[3])) {
		return false
	}

	issuedAt, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return false
	}
	ttl, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false
	}
	return o.now().Unix()-issuedAt <= ttl
}

func (o *OAuth) signState(body string) string {
	mac := hmac.New(sha256.New, o.stateSecret)
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}
