// Package auth sets partner credentials on outgoing requests.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Authorizer sets the authorization header of a request.
type Authorizer interface {
	SetAuthHeader(r *http.Request) error
}

// New returns the Authorizer described by conf, or nil when conf carries no
// credentials.
func New(conf Conf) Authorizer {
	switch {
	case conf.Token != "":
		return StaticToken{Scheme: conf.Scheme, Token: conf.Token}
	case conf.ClientID != "" && conf.AuthURL != "":
		return NewClientCred(conf)
	default:
		return nil
	}
}

// StaticToken sends a fixed token.
type StaticToken struct {
	Scheme string
	Token  string
}

func (s StaticToken) SetAuthHeader(r *http.Request) error {
	scheme := s.Scheme
	if scheme == "" {
		scheme = "Token"
	}
	r.Header.Set("Authorization", scheme+" "+s.Token)
	return nil
}

// ClientCred fetches and caches OAuth2 client-credentials tokens.
type ClientCred struct {
	mu    sync.Mutex
	conf  clientcredentials.Config
	token *oauth2.Token
}

func NewClientCred(conf Conf) *ClientCred {
	return &ClientCred{
		conf: conf.toOauth2Config(),
	}
}

// GetToken retrieves a valid access token. If the current token is valid, it returns the existing token.
// Otherwise, it requests a new token using the client credentials configuration.
func (c *ClientCred) GetToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensure(ctx); err != nil {
		return "", err
	}
	return c.token.AccessToken, nil
}

// ForceRefresh discards the cached token and requests a new one, e.g. after
// the partner answered 401.
func (c *ClientCred) ForceRefresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
	if err := c.ensure(ctx); err != nil {
		return "", err
	}
	return c.token.AccessToken, nil
}

func (c *ClientCred) ensure(ctx context.Context) error {
	if c.token != nil && c.token.Valid() {
		return nil
	}
	tok, err := c.conf.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}
	c.token = tok
	return nil
}

// SetAuthHeader sets a bearer token, fetching one with the request context
// when needed.
func (c *ClientCred) SetAuthHeader(r *http.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensure(r.Context()); err != nil {
		return err
	}
	c.token.SetAuthHeader(r)
	return nil
}
