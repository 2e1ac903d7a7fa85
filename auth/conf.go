package auth

import "golang.org/x/oauth2/clientcredentials"

// Conf represents the credentials used against a roaming partner. A static
// Token takes precedence over the OAuth2 client credentials.
type Conf struct {
	// Token is sent as "<Scheme> <Token>", OCPI style.
	Token  string `json:"token"`
	Scheme string `json:"scheme"`

	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURL      string   `json:"auth_url"`
	Scopes       []string `json:"scopes"`
}

func (c *Conf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.AuthURL,
		Scopes:       c.Scopes,
	}
}
