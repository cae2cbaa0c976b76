// Package authority implements the OAuth client-credentials grant against
// the login authority. It exchanges tenant credentials for bearer tokens;
// caching and refresh policy live in the identity package.
package authority

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/clients/rest"
	"github.com/seatwise/seatwise/internal/domain"
)

// Token is a freshly issued bearer token. The access token string is
// sensitive and must never be logged.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
}

type tokenEnvelope struct {
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	AccessToken string `json:"access_token"`
}

// Client talks to the token endpoint of one authority host.
type Client struct {
	rest *rest.Client
	log  zerolog.Logger
}

// New creates an authority client for the given base URL, for example
// https://login.microsoftonline.com.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		rest: rest.New(rest.Config{
			Name:    "authority",
			BaseURL: baseURL,
			Timeout: timeout,
			Log:     log,
		}),
		log: log.With().Str("client", "authority").Logger(),
	}
}

// AcquireToken runs the client-credentials grant for one directory. A 400 or
// 401 from the authority means the stored credentials are bad and surfaces as
// domain.ErrInvalidCredentials; the caller is expected to flip the stored
// validity flag.
func (c *Client) AcquireToken(ctx context.Context, directoryID, clientID, clientSecret string, scopes []string) (*Token, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"scope":         {strings.Join(scopes, " ")},
	}

	payload, err := c.rest.PostForm(ctx, "/"+directoryID+"/oauth2/v2.0/token", form)
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindUnauthorized, domain.KindBadRequest:
			c.log.Warn().Str("directory_id", directoryID).Msg("Authority rejected credentials")
			return nil, domain.E(domain.KindUnauthorized, "authority", "credentials rejected for directory "+directoryID, domain.ErrInvalidCredentials)
		default:
			return nil, err
		}
	}

	var envelope tokenEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, domain.Parse("authority", "token response is not valid JSON", err)
	}
	if envelope.AccessToken == "" || envelope.ExpiresIn <= 0 {
		return nil, domain.Parse("authority", "token response is missing access_token or expires_in", nil)
	}

	c.log.Debug().
		Str("directory_id", directoryID).
		Int64("expires_in", envelope.ExpiresIn).
		Msg("Acquired token")

	return &Token{
		AccessToken: envelope.AccessToken,
		TokenType:   envelope.TokenType,
		ExpiresIn:   time.Duration(envelope.ExpiresIn) * time.Second,
	}, nil
}
