package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/qcom/receipts/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// GoogleTokenProvider exchanges the server-held refresh token for a Google
// API access token. Every call performs a fresh exchange.
type GoogleTokenProvider struct {
	oauth        *oauth2.Config
	refreshToken string
	httpClient   *http.Client
	logger       *logrus.Logger
}

func NewGoogleTokenProvider(cfg *config.GoogleConfig, httpClient *http.Client, logger *logrus.Logger) *GoogleTokenProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &GoogleTokenProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		refreshToken: cfg.RefreshToken,
		httpClient:   httpClient,
		logger:       logger,
	}
}

func (p *GoogleTokenProvider) AccessToken(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	// A token without an access token is never valid, so Token always refreshes.
	source := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: p.refreshToken})
	token, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("google token exchange: %w", err)
	}

	p.logger.WithField("expiry", token.Expiry).Debug("Obtained Google access token")
	return token.AccessToken, nil
}
