package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/qcom/receipts/internal/config"
	"github.com/qcom/receipts/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
)

const (
	productPurchasePath      = "androidpublisher/v3/applications/{packageName}/purchases/products/{productId}/tokens/{token}"
	subscriptionPurchasePath = "androidpublisher/v3/applications/{packageName}/purchases/subscriptions/{subscriptionId}/tokens/{token}"
)

type PurchaseQuery struct {
	PackageName   string
	ProductID     string
	PurchaseToken string
}

// PlayClient reads purchase state from the Google Play Developer API with a
// caller-supplied access token.
type PlayClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewPlayClient(cfg *config.GoogleConfig, httpClient *http.Client, logger *logrus.Logger) *PlayClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &PlayClient{
		baseURL:    strings.TrimRight(cfg.PublisherBaseURL, "/") + "/",
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetProduct returns the purchases.products resource for a one-time purchase.
func (c *PlayClient) GetProduct(ctx context.Context, accessToken string, q PurchaseQuery) (*models.PlayProductPurchase, error) {
	var purchase models.PlayProductPurchase
	_, err := c.get(ctx, accessToken, productPurchasePath, map[string]string{
		"packageName": q.PackageName,
		"productId":   q.ProductID,
		"token":       q.PurchaseToken,
	}, &purchase)
	if err != nil {
		return nil, fmt.Errorf("google play product lookup: %w", err)
	}
	return &purchase, nil
}

// GetSubscription returns the purchases.subscriptions resource. An
// expiryTimeMillis Google sent as "0" is listed in ForceSendFields so it is
// not confused with an absent expiry.
func (c *PlayClient) GetSubscription(ctx context.Context, accessToken string, q PurchaseQuery) (*androidpublisher.SubscriptionPurchase, error) {
	var sub androidpublisher.SubscriptionPurchase
	body, err := c.get(ctx, accessToken, subscriptionPurchasePath, map[string]string{
		"packageName":    q.PackageName,
		"subscriptionId": q.ProductID,
		"token":          q.PurchaseToken,
	}, &sub)
	if err != nil {
		return nil, fmt.Errorf("google play subscription lookup: %w", err)
	}

	if sub.ExpiryTimeMillis == 0 {
		var raw struct {
			ExpiryTimeMillis json.RawMessage `json:"expiryTimeMillis"`
		}
		if json.Unmarshal(body, &raw) == nil && isPresent(raw.ExpiryTimeMillis) {
			sub.ForceSendFields = append(sub.ForceSendFields, "ExpiryTimeMillis")
		}
	}
	return &sub, nil
}

// get decodes the resource into out and also returns the raw body.
func (c *PlayClient) get(ctx context.Context, accessToken, path string, params map[string]string, out any) ([]byte, error) {
	urls := googleapi.ResolveRelative(c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urls, nil)
	if err != nil {
		return nil, err
	}
	googleapi.Expand(req.URL, params)
	req.Header.Set("Accept", "application/json")

	client := &http.Client{
		Transport: &oauth2.Transport{
			Base:   c.httpClient.Transport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
		},
		Timeout: c.httpClient.Timeout,
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer googleapi.CloseBody(res)

	if err := googleapi.CheckResponse(res); err != nil {
		c.logger.WithFields(logrus.Fields{
			"status":       res.StatusCode,
			"package_name": params["packageName"],
		}).Warn("Google Play rejected purchase lookup")
		return nil, err
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return body, nil
}
