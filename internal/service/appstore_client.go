package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/qcom/receipts/internal/config"
	"github.com/qcom/receipts/internal/models"
	"github.com/sirupsen/logrus"
)

const maxErrorBody = 4 << 10

// AppStoreClient looks up transactions in the App Store Server API using a
// static bearer token.
type AppStoreClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewAppStoreClient(cfg *config.AppleConfig, httpClient *http.Client, logger *logrus.Logger) *AppStoreClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &AppStoreClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiToken:   cfg.APIToken,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *AppStoreClient) LookupTransaction(ctx context.Context, transactionID string) (*models.AppleTransaction, error) {
	endpoint := fmt.Sprintf("%s/inApps/v1/transactions/%s", c.baseURL, url.PathEscape(transactionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("apple transaction lookup: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apple transaction lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.WithFields(logrus.Fields{
			"status":         resp.StatusCode,
			"transaction_id": transactionID,
		}).Warn("App Store rejected transaction lookup")
		return nil, fmt.Errorf("apple transaction lookup: %s (%s)", resp.Status, strings.TrimSpace(string(body)))
	}

	var txn models.AppleTransaction
	if err := json.NewDecoder(resp.Body).Decode(&txn); err != nil {
		return nil, fmt.Errorf("apple transaction lookup: decode response: %w", err)
	}

	return &txn, nil
}
