package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/qcom/receipts/internal/config"
	"github.com/qcom/receipts/internal/metrics"
	"github.com/qcom/receipts/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/androidpublisher/v3"
)

type fakeApple struct {
	txn   *models.AppleTransaction
	err   error
	calls int
	id    string
}

func (f *fakeApple) LookupTransaction(ctx context.Context, transactionID string) (*models.AppleTransaction, error) {
	f.calls++
	f.id = transactionID
	return f.txn, f.err
}

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) AccessToken(ctx context.Context) (string, error) {
	f.calls++
	return f.token, f.err
}

type fakePlay struct {
	product      *models.PlayProductPurchase
	subscription *androidpublisher.SubscriptionPurchase
	err          error

	productCalls      int
	subscriptionCalls int
	accessToken       string
	query             PurchaseQuery
}

func (f *fakePlay) GetProduct(ctx context.Context, accessToken string, q PurchaseQuery) (*models.PlayProductPurchase, error) {
	f.productCalls++
	f.accessToken, f.query = accessToken, q
	return f.product, f.err
}

func (f *fakePlay) GetSubscription(ctx context.Context, accessToken string, q PurchaseQuery) (*androidpublisher.SubscriptionPurchase, error) {
	f.subscriptionCalls++
	f.accessToken, f.query = accessToken, q
	return f.subscription, f.err
}

func newValidator(apple *fakeApple, tokens *fakeTokens, play *fakePlay) *ReceiptValidator {
	logger, _ := test.NewNullLogger()
	return NewReceiptValidator(apple, tokens, play, "com.example.app", nil, logger)
}

func TestValidate_InvalidPlatform(t *testing.T) {
	apple, tokens, play := &fakeApple{}, &fakeTokens{}, &fakePlay{}
	v := newValidator(apple, tokens, play)

	for _, platform := range []string{"", "web", "IOS"} {
		result, err := v.Validate(context.Background(), models.ValidationRequest{
			Platform: platform, Receipt: "r", ProductID: "p", Type: "consumable",
		})
		require.Error(t, err)
		assert.Nil(t, result)
		assert.EqualError(t, err, "Invalid platform")
		assert.ErrorIs(t, err, models.ErrInvalidPlatform)

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, platform, vErr.Platform)
	}

	assert.Zero(t, apple.calls+tokens.calls+play.productCalls+play.subscriptionCalls)
}

func TestValidate_MissingFields(t *testing.T) {
	apple := &fakeApple{}
	v := newValidator(apple, &fakeTokens{}, &fakePlay{})

	_, err := v.Validate(context.Background(), models.ValidationRequest{Platform: "ios"})
	require.Error(t, err)
	assert.EqualError(t, err,
		"field receipt is a required field, field productId is a required field, field type is a required field")
	assert.Zero(t, apple.calls)
}

func TestValidate_IOS(t *testing.T) {
	apple := &fakeApple{txn: &models.AppleTransaction{
		SignedDate:  json.RawMessage(`1700000000000`),
		ProductID:   "coins_100",
		Type:        "Consumable",
		ExpiresDate: nil,
	}}
	v := newValidator(apple, &fakeTokens{}, &fakePlay{})

	result, err := v.Validate(context.Background(), models.ValidationRequest{
		Platform: "ios", Receipt: "2000000123", ProductID: "coins_100", Type: "consumable",
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, "null", string(result.ExpiresDate))
	assert.Equal(t, "coins_100", result.ProductID)
	assert.Equal(t, models.PurchaseType("consumable"), result.Type)
	assert.Equal(t, "2000000123", apple.id)
}

func TestValidate_IOSMismatchIsNotAnError(t *testing.T) {
	apple := &fakeApple{txn: &models.AppleTransaction{
		SignedDate:  json.RawMessage(`1700000000000`),
		ProductID:   "pro_yearly",
		Type:        "Auto-Renewable Subscription",
		ExpiresDate: json.RawMessage(`"2025-01-01T00:00:00Z"`),
	}}
	v := newValidator(apple, &fakeTokens{}, &fakePlay{})

	result, err := v.Validate(context.Background(), models.ValidationRequest{
		Platform: "ios", Receipt: "2000000123", ProductID: "pro_monthly", Type: "subscription",
	})
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, `"2025-01-01T00:00:00Z"`, string(result.ExpiresDate))
	assert.Equal(t, "pro_monthly", result.ProductID)
}

func TestValidate_LogsVerdict(t *testing.T) {
	apple := &fakeApple{txn: &models.AppleTransaction{
		SignedDate: json.RawMessage(`1700000000000`),
		ProductID:  "pro_yearly",
		Type:       "Auto-Renewable Subscription",
	}}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	v := NewReceiptValidator(apple, &fakeTokens{}, &fakePlay{}, "com.example.app", nil, logger)

	_, err := v.Validate(context.Background(), models.ValidationRequest{
		Platform: "ios", Receipt: "2000000123", ProductID: "pro_monthly", Type: "subscription",
	})
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "Receipt validated", entry.Message)
	assert.Equal(t, "ios", entry.Data["platform"])
	assert.Equal(t, "pro_monthly", entry.Data["product_id"])
	assert.Equal(t, false, entry.Data["is_valid"])
}

func TestValidate_IOSVendorError(t *testing.T) {
	apple := &fakeApple{err: errors.New("apple transaction lookup: 401 Unauthorized ()")}
	v := newValidator(apple, &fakeTokens{}, &fakePlay{})

	_, err := v.Validate(context.Background(), models.ValidationRequest{
		Platform: "ios", Receipt: "1", ProductID: "p", Type: "consumable",
	})
	require.Error(t, err)
	assert.EqualError(t, err, "apple transaction lookup: 401 Unauthorized ()")
	assert.Equal(t, 1, apple.calls)
}

func TestValidate_AndroidConsumable(t *testing.T) {
	tests := []struct {
		name         string
		paymentState int64
		want         bool
	}{
		{"paid", 1, true},
		{"pending", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := &fakeTokens{token: "ya29.token"}
			play := &fakePlay{product: &models.PlayProductPurchase{PaymentState: int64Ptr(tt.paymentState)}}
			v := newValidator(&fakeApple{}, tokens, play)

			result, err := v.Validate(context.Background(), models.ValidationRequest{
				Platform: "android", Receipt: "purchase-token", ProductID: "coins_100", Type: "consumable",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.IsValid)
			assert.Equal(t, "null", string(result.ExpiresDate))
			assert.Equal(t, 1, play.productCalls)
			assert.Zero(t, play.subscriptionCalls)
			assert.Equal(t, "ya29.token", play.accessToken)
			assert.Equal(t, PurchaseQuery{
				PackageName:   "com.example.app",
				ProductID:     "coins_100",
				PurchaseToken: "purchase-token",
			}, play.query)
		})
	}
}

func TestValidate_AndroidSubscription(t *testing.T) {
	tests := []struct {
		name         string
		autoRenewing bool
		want         bool
	}{
		{"renewing", true, true},
		{"renewal lapsed", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			play := &fakePlay{subscription: &androidpublisher.SubscriptionPurchase{
				PaymentState:     int64Ptr(1),
				AutoRenewing:     tt.autoRenewing,
				ExpiryTimeMillis: 1706745600000,
			}}
			v := newValidator(&fakeApple{}, &fakeTokens{token: "ya29.token"}, play)

			result, err := v.Validate(context.Background(), models.ValidationRequest{
				Platform: "android", Receipt: "sub-token", ProductID: "pro_monthly", Type: "subscription",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.IsValid)
			assert.Equal(t, `"1706745600000"`, string(result.ExpiresDate))
			assert.Equal(t, models.PurchaseType("subscription"), result.Type)
			assert.Equal(t, 1, play.subscriptionCalls)
			assert.Zero(t, play.productCalls)
		})
	}
}

func TestValidate_AndroidTokenFailureSkipsLookup(t *testing.T) {
	tokens := &fakeTokens{err: errors.New("google token exchange: oauth2: cannot fetch token")}
	play := &fakePlay{}
	v := newValidator(&fakeApple{}, tokens, play)

	_, err := v.Validate(context.Background(), models.ValidationRequest{
		Platform: "android", Receipt: "t", ProductID: "p", Type: "subscription",
	})
	require.Error(t, err)
	assert.EqualError(t, err, "google token exchange: oauth2: cannot fetch token")
	assert.Equal(t, 1, tokens.calls)
	assert.Zero(t, play.productCalls+play.subscriptionCalls)
}

func TestValidate_AndroidLookupError(t *testing.T) {
	play := &fakePlay{err: errors.New("google play product lookup: googleapi: Error 404")}
	v := newValidator(&fakeApple{}, &fakeTokens{token: "tok"}, play)

	_, err := v.Validate(context.Background(), models.ValidationRequest{
		Platform: "android", Receipt: "t", ProductID: "p", Type: "consumable",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, 1, play.productCalls, "no retry")
}

func TestValidate_RecordsVendorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger, _ := test.NewNullLogger()
	play := &fakePlay{product: &models.PlayProductPurchase{PaymentState: int64Ptr(1)}}
	v := NewReceiptValidator(&fakeApple{}, &fakeTokens{token: "tok"}, play, "pkg", metrics.New(reg), logger)

	_, err := v.Validate(context.Background(), models.ValidationRequest{
		Platform: "android", Receipt: "1", ProductID: "p", Type: "consumable",
	})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "receipts_vendor_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "token exchange and purchase lookup")
}

// End to end against fake vendor endpoints.
func TestValidate_AgainstFakeVendors(t *testing.T) {
	var tokenCalls, playCalls, appleCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/o/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"ya29.fresh","token_type":"Bearer","expires_in":3599}`)
	})
	mux.HandleFunc("/androidpublisher/v3/applications/com.example.app/purchases/subscriptions/pro_monthly/tokens/sub-token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&playCalls, 1)
		assert.Equal(t, "Bearer ya29.fresh", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"paymentState":1,"autoRenewing":true,"expiryTimeMillis":"1706745600000"}`)
	})
	mux.HandleFunc("/inApps/v1/transactions/2000000123", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&appleCalls, 1)
		assert.Equal(t, "Bearer apple-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"signedDate":1700000000000,"productId":"coins_100","type":"Consumable"}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	googleCfg := &config.GoogleConfig{
		PackageName:      "com.example.app",
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		RefreshToken:     "refresh-token",
		TokenURL:         ts.URL + "/o/oauth2/token",
		PublisherBaseURL: ts.URL + "/",
	}
	appleCfg := &config.AppleConfig{APIToken: "apple-token", BaseURL: ts.URL}

	logger, _ := test.NewNullLogger()
	v := NewReceiptValidator(
		NewAppStoreClient(appleCfg, ts.Client(), logger),
		NewGoogleTokenProvider(googleCfg, ts.Client(), logger),
		NewPlayClient(googleCfg, ts.Client(), logger),
		googleCfg.PackageName,
		nil,
		logger,
	)

	result, err := v.Validate(context.Background(), models.ValidationRequest{
		Platform: "android", Receipt: "sub-token", ProductID: "pro_monthly", Type: "subscription",
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, `"1706745600000"`, string(result.ExpiresDate))

	result, err = v.Validate(context.Background(), models.ValidationRequest{
		Platform: "ios", Receipt: "2000000123", ProductID: "coins_100", Type: "consumable",
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, "null", string(result.ExpiresDate))

	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&playCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&appleCalls))
}
