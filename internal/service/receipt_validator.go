package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/qcom/receipts/internal/metrics"
	"github.com/qcom/receipts/internal/models"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/androidpublisher/v3"
)

type TransactionLookup interface {
	LookupTransaction(ctx context.Context, transactionID string) (*models.AppleTransaction, error)
}

type AccessTokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

type PurchaseLookup interface {
	GetProduct(ctx context.Context, accessToken string, q PurchaseQuery) (*models.PlayProductPurchase, error)
	GetSubscription(ctx context.Context, accessToken string, q PurchaseQuery) (*androidpublisher.SubscriptionPurchase, error)
}

// ReceiptValidator asks the issuing vendor about a purchase and applies the
// per-platform validity policy. It holds no per-request state.
type ReceiptValidator struct {
	apple       TransactionLookup
	tokens      AccessTokenProvider
	play        PurchaseLookup
	packageName string
	validate    *validator.Validate
	metrics     *metrics.Metrics
	logger      *logrus.Logger
}

func NewReceiptValidator(
	apple TransactionLookup,
	tokens AccessTokenProvider,
	play PurchaseLookup,
	packageName string,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *ReceiptValidator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &ReceiptValidator{
		apple:       apple,
		tokens:      tokens,
		play:        play,
		packageName: packageName,
		validate:    validate,
		metrics:     m,
		logger:      logger,
	}
}

func (v *ReceiptValidator) Validate(ctx context.Context, req models.ValidationRequest) (*models.ValidationResult, error) {
	target, err := models.ParseTarget(req.Platform, req.Receipt)
	if err != nil {
		return nil, &ValidationError{Platform: req.Platform, Err: err}
	}

	if err := v.checkRequired(req); err != nil {
		return nil, &ValidationError{Platform: req.Platform, Err: err}
	}

	var result *models.ValidationResult
	switch t := target.(type) {
	case models.IOSTarget:
		result, err = v.validateIOS(ctx, t, req)
	case models.AndroidTarget:
		result, err = v.validateAndroid(ctx, t, req)
	default:
		err = models.ErrInvalidPlatform
	}
	if err != nil {
		return nil, &ValidationError{Platform: req.Platform, Err: err}
	}

	v.logger.WithFields(logrus.Fields{
		"platform":   req.Platform,
		"product_id": req.ProductID,
		"type":       req.Type,
		"is_valid":   result.IsValid,
	}).Debug("Receipt validated")

	return result, nil
}

func (v *ReceiptValidator) validateIOS(ctx context.Context, target models.IOSTarget, req models.ValidationRequest) (*models.ValidationResult, error) {
	start := time.Now()
	txn, err := v.apple.LookupTransaction(ctx, target.TransactionID)
	v.metrics.ObserveVendorCall(metrics.VendorAppStore, start, err)
	if err != nil {
		return nil, err
	}

	return &models.ValidationResult{
		IsValid:     ValidateAppleTransaction(txn, req.ProductID, req.Type),
		ExpiresDate: expiresOrNull(txn.ExpiresDate),
		ProductID:   req.ProductID,
		Type:        req.Type,
	}, nil
}

func (v *ReceiptValidator) validateAndroid(ctx context.Context, target models.AndroidTarget, req models.ValidationRequest) (*models.ValidationResult, error) {
	start := time.Now()
	accessToken, err := v.tokens.AccessToken(ctx)
	v.metrics.ObserveVendorCall(metrics.VendorGoogleOAuth, start, err)
	if err != nil {
		return nil, err
	}

	q := PurchaseQuery{
		PackageName:   v.packageName,
		ProductID:     req.ProductID,
		PurchaseToken: target.PurchaseToken,
	}

	start = time.Now()
	if req.Type.IsConsumable() {
		purchase, err := v.play.GetProduct(ctx, accessToken, q)
		v.metrics.ObserveVendorCall(metrics.VendorGooglePlay, start, err)
		if err != nil {
			return nil, err
		}

		return &models.ValidationResult{
			IsValid:     ValidatePlayProduct(purchase),
			ExpiresDate: expiresOrNull(purchase.ExpiryTimeMillis),
			ProductID:   req.ProductID,
			Type:        req.Type,
		}, nil
	}

	sub, err := v.play.GetSubscription(ctx, accessToken, q)
	v.metrics.ObserveVendorCall(metrics.VendorGooglePlay, start, err)
	if err != nil {
		return nil, err
	}

	return &models.ValidationResult{
		IsValid:     ValidatePlaySubscription(sub),
		ExpiresDate: subscriptionExpiry(sub),
		ProductID:   req.ProductID,
		Type:        req.Type,
	}, nil
}

func (v *ReceiptValidator) checkRequired(req models.ValidationRequest) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("field %s is a required field", fe.Field()))
	}
	return errors.New(strings.Join(msgs, ", "))
}
