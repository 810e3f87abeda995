package service

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"

	"github.com/qcom/receipts/internal/models"
	"google.golang.org/api/androidpublisher/v3"
)

// ValidateAppleTransaction accepts a transaction that carries a signed date,
// is for the requested product, and has the App Store type matching the
// requested purchase type.
func ValidateAppleTransaction(txn *models.AppleTransaction, productID string, purchaseType models.PurchaseType) bool {
	if txn == nil {
		return false
	}

	wantType := models.AppleTypeAutoRenewableSubscription
	if purchaseType.IsConsumable() {
		wantType = models.AppleTypeConsumable
	}

	return isPresent(txn.SignedDate) &&
		txn.ProductID == productID &&
		txn.Type == wantType
}

// ValidatePlayProduct accepts a one-time purchase whose payment was received.
func ValidatePlayProduct(purchase *models.PlayProductPurchase) bool {
	return purchase != nil && paymentReceived(purchase.PaymentState)
}

// ValidatePlaySubscription accepts a paid subscription that is still
// auto-renewing. A lapsed renewal is invalid even if an earlier payment
// succeeded.
func ValidatePlaySubscription(sub *androidpublisher.SubscriptionPurchase) bool {
	return sub != nil && paymentReceived(sub.PaymentState) && sub.AutoRenewing
}

func paymentReceived(state *int64) bool {
	return state != nil && *state == models.PlayPaymentReceived
}

// isPresent treats absent, null, false, 0 and "" as missing.
func isPresent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}

	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	default:
		return true
	}
}

// expiresOrNull echoes a vendor expiry verbatim, or null when it is missing.
func expiresOrNull(raw json.RawMessage) json.RawMessage {
	if !isPresent(raw) {
		return models.NullJSON
	}
	return bytes.TrimSpace(raw)
}

// subscriptionExpiry restores the string form Google sends expiryTimeMillis
// in. A zero expiry is echoed only when Google actually sent it.
func subscriptionExpiry(sub *androidpublisher.SubscriptionPurchase) json.RawMessage {
	if sub == nil {
		return models.NullJSON
	}
	if sub.ExpiryTimeMillis == 0 && !slices.Contains(sub.ForceSendFields, "ExpiryTimeMillis") {
		return models.NullJSON
	}
	return json.RawMessage(strconv.Quote(strconv.FormatInt(sub.ExpiryTimeMillis, 10)))
}
