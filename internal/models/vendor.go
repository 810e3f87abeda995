package models

import "encoding/json"

const (
	AppleTypeConsumable                = "Consumable"
	AppleTypeAutoRenewableSubscription = "Auto-Renewable Subscription"
)

// PlayPaymentReceived is the Google Play paymentState of a paid purchase.
const PlayPaymentReceived int64 = 1

// AppleTransaction is the App Store transaction lookup response. SignedDate
// and ExpiresDate are kept raw so they can be checked and echoed verbatim.
type AppleTransaction struct {
	TransactionID string          `json:"transactionId,omitempty"`
	SignedDate    json.RawMessage `json:"signedDate,omitempty"`
	ProductID     string          `json:"productId"`
	Type          string          `json:"type"`
	ExpiresDate   json.RawMessage `json:"expiresDate,omitempty"`
}

// PlayProductPurchase is the Google Play purchases.products resource.
type PlayProductPurchase struct {
	Kind             string          `json:"kind,omitempty"`
	OrderID          string          `json:"orderId,omitempty"`
	PurchaseState    *int64          `json:"purchaseState,omitempty"`
	PaymentState     *int64          `json:"paymentState,omitempty"`
	ExpiryTimeMillis json.RawMessage `json:"expiryTimeMillis,omitempty"`
}
