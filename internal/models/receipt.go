package models

import "encoding/json"

type PurchaseType string

const PurchaseTypeConsumable PurchaseType = "consumable"

// IsConsumable reports whether t is a one-time purchase. Every other value is
// validated as an auto-renewable subscription.
func (t PurchaseType) IsConsumable() bool {
	return t == PurchaseTypeConsumable
}

type ValidationRequest struct {
	Platform  string       `json:"platform"`
	Receipt   string       `json:"receipt" validate:"required"`
	ProductID string       `json:"productId" validate:"required"`
	Type      PurchaseType `json:"type" validate:"required"`
}

type ValidationResult struct {
	IsValid     bool            `json:"isValid"`
	ExpiresDate json.RawMessage `json:"expiresDate"`
	ProductID   string          `json:"productId"`
	Type        PurchaseType    `json:"type"`
}

type FailureResult struct {
	IsValid   bool         `json:"isValid"`
	Error     string       `json:"error"`
	ProductID string       `json:"productId"`
	Type      PurchaseType `json:"type"`
}

// NullJSON is the expiresDate of a purchase without an expiry.
var NullJSON = json.RawMessage("null")
