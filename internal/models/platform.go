package models

import "errors"

const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

var ErrInvalidPlatform = errors.New("Invalid platform")

// Target identifies the purchase to look up at the issuing vendor. The only
// implementations are IOSTarget and AndroidTarget.
type Target interface {
	Platform() string
	isTarget()
}

// IOSTarget is an App Store transaction.
type IOSTarget struct {
	TransactionID string
}

func (IOSTarget) Platform() string { return PlatformIOS }
func (IOSTarget) isTarget()        {}

// AndroidTarget is a Google Play purchase or subscription token.
type AndroidTarget struct {
	PurchaseToken string
}

func (AndroidTarget) Platform() string { return PlatformAndroid }
func (AndroidTarget) isTarget()        {}

func ParseTarget(platform, receipt string) (Target, error) {
	switch platform {
	case PlatformIOS:
		return IOSTarget{TransactionID: receipt}, nil
	case PlatformAndroid:
		return AndroidTarget{PurchaseToken: receipt}, nil
	default:
		return nil, ErrInvalidPlatform
	}
}
