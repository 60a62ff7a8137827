// Package settlement splits a completed order's value between seller and
// platform.
package settlement

import (
	"errors"

	"github.com/shopspring/decimal"
)

// minorUnits is the number of decimal places kept for currency amounts.
const minorUnits = 2

var sellerShare = decimal.RequireFromString("0.80")

// ErrNegativeAmount is returned for negative inputs.
var ErrNegativeAmount = errors.New("settlement amounts must not be negative")

// Split is the outcome of a settlement.
type Split struct {
	SellerAmount   decimal.Decimal
	PlatformAmount decimal.Decimal
}

// Calculate gives the seller 80% of the purchase price and the platform the
// remaining 20% plus the whole delivery fee. The seller share is rounded
// half-up to the minor unit and the platform takes the remainder, so the
// two always sum to purchasePrice + deliveryFee exactly.
func Calculate(purchasePrice, deliveryFee decimal.Decimal) (Split, error) {
	if purchasePrice.IsNegative() || deliveryFee.IsNegative() {
		return Split{}, ErrNegativeAmount
	}

	total := purchasePrice.Add(deliveryFee).Round(minorUnits)
	seller := purchasePrice.Mul(sellerShare).Round(minorUnits)

	return Split{
		SellerAmount:   seller,
		PlatformAmount: total.Sub(seller),
	}, nil
}
