package game

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	StarterMoney = decimal.NewFromInt(200)
	StarterStock = decimal.NewFromInt(100)

	WinMoney  = decimal.NewFromInt(500)
	LoseDebt  = decimal.NewFromInt(500)
	SaleStock = decimal.NewFromInt(20)

	SaleMinGold = int64(10)
	SaleMaxGold = int64(50)
)

const moneyPlaces = 2

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrUnknownLender        = errors.New("unknown lender")
	ErrInvalidTransition    = errors.New("invalid loan state transition")
	ErrInvalidAmount        = errors.New("amount must be > 0")
	ErrAccrualRunning       = errors.New("accrual pass already running")
	ErrNothingForSale       = errors.New("lender has no stock for sale")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
)

// RoundGold rounds to the two decimal places every stored amount carries.
func RoundGold(v decimal.Decimal) decimal.Decimal {
	return v.Round(moneyPlaces)
}

// OwedFor is the gold owed for a principal at rate: round(principal * (1 + rate), 2).
func OwedFor(principal, rate decimal.Decimal) decimal.Decimal {
	return RoundGold(principal.Mul(decimal.NewFromInt(1).Add(rate)))
}

func ParseGold(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if !v.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return RoundGold(v), nil
}

func clampZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
