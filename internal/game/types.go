package game

import "github.com/shopspring/decimal"

// StateView is the read-only state handed to the rendering layer.
type StateView struct {
	SessionID          string                       `json:"session_id"`
	Money              decimal.Decimal              `json:"money"`
	Stock              decimal.Decimal              `json:"stock"`
	Debts              map[LenderID]decimal.Decimal `json:"debts"`
	TotalDebt          decimal.Decimal              `json:"total_debt"`
	PendingOffer       *Offer                       `json:"pending_offer,omitempty"`
	LoanState          LoanState                    `json:"loan_state"`
	Status             Status                       `json:"status"`
	Ended              bool                         `json:"ended"`
	NextAccrualSeconds float64                      `json:"next_accrual_seconds"`
}

type LenderView struct {
	Lender
	Debt decimal.Decimal `json:"debt"`
}

type LoanRequestInput struct {
	Lender         LenderID
	Amount         decimal.Decimal
	IdempotencyKey string
}

type LoanResult struct {
	Offer     *Offer     `json:"offer,omitempty"`
	Rejection *Rejection `json:"rejection,omitempty"`
	State     StateView  `json:"state"`
}

type RepayInput struct {
	Lender LenderID
	// Amount zero repays the whole debt.
	Amount         decimal.Decimal
	IdempotencyKey string
}

type RepayResult struct {
	Lender LenderID        `json:"lender"`
	Paid   decimal.Decimal `json:"paid"`
	State  StateView       `json:"state"`
}

type SaleResult struct {
	Amount    decimal.Decimal `json:"amount"`
	StockUsed decimal.Decimal `json:"stock_used"`
	State     StateView       `json:"state"`
}

type PurchaseResult struct {
	Seller LenderID        `json:"seller"`
	Units  decimal.Decimal `json:"units"`
	Cost   decimal.Decimal `json:"cost"`
	State  StateView       `json:"state"`
}

type AdvanceResult struct {
	Passes int       `json:"passes"`
	State  StateView `json:"state"`
}
