package game

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type ActionType string

const (
	ActionLoan         ActionType = "loan"
	ActionLoanRejected ActionType = "loan_rejected"
	ActionRepayment    ActionType = "repayment"
	ActionSale         ActionType = "sale"
	ActionPurchase     ActionType = "purchase"
	ActionInterest     ActionType = "interest"
	ActionStockSpent   ActionType = "stock_spent"
	ActionGameStart    ActionType = "game_start"
	ActionGameEnd      ActionType = "game_end"
)

func AllActionTypes() []ActionType {
	return []ActionType{
		ActionLoan,
		ActionLoanRejected,
		ActionRepayment,
		ActionSale,
		ActionPurchase,
		ActionInterest,
		ActionStockSpent,
		ActionGameStart,
		ActionGameEnd,
	}
}

func (t ActionType) IsValid() bool {
	switch t {
	case ActionLoan, ActionLoanRejected, ActionRepayment, ActionSale, ActionPurchase,
		ActionInterest, ActionStockSpent, ActionGameStart, ActionGameEnd:
		return true
	default:
		return false
	}
}

// Details is the closed set of per-type payloads. The action type of a
// record is derived from its payload.
type Details interface {
	ActionType() ActionType
	Describe() string
	isDetails()
}

// LenderOf returns the lender a payload concerns, if any.
func LenderOf(d Details) (LenderID, bool) {
	switch v := d.(type) {
	case LoanDetails:
		return v.Lender, true
	case LoanRejectedDetails:
		return v.Lender, true
	case RepaymentDetails:
		return v.Lender, true
	case InterestDetails:
		return v.Lender, true
	case PurchaseDetails:
		return v.Seller, v.Seller != ""
	default:
		return "", false
	}
}

type LoanDetails struct {
	Lender         LenderID        `json:"lender"`
	Amount         decimal.Decimal `json:"amount"`
	InterestRate   decimal.Decimal `json:"interest_rate"`
	AmountOwed     decimal.Decimal `json:"amount_owed"`
	Disbursed      Disbursement    `json:"disbursed"`
	RemainingMoney decimal.Decimal `json:"remaining_money"`
	RemainingStock decimal.Decimal `json:"remaining_stock"`
	TotalDebt      decimal.Decimal `json:"total_debt"`
}

type LoanRejectedDetails struct {
	Lender LenderID `json:"lender"`
	Reason string   `json:"reason"`
}

type RepaymentDetails struct {
	Lender         LenderID        `json:"lender"`
	Amount         decimal.Decimal `json:"amount"`
	RemainingDebt  decimal.Decimal `json:"remaining_debt"`
	RemainingMoney decimal.Decimal `json:"remaining_money"`
	TotalDebt      decimal.Decimal `json:"total_debt"`
}

type SaleDetails struct {
	Amount         decimal.Decimal `json:"amount"`
	StockUsed      decimal.Decimal `json:"stock_used"`
	RemainingMoney decimal.Decimal `json:"remaining_money"`
	RemainingStock decimal.Decimal `json:"remaining_stock"`
}

type PurchaseDetails struct {
	Item           string          `json:"item"`
	Seller         LenderID        `json:"seller,omitempty"`
	Units          decimal.Decimal `json:"units"`
	Cost           decimal.Decimal `json:"cost"`
	RemainingMoney decimal.Decimal `json:"remaining_money"`
	RemainingStock decimal.Decimal `json:"remaining_stock"`
}

type InterestDetails struct {
	Lender       LenderID        `json:"lender"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	DebtBefore   decimal.Decimal `json:"debt_before"`
	DebtAfter    decimal.Decimal `json:"debt_after"`
	TotalDebt    decimal.Decimal `json:"total_debt"`
}

type StockSpentDetails struct {
	Reason         string          `json:"reason"`
	Amount         decimal.Decimal `json:"amount"`
	RemainingStock decimal.Decimal `json:"remaining_stock"`
}

type GameStartDetails struct {
	SessionID     string          `json:"session_id"`
	StartingMoney decimal.Decimal `json:"starting_money"`
	StartingStock decimal.Decimal `json:"starting_stock"`
	StartingDebt  decimal.Decimal `json:"starting_debt"`
}

type GameEndDetails struct {
	Result     Status          `json:"result"`
	FinalMoney decimal.Decimal `json:"final_money"`
	FinalStock decimal.Decimal `json:"final_stock"`
	FinalDebt  decimal.Decimal `json:"final_debt"`
	Reason     string          `json:"reason,omitempty"`
}

func (LoanDetails) ActionType() ActionType         { return ActionLoan }
func (LoanRejectedDetails) ActionType() ActionType { return ActionLoanRejected }
func (RepaymentDetails) ActionType() ActionType    { return ActionRepayment }
func (SaleDetails) ActionType() ActionType         { return ActionSale }
func (PurchaseDetails) ActionType() ActionType     { return ActionPurchase }
func (InterestDetails) ActionType() ActionType     { return ActionInterest }
func (StockSpentDetails) ActionType() ActionType   { return ActionStockSpent }
func (GameStartDetails) ActionType() ActionType    { return ActionGameStart }
func (GameEndDetails) ActionType() ActionType      { return ActionGameEnd }

func (LoanDetails) isDetails()         {}
func (LoanRejectedDetails) isDetails() {}
func (RepaymentDetails) isDetails()    {}
func (SaleDetails) isDetails()         {}
func (PurchaseDetails) isDetails()     {}
func (InterestDetails) isDetails()     {}
func (StockSpentDetails) isDetails()   {}
func (GameStartDetails) isDetails()    {}
func (GameEndDetails) isDetails()      {}

func (d LoanDetails) Describe() string {
	unit := "gold"
	if d.Disbursed == DisburseStock {
		unit = "stock"
	}
	return fmt.Sprintf("Borrowed %s %s from %s at %s%% interest (will owe %s gold)",
		d.Amount.String(), unit, d.Lender, d.InterestRate.Shift(2).String(), d.AmountOwed.StringFixed(2))
}

func (d LoanRejectedDetails) Describe() string {
	return fmt.Sprintf("Loan request to %s rejected: %s", d.Lender, d.Reason)
}

func (d RepaymentDetails) Describe() string {
	return fmt.Sprintf("Repaid %s gold to %s", d.Amount.StringFixed(2), d.Lender)
}

func (d SaleDetails) Describe() string {
	return fmt.Sprintf("Made sale for %s gold (stock used: %s)", d.Amount.String(), d.StockUsed.String())
}

func (d PurchaseDetails) Describe() string {
	if d.Seller != "" {
		return fmt.Sprintf("Bought %s %s from %s for %s gold", d.Units.String(), d.Item, d.Seller, d.Cost.StringFixed(2))
	}
	return fmt.Sprintf("Bought %s for %s gold", d.Item, d.Cost.StringFixed(2))
}

func (d InterestDetails) Describe() string {
	return fmt.Sprintf("Interest on %s: %s -> %s gold", d.Lender, d.DebtBefore.StringFixed(2), d.DebtAfter.StringFixed(2))
}

func (d StockSpentDetails) Describe() string {
	return fmt.Sprintf("Spent %s stock on %s", d.Amount.String(), d.Reason)
}

func (d GameStartDetails) Describe() string {
	return fmt.Sprintf("Game started with %s gold and %s stock", d.StartingMoney.StringFixed(2), d.StartingStock.String())
}

func (d GameEndDetails) Describe() string {
	return fmt.Sprintf("Game over: %s (gold %s, debt %s)", d.Result, d.FinalMoney.StringFixed(2), d.FinalDebt.StringFixed(2))
}

// Record is one immutable entry of the action log.
type Record struct {
	Seq       int64
	Timestamp time.Time
	Details   Details
}

func (r Record) Type() ActionType {
	if r.Details == nil {
		return ""
	}
	return r.Details.ActionType()
}

func (r Record) Describe() string {
	return r.Timestamp.Local().Format("2006-01-02 15:04:05") + ": " + r.Details.Describe()
}

type recordJSON struct {
	Seq        int64           `json:"seq"`
	Timestamp  float64         `json:"timestamp"`
	Datetime   string          `json:"datetime"`
	ActionType ActionType      `json:"action_type"`
	Details    json.RawMessage `json:"details"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.Details == nil {
		return nil, fmt.Errorf("record %d has no details", r.Seq)
	}
	details, err := json.Marshal(r.Details)
	if err != nil {
		return nil, err
	}
	return json.Marshal(recordJSON{
		Seq:        r.Seq,
		Timestamp:  epochSeconds(r.Timestamp),
		Datetime:   r.Timestamp.Local().Format("2006-01-02 15:04:05"),
		ActionType: r.Details.ActionType(),
		Details:    details,
	})
}

func (r *Record) UnmarshalJSON(raw []byte) error {
	var in recordJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return err
	}
	details, err := decodeDetails(in.ActionType, in.Details)
	if err != nil {
		return fmt.Errorf("record %d: %w", in.Seq, err)
	}
	r.Seq = in.Seq
	r.Timestamp = fromEpochSeconds(in.Timestamp)
	r.Details = details
	return nil
}

func decodeDetails(t ActionType, raw json.RawMessage) (Details, error) {
	switch t {
	case ActionLoan:
		return decodeAs[LoanDetails](raw)
	case ActionLoanRejected:
		return decodeAs[LoanRejectedDetails](raw)
	case ActionRepayment:
		return decodeAs[RepaymentDetails](raw)
	case ActionSale:
		return decodeAs[SaleDetails](raw)
	case ActionPurchase:
		return decodeAs[PurchaseDetails](raw)
	case ActionInterest:
		return decodeAs[InterestDetails](raw)
	case ActionStockSpent:
		return decodeAs[StockSpentDetails](raw)
	case ActionGameStart:
		return decodeAs[GameStartDetails](raw)
	case ActionGameEnd:
		return decodeAs[GameEndDetails](raw)
	default:
		return nil, fmt.Errorf("unknown action type %q", t)
	}
}

func decodeAs[T Details](raw json.RawMessage) (Details, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpochSeconds(v float64) time.Time {
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond))
}
