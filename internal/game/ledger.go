package game

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Balances is a read-only copy of the ledger state.
type Balances struct {
	Money     decimal.Decimal              `json:"money"`
	Stock     decimal.Decimal              `json:"stock"`
	Debts     map[LenderID]decimal.Decimal `json:"debts"`
	TotalDebt decimal.Decimal              `json:"total_debt"`
}

// Ledger owns money, stock and per-lender debts. Every successful mutation
// appends exactly one record to the tracker before the lock is released.
type Ledger struct {
	mu      sync.Mutex
	lenders *Registry
	tracker *Tracker
	money   decimal.Decimal
	stock   decimal.Decimal
	debts   map[LenderID]decimal.Decimal
}

func NewLedger(lenders *Registry, tracker *Tracker, money, stock decimal.Decimal) (*Ledger, error) {
	if lenders == nil || tracker == nil {
		return nil, fmt.Errorf("ledger needs a lender registry and a tracker")
	}
	if money.IsNegative() || stock.IsNegative() {
		return nil, fmt.Errorf("starting balances must be >= 0")
	}
	l := &Ledger{
		lenders: lenders,
		tracker: tracker,
		money:   RoundGold(money),
		stock:   RoundGold(stock),
		debts:   make(map[LenderID]decimal.Decimal),
	}
	for _, id := range lenders.IDs() {
		l.debts[id] = decimal.Zero
	}
	return l, nil
}

func (l *Ledger) Snapshot() Balances {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() Balances {
	out := Balances{
		Money: l.money,
		Stock: l.stock,
		Debts: make(map[LenderID]decimal.Decimal, len(l.debts)),
	}
	for id, v := range l.debts {
		out.Debts[id] = v
		out.TotalDebt = out.TotalDebt.Add(v)
	}
	return out
}

func (l *Ledger) totalDebtLocked() decimal.Decimal {
	total := decimal.Zero
	for _, v := range l.debts {
		total = total.Add(v)
	}
	return total
}

func (l *Ledger) publishLocked() {
	debts := make(map[LenderID]float64, len(l.debts))
	for id, v := range l.debts {
		debts[id] = v.InexactFloat64()
	}
	observeBalances(l.money.InexactFloat64(), debts)
}

func (l *Ledger) reject(reason string, err error) error {
	ledgerRejections.WithLabelValues(reason).Inc()
	return err
}

// Borrow credits principal to money or stock (per the lender) and adds the
// owed amount to the lender's debt.
func (l *Ledger) Borrow(lender LenderID, principal, rate decimal.Decimal) (decimal.Decimal, error) {
	info, err := l.lenders.Get(lender)
	if err != nil {
		return decimal.Zero, l.reject("unknown_lender", err)
	}
	if principal.IsNegative() || rate.IsNegative() {
		return decimal.Zero, l.reject("invalid_amount", ErrInvalidAmount)
	}
	principal = RoundGold(principal)
	owed := OwedFor(principal, rate)

	l.mu.Lock()
	defer l.mu.Unlock()
	switch info.Disburses {
	case DisburseStock:
		l.stock = l.stock.Add(principal)
	default:
		l.money = l.money.Add(principal)
	}
	l.debts[lender] = l.debts[lender].Add(owed)
	l.tracker.Log(LoanDetails{
		Lender:         lender,
		Amount:         principal,
		InterestRate:   rate,
		AmountOwed:     owed,
		Disbursed:      info.Disburses,
		RemainingMoney: l.money,
		RemainingStock: l.stock,
		TotalDebt:      l.totalDebtLocked(),
	})
	l.publishLocked()
	return owed, nil
}

// Repay takes amount from money and subtracts it from the lender's debt,
// clamping the debt at zero. Funds are checked first; after that a zero debt
// makes this a successful no-op with no record.
func (l *Ledger) Repay(lender LenderID, amount decimal.Decimal) (decimal.Decimal, error) {
	if _, err := l.lenders.Get(lender); err != nil {
		return decimal.Zero, l.reject("unknown_lender", err)
	}
	if amount.IsNegative() {
		return decimal.Zero, l.reject("invalid_amount", ErrInvalidAmount)
	}
	amount = RoundGold(amount)
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount.GreaterThan(l.money) {
		return decimal.Zero, l.reject("insufficient_funds", fmt.Errorf("%w: repay %s with %s gold", ErrInsufficientFunds, amount.StringFixed(2), l.money.StringFixed(2)))
	}
	debt := l.debts[lender]
	if debt.IsZero() {
		return decimal.Zero, nil
	}
	if amount.IsZero() {
		return decimal.Zero, l.reject("invalid_amount", ErrInvalidAmount)
	}
	l.money = l.money.Sub(amount)
	l.debts[lender] = clampZero(debt.Sub(amount))
	l.tracker.Log(RepaymentDetails{
		Lender:         lender,
		Amount:         amount,
		RemainingDebt:  l.debts[lender],
		RemainingMoney: l.money,
		TotalDebt:      l.totalDebtLocked(),
	})
	l.publishLocked()
	return amount, nil
}

// Accrue compounds one lender's debt by its rate. It reports false, with no
// record, when the debt is zero or rounding leaves it unchanged.
func (l *Ledger) Accrue(lender LenderID) (bool, error) {
	info, err := l.lenders.Get(lender)
	if err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	before := l.debts[lender]
	if before.IsZero() {
		return false, nil
	}
	after := OwedFor(before, info.Rate)
	if after.Equal(before) {
		return false, nil
	}
	l.debts[lender] = after
	l.tracker.Log(InterestDetails{
		Lender:       lender,
		InterestRate: info.Rate,
		DebtBefore:   before,
		DebtAfter:    after,
		TotalDebt:    l.totalDebtLocked(),
	})
	l.publishLocked()
	return true, nil
}

// SpendStock lowers stock by amount, clamped at zero. It always succeeds.
func (l *Ledger) SpendStock(amount decimal.Decimal, reason string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !amount.IsPositive() || l.stock.IsZero() {
		return l.stock
	}
	next := clampZero(l.stock.Sub(RoundGold(amount)))
	spent := l.stock.Sub(next)
	l.stock = next
	if strings.TrimSpace(reason) == "" {
		reason = "upkeep"
	}
	l.tracker.Log(StockSpentDetails{
		Reason:         reason,
		Amount:         spent,
		RemainingStock: l.stock,
	})
	return l.stock
}

func (l *Ledger) Purchase(cost decimal.Decimal, item string) error {
	if !cost.IsPositive() {
		return l.reject("invalid_amount", ErrInvalidAmount)
	}
	cost = RoundGold(cost)
	l.mu.Lock()
	defer l.mu.Unlock()
	if cost.GreaterThan(l.money) {
		return l.reject("insufficient_funds", fmt.Errorf("%w: %s costs %s, have %s", ErrInsufficientFunds, item, cost.StringFixed(2), l.money.StringFixed(2)))
	}
	l.money = l.money.Sub(cost)
	l.tracker.Log(PurchaseDetails{
		Item:           item,
		Cost:           cost,
		RemainingMoney: l.money,
		RemainingStock: l.stock,
	})
	l.publishLocked()
	return nil
}

// PurchaseStock exchanges gold for stock from a lender's shop in one step.
func (l *Ledger) PurchaseStock(seller LenderID, units, cost decimal.Decimal) error {
	if _, err := l.lenders.Get(seller); err != nil {
		return l.reject("unknown_lender", err)
	}
	if !units.IsPositive() || !cost.IsPositive() {
		return l.reject("invalid_amount", ErrInvalidAmount)
	}
	cost = RoundGold(cost)
	l.mu.Lock()
	defer l.mu.Unlock()
	if cost.GreaterThan(l.money) {
		return l.reject("insufficient_funds", fmt.Errorf("%w: %s stock costs %s, have %s", ErrInsufficientFunds, units.String(), cost.StringFixed(2), l.money.StringFixed(2)))
	}
	l.money = l.money.Sub(cost)
	l.stock = l.stock.Add(units)
	l.tracker.Log(PurchaseDetails{
		Item:           "stock",
		Seller:         seller,
		Units:          units,
		Cost:           cost,
		RemainingMoney: l.money,
		RemainingStock: l.stock,
	})
	l.publishLocked()
	return nil
}

// Sale converts stockUsed into amount gold.
func (l *Ledger) Sale(amount, stockUsed decimal.Decimal) error {
	if !amount.IsPositive() || stockUsed.IsNegative() {
		return l.reject("invalid_amount", ErrInvalidAmount)
	}
	amount = RoundGold(amount)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stock.LessThan(stockUsed) {
		return l.reject("insufficient_stock", fmt.Errorf("%w: need %s, have %s", ErrInsufficientStock, stockUsed.String(), l.stock.String()))
	}
	l.money = l.money.Add(amount)
	l.stock = l.stock.Sub(stockUsed)
	l.tracker.Log(SaleDetails{
		Amount:         amount,
		StockUsed:      stockUsed,
		RemainingMoney: l.money,
		RemainingStock: l.stock,
	})
	l.publishLocked()
	return nil
}
