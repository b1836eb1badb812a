package game

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, provider DecisionProvider) *Session {
	t.Helper()
	s, err := NewSession(Options{
		Provider:        provider,
		DecisionTimeout: 100 * time.Millisecond,
		AccrualEvery:    30 * time.Second,
		Seed:            42,
		Now:             fixedClock(),
	}, nil)
	require.NoError(t, err)
	return s
}

func countType(records []Record, typ ActionType) int {
	n := 0
	for _, r := range records {
		if r.Type() == typ {
			n++
		}
	}
	return n
}

func TestSessionStartLogsOnce(t *testing.T) {
	s := newTestSession(t, nil)
	view := s.Start()
	s.Start()

	assert.True(t, view.Money.Equal(StarterMoney))
	assert.True(t, view.Stock.Equal(StarterStock))
	assert.Equal(t, StatusPlaying, view.Status)
	assert.Equal(t, LoanNone, view.LoanState)
	assert.Equal(t, 1, countType(s.History(), ActionGameStart))
	assert.NotEmpty(t, s.ID())
}

func TestSessionLoanFlow(t *testing.T) {
	s := newTestSession(t, NewRuleProvider())
	s.Start()
	ctx := context.Background()

	res, err := s.RequestLoan(ctx, LoanRequestInput{Lender: LenderBanker})
	require.NoError(t, err)
	require.NotNil(t, res.Offer)
	require.NotNil(t, res.State.PendingOffer)
	assert.Equal(t, LoanOffered, res.State.LoanState)

	res, err = s.AcceptLoan("")
	require.NoError(t, err)
	assert.Nil(t, res.State.PendingOffer)
	assert.True(t, res.State.Money.Equal(d("300")))
	assert.True(t, res.State.Debts[LenderBanker].Equal(d("102")))

	repaid, err := s.Repay(RepayInput{Lender: LenderBanker})
	require.NoError(t, err)
	assert.True(t, repaid.Paid.Equal(d("102")))
	assert.True(t, repaid.State.TotalDebt.IsZero())
	assert.True(t, repaid.State.Money.Equal(d("198")))
}

func TestSessionDeclineThenRequestAgain(t *testing.T) {
	s := newTestSession(t, nil)
	ctx := context.Background()

	_, err := s.RequestLoan(ctx, LoanRequestInput{Lender: LenderFarmer, Amount: d("5")})
	require.NoError(t, err)
	_, err = s.RequestLoan(ctx, LoanRequestInput{Lender: LenderWitch})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.DeclineLoan()
	require.NoError(t, err)
	res, err := s.RequestLoan(ctx, LoanRequestInput{Lender: LenderWitch})
	require.NoError(t, err)
	assert.True(t, res.Offer.Principal.Equal(d("50")))
}

func TestSessionGenerateSale(t *testing.T) {
	s := newTestSession(t, nil)

	for i := 0; i < 5; i++ {
		res, err := s.GenerateSale("")
		require.NoError(t, err)
		assert.True(t, res.Amount.GreaterThanOrEqual(decimal.NewFromInt(SaleMinGold)))
		assert.True(t, res.Amount.LessThanOrEqual(decimal.NewFromInt(SaleMaxGold)))
	}
	_, err := s.GenerateSale("")
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.True(t, s.State().Stock.IsZero())
	assert.Equal(t, 5, s.Summary().SalesMade)
}

func TestSessionBuyStock(t *testing.T) {
	s := newTestSession(t, nil)

	res, err := s.BuyStock(LenderFarmer, "")
	require.NoError(t, err)
	assert.True(t, res.State.Stock.Equal(d("105")))
	assert.True(t, res.State.Money.Equal(d("190")))

	_, err = s.BuyStock(LenderWitch, "")
	require.ErrorIs(t, err, ErrNothingForSale)

	history, err := s.HistoryFor(LenderFarmer)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSessionIdempotencyKeys(t *testing.T) {
	s := newTestSession(t, nil)

	_, err := s.GenerateSale("k-1")
	require.NoError(t, err)
	_, err = s.GenerateSale("k-1")
	require.ErrorIs(t, err, ErrDuplicateIdempotency)
	assert.Equal(t, 1, s.Summary().SalesMade)

	// A failed operation does not burn its key.
	_, err = s.Repay(RepayInput{Lender: LenderWitch, Amount: d("10"), IdempotencyKey: "k-2"})
	require.NoError(t, err)
	_, err = s.RequestLoan(context.Background(), LoanRequestInput{Lender: LenderWitch, Amount: d("3"), IdempotencyKey: "k-3"})
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = s.RequestLoan(context.Background(), LoanRequestInput{Lender: LenderWitch, IdempotencyKey: "k-3"})
	require.NoError(t, err)

	_, err = s.Purchase(d("20"), "oven", "k-4")
	require.NoError(t, err)
	_, err = s.Purchase(d("20"), "oven", "k-4")
	require.ErrorIs(t, err, ErrDuplicateIdempotency)
	_, err = s.Purchase(d("5000"), "castle", "k-5")
	require.ErrorIs(t, err, ErrInsufficientFunds)
	_, err = s.Purchase(d("5"), "spoon", "k-5")
	require.NoError(t, err)
	assert.Equal(t, 2, countType(s.History(), ActionPurchase))

	_, err = s.SpendStock(d("10"), "", "k-6")
	require.NoError(t, err)
	view, err := s.SpendStock(d("10"), "", "k-6")
	require.ErrorIs(t, err, ErrDuplicateIdempotency)
	assert.Empty(t, view.SessionID)
	assert.True(t, s.State().Stock.Equal(d("70")), "one sale and one spend")
}

func TestSessionGameEndLoggedOnce(t *testing.T) {
	s := newTestSession(t, nil)
	s.Start()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.RequestLoan(ctx, LoanRequestInput{Lender: LenderWitch, Amount: d("100")})
		require.NoError(t, err)
		_, err = s.AcceptLoan("")
		require.NoError(t, err)
	}
	// 5 * 125 = 625 owed.
	view := s.State()
	assert.Equal(t, StatusLose, view.Status)
	assert.True(t, view.Ended)

	for i := 0; i < 3; i++ {
		assert.Equal(t, StatusLose, s.CheckStatus())
	}
	_, err := s.Advance(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, countType(s.History(), ActionGameEnd))
}

func TestSessionWin(t *testing.T) {
	money, stock := d("490"), d("40")
	s, err := NewSession(Options{StartMoney: &money, StartStock: &stock, Seed: 7, Now: fixedClock()}, nil)
	require.NoError(t, err)

	res, err := s.GenerateSale("")
	require.NoError(t, err)
	assert.Equal(t, StatusWin, res.State.Status)

	records := s.History()
	end, ok := records[len(records)-1].Details.(GameEndDetails)
	require.True(t, ok)
	assert.Equal(t, StatusWin, end.Result)
}

func TestSessionAdvanceAccrues(t *testing.T) {
	s := newTestSession(t, nil)
	_, err := s.RequestLoan(context.Background(), LoanRequestInput{Lender: LenderWitch})
	require.NoError(t, err)
	_, err = s.AcceptLoan("")
	require.NoError(t, err)

	res, err := s.Advance(45 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Passes)
	assert.True(t, res.State.Debts[LenderWitch].Equal(d("78.13")), "debt %s", res.State.Debts[LenderWitch])
	assert.InDelta(t, 15, res.State.NextAccrualSeconds, 0.001)
}

func TestSessionExportVerifies(t *testing.T) {
	s := newTestSession(t, NewRuleProvider())
	s.Start()
	_, err := s.RequestLoan(context.Background(), LoanRequestInput{Lender: LenderBanker})
	require.NoError(t, err)
	_, err = s.AcceptLoan("")
	require.NoError(t, err)
	_, err = s.GenerateSale("")
	require.NoError(t, err)

	doc := s.Export()
	assert.Equal(t, s.ID(), doc.SessionID)
	require.NoError(t, VerifyExport(doc))
	assert.Equal(t, 1, doc.Summary.LoansTaken)
	assert.Equal(t, 1, doc.Summary.SalesMade)
}

func TestSessionStartingBalances(t *testing.T) {
	zero := decimal.Zero
	s, err := NewSession(Options{StartMoney: &zero, StartStock: &zero}, nil)
	require.NoError(t, err)
	view := s.State()
	assert.True(t, view.Money.IsZero())
	assert.True(t, view.Stock.IsZero())

	money := d("75")
	s, err = NewSession(Options{StartMoney: &money}, nil)
	require.NoError(t, err)
	view = s.State()
	assert.True(t, view.Money.Equal(d("75")))
	assert.True(t, view.Stock.Equal(StarterStock), "unset stock keeps the default")
}
