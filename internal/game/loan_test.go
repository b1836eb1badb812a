package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	mu       sync.Mutex
	calls    int
	decision Decision
	err      error
	seen     []Snapshot
}

func (p *stubProvider) Decide(_ context.Context, snap Snapshot) (Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.seen = append(p.seen, snap)
	return p.decision, p.err
}

func approve(amount, rate string) *stubProvider {
	return &stubProvider{decision: Decision{Approved: true, Amount: d(amount), Rate: d(rate), Reason: "good standing"}}
}

func newTestWorkflow(t *testing.T, provider DecisionProvider, timeout time.Duration) (*Workflow, *Ledger, *Tracker) {
	t.Helper()
	ledger, tracker := newTestLedger(t, "200", "100")
	w := NewWorkflow(MustDefaultRegistry(), ledger, tracker, provider, timeout, nil)
	return w, ledger, tracker
}

func TestFixedLenderOfferAndAccept(t *testing.T) {
	w, ledger, tracker := newTestWorkflow(t, nil, 0)

	offer, rejection, err := w.Request(context.Background(), LenderWitch, decimal.Zero)
	require.NoError(t, err)
	require.Nil(t, rejection)
	require.NotNil(t, offer)
	assert.True(t, offer.Principal.Equal(d("50")))
	assert.True(t, offer.Owed.Equal(d("62.5")))
	assert.Equal(t, LoanOffered, w.State())
	assert.Equal(t, 0, tracker.Len(), "offers are not financial events")

	accepted, err := w.Accept()
	require.NoError(t, err)
	assert.Equal(t, LenderWitch, accepted.Lender)
	assert.Equal(t, LoanNone, w.State())
	_, pending := w.Pending()
	assert.False(t, pending)

	b := ledger.Snapshot()
	assert.True(t, b.Money.Equal(d("250")))
	assert.True(t, b.Debts[LenderWitch].Equal(d("62.5")))
	assert.Equal(t, 1, tracker.Len())
}

func TestFixedLenderRejectsOffTierAmount(t *testing.T) {
	w, _, _ := newTestWorkflow(t, nil, 0)
	_, _, err := w.Request(context.Background(), LenderFarmer, d("7"))
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, LoanNone, w.State())
}

func TestSingleOfferRule(t *testing.T) {
	w, ledger, tracker := newTestWorkflow(t, approve("100", "0.05"), time.Second)

	_, _, err := w.Request(context.Background(), LenderWitch, decimal.Zero)
	require.NoError(t, err)

	_, _, err = w.Request(context.Background(), LenderFarmer, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, _, err = w.Request(context.Background(), LenderBanker, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidTransition)

	offer, ok := w.Pending()
	require.True(t, ok)
	assert.Equal(t, LenderWitch, offer.Lender, "the first offer survives")

	_, err = w.Decline()
	require.NoError(t, err)
	assert.Equal(t, LoanNone, w.State())
	assert.Equal(t, 0, tracker.Len(), "decline records nothing")
	assert.True(t, ledger.Snapshot().Money.Equal(d("200")))

	_, _, err = w.Request(context.Background(), LenderFarmer, decimal.Zero)
	require.NoError(t, err)
}

func TestAcceptDeclineRequireOffer(t *testing.T) {
	w, _, _ := newTestWorkflow(t, nil, 0)
	_, err := w.Accept()
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = w.Decline()
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDynamicLenderApproved(t *testing.T) {
	provider := approve("100", "0.05")
	w, ledger, _ := newTestWorkflow(t, provider, time.Second)

	offer, rejection, err := w.Request(context.Background(), LenderBanker, decimal.Zero)
	require.NoError(t, err)
	require.Nil(t, rejection)
	assert.True(t, offer.Owed.Equal(d("105")))
	assert.Equal(t, "good standing", offer.Rationale)

	require.Len(t, provider.seen, 1)
	assert.True(t, provider.seen[0].Money.Equal(d("200")))
	assert.Len(t, provider.seen[0].Debts, 4)

	_, err = w.Accept()
	require.NoError(t, err)
	b := ledger.Snapshot()
	assert.True(t, b.Money.Equal(d("300")))
	assert.True(t, b.Debts[LenderBanker].Equal(d("105")))
}

func TestDynamicLenderRejectsRequestedAmount(t *testing.T) {
	provider := approve("100", "0.05")
	w, _, tracker := newTestWorkflow(t, provider, time.Second)

	_, _, err := w.Request(context.Background(), LenderBanker, d("150"))
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, LoanNone, w.State())
	assert.Zero(t, provider.calls)
	assert.Equal(t, 0, tracker.Len())

	offer, _, err := w.Request(context.Background(), LenderBanker, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, offer.Principal.Equal(d("100")))
}

func TestDynamicLenderFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		provider DecisionProvider
	}{
		{name: "nil provider", provider: nil},
		{name: "error", provider: &stubProvider{err: errors.New("connection refused")}},
		{name: "denied", provider: &stubProvider{decision: Decision{Approved: false, Reason: "too much debt"}}},
		{name: "denied without reason", provider: &stubProvider{decision: Decision{Approved: false}}},
		{name: "zero amount", provider: approve("0", "0.05")},
		{name: "negative rate", provider: approve("50", "-0.01")},
		{name: "absurd rate", provider: approve("50", "4")},
		{name: "panic", provider: DecisionFunc(func(context.Context, Snapshot) (Decision, error) {
			panic("model exploded")
		})},
		{name: "ignores context", provider: DecisionFunc(func(context.Context, Snapshot) (Decision, error) {
			time.Sleep(500 * time.Millisecond)
			return Decision{Approved: true, Amount: d("100"), Rate: d("0.02")}, nil
		})},
		{name: "honours context", provider: DecisionFunc(func(ctx context.Context, _ Snapshot) (Decision, error) {
			<-ctx.Done()
			return Decision{}, ctx.Err()
		})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, ledger, tracker := newTestWorkflow(t, tc.provider, 50*time.Millisecond)
			before := ledger.Snapshot()

			offer, rejection, err := w.Request(context.Background(), LenderBanker, decimal.Zero)
			require.NoError(t, err)
			require.Nil(t, offer)
			require.NotNil(t, rejection)
			assert.NotEmpty(t, rejection.Reason)
			assert.Equal(t, LoanNone, w.State())

			records := tracker.All()
			require.Len(t, records, 1)
			rejected, ok := records[0].Details.(LoanRejectedDetails)
			require.True(t, ok)
			assert.NotEmpty(t, rejected.Reason)
			assert.Equal(t, LenderBanker, rejected.Lender)

			after := ledger.Snapshot()
			assert.True(t, before.Money.Equal(after.Money))
			assert.True(t, after.TotalDebt.IsZero())
		})
	}
}

func TestRequestWhileProviderOutstanding(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	provider := DecisionFunc(func(ctx context.Context, _ Snapshot) (Decision, error) {
		close(entered)
		<-release
		return Decision{Approved: true, Amount: d("80"), Rate: d("0.03"), Reason: "ok"}, nil
	})
	w, _, _ := newTestWorkflow(t, provider, 5*time.Second)

	done := make(chan error, 1)
	go func() {
		_, _, err := w.Request(context.Background(), LenderBanker, decimal.Zero)
		done <- err
	}()
	<-entered
	assert.Equal(t, LoanRequesting, w.State())

	_, _, err := w.Request(context.Background(), LenderWitch, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidTransition)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, LoanOffered, w.State())
}
