package game

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMetrics(t *testing.T) {
	ledger, _ := newTestLedger(t, "50", "0")
	rejectedBefore := testutil.ToFloat64(ledgerRejections.WithLabelValues("insufficient_funds"))
	loansBefore := testutil.ToFloat64(actionsLogged.WithLabelValues(string(ActionLoan)))

	_, err := ledger.Borrow(LenderWitch, d("100"), decimal.Zero)
	require.NoError(t, err)
	require.Error(t, ledger.Purchase(d("500"), "oven"))

	assert.Equal(t, loansBefore+1, testutil.ToFloat64(actionsLogged.WithLabelValues(string(ActionLoan))))
	assert.Equal(t, rejectedBefore+1, testutil.ToFloat64(ledgerRejections.WithLabelValues("insufficient_funds")))
	assert.Equal(t, float64(150), testutil.ToFloat64(ledgerMoney))
	assert.Equal(t, float64(100), testutil.ToFloat64(ledgerDebt.WithLabelValues(string(LenderWitch))))
}

func TestDecisionMetrics(t *testing.T) {
	fallbackBefore := testutil.ToFloat64(decisionOutcomes.WithLabelValues("fallback"))
	g := newGuardedProvider(nil, 0, nil)
	got := g.Decide(testContext(t), Snapshot{})
	assert.False(t, got.Approved)
	assert.Equal(t, fallbackBefore+1, testutil.ToFloat64(decisionOutcomes.WithLabelValues("fallback")))
}

// testContext mirrors testing.T.Context (Go 1.24+) for older toolchains.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
