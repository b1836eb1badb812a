package game

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsOncePerInterval(t *testing.T) {
	ledger, tracker := newTestLedger(t, "0", "0")
	_, err := ledger.Borrow(LenderPoultry, d("100"), decimal.Zero)
	require.NoError(t, err)
	s := NewScheduler(30*time.Second, ledger, MustDefaultRegistry(), nil)

	runs, err := s.Advance(29 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, runs)
	assert.Equal(t, time.Second, s.Until())

	runs, err = s.Advance(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
	assert.Equal(t, "110.00", ledger.Snapshot().Debts[LenderPoultry].StringFixed(2))

	runs, err = s.Advance(65 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
	assert.Equal(t, "133.10", ledger.Snapshot().Debts[LenderPoultry].StringFixed(2))
	assert.Equal(t, 25*time.Second, s.Until())
	assert.Equal(t, 3, s.Passes())
	assert.Equal(t, 4, tracker.Len())
}

func TestSchedulerAccruesInLenderOrder(t *testing.T) {
	ledger, tracker := newTestLedger(t, "0", "0")
	_, err := ledger.Borrow(LenderWitch, d("10"), decimal.Zero)
	require.NoError(t, err)
	_, err = ledger.Borrow(LenderBanker, d("100"), decimal.Zero)
	require.NoError(t, err)
	_, err = ledger.Borrow(LenderFarmer, d("50"), decimal.Zero)
	require.NoError(t, err)
	s := NewScheduler(time.Second, ledger, MustDefaultRegistry(), nil)

	_, err = s.Advance(time.Second)
	require.NoError(t, err)

	var order []LenderID
	for _, r := range tracker.All()[3:] {
		interest := r.Details.(InterestDetails)
		order = append(order, interest.Lender)
	}
	assert.Equal(t, []LenderID{LenderBanker, LenderFarmer, LenderWitch}, order)

	b := ledger.Snapshot()
	assert.True(t, b.Debts[LenderBanker].Equal(d("102")))
	assert.True(t, b.Debts[LenderFarmer].Equal(d("54")))
	assert.True(t, b.Debts[LenderWitch].Equal(d("12.5")))
	assert.True(t, b.Debts[LenderPoultry].IsZero())
}

func TestSchedulerRejectsReentry(t *testing.T) {
	ledger, _ := newTestLedger(t, "0", "0")
	s := NewScheduler(time.Second, ledger, MustDefaultRegistry(), nil)
	s.running.Store(true)
	_, err := s.Advance(time.Second)
	require.ErrorIs(t, err, ErrAccrualRunning)
	s.running.Store(false)
	_, err = s.Advance(time.Second)
	require.NoError(t, err)
}

func TestRunDrivesAdvanceUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int64
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, 5*time.Millisecond, func(dt time.Duration) error {
			if dt > 0 && ticks.Add(1) >= 3 {
				cancel()
			}
			return nil
		}, nil)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
	assert.GreaterOrEqual(t, ticks.Load(), int64(3))
}
