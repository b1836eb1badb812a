package game

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(money string, debts map[LenderID]string) Snapshot {
	snap := Snapshot{Money: d(money), Stock: d("100"), Debts: map[LenderID]decimal.Decimal{}}
	for id, v := range debts {
		snap.Debts[id] = d(v)
	}
	return snap
}

func TestRuleProvider(t *testing.T) {
	p := NewRuleProvider()
	ctx := context.Background()

	t.Run("lends half of gold at the floor rate", func(t *testing.T) {
		dec, err := p.Decide(ctx, snapshotOf("200", nil))
		require.NoError(t, err)
		require.True(t, dec.Approved)
		assert.True(t, dec.Amount.Equal(d("100")), "amount %s", dec.Amount)
		assert.True(t, dec.Rate.Equal(d("0.02")), "rate %s", dec.Rate)
		assert.NotEmpty(t, dec.Reason)
	})

	t.Run("caps the loan", func(t *testing.T) {
		dec, err := p.Decide(ctx, snapshotOf("1000", nil))
		require.NoError(t, err)
		assert.True(t, dec.Amount.Equal(d("200")))
	})

	t.Run("whole gold only", func(t *testing.T) {
		dec, err := p.Decide(ctx, snapshotOf("45", nil))
		require.NoError(t, err)
		assert.True(t, dec.Amount.Equal(d("22")))
	})

	t.Run("rate scales with debt", func(t *testing.T) {
		dec, err := p.Decide(ctx, snapshotOf("200", map[LenderID]string{LenderWitch: "150"}))
		require.NoError(t, err)
		require.True(t, dec.Approved)
		assert.True(t, dec.Rate.Equal(d("0.05")), "rate %s", dec.Rate)
	})

	t.Run("denies heavy debt", func(t *testing.T) {
		dec, err := p.Decide(ctx, snapshotOf("400", map[LenderID]string{LenderWitch: "200", LenderFarmer: "100"}))
		require.NoError(t, err)
		assert.False(t, dec.Approved)
		assert.NotEmpty(t, dec.Reason)
	})

	t.Run("denies empty purse", func(t *testing.T) {
		dec, err := p.Decide(ctx, snapshotOf("19.99", nil))
		require.NoError(t, err)
		assert.False(t, dec.Approved)
	})
}

func TestGuardedProviderNormalizesDenials(t *testing.T) {
	g := newGuardedProvider(&stubProvider{decision: Decision{Approved: false, Amount: d("75"), Rate: d("0.3")}}, 0, nil)
	dec := g.Decide(context.Background(), snapshotOf("100", nil))
	assert.False(t, dec.Approved)
	assert.True(t, dec.Amount.IsZero())
	assert.True(t, dec.Rate.IsZero())
	assert.Equal(t, "application denied", dec.Reason)
}

func TestGuardedProviderRoundsApprovedAmount(t *testing.T) {
	g := newGuardedProvider(approve("33.337", "0.04"), 0, nil)
	dec := g.Decide(context.Background(), snapshotOf("100", nil))
	require.True(t, dec.Approved)
	assert.True(t, dec.Amount.Equal(d("33.34")))
}

func TestSnapshotTotalDebt(t *testing.T) {
	snap := snapshotOf("0", map[LenderID]string{LenderWitch: "62.5", LenderBanker: "105"})
	assert.True(t, snap.TotalDebt().Equal(d("167.5")))
}
