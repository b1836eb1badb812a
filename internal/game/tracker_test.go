package game

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerTimestampsStrictlyIncrease(t *testing.T) {
	stalled := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	tracker := NewTracker(func() time.Time { return stalled })

	for i := 0; i < 5; i++ {
		tracker.Log(SaleDetails{Amount: d("10"), StockUsed: d("20")})
	}
	records := tracker.All()
	for i := 1; i < len(records); i++ {
		assert.True(t, records[i].Timestamp.After(records[i-1].Timestamp), "record %d", i)
		assert.Equal(t, int64(i+1), records[i].Seq)
	}
}

func TestTrackerRecent(t *testing.T) {
	tracker := NewTracker(fixedClock())
	for i := 1; i <= 4; i++ {
		tracker.Log(StockSpentDetails{Reason: "upkeep", Amount: d("1")})
	}

	recent := tracker.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].Seq)
	assert.Equal(t, int64(4), recent[1].Seq)

	assert.Len(t, tracker.Recent(10), 4)
	assert.Empty(t, tracker.Recent(0))
}

func TestTrackerHistoryFor(t *testing.T) {
	tracker := NewTracker(fixedClock())
	tracker.Log(LoanDetails{Lender: LenderWitch, Amount: d("50")})
	tracker.Log(LoanRejectedDetails{Lender: LenderBanker, Reason: "too much debt"})
	tracker.Log(SaleDetails{Amount: d("20")})
	tracker.Log(RepaymentDetails{Lender: LenderWitch, Amount: d("10")})
	tracker.Log(PurchaseDetails{Item: "stock", Seller: LenderFarmer, Units: d("5"), Cost: d("10")})

	witch := tracker.HistoryFor(LenderWitch)
	require.Len(t, witch, 2)
	assert.Equal(t, ActionLoan, witch[0].Type())
	assert.Equal(t, ActionRepayment, witch[1].Type())

	assert.Len(t, tracker.HistoryFor(LenderBanker), 1)
	assert.Len(t, tracker.HistoryFor(LenderFarmer), 1)
	assert.Empty(t, tracker.HistoryFor(LenderPoultry))
}

func TestSummaryMatchesRecordAmounts(t *testing.T) {
	ledger, tracker := newTestLedger(t, "200", "100")
	_, err := ledger.Borrow(LenderBanker, d("100"), d("0.05"))
	require.NoError(t, err)
	_, err = ledger.Borrow(LenderWitch, d("50"), d("0.25"))
	require.NoError(t, err)
	require.NoError(t, ledger.Sale(d("33"), d("20")))
	require.NoError(t, ledger.Sale(d("17"), d("20")))
	_, err = ledger.Repay(LenderBanker, d("105"))
	require.NoError(t, err)
	_, err = ledger.Accrue(LenderWitch)
	require.NoError(t, err)

	s := tracker.Summary()
	assert.Equal(t, 6, s.TotalActions)
	assert.Equal(t, 2, s.LoansTaken)
	assert.Equal(t, 2, s.SalesMade)
	assert.Equal(t, 1, s.RepaymentsMade)
	assert.True(t, s.TotalBorrowed.Equal(d("150")), "borrowed %s", s.TotalBorrowed)
	assert.True(t, s.TotalEarned.Equal(d("50")), "earned %s", s.TotalEarned)
	assert.True(t, s.TotalRepaid.Equal(d("105")), "repaid %s", s.TotalRepaid)
}

func TestExportRoundTrip(t *testing.T) {
	ledger, tracker := newTestLedger(t, "200", "100")
	tracker.Log(GameStartDetails{SessionID: "s-1", StartingMoney: d("200"), StartingStock: d("100")})
	_, err := ledger.Borrow(LenderWitch, d("100"), d("0.25"))
	require.NoError(t, err)
	require.NoError(t, ledger.Sale(d("41"), d("20")))
	_, err = ledger.Accrue(LenderWitch)
	require.NoError(t, err)
	_, err = ledger.Repay(LenderWitch, d("60.5"))
	require.NoError(t, err)
	tracker.Log(LoanRejectedDetails{Lender: LenderBanker, Reason: "the banker took too long to answer"})
	tracker.Log(GameEndDetails{Result: StatusLose, FinalDebt: d("501")})

	doc := tracker.Export()
	var buf bytes.Buffer
	require.NoError(t, WriteExport(&buf, doc))

	loaded, err := ReadExport(&buf)
	require.NoError(t, err)
	require.NoError(t, VerifyExport(loaded))
	require.Len(t, loaded.Actions, len(doc.Actions))
	assert.True(t, Summarize(loaded.Actions).Equal(doc.Summary))
	for i := range doc.Actions {
		assert.Equal(t, doc.Actions[i].Type(), loaded.Actions[i].Type())
		assert.True(t, doc.Actions[i].Timestamp.Equal(loaded.Actions[i].Timestamp), "action %d timestamp", i)
	}

	end, ok := loaded.Actions[len(loaded.Actions)-1].Details.(GameEndDetails)
	require.True(t, ok)
	assert.Equal(t, StatusLose, end.Result)
}

func TestExportJSONShape(t *testing.T) {
	tracker := NewTracker(fixedClock())
	tracker.Log(SaleDetails{Amount: d("25"), StockUsed: d("20"), RemainingMoney: d("225")})

	raw, err := json.Marshal(tracker.Export())
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Contains(t, generic, "session_start")
	assert.Contains(t, generic, "summary")

	actions := generic["actions"].([]any)
	require.Len(t, actions, 1)
	action := actions[0].(map[string]any)
	assert.Equal(t, "sale", action["action_type"])
	assert.Contains(t, action, "datetime")
	assert.Contains(t, action, "timestamp")
	details := action["details"].(map[string]any)
	assert.Equal(t, float64(25), details["amount"], "gold amounts are JSON numbers")
}

func TestVerifyExportDetectsTampering(t *testing.T) {
	tracker := NewTracker(fixedClock())
	tracker.Log(LoanDetails{Lender: LenderWitch, Amount: d("50")})
	tracker.Log(SaleDetails{Amount: d("20")})

	doc := tracker.Export()
	require.NoError(t, VerifyExport(doc))

	edited := doc
	edited.Summary.TotalBorrowed = d("5000")
	assert.Error(t, VerifyExport(edited))

	reordered := doc
	reordered.Actions = []Record{doc.Actions[1], doc.Actions[0]}
	assert.Error(t, VerifyExport(reordered))
}

func TestReadExportRejectsUnknownActionType(t *testing.T) {
	raw := `{"session_start": 1, "actions": [{"seq": 1, "timestamp": 2, "datetime": "", "action_type": "heist", "details": {}}], "summary": {}}`
	_, err := ReadExport(bytes.NewBufferString(raw))
	assert.Error(t, err)
}
