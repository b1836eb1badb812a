package game

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Summary is a projection of the action log. It is never stored on the
// tracker; every call recomputes it from the records.
type Summary struct {
	TotalActions   int             `json:"total_actions"`
	LoansTaken     int             `json:"loans_taken"`
	SalesMade      int             `json:"sales_made"`
	RepaymentsMade int             `json:"repayments_made"`
	TotalBorrowed  decimal.Decimal `json:"total_borrowed"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	TotalRepaid    decimal.Decimal `json:"total_repaid"`
}

func (s Summary) Equal(o Summary) bool {
	return s.TotalActions == o.TotalActions &&
		s.LoansTaken == o.LoansTaken &&
		s.SalesMade == o.SalesMade &&
		s.RepaymentsMade == o.RepaymentsMade &&
		s.TotalBorrowed.Equal(o.TotalBorrowed) &&
		s.TotalEarned.Equal(o.TotalEarned) &&
		s.TotalRepaid.Equal(o.TotalRepaid)
}

func Summarize(records []Record) Summary {
	out := Summary{TotalActions: len(records)}
	for _, r := range records {
		switch d := r.Details.(type) {
		case LoanDetails:
			out.LoansTaken++
			out.TotalBorrowed = out.TotalBorrowed.Add(d.Amount)
		case SaleDetails:
			out.SalesMade++
			out.TotalEarned = out.TotalEarned.Add(d.Amount)
		case RepaymentDetails:
			out.RepaymentsMade++
			out.TotalRepaid = out.TotalRepaid.Add(d.Amount)
		}
	}
	return out
}

// Export is the serialized form of a session's action log.
type Export struct {
	SessionID    string   `json:"session_id,omitempty"`
	SessionStart float64  `json:"session_start"`
	Actions      []Record `json:"actions"`
	Summary      Summary  `json:"summary"`
}

// Tracker is the append-only action log.
type Tracker struct {
	mu      sync.RWMutex
	now     func() time.Time
	start   time.Time
	records []Record
}

func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		now:   now,
		start: now().Truncate(time.Microsecond),
	}
}

func (t *Tracker) SessionStart() time.Time {
	return t.start
}

// Log appends a record. Timestamps are strictly increasing at microsecond
// resolution, so a clock that stalls or steps back still yields an ordered log.
func (t *Tracker) Log(d Details) Record {
	if d == nil {
		panic("game: Log called with nil details")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ts := t.now().Truncate(time.Microsecond)
	if n := len(t.records); n > 0 {
		last := t.records[n-1].Timestamp
		if !ts.After(last) {
			ts = last.Add(time.Microsecond)
		}
	}
	rec := Record{
		Seq:       int64(len(t.records) + 1),
		Timestamp: ts,
		Details:   d,
	}
	t.records = append(t.records, rec)
	actionsLogged.WithLabelValues(string(d.ActionType())).Inc()
	return rec
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Recent returns the last n records in insertion order.
func (t *Tracker) Recent(n int) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 {
		return []Record{}
	}
	if n > len(t.records) {
		n = len(t.records)
	}
	return append([]Record(nil), t.records[len(t.records)-n:]...)
}

func (t *Tracker) All() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Record(nil), t.records...)
}

func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Summarize(t.records)
}

func (t *Tracker) HistoryFor(lender LenderID) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := []Record{}
	for _, r := range t.records {
		if id, ok := LenderOf(r.Details); ok && id == lender {
			out = append(out, r)
		}
	}
	return out
}

func (t *Tracker) Export() Export {
	t.mu.RLock()
	defer t.mu.RUnlock()
	actions := append([]Record(nil), t.records...)
	return Export{
		SessionStart: epochSeconds(t.start),
		Actions:      actions,
		Summary:      Summarize(actions),
	}
}

func WriteExport(w io.Writer, doc Export) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func ReadExport(r io.Reader) (Export, error) {
	var doc Export
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Export{}, fmt.Errorf("decode export: %w", err)
	}
	return doc, nil
}

// VerifyExport recomputes the summary from the exported actions and checks
// it against the stored one, along with sequence and timestamp ordering.
func VerifyExport(doc Export) error {
	for i, r := range doc.Actions {
		if r.Seq != int64(i+1) {
			return fmt.Errorf("action %d: sequence %d out of order", i, r.Seq)
		}
		if i > 0 && !r.Timestamp.After(doc.Actions[i-1].Timestamp) {
			return fmt.Errorf("action %d: timestamp not increasing", r.Seq)
		}
	}
	got := Summarize(doc.Actions)
	if !got.Equal(doc.Summary) {
		return fmt.Errorf("summary mismatch: recomputed %+v, stored %+v", got, doc.Summary)
	}
	return nil
}
