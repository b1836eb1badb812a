package game

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type LoanState string

const (
	LoanNone       LoanState = "NONE"
	LoanRequesting LoanState = "REQUESTING"
	LoanOffered    LoanState = "OFFERED"
)

// Offer is a priced loan waiting for the player to accept or decline.
type Offer struct {
	Lender     LenderID        `json:"lender"`
	LenderName string          `json:"lender_name"`
	Principal  decimal.Decimal `json:"principal"`
	Rate       decimal.Decimal `json:"rate"`
	Owed       decimal.Decimal `json:"owed"`
	Disburses  Disbursement    `json:"disburses"`
	Rationale  string          `json:"rationale"`
	OfferedAt  time.Time       `json:"offered_at"`
}

// Rejection is the result of a request the lender turned down. It is an
// outcome, not an error; the loan_rejected record is already logged.
type Rejection struct {
	Lender LenderID `json:"lender"`
	Reason string   `json:"reason"`
}

// Workflow is the two-phase loan protocol in front of the ledger.
type Workflow struct {
	mu       sync.Mutex
	state    LoanState
	offer    *Offer
	lenders  *Registry
	ledger   *Ledger
	tracker  *Tracker
	provider *guardedProvider
	now      func() time.Time
}

func NewWorkflow(lenders *Registry, ledger *Ledger, tracker *Tracker, provider DecisionProvider, timeout time.Duration, logger *slog.Logger) *Workflow {
	return &Workflow{
		state:    LoanNone,
		lenders:  lenders,
		ledger:   ledger,
		tracker:  tracker,
		provider: newGuardedProvider(provider, timeout, logger),
		now:      time.Now,
	}
}

func (w *Workflow) State() LoanState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Pending returns a copy of the outstanding offer, if there is one.
func (w *Workflow) Pending() (Offer, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.offer == nil {
		return Offer{}, false
	}
	return *w.offer, true
}

// Request asks a lender for a loan. Fixed lenders price the offer from their
// tiers; amount zero takes the first tier. Dynamic lenders ask the decision
// provider for the amount, so any non-zero amount is rejected. Exactly one
// of the Offer or the Rejection is set when err is nil.
func (w *Workflow) Request(ctx context.Context, lender LenderID, amount decimal.Decimal) (*Offer, *Rejection, error) {
	info, err := w.lenders.Get(lender)
	if err != nil {
		return nil, nil, err
	}
	if info.Dynamic() && !amount.IsZero() {
		return nil, nil, fmt.Errorf("%w: %s sets the amount", ErrInvalidAmount, info.Name)
	}

	w.mu.Lock()
	if w.state != LoanNone {
		state := w.state
		w.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: request while %s", ErrInvalidTransition, state)
	}
	if !info.Dynamic() {
		defer w.mu.Unlock()
		principal, err := info.tierFor(amount)
		if err != nil {
			return nil, nil, err
		}
		offer := w.newOffer(info, principal, info.Rate, info.Pitch)
		w.offer = &offer
		w.state = LoanOffered
		return &offer, nil, nil
	}
	w.state = LoanRequesting
	w.mu.Unlock()

	decision := w.provider.Decide(ctx, w.ledger.Snapshot().Snapshot())

	w.mu.Lock()
	defer w.mu.Unlock()
	if !decision.Approved {
		w.state = LoanNone
		w.tracker.Log(LoanRejectedDetails{Lender: lender, Reason: decision.Reason})
		return nil, &Rejection{Lender: lender, Reason: decision.Reason}, nil
	}
	offer := w.newOffer(info, decision.Amount, decision.Rate, decision.Reason)
	w.offer = &offer
	w.state = LoanOffered
	return &offer, nil, nil
}

func (w *Workflow) newOffer(info Lender, principal, rate decimal.Decimal, rationale string) Offer {
	return Offer{
		Lender:     info.ID,
		LenderName: info.Name,
		Principal:  principal,
		Rate:       rate,
		Owed:       OwedFor(principal, rate),
		Disburses:  info.Disburses,
		Rationale:  rationale,
		OfferedAt:  w.now(),
	}
}

// Accept books the pending offer on the ledger and clears it.
func (w *Workflow) Accept() (Offer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != LoanOffered || w.offer == nil {
		return Offer{}, fmt.Errorf("%w: accept while %s", ErrInvalidTransition, w.state)
	}
	offer := *w.offer
	owed, err := w.ledger.Borrow(offer.Lender, offer.Principal, offer.Rate)
	if err != nil {
		return Offer{}, err
	}
	offer.Owed = owed
	w.offer = nil
	w.state = LoanNone
	return offer, nil
}

// Decline discards the pending offer. Nothing is recorded.
func (w *Workflow) Decline() (Offer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != LoanOffered || w.offer == nil {
		return Offer{}, fmt.Errorf("%w: decline while %s", ErrInvalidTransition, w.state)
	}
	offer := *w.offer
	w.offer = nil
	w.state = LoanNone
	return offer, nil
}
