package game

import (
	"context"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxClaimedKeys = 4096

type Options struct {
	Lenders         *Registry
	Provider        DecisionProvider
	DecisionTimeout time.Duration
	AccrualEvery    time.Duration
	// StartMoney and StartStock default to the starter balances when nil.
	StartMoney      *decimal.Decimal
	StartStock      *decimal.Decimal
	Seed            int64
	Now             func() time.Time
}

// Session ties one player's ledger, loan workflow, accrual clock and action
// log together. There is no package-level game state.
type Session struct {
	id   string
	log  *slog.Logger
	mu   sync.Mutex
	rand *mathrand.Rand

	lenders *Registry
	tracker *Tracker
	ledger  *Ledger
	loans   *Workflow
	accrual *Scheduler

	started bool
	ended   bool
	claimed map[string]string
	claims  []string
}

func NewSession(opts Options, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Lenders == nil {
		opts.Lenders = MustDefaultRegistry()
	}
	money, stock := StarterMoney, StarterStock
	if opts.StartMoney != nil {
		money = *opts.StartMoney
	}
	if opts.StartStock != nil {
		stock = *opts.StartStock
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	id := uuid.NewString()
	logger = logger.With("session_id", id)

	tracker := NewTracker(opts.Now)
	ledger, err := NewLedger(opts.Lenders, tracker, money, stock)
	if err != nil {
		return nil, err
	}
	loans := NewWorkflow(opts.Lenders, ledger, tracker, opts.Provider, opts.DecisionTimeout, logger)
	if opts.Now != nil {
		loans.now = opts.Now
	}
	return &Session{
		id:      id,
		log:     logger,
		rand:    mathrand.New(mathrand.NewSource(opts.Seed)),
		lenders: opts.Lenders,
		tracker: tracker,
		ledger:  ledger,
		loans:   loans,
		accrual: NewScheduler(opts.AccrualEvery, ledger, opts.Lenders, logger),
		claimed: make(map[string]string),
	}, nil
}

func (s *Session) ID() string {
	return s.id
}

// Start logs game_start once. Later calls are no-ops.
func (s *Session) Start() StateView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.started = true
		b := s.ledger.Snapshot()
		s.tracker.Log(GameStartDetails{
			SessionID:     s.id,
			StartingMoney: b.Money,
			StartingStock: b.Stock,
			StartingDebt:  b.TotalDebt,
		})
		s.log.Info("session started", "money", b.Money.String(), "stock", b.Stock.String())
	}
	return s.stateLocked()
}

func (s *Session) State() StateView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() StateView {
	b := s.ledger.Snapshot()
	view := StateView{
		SessionID:          s.id,
		Money:              b.Money,
		Stock:              b.Stock,
		Debts:              b.Debts,
		TotalDebt:          b.TotalDebt,
		LoanState:          s.loans.State(),
		Status:             Evaluate(b.Money, b.TotalDebt),
		Ended:              s.ended,
		NextAccrualSeconds: s.accrual.Until().Seconds(),
	}
	if offer, ok := s.loans.Pending(); ok {
		view.PendingOffer = &offer
	}
	return view
}

// CheckStatus evaluates the balances and logs game_end on the first
// transition into WIN or LOSE.
func (s *Session) CheckStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkStatusLocked()
}

func (s *Session) checkStatusLocked() Status {
	b := s.ledger.Snapshot()
	status := Evaluate(b.Money, b.TotalDebt)
	if status.Terminal() && !s.ended {
		s.ended = true
		s.tracker.Log(GameEndDetails{
			Result:     status,
			FinalMoney: b.Money,
			FinalStock: b.Stock,
			FinalDebt:  b.TotalDebt,
			Reason:     statusReason(status),
		})
		s.log.Info("game over", "result", string(status), "money", b.Money.String(), "debt", b.TotalDebt.String())
	}
	return status
}

func (s *Session) Lenders() []LenderView {
	b := s.ledger.Snapshot()
	out := make([]LenderView, 0, len(b.Debts))
	for _, l := range s.lenders.All() {
		out = append(out, LenderView{Lender: l, Debt: b.Debts[l.ID]})
	}
	return out
}

// RequestLoan does not hold the session lock while a dynamic lender's
// provider is consulted; the workflow's REQUESTING state keeps other
// requests out.
func (s *Session) RequestLoan(ctx context.Context, in LoanRequestInput) (LoanResult, error) {
	if err := s.claim(in.IdempotencyKey, "loan_request"); err != nil {
		return LoanResult{}, err
	}
	offer, rejection, err := s.loans.Request(ctx, in.Lender, in.Amount)
	if err != nil {
		s.release(in.IdempotencyKey)
		return LoanResult{}, err
	}
	if rejection != nil {
		s.log.Info("loan rejected", "lender", in.Lender.String(), "reason", rejection.Reason)
	} else {
		s.log.Info("loan offered", "lender", in.Lender.String(), "principal", offer.Principal.String(), "rate", offer.Rate.String())
	}
	return LoanResult{Offer: offer, Rejection: rejection, State: s.State()}, nil
}

func (s *Session) AcceptLoan(idempotencyKey string) (LoanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claimLocked(idempotencyKey, "loan_accept"); err != nil {
		return LoanResult{}, err
	}
	offer, err := s.loans.Accept()
	if err != nil {
		s.releaseLocked(idempotencyKey)
		return LoanResult{}, err
	}
	s.log.Info("loan accepted", "lender", offer.Lender.String(), "principal", offer.Principal.String(), "owed", offer.Owed.String())
	s.checkStatusLocked()
	return LoanResult{Offer: &offer, State: s.stateLocked()}, nil
}

func (s *Session) DeclineLoan() (LoanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offer, err := s.loans.Decline()
	if err != nil {
		return LoanResult{}, err
	}
	return LoanResult{Offer: &offer, State: s.stateLocked()}, nil
}

func (s *Session) Repay(in RepayInput) (RepayResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claimLocked(in.IdempotencyKey, "repay"); err != nil {
		return RepayResult{}, err
	}
	amount := in.Amount
	if amount.IsZero() {
		amount = s.ledger.Snapshot().Debts[in.Lender]
	}
	paid, err := s.ledger.Repay(in.Lender, amount)
	if err != nil {
		s.releaseLocked(in.IdempotencyKey)
		return RepayResult{}, err
	}
	s.checkStatusLocked()
	return RepayResult{Lender: in.Lender, Paid: paid, State: s.stateLocked()}, nil
}

// GenerateSale turns SaleStock stock into a random 10..50 gold.
func (s *Session) GenerateSale(idempotencyKey string) (SaleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claimLocked(idempotencyKey, "sale"); err != nil {
		return SaleResult{}, err
	}
	amount := decimal.NewFromInt(SaleMinGold + s.rand.Int63n(SaleMaxGold-SaleMinGold+1))
	if err := s.ledger.Sale(amount, SaleStock); err != nil {
		s.releaseLocked(idempotencyKey)
		return SaleResult{}, err
	}
	s.checkStatusLocked()
	return SaleResult{Amount: amount, StockUsed: SaleStock, State: s.stateLocked()}, nil
}

// BuyStock buys the lender's stock bundle at its listed price.
func (s *Session) BuyStock(lender LenderID, idempotencyKey string) (PurchaseResult, error) {
	info, err := s.lenders.Get(lender)
	if err != nil {
		return PurchaseResult{}, err
	}
	if !info.SellsStock() {
		return PurchaseResult{}, fmt.Errorf("%w: %s", ErrNothingForSale, info.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claimLocked(idempotencyKey, "buy_stock"); err != nil {
		return PurchaseResult{}, err
	}
	if err := s.ledger.PurchaseStock(lender, info.StockForSale, info.StockPrice); err != nil {
		s.releaseLocked(idempotencyKey)
		return PurchaseResult{}, err
	}
	s.checkStatusLocked()
	return PurchaseResult{Seller: lender, Units: info.StockForSale, Cost: info.StockPrice, State: s.stateLocked()}, nil
}

func (s *Session) Purchase(cost decimal.Decimal, item, idempotencyKey string) (StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claimLocked(idempotencyKey, "purchase"); err != nil {
		return StateView{}, err
	}
	if err := s.ledger.Purchase(cost, item); err != nil {
		s.releaseLocked(idempotencyKey)
		return StateView{}, err
	}
	s.checkStatusLocked()
	return s.stateLocked(), nil
}

// SpendStock only fails on a reused idempotency key.
func (s *Session) SpendStock(amount decimal.Decimal, reason, idempotencyKey string) (StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claimLocked(idempotencyKey, "spend_stock"); err != nil {
		return StateView{}, err
	}
	s.ledger.SpendStock(amount, reason)
	return s.stateLocked(), nil
}

// Advance moves the accrual clock by dt of simulated time.
func (s *Session) Advance(dt time.Duration) (AdvanceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	passes, err := s.accrual.Advance(dt)
	if passes > 0 {
		s.checkStatusLocked()
	}
	if err != nil {
		return AdvanceResult{}, err
	}
	return AdvanceResult{Passes: passes, State: s.stateLocked()}, nil
}

// Run advances the accrual clock in wall-clock time until ctx is done.
func (s *Session) Run(ctx context.Context, tick time.Duration) error {
	return Run(ctx, tick, func(dt time.Duration) error {
		_, err := s.Advance(dt)
		return err
	}, s.log)
}

func (s *Session) Recent(n int) []Record {
	return s.tracker.Recent(n)
}

func (s *Session) History() []Record {
	return s.tracker.All()
}

func (s *Session) HistoryFor(lender LenderID) ([]Record, error) {
	if _, err := s.lenders.Get(lender); err != nil {
		return nil, err
	}
	return s.tracker.HistoryFor(lender), nil
}

func (s *Session) Summary() Summary {
	return s.tracker.Summary()
}

func (s *Session) Export() Export {
	doc := s.tracker.Export()
	doc.SessionID = s.id
	return doc
}

func (s *Session) claim(key, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimLocked(key, action)
}

func (s *Session) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(key)
}

// claimLocked records an idempotency key. An empty key is not tracked.
func (s *Session) claimLocked(key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	if prev, ok := s.claimed[key]; ok {
		return fmt.Errorf("%w: %s already used for %s", ErrDuplicateIdempotency, key, prev)
	}
	if len(s.claims) >= maxClaimedKeys {
		delete(s.claimed, s.claims[0])
		s.claims = s.claims[1:]
	}
	s.claimed[key] = action
	s.claims = append(s.claims, key)
	return nil
}

func (s *Session) releaseLocked(key string) {
	key = strings.TrimSpace(key)
	if _, ok := s.claimed[key]; !ok {
		return
	}
	delete(s.claimed, key)
	for i, k := range s.claims {
		if k == key {
			s.claims = append(s.claims[:i], s.claims[i+1:]...)
			break
		}
	}
}
