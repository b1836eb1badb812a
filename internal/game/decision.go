package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is what a decision provider sees of the player.
type Snapshot struct {
	Money decimal.Decimal              `json:"money"`
	Stock decimal.Decimal              `json:"stock"`
	Debts map[LenderID]decimal.Decimal `json:"debts"`
}

func (s Snapshot) TotalDebt() decimal.Decimal {
	total := decimal.Zero
	for _, v := range s.Debts {
		total = total.Add(v)
	}
	return total
}

func (b Balances) Snapshot() Snapshot {
	debts := make(map[LenderID]decimal.Decimal, len(b.Debts))
	for id, v := range b.Debts {
		debts[id] = v
	}
	return Snapshot{Money: b.Money, Stock: b.Stock, Debts: debts}
}

type Decision struct {
	Approved bool            `json:"decision"`
	Amount   decimal.Decimal `json:"amount"`
	Rate     decimal.Decimal `json:"interest"`
	Reason   string          `json:"reason"`
}

// DecisionProvider approves and prices loans for dynamic lenders.
type DecisionProvider interface {
	Decide(ctx context.Context, snap Snapshot) (Decision, error)
}

type DecisionFunc func(ctx context.Context, snap Snapshot) (Decision, error)

func (f DecisionFunc) Decide(ctx context.Context, snap Snapshot) (Decision, error) {
	return f(ctx, snap)
}

const DefaultDecisionTimeout = 3 * time.Second

var maxDecisionRate = decimal.NewFromInt(1)

// Denied is the conservative decision substituted for any provider failure.
func Denied(reason string) Decision {
	return Decision{Approved: false, Amount: decimal.Zero, Rate: decimal.Zero, Reason: reason}
}

// guardedProvider never returns an error. Provider errors, timeouts, panics
// and malformed decisions all come back as a denial with a diagnostic reason.
type guardedProvider struct {
	inner   DecisionProvider
	timeout time.Duration
	log     *slog.Logger
}

func newGuardedProvider(inner DecisionProvider, timeout time.Duration, logger *slog.Logger) *guardedProvider {
	if timeout <= 0 {
		timeout = DefaultDecisionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &guardedProvider{inner: inner, timeout: timeout, log: logger}
}

type decisionResult struct {
	decision Decision
	err      error
}

func (g *guardedProvider) Decide(ctx context.Context, snap Snapshot) Decision {
	started := time.Now()
	defer func() { decisionDuration.Observe(time.Since(started).Seconds()) }()

	if g.inner == nil {
		decisionOutcomes.WithLabelValues("fallback").Inc()
		return Denied("the banker is not taking applications right now")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan decisionResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- decisionResult{err: fmt.Errorf("decision provider panicked: %v", r)}
			}
		}()
		d, err := g.inner.Decide(ctx, snap)
		done <- decisionResult{decision: d, err: err}
	}()

	var res decisionResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = decisionResult{err: ctx.Err()}
	}

	if res.err != nil {
		reason := "the banker could not review your application"
		if errors.Is(res.err, context.DeadlineExceeded) {
			reason = "the banker took too long to answer"
		}
		g.log.Warn("decision provider failed", "err", res.err)
		decisionOutcomes.WithLabelValues("fallback").Inc()
		return Denied(reason)
	}
	if err := validateDecision(res.decision); err != nil {
		g.log.Warn("decision provider returned a malformed decision", "err", err)
		decisionOutcomes.WithLabelValues("fallback").Inc()
		return Denied("the banker's answer could not be understood")
	}
	if !res.decision.Approved {
		if res.decision.Reason == "" {
			res.decision.Reason = "application denied"
		}
		decisionOutcomes.WithLabelValues("denied").Inc()
		return Denied(res.decision.Reason)
	}
	decisionOutcomes.WithLabelValues("approved").Inc()
	res.decision.Amount = RoundGold(res.decision.Amount)
	return res.decision
}

func validateDecision(d Decision) error {
	if !d.Approved {
		return nil
	}
	if !d.Amount.IsPositive() {
		return fmt.Errorf("approved amount %s must be > 0", d.Amount.String())
	}
	if d.Rate.IsNegative() || d.Rate.GreaterThan(maxDecisionRate) {
		return fmt.Errorf("rate %s outside [0, 1]", d.Rate.String())
	}
	return nil
}

// RuleProvider is a deterministic banker: it lends half the player's gold,
// capped, and prices the loan between MinRate and MaxRate by existing debt.
type RuleProvider struct {
	MaxDebt  decimal.Decimal
	MinMoney decimal.Decimal
	MaxLoan  decimal.Decimal
	MinRate  decimal.Decimal
	MaxRate  decimal.Decimal
}

func NewRuleProvider() RuleProvider {
	return RuleProvider{
		MaxDebt:  decimal.NewFromInt(300),
		MinMoney: decimal.NewFromInt(20),
		MaxLoan:  decimal.NewFromInt(200),
		MinRate:  decimal.RequireFromString("0.02"),
		MaxRate:  decimal.RequireFromString("0.08"),
	}
}

func (p RuleProvider) Decide(_ context.Context, snap Snapshot) (Decision, error) {
	debt := snap.TotalDebt()
	if debt.GreaterThanOrEqual(p.MaxDebt) {
		return Denied(fmt.Sprintf("existing debt of %s gold is too high", debt.StringFixed(2))), nil
	}
	if snap.Money.LessThan(p.MinMoney) {
		return Denied("not enough gold on hand to show you can repay"), nil
	}
	amount := decimal.Min(snap.Money.Div(decimal.NewFromInt(2)), p.MaxLoan).Floor()
	if !amount.IsPositive() {
		return Denied("nothing to lend against"), nil
	}
	load := decimal.Min(decimal.NewFromInt(1), debt.Div(p.MaxDebt))
	rate := p.MinRate.Add(p.MaxRate.Sub(p.MinRate).Mul(load)).Round(4)
	return Decision{
		Approved: true,
		Amount:   amount,
		Rate:     rate,
		Reason:   fmt.Sprintf("steady balance; %s%% reflects %s gold of existing debt", rate.Shift(2).String(), debt.StringFixed(2)),
	}, nil
}
