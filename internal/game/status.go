package game

import "github.com/shopspring/decimal"

type Status string

const (
	StatusPlaying Status = "PLAYING"
	StatusWin     Status = "WIN"
	StatusLose    Status = "LOSE"
)

func (s Status) Terminal() bool {
	return s == StatusWin || s == StatusLose
}

// Evaluate is a pure function of the balances. WIN needs WinMoney gold and
// no debt at all; LOSE is any total debt strictly above LoseDebt.
func Evaluate(money, totalDebt decimal.Decimal) Status {
	if money.GreaterThanOrEqual(WinMoney) && totalDebt.IsZero() {
		return StatusWin
	}
	if totalDebt.GreaterThan(LoseDebt) {
		return StatusLose
	}
	return StatusPlaying
}

func statusReason(s Status) string {
	switch s {
	case StatusWin:
		return "reached the gold target with every debt repaid"
	case StatusLose:
		return "total debt exceeded the limit"
	default:
		return ""
	}
}
