package main

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strings"

	"cosmiccafe/internal/game"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptLender(label string, lenders []game.LenderView) (string, error) {
	ids := make([]string, 0, len(lenders))
	for _, l := range lenders {
		ids = append(ids, string(l.ID))
	}
	for {
		text, err := promptRequired(label + " (" + strings.Join(ids, ", ") + ")")
		if err != nil {
			return "", err
		}
		id, err := game.ParseLenderID(text)
		if err != nil {
			printWarn(err.Error())
			continue
		}
		return string(id), nil
	}
}

func renderState(v game.StateView) {
	accent.Println("\n== COSMIC CAFE ==")
	fmt.Printf("Gold:         %s\n", formatGold(v.Money))
	fmt.Printf("Stock:        %s\n", v.Stock.StringFixed(2))
	fmt.Printf("Total debt:   %s\n", colorizeDebt(v.TotalDebt))
	fmt.Printf("Status:       %s\n", colorizeStatus(v.Status))
	if !v.Status.Terminal() {
		fmt.Printf("Interest in:  %.0fs\n", v.NextAccrualSeconds)
	}

	fmt.Println()
	accent.Println("Debts")
	ids := make([]string, 0, len(v.Debts))
	for id := range v.Debts {
		ids = append(ids, string(id))
	}
	slices.Sort(ids)
	owing := false
	for _, id := range ids {
		debt := v.Debts[game.LenderID(id)]
		if debt.IsZero() {
			continue
		}
		owing = true
		fmt.Printf("  %-16s %12s\n", id, colorizeDebt(debt))
	}
	if !owing {
		printInfo("  Debt free.")
	}

	if v.PendingOffer != nil {
		fmt.Println()
		renderOffer(*v.PendingOffer)
	}
	fmt.Println()
}

func renderLenders(lenders []game.LenderView) {
	accent.Println("\n== LENDERS ==")
	fmt.Printf("%-16s %-20s %-8s %7s %-6s %-18s %10s\n", "ID", "NAME", "POLICY", "RATE", "PAYS", "TIERS", "DEBT")
	for _, l := range lenders {
		tiers := "advisor decides"
		if len(l.Tiers) > 0 {
			parts := make([]string, 0, len(l.Tiers))
			for _, t := range l.Tiers {
				parts = append(parts, t.String())
			}
			tiers = strings.Join(parts, "/")
		}
		fmt.Printf("%-16s %-20s %-8s %6s%% %-6s %-18s %10s\n",
			l.ID,
			truncate(l.Name, 20),
			l.Policy,
			l.Rate.Shift(2).StringFixed(1),
			l.Disburses,
			truncate(tiers, 18),
			colorizeDebt(l.Debt),
		)
		if l.Pitch != "" {
			neutral.Printf("  %q\n", l.Pitch)
		}
	}
	fmt.Println()
}

func renderOffer(o game.Offer) {
	accent.Printf("Offer from %s\n", o.LenderName)
	unit := "gold"
	if o.Disburses == game.DisburseStock {
		unit = "stock"
	}
	fmt.Printf("  Principal:  %s %s\n", o.Principal.String(), unit)
	fmt.Printf("  Interest:   %s%%\n", o.Rate.Shift(2).String())
	fmt.Printf("  You owe:    %s gold\n", formatGold(o.Owed))
	if o.Rationale != "" {
		neutral.Printf("  %q\n", o.Rationale)
	}
}

func renderRecords(records []game.Record) {
	if len(records) == 0 {
		printInfo("No actions recorded.")
		return
	}
	for _, r := range records {
		line := fmt.Sprintf("#%-4d %s", r.Seq, r.Describe())
		switch r.Type() {
		case game.ActionLoan, game.ActionInterest:
			warn.Println(line)
		case game.ActionLoanRejected:
			danger.Println(line)
		case game.ActionRepayment, game.ActionSale:
			success.Println(line)
		case game.ActionGameEnd:
			accent.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func renderSummary(s game.Summary) {
	accent.Println("\n== SESSION SUMMARY ==")
	fmt.Printf("Actions:      %d\n", s.TotalActions)
	fmt.Printf("Loans taken:  %d (%s gold borrowed)\n", s.LoansTaken, formatGold(s.TotalBorrowed))
	fmt.Printf("Sales made:   %d (%s gold earned)\n", s.SalesMade, formatGold(s.TotalEarned))
	fmt.Printf("Repayments:   %d (%s gold repaid)\n", s.RepaymentsMade, formatGold(s.TotalRepaid))
	fmt.Println()
}

func renderOutcome(v game.StateView) {
	switch v.Status {
	case game.StatusWin:
		printSuccess("You won! The cafe is debt free and thriving.")
	case game.StatusLose:
		printError("Game over. Your debts have buried the cafe.")
	}
}

func colorizeDebt(v decimal.Decimal) string {
	text := formatGold(v)
	switch {
	case v.GreaterThan(game.LoseDebt.Div(decimal.NewFromInt(2))):
		return danger.Sprint(text)
	case v.IsPositive():
		return warn.Sprint(text)
	default:
		return success.Sprint(text)
	}
}

func colorizeStatus(s game.Status) string {
	switch s {
	case game.StatusWin:
		return success.Sprint(s)
	case game.StatusLose:
		return danger.Sprint(s)
	default:
		return neutral.Sprint(s)
	}
}

func formatGold(v decimal.Decimal) string {
	sign := ""
	if v.IsNegative() {
		sign = "-"
		v = v.Neg()
	}
	fixed := v.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	return sign + comma(whole) + "." + frac
}

func comma(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
