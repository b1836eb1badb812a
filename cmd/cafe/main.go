package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cl "cosmiccafe/internal/cli"
	"cosmiccafe/internal/config"
	"cosmiccafe/internal/game"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL
	if profile, err := cl.LoadProfile(); err == nil && profile.APIBaseURL != "" && os.Getenv("CAFE_API_BASE_URL") == "" {
		apiBase = profile.APIBaseURL
	}

	root := &cobra.Command{
		Use:          "cafe",
		Short:        "Cosmic Cafe lending game client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "cafe daemon base URL")

	root.AddCommand(
		newStateCmd(&apiBase),
		newLendersCmd(&apiBase),
		newLoanCmd(&apiBase),
		newRepayCmd(&apiBase),
		newSaleCmd(&apiBase),
		newBuyCmd(&apiBase),
		newPurchaseCmd(&apiBase),
		newSpendCmd(&apiBase),
		newAdvanceCmd(&apiBase),
		newHistoryCmd(&apiBase),
		newSummaryCmd(&apiBase),
		newExportCmd(&apiBase),
		newWatchCmd(&apiBase),
		newUseCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newStateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "state",
		Short:   "Show gold, stock, debts and game status",
		Aliases: []string{"dash"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			state, err := newClient(apiBase).State(ctx)
			if err != nil {
				return err
			}
			renderState(state)
			renderOutcome(state)
			return nil
		},
	}
}

func newLendersCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lenders",
		Short: "List lenders and what you owe each",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			lenders, err := newClient(apiBase).Lenders(ctx)
			if err != nil {
				return err
			}
			renderLenders(lenders)
			return nil
		},
	}
}

func newLoanCmd(apiBase *string) *cobra.Command {
	loan := &cobra.Command{
		Use:   "loan",
		Short: "Ask for, accept or decline a loan offer",
	}
	loan.AddCommand(newLoanRequestCmd(apiBase))
	loan.AddCommand(&cobra.Command{
		Use:   "accept",
		Short: "Accept the pending offer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return acceptOffer(ctx, newClient(apiBase))
		},
	})
	loan.AddCommand(&cobra.Command{
		Use:   "decline",
		Short: "Decline the pending offer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return declineOffer(ctx, newClient(apiBase))
		},
	})
	return loan
}

func newLoanRequestCmd(apiBase *string) *cobra.Command {
	var amountRaw string
	var decide string
	cmd := &cobra.Command{
		Use:   "request [LENDER]",
		Short: "Request a loan offer from a lender",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)

			var lender string
			if len(args) == 1 {
				lender = args[0]
			} else {
				lenders, err := client.Lenders(ctx)
				if err != nil {
					return err
				}
				renderLenders(lenders)
				lender, err = promptLender("Lender", lenders)
				if err != nil {
					return err
				}
			}
			amount := decimal.Zero
			if strings.TrimSpace(amountRaw) != "" {
				v, err := game.ParseGold(amountRaw)
				if err != nil {
					return err
				}
				amount = v
			}

			printInfo("Waiting for the lender's answer...")
			res, err := client.RequestLoan(ctx, lender, amount, uuid.NewString())
			if err != nil {
				return err
			}
			if res.Rejection != nil {
				printError("Loan rejected: " + res.Rejection.Reason)
				return nil
			}
			renderOffer(*res.Offer)

			choice := strings.ToLower(strings.TrimSpace(decide))
			if choice == "" && !term.IsTerminal(int(os.Stdin.Fd())) {
				choice = "later"
			}
			if choice == "" {
				choice, err = promptChoice("Take it?", []string{"accept", "decline", "later"}, "later")
				if err != nil {
					return err
				}
			}
			switch choice {
			case "accept":
				return acceptOffer(ctx, client)
			case "decline":
				return declineOffer(ctx, client)
			case "later":
				printInfo("Offer kept. Run `cafe loan accept` or `cafe loan decline` when ready.")
				return nil
			default:
				return fmt.Errorf("unknown decision %q", decide)
			}
		},
	}
	cmd.Flags().StringVar(&amountRaw, "amount", "", "loan tier to ask for (fixed-rate lenders only; the banker picks its own amount)")
	cmd.Flags().StringVar(&decide, "decide", "", "answer the offer without prompting: accept, decline or later")
	return cmd
}

func acceptOffer(ctx context.Context, client *cl.Client) error {
	res, err := client.AcceptLoan(ctx, uuid.NewString())
	if err != nil {
		return err
	}
	printSuccess("Loan accepted.")
	renderState(res.State)
	renderOutcome(res.State)
	return nil
}

func declineOffer(ctx context.Context, client *cl.Client) error {
	if _, err := client.DeclineLoan(ctx); err != nil {
		return err
	}
	printInfo("Offer declined.")
	return nil
}

func newRepayCmd(apiBase *string) *cobra.Command {
	var amountRaw string
	cmd := &cobra.Command{
		Use:   "repay LENDER",
		Short: "Repay a lender (the whole debt unless --amount is set)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount := decimal.Zero
			if strings.TrimSpace(amountRaw) != "" {
				v, err := game.ParseGold(amountRaw)
				if err != nil {
					return err
				}
				amount = v
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := newClient(apiBase).Repay(ctx, args[0], amount, uuid.NewString())
			if err != nil {
				return err
			}
			if res.Paid.IsZero() {
				printInfo("Nothing owed to " + string(res.Lender) + ".")
				return nil
			}
			printSuccess(fmt.Sprintf("Repaid %s gold to %s. Still owed: %s", formatGold(res.Paid), res.Lender, formatGold(res.State.Debts[res.Lender])))
			renderOutcome(res.State)
			return nil
		},
	}
	cmd.Flags().StringVar(&amountRaw, "amount", "", "gold to repay")
	return cmd
}

func newSaleCmd(apiBase *string) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "sale",
		Short: "Serve customers (each sale uses 20 stock)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			for i := 0; i < count; i++ {
				res, err := client.Sale(ctx, uuid.NewString())
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Sold for %s gold. Stock left: %s", formatGold(res.Amount), res.State.Stock.String()))
				if res.State.Status.Terminal() {
					renderOutcome(res.State)
					return nil
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of sales to make")
	return cmd
}

func newBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy LENDER",
		Short: "Buy stock from a lender that sells it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := newClient(apiBase).BuyStock(ctx, args[0], uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Bought %s stock from %s for %s gold.", res.Units.String(), res.Seller, formatGold(res.Cost)))
			return nil
		},
	}
}

func newPurchaseCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purchase ITEM COST",
		Short: "Spend gold on an item for the cafe",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cost, err := game.ParseGold(args[1])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			state, err := newClient(apiBase).Purchase(ctx, args[0], cost, uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Bought %s. Gold left: %s", args[0], formatGold(state.Money)))
			return nil
		},
	}
}

func newSpendCmd(apiBase *string) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "spend AMOUNT",
		Short: "Use up stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[0])
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			state, err := newClient(apiBase).SpendStock(ctx, amount, reason, uuid.NewString())
			if err != nil {
				return err
			}
			printInfo("Stock left: " + state.Stock.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "what the stock went to")
	return cmd
}

func newAdvanceCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "advance DURATION",
		Short: "Move the game clock forward (e.g. 30s, 2m)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := newClient(apiBase).Advance(ctx, d)
			if err != nil {
				return err
			}
			if res.Passes == 0 {
				printInfo(fmt.Sprintf("No interest yet. Next charge in %.0fs.", res.State.NextAccrualSeconds))
			} else {
				printWarn(fmt.Sprintf("Interest charged %d time(s). Total debt: %s", res.Passes, formatGold(res.State.TotalDebt)))
			}
			renderOutcome(res.State)
			return nil
		},
	}
}

func newHistoryCmd(apiBase *string) *cobra.Command {
	var lender string
	var recent int
	var all bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the action log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			var (
				records []game.Record
				err     error
			)
			switch {
			case lender != "":
				records, err = client.LenderHistory(ctx, lender)
			case all:
				records, err = client.Actions(ctx, -1)
			default:
				records, err = client.Actions(ctx, recent)
			}
			if err != nil {
				return err
			}
			renderRecords(records)
			return nil
		},
	}
	cmd.Flags().StringVar(&lender, "lender", "", "only actions involving this lender")
	cmd.Flags().IntVarP(&recent, "recent", "n", 20, "number of recent actions")
	cmd.Flags().BoolVar(&all, "all", false, "show the whole log")
	return cmd
}

func newSummaryCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show session totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			s, err := newClient(apiBase).Summary(ctx)
			if err != nil {
				return err
			}
			renderSummary(s)
			return nil
		},
	}
}

func newExportCmd(apiBase *string) *cobra.Command {
	var out string
	var archive bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Save the session log to a file or to the daemon's archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			client := newClient(apiBase)

			if archive {
				id, err := client.ArchiveExport(ctx)
				if err != nil {
					return err
				}
				printSuccess("Archived session " + id + ".")
				entries, err := client.Archive(ctx)
				if err != nil {
					return err
				}
				printInfo(fmt.Sprintf("%d session(s) in the archive.", len(entries)))
				return nil
			}

			doc, err := client.Export(ctx)
			if err != nil {
				return err
			}
			if err := game.VerifyExport(doc); err != nil {
				return fmt.Errorf("export from daemon is inconsistent: %w", err)
			}
			if out == "" {
				out = "cafe-" + doc.SessionID + ".json"
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := game.WriteExport(f, doc); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			profile, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			profile.SessionID = doc.SessionID
			profile.LastExport = out
			if err := cl.SaveProfile(profile); err != nil {
				printWarn("Could not remember export location: " + err.Error())
			}
			printSuccess(fmt.Sprintf("Wrote %d actions to %s.", len(doc.Actions), out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "file to write (defaults to cafe-<session>.json)")
	cmd.Flags().BoolVar(&archive, "archive", false, "store the export in the daemon's archive instead")
	return cmd
}

func newUseCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "use [URL]",
		Short: "Remember which cafe daemon to talk to (no URL shows the current one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset {
				if err := cl.ClearProfile(); err != nil {
					return err
				}
				printSuccess("Forgot the saved daemon address.")
				return nil
			}
			profile, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				if profile.APIBaseURL == "" {
					printInfo("Using the default daemon address.")
				} else {
					printInfo("Using " + profile.APIBaseURL)
				}
				if profile.LastExport != "" {
					printInfo("Last export: " + profile.LastExport)
				}
				return nil
			}
			profile.APIBaseURL = strings.TrimRight(strings.TrimSpace(args[0]), "/")
			if err := cl.SaveProfile(profile); err != nil {
				return err
			}
			printSuccess("Now using " + profile.APIBaseURL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "forget the saved address")
	return cmd
}
