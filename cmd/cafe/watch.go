package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	cl "cosmiccafe/internal/cli"
	"cosmiccafe/internal/game"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

type stateMsg struct {
	state game.StateView
	log   []game.Record
}

type errMsg struct{ err error }

type noticeMsg string

type pollMsg struct{}

type watchModel struct {
	client  *cl.Client
	every   time.Duration
	spinner spinner.Model
	state   *game.StateView
	log     []game.Record
	notice  string
	err     error
}

func newWatchCmd(apiBase *string) *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard (s: sale, r: repay all, q: quit)",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := watchModel{
				client:  newClient(apiBase),
				every:   every,
				spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
			}
			_, err := tea.NewProgram(m, tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&every, "every", time.Second, "refresh interval")
	return cmd
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

func (m watchModel) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		state, err := m.client.State(ctx)
		if err != nil {
			return errMsg{err}
		}
		log, err := m.client.Actions(ctx, 6)
		if err != nil {
			return errMsg{err}
		}
		return stateMsg{state: state, log: log}
	}
}

func (m watchModel) poll() tea.Cmd {
	return tea.Tick(m.every, func(time.Time) tea.Msg { return pollMsg{} })
}

func (m watchModel) sale() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err := m.client.Sale(ctx, uuid.NewString())
		if err != nil {
			return errMsg{err}
		}
		return noticeMsg(fmt.Sprintf("sold for %s gold", formatGold(res.Amount)))
	}
}

func (m watchModel) repayAll() tea.Cmd {
	state := m.state
	return func() tea.Msg {
		if state == nil {
			return noticeMsg("no state yet")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		paid := 0
		for id, debt := range state.Debts {
			if debt.IsZero() {
				continue
			}
			if _, err := m.client.Repay(ctx, string(id), debt, uuid.NewString()); err != nil {
				return errMsg{err}
			}
			paid++
		}
		return noticeMsg(fmt.Sprintf("repaid %d lender(s)", paid))
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "s":
			return m, m.sale()
		case "r":
			return m, m.repayAll()
		}
	case stateMsg:
		m.state = &msg.state
		m.log = msg.log
		m.err = nil
		return m, m.poll()
	case errMsg:
		m.err = msg.err
		return m, m.poll()
	case noticeMsg:
		m.notice = string(msg)
		return m, m.fetch()
	case pollMsg:
		return m, m.fetch()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("COSMIC CAFE") + " " + m.spinner.View() + "\n")
	if m.state == nil {
		if m.err != nil {
			b.WriteString(badStyle.Render(m.err.Error()) + "\n")
		} else {
			b.WriteString(dimStyle.Render("connecting...") + "\n")
		}
		return b.String()
	}
	s := m.state

	var panel strings.Builder
	fmt.Fprintf(&panel, "gold   %12s\n", formatGold(s.Money))
	fmt.Fprintf(&panel, "stock  %12s\n", s.Stock.StringFixed(2))
	fmt.Fprintf(&panel, "debt   %12s\n", formatGold(s.TotalDebt))
	ids := make([]string, 0, len(s.Debts))
	for id, debt := range s.Debts {
		if !debt.IsZero() {
			ids = append(ids, string(id))
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		fmt.Fprintf(&panel, "  %-14s %10s\n", id, formatGold(s.Debts[game.LenderID(id)]))
	}
	fmt.Fprintf(&panel, "interest in %.0fs", s.NextAccrualSeconds)
	b.WriteString(boxStyle.Render(panel.String()) + "\n")

	switch s.Status {
	case game.StatusWin:
		b.WriteString(goodStyle.Render("WIN: the cafe is debt free and thriving") + "\n")
	case game.StatusLose:
		b.WriteString(badStyle.Render("LOSE: the debts have buried the cafe") + "\n")
	}
	if s.PendingOffer != nil {
		o := s.PendingOffer
		b.WriteString(fmt.Sprintf("pending offer: %s %s at %s%% (run `cafe loan accept`)\n", o.LenderName, o.Principal.String(), o.Rate.Shift(2).String()))
	}

	b.WriteString("\n")
	for _, r := range m.log {
		b.WriteString(dimStyle.Render(r.Describe()) + "\n")
	}
	if m.notice != "" {
		b.WriteString("\n" + goodStyle.Render(m.notice) + "\n")
	}
	if m.err != nil {
		b.WriteString(badStyle.Render(m.err.Error()) + "\n")
	}
	b.WriteString(dimStyle.Render("s sale  r repay all  q quit") + "\n")
	return b.String()
}
