package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cosmiccafe/internal/game"
	"cosmiccafe/internal/store"

	"github.com/shopspring/decimal"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// APIError is a non-2xx reply from the cafe daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) State(ctx context.Context) (game.StateView, error) {
	var out game.StateView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/state", nil, &out, "")
	return out, err
}

func (c *Client) Lenders(ctx context.Context) ([]game.LenderView, error) {
	var out struct {
		Lenders []game.LenderView `json:"lenders"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/lenders", nil, &out, "")
	return out.Lenders, err
}

// RequestLoan asks for an offer. A zero amount lets the lender pick its
// first tier.
func (c *Client) RequestLoan(ctx context.Context, lender string, amount decimal.Decimal, idem string) (game.LoanResult, error) {
	body := map[string]any{"lender": lender}
	if amount.IsPositive() {
		body["amount"] = amount
	}
	var out game.LoanResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/loans/request", body, &out, idem)
	return out, err
}

func (c *Client) AcceptLoan(ctx context.Context, idem string) (game.LoanResult, error) {
	var out game.LoanResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/loans/accept", nil, &out, idem)
	return out, err
}

func (c *Client) DeclineLoan(ctx context.Context) (game.LoanResult, error) {
	var out game.LoanResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/loans/decline", nil, &out, "")
	return out, err
}

// Repay pays down a debt. A zero amount repays it in full.
func (c *Client) Repay(ctx context.Context, lender string, amount decimal.Decimal, idem string) (game.RepayResult, error) {
	var body any
	if !amount.IsZero() {
		body = map[string]any{"amount": amount}
	}
	var out game.RepayResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/debts/"+url.PathEscape(lender)+"/repay", body, &out, idem)
	return out, err
}

func (c *Client) Sale(ctx context.Context, idem string) (game.SaleResult, error) {
	var out game.SaleResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sales", nil, &out, idem)
	return out, err
}

func (c *Client) BuyStock(ctx context.Context, lender, idem string) (game.PurchaseResult, error) {
	var out game.PurchaseResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/shop/"+url.PathEscape(lender)+"/buy", nil, &out, idem)
	return out, err
}

func (c *Client) Purchase(ctx context.Context, item string, cost decimal.Decimal, idem string) (game.StateView, error) {
	var out game.StateView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/purchases", map[string]any{
		"item": item,
		"cost": cost,
	}, &out, idem)
	return out, err
}

func (c *Client) SpendStock(ctx context.Context, amount decimal.Decimal, reason, idem string) (game.StateView, error) {
	var out game.StateView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/stock/spend", map[string]any{
		"amount": amount,
		"reason": reason,
	}, &out, idem)
	return out, err
}

func (c *Client) Advance(ctx context.Context, d time.Duration) (game.AdvanceResult, error) {
	var out game.AdvanceResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/clock/advance", map[string]any{
		"seconds": d.Seconds(),
	}, &out, "")
	return out, err
}

// Actions returns the most recent n records, or all of them when n < 0.
func (c *Client) Actions(ctx context.Context, n int) ([]game.Record, error) {
	recent := "all"
	if n >= 0 {
		recent = strconv.Itoa(n)
	}
	var out struct {
		Actions []game.Record `json:"actions"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/actions?recent="+recent, nil, &out, "")
	return out.Actions, err
}

func (c *Client) LenderHistory(ctx context.Context, lender string) ([]game.Record, error) {
	var out struct {
		Actions []game.Record `json:"actions"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/lenders/"+url.PathEscape(lender)+"/history", nil, &out, "")
	return out.Actions, err
}

func (c *Client) Summary(ctx context.Context) (game.Summary, error) {
	var out game.Summary
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/actions/summary", nil, &out, "")
	return out, err
}

func (c *Client) Export(ctx context.Context) (game.Export, error) {
	var out game.Export
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/export", nil, &out, "")
	return out, err
}

// ArchiveExport asks the daemon to store the current export in its archive
// and returns the session id it was saved under.
func (c *Client) ArchiveExport(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/export", nil, &out, "")
	return out.SessionID, err
}

func (c *Client) Archive(ctx context.Context) ([]store.Entry, error) {
	var out struct {
		Exports []store.Entry `json:"exports"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/archive", nil, &out, "")
	return out.Exports, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}
