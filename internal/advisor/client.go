package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cosmiccafe/internal/game"

	"github.com/shopspring/decimal"
)

const decidePath = "/v1/lending/decide"

// Client asks a remote advisory service to approve and price banker loans.
// It implements game.DecisionProvider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type decideRequest struct {
	Money decimal.Decimal            `json:"money"`
	Stock decimal.Decimal            `json:"stock"`
	Debts map[string]decimal.Decimal `json:"debts"`
}

type decideResponse struct {
	Decision *bool            `json:"decision"`
	Amount   *decimal.Decimal `json:"amount"`
	Interest *decimal.Decimal `json:"interest"`
	Reason   string           `json:"reason"`
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = game.DefaultDecisionTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Decide(ctx context.Context, snap game.Snapshot) (game.Decision, error) {
	in := decideRequest{
		Money: snap.Money,
		Stock: snap.Stock,
		Debts: make(map[string]decimal.Decimal, len(snap.Debts)),
	}
	for id, v := range snap.Debts {
		in.Debts[id.String()] = v
	}
	var out decideResponse
	if err := c.postJSON(ctx, decidePath, in, &out); err != nil {
		return game.Decision{}, err
	}
	if out.Decision == nil {
		return game.Decision{}, fmt.Errorf("advisor response is missing \"decision\"")
	}
	dec := game.Decision{Approved: *out.Decision, Reason: strings.TrimSpace(out.Reason)}
	if dec.Approved {
		if out.Amount == nil || out.Interest == nil {
			return game.Decision{}, fmt.Errorf("approved advisor response is missing amount or interest")
		}
		dec.Amount = *out.Amount
		dec.Rate = *out.Interest
	}
	return dec, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("advisor request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("advisor status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(out); err != nil {
		return fmt.Errorf("decode advisor response: %w", err)
	}
	return nil
}
