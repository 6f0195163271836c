// Package client is a Go client for the simulator's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stocksim/trading-engine/internal/api"
)

// Error is a non-2xx response from the API.
type Error struct {
	Status    int
	Message   string              `json:"error"`
	Detail    string              `json:"message"`
	Messages  map[string][]string `json:"messages"`
	Required  json.RawMessage     `json:"required"`
	Available json.RawMessage     `json:"available"`
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (HTTP %d)", e.Message, e.Status)
	if len(e.Required) > 0 {
		fmt.Fprintf(&b, ": required %s, available %s", unquote(e.Required), unquote(e.Available))
	}
	for field, msgs := range e.Messages {
		fmt.Fprintf(&b, "; %s: %s", field, strings.Join(msgs, ", "))
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

func unquote(raw json.RawMessage) string {
	return strings.Trim(string(raw), `"`)
}

// Client talks to one simulator server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api",
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Market returns all stocks sorted by symbol.
func (c *Client) Market(ctx context.Context) ([]api.Stock, error) {
	var stocks []api.Stock
	err := c.do(ctx, http.MethodGet, "/market", nil, &stocks)
	return stocks, err
}

// UpdatePrices triggers one market-wide price move.
func (c *Client) UpdatePrices(ctx context.Context) (*api.UpdatePricesResponse, error) {
	var resp api.UpdatePricesResponse
	if err := c.do(ctx, http.MethodPost, "/market/update-prices", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Portfolio returns the account's balance and open positions.
func (c *Client) Portfolio(ctx context.Context) (*api.PortfolioResponse, error) {
	var resp api.PortfolioResponse
	if err := c.do(ctx, http.MethodGet, "/portfolio", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Trade buys or sells. It is never retried.
func (c *Client) Trade(ctx context.Context, stockID int64, side string, quantity int64) (*api.TradeResponse, error) {
	req := api.TradeRequest{StockID: &stockID, Type: &side, Quantity: &quantity}
	var resp api.TradeResponse
	if err := c.do(ctx, http.MethodPost, "/trade", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
