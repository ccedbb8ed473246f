// Package schwab implements the broker client against the Schwab Trader
// API order endpoint. Token acquisition and refresh live with the caller;
// this client only consumes an access-token supplier.
package schwab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/tradewell/execution/broker"
	"github.com/tradewell/execution/order"
)

// TokenSource supplies a current access token for each request.
type TokenSource func() (string, error)

// Client talks to the Schwab Trader API.
type Client struct {
	BaseURL string // e.g. https://api.schwab.com
	Token   TokenSource
	HTTP    *http.Client
}

// New creates a Client with a 30s request timeout.
func New(baseURL string, token TokenSource) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns "schwab".
func (c *Client) Name() string { return "schwab" }

// PlaceOrder POSTs the composed order to
// /trader/v1/accounts/{accountID}/orders. Network failures and 5xx
// responses come back as transient broker errors; 4xx responses are
// permanent. A 201 acknowledgement carries the new order's URL in the
// Location header, whose last path element is the order ID.
func (c *Client) PlaceOrder(ctx context.Context, accountID string, spec *order.Spec) (broker.Result, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return broker.Result{}, broker.Permanent(0, "encode order", err)
	}

	url := fmt.Sprintf("%s/trader/v1/accounts/%s/orders", c.BaseURL, accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return broker.Result{}, broker.Permanent(0, "build request", err)
	}

	token, err := c.Token()
	if err != nil {
		return broker.Result{}, broker.Permanent(0, "acquire access token", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return broker.Result{}, broker.Transient(0, "place order", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		msg := fmt.Sprintf("place order: %s", strings.TrimSpace(string(b)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode == http.StatusRequestTimeout {
			return broker.Result{}, broker.Transient(resp.StatusCode, msg, nil)
		}
		return broker.Result{}, broker.Permanent(resp.StatusCode, msg, nil)
	}

	res := broker.Result{
		Status:   resp.StatusCode,
		Location: resp.Header.Get("Location"),
	}
	if res.Location != "" {
		res.OrderID = path.Base(res.Location)
	}
	return res, nil
}
