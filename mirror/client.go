// Package mirror is the gateway to the shared mirror database's REST
// surface. Every collection has get, single-upsert and batch-upsert
// endpoints; upserts key on the record's local id, so replaying the same
// record is always safe.
//
// The engine treats all mirror calls as best effort, so this package
// reports errors plainly and never retries on its own.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/buffmasterbran/order-entry/ordersync"
)

// StaticToken wraps a long-lived mirror service token as a token source.
// If the token is a JWT with an exp claim, expiry is checked eagerly on
// every call so a stale credential fails loud instead of as a generic
// 401 later. The signature is not verified here; the mirror does that.
func StaticToken(token string) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		claims := jwt.MapClaims{}
		_, _, err := jwt.NewParser().ParseUnverified(token, claims)
		if err != nil {
			// Not a JWT. Opaque tokens pass through untouched.
			return token, nil
		}
		exp, err := claims.GetExpirationTime()
		if err != nil || exp == nil {
			return token, nil
		}
		if time.Now().After(exp.Time) {
			return "", fmt.Errorf("mirror service token expired at %s", exp.Time.Format(time.RFC3339))
		}
		return token, nil
	}
}

// Client talks to one mirror deployment.
type Client struct {
	BaseURL string
	Token   func(context.Context) (string, error)
	HTTP    *http.Client

	logger *slog.Logger
}

var _ ordersync.Mirror = (*Client)(nil)

// NewClient builds a mirror gateway for the given base URL.
func NewClient(baseURL string, token func(context.Context) (string, error), logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to build mirror request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mirror request failed: %w", err)
	}
	return resp, nil
}

// call sends the request and checks for a 2xx, discarding the response
// body. Upserts and deletes go through here.
func (c *Client) call(ctx context.Context, method, path string, payload any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode mirror payload: %w", err)
		}
	}
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("mirror %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// get fetches path with optional query params and decodes the JSON list
// under the given wrapper key into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("mirror GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode mirror response: %w", err)
	}
	return nil
}

// --- Customers ---

func (c *Client) Customers(ctx context.Context, search string) ([]ordersync.Customer, error) {
	params := url.Values{}
	if search != "" {
		params.Set("search", search)
	}
	var out struct {
		Customers []ordersync.Customer `json:"customers"`
	}
	if err := c.get(ctx, "/customers", params, &out); err != nil {
		return nil, err
	}
	return out.Customers, nil
}

func (c *Client) UpsertCustomer(ctx context.Context, cu ordersync.Customer) error {
	return c.call(ctx, http.MethodPost, "/customers", map[string]any{"customer": cu})
}

func (c *Client) UpsertCustomers(ctx context.Context, cs []ordersync.Customer) error {
	if len(cs) == 0 {
		return nil
	}
	return c.call(ctx, http.MethodPost, "/customers/batch", map[string]any{"customers": cs})
}

// --- Contacts ---

func (c *Client) Contacts(ctx context.Context, customerID string) ([]ordersync.Contact, error) {
	params := url.Values{}
	if customerID != "" {
		params.Set("customer_id", customerID)
	}
	var out struct {
		Contacts []ordersync.Contact `json:"contacts"`
	}
	if err := c.get(ctx, "/contacts", params, &out); err != nil {
		return nil, err
	}
	return out.Contacts, nil
}

func (c *Client) UpsertContact(ctx context.Context, ct ordersync.Contact) error {
	return c.call(ctx, http.MethodPost, "/contacts", map[string]any{"contact": ct})
}

func (c *Client) UpsertContacts(ctx context.Context, cs []ordersync.Contact) error {
	if len(cs) == 0 {
		return nil
	}
	return c.call(ctx, http.MethodPost, "/contacts/batch", map[string]any{"contacts": cs})
}

// --- Addresses ---

func (c *Client) Addresses(ctx context.Context, customerID string) ([]ordersync.Address, error) {
	params := url.Values{}
	if customerID != "" {
		params.Set("customer_id", customerID)
	}
	var out struct {
		Addresses []ordersync.Address `json:"addresses"`
	}
	if err := c.get(ctx, "/addresses", params, &out); err != nil {
		return nil, err
	}
	return out.Addresses, nil
}

func (c *Client) UpsertAddress(ctx context.Context, a ordersync.Address) error {
	return c.call(ctx, http.MethodPost, "/addresses", map[string]any{"address": a})
}

func (c *Client) UpsertAddresses(ctx context.Context, as []ordersync.Address) error {
	if len(as) == 0 {
		return nil
	}
	return c.call(ctx, http.MethodPost, "/addresses/batch", map[string]any{"addresses": as})
}

// --- Items ---

func (c *Client) Items(ctx context.Context) ([]ordersync.Item, error) {
	var out struct {
		Items []ordersync.Item `json:"items"`
	}
	if err := c.get(ctx, "/items", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) UpsertItem(ctx context.Context, it ordersync.Item) error {
	return c.call(ctx, http.MethodPost, "/items", map[string]any{"item": it})
}

func (c *Client) UpsertItems(ctx context.Context, its []ordersync.Item) error {
	if len(its) == 0 {
		return nil
	}
	return c.call(ctx, http.MethodPost, "/items/batch", map[string]any{"items": its})
}

// --- Orders ---

func (c *Client) Orders(ctx context.Context, status ordersync.OrderStatus) ([]ordersync.Order, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", string(status))
	}
	var out struct {
		Orders []ordersync.Order `json:"orders"`
	}
	if err := c.get(ctx, "/orders", params, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (c *Client) UpsertOrder(ctx context.Context, o ordersync.Order) error {
	return c.call(ctx, http.MethodPost, "/orders", map[string]any{"order": o})
}

func (c *Client) DeleteOrder(ctx context.Context, localID string) error {
	return c.call(ctx, http.MethodDelete, "/orders/"+url.PathEscape(localID), nil)
}

// --- Leads ---

func (c *Client) Leads(ctx context.Context) ([]ordersync.Lead, error) {
	var out struct {
		Leads []ordersync.Lead `json:"leads"`
	}
	if err := c.get(ctx, "/leads", nil, &out); err != nil {
		return nil, err
	}
	return out.Leads, nil
}

func (c *Client) UpsertLead(ctx context.Context, l ordersync.Lead) error {
	return c.call(ctx, http.MethodPost, "/leads", map[string]any{"lead": l})
}

func (c *Client) DeleteLead(ctx context.Context, localID string) error {
	return c.call(ctx, http.MethodDelete, "/leads/"+url.PathEscape(localID), nil)
}
