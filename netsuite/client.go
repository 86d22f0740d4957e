// Package netsuite is a thin gateway over the ERP's HTTP surface: SuiteQL
// read queries with offset pagination, and record-create commands for
// customers, contacts, customer addresses and sales orders.
//
// The gateway validates requests at the boundary and normalizes responses;
// it performs no retries and keeps no state. Callers decide what a failure
// means.
package netsuite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	suiteQLPath = "/services/rest/query/v1/suiteql"
	recordPath  = "/services/rest/record/v1"

	// DefaultPageSize is the SuiteQL page size used for offset pagination.
	DefaultPageSize = 1000
	// DefaultMaxRows caps pagination so a bad query cannot page forever.
	DefaultMaxRows = 10000
)

// Row is one normalized SuiteQL result row.
type Row map[string]any

// String returns the row's value for key as a string. SuiteQL returns
// numbers as json.Number or float64 depending on context; both normalize
// to their decimal text form.
func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Client talks to one ERP account.
type Client struct {
	BaseURL  string
	Token    func(context.Context) (string, error)
	HTTP     *http.Client
	PageSize int
	MaxRows  int

	logger *slog.Logger
}

// NewClient builds a gateway for the given ERP base URL. The token
// function supplies the bearer credential per request; auth acquisition
// itself is outside this package.
func NewClient(baseURL string, token func(context.Context) (string, error), logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Token:    token,
		HTTP:     &http.Client{Timeout: 120 * time.Second},
		PageSize: DefaultPageSize,
		MaxRows:  DefaultMaxRows,
		logger:   logger,
	}
}

// Query runs a SuiteQL statement and returns all rows, following offset
// pagination while the server reports more, up to the MaxRows cap.
func (c *Client) Query(ctx context.Context, stmt string) ([]Row, error) {
	page, err := c.queryPage(ctx, stmt, c.BaseURL+suiteQLPath)
	if err != nil {
		return nil, err
	}
	rows := page.Items

	offset := c.PageSize
	for page.HasMore && offset < c.MaxRows {
		url := fmt.Sprintf("%s%s?limit=%d&offset=%d", c.BaseURL, suiteQLPath, c.PageSize, offset)
		page, err = c.queryPage(ctx, stmt, url)
		if err != nil {
			// A failed page aborts pagination but keeps what we have; the
			// caller sees a partial result rather than nothing.
			c.logger.Warn("suiteql pagination aborted", "offset", offset, "err", err)
			break
		}
		rows = append(rows, page.Items...)
		offset += c.PageSize
	}

	c.logger.Debug("suiteql query complete", "rows", len(rows))
	return rows, nil
}

type queryPage struct {
	Items   []Row `json:"items"`
	HasMore bool  `json:"hasMore"`
}

func (c *Client) queryPage(ctx context.Context, stmt, url string) (*queryPage, error) {
	body, err := json.Marshal(map[string]string{"q": stmt})
	if err != nil {
		return nil, fmt.Errorf("failed to encode suiteql request: %w", err)
	}
	resp, err := c.send(ctx, http.MethodPost, url, body, "transient")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError("suiteql query", resp)
	}
	var page queryPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode suiteql response: %w", err)
	}
	return &page, nil
}

// --- Catalog queries ---

// Customers fetches the full customer list (internal category 28, the
// house account bucket, excluded).
func (c *Client) Customers(ctx context.Context) ([]Row, error) {
	return c.Query(ctx, `SELECT id, entityid, companyname, email, partner, pricelevel `+
		`FROM customer WHERE custentity_customer_category != 28`)
}

// AllContacts fetches every contact joined to its owning customer in a
// single query.
func (c *Client) AllContacts(ctx context.Context) ([]Row, error) {
	return c.Query(ctx, `SELECT c.id AS customer_id, c.entityid AS customer_name, `+
		`ct.id AS contact_id, ct.entityid AS contact_entityid, ct.firstname, ct.lastname, ct.email, ct.phone `+
		`FROM customer c JOIN contact ct ON ct.company = c.id `+
		`WHERE c.custentity_customer_category != 28 ORDER BY c.entityid`)
}

// AllAddresses fetches every address-book entry joined to its owning
// customer. The join returns one row per label/sublist entry, so the same
// logical address can appear more than once; callers must deduplicate.
func (c *Client) AllAddresses(ctx context.Context) ([]Row, error) {
	return c.Query(ctx, `SELECT ab.addressbookaddress AS address_id, `+
		`ab.entity AS customer_id, c.entityid AS customer_name, `+
		`ea.addressee, ea.addr1, ea.addr2, ea.city, ea.state, ea.zip, ea.country, `+
		`ab.label, ab.defaultshipping, ab.defaultbilling `+
		`FROM customeraddressbook ab JOIN customer c ON c.id = ab.entity `+
		`JOIN entityaddress ea ON ea.nkey = ab.addressbookaddress `+
		`WHERE c.custentity_customer_category != 28`)
}

// Items fetches the price-schedule catalog: one row per
// (item, price tier, breakpoint index) tuple, breakpoint indexes 1..7.
func (c *Client) Items(ctx context.Context) ([]Row, error) {
	return c.Query(ctx, `SELECT i.id, i.itemid, i.displayname, i.itemtype, i.custitem_item_color, `+
		`ip.pricelevel, ip.priceqty AS price_break_qty, ip.price `+
		`FROM item i JOIN itemprice ip ON ip.item = i.id `+
		`WHERE i.itemtype IN ('InvtPart','Kit') AND i.isinactive = 'F' `+
		`AND ip.priceqty >= 1 AND ip.priceqty <= 7 `+
		`ORDER BY i.itemid, ip.pricelevel, ip.priceqty`)
}

// --- Record creates ---

// CreateResult is the normalized outcome of a record-create command.
// EntityID is the ERP-canonicalized display code, present only where the
// ERP assigns one (customers, contacts). RemoteID may be empty for
// address sub-records.
type CreateResult struct {
	RemoteID string
	EntityID string
}

// CustomerRequest creates a customer record.
type CustomerRequest struct {
	CompanyName string
	Email       string
	Partner     string
	PriceLevel  string
}

// ContactRequest creates a contact under an existing ERP customer.
type ContactRequest struct {
	CustomerID string // ERP customer id, not a local id
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Title      string
}

// AddressRequest adds an address-book entry to an existing ERP customer.
type AddressRequest struct {
	CustomerID      string // ERP customer id
	Addr1           string
	Addr2           string
	City            string
	State           string
	Zip             string
	Country         string
	Addressee       string
	Label           string
	DefaultShipping bool
	DefaultBilling  bool
}

// OrderLineRequest is one sales-order line. ItemID is the ERP item id.
type OrderLineRequest struct {
	ItemID   string
	Quantity int
	Price    float64
}

// OrderRequest creates a sales order. All ids are ERP ids; the caller is
// responsible for having resolved them before asking.
type OrderRequest struct {
	CustomerID    string
	ShipAddressID string
	BillAddressID string
	Lines         []OrderLineRequest
	ShipDate      string // YYYY-MM-DD, optional
	Memo          string
}

var customerIDRe = regexp.MustCompile(`/customer/(\d+)`)

// CreateCustomer creates the customer in the ERP and returns its assigned
// id and display code.
func (c *Client) CreateCustomer(ctx context.Context, req CustomerRequest) (*CreateResult, error) {
	if req.CompanyName == "" {
		return nil, fmt.Errorf("create customer: company name is required")
	}
	body := map[string]any{"companyName": req.CompanyName}
	if req.Email != "" {
		body["email"] = req.Email
	}
	if req.Partner != "" {
		body["partner"] = map[string]string{"id": req.Partner}
	}
	if req.PriceLevel != "" {
		body["priceLevel"] = map[string]string{"id": req.PriceLevel}
	}

	remoteID, err := c.createRecord(ctx, "customer", body, customerIDRe)
	if err != nil {
		return nil, err
	}

	// Fetch the created record for its ERP-assigned display code. Not
	// fatal: the code shows up on the next full refresh anyway.
	entityID, err := c.fetchEntityID(ctx, "customer", remoteID)
	if err != nil {
		c.logger.Warn("created customer but could not read back entityid", "id", remoteID, "err", err)
	}
	return &CreateResult{RemoteID: remoteID, EntityID: entityID}, nil
}

var contactIDRe = regexp.MustCompile(`/contact/(\d+)`)

// CreateContact creates a contact attached to the given ERP customer.
func (c *Client) CreateContact(ctx context.Context, req ContactRequest) (*CreateResult, error) {
	if req.CustomerID == "" {
		return nil, fmt.Errorf("create contact: customer id is required")
	}
	if req.FirstName == "" && req.LastName == "" {
		return nil, fmt.Errorf("create contact: a name is required")
	}
	body := map[string]any{
		"company": map[string]string{"id": req.CustomerID},
	}
	if req.FirstName != "" {
		body["firstName"] = req.FirstName
	}
	if req.LastName != "" {
		body["lastName"] = req.LastName
	}
	if req.Email != "" {
		body["email"] = req.Email
	}
	if req.Phone != "" {
		body["phone"] = req.Phone
	}
	if req.Title != "" {
		body["title"] = req.Title
	}

	remoteID, err := c.createRecord(ctx, "contact", body, contactIDRe)
	if err != nil {
		return nil, err
	}
	entityID, err := c.fetchEntityID(ctx, "contact", remoteID)
	if err != nil {
		c.logger.Warn("created contact but could not read back entityid", "id", remoteID, "err", err)
	}
	return &CreateResult{RemoteID: remoteID, EntityID: entityID}, nil
}

// CreateAddress adds an address-book entry to the ERP customer via a
// sublist patch. The ERP may not expose an id for the new entry, in which
// case RemoteID is empty; the write still happened.
func (c *Client) CreateAddress(ctx context.Context, req AddressRequest) (*CreateResult, error) {
	if req.CustomerID == "" {
		return nil, fmt.Errorf("create address: customer id is required")
	}
	if req.Addr1 == "" {
		return nil, fmt.Errorf("create address: address line 1 is required")
	}

	addr := map[string]any{"addr1": req.Addr1}
	for k, v := range map[string]string{
		"addr2": req.Addr2, "city": req.City, "state": req.State,
		"zip": req.Zip, "country": req.Country, "addressee": req.Addressee,
	} {
		if v != "" {
			addr[k] = v
		}
	}
	entry := map[string]any{
		"addressbookaddress": addr,
		"defaultshipping":    req.DefaultShipping,
		"defaultbilling":     req.DefaultBilling,
	}
	if req.Label != "" {
		entry["label"] = req.Label
	}
	body := map[string]any{
		"addressbook": map[string]any{"items": []any{entry}},
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode address request: %w", err)
	}
	url := fmt.Sprintf("%s%s/customer/%s", c.BaseURL, recordPath, req.CustomerID)
	resp, err := c.send(ctx, http.MethodPatch, url, encoded, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("create address: erp returned status %d: %s", resp.StatusCode, truncate(respBody))
	}

	// A PATCH response echoes the record; the new entry is the last
	// address-book item when present.
	var patched struct {
		AddressBook struct {
			Items []struct {
				AddressBookAddress json.Number `json:"addressbookaddress"`
			} `json:"items"`
		} `json:"addressbook"`
	}
	remoteID := ""
	if err := json.Unmarshal(respBody, &patched); err == nil {
		if n := len(patched.AddressBook.Items); n > 0 {
			remoteID = patched.AddressBook.Items[n-1].AddressBookAddress.String()
		}
	}
	return &CreateResult{RemoteID: remoteID}, nil
}

var orderIDRe = regexp.MustCompile(`/salesOrder/(\d+)`)

// CreateOrder creates the sales order transaction in the ERP and returns
// its assigned id.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*CreateResult, error) {
	if req.CustomerID == "" {
		return nil, fmt.Errorf("create order: customer id is required")
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("create order: at least one line is required")
	}

	lines := make([]map[string]any, 0, len(req.Lines))
	for _, l := range req.Lines {
		if l.ItemID == "" {
			return nil, fmt.Errorf("create order: line item id is required")
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("create order: line quantity must be positive")
		}
		line := map[string]any{
			"item":     map[string]string{"id": l.ItemID},
			"quantity": l.Quantity,
		}
		if l.Price > 0 {
			line["rate"] = l.Price
		}
		lines = append(lines, line)
	}

	body := map[string]any{
		"entity": map[string]string{"id": req.CustomerID},
		"item":   lines,
	}
	if req.ShipAddressID != "" {
		body["shipAddress"] = map[string]string{"id": req.ShipAddressID}
	}
	if req.BillAddressID != "" {
		body["billAddress"] = map[string]string{"id": req.BillAddressID}
	}
	if req.ShipDate != "" {
		// YYYY-MM-DD, drop any time component.
		body["shipDate"] = strings.SplitN(req.ShipDate, "T", 2)[0]
	}
	if req.Memo != "" {
		body["memo"] = req.Memo
	}

	remoteID, err := c.createRecord(ctx, "salesOrder", body, orderIDRe)
	if err != nil {
		return nil, err
	}
	return &CreateResult{RemoteID: remoteID}, nil
}

// createRecord POSTs a record body and parses the assigned id out of the
// Location header the ERP answers with.
func (c *Client) createRecord(ctx context.Context, record string, body map[string]any, idRe *regexp.Regexp) (string, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s request: %w", record, err)
	}
	url := fmt.Sprintf("%s%s/%s", c.BaseURL, recordPath, record)
	resp, err := c.send(ctx, http.MethodPost, url, encoded, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", responseError("create "+record, resp)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("create %s: no Location header in response", record)
	}
	m := idRe.FindStringSubmatch(location)
	if m == nil {
		return "", fmt.Errorf("create %s: could not parse record id from %q", record, location)
	}
	return m[1], nil
}

// fetchEntityID reads back a just-created record's display code.
func (c *Client) fetchEntityID(ctx context.Context, record, id string) (string, error) {
	url := fmt.Sprintf("%s%s/%s/%s", c.BaseURL, recordPath, record, id)
	resp, err := c.send(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", responseError("fetch "+record, resp)
	}
	var rec struct {
		EntityID string `json:"entityId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return "", fmt.Errorf("failed to decode %s record: %w", record, err)
	}
	return rec.EntityID, nil
}

func (c *Client) send(ctx context.Context, method, url string, body []byte, prefer string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	token, err := c.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get erp token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	return resp, nil
}

func responseError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s: erp returned status %d: %s", op, resp.StatusCode, truncate(body))
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
