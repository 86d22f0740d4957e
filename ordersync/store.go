package ordersync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the local durable store: one SQLite table per entity collection
// plus a small metadata table. Once a Put returns, the record is considered
// safe regardless of what happens to any remote push afterwards.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the store at path. Use ":memory:" for tests.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore initializes the collection tables on an existing connection.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id           TEXT PRIMARY KEY,
			netsuite_id  TEXT NOT NULL DEFAULT '',
			entityid     TEXT NOT NULL DEFAULT '',
			companyname  TEXT NOT NULL DEFAULT '',
			email        TEXT NOT NULL DEFAULT '',
			partner      TEXT NOT NULL DEFAULT '',
			pricelevel   TEXT NOT NULL DEFAULT '',
			synced_at    TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_entityid ON customers(entityid)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_companyname ON customers(companyname)`,

		`CREATE TABLE IF NOT EXISTS contacts (
			id           TEXT PRIMARY KEY,
			customer_id  TEXT NOT NULL,
			netsuite_id  TEXT NOT NULL DEFAULT '',
			entityid     TEXT NOT NULL DEFAULT '',
			firstname    TEXT NOT NULL DEFAULT '',
			lastname     TEXT NOT NULL DEFAULT '',
			email        TEXT NOT NULL DEFAULT '',
			phone        TEXT NOT NULL DEFAULT '',
			title        TEXT NOT NULL DEFAULT '',
			synced_at    TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_customer ON contacts(customer_id)`,

		`CREATE TABLE IF NOT EXISTS addresses (
			id           TEXT PRIMARY KEY,
			customer_id  TEXT NOT NULL,
			netsuite_id  TEXT NOT NULL DEFAULT '',
			addr1        TEXT NOT NULL DEFAULT '',
			addr2        TEXT NOT NULL DEFAULT '',
			city         TEXT NOT NULL DEFAULT '',
			state        TEXT NOT NULL DEFAULT '',
			zip          TEXT NOT NULL DEFAULT '',
			country      TEXT NOT NULL DEFAULT '',
			addressee    TEXT NOT NULL DEFAULT '',
			addrtext     TEXT NOT NULL DEFAULT '',
			type         TEXT NOT NULL DEFAULT '',
			synced_at    TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_addresses_customer ON addresses(customer_id)`,

		`CREATE TABLE IF NOT EXISTS items (
			id            TEXT PRIMARY KEY,
			netsuite_id   TEXT NOT NULL DEFAULT '',
			itemid        TEXT NOT NULL DEFAULT '',
			displayname   TEXT NOT NULL DEFAULT '',
			color         TEXT NOT NULL DEFAULT '',
			price_breaks  TEXT NOT NULL DEFAULT '',
			qty_available INTEGER NOT NULL DEFAULT 0,
			synced_at     TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_itemid ON items(itemid)`,
		`CREATE INDEX IF NOT EXISTS idx_items_displayname ON items(displayname)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id              TEXT PRIMARY KEY,
			customer_id     TEXT NOT NULL,
			contact_id      TEXT NOT NULL DEFAULT '',
			ship_address_id TEXT NOT NULL DEFAULT '',
			bill_address_id TEXT NOT NULL DEFAULT '',
			lines           TEXT NOT NULL DEFAULT '[]',
			ship_date       TEXT NOT NULL DEFAULT '',
			notes           TEXT NOT NULL DEFAULT '',
			credit_card     TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL DEFAULT 'draft',
			netsuite_id     TEXT NOT NULL DEFAULT '',
			created_by      TEXT NOT NULL DEFAULT '',
			synced_at       TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id)`,

		`CREATE TABLE IF NOT EXISTS leads (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL DEFAULT '',
			company     TEXT NOT NULL DEFAULT '',
			email       TEXT NOT NULL DEFAULT '',
			phone       TEXT NOT NULL DEFAULT '',
			source      TEXT NOT NULL DEFAULT '',
			notes       TEXT NOT NULL DEFAULT '',
			created_by  TEXT NOT NULL DEFAULT '',
			synced_at   TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_created ON leads(created_at)`,

		`CREATE TABLE IF NOT EXISTS metadata (
			key    TEXT PRIMARY KEY,
			value  TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return nil, fmt.Errorf("failed to create collection table: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Timestamps are stored as RFC 3339 text; the zero time maps to ''.

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- Customers ---

const customerCols = `id, netsuite_id, entityid, companyname, email, partner, pricelevel, synced_at, created_at`

func scanCustomer(row interface{ Scan(...any) error }) (Customer, error) {
	var c Customer
	var synced, created string
	err := row.Scan(&c.ID, &c.RemoteID, &c.EntityID, &c.CompanyName, &c.Email,
		&c.Partner, &c.PriceLevel, &synced, &created)
	if err != nil {
		return Customer{}, err
	}
	c.SyncedAt = parseTime(synced)
	c.CreatedAt = parseTime(created)
	return c, nil
}

func putCustomerTx(ctx context.Context, tx *sql.Tx, c *Customer) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO customers (`+customerCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.RemoteID, c.EntityID, c.CompanyName, c.Email, c.Partner,
		c.PriceLevel, fmtTime(c.SyncedAt), fmtTime(c.CreatedAt))
	return err
}

// PutCustomer inserts or overwrites a customer by local id.
func (s *Store) PutCustomer(ctx context.Context, c *Customer) error {
	return s.inTx(ctx, func(tx *sql.Tx) error { return putCustomerTx(ctx, tx, c) })
}

// PutCustomers writes a batch of customers in one transaction.
func (s *Store) PutCustomers(ctx context.Context, customers []Customer) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for i := range customers {
			if err := putCustomerTx(ctx, tx, &customers[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Customer returns the customer with the given local id, or nil.
func (s *Store) Customer(ctx context.Context, id string) (*Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerCols+` FROM customers WHERE id = ?`, id)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query customer: %w", err)
	}
	return &c, nil
}

// Customers returns every customer.
func (s *Store) Customers(ctx context.Context) ([]Customer, error) {
	return s.queryCustomers(ctx, `SELECT `+customerCols+` FROM customers ORDER BY companyname`)
}

// SearchCustomers returns customers whose company name, display code or
// email contains q, case-insensitively.
func (s *Store) SearchCustomers(ctx context.Context, q string) ([]Customer, error) {
	like := "%" + strings.ToLower(q) + "%"
	return s.queryCustomers(ctx, `
		SELECT `+customerCols+` FROM customers
		WHERE lower(companyname) LIKE ? OR lower(entityid) LIKE ? OR lower(email) LIKE ?
		ORDER BY companyname
	`, like, like, like)
}

// UnsyncedCustomers returns customers lacking a remote id.
func (s *Store) UnsyncedCustomers(ctx context.Context) ([]Customer, error) {
	return s.queryCustomers(ctx, `SELECT `+customerCols+` FROM customers WHERE netsuite_id = ''`)
}

func (s *Store) queryCustomers(ctx context.Context, q string, args ...any) ([]Customer, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Contacts ---

const contactCols = `id, customer_id, netsuite_id, entityid, firstname, lastname, email, phone, title, synced_at, created_at`

func scanContact(row interface{ Scan(...any) error }) (Contact, error) {
	var c Contact
	var synced, created string
	err := row.Scan(&c.ID, &c.CustomerID, &c.RemoteID, &c.EntityID, &c.FirstName,
		&c.LastName, &c.Email, &c.Phone, &c.Title, &synced, &created)
	if err != nil {
		return Contact{}, err
	}
	c.SyncedAt = parseTime(synced)
	c.CreatedAt = parseTime(created)
	return c, nil
}

func putContactTx(ctx context.Context, tx *sql.Tx, c *Contact) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO contacts (`+contactCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.CustomerID, c.RemoteID, c.EntityID, c.FirstName, c.LastName,
		c.Email, c.Phone, c.Title, fmtTime(c.SyncedAt), fmtTime(c.CreatedAt))
	return err
}

// PutContact inserts or overwrites a contact by local id.
func (s *Store) PutContact(ctx context.Context, c *Contact) error {
	return s.inTx(ctx, func(tx *sql.Tx) error { return putContactTx(ctx, tx, c) })
}

// PutContacts writes a batch of contacts in one transaction.
func (s *Store) PutContacts(ctx context.Context, contacts []Contact) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for i := range contacts {
			if err := putContactTx(ctx, tx, &contacts[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Contact returns the contact with the given local id, or nil.
func (s *Store) Contact(ctx context.Context, id string) (*Contact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contactCols+` FROM contacts WHERE id = ?`, id)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query contact: %w", err)
	}
	return &c, nil
}

// ContactsForCustomer returns all contacts owned by the customer local id.
func (s *Store) ContactsForCustomer(ctx context.Context, customerID string) ([]Contact, error) {
	return s.queryContacts(ctx, `SELECT `+contactCols+` FROM contacts WHERE customer_id = ?`, customerID)
}

// UnsyncedContacts returns contacts lacking a remote id whose owning
// customer already has one, i.e. contacts that are eligible for
// propagation right now.
func (s *Store) UnsyncedContacts(ctx context.Context) ([]Contact, error) {
	cols := "c.id, c.customer_id, c.netsuite_id, c.entityid, c.firstname, c.lastname, c.email, c.phone, c.title, c.synced_at, c.created_at"
	return s.queryContacts(ctx, `
		SELECT `+cols+` FROM contacts c
		JOIN customers cu ON cu.id = c.customer_id
		WHERE c.netsuite_id = '' AND cu.netsuite_id != ''
	`)
}

// UnsyncedContactsForCustomer returns the customer's contacts lacking a
// remote id regardless of the customer's own sync state.
func (s *Store) UnsyncedContactsForCustomer(ctx context.Context, customerID string) ([]Contact, error) {
	return s.queryContacts(ctx, `
		SELECT `+contactCols+` FROM contacts WHERE customer_id = ? AND netsuite_id = ''
	`, customerID)
}

func (s *Store) queryContacts(ctx context.Context, q string, args ...any) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()
	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Addresses ---

const addressCols = `id, customer_id, netsuite_id, addr1, addr2, city, state, zip, country, addressee, addrtext, type, synced_at, created_at`

func scanAddress(row interface{ Scan(...any) error }) (Address, error) {
	var a Address
	var synced, created string
	err := row.Scan(&a.ID, &a.CustomerID, &a.RemoteID, &a.Addr1, &a.Addr2, &a.City,
		&a.State, &a.Zip, &a.Country, &a.Addressee, &a.AddrText, &a.Type, &synced, &created)
	if err != nil {
		return Address{}, err
	}
	a.SyncedAt = parseTime(synced)
	a.CreatedAt = parseTime(created)
	return a, nil
}

func putAddressTx(ctx context.Context, tx *sql.Tx, a *Address) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO addresses (`+addressCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.CustomerID, a.RemoteID, a.Addr1, a.Addr2, a.City, a.State, a.Zip,
		a.Country, a.Addressee, a.AddrText, a.Type, fmtTime(a.SyncedAt), fmtTime(a.CreatedAt))
	return err
}

// PutAddress inserts or overwrites an address by local id.
func (s *Store) PutAddress(ctx context.Context, a *Address) error {
	return s.inTx(ctx, func(tx *sql.Tx) error { return putAddressTx(ctx, tx, a) })
}

// PutAddresses writes a batch of addresses in one transaction.
func (s *Store) PutAddresses(ctx context.Context, addresses []Address) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for i := range addresses {
			if err := putAddressTx(ctx, tx, &addresses[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Address returns the address with the given local id, or nil.
func (s *Store) Address(ctx context.Context, id string) (*Address, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+addressCols+` FROM addresses WHERE id = ?`, id)
	a, err := scanAddress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query address: %w", err)
	}
	return &a, nil
}

// AddressesForCustomer returns all addresses owned by the customer local id.
func (s *Store) AddressesForCustomer(ctx context.Context, customerID string) ([]Address, error) {
	return s.queryAddresses(ctx, `SELECT `+addressCols+` FROM addresses WHERE customer_id = ?`, customerID)
}

// UnsyncedAddresses returns never-pushed addresses whose owning customer
// already has a remote id. An address counts as pushed once synced_at is
// stamped, because the ERP may not hand back ids for address sub-records.
func (s *Store) UnsyncedAddresses(ctx context.Context) ([]Address, error) {
	cols := "a.id, a.customer_id, a.netsuite_id, a.addr1, a.addr2, a.city, a.state, a.zip, a.country, a.addressee, a.addrtext, a.type, a.synced_at, a.created_at"
	return s.queryAddresses(ctx, `
		SELECT `+cols+` FROM addresses a
		JOIN customers cu ON cu.id = a.customer_id
		WHERE a.synced_at = '' AND cu.netsuite_id != ''
	`)
}

// UnsyncedAddressesForCustomer returns the customer's never-pushed
// addresses regardless of the customer's own sync state.
func (s *Store) UnsyncedAddressesForCustomer(ctx context.Context, customerID string) ([]Address, error) {
	return s.queryAddresses(ctx, `
		SELECT `+addressCols+` FROM addresses WHERE customer_id = ? AND synced_at = ''
	`, customerID)
}

func (s *Store) queryAddresses(ctx context.Context, q string, args ...any) ([]Address, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query addresses: %w", err)
	}
	defer rows.Close()
	var out []Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ClearCustomersContactsAddresses wipes the three collections in a single
// transaction. Only the bulk reconciler calls this, immediately before a
// full catalog replace. Local-only records are lost too; the caller must
// have warned the user.
func (s *Store) ClearCustomersContactsAddresses(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"customers", "contacts", "addresses"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// --- Items ---

const itemCols = `id, netsuite_id, itemid, displayname, color, price_breaks, qty_available, synced_at, created_at`

func scanItem(row interface{ Scan(...any) error }) (Item, error) {
	var it Item
	var breaks, synced, created string
	err := row.Scan(&it.ID, &it.RemoteID, &it.SKU, &it.DisplayName, &it.Color,
		&breaks, &it.QuantityAvailable, &synced, &created)
	if err != nil {
		return Item{}, err
	}
	if breaks != "" {
		if err := json.Unmarshal([]byte(breaks), &it.PriceBreaks); err != nil {
			return Item{}, fmt.Errorf("failed to decode price breaks for %s: %w", it.ID, err)
		}
	}
	it.SyncedAt = parseTime(synced)
	it.CreatedAt = parseTime(created)
	return it, nil
}

func putItemTx(ctx context.Context, tx *sql.Tx, it *Item) error {
	breaks := ""
	if len(it.PriceBreaks) > 0 {
		b, err := json.Marshal(it.PriceBreaks)
		if err != nil {
			return fmt.Errorf("failed to encode price breaks for %s: %w", it.ID, err)
		}
		breaks = string(b)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO items (`+itemCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, it.ID, it.RemoteID, it.SKU, it.DisplayName, it.Color, breaks,
		it.QuantityAvailable, fmtTime(it.SyncedAt), fmtTime(it.CreatedAt))
	return err
}

// PutItem inserts or overwrites an item by local id.
func (s *Store) PutItem(ctx context.Context, it *Item) error {
	return s.inTx(ctx, func(tx *sql.Tx) error { return putItemTx(ctx, tx, it) })
}

// PutItems writes a batch of items in one transaction.
func (s *Store) PutItems(ctx context.Context, items []Item) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for i := range items {
			if err := putItemTx(ctx, tx, &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Item returns the item with the given local id, or nil.
func (s *Store) Item(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemCols+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item: %w", err)
	}
	return &it, nil
}

// ItemBySKU returns the item with the given SKU code, or nil.
func (s *Store) ItemBySKU(ctx context.Context, sku string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemCols+` FROM items WHERE itemid = ? LIMIT 1`, sku)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item by sku: %w", err)
	}
	return &it, nil
}

// Items returns the full catalog.
func (s *Store) Items(ctx context.Context) ([]Item, error) {
	return s.queryItems(ctx, `SELECT `+itemCols+` FROM items ORDER BY itemid`)
}

// SearchItems returns items whose SKU or display name contains q,
// case-insensitively.
func (s *Store) SearchItems(ctx context.Context, q string) ([]Item, error) {
	like := "%" + strings.ToLower(q) + "%"
	return s.queryItems(ctx, `
		SELECT `+itemCols+` FROM items
		WHERE lower(itemid) LIKE ? OR lower(displayname) LIKE ?
		ORDER BY itemid
	`, like, like)
}

func (s *Store) queryItems(ctx context.Context, q string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// --- Orders ---

const orderCols = `id, customer_id, contact_id, ship_address_id, bill_address_id, lines, ship_date, notes, credit_card, status, netsuite_id, created_by, synced_at, created_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var o Order
	var lines, card, status, synced, created string
	err := row.Scan(&o.ID, &o.CustomerID, &o.ContactID, &o.ShipAddressID, &o.BillAddressID,
		&lines, &o.ShipDate, &o.Notes, &card, &status, &o.RemoteID, &o.CreatedBy, &synced, &created)
	if err != nil {
		return Order{}, err
	}
	if lines != "" {
		if err := json.Unmarshal([]byte(lines), &o.Lines); err != nil {
			return Order{}, fmt.Errorf("failed to decode order lines for %s: %w", o.ID, err)
		}
	}
	if card != "" {
		o.Card = &CardSnapshot{}
		if err := json.Unmarshal([]byte(card), o.Card); err != nil {
			return Order{}, fmt.Errorf("failed to decode card snapshot for %s: %w", o.ID, err)
		}
	}
	o.Status = OrderStatus(status)
	o.SyncedAt = parseTime(synced)
	o.CreatedAt = parseTime(created)
	return o, nil
}

func putOrderTx(ctx context.Context, tx *sql.Tx, o *Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("failed to encode order lines for %s: %w", o.ID, err)
	}
	card := ""
	if o.Card != nil {
		b, err := json.Marshal(o.Card)
		if err != nil {
			return fmt.Errorf("failed to encode card snapshot for %s: %w", o.ID, err)
		}
		card = string(b)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders (`+orderCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.CustomerID, o.ContactID, o.ShipAddressID, o.BillAddressID, string(lines),
		o.ShipDate, o.Notes, card, string(o.Status), o.RemoteID, o.CreatedBy,
		fmtTime(o.SyncedAt), fmtTime(o.CreatedAt))
	return err
}

// PutOrder inserts or overwrites an order by local id.
func (s *Store) PutOrder(ctx context.Context, o *Order) error {
	return s.inTx(ctx, func(tx *sql.Tx) error { return putOrderTx(ctx, tx, o) })
}

// Order returns the order with the given local id, or nil.
func (s *Store) Order(ctx context.Context, id string) (*Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return &o, nil
}

// Orders returns every order.
func (s *Store) Orders(ctx context.Context) ([]Order, error) {
	return s.queryOrders(ctx, `SELECT `+orderCols+` FROM orders ORDER BY created_at DESC`)
}

// OrdersByStatus returns orders in the given lifecycle state.
func (s *Store) OrdersByStatus(ctx context.Context, st OrderStatus) ([]Order, error) {
	return s.queryOrders(ctx, `SELECT `+orderCols+` FROM orders WHERE status = ?`, string(st))
}

// DeleteOrder removes an order by local id.
func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return nil
}

func (s *Store) queryOrders(ctx context.Context, q string, args ...any) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// --- Leads ---

const leadCols = `id, name, company, email, phone, source, notes, created_by, synced_at, created_at`

func scanLead(row interface{ Scan(...any) error }) (Lead, error) {
	var l Lead
	var synced, created string
	err := row.Scan(&l.ID, &l.Name, &l.Company, &l.Email, &l.Phone, &l.Source,
		&l.Notes, &l.CreatedBy, &synced, &created)
	if err != nil {
		return Lead{}, err
	}
	l.SyncedAt = parseTime(synced)
	l.CreatedAt = parseTime(created)
	return l, nil
}

// PutLead inserts or overwrites a lead by local id.
func (s *Store) PutLead(ctx context.Context, l *Lead) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO leads (`+leadCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, l.ID, l.Name, l.Company, l.Email, l.Phone, l.Source, l.Notes,
			l.CreatedBy, fmtTime(l.SyncedAt), fmtTime(l.CreatedAt))
		return err
	})
}

// Leads returns every lead, newest first.
func (s *Store) Leads(ctx context.Context) ([]Lead, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+leadCols+` FROM leads ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()
	var out []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLead removes a lead by local id.
func (s *Store) DeleteLead(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete lead: %w", err)
	}
	return nil
}

// CountLocalOnly counts records that have never been propagated,
// regardless of whether they are currently eligible for a sweep.
func (s *Store) CountLocalOnly(ctx context.Context) (UnsyncedCounts, error) {
	var counts UnsyncedCounts
	queries := []struct {
		dst *int
		q   string
	}{
		{&counts.Customers, `SELECT COUNT(*) FROM customers WHERE netsuite_id = ''`},
		{&counts.Contacts, `SELECT COUNT(*) FROM contacts WHERE netsuite_id = ''`},
		{&counts.Addresses, `SELECT COUNT(*) FROM addresses WHERE synced_at = ''`},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.q).Scan(q.dst); err != nil {
			return UnsyncedCounts{}, fmt.Errorf("failed to count local-only records: %w", err)
		}
	}
	return counts, nil
}

// --- Metadata ---

const metaLastSyncTime = "lastSyncTime"

// LastSyncTime returns the completion time of the last full refresh, or
// the zero time if none has run.
func (s *Store) LastSyncTime(ctx context.Context) (time.Time, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, metaLastSyncTime).Scan(&v)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query metadata: %w", err)
	}
	return parseTime(v), nil
}

// SetLastSyncTime records the completion time of a full refresh.
func (s *Store) SetLastSyncTime(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)
	`, metaLastSyncTime, fmtTime(t))
	if err != nil {
		return fmt.Errorf("failed to set last sync time: %w", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
