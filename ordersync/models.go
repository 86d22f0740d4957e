// Package ordersync implements the offline-first persistence and sync core
// of the order-entry tool: a crash-durable SQLite store for every entity
// collection, a save-then-best-effort-propagate engine that pushes locally
// created records to the ERP and the shared mirror, and a bulk reconciler
// that rebuilds the local catalog from the ERP on demand.
//
// Every record carries a client-minted local id that never changes and is
// the only identifier used for cross-entity references inside the store.
// The ERP-assigned remote id arrives asynchronously, once propagation
// succeeds, and never changes after that.
package ordersync

import (
	"time"
)

// Customer is a buying account. Until RemoteID is set the customer is
// local-only and none of its contacts or addresses can be propagated.
type Customer struct {
	ID          string    `json:"id"`
	RemoteID    string    `json:"netsuite_id,omitempty"`
	EntityID    string    `json:"entityid"`
	CompanyName string    `json:"companyname"`
	Email       string    `json:"email,omitempty"`
	Partner     string    `json:"partner,omitempty"`
	PriceLevel  string    `json:"pricelevel,omitempty"`
	SyncedAt    time.Time `json:"synced_at,omitzero"`
	CreatedAt   time.Time `json:"created_at"`
}

// Contact belongs to a customer, referenced by the customer's local id.
type Contact struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	RemoteID   string    `json:"netsuite_id,omitempty"`
	EntityID   string    `json:"entityid"`
	FirstName  string    `json:"firstname,omitempty"`
	LastName   string    `json:"lastname,omitempty"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Title      string    `json:"title,omitempty"`
	SyncedAt   time.Time `json:"synced_at,omitzero"`
	CreatedAt  time.Time `json:"created_at"`
}

// Address type tags.
const (
	AddressShip = "ship"
	AddressBill = "bill"
)

// Address belongs to a customer, referenced by the customer's local id.
// The ERP does not always expose ids for address sub-records, so SyncedAt
// rather than RemoteID is the authoritative "already pushed" marker.
type Address struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	RemoteID   string    `json:"netsuite_id,omitempty"`
	Addr1      string    `json:"addr1,omitempty"`
	Addr2      string    `json:"addr2,omitempty"`
	City       string    `json:"city,omitempty"`
	State      string    `json:"state,omitempty"`
	Zip        string    `json:"zip,omitempty"`
	Country    string    `json:"country,omitempty"`
	Addressee  string    `json:"addressee,omitempty"`
	AddrText   string    `json:"addrtext,omitempty"`
	Type       string    `json:"type,omitempty"` // "ship", "bill" or empty
	SyncedAt   time.Time `json:"synced_at,omitzero"`
	CreatedAt  time.Time `json:"created_at"`
}

// PriceBreak is one volume-discount step: the unit price that applies from
// Quantity units up.
type PriceBreak struct {
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Item is catalog data, always sourced from the ERP and never created
// locally. PriceBreaks maps a price-tier key to breakpoints sorted
// ascending by quantity.
type Item struct {
	ID                string                  `json:"id"`
	RemoteID          string                  `json:"netsuite_id,omitempty"`
	SKU               string                  `json:"itemid"`
	DisplayName       string                  `json:"displayname"`
	Color             string                  `json:"color,omitempty"`
	PriceBreaks       map[string][]PriceBreak `json:"price_breaks,omitempty"`
	QuantityAvailable int                     `json:"quantityavailable,omitempty"`
	SyncedAt          time.Time               `json:"synced_at,omitzero"`
	CreatedAt         time.Time               `json:"created_at"`
}

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	// OrderDraft is created locally, editable, never auto-propagated.
	OrderDraft OrderStatus = "draft"
	// OrderSubmitted is finalized client-side; local durability is the
	// authority, the mirror push is best effort.
	OrderSubmitted OrderStatus = "submitted"
	// OrderSynced means the mirror acknowledged the order.
	OrderSynced OrderStatus = "synced"
	// OrderPushed means an explicit user action created the sales
	// transaction in the ERP. There is no rollback from here.
	OrderPushed OrderStatus = "pushed"
)

// Valid reports whether s is a known status value.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderDraft, OrderSubmitted, OrderSynced, OrderPushed:
		return true
	}
	return false
}

// OrderLine is one line of an order. ItemID is the item's local id.
type OrderLine struct {
	ItemID   string  `json:"item_id"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
	Notes    string  `json:"notes,omitempty"`
	Color    string  `json:"color,omitempty"`
	Size     string  `json:"size,omitempty"`
}

// CardSnapshot is the payment card captured with an order. The CVV is
// never persisted.
type CardSnapshot struct {
	Number string `json:"number,omitempty"`
	Expiry string `json:"expiry,omitempty"` // MM/YY
	Name   string `json:"name,omitempty"`
}

// Order references its customer, contact and addresses by local id only,
// since remote ids may not exist when the order is drafted.
type Order struct {
	ID            string        `json:"id"`
	CustomerID    string        `json:"customer_id"`
	ContactID     string        `json:"contact_id,omitempty"`
	ShipAddressID string        `json:"ship_address_id,omitempty"`
	BillAddressID string        `json:"bill_address_id,omitempty"`
	Lines         []OrderLine   `json:"items"`
	ShipDate      string        `json:"ship_date,omitempty"` // YYYY-MM-DD
	Notes         string        `json:"notes,omitempty"`
	Card          *CardSnapshot `json:"credit_card,omitempty"`
	Status        OrderStatus   `json:"status"`
	RemoteID      string        `json:"netsuite_id,omitempty"` // ERP sales order id
	CreatedBy     string        `json:"created_by,omitempty"`
	SyncedAt      time.Time     `json:"synced_at,omitzero"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Lead is free-form sales lead capture. Leads have no customer linkage and
// are only mirrored, never propagated to the ERP.
type Lead struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Company   string    `json:"company,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Source    string    `json:"source,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	SyncedAt  time.Time `json:"synced_at,omitzero"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLocalID mints a local id for an entity collection, e.g.
// NewLocalID("customer") -> "customer-5f1c...". Local ids are permanent.
func NewLocalID(kind string) string {
	return kind + "-" + newUUID()
}
