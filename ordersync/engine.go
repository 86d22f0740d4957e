package ordersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/buffmasterbran/order-entry/netsuite"
)

func newUUID() string { return uuid.New().String() }

// ERP is the slice of the ERP gateway the sync core needs.
type ERP interface {
	Customers(ctx context.Context) ([]netsuite.Row, error)
	AllContacts(ctx context.Context) ([]netsuite.Row, error)
	AllAddresses(ctx context.Context) ([]netsuite.Row, error)
	Items(ctx context.Context) ([]netsuite.Row, error)
	CreateCustomer(ctx context.Context, req netsuite.CustomerRequest) (*netsuite.CreateResult, error)
	CreateContact(ctx context.Context, req netsuite.ContactRequest) (*netsuite.CreateResult, error)
	CreateAddress(ctx context.Context, req netsuite.AddressRequest) (*netsuite.CreateResult, error)
	CreateOrder(ctx context.Context, req netsuite.OrderRequest) (*netsuite.CreateResult, error)
}

// Mirror is the slice of the shared-mirror gateway the sync core needs.
// Every method is best effort from the engine's point of view: a mirror
// failure never blocks or fails a local save.
type Mirror interface {
	UpsertCustomer(ctx context.Context, c Customer) error
	UpsertCustomers(ctx context.Context, cs []Customer) error
	UpsertContact(ctx context.Context, c Contact) error
	UpsertContacts(ctx context.Context, cs []Contact) error
	UpsertAddress(ctx context.Context, a Address) error
	UpsertAddresses(ctx context.Context, as []Address) error
	UpsertItem(ctx context.Context, it Item) error
	UpsertItems(ctx context.Context, its []Item) error
	UpsertOrder(ctx context.Context, o Order) error
	UpsertLead(ctx context.Context, l Lead) error
	DeleteOrder(ctx context.Context, localID string) error
	DeleteLead(ctx context.Context, localID string) error
}

// Engine implements save-then-best-effort-propagate for every mutable
// entity type. A Save durably writes to the local store and then attempts
// remote propagation; the only error a Save can return is a local
// durability failure. Construct one Engine at process start and share it.
type Engine struct {
	store  *Store
	erp    ERP
	mirror Mirror
	logger *slog.Logger

	now func() time.Time
}

// NewEngine wires the engine to its store and gateways.
func NewEngine(store *Store, erp ERP, mirror Mirror, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, erp: erp, mirror: mirror, logger: logger, now: time.Now}
}

// Store exposes the underlying durable store for read paths.
func (e *Engine) Store() *Store { return e.store }

// discard records a background propagation failure without surfacing it.
// errNotReady skips are expected and logged at debug only.
func (e *Engine) discard(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, errNotReady) {
		e.logger.Debug("propagation deferred", "reason", err)
		return
	}
	var perr *PropagationError
	if errors.As(err, &perr) {
		e.logger.Warn("propagation failed; record stays local-only",
			"entity", perr.Entity, "id", perr.LocalID, "err", perr.Err)
		return
	}
	e.logger.Warn("propagation failed", "err", err)
}

// mirrorPush runs a mirror call and swallows its error. The record is
// already durable locally; the mirror catches up on a later sweep or the
// next full refresh.
func (e *Engine) mirrorPush(what, id string, fn func() error) {
	if err := fn(); err != nil {
		e.discard(propagationErr(what, id, fmt.Errorf("mirror push: %w", err)))
	}
}

// --- Customers ---

// SaveCustomer durably saves the customer, attempting ERP propagation
// first when it is still local-only. If the customer acquires a remote id
// here, its unsynced contacts and addresses are retried immediately.
func (e *Engine) SaveCustomer(ctx context.Context, c *Customer) error {
	hadRemoteID := c.RemoteID != ""
	if !hadRemoteID {
		e.discard(e.propagateCustomer(ctx, c))
	}
	if err := e.store.PutCustomer(ctx, c); err != nil {
		return fmt.Errorf("failed to save customer locally: %w", err)
	}
	if !hadRemoteID && c.RemoteID != "" {
		e.retryDependentsForCustomer(ctx, c.ID)
	}
	e.mirrorPush("customer", c.ID, func() error { return e.mirror.UpsertCustomer(ctx, *c) })
	return nil
}

// propagateCustomer attempts the ERP create and merges the assigned id and
// canonical display code into c. c is not persisted here.
func (e *Engine) propagateCustomer(ctx context.Context, c *Customer) error {
	res, err := e.erp.CreateCustomer(ctx, netsuite.CustomerRequest{
		CompanyName: c.CompanyName,
		Email:       c.Email,
		Partner:     c.Partner,
		PriceLevel:  c.PriceLevel,
	})
	if err != nil {
		return propagationErr("customer", c.ID, err)
	}
	c.RemoteID = res.RemoteID
	if res.EntityID != "" {
		c.EntityID = res.EntityID
	}
	c.SyncedAt = e.now()
	return nil
}

// retryDependentsForCustomer re-runs propagation for the customer's
// contacts and addresses that are still local-only. Called right after the
// customer gains a remote id, so records created offline catch up without
// waiting for a reconnect sweep. Failures are logged and left for later.
func (e *Engine) retryDependentsForCustomer(ctx context.Context, customerID string) {
	contacts, err := e.store.UnsyncedContactsForCustomer(ctx, customerID)
	if err != nil {
		e.logger.Warn("failed to list unsynced contacts for dependent retry", "customer", customerID, "err", err)
	}
	for i := range contacts {
		ct := &contacts[i]
		if err := e.propagateContact(ctx, ct); err != nil {
			e.discard(err)
			continue
		}
		if err := e.store.PutContact(ctx, ct); err != nil {
			e.logger.Error("failed to persist contact after propagation", "contact", ct.ID, "err", err)
			continue
		}
		e.mirrorPush("contact", ct.ID, func() error { return e.mirror.UpsertContact(ctx, *ct) })
	}

	addresses, err := e.store.UnsyncedAddressesForCustomer(ctx, customerID)
	if err != nil {
		e.logger.Warn("failed to list unsynced addresses for dependent retry", "customer", customerID, "err", err)
	}
	for i := range addresses {
		a := &addresses[i]
		if err := e.propagateAddress(ctx, a); err != nil {
			e.discard(err)
			continue
		}
		if err := e.store.PutAddress(ctx, a); err != nil {
			e.logger.Error("failed to persist address after propagation", "address", a.ID, "err", err)
			continue
		}
		e.mirrorPush("address", a.ID, func() error { return e.mirror.UpsertAddress(ctx, *a) })
	}
}

// --- Contacts ---

// SaveContact durably saves the contact. Propagation is attempted only
// when the owning customer already has a remote id; otherwise the contact
// stays local-only until that happens.
func (e *Engine) SaveContact(ctx context.Context, c *Contact) error {
	if c.RemoteID == "" {
		e.discard(e.propagateContact(ctx, c))
	}
	if err := e.store.PutContact(ctx, c); err != nil {
		return fmt.Errorf("failed to save contact locally: %w", err)
	}
	e.mirrorPush("contact", c.ID, func() error { return e.mirror.UpsertContact(ctx, *c) })
	return nil
}

func (e *Engine) propagateContact(ctx context.Context, c *Contact) error {
	customer, err := e.store.Customer(ctx, c.CustomerID)
	if err != nil {
		return propagationErr("contact", c.ID, err)
	}
	if customer == nil || customer.RemoteID == "" {
		return fmt.Errorf("contact %s: customer %s has no remote id: %w", c.ID, c.CustomerID, errNotReady)
	}
	res, err := e.erp.CreateContact(ctx, netsuite.ContactRequest{
		CustomerID: customer.RemoteID,
		FirstName:  c.FirstName,
		LastName:   c.LastName,
		Email:      c.Email,
		Phone:      c.Phone,
		Title:      c.Title,
	})
	if err != nil {
		return propagationErr("contact", c.ID, err)
	}
	c.RemoteID = res.RemoteID
	if res.EntityID != "" {
		c.EntityID = res.EntityID
	}
	c.SyncedAt = e.now()
	return nil
}

// --- Addresses ---

// SaveAddress durably saves the address, with the same customer-gated
// propagation as SaveContact.
func (e *Engine) SaveAddress(ctx context.Context, a *Address) error {
	if a.SyncedAt.IsZero() {
		e.discard(e.propagateAddress(ctx, a))
	}
	if err := e.store.PutAddress(ctx, a); err != nil {
		return fmt.Errorf("failed to save address locally: %w", err)
	}
	e.mirrorPush("address", a.ID, func() error { return e.mirror.UpsertAddress(ctx, *a) })
	return nil
}

func (e *Engine) propagateAddress(ctx context.Context, a *Address) error {
	customer, err := e.store.Customer(ctx, a.CustomerID)
	if err != nil {
		return propagationErr("address", a.ID, err)
	}
	if customer == nil || customer.RemoteID == "" {
		return fmt.Errorf("address %s: customer %s has no remote id: %w", a.ID, a.CustomerID, errNotReady)
	}
	label := ""
	switch a.Type {
	case AddressShip:
		label = "Shipping"
	case AddressBill:
		label = "Billing"
	}
	res, err := e.erp.CreateAddress(ctx, netsuite.AddressRequest{
		CustomerID:      customer.RemoteID,
		Addr1:           a.Addr1,
		Addr2:           a.Addr2,
		City:            a.City,
		State:           a.State,
		Zip:             a.Zip,
		Country:         a.Country,
		Addressee:       a.Addressee,
		Label:           label,
		DefaultShipping: a.Type == AddressShip,
		DefaultBilling:  a.Type == AddressBill,
	})
	if err != nil {
		return propagationErr("address", a.ID, err)
	}
	// The ERP does not always return ids for address-book entries; the
	// synced_at stamp is what marks the address as pushed either way.
	if res.RemoteID != "" {
		a.RemoteID = res.RemoteID
	}
	a.SyncedAt = e.now()
	return nil
}

// --- Orders ---

// SaveOrder durably saves the order, then makes a best-effort mirror push.
// A submitted order that the mirror acknowledges is promoted to synced.
// Orders are never auto-propagated to the ERP; see PushOrder.
func (e *Engine) SaveOrder(ctx context.Context, o *Order) error {
	if !o.Status.Valid() {
		return fmt.Errorf("invalid order status %q", o.Status)
	}
	if err := e.store.PutOrder(ctx, o); err != nil {
		return fmt.Errorf("failed to save order locally: %w", err)
	}

	if err := e.mirror.UpsertOrder(ctx, *o); err != nil {
		e.discard(propagationErr("order", o.ID, fmt.Errorf("mirror push: %w", err)))
		return nil
	}
	if o.Status == OrderSubmitted {
		o.Status = OrderSynced
		if err := e.store.PutOrder(ctx, o); err != nil {
			// The mirror has the order; the local status catches up on the
			// next save or retry sweep.
			e.logger.Error("mirror acknowledged order but local status update failed", "order", o.ID, "err", err)
			o.Status = OrderSubmitted
		}
	}
	return nil
}

// DeleteOrder removes the order locally and best-effort from the mirror.
func (e *Engine) DeleteOrder(ctx context.Context, id string) error {
	if err := e.store.DeleteOrder(ctx, id); err != nil {
		return err
	}
	e.mirrorPush("order", id, func() error { return e.mirror.DeleteOrder(ctx, id) })
	return nil
}

// --- Items ---

// SaveItem stores a catalog item and best-effort mirrors it. Items are
// remote-sourced; this exists for the reconciler and tests, not for users
// minting items.
func (e *Engine) SaveItem(ctx context.Context, it *Item) error {
	if err := e.store.PutItem(ctx, it); err != nil {
		return fmt.Errorf("failed to save item locally: %w", err)
	}
	e.mirrorPush("item", it.ID, func() error { return e.mirror.UpsertItem(ctx, *it) })
	return nil
}

// SaveItems stores a catalog batch in one transaction and best-effort
// mirrors the batch.
func (e *Engine) SaveItems(ctx context.Context, items []Item) error {
	if err := e.store.PutItems(ctx, items); err != nil {
		return fmt.Errorf("failed to save items locally: %w", err)
	}
	e.mirrorPush("items", fmt.Sprintf("%d records", len(items)), func() error {
		return e.mirror.UpsertItems(ctx, items)
	})
	return nil
}

// --- Leads ---

// SaveLead durably saves the lead and best-effort mirrors it. Leads never
// touch the ERP.
func (e *Engine) SaveLead(ctx context.Context, l *Lead) error {
	if err := e.store.PutLead(ctx, l); err != nil {
		return fmt.Errorf("failed to save lead locally: %w", err)
	}
	e.mirrorPush("lead", l.ID, func() error { return e.mirror.UpsertLead(ctx, *l) })
	return nil
}

// DeleteLead removes the lead locally and best-effort from the mirror.
func (e *Engine) DeleteLead(ctx context.Context, id string) error {
	if err := e.store.DeleteLead(ctx, id); err != nil {
		return err
	}
	e.mirrorPush("lead", id, func() error { return e.mirror.DeleteLead(ctx, id) })
	return nil
}

// --- Status ---

// UnsyncedCounts reports how many records are still local-only, per
// collection. The reconciler's destructive-clear warning is driven by
// these numbers.
type UnsyncedCounts struct {
	Customers int
	Contacts  int
	Addresses int
}

// Total sums the per-collection counts.
func (u UnsyncedCounts) Total() int { return u.Customers + u.Contacts + u.Addresses }

// CountUnsynced returns the current local-only record counts. Unlike the
// sweep queries these do not require the owning customer to be synced: a
// contact whose customer is itself local-only is still data the
// reconciler's clear would destroy.
func (e *Engine) CountUnsynced(ctx context.Context) (UnsyncedCounts, error) {
	return e.store.CountLocalOnly(ctx)
}
