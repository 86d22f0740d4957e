package ordersync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buffmasterbran/order-entry/netsuite"
)

var errRemoteDown = fmt.Errorf("remote unavailable")

// fakeERP is an in-memory ERP with per-operation fail switches. Catalog
// queries serve canned rows; creates assign sequential ids.
type fakeERP struct {
	mu sync.Mutex

	customerRows []netsuite.Row
	contactRows  []netsuite.Row
	addressRows  []netsuite.Row
	itemRows     []netsuite.Row

	failQueries bool
	failCreates bool
	// blankAddressIDs makes CreateAddress return no id, like ERP accounts
	// that do not echo address-book entry ids back.
	blankAddressIDs bool

	nextID           int
	createdCustomers []netsuite.CustomerRequest
	createdContacts  []netsuite.ContactRequest
	createdAddresses []netsuite.AddressRequest
	createdOrders    []netsuite.OrderRequest
}

func (f *fakeERP) rows(src []netsuite.Row) ([]netsuite.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failQueries {
		return nil, errRemoteDown
	}
	return src, nil
}

func (f *fakeERP) Customers(ctx context.Context) ([]netsuite.Row, error) {
	return f.rows(f.customerRows)
}

func (f *fakeERP) AllContacts(ctx context.Context) ([]netsuite.Row, error) {
	return f.rows(f.contactRows)
}

func (f *fakeERP) AllAddresses(ctx context.Context) ([]netsuite.Row, error) {
	return f.rows(f.addressRows)
}

func (f *fakeERP) Items(ctx context.Context) ([]netsuite.Row, error) {
	return f.rows(f.itemRows)
}

func (f *fakeERP) assignID() string {
	f.nextID++
	return strconv.Itoa(1000 + f.nextID)
}

func (f *fakeERP) CreateCustomer(ctx context.Context, req netsuite.CustomerRequest) (*netsuite.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates {
		return nil, errRemoteDown
	}
	f.createdCustomers = append(f.createdCustomers, req)
	id := f.assignID()
	return &netsuite.CreateResult{RemoteID: id, EntityID: "CUST" + id}, nil
}

func (f *fakeERP) CreateContact(ctx context.Context, req netsuite.ContactRequest) (*netsuite.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates {
		return nil, errRemoteDown
	}
	f.createdContacts = append(f.createdContacts, req)
	id := f.assignID()
	return &netsuite.CreateResult{RemoteID: id, EntityID: "CON" + id}, nil
}

func (f *fakeERP) CreateAddress(ctx context.Context, req netsuite.AddressRequest) (*netsuite.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates {
		return nil, errRemoteDown
	}
	f.createdAddresses = append(f.createdAddresses, req)
	if f.blankAddressIDs {
		return &netsuite.CreateResult{}, nil
	}
	return &netsuite.CreateResult{RemoteID: f.assignID()}, nil
}

func (f *fakeERP) CreateOrder(ctx context.Context, req netsuite.OrderRequest) (*netsuite.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates {
		return nil, errRemoteDown
	}
	f.createdOrders = append(f.createdOrders, req)
	return &netsuite.CreateResult{RemoteID: f.assignID()}, nil
}

// fakeMirror records upserts keyed by local id, with one fail switch.
type fakeMirror struct {
	mu   sync.Mutex
	fail bool

	customers map[string]Customer
	contacts  map[string]Contact
	addresses map[string]Address
	items     map[string]Item
	orders    map[string]Order
	leads     map[string]Lead

	deletedOrders []string
	deletedLeads  []string
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{
		customers: map[string]Customer{},
		contacts:  map[string]Contact{},
		addresses: map[string]Address{},
		items:     map[string]Item{},
		orders:    map[string]Order{},
		leads:     map[string]Lead{},
	}
}

func (f *fakeMirror) check() error {
	if f.fail {
		return errRemoteDown
	}
	return nil
}

func (f *fakeMirror) UpsertCustomer(ctx context.Context, c Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return err
	}
	f.customers[c.ID] = c
	return nil
}

func (f *fakeMirror) UpsertCustomers(ctx context.Context, cs []Customer) error {
	for _, c := range cs {
		if err := f.UpsertCustomer(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMirror) UpsertContact(ctx context.Context, c Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return err
	}
	f.contacts[c.ID] = c
	return nil
}

func (f *fakeMirror) UpsertContacts(ctx context.Context, cs []Contact) error {
	for _, c := range cs {
		if err := f.UpsertContact(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMirror) UpsertAddress(ctx context.Context, a Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return err
	}
	f.addresses[a.ID] = a
	return nil
}

func (f *fakeMirror) UpsertAddresses(ctx context.Context, as []Address) error {
	for _, a := range as {
		if err := f.UpsertAddress(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMirror) UpsertItem(ctx context.Context, it Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return err
	}
	f.items[it.ID] = it
	return nil
}

func (f *fakeMirror) UpsertItems(ctx context.Context, its []Item) error {
	for _, it := range its {
		if err := f.UpsertItem(ctx, it); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMirror) UpsertOrder(ctx context.Context, o Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return err
	}
	f.orders[o.ID] = o
	return nil
}

func (f *fakeMirror) UpsertLead(ctx context.Context, l Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return err
	}
	f.leads[l.ID] = l
	return nil
}

func (f *fakeMirror) DeleteOrder(ctx context.Context, localID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return err
	}
	delete(f.orders, localID)
	f.deletedOrders = append(f.deletedOrders, localID)
	return nil
}

func (f *fakeMirror) DeleteLead(ctx context.Context, localID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(); err != nil {
		return err
	}
	delete(f.leads, localID)
	f.deletedLeads = append(f.deletedLeads, localID)
	return nil
}

var testTime = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *Store, *fakeERP, *fakeMirror) {
	t.Helper()
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	erp := &fakeERP{}
	mir := newFakeMirror()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEngine(store, erp, mir, logger)
	e.now = func() time.Time { return testTime }
	return e, store, erp, mir
}
