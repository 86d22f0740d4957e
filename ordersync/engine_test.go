package ordersync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaveCustomerPropagates(t *testing.T) {
	e, store, erp, mir := newTestEngine(t)
	ctx := context.Background()

	c := &Customer{ID: NewLocalID("customer"), CompanyName: "Acme Corp", Email: "a@acme.test", CreatedAt: testTime}
	require.NoError(t, e.SaveCustomer(ctx, c))

	require.NotEmpty(t, c.RemoteID)
	require.Equal(t, "CUST"+c.RemoteID, c.EntityID)
	require.Equal(t, testTime, c.SyncedAt)
	require.Len(t, erp.createdCustomers, 1)
	require.Equal(t, "Acme Corp", erp.createdCustomers[0].CompanyName)

	got, err := store.Customer(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, c.RemoteID, got.RemoteID)
	require.Contains(t, mir.customers, c.ID)
}

// A dead ERP must not fail the save. The customer lands locally without a
// remote id and a later sweep picks it up.
func TestSaveCustomerSurvivesERPOutage(t *testing.T) {
	e, store, erp, mir := newTestEngine(t)
	ctx := context.Background()
	erp.failCreates = true

	c := &Customer{ID: NewLocalID("customer"), CompanyName: "Offline Co", CreatedAt: testTime}
	require.NoError(t, e.SaveCustomer(ctx, c))

	require.Empty(t, c.RemoteID)
	require.True(t, c.SyncedAt.IsZero())

	got, err := store.Customer(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got.RemoteID)

	// The mirror is independent of the ERP and still gets the record.
	require.Contains(t, mir.customers, c.ID)
}

func TestSaveCustomerSurvivesBothRemotesDown(t *testing.T) {
	e, store, erp, mir := newTestEngine(t)
	ctx := context.Background()
	erp.failCreates = true
	mir.fail = true

	c := &Customer{ID: NewLocalID("customer"), CompanyName: "Fully Offline", CreatedAt: testTime}
	require.NoError(t, e.SaveCustomer(ctx, c))

	got, err := store.Customer(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	counts, err := e.CountUnsynced(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Customers)
}

func TestSaveCustomerSkipsERPWhenAlreadySynced(t *testing.T) {
	e, _, erp, _ := newTestEngine(t)
	ctx := context.Background()

	c := &Customer{ID: "customer-1", RemoteID: "900", CompanyName: "Known Co", CreatedAt: testTime}
	require.NoError(t, e.SaveCustomer(ctx, c))
	require.Empty(t, erp.createdCustomers)
	require.Equal(t, "900", c.RemoteID)
}

// Contact propagation is gated on the owning customer carrying a remote
// id. Saving under a local-only customer keeps the contact local without
// any ERP call.
func TestSaveContactGatedOnCustomer(t *testing.T) {
	e, store, erp, mir := newTestEngine(t)
	ctx := context.Background()
	erp.failCreates = true

	cust := &Customer{ID: "customer-1", CompanyName: "Gate Co", CreatedAt: testTime}
	require.NoError(t, e.SaveCustomer(ctx, cust))
	require.Empty(t, cust.RemoteID)

	erp.failCreates = false
	ct := &Contact{ID: "contact-1", CustomerID: cust.ID, FirstName: "Pat", LastName: "Doe", CreatedAt: testTime}
	require.NoError(t, e.SaveContact(ctx, ct))

	require.Empty(t, ct.RemoteID)
	require.Empty(t, erp.createdContacts, "no ERP call while the customer is local-only")

	got, err := store.Contact(ctx, ct.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Contains(t, mir.contacts, ct.ID)
}

func TestSaveContactPropagatesWhenCustomerSynced(t *testing.T) {
	e, _, erp, _ := newTestEngine(t)
	ctx := context.Background()

	cust := &Customer{ID: "customer-1", CompanyName: "Ready Co", CreatedAt: testTime}
	require.NoError(t, e.SaveCustomer(ctx, cust))
	require.NotEmpty(t, cust.RemoteID)

	ct := &Contact{ID: "contact-1", CustomerID: cust.ID, FirstName: "Pat", CreatedAt: testTime}
	require.NoError(t, e.SaveContact(ctx, ct))

	require.NotEmpty(t, ct.RemoteID)
	require.Len(t, erp.createdContacts, 1)
	require.Equal(t, cust.RemoteID, erp.createdContacts[0].CustomerID)
}

// When a customer acquires its remote id, contacts and addresses that
// queued up behind it propagate in the same call.
func TestSaveCustomerRetriesDependents(t *testing.T) {
	e, store, erp, _ := newTestEngine(t)
	ctx := context.Background()
	erp.failCreates = true

	cust := &Customer{ID: "customer-1", CompanyName: "Queue Co", CreatedAt: testTime}
	require.NoError(t, e.SaveCustomer(ctx, cust))
	require.NoError(t, e.SaveContact(ctx, &Contact{ID: "contact-1", CustomerID: cust.ID, FirstName: "Q", CreatedAt: testTime}))
	require.NoError(t, e.SaveAddress(ctx, &Address{ID: "address-1", CustomerID: cust.ID, Addr1: "1 Main St", Type: AddressShip, CreatedAt: testTime}))

	erp.failCreates = false
	require.NoError(t, e.SaveCustomer(ctx, cust))
	require.NotEmpty(t, cust.RemoteID)

	ct, err := store.Contact(ctx, "contact-1")
	require.NoError(t, err)
	require.NotEmpty(t, ct.RemoteID)

	addr, err := store.Address(ctx, "address-1")
	require.NoError(t, err)
	require.False(t, addr.SyncedAt.IsZero())
	require.Len(t, erp.createdAddresses, 1)
	require.True(t, erp.createdAddresses[0].DefaultShipping)
}

// An address counts as pushed once synced_at is stamped, even when the
// ERP returns no id for the address-book entry. It must not be re-pushed.
func TestSaveAddressBlankRemoteIDNotRepushed(t *testing.T) {
	e, store, erp, _ := newTestEngine(t)
	ctx := context.Background()
	erp.blankAddressIDs = true

	cust := &Customer{ID: "customer-1", CompanyName: "Addr Co", CreatedAt: testTime}
	require.NoError(t, e.SaveCustomer(ctx, cust))

	a := &Address{ID: "address-1", CustomerID: cust.ID, Addr1: "9 Pine Rd", CreatedAt: testTime}
	require.NoError(t, e.SaveAddress(ctx, a))
	require.Empty(t, a.RemoteID)
	require.False(t, a.SyncedAt.IsZero())
	require.Len(t, erp.createdAddresses, 1)

	// Saving again must not create another ERP entry.
	require.NoError(t, e.SaveAddress(ctx, a))
	require.Len(t, erp.createdAddresses, 1)

	pending, err := store.UnsyncedAddresses(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestSaveOrderPromotesSubmittedOnMirrorAck(t *testing.T) {
	e, store, _, mir := newTestEngine(t)
	ctx := context.Background()

	o := &Order{
		ID: "order-1", CustomerID: "customer-1",
		Lines:  []OrderLine{{ItemID: "item-1", Quantity: 24}},
		Status: OrderSubmitted, CreatedAt: testTime,
	}
	require.NoError(t, e.SaveOrder(ctx, o))

	require.Equal(t, OrderSynced, o.Status)
	got, err := store.Order(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, OrderSynced, got.Status)
	require.Contains(t, mir.orders, o.ID)
}

func TestSaveOrderMirrorDownStaysSubmitted(t *testing.T) {
	e, store, _, mir := newTestEngine(t)
	ctx := context.Background()
	mir.fail = true

	o := &Order{
		ID: "order-1", CustomerID: "customer-1",
		Lines:  []OrderLine{{ItemID: "item-1", Quantity: 24}},
		Status: OrderSubmitted, CreatedAt: testTime,
	}
	require.NoError(t, e.SaveOrder(ctx, o))

	require.Equal(t, OrderSubmitted, o.Status)
	got, err := store.Order(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, OrderSubmitted, got.Status)
}

func TestSaveOrderDraftNotPromoted(t *testing.T) {
	e, store, _, _ := newTestEngine(t)
	ctx := context.Background()

	o := &Order{ID: "order-1", CustomerID: "customer-1", Status: OrderDraft, CreatedAt: testTime}
	require.NoError(t, e.SaveOrder(ctx, o))

	got, err := store.Order(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, OrderDraft, got.Status)
}

func TestSaveOrderRejectsInvalidStatus(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	o := &Order{ID: "order-1", CustomerID: "customer-1", Status: OrderStatus("bogus")}
	require.Error(t, e.SaveOrder(context.Background(), o))
}

func TestDeleteOrderRemovesFromMirror(t *testing.T) {
	e, store, _, mir := newTestEngine(t)
	ctx := context.Background()

	o := &Order{ID: "order-1", CustomerID: "customer-1", Status: OrderDraft, CreatedAt: testTime}
	require.NoError(t, e.SaveOrder(ctx, o))
	require.NoError(t, e.DeleteOrder(ctx, o.ID))

	got, err := store.Order(ctx, o.ID)
	require.NoError(t, err)
	require.Nil(t, got)
	require.Contains(t, mir.deletedOrders, o.ID)
}

func TestSaveLeadAndDelete(t *testing.T) {
	e, store, _, mir := newTestEngine(t)
	ctx := context.Background()

	l := &Lead{ID: "lead-1", Name: "Show Visitor", Company: "Booth 12", CreatedAt: testTime}
	require.NoError(t, e.SaveLead(ctx, l))
	require.Contains(t, mir.leads, l.ID)

	require.NoError(t, e.DeleteLead(ctx, l.ID))
	leads, err := store.Leads(ctx)
	require.NoError(t, err)
	require.Empty(t, leads)
	require.Contains(t, mir.deletedLeads, l.ID)
}

func TestSaveLeadMirrorDownStillSaves(t *testing.T) {
	e, store, _, mir := newTestEngine(t)
	mir.fail = true

	l := &Lead{ID: "lead-1", Name: "Unlucky", CreatedAt: time.Now().UTC()}
	require.NoError(t, e.SaveLead(context.Background(), l))

	leads, err := store.Leads(context.Background())
	require.NoError(t, err)
	require.Len(t, leads, 1)
}
