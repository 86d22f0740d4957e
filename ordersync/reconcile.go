package ordersync

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RefreshStats summarizes a full catalog refresh.
type RefreshStats struct {
	Customers        int
	Contacts         int
	Addresses        int
	Items            int
	DroppedRows      int // contact/address rows whose customer could not be resolved
	DedupedAddresses int // duplicate address rows collapsed by composite key
	OrderRetry       SweepResult
}

// Refresh performs the full resynchronization of the customer, contact,
// address and item catalog from the ERP.
//
// This is destructive: the customer, contact and address collections are
// cleared first so ERP-side deletions are reflected locally, and any
// local-only records go with them. Callers must confirm with the user
// when CountUnsynced reports anything nonzero.
//
// A failed sub-fetch aborts the refresh but does not undo the clear; the
// local catalog stays partially empty until the user retries. That is the
// accepted tradeoff of the explicit-refresh design.
func (e *Engine) Refresh(ctx context.Context) (RefreshStats, error) {
	var stats RefreshStats

	counts, err := e.CountUnsynced(ctx)
	if err != nil {
		return stats, err
	}
	if counts.Total() > 0 {
		e.logger.Warn("refreshing with local-only records present; they will be discarded",
			"customers", counts.Customers, "contacts", counts.Contacts, "addresses", counts.Addresses)
	}

	if err := e.store.ClearCustomersContactsAddresses(ctx); err != nil {
		return stats, fmt.Errorf("failed to clear collections before refresh: %w", err)
	}

	// Customers first: the contact and address fetches resolve their owner
	// through the remote->local id lookup built here.
	customers, err := e.refreshCustomers(ctx)
	if err != nil {
		return stats, err
	}
	stats.Customers = len(customers)

	byRemoteID := make(map[string]string, len(customers))
	for i := range customers {
		if customers[i].RemoteID != "" {
			byRemoteID[customers[i].RemoteID] = customers[i].ID
		}
	}

	contacts, dropped, err := e.refreshContacts(ctx, byRemoteID)
	if err != nil {
		return stats, err
	}
	stats.Contacts = len(contacts)
	stats.DroppedRows += dropped

	addresses, dropped, deduped, err := e.refreshAddresses(ctx, byRemoteID)
	if err != nil {
		return stats, err
	}
	stats.Addresses = len(addresses)
	stats.DroppedRows += dropped
	stats.DedupedAddresses = deduped

	items, err := e.refreshItems(ctx)
	if err != nil {
		return stats, err
	}
	stats.Items = len(items)

	// An explicit, user-acknowledged refresh is also the moment to drain
	// submitted orders that never reached the mirror.
	stats.OrderRetry, err = e.RetrySyncOrders(ctx)
	if err != nil {
		return stats, err
	}

	if err := e.store.SetLastSyncTime(ctx, e.now()); err != nil {
		return stats, err
	}
	e.logger.Info("full refresh complete",
		"customers", stats.Customers, "contacts", stats.Contacts,
		"addresses", stats.Addresses, "items", stats.Items,
		"dropped_rows", stats.DroppedRows, "deduped_addresses", stats.DedupedAddresses)
	return stats, nil
}

func (e *Engine) refreshCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := e.erp.Customers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch customers from erp: %w", err)
	}
	now := e.now()
	customers := make([]Customer, 0, len(rows))
	for _, row := range rows {
		remoteID := row.String("id")
		// Local ids for ERP-sourced records derive from the remote id so
		// they stay stable across refreshes; orders keep referencing the
		// same customer after the collections are rebuilt.
		customers = append(customers, Customer{
			ID:          "customer-" + remoteID,
			RemoteID:    remoteID,
			EntityID:    row.String("entityid"),
			CompanyName: row.String("companyname"),
			Email:       row.String("email"),
			Partner:     row.String("partner"),
			PriceLevel:  row.String("pricelevel"),
			SyncedAt:    now,
			CreatedAt:   now,
		})
	}
	if err := e.store.PutCustomers(ctx, customers); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed customers: %w", err)
	}
	e.mirrorPush("customers", "batch", func() error { return e.mirror.UpsertCustomers(ctx, customers) })
	return customers, nil
}

func (e *Engine) refreshContacts(ctx context.Context, byRemoteID map[string]string) ([]Contact, int, error) {
	rows, err := e.erp.AllContacts(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch contacts from erp: %w", err)
	}
	now := e.now()
	dropped := 0
	contacts := make([]Contact, 0, len(rows))
	for _, row := range rows {
		remoteCustomerID := row.String("customer_id")
		customerID, ok := byRemoteID[remoteCustomerID]
		if !ok {
			// Never create a contact referencing a customer that does not
			// exist locally. The row is re-fetched on the next refresh, so
			// dropping beats queuing.
			e.logger.Warn("dropping contact row with unresolved customer",
				"remote_customer_id", remoteCustomerID, "remote_contact_id", row.String("contact_id"))
			dropped++
			continue
		}
		remoteID := row.String("contact_id")
		entityID := row.String("contact_entityid")
		if entityID == "" {
			entityID = strings.TrimSpace(row.String("firstname") + " " + row.String("lastname"))
		}
		if entityID == "" {
			entityID = "contact-" + remoteID
		}
		contacts = append(contacts, Contact{
			ID:         "contact-" + remoteID,
			CustomerID: customerID,
			RemoteID:   remoteID,
			EntityID:   entityID,
			FirstName:  row.String("firstname"),
			LastName:   row.String("lastname"),
			Email:      row.String("email"),
			Phone:      row.String("phone"),
			SyncedAt:   now,
			CreatedAt:  now,
		})
	}
	if err := e.store.PutContacts(ctx, contacts); err != nil {
		return nil, dropped, fmt.Errorf("failed to persist refreshed contacts: %w", err)
	}
	e.mirrorPush("contacts", "batch", func() error { return e.mirror.UpsertContacts(ctx, contacts) })
	return contacts, dropped, nil
}

// addressKey identifies a logical address within the ERP's address-book
// join, which returns the same address once per label/sublist entry.
type addressKey struct {
	remoteCustomerID string
	label            string
	addr1            string
	city             string
	zip              string
}

func (k addressKey) slug() string {
	label := k.label
	if label == "" {
		label = "unnamed"
	}
	return sanitizeKey(k.remoteCustomerID + "-" + label + "-" + k.addr1 + "-" + k.city + "-" + k.zip)
}

// sanitizeKey keeps key slugs to [A-Za-z0-9-].
func sanitizeKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

func (e *Engine) refreshAddresses(ctx context.Context, byRemoteID map[string]string) ([]Address, int, int, error) {
	rows, err := e.erp.AllAddresses(ctx)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to fetch addresses from erp: %w", err)
	}
	now := e.now()
	dropped, deduped := 0, 0
	seen := make(map[string]struct{})
	addresses := make([]Address, 0, len(rows))
	for _, row := range rows {
		remoteCustomerID := row.String("customer_id")
		customerID, ok := byRemoteID[remoteCustomerID]
		if !ok {
			e.logger.Warn("dropping address row with unresolved customer",
				"remote_customer_id", remoteCustomerID, "addr1", row.String("addr1"))
			dropped++
			continue
		}

		key := addressKey{
			remoteCustomerID: remoteCustomerID,
			label:            row.String("label"),
			addr1:            row.String("addr1"),
			city:             row.String("city"),
			zip:              row.String("zip"),
		}
		// Dedup on the sanitized slug, which is also what the local id
		// derives from; keys that differ only in punctuation are the same
		// record and must not overwrite each other with one id.
		slug := key.slug()
		if _, dup := seen[slug]; dup {
			deduped++
			continue
		}
		seen[slug] = struct{}{}

		addressee := row.String("addressee")
		if addressee == "" {
			addressee = row.String("label")
		}
		addrType := ""
		switch {
		case row.String("defaultshipping") == "T":
			addrType = AddressShip
		case row.String("defaultbilling") == "T":
			addrType = AddressBill
		}

		remoteID := row.String("address_id")
		if remoteID == "" {
			// Some ERP accounts hide the address-book entry id; a synthetic
			// key still marks the address as remote-sourced so it is never
			// re-pushed as a new entry.
			remoteID = "addr-" + slug
		}
		addresses = append(addresses, Address{
			ID:         "address-" + slug,
			CustomerID: customerID,
			RemoteID:   remoteID,
			Addr1:      row.String("addr1"),
			Addr2:      row.String("addr2"),
			City:       row.String("city"),
			State:      row.String("state"),
			Zip:        row.String("zip"),
			Country:    row.String("country"),
			Addressee:  addressee,
			AddrText:   composeAddrText(row),
			Type:       addrType,
			SyncedAt:   now,
			CreatedAt:  now,
		})
	}
	if err := e.store.PutAddresses(ctx, addresses); err != nil {
		return nil, dropped, deduped, fmt.Errorf("failed to persist refreshed addresses: %w", err)
	}
	e.mirrorPush("addresses", "batch", func() error { return e.mirror.UpsertAddresses(ctx, addresses) })
	return addresses, dropped, deduped, nil
}

// composeAddrText builds the single-line display form of an address row.
func composeAddrText(row interface{ String(string) string }) string {
	var parts []string
	if v := row.String("addr1"); v != "" {
		parts = append(parts, v)
	}
	if v := row.String("addr2"); v != "" {
		parts = append(parts, v)
	}
	if city := row.String("city"); city != "" {
		line := city
		if st := row.String("state"); st != "" {
			line += ", " + st
		}
		if zip := row.String("zip"); zip != "" {
			line += " " + zip
		}
		parts = append(parts, strings.TrimSpace(line))
	}
	if v := row.String("country"); v != "" {
		parts = append(parts, v)
	}
	if len(parts) == 0 {
		if label := row.String("label"); label != "" {
			return label
		}
		return "Address"
	}
	return strings.Join(parts, ", ")
}

func (e *Engine) refreshItems(ctx context.Context) ([]Item, error) {
	rows, err := e.erp.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch items from erp: %w", err)
	}
	now := e.now()

	// One ERP row per (item, tier, breakpoint index); fold them into one
	// item each with a per-tier price schedule.
	byID := make(map[string]*Item)
	var order []string
	for _, row := range rows {
		remoteID := row.String("id")
		it, ok := byID[remoteID]
		if !ok {
			it = &Item{
				ID:          "item-" + remoteID,
				RemoteID:    remoteID,
				SKU:         row.String("itemid"),
				DisplayName: row.String("displayname"),
				Color:       row.String("custitem_item_color"),
				PriceBreaks: make(map[string][]PriceBreak),
				SyncedAt:    now,
				CreatedAt:   now,
			}
			byID[remoteID] = it
			order = append(order, remoteID)
		}

		tier := row.String("pricelevel")
		price, _ := strconv.ParseFloat(row.String("price"), 64)
		if tier == "" || price <= 0 {
			continue
		}
		idx, err := strconv.Atoi(row.String("price_break_qty"))
		if err != nil {
			idx = 1
		}
		qty := MapBreakIndex(idx)

		// Equal quantities collapse, last write wins.
		replaced := false
		for i := range it.PriceBreaks[tier] {
			if it.PriceBreaks[tier][i].Quantity == qty {
				it.PriceBreaks[tier][i].Price = price
				replaced = true
				break
			}
		}
		if !replaced {
			it.PriceBreaks[tier] = append(it.PriceBreaks[tier], PriceBreak{Quantity: qty, Price: price})
		}
	}

	items := make([]Item, 0, len(byID))
	for _, remoteID := range order {
		it := byID[remoteID]
		for tier := range it.PriceBreaks {
			breaks := it.PriceBreaks[tier]
			sort.Slice(breaks, func(i, j int) bool { return breaks[i].Quantity < breaks[j].Quantity })
		}
		items = append(items, *it)
	}
	if err := e.store.PutItems(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed items: %w", err)
	}
	e.mirrorPush("items", "batch", func() error { return e.mirror.UpsertItems(ctx, items) })
	return items, nil
}
