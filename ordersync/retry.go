package ordersync

import (
	"context"
	"fmt"
)

// Retry sweeps scan the store for records that never made it to a remote
// and push them one at a time. Individual record failures are counted,
// never fatal; sweeps run sequentially to keep ERP load predictable.

// RetrySyncCustomers pushes every customer lacking a remote id to the ERP.
// Each customer that syncs also gets its pending contacts and addresses
// retried immediately.
func (e *Engine) RetrySyncCustomers(ctx context.Context) (SweepResult, error) {
	unsynced, err := e.store.UnsyncedCustomers(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list unsynced customers: %w", err)
	}
	var res SweepResult
	for i := range unsynced {
		c := &unsynced[i]
		if err := e.propagateCustomer(ctx, c); err != nil {
			e.discard(err)
			res.Failed++
			continue
		}
		if err := e.store.PutCustomer(ctx, c); err != nil {
			e.logger.Error("failed to persist customer after propagation", "customer", c.ID, "err", err)
			res.Failed++
			continue
		}
		e.mirrorPush("customer", c.ID, func() error { return e.mirror.UpsertCustomer(ctx, *c) })
		e.retryDependentsForCustomer(ctx, c.ID)
		res.Synced++
	}
	e.logger.Info("customer retry sweep complete", "synced", res.Synced, "failed", res.Failed)
	return res, nil
}

// RetrySyncContacts pushes every contact that lacks a remote id and whose
// owning customer already has one.
func (e *Engine) RetrySyncContacts(ctx context.Context) (SweepResult, error) {
	unsynced, err := e.store.UnsyncedContacts(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list unsynced contacts: %w", err)
	}
	var res SweepResult
	for i := range unsynced {
		c := &unsynced[i]
		if err := e.propagateContact(ctx, c); err != nil {
			e.discard(err)
			res.Failed++
			continue
		}
		if err := e.store.PutContact(ctx, c); err != nil {
			e.logger.Error("failed to persist contact after propagation", "contact", c.ID, "err", err)
			res.Failed++
			continue
		}
		e.mirrorPush("contact", c.ID, func() error { return e.mirror.UpsertContact(ctx, *c) })
		res.Synced++
	}
	e.logger.Info("contact retry sweep complete", "synced", res.Synced, "failed", res.Failed)
	return res, nil
}

// RetrySyncAddresses pushes every never-pushed address whose owning
// customer already has a remote id.
func (e *Engine) RetrySyncAddresses(ctx context.Context) (SweepResult, error) {
	unsynced, err := e.store.UnsyncedAddresses(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list unsynced addresses: %w", err)
	}
	var res SweepResult
	for i := range unsynced {
		a := &unsynced[i]
		if err := e.propagateAddress(ctx, a); err != nil {
			e.discard(err)
			res.Failed++
			continue
		}
		if err := e.store.PutAddress(ctx, a); err != nil {
			e.logger.Error("failed to persist address after propagation", "address", a.ID, "err", err)
			res.Failed++
			continue
		}
		e.mirrorPush("address", a.ID, func() error { return e.mirror.UpsertAddress(ctx, *a) })
		res.Synced++
	}
	e.logger.Info("address retry sweep complete", "synced", res.Synced, "failed", res.Failed)
	return res, nil
}

// RetrySyncOrders re-pushes submitted orders to the mirror and promotes
// acknowledged ones to synced. This is the mirror-side catch-up; the ERP
// push stays an explicit per-order user action (PushOrder).
func (e *Engine) RetrySyncOrders(ctx context.Context) (SweepResult, error) {
	submitted, err := e.store.OrdersByStatus(ctx, OrderSubmitted)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list submitted orders: %w", err)
	}
	var res SweepResult
	for i := range submitted {
		o := &submitted[i]
		if err := e.mirror.UpsertOrder(ctx, *o); err != nil {
			e.discard(propagationErr("order", o.ID, fmt.Errorf("mirror push: %w", err)))
			res.Failed++
			continue
		}
		o.Status = OrderSynced
		if err := e.store.PutOrder(ctx, o); err != nil {
			e.logger.Error("failed to persist order after mirror push", "order", o.ID, "err", err)
			res.Failed++
			continue
		}
		res.Synced++
	}
	e.logger.Info("order retry sweep complete", "synced", res.Synced, "failed", res.Failed)
	return res, nil
}

// RetryAll runs the reconnect sweep in dependency order: customers first,
// because contact and address propagation is gated on the owning customer
// already carrying a remote id. Orders are deliberately excluded; an ERP
// sales transaction is created only by an explicit PushOrder.
func (e *Engine) RetryAll(ctx context.Context) (SweepResult, error) {
	var total SweepResult
	customers, err := e.RetrySyncCustomers(ctx)
	if err != nil {
		return total, err
	}
	total.Add(customers)
	contacts, err := e.RetrySyncContacts(ctx)
	if err != nil {
		return total, err
	}
	total.Add(contacts)
	addresses, err := e.RetrySyncAddresses(ctx)
	if err != nil {
		return total, err
	}
	total.Add(addresses)
	return total, nil
}
