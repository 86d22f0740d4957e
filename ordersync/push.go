package ordersync

import (
	"context"
	"fmt"

	"github.com/buffmasterbran/order-entry/netsuite"
)

// PushBlockedError reports why an order cannot be pushed to the ERP yet.
// Prereq is "customer", "address" or "item"; Name identifies the record
// for display.
type PushBlockedError struct {
	Prereq string
	Name   string
}

func (e *PushBlockedError) Error() string {
	return fmt.Sprintf("order push blocked: %s %q has not synced to the erp yet", e.Prereq, e.Name)
}

// SubmitOrder finalizes a draft. The local status flip is the durability
// point; the mirror upsert afterwards is best effort.
func (e *Engine) SubmitOrder(ctx context.Context, id string) (*Order, error) {
	o, err := e.store.Order(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("order %s not found", id)
	}
	if o.Status != OrderDraft {
		return nil, fmt.Errorf("order %s is %s, only drafts can be submitted", id, o.Status)
	}
	o.Status = OrderSubmitted
	if err := e.SaveOrder(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// PushOrder creates the sales order in the ERP. This is the only path
// that sends an order to the ERP, and it runs only on explicit user
// action.
//
// Every record the order references must already carry an ERP id. If any
// does not, PushOrder returns a PushBlockedError, leaves the order
// untouched, and the user runs a retry sweep first.
func (e *Engine) PushOrder(ctx context.Context, id string) (*Order, error) {
	o, err := e.store.Order(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("order %s not found", id)
	}
	if o.Status == OrderPushed {
		return nil, fmt.Errorf("order %s has already been pushed (sales order %s)", id, o.RemoteID)
	}
	if o.Status == OrderDraft {
		return nil, fmt.Errorf("order %s is a draft, submit it before pushing", id)
	}

	req, err := e.buildOrderRequest(ctx, o)
	if err != nil {
		return nil, err
	}

	res, err := e.erp.CreateOrder(ctx, *req)
	if err != nil {
		return nil, fmt.Errorf("failed to create sales order in erp: %w", err)
	}

	o.Status = OrderPushed
	o.RemoteID = res.RemoteID
	o.SyncedAt = e.now()
	if err := e.store.PutOrder(ctx, o); err != nil {
		// The sales order exists in the ERP now; surface the local write
		// failure rather than hide a possible double-push on retry.
		return nil, fmt.Errorf("sales order %s created in erp but local update failed: %w", res.RemoteID, err)
	}
	e.mirrorPush("order", o.ID, func() error { return e.mirror.UpsertOrder(ctx, *o) })
	e.logger.Info("order pushed to erp", "order_id", o.ID, "sales_order_id", o.RemoteID)
	return o, nil
}

// buildOrderRequest resolves every local reference on the order to its
// ERP id, rejecting with PushBlockedError on the first unsynced one.
func (e *Engine) buildOrderRequest(ctx context.Context, o *Order) (*netsuite.OrderRequest, error) {
	cust, err := e.store.Customer(ctx, o.CustomerID)
	if err != nil {
		return nil, err
	}
	if cust == nil || cust.RemoteID == "" {
		name := o.CustomerID
		if cust != nil {
			name = cust.CompanyName
		}
		return nil, &PushBlockedError{Prereq: "customer", Name: name}
	}

	req := &netsuite.OrderRequest{
		CustomerID: cust.RemoteID,
		ShipDate:   o.ShipDate,
		Memo:       o.Notes,
	}

	// The ERP refuses sales orders without a shipping address, so a
	// missing or unsynced one blocks the push. Billing stays optional.
	if o.ShipAddressID == "" {
		return nil, &PushBlockedError{Prereq: "address", Name: o.ID}
	}
	addr, err := e.store.Address(ctx, o.ShipAddressID)
	if err != nil {
		return nil, err
	}
	if addr == nil || addr.RemoteID == "" {
		name := o.ShipAddressID
		if addr != nil {
			name = addr.AddrText
		}
		return nil, &PushBlockedError{Prereq: "address", Name: name}
	}
	req.ShipAddressID = addr.RemoteID
	if o.BillAddressID != "" {
		addr, err := e.store.Address(ctx, o.BillAddressID)
		if err != nil {
			return nil, err
		}
		if addr == nil || addr.RemoteID == "" {
			name := o.BillAddressID
			if addr != nil {
				name = addr.AddrText
			}
			return nil, &PushBlockedError{Prereq: "address", Name: name}
		}
		req.BillAddressID = addr.RemoteID
	}

	for _, line := range o.Lines {
		it, err := e.store.Item(ctx, line.ItemID)
		if err != nil {
			return nil, err
		}
		if it == nil || it.RemoteID == "" {
			name := line.ItemID
			if it != nil {
				name = it.SKU
			}
			return nil, &PushBlockedError{Prereq: "item", Name: name}
		}
		req.Lines = append(req.Lines, netsuite.OrderLineRequest{
			ItemID:   it.RemoteID,
			Quantity: line.Quantity,
			Price:    line.Price,
		})
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("order %s has no lines", o.ID)
	}
	return req, nil
}
