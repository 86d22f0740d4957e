// Command order-entry is the operator CLI for the offline-first order
// entry sync core: full catalog refresh, retry sweeps for local-only
// records, sync status, and explicit order pushes to the ERP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/buffmasterbran/order-entry/config"
	"github.com/buffmasterbran/order-entry/mirror"
	"github.com/buffmasterbran/order-entry/netsuite"
	"github.com/buffmasterbran/order-entry/ordersync"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "order-entry",
		Short:         "Offline-first order entry sync tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to order-entry.yaml")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newRetryCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newOrdersCommand(opts))
	return cmd
}

// openEngine wires store and gateways from config. The caller closes the
// returned store.
func openEngine(opts *rootOptions) (*ordersync.Engine, *ordersync.Store, error) {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}

	store, err := ordersync.OpenStore(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}

	erpToken := cfg.ERP.Token
	erp := netsuite.NewClient(cfg.ERP.BaseURL, func(context.Context) (string, error) {
		if erpToken == "" {
			return "", fmt.Errorf("erp.token is not configured")
		}
		return erpToken, nil
	}, logger)
	erp.HTTP.Timeout = cfg.ERP.Timeout
	erp.PageSize = cfg.ERP.PageSize
	erp.MaxRows = cfg.ERP.MaxRows

	mir := mirror.NewClient(cfg.Mirror.BaseURL, mirror.StaticToken(cfg.Mirror.Token), logger)
	mir.HTTP.Timeout = cfg.Mirror.Timeout

	return ordersync.NewEngine(store, erp, mir, logger), store, nil
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Clear and re-fetch the customer, contact, address and item catalog from the ERP",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			ctx := cmd.Context()

			counts, err := engine.CountUnsynced(ctx)
			if err != nil {
				return err
			}
			if counts.Total() > 0 && !force {
				return fmt.Errorf("%d local-only records (%d customers, %d contacts, %d addresses) would be discarded; run 'order-entry retry' first or pass --force",
					counts.Total(), counts.Customers, counts.Contacts, counts.Addresses)
			}

			stats, err := engine.Refresh(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Synced %d customers, %d contacts, %d addresses, %d items\n",
				stats.Customers, stats.Contacts, stats.Addresses, stats.Items)
			if stats.DroppedRows > 0 || stats.DedupedAddresses > 0 {
				fmt.Printf("Dropped %d unresolvable rows, collapsed %d duplicate addresses\n",
					stats.DroppedRows, stats.DedupedAddresses)
			}
			if stats.OrderRetry.Synced > 0 || stats.OrderRetry.Failed > 0 {
				fmt.Printf("Orders: %d synced to mirror, %d still pending\n",
					stats.OrderRetry.Synced, stats.OrderRetry.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "refresh even if local-only records would be discarded")
	return cmd
}

func newRetryCommand(opts *rootOptions) *cobra.Command {
	var withOrders bool

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Re-attempt propagation of local-only customers, contacts and addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			ctx := cmd.Context()

			res, err := engine.RetryAll(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Retry complete: %d synced, %d still failing\n", res.Synced, res.Failed)

			if withOrders {
				or, err := engine.RetrySyncOrders(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Orders: %d synced to mirror, %d still pending\n", or.Synced, or.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withOrders, "orders", false, "also re-send submitted orders to the mirror")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local-only record counts and the last full sync time",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			ctx := cmd.Context()

			counts, err := engine.CountUnsynced(ctx)
			if err != nil {
				return err
			}
			last, err := store.LastSyncTime(ctx)
			if err != nil {
				return err
			}
			pending, err := store.OrdersByStatus(ctx, ordersync.OrderSubmitted)
			if err != nil {
				return err
			}

			if last.IsZero() {
				fmt.Println("Last full sync: never")
			} else {
				fmt.Println("Last full sync:", last.Local().Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("Local-only: %d customers, %d contacts, %d addresses\n",
				counts.Customers, counts.Contacts, counts.Addresses)
			fmt.Printf("Orders awaiting mirror: %d\n", len(pending))
			return nil
		},
	}
}

func newOrdersCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Order operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "push <order-id>",
		Short: "Create the sales order in the ERP (explicit, never automatic)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			o, err := engine.PushOrder(cmd.Context(), args[0])
			var blocked *ordersync.PushBlockedError
			if errors.As(err, &blocked) {
				return fmt.Errorf("%s; run 'order-entry retry' and try again", blocked.Error())
			}
			if err != nil {
				return err
			}
			fmt.Printf("Order %s pushed: sales order %s\n", o.ID, o.RemoteID)
			return nil
		},
	})
	return cmd
}
