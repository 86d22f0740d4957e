package main

import (
	"fmt"
)

func main() {
	fmt.Println("order-entry - Offline-First Order Entry Sync Core")
	fmt.Println("=================================================")
	fmt.Println()
	fmt.Println("Local-first order capture for trade shows, with best-effort")
	fmt.Println("propagation to a NetSuite-style ERP and a shared mirror database.")
	fmt.Println("Every save lands in the local SQLite store first; remote pushes")
	fmt.Println("never block and never fail a save.")
	fmt.Println()
	fmt.Println("Packages:")
	fmt.Println()
	fmt.Println("  ordersync/   sync engine: durable store, save-then-propagate,")
	fmt.Println("               retry sweeps, bulk catalog refresh, order pushes")
	fmt.Println("  netsuite/    ERP gateway: SuiteQL queries and record creates")
	fmt.Println("  mirror/      shared mirror gateway: per-collection upserts")
	fmt.Println("  config/      YAML + environment configuration")
	fmt.Println()
	fmt.Println("Operator CLI: cmd/order-entry")
	fmt.Println("  Run: go run ./cmd/order-entry --help")
	fmt.Println()
}
