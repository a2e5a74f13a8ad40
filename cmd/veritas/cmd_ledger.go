package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/veritas/internal/ledger"
	"github.com/shashiranjanraj/veritas/internal/provenance"
	"github.com/shashiranjanraj/veritas/pkg/database"
)

func openLedger() (*ledger.Store, error) {
	if err := bootDB(); err != nil {
		return nil, err
	}
	return ledger.New(database.DB)
}

// veritas ledger:inspect <id>
var ledgerInspectCmd = &cobra.Command{
	Use:   "ledger:inspect <product-id>",
	Short: "Print a product's ledger record and custody history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[0])
		}

		store, err := openLedger()
		if err != nil {
			return err
		}

		ctx := context.Background()
		product, err := store.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		history, err := store.GetHistory(ctx, id)
		if err != nil {
			return err
		}
		state, err := provenance.CurrentState(product, history)
		if err != nil {
			return err
		}

		fmt.Printf("Product %d  serial=%s  state=%s  sold=%v\n", product.ID, product.Serial, state, product.Sold)
		fmt.Printf("  %s / %s\n", product.Descriptor.Brand, product.Descriptor.Name)
		fmt.Printf("  manufacturer: %s (%s)\n", product.ManufacturerName, product.Manufacturer)
		for _, r := range product.AllowedRetailers {
			fmt.Printf("  allowed retailer: %s\n", r)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "\nKIND\tTIME\tLOCATION\tENTITY\tACTOR")
		for _, ev := range history {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				ev.Kind, provenance.CanonicalTime(ev.Time), ev.Location, ev.Entity, ev.Actor)
		}
		return w.Flush()
	},
}

// veritas ledger:verify <label-file>
var ledgerVerifyCmd = &cobra.Command{
	Use:   "ledger:verify <label-file.json>",
	Short: "Classify an encoded label file against the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		store, err := openLedger()
		if err != nil {
			return err
		}

		engine := provenance.NewOrchestrator(store, nil)
		res, err := engine.Classify(context.Background(), raw, provenance.Caller{Role: provenance.RoleConsumer})
		if err != nil {
			return err
		}

		fmt.Printf("Verdict: %s\n", res.Verdict)
		if res.Reason != nil {
			fmt.Printf("Reason:  %v\n", res.Reason)
		}
		if res.Verdict == provenance.VerdictAuthentic {
			fmt.Printf("State:   %s\nAction:  %s\n", res.State, res.NextAction)
		}
		return nil
	},
}
