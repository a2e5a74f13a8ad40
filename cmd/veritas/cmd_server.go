package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/veritas/app/routes"
	"github.com/shashiranjanraj/veritas/internal/provenance"
	"github.com/shashiranjanraj/veritas/internal/server"
	"github.com/shashiranjanraj/veritas/pkg/router"
)

// veritas serve — start the HTTP (and optional gRPC) server.
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"run", "start"},
	Short:   "Start the verification service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start()
	},
}

// veritas route:list — print all registered routes.
var routeListCmd = &cobra.Command{
	Use:   "route:list",
	Short: "List all registered named routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		r := router.New()
		routes.RegisterAPI(r, routes.Deps{
			Ledger:  nil,
			Keyring: provenance.NewKeyring(),
		})

		infos := r.Routes()
		if len(infos) == 0 {
			fmt.Println("No named routes registered.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "PATH\tNAME")
		fmt.Fprintln(w, "----\t----")
		for _, ri := range infos {
			fmt.Fprintf(w, "%s\t%s\n", ri.Path, ri.Name)
		}
		return w.Flush()
	},
}
