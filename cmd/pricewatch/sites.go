package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSitesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List configured site profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadSites()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SITE\tNAME\tLANGUAGE\tQUANTITY")
			for _, p := range reg.List() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Language, p.QuantitySource)
			}
			return w.Flush()
		},
	}
}
