package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"perth/internal/report"
)

func newUniverseCmd(a **app) *cobra.Command {
	var (
		sector      string
		listSectors bool
	)

	cmd := &cobra.Command{
		Use:   "universe",
		Short: "List the active investment universe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := *a

			if listSectors {
				sectors, err := app.universe.Sectors()
				if err != nil {
					return fmt.Errorf("failed to list sectors: %w", err)
				}
				for _, s := range sectors {
					fmt.Fprintln(cmd.OutOrStdout(), s)
				}
				return nil
			}

			securities, err := app.universe.List(sector)
			if err != nil {
				return fmt.Errorf("failed to list universe: %w", err)
			}

			t := &report.Table{
				Title:   "Universe",
				Headers: []string{"Symbol", "Name", "Sector", "Industry"},
			}
			if sector != "" {
				t.Title += ": " + sector
			}
			for _, sec := range securities {
				t.Rows = append(t.Rows, []string{sec.Symbol, sec.Name, sec.Sector, sec.Industry})
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.ASCII())
			fmt.Fprintf(cmd.OutOrStdout(), "%d securities\n", len(securities))
			return nil
		},
	}

	cmd.Flags().StringVar(&sector, "sector", "", "filter by sector")
	cmd.Flags().BoolVar(&listSectors, "list-sectors", false, "print distinct sectors instead of securities")
	return cmd
}
