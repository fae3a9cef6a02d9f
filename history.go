package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/cantalupo555/statsheet-downloader/internal/catalog"
)

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <catalog.db> [run-id]",
		Short: "List runs saved in a catalog, or the files of one run",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := catalog.OpenStore(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)

			if len(args) == 1 {
				runs, err := store.Runs(cmd.Context())
				if err != nil {
					return err
				}
				t.AppendHeader(table.Row{"Run", "Files", "First", "Last"})
				for _, r := range runs {
					t.AppendRow(table.Row{r.ID, r.Entries, r.First.Format(catalog.TimeLayout), r.Last.Format(catalog.TimeLayout)})
				}
				t.Render()
				return nil
			}

			entries, err := store.Entries(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no entries for run %s", args[1])
			}
			t.AppendHeader(table.Row{"Original Name", "Hashed Name", "Download Date", "Link", "Note"})
			for _, e := range entries {
				t.AppendRow(table.Row{e.OriginalName, e.HashedName, e.DownloadedAt.Format(catalog.TimeLayout), e.Link, e.Note})
			}
			t.Render()
			return nil
		},
	}
}
