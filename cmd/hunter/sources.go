package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/deusflow/shorts-hunter/internal/storage"
	"github.com/spf13/cobra"
)

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List and toggle feed sources",
	}
	cmd.AddCommand(
		sourcesListCmd(),
		sourcesToggleCmd("enable", true),
		sourcesToggleCmd("disable", false),
	)
	return cmd
}

func sourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every source",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			sources, err := rt.Service.ListSources(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSOURCE\tTYPE\tENABLED\tWEIGHT\tPRESETS\tNAME")
			for _, s := range sources {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%s\t%s\n", s.ID, s.SourceID, s.Type, s.Enabled, s.Weight, s.PresetSlugs, s.Name)
			}
			return w.Flush()
		},
	}
}

func sourcesToggleCmd(verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: verb + " a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			src, err := rt.Service.UpdateSource(cmd.Context(), args[0], storage.SourcePatch{Enabled: &enabled})
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s) enabled=%t\n", src.SourceID, src.Name, src.Enabled)
			return nil
		},
	}
}
