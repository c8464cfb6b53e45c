package main

import (
	"fmt"

	"github.com/deusflow/shorts-hunter/internal/seed"
	"github.com/spf13/cobra"
)

func presetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Show or select the active topic preset",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the active preset and the enabled presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			active, err := rt.Service.ActivePreset(cmd.Context())
			if err != nil {
				return err
			}
			presets, err := rt.Service.ListPresets(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range presets {
				mark := " "
				if active != nil && active.ID == p.ID {
					mark = "*"
				}
				fmt.Printf("%s %s  %-10s %s\n", mark, p.ID, p.Slug, p.Name)
			}
			if active == nil {
				fmt.Println("no active preset, the default dictionary is used")
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <id>",
		Short: "Select the active preset; an empty id clears it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			p, err := rt.Service.SetActivePreset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if p == nil {
				fmt.Println("active preset cleared")
				return nil
			}
			fmt.Printf("active preset: %s (%s)\n", p.Name, p.Slug)
			return nil
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}

func seedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert the sources and presets of a seed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if file == "" {
				file = rt.Config.SeedFile
			}
			f, err := seed.Load(file)
			if err != nil {
				return err
			}
			res, err := rt.Service.ApplySeed(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Printf("seeded %d sources, %d presets, %d keywords from %s\n", res.Sources, res.Presets, res.Keywords, file)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed file (default SEED_FILE)")
	return cmd
}
