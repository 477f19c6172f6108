package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"loanadmin.org/internal/app"
	"loanadmin.org/internal/migrate"
)

func newUpCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: withManager(o, func(ctx context.Context, m *migrate.Manager) error {
			return m.Up(ctx)
		}),
	}
}

func newDownCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: withManager(o, func(ctx context.Context, m *migrate.Manager) error {
			return m.Down(ctx)
		}),
	}
}

func newStatusCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: withManager(o, func(ctx context.Context, m *migrate.Manager) error {
			lines, err := m.Status(ctx)
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Println(line)
			}
			return nil
		}),
	}
}

func newSeedCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Apply a YAML fixture; records that already exist by name are left alone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			kv, closeStore, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			rep, err := app.NewServices(kv, cfg).SeedFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
}
