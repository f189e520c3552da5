package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"guildline/internal/engine"
)

func snapshotCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or import a whole guild",
	}
	s.AddCommand(snapshotExportCmd())
	s.AddCommand(snapshotImportCmd())
	return s
}

func snapshotExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the guild's data as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				snap, err := e.ExportSnapshot(ctx, guildID)
				if err != nil {
					return err
				}
				var w io.Writer = os.Stdout
				if out != "" && out != "-" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file")
	return cmd
}

func snapshotImportCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the guild's data with a snapshot (requires --force)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !forced() {
				return fmt.Errorf("import replaces every job, contract, workshop and vault entry of the guild; rerun with --force")
			}
			var r io.Reader = os.Stdin
			if in != "" && in != "-" {
				f, err := os.Open(in)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			snap, err := engine.DecodeSnapshot(r)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				if err := e.ImportSnapshot(ctx, guildID, snap, actor()); err != nil {
					return err
				}
				vault, err := e.GetVault(ctx, guildID)
				if err != nil {
					return err
				}
				fmt.Printf("imported %d jobs, %d contracts, %d workshops into %s (vault balance %s)\n",
					len(snap.GuildJobs), len(snap.GuildContracts), len(snap.GuildWorkshops), guildID, money(vault.Balance))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&in, "file", "f", "-", "snapshot file")
	return cmd
}
