package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-cgds/internal/genes"
	"github.com/inodb/vibe-cgds/internal/matrix"
)

func newGenesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genes",
		Short: "Manage the gene registry",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "load <gene-file>",
		Short: "Load a tab-delimited gene list (Entrez_Gene_Id, Hugo_Symbol)",
		Example: `  vibe-cgds --backend duckdb --db cgds.duckdb genes load genes.txt
  vibe-cgds --backend sqlite --db cgds.sqlite genes load Homo_sapiens.gene_info`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := genes.LoadGeneList(args[0])
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintf(os.Stderr, "Hint: Check that the file path is correct\n")
				}
				return err
			}
			ctx := cmd.Context()
			return withSession(ctx, func(s *session) error {
				n, err := genes.Register(ctx, s.backend, list)
				if err != nil {
					return err
				}
				s.logger.Info("loaded genes", zap.Int("genes", n), zap.String("file", args[0]))
				fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d genes\n", n)
				return nil
			})
		},
	})
	return cmd
}

func newCasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "Manage profile case lists",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "add <profile-id> <case-id>...",
		Short:   "Register the ordered case list of a profile",
		Example: `  vibe-cgds --backend duckdb --db cgds.duckdb cases add 1 TCGA-1 TCGA-2 TCGA-3 TCGA-4`,
		Args:    usageArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID, err := parseProfileID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withSession(ctx, func(s *session) error {
				if _, err := s.backend.AddCases(ctx, profileID, args[1:]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %d cases for profile %d\n", len(args)-1, profileID)
				return nil
			})
		},
	})
	return cmd
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <profile-id> <matrix-file>",
		Short: "Import a gene x case matrix file into a profile",
		Long: `Import a cBioPortal style gene x case matrix (data_CNA.txt,
data_expression.txt, ...). The header must contain Hugo_Symbol and/or
Entrez_Gene_Id followed by one column per case. Gzipped files are detected
automatically; use '-' for stdin.

The header's case order becomes the profile's case list, or must match it
when the profile already has one. Rows for genes missing from the gene
registry are skipped.`,
		Example: `  vibe-cgds --backend duckdb --db cgds.duckdb --mode buffered import 1 data_CNA.txt
  zcat data_CNA.txt.gz | vibe-cgds --backend sqlite --db cgds.sqlite import 1 -`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID, err := parseProfileID(args[0])
			if err != nil {
				return err
			}
			parser, err := matrix.NewParser(args[1])
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintf(os.Stderr, "Hint: Check that the file path is correct\n")
				}
				return err
			}
			defer parser.Close()

			ctx := cmd.Context()
			return withSession(ctx, func(s *session) error {
				im := matrix.NewImporter(s.store)
				im.SetLogger(s.logger)
				stats, err := im.Import(ctx, profileID, parser)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d genes x %d cases into profile %d (%d skipped)\n",
					stats.Rows, len(parser.Cases()), profileID, stats.Skipped)
				return nil
			})
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete all genes, case lists and alteration rows",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withSession(ctx, func(s *session) error {
				if err := s.backend.Reset(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Store reset")
				return nil
			})
		},
	}
}

func parseProfileID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid profile id %q", errUsage, s)
	}
	return id, nil
}
