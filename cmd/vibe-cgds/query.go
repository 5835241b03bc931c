package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inodb/vibe-cgds/internal/alteration"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read alteration data",
	}
	cmd.AddCommand(newQueryMapCmd())
	cmd.AddCommand(newQueryGenesCmd())
	cmd.AddCommand(newQueryCountCmd())
	return cmd
}

func newQueryMapCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "map <profile-id> <gene>...",
		Short: "Print case values of genes in a profile",
		Long: `Print the case -> value map of one or more genes in a profile.
Genes are given as Entrez ids or Hugo symbols.`,
		Example: `  vibe-cgds --backend duckdb --db cgds.duckdb query map 1 BRCA1
  vibe-cgds --backend duckdb --db cgds.duckdb query map -f yaml 1 672 TP53`,
		Args: usageArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID, err := parseProfileID(args[0])
			if err != nil {
				return err
			}
			if format != "tab" && format != "yaml" {
				return fmt.Errorf("%w: unknown output format %q", errUsage, format)
			}

			ctx := cmd.Context()
			return withSession(ctx, func(s *session) error {
				genes := make([]alteration.Gene, 0, len(args)-1)
				ids := make([]int64, 0, len(args)-1)
				for _, arg := range args[1:] {
					g, err := lookupGene(ctx, s.backend, arg)
					if err != nil {
						return err
					}
					genes = append(genes, g)
					ids = append(ids, g.EntrezGeneID)
				}

				maps := make(map[int64]map[string]string, len(ids))
				if len(ids) == 1 {
					m, err := s.store.GetGeneticAlterationMap(ctx, profileID, ids[0])
					if err != nil {
						return err
					}
					maps[ids[0]] = m
				} else {
					maps, err = s.store.GetGeneticAlterationMaps(ctx, profileID, ids)
					if err != nil {
						return err
					}
				}

				cases, err := s.backend.OrderedCases(ctx, profileID)
				if err != nil {
					return err
				}
				if format == "yaml" {
					return writeMapsYAML(cmd.OutOrStdout(), genes, maps)
				}
				return writeMapsTab(cmd.OutOrStdout(), cases, genes, maps)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "tab", "Output format: tab, yaml")
	return cmd
}

func newQueryGenesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genes <profile-id>",
		Short: "List the genes that have data in a profile",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID, err := parseProfileID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withSession(ctx, func(s *session) error {
				set, err := s.store.GetGenesInProfile(ctx, profileID)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, "Entrez_Gene_Id\tHugo_Symbol")
				for _, g := range set.Sorted() {
					fmt.Fprintf(w, "%d\t%s\n", g.EntrezGeneID, g.HugoSymbol)
				}
				return nil
			})
		},
	}
}

func newQueryCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored alteration rows",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withSession(ctx, func(s *session) error {
				n, err := s.store.Count(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

// lookupGene resolves a gene argument given as an Entrez id or a symbol.
func lookupGene(ctx context.Context, reg alteration.GeneRegistry, arg string) (alteration.Gene, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return reg.ResolveGene(ctx, id)
	}
	return reg.GeneBySymbol(ctx, arg)
}

// writeMapsTab writes one row per case and one column per gene. Genes
// without data in the profile are printed as empty columns.
func writeMapsTab(w io.Writer, cases []string, genes []alteration.Gene, maps map[int64]map[string]string) error {
	header := make([]string, 0, len(genes)+1)
	header = append(header, "Case")
	for _, g := range genes {
		header = append(header, g.HugoSymbol)
	}
	if _, err := fmt.Fprintln(w, strings.Join(header, "\t")); err != nil {
		return err
	}

	fields := make([]string, len(genes)+1)
	for _, c := range cases {
		fields[0] = c
		for i, g := range genes {
			fields[i+1] = maps[g.EntrezGeneID][c]
		}
		if _, err := fmt.Fprintln(w, strings.Join(fields, "\t")); err != nil {
			return err
		}
	}
	return nil
}

func writeMapsYAML(w io.Writer, genes []alteration.Gene, maps map[int64]map[string]string) error {
	out := make(map[string]map[string]string, len(genes))
	for _, g := range genes {
		if m, ok := maps[g.EntrezGeneID]; ok {
			out[g.HugoSymbol] = m
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}
