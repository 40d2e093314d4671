package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mofgen/pkg/domain"
)

func (a *app) analyzeCmd() *cobra.Command {
	var (
		fields overrideFlags
		tools  toolFlags
	)
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Build a material record for a structure without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			overrides, err := fields.overrides(cmd)
			if err != nil {
				return err
			}
			toolOpts, err := tools.options(a.cfg)
			if err != nil {
				return err
			}
			st, err := readStructure(args[0])
			if err != nil {
				return err
			}
			svc, err := a.openService(cmd.Context(), toolOpts...)
			if err != nil {
				return err
			}
			defer closeService(svc, &err)
			rec, err := svc.MaterialFromStructure(cmd.Context(), st, overrides...)
			if err != nil {
				return err
			}
			return printJSON(a.stdout, rec)
		},
	}
	fields.register(cmd)
	tools.register(cmd)
	return cmd
}

func (a *app) ingestCmd() *cobra.Command {
	var (
		fields overrideFlags
		tools  toolFlags
		jobs   int
	)
	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Build, store and archive material records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if fields.identifier != "" && len(args) > 1 {
				return errors.New("--identifier applies to a single file")
			}
			overrides, err := fields.overrides(cmd)
			if err != nil {
				return err
			}
			toolOpts, err := tools.options(a.cfg)
			if err != nil {
				return err
			}
			paths, err := absPaths(args)
			if err != nil {
				return err
			}
			svc, err := a.openService(cmd.Context(), toolOpts...)
			if err != nil {
				return err
			}
			defer closeService(svc, &err)

			var mu sync.Mutex
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(jobs, 1))
			for i, path := range args {
				g.Go(func() error {
					st, err := readStructure(paths[i])
					if err != nil {
						return err
					}
					rec, err := svc.Ingest(ctx, st, overrides...)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					mu.Lock()
					defer mu.Unlock()
					_, err = fmt.Fprintf(a.stdout, "%s\t%s\n", rec.ID(), path)
					return err
				})
			}
			return g.Wait()
		},
	}
	fields.register(cmd)
	tools.register(cmd)
	cmd.Flags().IntVar(&jobs, "jobs", 1, "files processed concurrently")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	var asCIF bool
	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Print a stored material record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			svc, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeService(svc, &err)
			if asCIF {
				cif, err := svc.StructureCIF(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = a.stdout.Write(cif)
				return err
			}
			rec, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(a.stdout, rec)
		},
	}
	cmd.Flags().BoolVar(&asCIF, "cif", false, "print the structure as CIF")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var (
		filter domain.ListFilter
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored material records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if filter.Limit < 0 || filter.Offset < 0 {
				return errors.New("--limit and --offset must be non-negative")
			}
			svc, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeService(svc, &err)
			recs, err := svc.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(a.stdout, recs)
			}
			return printTable(a.stdout, recs)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&filter.ChemicalSystem, "chemical-system", "", "filter by chemical system, e.g. C-H-O-Zn")
	fs.StringVar(&filter.FormulaReduced, "formula", "", "filter by reduced formula")
	fs.StringVar(&filter.Method, "method", "", "filter by method")
	fs.IntVar(&filter.SpaceGroupNumber, "space-group", 0, "filter by space group number")
	fs.IntVar(&filter.Limit, "limit", 0, "maximum records (0 for all)")
	fs.IntVar(&filter.Offset, "offset", 0, "records to skip")
	fs.BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored material record and its archive entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			svc, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeService(svc, &err)
			existed, err := svc.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !existed {
				return domain.NotFoundError{ID: args[0]}
			}
			_, err = fmt.Fprintf(a.stdout, "deleted %s\n", args[0])
			return err
		},
	}
}

func (a *app) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Reload the record store from the blob archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			svc, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeService(svc, &err)
			n, err := svc.Restore(cmd.Context())
			if n > 0 || err == nil {
				fmt.Fprintf(a.stdout, "restored %d records\n", n)
			}
			return err
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, recs []domain.MaterialRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFORMULA\tCHEMSYS\tSPACE GROUP\tMETHOD")
	for _, rec := range recs {
		sg := "-"
		if rec.SpaceGroupNumber != nil {
			sg = strconv.Itoa(*rec.SpaceGroupNumber)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.ID(), orDash(rec.FormulaReduced), orDash(rec.ChemicalSystem), sg, orDash(rec.Method))
	}
	return tw.Flush()
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
