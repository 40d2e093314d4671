package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"mofgen/internal/analysis"
	"mofgen/internal/blob"
	"mofgen/internal/config"
	"mofgen/internal/core"
)

// app carries state shared by the subcommands.
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	envFiles   []string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "mofgen",
		Short:         "Assemble and store MOF material records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	root.AddCommand(
		a.analyzeCmd(),
		a.ingestCmd(),
		a.getCmd(),
		a.listCmd(),
		a.deleteCmd(),
		a.restoreCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath, a.envFiles...)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.NewLogger(a.stderr)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

const sorbateOption = "sorbate"

// toolFlags are per-run tool options layered over the configured ones.
type toolFlags struct {
	sorbates  []string
	mofidOpts []string
}

func (f *toolFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.sorbates, "sorbate", nil, "sorbate species for the pore-geometry tool (repeatable)")
	cmd.Flags().StringArrayVar(&f.mofidOpts, "mofid-opt", nil, "identifier tool option key=value (repeatable)")
}

func (f *toolFlags) options(cfg *config.Config) ([]core.Option, error) {
	pore := cfg.Tools.PoreGeometry.AnalysisOptions()
	if len(f.sorbates) > 0 {
		if pore == nil {
			pore = analysis.Options{}
		}
		// flags replace the configured sorbates
		pore[sorbateOption] = append([]string(nil), f.sorbates...)
	}
	mofid := cfg.Tools.Identifier.AnalysisOptions()
	for _, kv := range f.mofidOpts {
		key, value, ok := splitKeyValue(kv)
		if !ok {
			return nil, fmt.Errorf("--mofid-opt %q: expected key=value", kv)
		}
		mofid = mofid.Add(key, value)
	}
	return []core.Option{core.WithPoreGeometryOptions(pore), core.WithIdentifierOptions(mofid)}, nil
}

// openService wires the configured tools, store, archive and cache.
func (a *app) openService(ctx context.Context, extra ...core.Option) (*core.Service, error) {
	store, err := core.OpenRecordStore(ctx, a.cfg.RecordStore())
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	cache, err := core.NewResultCache(a.cfg.Cache.Size)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	opts := []core.Option{
		core.WithLogger(a.logger),
		core.WithStore(store),
		core.WithCache(cache),
	}
	if blobCfg, ok := a.cfg.Archive(); ok {
		bs, err := blob.Open(ctx, blobCfg)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		opts = append(opts, core.WithArchive(blob.NewArchive(bs)))
	}
	if a.cfg.Log.Trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(a.stderr)))
	}
	opts = append(opts, extra...)
	return core.NewService(a.cfg.AnalysisTools(), opts...), nil
}

func closeService(svc *core.Service, errp *error) {
	if err := svc.Close(); err != nil {
		*errp = errors.Join(*errp, fmt.Errorf("close record store: %w", err))
	}
}
