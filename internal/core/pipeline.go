package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mofgen/internal/analysis"
	"mofgen/internal/workdir"
	"mofgen/pkg/domain"
	"mofgen/pkg/structure"
)

// TempCIFName is the file the identifier tool reads inside its working directory.
const TempCIFName = "temp.cif"

const workdirPrefix = "mofgen-"

var errNoStructure = &domain.ValidationError{Field: "Structure", Reason: "is required"}

// IdentifierFromStructure runs the identifier tool on st inside a fresh
// temporary working directory. Tool failures are logged and yield a record
// with every field nil; malformed tool output is a validation error.
func (s *Service) IdentifierFromStructure(ctx context.Context, st *structure.Structure, opts analysis.Options) (domain.IdentifierRecord, error) {
	if st == nil {
		return domain.IdentifierRecord{}, errNoStructure
	}
	out, err := s.identify(ctx, st, opts)
	if err != nil {
		s.toolFailed(analysis.ToolIdentifier, err)
		return domain.IdentifierRecord{}, nil
	}
	return domain.IdentifierRecordFromOutput(out)
}

// PoreGeometryFromStructure runs the pore-geometry tool on st inside a fresh
// temporary working directory. A tool failure is logged and returns nil, which
// differs from the empty slice of a run that reported no sorbates.
func (s *Service) PoreGeometryFromStructure(ctx context.Context, st *structure.Structure, opts analysis.Options) ([]domain.PoreGeometryRecord, error) {
	if st == nil {
		return nil, errNoStructure
	}
	out, err := s.assess(ctx, st, opts)
	if err != nil {
		s.toolFailed(analysis.ToolPoreGeometry, err)
		return nil, nil
	}
	return domain.PoreGeometryRecordsFromOutput(out)
}

// MaterialFromStructure computes the structural descriptors of st, runs the
// symmetry, identifier and pore-geometry tools and assembles the record with
// overrides applied last. Tool failures only leave fields nil; validation
// errors are returned.
func (s *Service) MaterialFromStructure(ctx context.Context, st *structure.Structure, overrides ...domain.Override) (domain.MaterialRecord, error) {
	var rec domain.MaterialRecord
	err := s.observe(ctx, OpMaterial, func(ctx context.Context) error {
		var err error
		rec, err = s.material(ctx, st, domain.Collect(overrides...))
		return err
	})
	return rec, err
}

func (s *Service) material(ctx context.Context, st *structure.Structure, overrides domain.Overrides) (domain.MaterialRecord, error) {
	if st == nil {
		return domain.MaterialRecord{}, errNoStructure
	}
	comp := st.Composition()
	computed := domain.MaterialRecord{
		Structure:      st,
		Density:        ptr(st.Density()),
		Volume:         ptr(st.Volume()),
		NumSites:       ptr(st.NumSites()),
		Formula:        ptr(comp.Formula()),
		FormulaReduced: ptr(comp.ReducedFormula()),
		ChemicalSystem: ptr(comp.ChemicalSystem()),
		NumElements:    ptr(comp.NumElements()),
	}

	sym, err := s.symmetry(ctx, st)
	if err != nil {
		s.toolFailed(analysis.ToolSymmetry, err)
	} else {
		computed.SpaceGroupNumber = ptr(sym.Number)
		computed.SpaceGroupSymbol = ptr(sym.Symbol)
	}

	mofID, err := s.IdentifierFromStructure(ctx, st, s.identifierOpts)
	if err != nil {
		return domain.MaterialRecord{}, err
	}
	computed.MofId = &mofID

	if computed.ZeoPlusPlus, err = s.PoreGeometryFromStructure(ctx, st, s.poreOpts); err != nil {
		return domain.MaterialRecord{}, err
	}
	return domain.AssembleMaterial(computed, overrides)
}

func (s *Service) symmetry(ctx context.Context, st *structure.Structure) (analysis.Symmetry, error) {
	if s.tools.Symmetry == nil {
		return analysis.Symmetry{}, analysis.ErrNotConfigured
	}
	cif, err := st.CIF()
	if err != nil {
		return analysis.Symmetry{}, fmt.Errorf("serialize structure: %w", err)
	}
	out, _, err := cached(s.cache, cacheKey(analysis.ToolSymmetry, nil, cif), func() (analysis.Symmetry, error) {
		var sym analysis.Symmetry
		err := s.observe(ctx, analysis.ToolSymmetry, func(ctx context.Context) error {
			var err error
			sym, err = s.tools.Symmetry.Analyze(ctx, st)
			return err
		})
		return sym, err
	})
	return out, err
}

func (s *Service) identify(ctx context.Context, st *structure.Structure, opts analysis.Options) (map[string]any, error) {
	if s.tools.Identifier == nil {
		return nil, analysis.ErrNotConfigured
	}
	cif, err := st.CIF()
	if err != nil {
		return nil, fmt.Errorf("serialize structure: %w", err)
	}
	out, _, err := cached(s.cache, cacheKey(analysis.ToolIdentifier, opts, cif), func() (map[string]any, error) {
		var out map[string]any
		err := s.observe(ctx, analysis.ToolIdentifier, func(ctx context.Context) error {
			return workdir.Run(workdirPrefix, func(dir string) error {
				path := filepath.Join(dir, TempCIFName)
				if err := os.WriteFile(path, []byte(cif), 0o600); err != nil {
					return fmt.Errorf("write %s: %w", TempCIFName, err)
				}
				var err error
				out, err = s.tools.Identifier.Identify(ctx, path, opts)
				return err
			})
		})
		return out, err
	})
	return out, err
}

func (s *Service) assess(ctx context.Context, st *structure.Structure, opts analysis.Options) ([]domain.SorbateOutput, error) {
	if s.tools.PoreGeometry == nil {
		return nil, analysis.ErrNotConfigured
	}
	cif, err := st.CIF()
	if err != nil {
		return nil, fmt.Errorf("serialize structure: %w", err)
	}
	out, _, err := cached(s.cache, cacheKey(analysis.ToolPoreGeometry, opts, cif), func() ([]domain.SorbateOutput, error) {
		var out []domain.SorbateOutput
		err := s.observe(ctx, analysis.ToolPoreGeometry, func(ctx context.Context) error {
			return workdir.Run(workdirPrefix, func(dir string) error {
				var err error
				out, err = s.tools.PoreGeometry.Assess(ctx, dir, st, opts)
				return err
			})
		})
		if err == nil && out == nil {
			out = []domain.SorbateOutput{}
		}
		return out, err
	})
	return out, err
}

func (s *Service) toolFailed(tool string, err error) {
	args := []any{"tool", tool, "error", err}
	var cmdErr *analysis.CommandError
	if errors.As(err, &cmdErr) {
		args = append(args, "exit_code", cmdErr.ExitCode)
	}
	s.logger.Warn("analysis tool failed", args...)
}

func ptr[T any](v T) *T { return &v }
