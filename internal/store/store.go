// Package store persists the pipeline's columnar artifacts: the grid-region
// mapping, per-(date,variable) observation caches, and per-date output
// tables. Every write goes through a temp-file-then-rename publish so a
// concurrent reader never observes a partial artifact.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"gridfusion/internal/domain"
)

// Layout resolves artifact paths under the configured data directories.
// Observation caches are sharded by year and month like the upstream
// archive, daily outputs by year.
type Layout struct {
	MappingFile string
	RawDir      string
	OutputDir   string
}

// ObservationPath returns the acquisition cache path for one (date, variable).
func (l Layout) ObservationPath(d domain.Date, variable string) string {
	s := d.String()
	return filepath.Join(l.RawDir, s[:4], s[4:6], fmt.Sprintf("%s_%s.parquet", variable, s))
}

// DailyOutputPath returns the output table path for one date.
func (l Layout) DailyOutputPath(d domain.Date) string {
	s := d.String()
	return filepath.Join(l.OutputDir, s[:4], fmt.Sprintf("fusion_%s.parquet", s))
}

// WriteMapping persists the full mapping atomically, replacing any previous
// artifact wholesale.
func WriteMapping(path string, rows []domain.MappingRow) error {
	return writeAtomic(path, rows)
}

// ReadMapping loads a mapping artifact. A missing file is reported as
// fs.ErrNotExist so callers can distinguish "not built yet" from corruption.
func ReadMapping(path string) ([]domain.MappingRow, error) {
	rows, err := parquet.ReadFile[domain.MappingRow](path)
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", path, err)
	}
	return rows, nil
}

// MappingExists reports whether a mapping artifact is present.
func MappingExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteObservations persists one acquisition unit atomically.
func WriteObservations(path string, rows []domain.ObservationRow) error {
	return writeAtomic(path, rows)
}

// observationColumns are required in every acquisition artifact; hour
// confirms the artifact carries full daily resolution.
var observationColumns = []string{"grid_idx", "date", "hour", "value"}

// ReadObservations loads one acquisition unit. An absent artifact yields
// domain.ErrCacheMiss; a present artifact missing an expected column yields
// a domain.AggregationInputError.
func ReadObservations(path string) ([]domain.ObservationRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrCacheMiss)
		}
		return nil, fmt.Errorf("open observations %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat observations %s: %w", path, err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, &domain.AggregationInputError{Path: path, Err: err}
	}

	present := make(map[string]bool)
	for _, field := range pf.Schema().Fields() {
		present[field.Name()] = true
	}
	for _, col := range observationColumns {
		if !present[col] {
			return nil, &domain.AggregationInputError{Path: path, Err: fmt.Errorf("missing column %q", col)}
		}
	}

	rows, err := parquet.Read[domain.ObservationRow](f, st.Size())
	if err != nil {
		return nil, &domain.AggregationInputError{Path: path, Err: err}
	}
	return rows, nil
}

// ObservationExists reports whether the acquisition artifact for a unit is
// already published.
func ObservationExists(l Layout, d domain.Date, variable string) bool {
	_, err := os.Stat(l.ObservationPath(d, variable))
	return err == nil
}

// DailyRecord is the serialized form of one daily output row. It carries one
// column per variable in the domain registry, in canonical order; a variable
// added to the registry needs a matching column here and in WriteDailyOutput.
// TestWriteDailyOutputCoversRegistry fails if the two drift apart. Absent
// aggregates stay null rather than zero.
type DailyRecord struct {
	RegionCode string   `parquet:"region_code"`
	RegionName *string  `parquet:"region_name,optional"`
	Ta         *float64 `parquet:"ta,optional"`
	Rn60m      *float64 `parquet:"rn_60m,optional"`
	Sd3hr      *float64 `parquet:"sd_3hr,optional"`
}

// WriteDailyOutput persists a daily output table atomically.
func WriteDailyOutput(path string, table *domain.DailyTable) error {
	records := make([]DailyRecord, len(table.Rows))
	for i, row := range table.Rows {
		records[i] = DailyRecord{
			RegionCode: row.RegionCode,
			RegionName: row.RegionName,
			Ta:         row.Values["ta"],
			Rn60m:      row.Values["rn_60m"],
			Sd3hr:      row.Values["sd_3hr"],
		}
	}
	return writeAtomic(path, records)
}

// writeAtomic writes rows to a temp file in the destination directory and
// renames it into place, so the artifact path only ever holds complete files.
func writeAtomic[T any](path string, rows []T) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*.parquet")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp artifact: %w", err)
	}

	if err := parquet.WriteFile(tmpName, rows); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish artifact %s: %w", path, err)
	}
	return nil
}
