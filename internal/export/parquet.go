// Package export writes index results as long-format Parquet tables, one row
// per pixel, for analysis outside GIS tools.
package export

import (
	"math"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/climidx/climidx/internal/models"
	"github.com/climidx/climidx/internal/reduce"
)

// GridRow is one pixel of one result grid
type GridRow struct {
	// RunID identifies the orchestrator call that produced the value
	RunID string `parquet:"run_id,snappy,dict"`

	// Index is the output grid name, e.g. t2m-TXx
	Index string `parquet:"index,snappy,dict"`

	Row       int32   `parquet:"row,snappy"`
	Col       int32   `parquet:"col,snappy"`
	Latitude  float64 `parquet:"latitude,snappy"`
	Longitude float64 `parquet:"longitude,snappy"`

	// Value is null for pixels with insufficient input
	Value *float32 `parquet:"value,optional,snappy"`
}

// TrendRow is one pixel of a trend report
type TrendRow struct {
	RunID     string  `parquet:"run_id,snappy,dict"`
	Row       int32   `parquet:"row,snappy"`
	Col       int32   `parquet:"col,snappy"`
	Latitude  float64 `parquet:"latitude,snappy"`
	Longitude float64 `parquet:"longitude,snappy"`

	Slope       *float32 `parquet:"slope,optional,snappy"`
	ZScore      *float32 `parquet:"z_score,optional,snappy"`
	PValue      *float64 `parquet:"p_value,optional,snappy"`
	Significant *float32 `parquet:"significant,optional,snappy"`
}

func optional32(v float32) *float32 {
	if math.IsNaN(float64(v)) {
		return nil
	}
	return &v
}

func optional64(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// GridRows flattens grids into rows, grid by grid in row-major pixel order
func GridRows(runID string, grids []*models.ResultGrid) []GridRow {
	n := 0
	for _, g := range grids {
		n += len(g.Values)
	}
	rows := make([]GridRow, 0, n)
	for _, g := range grids {
		for y := 0; y < g.Rows(); y++ {
			for x := 0; x < g.Cols(); x++ {
				rows = append(rows, GridRow{
					RunID:     runID,
					Index:     g.Name,
					Row:       int32(y),
					Col:       int32(x),
					Latitude:  g.Latitudes[y],
					Longitude: g.Longitudes[x],
					Value:     optional32(g.At(y, x)),
				})
			}
		}
	}
	return rows
}

// TrendRows flattens a trend report into rows and derives the two-sided
// p-value of each Z score
func TrendRows(runID string, report *models.TrendReport) []TrendRow {
	g := report.Slope
	rows := make([]TrendRow, 0, len(g.Values))
	for y := 0; y < g.Rows(); y++ {
		for x := 0; x < g.Cols(); x++ {
			z := report.ZScore.At(y, x)
			rows = append(rows, TrendRow{
				RunID:       runID,
				Row:         int32(y),
				Col:         int32(x),
				Latitude:    g.Latitudes[y],
				Longitude:   g.Longitudes[x],
				Slope:       optional32(g.At(y, x)),
				ZScore:      optional32(z),
				PValue:      optional64(reduce.MannKendallP(float64(z))),
				Significant: optional32(report.Significant.At(y, x)),
			})
		}
	}
	return rows
}

// WriteGridsParquet writes grid rows to outputPath
func WriteGridsParquet(data []GridRow, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteTrendParquet writes trend rows to outputPath
func WriteTrendParquet(data []TrendRow, outputPath string) error {
	return writeParquet(data, outputPath)
}

func writeParquet[T any](data []T, outputPath string) (err error) {
	file, err := os.Create(outputPath)
	if err != nil {
		return models.WrapIO(err, "create %s", outputPath)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = models.WrapIO(cerr, "close %s", outputPath)
		}
		if err != nil {
			_ = os.Remove(outputPath)
		}
	}()

	// schema is derived from the struct tags
	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return models.WrapIO(err, "write %s", outputPath)
	}
	if err := writer.Close(); err != nil {
		return models.WrapIO(err, "flush %s", outputPath)
	}
	return nil
}

// Parquet exports result grids and trend reports as Parquet tables
type Parquet struct{}

// ExportGrids writes grids to path
func (Parquet) ExportGrids(path, runID string, grids []*models.ResultGrid) error {
	return WriteGridsParquet(GridRows(runID, grids), path)
}

// ExportTrend writes report to path
func (Parquet) ExportTrend(path, runID string, report *models.TrendReport) error {
	if report == nil || report.Slope == nil || report.ZScore == nil || report.Significant == nil {
		return models.NewComputationError("incomplete trend report")
	}
	return WriteTrendParquet(TrendRows(runID, report), path)
}
