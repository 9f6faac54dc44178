// Package export renders a matrix snapshot to CSV and XLSX and uploads it to object storage.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/storage"
)

const (
	matrixSheet  = "Matrix"
	summarySheet = "Summary"
	keyPrefix    = "snapshots"
)

var matrixHeader = []string{"customer_id", "product_id", "location_id", "metric", "label"}

// WriteCSV writes one line per entity and metric, with a column per period.
func WriteCSV(w io.Writer, view domain.MatrixView) error {
	writer := csv.NewWriter(w)

	header := append(append([]string(nil), matrixHeader...), view.Periods...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range view.Rows {
		record := []string{row.CustomerID, row.ProductID, row.LocationID, string(row.Metric), row.Label}
		for _, cell := range row.Cells {
			record = append(record, formatValue(cell.Value))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteXLSX writes the matrix and the rollup summary as two sheets.
func WriteXLSX(w io.Writer, view domain.MatrixView, summary domain.CollaborationSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), matrixSheet); err != nil {
		return err
	}
	header := make([]interface{}, 0, len(matrixHeader)+len(view.Periods))
	for _, h := range matrixHeader {
		header = append(header, h)
	}
	for _, p := range view.Periods {
		header = append(header, p)
	}
	if err := setRow(f, matrixSheet, 1, header); err != nil {
		return err
	}
	for i, row := range view.Rows {
		values := []interface{}{row.CustomerID, row.ProductID, row.LocationID, string(row.Metric), row.Label}
		for _, cell := range row.Cells {
			values = append(values, cell.Value)
		}
		if err := setRow(f, matrixSheet, i+2, values); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	if err := setRow(f, summarySheet, 1, []interface{}{"customer_id", "product_id", "metric", "ytd", "ytg", "total"}); err != nil {
		return err
	}
	line := 2
	rows := append(append([]domain.SummaryRow(nil), summary.Rows...), summary.Total)
	for _, row := range rows {
		customer, product := row.CustomerID, row.ProductID
		if row.All {
			customer, product = "ALL", "ALL"
		}
		for _, metric := range domain.AllMetrics {
			v, ok := row.Metrics[metric]
			if !ok {
				continue
			}
			if err := setRow(f, summarySheet, line, []interface{}{customer, product, string(metric), v.YTD, v.YTG, v.Total}); err != nil {
				return err
			}
			line++
		}
	}

	return f.Write(w)
}

func setRow(f *excelize.File, sheet string, line int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Exporter uploads snapshots under snapshots/<timestamp>/.
type Exporter struct {
	store storage.ObjectStorage
	now   func() time.Time
}

func NewExporter(store storage.ObjectStorage) *Exporter {
	return &Exporter{store: store, now: time.Now}
}

// Export renders both formats and uploads them. It returns the uploaded keys.
func (e *Exporter) Export(ctx context.Context, name string, view domain.MatrixView, summary domain.CollaborationSummary) ([]string, error) {
	if name == "" {
		name = "collaboration"
	}
	dir := path.Join(keyPrefix, e.now().UTC().Format("20060102-150405"))

	var csvBuf, xlsxBuf bytes.Buffer
	if err := WriteCSV(&csvBuf, view); err != nil {
		return nil, fmt.Errorf("render csv snapshot: %w", err)
	}
	if err := WriteXLSX(&xlsxBuf, view, summary); err != nil {
		return nil, fmt.Errorf("render xlsx snapshot: %w", err)
	}

	uploads := []struct {
		key  string
		data []byte
	}{
		{path.Join(dir, name+".csv"), csvBuf.Bytes()},
		{path.Join(dir, name+".xlsx"), xlsxBuf.Bytes()},
	}

	keys := make([]string, 0, len(uploads))
	for _, u := range uploads {
		if err := e.store.UploadObject(ctx, u.key, u.data); err != nil {
			return keys, err
		}
		keys = append(keys, u.key)
		log.Info().Str("key", u.key).Int("bytes", len(u.data)).Msg("export: snapshot uploaded")
	}
	return keys, nil
}
