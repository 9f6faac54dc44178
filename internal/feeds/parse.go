// Package feeds reads feed files (CSV or XLSX, one feed per file) into domain rows.
package feeds

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/period"
)

// Kind names what a file holds: one of the five feeds or the product attribute table.
type Kind string

const (
	KindForecast  = Kind(domain.FeedForecast)
	KindSellIn    = Kind(domain.FeedSellIn)
	KindSellOut   = Kind(domain.FeedSellOut)
	KindInventory = Kind(domain.FeedInventory)
	KindKAM       = Kind(domain.FeedKAM)
	KindProducts  Kind = "products"
)

// Kinds lists every kind in load order. Products go first so multipliers exist before feeds.
var Kinds = []Kind{KindProducts, KindForecast, KindSellIn, KindSellOut, KindInventory, KindKAM}

var (
	ErrUnknownKind   = errors.New("unknown feed kind")
	ErrUnsupported   = errors.New("unsupported feed file format")
	ErrMissingColumn = errors.New("missing required column")
)

var kindAliases = map[string]Kind{
	"forecast":      KindForecast,
	"collaboration": KindForecast,
	"sell_in":       KindSellIn,
	"sellin":        KindSellIn,
	"sell_out":      KindSellOut,
	"sellout":       KindSellOut,
	"inventory":     KindInventory,
	"kam":           KindKAM,
	"kam_budget":    KindKAM,
	"budget":        KindKAM,
	"products":      KindProducts,
	"product":       KindProducts,
}

// ParseKind accepts the canonical kind names and a few aliases.
func ParseKind(s string) (Kind, error) {
	if k, ok := kindAliases[normalizeHeader(s)]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// KindFromFilename derives the kind from a file name such as "sell_in_2025-03.csv". The longest
// alias that prefixes the base name wins.
func KindFromFilename(name string) (Kind, error) {
	base := normalizeHeader(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	var (
		best    Kind
		bestLen int
	)
	for alias, k := range kindAliases {
		if strings.HasPrefix(base, alias) && len(alias) > bestLen {
			best, bestLen = k, len(alias)
		}
	}
	if bestLen == 0 {
		return "", fmt.Errorf("%w: cannot infer from %q", ErrUnknownKind, name)
	}
	return best, nil
}

// Batch holds the rows parsed from one file. Only the slice matching Kind is populated.
type Batch struct {
	Kind    Kind
	Source  string
	Skipped int
	domain.Sources
}

// Len returns the number of parsed rows.
func (b *Batch) Len() int {
	switch b.Kind {
	case KindForecast:
		return len(b.Forecast)
	case KindSellIn:
		return len(b.SellIn)
	case KindSellOut:
		return len(b.SellOut)
	case KindInventory:
		return len(b.Inventory)
	case KindKAM:
		return len(b.KAM)
	case KindProducts:
		return len(b.Products)
	}
	return 0
}

// headerAliases maps normalised header text to the column name used below.
var headerAliases = map[string]string{
	"customer":             "customer_id",
	"customer_id":          "customer_id",
	"product":              "product_id",
	"product_id":           "product_id",
	"sku":                  "product_id",
	"location":             "location_id",
	"location_id":          "location_id",
	"postdate":             "postdate",
	"post_date":            "postdate",
	"date":                 "postdate",
	"source_date":          "postdate",
	"id":                   "id",
	"last_year":            "last_year",
	"ly":                   "last_year",
	"statistical_forecast": "statistical_forecast",
	"forecast":             "statistical_forecast",
	"approved_override":    "approved_override",
	"override":             "approved_override",
	"sales_manager_view":   "sales_manager_view",
	"quantity":             "quantity",
	"sell_in":              "quantity",
	"units":                "quantity",
	"prior_year":           "prior_year",
	"actual":               "actual",
	"sell_out":             "actual",
	"on_hand":              "on_hand",
	"inventory":            "on_hand",
	"kam_adjustment":       "kam_adjustment",
	"commercial_input":     "kam_adjustment",
	"budget":               "budget",
	"case_equivalent":      "case_equivalent",
	"cases":                "case_equivalent",
	"volume":               "volume",
	"weight":               "weight",
}

var requiredColumns = map[Kind][]string{
	KindForecast:  {"customer_id", "postdate"},
	KindSellIn:    {"customer_id", "postdate"},
	KindSellOut:   {"customer_id", "postdate"},
	KindInventory: {"customer_id", "postdate"},
	KindKAM:       {"customer_id", "postdate"},
	KindProducts:  {"product_id"},
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(s)
	return strings.Trim(s, "_")
}

// ParseFile opens path and parses it by extension. The kind is inferred from the file name when
// kind is empty.
func ParseFile(path string, kind Kind) (*Batch, error) {
	if kind == "" {
		k, err := KindFromFilename(path)
		if err != nil {
			return nil, err
		}
		kind = k
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed file %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f, filepath.Base(path), kind)
}

// Parse reads a CSV or XLSX stream. name is only used to pick the format and label the batch.
func Parse(r io.Reader, name string, kind Kind) (*Batch, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		records, err = readCSV(r)
	case ".xlsx", ".xlsm":
		records, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return parseRecords(records, name, kind)
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader.ReadAll()
}

// readXLSX returns the rows of the first sheet.
func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows from sheet %s: %w", sheets[0], err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		record, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// row gives named access to one record.
type row struct {
	cols   map[string]int
	record []string
}

func (r row) str(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

// num parses a numeric cell. Blank cells are zero.
func (r row) num(name string) (float64, error) {
	raw := strings.ReplaceAll(r.str(name), " ", "")
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", name, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("column %s: non-finite value %q", name, raw)
	}
	return v, nil
}

// optional parses a numeric cell that may be absent. Blank cells are nil.
func (r row) optional(name string) (*float64, error) {
	if r.str(name) == "" {
		return nil, nil
	}
	v, err := r.num(name)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// postDate returns the date cell as YYYY-MM-DD when it parses, and as written otherwise. Rows
// with unparseable dates still load and are counted as malformed when the matrix is built.
func (r row) postDate() string {
	raw := r.str("postdate")
	if t, err := period.ParseDate(raw); err == nil {
		return t.Format("2006-01-02")
	}
	return raw
}

func (r row) empty() bool {
	for _, v := range r.record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseRecords(records [][]string, name string, kind Kind) (*Batch, error) {
	batch := &Batch{Kind: kind, Source: name}
	if len(records) == 0 {
		return batch, nil
	}

	cols := make(map[string]int)
	for i, h := range records[0] {
		if canonical, ok := headerAliases[normalizeHeader(h)]; ok {
			if _, seen := cols[canonical]; !seen {
				cols[canonical] = i
			}
		}
	}
	required, ok := requiredColumns[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%s: %w: %s", name, ErrMissingColumn, c)
		}
	}

	for _, record := range records[1:] {
		r := row{cols: cols, record: record}
		if r.empty() {
			continue
		}
		if err := batch.add(r); err != nil {
			batch.Skipped++
		}
	}
	return batch, nil
}

func (b *Batch) add(r row) error {
	id, customer, product, location, date := r.str("id"), r.str("customer_id"), r.str("product_id"), r.str("location_id"), r.postDate()

	switch b.Kind {
	case KindForecast:
		var (
			fr  domain.ForecastRow
			err error
		)
		if fr.LastYear, err = r.num("last_year"); err != nil {
			return err
		}
		if fr.StatisticalForecast, err = r.num("statistical_forecast"); err != nil {
			return err
		}
		if fr.ApprovedOverride, err = r.num("approved_override"); err != nil {
			return err
		}
		if fr.SalesManagerView, err = r.num("sales_manager_view"); err != nil {
			return err
		}
		fr.ID, fr.CustomerID, fr.ProductID, fr.LocationID, fr.PostDate = id, customer, product, location, date
		b.Forecast = append(b.Forecast, fr)

	case KindSellIn:
		qty, err := r.num("quantity")
		if err != nil {
			return err
		}
		b.SellIn = append(b.SellIn, domain.SellInRow{ID: id, CustomerID: customer, ProductID: product, LocationID: location, PostDate: date, Quantity: qty})

	case KindSellOut:
		prior, err := r.num("prior_year")
		if err != nil {
			return err
		}
		actual, err := r.num("actual")
		if err != nil {
			return err
		}
		b.SellOut = append(b.SellOut, domain.SellOutRow{ID: id, CustomerID: customer, ProductID: product, LocationID: location, PostDate: date, PriorYear: prior, Actual: actual})

	case KindInventory:
		onHand, err := r.num("on_hand")
		if err != nil {
			return err
		}
		b.Inventory = append(b.Inventory, domain.InventoryRow{ID: id, CustomerID: customer, ProductID: product, LocationID: location, PostDate: date, OnHand: onHand})

	case KindKAM:
		adj, err := r.optional("kam_adjustment")
		if err != nil {
			return err
		}
		budget, err := r.optional("budget")
		if err != nil {
			return err
		}
		b.KAM = append(b.KAM, domain.KAMRow{ID: id, CustomerID: customer, ProductID: product, LocationID: location, PostDate: date, KAMAdjustment: adj, Budget: budget})

	case KindProducts:
		if product == "" {
			return fmt.Errorf("missing product id")
		}
		var (
			m   domain.UnitMultipliers
			err error
		)
		if m.CaseEquivalent, err = r.num("case_equivalent"); err != nil {
			return err
		}
		if m.Volume, err = r.num("volume"); err != nil {
			return err
		}
		if m.Weight, err = r.num("weight"); err != nil {
			return err
		}
		b.Products = append(b.Products, domain.ProductAttributes{ProductID: product, UnitMultipliers: m})
	}
	return nil
}
