package feeds

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/repository"
	"github.com/AdvantusAI/m8-collab/internal/repository/memory"
)

var (
	_ Writer = (*repository.FeedRepository)(nil)
	_ Writer = (*memory.Store)(nil)
)

const forecastCSV = `Customer ID,Product,Location,Post Date,Last Year,Forecast,Override,Sales Manager View
C1,P1,L1,2025-03-01,10,120,0,5
C1,P1,L1,2025-04-01T00:00:00,11,abc,0,5
C2,,L2,2025-03-05,,80,90,
,,,,,,,
`

func TestParseCSVMapsHeadersAndSkipsBadNumbers(t *testing.T) {
	b, err := Parse(strings.NewReader(forecastCSV), "forecast.csv", KindForecast)
	require.NoError(t, err)

	assert.Equal(t, 1, b.Skipped)
	require.Len(t, b.Forecast, 2)
	assert.Equal(t, domain.ForecastRow{
		CustomerID: "C1", ProductID: "P1", LocationID: "L1", PostDate: "2025-03-01",
		LastYear: 10, StatisticalForecast: 120, SalesManagerView: 5,
	}, b.Forecast[0])
	assert.Equal(t, "", b.Forecast[1].ProductID)
	assert.Equal(t, 90.0, b.Forecast[1].ApprovedOverride)
	assert.Equal(t, 2, b.Len())
}

func TestParseKAMKeepsBlankValuesNil(t *testing.T) {
	csv := "customer_id,product_id,location_id,postdate,commercial_input,budget\nC1,P1,L1,2025-03-01,,500\n"
	b, err := Parse(strings.NewReader(csv), "kam.csv", KindKAM)
	require.NoError(t, err)
	require.Len(t, b.KAM, 1)
	assert.Nil(t, b.KAM[0].KAMAdjustment)
	require.NotNil(t, b.KAM[0].Budget)
	assert.Equal(t, 500.0, *b.KAM[0].Budget)
}

func TestParseKeepsUnparseableDates(t *testing.T) {
	csv := "customer_id,product_id,postdate,quantity\nC1,P1,03/2025,4\n"
	b, err := Parse(strings.NewReader(csv), "sell_in.csv", KindSellIn)
	require.NoError(t, err)
	require.Len(t, b.SellIn, 1)
	assert.Equal(t, "03/2025", b.SellIn[0].PostDate)
}

func TestParseRejectsMissingColumnsAndFormats(t *testing.T) {
	_, err := Parse(strings.NewReader("product_id,quantity\nP1,3\n"), "sell_in.csv", KindSellIn)
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = Parse(strings.NewReader(""), "sell_in.json", KindSellIn)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"product_id", "case_equivalent", "volume", "weight"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"P1", 1, 2.5, 0.75}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"", 1, 1, 1}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	b, err := Parse(&buf, "products.xlsx", KindProducts)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Skipped)
	require.Len(t, b.Products, 1)
	assert.Equal(t, domain.ProductAttributes{
		ProductID:       "P1",
		UnitMultipliers: domain.UnitMultipliers{CaseEquivalent: 1, Volume: 2.5, Weight: 0.75},
	}, b.Products[0])
}

func TestKindFromFilename(t *testing.T) {
	cases := map[string]Kind{
		"sell_in_2025-03.csv":   KindSellIn,
		"Sell-Out March.xlsx":   KindSellOut,
		"kam_budget_2025.csv":   KindKAM,
		"products.csv":          KindProducts,
		"/tmp/forecast_v2.xlsx": KindForecast,
	}
	for name, want := range cases {
		got, err := KindFromFilename(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := KindFromFilename("notes.csv")
	assert.ErrorIs(t, err, ErrUnknownKind)

	k, err := ParseKind("Sell In")
	require.NoError(t, err)
	assert.Equal(t, KindSellIn, k)
}

func TestLoadFilesIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("sell_in.csv", "id,customer_id,product_id,location_id,postdate,quantity\ns1,C1,P1,L1,2025-03-01,4\ns2,C1,P1,L1,2025-04-01,6\n")
	write("products.csv", "product_id,case_equivalent,volume,weight\nP1,1,2,3\n")
	write("readme.md", "ignored")

	paths, err := ListFiles(dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	store := memory.NewStore()
	loader := NewLoader(store)
	ctx := context.Background()

	reports, err := loader.LoadFiles(ctx, paths)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, KindProducts, reports[0].Kind)
	assert.Equal(t, Report{Source: "sell_in.csv", Kind: KindSellIn, Parsed: 2, Written: 2}, reports[1])

	_, err = loader.LoadFiles(ctx, paths)
	require.NoError(t, err)

	rows, err := store.SellIn(ctx, repository.SourceQuery{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	products, err := store.Products(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, products[0].Volume)
}
