package aggregation

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spec-kit/mini-inbox/internal/config"
	"github.com/spec-kit/mini-inbox/internal/domain"
	"github.com/spec-kit/mini-inbox/internal/observability"
)

const scenarioCSV = `order_id,customer_id,order_status,order_purchase_timestamp,order_approved_at
a1,c1,delivered,2017-10-02 10:56:33,2017-10-02 11:07:15
a2,c2,delivered,2018-07-24 20:41:37,2018-07-26 03:24:27
a3,c3,canceled,2018-08-08 08:38:49,
`

func newTestAggregator(t *testing.T, input string) (*Aggregator, string) {
	t.Helper()
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "raw", "orders.csv")
	if input != "" {
		require.NoError(t, os.MkdirAll(filepath.Dir(inputPath), 0o755))
		require.NoError(t, os.WriteFile(inputPath, []byte(input), 0o644))
	}
	outputPath := filepath.Join(dir, "processed", "metrics.json")
	agg := NewAggregator(config.MetricsConfig{
		InputPath:     inputPath,
		OutputPath:    outputPath,
		DatasetSource: "Olist E-Commerce (Kaggle)",
	}, observability.NewMetrics(), nil)
	return agg, outputPath
}

func readArtifact(t *testing.T, path string) domain.MetricsSummary {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var summary domain.MetricsSummary
	require.NoError(t, json.Unmarshal(raw, &summary))
	return summary
}

func TestRunScenario(t *testing.T) {
	agg, out := newTestAggregator(t, scenarioCSV)
	agg.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }

	summary, err := agg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.KPITotalTickets)
	assert.Equal(t, map[string]int{"delivered": 2, "canceled": 1}, summary.BreakdownByStatus)
	assert.Equal(t, domain.YearCounts{2017: 1, 2018: 2}, summary.BreakdownByYear)

	onDisk := readArtifact(t, out)
	assert.Equal(t, *summary, onDisk)
	assert.Equal(t, "2024-05-06 07:08:09", onDisk.LastUpdate)
	assert.Equal(t, "Olist E-Commerce (Kaggle)", onDisk.DatasetSource)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"breakdown_by_year": {
        "2017": 1,
        "2018": 2
    }`)
}

func TestRunEmptyInput(t *testing.T) {
	agg, out := newTestAggregator(t, "order_id,order_status,order_purchase_timestamp\n")

	summary, err := agg.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.KPITotalTickets)
	assert.Empty(t, summary.BreakdownByStatus)
	assert.Empty(t, summary.BreakdownByYear)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"breakdown_by_status": {}`)
	assert.Contains(t, string(raw), `"breakdown_by_year": {}`)
}

func TestRunIsIdempotentApartFromTimestamp(t *testing.T) {
	agg, out := newTestAggregator(t, scenarioCSV)

	agg.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err := agg.Run(context.Background())
	require.NoError(t, err)
	first := readArtifact(t, out)

	agg.now = func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }
	_, err = agg.Run(context.Background())
	require.NoError(t, err)
	second := readArtifact(t, out)

	assert.NotEqual(t, first.LastUpdate, second.LastUpdate)
	first.LastUpdate, second.LastUpdate = "", ""
	assert.Equal(t, first, second)
}

func TestRunMissingInputLeavesArtifact(t *testing.T) {
	agg, out := newTestAggregator(t, "")
	reader := NewReader(out, nil)

	_, err := agg.Run(context.Background())
	assert.ErrorIs(t, err, ErrInputMissing)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
	_, err = reader.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNotComputed)

	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o755))
	require.NoError(t, os.WriteFile(out, []byte(`{"kpi_total_tickets":9}`), 0o644))

	_, err = agg.Run(context.Background())
	assert.ErrorIs(t, err, ErrInputMissing)
	data, err := reader.Latest(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"kpi_total_tickets":9}`, string(data))
}

func TestRunParseFailureAbortsWithoutWrite(t *testing.T) {
	bad := "order_id,order_status,order_purchase_timestamp\n" +
		"a1,delivered,2017-10-02 10:56:33\n" +
		"a2,delivered,not-a-date\n"
	agg, out := newTestAggregator(t, bad)
	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o755))
	require.NoError(t, os.WriteFile(out, []byte(`{"previous":true}`), 0o644))

	_, err := agg.Run(context.Background())
	require.ErrorIs(t, err, ErrParseFailure)
	assert.Contains(t, err.Error(), "row 3")

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"previous":true}`, string(raw))

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestRunMissingColumn(t *testing.T) {
	agg, _ := newTestAggregator(t, "order_id,order_status\na1,delivered\n")

	_, err := agg.Run(context.Background())
	require.ErrorIs(t, err, ErrParseFailure)
	assert.Contains(t, err.Error(), ColumnPurchasedAt)
}

func TestReadRecordsHandlesBOMAndLayouts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.csv")
	content := "\ufefforder_id,order_status,order_purchase_timestamp\n" +
		"a1,shipped,2016-09-04T21:15:19Z\n" +
		"a2,invoiced,2016-10-03\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	records, err := ReadRecords(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a1", records[0].OrderID)
	assert.Equal(t, 2016, records[1].PurchasedAt.Year())
}

func TestReadRecordsFromExcel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"order_id", "order_status", "order_purchase_timestamp"},
		{"a1", "delivered", "2017-10-02 10:56:33"},
		{"a2", "canceled", "2018-08-08 08:38:49"},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	records, err := ReadRecords(context.Background(), path)
	require.NoError(t, err)
	summary := Aggregate(records, "xlsx", time.Now())
	assert.Equal(t, 2, summary.KPITotalTickets)
	assert.Equal(t, domain.YearCounts{2017: 1, 2018: 1}, summary.BreakdownByYear)
}

func TestReadRecordsFromExcelDateCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.xlsx")
	purchased := time.Date(2017, 10, 2, 10, 56, 0, 0, time.UTC)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"order_id", "order_status", "order_purchase_timestamp"},
		{"a1", "delivered", purchased},
		{"a2", "shipped", purchased.AddDate(1, 0, 0)},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	records, err := ReadRecords(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "delivered", records[0].Status)
	assert.WithinDuration(t, purchased, records[0].PurchasedAt, time.Second)

	summary := Aggregate(records, "xlsx", time.Now())
	assert.Equal(t, domain.YearCounts{2017: 1, 2018: 1}, summary.BreakdownByYear)
}

func TestParseTimestampSerialOnlyForWorkbooks(t *testing.T) {
	ts, err := parseTimestamp("43010.5", true)
	require.NoError(t, err)
	assert.Equal(t, 2017, ts.Year())

	_, err = parseTimestamp("43010.5", false)
	assert.Error(t, err)
}
