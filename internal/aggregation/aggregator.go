package aggregation

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/mini-inbox/internal/config"
	"github.com/spec-kit/mini-inbox/internal/domain"
	"github.com/spec-kit/mini-inbox/internal/observability"
)

// Required input columns.
const (
	ColumnOrderID     = "order_id"
	ColumnOrderStatus = "order_status"
	ColumnPurchasedAt = "order_purchase_timestamp"
)

var (
	// ErrInputMissing means the raw input file does not exist.
	ErrInputMissing = errors.New("aggregation input missing")
	// ErrParseFailure means the input could not be read as order records.
	ErrParseFailure = errors.New("aggregation parse failure")

	byteOrderMark = "\ufeff"

	timestampLayouts = []string{
		"2006-01-02 15:04:05",
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

// OrderRecord is the subset of an order row the aggregator needs.
type OrderRecord struct {
	OrderID     string
	Status      string
	PurchasedAt time.Time
}

// Aggregator turns the raw order export into the metrics artifact.
type Aggregator struct {
	cfg     config.MetricsConfig
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewAggregator builds an aggregator for the configured input and output paths.
func NewAggregator(cfg config.MetricsConfig, metrics *observability.Metrics, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{cfg: cfg, metrics: metrics, logger: logger, now: time.Now}
}

// Run reads the input, computes the summary and atomically replaces the
// artifact. On any failure the previous artifact is left untouched.
func (a *Aggregator) Run(ctx context.Context) (*domain.MetricsSummary, error) {
	summary, err := a.run(ctx)
	if err != nil {
		a.metrics.RecordAggregation("failed")
		a.logger.Error("aggregation failed", zap.String("input", a.cfg.InputPath), zap.Error(err))
		return nil, err
	}
	a.metrics.RecordAggregation("ok")
	a.logger.Info("aggregation finished",
		zap.String("input", a.cfg.InputPath),
		zap.String("output", a.cfg.OutputPath),
		zap.Int("records", summary.KPITotalTickets))
	return summary, nil
}

func (a *Aggregator) run(ctx context.Context) (*domain.MetricsSummary, error) {
	a.logger.Info("aggregation started", zap.String("input", a.cfg.InputPath))

	records, err := ReadRecords(ctx, a.cfg.InputPath)
	if err != nil {
		return nil, err
	}

	summary := Aggregate(records, a.cfg.DatasetSource, a.now())
	if err := WriteArtifact(a.cfg.OutputPath, summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Aggregate counts records in total, by status and by purchase year.
func Aggregate(records []OrderRecord, source string, now time.Time) domain.MetricsSummary {
	byStatus := make(map[string]int)
	byYear := make(domain.YearCounts)
	for _, rec := range records {
		byStatus[rec.Status]++
		byYear[rec.PurchasedAt.Year()]++
	}
	return domain.MetricsSummary{
		DatasetSource:     source,
		LastUpdate:        now.Format(domain.LastUpdateLayout),
		KPITotalTickets:   len(records),
		BreakdownByStatus: byStatus,
		BreakdownByYear:   byYear,
	}
}

// ReadRecords loads order records from a .csv or .xlsx file.
func ReadRecords(ctx context.Context, path string) ([]OrderRecord, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputMissing, path)
		}
		return nil, fmt.Errorf("stat input: %w", err)
	}

	var (
		rows       [][]string
		err        error
		serialTime bool
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readExcel(path)
		serialTime = true
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	return parseRows(ctx, rows, serialTime)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return readCSVFrom(f)
}

func readCSVFrom(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read csv: %v", ErrParseFailure, err)
	}
	return rows, nil
}

func readExcel(path string) ([][]string, error) {
	// Raw values keep date cells as serial numbers instead of the
	// locale-formatted text of their number format.
	f, err := excelize.OpenFile(path, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: open xlsx: %v", ErrParseFailure, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrParseFailure)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %s: %v", ErrParseFailure, sheets[0], err)
	}
	return rows, nil
}

// parseRows maps the header to the required columns and parses every data
// row. The first bad row aborts the whole run; rows are never skipped.
// With serialTime set, numeric timestamps are read as spreadsheet date serials.
func parseRows(ctx context.Context, rows [][]string, serialTime bool) ([]OrderRecord, error) {
	if len(rows) == 0 {
		return []OrderRecord{}, nil
	}

	index, err := columnIndex(rows[0])
	if err != nil {
		return nil, err
	}

	records := make([]OrderRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line := i + 2
		if isBlank(row) {
			continue
		}
		id, okID := cell(row, index[ColumnOrderID])
		status, okStatus := cell(row, index[ColumnOrderStatus])
		rawTS, okTS := cell(row, index[ColumnPurchasedAt])
		if !okID || !okStatus || !okTS {
			return nil, fmt.Errorf("%w: row %d: missing required field", ErrParseFailure, line)
		}
		ts, err := parseTimestamp(rawTS, serialTime)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrParseFailure, line, err)
		}
		records = append(records, OrderRecord{OrderID: id, Status: status, PurchasedAt: ts})
	}
	return records, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, 3)
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, byteOrderMark))
		switch name {
		case ColumnOrderID, ColumnOrderStatus, ColumnPurchasedAt:
			if _, dup := index[name]; !dup {
				index[name] = i
			}
		}
	}
	var missing []string
	for _, name := range []string{ColumnOrderID, ColumnOrderStatus, ColumnPurchasedAt} {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrParseFailure, strings.Join(missing, ", "))
	}
	return index, nil
}

func cell(row []string, i int) (string, bool) {
	if i >= len(row) {
		return "", false
	}
	return strings.TrimSpace(row[i]), true
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseTimestamp(value string, serialTime bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty purchase timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	if serialTime {
		if serial, err := strconv.ParseFloat(value, 64); err == nil {
			ts, err := excelize.ExcelDateToTime(serial, false)
			if err != nil {
				return time.Time{}, fmt.Errorf("purchase timestamp %q: %v", value, err)
			}
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized purchase timestamp %q", value)
}

// WriteArtifact writes summary to path through a temp file and rename, so
// readers see either the old document or the complete new one.
func WriteArtifact(path string, summary domain.MetricsSummary) error {
	payload, err := json.MarshalIndent(summary, "", "    ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace artifact: %w", err)
	}
	committed = true
	return nil
}
