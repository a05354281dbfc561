package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"season-planner-api/pkg/models"
)

var ErrUnsupportedFile = errors.New("unsupported file type, upload .xlsx or .csv")

var dateLayouts = []string{"2006-01-02", "2006/1/2", "2006/01/02", "2006-1-2", time.RFC3339}

// ReadSalesFile reads rows from an .xlsx (first sheet) or .csv file and
// parses them into sales records. defaultCategory is used for rows without a
// category column.
func ReadSalesFile(name string, r io.Reader, defaultCategory string) ([]models.SalesRecord, error) {
	var rows [][]string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer f.Close()
		rows, err = f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("read sheet rows: %w", err)
		}
	case ".csv":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		var err error
		rows, err = cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
	default:
		return nil, ErrUnsupportedFile
	}
	return ParseSalesRows(rows, defaultCategory)
}

// ParseSalesRows maps a header row plus data rows onto sales records. Rows
// with an unparseable date or quantity are skipped.
func ParseSalesRows(rows [][]string, defaultCategory string) ([]models.SalesRecord, error) {
	if len(rows) < 2 {
		return nil, errors.New("file needs a header row and at least one data row")
	}
	header := rows[0]
	dateIdx := findColumn(header, "date", "week", "week_start", "日付")
	qtyIdx := findColumn(header, "quantity", "sales", "units", "qty", "販売数", "数量")
	catIdx := findColumn(header, "category", "カテゴリ")
	storeIdx := findColumn(header, "store", "store_id", "店舗")
	idIdx := findColumn(header, "product_id", "product_code", "製品ID", "商品ID")
	nameIdx := findColumn(header, "product_name", "product", "製品名", "商品名")

	var missing []string
	if dateIdx == -1 {
		missing = append(missing, "date")
	}
	if qtyIdx == -1 {
		missing = append(missing, "quantity")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required columns not found: %s (header: %v)", strings.Join(missing, ", "), header)
	}

	records := make([]models.SalesRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		t, ok := parseDate(cell(row, dateIdx))
		if !ok {
			continue
		}
		qty, ok := parseQuantity(cell(row, qtyIdx))
		if !ok {
			continue
		}
		category := cell(row, catIdx)
		if category == "" {
			category = defaultCategory
		}
		records = append(records, models.SalesRecord{
			Date:        t,
			ProductID:   cell(row, idIdx),
			ProductName: cell(row, nameIdx),
			Category:    category,
			StoreID:     cell(row, storeIdx),
			Quantity:    qty,
		})
	}
	if len(records) == 0 {
		return nil, errors.New("no valid rows found")
	}
	return records, nil
}

// AggregateWeekly sums records per category into Monday-start weeks,
// sorted by week start.
func AggregateWeekly(records []models.SalesRecord) map[string]models.HistoricalSeries {
	byCat := make(map[string]map[time.Time]int)
	for _, r := range records {
		week := adjustToMonday(r.Date)
		if byCat[r.Category] == nil {
			byCat[r.Category] = make(map[time.Time]int)
		}
		byCat[r.Category][week] += r.Quantity
	}
	out := make(map[string]models.HistoricalSeries, len(byCat))
	for cat, weeks := range byCat {
		out[cat] = seriesFromWeeks(weeks)
	}
	return out
}

func seriesFromWeeks(weeks map[time.Time]int) models.HistoricalSeries {
	series := make(models.HistoricalSeries, 0, len(weeks))
	for w, q := range weeks {
		series = append(series, models.WeeklySales{WeekStart: w, Quantity: q})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].WeekStart.Before(series[j].WeekStart) })
	return series
}

// adjustToMonday returns midnight UTC of the Monday starting date's week.
func adjustToMonday(date time.Time) time.Time {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	weekday := int(d.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return d.AddDate(0, 0, -(weekday - 1))
}

// seasonWeekNumber is the 1-based season week containing date.
func seasonWeekNumber(date, seasonStart time.Time) int {
	days := adjustToMonday(date).Sub(adjustToMonday(seasonStart)).Hours() / 24
	week := int(math.Floor(days/7)) + 1
	if week < 1 {
		return 0
	}
	return week
}

// WeeklyActuals sums records into season week numbers. Records before the
// season start are dropped.
func WeeklyActuals(records []models.SalesRecord, seasonStart time.Time) map[int]int {
	out := make(map[int]int)
	for _, r := range records {
		if w := seasonWeekNumber(r.Date, seasonStart); w > 0 {
			out[w] += r.Quantity
		}
	}
	return out
}

func findColumn(header []string, candidates ...string) int {
	for _, candidate := range candidates {
		for i, item := range header {
			if strings.EqualFold(strings.TrimSpace(item), candidate) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseQuantity(s string) (int, bool) {
	s = strings.ReplaceAll(s, ",", "")
	if n, err := strconv.Atoi(s); err == nil {
		return n, n >= 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || !finite(f) {
		return 0, false
	}
	return int(math.Round(f)), true
}
