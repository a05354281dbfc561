package services

import (
	"strings"
	"testing"
	"time"

	"season-planner-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const salesCSV = `date,category,store,quantity
2025-01-06,outerwear,S001,10
2025-01-07,outerwear,S002,5
2025-01-12,outerwear,S001,"1,000"
2025-01-13,outerwear,S001,7
2025-01-08,knitwear,S001,3
not-a-date,outerwear,S001,9
2025-01-14,outerwear,S001,-4
`

func TestReadSalesFileCSV(t *testing.T) {
	records, err := ReadSalesFile("sales.csv", strings.NewReader(salesCSV), "")
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "outerwear", records[0].Category)
	assert.Equal(t, "S002", records[1].StoreID)
	assert.Equal(t, 1000, records[2].Quantity)
}

func TestReadSalesFileXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"日付", "販売数"},
		{"2025/1/6", 12},
		{"2025/1/13", 15},
	}
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellName, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	records, err := ReadSalesFile("sales.xlsx", buf, "outerwear")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "outerwear", records[0].Category)
	assert.Equal(t, 15, records[1].Quantity)
}

func TestReadSalesFileRejectsUnknownType(t *testing.T) {
	_, err := ReadSalesFile("sales.json", strings.NewReader("{}"), "")
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestParseSalesRowsRequiresColumns(t *testing.T) {
	_, err := ParseSalesRows([][]string{{"day", "amount"}, {"2025-01-06", "1"}}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "date")
	assert.Contains(t, err.Error(), "quantity")

	_, err = ParseSalesRows([][]string{{"date", "quantity"}}, "")
	assert.Error(t, err)
}

func TestAggregateWeekly(t *testing.T) {
	records, err := ReadSalesFile("sales.csv", strings.NewReader(salesCSV), "")
	require.NoError(t, err)

	agg := AggregateWeekly(records)
	outer := agg["outerwear"]
	require.Len(t, outer, 2)
	// 2025-01-12 is a Sunday and belongs to the week of Monday 01-06.
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), outer[0].WeekStart)
	assert.Equal(t, 1015, outer[0].Quantity)
	assert.Equal(t, time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), outer[1].WeekStart)
	assert.Equal(t, 7, outer[1].Quantity)

	require.Len(t, agg["knitwear"], 1)
}

func TestWeeklyActuals(t *testing.T) {
	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	records := []models.SalesRecord{
		{Date: start.AddDate(0, 0, -3), Quantity: 99},
		{Date: start, Quantity: 10},
		{Date: start.AddDate(0, 0, 6), Quantity: 5},
		{Date: start.AddDate(0, 0, 7), Quantity: 20},
		{Date: start.AddDate(0, 0, 15), Quantity: 1},
	}
	assert.Equal(t, map[int]int{1: 15, 2: 20, 3: 1}, WeeklyActuals(records, start))
}

func TestSalesHistoryStoreImport(t *testing.T) {
	store := NewSalesHistoryStore()
	records, err := ReadSalesFile("sales.csv", strings.NewReader(salesCSV), "")
	require.NoError(t, err)

	counts := store.Import(records)
	assert.Equal(t, map[string]int{"outerwear": 2, "knitwear": 1}, counts)
	assert.Equal(t, []string{"knitwear", "outerwear"}, store.Categories())

	// a second import overwrites overlapping weeks and adds new ones
	counts = store.Import([]models.SalesRecord{
		{Date: time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), Category: "Outerwear", Quantity: 50},
		{Date: time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), Category: "outerwear", Quantity: 60},
	})
	assert.Equal(t, 3, counts["outerwear"])

	series, ok := store.Get("OUTERWEAR")
	require.True(t, ok)
	require.Len(t, series, 3)
	assert.Equal(t, []float64{1015, 50, 60}, series.Values())

	series[0].Quantity = 0
	again, _ := store.Get("outerwear")
	assert.Equal(t, 1015, again[0].Quantity)
}
