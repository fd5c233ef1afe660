// Package export renders monthly stats tables as CSV and XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/misung-crm/misung-crm/internal/stats"
)

const summaryLabel = "합계"

// Table is a header row followed by one row per month and a summary row.
// Cells are string, int or float64.
type Table struct {
	Sheet   string
	Headers []string
	Rows    [][]any
}

// WriteCSV serialises the table as CSV.
func WriteCSV(w io.Writer, t Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Headers); err != nil {
		return err
	}
	record := make([]string, len(t.Headers))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = formatCell(row[i])
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX serialises the table as a single-sheet workbook.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("export: sheet name: %w", err)
		}
	}
	if err := f.SetSheetRow(sheet, "A1", &t.Headers); err != nil {
		return fmt.Errorf("export: header row: %w", err)
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("export: row %d: %w", i+1, err)
		}
	}
	return f.Write(w)
}

func formatCell(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func monthLabel(m int) string {
	return strconv.Itoa(m) + "월"
}

// Activity tabulates planned, performed and achieved activity counts.
func Activity(data stats.ActivityStats) Table {
	t := Table{
		Sheet: "activity",
		Headers: []string{"월",
			"계획-건설사영업", "계획-현장추가영업", "계획-현장지원", "계획-합계",
			"실적-건설사영업", "실적-현장추가영업", "실적-현장지원", "실적-합계",
			"달성률-건설사영업", "달성률-현장추가영업", "달성률-현장지원", "달성률-합계"},
	}
	counts := func(c stats.ActivityCounts) []any {
		return []any{c.Construction, c.Additional, c.Support, c.Total}
	}
	row := func(label string, plan, actual, ach stats.ActivityCounts) []any {
		out := []any{label}
		out = append(out, counts(plan)...)
		out = append(out, counts(actual)...)
		return append(out, counts(ach)...)
	}
	for _, m := range data.Monthly {
		t.Rows = append(t.Rows, row(monthLabel(m.Month), m.Plan, m.Actual, m.Achievement))
	}
	t.Rows = append(t.Rows, row(summaryLabel, data.Summary.Plan, data.Summary.Actual, data.Summary.Achievement))
	return t
}

// Sales tabulates revenue, cost, profit and target sales.
func Sales(data stats.SalesStats) Table {
	t := Table{Sheet: "sales", Headers: []string{"월", "매출", "매입", "이익", "목표매출"}}
	for _, m := range data.Monthly {
		t.Rows = append(t.Rows, []any{monthLabel(m.Month), m.Revenue, m.Cost, m.Profit, m.TargetSales})
	}
	s := data.Summary
	t.Rows = append(t.Rows, []any{summaryLabel, s.Revenue, s.Cost, s.Profit, s.TargetSales})
	return t
}

// Order tabulates contribution flows and targets.
func Order(data stats.OrderStats) Table {
	t := Table{
		Sheet: "order",
		Headers: []string{"월",
			"매출기여-수주", "매출기여-실행", "매출기여-이익",
			"이익기여-수주", "이익기여-실행", "이익기여-이익",
			"합계-수주", "합계-실행", "합계-이익",
			"목표-매출기여", "목표-이익기여", "목표-합계"},
	}
	flow := func(f stats.OrderFlow) []any { return []any{f.Order, f.Execution, f.Profit} }
	row := func(label string, sales, profit, total stats.OrderFlow, ts, tp, tt float64) []any {
		out := []any{label}
		out = append(out, flow(sales)...)
		out = append(out, flow(profit)...)
		out = append(out, flow(total)...)
		return append(out, ts, tp, tt)
	}
	for _, m := range data.Monthly {
		t.Rows = append(t.Rows, row(monthLabel(m.Month), m.SalesContribution, m.ProfitContribution, m.Total,
			m.TargetSalesContribution, m.TargetProfitContribution, m.TargetTotal))
	}
	s := data.Summary
	t.Rows = append(t.Rows, row(summaryLabel, s.SalesContribution, s.ProfitContribution, s.Total,
		s.TargetSalesContribution, s.TargetProfitContribution, s.TargetTotal))
	return t
}

// CostEfficiency tabulates over-investment against confirmed revenue.
func CostEfficiency(data stats.CostEfficiencyStats) Table {
	t := Table{Sheet: "cost-efficiency", Headers: []string{"월", "과투입", "관리자과투입", "확정매출", "편차"}}
	for _, m := range data.Monthly {
		t.Rows = append(t.Rows, []any{monthLabel(m.Month), m.OverInvestment, m.AdminOverInvestment, m.ConfirmedRevenue, m.Difference})
	}
	s := data.Summary
	t.Rows = append(t.Rows, []any{summaryLabel, s.TotalOverInvestment, s.TotalAdminOverInvestment, s.TotalConfirmedRevenue, s.TotalDifference})
	return t
}

// Collection tabulates collection targets and results.
func Collection(data stats.CollectionStats) Table {
	t := Table{Sheet: "collection", Headers: []string{"월", "목표수금", "사용자수금", "관리자확정수금", "미수금잔액"}}
	for _, m := range data.Monthly {
		t.Rows = append(t.Rows, []any{monthLabel(m.Month), m.TargetCollection, m.UserCollection, m.AdminConfirmedCollection, m.OutstandingBalance})
	}
	s := data.Summary
	t.Rows = append(t.Rows, []any{summaryLabel, s.TotalTargetCollection, s.TotalUserCollection, s.TotalAdminConfirmedCollection, s.TotalOutstandingBalance})
	return t
}
