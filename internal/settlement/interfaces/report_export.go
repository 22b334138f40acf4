package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	settlement "settlement-platform/internal/settlement/domain"
)

// BuildMonthlyReportPDF renders a brand's monthly settlement report
// with its daily breakdown.
func BuildMonthlyReportPDF(monthly *settlement.TierAggregate, days []*settlement.TierAggregate) ([]byte, error) {
	if monthly == nil {
		return nil, settlement.ErrNilAggregate
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	totals := monthly.Totals()
	period := monthly.Period()

	pdf.Cell(0, 8, "Monthly Settlement Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Settlement No: %s", monthly.SettlementNumber()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Brand: %d", monthly.BrandID()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %04d-%02d", period.Year, int(period.Month)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", monthly.Status()))
	pdf.Ln(5)
	if !monthly.ConfirmedAt().IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Confirmed: %s", monthly.ConfirmedAt().Format(time.RFC3339)))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Orders: %d", totals.OrderCount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Sales: %s", totals.SalesAmount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Commission: %s", totals.CommissionAmount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Tax: %s", totals.TaxAmount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("PG Fee: %s", totals.PGFeeAmount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Final Settlement: %s", monthly.FinalSettlementAmount()))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(28, 6, "Day", "1", 0, "C", false, 0, "")
	pdf.CellFormat(18, 6, "Orders", "1", 0, "C", false, 0, "")
	pdf.CellFormat(36, 6, "Sales", "1", 0, "C", false, 0, "")
	pdf.CellFormat(36, 6, "Commission", "1", 0, "C", false, 0, "")
	pdf.CellFormat(36, 6, "Final", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, day := range days {
		dayTotals := day.Totals()
		pdf.CellFormat(28, 6, day.Period().Start().Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(18, 6, fmt.Sprintf("%d", dayTotals.OrderCount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(36, 6, dayTotals.SalesAmount.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(36, 6, dayTotals.CommissionAmount.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(36, 6, day.FinalSettlementAmount().String(), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildMonthlyReportXLSX renders the same report as a workbook with a
// summary sheet and a daily breakdown sheet.
func BuildMonthlyReportXLSX(monthly *settlement.TierAggregate, days []*settlement.TierAggregate) ([]byte, error) {
	if monthly == nil {
		return nil, settlement.ErrNilAggregate
	}

	f := excelize.NewFile()
	summarySheet := "summary"
	daysSheet := "days"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(daysSheet)

	totals := monthly.Totals()
	period := monthly.Period()

	_ = f.SetCellValue(summarySheet, "A1", "Monthly Settlement Report")
	_ = f.SetCellValue(summarySheet, "A3", "Settlement No")
	_ = f.SetCellValue(summarySheet, "B3", monthly.SettlementNumber())
	_ = f.SetCellValue(summarySheet, "A4", "Brand")
	_ = f.SetCellValue(summarySheet, "B4", monthly.BrandID())
	_ = f.SetCellValue(summarySheet, "A5", "Period")
	_ = f.SetCellValue(summarySheet, "B5", fmt.Sprintf("%04d-%02d", period.Year, int(period.Month)))
	_ = f.SetCellValue(summarySheet, "A6", "Status")
	_ = f.SetCellValue(summarySheet, "B6", string(monthly.Status()))
	_ = f.SetCellValue(summarySheet, "A7", "Orders")
	_ = f.SetCellValue(summarySheet, "B7", totals.OrderCount)
	_ = f.SetCellValue(summarySheet, "A8", "Sales")
	_ = f.SetCellValue(summarySheet, "B8", totals.SalesAmount.String())
	_ = f.SetCellValue(summarySheet, "A9", "Commission")
	_ = f.SetCellValue(summarySheet, "B9", totals.CommissionAmount.String())
	_ = f.SetCellValue(summarySheet, "A10", "Tax")
	_ = f.SetCellValue(summarySheet, "B10", totals.TaxAmount.String())
	_ = f.SetCellValue(summarySheet, "A11", "PG Fee")
	_ = f.SetCellValue(summarySheet, "B11", totals.PGFeeAmount.String())
	_ = f.SetCellValue(summarySheet, "A12", "Final Settlement")
	_ = f.SetCellValue(summarySheet, "B12", monthly.FinalSettlementAmount().String())

	headers := []string{"Day", "Orders", "Sales", "Commission", "Tax", "PG Fee", "Final"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(daysSheet, cell, header)
	}
	for i, day := range days {
		dayTotals := day.Totals()
		values := []any{
			day.Period().Start().Format("2006-01-02"),
			dayTotals.OrderCount,
			dayTotals.SalesAmount.String(),
			dayTotals.CommissionAmount.String(),
			dayTotals.TaxAmount.String(),
			dayTotals.PGFeeAmount.String(),
			day.FinalSettlementAmount().String(),
		}
		for j, value := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			_ = f.SetCellValue(daysSheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildTierCSV renders any list of tier aggregates as CSV.
func BuildTierCSV(aggs []*settlement.TierAggregate) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"settlement_number", "brand_id", "period", "status",
		"order_count", "sales_amount", "commission_amount", "tax_amount",
		"pg_fee_amount", "final_settlement_amount",
	}
	if err := writer.Write(header); err != nil {
		return nil, err
	}
	for _, agg := range aggs {
		totals := agg.Totals()
		record := []string{
			agg.SettlementNumber(),
			fmt.Sprintf("%d", agg.BrandID()),
			agg.Period().Key(),
			string(agg.Status()),
			fmt.Sprintf("%d", totals.OrderCount),
			totals.SalesAmount.String(),
			totals.CommissionAmount.String(),
			totals.TaxAmount.String(),
			totals.PGFeeAmount.String(),
			agg.FinalSettlementAmount().String(),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
