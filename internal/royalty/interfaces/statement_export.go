package interfaces

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	royalty "royalty-engine/internal/royalty/domain"
)

// BuildStatementPDF renders a minimal PDF for a royalty statement.
func BuildStatementPDF(stmt *royalty.Statement, lines []royalty.Line) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Royalty Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Statement: %s", stmt.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Run: %s", stmt.RunID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Creator: %s", stmt.CreatorID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", stmt.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", stmt.CreatedAt.Format(timeLayout)))
	pdf.Ln(5)
	if stmt.PaymentRef != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Payment Ref: %s", stmt.PaymentRef))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Total: %s", FormatCents(stmt.TotalCents)))
	pdf.Ln(8)

	// Lines table
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(28, 6, "Kind", "1", 0, "C", false, 0, "")
	pdf.CellFormat(34, 6, "License", "1", 0, "C", false, 0, "")
	pdf.CellFormat(34, 6, "Asset", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Revenue", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Share", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Royalty", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, line := range lines {
		pdf.CellFormat(28, 6, string(line.Kind), "1", 0, "C", false, 0, "")
		pdf.CellFormat(34, 6, line.LicenseID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(34, 6, line.AssetID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(28, 6, FormatCents(line.RevenueCents), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, formatBps(line.ShareBps), "1", 0, "R", false, 0, "")
		pdf.CellFormat(28, 6, FormatCents(line.RoyaltyCents), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders a minimal XLSX for a royalty statement.
func BuildStatementXLSX(stmt *royalty.Statement, lines []royalty.Line) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	linesSheet := "lines"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(linesSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Royalty Statement")
	_ = f.SetCellValue(summarySheet, "A3", "Statement")
	_ = f.SetCellValue(summarySheet, "B3", stmt.ID)
	_ = f.SetCellValue(summarySheet, "A4", "Run")
	_ = f.SetCellValue(summarySheet, "B4", stmt.RunID)
	_ = f.SetCellValue(summarySheet, "A5", "Creator")
	_ = f.SetCellValue(summarySheet, "B5", stmt.CreatorID)
	_ = f.SetCellValue(summarySheet, "A6", "Status")
	_ = f.SetCellValue(summarySheet, "B6", string(stmt.Status))
	_ = f.SetCellValue(summarySheet, "A7", "Total")
	_ = f.SetCellValue(summarySheet, "B7", FormatCents(stmt.TotalCents))
	_ = f.SetCellValue(summarySheet, "A8", "Corrections")
	_ = f.SetCellValue(summarySheet, "B8", stmt.CorrectionCount)
	if stmt.PaymentRef != "" {
		_ = f.SetCellValue(summarySheet, "A9", "Payment Ref")
		_ = f.SetCellValue(summarySheet, "B9", stmt.PaymentRef)
	}

	_ = f.SetCellValue(linesSheet, "A1", "Kind")
	_ = f.SetCellValue(linesSheet, "B1", "License")
	_ = f.SetCellValue(linesSheet, "C1", "Asset")
	_ = f.SetCellValue(linesSheet, "D1", "Revenue")
	_ = f.SetCellValue(linesSheet, "E1", "Share")
	_ = f.SetCellValue(linesSheet, "F1", "Royalty")
	_ = f.SetCellValue(linesSheet, "G1", "Note")
	for i, line := range lines {
		row := i + 2
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("A%d", row), string(line.Kind))
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("B%d", row), line.LicenseID)
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("C%d", row), line.AssetID)
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("D%d", row), FormatCents(line.RevenueCents))
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("E%d", row), formatBps(line.ShareBps))
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("F%d", row), FormatCents(line.RoyaltyCents))
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("G%d", row), line.Note)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatCents renders integer cents as a decimal money string. All money
// math stays in integer cents; this is display only.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func formatBps(bps int) string {
	return fmt.Sprintf("%d.%02d%%", bps/100, bps%100)
}
