package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/umscc/permit-api/internal/models"
)

// PermitPDFRenderer renders derived permit data into a printable document.
type PermitPDFRenderer struct{}

// NewPermitPDFRenderer constructs a permit renderer.
func NewPermitPDFRenderer() *PermitPDFRenderer {
	return &PermitPDFRenderer{}
}

// Render produces the official permit layout: header, holder details,
// borehole allocation table and standard conditions.
func (r *PermitPDFRenderer) Render(data models.PermitData) ([]byte, error) {
	if data.PermitNumber == "" {
		return nil, fmt.Errorf("permit number is required")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, strings.ToUpper(data.Catchment), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 8, "GROUNDWATER ABSTRACTION PERMIT", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 8, fmt.Sprintf("Permit No: %s", data.PermitNumber), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 7, "PERMIT HOLDER", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	details := [][2]string{
		{"Applicant", data.ApplicantName},
		{"Physical Address", data.PhysicalAddress},
		{"Permit Type", string(data.PermitType)},
		{"Water Source", data.WaterSource},
		{"Land Size (ha)", fmt.Sprintf("%.2f", data.LandSizeHectares)},
		{"Intended Use", data.IntendedUse},
		{"Total Allocation (m3/annum)", fmt.Sprintf("%d", data.TotalAllocatedAbstraction)},
		{"Issued", data.IssuedAt.Format("02 Jan 2006")},
		{"Valid Until", data.ValidUntil.Format("02 Jan 2006")},
	}
	for _, row := range details {
		pdf.CellFormat(60, 6, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(120, 6, row[1], "1", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 7, "BOREHOLE ALLOCATIONS", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "B", 9)
	headers := []string{"Borehole", "Allocation (m3)", "Max Rate", "GPS X", "GPS Y", "Sampling"}
	widths := []float64{30, 32, 28, 30, 30, 30}
	for i, header := range headers {
		pdf.CellFormat(widths[i], 7, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, bh := range data.BoreholeDetails {
		cells := []string{
			bh.BoreholeNumber,
			fmt.Sprintf("%d", bh.AllocatedAmount),
			fmt.Sprintf("%.1f", bh.MaxAbstractionRate),
			fmt.Sprintf("%.6f", bh.GPSX),
			fmt.Sprintf("%.6f", bh.GPSY),
			bh.WaterSampleFrequency,
		}
		for i, cell := range cells {
			pdf.CellFormat(widths[i], 7, cell, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 7, "CONDITIONS", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	conditions := []string{
		"1. Abstraction must not exceed the allocated amounts per borehole.",
		"2. Water samples must be submitted at the stated frequency.",
		"3. This permit is not transferable and lapses on the validity date.",
		"4. The sub-catchment council may inspect metering equipment at any time.",
	}
	for _, cond := range conditions {
		pdf.MultiCell(0, 5, cond, "", "L", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render permit pdf: %w", err)
	}
	return buf.Bytes(), nil
}
