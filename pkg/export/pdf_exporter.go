package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ClaimSheet is the printable content of a pickup ticket. It never carries
// the plain code.
type ClaimSheet struct {
	RequestNumber    string
	ResidentName     string
	DocumentName     string
	MunicipalityName string
	CodeMasked       string
	WindowStart      *time.Time
	WindowEnd        *time.Time
	IssuedAt         time.Time
	QRPNG            []byte
}

// PDFExporter renders claim tickets as single page A4 documents.
type PDFExporter struct {
	location *time.Location
}

// NewPDFExporter constructs a PDF exporter printing times in loc.
func NewPDFExporter(loc *time.Location) *PDFExporter {
	if loc == nil {
		loc = time.UTC
	}
	return &PDFExporter{location: loc}
}

// RenderClaimTicket creates the printable ticket.
func (e *PDFExporter) RenderClaimTicket(sheet ClaimSheet) ([]byte, error) {
	if len(sheet.QRPNG) == 0 {
		return nil, fmt.Errorf("claim ticket pdf requires a qr image")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle("Claim ticket "+sheet.RequestNumber, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(strings.ToUpper(sheet.MunicipalityName)), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, "Document claim ticket", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("claim-qr", opts, bytes.NewReader(sheet.QRPNG))
	pdf.ImageOptions("claim-qr", 55, pdf.GetY(), 100, 100, false, opts, 0, "")
	pdf.SetY(pdf.GetY() + 106)

	rows := [][2]string{
		{"Request no.", sheet.RequestNumber},
		{"Resident", sheet.ResidentName},
		{"Document", sheet.DocumentName},
		{"Claim code", sheet.CodeMasked},
		{"Pickup window", e.window(sheet.WindowStart, sheet.WindowEnd)},
		{"Issued", e.format(&sheet.IssuedAt)},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(45, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 8, tr(row[1]), "1", 1, "", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "I", 9)
	pdf.MultiCell(0, 5, "Present this QR code at the municipal office. If it cannot be scanned, "+
		"reveal the full claim code in the MunLink app and give it to the staff together with your request number.", "", "L", false)

	if pdf.Err() {
		return nil, fmt.Errorf("render pdf: %w", pdf.Error())
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) window(start, end *time.Time) string {
	switch {
	case start == nil && end == nil:
		return "Any office day"
	case start == nil:
		return "Until " + e.format(end)
	case end == nil:
		return "From " + e.format(start)
	}
	return e.format(start) + " - " + e.format(end)
}

func (e *PDFExporter) format(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(e.location).Format("Jan 2, 2006 3:04 PM")
}
