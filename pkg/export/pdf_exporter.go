package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions controls the document heading and column layout.
type PDFOptions struct {
	Title    string
	Subtitle string
	// Widths are relative column weights; equal widths when empty.
	Widths []float64
}

// PDFExporter renders datasets as a landscape A4 table that repeats its header
// row on every page.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

const (
	pdfUsableWidth = 277.0
	pdfRowHeight   = 7.0
)

// Render creates the PDF document.
func (e *PDFExporter) Render(data Dataset, opts PDFOptions) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	widths := columnWidths(len(data.Headers), opts.Widths)

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(false, 0)
	_, pageHeight := pdf.GetPageSize()

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], 8, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			header()
		}
	})

	pdf.AddPage()
	if opts.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, opts.Title, "", 1, "C", false, 0, "")
	}
	if opts.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, opts.Subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)
	header()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for i := range data.Rows {
		if pdf.GetY()+pdfRowHeight > pageHeight-12 {
			pdf.AddPage()
		}
		for j, cell := range data.Record(i) {
			pdf.CellFormat(widths[j], pdfRowHeight, truncate(pdf, tr(cell), widths[j]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(n int, weights []float64) []float64 {
	out := make([]float64, n)
	total := 0.0
	if len(weights) == n {
		for _, w := range weights {
			total += w
		}
	}
	for i := range out {
		if total > 0 {
			out[i] = pdfUsableWidth * weights[i] / total
		} else {
			out[i] = pdfUsableWidth / float64(n)
		}
	}
	return out
}

func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	limit := width - 2
	if pdf.GetStringWidth(s) <= limit {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
