// internal/report/generator.go

// Package report renders a prediction (plus optional clinician feedback)
// into a downloadable document.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"mediscan-back/internal/models"
)

const disclaimer = "This report was generated using an AI-assisted diagnostic system. " +
	"The results should be interpreted by a qualified healthcare professional. " +
	"This tool is designed to assist, not replace, clinical judgment."

// Data is everything a report draws from.
type Data struct {
	Prediction      models.Prediction
	Image           models.Image
	Feedback        *models.Feedback
	Heatmaps        []models.Heatmap
	Notes           string
	IncludeHeatmaps bool
	GeneratedAt     time.Time
}

type labelScore struct {
	label string
	score float64
}

// sortedPredictions orders labels by confidence, highest first.
func sortedPredictions(m models.ConfidenceMap) []labelScore {
	out := make([]labelScore, 0, len(m))
	for label, score := range m {
		out = append(out, labelScore{label, score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].label < out[j].label
	})
	return out
}

// RenderPDF builds the PDF artifact.
func RenderPDF(d Data) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(25, 25, 25)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Medical Image Diagnosis Report", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated on: %s", d.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	sectionHeader(pdf, "Image Information")
	kvTable(pdf, [][2]string{
		{"Original Filename", d.Image.OriginalFilename},
		{"Image Type", d.Image.ImageType},
		{"Dimensions", fmt.Sprintf("%d x %d", d.Image.Width, d.Image.Height)},
		{"Uploaded", d.Image.UploadedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
	})
	pdf.Ln(4)

	sectionHeader(pdf, "Diagnosis Results")
	if len(d.Prediction.Predictions) > 0 {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(220, 220, 220)
		pdf.CellFormat(80, 7, "Condition", "1", 0, "L", true, 0, "")
		pdf.CellFormat(50, 7, "Confidence", "1", 1, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, p := range sortedPredictions(d.Prediction.Predictions) {
			pdf.CellFormat(80, 7, p.label, "1", 0, "L", false, 0, "")
			pdf.CellFormat(50, 7, fmt.Sprintf("%.2f%%", p.score*100), "1", 1, "L", false, 0, "")
		}
	} else {
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, "No prediction data available", "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if d.IncludeHeatmaps && len(d.Heatmaps) > 0 {
		sectionHeader(pdf, fmt.Sprintf("Visualization (%s)", strings.ToUpper(d.Heatmaps[0].Method)))
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 6, "Heatmap visualizations highlight regions of interest that influenced the AI prediction.", "", "L", false)
		for _, h := range d.Heatmaps {
			pdf.CellFormat(0, 6, fmt.Sprintf("- %s (%s)", h.Label, h.Method), "", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	}

	if d.Feedback != nil {
		sectionHeader(pdf, "Doctor's Feedback")
		override := d.Feedback.OverrideLabel
		if override == "" {
			override = "None"
		}
		kvTable(pdf, [][2]string{
			{"Feedback Date", d.Feedback.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
			{"Rating", fmt.Sprintf("%d/5", d.Feedback.Rating)},
			{"Override Diagnosis", override},
		})
		if d.Feedback.Comment != "" {
			pdf.Ln(2)
			pdf.SetFont("Helvetica", "", 10)
			pdf.CellFormat(0, 6, "Additional Comments:", "", 1, "L", false, 0, "")
			pdf.MultiCell(0, 6, d.Feedback.Comment, "", "L", false)
		}
		pdf.Ln(4)
	}

	if d.Notes != "" {
		sectionHeader(pdf, "Additional Notes")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 6, d.Notes, "", "L", false)
		pdf.Ln(4)
	}

	sectionHeader(pdf, "Disclaimer")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 6, disclaimer, "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func sectionHeader(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func kvTable(pdf *gofpdf.Fpdf, rows [][2]string) {
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetFillColor(220, 220, 220)
	for _, row := range rows {
		pdf.CellFormat(50, 7, row[0], "1", 0, "L", true, 0, "")
		pdf.CellFormat(80, 7, row[1], "1", 1, "L", false, 0, "")
	}
}

// RenderText builds the plain-text artifact. Heatmaps are never embedded in
// text reports.
func RenderText(d Data) []byte {
	var b strings.Builder
	rule := strings.Repeat("-", 40)

	b.WriteString("MEDICAL IMAGE DIAGNOSIS REPORT\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")
	fmt.Fprintf(&b, "Generated on: %s\n\n", d.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))

	b.WriteString("IMAGE INFORMATION\n" + rule + "\n")
	fmt.Fprintf(&b, "Original Filename: %s\n", d.Image.OriginalFilename)
	fmt.Fprintf(&b, "Image Type: %s\n", d.Image.ImageType)
	fmt.Fprintf(&b, "Dimensions: %d x %d\n", d.Image.Width, d.Image.Height)
	fmt.Fprintf(&b, "Uploaded: %s\n\n", d.Image.UploadedAt.UTC().Format("2006-01-02 15:04:05 UTC"))

	b.WriteString("DIAGNOSIS RESULTS\n" + rule + "\n")
	if len(d.Prediction.Predictions) > 0 {
		for _, p := range sortedPredictions(d.Prediction.Predictions) {
			fmt.Fprintf(&b, "%s: %.2f%%\n", p.label, p.score*100)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No prediction data available\n\n")
	}

	if d.Feedback != nil {
		b.WriteString("DOCTOR'S FEEDBACK\n" + rule + "\n")
		fmt.Fprintf(&b, "Feedback Date: %s\n", d.Feedback.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
		fmt.Fprintf(&b, "Rating: %d/5\n", d.Feedback.Rating)
		override := d.Feedback.OverrideLabel
		if override == "" {
			override = "None"
		}
		fmt.Fprintf(&b, "Override Diagnosis: %s\n\n", override)
		if d.Feedback.Comment != "" {
			fmt.Fprintf(&b, "Additional Comments:\n%s\n\n", d.Feedback.Comment)
		}
	}

	if d.Notes != "" {
		b.WriteString("ADDITIONAL NOTES\n" + rule + "\n")
		fmt.Fprintf(&b, "%s\n\n", d.Notes)
	}

	b.WriteString("DISCLAIMER\n" + rule + "\n")
	b.WriteString(disclaimer + "\n")

	return []byte(b.String())
}
