package export

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/go-pdf/fpdf"

	"planline/internal/store"
)

// renderPDF builds the design report: room schedule, device counts, lighting
// summary and the cable bill of materials.
func renderPDF(st store.State) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Design report %s", st.ProjectID), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, fmt.Sprintf("Project %s", st.ProjectID), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Rooms", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	header(pdf, []colSpec{{"Room", 50}, {"Type", 40}, {"Area m2", 30}})
	for _, r := range st.Rooms {
		row(pdf, []cell{{r.ID, 50}, {r.Type, 40}, {fmt.Sprintf("%.1f", r.Area), 30}})
	}
	pdf.Ln(4)

	if len(st.Devices) > 0 {
		byType := make(map[string]int)
		for _, d := range st.Devices {
			byType[d.Type]++
		}
		types := make([]string, 0, len(byType))
		for t := range byType {
			types = append(types, t)
		}
		sort.Strings(types)

		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Devices", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		header(pdf, []colSpec{{"Type", 50}, {"Count", 30}})
		for _, t := range types {
			row(pdf, []cell{{t, 50}, {fmt.Sprintf("%d", byType[t]), 30}})
		}
		pdf.Ln(4)
	}

	if st.Lighting != nil && len(st.Lighting.Rooms) > 0 {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Lighting", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		header(pdf, []colSpec{{"Room", 40}, {"Target lx", 25}, {"Fixtures", 25}, {"W/fixture", 25}, {"Achieved lx", 30}})
		for _, rl := range st.Lighting.Rooms {
			row(pdf, []cell{
				{rl.RoomID, 40},
				{fmt.Sprintf("%.0f", rl.TargetLux), 25},
				{fmt.Sprintf("%d", rl.Fixtures), 25},
				{fmt.Sprintf("%.1f", rl.PowerWPerFixture), 25},
				{fmt.Sprintf("%.0f", rl.AchievedLux), 30},
			})
		}
		pdf.Ln(4)
	}

	if st.Routes != nil {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Cabling", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		header(pdf, []colSpec{{"Material", 50}, {"Length m", 30}})
		cats := make([]string, 0, len(st.Routes.BOM))
		for c := range st.Routes.BOM {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		for _, c := range cats {
			row(pdf, []cell{{c, 50}, {fmt.Sprintf("%.1f", st.Routes.BOM[c]), 30}})
		}
		if st.Routes.Unresolved > 0 {
			pdf.Ln(2)
			pdf.CellFormat(0, 6, fmt.Sprintf("%d device(s) could not be routed", st.Routes.Unresolved), "", 1, "L", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf output: %w", err)
	}
	return buf.Bytes(), nil
}

type colSpec struct {
	name  string
	width float64
}

type cell struct {
	text  string
	width float64
}

func header(pdf *fpdf.Fpdf, cols []colSpec) {
	pdf.SetFillColor(235, 235, 235)
	for _, c := range cols {
		pdf.CellFormat(c.width, 6, c.name, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func row(pdf *fpdf.Fpdf, cells []cell) {
	for _, c := range cells {
		pdf.CellFormat(c.width, 6, c.text, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
}
