// Package export renders a project's pipeline state into drawing and report
// files. Formats form a closed set; asking for an unknown one fails that
// format only, the rest still produce their artifacts.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"planline/internal/domain"
	"planline/internal/store"
)

const (
	FormatDXF  = "dxf"
	FormatSVG  = "svg"
	FormatPDF  = "pdf"
	FormatJSON = "json"
)

// Formats lists the supported output formats in render order.
func Formats() []string {
	return []string{FormatDXF, FormatSVG, FormatPDF, FormatJSON}
}

// Normalize lower-cases and validates a requested format name.
func Normalize(format string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	f = strings.TrimPrefix(f, ".")
	switch f {
	case FormatDXF, FormatSVG, FormatPDF, FormatJSON:
		return f, nil
	default:
		return "", domain.UnsupportedFormatf("unknown export format %q, supported: %s", format, strings.Join(Formats(), ", "))
	}
}

type renderer func(st store.State) ([]byte, error)

func renderers() map[string]renderer {
	return map[string]renderer{
		FormatDXF:  renderDXF,
		FormatSVG:  renderSVG,
		FormatPDF:  renderPDF,
		FormatJSON: renderJSON,
	}
}

// Render produces one artifact in memory, without touching the filesystem.
func Render(st store.State, format string) ([]byte, error) {
	f, err := Normalize(format)
	if err != nil {
		return nil, err
	}
	return renderers()[f](st)
}

// Prepared holds artifacts rendered in memory, awaiting the write to disk.
// Splitting render from write lets a caller abandon a render without leaving
// files behind.
type Prepared struct {
	dir   string
	files map[string][]byte
	sum   domain.ExportSummary
}

// Prepare renders the requested formats in memory. A failing format is
// recorded in the summary errors and does not abort the rest; nothing touches
// the filesystem yet.
func Prepare(st store.State, dir string, formats []string) *Prepared {
	if len(formats) == 0 {
		formats = Formats()
	}
	p := &Prepared{
		dir:   dir,
		files: make(map[string][]byte),
		sum:   domain.ExportSummary{ProjectID: st.ProjectID, Errors: make(map[string]string)},
	}
	rs := renderers()
	for _, format := range formats {
		f, err := Normalize(format)
		if err != nil {
			p.sum.Errors[format] = err.Error()
			continue
		}
		data, err := rs[f](st)
		if err != nil {
			p.sum.Errors[f] = err.Error()
			continue
		}
		p.files[f] = data
	}
	return p
}

// Write flushes the rendered artifacts into the export directory, one file
// per format named after the project. The summary is an error only when
// every requested format failed.
func (p *Prepared) Write() (domain.ExportSummary, error) {
	sum := p.sum
	if len(p.files) > 0 {
		if err := os.MkdirAll(p.dir, 0o755); err != nil {
			return sum, fmt.Errorf("create export dir: %w", err)
		}
	}
	for f, data := range p.files {
		ref := filepath.Join(p.dir, fmt.Sprintf("%s.%s", sum.ProjectID, f))
		if err := os.WriteFile(ref, data, 0o644); err != nil {
			sum.Errors[f] = err.Error()
			continue
		}
		sum.Artifacts = append(sum.Artifacts, domain.ExportArtifact{Format: f, Ref: ref, Bytes: len(data)})
	}
	sort.Slice(sum.Artifacts, func(i, j int) bool { return sum.Artifacts[i].Format < sum.Artifacts[j].Format })

	if len(sum.Artifacts) == 0 && len(sum.Errors) > 0 {
		return sum, domain.StageError(domain.StageExport, fmt.Errorf("all %d formats failed", len(sum.Errors)))
	}
	return sum, nil
}

// Export renders and writes in one step.
func Export(st store.State, dir string, formats []string) (domain.ExportSummary, error) {
	return Prepare(st, dir, formats).Write()
}
