// Package csvio parses and renders the line-oriented CSV formats used for
// animal import and the export surfaces. Fields never contain quoting in
// these formats, so parsing splits on commas directly.
package csvio

import (
	"strings"

	"vivarium/pkg/domain"
)

// GenotypingRow is one accepted line of a genotyping result import.
type GenotypingRow struct {
	LineNumber int
	SampleID   string
	Marker     string
	CallValue  string
}

// ParseGenotypingRows splits the CSV text into accepted rows and per-line
// issues. Blank lines and a leading sample_id header are skipped silently.
func ParseGenotypingRows(csvText string) ([]GenotypingRow, []domain.GenotypingImportIssue) {
	var rows []GenotypingRow
	var issues []domain.GenotypingImportIssue
	for index, rawLine := range strings.Split(csvText, "\n") {
		lineNumber := index + 1
		trimmed := strings.TrimSpace(rawLine)
		if trimmed == "" {
			continue
		}
		cols := splitTrimmed(trimmed)
		if strings.EqualFold(cols[0], "sample_id") {
			continue
		}
		if len(cols) < 3 {
			issues = append(issues, domain.GenotypingImportIssue{
				LineNumber: lineNumber,
				Reason:     "列数不足，至少需要 sample_id,marker,call",
				RawLine:    rawLine,
			})
			continue
		}
		if cols[0] == "" || cols[1] == "" || cols[2] == "" {
			issues = append(issues, domain.GenotypingImportIssue{
				LineNumber: lineNumber,
				Reason:     "sample_id/marker/call 不可为空",
				RawLine:    rawLine,
			})
			continue
		}
		rows = append(rows, GenotypingRow{
			LineNumber: lineNumber,
			SampleID:   cols[0],
			Marker:     cols[1],
			CallValue:  cols[2],
		})
	}
	return rows, issues
}

// BuildRetryCSV renders the rejected rows back into an importable CSV so the
// operator can fix and resubmit them.
func BuildRetryCSV(issues []domain.GenotypingImportIssue) string {
	var b strings.Builder
	b.WriteString("sample_id,marker,call\n")
	for _, issue := range issues {
		cols := splitTrimmed(issue.RawLine)
		b.WriteString(colOrEmpty(cols, 0))
		b.WriteString(",")
		b.WriteString(colOrEmpty(cols, 1))
		b.WriteString(",")
		b.WriteString(colOrEmpty(cols, 2))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func splitTrimmed(line string) []string {
	cols := strings.Split(line, ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols
}

func colOrEmpty(cols []string, index int) string {
	if index < len(cols) {
		return cols[index]
	}
	return ""
}
