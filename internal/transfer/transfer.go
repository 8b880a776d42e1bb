// Package transfer converts record collections to and from the export formats
package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/normalizer"
)

// NoteWidth is the maximum width of the note column in text exports
const NoteWidth = 40

const (
	bom      = "\uFEFF"
	ellipsis = "\u2026"
)

var leadHeader = []string{"ID", "Name", "Kontakt", "Typ", "Status", "Ort", "Notiz", "Erstellt am", "Aktualisiert am"}

var exposeHeader = []string{"ID", "Titel", "Stil", "Text", "Bilder", "Erstellt am"}

// ExportJSON renders records as a JSON array indented with two spaces
func ExportJSON[T any](records []T) ([]byte, error) {
	if records == nil {
		records = []T{}
	}
	return json.MarshalIndent(records, "", "  ")
}

// ExportLeadsCSV renders leads as CSV for spreadsheet applications: UTF-8
// with byte order mark, every field quoted, CRLF line endings
func ExportLeadsCSV(leads []domain.Lead) []byte {
	var buf bytes.Buffer
	buf.WriteString(bom)
	writeCSVRow(&buf, leadHeader)
	for _, l := range leads {
		writeCSVRow(&buf, []string{
			l.ID, l.Name, l.Contact, string(l.Type), string(l.Status),
			l.Location, l.Note, l.CreatedAt, l.UpdatedAt,
		})
	}
	return buf.Bytes()
}

// ExportExposesCSV renders saved exposes with the same quoting rules as leads
func ExportExposesCSV(exposes []domain.SavedExpose) []byte {
	var buf bytes.Buffer
	buf.WriteString(bom)
	writeCSVRow(&buf, exposeHeader)
	for _, e := range exposes {
		writeCSVRow(&buf, []string{
			e.ID, e.Title(), string(e.SelectedStyle), e.Output,
			strconv.Itoa(len(e.Images)), e.CreatedAt,
		})
	}
	return buf.Bytes()
}

func writeCSVRow(buf *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(neutralizeFormula(f), `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteString("\r\n")
}

// neutralizeFormula prefixes values a spreadsheet would evaluate as a
// formula with an apostrophe. A leading + or - only counts when a formula
// follows it, so phone numbers, plain numbers and dashed prose stay as they are.
func neutralizeFormula(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '@', '\t', '\r':
		return "'" + s
	case '+', '-':
		if domain.IsValidPhone(s) || isNumber(s) || !looksLikeFormula(s[1:]) {
			return s
		}
		return "'" + s
	}
	return s
}

// looksLikeFormula reports whether rest, the text after a leading sign,
// starts an expression: an operator, a number, or a name directly followed by
// a call, a DDE pipe, a sheet reference or a row number (SUM(, cmd|, A1)
func looksLikeFormula(rest string) bool {
	if rest == "" {
		return false
	}
	if c := rest[0]; strings.IndexByte("=(@+-.$\"", c) >= 0 || isDigit(c) {
		return true
	}
	i := 0
	for i < len(rest) && isLetter(rest[i]) {
		i++
	}
	if i == 0 || i == len(rest) {
		return false
	}
	c := rest[i]
	return c == '(' || c == '|' || c == '!' || c == '$' || isDigit(c)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	return err == nil
}

// ExportLeadsText renders a pipe-delimited table padded to the widest value
// of each column. Notes are cut to NoteWidth runes.
func ExportLeadsText(leads []domain.Lead) string {
	header := []string{"Name", "Kontakt", "Typ", "Status", "Ort", "Notiz", "Erstellt am"}
	rows := make([][]string, 0, len(leads))
	for _, l := range leads {
		created := l.CreatedAt
		if t := l.Created(); !t.IsZero() {
			created = t.Format("02.01.2006")
		}
		rows = append(rows, []string{
			l.Name, l.Contact, string(l.Type), string(l.Status), l.Location,
			truncate(singleLine(l.Note), NoteWidth), created,
		})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var sb strings.Builder
	writeTextRow(&sb, header, widths)
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	sb.WriteString(strings.Join(seps, "-+-"))
	sb.WriteByte('\n')
	for _, row := range rows {
		writeTextRow(&sb, row, widths)
	}
	return sb.String()
}

func writeTextRow(sb *strings.Builder, cells []string, widths []int) {
	padded := make([]string, len(cells))
	for i, c := range cells {
		padded[i] = c + strings.Repeat(" ", widths[i]-utf8.RuneCountInString(c))
	}
	sb.WriteString(strings.TrimRight(strings.Join(padded, " | "), " "))
	sb.WriteByte('\n')
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most max runes, ending with an ellipsis when cut
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + ellipsis
}

// ParseLeads decodes a JSON array of leads, normalizing every element
func ParseLeads(data []byte) ([]domain.Lead, error) {
	raw, err := parseArray(data)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Lead, 0, len(raw))
	for _, el := range raw {
		out = append(out, normalizer.MigrateLeadJSON(el))
	}
	return out, nil
}

// ParseExposes decodes a JSON array of saved exposes, normalizing every element
func ParseExposes(data []byte) ([]domain.SavedExpose, error) {
	raw, err := parseArray(data)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SavedExpose, 0, len(raw))
	for _, el := range raw {
		out = append(out, normalizer.NormalizeExpose(el))
	}
	return out, nil
}

func parseArray(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimPrefix(data, []byte(bom))
	var top json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &domain.FormatError{Reason: domain.FormatReasonMalformedJSON, Cause: err}
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(top, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &domain.FormatError{Reason: domain.FormatReasonNotAnArray}
		}
		return nil, &domain.FormatError{Reason: domain.FormatReasonMalformedJSON, Cause: err}
	}
	if raw == nil {
		// top-level null
		return nil, &domain.FormatError{Reason: domain.FormatReasonNotAnArray}
	}
	return raw, nil
}
