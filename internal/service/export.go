package service

import (
	"fmt"
	"strings"
	"time"
)

// ExportFormat selects the file format of an export
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatText ExportFormat = "txt"
)

// ParseExportFormat accepts json, csv and txt (or text), case-insensitively
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "txt", "text":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Export is a rendered file ready for download
type Export struct {
	Data        []byte
	ContentType string
	Filename    string
}

func newExport(collection string, format ExportFormat, data []byte, at time.Time) *Export {
	ct := "application/json; charset=utf-8"
	switch format {
	case FormatCSV:
		ct = "text/csv; charset=utf-8"
	case FormatText:
		ct = "text/plain; charset=utf-8"
	}
	return &Export{
		Data:        data,
		ContentType: ct,
		Filename:    fmt.Sprintf("maklermate-%s-%s.%s", collection, at.Format("2006-01-02"), format),
	}
}
