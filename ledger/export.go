package ledger

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// Format is an export output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
	FormatXML  Format = "xml"
	FormatZIP  Format = "zip"
)

func (f Format) extension() string { return string(f) }

// ExportInfo is the header block of a JSON export, per spec.md §6.
type ExportInfo struct {
	ExportedAt   time.Time `json:"exportedAt"`
	RecordCount  int       `json:"recordCount"`
	FiltersUsed  Filters   `json:"filtersUsed,omitempty"`
}

type exportedJSON struct {
	ExportInfo ExportInfo        `json:"exportInfo"`
	Records    []exportedRecord  `json:"records"`
}

// exportedRecord flattens Record with ISO-8601 timestamps, per spec.md §6.
type exportedRecord struct {
	ID              string            `json:"id"`
	Kind            Kind              `json:"kind"`
	Status          Status            `json:"status"`
	ComponentName   string            `json:"componentName"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	StartTime       string            `json:"startTime"`
	EndTime         string            `json:"endTime,omitempty"`
	DurationSeconds float64           `json:"durationSeconds"`
	ProgressPercent float64           `json:"progressPercent"`
	CurrentStep     string            `json:"currentStep"`
	TotalSteps      int               `json:"totalSteps"`
	StepNumber      int               `json:"stepNumber"`
	Details         []string          `json:"details,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
	Errors          []string          `json:"errors,omitempty"`
	Result          string            `json:"result,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func toExportedRecord(r Record) exportedRecord {
	er := exportedRecord{
		ID:              r.ID,
		Kind:            r.Kind,
		Status:          r.Status,
		ComponentName:   r.ComponentName,
		Title:           r.Title,
		Description:     r.Description,
		StartTime:       r.StartTime.UTC().Format(time.RFC3339),
		DurationSeconds: r.DurationSeconds,
		ProgressPercent: r.ProgressPercent,
		CurrentStep:     r.CurrentStep,
		TotalSteps:      r.TotalSteps,
		StepNumber:      r.StepNumber,
		Details:         r.Details,
		Warnings:        r.Warnings,
		Errors:          r.Errors,
		Result:          r.Result,
		Metadata:        r.Metadata,
	}
	if !r.EndTime.IsZero() {
		er.EndTime = r.EndTime.UTC().Format(time.RFC3339)
	}
	return er
}

// ExportJSON renders records as {exportInfo, records[]}, per spec.md §6.
func ExportJSON(records []Record, filters Filters, now time.Time) ([]byte, error) {
	out := exportedJSON{
		ExportInfo: ExportInfo{ExportedAt: now, RecordCount: len(records), FiltersUsed: filters},
	}
	for _, r := range records {
		out.Records = append(out.Records, toExportedRecord(r))
	}
	return json.MarshalIndent(out, "", "  ")
}

var csvColumns = []string{
	"OperationID", "Type", "Status", "Component", "Title", "StartTime", "EndTime",
	"Duration", "Progress", "CurrentStep", "DetailsCount", "WarningsCount", "ErrorsCount",
}

// ExportCSV renders the fixed column set from spec.md §6.
func ExportCSV(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvColumns); err != nil {
		return nil, err
	}
	for _, r := range records {
		endTime := ""
		if !r.EndTime.IsZero() {
			endTime = r.EndTime.UTC().Format(time.RFC3339)
		}
		row := []string{
			r.ID,
			string(r.Kind),
			string(r.Status),
			r.ComponentName,
			r.Title,
			r.StartTime.UTC().Format(time.RFC3339),
			endTime,
			strconv.FormatFloat(r.DurationSeconds, 'f', 2, 64),
			strconv.FormatFloat(r.ProgressPercent, 'f', 1, 64),
			r.CurrentStep,
			strconv.Itoa(len(r.Details)),
			strconv.Itoa(len(r.Warnings)),
			strconv.Itoa(len(r.Errors)),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var statusColors = map[Status]string{
	StatusPending:   "#9ca3af",
	StatusRunning:   "#3b82f6",
	StatusCompleted: "#22c55e",
	StatusFailed:    "#ef4444",
	StatusCancelled: "#f59e0b",
}

// ExportHTML renders a single self-contained document with CSS-styled
// status colouring, per spec.md §6.
func ExportHTML(records []Record, now time.Time) []byte {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\">")
	buf.WriteString("<title>Operation History</title><style>")
	buf.WriteString("body{font-family:sans-serif}table{border-collapse:collapse;width:100%}")
	buf.WriteString("th,td{border:1px solid #ccc;padding:4px 8px;text-align:left}")
	buf.WriteString(".status{padding:2px 6px;border-radius:4px;color:#fff;font-size:0.85em}")
	buf.WriteString("</style></head><body>")
	fmt.Fprintf(&buf, "<h1>Operation History</h1><p>Generated %s, %d records</p>",
		html.EscapeString(now.UTC().Format(time.RFC3339)), len(records))
	buf.WriteString("<table><thead><tr>")
	for _, col := range csvColumns {
		fmt.Fprintf(&buf, "<th>%s</th>", html.EscapeString(col))
	}
	buf.WriteString("</tr></thead><tbody>")
	for _, r := range records {
		endTime := ""
		if !r.EndTime.IsZero() {
			endTime = r.EndTime.UTC().Format(time.RFC3339)
		}
		color := statusColors[r.Status]
		if color == "" {
			color = "#6b7280"
		}
		fmt.Fprintf(&buf, "<tr><td>%s</td><td>%s</td><td><span class=\"status\" style=\"background:%s\">%s</span></td>"+
			"<td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%.1f%%</td><td>%s</td><td>%d</td><td>%d</td><td>%d</td></tr>",
			html.EscapeString(r.ID), html.EscapeString(string(r.Kind)), color, html.EscapeString(string(r.Status)),
			html.EscapeString(r.ComponentName), html.EscapeString(r.Title),
			html.EscapeString(r.StartTime.UTC().Format(time.RFC3339)), html.EscapeString(endTime),
			humanize.RelTime(r.StartTime, r.StartTime.Add(time.Duration(r.DurationSeconds*float64(time.Second))), "", ""),
			r.ProgressPercent, html.EscapeString(r.CurrentStep), len(r.Details), len(r.Warnings), len(r.Errors))
	}
	buf.WriteString("</tbody></table></body></html>")
	return buf.Bytes()
}

type xmlHistory struct {
	XMLName xml.Name    `xml:"operation_history"`
	Records xmlRecords  `xml:"records"`
}

type xmlRecords struct {
	Record []xmlRecord `xml:"record"`
}

type xmlRecord struct {
	ID              string      `xml:"id"`
	Kind            Kind        `xml:"type"`
	Status          Status      `xml:"status"`
	ComponentName   xmlCDATA    `xml:"component"`
	Title           xmlCDATA    `xml:"title"`
	Description     xmlCDATA    `xml:"description"`
	StartTime       string      `xml:"start_time"`
	EndTime         string      `xml:"end_time,omitempty"`
	DurationSeconds float64     `xml:"duration_seconds"`
	ProgressPercent float64     `xml:"progress_percent"`
	CurrentStep     xmlCDATA    `xml:"current_step"`
}

type xmlCDATA struct {
	Text string `xml:",cdata"`
}

// ExportXML renders root <operation_history> with free-text fields wrapped
// in CDATA, per spec.md §6.
func ExportXML(records []Record) ([]byte, error) {
	doc := xmlHistory{}
	for _, r := range records {
		endTime := ""
		if !r.EndTime.IsZero() {
			endTime = r.EndTime.UTC().Format(time.RFC3339)
		}
		doc.Records.Record = append(doc.Records.Record, xmlRecord{
			ID:              r.ID,
			Kind:            r.Kind,
			Status:          r.Status,
			ComponentName:   xmlCDATA{r.ComponentName},
			Title:           xmlCDATA{r.Title},
			Description:     xmlCDATA{r.Description},
			StartTime:       r.StartTime.UTC().Format(time.RFC3339),
			EndTime:         endTime,
			DurationSeconds: r.DurationSeconds,
			ProgressPercent: r.ProgressPercent,
			CurrentStep:     xmlCDATA{r.CurrentStep},
		})
	}
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// summaryText renders the human-readable summary.txt bundled in ZIP
// exports, using go-humanize for byte/duration formatting per SPEC_FULL §C.
func summaryText(records []Record, now time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Operation History Summary\nGenerated: %s\nRecords: %d\n\n",
		now.UTC().Format(time.RFC3339), len(records))
	byStatus := make(map[Status]int)
	var totalDuration time.Duration
	for _, r := range records {
		byStatus[r.Status]++
		totalDuration += time.Duration(r.DurationSeconds * float64(time.Second))
	}
	for status, count := range byStatus {
		fmt.Fprintf(&buf, "  %-12s %d\n", status, count)
	}
	fmt.Fprintf(&buf, "\nTotal recorded duration: %s\n", humanize.RelTime(now.Add(-totalDuration), now, "", ""))
	return buf.Bytes()
}

// ExportZIP bundles operation_history.json, operation_history.csv and
// summary.txt, per spec.md §6.
func ExportZIP(records []Record, filters Filters, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	jsonBytes, err := ExportJSON(records, filters, now)
	if err != nil {
		return nil, err
	}
	csvBytes, err := ExportCSV(records)
	if err != nil {
		return nil, err
	}

	for name, content := range map[string][]byte{
		"operation_history.json": jsonBytes,
		"operation_history.csv":  csvBytes,
		"summary.txt":            summaryText(records, now),
	} {
		fw, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(content); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Export renders records in the requested format and writes them to path,
// defaulting to reports/operation_history_<timestamp>.<ext> when path is
// empty, creating parent directories on demand, per spec.md §4.8.
func (l *Ledger) Export(ctx context.Context, format Format, filters Filters, path string) (string, error) {
	records := l.GetHistory(ctx, -1, 0, filters)
	now := l.now()

	if path == "" {
		path = filepath.Join("reports", fmt.Sprintf("operation_history_%d.%s", now.Unix(), format.extension()))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("ledger: creating export directory %s: %w", dir, err)
		}
	}

	var content []byte
	var err error
	switch format {
	case FormatJSON:
		content, err = ExportJSON(records, filters, now)
	case FormatCSV:
		content, err = ExportCSV(records)
	case FormatHTML:
		content = ExportHTML(records, now)
	case FormatXML:
		content, err = ExportXML(records)
	case FormatZIP:
		content, err = ExportZIP(records, filters, now)
	default:
		return "", fmt.Errorf("ledger: unknown export format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("ledger: rendering %s export: %w", format, err)
	}

	if err := writeFile(path, content); err != nil {
		return "", fmt.Errorf("ledger: writing export to %s: %w", path, err)
	}
	return path, nil
}

func writeFile(path string, content []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, bytes.NewReader(content))
	return err
}
