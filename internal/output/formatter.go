// Package output provides formatting options for scan results
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/commjoen/domainposture/pkg/models"
)

var (
	colorGood   = color.New(color.FgGreen).SprintFunc()
	colorBad    = color.New(color.FgRed).SprintFunc()
	colorWarn   = color.New(color.FgYellow).SprintFunc()
	colorHeader = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// Formatter defines the interface for output formatters
type Formatter interface {
	Format(result *models.BatchResult) (string, error)
	Write(w io.Writer, result *models.BatchResult) error
}

// TextFormatter formats results as human-readable text
type TextFormatter struct{}

// JSONFormatter formats results as JSON
type JSONFormatter struct {
	Pretty bool
}

// CSVFormatter formats results as CSV, one row per reported value
type CSVFormatter struct{}

// NewFormatter creates a new formatter based on the format type
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "text", "":
		return &TextFormatter{}, nil
	case "json":
		return &JSONFormatter{Pretty: true}, nil
	case "csv":
		return &CSVFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func format(f Formatter, result *models.BatchResult) (string, error) {
	var sb strings.Builder
	if err := f.Write(&sb, result); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Format returns the formatted string
func (f *TextFormatter) Format(result *models.BatchResult) (string, error) {
	return format(f, result)
}

// Write writes the formatted output to the writer
func (f *TextFormatter) Write(w io.Writer, result *models.BatchResult) error {
	separator := strings.Repeat("=", 80)

	for _, entry := range result.Entries {
		if entry.Report == nil {
			fmt.Fprintf(w, "Domain: %s\n", entry.Input)
			fmt.Fprintln(w, separator)
			fmt.Fprintf(w, "  %s %s\n", colorBad("error:"), entry.Error)
			fmt.Fprintln(w, separator)
			continue
		}

		r := entry.Report
		fmt.Fprintf(w, "Domain: %s (%dms)\n", r.Domain, r.DurationMs)
		fmt.Fprintln(w, separator)

		writeCertificate(w, r.Certificate)
		writeDNS(w, r.DNS)
		writeHeaders(w, r.Headers)
		if r.WHOIS != nil {
			writeWHOIS(w, r.WHOIS)
		}

		fmt.Fprintln(w, separator)
	}

	if result.Summary != nil {
		fmt.Fprintf(w, "Scanned %d of %d domains | %d rejected | %d valid certificates | %d header weaknesses\n",
			result.Summary.Scanned,
			result.Summary.TotalDomains,
			result.Summary.Rejected,
			result.Summary.ValidCertificate,
			result.Summary.Weaknesses)
	}

	return nil
}

func writeCertificate(w io.Writer, c models.CertificateReport) {
	fmt.Fprintln(w, colorHeader("Certificate"))

	status := string(c.Status)
	switch c.Status {
	case models.StatusValid:
		status = colorGood(status)
	case models.StatusAbsent:
		status = colorWarn(status)
	default:
		status = colorBad(status)
	}

	fmt.Fprintf(w, "  %-12s %s\n", "Status:", status)
	fmt.Fprintf(w, "  %-12s %s\n", "Issuer:", c.Issuer)
	fmt.Fprintf(w, "  %-12s %s\n", "Expiration:", c.Expiration)
	if c.TLSVersion != "" {
		fmt.Fprintf(w, "  %-12s %s\n", "TLS:", c.TLSVersion)
	}
	if c.Detail != "" {
		fmt.Fprintf(w, "  %-12s %s\n", "Detail:", c.Detail)
	}
}

func writeDNS(w io.Writer, d models.DNSReport) {
	fmt.Fprintln(w, colorHeader("DNS"))
	for _, rt := range d.Types() {
		result := d[rt]
		if !result.OK() {
			fmt.Fprintf(w, "  %-6s %s\n", rt, colorWarn(result.Error))
			continue
		}
		for _, v := range result.Values {
			fmt.Fprintf(w, "  %-6s %s\n", rt, v)
		}
	}
}

func writeHeaders(w io.Writer, h models.HeaderAssessment) {
	fmt.Fprintln(w, colorHeader("Headers"))
	for _, s := range h.Strengths {
		fmt.Fprintf(w, "  %s %s\n", colorGood("✓"), s)
	}
	for _, s := range h.Weaknesses {
		fmt.Fprintf(w, "  %s %s\n", colorBad("✗"), s)
	}
}

func writeWHOIS(w io.Writer, r *models.WHOISReport) {
	fmt.Fprintln(w, colorHeader("WHOIS"))
	if r.Error != "" {
		fmt.Fprintf(w, "  %s\n", colorWarn(r.Error))
		return
	}
	for _, field := range whoisFields(r) {
		fmt.Fprintf(w, "  %-12s %s\n", field[0]+":", field[1])
	}
}

// whoisFields lists the non-empty WHOIS fields as label/value pairs
func whoisFields(r *models.WHOISReport) [][2]string {
	var fields [][2]string
	add := func(label, value string) {
		if value != "" {
			fields = append(fields, [2]string{label, value})
		}
	}
	addDate := func(label string, t *time.Time) {
		if t != nil {
			add(label, t.Format("2006-01-02"))
		}
	}

	add("Registrar", r.Registrar)
	add("Registrant", r.RegistrantName)
	add("Org", r.RegistrantOrg)
	addDate("Created", r.CreationDate)
	addDate("Expires", r.ExpirationDate)
	addDate("Updated", r.UpdatedDate)
	add("Nameservers", strings.Join(r.Nameservers, ", "))
	add("DNSSEC", r.DNSSEC)
	return fields
}

// Format returns the formatted string
func (f *JSONFormatter) Format(result *models.BatchResult) (string, error) {
	return format(f, result)
}

// Write writes the formatted output to the writer
func (f *JSONFormatter) Write(w io.Writer, result *models.BatchResult) error {
	encoder := json.NewEncoder(w)
	if f.Pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(result)
}

// Format returns the formatted string
func (f *CSVFormatter) Format(result *models.BatchResult) (string, error) {
	return format(f, result)
}

// Write writes the formatted output to the writer
func (f *CSVFormatter) Write(w io.Writer, result *models.BatchResult) error {
	writer := csv.NewWriter(w)

	// Write header
	if err := writer.Write([]string{"domain", "section", "field", "value"}); err != nil {
		return err
	}

	for _, entry := range result.Entries {
		for _, row := range csvRows(entry) {
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func csvRows(entry models.BatchEntry) [][]string {
	if entry.Report == nil {
		return [][]string{{entry.Input, "input", "error", entry.Error}}
	}

	r := entry.Report
	rows := [][]string{
		{r.Domain, "certificate", "status", string(r.Certificate.Status)},
		{r.Domain, "certificate", "valid", strconv.FormatBool(r.Certificate.Valid)},
		{r.Domain, "certificate", "issuer", r.Certificate.Issuer},
		{r.Domain, "certificate", "expiration", r.Certificate.Expiration},
	}
	if r.Certificate.Detail != "" {
		rows = append(rows, []string{r.Domain, "certificate", "detail", r.Certificate.Detail})
	}

	for _, rt := range r.DNS.Types() {
		result := r.DNS[rt]
		if !result.OK() {
			rows = append(rows, []string{r.Domain, "dns", rt, "error: " + result.Error})
			continue
		}
		for _, v := range result.Values {
			rows = append(rows, []string{r.Domain, "dns", rt, v})
		}
	}

	for _, s := range r.Headers.Strengths {
		rows = append(rows, []string{r.Domain, "headers", "strength", s})
	}
	for _, s := range r.Headers.Weaknesses {
		rows = append(rows, []string{r.Domain, "headers", "weakness", s})
	}

	if r.WHOIS != nil {
		if r.WHOIS.Error != "" {
			rows = append(rows, []string{r.Domain, "whois", "error", r.WHOIS.Error})
		}
		for _, field := range whoisFields(r.WHOIS) {
			rows = append(rows, []string{r.Domain, "whois", strings.ToLower(field[0]), field[1]})
		}
	}

	return rows
}
