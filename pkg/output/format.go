// Package output renders amortization schedules for terminals and files.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/mcclellann/lifeledger/pkg/amortization"
	"github.com/mcclellann/lifeledger/pkg/models"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

const (
	FormatPretty = "pretty"
	FormatCSV    = "csv"
	FormatYAML   = "yaml"
)

// ValidateFormat reports whether format is one Write understands.
func ValidateFormat(format string) error {
	switch format {
	case FormatPretty, FormatCSV, FormatYAML:
		return nil
	default:
		return fmt.Errorf("invalid output format %q: must be one of %s, %s, %s", format, FormatPretty, FormatCSV, FormatYAML)
	}
}

// Quote is a calculated loan with its schedule.
type Quote struct {
	Principal    decimal.Decimal
	AnnualRate   decimal.Decimal
	TenureMonths int
	EMI          decimal.Decimal
	Entries      []models.ScheduleEntry
}

// Write renders q in the given format.
func Write(w io.Writer, format string, q Quote) error {
	switch format {
	case FormatPretty:
		return PrettyFormat(w, q)
	case FormatCSV:
		return CsvFormat(w, q)
	case FormatYAML:
		return YamlFormat(w, q)
	default:
		return ValidateFormat(format)
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(amortization.MoneyPlaces)
}

// grouped formats d at two places with thousands separators.
func grouped(p *message.Printer, d decimal.Decimal) string {
	return p.Sprintf("%.2f", d.Round(amortization.MoneyPlaces).InexactFloat64())
}

// PrettyFormat outputs a human-readable rather than machine-readable table.
func PrettyFormat(w io.Writer, q Quote) error {
	p := message.NewPrinter(language.English)
	s := amortization.Summarize(q.Entries)

	_, _ = p.Fprintf(w, "Principal %s at %s%% over %d months\n", grouped(p, q.Principal), q.AnnualRate, q.TenureMonths)
	_, _ = p.Fprintf(w, "EMI: %s\n\n", grouped(p, q.EMI))

	_, _ = fmt.Fprintf(w, "%-5s | %-10s | %14s | %14s | %14s | %16s\n", "Month", "Due", "EMI", "Principal", "Interest", "Balance")
	_, _ = fmt.Fprintf(w, "%-5s | %-10s | %14s | %14s | %14s | %16s\n", "_____", "___", "___", "_________", "________", "_______")
	for _, e := range q.Entries {
		_, _ = fmt.Fprintf(w, "%5d | %-10s | %14s | %14s | %14s | %16s\n",
			e.Month, e.DueDate, grouped(p, e.EMIAmount), grouped(p, e.PrincipalComponent),
			grouped(p, e.InterestComponent), grouped(p, e.RemainingPrincipal))
	}

	_, err := fmt.Fprintf(w, "\nTotal interest: %s\nTotal payable: %s\n", grouped(p, s.TotalInterest), grouped(p, s.TotalPayable))
	return err
}

// CsvFormat outputs one row per instalment with a header row.
func CsvFormat(w io.Writer, q Quote) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"month", "due_date", "emi", "principal", "interest", "balance"}); err != nil {
		return err
	}
	for _, e := range q.Entries {
		record := []string{
			strconv.Itoa(e.Month),
			e.DueDate.String(),
			money(e.EMIAmount),
			money(e.PrincipalComponent),
			money(e.InterestComponent),
			money(e.RemainingPrincipal),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type yamlEntry struct {
	Month     int    `yaml:"month"`
	DueDate   string `yaml:"dueDate"`
	EMI       string `yaml:"emi"`
	Principal string `yaml:"principal"`
	Interest  string `yaml:"interest"`
	Balance   string `yaml:"balance"`
}

type yamlQuote struct {
	Principal     string      `yaml:"principal"`
	AnnualRate    string      `yaml:"annualRate"`
	TenureMonths  int         `yaml:"tenureMonths"`
	EMI           string      `yaml:"emi"`
	TotalInterest string      `yaml:"totalInterest"`
	TotalPayable  string      `yaml:"totalPayable"`
	Schedule      []yamlEntry `yaml:"schedule"`
}

// YamlFormat outputs the quote and its schedule as a YAML document.
func YamlFormat(w io.Writer, q Quote) error {
	s := amortization.Summarize(q.Entries)
	doc := yamlQuote{
		Principal:     money(q.Principal),
		AnnualRate:    q.AnnualRate.String(),
		TenureMonths:  q.TenureMonths,
		EMI:           money(q.EMI),
		TotalInterest: money(s.TotalInterest),
		TotalPayable:  money(s.TotalPayable),
		Schedule:      make([]yamlEntry, 0, len(q.Entries)),
	}
	for _, e := range q.Entries {
		doc.Schedule = append(doc.Schedule, yamlEntry{
			Month:     e.Month,
			DueDate:   e.DueDate.String(),
			EMI:       money(e.EMIAmount),
			Principal: money(e.PrincipalComponent),
			Interest:  money(e.InterestComponent),
			Balance:   money(e.RemainingPrincipal),
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}
