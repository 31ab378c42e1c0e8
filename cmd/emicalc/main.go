// Command emicalc prints the EMI and amortization schedule of a loan without
// storing anything.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/mcclellann/lifeledger/pkg/amortization"
	"github.com/mcclellann/lifeledger/pkg/output"
	"github.com/shopspring/decimal"
)

func run(args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("emicalc", flag.ContinueOnError)
	flags.SetOutput(stderr)
	principalFlag := flags.String("principal", "", "loan principal, e.g. 500000")
	rateFlag := flags.String("rate", "", "annual interest rate in percent, e.g. 9.5")
	tenure := flags.Int("tenure", 0, "tenure in months")
	startFlag := flags.String("start", "", "disbursement date YYYY-MM-DD (default today)")
	emiFlag := flags.String("emi", "", "use this EMI instead of the calculated one")
	format := flags.String("format", output.FormatPretty, "output format: pretty, csv, yaml")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := output.ValidateFormat(*format); err != nil {
		return err
	}
	principal, err := decimal.NewFromString(*principalFlag)
	if err != nil {
		return fmt.Errorf("invalid -principal %q: %w", *principalFlag, err)
	}
	rate, err := decimal.NewFromString(*rateFlag)
	if err != nil {
		return fmt.Errorf("invalid -rate %q: %w", *rateFlag, err)
	}

	start := civil.DateOf(time.Now())
	if *startFlag != "" {
		if start, err = civil.ParseDate(*startFlag); err != nil {
			return fmt.Errorf("invalid -start %q: %w", *startFlag, err)
		}
	}

	emi, err := amortization.CalculateEMI(principal, rate, *tenure)
	if err != nil {
		return err
	}
	if *emiFlag != "" {
		if emi, err = decimal.NewFromString(*emiFlag); err != nil {
			return fmt.Errorf("invalid -emi %q: %w", *emiFlag, err)
		}
	}

	entries, err := amortization.GenerateSchedule(amortization.Params{
		Principal:    principal,
		AnnualRate:   rate,
		TenureMonths: *tenure,
		EMI:          emi,
		StartDate:    start,
	})
	if err != nil {
		return err
	}

	return output.Write(stdout, *format, output.Quote{
		Principal:    principal,
		AnnualRate:   rate,
		TenureMonths: len(entries),
		EMI:          emi,
		Entries:      entries,
	})
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "emicalc: %v\n", err)
		os.Exit(1)
	}
}
