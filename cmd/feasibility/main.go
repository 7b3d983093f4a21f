package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/devfeasibility/internal/draft"
	"github.com/joelkehle/devfeasibility/internal/feasibility"
	"github.com/joelkehle/devfeasibility/internal/render"
)

func main() {
	var raw feasibility.RawInputs
	flag.StringVar(&raw.PurchasePrice, "purchase", "", `Land purchase price, e.g. "$2m"`)
	flag.StringVar(&raw.GrossRevenue, "grv", "", "Gross realisation value (GST inclusive)")
	flag.StringVar(&raw.ConstructionCost, "construction", "", `Construction cost, e.g. "$3.5m with 10% contingency"`)
	flag.StringVar(&raw.LVR, "lvr", "", "Loan to value ratio")
	flag.StringVar(&raw.InterestRate, "interest", "", "Annual interest rate")
	flag.StringVar(&raw.TimelineMonths, "timeline", "", `Project timeline, e.g. "18 months"`)
	flag.StringVar(&raw.SellingCosts, "selling", "", "Selling costs as a percentage of net revenue")
	flag.StringVar(&raw.GSTScheme, "gst", "", "GST scheme: margin or fully taxed")
	flag.StringVar(&raw.GSTCostBase, "gst-cost-base", "", "Margin scheme cost base (defaults to the purchase price)")
	address := flag.String("address", "", "Site address shown in the report")
	mode := flag.String("mode", string(draft.ModeStandard), "standard or residual")
	target := flag.Float64("target", 0, "Target margin percent for residual mode (0 uses the revenue-based target)")
	format := flag.String("format", "text", "Output format: text, html or json")
	ratesPath := flag.String("rates", "", "Optional CUE file replacing the built-in rate tables")
	outputPath := flag.String("output", "", "Path to write the output (defaults to stdout)")
	flag.Parse()

	rates := feasibility.DefaultRates()
	if *ratesPath != "" {
		var err error
		if rates, err = feasibility.LoadRatesFile(*ratesPath); err != nil {
			log.Fatalf("load rates: %v", err)
		}
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	mgr := draft.NewManager(draft.NewMemoryStore(), rates, draft.Config{Logger: logger})

	ctx := context.Background()
	patch := draft.Patch{RawInputs: &raw}
	if *address != "" {
		patch.Property = &draft.Property{Address: *address}
	}
	if _, err := mgr.PatchDraft(ctx, "cli", patch, draft.SourceChat); err != nil {
		log.Fatalf("patch: %v", err)
	}
	out, err := mgr.CalculateDraft(ctx, "cli", draft.CalculateOptions{Mode: draft.Mode(*mode), TargetMargin: *target})
	if err != nil {
		var de *draft.Error
		if errors.As(err, &de) && de.Code == draft.CodeMissingFields {
			fmt.Fprintln(os.Stderr, de.Message)
			os.Exit(2)
		}
		log.Fatalf("calculate: %v", err)
	}

	var body []byte
	switch *format {
	case "text":
		body = []byte(out.Report)
	case "html":
		doc, err := render.HTML(out.Report, "")
		if err != nil {
			log.Fatalf("render html: %v", err)
		}
		body = []byte(doc)
	case "json":
		body, err = json.MarshalIndent(out.Result, "", "  ")
		if err != nil {
			log.Fatalf("encode result: %v", err)
		}
		body = append(body, '\n')
	default:
		log.Fatalf("unknown -format %q", *format)
	}
	if err := writeOutput(*outputPath, body); err != nil {
		log.Fatalf("write output: %v", err)
	}
}

func writeOutput(outputPath string, body []byte) error {
	if outputPath == "" {
		_, err := os.Stdout.Write(body)
		return err
	}
	return os.WriteFile(outputPath, body, 0o644)
}
