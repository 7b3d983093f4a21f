package feasibility

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joelkehle/devfeasibility/internal/valueparse"
)

// Section headers are a compatibility surface: downstream renderers split on them.
const (
	SectionInputs        = "## Inputs"
	SectionRevenue       = "## Revenue"
	SectionCosts         = "## Costs"
	SectionProfitability = "## Profitability"
	SectionResidual      = "## Residual Land Value"
	SectionAssumptions   = "## Assumptions"
	SectionCommentary    = "## Commentary"
)

// ReportOptions carries the optional context a report can show.
type ReportOptions struct {
	Address string
	// TargetMargin overrides the target shown in residual reports when > 0.
	TargetMargin float64
}

// FormatReport renders the standard feasibility report.
func FormatReport(res Result, opts ReportOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Development Feasibility Report\n\n")
	writeAddress(&b, opts.Address)

	fmt.Fprintf(&b, "%s\n\n", SectionInputs)
	fmt.Fprintf(&b, "- Land purchase price: %s\n", fmtMoney(res.Inputs.LandValue))
	writeInputLines(&b, res)

	writeRevenue(&b, res)

	fmt.Fprintf(&b, "%s\n\n", SectionCosts)
	fmt.Fprintf(&b, "- Land purchase: %s\n", fmtMoney(res.Costs.Land))
	writeCostLines(&b, res)

	writeProfitability(&b, res)

	fmt.Fprintf(&b, "%s\n\n", SectionResidual)
	fmt.Fprintf(&b, "- Residual land value at %s margin: %s\n", fmtPercent(res.Residual.TargetMarginPercent, 0), fmtMoney(res.Residual.LandValue))
	fmt.Fprintf(&b, "- Your land price: %s\n", fmtMoney(res.Inputs.LandValue))
	if res.Residual.Difference >= 0 {
		fmt.Fprintf(&b, "- Headroom: %s below the residual\n\n", fmtMoney(res.Residual.Difference))
	} else {
		fmt.Fprintf(&b, "- Overpayment: %s above the residual\n\n", fmtMoney(-res.Residual.Difference))
	}

	writeAssumptions(&b, res)

	fmt.Fprintf(&b, "%s\n\n", SectionCommentary)
	fmt.Fprintf(&b, "%s\n\n", commentary(res))
	writeCallToAction(&b)
	return b.String()
}

// FormatResidualReport renders the residual-only report. The user's land
// price is not shown; the residual is framed as the most the site is worth.
func FormatResidualReport(res Result, opts ReportOptions) string {
	target := res.Residual.TargetMarginPercent
	if opts.TargetMargin > 0 {
		target = opts.TargetMargin
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Residual Land Value Report\n\n")
	writeAddress(&b, opts.Address)

	fmt.Fprintf(&b, "%s\n\n", SectionInputs)
	writeInputLines(&b, res)

	writeRevenue(&b, res)

	fmt.Fprintf(&b, "%s\n\n", SectionCosts)
	fmt.Fprintf(&b, "Costs below are priced at the residual land value.\n\n")
	fmt.Fprintf(&b, "- Land (at residual): %s\n", fmtMoney(res.Costs.Land))
	writeCostLines(&b, res)

	writeProfitability(&b, res)

	fmt.Fprintf(&b, "%s\n\n", SectionResidual)
	fmt.Fprintf(&b, "- Maximum affordable land price at %s margin: **%s**\n", fmtPercent(target, 0), fmtMoney(res.Residual.LandValue))
	fmt.Fprintf(&b, "- Solved in %d iterations\n\n", res.Residual.Iterations)

	writeAssumptions(&b, res)

	fmt.Fprintf(&b, "%s\n\n", SectionCommentary)
	if res.Residual.LandValue <= 0 {
		fmt.Fprintf(&b, "At a %s target margin the project cannot support any land cost: revenue of %s does not cover construction, selling and the required profit. "+
			"Revisit the build budget or the product mix before pursuing this site.\n\n", fmtPercent(target, 0), fmtShort(res.Revenue.NetExclGST))
	} else {
		fmt.Fprintf(&b, "To clear a %s margin you can pay up to about %s for the land, including the duty, tax and finance that price attracts. "+
			"Any negotiation below that figure becomes additional profit.\n\n", fmtPercent(target, 0), fmtShort(res.Residual.LandValue))
	}
	writeCallToAction(&b)
	return b.String()
}

func writeAddress(b *strings.Builder, address string) {
	if a := strings.TrimSpace(address); a != "" {
		fmt.Fprintf(b, "**Property:** %s\n\n", sanitize(a))
	}
}

func writeInputLines(b *strings.Builder, res Result) {
	in := res.Inputs
	fmt.Fprintf(b, "- Gross revenue (incl. GST): %s\n", fmtMoney(in.GrossRevenue))
	fmt.Fprintf(b, "- Construction cost (incl. %s contingency): %s\n", fmtPercent(res.Costs.ContingencyPercent, 1), fmtMoney(res.Costs.Construction))
	c := in.Construction
	if c.BuildCost != nil || c.ProfFees != nil || c.StatFees != nil {
		if c.BuildCost != nil {
			fmt.Fprintf(b, "  - Build: %s\n", fmtMoney(*c.BuildCost))
		}
		if c.ProfFees != nil {
			fmt.Fprintf(b, "  - Professional fees: %s\n", fmtMoney(*c.ProfFees))
		}
		if c.StatFees != nil {
			fmt.Fprintf(b, "  - Statutory fees: %s\n", fmtMoney(*c.StatFees))
		}
	}
	fmt.Fprintf(b, "- LVR: %s\n", fmtPercent(in.LVRPercent, 0))
	fmt.Fprintf(b, "- Interest rate: %s p.a.\n", fmtPercent(in.InterestPercent, 2))
	t := res.Timeline
	fmt.Fprintf(b, "- Timeline: %d months (lead-in %d, construction %d, selling %d)\n", t.TotalMonths, t.LeadInMonths, t.ConstructionMonths, t.SellingMonths)
	fmt.Fprintf(b, "- Selling costs: %s of net revenue\n", fmtPercent(in.SellingCostsPercent, 1))
	if in.GSTScheme == valueparse.GSTFullyTaxed {
		fmt.Fprintf(b, "- GST: fully taxed\n\n")
	} else {
		fmt.Fprintf(b, "- GST: margin scheme (cost base %s)\n\n", fmtMoney(in.GSTCostBase))
	}
}

func writeRevenue(b *strings.Builder, res Result) {
	fmt.Fprintf(b, "%s\n\n", SectionRevenue)
	fmt.Fprintf(b, "- Gross revenue (incl. GST): %s\n", fmtMoney(res.Revenue.GrossInclGST))
	fmt.Fprintf(b, "- GST payable: %s\n", fmtMoney(res.Revenue.GSTPayable))
	fmt.Fprintf(b, "- Net revenue (excl. GST): %s\n\n", fmtMoney(res.Revenue.NetExclGST))
}

func writeCostLines(b *strings.Builder, res Result) {
	c := res.Costs
	fmt.Fprintf(b, "- Stamp duty: %s\n", fmtMoney(c.StampDuty))
	fmt.Fprintf(b, "- Legal & due diligence: %s\n", fmtMoney(c.Legal))
	fmt.Fprintf(b, "- Construction: %s\n", fmtMoney(c.Construction))
	fmt.Fprintf(b, "- Selling costs: %s\n", fmtMoney(c.Selling))
	fmt.Fprintf(b, "- Finance: %s (interest %s, establishment fee %s)\n", fmtMoney(c.Finance), fmtMoney(res.Finance.Interest), fmtMoney(res.Finance.EstablishmentFee))
	h := res.Holding
	fmt.Fprintf(b, "- Holding: %s (land tax %s, council rates %s, water rates %s, insurance %s per year)\n",
		fmtMoney(c.Holding), fmtMoney(h.LandTax), fmtMoney(h.CouncilRates), fmtMoney(h.WaterRates), fmtMoney(h.Insurance))
	fmt.Fprintf(b, "- **Total development cost: %s**\n\n", fmtMoney(c.Total))
}

func writeProfitability(b *strings.Builder, res Result) {
	p := res.Profitability
	fmt.Fprintf(b, "%s\n\n", SectionProfitability)
	fmt.Fprintf(b, "- Gross profit: %s\n", fmtMoney(p.GrossProfit))
	fmt.Fprintf(b, "- Margin on revenue: %s\n", fmtPercent(p.MarginPercent, 1))
	fmt.Fprintf(b, "- Return on cost: %s\n", fmtPercent(p.ReturnOnCostPercent, 1))
	fmt.Fprintf(b, "- Target margin: %s\n", fmtPercent(p.TargetMarginPercent, 0))
	fmt.Fprintf(b, "- Viability: **%s**\n\n", p.ViabilityLabel)
}

func writeAssumptions(b *strings.Builder, res Result) {
	fmt.Fprintf(b, "%s\n\n", SectionAssumptions)
	fmt.Fprintf(b, "- Duty and land tax from rate tables `%s`\n", sanitize(res.RatesVersion))
	if res.Costs.ContingencyDefault {
		fmt.Fprintf(b, "- No contingency was given; %s was added to construction\n", fmtPercent(res.Costs.ContingencyPercent, 1))
	}
	fmt.Fprintf(b, "- Land debt is held for the full term; construction debt averages 50%% drawn\n")
	fmt.Fprintf(b, "- Holding costs are prorated over %d months\n", res.Timeline.TotalMonths)
	for _, w := range res.Warnings {
		fmt.Fprintf(b, "- [!] %s\n", sanitize(w))
	}
	fmt.Fprintf(b, "\n")
}

func writeCallToAction(b *strings.Builder) {
	fmt.Fprintf(b, "---\n\nAdjust any input to re-run the numbers, or ask for the residual land value at a different margin.\n\n%s\n", CallToActionMarker)
}

func commentary(res Result) string {
	p := res.Profitability
	profit := fmtShort(p.GrossProfit)
	margin := fmtPercent(p.MarginPercent, 1)
	target := fmtPercent(p.TargetMarginPercent, 0)
	residual := fmtShort(res.Residual.LandValue)
	switch p.Viability {
	case ViabilityHighlyViable:
		return fmt.Sprintf("This project looks highly viable. A gross profit of %s gives a %s margin, comfortably above the %s target, "+
			"and the site would still work at a land price of up to %s. Lock in construction pricing early to protect the upside.", profit, margin, target, residual)
	case ViabilityViable:
		return fmt.Sprintf("This project is viable. The %s margin (%s profit) clears the %s target, leaving a modest buffer. "+
			"Keep the land price at or below %s and watch for cost overruns during construction.", margin, profit, target, residual)
	case ViabilityMarginal:
		return fmt.Sprintf("This project is marginal. A %s margin sits just under the %s target, so small cost or price movements decide the outcome. "+
			"The residual suggests paying no more than %s for the land.", margin, target, residual)
	case ViabilityChallenging:
		return fmt.Sprintf("This project is challenging. A %s profit (%s margin) is well short of the %s lenders usually expect. "+
			"Renegotiating the land toward %s or lifting revenue would be needed to make it financeable.", profit, margin, target, residual)
	default:
		return fmt.Sprintf("This project is not viable as modelled: costs exceed net revenue, giving a loss of %s. "+
			"At the %s target the land is worth about %s, so the current assumptions do not support a purchase.", fmtShort(-p.GrossProfit), target, residual)
	}
}

// fmtMoney renders a full, comma-grouped whole-dollar amount for line items.
func fmtMoney(v float64) string {
	if !finite(v) {
		return "n/a"
	}
	n := decimal.NewFromFloat(v).Round(0).IntPart()
	if n < 0 {
		return "-$" + groupThousands(-n)
	}
	return "$" + groupThousands(n)
}

// fmtShort renders an abbreviated amount ($1.23M, $123.5k) for prose.
func fmtShort(v float64) string {
	if !finite(v) {
		return "n/a"
	}
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	d := decimal.NewFromFloat(v)
	switch {
	case v >= 1e6:
		return sign + "$" + d.Div(decimal.NewFromInt(1_000_000)).StringFixed(2) + "M"
	case v >= 1e3:
		return sign + "$" + d.Div(decimal.NewFromInt(1_000)).StringFixed(1) + "k"
	default:
		return sign + "$" + d.StringFixed(0)
	}
}

func fmtPercent(v float64, places int32) string {
	if !finite(v) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).StringFixed(places) + "%"
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	rem := len(s) % 3
	if rem > 0 {
		b.WriteString(s[:rem])
	}
	for i := rem; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
