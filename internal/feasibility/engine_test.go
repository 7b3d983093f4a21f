package feasibility

import (
	"math"
	"testing"

	"github.com/joelkehle/devfeasibility/internal/valueparse"
)

func referenceInputs() Inputs {
	return ParseInputs(RawInputs{
		PurchasePrice:    "$2,000,000",
		GrossRevenue:     "$10,000,000",
		ConstructionCost: "$3,500,000",
		LVR:              "70%",
		InterestRate:     "7%",
		TimelineMonths:   "18",
		SellingCosts:     "3%",
		GSTScheme:        "margin",
		GSTCostBase:      "same as purchase price",
	})
}

func TestCalculateReferenceScenario(t *testing.T) {
	res := Calculate(referenceInputs())

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"gst payable", res.Revenue.GSTPayable, 727272.7273},
		{"net revenue", res.Revenue.NetExclGST, 9272727.2727},
		{"stamp duty", res.Costs.StampDuty, 95525},
		{"legal", res.Costs.Legal, 10000},
		{"acquisition", res.Costs.Acquisition, 2105525},
		{"construction", res.Costs.Construction, 3675000},
		{"selling", res.Costs.Selling, 278181.8182},
		{"land tax", res.Holding.LandTax, 29500},
		{"holding prorated", res.Holding.Prorated, 63525},
		{"interest", res.Finance.Interest, 282056.25},
		{"establishment fee", res.Finance.EstablishmentFee, 19862.5},
		{"finance", res.Costs.Finance, 301918.75},
		{"total cost", res.Costs.Total, 6424150.5682},
		{"gross profit", res.Profitability.GrossProfit, 2848576.7045},
		{"margin", res.Profitability.MarginPercent, 30.7199},
		{"return on cost", res.Profitability.ReturnOnCostPercent, 44.3417},
		{"residual", res.Residual.LandValue, 3253802.0530},
	}
	for _, c := range checks {
		if diff(c.got, c.want) > 0.001 {
			t.Errorf("%s: got=%f want=%f", c.name, c.got, c.want)
		}
	}
	if res.Profitability.TargetMarginPercent != 15 {
		t.Fatalf("expected 15%% target below $15M net revenue, got %f", res.Profitability.TargetMarginPercent)
	}
	if res.Profitability.Viability != ViabilityHighlyViable || res.Profitability.ViabilityLabel != "Highly Viable" {
		t.Fatalf("unexpected viability: %s / %s", res.Profitability.Viability, res.Profitability.ViabilityLabel)
	}
	if !res.Costs.ContingencyDefault || res.Costs.ContingencyPercent != 5 {
		t.Fatalf("expected default 5%% contingency, got %+v", res.Costs)
	}
	if res.RatesVersion != "qld-2025.1" {
		t.Fatalf("unexpected rates version %q", res.RatesVersion)
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	a := Calculate(referenceInputs())
	b := Calculate(referenceInputs())
	ra := FormatReport(a, ReportOptions{Address: "12 Example St, Southport"})
	rb := FormatReport(b, ReportOptions{Address: "12 Example St, Southport"})
	if ra != rb {
		t.Fatal("expected byte-identical reports for identical inputs")
	}
	if a.Profitability != b.Profitability || a.Costs != b.Costs {
		t.Fatal("expected identical results for identical inputs")
	}
}

func TestResidualFeedsBackToTargetMargin(t *testing.T) {
	in := referenceInputs()
	in.GSTCostBase = 2_000_000
	first := Calculate(in)

	in.LandValue = first.Residual.LandValue
	again := Calculate(in)
	if diff(again.Profitability.MarginPercent, first.Residual.TargetMarginPercent) > 0.5 {
		t.Fatalf("residual not self-consistent: margin=%f target=%f", again.Profitability.MarginPercent, first.Residual.TargetMarginPercent)
	}
	if diff(again.Residual.LandValue, first.Residual.LandValue) > 1 {
		t.Fatalf("residual moved when fed back: %f vs %f", again.Residual.LandValue, first.Residual.LandValue)
	}
}

func TestResidualClampsToZero(t *testing.T) {
	in := referenceInputs()
	in.Construction = valueparse.ConstructionBreakdown{Total: 9_000_000}
	res := Calculate(in)
	if res.Residual.LandValue != 0 {
		t.Fatalf("expected residual clamped to 0, got %f", res.Residual.LandValue)
	}
	if res.Profitability.Viability != ViabilityNotViable {
		t.Fatalf("expected not viable, got %s", res.Profitability.Viability)
	}
}

func TestCalculateResidualIgnoresLandAndHonoursOverride(t *testing.T) {
	e := NewEngine(DefaultRates())
	in := referenceInputs()
	in.GSTCostBase = 2_000_000
	res := e.CalculateResidual(in, 20)
	if res.Residual.TargetMarginPercent != 20 {
		t.Fatalf("expected override target 20, got %f", res.Residual.TargetMarginPercent)
	}
	if res.Inputs.LandValue != res.Residual.LandValue {
		t.Fatalf("expected result costed at residual: land=%f residual=%f", res.Inputs.LandValue, res.Residual.LandValue)
	}
	if diff(res.Profitability.MarginPercent, 20) > 0.5 {
		t.Fatalf("expected margin near 20 at residual, got %f", res.Profitability.MarginPercent)
	}
}

func TestClassifyViabilityBoundaries(t *testing.T) {
	const target = 15.0
	cases := []struct {
		margin float64
		want   Viability
	}{
		{target + 10, ViabilityHighlyViable},
		{target + 9.999, ViabilityViable},
		{target, ViabilityViable},
		{target - 0.001, ViabilityMarginal},
		{target - 5, ViabilityMarginal},
		{target - 5.001, ViabilityChallenging},
		{0, ViabilityChallenging},
		{-0.001, ViabilityNotViable},
	}
	for _, c := range cases {
		if got := ClassifyViability(c.margin, target); got != c.want {
			t.Errorf("ClassifyViability(%v, %v) = %s, want %s", c.margin, target, got, c.want)
		}
	}
}

func TestTargetMarginThreshold(t *testing.T) {
	r := DefaultRates()
	if r.TargetMarginFor(14_999_999) != 15 {
		t.Fatal("expected 15% below threshold")
	}
	if r.TargetMarginFor(15_000_000) != 20 {
		t.Fatal("expected 20% at threshold")
	}
}

func TestSplitTimelineSumsExactly(t *testing.T) {
	for months := 0; months <= 120; months++ {
		tl := SplitTimeline(months)
		if tl.LeadInMonths+tl.ConstructionMonths+tl.SellingMonths != months {
			t.Fatalf("months=%d: parts do not sum: %+v", months, tl)
		}
		if tl.SellingMonths < 0 {
			t.Fatalf("months=%d: negative selling period", months)
		}
	}
	tl := SplitTimeline(18)
	if tl.LeadInMonths != 3 || tl.ConstructionMonths != 12 || tl.SellingMonths != 3 {
		t.Fatalf("unexpected 18-month split: %+v", tl)
	}
}

func TestStampDutyBrackets(t *testing.T) {
	r := DefaultRates()
	cases := map[float64]float64{
		0:       0,
		5000:    0,
		75000:   1050,
		540000:  17325,
		1000000: 38025,
		2000000: 95525,
		300000:  1050 + 0.035*225000,
	}
	for land, want := range cases {
		if got := r.StampDutyOn(land); diff(got, want) > 0.001 {
			t.Errorf("stamp duty on %.0f: got=%f want=%f", land, got, want)
		}
	}
	if got := r.LandTaxOn(349_999); got != 0 {
		t.Errorf("expected no land tax below threshold, got %f", got)
	}
}

func TestGSTSchemes(t *testing.T) {
	in := referenceInputs()
	in.GSTScheme = valueparse.GSTFullyTaxed
	res := Calculate(in)
	if diff(res.Revenue.GSTPayable, 10_000_000.0/11) > 0.001 {
		t.Fatalf("fully taxed GST: got %f", res.Revenue.GSTPayable)
	}

	in.GSTScheme = valueparse.GSTMargin
	in.GSTCostBase = 12_000_000
	res = Calculate(in)
	if res.Revenue.GSTPayable != 0 {
		t.Fatalf("margin GST must not go negative, got %f", res.Revenue.GSTPayable)
	}
}

func TestExplicitContingencyIsNotReapplied(t *testing.T) {
	in := referenceInputs()
	in.Construction = valueparse.ConstructionCost("$3.5m with 10% contingency")
	res := Calculate(in)
	if diff(res.Costs.Construction, 3_850_000) > 0.001 {
		t.Fatalf("expected explicit contingency total, got %f", res.Costs.Construction)
	}
	if res.Costs.ContingencyDefault {
		t.Fatal("explicit contingency should not be marked as default")
	}
}

func TestSanityWarnings(t *testing.T) {
	in := referenceInputs()
	in.LandValue = 11_000_000
	in.TimelineMonths = 72
	in.InterestPercent = 25
	in.Construction.Total = 9_500_000
	in.Construction.ContingencyPercent = 1
	res := Calculate(in)
	if len(res.Warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %d: %v", len(res.Warnings), res.Warnings)
	}
	if len(Calculate(referenceInputs()).Warnings) != 0 {
		t.Fatal("expected no warnings for reference scenario")
	}
}

func TestLoadRatesRejectsInvalidTables(t *testing.T) {
	bad := []byte(`
version: "broken"
stampDuty: [{threshold: 0, base: 0, rate: 1.5}]
landTax: [{threshold: 0, base: 0, rate: 0}]
councilRatesAnnual: 1
waterRatesAnnual: 1
insurancePercent: 0
legalFeePercent: 0
loanFeePercent: 0
contingencyPercent: 5
sellingCostsPercent: 3
defaultLvrPercent: 70
defaultInterestPercent: 7
targetMargin: {revenueThreshold: 1, belowPercent: 15, abovePercent: 20}
`)
	if _, err := LoadRates(bad); err == nil {
		t.Fatal("expected rate >= 1 to be rejected")
	}

	unordered := []byte(`
version: "unordered"
stampDuty: [{threshold: 0, base: 0, rate: 0}, {threshold: 500, base: 0, rate: 0.1}, {threshold: 100, base: 0, rate: 0.2}]
landTax: [{threshold: 0, base: 0, rate: 0}]
councilRatesAnnual: 1
waterRatesAnnual: 1
insurancePercent: 0
legalFeePercent: 0
loanFeePercent: 0
contingencyPercent: 5
sellingCostsPercent: 3
defaultLvrPercent: 70
defaultInterestPercent: 7
targetMargin: {revenueThreshold: 1, belowPercent: 15, abovePercent: 20}
`)
	if _, err := LoadRates(unordered); err == nil {
		t.Fatal("expected descending thresholds to be rejected")
	}
}

func TestDefaultRatesReturnsCopy(t *testing.T) {
	r := DefaultRates()
	r.StampDuty[1].Rate = 0.9
	if DefaultRates().StampDuty[1].Rate == 0.9 {
		t.Fatal("DefaultRates must not share bracket slices")
	}
}

func diff(a, b float64) float64 {
	return math.Abs(a - b)
}
