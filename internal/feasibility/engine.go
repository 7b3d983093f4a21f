// Package feasibility computes the financial viability of a property
// development: GST, acquisition duties, holding and finance costs,
// profitability, and the residual land value, and renders the result as a
// report.
package feasibility

import (
	"fmt"
	"math"

	"github.com/joelkehle/devfeasibility/internal/valueparse"
)

const (
	constructionDrawFactor = 0.5
	leadInShare            = 0.17
	constructionShare      = 0.67

	maxPlausibleMonths   = 60
	maxPlausibleInterest = 20.0
)

// Engine evaluates inputs against one set of rates. The zero value is not
// usable; build it with NewEngine.
type Engine struct {
	rates Rates
}

func NewEngine(r Rates) *Engine {
	return &Engine{rates: r.clone()}
}

// Calculate runs the default engine.
func Calculate(in Inputs) Result {
	return NewEngine(DefaultRates()).Calculate(in)
}

// Calculate is deterministic: identical inputs and rates yield identical
// results.
func (e *Engine) Calculate(in Inputs) Result {
	r := e.rates
	constructionTotal, contingencyPct, contingencyDefault := e.ResolveConstruction(in.Construction)
	in.Construction.Total = constructionTotal
	in.Construction.ContingencyPercent = contingencyPct

	rev := computeRevenue(in)
	stampDuty := r.StampDutyOn(in.LandValue)
	legal := in.LandValue * r.LegalFeePercent / 100
	acquisition := in.LandValue + stampDuty + legal
	selling := rev.NetExclGST * in.SellingCostsPercent / 100
	holding := e.HoldingCosts(in.LandValue, constructionTotal, in.TimelineMonths)
	fin := e.financeCosts(in.LandValue, constructionTotal, in.LVRPercent, in.InterestPercent, in.TimelineMonths)

	total := acquisition + constructionTotal + selling + fin.Total + holding.Prorated
	profit := rev.NetExclGST - total
	target := r.TargetMarginFor(rev.NetExclGST)
	margin := ratioPercent(profit, rev.NetExclGST)
	viability := ClassifyViability(margin, target)

	residual, iterations := e.solveResidual(in, rev.NetExclGST, constructionTotal, selling, target)

	return Result{
		Inputs:  in,
		Revenue: rev,
		Costs: Costs{
			Land:               in.LandValue,
			StampDuty:          stampDuty,
			Legal:              legal,
			Acquisition:        acquisition,
			Construction:       constructionTotal,
			ContingencyPercent: contingencyPct,
			ContingencyDefault: contingencyDefault,
			Selling:            selling,
			Finance:            fin.Total,
			Holding:            holding.Prorated,
			Total:              total,
		},
		Finance: fin,
		Holding: holding,
		Profitability: Profitability{
			GrossProfit:         profit,
			MarginPercent:       margin,
			ReturnOnCostPercent: ratioPercent(profit, total),
			TargetMarginPercent: target,
			Viability:           viability,
			ViabilityLabel:      viability.Label(),
		},
		Residual: Residual{
			LandValue:           residual,
			TargetMarginPercent: target,
			Difference:          residual - in.LandValue,
			Iterations:          iterations,
		},
		Timeline:     SplitTimeline(in.TimelineMonths),
		Warnings:     SanityWarnings(in),
		RatesVersion: r.Version,
	}
}

// CalculateResidual answers "what may I pay for the land?". The land value in
// the inputs is ignored; the result is costed at the solved residual price.
// A targetMargin above zero replaces the revenue-based target.
func (e *Engine) CalculateResidual(in Inputs, targetMargin float64) Result {
	in.LandValue = 0
	probe := e.Calculate(in)
	target := probe.Profitability.TargetMarginPercent
	if targetMargin > 0 {
		target = targetMargin
	}
	constructionTotal := probe.Costs.Construction
	residual, iterations := e.solveResidual(probe.Inputs, probe.Revenue.NetExclGST, constructionTotal, probe.Costs.Selling, target)

	in.LandValue = residual
	res := e.Calculate(in)
	res.Residual = Residual{
		LandValue:           residual,
		TargetMarginPercent: target,
		Iterations:          iterations,
	}
	return res
}

// ResolveConstruction returns the contingency-inclusive construction total.
// A breakdown that carried its own contingency is already inclusive;
// otherwise the default contingency is applied.
func (e *Engine) ResolveConstruction(c valueparse.ConstructionBreakdown) (total, contingencyPct float64, defaulted bool) {
	if c.ContingencyPercent > 0 {
		return c.Total, c.ContingencyPercent, false
	}
	pct := e.rates.ContingencyPercent
	return c.Total * (1 + pct/100), pct, true
}

// HoldingCosts is the annual and prorated cost of carrying the site.
func (e *Engine) HoldingCosts(landValue, constructionTotal float64, months int) Holding {
	r := e.rates
	h := Holding{
		LandTax:      r.LandTaxOn(landValue),
		CouncilRates: r.CouncilRatesAnnual,
		WaterRates:   r.WaterRatesAnnual,
		Insurance:    constructionTotal * r.InsurancePercent / 100,
	}
	h.Annual = h.LandTax + h.CouncilRates + h.WaterRates + h.Insurance
	h.Prorated = h.Annual * float64(months) / 12
	return h
}

func (e *Engine) financeCosts(landValue, constructionTotal, lvr, interest float64, months int) Finance {
	f := Finance{
		LandDebt:         landValue * lvr / 100,
		ConstructionDebt: constructionTotal * lvr / 100,
	}
	f.AverageDebt = f.LandDebt + f.ConstructionDebt*constructionDrawFactor
	f.Interest = f.AverageDebt * interest / 100 * float64(months) / 12
	f.EstablishmentFee = (f.LandDebt + f.ConstructionDebt) * e.rates.LoanFeePercent / 100
	f.Total = f.Interest + f.EstablishmentFee
	return f
}

func computeRevenue(in Inputs) Revenue {
	gross := in.GrossRevenue
	var gst float64
	switch in.GSTScheme {
	case valueparse.GSTFullyTaxed:
		gst = gross / 11
	default:
		gst = math.Max(0, (gross-in.GSTCostBase)/11)
	}
	return Revenue{GrossInclGST: gross, GSTPayable: gst, NetExclGST: gross - gst}
}

// ClassifyViability buckets a margin against target T:
// >= T+10 highly viable, [T, T+10) viable, [T-5, T) marginal,
// [0, T-5) challenging, < 0 not viable.
func ClassifyViability(marginPercent, targetPercent float64) Viability {
	switch {
	case marginPercent >= targetPercent+10:
		return ViabilityHighlyViable
	case marginPercent >= targetPercent:
		return ViabilityViable
	case marginPercent >= targetPercent-5:
		return ViabilityMarginal
	case marginPercent >= 0:
		return ViabilityChallenging
	default:
		return ViabilityNotViable
	}
}

// SplitTimeline divides the programme into lead-in, construction and selling.
// Selling absorbs rounding so the parts always sum to the input.
func SplitTimeline(months int) Timeline {
	if months <= 0 {
		return Timeline{}
	}
	leadIn := int(math.Round(float64(months) * leadInShare))
	build := int(math.Round(float64(months) * constructionShare))
	if leadIn+build > months {
		build = months - leadIn
	}
	return Timeline{
		LeadInMonths:       leadIn,
		ConstructionMonths: build,
		SellingMonths:      months - leadIn - build,
		TotalMonths:        months,
	}
}

// SanityWarnings flags implausible inputs. None of them block a calculation.
func SanityWarnings(in Inputs) []string {
	var out []string
	if in.GrossRevenue > 0 && in.LandValue >= in.GrossRevenue {
		out = append(out, "Land value is at or above gross revenue; check the purchase price and GRV.")
	}
	if in.GrossRevenue > 0 && in.Construction.Total > 0.9*in.GrossRevenue {
		out = append(out, "Construction cost exceeds 90% of gross revenue.")
	}
	if in.TimelineMonths > maxPlausibleMonths {
		out = append(out, fmt.Sprintf("Timeline of %d months is unusually long for a single-stage project.", in.TimelineMonths))
	}
	if in.InterestPercent > maxPlausibleInterest {
		out = append(out, fmt.Sprintf("Interest rate of %.2f%% looks implausibly high.", in.InterestPercent))
	}
	if in.LVRPercent > 100 {
		out = append(out, fmt.Sprintf("LVR of %.0f%% exceeds 100%%.", in.LVRPercent))
	}
	return out
}

func ratioPercent(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den * 100
}
