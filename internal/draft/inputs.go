package draft

import (
	"strconv"

	"github.com/joelkehle/devfeasibility/internal/feasibility"
	"github.com/joelkehle/devfeasibility/internal/reconcile"
	"github.com/joelkehle/devfeasibility/internal/valueparse"
)

var (
	requiredFields = []reconcile.Field{
		reconcile.FieldPurchasePrice,
		reconcile.FieldGrossRevenue,
		reconcile.FieldConstructionCost,
		reconcile.FieldTimelineMonths,
	}
	// gatingFields are not needed to calculate but hold a draft in
	// collecting until the user has answered them.
	gatingFields = []reconcile.Field{
		reconcile.FieldLVR,
		reconcile.FieldInterestRate,
		reconcile.FieldGSTScheme,
	}
)

func ptr[T any](v T) *T { return &v }

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// has reports whether f was supplied at all.
func (in *Inputs) has(f reconcile.Field) bool {
	switch f {
	case reconcile.FieldPurchasePrice:
		return in.PurchasePrice != nil
	case reconcile.FieldGrossRevenue:
		return in.GrossRevenue != nil
	case reconcile.FieldConstructionCost:
		return in.ConstructionCost != nil
	case reconcile.FieldLVR:
		return in.LVR != nil
	case reconcile.FieldInterestRate:
		return in.InterestRate != nil
	case reconcile.FieldTimelineMonths:
		return in.TimelineMonths != nil
	case reconcile.FieldSellingCosts:
		return in.SellingCosts != nil
	case reconcile.FieldGSTScheme:
		return in.GSTScheme != nil
	case reconcile.FieldGSTCostBase:
		return in.GSTCostBase != nil
	}
	return false
}

// present is stricter than has for the required fields: a zero land value,
// revenue, construction cost or timeline counts as missing.
func (in *Inputs) present(f reconcile.Field) bool {
	switch f {
	case reconcile.FieldPurchasePrice:
		return deref(in.PurchasePrice) > 0
	case reconcile.FieldGrossRevenue:
		return deref(in.GrossRevenue) > 0
	case reconcile.FieldConstructionCost:
		return in.ConstructionCost != nil && in.ConstructionCost.Total > 0
	case reconcile.FieldTimelineMonths:
		return deref(in.TimelineMonths) > 0
	}
	return in.has(f)
}

// copyField copies f from src. It reports whether src carried a value.
func (in *Inputs) copyField(f reconcile.Field, src *Inputs) bool {
	if !src.has(f) {
		return false
	}
	switch f {
	case reconcile.FieldPurchasePrice:
		in.PurchasePrice = ptr(*src.PurchasePrice)
	case reconcile.FieldGrossRevenue:
		in.GrossRevenue = ptr(*src.GrossRevenue)
	case reconcile.FieldConstructionCost:
		c := *src.ConstructionCost
		in.ConstructionCost = &c
	case reconcile.FieldLVR:
		in.LVR = ptr(*src.LVR)
	case reconcile.FieldInterestRate:
		in.InterestRate = ptr(*src.InterestRate)
	case reconcile.FieldTimelineMonths:
		in.TimelineMonths = ptr(*src.TimelineMonths)
	case reconcile.FieldSellingCosts:
		in.SellingCosts = ptr(*src.SellingCosts)
	case reconcile.FieldGSTScheme:
		in.GSTScheme = ptr(*src.GSTScheme)
	case reconcile.FieldGSTCostBase:
		in.GSTCostBase = ptr(*src.GSTCostBase)
	}
	return true
}

// heldValue returns the draft's value for f as text when it came from a
// source other than conversation extraction.
func (d *Draft) heldValue(f reconcile.Field) (string, bool) {
	src, ok := d.SourceMap["inputs."+string(f)]
	if !ok || src == SourceExtraction || !d.Inputs.has(f) {
		return "", false
	}
	if raw := reconcile.Get(d.RawInputs, f); raw != "" {
		return raw, true
	}
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	in := d.Inputs
	switch f {
	case reconcile.FieldPurchasePrice:
		return num(*in.PurchasePrice), true
	case reconcile.FieldGrossRevenue:
		return num(*in.GrossRevenue), true
	case reconcile.FieldConstructionCost:
		return num(in.ConstructionCost.Total), true
	case reconcile.FieldLVR:
		return num(*in.LVR) + "%", true
	case reconcile.FieldInterestRate:
		return num(*in.InterestRate) + "%", true
	case reconcile.FieldTimelineMonths:
		return strconv.Itoa(*in.TimelineMonths) + " months", true
	case reconcile.FieldSellingCosts:
		return num(*in.SellingCosts) + "%", true
	case reconcile.FieldGSTScheme:
		return string(*in.GSTScheme), true
	case reconcile.FieldGSTCostBase:
		return num(*in.GSTCostBase), true
	}
	return "", false
}

// setParsed parses raw into f. A cost base that refers to an unknown land
// value is left unset.
func (in *Inputs) setParsed(f reconcile.Field, raw string) bool {
	switch f {
	case reconcile.FieldPurchasePrice:
		in.PurchasePrice = ptr(valueparse.Money(raw))
	case reconcile.FieldGrossRevenue:
		in.GrossRevenue = ptr(valueparse.Money(raw))
	case reconcile.FieldConstructionCost:
		in.ConstructionCost = ptr(valueparse.ConstructionCost(raw))
	case reconcile.FieldLVR:
		in.LVR = ptr(valueparse.LoanRatio(raw))
	case reconcile.FieldInterestRate:
		in.InterestRate = ptr(valueparse.Percentage(raw))
	case reconcile.FieldTimelineMonths:
		in.TimelineMonths = ptr(valueparse.Duration(raw))
	case reconcile.FieldSellingCosts:
		in.SellingCosts = ptr(valueparse.Percentage(raw))
	case reconcile.FieldGSTScheme:
		in.GSTScheme = ptr(valueparse.Scheme(raw))
	case reconcile.FieldGSTCostBase:
		v := valueparse.CostBase(raw, deref(in.PurchasePrice))
		if v <= 0 {
			return false
		}
		in.GSTCostBase = &v
	default:
		return false
	}
	return true
}

// Apply overlays the assumptions on r.
func (a Assumptions) Apply(r feasibility.Rates) feasibility.Rates {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&r.ContingencyPercent, a.ContingencyPercent)
	set(&r.LegalFeePercent, a.LegalFeePercent)
	set(&r.LoanFeePercent, a.LoanFeePercent)
	set(&r.DefaultLVRPercent, a.DefaultLVRPercent)
	set(&r.DefaultInterestPercent, a.DefaultInterestPercent)
	set(&r.SellingCostsPercent, a.SellingCostsPercent)
	set(&r.CouncilRatesAnnual, a.CouncilRatesAnnual)
	set(&r.WaterRatesAnnual, a.WaterRatesAnnual)
	set(&r.InsurancePercent, a.InsurancePercent)
	return r
}

// merge copies the non-nil assumptions in p and returns the json keys written.
func (a *Assumptions) merge(p *Assumptions) []string {
	var keys []string
	set := func(dst **float64, v *float64, key string) {
		if v != nil {
			*dst = ptr(*v)
			keys = append(keys, key)
		}
	}
	set(&a.ContingencyPercent, p.ContingencyPercent, "contingencyPercent")
	set(&a.LegalFeePercent, p.LegalFeePercent, "legalFeePercent")
	set(&a.LoanFeePercent, p.LoanFeePercent, "loanFeePercent")
	set(&a.DefaultLVRPercent, p.DefaultLVRPercent, "defaultLvrPercent")
	set(&a.DefaultInterestPercent, p.DefaultInterestPercent, "defaultInterestPercent")
	set(&a.SellingCostsPercent, p.SellingCostsPercent, "sellingCostsPercent")
	set(&a.CouncilRatesAnnual, p.CouncilRatesAnnual, "councilRatesAnnual")
	set(&a.WaterRatesAnnual, p.WaterRatesAnnual, "waterRatesAnnual")
	set(&a.InsurancePercent, p.InsurancePercent, "insurancePercent")
	return keys
}

// engineInputs builds the engine's inputs. Stored raw strings win over
// numeric values; LVR, interest and selling costs fall back to the rates.
func (d *Draft) engineInputs(rates feasibility.Rates) feasibility.Inputs {
	raw := d.RawInputs
	in := feasibility.ParseInputs(raw)
	echo := d.Inputs

	if raw.PurchasePrice == "" {
		in.LandValue = deref(echo.PurchasePrice)
	}
	if raw.GrossRevenue == "" {
		in.GrossRevenue = deref(echo.GrossRevenue)
	}
	if raw.ConstructionCost == "" && echo.ConstructionCost != nil {
		in.Construction = *echo.ConstructionCost
	}
	if raw.TimelineMonths == "" {
		in.TimelineMonths = deref(echo.TimelineMonths)
	}
	if raw.LVR == "" {
		in.LVRPercent = rates.DefaultLVRPercent
		if echo.LVR != nil {
			in.LVRPercent = *echo.LVR
		}
	}
	if raw.InterestRate == "" {
		in.InterestPercent = rates.DefaultInterestPercent
		if echo.InterestRate != nil {
			in.InterestPercent = *echo.InterestRate
		}
	}
	if raw.SellingCosts == "" {
		in.SellingCostsPercent = rates.SellingCostsPercent
		if echo.SellingCosts != nil {
			in.SellingCostsPercent = *echo.SellingCosts
		}
	}
	if raw.GSTScheme == "" && echo.GSTScheme != nil {
		in.GSTScheme = *echo.GSTScheme
	}
	if raw.GSTCostBase == "" {
		in.GSTCostBase = in.LandValue
		if echo.GSTCostBase != nil {
			in.GSTCostBase = *echo.GSTCostBase
		}
	} else {
		in.GSTCostBase = valueparse.CostBase(raw.GSTCostBase, in.LandValue)
	}
	return in
}
