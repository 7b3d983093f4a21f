package feasibility

import "math"

// ResidualIterations is the fixed number of refinement passes.
const ResidualIterations = 8

// solveResidual finds the land value at which the margin equals target,
// holding every other input fixed. Duty, legal fees, land tax, holding and
// finance all depend on the land value, so the margin equation is re-solved
// with the previous estimate plugged into those terms.
func (e *Engine) solveResidual(in Inputs, netRevenue, constructionTotal, selling, targetPercent float64) (float64, int) {
	targetProfit := netRevenue * targetPercent / 100
	headroom := netRevenue - constructionTotal - selling - targetProfit

	land := math.Max(0, headroom)
	for i := 0; i < ResidualIterations; i++ {
		land = math.Max(0, headroom-e.landDependentCosts(land, constructionTotal, in))
	}
	return land, ResidualIterations
}

// landDependentCosts is every cost other than the land price itself that the
// engine adds on top of construction and selling, evaluated at land.
func (e *Engine) landDependentCosts(land, constructionTotal float64, in Inputs) float64 {
	stampDuty := e.rates.StampDutyOn(land)
	legal := land * e.rates.LegalFeePercent / 100
	fin := e.financeCosts(land, constructionTotal, in.LVRPercent, in.InterestPercent, in.TimelineMonths)
	holding := e.HoldingCosts(land, constructionTotal, in.TimelineMonths)
	return stampDuty + legal + fin.Total + holding.Prorated
}
