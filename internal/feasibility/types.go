package feasibility

import "github.com/joelkehle/devfeasibility/internal/valueparse"

// CallToActionMarker closes every report. Renderers key follow-up actions off it.
const CallToActionMarker = "[[FEASIBILITY_ACTIONS]]"

type Viability string

const (
	ViabilityHighlyViable Viability = "highly_viable"
	ViabilityViable       Viability = "viable"
	ViabilityMarginal     Viability = "marginal"
	ViabilityChallenging  Viability = "challenging"
	ViabilityNotViable    Viability = "not_viable"
)

func (v Viability) Label() string {
	switch v {
	case ViabilityHighlyViable:
		return "Highly Viable"
	case ViabilityViable:
		return "Viable"
	case ViabilityMarginal:
		return "Marginal"
	case ViabilityChallenging:
		return "Challenging"
	default:
		return "Not Viable"
	}
}

// Inputs are the canonical values the engine computes from. Percentages are
// expressed as percent (7 means 7%).
type Inputs struct {
	LandValue           float64                          `json:"landValue"`
	GrossRevenue        float64                          `json:"grossRevenue"`
	Construction        valueparse.ConstructionBreakdown `json:"constructionCost"`
	LVRPercent          float64                          `json:"lvr"`
	InterestPercent     float64                          `json:"interestRate"`
	TimelineMonths      int                              `json:"timelineMonths"`
	SellingCostsPercent float64                          `json:"sellingCostsPercent"`
	GSTScheme           valueparse.GSTScheme             `json:"gstScheme"`
	GSTCostBase         float64                          `json:"gstCostBase"`
}

// RawInputs are the verbatim strings a user supplied.
type RawInputs struct {
	PurchasePrice    string `json:"purchasePrice,omitempty"`
	GrossRevenue     string `json:"grossRevenue,omitempty"`
	ConstructionCost string `json:"constructionCost,omitempty"`
	LVR              string `json:"lvr,omitempty"`
	InterestRate     string `json:"interestRate,omitempty"`
	TimelineMonths   string `json:"timelineMonths,omitempty"`
	SellingCosts     string `json:"sellingCosts,omitempty"`
	GSTScheme        string `json:"gstScheme,omitempty"`
	GSTCostBase      string `json:"gstCostBase,omitempty"`
}

// ParseInputs runs every raw string through its parser. An empty cost base
// falls back to the land value.
func ParseInputs(raw RawInputs) Inputs {
	land := valueparse.Money(raw.PurchasePrice)
	return Inputs{
		LandValue:           land,
		GrossRevenue:        valueparse.Money(raw.GrossRevenue),
		Construction:        valueparse.ConstructionCost(raw.ConstructionCost),
		LVRPercent:          valueparse.LoanRatio(raw.LVR),
		InterestPercent:     valueparse.Percentage(raw.InterestRate),
		TimelineMonths:      valueparse.Duration(raw.TimelineMonths),
		SellingCostsPercent: valueparse.Percentage(raw.SellingCosts),
		GSTScheme:           valueparse.Scheme(raw.GSTScheme),
		GSTCostBase:         valueparse.CostBase(raw.GSTCostBase, land),
	}
}

type Revenue struct {
	GrossInclGST float64 `json:"grossInclGst"`
	GSTPayable   float64 `json:"gstPayable"`
	NetExclGST   float64 `json:"netExclGst"`
}

type Finance struct {
	LandDebt         float64 `json:"landDebt"`
	ConstructionDebt float64 `json:"constructionDebt"`
	AverageDebt      float64 `json:"averageDebt"`
	Interest         float64 `json:"interest"`
	EstablishmentFee float64 `json:"establishmentFee"`
	Total            float64 `json:"total"`
}

type Holding struct {
	LandTax      float64 `json:"landTax"`
	CouncilRates float64 `json:"councilRates"`
	WaterRates   float64 `json:"waterRates"`
	Insurance    float64 `json:"insurance"`
	Annual       float64 `json:"annual"`
	Prorated     float64 `json:"prorated"`
}

type Costs struct {
	Land               float64 `json:"land"`
	StampDuty          float64 `json:"stampDuty"`
	Legal              float64 `json:"legal"`
	Acquisition        float64 `json:"acquisition"`
	Construction       float64 `json:"construction"`
	ContingencyPercent float64 `json:"contingencyPercent"`
	ContingencyDefault bool    `json:"contingencyDefault"`
	Selling            float64 `json:"selling"`
	Finance            float64 `json:"finance"`
	Holding            float64 `json:"holding"`
	Total              float64 `json:"total"`
}

type Profitability struct {
	GrossProfit         float64   `json:"grossProfit"`
	MarginPercent       float64   `json:"marginPercent"`
	ReturnOnCostPercent float64   `json:"returnOnCostPercent"`
	TargetMarginPercent float64   `json:"targetMarginPercent"`
	Viability           Viability `json:"viability"`
	ViabilityLabel      string    `json:"viabilityLabel"`
}

type Residual struct {
	LandValue           float64 `json:"landValue"`
	TargetMarginPercent float64 `json:"targetMarginPercent"`
	// Difference is residual minus the supplied land value; positive means headroom.
	Difference float64 `json:"difference"`
	Iterations int     `json:"iterations"`
}

type Timeline struct {
	LeadInMonths       int `json:"leadInMonths"`
	ConstructionMonths int `json:"constructionMonths"`
	SellingMonths      int `json:"sellingMonths"`
	TotalMonths        int `json:"totalMonths"`
}

// Result is an immutable snapshot of one computation.
type Result struct {
	Inputs        Inputs        `json:"inputs"`
	Revenue       Revenue       `json:"revenue"`
	Costs         Costs         `json:"costs"`
	Finance       Finance       `json:"finance"`
	Holding       Holding       `json:"holding"`
	Profitability Profitability `json:"profitability"`
	Residual      Residual      `json:"residual"`
	Timeline      Timeline      `json:"timeline"`
	Warnings      []string      `json:"warnings,omitempty"`
	RatesVersion  string        `json:"ratesVersion"`
}
