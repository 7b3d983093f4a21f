// Package draft keeps the per-conversation state of a feasibility study: the
// property under consideration, the inputs gathered so far, where each one
// came from, and the last calculation.
package draft

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/joelkehle/devfeasibility/internal/feasibility"
	"github.com/joelkehle/devfeasibility/internal/reconcile"
	"github.com/joelkehle/devfeasibility/internal/valueparse"
)

type Status string

const (
	StatusCollecting       Status = "collecting"
	StatusReadyToCalculate Status = "ready_to_calculate"
	StatusCalculated       Status = "calculated"
)

// Source tags who supplied a field.
type Source string

const (
	SourceChat         Source = "chat"
	SourcePanel        Source = "panel"
	SourcePropertyTool Source = "property_tool"
	SourceDefault      Source = "default"
	SourceExtraction   Source = "conversation_extraction_fallback"
)

func (s Source) Valid() bool {
	switch s {
	case SourceChat, SourcePanel, SourcePropertyTool, SourceDefault, SourceExtraction:
		return true
	}
	return false
}

type Mode string

const (
	ModeStandard Mode = "standard"
	ModeResidual Mode = "residual"
)

// Property is the site as reported by the property lookup. Its address locks
// the draft: a different address starts a new draft.
type Property struct {
	Address     string   `json:"address,omitempty"`
	LotPlan     string   `json:"lotPlan,omitempty"`
	SiteAreaSqm *float64 `json:"siteAreaSqm,omitempty"`
	Zone        string   `json:"zone,omitempty"`
	Density     string   `json:"density,omitempty"`
	HeightLimit string   `json:"heightLimit,omitempty"`
	Overlays    []string `json:"overlays,omitempty"`
	Source      Source   `json:"source,omitempty"`
}

// Inputs are the canonical values gathered so far. Nil means not supplied.
type Inputs struct {
	PurchasePrice    *float64                          `json:"purchasePrice,omitempty" validate:"omitempty,gte=0"`
	GrossRevenue     *float64                          `json:"grossRevenue,omitempty" validate:"omitempty,gte=0"`
	ConstructionCost *valueparse.ConstructionBreakdown `json:"constructionCost,omitempty"`
	LVR              *float64                          `json:"lvr,omitempty" validate:"omitempty,gte=0,lte=100"`
	InterestRate     *float64                          `json:"interestRate,omitempty" validate:"omitempty,gte=0,lte=100"`
	TimelineMonths   *int                              `json:"timelineMonths,omitempty" validate:"omitempty,gte=0"`
	SellingCosts     *float64                          `json:"sellingCosts,omitempty" validate:"omitempty,gte=0,lte=100"`
	GSTScheme        *valueparse.GSTScheme             `json:"gstScheme,omitempty" validate:"omitempty,oneof=margin fully_taxed"`
	GSTCostBase      *float64                          `json:"gstCostBase,omitempty" validate:"omitempty,gte=0"`
}

// Assumptions override rate-table defaults for one draft. Nil keeps the default.
type Assumptions struct {
	ContingencyPercent     *float64 `json:"contingencyPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	LegalFeePercent        *float64 `json:"legalFeePercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	LoanFeePercent         *float64 `json:"loanFeePercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	DefaultLVRPercent      *float64 `json:"defaultLvrPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	DefaultInterestPercent *float64 `json:"defaultInterestPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	SellingCostsPercent    *float64 `json:"sellingCostsPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
	CouncilRatesAnnual     *float64 `json:"councilRatesAnnual,omitempty" validate:"omitempty,gte=0"`
	WaterRatesAnnual       *float64 `json:"waterRatesAnnual,omitempty" validate:"omitempty,gte=0"`
	InsurancePercent       *float64 `json:"insurancePercent,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type Draft struct {
	ConversationID string                `json:"conversationId"`
	Property       Property              `json:"property"`
	Inputs         Inputs                `json:"inputs"`
	RawInputs      feasibility.RawInputs `json:"rawInputs"`
	Assumptions    Assumptions           `json:"assumptions"`
	HoldingCosts   *feasibility.Holding  `json:"holdingCosts,omitempty"`
	Status         Status                `json:"status"`
	Results        *feasibility.Result   `json:"results,omitempty"`
	Report         string                `json:"report,omitempty"`
	SourceMap      map[string]Source     `json:"sourceMap"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

func newDraft(id string, now time.Time) *Draft {
	return &Draft{
		ConversationID: id,
		Status:         StatusCollecting,
		SourceMap:      map[string]Source{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy.
func (d *Draft) Clone() *Draft {
	raw, err := json.Marshal(d)
	if err != nil {
		panic(err)
	}
	var out Draft
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	if out.SourceMap == nil {
		out.SourceMap = map[string]Source{}
	}
	return &out
}

// Patch is a partial update. Nil sections and nil or empty fields are left
// untouched.
type Patch struct {
	Property    *Property              `json:"property,omitempty"`
	Inputs      *Inputs                `json:"inputs,omitempty"`
	RawInputs   *feasibility.RawInputs `json:"rawInputs,omitempty"`
	Assumptions *Assumptions           `json:"assumptions,omitempty"`
}

// CalculateOptions selects the calculation. TargetMargin > 0 overrides the
// revenue-based target in residual mode.
type CalculateOptions struct {
	Mode         Mode    `json:"mode"`
	TargetMargin float64 `json:"targetMargin,omitempty"`
}

type CalculateOutcome struct {
	Draft  *Draft              `json:"draft"`
	Result *feasibility.Result `json:"result"`
	Report string              `json:"report"`
}

type ReconcileOutcome struct {
	Draft      *Draft               `json:"draft"`
	Filled     []reconcile.Field    `json:"filled,omitempty"`
	Mismatches []reconcile.Mismatch `json:"mismatches,omitempty"`
}

// NormalizeAddress lower-cases an address and collapses commas and runs of
// whitespace so that formatting differences do not unlock a draft.
func NormalizeAddress(address string) string {
	s := strings.ToLower(strings.ReplaceAll(address, ",", " "))
	return strings.Join(strings.Fields(s), " ")
}

var patchValidator = validator.New()

// check rejects out-of-range explicit inputs and assumptions. Raw strings are
// not checked; the parsers already bound them.
func (p Patch) check() error {
	if p.Inputs != nil {
		if err := patchValidator.Struct(p.Inputs); err != nil {
			return newError(CodeValidation, "inputs: "+err.Error())
		}
	}
	if p.Assumptions != nil {
		if err := patchValidator.Struct(p.Assumptions); err != nil {
			return newError(CodeValidation, "assumptions: "+err.Error())
		}
	}
	return nil
}
