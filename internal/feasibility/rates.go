package feasibility

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var ratesSchema []byte

//go:embed rates.cue
var defaultRatesSource []byte

// Bracket is one step of a progressive schedule: amounts at or above
// Threshold pay Base plus Rate on the excess.
type Bracket struct {
	Threshold float64 `json:"threshold"`
	Base      float64 `json:"base"`
	Rate      float64 `json:"rate"`
}

type TargetMarginRule struct {
	RevenueThreshold float64 `json:"revenueThreshold"`
	BelowPercent     float64 `json:"belowPercent"`
	AbovePercent     float64 `json:"abovePercent"`
}

// Rates is the versioned tax and cost configuration the engine runs against.
type Rates struct {
	Version                string           `json:"version"`
	StampDuty              []Bracket        `json:"stampDuty"`
	LandTax                []Bracket        `json:"landTax"`
	CouncilRatesAnnual     float64          `json:"councilRatesAnnual"`
	WaterRatesAnnual       float64          `json:"waterRatesAnnual"`
	InsurancePercent       float64          `json:"insurancePercent"`
	LegalFeePercent        float64          `json:"legalFeePercent"`
	LoanFeePercent         float64          `json:"loanFeePercent"`
	ContingencyPercent     float64          `json:"contingencyPercent"`
	SellingCostsPercent    float64          `json:"sellingCostsPercent"`
	DefaultLVRPercent      float64          `json:"defaultLvrPercent"`
	DefaultInterestPercent float64          `json:"defaultInterestPercent"`
	TargetMargin           TargetMarginRule `json:"targetMargin"`
}

var (
	defaultOnce  sync.Once
	defaultRates Rates
)

// DefaultRates returns the embedded rate tables.
func DefaultRates() Rates {
	defaultOnce.Do(func() {
		r, err := LoadRates(defaultRatesSource)
		if err != nil {
			panic(fmt.Sprintf("embedded rates.cue invalid: %v", err))
		}
		defaultRates = r
	})
	return defaultRates.clone()
}

// LoadRatesFile reads a CUE rate table from disk.
func LoadRatesFile(path string) (Rates, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Rates{}, fmt.Errorf("read rates file: %w", err)
	}
	return LoadRates(src)
}

// LoadRates compiles src against the rate schema and decodes it.
func LoadRates(src []byte) (Rates, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(ratesSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Rates{}, fmt.Errorf("compile rates schema: %w", err)
	}
	data := ctx.CompileBytes(src, cue.Filename("rates.cue"))
	if err := data.Err(); err != nil {
		return Rates{}, fmt.Errorf("compile rates: %w", err)
	}
	v := schema.Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Rates{}, fmt.Errorf("validate rates: %w", err)
	}
	var r Rates
	if err := v.Decode(&r); err != nil {
		return Rates{}, fmt.Errorf("decode rates: %w", err)
	}
	if err := checkBrackets("stampDuty", r.StampDuty); err != nil {
		return Rates{}, err
	}
	if err := checkBrackets("landTax", r.LandTax); err != nil {
		return Rates{}, err
	}
	return r, nil
}

func checkBrackets(name string, bs []Bracket) error {
	if len(bs) == 0 || bs[0].Threshold != 0 {
		return fmt.Errorf("%s: first bracket must start at 0", name)
	}
	for i := 1; i < len(bs); i++ {
		if bs[i].Threshold <= bs[i-1].Threshold {
			return fmt.Errorf("%s: thresholds must ascend (bracket %d)", name, i)
		}
	}
	return nil
}

func (r Rates) clone() Rates {
	out := r
	out.StampDuty = append([]Bracket(nil), r.StampDuty...)
	out.LandTax = append([]Bracket(nil), r.LandTax...)
	return out
}

// Apply evaluates a progressive schedule at amount.
func Apply(brackets []Bracket, amount float64) float64 {
	if amount <= 0 || len(brackets) == 0 {
		return 0
	}
	b := brackets[0]
	for _, next := range brackets[1:] {
		if amount < next.Threshold {
			break
		}
		b = next
	}
	return b.Base + b.Rate*(amount-b.Threshold)
}

// StampDutyOn is the transfer duty payable on a land purchase.
func (r Rates) StampDutyOn(landValue float64) float64 { return Apply(r.StampDuty, landValue) }

// LandTaxOn is the annual land tax on a holding of landValue.
func (r Rates) LandTaxOn(landValue float64) float64 { return Apply(r.LandTax, landValue) }

// TargetMarginFor returns the margin (percent of net revenue) a project of
// this size is expected to clear.
func (r Rates) TargetMarginFor(netRevenue float64) float64 {
	if netRevenue < r.TargetMargin.RevenueThreshold {
		return r.TargetMargin.BelowPercent
	}
	return r.TargetMargin.AbovePercent
}
