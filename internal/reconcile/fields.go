package reconcile

import (
	"github.com/joelkehle/devfeasibility/internal/feasibility"
	"github.com/joelkehle/devfeasibility/internal/valueparse"
)

// Field names a raw input. Values match the json keys of feasibility.RawInputs.
type Field string

const (
	FieldPurchasePrice    Field = "purchasePrice"
	FieldGrossRevenue     Field = "grossRevenue"
	FieldConstructionCost Field = "constructionCost"
	FieldLVR              Field = "lvr"
	FieldInterestRate     Field = "interestRate"
	FieldTimelineMonths   Field = "timelineMonths"
	FieldSellingCosts     Field = "sellingCosts"
	FieldGSTScheme        Field = "gstScheme"
	FieldGSTCostBase      Field = "gstCostBase"
)

// Fields lists every raw input in report order.
var Fields = []Field{
	FieldPurchasePrice,
	FieldGrossRevenue,
	FieldConstructionCost,
	FieldLVR,
	FieldInterestRate,
	FieldTimelineMonths,
	FieldSellingCosts,
	FieldGSTScheme,
	FieldGSTCostBase,
}

func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// Get reads the raw string held for f.
func Get(raw feasibility.RawInputs, f Field) string {
	switch f {
	case FieldPurchasePrice:
		return raw.PurchasePrice
	case FieldGrossRevenue:
		return raw.GrossRevenue
	case FieldConstructionCost:
		return raw.ConstructionCost
	case FieldLVR:
		return raw.LVR
	case FieldInterestRate:
		return raw.InterestRate
	case FieldTimelineMonths:
		return raw.TimelineMonths
	case FieldSellingCosts:
		return raw.SellingCosts
	case FieldGSTScheme:
		return raw.GSTScheme
	case FieldGSTCostBase:
		return raw.GSTCostBase
	}
	return ""
}

// Set stores v as the raw string for f.
func Set(raw *feasibility.RawInputs, f Field, v string) {
	switch f {
	case FieldPurchasePrice:
		raw.PurchasePrice = v
	case FieldGrossRevenue:
		raw.GrossRevenue = v
	case FieldConstructionCost:
		raw.ConstructionCost = v
	case FieldLVR:
		raw.LVR = v
	case FieldInterestRate:
		raw.InterestRate = v
	case FieldTimelineMonths:
		raw.TimelineMonths = v
	case FieldSellingCosts:
		raw.SellingCosts = v
	case FieldGSTScheme:
		raw.GSTScheme = v
	case FieldGSTCostBase:
		raw.GSTCostBase = v
	}
}

// numeric reduces a raw string to the number the engine would use, so that
// "$10M" and "10,000,000" compare equal. The GST scheme maps to 0 or 1.
func numeric(f Field, v string) float64 {
	switch f {
	case FieldPurchasePrice, FieldGrossRevenue:
		return valueparse.Money(v)
	case FieldGSTCostBase:
		return valueparse.CostBase(v, 0)
	case FieldConstructionCost:
		return valueparse.ConstructionCost(v).Total
	case FieldLVR:
		return valueparse.LoanRatio(v)
	case FieldInterestRate, FieldSellingCosts:
		return valueparse.Percentage(v)
	case FieldTimelineMonths:
		return float64(valueparse.Duration(v))
	case FieldGSTScheme:
		if valueparse.Scheme(v) == valueparse.GSTFullyTaxed {
			return 1
		}
		return 0
	}
	return 0
}
