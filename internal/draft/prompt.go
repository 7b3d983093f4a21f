package draft

import (
	"strings"

	"github.com/joelkehle/devfeasibility/internal/reconcile"
)

var fieldLabels = map[reconcile.Field]string{
	reconcile.FieldPurchasePrice:    "the land purchase price",
	reconcile.FieldGrossRevenue:     "the expected gross revenue (GRV)",
	reconcile.FieldConstructionCost: "the total construction cost",
	reconcile.FieldTimelineMonths:   "the project timeline in months",
	reconcile.FieldLVR:              "the loan-to-value ratio (LVR)",
	reconcile.FieldInterestRate:     "the interest rate",
	reconcile.FieldSellingCosts:     "the selling costs",
	reconcile.FieldGSTScheme:        "whether GST is under the margin scheme or fully taxed",
	reconcile.FieldGSTCostBase:      "the GST cost base",
}

// MissingPrompt asks the user, in plain language, for exactly the fields listed.
func MissingPrompt(missing []reconcile.Field) string {
	if len(missing) == 0 {
		return ""
	}
	labels := make([]string, 0, len(missing))
	for _, f := range missing {
		label, ok := fieldLabels[f]
		if !ok {
			label = string(f)
		}
		labels = append(labels, label)
	}
	var list string
	switch len(labels) {
	case 1:
		list = labels[0]
	default:
		list = strings.Join(labels[:len(labels)-1], ", ") + " and " + labels[len(labels)-1]
	}
	return "To run the feasibility I still need " + list + "."
}
