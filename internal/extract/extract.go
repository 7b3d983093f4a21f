package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/joelkehle/devfeasibility/internal/feasibility"
	"github.com/joelkehle/devfeasibility/internal/reconcile"
)

const maxAttempts = 3

// extraction is the model's answer. Values are the user's wording, not numbers.
type extraction struct {
	PurchasePrice    string `json:"purchasePrice" validate:"max=120"`
	GrossRevenue     string `json:"grossRevenue" validate:"max=120"`
	ConstructionCost string `json:"constructionCost" validate:"max=240"`
	LVR              string `json:"lvr" validate:"max=120"`
	InterestRate     string `json:"interestRate" validate:"max=120"`
	TimelineMonths   string `json:"timelineMonths" validate:"max=120"`
	SellingCosts     string `json:"sellingCosts" validate:"max=120"`
	GSTScheme        string `json:"gstScheme" validate:"max=120"`
	GSTCostBase      string `json:"gstCostBase" validate:"max=120"`
}

type Extractor struct {
	caller   Caller
	validate *validator.Validate
	log      logrus.FieldLogger
	sleep    func(time.Duration)
}

func NewExtractor(caller Caller, log logrus.FieldLogger) *Extractor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Extractor{caller: caller, validate: validator.New(), log: log, sleep: time.Sleep}
}

// Extract returns the raw inputs the model found. Fields it could not find
// are empty.
func (e *Extractor) Extract(ctx context.Context, transcript []reconcile.Turn) (feasibility.RawInputs, error) {
	prompt := buildPrompt(transcript)
	feedback := ""
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		full := prompt
		if feedback != "" {
			full += "\n\n" + feedback
		}
		raw, err := e.caller.GenerateJSON(ctx, full)
		if err != nil {
			if retryable(err) && attempt < maxAttempts {
				e.log.WithError(err).WithField("attempt", attempt).Warn("extraction call failed; retrying")
				e.sleep(backoffDelay(attempt))
				continue
			}
			return feasibility.RawInputs{}, fmt.Errorf("extraction transport failure: %w", err)
		}

		var out extraction
		if err := json.Unmarshal([]byte(stripCodeFences(raw)), &out); err != nil {
			feedback = "Your previous response was not valid JSON. Respond with only the JSON object."
			continue
		}
		if err := e.validate.Struct(out); err != nil {
			feedback = fmt.Sprintf("Your previous response failed validation: %s. Keep each value short.", err)
			continue
		}
		return out.rawInputs(), nil
	}
	return feasibility.RawInputs{}, fmt.Errorf("extraction failed after %d attempts", maxAttempts)
}

func (x extraction) rawInputs() feasibility.RawInputs {
	clean := func(s string) string {
		s = strings.TrimSpace(s)
		switch strings.ToLower(s) {
		case "null", "none", "n/a", "unknown":
			return ""
		}
		return s
	}
	return feasibility.RawInputs{
		PurchasePrice:    clean(x.PurchasePrice),
		GrossRevenue:     clean(x.GrossRevenue),
		ConstructionCost: clean(x.ConstructionCost),
		LVR:              clean(x.LVR),
		InterestRate:     clean(x.InterestRate),
		TimelineMonths:   clean(x.TimelineMonths),
		SellingCosts:     clean(x.SellingCosts),
		GSTScheme:        clean(x.GSTScheme),
		GSTCostBase:      clean(x.GSTCostBase),
	}
}

func buildPrompt(transcript []reconcile.Turn) string {
	var b strings.Builder
	b.WriteString("Read the conversation and return a JSON object with these string keys: ")
	keys := make([]string, 0, len(reconcile.Fields))
	for _, f := range reconcile.Fields {
		keys = append(keys, string(f))
	}
	b.WriteString(strings.Join(keys, ", "))
	b.WriteString(".\nUse the user's latest answer for each value, copied verbatim (for example \"$2.5m\" or \"18 months\"). Use an empty string when a value was never given.\n\nConversation:\n")
	for _, t := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, strings.TrimSpace(t.Content))
	}
	return b.String()
}

// FillGaps copies values from extra into the empty fields of base.
func FillGaps(base, extra feasibility.RawInputs) feasibility.RawInputs {
	for _, f := range reconcile.Fields {
		if reconcile.Get(base, f) == "" {
			reconcile.Set(&base, f, reconcile.Get(extra, f))
		}
	}
	return base
}
