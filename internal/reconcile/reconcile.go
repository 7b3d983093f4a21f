// Package reconcile recovers raw feasibility inputs from a chat transcript and
// merges them under structured input, which always wins.
package reconcile

import (
	"regexp"
	"strings"

	"github.com/joelkehle/devfeasibility/internal/feasibility"
	"github.com/joelkehle/devfeasibility/internal/valueparse"
)

type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Turn is one transcript message.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// questionRule classifies an assistant question. Rules are tried in order and
// the first whose include matches and whose exclude does not wins.
type questionRule struct {
	field   Field
	include *regexp.Regexp
	exclude *regexp.Regexp
}

var questionRules = []questionRule{
	{
		field:   FieldGSTCostBase,
		include: regexp.MustCompile(`cost base|margin scheme cost|gst base`),
	},
	{
		field:   FieldGSTScheme,
		include: regexp.MustCompile(`margin scheme|fully taxed|gst (?:scheme|treatment)|how will gst`),
		exclude: regexp.MustCompile(`cost base`),
	},
	{
		field:   FieldSellingCosts,
		include: regexp.MustCompile(`selling cost|sales cost|agent|commission|marketing`),
	},
	{
		field:   FieldInterestRate,
		include: regexp.MustCompile(`interest`),
	},
	{
		field:   FieldLVR,
		include: regexp.MustCompile(`\blvr\b|loan.to.value|gearing|\bdebt\b|borrow|fully funded|\bequity\b`),
	},
	{
		field:   FieldTimelineMonths,
		include: regexp.MustCompile(`timeline|how long|how many months|duration|programme|program length`),
	},
	{
		field:   FieldConstructionCost,
		include: regexp.MustCompile(`construction|build cost|building cost|cost to build`),
	},
	{
		field:   FieldGrossRevenue,
		include: regexp.MustCompile(`\bgrv\b|gross realisation|gross realization|gross revenue|sales revenue|end value|sell for`),
	},
	{
		field:   FieldPurchasePrice,
		include: regexp.MustCompile(`purchase price|land (?:price|value|cost)|acquisition cost|pay for the (?:land|site)|site cost`),
		exclude: regexp.MustCompile(`cost base`),
	},
}

const inlineAmount = `(\$\s*\d[\d,]*(?:\.\d+)?\s*(?:billion|bn|million|mill|mil|m|thousand|k)?\b|\d[\d,]*(?:\.\d+)?\s*(?:billion|bn|million|mill|mil|m|thousand|k)\b)`

// inlineRule recovers one value from a free-form multi-value message.
type inlineRule struct {
	field   Field
	pattern *regexp.Regexp
}

var inlineRules = []inlineRule{
	{
		field:   FieldPurchasePrice,
		pattern: regexp.MustCompile(`(?:purchase price|land (?:price|value|cost)|paid|paying|buying|bought|acquir\w*)[^$\d]{0,40}?` + inlineAmount),
	},
	{
		field:   FieldGrossRevenue,
		pattern: regexp.MustCompile(`(?:\bgrv\b|gross realis\w+(?: value)?|gross revenue|revenue|sell(?:s|ing)? (?:it |them |out )?for|end value)[^$\d]{0,40}?` + inlineAmount),
	},
	{
		field:   FieldConstructionCost,
		pattern: regexp.MustCompile(`(?:construction|build(?:ing)?(?: cost)?|construct)[^$\d]{0,40}?` + inlineAmount),
	},
}

var customAnswerRe = regexp.MustCompile(`^\s*(?:custom|other)(?:\s+(?:amount|value|rate|option))?\s*[.!]?\s*$`)

// ClassifyQuestion returns the field an assistant question asks for, or "".
func ClassifyQuestion(question string) Field {
	q := strings.ToLower(question)
	for _, r := range questionRules {
		if !r.include.MatchString(q) {
			continue
		}
		if r.exclude != nil && r.exclude.MatchString(q) {
			continue
		}
		return r.field
	}
	return ""
}

// Extract runs both passes over turns. Question/answer matches are applied in
// transcript order so a re-asked question overwrites the earlier answer.
// Inline matches only fill fields the question/answer pass left empty.
func Extract(turns []Turn) feasibility.RawInputs {
	var out feasibility.RawInputs
	var pending Field
	for i := 0; i+1 < len(turns); i++ {
		if turns[i].Role != RoleAssistant || turns[i+1].Role != RoleUser {
			continue
		}
		field := ClassifyQuestion(turns[i].Content)
		if field == "" {
			field = pending
		}
		pending = ""
		if field == "" {
			continue
		}
		answer := strings.TrimSpace(turns[i+1].Content)
		if customAnswerRe.MatchString(answer) {
			pending = field
			continue
		}
		if answer != "" {
			Set(&out, field, answer)
		}
	}

	for _, t := range turns {
		if t.Role != RoleUser || len(valueparse.MoneyTokens(t.Content)) < 2 {
			continue
		}
		for f, v := range ScanInline(t.Content) {
			if Get(out, f) == "" {
				Set(&out, f, v)
			}
		}
	}
	return out
}

// ScanInline applies the inline patterns to one message.
func ScanInline(message string) map[Field]string {
	s := strings.ToLower(message)
	found := map[Field]string{}
	for _, r := range inlineRules {
		if m := r.pattern.FindStringSubmatch(s); m != nil {
			found[r.field] = strings.TrimSpace(m[1])
		}
	}
	return found
}
