// Package valueparse turns loosely written money, percentage, duration and
// choice values into canonical numbers. Every parser is total: unparseable
// text yields a neutral default instead of an error.
package valueparse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

type GSTScheme string

const (
	GSTMargin     GSTScheme = "margin"
	GSTFullyTaxed GSTScheme = "fully_taxed"
)

// ConstructionBreakdown is the parsed form of a construction cost answer.
// Total includes contingency only when ContingencyPercent > 0.
type ConstructionBreakdown struct {
	Total              float64  `json:"total" validate:"gte=0"`
	ContingencyPercent float64  `json:"contingencyPercent" validate:"gte=0,lte=100"`
	BuildCost          *float64 `json:"buildCost,omitempty" validate:"omitempty,gte=0"`
	ProfFees           *float64 `json:"profFees,omitempty" validate:"omitempty,gte=0"`
	StatFees           *float64 `json:"statFees,omitempty" validate:"omitempty,gte=0"`
}

const amountPattern = `\$?\s*\d[\d,]*(?:\.\d+)?\s*(?:billion|bn|b|million|mill|mil|m|thousand|k)?\b`

var (
	suffixRe     = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(billion|bn|b|million|mill|mil|m|thousand|k)\b`)
	numberRe     = regexp.MustCompile(`\d+(?:\.\d+)?`)
	percentRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:%|percent\b|pc\b)`)
	yearRe       = regexp.MustCompile(`(?:years?|yrs?)\b`)
	noDebtRe     = regexp.MustCompile(`\b(?:no debt|equity|cash)\b`)
	fullDebtRe   = regexp.MustCompile(`\b(?:100\s*%\s*debt|100 percent debt|full debt)\b`)
	fullyFundRe  = regexp.MustCompile(`\b(?:fully funded|full fund(?:ing|ed)?)\b`)
	contingentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:%|percent)\s*contingenc(?:y|ies)|contingenc(?:y|ies)\s*(?:of|at|:|=)?\s*(\d+(?:\.\d+)?)\s*(?:%|percent)?`)
	buildRe      = regexp.MustCompile(`\b(?:build|building|construction)\w*[^\d$]*?(` + amountPattern + `)`)
	profRe       = regexp.MustCompile(`\bprof(?:essional)?\w*[^\d$]*?(` + amountPattern + `)`)
	statRe       = regexp.MustCompile(`\b(?:council|statutory|stat)\w*[^\d$]*?(` + amountPattern + `)`)
	moneyTokenRe = regexp.MustCompile(`\$\s*\d[\d,]*(?:\.\d+)?\s*(?:billion|bn|b|million|mill|mil|m|thousand|k)?\b|\b\d[\d,]*(?:\.\d+)?\s*(?:billion|bn|million|mill|mil|m|thousand|k)\b`)
)

var multipliers = map[string]float64{
	"billion":  1e9,
	"bn":       1e9,
	"b":        1e9,
	"million":  1e6,
	"mill":     1e6,
	"mil":      1e6,
	"m":        1e6,
	"thousand": 1e3,
	"k":        1e3,
}

// Money parses "$10M", "10 million", "$10,000,000" and similar into dollars.
func Money(text string) float64 {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	if m := suffixRe.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			v *= multipliers[m[2]]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0
			}
			return v
		}
	}
	var digits strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			digits.WriteRune(r)
		}
	}
	v, err := strconv.ParseFloat(digits.String(), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Percentage parses "7%", "7 percent" or "7" into 7. Funding aliases such as
// "fully funded" or "cash" mean no debt and yield 0.
func Percentage(text string) float64 {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0
	}
	if fullyFundRe.MatchString(s) || noDebtRe.MatchString(s) {
		return 0
	}
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, "percent", "")
	return firstNumber(s)
}

// Duration parses a timeline into whole months. Years are converted first so
// "1.5 years" becomes 18.
func Duration(text string) int {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0
	}
	if yearRe.MatchString(s) {
		return int(math.Round(firstNumber(s) * 12))
	}
	for _, unit := range []string{"months", "month", "mths", "mth", "mos", "mo"} {
		s = strings.ReplaceAll(s, unit, "")
	}
	return int(math.Round(firstNumber(s)))
}

// LoanRatio parses a loan-to-value answer into [0,100]. Order matters: an
// explicit number wins over the "fully funded" alias.
func LoanRatio(text string) float64 {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0
	}
	switch {
	case noDebtRe.MatchString(s) && !fullDebtRe.MatchString(s):
		return 0
	case fullDebtRe.MatchString(s):
		return 100
	}
	if m := percentRe.FindStringSubmatch(s); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		return clamp(v, 0, 100)
	}
	if numberRe.MatchString(s) {
		return clamp(firstNumber(s), 0, 100)
	}
	if fullyFundRe.MatchString(s) {
		return 0
	}
	return clamp(Percentage(s), 0, 100)
}

// ConstructionCost parses a construction budget, either as a single total or
// as build / professional / statutory components, with optional contingency.
func ConstructionCost(text string) ConstructionBreakdown {
	s := strings.ToLower(strings.TrimSpace(text))
	var out ConstructionBreakdown
	if s == "" {
		return out
	}
	if m := contingentRe.FindStringSubmatch(s); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		out.ContingencyPercent, _ = strconv.ParseFloat(raw, 64)
		s = strings.Replace(s, m[0], " ", 1)
	}

	build := componentAmount(buildRe, s)
	prof := componentAmount(profRe, s)
	stat := componentAmount(statRe, s)

	var subtotal float64
	if prof != nil || stat != nil {
		out.BuildCost, out.ProfFees, out.StatFees = build, prof, stat
		for _, v := range []*float64{build, prof, stat} {
			if v != nil {
				subtotal += *v
			}
		}
	} else {
		subtotal = Money(s)
	}

	out.Total = subtotal
	if out.ContingencyPercent > 0 {
		out.Total = subtotal * (1 + out.ContingencyPercent/100)
	}
	if math.IsNaN(out.Total) || math.IsInf(out.Total, 0) {
		return ConstructionBreakdown{}
	}
	return out
}

// Scheme picks the GST scheme. Anything that is not clearly fully taxed is the
// margin scheme.
func Scheme(text string) GSTScheme {
	s := strings.ToLower(text)
	if strings.Contains(s, "fully") || strings.Contains(s, "full tax") || strings.Contains(s, "standard") {
		return GSTFullyTaxed
	}
	return GSTMargin
}

// CostBase parses the GST margin-scheme cost base, falling back to the land
// value when the answer refers to it or carries no amount.
func CostBase(text string, fallbackLandValue float64) float64 {
	s := strings.ToLower(text)
	for _, kw := range []string{"same", "acquisition", "purchase"} {
		if strings.Contains(s, kw) {
			return fallbackLandValue
		}
	}
	if v := Money(s); v > 0 {
		return v
	}
	return fallbackLandValue
}

// MoneyTokens returns the money-looking substrings of text: amounts carrying a
// dollar sign or a magnitude suffix.
func MoneyTokens(text string) []string {
	return moneyTokenRe.FindAllString(strings.ToLower(text), -1)
}

func componentAmount(re *regexp.Regexp, s string) *float64 {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v := Money(m[1])
	if v <= 0 {
		return nil
	}
	return &v
}

func firstNumber(s string) float64 {
	m := numberRe.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
