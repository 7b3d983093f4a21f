package reconcile

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/devfeasibility/internal/feasibility"
)

// MismatchThreshold is the relative difference above which a structured and
// an extracted value are reported as conflicting.
const MismatchThreshold = 0.15

// Mismatch records a field where the transcript disagrees with structured input.
type Mismatch struct {
	Field        Field   `json:"field"`
	Structured   string  `json:"structured"`
	Extracted    string  `json:"extracted"`
	RelativeDiff float64 `json:"relativeDiff"`
}

// MergeResult is the outcome of combining structured and extracted inputs.
type MergeResult struct {
	Inputs feasibility.RawInputs `json:"inputs"`
	// Filled lists the fields that came from the transcript.
	Filled     []Field    `json:"filled,omitempty"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// Merge fills the gaps in structured from extracted. Structured values are
// never replaced. Conflicts are logged at warn level and returned; they do not
// change the merged value.
func Merge(structured, extracted feasibility.RawInputs, log logrus.FieldLogger) MergeResult {
	if log == nil {
		log = logrus.StandardLogger()
	}
	res := MergeResult{Inputs: structured}
	for _, f := range Fields {
		s, x := Get(structured, f), Get(extracted, f)
		switch {
		case x == "":
		case s == "":
			Set(&res.Inputs, f, x)
			res.Filled = append(res.Filled, f)
		default:
			if m, ok := compare(f, s, x); ok {
				res.Mismatches = append(res.Mismatches, m)
				log.WithFields(logrus.Fields{
					"field":         string(f),
					"structured":    s,
					"extracted":     x,
					"relative_diff": m.RelativeDiff,
				}).Warn("structured input disagrees with conversation; keeping structured value")
			}
		}
	}
	return res
}

func compare(f Field, structured, extracted string) (Mismatch, bool) {
	d := relativeDiff(numeric(f, structured), numeric(f, extracted))
	if d <= MismatchThreshold {
		return Mismatch{}, false
	}
	return Mismatch{Field: f, Structured: structured, Extracted: extracted, RelativeDiff: d}, true
}

// relativeDiff is |a-b| over the larger magnitude; two zeros do not differ.
func relativeDiff(a, b float64) float64 {
	den := math.Max(math.Abs(a), math.Abs(b))
	if den == 0 {
		return 0
	}
	return math.Abs(a-b) / den
}
