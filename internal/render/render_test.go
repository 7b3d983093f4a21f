package render

import (
	"strings"
	"testing"

	"github.com/chromedp/chromedp"

	"github.com/joelkehle/devfeasibility/internal/feasibility"
)

func sampleReport(t *testing.T) string {
	t.Helper()
	in := feasibility.ParseInputs(feasibility.RawInputs{
		PurchasePrice:    "$2m",
		GrossRevenue:     "$10m",
		ConstructionCost: "$3.5m",
		LVR:              "70%",
		InterestRate:     "24%",
		TimelineMonths:   "18",
		SellingCosts:     "3%",
		GSTScheme:        "margin",
	})
	return feasibility.FormatReport(feasibility.Calculate(in), feasibility.ReportOptions{Address: "12 <Example> St"})
}

func TestHTMLRendersSections(t *testing.T) {
	out, err := HTML(sampleReport(t), "")
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	for _, want := range []string{
		"<title>Development Feasibility Report</title>",
		"<h2>Inputs</h2>",
		"<h2>Residual Land Value</h2>",
		"<h2>Commentary</h2>",
		`<div class="actions" data-actions="true"></div>`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output", want)
		}
	}
	if strings.Contains(out, feasibility.CallToActionMarker) {
		t.Fatal("marker should not leak into html")
	}
	if strings.Contains(out, "<Example>") {
		t.Fatal("raw markup from the address must not pass through")
	}
}

func TestApplyLayoutHooksMarksWarningsAndViability(t *testing.T) {
	in := "<ul>\n<li>[!] Interest looks high.</li>\n<li>Viability: <strong>Marginal</strong></li>\n</ul>"
	out := applyLayoutHooks(in)
	if !strings.Contains(out, `<li class="warning">Interest looks high.</li>`) {
		t.Fatalf("expected warning class, got: %s", out)
	}
	if !strings.Contains(out, `<li>Viability: <strong class="viability">Marginal</strong></li>`) {
		t.Fatalf("expected viability class, got: %s", out)
	}
}

func TestApplyLayoutHooksNoopWithoutMarkers(t *testing.T) {
	in := "<h2>Costs</h2><ul><li>Stamp duty: $95,525</li></ul>"
	if out := applyLayoutHooks(in); out != in {
		t.Fatalf("expected no change, got: %s", out)
	}
}

func TestHTMLEscapesTitle(t *testing.T) {
	out, err := HTML("# Report\n", "A & B")
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	if !strings.Contains(out, "<title>A &amp; B</title>") {
		t.Fatalf("expected escaped title, got: %s", out)
	}
	if strings.Contains(out, "data-actions") {
		t.Fatal("no actions container without the marker")
	}
}

func TestPrintOptionsParams(t *testing.T) {
	p := PrintOptions{PaperWidth: 8.27, PaperHeight: 11.69, Margin: 0.5, Footer: "Draft <v2>"}.params()
	if p.PaperWidth != 8.27 || p.PaperHeight != 11.69 {
		t.Fatalf("unexpected paper size %vx%v", p.PaperWidth, p.PaperHeight)
	}
	if p.MarginTop != 0.5 || p.MarginLeft != 0.5 || p.MarginBottom != 0.75 {
		t.Fatalf("unexpected margins top=%v left=%v bottom=%v", p.MarginTop, p.MarginLeft, p.MarginBottom)
	}
	if !p.DisplayHeaderFooter || !p.PrintBackground {
		t.Fatal("footer and background should print")
	}
	if !strings.Contains(p.FooterTemplate, "Draft &lt;v2&gt;") || !strings.Contains(p.FooterTemplate, `class="pageNumber"`) {
		t.Fatalf("unexpected footer: %s", p.FooterTemplate)
	}
}

func TestNewPDFRendererKeepsExplicitPath(t *testing.T) {
	r := NewPDFRenderer("/opt/chrome/chrome", DefaultPrintOptions)
	if r.chromePath != "/opt/chrome/chrome" {
		t.Fatalf("chrome path = %q", r.chromePath)
	}
	if r.printOpts != DefaultPrintOptions {
		t.Fatal("print options not kept")
	}
	if len(r.allocatorOptions()) != len(chromedp.DefaultExecAllocatorOptions)+4 {
		t.Fatal("expected the exec path after the default allocator options")
	}
}
