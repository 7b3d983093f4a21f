// Package render turns a feasibility report into HTML and PDF.
package render

import (
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/joelkehle/devfeasibility/internal/feasibility"
)

//go:embed style.css
var styleCSS string

var (
	warningItemRe = regexp.MustCompile(`<li>\[!\]\s*`)
	viabilityRe   = regexp.MustCompile(`(<li>Viability: )<strong>([^<]*)</strong>`)
)

// HTML renders report as a standalone HTML document. The call-to-action
// marker becomes an empty actions container the front end fills in.
func HTML(report, title string) (string, error) {
	body := strings.Replace(report, feasibility.CallToActionMarker, "", 1)

	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(body), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	contentHTML := applyLayoutHooks(content.String())
	if strings.Contains(report, feasibility.CallToActionMarker) {
		contentHTML += `<div class="actions" data-actions="true"></div>`
	}

	if title == "" {
		title = "Development Feasibility Report"
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + html.EscapeString(title) + "</title>" +
		"<style>" + styleCSS + "</style></head><body><article class='report'>" +
		contentHTML +
		"</article></body></html>", nil
}

func applyLayoutHooks(contentHTML string) string {
	out := warningItemRe.ReplaceAllString(contentHTML, `<li class="warning">`)
	return viabilityRe.ReplaceAllString(out, `$1<strong class="viability">$2</strong>`)
}

// PrintOptions sets the page geometry of a printed report, in inches.
type PrintOptions struct {
	PaperWidth  float64
	PaperHeight float64
	// Margin applies to the top and sides; the bottom is widened for the footer.
	Margin float64
	Footer string
}

// DefaultPrintOptions prints A4 portrait with the indicative-only footer.
var DefaultPrintOptions = PrintOptions{
	PaperWidth:  8.27,
	PaperHeight: 11.69,
	Margin:      0.5,
	Footer:      "Indicative only.",
}

func (o PrintOptions) params() *page.PrintToPDFParams {
	footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
		html.EscapeString(o.Footer) +
		` Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithDisplayHeaderFooter(true).
		WithHeaderTemplate(`<div></div>`).
		WithFooterTemplate(footer).
		WithPaperWidth(o.PaperWidth).
		WithPaperHeight(o.PaperHeight).
		WithMarginTop(o.Margin).
		WithMarginLeft(o.Margin).
		WithMarginRight(o.Margin).
		WithMarginBottom(o.Margin + 0.25)
}

// PDFRenderer prints reports through a headless Chromium.
type PDFRenderer struct {
	chromePath string
	timeout    time.Duration
	printOpts  PrintOptions
}

// NewPDFRenderer uses chromePath, or the first Chromium found on the usual
// paths when it is empty.
func NewPDFRenderer(chromePath string, opts PrintOptions) *PDFRenderer {
	if chromePath == "" {
		chromePath = detectChromePath()
	}
	return &PDFRenderer{chromePath: chromePath, timeout: 30 * time.Second, printOpts: opts}
}

func (r *PDFRenderer) Render(ctx context.Context, report, title string) ([]byte, error) {
	doc, err := HTML(report, title)
	if err != nil {
		return nil, err
	}
	pdf, err := r.printDocument(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

func (r *PDFRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	return opts
}

func (r *PDFRenderer) printDocument(ctx context.Context, doc string) (pdf []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancelAlloc()
	ctx, cancelTab := chromedp.NewContext(ctx)
	defer cancelTab()

	err = chromedp.Run(ctx,
		chromedp.Navigate("data:text/html;base64,"+base64.StdEncoding.EncodeToString([]byte(doc))),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) (err error) {
			pdf, _, err = r.printOpts.params().Do(ctx)
			return err
		}),
	)
	return pdf, err
}

func detectChromePath() string {
	for _, p := range []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
