// Package httpapi exposes the draft operations over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/joelkehle/devfeasibility/internal/draft"
	"github.com/joelkehle/devfeasibility/internal/extract"
	"github.com/joelkehle/devfeasibility/internal/feasibility"
	"github.com/joelkehle/devfeasibility/internal/reconcile"
	"github.com/joelkehle/devfeasibility/internal/render"
)

const maxBodyBytes = 1 << 20

// Extractor pulls raw inputs out of a transcript with a language model.
type Extractor interface {
	Extract(ctx context.Context, transcript []reconcile.Turn) (feasibility.RawInputs, error)
}

type PDFRenderer interface {
	Render(ctx context.Context, report, title string) ([]byte, error)
}

// Options holds the optional collaborators. A nil Extractor or PDF turns the
// matching endpoint into a 503.
type Options struct {
	Extractor Extractor
	PDF       PDFRenderer
	Logger    logrus.FieldLogger
	NewID     func() string
}

type Server struct {
	drafts    *draft.Manager
	extractor Extractor
	pdf       PDFRenderer
	log       logrus.FieldLogger
	validate  *validator.Validate
	newID     func() string
}

func NewServer(drafts *draft.Manager, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	s := &Server{
		drafts:    drafts,
		extractor: opts.Extractor,
		pdf:       opts.PDF,
		log:       opts.Logger,
		validate:  validator.New(),
		newID:     opts.NewID,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logRequests(s.log))
	r.Use(recoverPanics(s.log))

	r.Get("/v1/health", s.handleHealth)
	r.Post("/v1/calculate", s.handleCalculate)
	r.Route("/v1/drafts", func(r chi.Router) {
		r.Post("/", s.handleCreateDraft)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDraft)
			r.Patch("/", s.handlePatchDraft)
			r.Delete("/", s.handleDeleteDraft)
			r.Post("/calculate", s.handleCalculateDraft)
			r.Post("/reset", s.handleResetDraft)
			r.Post("/reconcile", s.handleReconcile)
			r.Post("/extract", s.handleExtract)
			r.Get("/report.html", s.handleReportHTML)
			r.Get("/report.pdf", s.handleReportPDF)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func writeDraftError(w http.ResponseWriter, err error) {
	var de *draft.Error
	if errors.As(err, &de) {
		body := map[string]any{
			"code":    de.Code,
			"message": de.Message,
		}
		if len(de.Missing) > 0 {
			body["missing"] = de.Missing
		}
		writeJSON(w, de.Status, map[string]any{"ok": false, "error": body})
		return
	}
	writeError(w, http.StatusInternalServerError, draft.CodeInternal, err.Error())
}

// decodeBody reads a JSON body into dst and validates it. An empty body
// decodes as {}.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, draft.CodeValidation, "read body: "+err.Error())
		return false
	}
	if len(strings.TrimSpace(string(blob))) == 0 {
		blob = []byte("{}")
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		writeError(w, http.StatusBadRequest, draft.CodeValidation, "invalid json: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, draft.CodeValidation, err.Error())
		return false
	}
	return true
}

type patchRequest struct {
	Source draft.Source `json:"source" validate:"required,oneof=chat panel property_tool default conversation_extraction_fallback"`
	draft.Patch
}

type calculateRequest struct {
	Mode         draft.Mode `json:"mode" validate:"omitempty,oneof=standard residual"`
	TargetMargin float64    `json:"targetMargin" validate:"gte=0,lt=100"`
}

func (c calculateRequest) options() draft.CalculateOptions {
	return draft.CalculateOptions{Mode: c.Mode, TargetMargin: c.TargetMargin}
}

type previewRequest struct {
	calculateRequest
	RawInputs   feasibility.RawInputs `json:"rawInputs"`
	Assumptions *draft.Assumptions    `json:"assumptions,omitempty"`
}

type turnBody struct {
	Role    reconcile.Role `json:"role" validate:"required,oneof=assistant user"`
	Content string         `json:"content"`
}

type transcriptRequest struct {
	Structured feasibility.RawInputs `json:"structured"`
	Transcript []turnBody            `json:"transcript" validate:"required,min=1,dive"`
}

func (t transcriptRequest) turns() []reconcile.Turn {
	out := make([]reconcile.Turn, 0, len(t.Transcript))
	for _, tb := range t.Transcript {
		out = append(out, reconcile.Turn{Role: tb.Role, Content: tb.Content})
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.drafts.Stats(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("health check: draft store")
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"extractor":    s.extractor != nil,
		"pdf":          s.pdf != nil,
		"ratesVersion": stats.RatesVersion,
		"drafts":       stats.Drafts,
	})
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	out, err := s.drafts.Preview(r.Context(), req.RawInputs, req.Assumptions, req.options())
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": out.Result, "report": out.Report})
}

func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.drafts.GetDraft(r.Context(), s.newID())
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "draft": d})
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.drafts.GetDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "draft": d})
}

func (s *Server) handlePatchDraft(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	d, err := s.drafts.PatchDraft(r.Context(), chi.URLParam(r, "id"), req.Patch, req.Source)
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "draft": d})
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.drafts.DeleteDraft(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleResetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.drafts.ResetDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "draft": d})
}

// handleCalculateDraft answers a missing-fields failure with 422 and the
// plain-language prompt as the error message.
func (s *Server) handleCalculateDraft(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	out, err := s.drafts.CalculateDraft(r.Context(), chi.URLParam(r, "id"), req.options())
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"draft":  out.Draft,
		"result": out.Result,
		"report": out.Report,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	out, err := s.drafts.ReconcileDraft(r.Context(), chi.URLParam(r, "id"), req.Structured, req.turns())
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"draft":      out.Draft,
		"filled":     out.Filled,
		"mismatches": out.Mismatches,
	})
}

// handleExtract runs the pattern reconciler and lets the model fill what it
// missed. A model failure degrades to the pattern result.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, draft.CodeUnavailable, "extractor not configured")
		return
	}
	var req transcriptRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	turns := req.turns()
	extracted := reconcile.Extract(turns)
	modelUsed := true
	if fromModel, err := s.extractor.Extract(r.Context(), turns); err != nil {
		s.log.WithError(err).WithField("conversation_id", id).Warn("model extraction failed; using pattern extraction only")
		modelUsed = false
	} else {
		extracted = extract.FillGaps(extracted, fromModel)
	}
	out, err := s.drafts.MergeExtracted(r.Context(), id, req.Structured, extracted)
	if err != nil {
		writeDraftError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"draft":      out.Draft,
		"filled":     out.Filled,
		"mismatches": out.Mismatches,
		"modelUsed":  modelUsed,
	})
}

func (s *Server) calculatedReport(w http.ResponseWriter, r *http.Request) (*draft.Draft, bool) {
	d, err := s.drafts.GetDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDraftError(w, err)
		return nil, false
	}
	if d.Report == "" {
		writeError(w, http.StatusNotFound, draft.CodeNotFound, "no report yet; calculate the draft first")
		return nil, false
	}
	return d, true
}

func reportTitle(d *draft.Draft) string {
	if d.Property.Address == "" {
		return ""
	}
	return "Feasibility: " + d.Property.Address
}

func (s *Server) handleReportHTML(w http.ResponseWriter, r *http.Request) {
	d, ok := s.calculatedReport(w, r)
	if !ok {
		return
	}
	doc, err := render.HTML(d.Report, reportTitle(d))
	if err != nil {
		writeError(w, http.StatusInternalServerError, draft.CodeInternal, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

func (s *Server) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	if s.pdf == nil {
		writeError(w, http.StatusServiceUnavailable, draft.CodeUnavailable, "pdf rendering not configured")
		return
	}
	d, ok := s.calculatedReport(w, r)
	if !ok {
		return
	}
	pdf, err := s.pdf.Render(r.Context(), d.Report, reportTitle(d))
	if err != nil {
		s.log.WithError(err).WithField("conversation_id", d.ConversationID).Error("pdf render failed")
		writeError(w, http.StatusBadGateway, draft.CodeUnavailable, "pdf render failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "feasibility-"+d.ConversationID+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
