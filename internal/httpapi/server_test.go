package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/devfeasibility/internal/draft"
	"github.com/joelkehle/devfeasibility/internal/feasibility"
	"github.com/joelkehle/devfeasibility/internal/reconcile"
)

type fakeExtractor struct {
	out feasibility.RawInputs
	err error
}

func (f *fakeExtractor) Extract(context.Context, []reconcile.Turn) (feasibility.RawInputs, error) {
	return f.out, f.err
}

type fakePDF struct {
	title  string
	report string
}

func (f *fakePDF) Render(_ context.Context, report, title string) ([]byte, error) {
	f.report = report
	f.title = title
	return []byte("%PDF-1.4 fake"), nil
}

type response struct {
	OK         bool                 `json:"ok"`
	Draft      *draft.Draft         `json:"draft"`
	Result     *feasibility.Result  `json:"result"`
	Report     string               `json:"report"`
	Filled     []reconcile.Field    `json:"filled"`
	Mismatches []reconcile.Mismatch `json:"mismatches"`
	ModelUsed  bool                 `json:"modelUsed"`
	// health
	RatesVersion string               `json:"ratesVersion"`
	Drafts       map[draft.Status]int `json:"drafts"`
	Error        *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Missing []reconcile.Field `json:"missing"`
	} `json:"error"`
}

type testServer struct {
	h    http.Handler
	hook *logtest.Hook
	pdf  *fakePDF
}

func newServerForTest(t *testing.T, ex Extractor) *testServer {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mgr := draft.NewManager(draft.NewMemoryStore(), feasibility.DefaultRates(), draft.Config{
		Clock:  func() time.Time { return now },
		Logger: logger,
	})
	pdf := &fakePDF{}
	opts := Options{PDF: pdf, Logger: logger, NewID: func() string { return "conv-new" }}
	if ex != nil {
		opts.Extractor = ex
	}
	return &testServer{h: NewServer(mgr, opts), hook: hook, pdf: pdf}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		blob, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(blob)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.h.ServeHTTP(rr, req)

	var out response
	if rr.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr, out
}

func referenceRaw() feasibility.RawInputs {
	return feasibility.RawInputs{
		PurchasePrice:    "$2,000,000",
		GrossRevenue:     "$10,000,000",
		ConstructionCost: "$3,500,000",
		LVR:              "70%",
		InterestRate:     "7%",
		TimelineMonths:   "18",
		SellingCosts:     "3%",
		GSTScheme:        "margin",
	}
}

func TestHealth(t *testing.T) {
	s := newServerForTest(t, nil)
	rr, out := s.do(t, http.MethodGet, "/v1/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, out.OK)
	assert.Equal(t, feasibility.DefaultRates().Version, out.RatesVersion)
	assert.Empty(t, out.Drafts)

	rr, _ = s.do(t, http.MethodPatch, "/v1/drafts/conv-1", map[string]any{"source": "chat", "rawInputs": referenceRaw()})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr, _ = s.do(t, http.MethodPatch, "/v1/drafts/conv-2", map[string]any{"source": "chat", "rawInputs": map[string]string{"grossRevenue": "$10m"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	_, out = s.do(t, http.MethodGet, "/v1/health", nil)
	assert.Equal(t, map[draft.Status]int{draft.StatusReadyToCalculate: 1, draft.StatusCollecting: 1}, out.Drafts)
}

func TestPatchRejectsNegativeSellingCosts(t *testing.T) {
	s := newServerForTest(t, nil)
	rr, out := s.do(t, http.MethodPatch, "/v1/drafts/conv-1", map[string]any{
		"source": "panel",
		"inputs": map[string]any{"sellingCosts": -3},
	})
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	require.NotNil(t, out.Error)
	assert.Equal(t, draft.CodeValidation, out.Error.Code)

	rr, _ = s.do(t, http.MethodPatch, "/v1/drafts/conv-1", map[string]any{
		"source":      "panel",
		"assumptions": map[string]any{"contingencyPercent": -50},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatelessCalculate(t *testing.T) {
	s := newServerForTest(t, nil)
	rr, out := s.do(t, http.MethodPost, "/v1/calculate", map[string]any{"rawInputs": referenceRaw()})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NotNil(t, out.Result)
	assert.InDelta(t, 2_848_576.7045, out.Result.Profitability.GrossProfit, 0.01)
	assert.Equal(t, feasibility.ViabilityHighlyViable, out.Result.Profitability.Viability)
	assert.Contains(t, out.Report, feasibility.CallToActionMarker)

	rr, out = s.do(t, http.MethodPost, "/v1/calculate", map[string]any{"mode": "sideways"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, draft.CodeValidation, out.Error.Code)
}

func TestCreateAndGetDraft(t *testing.T) {
	s := newServerForTest(t, nil)
	rr, out := s.do(t, http.MethodPost, "/v1/drafts", nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.NotNil(t, out.Draft)
	assert.Equal(t, "conv-new", out.Draft.ConversationID)
	assert.Equal(t, draft.StatusCollecting, out.Draft.Status)

	rr, out = s.do(t, http.MethodGet, "/v1/drafts/conv-new", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "conv-new", out.Draft.ConversationID)
}

func TestPatchAndCalculateDraft(t *testing.T) {
	s := newServerForTest(t, nil)
	raw := referenceRaw()
	rr, out := s.do(t, http.MethodPatch, "/v1/drafts/conv-1", map[string]any{
		"source":    "chat",
		"property":  map[string]any{"address": "12 Example St, Southport"},
		"rawInputs": raw,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, draft.StatusReadyToCalculate, out.Draft.Status)
	assert.Equal(t, draft.SourceChat, out.Draft.SourceMap["rawInputs.purchasePrice"])

	rr, out = s.do(t, http.MethodPost, "/v1/drafts/conv-1/calculate", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, draft.StatusCalculated, out.Draft.Status)
	assert.Contains(t, out.Report, "12 Example St, Southport")

	rr, out = s.do(t, http.MethodPost, "/v1/drafts/conv-1/calculate", map[string]any{"mode": "residual", "targetMargin": 20})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.InDelta(t, 20, out.Result.Residual.TargetMarginPercent, 1e-9)
}

func TestPatchValidation(t *testing.T) {
	s := newServerForTest(t, nil)
	rr, out := s.do(t, http.MethodPatch, "/v1/drafts/conv-1", map[string]any{"rawInputs": referenceRaw()})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, draft.CodeValidation, out.Error.Code)

	rr, _ = s.do(t, http.MethodPatch, "/v1/drafts/conv-1", map[string]any{"source": "carrier_pigeon"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPatch, "/v1/drafts/conv-1", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalculateMissingFieldsReturnsPrompt(t *testing.T) {
	s := newServerForTest(t, nil)
	_, _ = s.do(t, http.MethodPatch, "/v1/drafts/conv-1", map[string]any{
		"source":    "panel",
		"rawInputs": map[string]string{"grossRevenue": "$10m"},
	})
	rr, out := s.do(t, http.MethodPost, "/v1/drafts/conv-1/calculate", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.NotNil(t, out.Error)
	assert.Equal(t, draft.CodeMissingFields, out.Error.Code)
	assert.Equal(t, []reconcile.Field{
		reconcile.FieldPurchasePrice,
		reconcile.FieldConstructionCost,
		reconcile.FieldTimelineMonths,
	}, out.Error.Missing)
	assert.Contains(t, out.Error.Message, "land purchase price")
}

func TestResetAndDeleteDraft(t *testing.T) {
	s := newServerForTest(t, nil)
	raw := referenceRaw()
	_, _ = s.do(t, http.MethodPatch, "/v1/drafts/conv-1", map[string]any{"source": "chat", "rawInputs": raw})

	rr, out := s.do(t, http.MethodPost, "/v1/drafts/conv-1/reset", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, out.Draft.Inputs.PurchasePrice)

	rr, _ = s.do(t, http.MethodDelete, "/v1/drafts/conv-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

var transcript = []map[string]string{
	{"role": "assistant", "content": "What's the land purchase price?"},
	{"role": "user", "content": "$2m"},
	{"role": "assistant", "content": "What interest rate will you borrow at?"},
	{"role": "user", "content": "9%"},
}

func TestReconcileLogsMismatchAndKeepsStructured(t *testing.T) {
	s := newServerForTest(t, nil)
	rr, out := s.do(t, http.MethodPost, "/v1/drafts/conv-1/reconcile", map[string]any{
		"structured": map[string]string{"interestRate": "7%"},
		"transcript": transcript,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "7%", out.Draft.RawInputs.InterestRate)
	assert.Equal(t, "$2m", out.Draft.RawInputs.PurchasePrice)
	assert.Equal(t, draft.SourceExtraction, out.Draft.SourceMap["rawInputs.purchasePrice"])
	require.Len(t, out.Mismatches, 1)
	assert.Equal(t, reconcile.FieldInterestRate, out.Mismatches[0].Field)

	warned := false
	for _, e := range s.hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)

	rr, _ = s.do(t, http.MethodPost, "/v1/drafts/conv-1/reconcile", map[string]any{"transcript": []any{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExtractUsesModelForGaps(t *testing.T) {
	s := newServerForTest(t, &fakeExtractor{out: feasibility.RawInputs{PurchasePrice: "$3m", GrossRevenue: "$10m"}})
	rr, out := s.do(t, http.MethodPost, "/v1/drafts/conv-1/extract", map[string]any{"transcript": transcript})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, out.ModelUsed)
	assert.Equal(t, "$2m", out.Draft.RawInputs.PurchasePrice, "pattern result wins over the model")
	assert.Equal(t, "$10m", out.Draft.RawInputs.GrossRevenue)
}

func TestExtractDegradesWithoutModel(t *testing.T) {
	s := newServerForTest(t, &fakeExtractor{err: errors.New("status code: 529 overloaded")})
	rr, out := s.do(t, http.MethodPost, "/v1/drafts/conv-1/extract", map[string]any{"transcript": transcript})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, out.ModelUsed)
	assert.Equal(t, "9%", out.Draft.RawInputs.InterestRate)

	s = newServerForTest(t, nil)
	rr, _ = s.do(t, http.MethodPost, "/v1/drafts/conv-1/extract", map[string]any{"transcript": transcript})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestReportEndpoints(t *testing.T) {
	s := newServerForTest(t, nil)
	rr, out := s.do(t, http.MethodGet, "/v1/drafts/conv-1/report.html", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, draft.CodeNotFound, out.Error.Code)

	_, _ = s.do(t, http.MethodPatch, "/v1/drafts/conv-1", map[string]any{
		"source":    "chat",
		"property":  map[string]any{"address": "12 Example St"},
		"rawInputs": referenceRaw(),
	})
	_, _ = s.do(t, http.MethodPost, "/v1/drafts/conv-1/calculate", nil)

	rr, _ = s.do(t, http.MethodGet, "/v1/drafts/conv-1/report.html", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<title>Feasibility: 12 Example St</title>")
	assert.Contains(t, rr.Body.String(), `data-actions="true"`)

	rr, _ = s.do(t, http.MethodGet, "/v1/drafts/conv-1/report.pdf", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Equal(t, "Feasibility: 12 Example St", s.pdf.title)
	assert.Contains(t, s.pdf.report, feasibility.CallToActionMarker)
}

func TestRecoverPanics(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	h := recoverPanics(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
