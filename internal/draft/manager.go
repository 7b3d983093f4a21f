package draft

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/devfeasibility/internal/feasibility"
	"github.com/joelkehle/devfeasibility/internal/reconcile"
)

const (
	DefaultTTL           = 4 * time.Hour
	DefaultSweepInterval = 15 * time.Minute
)

type Config struct {
	TTL    time.Duration
	Clock  func() time.Time
	Logger logrus.FieldLogger
	Tracer trace.Tracer
}

// Manager implements the draft operations on top of a Store.
//
// Patches to the same conversation are not serialised against each other: two
// concurrent patches each read, modify and write the whole draft, and the
// later write wins. Conversations are expected to be driven by one user at a
// time.
type Manager struct {
	store  Store
	rates  feasibility.Rates
	cfg    Config
	log    logrus.FieldLogger
	tracer trace.Tracer
}

func NewManager(store Store, rates feasibility.Rates, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/joelkehle/devfeasibility/internal/draft")
	}
	return &Manager{
		store:  store,
		rates:  rates,
		cfg:    cfg,
		log:    cfg.Logger,
		tracer: cfg.Tracer,
	}
}

// Stats is the health summary. Drafts is nil when the store cannot count.
type Stats struct {
	RatesVersion string         `json:"ratesVersion"`
	Drafts       map[Status]int `json:"drafts,omitempty"`
}

func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	st := Stats{RatesVersion: m.rates.Version}
	counter, ok := m.store.(StatusCounter)
	if !ok {
		return st, nil
	}
	counts, err := counter.CountByStatus(ctx)
	if err != nil {
		return st, storeError("count drafts", err)
	}
	st.Drafts = counts
	return st, nil
}

func (m *Manager) startSpan(ctx context.Context, name, id string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "draft."+name, trace.WithAttributes(attribute.String("conversation.id", id)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (m *Manager) load(ctx context.Context, id string) (*Draft, bool, error) {
	if strings.TrimSpace(id) == "" {
		return nil, false, newError(CodeValidation, "conversationId is required")
	}
	d, ok, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, false, storeError("load draft", err)
	}
	if !ok {
		return newDraft(id, m.cfg.Clock()), true, nil
	}
	return d, false, nil
}

func (m *Manager) save(ctx context.Context, d *Draft) error {
	d.UpdatedAt = m.cfg.Clock()
	if err := m.store.Put(ctx, d); err != nil {
		return storeError("save draft", err)
	}
	return nil
}

// GetDraft returns the draft for id, creating an empty one on first access.
func (m *Manager) GetDraft(ctx context.Context, id string) (_ *Draft, err error) {
	ctx, span := m.startSpan(ctx, "GetDraft", id)
	defer func() { endSpan(span, err) }()

	d, created, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if created {
		if err := m.save(ctx, d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// PatchDraft merges p into the draft, tagging every written field with source.
func (m *Manager) PatchDraft(ctx context.Context, id string, p Patch, source Source) (_ *Draft, err error) {
	ctx, span := m.startSpan(ctx, "PatchDraft", id)
	defer func() { endSpan(span, err) }()

	if !source.Valid() {
		return nil, newError(CodeValidation, "unknown source "+string(source))
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	d, _, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	d = m.apply(d, p, source)
	if err := m.save(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// apply runs one patch against d and returns the resulting draft, which is a
// fresh one when the property lock tripped.
func (m *Manager) apply(d *Draft, p Patch, source Source) *Draft {
	if p.Property != nil {
		incoming := NormalizeAddress(p.Property.Address)
		locked := NormalizeAddress(d.Property.Address)
		if incoming != "" && locked != "" && incoming != locked {
			m.log.WithFields(logrus.Fields{
				"conversation_id":  d.ConversationID,
				"previous_address": d.Property.Address,
				"address":          p.Property.Address,
			}).Warn("property changed; resetting draft")
			d = newDraft(d.ConversationID, m.cfg.Clock())
		}
		mergeProperty(&d.Property, p.Property, source)
	}

	financial := false
	explicit := map[reconcile.Field]bool{}
	if p.Inputs != nil {
		for _, f := range reconcile.Fields {
			if d.Inputs.copyField(f, p.Inputs) {
				explicit[f] = true
				d.SourceMap["inputs."+string(f)] = source
				financial = true
			}
		}
	}
	// An explicit value supersedes any raw string for the same field, old or new.
	for f := range explicit {
		reconcile.Set(&d.RawInputs, f, "")
		delete(d.SourceMap, "rawInputs."+string(f))
	}
	if p.RawInputs != nil {
		for _, f := range reconcile.Fields {
			v := strings.TrimSpace(reconcile.Get(*p.RawInputs, f))
			if v == "" || explicit[f] {
				continue
			}
			reconcile.Set(&d.RawInputs, f, v)
			d.SourceMap["rawInputs."+string(f)] = source
			if d.Inputs.setParsed(f, v) {
				d.SourceMap["inputs."+string(f)] = source
				financial = true
			}
		}
	}
	if p.Assumptions != nil {
		for _, key := range d.Assumptions.merge(p.Assumptions) {
			d.SourceMap["assumptions."+key] = source
			financial = true
		}
	}

	if financial {
		m.recomputeHolding(d)
	}
	d.Status = m.status(d)
	return d
}

func mergeProperty(dst, src *Property, source Source) {
	if dst.Address == "" && strings.TrimSpace(src.Address) != "" {
		dst.Address = strings.TrimSpace(src.Address)
	}
	if src.LotPlan != "" {
		dst.LotPlan = src.LotPlan
	}
	if src.SiteAreaSqm != nil {
		dst.SiteAreaSqm = ptr(*src.SiteAreaSqm)
	}
	if src.Zone != "" {
		dst.Zone = src.Zone
	}
	if src.Density != "" {
		dst.Density = src.Density
	}
	if src.HeightLimit != "" {
		dst.HeightLimit = src.HeightLimit
	}
	if src.Overlays != nil {
		dst.Overlays = append([]string(nil), src.Overlays...)
	}
	dst.Source = source
}

// recomputeHolding derives holding costs from land, construction, timeline
// and assumptions.
func (m *Manager) recomputeHolding(d *Draft) {
	in := d.Inputs
	if in.PurchasePrice == nil && in.ConstructionCost == nil && in.TimelineMonths == nil {
		d.HoldingCosts = nil
		return
	}
	e := feasibility.NewEngine(d.Assumptions.Apply(m.rates))
	var construction float64
	if in.ConstructionCost != nil {
		construction, _, _ = e.ResolveConstruction(*in.ConstructionCost)
	}
	h := e.HoldingCosts(deref(in.PurchasePrice), construction, deref(in.TimelineMonths))
	d.HoldingCosts = &h
}

// status follows the readiness rule until the draft has been calculated;
// after that it stays calculated until a reset.
func (m *Manager) status(d *Draft) Status {
	if d.Status == StatusCalculated {
		return d.Status
	}
	if len(Missing(d, ModeStandard)) > 0 {
		return StatusCollecting
	}
	for _, f := range gatingFields {
		if !d.Inputs.has(f) {
			return StatusCollecting
		}
	}
	return StatusReadyToCalculate
}

// Missing lists the required fields the draft lacks for mode.
func Missing(d *Draft, mode Mode) []reconcile.Field {
	var out []reconcile.Field
	for _, f := range requiredFields {
		if mode == ModeResidual && f == reconcile.FieldPurchasePrice {
			continue
		}
		if !d.Inputs.present(f) {
			out = append(out, f)
		}
	}
	return out
}

// CalculateDraft runs the engine over the draft and stores the result. When
// required inputs are missing it returns a CodeMissingFields error and
// computes nothing.
func (m *Manager) CalculateDraft(ctx context.Context, id string, opts CalculateOptions) (_ *CalculateOutcome, err error) {
	ctx, span := m.startSpan(ctx, "CalculateDraft", id)
	defer func() { endSpan(span, err) }()

	if opts, err = checkMode(opts); err != nil {
		return nil, err
	}
	d, _, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if missing := Missing(d, opts.Mode); len(missing) > 0 {
		m.log.WithFields(logrus.Fields{
			"conversation_id": id,
			"missing":         missing,
		}).Info("calculation blocked on missing inputs")
		return nil, missingFieldsError(missing)
	}

	res, report := m.compute(d, opts)
	span.SetAttributes(
		attribute.String("feasibility.mode", string(opts.Mode)),
		attribute.String("feasibility.viability", string(res.Profitability.Viability)),
	)

	d.Results = &res
	d.Report = report
	d.Status = StatusCalculated
	if err := m.save(ctx, d); err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{
		"conversation_id": id,
		"mode":            opts.Mode,
		"viability":       res.Profitability.Viability,
		"margin_percent":  res.Profitability.MarginPercent,
		"residual":        res.Residual.LandValue,
		"warnings":        len(res.Warnings),
	}).Info("feasibility calculated")
	return &CalculateOutcome{Draft: d, Result: &res, Report: report}, nil
}

func checkMode(opts CalculateOptions) (CalculateOptions, error) {
	if opts.Mode == "" {
		opts.Mode = ModeStandard
	}
	if opts.Mode != ModeStandard && opts.Mode != ModeResidual {
		return opts, newError(CodeValidation, "unknown mode "+string(opts.Mode))
	}
	if opts.TargetMargin < 0 || opts.TargetMargin >= 100 {
		return opts, newError(CodeValidation, "targetMargin must be in [0, 100)")
	}
	return opts, nil
}

func (m *Manager) compute(d *Draft, opts CalculateOptions) (feasibility.Result, string) {
	rates := d.Assumptions.Apply(m.rates)
	engine := feasibility.NewEngine(rates)
	in := d.engineInputs(rates)
	ropts := feasibility.ReportOptions{Address: d.Property.Address, TargetMargin: opts.TargetMargin}
	if opts.Mode == ModeResidual {
		res := engine.CalculateResidual(in, opts.TargetMargin)
		return res, feasibility.FormatResidualReport(res, ropts)
	}
	res := engine.Calculate(in)
	return res, feasibility.FormatReport(res, ropts)
}

// Preview calculates from raw strings without touching the store. Defaults
// and the missing-field check are the same as for a stored draft.
func (m *Manager) Preview(ctx context.Context, raw feasibility.RawInputs, a *Assumptions, opts CalculateOptions) (_ *CalculateOutcome, err error) {
	_, span := m.startSpan(ctx, "Preview", "")
	defer func() { endSpan(span, err) }()

	if opts, err = checkMode(opts); err != nil {
		return nil, err
	}
	if err := (Patch{Assumptions: a}).check(); err != nil {
		return nil, err
	}
	d := m.apply(newDraft("", m.cfg.Clock()), Patch{RawInputs: &raw, Assumptions: a}, SourceChat)
	if missing := Missing(d, opts.Mode); len(missing) > 0 {
		return nil, missingFieldsError(missing)
	}
	res, report := m.compute(d, opts)
	d.Results = &res
	d.Report = report
	d.Status = StatusCalculated
	return &CalculateOutcome{Draft: d, Result: &res, Report: report}, nil
}

// ReconcileDraft recovers inputs from the transcript and merges them under
// structured. See MergeExtracted.
func (m *Manager) ReconcileDraft(ctx context.Context, id string, structured feasibility.RawInputs, transcript []reconcile.Turn) (*ReconcileOutcome, error) {
	return m.MergeExtracted(ctx, id, structured, reconcile.Extract(transcript))
}

// MergeExtracted writes structured values with SourceChat and the fields only
// extracted supplied with SourceExtraction. Disagreements are logged and
// returned; structured values always win.
func (m *Manager) MergeExtracted(ctx context.Context, id string, structured, extracted feasibility.RawInputs) (_ *ReconcileOutcome, err error) {
	ctx, span := m.startSpan(ctx, "MergeExtracted", id)
	defer func() { endSpan(span, err) }()

	d, _, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	// Values the draft already holds from an explicit source count as
	// structured, so the transcript can neither replace them nor go unchecked.
	effective := structured
	for _, f := range reconcile.Fields {
		if reconcile.Get(effective, f) != "" {
			continue
		}
		if v, ok := d.heldValue(f); ok {
			reconcile.Set(&effective, f, v)
		}
	}
	merged := reconcile.Merge(effective, extracted, m.log.WithField("conversation_id", id))

	d = m.apply(d, Patch{RawInputs: &structured}, SourceChat)
	if len(merged.Filled) > 0 {
		var filled feasibility.RawInputs
		for _, f := range merged.Filled {
			reconcile.Set(&filled, f, reconcile.Get(merged.Inputs, f))
		}
		d = m.apply(d, Patch{RawInputs: &filled}, SourceExtraction)
	}
	span.SetAttributes(attribute.Int("reconcile.mismatches", len(merged.Mismatches)))

	if err := m.save(ctx, d); err != nil {
		return nil, err
	}
	return &ReconcileOutcome{Draft: d, Filled: merged.Filled, Mismatches: merged.Mismatches}, nil
}

// ResetDraft replaces the draft with an empty one.
func (m *Manager) ResetDraft(ctx context.Context, id string) (_ *Draft, err error) {
	ctx, span := m.startSpan(ctx, "ResetDraft", id)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(id) == "" {
		return nil, newError(CodeValidation, "conversationId is required")
	}
	d := newDraft(id, m.cfg.Clock())
	if err := m.save(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (m *Manager) DeleteDraft(ctx context.Context, id string) (err error) {
	ctx, span := m.startSpan(ctx, "DeleteDraft", id)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(id) == "" {
		return newError(CodeValidation, "conversationId is required")
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return storeError("delete draft", err)
	}
	return nil
}

// Sweep removes drafts idle for longer than the TTL.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	cutoff := m.cfg.Clock().Add(-m.cfg.TTL)
	n, err := m.store.Sweep(ctx, cutoff)
	if err != nil {
		return 0, storeError("sweep drafts", err)
	}
	if n > 0 {
		m.log.WithField("removed", n).Info("swept idle drafts")
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.log.WithError(err).Warn("draft sweep failed")
			}
		}
	}
}
