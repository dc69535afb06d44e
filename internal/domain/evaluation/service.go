package evaluation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/trade-schemes/internal/domain/override"
	"github.com/xenking/trade-schemes/internal/domain/scheme"
)

const instrumentationName = "github.com/xenking/trade-schemes/internal/domain/evaluation"

// Sentinel errors for request validation.
var (
	ErrSessionRequired    = errors.New("session id required")
	ErrEmptyCart          = errors.New("cart items required")
	ErrCommitTarget       = errors.New("exactly one of order id and pre-order id is required")
	ErrActingUserRequired = errors.New("acting user id required")
)

// InvalidQuantityError indicates a cart line has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// SchemeStore supplies scheme definitions that are active on a given day.
type SchemeStore interface {
	ListActive(ctx context.Context, day time.Time) ([]scheme.Scheme, error)
}

// EvaluateRequest is one cart evaluation within an order-building session.
type EvaluateRequest struct {
	SessionID string
	Customer  scheme.Customer
	Lines     []scheme.CartLine
}

// Evaluation is the outcome of Evaluate together with the overrides that
// were in force.
type Evaluation struct {
	Result     scheme.Result
	Candidates int
	Overrides  override.Set
}

// OverrideRequest carries an operator's manual benefit for one scheme.
type OverrideRequest struct {
	SchemeID string
	Original scheme.AppliedScheme
	Benefit  scheme.BenefitOverride
	Reason   string
}

// CommitRequest identifies the order the session's overrides belong to.
type CommitRequest struct {
	OrderID      string
	PreOrderID   string
	ActingUserID string
}

// Options configures optional Service collaborators.
type Options struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Now            func() time.Time
}

// Service runs cart evaluations and manages per-session override ledgers.
type Service struct {
	schemes   SchemeStore
	overrides override.Store
	audit     override.AuditLog
	selector  *scheme.Selector
	now       func() time.Time

	tracer      trace.Tracer
	evaluations metric.Int64Counter
	committed   metric.Int64Counter
}

// NewService creates a Service with the required domain dependencies.
func NewService(
	schemes SchemeStore,
	overrides override.Store,
	audit override.AuditLog,
	opts Options,
) (*Service, error) {
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	evaluations, err := meter.Int64Counter("schemes.evaluations",
		metric.WithDescription("Cart evaluations performed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create evaluations counter")
	}
	committed, err := meter.Int64Counter("schemes.overrides.committed",
		metric.WithDescription("Overrides written to the audit log"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create committed counter")
	}

	return &Service{
		schemes:     schemes,
		overrides:   overrides,
		audit:       audit,
		selector:    scheme.NewSelectorAt(opts.Now),
		now:         opts.Now,
		tracer:      opts.TracerProvider.Tracer(instrumentationName),
		evaluations: evaluations,
		committed:   committed,
	}, nil
}

// ActiveSchemes returns the schemes the store reports as active today.
func (s *Service) ActiveSchemes(ctx context.Context) ([]scheme.Scheme, error) {
	all, err := s.schemes.ListActive(ctx, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "list active schemes")
	}
	return all, nil
}

// Evaluate validates the cart, selects the applicable schemes and calculates
// their benefits with the session's overrides applied.
func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (*Evaluation, error) {
	ctx, span := s.tracer.Start(ctx, "Evaluate")
	defer span.End()

	if strings.TrimSpace(req.SessionID) == "" {
		return nil, ErrSessionRequired
	}
	lines, err := normalizeLines(req.Lines)
	if err != nil {
		return nil, err
	}

	all, err := s.ActiveSchemes(ctx)
	if err != nil {
		return nil, err
	}
	candidates := s.selector.SelectApplicable(all, lines, req.Customer)

	set, err := override.NewLedger(s.overrides, req.SessionID).Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result := scheme.Calculate(candidates, lines, set)

	span.SetAttributes(
		attribute.Int("schemes.candidates", len(candidates)),
		attribute.Int("schemes.applied", len(result.AppliedSchemes)),
	)
	s.evaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("customer.type", string(req.Customer.Type)),
	))
	zctx.From(ctx).Debug("Cart evaluated",
		zap.String("session_id", req.SessionID),
		zap.Int("lines", len(lines)),
		zap.Int("active", len(all)),
		zap.Int("candidates", len(candidates)),
		zap.Int("applied", len(result.AppliedSchemes)),
		zap.Int("overrides", len(set)),
		zap.Stringer("total_discount", result.TotalDiscount),
	)

	return &Evaluation{
		Result:     result,
		Candidates: len(candidates),
		Overrides:  set,
	}, nil
}

// AddOverride records an operator override in the session ledger.
func (s *Service) AddOverride(ctx context.Context, sessionID string, req OverrideRequest) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionRequired
	}
	if err := override.NewLedger(s.overrides, sessionID).
		AddOverride(ctx, req.SchemeID, req.Original, req.Benefit, req.Reason); err != nil {
		return err
	}

	zctx.From(ctx).Info("Scheme override added",
		zap.String("session_id", sessionID),
		zap.String("scheme_id", req.SchemeID),
	)
	return nil
}

// RemoveOverride drops one override from the session ledger.
func (s *Service) RemoveOverride(ctx context.Context, sessionID, schemeID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionRequired
	}
	return override.NewLedger(s.overrides, sessionID).RemoveOverride(ctx, schemeID)
}

// ClearOverrides drops every override of the session.
func (s *Service) ClearOverrides(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionRequired
	}
	return override.NewLedger(s.overrides, sessionID).ClearOverrides(ctx)
}

// ListOverrides returns the session's current overrides.
func (s *Service) ListOverrides(ctx context.Context, sessionID string) (override.Set, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}
	return override.NewLedger(s.overrides, sessionID).Snapshot(ctx)
}

// CommitOverrides writes one audit record per override of the session. The
// ledger itself is left untouched whether or not the write succeeds; callers
// clear it once the order is finalized.
func (s *Service) CommitOverrides(ctx context.Context, sessionID string, req CommitRequest) ([]override.AuditRecord, error) {
	ctx, span := s.tracer.Start(ctx, "CommitOverrides")
	defer span.End()

	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}
	if (req.OrderID == "") == (req.PreOrderID == "") {
		return nil, ErrCommitTarget
	}
	if strings.TrimSpace(req.ActingUserID) == "" {
		return nil, ErrActingUserRequired
	}

	set, err := override.NewLedger(s.overrides, sessionID).Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return []override.AuditRecord{}, nil
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := s.now().UTC()
	records := make([]override.AuditRecord, len(ids))
	for i, id := range ids {
		o := set[id]
		records[i] = override.AuditRecord{
			ID:           uuid.New().String(),
			OrderID:      req.OrderID,
			PreOrderID:   req.PreOrderID,
			SchemeID:     o.SchemeID,
			Original:     o.Original,
			Benefit:      o.Benefit,
			Reason:       o.Reason,
			ActingUserID: req.ActingUserID,
			CreatedAt:    now,
		}
	}

	if err := s.audit.Append(ctx, records); err != nil {
		return nil, errors.Wrap(err, "append override audit records")
	}

	s.committed.Add(ctx, int64(len(records)))
	zctx.From(ctx).Info("Scheme overrides committed",
		zap.String("session_id", sessionID),
		zap.String("order_id", req.OrderID),
		zap.String("pre_order_id", req.PreOrderID),
		zap.String("acting_user_id", req.ActingUserID),
		zap.Int("count", len(records)),
	)
	return records, nil
}

// normalizeLines validates quantities and fills in missing line totals from
// the unit price. The input slice is not modified.
func normalizeLines(in []scheme.CartLine) ([]scheme.CartLine, error) {
	if len(in) == 0 {
		return nil, ErrEmptyCart
	}
	out := make([]scheme.CartLine, len(in))
	for i, line := range in {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}
		if line.LineTotal.IsZero() && !line.UnitPrice.IsZero() {
			line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		}
		out[i] = line
	}
	return out, nil
}
