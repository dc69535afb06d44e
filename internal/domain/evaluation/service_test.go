package evaluation

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/trade-schemes/internal/domain/override"
	"github.com/xenking/trade-schemes/internal/domain/scheme"
)

// --- Mock implementations ---

type mockSchemeStore struct {
	schemes []scheme.Scheme
	err     error
	lastDay time.Time
}

func (m *mockSchemeStore) ListActive(_ context.Context, day time.Time) ([]scheme.Scheme, error) {
	m.lastDay = day
	return m.schemes, m.err
}

type mockAuditLog struct {
	records []override.AuditRecord
	err     error
}

func (m *mockAuditLog) Append(_ context.Context, records []override.AuditRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, records...)
	return nil
}

// --- Helpers ---

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func activeScheme(id string, typ scheme.Type, pct string) scheme.Scheme {
	return scheme.Scheme{
		ID:              id,
		Name:            "Scheme " + id,
		Type:            typ,
		BenefitType:     scheme.BenefitDiscount,
		Applicability:   scheme.ApplicableAllOutlets,
		Status:          scheme.StatusActive,
		StartDate:       fixedNow.AddDate(0, -1, 0),
		EndDate:         fixedNow.AddDate(0, 1, 0),
		DiscountPercent: d(pct),
	}
}

func newTestService(t *testing.T, store *mockSchemeStore, audit *mockAuditLog) *Service {
	t.Helper()
	svc, err := NewService(store, override.NewMemoryStore(), audit, Options{
		Now: func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc
}

func cart() []scheme.CartLine {
	return []scheme.CartLine{
		{ProductID: "p1", ProductName: "Soap", Quantity: 10, UnitPrice: d("100"), LineTotal: d("1000")},
		{ProductID: "p2", ProductName: "Shampoo", Quantity: 5, UnitPrice: d("200")},
	}
}

// --- Tests ---

func TestEvaluate_Validation(t *testing.T) {
	svc := newTestService(t, &mockSchemeStore{}, &mockAuditLog{})
	ctx := context.Background()

	_, err := svc.Evaluate(ctx, EvaluateRequest{Lines: cart()})
	require.ErrorIs(t, err, ErrSessionRequired)

	_, err = svc.Evaluate(ctx, EvaluateRequest{SessionID: "s"})
	require.ErrorIs(t, err, ErrEmptyCart)

	_, err = svc.Evaluate(ctx, EvaluateRequest{
		SessionID: "s",
		Lines:     []scheme.CartLine{{ProductID: "p1", Quantity: 0}},
	})
	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
}

func TestEvaluate_AppliesSchemes(t *testing.T) {
	store := &mockSchemeStore{schemes: []scheme.Scheme{
		activeScheme("product", scheme.TypeProduct, "10"),
		func() scheme.Scheme {
			sc := activeScheme("retail-only", scheme.TypeProduct, "50")
			sc.Applicability = scheme.ApplicableRetailer
			return sc
		}(),
	}}
	svc := newTestService(t, store, &mockAuditLog{})

	ev, err := svc.Evaluate(context.Background(), EvaluateRequest{
		SessionID: "s1",
		Customer:  scheme.Customer{Type: scheme.CustomerDistributor},
		Lines:     cart(),
	})
	require.NoError(t, err)

	assert.Equal(t, fixedNow, store.lastDay)
	assert.Equal(t, 1, ev.Candidates)
	require.Len(t, ev.Result.AppliedSchemes, 1)
	// p2 line total is derived from unit price: 5 * 200.
	assert.True(t, d("2000").Equal(ev.Result.OriginalTotal))
	assert.True(t, d("200").Equal(ev.Result.TotalDiscount))
	assert.True(t, d("1800").Equal(ev.Result.DiscountedTotal))
}

func TestEvaluate_StoreError(t *testing.T) {
	svc := newTestService(t, &mockSchemeStore{err: errors.New("db down")}, &mockAuditLog{})

	_, err := svc.Evaluate(context.Background(), EvaluateRequest{SessionID: "s1", Lines: cart()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list active schemes")
}

func TestOverrideLifecycle(t *testing.T) {
	store := &mockSchemeStore{schemes: []scheme.Scheme{activeScheme("flat", scheme.TypeProduct, "40")}}
	svc := newTestService(t, store, &mockAuditLog{})
	ctx := context.Background()
	req := EvaluateRequest{SessionID: "s1", Customer: scheme.Customer{Type: scheme.CustomerRetailer}, Lines: cart()}

	natural, err := svc.Evaluate(ctx, req)
	require.NoError(t, err)
	require.Len(t, natural.Result.AppliedSchemes, 1)
	assert.True(t, d("800").Equal(natural.Result.AppliedSchemes[0].DiscountAmount))

	amount := d("300")
	require.NoError(t, svc.AddOverride(ctx, "s1", OverrideRequest{
		SchemeID: "flat",
		Original: natural.Result.AppliedSchemes[0],
		Benefit:  scheme.BenefitOverride{DiscountAmount: &amount},
		Reason:   "manager approval",
	}))

	overridden, err := svc.Evaluate(ctx, req)
	require.NoError(t, err)
	require.Len(t, overridden.Result.AppliedSchemes, 1)
	assert.True(t, d("300").Equal(overridden.Result.AppliedSchemes[0].DiscountAmount))
	assert.Equal(t, "[Overridden] manager approval", overridden.Result.AppliedSchemes[0].Description)
	assert.Len(t, overridden.Overrides, 1)

	other, err := svc.Evaluate(ctx, EvaluateRequest{SessionID: "s2", Lines: cart()})
	require.NoError(t, err)
	assert.True(t, d("800").Equal(other.Result.AppliedSchemes[0].DiscountAmount), "overrides are session scoped")

	require.NoError(t, svc.RemoveOverride(ctx, "s1", "flat"))
	restored, err := svc.Evaluate(ctx, req)
	require.NoError(t, err)
	assert.True(t, d("800").Equal(restored.Result.AppliedSchemes[0].DiscountAmount))
}

func TestAddOverride_BlankReason(t *testing.T) {
	svc := newTestService(t, &mockSchemeStore{}, &mockAuditLog{})

	err := svc.AddOverride(context.Background(), "s1", OverrideRequest{SchemeID: "flat", Reason: " "})

	var vErr *override.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "reason", vErr.Field)
}

func TestCommitOverrides(t *testing.T) {
	ctx := context.Background()
	audit := &mockAuditLog{}
	svc := newTestService(t, &mockSchemeStore{}, audit)

	amount := d("150")
	free := 2
	require.NoError(t, svc.AddOverride(ctx, "s1", OverrideRequest{
		SchemeID: "b", Benefit: scheme.BenefitOverride{FreeQuantity: &free}, Reason: "stock clearance",
	}))
	require.NoError(t, svc.AddOverride(ctx, "s1", OverrideRequest{
		SchemeID: "a", Benefit: scheme.BenefitOverride{DiscountAmount: &amount}, Reason: "key account",
	}))

	records, err := svc.CommitOverrides(ctx, "s1", CommitRequest{OrderID: "ord-1", ActingUserID: "user-7"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, records, audit.records)

	assert.Equal(t, "a", records[0].SchemeID)
	assert.Equal(t, "b", records[1].SchemeID)
	for _, rec := range records {
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, "ord-1", rec.OrderID)
		assert.Empty(t, rec.PreOrderID)
		assert.Equal(t, "user-7", rec.ActingUserID)
		assert.Equal(t, fixedNow, rec.CreatedAt)
	}

	set, err := svc.ListOverrides(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, set, 2, "commit leaves the ledger intact")
}

func TestCommitOverrides_Validation(t *testing.T) {
	svc := newTestService(t, &mockSchemeStore{}, &mockAuditLog{})
	ctx := context.Background()

	_, err := svc.CommitOverrides(ctx, "s1", CommitRequest{ActingUserID: "u"})
	require.ErrorIs(t, err, ErrCommitTarget)

	_, err = svc.CommitOverrides(ctx, "s1", CommitRequest{OrderID: "o", PreOrderID: "p", ActingUserID: "u"})
	require.ErrorIs(t, err, ErrCommitTarget)

	_, err = svc.CommitOverrides(ctx, "s1", CommitRequest{PreOrderID: "p"})
	require.ErrorIs(t, err, ErrActingUserRequired)

	records, err := svc.CommitOverrides(ctx, "s1", CommitRequest{PreOrderID: "p", ActingUserID: "u"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCommitOverrides_AuditFailureKeepsLedger(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &mockSchemeStore{}, &mockAuditLog{err: errors.New("insert failed")})

	require.NoError(t, svc.AddOverride(ctx, "s1", OverrideRequest{SchemeID: "a", Reason: "r"}))

	_, err := svc.CommitOverrides(ctx, "s1", CommitRequest{PreOrderID: "pre-1", ActingUserID: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append override audit records")

	set, err := svc.ListOverrides(ctx, "s1")
	require.NoError(t, err)
	assert.Contains(t, set, "a")
}

func TestClearOverrides(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &mockSchemeStore{}, &mockAuditLog{})

	require.NoError(t, svc.AddOverride(ctx, "s1", OverrideRequest{SchemeID: "a", Reason: "r"}))
	require.NoError(t, svc.AddOverride(ctx, "s1", OverrideRequest{SchemeID: "b", Reason: "r"}))
	require.NoError(t, svc.ClearOverrides(ctx, "s1"))

	set, err := svc.ListOverrides(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, set)

	require.ErrorIs(t, svc.ClearOverrides(ctx, ""), ErrSessionRequired)
}
