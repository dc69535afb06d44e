package override

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/trade-schemes/internal/domain/scheme"
)

// Ledger is the override set of a single session.
type Ledger struct {
	store   Store
	session string
	now     func() time.Time
}

// NewLedger binds a Ledger to sessionID on top of store.
func NewLedger(store Store, sessionID string) *Ledger {
	return &Ledger{store: store, session: sessionID, now: time.Now}
}

// AddOverride records a manual benefit for schemeID, replacing any previous
// one. A blank reason or a negative benefit is rejected with *ValidationError.
func (l *Ledger) AddOverride(
	ctx context.Context,
	schemeID string,
	original scheme.AppliedScheme,
	benefit scheme.BenefitOverride,
	reason string,
) error {
	if err := validate(schemeID, benefit, reason); err != nil {
		return err
	}

	o := Override{
		SchemeID:  schemeID,
		Original:  original,
		Benefit:   benefit,
		Reason:    strings.TrimSpace(reason),
		CreatedAt: l.now().UTC(),
	}
	if err := l.store.Put(ctx, l.session, o); err != nil {
		return errors.Wrap(err, "put override")
	}
	return nil
}

// RemoveOverride drops the override for schemeID. Removing a missing
// override is not an error.
func (l *Ledger) RemoveOverride(ctx context.Context, schemeID string) error {
	if err := l.store.Delete(ctx, l.session, schemeID); err != nil {
		return errors.Wrap(err, "delete override")
	}
	return nil
}

// ClearOverrides drops every override of the session.
func (l *Ledger) ClearOverrides(ctx context.Context) error {
	if err := l.store.Clear(ctx, l.session); err != nil {
		return errors.Wrap(err, "clear overrides")
	}
	return nil
}

// HasOverride reports whether schemeID is currently overridden.
func (l *Ledger) HasOverride(ctx context.Context, schemeID string) (bool, error) {
	_, ok, err := l.store.Get(ctx, l.session, schemeID)
	if err != nil {
		return false, errors.Wrap(err, "get override")
	}
	return ok, nil
}

// Snapshot returns a copy of the session's overrides for a calculation.
func (l *Ledger) Snapshot(ctx context.Context) (Set, error) {
	set, err := l.store.Snapshot(ctx, l.session)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot overrides")
	}
	return set, nil
}

func validate(schemeID string, benefit scheme.BenefitOverride, reason string) error {
	if strings.TrimSpace(schemeID) == "" {
		return &ValidationError{Field: "schemeId", Message: "is required"}
	}
	if strings.TrimSpace(reason) == "" {
		return &ValidationError{Field: "reason", Message: "is required"}
	}
	if benefit.DiscountAmount != nil && benefit.DiscountAmount.IsNegative() {
		return &ValidationError{Field: "discountAmount", Message: "must not be negative"}
	}
	if benefit.FreeQuantity != nil && *benefit.FreeQuantity < 0 {
		return &ValidationError{Field: "freeQuantity", Message: "must not be negative"}
	}
	return nil
}
