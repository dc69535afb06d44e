// Package override keeps manually entered scheme benefits for one
// order-building session and describes how committed overrides are audited.
package override

import (
	"context"
	"fmt"
	"time"

	"github.com/xenking/trade-schemes/internal/domain/scheme"
)

// Override replaces the computed benefit of one scheme.
type Override struct {
	SchemeID  string                 `json:"schemeId"`
	Original  scheme.AppliedScheme   `json:"originalBenefit"`
	Benefit   scheme.BenefitOverride `json:"overrideBenefit"`
	Reason    string                 `json:"reason"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Set is a point-in-time copy of a session's overrides keyed by scheme id.
type Set map[string]Override

var _ scheme.Overrides = Set(nil)

// Lookup implements scheme.Overrides.
func (s Set) Lookup(schemeID string) (scheme.BenefitOverride, string, bool) {
	o, ok := s[schemeID]
	if !ok {
		return scheme.BenefitOverride{}, "", false
	}
	return o.Benefit, o.Reason, true
}

// Store holds overrides per session. Put replaces any override with the same
// scheme id.
type Store interface {
	Get(ctx context.Context, sessionID, schemeID string) (Override, bool, error)
	Put(ctx context.Context, sessionID string, o Override) error
	Delete(ctx context.Context, sessionID, schemeID string) error
	Clear(ctx context.Context, sessionID string) error
	Snapshot(ctx context.Context, sessionID string) (Set, error)
}

// ValidationError reports override input rejected by the ledger.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid override %s: %s", e.Field, e.Message)
}
