package override

import (
	"context"
	"time"

	"github.com/xenking/trade-schemes/internal/domain/scheme"
)

// AuditRecord is the durable trace of a committed override. Exactly one of
// OrderID and PreOrderID is set.
type AuditRecord struct {
	ID           string                 `json:"id"`
	OrderID      string                 `json:"orderId,omitempty"`
	PreOrderID   string                 `json:"preOrderId,omitempty"`
	SchemeID     string                 `json:"schemeId"`
	Original     scheme.AppliedScheme   `json:"originalBenefit"`
	Benefit      scheme.BenefitOverride `json:"overrideBenefit"`
	Reason       string                 `json:"reason"`
	ActingUserID string                 `json:"actingUserId"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// AuditLog is an append-only sink for committed overrides. Append stores
// all records or none of them.
type AuditLog interface {
	Append(ctx context.Context, records []AuditRecord) error
}
