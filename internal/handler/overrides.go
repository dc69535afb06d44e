package handler

import (
	"cmp"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/trade-schemes/internal/domain/evaluation"
	"github.com/xenking/trade-schemes/internal/domain/override"
	"github.com/xenking/trade-schemes/internal/domain/scheme"
)

type overrideRequest struct {
	OriginalBenefit scheme.AppliedScheme   `json:"originalBenefit"`
	OverrideBenefit overrideBenefitRequest `json:"overrideBenefit"`
	Reason          string                 `json:"reason" validate:"required,max=1024"`
}

type overrideBenefitRequest struct {
	DiscountAmount *decimal.Decimal `json:"discountAmount" validate:"omitempty,gte=0"`
	FreeQuantity   *int             `json:"freeQuantity" validate:"omitempty,gte=0"`
}

type overridesResponse struct {
	Overrides []override.Override `json:"overrides"`
}

type commitRequest struct {
	OrderID      string `json:"orderId" validate:"required_without=PreOrderID,excluded_with=PreOrderID"`
	PreOrderID   string `json:"preOrderId" validate:"required_without=OrderID,excluded_with=OrderID"`
	ActingUserID string `json:"actingUserId" validate:"required"`
}

type commitResponse struct {
	Records []override.AuditRecord `json:"records"`
}

func (h *Handler) listOverrides(w http.ResponseWriter, r *http.Request) {
	set, err := h.svc.ListOverrides(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	list := make([]override.Override, 0, len(set))
	for _, o := range set {
		list = append(list, o)
	}
	slices.SortFunc(list, func(a, b override.Override) int {
		return cmp.Compare(a.SchemeID, b.SchemeID)
	})
	writeJSON(w, http.StatusOK, overridesResponse{Overrides: list})
}

func (h *Handler) putOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	schemeID := chi.URLParam(r, "schemeID")
	original := req.OriginalBenefit
	if original.SchemeID == "" {
		original.SchemeID = schemeID
	}

	err := h.svc.AddOverride(r.Context(), chi.URLParam(r, "sessionID"), evaluation.OverrideRequest{
		SchemeID: schemeID,
		Original: original,
		Benefit: scheme.BenefitOverride{
			DiscountAmount: req.OverrideBenefit.DiscountAmount,
			FreeQuantity:   req.OverrideBenefit.FreeQuantity,
		},
		Reason: req.Reason,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteOverride(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RemoveOverride(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "schemeID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearOverrides(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearOverrides(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) commitOverrides(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	records, err := h.svc.CommitOverrides(r.Context(), chi.URLParam(r, "sessionID"), evaluation.CommitRequest{
		OrderID:      req.OrderID,
		PreOrderID:   req.PreOrderID,
		ActingUserID: req.ActingUserID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commitResponse{Records: records})
}
