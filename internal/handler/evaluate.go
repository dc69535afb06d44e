package handler

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/trade-schemes/internal/domain/evaluation"
	"github.com/xenking/trade-schemes/internal/domain/scheme"
)

type evaluateRequest struct {
	Customer customerRequest   `json:"customer"`
	Items    []cartLineRequest `json:"items" validate:"required,min=1,dive"`
}

type customerRequest struct {
	Type     string `json:"type" validate:"required,oneof=distributor retailer"`
	Category string `json:"category" validate:"max=256"`
}

type cartLineRequest struct {
	ProductID   string          `json:"productId" validate:"required"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	LineTotal   decimal.Decimal `json:"lineTotal" validate:"gte=0"`
	SKU         string          `json:"sku"`
	Category    string          `json:"category"`
}

type evaluateResponse struct {
	scheme.Result
	CandidateSchemes  int      `json:"candidateSchemes"`
	OverriddenSchemes []string `json:"overriddenSchemes"`
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	lines := make([]scheme.CartLine, len(req.Items))
	for i, item := range req.Items {
		lines[i] = scheme.CartLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
			SKU:         item.SKU,
			Category:    item.Category,
		}
	}

	ev, err := h.svc.Evaluate(r.Context(), evaluation.EvaluateRequest{
		SessionID: chi.URLParam(r, "sessionID"),
		Customer: scheme.Customer{
			Type:     scheme.CustomerType(req.Customer.Type),
			Category: req.Customer.Category,
		},
		Lines: lines,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	overridden := make([]string, 0, len(ev.Overrides))
	for id := range ev.Overrides {
		overridden = append(overridden, id)
	}
	slices.Sort(overridden)

	writeJSON(w, http.StatusOK, evaluateResponse{
		Result:            ev.Result,
		CandidateSchemes:  ev.Candidates,
		OverriddenSchemes: overridden,
	})
}
