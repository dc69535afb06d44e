// Package handler exposes the evaluation service over HTTP.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/trade-schemes/internal/domain/auth"
	"github.com/xenking/trade-schemes/internal/domain/evaluation"
	"github.com/xenking/trade-schemes/internal/domain/override"
	"github.com/xenking/trade-schemes/internal/domain/scheme"
)

// Service is the part of evaluation.Service the API needs.
type Service interface {
	ActiveSchemes(ctx context.Context) ([]scheme.Scheme, error)
	Evaluate(ctx context.Context, req evaluation.EvaluateRequest) (*evaluation.Evaluation, error)
	AddOverride(ctx context.Context, sessionID string, req evaluation.OverrideRequest) error
	RemoveOverride(ctx context.Context, sessionID, schemeID string) error
	ClearOverrides(ctx context.Context, sessionID string) error
	ListOverrides(ctx context.Context, sessionID string) (override.Set, error)
	CommitOverrides(ctx context.Context, sessionID string, req evaluation.CommitRequest) ([]override.AuditRecord, error)
}

var _ Service = (*evaluation.Service)(nil)

// Handler serves the /api routes.
type Handler struct {
	svc      Service
	validate *validator.Validate
}

// NewHandler returns a Handler backed by svc.
func NewHandler(svc Service) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Money fields are validated by value, e.g. `validate:"gte=0"`.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		return field.Interface().(decimal.Decimal).InexactFloat64()
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{svc: svc, validate: v}
}

// Register adds the API routes to r. Authentication middleware is expected
// to run before them; each route checks its own scope.
func (h *Handler) Register(r chi.Router) {
	r.With(RequireScope(auth.ScopeEvaluate)).Get("/schemes/active", h.listActiveSchemes)

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.With(RequireScope(auth.ScopeEvaluate)).Post("/evaluate", h.evaluate)

		r.Route("/overrides", func(r chi.Router) {
			r.With(RequireScope(auth.ScopeEvaluate)).Get("/", h.listOverrides)
			r.With(RequireScope(auth.ScopeCommit)).Post("/commit", h.commitOverrides)

			r.Group(func(r chi.Router) {
				r.Use(RequireScope(auth.ScopeOverride))
				r.Delete("/", h.clearOverrides)
				r.Put("/{schemeID}", h.putOverride)
				r.Delete("/{schemeID}", h.deleteOverride)
			})
		})
	})
}

func (h *Handler) listActiveSchemes(w http.ResponseWriter, r *http.Request) {
	schemes, err := h.svc.ActiveSchemes(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if schemes == nil {
		schemes = []scheme.Scheme{}
	}
	writeJSON(w, http.StatusOK, schemes)
}
