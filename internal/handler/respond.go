package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/trade-schemes/internal/domain/auth"
	"github.com/xenking/trade-schemes/internal/domain/evaluation"
	"github.com/xenking/trade-schemes/internal/domain/override"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// badRequestError marks a body that could not be decoded or validated.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return &badRequestError{msg: "invalid request body: " + err.Error()}
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return &badRequestError{msg: describe(verrs)}
		}
		return errors.Wrap(err, "validate request")
	}
	return nil
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		if fe.Param() != "" {
			parts[i] = fmt.Sprintf("%s: %s=%s", field, fe.Tag(), fe.Param())
		} else {
			parts[i] = fmt.Sprintf("%s: %s", field, fe.Tag())
		}
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// fail maps domain errors to status codes. Anything unrecognised is logged
// and reported as 500 without details.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		badReq      *badRequestError
		quantityErr *evaluation.InvalidQuantityError
		overrideErr *override.ValidationError
	)
	switch {
	case errors.As(err, &badReq),
		errors.Is(err, evaluation.ErrSessionRequired),
		errors.Is(err, evaluation.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &quantityErr),
		errors.As(err, &overrideErr),
		errors.Is(err, evaluation.ErrCommitTarget),
		errors.Is(err, evaluation.ErrActingUserRequired):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
