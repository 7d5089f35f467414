package quotation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/mrp/internal/platform/httpx"
)

// Handler exposes quotation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers quotation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/calculate", h.calculate)
	r.Post("/weight", h.weight)
	r.Get("/matrix", h.matrix)
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Quote(req)
	if err != nil {
		if classify(err) == nil {
			h.logger.Error("calculate quotation", slog.Any("error", err))
		}
		httpx.RespondError(w, err, classify)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

type weightRequest struct {
	Components []Component `json:"components" validate:"required"`
}

type weightResponse struct {
	TotalWeightGrams string     `json:"totalWeightGrams"`
	PackFormat       PackFormat `json:"packFormat,omitempty"`
	WithinBrackets   bool       `json:"withinBrackets"`
}

func (h *Handler) weight(w http.ResponseWriter, r *http.Request) {
	var req weightRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	grams, format, ok := h.service.Weight(req.Components)
	httpx.JSON(w, http.StatusOK, weightResponse{TotalWeightGrams: grams.String(), PackFormat: format, WithinBrackets: ok})
}

func (h *Handler) matrix(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Matrix())
}

func classify(err error) error {
	var unit *UnsupportedUnitError
	var format *UnsupportedFormatError
	switch {
	case errors.As(err, &unit), errors.As(err, &format),
		errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrNegativeInput):
		return httpx.ErrValidation
	}
	return nil
}
