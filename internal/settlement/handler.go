package settlement

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/mrp/internal/platform/httpx"
	"github.com/odyssey-erp/mrp/internal/platform/numeric"
)

// Handler exposes settlement endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/evaluate", h.evaluate)
	r.Post("/proforma/availability", h.proformaAvailability)
	r.Get("/invoices/overdue", h.listOverdue)
	r.Get("/invoices/overdue/summary", h.overdueSummary)
	r.Get("/invoices/{id}", h.annotate)
}

type evaluateRequest struct {
	Invoice *Record         `json:"invoice" validate:"required"`
	Applied numeric.Lenient `json:"applied"`
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.service.Evaluate(req.Invoice.Invoice(), req.Applied.Value()))
}

func (h *Handler) proformaAvailability(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv := req.Invoice.Invoice()
	httpx.JSON(w, http.StatusOK, DeriveProformaAvailability(inv, req.Applied.Value(), h.service.Tolerance()))
}

func (h *Handler) annotate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ann, err := h.service.Annotate(r.Context(), id)
	if err != nil {
		h.logger.Error("annotate invoice", slog.Any("error", err), slog.String("id", id))
		httpx.RespondError(w, err, classify)
		return
	}
	httpx.JSON(w, http.StatusOK, ann)
}

func (h *Handler) listOverdue(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListOverdue(r.Context())
	if err != nil {
		h.logger.Error("list overdue invoices", slog.Any("error", err))
		httpx.RespondError(w, err, classify)
		return
	}
	if list == nil {
		list = []Annotation{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) overdueSummary(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.OverdueSummary(r.Context())
	if err != nil {
		h.logger.Error("overdue summary", slog.Any("error", err))
		httpx.RespondError(w, err, classify)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func classify(err error) error {
	if errors.Is(err, ErrInvoiceNotFound) {
		return httpx.ErrNotFound
	}
	return nil
}
