package stocktaking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/mrp/internal/platform/httpx"
	"github.com/odyssey-erp/mrp/internal/shared"
)

const maxSheetBytes = 10 << 20

// PreflightEnqueuer schedules a background preflight run.
type PreflightEnqueuer interface {
	EnqueuePreflight(ctx context.Context, stocktakingID string) (string, error)
}

// Handler exposes stocktaking endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	enqueuer  PreflightEnqueuer
	validator *validator.Validate
}

// NewHandler builds Handler instance. enqueuer may be nil, in which case
// asynchronous preflight is unavailable.
func NewHandler(logger *slog.Logger, service *Service, enqueuer PreflightEnqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer, validator: httpx.NewValidator()}
}

// MountRoutes registers stocktaking routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/items/{itemID}", func(r chi.Router) {
		r.Post("/count", h.recordCount)
		r.Post("/accept", h.accept)
		r.Post("/unaccept", h.unaccept)
	})
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.summary)
		r.Get("/items", h.items)
		r.Get("/preflight", h.preflight)
		r.Post("/preflight", h.enqueuePreflight)
		r.Post("/complete", h.complete)
		r.Post("/import", h.importCounts)
	})
}

type countRequest struct {
	Quantity *decimal.Decimal `json:"quantity" validate:"required"`
}

type acceptRequest struct {
	Policy string `json:"policy" validate:"omitempty,oneof=require_clear force cancel_reservations"`
}

type completeRequest struct {
	Override       bool   `json:"override"`
	IdempotencyKey string `json:"idempotencyKey" validate:"omitempty,max=128"`
}

func (h *Handler) recordCount(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.RecordCount(r.Context(), RecordCountInput{
		ItemID:   chi.URLParam(r, "itemID"),
		Quantity: *req.Quantity,
		ActorID:  actorID(r),
	})
	if err != nil {
		h.fail(w, "record count", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ItemView{Item: item, State: item.State()})
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	outcome, err := h.service.AcceptItem(r.Context(), AcceptInput{
		ItemID:  chi.URLParam(r, "itemID"),
		Policy:  Policy(req.Policy),
		ActorID: actorID(r),
	})
	if err != nil {
		h.fail(w, "accept item", err)
		return
	}
	status := http.StatusOK
	if !outcome.Accepted {
		status = http.StatusConflict
	}
	httpx.JSON(w, status, outcome)
}

func (h *Handler) unaccept(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.UnacceptItem(r.Context(), chi.URLParam(r, "itemID"), actorID(r))
	if err != nil {
		h.fail(w, "unaccept item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ItemView{Item: item, State: item.State()})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "stocktaking summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) items(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Items(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "list items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) preflight(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.service.Preflight(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "preflight", err)
		return
	}
	if conflicts == nil {
		conflicts = []ReconciliationResult{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

func (h *Handler) enqueuePreflight(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "background jobs are not configured")
		return
	}
	id := chi.URLParam(r, "id")
	taskID, err := h.enqueuer.EnqueuePreflight(r.Context(), id)
	if err != nil {
		h.fail(w, "enqueue preflight", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	key := req.IdempotencyKey
	if header := strings.TrimSpace(r.Header.Get("Idempotency-Key")); header != "" {
		key = header
	}
	result, err := h.service.Complete(r.Context(), CompleteInput{
		StocktakingID:  chi.URLParam(r, "id"),
		Override:       req.Override,
		IdempotencyKey: key,
		ActorID:        actorID(r),
	})
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			httpx.ProblemWithExtra(w, http.StatusConflict, "Reservation Conflict", conflict.Error(), conflict.Results)
			return
		}
		h.fail(w, "complete stocktaking", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) importCounts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSheetBytes)
	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart field \"file\" is required")
			return
		}
		defer file.Close()
		body = file
	}
	report, err := h.service.ImportCounts(r.Context(), chi.URLParam(r, "id"), body, actorID(r))
	if err != nil {
		h.fail(w, "import counts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	mapped := classify(err)
	if mapped == nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err, classify)
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrStocktakingNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return httpx.ErrDuplicate
	case errors.Is(err, ErrItemAccepted), errors.Is(err, ErrNotCounted), errors.Is(err, ErrNotAccepted),
		errors.Is(err, ErrStocktakingCompleted), errors.Is(err, ErrItemsNotAccepted):
		return httpx.ErrConflict
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidPolicy), errors.Is(err, ErrInvalidSheet):
		return httpx.ErrValidation
	}
	return nil
}

// actorID reads the caller identity forwarded by the gateway. Missing or
// malformed values record as actor 0.
func actorID(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
