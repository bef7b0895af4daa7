package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/goodvibes-bookings/internal/http/response"
	"github.com/diagnosis/goodvibes-bookings/internal/intake"
	"github.com/diagnosis/goodvibes-bookings/internal/repo"
	"github.com/diagnosis/goodvibes-bookings/internal/service"
	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
)

const maxBodyBytes = 64 << 10

type BookingHandler struct {
	svc       service.BookingService
	intakeMws []func(http.Handler) http.Handler
}

// NewBookingHandler builds the /bookings routes. intakeMws wrap only POST /bookings, e.g. a
// rate limiter.
func NewBookingHandler(svc service.BookingService, intakeMws ...func(http.Handler) http.Handler) *BookingHandler {
	return &BookingHandler{svc: svc, intakeMws: intakeMws}
}

func (h *BookingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(h.intakeMws...).Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/conflicts", h.conflicts)
	r.Post("/{id}/cancel", h.cancel)
	return r
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		response.BadRequest(w, "request body too large or unreadable")
		return
	}
	p, err := intake.Decode(raw)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := h.svc.Create(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if !res.Created {
		status = http.StatusOK
	}
	response.JSON(w, status, res.Booking)
}

func (h *BookingHandler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, all)
}

func (h *BookingHandler) cancel(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, b)
}

func (h *BookingHandler) conflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rep, err := h.svc.CheckConflict(r.Context(), q.Get("date"), q.Get("startTime"), q.Get("endTime"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, rep)
}

// writeServiceError maps domain errors onto the JSON error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *intake.ValidationError
	var oe *repo.OverlapError
	switch {
	case errors.As(err, &ve):
		response.WriteErrorWithDetails(w, http.StatusBadRequest, ve.Error(), response.CodeValidation, map[string]string{"field": ve.Field})
	case errors.As(err, &oe):
		response.WriteErrorWithDetails(w, http.StatusConflict, "slot overlaps an active booking", response.CodeConflict, oe.Conflicts)
	case errors.Is(err, repo.ErrOverlap):
		response.WriteError(w, http.StatusConflict, "slot overlaps an active booking", response.CodeConflict)
	case errors.Is(err, repo.ErrNotFound):
		response.NotFound(w, "booking not found")
	case errors.Is(err, repo.ErrWriteRetryExhausted), errors.Is(err, repo.ErrLogUnreadable):
		logger.ErrorContext(r.Context(), "booking storage unavailable", "error", err)
		response.StorageUnavailable(w)
	default:
		logger.ErrorContext(r.Context(), "unhandled error", "error", err, "path", r.URL.Path)
		response.InternalError(w)
	}
}
