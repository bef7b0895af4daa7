package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/goodvibes-bookings/internal/http/response"
	"github.com/diagnosis/goodvibes-bookings/internal/service"
)

type ServicesHandler struct {
	svc service.BookingService
}

func NewServicesHandler(svc service.BookingService) *ServicesHandler {
	return &ServicesHandler{svc: svc}
}

func (h *ServicesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	return r
}

// list returns the catalog; ?sort=price orders cheapest first.
func (h *ServicesHandler) list(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.svc.Services(r.URL.Query().Get("sort")))
}
