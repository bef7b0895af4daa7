package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/diagnosis/goodvibes-bookings/internal/hub"
	"github.com/diagnosis/goodvibes-bookings/internal/service"
	"github.com/diagnosis/goodvibes-bookings/pkg/metrics"
	mw "github.com/diagnosis/goodvibes-bookings/pkg/middleware"
)

type RouterDeps struct {
	Bookings service.BookingService
	Confirm  ConfirmationSender
	Hub      *hub.Hub
	Metrics  *metrics.Metrics
	Limiter  mw.Limiter // nil disables rate limiting on intake
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("bookings"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.Metrics(d.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	var intakeMws []func(http.Handler) http.Handler
	if d.Limiter != nil {
		intakeMws = append(intakeMws, mw.RateLimit(d.Limiter, "bookings"))
	}

	r.Mount("/bookings", NewBookingHandler(d.Bookings, intakeMws...).Routes())
	r.Mount("/services", NewServicesHandler(d.Bookings).Routes())
	r.Post("/send-confirmation", NewConfirmationHandler(d.Confirm).Send)
	r.Get("/ws", hub.Serve(d.Hub))
	return r
}
