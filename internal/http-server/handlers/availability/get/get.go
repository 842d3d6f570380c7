package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"salon-service/api"
	"salon-service/pkg/response"
	"salon-service/pkg/sl"
)

type AvailabilityProvider interface {
	GetAvailability(ctx context.Context, q *api.AvailabilityQuery) (*api.AvailabilityResponse, error)
}

type Response struct {
	response.Response
	api.AvailabilityResponse
}

func New(log *slog.Logger, provider AvailabilityProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.availability.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		q := &api.AvailabilityQuery{
			ServiceID: r.URL.Query().Get("service_id"),
			From:      r.URL.Query().Get("from"),
			To:        r.URL.Query().Get("to"),
		}

		if staffID := r.URL.Query().Get("staff_id"); staffID != "" {
			q.StaffID = &staffID
		}

		if q.ServiceID == "" || q.From == "" || q.To == "" {
			log.Error("Missing required query parameter")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "service_id, from and to are required"))
			return
		}

		result, err := provider.GetAvailability(r.Context(), q)

		if errors.Is(err, response.ErrInvalidInput) {
			log.Error("Invalid availability query", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.INVALID_INPUT), "invalid availability query"))
			return
		}

		if errors.Is(err, response.ErrRangeTooLarge) {
			log.Error("Range too large")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.RANGE_TOO_LARGE), "requested range exceeds 31 days"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("Resource not found", sl.Err(err))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
			return
		}

		if errors.Is(err, response.ErrConflict) {
			log.Error("Availability conflict", sl.Err(err))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.CONFLICT), "service or staff cannot be booked online"))
			return
		}

		if err != nil {
			log.Error("Failed to compute availability", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to compute availability"))
			return
		}

		log.Info("Availability computed", slog.Int("staff", len(result.Staff)))

		render.JSON(w, r, Response{
			AvailabilityResponse: *result,
		})
	}
}
