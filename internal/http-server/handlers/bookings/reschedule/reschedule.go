package reschedule

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"salon-service/api"
	"salon-service/internal/http-server/actor"
	"salon-service/internal/models"
	"salon-service/pkg/response"
	"salon-service/pkg/sl"
)

type RescheduleRequester interface {
	RequestReschedule(ctx context.Context, id string, req *api.RescheduleRequest, act models.Actor) error
}

type Request struct {
	api.RescheduleRequest
}

type Response struct {
	response.Response
	Accepted bool `json:"accepted"`
}

func New(log *slog.Logger, requester RescheduleRequester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bookings.reschedule.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		id := chi.URLParam(r, "id")

		err := requester.RequestReschedule(r.Context(), id, &req.RescheduleRequest, actor.FromRequest(r))

		if errors.Is(err, response.ErrInvalidInput) {
			log.Error("Invalid reschedule request", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.INVALID_INPUT), "invalid reschedule request"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("Resource not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
			return
		}

		if err != nil {
			log.Error("Failed to record reschedule request", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to record reschedule request"))
			return
		}

		log.Info("Reschedule request recorded", slog.String("appointment_id", id))

		w.WriteHeader(http.StatusAccepted)
		render.JSON(w, r, Response{
			Accepted: true,
		})
	}
}
