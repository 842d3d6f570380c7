package ready

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"salon-service/pkg/response"
	"salon-service/pkg/sl"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Response struct {
	response.Response
	Status string `json:"status"`
}

func New(log *slog.Logger, checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ready.New"

		for name, check := range checks {
			if err := check.Ping(r.Context()); err != nil {
				log.Error("Readiness check failed", slog.String("check", name), sl.Err(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), name+" is unavailable"))
				return
			}
		}

		render.JSON(w, r, Response{Status: "ok"})
	}
}
