package run

import (
	"context"
	"log/slog"
	"net/http"
	"time"
	"tutor-service/pkg/response"
	"tutor-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type JobRunner interface {
	GenerateLessons(ctx context.Context, nowUTC time.Time, horizonDays int) (int, error)
	PlanNotifications(ctx context.Context, nowUTC time.Time, aheadDays int) (int, error)
	SendNotifications(ctx context.Context, nowUTC time.Time, batchSize int) error
}

type Response struct {
	response.Response
	Processed int `json:"processed"`
}

// New triggers one background job by name, outside its schedule. Meant
// for operators; the jobs are idempotent so an extra run is safe.
func New(log *slog.Logger, runner JobRunner, horizonDays, aheadDays, batchSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.jobs.run.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		name := chi.URLParam(r, "name")
		now := time.Now().UTC()

		var (
			processed int
			err       error
		)

		switch name {
		case "generate":
			processed, err = runner.GenerateLessons(r.Context(), now, horizonDays)
		case "plan":
			processed, err = runner.PlanNotifications(r.Context(), now, aheadDays)
		case "dispatch":
			err = runner.SendNotifications(r.Context(), now, batchSize)
		default:
			log.Error("unknown job", slog.String("name", name))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "unknown job"))
			return
		}

		if err != nil {
			log.Error("Job failed", slog.String("name", name), sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "job failed"))
			return
		}

		log.Info("Job finished", slog.String("name", name), slog.Int("processed", processed))

		render.JSON(w, r, Response{
			Processed: processed,
		})
	}
}
