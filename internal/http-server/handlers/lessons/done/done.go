package done

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"tutor-service/pkg/response"
	"tutor-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type LessonCompleter interface {
	MarkLessonDone(ctx context.Context, lessonID int64) (*int64, error)
}

type Response struct {
	response.Response
	ChargeID *int64 `json:"charge_id,omitempty"`
}

// New marks a lesson completed. The call is safe to repeat; a repeat
// is a no-op. ChargeID is present only while payment is still owed.
func New(log *slog.Logger, completer LessonCompleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.lessons.done.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			log.Error("invalid id", slog.String("id", chi.URLParam(r, "id")))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "invalid id"))
			return
		}

		chargeID, err := completer.MarkLessonDone(r.Context(), id)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("lesson not found", slog.Int64("id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "lesson not found"))
			return
		}

		if errors.Is(err, response.ErrConfiguration) {
			log.Error("billing settings are inconsistent", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(string(response.CONFIGURATION), "billing settings are inconsistent"))
			return
		}

		if err != nil {
			log.Error("Failed to complete lesson", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to complete lesson"))
			return
		}

		log.Info("Lesson completed", slog.Int64("id", id))

		render.JSON(w, r, Response{
			ChargeID: chargeID,
		})
	}
}
