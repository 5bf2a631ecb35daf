package cancel

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

type LessonCanceler interface {
	CancelLesson(ctx context.Context, id int64) error
}

func New(log *slog.Logger, canceler LessonCanceler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.lessons.cancel.New"

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

		err = canceler.CancelLesson(r.Context(), id)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("lesson not found", slog.Int64("id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "lesson not found"))
			return
		}

		if errors.Is(err, response.ErrConflict) {
			log.Error("lesson is not cancelable", slog.Int64("id", id))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.CONFLICT), "lesson is not in planned state"))
			return
		}

		if err != nil {
			log.Error("Failed to cancel lesson", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to cancel lesson"))
			return
		}

		log.Info("Lesson canceled", slog.Int64("id", id))
		w.WriteHeader(http.StatusNoContent)
	}
}
