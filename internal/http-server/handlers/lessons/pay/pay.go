package pay

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

type LessonPayer interface {
	PayLessonAnytime(ctx context.Context, lessonID int64) error
}

// New records payment for a per-lesson-charge lesson in any state,
// including before it happened.
func New(log *slog.Logger, payer LessonPayer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.lessons.pay.New"

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

		err = payer.PayLessonAnytime(r.Context(), id)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("lesson not found", slog.Int64("id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "lesson not found"))
			return
		}

		if errors.Is(err, response.ErrValidation) {
			log.Error("lesson is not payable", slog.Int64("id", id))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "subscription lessons have nothing to pay"))
			return
		}

		if err != nil {
			log.Error("Failed to record payment", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to record payment"))
			return
		}

		log.Info("Lesson payment recorded", slog.Int64("id", id))
		render.JSON(w, r, response.Response{})
	}
}
