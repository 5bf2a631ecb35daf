package grade

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"tutor-service/pkg/response"
	"tutor-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type GradeNotifier interface {
	QueueHomeworkGraded(ctx context.Context, lessonID int64, text string, nowUTC time.Time) (int, error)
}

type Request struct {
	Text string `json:"text"`
}

type Response struct {
	response.Response
	Queued int `json:"queued"`
}

// New queues a homework-graded notice for the lesson's student and
// parents.
func New(log *slog.Logger, notifier GradeNotifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.homework.grade.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		lessonID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			log.Error("invalid lesson id", slog.String("id", chi.URLParam(r, "id")))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "invalid lesson id"))
			return
		}

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		if req.Text == "" {
			log.Error("text is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "text is required"))
			return
		}

		queued, err := notifier.QueueHomeworkGraded(r.Context(), lessonID, req.Text, time.Now().UTC())

		if errors.Is(err, response.ErrNotFound) {
			log.Error("lesson not found", slog.Int64("lesson_id", lessonID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "lesson not found"))
			return
		}

		if err != nil {
			log.Error("Failed to queue notice", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to queue notice"))
			return
		}

		log.Info("Homework notice queued",
			slog.Int64("lesson_id", lessonID),
			slog.Int("queued", queued),
		)

		render.JSON(w, r, Response{
			Queued: queued,
		})
	}
}
