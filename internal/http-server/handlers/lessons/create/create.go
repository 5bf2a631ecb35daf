package create

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"tutor-service/api"
	"tutor-service/pkg/response"
	"tutor-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type LessonCreator interface {
	CreateLesson(ctx context.Context, req *api.LessonCreateRequest) (*api.LessonResponse, error)
}

type Request struct {
	api.LessonCreateRequest
}

type Response struct {
	response.Response
	Lesson api.LessonResponse `json:"lesson,omitempty"`
}

func New(log *slog.Logger, creator LessonCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.lessons.create.New"

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

		log.Info("Request body decoded", slog.Any("request", req))

		if req.StudentID == 0 {
			log.Error("student_id is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "student_id is required"))
			return
		}

		lesson, err := creator.CreateLesson(r.Context(), &req.LessonCreateRequest)

		if errors.Is(err, response.ErrValidation) {
			log.Error("invalid lesson payload", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "invalid lesson payload"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("student not found", slog.Int64("student_id", req.StudentID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "student not found"))
			return
		}

		if errors.Is(err, response.ErrConflict) {
			log.Error("lesson already exists at this time")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.CONFLICT), "lesson already exists at this time"))
			return
		}

		if err != nil {
			log.Error("Failed to create lesson", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to create lesson"))
			return
		}

		log.Info("Lesson created", slog.Time("start_at", lesson.StartAt))

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Lesson: *lesson,
		})
	}
}
