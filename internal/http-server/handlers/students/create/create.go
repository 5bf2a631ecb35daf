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

type StudentCreator interface {
	CreateStudent(ctx context.Context, req *api.StudentCreateRequest) (*api.StudentResponse, error)
}

type Request struct {
	api.StudentCreateRequest
}

type Response struct {
	response.Response
	Student api.StudentResponse `json:"student,omitempty"`
}

func New(log *slog.Logger, creator StudentCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.students.create.New"

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

		student, err := creator.CreateStudent(r.Context(), &req.StudentCreateRequest)

		if errors.Is(err, response.ErrValidation) {
			log.Error("invalid student payload", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "invalid student payload"))
			return
		}

		if errors.Is(err, response.ErrConfiguration) {
			log.Error("inconsistent billing settings", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(string(response.CONFIGURATION), "inconsistent billing settings"))
			return
		}

		if err != nil {
			log.Error("Failed to create student", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to create student"))
			return
		}

		log.Info("Student created", slog.Int64("id", student.ID))

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Student: *student,
		})
	}
}
