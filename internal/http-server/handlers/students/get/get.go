package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"tutor-service/api"
	"tutor-service/pkg/response"
	"tutor-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type StudentGetter interface {
	GetStudent(ctx context.Context, id int64) (*api.StudentResponse, error)
	ListStudents(ctx context.Context) ([]*api.StudentResponse, error)
}

type Response struct {
	response.Response
	Students []api.StudentResponse `json:"students,omitempty"`
	Student  *api.StudentResponse  `json:"student,omitempty"`
}

func New(log *slog.Logger, getter StudentGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.students.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		idStr := chi.URLParam(r, "id")

		if idStr != "" {
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				log.Error("invalid id", slog.String("id", idStr))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "invalid id"))
				return
			}

			student, err := getter.GetStudent(r.Context(), id)

			if errors.Is(err, response.ErrNotFound) {
				log.Error("student not found", slog.Int64("id", id))
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error(string(response.NOT_FOUND), "student not found"))
				return
			}

			if err != nil {
				log.Error("Failed to get student", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to get student"))
				return
			}

			log.Info("Student retrieved", slog.Int64("id", student.ID))
			render.JSON(w, r, Response{
				Student: student,
			})
			return
		}

		students, err := getter.ListStudents(r.Context())

		if err != nil {
			log.Error("Failed to list students", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list students"))
			return
		}

		log.Info("Students retrieved", slog.Int("count", len(students)))

		studentsResponse := make([]api.StudentResponse, len(students))
		for i, st := range students {
			studentsResponse[i] = *st
		}
		render.JSON(w, r, Response{
			Students: studentsResponse,
		})
	}
}
