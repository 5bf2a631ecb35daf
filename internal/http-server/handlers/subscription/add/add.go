package add

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

type PackageAdder interface {
	AddSubscriptionPackage(ctx context.Context, studentID int64, qty int) (int, error)
}

type Request struct {
	api.SubscriptionAddRequest
}

type Response struct {
	response.Response
	LessonsLeft int `json:"lessons_left"`
}

func New(log *slog.Logger, adder PackageAdder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.subscription.add.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		studentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			log.Error("invalid student id", slog.String("id", chi.URLParam(r, "id")))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "invalid student id"))
			return
		}

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		log.Info("Request body decoded", slog.Any("request", req))

		left, err := adder.AddSubscriptionPackage(r.Context(), studentID, req.Qty)

		if errors.Is(err, response.ErrValidation) {
			log.Error("package rejected", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "unsupported package or billing mode"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("student not found", slog.Int64("student_id", studentID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "student not found"))
			return
		}

		if err != nil {
			log.Error("Failed to add package", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to add package"))
			return
		}

		log.Info("Package added",
			slog.Int64("student_id", studentID),
			slog.Int("qty", req.Qty),
			slog.Int("lessons_left", left),
		)

		render.JSON(w, r, Response{
			LessonsLeft: left,
		})
	}
}
