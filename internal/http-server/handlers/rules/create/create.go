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

type RuleCreator interface {
	CreateRule(ctx context.Context, req *api.RuleCreateRequest) (*api.RuleResponse, error)
}

type Request struct {
	api.RuleCreateRequest
}

type Response struct {
	response.Response
	Rule api.RuleResponse `json:"rule,omitempty"`
}

func New(log *slog.Logger, creator RuleCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.rules.create.New"

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

		rule, err := creator.CreateRule(r.Context(), &req.RuleCreateRequest)

		if errors.Is(err, response.ErrValidation) {
			log.Error("invalid rule payload", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "invalid rule payload"))
			return
		}

		if errors.Is(err, response.ErrConfiguration) {
			log.Error("timezone is not usable", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(string(response.CONFIGURATION), "timezone is not usable"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("student not found", slog.Int64("student_id", req.StudentID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "student not found"))
			return
		}

		if err != nil {
			log.Error("Failed to create rule", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to create rule"))
			return
		}

		log.Info("Rule created", slog.Int64("id", rule.ID))

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Rule: *rule,
		})
	}
}
