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

type KeyCreator interface {
	CreateRegistrationKey(ctx context.Context, req *api.KeyCreateRequest) (*api.KeyResponse, error)
}

type Request struct {
	api.KeyCreateRequest
}

type Response struct {
	response.Response
	Key api.KeyResponse `json:"key,omitempty"`
}

func New(log *slog.Logger, creator KeyCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.keys.create.New"

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

		key, err := creator.CreateRegistrationKey(r.Context(), &req.KeyCreateRequest)

		if errors.Is(err, response.ErrValidation) {
			log.Error("invalid key payload", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "invalid key payload"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("student not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "student not found"))
			return
		}

		if err != nil {
			log.Error("Failed to create key", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to create key"))
			return
		}

		log.Info("Registration key created", slog.String("role", key.Role))

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Key: *key,
		})
	}
}
