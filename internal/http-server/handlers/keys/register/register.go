package register

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

type Registrar interface {
	RegisterByKey(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error)
}

type Request struct {
	api.RegisterRequest
}

type Response struct {
	response.Response
	User api.RegisterResponse `json:"user,omitempty"`
}

func New(log *slog.Logger, registrar Registrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.keys.register.New"

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

		// the payload carries the key; do not echo it into the log
		log.Info("Registration requested", slog.Int64("tg_id", req.TgID))

		if req.Key == "" {
			log.Error("key is empty")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "key is required"))
			return
		}

		user, err := registrar.RegisterByKey(r.Context(), &req.RegisterRequest)

		if errors.Is(err, response.ErrValidation) {
			log.Error("key rejected", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION), "key is not valid"))
			return
		}

		if errors.Is(err, response.ErrConfiguration) {
			log.Error("key is misconfigured", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(string(response.CONFIGURATION), "key is misconfigured"))
			return
		}

		if err != nil {
			log.Error("Failed to register", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to register"))
			return
		}

		log.Info("User registered",
			slog.Int64("user_id", user.UserID),
			slog.String("role", user.Role),
		)

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			User: *user,
		})
	}
}
