package delete

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

type RuleDeleter interface {
	DeactivateRule(ctx context.Context, id int64) error
	DeleteRule(ctx context.Context, id int64) error
}

// New handles rule removal. By default the rule is deactivated so its
// already materialized lessons stay linked to it; ?hard=true removes
// the row itself.
func New(log *slog.Logger, deleter RuleDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.rules.delete.New"

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

		hard := r.URL.Query().Get("hard") == "true"

		if hard {
			err = deleter.DeleteRule(r.Context(), id)
		} else {
			err = deleter.DeactivateRule(r.Context(), id)
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("rule not found", slog.Int64("id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "rule not found"))
			return
		}

		if err != nil {
			log.Error("Failed to delete rule", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to delete rule"))
			return
		}

		log.Info("Rule removed", slog.Int64("id", id), slog.Bool("hard", hard))
		w.WriteHeader(http.StatusNoContent)
	}
}
