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

type RuleLister interface {
	ListRules(ctx context.Context, studentID int64) ([]*api.RuleResponse, error)
}

type Response struct {
	response.Response
	Rules []api.RuleResponse `json:"rules"`
}

// New lists the active rules of one student; the student id comes from
// the route.
func New(log *slog.Logger, lister RuleLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.rules.get.New"

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

		rules, err := lister.ListRules(r.Context(), studentID)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("student not found", slog.Int64("student_id", studentID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "student not found"))
			return
		}

		if err != nil {
			log.Error("Failed to list rules", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list rules"))
			return
		}

		log.Info("Rules retrieved", slog.Int("count", len(rules)))

		rulesResponse := make([]api.RuleResponse, len(rules))
		for i, rule := range rules {
			rulesResponse[i] = *rule
		}
		render.JSON(w, r, Response{
			Rules: rulesResponse,
		})
	}
}
