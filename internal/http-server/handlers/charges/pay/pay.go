package pay

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

type ChargePayer interface {
	MarkChargePaid(ctx context.Context, chargeID int64) error
}

// New confirms a charge as paid. Repeat confirmations are no-ops.
func New(log *slog.Logger, payer ChargePayer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.charges.pay.New"

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

		err = payer.MarkChargePaid(r.Context(), id)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("charge not found", slog.Int64("id", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "charge not found"))
			return
		}

		if err != nil {
			log.Error("Failed to confirm payment", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to confirm payment"))
			return
		}

		log.Info("Charge paid", slog.Int64("id", id))
		render.JSON(w, r, response.Response{})
	}
}
