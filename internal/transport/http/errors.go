package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/pkg/httputil"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/pkg/logger"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeErr: ошибки таксономии уходят клиенту как есть, остальное: "internal error" + лог.
func writeErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(op+" failed", slog.Any("err", err))
	}
	httputil.Error(w, status, domain.PublicMessage(err), map[string]any{"op": op})
}
