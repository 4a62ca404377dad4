package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/sitehost/internal/api/response"
	"github.com/edvin/sitehost/internal/executor"
	"github.com/edvin/sitehost/internal/workflow"
)

// writeServiceError maps orchestrator errors onto HTTP statuses. Failed
// commands keep their captured output in the response body.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg("site operation failed")
	}

	var stepErr *executor.StepError
	if errors.As(err, &stepErr) {
		msg := strings.TrimSuffix(err.Error(), ": "+stepErr.Output)
		response.WriteCommandError(w, status, msg, stepErr.Output)
		return
	}
	response.WriteError(w, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrInvalidSiteName):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, executor.ErrInfrastructure):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
