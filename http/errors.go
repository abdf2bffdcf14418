package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"ticketchain/entity"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{entity.ErrNotFound, http.StatusNotFound},
	{entity.ErrWorkflowInProgress, http.StatusConflict},
	{entity.ErrConflict, http.StatusConflict},
	{entity.ErrInvalidAddress, http.StatusBadRequest},
	{entity.ErrMissingRequiredField, http.StatusBadRequest},
	{entity.ErrInvalidEventDate, http.StatusBadRequest},
	{entity.ErrMalformedJSON, http.StatusBadRequest},
	{entity.ErrSchemaViolation, http.StatusUnprocessableEntity},
	{entity.ErrInvalidAttributeValue, http.StatusUnprocessableEntity},
	{entity.ErrLedgerRead, http.StatusBadGateway},
	{entity.ErrPublishFailed, http.StatusBadGateway},
	{entity.ErrTransactionRejected, http.StatusUnprocessableEntity},
	{entity.ErrSubmitTimeout, http.StatusGatewayTimeout},
	{entity.ErrConfirmationTimeout, http.StatusGatewayTimeout},
	{entity.ErrReadOnlyLedger, http.StatusServiceUnavailable},
}

func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}

	return http.StatusInternalServerError
}

// httpError maps domain errors to HTTP errors; unknown errors stay internal.
func httpError(err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return err
	}

	return echo.NewHTTPError(status, err.Error())
}
