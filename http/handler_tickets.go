package http

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"ticketchain/entity"
	"ticketchain/workflow"
)

type ticketResponse struct {
	entity.Ticket
	Status entity.TicketStatus `json:"status"`
}

type postTicketTransferRequest struct {
	Recipient string `json:"recipient"`
}

func (s Server) GetOwnerTickets(c echo.Context) error {
	tickets, err := s.reconciler.Reconcile(c.Request().Context(), c.Param("address"))
	if err != nil {
		return httpError(fmt.Errorf("failed to reconcile tickets: %w", err))
	}

	now := time.Now()
	response := lo.Map(tickets, func(ticket entity.Ticket, _ int) ticketResponse {
		return ticketResponse{
			Ticket: ticket,
			Status: ticket.Status(now),
		}
	})

	return c.JSON(http.StatusOK, response)
}

func (s Server) PostTickets(c echo.Context) error {
	var request workflow.IssuanceRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	result, err := s.issuance.Run(c.Request().Context(), request)

	return workflowResponse(c, http.StatusCreated, result, err)
}

func (s Server) PostTicketTransfer(c echo.Context) error {
	tokenID, ok := new(big.Int).SetString(c.Param("token_id"), 10)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "token_id must be a decimal integer")
	}

	var request postTicketTransferRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	result, err := s.transfer.Run(c.Request().Context(), workflow.TransferRequest{
		TokenID:   tokenID,
		Recipient: request.Recipient,
	})

	return workflowResponse(c, http.StatusOK, result, err)
}

// workflowResponse returns the result of a failed step as the body so the caller sees which step failed.
func workflowResponse(c echo.Context, successStatus int, result entity.WorkflowResult, err error) error {
	if err == nil {
		return c.JSON(successStatus, result)
	}

	var stepErr *workflow.StepError
	if errors.As(err, &stepErr) {
		status := statusFor(stepErr.Err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		return c.JSON(status, result)
	}

	return httpError(err)
}
