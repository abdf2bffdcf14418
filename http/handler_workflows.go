package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"ticketchain/entity"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

type stepsWorkflow interface {
	Steps() []entity.WorkflowStep
	Reset() error
}

func (s Server) workflowByKind(c echo.Context) (stepsWorkflow, error) {
	switch entity.WorkflowKind(c.Param("kind")) {
	case entity.WorkflowKindIssuance:
		return s.issuance, nil
	case entity.WorkflowKindTransfer:
		return s.transfer, nil
	default:
		return nil, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown workflow kind %q", c.Param("kind")))
	}
}

func (s Server) GetWorkflowSteps(c echo.Context) error {
	wf, err := s.workflowByKind(c)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, wf.Steps())
}

func (s Server) PostWorkflowReset(c echo.Context) error {
	wf, err := s.workflowByKind(c)
	if err != nil {
		return err
	}

	if err := wf.Reset(); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, wf.Steps())
}

func (s Server) GetWorkflowRuns(c echo.Context) error {
	kind := entity.WorkflowKind(c.QueryParam("kind"))
	if kind != entity.WorkflowKindIssuance && kind != entity.WorkflowKindTransfer {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown workflow kind %q", kind))
	}

	limit := defaultRunsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(parsed, maxRunsLimit)
	}

	runs, err := s.runsRepo.FindRecent(c.Request().Context(), kind, limit)
	if err != nil {
		return fmt.Errorf("failed to find workflow runs: %w", err)
	}

	return c.JSON(http.StatusOK, runs)
}

func (s Server) GetWorkflowRun(c echo.Context) error {
	run, err := s.runsRepo.Get(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return httpError(fmt.Errorf("failed to get workflow run: %w", err))
	}

	return c.JSON(http.StatusOK, run)
}

func (s Server) GetWorkflowRunHistory(c echo.Context) error {
	history, err := s.stepHistory.History(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return fmt.Errorf("failed to get workflow run history: %w", err)
	}

	return c.JSON(http.StatusOK, history)
}
